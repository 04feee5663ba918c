package report

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxFilenameBase  = 100
	fallbackFilename = "report.pdf"
)

// SanitizeFilename turns a free-form title into a download-safe PDF name. Accents are folded
// (Mantención → Mantencion), anything outside [A-Za-z0-9._-] becomes "_", runs of "_" collapse,
// leading and trailing "_.-" are trimmed and the base is capped at 100 bytes.
func SanitizeFilename(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	folded = strings.TrimSpace(folded)
	if strings.HasSuffix(strings.ToLower(folded), ".pdf") {
		folded = folded[:len(folded)-len(".pdf")]
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range folded {
		safe := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-'
		if !safe {
			if lastUnderscore {
				continue
			}
			b.WriteByte('_')
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}

	base := strings.Trim(b.String(), "_.-")
	if len(base) > maxFilenameBase {
		base = strings.Trim(base[:maxFilenameBase], "_.-")
	}
	if base == "" {
		return fallbackFilename
	}
	return base + ".pdf"
}

// ETag is a strong validator for a rendered document.
func ETag(data []byte) string {
	return fmt.Sprintf(`"%016x"`, xxh3.Hash(data))
}
