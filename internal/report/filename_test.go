package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Orden de trabajo OT-2025-0001", "Orden_de_trabajo_OT-2025-0001.pdf"},
		{"Mantención Ascensor Ñuñoa.pdf", "Mantencion_Ascensor_Nunoa.pdf"},
		{"Report.PDF", "Report.pdf"},
		{"  __weird///name??  ", "weird_name.pdf"},
		{"...", "report.pdf"},
		{"", "report.pdf"},
		{"émergence: Torre #3 (piso 12)", "emergence_Torre_3_piso_12.pdf"},
		{"a___b", "a_b.pdf"},
		{"-lead.and.trail-", "lead.and.trail.pdf"},
		{"日本語", "report.pdf"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), tc.in)
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("x", 300))
	assert.Equal(t, strings.Repeat("x", 100)+".pdf", got)

	got = SanitizeFilename(strings.Repeat("a", 99) + " b")
	assert.Equal(t, strings.Repeat("a", 99)+".pdf", got)
}

func TestETagIsStable(t *testing.T) {
	a := ETag([]byte("hello"))
	assert.Equal(t, a, ETag([]byte("hello")))
	assert.NotEqual(t, a, ETag([]byte("hello!")))
	assert.True(t, strings.HasPrefix(a, `"`))
	assert.Len(t, a, 18)
}
