package clientapp

import (
	"bytes"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/liftcare/liftsuite/internal/model"
)

type navItem struct {
	Href   string
	Label  string
	Active bool
}

type pageData struct {
	Title   string
	Error   string
	Message string
	CSRF    string
	User    sessionUser
	Unread  int
	Nav     []navItem

	Resource resource
	Lookups  lookups
	List     *listResponse
	Search   string
	Status   string
	HasPrev  bool
	HasNext  bool
	PrevURL  string
	NextURL  string

	Record      map[string]any
	Actions     []action
	Attachments []map[string]any
	CanCreate   bool
	CanDelete   bool
	CanExport   bool

	Dashboard map[string]any
	Items     []map[string]any
	Public    map[string]any
}

var templateFuncs = template.FuncMap{
	"cell":      cellValue,
	"money":     formatMoney,
	"bytes":     formatBytes,
	"when":      formatTime,
	"ago":       formatAgo,
	"label":     statusLabel,
	"str":       str,
	"field":     func(rec map[string]any, key string) any { return rec[key] },
	"checklist": checklistItems,
	"options":   fieldOptions,
	"comma":     func(v any) string { return humanize.Comma(int64(number(v))) },
	"name":      func(names map[string]string, id any) string { return lookupName(names, str(id)) },
	"input": func(f field, lk lookups, rec map[string]any) fieldContext {
		return fieldContext{Field: f, Lookups: lk, Record: rec}
	},
}

// fieldContext is what the "input" template renders one form field from.
type fieldContext struct {
	Field   field
	Lookups lookups
	Record  map[string]any
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}

// cellValue formats rec[col.Key] for display according to col.Kind.
func cellValue(rec map[string]any, col column, lk lookups) string {
	v := rec[col.Key]
	switch col.Kind {
	case "money":
		return formatMoney(v)
	case "bytes":
		return formatBytes(v)
	case "time":
		return formatTime(v)
	case "date":
		if s := str(v); s != "" {
			return s
		}
		return "-"
	case "bool":
		if b, _ := v.(bool); b {
			return "Yes"
		}
		return "No"
	case "status":
		return statusLabel(str(v))
	case "elevator":
		return lookupName(lk.Elevators, str(v))
	case "client":
		return lookupName(lk.Clients, str(v))
	case "user":
		id := str(v)
		if id == "" {
			return "Unassigned"
		}
		return lookupName(lk.Users, id)
	}
	if s := strings.TrimSpace(str(v)); s != "" {
		return s
	}
	return "-"
}

func lookupName(names map[string]string, id string) string {
	if id == "" {
		return "-"
	}
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return 0
}

func formatMoney(v any) string {
	cents := int64(number(v))
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + "$" + humanize.FormatFloat("#,###.##", float64(cents)/100)
}

func formatBytes(v any) string {
	n := number(v)
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

func parseTime(v any) (time.Time, bool) {
	s := str(v)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTime(v any) string {
	t, ok := parseTime(v)
	if !ok {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatAgo(v any) string {
	t, ok := parseTime(v)
	if !ok {
		return ""
	}
	return humanize.Time(t)
}

// statusLabel turns "in_progress" into "In progress".
func statusLabel(status string) string {
	if status == "" {
		return "-"
	}
	label := strings.ReplaceAll(status, "_", " ")
	return strings.ToUpper(label[:1]) + label[1:]
}

type checklistView struct {
	Key     string
	Section string
	Label   string
	Checked bool
	Notes   string
}

func checklistItems(v any) []checklistView {
	raw, _ := v.([]any)
	out := make([]checklistView, 0, len(raw))
	for _, item := range raw {
		m, _ := item.(map[string]any)
		if m == nil {
			continue
		}
		checked, _ := m["checked"].(bool)
		out = append(out, checklistView{
			Key:     str(m["key"]),
			Section: str(m["section"]),
			Label:   str(m["label"]),
			Checked: checked,
			Notes:   str(m["notes"]),
		})
	}
	return out
}

// fieldOptions lists the choices of a select field, static or loaded from lookups.
func fieldOptions(f field, lk lookups) []option {
	switch f.Source {
	case "elevators":
		return sortedOptions(lk.Elevators)
	case "clients":
		return sortedOptions(lk.Clients)
	case "technicians":
		return lk.Technicians
	case "checklists":
		return lk.Checklists
	}
	out := make([]option, 0, len(f.Options))
	for _, o := range f.Options {
		out = append(out, option{Value: o, Label: statusLabel(o)})
	}
	return out
}

func sortedOptions(names map[string]string) []option {
	out := make([]option, 0, len(names))
	for id, name := range names {
		out = append(out, option{Value: id, Label: name})
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label) })
	return out
}

// navFor lists the sections a role can open.
func navFor(role model.Role, current string) []navItem {
	items := []navItem{{Href: "/", Label: "Dashboard", Active: current == ""}}
	for _, res := range resources {
		if roleIn(role, res.Roles) {
			items = append(items, navItem{Href: "/" + res.Key, Label: res.Title, Active: current == res.Key})
		}
	}
	items = append(items, navItem{Href: "/notifications", Label: "Notifications", Active: current == "notifications"})
	return items
}
