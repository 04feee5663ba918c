package report

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/liftcare/liftsuite/internal/model"
)

//go:embed checklists.yaml
var checklistYAML []byte

type ChecklistTemplate struct {
	Type  string                `yaml:"type" json:"type"`
	Name  string                `yaml:"name" json:"name"`
	Items []model.ChecklistItem `yaml:"items" json:"items"`
}

type ChecklistTemplates struct {
	Default   string              `yaml:"default"`
	Templates []ChecklistTemplate `yaml:"templates"`
}

// LoadChecklistTemplates parses the embedded templates and checks that keys are unique per template.
func LoadChecklistTemplates() (ChecklistTemplates, error) {
	return ParseChecklistTemplates(checklistYAML)
}

func ParseChecklistTemplates(raw []byte) (ChecklistTemplates, error) {
	var out ChecklistTemplates
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("parse checklist templates: %w", err)
	}
	if len(out.Templates) == 0 {
		return out, fmt.Errorf("no checklist templates defined")
	}
	for _, tpl := range out.Templates {
		seen := map[string]struct{}{}
		for _, item := range tpl.Items {
			if strings.TrimSpace(item.Key) == "" {
				return out, fmt.Errorf("checklist %q has an item without key", tpl.Type)
			}
			if _, dup := seen[item.Key]; dup {
				return out, fmt.Errorf("checklist %q repeats key %q", tpl.Type, item.Key)
			}
			seen[item.Key] = struct{}{}
		}
	}
	if _, ok := out.find(out.Default); !ok {
		return out, fmt.Errorf("default checklist %q is not defined", out.Default)
	}
	return out, nil
}

func (t ChecklistTemplates) find(kind string) (ChecklistTemplate, bool) {
	for _, tpl := range t.Templates {
		if strings.EqualFold(tpl.Type, kind) {
			return tpl, true
		}
	}
	return ChecklistTemplate{}, false
}

// Checklist returns a fresh, unchecked copy of the template for kind, falling back to the default.
func (t ChecklistTemplates) Checklist(kind string) model.Checklist {
	tpl, ok := t.find(kind)
	if !ok {
		tpl, _ = t.find(t.Default)
	}
	out := make(model.Checklist, len(tpl.Items))
	copy(out, tpl.Items)
	return out
}

func (t ChecklistTemplates) Types() []string {
	out := make([]string, 0, len(t.Templates))
	for _, tpl := range t.Templates {
		out = append(out, tpl.Type)
	}
	sort.Strings(out)
	return out
}

// MergeChecklist applies submitted results onto the stored items by key. Unknown keys are ignored
// so a client cannot grow the checklist.
func MergeChecklist(stored, submitted model.Checklist) model.Checklist {
	byKey := make(map[string]model.ChecklistItem, len(submitted))
	for _, item := range submitted {
		byKey[item.Key] = item
	}
	out := make(model.Checklist, len(stored))
	for i, item := range stored {
		if got, ok := byKey[item.Key]; ok {
			item.Checked = got.Checked
			item.Notes = strings.TrimSpace(got.Notes)
		}
		out[i] = item
	}
	return out
}
