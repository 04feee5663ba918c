package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type ChecklistItem struct {
	Key     string `json:"key" yaml:"key"`
	Section string `json:"section" yaml:"section"`
	Label   string `json:"label" yaml:"label"`
	Checked bool   `json:"checked" yaml:"-"`
	Notes   string `json:"notes,omitempty" yaml:"-"`
}

// Checklist is stored as a JSON text column.
type Checklist []ChecklistItem

func (c Checklist) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (c *Checklist) Scan(src any) error {
	return scanJSONColumn(src, c)
}

func (c Checklist) CompletedCount() int {
	n := 0
	for _, item := range c {
		if item.Checked {
			n++
		}
	}
	return n
}

type QuotationItem struct {
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unitPriceCents"`
	TotalCents     int64   `json:"totalCents"`
}

// QuotationItems is stored as a JSON text column.
type QuotationItems []QuotationItem

func (q QuotationItems) Value() (driver.Value, error) {
	if q == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (q *QuotationItems) Scan(src any) error {
	return scanJSONColumn(src, q)
}

func scanJSONColumn(src any, dest any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan json column: unsupported type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
