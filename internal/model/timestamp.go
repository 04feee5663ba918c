package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Timestamp is a unix-seconds instant. Zero means unset and encodes as JSON null.
type Timestamp int64

func Now() Timestamp {
	return Timestamp(time.Now().UTC().Unix())
}

func TimestampOf(t time.Time) Timestamp {
	if t.IsZero() {
		return 0
	}
	return Timestamp(t.UTC().Unix())
}

func (t Timestamp) IsZero() bool {
	return t == 0
}

func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t), 0).UTC()
}

func (t Timestamp) Value() (driver.Value, error) {
	return int64(t), nil
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = 0
	case int64:
		*t = Timestamp(v)
	case int32:
		*t = Timestamp(v)
	case float64:
		*t = Timestamp(int64(v))
	case time.Time:
		*t = TimestampOf(v)
	case []byte:
		return t.Scan(string(v))
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			*t = 0
			return nil
		}
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return fmt.Errorf("scan timestamp %q: %w", v, err)
		}
		*t = Timestamp(n)
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*t = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp must be RFC3339: %w", err)
		}
		*t = TimestampOf(parsed)
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be RFC3339 or unix seconds: %w", err)
	}
	*t = Timestamp(n)
	return nil
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(value))
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
