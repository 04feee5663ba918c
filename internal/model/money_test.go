package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	cases := map[string]int64{
		"":          0,
		"1250":      125000,
		"1250.5":    125050,
		"$1,250.50": 125050,
		" 0.015 ":   2,
	}
	for input, want := range cases {
		got, err := ParseCents(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseCents("abc")
	assert.EqualError(t, err, "amount must be a valid number")
	_, err = ParseCents("-3")
	assert.EqualError(t, err, "amount cannot be negative")
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "12.34", FormatCents(1234))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-1.50", FormatCents(-150))
}

func TestTimestampJSON(t *testing.T) {
	var zero Timestamp
	raw, err := json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	ts := Timestamp(1700000000)
	raw, err = json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2023-11-14T22:13:20Z"`, string(raw))

	var back Timestamp
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ts, back)

	require.NoError(t, json.Unmarshal([]byte("1700000001"), &back))
	assert.Equal(t, Timestamp(1700000001), back)
}

func TestChecklistColumn(t *testing.T) {
	var c Checklist
	require.NoError(t, c.Scan(`[{"key":"brakes","section":"Machine","label":"Brakes","checked":true}]`))
	require.Len(t, c, 1)
	assert.Equal(t, 1, c.CompletedCount())

	value, err := Checklist(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}
