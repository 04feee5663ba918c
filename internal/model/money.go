package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCents turns a user supplied amount such as "1250", "1250.5" or "1,250.50" into cents.
func ParseCents(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(trimmed, "$")
	trimmed = strings.ReplaceAll(trimmed, ",", "")
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, errors.New("amount must be a valid number")
	}
	if parsed < 0 {
		return 0, errors.New("amount cannot be negative")
	}
	return int64(math.Round(parsed * 100)), nil
}

func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
