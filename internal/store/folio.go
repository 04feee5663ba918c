package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// FormatFolio renders sequential document numbers such as OT-2025-0042.
func FormatFolio(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

// nextFolio reads the highest folio issued this year inside tx and returns the following one.
func nextFolio(ctx context.Context, tx *sqlx.Tx, table, column, prefix string, year int) (string, error) {
	yearPrefix := fmt.Sprintf("%s-%d-", prefix, year)
	var last string
	err := tx.GetContext(ctx, &last, tx.Rebind(
		`SELECT COALESCE(MAX(`+column+`), '') FROM `+table+` WHERE `+column+` LIKE ?`,
	), yearPrefix+"%")
	if err != nil {
		return "", err
	}
	seq := 0
	if last != "" {
		seq, err = strconv.Atoi(strings.TrimPrefix(last, yearPrefix))
		if err != nil {
			return "", fmt.Errorf("parse folio %q: %w", last, err)
		}
	}
	return FormatFolio(prefix, year, seq+1), nil
}
