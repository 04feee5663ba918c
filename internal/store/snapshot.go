package store

import (
	"context"
	"fmt"
)

// Snapshot dumps every table except sessions as generic rows keyed by column name.
func (s *Store) Snapshot(ctx context.Context) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any, len(Tables))
	for _, table := range Tables {
		if table == "sessions" {
			continue
		}
		rows, err := s.db.QueryxContext(ctx, "SELECT * FROM "+table)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", table, err)
		}
		items := []map[string]any{}
		for rows.Next() {
			row := map[string]any{}
			if err := rows.MapScan(row); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("snapshot %s: %w", table, err)
			}
			for k, v := range row {
				if b, ok := v.([]byte); ok {
					row[k] = string(b)
				}
			}
			items = append(items, row)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("snapshot %s: %w", table, err)
		}
		_ = rows.Close()
		out[table] = items
	}
	return out, nil
}
