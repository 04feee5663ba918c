package store

import (
	"context"
	"strings"

	"github.com/liftcare/liftsuite/internal/model"
)

const (
	DefaultPerPage = 25
	MaxPerPage     = 200
)

// ListFilter narrows list queries. Empty fields are ignored. ClientID and TechnicianID double as
// role scopes: the API fills them from the signed-in user.
type ListFilter struct {
	Status       string
	ClientID     string
	ElevatorID   string
	TechnicianID string
	// IncludeUnassigned widens a TechnicianID filter to rows with no technician.
	IncludeUnassigned bool
	Query             string
	From              string
	To                string
	Page              int
	PerPage           int
}

func (f ListFilter) normalized() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"perPage"`
}

func (p Page[T]) TotalPages() int {
	if p.PerPage <= 0 {
		return 0
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// resource describes how a table is listed.
type resource struct {
	table   string
	columns string
	// statusCol receives ListFilter.Status; tables without one ignore it.
	statusCol string
	// clientClause applies ClientID; tables without a client_id reach it through elevators.
	clientClause string
	hasElevator  bool
	hasTech      bool
	searchCols   []string
	dateCol      string
	// dateIsUnix marks dateCol as unix seconds; From/To are then whole UTC days.
	dateIsUnix bool
	order      string
}

type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (r resource) where(f ListFilter) whereBuilder {
	var w whereBuilder
	if f.Status != "" && r.statusCol != "" {
		w.add(r.statusCol+" = ?", f.Status)
	}
	if f.ClientID != "" && r.clientClause != "" {
		w.add(r.clientClause, f.ClientID)
	}
	if f.ElevatorID != "" && r.hasElevator {
		w.add("elevator_id = ?", f.ElevatorID)
	}
	if f.TechnicianID != "" && r.hasTech {
		if f.IncludeUnassigned {
			w.add("(technician_id = ? OR technician_id = '')", f.TechnicianID)
		} else {
			w.add("technician_id = ?", f.TechnicianID)
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" && len(r.searchCols) > 0 {
		parts := make([]string, 0, len(r.searchCols))
		like := "%" + q + "%"
		args := make([]any, 0, len(r.searchCols))
		for _, col := range r.searchCols {
			parts = append(parts, "LOWER("+col+") LIKE ?")
			args = append(args, like)
		}
		w.add("("+strings.Join(parts, " OR ")+")", args...)
	}
	if r.dateCol != "" {
		if f.From != "" {
			if r.dateIsUnix {
				if from, err := model.ParseDate(f.From); err == nil {
					w.add(r.dateCol+" >= ?", from.Unix())
				}
			} else {
				w.add(r.dateCol+" >= ?", f.From)
			}
		}
		if f.To != "" {
			if r.dateIsUnix {
				if to, err := model.ParseDate(f.To); err == nil {
					w.add(r.dateCol+" < ?", to.AddDate(0, 0, 1).Unix())
				}
			} else {
				w.add(r.dateCol+" <= ?", f.To)
			}
		}
	}
	return w
}

func listPage[T any](ctx context.Context, s *Store, r resource, f ListFilter) (Page[T], error) {
	f = f.normalized()
	w := r.where(f)
	out := Page[T]{Items: []T{}, Page: f.Page, PerPage: f.PerPage}

	if err := s.get(ctx, &out.Total, "SELECT COUNT(*) FROM "+r.table+w.sql(), w.args...); err != nil {
		return out, err
	}
	query := "SELECT " + r.columns + " FROM " + r.table + w.sql() + " ORDER BY " + r.order + " LIMIT ? OFFSET ?"
	args := append(append([]any{}, w.args...), f.PerPage, (f.Page-1)*f.PerPage)
	if err := s.selectAll(ctx, &out.Items, query, args...); err != nil {
		return out, err
	}
	return out, nil
}

// listAll returns every row matching f without paging; used by exports and analytics.
func listAll[T any](ctx context.Context, s *Store, r resource, f ListFilter) ([]T, error) {
	w := r.where(f)
	out := []T{}
	query := "SELECT " + r.columns + " FROM " + r.table + w.sql() + " ORDER BY " + r.order
	if err := s.selectAll(ctx, &out, query, w.args...); err != nil {
		return nil, err
	}
	return out, nil
}
