package apiapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/store"
)

// ImportResult summarises a spreadsheet import. Row numbers in Errors are 1-based and count the
// header row, matching what the user sees in the spreadsheet.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

func (r *ImportResult) fail(row int, err error) {
	r.Skipped++
	r.Errors = append(r.Errors, fmt.Sprintf("row %d: %v", row, err))
}

// ImportClients upserts clients by name.
func ImportClients(ctx context.Context, st *store.Store, records []map[string]string) (ImportResult, error) {
	res := ImportResult{Errors: []string{}}
	for i, rec := range records {
		row := i + 2
		name := first(rec, "name", "client", "client_name")
		if name == "" {
			res.fail(row, errors.New("name is required"))
			continue
		}
		existing, err := st.GetClientByName(ctx, name)
		switch {
		case err == nil:
			mergeClient(&existing, rec)
			if err := st.UpdateClient(ctx, &existing); err != nil {
				return res, err
			}
			res.Updated++
		case errors.Is(err, store.ErrNotFound):
			c := model.Client{Name: name}
			mergeClient(&c, rec)
			if err := st.CreateClient(ctx, &c); err != nil {
				if errors.Is(err, store.ErrConflict) {
					res.fail(row, errors.New("duplicate client"))
					continue
				}
				return res, err
			}
			res.Created++
		default:
			return res, err
		}
	}
	return res, nil
}

func mergeClient(c *model.Client, rec map[string]string) {
	set(&c.TaxID, first(rec, "tax_id", "rut", "rfc"))
	set(&c.ContactName, first(rec, "contact_name", "contact"))
	set(&c.Email, first(rec, "email"))
	set(&c.Phone, first(rec, "phone"))
	set(&c.Address, first(rec, "address"))
}

// ImportElevators upserts elevators by code. The owning client is matched by client_id or by name.
func ImportElevators(ctx context.Context, st *store.Store, records []map[string]string) (ImportResult, error) {
	res := ImportResult{Errors: []string{}}
	for i, rec := range records {
		row := i + 2
		code := first(rec, "code", "elevator_code")
		if code == "" {
			res.fail(row, errors.New("code is required"))
			continue
		}
		clientID, err := resolveClient(ctx, st, rec)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				res.fail(row, errors.New("unknown client"))
				continue
			}
			return res, err
		}

		existing, err := st.GetElevatorByCode(ctx, code)
		isNew := errors.Is(err, store.ErrNotFound)
		if err != nil && !isNew {
			return res, err
		}
		if isNew {
			existing = model.Elevator{Code: code, ClientID: clientID}
		} else if clientID != "" {
			existing.ClientID = clientID
		}
		if err := mergeElevator(&existing, rec); err != nil {
			res.fail(row, err)
			continue
		}
		if existing.ClientID == "" {
			res.fail(row, errors.New("client is required"))
			continue
		}
		if isNew {
			err = st.CreateElevator(ctx, &existing)
		} else {
			err = st.UpdateElevator(ctx, &existing)
		}
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				res.fail(row, errors.New("duplicate elevator code"))
				continue
			}
			return res, err
		}
		if isNew {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

func resolveClient(ctx context.Context, st *store.Store, rec map[string]string) (string, error) {
	if id := first(rec, "client_id"); id != "" {
		c, err := st.GetClient(ctx, id)
		return c.ID, err
	}
	if name := first(rec, "client", "client_name"); name != "" {
		c, err := st.GetClientByName(ctx, name)
		return c.ID, err
	}
	return "", nil
}

func mergeElevator(e *model.Elevator, rec map[string]string) error {
	set(&e.BuildingName, first(rec, "building_name", "building"))
	set(&e.Address, first(rec, "address"))
	set(&e.Brand, first(rec, "brand"))
	set(&e.Model, first(rec, "model"))
	set(&e.SerialNumber, first(rec, "serial_number", "serial"))
	if v := first(rec, "floors"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return errors.New("floors must be a whole number")
		}
		e.Floors = n
	}
	if v := first(rec, "capacity_kg", "capacity"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return errors.New("capacity_kg must be a whole number")
		}
		e.CapacityKg = n
	}
	if v := first(rec, "installed_on", "installed"); v != "" {
		if _, err := model.ParseDate(v); err != nil {
			return errors.New("installed_on must be YYYY-MM-DD")
		}
		e.InstalledOn = v
	}
	if v := strings.ToLower(first(rec, "status")); v != "" {
		if !model.Contains(model.ElevatorStatuses, v) {
			return fmt.Errorf("unknown status %q", v)
		}
		e.Status = v
	}
	return nil
}

func first(rec map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(rec[k]); v != "" {
			return v
		}
	}
	return ""
}

func set(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
