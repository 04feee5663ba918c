package apiapp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/report"
	"github.com/liftcare/liftsuite/internal/store"
)

const (
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportTable builds the export table for resource under f. It is shared with the CLI.
func ExportTable(ctx context.Context, st *store.Store, resource string, f store.ListFilter) (report.Table, error) {
	names, err := exportNames(ctx, st)
	if err != nil {
		return report.Table{}, err
	}
	switch resource {
	case "work-orders":
		items, err := st.AllWorkOrders(ctx, f)
		return report.WorkOrdersTable(items, names), err
	case "maintenance":
		items, err := st.AllMaintenance(ctx, f)
		return report.MaintenanceTable(items, names), err
	case "emergencies":
		items, err := st.AllEmergencies(ctx, f)
		return report.EmergenciesTable(items, names), err
	case "quotations":
		items, err := st.AllQuotations(ctx, f)
		return report.QuotationsTable(items, names), err
	}
	return report.Table{}, fmt.Errorf("unknown export %q", resource)
}

// ExportResources lists the resources ExportTable accepts.
var ExportResources = []string{"work-orders", "maintenance", "emergencies", "quotations"}

func exportNames(ctx context.Context, st *store.Store) (report.Names, error) {
	names := report.Names{
		Elevators: map[string]string{},
		Clients:   map[string]string{},
		Users:     map[string]string{},
	}
	elevators, err := st.AllElevators(ctx, store.ListFilter{})
	if err != nil {
		return names, err
	}
	for _, e := range elevators {
		names.Elevators[e.ID] = e.Code
	}
	clients, err := st.AllClients(ctx)
	if err != nil {
		return names, err
	}
	for _, c := range clients {
		names.Clients[c.ID] = c.Name
	}
	users, err := st.ListUsers(ctx, "", "")
	if err != nil {
		return names, err
	}
	for _, u := range users {
		names.Users[u.ID] = u.FullName
	}
	return names, nil
}

// export streams a CSV or XLSX of the caller's visible rows.
func (s *server) export(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	vars := mux.Vars(r)
	resource, format := vars["resource"], vars["format"]
	if !model.Contains(ExportResources, resource) {
		writeError(w, http.StatusNotFound, "unknown export")
		return
	}
	if resource == "quotations" && user.Role == model.RoleTechnician {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	f := scoped(user, listFilter(r))
	if resource == "emergencies" && user.Role == model.RoleTechnician {
		f.IncludeUnassigned = true
	}
	table, err := ExportTable(r.Context(), s.store, resource, f)
	if err != nil {
		s.storeError(w, r, err, "export")
		return
	}

	var buf bytes.Buffer
	contentType := csvContentType
	if format == "xlsx" {
		contentType = xlsxContentType
		err = report.WriteXLSX(&buf, table)
	} else {
		err = report.WriteCSV(&buf, table)
	}
	if err != nil {
		s.logger.Error("write export", zap.String("resource", resource), zap.String("format", format), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to build export")
		return
	}
	fileName := fmt.Sprintf("%s_%s.%s", resource, s.today(), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
