package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/liftcare/liftsuite/internal/model"
)

// Table is a rectangular export ready to be written as CSV or XLSX.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

// Names resolves ids to display labels in exports.
type Names struct {
	Elevators map[string]string
	Clients   map[string]string
	Users     map[string]string
}

func lookup(m map[string]string, id string) string {
	if v, ok := m[id]; ok {
		return v
	}
	return id
}

func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Export"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if len(t.Headers) > 0 {
		last, err := excelize.CoordinatesToCellName(len(t.Headers), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return err
		}
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func WorkOrdersTable(items []model.WorkOrder, n Names) Table {
	t := Table{Sheet: "Work orders", Headers: []string{
		"Folio", "Title", "Elevator", "Client", "Technician", "Priority", "Status", "Scheduled",
		"Estimated", "Actual", "Completed", "Created",
	}}
	for _, wo := range items {
		t.Rows = append(t.Rows, []string{
			wo.Folio, wo.Title, lookup(n.Elevators, wo.ElevatorID), lookup(n.Clients, wo.ClientID),
			lookup(n.Users, wo.TechnicianID), wo.Priority, wo.Status, wo.ScheduledDate,
			model.FormatCents(wo.EstimatedCostCents), model.FormatCents(wo.ActualCostCents),
			exportTime(wo.CompletedAt), exportTime(wo.CreatedAt),
		})
	}
	return t
}

func MaintenanceTable(items []model.MaintenanceSchedule, n Names) Table {
	t := Table{Sheet: "Maintenance", Headers: []string{
		"Elevator", "Technician", "Scheduled", "Frequency", "Status", "Checklist", "Signed by", "Completed",
	}}
	for _, m := range items {
		t.Rows = append(t.Rows, []string{
			lookup(n.Elevators, m.ElevatorID), lookup(n.Users, m.TechnicianID), m.ScheduledDate, m.Frequency,
			m.Status, fmt.Sprintf("%d/%d", m.Checklist.CompletedCount(), len(m.Checklist)), m.SignedBy,
			exportTime(m.CompletedAt),
		})
	}
	return t
}

func EmergenciesTable(items []model.EmergencyVisit, n Names) Table {
	t := Table{Sheet: "Emergencies", Headers: []string{
		"Elevator", "Client", "Technician", "Failure type", "Passengers trapped", "Status", "Reported",
		"Arrived", "Resolved",
	}}
	for _, e := range items {
		t.Rows = append(t.Rows, []string{
			lookup(n.Elevators, e.ElevatorID), lookup(n.Clients, e.ClientID), lookup(n.Users, e.TechnicianID),
			e.FailureType, strconv.FormatBool(e.PassengersTrapped), e.Status, exportTime(e.ReportedAt),
			exportTime(e.ArrivedAt), exportTime(e.ResolvedAt),
		})
	}
	return t
}

func QuotationsTable(items []model.Quotation, n Names) Table {
	t := Table{Sheet: "Quotations", Headers: []string{
		"Number", "Title", "Client", "Elevator", "Status", "Subtotal", "Tax", "Total", "Valid until", "Created",
	}}
	for _, q := range items {
		t.Rows = append(t.Rows, []string{
			q.Number, q.Title, lookup(n.Clients, q.ClientID), lookup(n.Elevators, q.ElevatorID), q.Status,
			model.FormatCents(q.SubtotalCents), model.FormatCents(q.TaxCents), model.FormatCents(q.TotalCents),
			q.ValidUntil, exportTime(q.CreatedAt),
		})
	}
	return t
}

func exportTime(ts model.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Time().Format("2006-01-02 15:04")
}
