// Package report renders the fixed-layout PDFs, builds CSV/XLSX exports and reads spreadsheet
// imports. It also owns the maintenance checklist templates and download filename rules.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/liftcare/liftsuite/internal/model"
)

const (
	pageMargin   = 15.0
	contentWidth = 210.0 - 2*pageMargin
	lineHeight   = 6.0
	labelWidth   = 48.0
)

// Renderer carries the branding shared by every document.
type Renderer struct {
	Company string
	Now     func() time.Time
}

func (r Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

type WorkOrderReport struct {
	WorkOrder      model.WorkOrder
	Elevator       model.Elevator
	Client         model.Client
	TechnicianName string
	Photos         []Image
}

type MaintenanceReport struct {
	Schedule       model.MaintenanceSchedule
	Elevator       model.Elevator
	Client         model.Client
	TechnicianName string
	Signature      []byte
}

type EmergencyReport struct {
	Visit          model.EmergencyVisit
	Elevator       model.Elevator
	Client         model.Client
	TechnicianName string
	Signature      []byte
}

type QuotationReport struct {
	Quotation model.Quotation
	Client    model.Client
	Elevator  model.Elevator
}

// Image is an embedded picture; Data must be PNG or JPEG.
type Image struct {
	Name string
	Mime string
	Data []byte
}

type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	img int
}

func (r Renderer) newDocument(title string) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin+5)
	pdf.SetTitle(title, true)
	pdf.SetCreator(r.Company, true)
	pdf.AliasNbPages("")
	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	generated := r.now().Format("2006-01-02 15:04")
	company := r.Company
	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(contentWidth/2, 5, d.tr(company), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(contentWidth/2, 5, d.tr("Generated "+generated), "", 1, "R", false, 0, "")
		pdf.SetDrawColor(200, 200, 200)
		y := pdf.GetY() + 1
		pdf.Line(pageMargin, y, pageMargin+contentWidth, y)
		pdf.Ln(4)
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentWidth, 9, d.tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	return d
}

func (d *document) section(title string) {
	d.pdf.Ln(3)
	d.pdf.SetFont("Helvetica", "B", 11)
	d.pdf.SetFillColor(235, 240, 245)
	d.pdf.CellFormat(contentWidth, 7, d.tr(title), "", 1, "L", true, 0, "")
	d.pdf.Ln(1)
}

func (d *document) field(label, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	d.pdf.SetFont("Helvetica", "B", 9)
	d.pdf.CellFormat(labelWidth, lineHeight, d.tr(label), "", 0, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "", 9)
	d.pdf.MultiCell(contentWidth-labelWidth, lineHeight, d.tr(value), "", "L", false)
}

func (d *document) paragraph(text string) {
	if strings.TrimSpace(text) == "" {
		text = "-"
	}
	d.pdf.SetFont("Helvetica", "", 9)
	d.pdf.MultiCell(contentWidth, 5, d.tr(text), "", "L", false)
}

func (d *document) image(img Image, width float64) {
	imageType := ""
	switch img.Mime {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg":
		imageType = "JPG"
	default:
		return
	}
	d.img++
	name := fmt.Sprintf("img%d", d.img)
	opts := fpdf.ImageOptions{ImageType: imageType, ReadDpi: false}
	info := d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
	if info == nil || d.pdf.Err() {
		d.pdf.ClearError()
		return
	}
	height := width * info.Height() / info.Width()
	if d.pdf.GetY()+height > 297-pageMargin-10 {
		d.pdf.AddPage()
	}
	d.pdf.ImageOptions(name, d.pdf.GetX(), d.pdf.GetY(), width, height, true, opts, 0, "")
	if img.Name != "" {
		d.pdf.SetFont("Helvetica", "I", 8)
		d.pdf.CellFormat(width, 4, d.tr(img.Name), "", 1, "L", false, 0, "")
	}
	d.pdf.Ln(2)
}

func (d *document) signature(data []byte, signedBy string) {
	d.section("Signature")
	if len(data) == 0 {
		d.paragraph("Not signed")
		return
	}
	d.image(Image{Mime: "image/png", Data: data}, 60)
	if signedBy != "" {
		d.field("Signed by", signedBy)
	}
}

func (d *document) bytes() ([]byte, error) {
	if d.pdf.Err() {
		return nil, d.pdf.Error()
	}
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, errors.New("generated pdf is empty")
	}
	return buf.Bytes(), nil
}

func (d *document) elevatorBlock(e model.Elevator, c model.Client) {
	d.section("Elevator")
	d.field("Code", e.Code)
	d.field("Building", e.BuildingName)
	d.field("Address", e.Address)
	d.field("Brand / model", strings.TrimSpace(e.Brand+" "+e.Model))
	d.field("Serial number", e.SerialNumber)
	d.field("Client", c.Name)
	d.field("Contact", strings.TrimSpace(c.ContactName+" "+c.Phone))
}

func money(cents int64) string {
	return "$ " + model.FormatCents(cents)
}

func formatTime(ts model.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Time().Format("2006-01-02 15:04 UTC")
}

func humanize(value string) string {
	value = strings.ReplaceAll(value, "_", " ")
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func (r Renderer) WorkOrderPDF(in WorkOrderReport) ([]byte, error) {
	wo := in.WorkOrder
	d := r.newDocument("Work order " + wo.Folio)
	d.section("Summary")
	d.field("Folio", wo.Folio)
	d.field("Title", wo.Title)
	d.field("Status", humanize(wo.Status))
	d.field("Priority", humanize(wo.Priority))
	d.field("Technician", in.TechnicianName)
	d.field("Scheduled", wo.ScheduledDate)
	d.field("Completed", formatTime(wo.CompletedAt))
	d.elevatorBlock(in.Elevator, in.Client)

	d.section("Description")
	d.paragraph(wo.Description)

	d.section("Costs")
	d.field("Estimated", money(wo.EstimatedCostCents))
	d.field("Actual", money(wo.ActualCostCents))
	if wo.EstimatedCostCents > 0 && wo.Status == model.WorkOrderCompleted {
		variance := float64(wo.ActualCostCents-wo.EstimatedCostCents) / float64(wo.EstimatedCostCents) * 100
		d.field("Variance", fmt.Sprintf("%.2f %%", variance))
	}

	if len(in.Photos) > 0 {
		d.section("Photo evidence")
		for _, photo := range in.Photos {
			d.image(photo, 80)
		}
	}
	return d.bytes()
}

func (r Renderer) MaintenancePDF(in MaintenanceReport) ([]byte, error) {
	m := in.Schedule
	d := r.newDocument("Maintenance checklist " + in.Elevator.Code)
	d.section("Visit")
	d.field("Scheduled", m.ScheduledDate)
	d.field("Frequency", humanize(m.Frequency))
	d.field("Status", humanize(m.Status))
	d.field("Technician", in.TechnicianName)
	d.field("Completed", formatTime(m.CompletedAt))
	d.elevatorBlock(in.Elevator, in.Client)

	d.section(fmt.Sprintf("Checklist (%d/%d)", m.Checklist.CompletedCount(), len(m.Checklist)))
	currentSection := ""
	for _, item := range m.Checklist {
		if item.Section != currentSection {
			currentSection = item.Section
			d.pdf.SetFont("Helvetica", "B", 9)
			d.pdf.CellFormat(contentWidth, lineHeight, d.tr(currentSection), "", 1, "L", false, 0, "")
		}
		d.checkRow(item)
	}

	d.section("Notes")
	d.paragraph(m.Notes)
	d.signature(in.Signature, m.SignedBy)
	return d.bytes()
}

// checkRow draws a box, a tick when checked and the label with optional notes.
func (d *document) checkRow(item model.ChecklistItem) {
	x, y := d.pdf.GetX(), d.pdf.GetY()
	d.pdf.SetDrawColor(60, 60, 60)
	d.pdf.Rect(x+2, y+1.5, 3.5, 3.5, "D")
	if item.Checked {
		d.pdf.SetLineWidth(0.5)
		d.pdf.Line(x+2.6, y+3.3, x+3.6, y+4.5)
		d.pdf.Line(x+3.6, y+4.5, x+5.2, y+2)
		d.pdf.SetLineWidth(0.2)
	}
	d.pdf.SetX(x + 8)
	d.pdf.SetFont("Helvetica", "", 9)
	text := item.Label
	if item.Notes != "" {
		text += " (" + item.Notes + ")"
	}
	d.pdf.MultiCell(contentWidth-8, lineHeight, d.tr(text), "", "L", false)
}

func (r Renderer) EmergencyPDF(in EmergencyReport) ([]byte, error) {
	v := in.Visit
	d := r.newDocument("Emergency visit " + in.Elevator.Code)
	d.section("Call")
	d.field("Status", humanize(v.Status))
	d.field("Failure type", v.FailureType)
	trapped := "No"
	if v.PassengersTrapped {
		trapped = "Yes"
	}
	d.field("Passengers trapped", trapped)
	d.field("Technician", in.TechnicianName)
	d.field("Reported", formatTime(v.ReportedAt))
	d.field("Arrived", formatTime(v.ArrivedAt))
	d.field("Resolved", formatTime(v.ResolvedAt))
	if !v.ArrivedAt.IsZero() && v.ArrivedAt >= v.ReportedAt {
		d.field("Response time", fmt.Sprintf("%d min", (v.ArrivedAt-v.ReportedAt)/60))
	}
	d.elevatorBlock(in.Elevator, in.Client)

	d.section("Description")
	d.paragraph(v.Description)
	d.section("Resolution")
	d.paragraph(v.Resolution)
	d.signature(in.Signature, "")
	return d.bytes()
}

func (r Renderer) QuotationPDF(in QuotationReport) ([]byte, error) {
	q := in.Quotation
	d := r.newDocument("Quotation " + q.Number)
	d.section("Details")
	d.field("Number", q.Number)
	d.field("Title", q.Title)
	d.field("Client", in.Client.Name)
	d.field("Tax ID", in.Client.TaxID)
	d.field("Elevator", in.Elevator.Code)
	d.field("Status", humanize(q.Status))
	d.field("Valid until", q.ValidUntil)

	d.section("Items")
	widths := []float64{92, 22, 33, 33}
	headers := []string{"Description", "Qty", "Unit price", "Total"}
	d.pdf.SetFont("Helvetica", "B", 9)
	d.pdf.SetFillColor(245, 245, 245)
	for i, h := range headers {
		align := "R"
		if i == 0 {
			align = "L"
		}
		d.pdf.CellFormat(widths[i], 7, h, "1", 0, align, true, 0, "")
	}
	d.pdf.Ln(-1)
	d.pdf.SetFont("Helvetica", "", 9)
	for _, item := range q.Items {
		d.pdf.CellFormat(widths[0], 6, d.tr(truncate(item.Description, 60)), "1", 0, "L", false, 0, "")
		d.pdf.CellFormat(widths[1], 6, trimFloat(item.Quantity), "1", 0, "R", false, 0, "")
		d.pdf.CellFormat(widths[2], 6, money(item.UnitPriceCents), "1", 0, "R", false, 0, "")
		d.pdf.CellFormat(widths[3], 6, money(item.TotalCents), "1", 1, "R", false, 0, "")
	}

	totalsX := pageMargin + widths[0] + widths[1]
	totals := []struct {
		label string
		value int64
	}{
		{"Subtotal", q.SubtotalCents},
		{fmt.Sprintf("Tax (%s%%)", trimFloat(float64(q.TaxRateBP)/100)), q.TaxCents},
		{"Total", q.TotalCents},
	}
	for i, t := range totals {
		style := ""
		if i == len(totals)-1 {
			style = "B"
		}
		d.pdf.SetFont("Helvetica", style, 9)
		d.pdf.SetX(totalsX)
		d.pdf.CellFormat(widths[2], 6, t.label, "1", 0, "R", false, 0, "")
		d.pdf.CellFormat(widths[3], 6, money(t.value), "1", 1, "R", false, 0, "")
	}
	return d.bytes()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
