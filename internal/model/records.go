// Package model holds the persisted records of the maintenance suite and the small amount of
// behaviour that belongs to them (status rules, totals, column codecs).
package model

import (
	"math"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"fullName"`
	Role         Role      `db:"role" json:"role"`
	ClientID     string    `db:"client_id" json:"clientId,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    Timestamp `db:"created_at" json:"createdAt"`
}

type Session struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	CSRFToken  string    `db:"csrf_token"`
	ExpiresAt  Timestamp `db:"expires_at"`
	CreatedAt  Timestamp `db:"created_at"`
	LastSeenAt Timestamp `db:"last_seen_at"`
}

type Client struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	TaxID       string    `db:"tax_id" json:"taxId"`
	ContactName string    `db:"contact_name" json:"contactName"`
	Email       string    `db:"email" json:"email"`
	Phone       string    `db:"phone" json:"phone"`
	Address     string    `db:"address" json:"address"`
	CreatedAt   Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt   Timestamp `db:"updated_at" json:"updatedAt"`
}

type Elevator struct {
	ID           string    `db:"id" json:"id"`
	ClientID     string    `db:"client_id" json:"clientId"`
	Code         string    `db:"code" json:"code"`
	BuildingName string    `db:"building_name" json:"buildingName"`
	Address      string    `db:"address" json:"address"`
	Brand        string    `db:"brand" json:"brand"`
	Model        string    `db:"model" json:"model"`
	SerialNumber string    `db:"serial_number" json:"serialNumber"`
	Floors       int64     `db:"floors" json:"floors"`
	CapacityKg   int64     `db:"capacity_kg" json:"capacityKg"`
	InstalledOn  string    `db:"installed_on" json:"installedOn"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt    Timestamp `db:"updated_at" json:"updatedAt"`
}

type MaintenanceSchedule struct {
	ID            string    `db:"id" json:"id"`
	ElevatorID    string    `db:"elevator_id" json:"elevatorId"`
	TechnicianID  string    `db:"technician_id" json:"technicianId"`
	ScheduledDate string    `db:"scheduled_date" json:"scheduledDate"`
	Frequency     string    `db:"frequency" json:"frequency"`
	Status        string    `db:"status" json:"status"`
	Checklist     Checklist `db:"checklist" json:"checklist"`
	Notes         string    `db:"notes" json:"notes"`
	SignatureKey  string    `db:"signature_key" json:"-"`
	SignedBy      string    `db:"signed_by" json:"signedBy"`
	CompletedAt   Timestamp `db:"completed_at" json:"completedAt"`
	NotifiedAt    Timestamp `db:"notified_at" json:"-"`
	CreatedAt     Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt     Timestamp `db:"updated_at" json:"updatedAt"`
}

func (m MaintenanceSchedule) HasSignature() bool {
	return m.SignatureKey != ""
}

type WorkOrder struct {
	ID                 string    `db:"id" json:"id"`
	Folio              string    `db:"folio" json:"folio"`
	ElevatorID         string    `db:"elevator_id" json:"elevatorId"`
	ClientID           string    `db:"client_id" json:"clientId"`
	TechnicianID       string    `db:"technician_id" json:"technicianId"`
	Title              string    `db:"title" json:"title"`
	Description        string    `db:"description" json:"description"`
	Priority           string    `db:"priority" json:"priority"`
	Status             string    `db:"status" json:"status"`
	EstimatedCostCents int64     `db:"estimated_cost_cents" json:"estimatedCostCents"`
	ActualCostCents    int64     `db:"actual_cost_cents" json:"actualCostCents"`
	ScheduledDate      string    `db:"scheduled_date" json:"scheduledDate"`
	CompletedAt        Timestamp `db:"completed_at" json:"completedAt"`
	NotifiedAt         Timestamp `db:"notified_at" json:"-"`
	CreatedAt          Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt          Timestamp `db:"updated_at" json:"updatedAt"`
}

type EmergencyVisit struct {
	ID                string    `db:"id" json:"id"`
	ElevatorID        string    `db:"elevator_id" json:"elevatorId"`
	ClientID          string    `db:"client_id" json:"clientId"`
	TechnicianID      string    `db:"technician_id" json:"technicianId"`
	FailureType       string    `db:"failure_type" json:"failureType"`
	Description       string    `db:"description" json:"description"`
	Resolution        string    `db:"resolution" json:"resolution"`
	PassengersTrapped bool      `db:"passengers_trapped" json:"passengersTrapped"`
	Status            string    `db:"status" json:"status"`
	ReportedAt        Timestamp `db:"reported_at" json:"reportedAt"`
	ArrivedAt         Timestamp `db:"arrived_at" json:"arrivedAt"`
	ResolvedAt        Timestamp `db:"resolved_at" json:"resolvedAt"`
	SignatureKey      string    `db:"signature_key" json:"-"`
	CreatedAt         Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt         Timestamp `db:"updated_at" json:"updatedAt"`
}

type Quotation struct {
	ID            string         `db:"id" json:"id"`
	Number        string         `db:"number" json:"number"`
	ClientID      string         `db:"client_id" json:"clientId"`
	ElevatorID    string         `db:"elevator_id" json:"elevatorId"`
	Title         string         `db:"title" json:"title"`
	Items         QuotationItems `db:"items" json:"items"`
	TaxRateBP     int64          `db:"tax_rate_bp" json:"taxRateBp"`
	SubtotalCents int64          `db:"subtotal_cents" json:"subtotalCents"`
	TaxCents      int64          `db:"tax_cents" json:"taxCents"`
	TotalCents    int64          `db:"total_cents" json:"totalCents"`
	Status        string         `db:"status" json:"status"`
	ValidUntil    string         `db:"valid_until" json:"validUntil"`
	DecidedAt     Timestamp      `db:"decided_at" json:"decidedAt"`
	CreatedAt     Timestamp      `db:"created_at" json:"createdAt"`
	UpdatedAt     Timestamp      `db:"updated_at" json:"updatedAt"`
}

// Recalculate derives line totals, subtotal, tax and total from the items and tax rate.
func (q *Quotation) Recalculate() {
	var subtotal int64
	for i := range q.Items {
		line := int64(math.Round(q.Items[i].Quantity * float64(q.Items[i].UnitPriceCents)))
		q.Items[i].TotalCents = line
		subtotal += line
	}
	q.SubtotalCents = subtotal
	q.TaxCents = int64(math.Round(float64(subtotal) * float64(q.TaxRateBP) / 10000))
	q.TotalCents = q.SubtotalCents + q.TaxCents
}

type Attachment struct {
	ID        string    `db:"id" json:"id"`
	OwnerType string    `db:"owner_type" json:"ownerType"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	Kind      string    `db:"kind" json:"kind"`
	BlobKey   string    `db:"blob_key" json:"-"`
	FileName  string    `db:"file_name" json:"fileName"`
	Mime      string    `db:"mime" json:"mime"`
	SizeBytes int64     `db:"size_bytes" json:"sizeBytes"`
	CreatedAt Timestamp `db:"created_at" json:"createdAt"`
}

type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Link      string    `db:"link" json:"link"`
	Kind      string    `db:"kind" json:"kind"`
	ReadAt    Timestamp `db:"read_at" json:"readAt"`
	CreatedAt Timestamp `db:"created_at" json:"createdAt"`
}

type TrainingModule struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Content      string    `db:"content" json:"content"`
	PassingScore int64     `db:"passing_score" json:"passingScore"`
	CreatedAt    Timestamp `db:"created_at" json:"createdAt"`
	UpdatedAt    Timestamp `db:"updated_at" json:"updatedAt"`
}

type TrainingAttempt struct {
	ID          string    `db:"id" json:"id"`
	ModuleID    string    `db:"module_id" json:"moduleId"`
	UserID      string    `db:"user_id" json:"userId"`
	Score       int64     `db:"score" json:"score"`
	Passed      bool      `db:"passed" json:"passed"`
	CompletedAt Timestamp `db:"completed_at" json:"completedAt"`
}

type LegalDocument struct {
	ID         string    `db:"id" json:"id"`
	ClientID   string    `db:"client_id" json:"clientId"`
	ElevatorID string    `db:"elevator_id" json:"elevatorId"`
	Title      string    `db:"title" json:"title"`
	Category   string    `db:"category" json:"category"`
	BlobKey    string    `db:"blob_key" json:"-"`
	FileName   string    `db:"file_name" json:"fileName"`
	Mime       string    `db:"mime" json:"mime"`
	SizeBytes  int64     `db:"size_bytes" json:"sizeBytes"`
	IssuedOn   string    `db:"issued_on" json:"issuedOn"`
	ExpiresOn  string    `db:"expires_on" json:"expiresOn"`
	NotifiedAt Timestamp `db:"notified_at" json:"-"`
	CreatedAt  Timestamp `db:"created_at" json:"createdAt"`
}

type QRCode struct {
	ID         string    `db:"id" json:"id"`
	ElevatorID string    `db:"elevator_id" json:"elevatorId"`
	CreatedAt  Timestamp `db:"created_at" json:"createdAt"`
	RevokedAt  Timestamp `db:"revoked_at" json:"revokedAt"`
}
