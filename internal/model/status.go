package model

import (
	"time"
)

type Role string

const (
	RoleDeveloper  Role = "developer"
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
	RoleClient     Role = "client"
)

var Roles = []Role{RoleDeveloper, RoleAdmin, RoleTechnician, RoleClient}

func (r Role) Valid() bool {
	switch r {
	case RoleDeveloper, RoleAdmin, RoleTechnician, RoleClient:
		return true
	}
	return false
}

// IsStaff reports whether the role sees every record.
func (r Role) IsStaff() bool {
	return r == RoleDeveloper || r == RoleAdmin
}

const (
	ElevatorOperational = "operational"
	ElevatorMaintenance = "maintenance"
	ElevatorStopped     = "stopped"
)

var ElevatorStatuses = []string{ElevatorOperational, ElevatorMaintenance, ElevatorStopped}

const (
	WorkOrderPending    = "pending"
	WorkOrderAssigned   = "assigned"
	WorkOrderInProgress = "in_progress"
	WorkOrderCompleted  = "completed"
	WorkOrderCancelled  = "cancelled"
)

var WorkOrderStatuses = []string{WorkOrderPending, WorkOrderAssigned, WorkOrderInProgress, WorkOrderCompleted, WorkOrderCancelled}

var workOrderTransitions = map[string][]string{
	WorkOrderPending:    {WorkOrderAssigned, WorkOrderCancelled},
	WorkOrderAssigned:   {WorkOrderInProgress, WorkOrderCancelled},
	WorkOrderInProgress: {WorkOrderCompleted, WorkOrderCancelled},
}

// CanTransitionWorkOrder allows staying in an open status. Completed and cancelled are final.
func CanTransitionWorkOrder(from, to string) bool {
	if from == to {
		return WorkOrderOpen(from)
	}
	for _, next := range workOrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func WorkOrderOpen(status string) bool {
	return status != WorkOrderCompleted && status != WorkOrderCancelled
}

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

var Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

const (
	MaintenanceScheduled  = "scheduled"
	MaintenanceInProgress = "in_progress"
	MaintenanceCompleted  = "completed"
	MaintenanceCancelled  = "cancelled"
)

var MaintenanceStatuses = []string{MaintenanceScheduled, MaintenanceInProgress, MaintenanceCompleted, MaintenanceCancelled}

func MaintenanceOpen(status string) bool {
	return status == MaintenanceScheduled || status == MaintenanceInProgress
}

const (
	FrequencyOnce       = "once"
	FrequencyMonthly    = "monthly"
	FrequencyQuarterly  = "quarterly"
	FrequencySemiannual = "semiannual"
	FrequencyAnnual     = "annual"
)

var Frequencies = []string{FrequencyOnce, FrequencyMonthly, FrequencyQuarterly, FrequencySemiannual, FrequencyAnnual}

// NextOccurrence returns the date of the following visit for a recurring schedule.
// Month arithmetic clamps to the last day of the target month so Jan 31 + 1 month is Feb 28/29.
func NextOccurrence(date, frequency string) (string, bool) {
	current, err := ParseDate(date)
	if err != nil {
		return "", false
	}
	months := 0
	switch frequency {
	case FrequencyMonthly:
		months = 1
	case FrequencyQuarterly:
		months = 3
	case FrequencySemiannual:
		months = 6
	case FrequencyAnnual:
		months = 12
	default:
		return "", false
	}
	return FormatDate(addMonthsClamped(current, months)), true
}

func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
}

const (
	EmergencyReported = "reported"
	EmergencyEnRoute  = "en_route"
	EmergencyOnSite   = "on_site"
	EmergencyResolved = "resolved"
)

var EmergencyStatuses = []string{EmergencyReported, EmergencyEnRoute, EmergencyOnSite, EmergencyResolved}

// CanAdvanceEmergency allows moving forward along reported → en_route → on_site → resolved, skipping steps.
func CanAdvanceEmergency(from, to string) bool {
	fromIdx, toIdx := -1, -1
	for i, s := range EmergencyStatuses {
		if s == from {
			fromIdx = i
		}
		if s == to {
			toIdx = i
		}
	}
	if fromIdx < 0 || toIdx < 0 {
		return false
	}
	return toIdx >= fromIdx
}

const (
	QuotationDraft    = "draft"
	QuotationSent     = "sent"
	QuotationApproved = "approved"
	QuotationRejected = "rejected"
	QuotationExpired  = "expired"
)

var QuotationStatuses = []string{QuotationDraft, QuotationSent, QuotationApproved, QuotationRejected, QuotationExpired}

const (
	DocumentCertificate = "certificate"
	DocumentContract    = "contract"
	DocumentPermit      = "permit"
	DocumentInspection  = "inspection"
	DocumentOther       = "other"
)

var DocumentCategories = []string{DocumentCertificate, DocumentContract, DocumentPermit, DocumentInspection, DocumentOther}

const (
	AttachmentPhoto     = "photo"
	AttachmentSignature = "signature"
)

const (
	OwnerWorkOrder   = "work_order"
	OwnerMaintenance = "maintenance"
	OwnerEmergency   = "emergency"
)

// Notification kinds.
const (
	NoticeMaintenanceDue   = "maintenance_due"
	NoticeWorkOrderOverdue = "work_order_overdue"
	NoticeDocumentExpiring = "document_expiring"
	NoticeEmergency        = "emergency"
	NoticeAssignment       = "assignment"
	NoticeQuotation        = "quotation"
)

func Contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
