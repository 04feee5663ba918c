package clientapp

import (
	"github.com/liftcare/liftsuite/internal/model"
)

// column is one cell of a list or detail view. Kind selects the formatter in cellValue.
type column struct {
	Key   string
	Label string
	Kind  string
}

// field is one input of a create or action form. Kind drives both rendering and the conversion
// applied in formPayload.
type field struct {
	Name     string
	Label    string
	Kind     string
	Options  []string
	Source   string
	Required bool
}

// action is a button on a detail page that posts to an API sub-resource.
type action struct {
	Name    string
	Label   string
	Roles   []model.Role
	When    []string
	API     string
	Fixed   map[string]string
	Fields  []field
	Danger  bool
	Confirm string
}

type resource struct {
	Key         string
	Title       string
	Singular    string
	API         string
	Roles       []model.Role
	CreateRoles []model.Role
	Statuses    []string
	StatusParam string
	Columns     []column
	Detail      []column
	Form        []field
	Multipart   bool
	Export      bool
	PDF         bool
	Attachments bool
	Actions     []action
}

var (
	allRoles   = []model.Role{model.RoleDeveloper, model.RoleAdmin, model.RoleTechnician, model.RoleClient}
	staffRoles = []model.Role{model.RoleDeveloper, model.RoleAdmin}
	fieldRoles = []model.Role{model.RoleDeveloper, model.RoleAdmin, model.RoleTechnician}
	portal     = []model.Role{model.RoleDeveloper, model.RoleAdmin, model.RoleClient}
)

var openWorkOrder = []string{model.WorkOrderPending, model.WorkOrderAssigned, model.WorkOrderInProgress}

var resources = []resource{
	{
		Key: "work-orders", Title: "Work orders", Singular: "Work order", API: "/api/work-orders",
		Roles: allRoles, CreateRoles: staffRoles, Statuses: model.WorkOrderStatuses, StatusParam: "status",
		Export: true, PDF: true, Attachments: true,
		Columns: []column{
			{Key: "folio", Label: "Folio"},
			{Key: "title", Label: "Title"},
			{Key: "elevatorId", Label: "Elevator", Kind: "elevator"},
			{Key: "technicianId", Label: "Technician", Kind: "user"},
			{Key: "priority", Label: "Priority", Kind: "status"},
			{Key: "status", Label: "Status", Kind: "status"},
			{Key: "scheduledDate", Label: "Scheduled", Kind: "date"},
		},
		Detail: []column{
			{Key: "folio", Label: "Folio"},
			{Key: "title", Label: "Title"},
			{Key: "description", Label: "Description"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "elevatorId", Label: "Elevator", Kind: "elevator"},
			{Key: "technicianId", Label: "Technician", Kind: "user"},
			{Key: "priority", Label: "Priority", Kind: "status"},
			{Key: "status", Label: "Status", Kind: "status"},
			{Key: "estimatedCostCents", Label: "Estimated cost", Kind: "money"},
			{Key: "actualCostCents", Label: "Actual cost", Kind: "money"},
			{Key: "scheduledDate", Label: "Scheduled", Kind: "date"},
			{Key: "completedAt", Label: "Completed", Kind: "time"},
			{Key: "createdAt", Label: "Created", Kind: "time"},
		},
		Form: []field{
			{Name: "elevatorId", Label: "Elevator", Kind: "select", Source: "elevators", Required: true},
			{Name: "technicianId", Label: "Technician", Kind: "select", Source: "technicians"},
			{Name: "title", Label: "Title", Kind: "text", Required: true},
			{Name: "description", Label: "Description", Kind: "textarea"},
			{Name: "priority", Label: "Priority", Kind: "select", Options: model.Priorities},
			{Name: "estimatedCostCents", Label: "Estimated cost", Kind: "money"},
			{Name: "scheduledDate", Label: "Scheduled date", Kind: "date"},
		},
		Actions: []action{
			{Name: "assign", Label: "Assign", Roles: staffRoles, When: []string{model.WorkOrderPending}, API: "status",
				Fixed:  map[string]string{"status": model.WorkOrderAssigned},
				Fields: []field{{Name: "technicianId", Label: "Technician", Kind: "select", Source: "technicians", Required: true}}},
			{Name: "start", Label: "Start work", Roles: fieldRoles, When: []string{model.WorkOrderAssigned}, API: "status",
				Fixed: map[string]string{"status": model.WorkOrderInProgress}},
			{Name: "complete", Label: "Complete", Roles: fieldRoles, When: []string{model.WorkOrderInProgress}, API: "status",
				Fixed:  map[string]string{"status": model.WorkOrderCompleted},
				Fields: []field{{Name: "actualCostCents", Label: "Actual cost", Kind: "money", Required: true}}},
			{Name: "cancel", Label: "Cancel", Roles: staffRoles, When: openWorkOrder, API: "status", Danger: true,
				Fixed: map[string]string{"status": model.WorkOrderCancelled}, Confirm: "Cancel this work order?"},
		},
	},
	{
		Key: "maintenance", Title: "Maintenance", Singular: "Maintenance visit", API: "/api/maintenance",
		Roles: allRoles, CreateRoles: staffRoles, Statuses: model.MaintenanceStatuses, StatusParam: "status",
		Export: true, PDF: true, Attachments: true,
		Columns: []column{
			{Key: "scheduledDate", Label: "Date", Kind: "date"},
			{Key: "elevatorId", Label: "Elevator", Kind: "elevator"},
			{Key: "technicianId", Label: "Technician", Kind: "user"},
			{Key: "frequency", Label: "Frequency"},
			{Key: "status", Label: "Status", Kind: "status"},
		},
		Detail: []column{
			{Key: "scheduledDate", Label: "Date", Kind: "date"},
			{Key: "elevatorId", Label: "Elevator", Kind: "elevator"},
			{Key: "technicianId", Label: "Technician", Kind: "user"},
			{Key: "frequency", Label: "Frequency"},
			{Key: "status", Label: "Status", Kind: "status"},
			{Key: "checklist", Label: "Checklist", Kind: "checklist"},
			{Key: "notes", Label: "Notes"},
			{Key: "signedBy", Label: "Signed by"},
			{Key: "completedAt", Label: "Completed", Kind: "time"},
		},
		Form: []field{
			{Name: "elevatorId", Label: "Elevator", Kind: "select", Source: "elevators", Required: true},
			{Name: "technicianId", Label: "Technician", Kind: "select", Source: "technicians"},
			{Name: "scheduledDate", Label: "Date", Kind: "date", Required: true},
			{Name: "frequency", Label: "Frequency", Kind: "select", Options: model.Frequencies},
			{Name: "checklistType", Label: "Checklist", Kind: "select", Source: "checklists"},
			{Name: "notes", Label: "Notes", Kind: "textarea"},
		},
		Actions: []action{
			{Name: "start", Label: "Start visit", Roles: fieldRoles, When: []string{model.MaintenanceScheduled}, API: "status",
				Fixed: map[string]string{"status": model.MaintenanceInProgress}},
			{Name: "complete", Label: "Complete visit", Roles: fieldRoles, When: []string{model.MaintenanceScheduled, model.MaintenanceInProgress}, API: "complete",
				Fields: []field{
					{Name: "checklist", Label: "Checklist", Kind: "checklist"},
					{Name: "notes", Label: "Notes", Kind: "textarea"},
					{Name: "signedBy", Label: "Signed by", Kind: "text"},
					{Name: "signature", Label: "Signature (PNG)", Kind: "signature"},
				}},
			{Name: "cancel", Label: "Cancel", Roles: staffRoles, When: []string{model.MaintenanceScheduled, model.MaintenanceInProgress}, API: "status", Danger: true,
				Fixed: map[string]string{"status": model.MaintenanceCancelled}, Confirm: "Cancel this visit?"},
		},
	},
	{
		Key: "emergencies", Title: "Emergencies", Singular: "Emergency", API: "/api/emergencies",
		Roles: allRoles, CreateRoles: portal, Statuses: model.EmergencyStatuses, StatusParam: "status",
		Export: true, PDF: true, Attachments: true,
		Columns: []column{
			{Key: "reportedAt", Label: "Reported", Kind: "time"},
			{Key: "elevatorId", Label: "Elevator", Kind: "elevator"},
			{Key: "failureType", Label: "Failure"},
			{Key: "passengersTrapped", Label: "Trapped", Kind: "bool"},
			{Key: "technicianId", Label: "Technician", Kind: "user"},
			{Key: "status", Label: "Status", Kind: "status"},
		},
		Detail: []column{
			{Key: "elevatorId", Label: "Elevator", Kind: "elevator"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "failureType", Label: "Failure"},
			{Key: "description", Label: "Description"},
			{Key: "passengersTrapped", Label: "Passengers trapped", Kind: "bool"},
			{Key: "technicianId", Label: "Technician", Kind: "user"},
			{Key: "status", Label: "Status", Kind: "status"},
			{Key: "reportedAt", Label: "Reported", Kind: "time"},
			{Key: "arrivedAt", Label: "Arrived", Kind: "time"},
			{Key: "resolvedAt", Label: "Resolved", Kind: "time"},
			{Key: "resolution", Label: "Resolution"},
		},
		Form: []field{
			{Name: "elevatorId", Label: "Elevator", Kind: "select", Source: "elevators", Required: true},
			{Name: "failureType", Label: "Failure", Kind: "text", Required: true},
			{Name: "description", Label: "Description", Kind: "textarea"},
			{Name: "passengersTrapped", Label: "Passengers trapped", Kind: "bool"},
		},
		Actions: []action{
			{Name: "en-route", Label: "On my way", Roles: fieldRoles, When: []string{model.EmergencyReported}, API: "status",
				Fixed: map[string]string{"status": model.EmergencyEnRoute}},
			{Name: "on-site", Label: "Arrived", Roles: fieldRoles, When: []string{model.EmergencyReported, model.EmergencyEnRoute}, API: "status",
				Fixed: map[string]string{"status": model.EmergencyOnSite}},
			{Name: "resolve", Label: "Resolve", Roles: fieldRoles, When: []string{model.EmergencyReported, model.EmergencyEnRoute, model.EmergencyOnSite}, API: "status",
				Fixed: map[string]string{"status": model.EmergencyResolved},
				Fields: []field{
					{Name: "resolution", Label: "Resolution", Kind: "textarea", Required: true},
					{Name: "signature", Label: "Signature (PNG)", Kind: "signature"},
				}},
		},
	},
	{
		Key: "quotations", Title: "Quotations", Singular: "Quotation", API: "/api/quotations",
		Roles: portal, CreateRoles: staffRoles, Statuses: model.QuotationStatuses, StatusParam: "status",
		Export: true, PDF: true,
		Columns: []column{
			{Key: "number", Label: "Number"},
			{Key: "title", Label: "Title"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "totalCents", Label: "Total", Kind: "money"},
			{Key: "status", Label: "Status", Kind: "status"},
			{Key: "validUntil", Label: "Valid until", Kind: "date"},
		},
		Detail: []column{
			{Key: "number", Label: "Number"},
			{Key: "title", Label: "Title"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "elevatorId", Label: "Elevator", Kind: "elevator"},
			{Key: "items", Label: "Items", Kind: "items"},
			{Key: "subtotalCents", Label: "Subtotal", Kind: "money"},
			{Key: "taxCents", Label: "Tax", Kind: "money"},
			{Key: "totalCents", Label: "Total", Kind: "money"},
			{Key: "status", Label: "Status", Kind: "status"},
			{Key: "validUntil", Label: "Valid until", Kind: "date"},
			{Key: "decidedAt", Label: "Decided", Kind: "time"},
		},
		Form: []field{
			{Name: "clientId", Label: "Client", Kind: "select", Source: "clients", Required: true},
			{Name: "elevatorId", Label: "Elevator", Kind: "select", Source: "elevators"},
			{Name: "title", Label: "Title", Kind: "text", Required: true},
			{Name: "items", Label: "Items (description | quantity | unit price, one per line)", Kind: "items", Required: true},
			{Name: "taxRateBp", Label: "Tax rate (%)", Kind: "percent"},
			{Name: "validUntil", Label: "Valid until", Kind: "date"},
			{Name: "status", Label: "Status", Kind: "select", Options: []string{model.QuotationDraft, model.QuotationSent}},
		},
		Actions: []action{
			{Name: "send", Label: "Send to client", Roles: staffRoles, When: []string{model.QuotationDraft}, API: "send"},
			{Name: "approve", Label: "Approve", Roles: portal, When: []string{model.QuotationSent}, API: "decision",
				Fixed: map[string]string{"decision": model.QuotationApproved}},
			{Name: "reject", Label: "Reject", Roles: portal, When: []string{model.QuotationSent}, API: "decision", Danger: true,
				Fixed: map[string]string{"decision": model.QuotationRejected}, Confirm: "Reject this quotation?"},
		},
	},
	{
		Key: "elevators", Title: "Elevators", Singular: "Elevator", API: "/api/elevators",
		Roles: allRoles, CreateRoles: staffRoles, Statuses: model.ElevatorStatuses, StatusParam: "status",
		Columns: []column{
			{Key: "code", Label: "Code"},
			{Key: "buildingName", Label: "Building"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "floors", Label: "Floors"},
			{Key: "status", Label: "Status", Kind: "status"},
		},
		Detail: []column{
			{Key: "code", Label: "Code"},
			{Key: "buildingName", Label: "Building"},
			{Key: "address", Label: "Address"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "brand", Label: "Brand"},
			{Key: "model", Label: "Model"},
			{Key: "serialNumber", Label: "Serial number"},
			{Key: "floors", Label: "Floors"},
			{Key: "capacityKg", Label: "Capacity (kg)"},
			{Key: "installedOn", Label: "Installed", Kind: "date"},
			{Key: "status", Label: "Status", Kind: "status"},
		},
		Form: []field{
			{Name: "clientId", Label: "Client", Kind: "select", Source: "clients", Required: true},
			{Name: "code", Label: "Code", Kind: "text", Required: true},
			{Name: "buildingName", Label: "Building", Kind: "text", Required: true},
			{Name: "address", Label: "Address", Kind: "text"},
			{Name: "brand", Label: "Brand", Kind: "text"},
			{Name: "model", Label: "Model", Kind: "text"},
			{Name: "serialNumber", Label: "Serial number", Kind: "text"},
			{Name: "floors", Label: "Floors", Kind: "int"},
			{Name: "capacityKg", Label: "Capacity (kg)", Kind: "int"},
			{Name: "installedOn", Label: "Installed", Kind: "date"},
		},
		Actions: []action{
			{Name: "rotate-qr", Label: "Issue new QR code", Roles: staffRoles, API: "qr",
				Confirm: "Printed stickers with the old code will stop working. Continue?"},
		},
	},
	{
		Key: "clients", Title: "Clients", Singular: "Client", API: "/api/clients",
		Roles: staffRoles, CreateRoles: staffRoles,
		Columns: []column{
			{Key: "name", Label: "Name"},
			{Key: "contactName", Label: "Contact"},
			{Key: "email", Label: "Email"},
			{Key: "phone", Label: "Phone"},
		},
		Detail: []column{
			{Key: "name", Label: "Name"},
			{Key: "taxId", Label: "Tax ID"},
			{Key: "contactName", Label: "Contact"},
			{Key: "email", Label: "Email"},
			{Key: "phone", Label: "Phone"},
			{Key: "address", Label: "Address"},
			{Key: "createdAt", Label: "Created", Kind: "time"},
		},
		Form: []field{
			{Name: "name", Label: "Name", Kind: "text", Required: true},
			{Name: "taxId", Label: "Tax ID", Kind: "text"},
			{Name: "contactName", Label: "Contact", Kind: "text"},
			{Name: "email", Label: "Email", Kind: "email"},
			{Name: "phone", Label: "Phone", Kind: "text"},
			{Name: "address", Label: "Address", Kind: "text"},
		},
	},
	{
		Key: "documents", Title: "Legal documents", Singular: "Document", API: "/api/documents",
		Roles: portal, CreateRoles: staffRoles, Statuses: model.DocumentCategories, StatusParam: "category",
		Multipart: true,
		Columns: []column{
			{Key: "title", Label: "Title"},
			{Key: "category", Label: "Category", Kind: "status"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "sizeBytes", Label: "Size", Kind: "bytes"},
			{Key: "expiresOn", Label: "Expires", Kind: "date"},
		},
		Detail: []column{
			{Key: "title", Label: "Title"},
			{Key: "category", Label: "Category", Kind: "status"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "elevatorId", Label: "Elevator", Kind: "elevator"},
			{Key: "fileName", Label: "File"},
			{Key: "sizeBytes", Label: "Size", Kind: "bytes"},
			{Key: "issuedOn", Label: "Issued", Kind: "date"},
			{Key: "expiresOn", Label: "Expires", Kind: "date"},
		},
		Form: []field{
			{Name: "clientId", Label: "Client", Kind: "select", Source: "clients", Required: true},
			{Name: "elevatorId", Label: "Elevator", Kind: "select", Source: "elevators"},
			{Name: "title", Label: "Title", Kind: "text", Required: true},
			{Name: "category", Label: "Category", Kind: "select", Options: model.DocumentCategories},
			{Name: "issuedOn", Label: "Issued", Kind: "date"},
			{Name: "expiresOn", Label: "Expires", Kind: "date"},
			{Name: "file", Label: "File (PDF or image)", Kind: "file", Required: true},
		},
	},
	{
		Key: "training", Title: "Rescue training", Singular: "Training module", API: "/api/training",
		Roles: allRoles, CreateRoles: staffRoles,
		Columns: []column{
			{Key: "title", Label: "Title"},
			{Key: "description", Label: "Description"},
			{Key: "passingScore", Label: "Passing score"},
		},
		Detail: []column{
			{Key: "title", Label: "Title"},
			{Key: "description", Label: "Description"},
			{Key: "content", Label: "Content"},
			{Key: "passingScore", Label: "Passing score"},
		},
		Form: []field{
			{Name: "title", Label: "Title", Kind: "text", Required: true},
			{Name: "description", Label: "Description", Kind: "textarea"},
			{Name: "content", Label: "Content", Kind: "textarea"},
			{Name: "passingScore", Label: "Passing score", Kind: "int"},
		},
		Actions: []action{
			{Name: "attempt", Label: "Record attempt", Roles: allRoles, API: "attempts",
				Fields: []field{{Name: "score", Label: "Score", Kind: "int", Required: true}}},
		},
	},
	{
		Key: "users", Title: "Users", Singular: "User", API: "/api/users",
		Roles: staffRoles, CreateRoles: staffRoles,
		Columns: []column{
			{Key: "fullName", Label: "Name"},
			{Key: "email", Label: "Email"},
			{Key: "role", Label: "Role", Kind: "status"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "active", Label: "Active", Kind: "bool"},
		},
		Detail: []column{
			{Key: "fullName", Label: "Name"},
			{Key: "email", Label: "Email"},
			{Key: "role", Label: "Role", Kind: "status"},
			{Key: "clientId", Label: "Client", Kind: "client"},
			{Key: "active", Label: "Active", Kind: "bool"},
			{Key: "createdAt", Label: "Created", Kind: "time"},
		},
		Form: []field{
			{Name: "fullName", Label: "Name", Kind: "text", Required: true},
			{Name: "email", Label: "Email", Kind: "email", Required: true},
			{Name: "role", Label: "Role", Kind: "select", Options: []string{string(model.RoleAdmin), string(model.RoleTechnician), string(model.RoleClient)}, Required: true},
			{Name: "clientId", Label: "Client (client users only)", Kind: "select", Source: "clients"},
			{Name: "password", Label: "Password (12+ characters)", Kind: "password", Required: true},
		},
	},
}

func findResource(key string) (resource, bool) {
	for _, res := range resources {
		if res.Key == key {
			return res, true
		}
	}
	return resource{}, false
}

func (res resource) findAction(name string) (action, bool) {
	for _, a := range res.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return action{}, false
}

func roleIn(role model.Role, roles []model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// availableActions filters res.Actions down to what role may do to a record in status.
func (res resource) availableActions(role model.Role, status string) []action {
	out := make([]action, 0, len(res.Actions))
	for _, a := range res.Actions {
		if !roleIn(role, a.Roles) {
			continue
		}
		if len(a.When) > 0 && !model.Contains(a.When, status) {
			continue
		}
		out = append(out, a)
	}
	return out
}
