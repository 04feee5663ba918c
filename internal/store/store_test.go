package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftcare/liftsuite/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

var workOrderCols = []string{
	"id", "folio", "elevator_id", "client_id", "technician_id", "title", "description", "priority", "status",
	"estimated_cost_cents", "actual_cost_cents", "scheduled_date", "completed_at", "notified_at", "created_at", "updated_at",
}

func TestInitSchemaRunsEveryStatement(t *testing.T) {
	s, mock := newMockStore(t)
	for range schemaStatements {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at <= ?")).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, s.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetClientNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM clients WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetClient(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClientAssignsIDAndTimestamps(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clients")).WillReturnResult(sqlmock.NewResult(0, 1))

	c := model.Client{Name: "Torre Norte"}
	require.NoError(t, s.CreateClient(context.Background(), &c))
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clients SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateClient(context.Background(), &model.Client{ID: "nope", Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUniqueViolationBecomesConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO elevators")).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: elevators.code (2067)"))

	err := s.CreateElevator(context.Background(), &model.Elevator{ClientID: "c1", Code: "ELV-1"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListWorkOrdersAppliesFiltersAndPaging(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM work_orders WHERE status = ? AND client_id = ? AND (LOWER(folio) LIKE ? OR LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")).
		WithArgs("pending", "client-1", "%cable%", "%cable%", "%cable%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, folio DESC LIMIT ? OFFSET ?")).
		WithArgs("pending", "client-1", "%cable%", "%cable%", "%cable%", 25, 25).
		WillReturnRows(sqlmock.NewRows(workOrderCols).
			AddRow("wo-1", "OT-2025-0001", "e1", "client-1", "", "Cable", "", "high", "pending", int64(1000), int64(0), "2025-01-02", int64(0), int64(0), int64(1700000000), int64(1700000000)))

	page, err := s.ListWorkOrders(context.Background(), ListFilter{Status: "pending", ClientID: "client-1", Query: " Cable ", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 30, page.Total)
	assert.Equal(t, 2, page.TotalPages())
	require.Len(t, page.Items, 1)
	assert.Equal(t, "OT-2025-0001", page.Items[0].Folio)
	assert.Equal(t, int64(1000), page.Items[0].EstimatedCostCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTechnicianFilterCanIncludeUnassigned(t *testing.T) {
	w := emergencyResource.where(ListFilter{TechnicianID: "t1", IncludeUnassigned: true})
	assert.Equal(t, " WHERE (technician_id = ? OR technician_id = '')", w.sql())
	assert.Equal(t, []any{"t1"}, w.args)

	w = maintenanceResource.where(ListFilter{ClientID: "c1", From: "2025-01-01", To: "2025-01-31"})
	assert.Equal(t, " WHERE elevator_id IN (SELECT id FROM elevators WHERE client_id = ?) AND scheduled_date >= ? AND scheduled_date <= ?", w.sql())
}

func TestStatusFilterUsesEachTablesColumn(t *testing.T) {
	cases := []struct {
		name string
		r    resource
		want string
	}{
		{"clients", clientResource, ""},
		{"training", trainingResource, ""},
		{"documents", documentResource, " WHERE category = ?"},
		{"elevators", elevatorResource, " WHERE status = ?"},
		{"maintenance", maintenanceResource, " WHERE status = ?"},
		{"work orders", workOrderResource, " WHERE status = ?"},
		{"emergencies", emergencyResource, " WHERE status = ?"},
		{"quotations", quotationResource, " WHERE status = ?"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := tc.r.where(ListFilter{Status: "active"})
			assert.Equal(t, tc.want, w.sql())
			if tc.want == "" {
				assert.Empty(t, w.args)
			} else {
				assert.Equal(t, []any{"active"}, w.args)
			}
		})
	}
}

func TestUnixDateRangeCoversWholeDays(t *testing.T) {
	w := emergencyResource.where(ListFilter{From: "2025-03-01", To: "2025-03-01"})
	require.Len(t, w.args, 2)
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, from, w.args[0])
	assert.Equal(t, from+86400, w.args[1])
}

func TestCreateWorkOrderAssignsNextFolio(t *testing.T) {
	s, mock := newMockStore(t)
	year := time.Now().UTC().Year()
	prefix := fmt.Sprintf("OT-%d-", year)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(folio), '') FROM work_orders WHERE folio LIKE ?")).
		WithArgs(prefix + "%").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(prefix + "0041"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO work_orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	wo := model.WorkOrder{ElevatorID: "e1", ClientID: "c1", Title: "Door sensor"}
	require.NoError(t, s.CreateWorkOrder(context.Background(), &wo))
	assert.Equal(t, prefix+"0042", wo.Folio)
	assert.Equal(t, model.WorkOrderPending, wo.Status)
	assert.Equal(t, model.PriorityMedium, wo.Priority)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateQuotationStartsYearAtOne(t *testing.T) {
	s, mock := newMockStore(t)
	year := time.Now().UTC().Year()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM quotations WHERE number LIKE ?")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(""))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO quotations")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	q := model.Quotation{ClientID: "c1", Title: "Modernization", TaxRateBP: 1600,
		Items: model.QuotationItems{{Description: "Drive", Quantity: 1, UnitPriceCents: 100000}}}
	require.NoError(t, s.CreateQuotation(context.Background(), &q))
	assert.Equal(t, fmt.Sprintf("COT-%d-0001", year), q.Number)
	assert.Equal(t, int64(116000), q.TotalCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRecurringMaintenanceSchedulesNext(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE maintenance_schedules SET status = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO maintenance_schedules")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := model.MaintenanceSchedule{
		ID: "m1", ElevatorID: "e1", TechnicianID: "t1", ScheduledDate: "2025-01-31", Frequency: model.FrequencyMonthly,
		Checklist: model.Checklist{{Key: "brakes", Label: "Brakes", Checked: true, Notes: "ok"}},
	}
	next, err := s.CompleteMaintenance(context.Background(), &m)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, model.MaintenanceCompleted, m.Status)
	assert.False(t, m.CompletedAt.IsZero())
	assert.Equal(t, "2025-02-28", next.ScheduledDate)
	assert.Equal(t, model.MaintenanceScheduled, next.Status)
	assert.Equal(t, "t1", next.TechnicianID)
	require.Len(t, next.Checklist, 1)
	assert.False(t, next.Checklist[0].Checked)
	assert.Empty(t, next.Checklist[0].Notes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteOneOffMaintenanceHasNoNext(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE maintenance_schedules SET status = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	next, err := s.CompleteMaintenance(context.Background(), &model.MaintenanceSchedule{ID: "m1", ScheduledDate: "2025-01-01", Frequency: model.FrequencyOnce})
	require.NoError(t, err)
	assert.Nil(t, next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEmergencyWithTrappedPassengersStopsElevator(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO emergency_visits")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE elevators SET status = ?")).
		WithArgs(model.ElevatorStopped, sqlmock.AnyArg(), "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := model.EmergencyVisit{ElevatorID: "e1", ClientID: "c1", PassengersTrapped: true}
	require.NoError(t, s.CreateEmergency(context.Background(), &e))
	assert.Equal(t, model.EmergencyReported, e.Status)
	assert.False(t, e.ReportedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupSessionJoinsUser(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "user_id", "csrf_token", "expires_at", "created_at", "last_seen_at",
		"u.id", "u.email", "u.full_name", "u.role", "u.client_id", "u.password_hash", "u.active", "u.created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions s")).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("sess", "u1", "csrf", int64(1900000000), int64(1), int64(1),
			"u1", "tech@example.com", "Tech", "technician", "", "hash", true, int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET last_seen_at = ?")).WillReturnResult(sqlmock.NewResult(0, 1))

	sess, user, err := s.LookupSession(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, "csrf", sess.CSRFToken)
	assert.Equal(t, model.RoleTechnician, user.Role)
	assert.True(t, user.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireQuotations(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE quotations SET status = ?")).
		WithArgs(model.QuotationExpired, sqlmock.AnyArg(), model.QuotationSent, "2025-06-01").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.ExpireQuotations(context.Background(), "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNotifyInsertsOneRowPerRecipient(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Notify(context.Background(), []string{"a", "b"}, model.Notification{Title: "Emergency"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := withSQLiteRetry(func() error {
		calls++
		return errors.New("syntax error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = withSQLiteRetry(func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFormatFolio(t *testing.T) {
	assert.Equal(t, "OT-2025-0007", FormatFolio("OT", 2025, 7))
	assert.Equal(t, "COT-2024-12345", FormatFolio("COT", 2024, 12345))
}
