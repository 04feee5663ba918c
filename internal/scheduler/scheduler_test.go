package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/metrics"
	"github.com/liftcare/liftsuite/internal/model"
)

type sentNotice struct {
	users []string
	n     model.Notification
}

type fakeStore struct {
	mu           sync.Mutex
	maintenance  []model.MaintenanceSchedule
	workOrders   []model.WorkOrder
	documents    []model.LegalDocument
	quotations   []model.Quotation
	elevators    map[string]model.Elevator
	admins       []string
	sent         []sentNotice
	dueFrom      string
	dueTo        string
	docsUntil    string
	failOverdue  bool
}

func (f *fakeStore) MaintenanceDueForNotice(_ context.Context, from, to string) ([]model.MaintenanceSchedule, error) {
	f.dueFrom, f.dueTo = from, to
	var out []model.MaintenanceSchedule
	for _, m := range f.maintenance {
		if m.NotifiedAt == 0 && m.TechnicianID != "" && m.ScheduledDate >= from && m.ScheduledDate <= to {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkMaintenanceNotified(_ context.Context, id string) error {
	for i := range f.maintenance {
		if f.maintenance[i].ID == id {
			f.maintenance[i].NotifiedAt = model.Now()
		}
	}
	return nil
}

func (f *fakeStore) OverdueWorkOrders(_ context.Context, today string) ([]model.WorkOrder, error) {
	if f.failOverdue {
		return nil, errors.New("database is closed")
	}
	var out []model.WorkOrder
	for _, wo := range f.workOrders {
		if model.WorkOrderOpen(wo.Status) && wo.ScheduledDate != "" && wo.ScheduledDate < today && wo.NotifiedAt == 0 {
			out = append(out, wo)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkWorkOrderNotified(_ context.Context, id string) error {
	for i := range f.workOrders {
		if f.workOrders[i].ID == id {
			f.workOrders[i].NotifiedAt = model.Now()
		}
	}
	return nil
}

func (f *fakeStore) DocumentsExpiringBy(_ context.Context, until string) ([]model.LegalDocument, error) {
	f.docsUntil = until
	var out []model.LegalDocument
	for _, d := range f.documents {
		if d.ExpiresOn != "" && d.ExpiresOn <= until && d.NotifiedAt == 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkDocumentNotified(_ context.Context, id string) error {
	for i := range f.documents {
		if f.documents[i].ID == id {
			f.documents[i].NotifiedAt = model.Now()
		}
	}
	return nil
}

func (f *fakeStore) ExpireQuotations(_ context.Context, today string) (int64, error) {
	var n int64
	for i := range f.quotations {
		q := &f.quotations[i]
		if q.Status == model.QuotationSent && q.ValidUntil != "" && q.ValidUntil < today {
			q.Status = model.QuotationExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetElevator(_ context.Context, id string) (model.Elevator, error) {
	e, ok := f.elevators[id]
	if !ok {
		return model.Elevator{}, errors.New("not found")
	}
	return e, nil
}

func (f *fakeStore) ActiveUserIDsByRole(_ context.Context, _ ...model.Role) ([]string, error) {
	return f.admins, nil
}

func (f *fakeStore) Notify(_ context.Context, userIDs []string, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotice{users: userIDs, n: n})
	return nil
}

type recordedEvent struct {
	table    string
	clientID string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(_ context.Context, table, _, _, clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{table: table, clientID: clientID})
}

func newFixture() *fakeStore {
	return &fakeStore{
		elevators: map[string]model.Elevator{
			"e1": {ID: "e1", Code: "ELV-001", ClientID: "c1"},
		},
		admins: []string{"admin-1", "dev-1"},
		maintenance: []model.MaintenanceSchedule{
			{ID: "m1", ElevatorID: "e1", TechnicianID: "tech-1", ScheduledDate: "2025-06-11", Status: model.MaintenanceScheduled},
			{ID: "m2", ElevatorID: "e1", TechnicianID: "tech-1", ScheduledDate: "2025-06-20", Status: model.MaintenanceScheduled},
			{ID: "m3", ElevatorID: "e1", ScheduledDate: "2025-06-10", Status: model.MaintenanceScheduled},
		},
		workOrders: []model.WorkOrder{
			{ID: "w1", Folio: "OT-2025-0001", Title: "Door sensor", Status: model.WorkOrderAssigned, TechnicianID: "tech-2", ScheduledDate: "2025-06-01"},
			{ID: "w2", Folio: "OT-2025-0002", Status: model.WorkOrderCompleted, ScheduledDate: "2025-06-01"},
			{ID: "w3", Folio: "OT-2025-0003", Status: model.WorkOrderPending, ScheduledDate: "2025-06-10"},
		},
		documents: []model.LegalDocument{
			{ID: "d1", Title: "Operating permit", ExpiresOn: "2025-07-01"},
			{ID: "d2", Title: "Contract", ExpiresOn: "2025-12-31"},
		},
		quotations: []model.Quotation{
			{ID: "q1", Status: model.QuotationSent, ValidUntil: "2025-06-09"},
			{ID: "q2", Status: model.QuotationSent, ValidUntil: "2025-06-10"},
			{ID: "q3", Status: model.QuotationDraft, ValidUntil: "2025-01-01"},
		},
	}
}

func TestRunOnce(t *testing.T) {
	st := newFixture()
	pub := &fakePublisher{}
	m := metrics.New()
	s := New(st, pub, zap.NewNop(), Options{Metrics: m})
	s.now = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{MaintenanceNotices: 1, OverdueWorkOrders: 1, ExpiringDocuments: 1, ExpiredQuotations: 1}, res)

	assert.Equal(t, "2025-06-10", st.dueFrom)
	assert.Equal(t, "2025-06-11", st.dueTo)
	assert.Equal(t, "2025-07-10", st.docsUntil)

	require.Len(t, st.sent, 3)
	assert.Equal(t, []string{"tech-1"}, st.sent[0].users)
	assert.Equal(t, model.NoticeMaintenanceDue, st.sent[0].n.Kind)
	assert.Contains(t, st.sent[0].n.Message, "ELV-001")
	assert.Equal(t, []string{"admin-1", "dev-1", "tech-2"}, st.sent[1].users)
	assert.Equal(t, model.NoticeWorkOrderOverdue, st.sent[1].n.Kind)
	assert.Equal(t, "/work-orders/w1", st.sent[1].n.Link)
	assert.Equal(t, []string{"admin-1", "dev-1"}, st.sent[2].users)
	assert.Equal(t, model.NoticeDocumentExpiring, st.sent[2].n.Kind)

	assert.Equal(t, model.QuotationExpired, st.quotations[0].Status)
	assert.Equal(t, model.QuotationSent, st.quotations[1].Status)
	assert.Equal(t, model.QuotationDraft, st.quotations[2].Status)

	require.Len(t, pub.events, 4)
	assert.Equal(t, recordedEvent{table: "notifications", clientID: "c1"}, pub.events[0])
	assert.Equal(t, "quotations", pub.events[3].table)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues(model.NoticeDocumentExpiring)))

	// Notices go out once.
	res, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Len(t, st.sent, 3)
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	st := newFixture()
	st.failOverdue = true
	s := New(st, nil, nil, Options{})
	s.now = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }

	res, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overdue work orders")
	assert.Equal(t, 1, res.MaintenanceNotices)
	assert.Equal(t, 1, res.ExpiringDocuments)
	assert.Equal(t, 1, res.ExpiredQuotations)
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(newFixture(), nil, nil, Options{Spec: "every now and then"})
	assert.Error(t, s.Start(context.Background()))
}

func TestStartStopsWithContext(t *testing.T) {
	s := New(newFixture(), nil, nil, Options{Spec: "@every 1h"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestAppendUnique(t *testing.T) {
	base := []string{"a", "b"}
	assert.Equal(t, []string{"a", "b", "c"}, appendUnique(base, "c"))
	assert.Equal(t, []string{"a", "b"}, appendUnique(base, "a"))
	assert.Equal(t, []string{"a", "b"}, appendUnique(base, ""))
	assert.Equal(t, []string{"a", "b"}, base)
}
