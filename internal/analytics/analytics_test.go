package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftcare/liftsuite/internal/model"
)

func TestCostVariancePercent(t *testing.T) {
	assert.Equal(t, 0.0, CostVariancePercent(0, 5000))
	assert.Equal(t, 25.0, CostVariancePercent(10000, 12500))
	assert.Equal(t, -10.0, CostVariancePercent(10000, 9000))
	assert.Equal(t, 33.33, CostVariancePercent(300, 400))
	assert.Equal(t, -66.67, CostVariancePercent(300, 100))
}

func TestConversionRate(t *testing.T) {
	assert.Equal(t, 0.0, ConversionRate(0, 0))
	assert.Equal(t, 66.67, ConversionRate(2, 1))
	assert.Equal(t, 100.0, ConversionRate(4, 0))
}

func TestValueSummary(t *testing.T) {
	jan := model.TimestampOf(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	feb := model.TimestampOf(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC))
	workOrders := []model.WorkOrder{
		{ClientID: "a", Status: model.WorkOrderCompleted, EstimatedCostCents: 10000, ActualCostCents: 12000},
		{ClientID: "b", Status: model.WorkOrderCompleted, EstimatedCostCents: 10000, ActualCostCents: 9000},
		{ClientID: "a", Status: model.WorkOrderCompleted, EstimatedCostCents: 0, ActualCostCents: 500},
		{ClientID: "a", Status: model.WorkOrderPending, EstimatedCostCents: 99999},
	}
	quotations := []model.Quotation{
		{Status: model.QuotationApproved, TotalCents: 1000, DecidedAt: feb},
		{Status: model.QuotationApproved, TotalCents: 2000, CreatedAt: jan},
		{Status: model.QuotationRejected, TotalCents: 5000},
		{Status: model.QuotationSent, TotalCents: 7000},
	}

	s := ValueSummary(workOrders, quotations)
	assert.Equal(t, 3, s.CompletedWorkOrders)
	assert.Equal(t, int64(20000), s.EstimatedCostCents)
	assert.Equal(t, int64(21500), s.ActualCostCents)
	assert.Equal(t, 5.0, s.AverageVariance)
	assert.Equal(t, 2, s.OverBudgetCount)
	assert.Equal(t, 66.67, s.ConversionRate)
	assert.Equal(t, 1, s.QuotationsPending)
	assert.Equal(t, int64(3000), s.ApprovedRevenueCents)
	assert.Equal(t, []MonthAmount{{Month: "2025-01", AmountCents: 2000}, {Month: "2025-02", AmountCents: 1000}}, s.RevenueByMonth)
	assert.Equal(t, []ClientAmount{{ClientID: "a", AmountCents: 12500}, {ClientID: "b", AmountCents: 9000}}, s.CostByClient)
}

func TestEmergencyResponse(t *testing.T) {
	visits := []model.EmergencyVisit{
		{ReportedAt: 1000, ArrivedAt: 1000 + 30*60, ResolvedAt: 1000 + 90*60},
		{ReportedAt: 5000, ArrivedAt: 5000 + 45*60},
		{ReportedAt: 9000},
	}
	r := EmergencyResponse(visits)
	assert.Equal(t, 3, r.Visits)
	assert.Equal(t, 37.5, r.AvgMinutesToArrive)
	assert.Equal(t, 90.0, r.AvgMinutesToResolve)

	empty := EmergencyResponse(nil)
	assert.Equal(t, 0.0, empty.AvgMinutesToArrive)
}

func TestRiskLevel(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevel(0))
	assert.Equal(t, RiskLow, RiskLevel(24))
	assert.Equal(t, RiskMedium, RiskLevel(25))
	assert.Equal(t, RiskHigh, RiskLevel(74))
	assert.Equal(t, RiskCritical, RiskLevel(75))
	assert.Equal(t, RiskCritical, RiskLevel(100))
}

func TestRiskScores(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	recent := model.TimestampOf(now.AddDate(0, 0, -10))
	old := model.TimestampOf(now.AddDate(0, 0, -200))

	elevators := []model.Elevator{
		{ID: "e1", Code: "B-01", InstalledOn: "2000-01-01"},
		{ID: "e2", Code: "A-01", InstalledOn: "2012-06-15"},
		{ID: "e3", Code: "C-01"},
		{ID: "e4", Code: "A-00"},
	}
	emergencies := []model.EmergencyVisit{
		{ElevatorID: "e1", ReportedAt: recent, PassengersTrapped: true},
		{ElevatorID: "e1", ReportedAt: recent},
		{ElevatorID: "e1", ReportedAt: old},
		{ElevatorID: "e3", ReportedAt: recent},
	}
	schedules := []model.MaintenanceSchedule{
		{ElevatorID: "e1", ScheduledDate: "2025-06-01", Status: model.MaintenanceScheduled},
		{ElevatorID: "e1", ScheduledDate: "2025-06-01", Status: model.MaintenanceCompleted},
		{ElevatorID: "e1", ScheduledDate: "2025-07-01", Status: model.MaintenanceScheduled},
		{ElevatorID: "e3", ScheduledDate: "2025-06-14", Status: model.MaintenanceInProgress},
	}
	workOrders := []model.WorkOrder{
		{ElevatorID: "e1", Priority: model.PriorityCritical, Status: model.WorkOrderAssigned},
		{ElevatorID: "e1", Priority: model.PriorityCritical, Status: model.WorkOrderCompleted},
		{ElevatorID: "e3", Priority: model.PriorityHigh, Status: model.WorkOrderPending},
	}

	risks := RiskScores(elevators, emergencies, schedules, workOrders, now)
	require.Len(t, risks, 4)

	// e1: 2*15 + 10 + 20 + 10 + 15 = 85
	assert.Equal(t, "e1", risks[0].ElevatorID)
	assert.Equal(t, 85, risks[0].Score)
	assert.Equal(t, RiskCritical, risks[0].Level)
	assert.Equal(t, 25, risks[0].AgeYears)

	// e3: 15 + 20 = 35
	assert.Equal(t, "e3", risks[1].ElevatorID)
	assert.Equal(t, 35, risks[1].Score)
	assert.Equal(t, RiskMedium, risks[1].Level)

	// e2 is exactly 13 years old: 5
	assert.Equal(t, "e2", risks[2].ElevatorID)
	assert.Equal(t, 5, risks[2].Score)

	assert.Equal(t, "e4", risks[3].ElevatorID)
	assert.Equal(t, 0, risks[3].Score)
}

func TestRiskScoreIsCapped(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	emergencies := make([]model.EmergencyVisit, 10)
	for i := range emergencies {
		emergencies[i] = model.EmergencyVisit{ElevatorID: "e1", ReportedAt: model.TimestampOf(now), PassengersTrapped: true}
	}
	risks := RiskScores([]model.Elevator{{ID: "e1", Code: "X"}}, emergencies, nil, nil, now)
	require.Len(t, risks, 1)
	assert.Equal(t, 100, risks[0].Score)
}
