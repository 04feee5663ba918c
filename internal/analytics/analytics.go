// Package analytics derives figures for the dashboards from already loaded records. Every
// function is pure; callers decide which rows to pass in.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/liftcare/liftsuite/internal/model"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CostVariancePercent is the relative overrun of actual over estimated cost, in percent with two
// decimals. An estimate of zero yields 0.
func CostVariancePercent(estimatedCents, actualCents int64) float64 {
	if estimatedCents == 0 {
		return 0
	}
	return round2(float64(actualCents-estimatedCents) / float64(estimatedCents) * 100)
}

// ConversionRate is approved / (approved + rejected) as a percentage with two decimals.
func ConversionRate(approved, rejected int) float64 {
	decided := approved + rejected
	if decided == 0 {
		return 0
	}
	return round2(float64(approved) / float64(decided) * 100)
}

type MonthAmount struct {
	Month       string `json:"month"`
	AmountCents int64  `json:"amountCents"`
}

type ClientAmount struct {
	ClientID    string `json:"clientId"`
	AmountCents int64  `json:"amountCents"`
}

type Summary struct {
	CompletedWorkOrders  int            `json:"completedWorkOrders"`
	EstimatedCostCents   int64          `json:"estimatedCostCents"`
	ActualCostCents      int64          `json:"actualCostCents"`
	AverageVariance      float64        `json:"averageVariancePercent"`
	OverBudgetCount      int            `json:"overBudgetCount"`
	QuotationsApproved   int            `json:"quotationsApproved"`
	QuotationsRejected   int            `json:"quotationsRejected"`
	QuotationsPending    int            `json:"quotationsPending"`
	ConversionRate       float64        `json:"conversionRatePercent"`
	ApprovedRevenueCents int64          `json:"approvedRevenueCents"`
	RevenueByMonth       []MonthAmount  `json:"revenueByMonth"`
	CostByClient         []ClientAmount `json:"costByClient"`
}

// ValueSummary aggregates cost and revenue. Only completed work orders count towards cost; the
// average variance skips orders without an estimate. Revenue is grouped by the month the
// quotation was decided (or created, when no decision time is recorded).
func ValueSummary(workOrders []model.WorkOrder, quotations []model.Quotation) Summary {
	out := Summary{RevenueByMonth: []MonthAmount{}, CostByClient: []ClientAmount{}}

	varianceSum := 0.0
	varianceN := 0
	byClient := map[string]int64{}
	for _, wo := range workOrders {
		if wo.Status != model.WorkOrderCompleted {
			continue
		}
		out.CompletedWorkOrders++
		out.EstimatedCostCents += wo.EstimatedCostCents
		out.ActualCostCents += wo.ActualCostCents
		byClient[wo.ClientID] += wo.ActualCostCents
		if wo.EstimatedCostCents > 0 {
			varianceSum += CostVariancePercent(wo.EstimatedCostCents, wo.ActualCostCents)
			varianceN++
		}
		if wo.ActualCostCents > wo.EstimatedCostCents {
			out.OverBudgetCount++
		}
	}
	if varianceN > 0 {
		out.AverageVariance = round2(varianceSum / float64(varianceN))
	}

	byMonth := map[string]int64{}
	for _, q := range quotations {
		switch q.Status {
		case model.QuotationApproved:
			out.QuotationsApproved++
			out.ApprovedRevenueCents += q.TotalCents
			when := q.DecidedAt
			if when.IsZero() {
				when = q.CreatedAt
			}
			byMonth[when.Time().Format("2006-01")] += q.TotalCents
		case model.QuotationRejected:
			out.QuotationsRejected++
		case model.QuotationDraft, model.QuotationSent:
			out.QuotationsPending++
		}
	}
	out.ConversionRate = ConversionRate(out.QuotationsApproved, out.QuotationsRejected)

	for month, amount := range byMonth {
		out.RevenueByMonth = append(out.RevenueByMonth, MonthAmount{Month: month, AmountCents: amount})
	}
	sort.Slice(out.RevenueByMonth, func(i, j int) bool {
		return out.RevenueByMonth[i].Month < out.RevenueByMonth[j].Month
	})
	for clientID, amount := range byClient {
		out.CostByClient = append(out.CostByClient, ClientAmount{ClientID: clientID, AmountCents: amount})
	}
	sort.Slice(out.CostByClient, func(i, j int) bool {
		if out.CostByClient[i].AmountCents != out.CostByClient[j].AmountCents {
			return out.CostByClient[i].AmountCents > out.CostByClient[j].AmountCents
		}
		return out.CostByClient[i].ClientID < out.CostByClient[j].ClientID
	})
	return out
}

type ResponseTimes struct {
	Visits              int     `json:"visits"`
	AvgMinutesToArrive  float64 `json:"avgMinutesToArrive"`
	AvgMinutesToResolve float64 `json:"avgMinutesToResolve"`
}

// EmergencyResponse averages the minutes from report to arrival and from report to resolution.
// Visits missing the relevant timestamp are left out of that average.
func EmergencyResponse(visits []model.EmergencyVisit) ResponseTimes {
	out := ResponseTimes{Visits: len(visits)}
	var arriveSum, resolveSum float64
	var arriveN, resolveN int
	for _, v := range visits {
		if v.ReportedAt.IsZero() {
			continue
		}
		if !v.ArrivedAt.IsZero() && v.ArrivedAt >= v.ReportedAt {
			arriveSum += float64(v.ArrivedAt-v.ReportedAt) / 60
			arriveN++
		}
		if !v.ResolvedAt.IsZero() && v.ResolvedAt >= v.ReportedAt {
			resolveSum += float64(v.ResolvedAt-v.ReportedAt) / 60
			resolveN++
		}
	}
	if arriveN > 0 {
		out.AvgMinutesToArrive = round2(arriveSum / float64(arriveN))
	}
	if resolveN > 0 {
		out.AvgMinutesToResolve = round2(resolveSum / float64(resolveN))
	}
	return out
}

const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

func RiskLevel(score int) string {
	switch {
	case score < 25:
		return RiskLow
	case score < 50:
		return RiskMedium
	case score < 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

type Risk struct {
	ElevatorID         string `json:"elevatorId"`
	Code               string `json:"code"`
	BuildingName       string `json:"buildingName"`
	Score              int    `json:"score"`
	Level              string `json:"level"`
	RecentEmergencies  int    `json:"recentEmergencies"`
	TrappedEmergencies int    `json:"trappedEmergencies"`
	OverdueMaintenance int    `json:"overdueMaintenance"`
	OpenCriticalOrders int    `json:"openCriticalOrders"`
	AgeYears           int    `json:"ageYears"`
}

const emergencyWindow = 90 * 24 * time.Hour

// RiskScores rates each elevator from 0 to 100 using recent emergencies, overdue maintenance,
// open critical work orders and installation age. Results are sorted by score, then code.
func RiskScores(elevators []model.Elevator, emergencies []model.EmergencyVisit, schedules []model.MaintenanceSchedule, workOrders []model.WorkOrder, now time.Time) []Risk {
	now = now.UTC()
	today := now.Format(model.DateLayout)
	since := now.Add(-emergencyWindow).Unix()

	byID := make(map[string]*Risk, len(elevators))
	out := make([]Risk, len(elevators))
	for i, e := range elevators {
		out[i] = Risk{ElevatorID: e.ID, Code: e.Code, BuildingName: e.BuildingName}
		if installed, err := model.ParseDate(e.InstalledOn); err == nil {
			out[i].AgeYears = yearsBetween(installed, now)
		}
		byID[e.ID] = &out[i]
	}

	for _, v := range emergencies {
		r, ok := byID[v.ElevatorID]
		if !ok || int64(v.ReportedAt) < since {
			continue
		}
		r.RecentEmergencies++
		if v.PassengersTrapped {
			r.TrappedEmergencies++
		}
	}
	for _, m := range schedules {
		r, ok := byID[m.ElevatorID]
		if !ok || !model.MaintenanceOpen(m.Status) {
			continue
		}
		if m.ScheduledDate != "" && m.ScheduledDate < today {
			r.OverdueMaintenance++
		}
	}
	for _, wo := range workOrders {
		r, ok := byID[wo.ElevatorID]
		if !ok {
			continue
		}
		if wo.Priority == model.PriorityCritical && model.WorkOrderOpen(wo.Status) {
			r.OpenCriticalOrders++
		}
	}

	for i := range out {
		r := &out[i]
		score := 15*r.RecentEmergencies + 10*r.TrappedEmergencies + 20*r.OverdueMaintenance + 10*r.OpenCriticalOrders
		switch {
		case r.AgeYears > 20:
			score += 15
		case r.AgeYears > 10:
			score += 5
		}
		if score > 100 {
			score = 100
		}
		r.Score = score
		r.Level = RiskLevel(score)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
