package report

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lapakku/backend/internal/domain"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func sale(amount int64, payment string, location string, at time.Time) domain.SaleRecord {
	return domain.SaleRecord{
		TotalAmount:    decimal.NewFromInt(amount),
		PaymentMethod:  payment,
		MarketLocation: location,
		CreatedAt:      at,
	}
}

func cost(amount int64, at time.Time) domain.CostRecord {
	return domain.CostRecord{Amount: decimal.NewFromInt(amount), CreatedAt: at}
}

func TestComputeReportEmptyInputs(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rep := ComputeReport(nil, nil, now.AddDate(0, 0, -7), now, time.UTC)

	if rep.SalesCount != 0 {
		t.Fatalf("expected zero sales count, got %d", rep.SalesCount)
	}
	if !rep.TotalSales.IsZero() || !rep.TotalCosts.IsZero() || !rep.NetProfit.IsZero() {
		t.Fatalf("expected zero totals, got sales=%s costs=%s net=%s", rep.TotalSales, rep.TotalCosts, rep.NetProfit)
	}
	if !rep.AverageTicket.IsZero() {
		t.Fatalf("expected zero average ticket with no sales, got %s", rep.AverageTicket)
	}
	if rep.ProfitMargin != 0 {
		t.Fatalf("expected zero margin with no sales, got %f", rep.ProfitMargin)
	}
	if math.IsNaN(rep.ProfitMargin) || math.IsInf(rep.ProfitMargin, 0) {
		t.Fatalf("margin must be finite, got %f", rep.ProfitMargin)
	}
	if len(rep.DailySeries) != 0 || len(rep.PaymentBreakdown) != 0 || len(rep.LocationBreakdown) != 0 {
		t.Fatalf("expected empty series and breakdowns")
	}
	if rep.BestDay != nil {
		t.Fatalf("expected nil best day with no sales")
	}
}

func TestComputeReportTotalsAndAverages(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	periodStart := now.AddDate(0, 0, -7)

	sales := []domain.SaleRecord{
		sale(100, "cash", "Pasar Minggu", now.AddDate(0, 0, -2)),
		sale(50, "qris", "Pasar Minggu", now.AddDate(0, 0, -1)),
		sale(30, "cash", "Pasar Senen", now),
	}
	costs := []domain.CostRecord{cost(40, now.AddDate(0, 0, -1))}

	rep := ComputeReport(sales, costs, periodStart, now, time.UTC)

	if rep.SalesCount != 3 {
		t.Fatalf("expected 3 sales, got %d", rep.SalesCount)
	}
	if !rep.TotalSales.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("expected total sales 180, got %s", rep.TotalSales)
	}
	if !rep.TotalCosts.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected total costs 40, got %s", rep.TotalCosts)
	}
	if !rep.NetProfit.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("expected net profit 140, got %s", rep.NetProfit)
	}
	if !rep.AverageTicket.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected average ticket 60, got %s", rep.AverageTicket)
	}

	// 7 whole days in the window plus the current day.
	expectedDaily := decimal.NewFromInt(180).Div(decimal.NewFromInt(8))
	if !rep.AverageDailySales.Equal(expectedDaily) {
		t.Fatalf("expected average daily sales %s, got %s", expectedDaily, rep.AverageDailySales)
	}

	if len(rep.PaymentBreakdown) != 2 {
		t.Fatalf("expected 2 payment groups, got %d", len(rep.PaymentBreakdown))
	}
	if rep.PaymentBreakdown[0].Label != "cash" || !rep.PaymentBreakdown[0].Value.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("expected cash=130 first, got %s=%s", rep.PaymentBreakdown[0].Label, rep.PaymentBreakdown[0].Value)
	}
	if rep.PaymentBreakdown[1].Label != "qris" || !rep.PaymentBreakdown[1].Value.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected qris=50 second, got %s=%s", rep.PaymentBreakdown[1].Label, rep.PaymentBreakdown[1].Value)
	}
	if math.Abs(rep.PaymentBreakdown[0].Percentage-72.22) > 0.01 {
		t.Fatalf("expected cash share ~72.22, got %f", rep.PaymentBreakdown[0].Percentage)
	}
	if math.Abs(rep.PaymentBreakdown[1].Percentage-27.78) > 0.01 {
		t.Fatalf("expected qris share ~27.78, got %f", rep.PaymentBreakdown[1].Percentage)
	}
	sum := rep.PaymentBreakdown[0].Percentage + rep.PaymentBreakdown[1].Percentage
	if math.Abs(sum-100) > 0.01 {
		t.Fatalf("expected payment shares to sum to 100, got %f", sum)
	}
}

func TestComputeReportDailyGroupingUsesLocalCalendarDay(t *testing.T) {
	loc := mustLocation(t, "Asia/Jakarta")
	// 23:30 and 00:30 local are different UTC days but must bucket with
	// the local date.
	first := time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC)  // Mar 10 23:30 WIB
	second := time.Date(2026, 3, 10, 17, 30, 0, 0, time.UTC) // Mar 11 00:30 WIB
	now := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)

	sales := []domain.SaleRecord{
		sale(10, "cash", "", first),
		sale(20, "cash", "", second),
	}
	rep := ComputeReport(sales, nil, now.AddDate(0, 0, -7), now, loc)

	if len(rep.DailySeries) != 2 {
		t.Fatalf("expected 2 daily buckets, got %d", len(rep.DailySeries))
	}
	if rep.DailySeries[0].Date != "2026-03-10" || rep.DailySeries[1].Date != "2026-03-11" {
		t.Fatalf("unexpected bucket dates: %s, %s", rep.DailySeries[0].Date, rep.DailySeries[1].Date)
	}

	utcRep := ComputeReport(sales, nil, now.AddDate(0, 0, -7), now, time.UTC)
	if len(utcRep.DailySeries) != 1 {
		t.Fatalf("expected a single UTC bucket, got %d", len(utcRep.DailySeries))
	}
}

func TestComputeReportSameDayWindowDivisorIsOne(t *testing.T) {
	now := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	periodStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	rep := ComputeReport([]domain.SaleRecord{sale(90, "cash", "", now)}, nil, periodStart, now, time.UTC)
	if !rep.AverageDailySales.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected average daily sales 90 for same-day window, got %s", rep.AverageDailySales)
	}
}

func TestComputeReportBestDayTiesResolveToEarliest(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sales := []domain.SaleRecord{
		sale(70, "cash", "", now.AddDate(0, 0, -3)),
		sale(70, "cash", "", now.AddDate(0, 0, -1)),
		sale(5, "cash", "", now),
	}

	rep := ComputeReport(sales, nil, now.AddDate(0, 0, -7), now, time.UTC)
	if rep.BestDay == nil {
		t.Fatalf("expected a best day")
	}
	if rep.BestDay.Date != "2026-03-11" {
		t.Fatalf("expected earliest max day 2026-03-11, got %s", rep.BestDay.Date)
	}
	if !rep.BestDay.Total.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected best day total 70, got %s", rep.BestDay.Total)
	}
}

func TestComputeReportLocationBreakdownExcludesBlankLocations(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sales := []domain.SaleRecord{
		sale(100, "cash", "  Pasar Minggu  ", now),
		sale(60, "cash", "", now),
		sale(40, "cash", "   ", now),
	}

	rep := ComputeReport(sales, nil, now.AddDate(0, 0, -7), now, time.UTC)
	if len(rep.LocationBreakdown) != 1 {
		t.Fatalf("expected 1 location group, got %d", len(rep.LocationBreakdown))
	}
	entry := rep.LocationBreakdown[0]
	if entry.Label != "Pasar Minggu" {
		t.Fatalf("expected trimmed label, got %q", entry.Label)
	}
	if !entry.Value.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected location total 100, got %s", entry.Value)
	}
	// Percentage is against all sales, including the unlocated ones.
	if math.Abs(entry.Percentage-50) > 0.01 {
		t.Fatalf("expected 50%% share, got %f", entry.Percentage)
	}
}

func TestComputeReportDeterministicOrdering(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sales := []domain.SaleRecord{
		sale(50, "qris", "B", now.AddDate(0, 0, -2)),
		sale(50, "cash", "A", now.AddDate(0, 0, -1)),
		sale(50, "transfer", "C", now),
	}

	first := ComputeReport(sales, nil, now.AddDate(0, 0, -7), now, time.UTC)
	second := ComputeReport(sales, nil, now.AddDate(0, 0, -7), now, time.UTC)

	if len(first.PaymentBreakdown) != 3 || len(second.PaymentBreakdown) != 3 {
		t.Fatalf("expected 3 payment groups")
	}
	for i := range first.PaymentBreakdown {
		if first.PaymentBreakdown[i].Label != second.PaymentBreakdown[i].Label {
			t.Fatalf("ordering not deterministic: %s vs %s", first.PaymentBreakdown[i].Label, second.PaymentBreakdown[i].Label)
		}
	}
	// Equal values fall back to ascending label order.
	if first.PaymentBreakdown[0].Label != "cash" || first.PaymentBreakdown[1].Label != "qris" || first.PaymentBreakdown[2].Label != "transfer" {
		t.Fatalf("expected label tiebreak cash,qris,transfer got %s,%s,%s",
			first.PaymentBreakdown[0].Label, first.PaymentBreakdown[1].Label, first.PaymentBreakdown[2].Label)
	}
	for i := 1; i < len(first.DailySeries); i++ {
		if first.DailySeries[i-1].Date >= first.DailySeries[i].Date {
			t.Fatalf("daily series not ascending: %s >= %s", first.DailySeries[i-1].Date, first.DailySeries[i].Date)
		}
	}
}

func TestComputeReportDoesNotMutateInputs(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sales := []domain.SaleRecord{
		sale(30, "cash", "A", now),
		sale(20, "qris", "B", now),
	}
	before := make([]domain.SaleRecord, len(sales))
	copy(before, sales)

	_ = ComputeReport(sales, nil, now.AddDate(0, 0, -7), now, time.UTC)

	for i := range sales {
		if sales[i].PaymentMethod != before[i].PaymentMethod || !sales[i].TotalAmount.Equal(before[i].TotalAmount) {
			t.Fatalf("input slice mutated at %d", i)
		}
	}
}

func TestComputeReportNegativeNetProfitMargin(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rep := ComputeReport(
		[]domain.SaleRecord{sale(100, "cash", "", now)},
		[]domain.CostRecord{cost(150, now)},
		now.AddDate(0, 0, -7), now, time.UTC,
	)

	if !rep.NetProfit.Equal(decimal.NewFromInt(-50)) {
		t.Fatalf("expected net profit -50, got %s", rep.NetProfit)
	}
	if math.Abs(rep.ProfitMargin-(-50)) > 0.01 {
		t.Fatalf("expected -50%% margin, got %f", rep.ProfitMargin)
	}
}
