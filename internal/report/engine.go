// Package report computes aggregated sales and cost figures for a
// reporting window. It is pure computation: callers fetch the input
// records and supply the window boundaries plus the calendar location.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lapakku/backend/internal/domain"
)

const dateLayout = "2006-01-02"

// ComputeReport aggregates the given sales and costs. periodStart and
// now bound the window, loc decides which calendar day each sale
// belongs to. The inputs are treated as already filtered to the
// window; the function never mutates them, and identical inputs yield
// an identical report including element ordering.
func ComputeReport(sales []domain.SaleRecord, costs []domain.CostRecord, periodStart, now time.Time, loc *time.Location) domain.Report {
	rep := domain.Report{
		SalesCount:        len(sales),
		TotalSales:        decimal.Zero,
		TotalCosts:        decimal.Zero,
		NetProfit:         decimal.Zero,
		AverageTicket:     decimal.Zero,
		AverageDailySales: decimal.Zero,
		DailySeries:       []domain.DailyAggregate{},
		PaymentBreakdown:  []domain.CategoryBreakdown{},
		LocationBreakdown: []domain.CategoryBreakdown{},
	}

	for _, s := range sales {
		rep.TotalSales = rep.TotalSales.Add(s.TotalAmount)
	}
	for _, c := range costs {
		rep.TotalCosts = rep.TotalCosts.Add(c.Amount)
	}
	rep.NetProfit = rep.TotalSales.Sub(rep.TotalCosts)

	if rep.SalesCount > 0 {
		rep.AverageTicket = rep.TotalSales.Div(decimal.NewFromInt(int64(rep.SalesCount)))
	}
	if rep.TotalSales.IsPositive() {
		margin, _ := rep.NetProfit.Div(rep.TotalSales).Mul(decimal.NewFromInt(100)).Float64()
		rep.ProfitMargin = margin
	}

	rep.DailySeries = dailySeries(sales, loc)
	rep.BestDay = bestDay(rep.DailySeries)

	days := daySpan(periodStart, now, loc) + 1
	rep.AverageDailySales = rep.TotalSales.Div(decimal.NewFromInt(int64(days)))

	rep.PaymentBreakdown = breakdown(sales, rep.TotalSales, func(s domain.SaleRecord) (string, bool) {
		return s.PaymentMethod, true
	})
	rep.LocationBreakdown = breakdown(sales, rep.TotalSales, func(s domain.SaleRecord) (string, bool) {
		label := strings.TrimSpace(s.MarketLocation)
		return label, label != ""
	})

	return rep
}

func dailySeries(sales []domain.SaleRecord, loc *time.Location) []domain.DailyAggregate {
	buckets := make(map[string]*domain.DailyAggregate)
	for _, s := range sales {
		day := s.CreatedAt.In(loc).Format(dateLayout)
		agg, ok := buckets[day]
		if !ok {
			agg = &domain.DailyAggregate{Date: day, Total: decimal.Zero}
			buckets[day] = agg
		}
		agg.SalesCount++
		agg.Total = agg.Total.Add(s.TotalAmount)
	}
	series := make([]domain.DailyAggregate, 0, len(buckets))
	for _, agg := range buckets {
		series = append(series, *agg)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })
	return series
}

// bestDay picks the aggregate with the highest total; the series is
// date-sorted, so strict comparison makes ties resolve to the earliest day.
func bestDay(series []domain.DailyAggregate) *domain.DailyAggregate {
	if len(series) == 0 {
		return nil
	}
	best := series[0]
	for _, agg := range series[1:] {
		if agg.Total.GreaterThan(best.Total) {
			best = agg
		}
	}
	return &best
}

// daySpan counts whole calendar days between the two instants in loc.
// The local dates are re-anchored in UTC before subtracting so DST
// transitions cannot produce an off-by-one.
func daySpan(from, to time.Time, loc *time.Location) int {
	span := int(anchorDay(to, loc).Sub(anchorDay(from, loc)).Hours() / 24)
	if span < 0 {
		return 0
	}
	return span
}

func anchorDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func breakdown(sales []domain.SaleRecord, totalSales decimal.Decimal, key func(domain.SaleRecord) (string, bool)) []domain.CategoryBreakdown {
	sums := make(map[string]decimal.Decimal)
	for _, s := range sales {
		label, ok := key(s)
		if !ok {
			continue
		}
		sums[label] = sums[label].Add(s.TotalAmount)
	}
	out := make([]domain.CategoryBreakdown, 0, len(sums))
	for label, value := range sums {
		entry := domain.CategoryBreakdown{Label: label, Value: value}
		if totalSales.IsPositive() {
			pct, _ := value.Div(totalSales).Mul(decimal.NewFromInt(100)).Float64()
			entry.Percentage = pct
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Value.Cmp(out[j].Value); c != 0 {
			return c > 0
		}
		return out[i].Label < out[j].Label
	})
	return out
}
