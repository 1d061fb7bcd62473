// Package reconcile computes the stock adjustments needed when a
// sale's line items are edited after the fact.
package reconcile

import (
	"sort"

	"lapakku/backend/internal/domain"
)

// ComputeDeltas diffs two line-item sets by product and returns one
// signed stock delta per product whose net sold quantity changed.
//
// Quantities are aggregated per product on each side before diffing,
// so duplicate lines for the same product behave the same as a single
// merged line. Lines without a product id are ad-hoc entries and never
// touch stock. The delta is original minus updated: a removed or
// shrunk line restores stock (positive), a new or grown line consumes
// more (negative). Products with a net delta of zero are omitted, and
// the result is sorted by product id.
func ComputeDeltas(original, updated []domain.SaleLineItem) []domain.StockDelta {
	origQty := sumByProduct(original)
	updQty := sumByProduct(updated)

	seen := make(map[string]struct{}, len(origQty)+len(updQty))
	deltas := make([]domain.StockDelta, 0, len(origQty)+len(updQty))
	appendDelta := func(productID string) {
		if _, ok := seen[productID]; ok {
			return
		}
		seen[productID] = struct{}{}
		if d := origQty[productID] - updQty[productID]; d != 0 {
			deltas = append(deltas, domain.StockDelta{ProductID: productID, Delta: d})
		}
	}
	for id := range origQty {
		appendDelta(id)
	}
	for id := range updQty {
		appendDelta(id)
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].ProductID < deltas[j].ProductID })
	return deltas
}

// RestockDeltas returns the adjustments that undo a sale entirely,
// used when a sale is deleted.
func RestockDeltas(items []domain.SaleLineItem) []domain.StockDelta {
	return ComputeDeltas(items, nil)
}

func sumByProduct(items []domain.SaleLineItem) map[string]int {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == nil || *item.ProductID == "" {
			continue
		}
		totals[*item.ProductID] += item.Quantity
	}
	return totals
}
