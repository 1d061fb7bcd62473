package reconcile

import (
	"testing"

	"lapakku/backend/internal/domain"
)

func line(productID string, qty int) domain.SaleLineItem {
	item := domain.SaleLineItem{Quantity: qty}
	if productID != "" {
		id := productID
		item.ProductID = &id
	}
	return item
}

func deltaMap(deltas []domain.StockDelta) map[string]int {
	out := make(map[string]int, len(deltas))
	for _, d := range deltas {
		out[d.ProductID] = d.Delta
	}
	return out
}

func TestComputeDeltasWorkedExample(t *testing.T) {
	original := []domain.SaleLineItem{line("A", 3), line("B", 2)}
	updated := []domain.SaleLineItem{line("A", 1), line("C", 4)}

	deltas := ComputeDeltas(original, updated)
	got := deltaMap(deltas)

	if len(got) != 3 {
		t.Fatalf("expected 3 deltas, got %d: %v", len(got), got)
	}
	if got["A"] != 2 {
		t.Fatalf("expected A:+2, got %d", got["A"])
	}
	if got["B"] != 2 {
		t.Fatalf("expected B:+2, got %d", got["B"])
	}
	if got["C"] != -4 {
		t.Fatalf("expected C:-4, got %d", got["C"])
	}
}

func TestComputeDeltasSortedByProduct(t *testing.T) {
	deltas := ComputeDeltas(
		[]domain.SaleLineItem{line("zz", 1), line("aa", 1)},
		nil,
	)
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	if deltas[0].ProductID != "aa" || deltas[1].ProductID != "zz" {
		t.Fatalf("expected sorted output, got %s then %s", deltas[0].ProductID, deltas[1].ProductID)
	}
}

func TestComputeDeltasSkipsAdHocLines(t *testing.T) {
	original := []domain.SaleLineItem{line("", 5), line("A", 2)}
	updated := []domain.SaleLineItem{line("", 9)}

	got := deltaMap(ComputeDeltas(original, updated))
	if len(got) != 1 {
		t.Fatalf("expected only the product-linked delta, got %v", got)
	}
	if got["A"] != 2 {
		t.Fatalf("expected A:+2, got %d", got["A"])
	}
}

func TestComputeDeltasAggregatesDuplicateProducts(t *testing.T) {
	// Two lines for the same product behave like one merged line.
	original := []domain.SaleLineItem{line("A", 2), line("A", 3)}
	updated := []domain.SaleLineItem{line("A", 4)}

	got := deltaMap(ComputeDeltas(original, updated))
	if len(got) != 1 || got["A"] != 1 {
		t.Fatalf("expected A:+1 after aggregation, got %v", got)
	}
}

func TestComputeDeltasOmitsUnchangedProducts(t *testing.T) {
	original := []domain.SaleLineItem{line("A", 2), line("B", 1)}
	updated := []domain.SaleLineItem{line("A", 2), line("B", 3)}

	got := deltaMap(ComputeDeltas(original, updated))
	if _, ok := got["A"]; ok {
		t.Fatalf("unchanged product must be omitted, got %v", got)
	}
	if got["B"] != -2 {
		t.Fatalf("expected B:-2, got %d", got["B"])
	}
}

func TestComputeDeltasEmptyInputs(t *testing.T) {
	if got := ComputeDeltas(nil, nil); len(got) != 0 {
		t.Fatalf("expected no deltas, got %v", got)
	}
}

func TestRestockDeltasUndoesSale(t *testing.T) {
	items := []domain.SaleLineItem{line("A", 3), line("B", 1), line("", 2)}
	got := deltaMap(RestockDeltas(items))
	if got["A"] != 3 || got["B"] != 1 || len(got) != 2 {
		t.Fatalf("expected full restock A:+3 B:+1, got %v", got)
	}
}
