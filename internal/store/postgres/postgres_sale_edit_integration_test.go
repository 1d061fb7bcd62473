package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lapakku/backend/internal/domain"
	"lapakku/backend/internal/reconcile"
)

func TestSaleEditTransactionAdjustsStock(t *testing.T) {
	databaseURL := os.Getenv("LAPAKKU_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set LAPAKKU_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	userID := fmt.Sprintf("user-edit-it-%d", stamp)
	productID := fmt.Sprintf("prod-edit-it-%d", stamp)
	saleID := fmt.Sprintf("sale-edit-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE user_id = $1`, userID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:        productID,
		UserID:    userID,
		Name:      "Produk Edit IT",
		Category:  "snack",
		Price:     decimal.NewFromInt(12000),
		UnitCost:  decimal.NewFromInt(6000),
		Quantity:  10,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	line := func(id string, qty int) domain.SaleLineItem {
		pid := productID
		return domain.SaleLineItem{
			ID:          id,
			SaleID:      saleID,
			ProductID:   &pid,
			ProductName: "Produk Edit IT",
			Quantity:    qty,
			UnitPrice:   decimal.NewFromInt(12000),
		}
	}

	original := domain.SaleRecord{
		ID:            saleID,
		UserID:        userID,
		TotalAmount:   decimal.NewFromInt(36000),
		PaymentMethod: "cash",
		CreatedAt:     time.Now().UTC(),
		Items:         []domain.SaleLineItem{line(saleID+"-l1", 3)},
	}
	if _, err := s.CreateSale(ctx, original); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if qty := productQty(ctx, t, s, productID); qty != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", qty)
	}

	edited := original
	edited.Items = []domain.SaleLineItem{line(saleID+"-l2", 1)}
	edited.TotalAmount = decimal.NewFromInt(12000)
	deltas := reconcile.ComputeDeltas(original.Items, edited.Items)

	saved, err := s.ApplySaleEdit(ctx, edited, deltas)
	if err != nil {
		t.Fatalf("apply sale edit: %v", err)
	}
	if len(saved.Items) != 1 || saved.Items[0].Quantity != 1 {
		t.Fatalf("unexpected items after edit: %+v", saved.Items)
	}
	if qty := productQty(ctx, t, s, productID); qty != 9 {
		t.Fatalf("expected stock 9 after shrinking the sale, got %d", qty)
	}

	// A delta that would drive stock negative must fail and change nothing.
	overdraw := []domain.StockDelta{{ProductID: productID, Delta: -50}}
	if _, err := s.ApplySaleEdit(ctx, edited, overdraw); err == nil {
		t.Fatalf("expected overdraw edit to fail")
	}
	if qty := productQty(ctx, t, s, productID); qty != 9 {
		t.Fatalf("expected stock untouched after failed edit, got %d", qty)
	}

	restock := reconcile.RestockDeltas(saved.Items)
	if err := s.DeleteSale(ctx, userID, saleID, restock); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if qty := productQty(ctx, t, s, productID); qty != 10 {
		t.Fatalf("expected full restock after delete, got %d", qty)
	}
}

func productQty(ctx context.Context, t *testing.T, s *Store, productID string) int {
	t.Helper()
	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity
		FROM products
		WHERE id = $1
	`, productID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	return qty
}
