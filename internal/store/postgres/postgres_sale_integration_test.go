package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ferremax/backend/internal/domain"
	"ferremax/backend/internal/store"
)

func TestCancelSaleRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("FERREMAX_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set FERREMAX_TEST_DATABASE_URL to run postgres integration test")
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
	code := fmt.Sprintf("IT-%d", stamp)
	price := decimal.RequireFromString("45.00")

	product, err := s.CreateProduct(ctx, domain.Product{
		Name:     "Producto integración",
		Code:     code,
		Price:    price,
		Stock:    10,
		MinStock: 2,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id IN (SELECT sale_id FROM sale_lines WHERE product_id = $1)`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	sale, err := s.CreateSale(ctx, domain.Sale{
		Seller: "integración",
		SoldAt: time.Now().UTC(),
		Lines: []domain.SaleLine{
			{ProductID: product.ID, Qty: 3, UnitPrice: price},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, sale.ID)
	})

	after, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", after.Stock)
	}

	// Overselling against live stock must fail without touching the row.
	if _, err := s.CreateSale(ctx, domain.Sale{
		Seller: "integración",
		SoldAt: time.Now().UTC(),
		Lines: []domain.SaleLine{
			{ProductID: product.ID, Qty: 100, UnitPrice: price},
		},
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	after, _ = s.GetProductByID(ctx, product.ID)
	if after.Stock != 7 {
		t.Fatalf("expected stock unchanged at 7 after failed oversell, got %d", after.Stock)
	}

	cancelled, err := s.CancelSale(ctx, sale.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if cancelled.Status != domain.SaleStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	after, err = s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product after cancel: %v", err)
	}
	if after.Stock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", after.Stock)
	}

	if _, err := s.CancelSale(ctx, sale.ID, time.Now().UTC()); !errors.Is(err, store.ErrAlreadyCancelled) {
		t.Fatalf("expected already cancelled, got %v", err)
	}
}

func TestCashCutUniquePerDay(t *testing.T) {
	databaseURL := os.Getenv("FERREMAX_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set FERREMAX_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	// A far-future date keeps the test isolated from real data.
	day := time.Date(2090, time.March, 14, 0, 0, 0, 0, time.UTC)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_cuts WHERE cut_date = $1`, day)
	})

	first, err := s.CreateCashCut(ctx, domain.CashCut{
		Date:         day,
		Responsible:  "integración",
		TotalRevenue: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("create cash cut: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("expected assigned cash cut id")
	}

	if _, err := s.CreateCashCut(ctx, domain.CashCut{
		Date:         day,
		Responsible:  "integración",
		TotalRevenue: decimal.Zero,
	}); !errors.Is(err, store.ErrDuplicateCashCut) {
		t.Fatalf("expected duplicate cash cut error, got %v", err)
	}
}
