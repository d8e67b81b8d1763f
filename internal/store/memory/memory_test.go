package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ferremax/backend/internal/domain"
	"ferremax/backend/internal/store"
)

func mustSale(t *testing.T, s *Store, seller string, productID int64, qty int, price string) *domain.Sale {
	t.Helper()
	sale, err := s.CreateSale(context.Background(), domain.Sale{
		Seller: seller,
		SoldAt: time.Now().UTC(),
		Lines: []domain.SaleLine{
			{ProductID: productID, Qty: qty, UnitPrice: decimal.RequireFromString(price)},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return sale
}

func TestListSalesFiltersAndOrder(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first := mustSale(t, s, "Carlos", 1, 1, "189.50")
	second := mustSale(t, s, "Ana", 2, 1, "45.00")

	sales, err := s.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(sales))
	}
	// Newest first; equal timestamps fall back to descending id.
	if sales[0].ID != second.ID {
		t.Fatalf("expected sale %d first, got %d", second.ID, sales[0].ID)
	}

	bySeller, err := s.ListSales(ctx, domain.SaleFilter{Seller: "carlos"})
	if err != nil {
		t.Fatalf("list by seller: %v", err)
	}
	if len(bySeller) != 1 || bySeller[0].ID != first.ID {
		t.Fatalf("expected only Carlos's sale, got %+v", bySeller)
	}

	if _, err := s.CancelSale(ctx, first.ID, time.Now().UTC()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	cancelled, err := s.ListSales(ctx, domain.SaleFilter{Status: domain.SaleStatusCancelled})
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].ID != first.ID {
		t.Fatalf("expected one cancelled sale, got %+v", cancelled)
	}
}

func TestGetProductByCodeIsCaseInsensitive(t *testing.T) {
	s := NewSeeded()

	product, err := s.GetProductByCode(context.Background(), "her-001")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if product.Code != "HER-001" {
		t.Fatalf("unexpected product %q", product.Code)
	}
}

func TestListLowStockProducts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Drain product 1 down to its minimum.
	if _, err := s.AdjustStock(ctx, 1, 5, domain.StockModeSet); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	low, err := s.ListLowStockProducts(ctx)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ID != 1 {
		t.Fatalf("expected product 1 in low stock list, got %+v", low)
	}
}

func TestDeleteProductReferencedBySaleConflicts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	mustSale(t, s, "Carlos", 3, 1, "78.90")

	if err := s.DeleteProduct(ctx, 3); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting sold product, got %v", err)
	}
	if err := s.DeleteProduct(ctx, 7); err != nil {
		t.Fatalf("expected unreferenced product delete to pass, got %v", err)
	}
}

func TestCashCutByDate(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	day := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.GetCashCutByDate(ctx, day); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found before cut, got %v", err)
	}

	created, err := s.CreateCashCut(ctx, domain.CashCut{
		Date:         day,
		Responsible:  "Gerente",
		TotalRevenue: decimal.RequireFromString("1234.56"),
	})
	if err != nil {
		t.Fatalf("create cash cut: %v", err)
	}

	found, err := s.GetCashCutByDate(ctx, day.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("get by date: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected cut %d, got %d", created.ID, found.ID)
	}
}

func TestSalesStatsWindow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale := mustSale(t, s, "Carlos", 2, 2, "45.00")
	mustSale(t, s, "Ana", 2, 1, "45.00")
	if _, err := s.CancelSale(ctx, sale.ID, time.Now().UTC()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	today := time.Now().UTC()
	stats, err := s.SalesStats(ctx, today, today)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 2 || stats.Completed != 1 || stats.Cancelled != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !stats.Revenue.Equal(decimal.RequireFromString("45.00")) {
		t.Fatalf("expected revenue 45.00, got %s", stats.Revenue)
	}
}
