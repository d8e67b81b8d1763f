package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"ferremax/backend/internal/cache"
	"ferremax/backend/internal/domain"
	"ferremax/backend/internal/store"
	"ferremax/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// totalTolerance is the maximum allowed drift between a declared sale total
// and the sum of its lines, and between reported and recomputed cash cut
// revenue.
var totalTolerance = decimal.NewFromFloat(0.01)

type Service struct {
	repo       store.Repository
	summaries  cache.SummaryCache
	summaryTTL time.Duration
}

func New(repo store.Repository, summaries cache.SummaryCache, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		summaries:  summaries,
		summaryTTL: summaryTTL,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	category, err := s.repo.GetCategoryByID(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	return *category, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("category name required: %w", store.ErrValidation)
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Category{}, fmt.Errorf("category name %q already exists: %w", name, store.ErrConflict)
		}
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", fmt.Sprintf("%d", created.ID), created.Name)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, req domain.CategoryUpdateRequest) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	existing, err := s.repo.GetCategoryByID(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Category{}, fmt.Errorf("category name required: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}

	saved, err := s.repo.UpdateCategory(ctx, updated)
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_update", "category", fmt.Sprintf("%d", saved.ID), saved.Name)
	return *saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("category has products assigned: %w", store.ErrConflict)
		}
		return err
	}

	s.logAudit(ctx, "category_delete", "category", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListCategoryProducts(ctx context.Context, id int64) ([]domain.Product, error) {
	if _, err := s.repo.GetCategoryByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, domain.ProductFilter{CategoryID: &id})
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplierByID(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" {
		return domain.Supplier{}, fmt.Errorf("supplier name and email required: %w", store.ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return domain.Supplier{}, fmt.Errorf("supplier email is invalid: %w", store.ErrValidation)
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    name,
		Contact: strings.TrimSpace(req.Contact),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   email,
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Supplier{}, fmt.Errorf("supplier email %q already exists: %w", email, store.ErrConflict)
		}
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", fmt.Sprintf("%d", created.ID), created.Name)
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	existing, err := s.repo.GetSupplierByID(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Supplier{}, fmt.Errorf("supplier name required: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Contact != nil {
		updated.Contact = strings.TrimSpace(*req.Contact)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" || !strings.Contains(email, "@") {
			return domain.Supplier{}, fmt.Errorf("supplier email is invalid: %w", store.ErrValidation)
		}
		updated.Email = email
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	saved, err := s.repo.UpdateSupplier(ctx, updated)
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_update", "supplier", fmt.Sprintf("%d", saved.ID), saved.Name)
	return *saved, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("supplier has products assigned: %w", store.ErrConflict)
		}
		return err
	}

	s.logAudit(ctx, "supplier_delete", "supplier", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if name == "" || code == "" {
		return domain.Product{}, fmt.Errorf("product name and code required: %w", store.ErrValidation)
	}
	if req.Price.IsNegative() || req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, fmt.Errorf("price, stock and min_stock must not be negative: %w", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       name,
		Code:       code,
		Price:      req.Price,
		Stock:      req.Stock,
		MinStock:   req.MinStock,
		CategoryID: req.CategoryID,
		SupplierID: req.SupplierID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Product{}, fmt.Errorf("product code %q already exists: %w", code, store.ErrConflict)
		}
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", fmt.Sprintf("%d", created.ID), fmt.Sprintf("code=%s,price=%s,stock=%d", created.Code, created.Price.StringFixed(2), created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("product name required: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.Code))
		if code == "" {
			return domain.Product{}, fmt.Errorf("product code required: %w", store.ErrValidation)
		}
		updated.Code = code
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, fmt.Errorf("price must not be negative: %w", store.ErrValidation)
		}
		updated.Price = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
		}
		updated.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, fmt.Errorf("min_stock must not be negative: %w", store.ErrValidation)
		}
		updated.MinStock = *req.MinStock
	}
	if req.CategoryID != nil {
		updated.CategoryID = req.CategoryID
	}
	if req.SupplierID != nil {
		updated.SupplierID = req.SupplierID
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Product{}, fmt.Errorf("product code %q already exists: %w", updated.Code, store.ErrConflict)
		}
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", fmt.Sprintf("%d", saved.ID), fmt.Sprintf("code=%s,price=%s,stock=%d", saved.Code, saved.Price.StringFixed(2), saved.Stock))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("product has recorded sales: %w", store.ErrConflict)
		}
		return err
	}

	s.logAudit(ctx, "product_delete", "product", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) AdjustStock(ctx context.Context, productID int64, req domain.StockAdjustRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	switch mode {
	case domain.StockModeSet, domain.StockModeIncrement, domain.StockModeDecrement:
	default:
		return domain.Product{}, fmt.Errorf("stock mode must be set, increment or decrement: %w", store.ErrValidation)
	}

	adjusted, err := s.repo.AdjustStock(ctx, productID, req.Qty, mode)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", fmt.Sprintf("%d", adjusted.ID), fmt.Sprintf("mode=%s,qty=%d,stock=%d", mode, req.Qty, adjusted.Stock))
	return *adjusted, nil
}

// CreateSale runs the fast-fail validation pass against fresh product reads,
// then hands the sale to the store, whose transaction is the authority on
// stock. Duplicate products across lines stay separate lines.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authentication required")
	}

	seller := strings.TrimSpace(req.Seller)
	if seller == "" {
		seller = actor.Name
	}
	if seller == "" {
		seller = actor.Email
	}

	if len(req.Lines) == 0 {
		return domain.Sale{}, fmt.Errorf("sale requires at least one line: %w", store.ErrValidation)
	}

	computed := decimal.Zero
	for i, line := range req.Lines {
		if line.Qty < 1 {
			return domain.Sale{}, fmt.Errorf("line %d: qty must be at least 1: %w", i+1, store.ErrValidation)
		}
		if !line.UnitPrice.IsPositive() {
			return domain.Sale{}, fmt.Errorf("line %d: unit price must be positive: %w", i+1, store.ErrValidation)
		}
		computed = computed.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Qty))))
	}
	if req.Total.Sub(computed).Abs().GreaterThan(totalTolerance) {
		return domain.Sale{}, fmt.Errorf("declared total %s does not match line total %s: %w",
			req.Total.StringFixed(2), computed.StringFixed(2), store.ErrValidation)
	}

	// Fast-fail pass: reject obviously bad lines before opening the store
	// transaction. The transaction re-checks stock, so this can only be
	// pessimistic, never authoritative.
	for _, line := range req.Lines {
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Sale{}, fmt.Errorf("product %d: %w", line.ProductID, store.ErrNotFound)
			}
			return domain.Sale{}, err
		}
		if !product.HasStock(line.Qty) {
			return domain.Sale{}, fmt.Errorf("insufficient stock for %q (have %d, want %d): %w",
				product.Name, product.Stock, line.Qty, store.ErrInsufficientStock)
		}
	}

	lines := make([]domain.SaleLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, domain.SaleLine{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
		})
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		Seller: seller,
		SoldAt: time.Now().UTC(),
		Lines:  lines,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", fmt.Sprintf("%d", created.ID), fmt.Sprintf("seller=%s,total=%s,lines=%d", created.Seller, created.Total.StringFixed(2), len(created.Lines)))
	s.invalidateSummary(ctx, created.SoldAt)

	return *created, nil
}

func (s *Service) CancelSale(ctx context.Context, id int64) (domain.Sale, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Sale{}, fmt.Errorf("authentication required")
	}

	cancelled, err := s.repo.CancelSale(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_cancel", "sale", fmt.Sprintf("%d", cancelled.ID), fmt.Sprintf("total=%s", cancelled.Total.StringFixed(2)))
	s.invalidateSummary(ctx, cancelled.SoldAt)

	return *cancelled, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, date string, seller string, status string, limit int) ([]domain.Sale, error) {
	filter := domain.SaleFilter{
		Seller: strings.TrimSpace(seller),
		Status: strings.TrimSpace(status),
		Limit:  limit,
	}
	if filter.Status != "" && filter.Status != domain.SaleStatusCompleted && filter.Status != domain.SaleStatusCancelled {
		return nil, fmt.Errorf("status must be completed or cancelled: %w", store.ErrValidation)
	}
	if strings.TrimSpace(date) != "" {
		day, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		filter.Day = &day
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) TodaySales(ctx context.Context) ([]domain.Sale, error) {
	today := startOfDay(time.Now().UTC())
	return s.repo.ListSales(ctx, domain.SaleFilter{Day: &today})
}

func (s *Service) SalesStats(ctx context.Context, from string, to string) (domain.SalesStats, error) {
	fromDay, toDay, err := parseRange(from, to)
	if err != nil {
		return domain.SalesStats{}, err
	}
	return s.repo.SalesStats(ctx, fromDay, toDay)
}

// Summarize builds the reconciliation view of one calendar day (UTC). Results
// are cached per date with a short TTL; sale and cash cut writes invalidate
// the entry, so a cached value is at most summaryTTL behind a write that
// bypassed invalidation.
func (s *Service) Summarize(ctx context.Context, date string) (domain.DailySummary, error) {
	day := startOfDay(time.Now().UTC())
	if strings.TrimSpace(date) != "" {
		parsed, err := parseDay(date)
		if err != nil {
			return domain.DailySummary{}, err
		}
		day = parsed
	}
	key := day.Format("2006-01-02")

	if cached, found, err := s.summaries.Get(ctx, key); err == nil && found {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: summary cache get %s: %v", key, err)
	}

	summary, err := s.computeSummary(ctx, day)
	if err != nil {
		return domain.DailySummary{}, err
	}

	if err := s.summaries.Set(ctx, key, &summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache set %s: %v", key, err)
	}

	return summary, nil
}

func (s *Service) computeSummary(ctx context.Context, day time.Time) (domain.DailySummary, error) {
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{Day: &day})
	if err != nil {
		return domain.DailySummary{}, err
	}

	summary := domain.DailySummary{
		Date:           day.Format("2006-01-02"),
		TotalRevenue:   decimal.Zero,
		CancelledValue: decimal.Zero,
		AverageSale:    decimal.Zero,
	}
	for _, sale := range sales {
		switch sale.Status {
		case domain.SaleStatusCompleted:
			summary.CompletedCount++
			summary.TotalRevenue = summary.TotalRevenue.Add(sale.Total)
			for _, line := range sale.Lines {
				summary.UnitsSold += line.Qty
			}
		case domain.SaleStatusCancelled:
			summary.CancelledCount++
			summary.CancelledValue = summary.CancelledValue.Add(sale.Total)
		}
	}

	if summary.CompletedCount > 0 {
		summary.AverageSale = summary.TotalRevenue.Div(decimal.NewFromInt(int64(summary.CompletedCount))).Round(2)
	}
	if total := summary.CompletedCount + summary.CancelledCount; total > 0 {
		rate := float64(summary.CompletedCount) / float64(total) * 100
		summary.SuccessRate = math.Round(rate*10) / 10
	}

	if _, err := s.repo.GetCashCutByDate(ctx, day); err == nil {
		summary.CashCutDone = true
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.DailySummary{}, err
	}

	return summary, nil
}

// RecordCashCut stores the caller's reported figures for the day. Uniqueness
// per day is the store's job; a discrepancy between the reported and the
// recomputed revenue does not block the cut, it only attaches a warning.
func (s *Service) RecordCashCut(ctx context.Context, req domain.CashCutCreateRequest) (domain.CashCutResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.CashCutResponse{}, err
	}

	responsible := strings.TrimSpace(req.Responsible)
	if responsible == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			responsible = actor.Name
		}
	}
	if responsible == "" {
		return domain.CashCutResponse{}, fmt.Errorf("responsible required: %w", store.ErrValidation)
	}

	day := startOfDay(time.Now().UTC())
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := parseDay(req.Date)
		if err != nil {
			return domain.CashCutResponse{}, err
		}
		day = parsed
	}

	actual, err := s.computeSummary(ctx, day)
	if err != nil {
		return domain.CashCutResponse{}, err
	}

	created, err := s.repo.CreateCashCut(ctx, domain.CashCut{
		Date:           day,
		Responsible:    responsible,
		CompletedCount: req.CompletedCount,
		CancelledCount: req.CancelledCount,
		TotalRevenue:   req.TotalRevenue,
		UnitsSold:      req.UnitsSold,
	})
	if err != nil {
		return domain.CashCutResponse{}, err
	}

	resp := domain.CashCutResponse{CashCut: *created}
	if diff := req.TotalRevenue.Sub(actual.TotalRevenue).Abs(); diff.GreaterThan(totalTolerance) {
		resp.Warning = fmt.Sprintf("reported revenue %s differs from recorded sales %s by %s",
			req.TotalRevenue.StringFixed(2), actual.TotalRevenue.StringFixed(2), diff.StringFixed(2))
		log.Printf("[service] WARN: cash cut %s: %s", created.Date.Format("2006-01-02"), resp.Warning)
	}

	s.logAudit(ctx, "cash_cut_create", "cash_cut", fmt.Sprintf("%d", created.ID), fmt.Sprintf("date=%s,revenue=%s", created.Date.Format("2006-01-02"), created.TotalRevenue.StringFixed(2)))
	s.invalidateSummary(ctx, created.Date)

	return resp, nil
}

func (s *Service) GetCashCut(ctx context.Context, id int64) (domain.CashCut, error) {
	cut, err := s.repo.GetCashCutByID(ctx, id)
	if err != nil {
		return domain.CashCut{}, err
	}
	return *cut, nil
}

func (s *Service) TodayCashCut(ctx context.Context) (domain.CashCut, error) {
	cut, err := s.repo.GetCashCutByDate(ctx, startOfDay(time.Now().UTC()))
	if err != nil {
		return domain.CashCut{}, err
	}
	return *cut, nil
}

func (s *Service) ListCashCuts(ctx context.Context, date string, responsible string, limit int) ([]domain.CashCut, error) {
	filter := domain.CashCutFilter{
		Responsible: strings.TrimSpace(responsible),
		Limit:       limit,
	}
	if strings.TrimSpace(date) != "" {
		day, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		filter.Day = &day
	}
	return s.repo.ListCashCuts(ctx, filter)
}

func (s *Service) CashCutStats(ctx context.Context, from string, to string) (domain.CashCutStats, error) {
	fromDay, toDay, err := parseRange(from, to)
	if err != nil {
		return domain.CashCutStats{}, err
	}
	return s.repo.CashCutStats(ctx, fromDay, toDay)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	day := startOfDay(time.Now().UTC())
	if strings.TrimSpace(date) != "" {
		parsed, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		day = parsed
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, day, limit)
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleSeller
	}
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("user name and a valid email required: %w", store.ErrValidation)
	}
	if role != domain.RoleAdmin && role != domain.RoleSeller {
		return domain.User{}, fmt.Errorf("role must be admin or seller: %w", store.ErrValidation)
	}
	if len(req.Password) < 6 {
		return domain.User{}, fmt.Errorf("password must be at least 6 characters: %w", store.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Name:      name,
		Email:     email,
		Password:  string(hash),
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.User{}, fmt.Errorf("email %q already registered: %w", email, store.ErrConflict)
		}
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", "user", fmt.Sprintf("%d", created.ID), fmt.Sprintf("email=%s,role=%s", created.Email, created.Role))
	return toUser(*created), nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, toUser(account))
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}

	account, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return toUser(*account), nil
}

func (s *Service) UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (domain.User, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}

	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	updated := *existing
	updated.Password = ""
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.User{}, fmt.Errorf("user name required: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Role != nil {
		role := strings.TrimSpace(*req.Role)
		if role != domain.RoleAdmin && role != domain.RoleSeller {
			return domain.User{}, fmt.Errorf("role must be admin or seller: %w", store.ErrValidation)
		}
		updated.Role = role
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			return domain.User{}, fmt.Errorf("password must be at least 6 characters: %w", store.ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		updated.Password = string(hash)
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_update", "user", fmt.Sprintf("%d", saved.ID), fmt.Sprintf("role=%s,active=%t", saved.Role, saved.Active))
	return toUser(*saved), nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if actor, ok := ActorFromContext(ctx); ok && strings.EqualFold(actor.Email, existing.Email) {
		return fmt.Errorf("cannot delete own account: %w", store.ErrValidation)
	}

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "user_delete", "user", fmt.Sprintf("%d", id), existing.Email)
	return nil
}

func toUser(account domain.UserAccount) domain.User {
	return domain.User{
		ID:        account.ID,
		Name:      account.Name,
		Email:     account.Email,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:         xid.New("audit"),
		ActorEmail: actor.Email,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

func (s *Service) invalidateSummary(ctx context.Context, at time.Time) {
	key := startOfDay(at).Format("2006-01-02")
	if err := s.summaries.Invalidate(ctx, key); err != nil {
		log.Printf("[service] WARN: summary cache invalidate %s: %v", key, err)
	}
}

func parseDay(raw string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", store.ErrValidation)
	}
	return day.UTC(), nil
}

func parseRange(from string, to string) (time.Time, time.Time, error) {
	toDay := startOfDay(time.Now().UTC())
	fromDay := toDay.AddDate(0, 0, -30)

	if strings.TrimSpace(from) != "" {
		parsed, err := parseDay(from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		fromDay = parsed
	}
	if strings.TrimSpace(to) != "" {
		parsed, err := parseDay(to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		toDay = parsed
	}
	if fromDay.After(toDay) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must not be after to: %w", store.ErrValidation)
	}
	return fromDay, toDay, nil
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
