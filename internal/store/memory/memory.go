package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"ferremax/backend/internal/domain"
	"ferremax/backend/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	categoriesByID map[int64]domain.Category
	suppliersByID  map[int64]domain.Supplier
	productsByID   map[int64]domain.Product
	salesByID      map[int64]domain.Sale
	cashCutsByID   map[int64]domain.CashCut
	cashCutByDay   map[string]int64
	auditLogs      []domain.AuditLog
	usersByEmail   map[string]domain.UserAccount

	nextCategoryID int64
	nextSupplierID int64
	nextProductID  int64
	nextSaleID     int64
	nextLineID     int64
	nextCashCutID  int64
	nextUserID     int64
}

func New() *Store {
	return &Store{
		categoriesByID: make(map[int64]domain.Category),
		suppliersByID:  make(map[int64]domain.Supplier),
		productsByID:   make(map[int64]domain.Product),
		salesByID:      make(map[int64]domain.Sale),
		cashCutsByID:   make(map[int64]domain.CashCut),
		cashCutByDay:   make(map[string]int64),
		auditLogs:      make([]domain.AuditLog, 0, 128),
		usersByEmail:   make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers(s *Store, now time.Time) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
	}{
		{"Administrador", "admin@ferremax.local", adminPwd, domain.RoleAdmin},
		{"Vendedor", "vendedor@ferremax.local", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		s.nextUserID++
		s.usersByEmail[u.email] = domain.UserAccount{
			ID:        s.nextUserID,
			Name:      u.name,
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seedUsers(s, now)

	categories := []domain.Category{
		{Name: "Herramientas", Description: "Herramientas manuales y de medición"},
		{Name: "Electricidad", Description: "Material eléctrico"},
		{Name: "Pinturas", Description: "Pinturas y accesorios"},
		{Name: "Fontanería", Description: "Tubería y conexiones"},
	}
	for i := range categories {
		s.nextCategoryID++
		categories[i].ID = s.nextCategoryID
		categories[i].CreatedAt = now
		categories[i].UpdatedAt = now
		s.categoriesByID[categories[i].ID] = categories[i]
	}

	suppliers := []domain.Supplier{
		{Name: "Ferretera del Norte", Contact: "Luis Mendoza", Phone: "555-0101", Email: "ventas@ferreteranorte.mx", Address: "Av. Industrial 420"},
		{Name: "Distribuidora Torres", Contact: "Ana Torres", Phone: "555-0177", Email: "contacto@distorres.mx", Address: "Calle Juárez 18"},
	}
	for i := range suppliers {
		s.nextSupplierID++
		suppliers[i].ID = s.nextSupplierID
		suppliers[i].CreatedAt = now
		suppliers[i].UpdatedAt = now
		s.suppliersByID[suppliers[i].ID] = suppliers[i]
	}

	herramientas, electricidad, pinturas := int64(1), int64(2), int64(3)
	norte, torres := int64(1), int64(2)
	products := []domain.Product{
		{Name: "Martillo de uña 16oz", Code: "HER-001", Price: dec("189.50"), Stock: 25, MinStock: 5, CategoryID: &herramientas, SupplierID: &norte},
		{Name: "Destornillador plano 6\"", Code: "HER-002", Price: dec("45.00"), Stock: 40, MinStock: 10, CategoryID: &herramientas, SupplierID: &norte},
		{Name: "Cinta métrica 5m", Code: "HER-003", Price: dec("78.90"), Stock: 30, MinStock: 8, CategoryID: &herramientas, SupplierID: &torres},
		{Name: "Cable THW calibre 12 (m)", Code: "ELE-001", Price: dec("12.50"), Stock: 500, MinStock: 100, CategoryID: &electricidad, SupplierID: &torres},
		{Name: "Contacto dúplex", Code: "ELE-002", Price: dec("32.00"), Stock: 60, MinStock: 15, CategoryID: &electricidad, SupplierID: &torres},
		{Name: "Pintura vinílica blanca 4L", Code: "PIN-001", Price: dec("389.00"), Stock: 18, MinStock: 4, CategoryID: &pinturas, SupplierID: &norte},
		{Name: "Brocha 3\"", Code: "PIN-002", Price: dec("54.50"), Stock: 35, MinStock: 10, CategoryID: &pinturas, SupplierID: &norte},
	}
	for i := range products {
		s.nextProductID++
		products[i].ID = s.nextProductID
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
		s.productsByID[products[i].ID] = products[i]
	}

	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func sameDay(t time.Time, day time.Time) bool {
	return dayKey(t) == dayKey(day)
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, c := range s.categoriesByID {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) GetCategoryByID(_ context.Context, id int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categoriesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCategory := category
	return &copyCategory, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.categoriesByID {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}

	s.nextCategoryID++
	category.ID = s.nextCategoryID
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	s.categoriesByID[category.ID] = category

	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.categoriesByID[category.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if category.Name == "" {
		return nil, store.ErrValidation
	}
	for id, other := range s.categoriesByID {
		if id != category.ID && strings.EqualFold(other.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}

	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = time.Now().UTC()
	s.categoriesByID[category.ID] = category

	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categoriesByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.productsByID {
		if p.CategoryID != nil && *p.CategoryID == id {
			return store.ErrConflict
		}
	}
	delete(s.categoriesByID, id)
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sp := range s.suppliersByID {
		suppliers = append(suppliers, sp)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSupplierByID(_ context.Context, id int64) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" || supplier.Email == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.suppliersByID {
		if strings.EqualFold(existing.Email, supplier.Email) {
			return nil, store.ErrConflict
		}
	}

	s.nextSupplierID++
	supplier.ID = s.nextSupplierID
	now := time.Now().UTC()
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	s.suppliersByID[supplier.ID] = supplier

	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.suppliersByID[supplier.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if supplier.Name == "" || supplier.Email == "" {
		return nil, store.ErrValidation
	}
	for id, other := range s.suppliersByID {
		if id != supplier.ID && strings.EqualFold(other.Email, supplier.Email) {
			return nil, store.ErrConflict
		}
	}

	supplier.CreatedAt = existing.CreatedAt
	supplier.UpdatedAt = time.Now().UTC()
	s.suppliersByID[supplier.ID] = supplier

	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.productsByID {
		if p.SupplierID != nil && *p.SupplierID == id {
			return store.ErrConflict
		}
	}
	delete(s.suppliersByID, id)
	return nil
}

// withRefNames fills the denormalized category and supplier names on a product copy.
func (s *Store) withRefNames(p domain.Product) domain.Product {
	if p.CategoryID != nil {
		if c, ok := s.categoriesByID[*p.CategoryID]; ok {
			p.CategoryName = c.Name
		}
	}
	if p.SupplierID != nil {
		if sp, ok := s.suppliersByID[*p.SupplierID]; ok {
			p.SupplierName = sp.Name
		}
	}
	return p
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		if filter.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *filter.CategoryID) {
			continue
		}
		if filter.SupplierID != nil && (p.SupplierID == nil || *p.SupplierID != *filter.SupplierID) {
			continue
		}
		products = append(products, s.withRefNames(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := s.withRefNames(product)
	return &copyProduct, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.productsByID {
		if strings.EqualFold(p.Code, code) {
			copyProduct := s.withRefNames(p)
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Code == "" {
		return nil, store.ErrValidation
	}
	if product.Price.IsNegative() || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrValidation
	}
	for _, existing := range s.productsByID {
		if strings.EqualFold(existing.Code, product.Code) {
			return nil, store.ErrConflict
		}
	}
	if product.CategoryID != nil {
		if _, ok := s.categoriesByID[*product.CategoryID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	if product.SupplierID != nil {
		if _, ok := s.suppliersByID[*product.SupplierID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	s.nextProductID++
	product.ID = s.nextProductID
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	product.CategoryName = ""
	product.SupplierName = ""
	s.productsByID[product.ID] = product

	created := s.withRefNames(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Code == "" {
		return nil, store.ErrValidation
	}
	if product.Price.IsNegative() || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrValidation
	}
	for id, other := range s.productsByID {
		if id != product.ID && strings.EqualFold(other.Code, product.Code) {
			return nil, store.ErrConflict
		}
	}
	if product.CategoryID != nil {
		if _, ok := s.categoriesByID[*product.CategoryID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	if product.SupplierID != nil {
		if _, ok := s.suppliersByID[*product.SupplierID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	product.CategoryName = ""
	product.SupplierName = ""
	s.productsByID[product.ID] = product

	updated := s.withRefNames(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		for _, line := range sale.Lines {
			if line.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.productsByID, id)
	return nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.productsByID {
		if p.IsLowStock() {
			products = append(products, s.withRefNames(p))
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Stock == b.Stock {
			return cmpString(a.Name, b.Name)
		}
		return a.Stock - b.Stock
	})
	return products, nil
}

func (s *Store) AdjustStock(_ context.Context, productID int64, qty int, mode string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}

	switch mode {
	case domain.StockModeSet:
		if qty < 0 {
			return nil, store.ErrValidation
		}
		product.Stock = qty
	case domain.StockModeIncrement:
		if qty < 1 {
			return nil, store.ErrValidation
		}
		product.Stock += qty
	case domain.StockModeDecrement:
		if qty < 1 {
			return nil, store.ErrValidation
		}
		if product.Stock < qty {
			return nil, store.ErrInsufficientStock
		}
		product.Stock -= qty
	default:
		return nil, store.ErrValidation
	}

	product.UpdatedAt = time.Now().UTC()
	s.productsByID[productID] = product

	adjusted := s.withRefNames(product)
	return &adjusted, nil
}

// CreateSale validates every line against current stock, then applies the
// decrements and persists the sale under a single lock so a failing line
// leaves no partial state behind.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 {
		return nil, store.ErrValidation
	}

	needed := make(map[int64]int, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.Qty < 1 || !line.UnitPrice.IsPositive() {
			return nil, store.ErrValidation
		}
		needed[line.ProductID] += line.Qty
	}
	for productID, qty := range needed {
		product, exists := s.productsByID[productID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if !product.HasStock(qty) {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	for productID, qty := range needed {
		product := s.productsByID[productID]
		product.Stock -= qty
		product.UpdatedAt = now
		s.productsByID[productID] = product
	}

	s.nextSaleID++
	sale.ID = s.nextSaleID
	if sale.SoldAt.IsZero() {
		sale.SoldAt = now
	}
	sale.Status = domain.SaleStatusCompleted
	sale.CancelledAt = nil
	sale.CreatedAt = now
	sale.UpdatedAt = now

	lines := make([]domain.SaleLine, 0, len(sale.Lines))
	total := decimal.Zero
	for _, line := range sale.Lines {
		s.nextLineID++
		line.ID = s.nextLineID
		line.SaleID = sale.ID
		line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Qty)))
		line.ProductName = s.productsByID[line.ProductID].Name
		total = total.Add(line.Subtotal)
		lines = append(lines, line)
	}
	sale.Lines = lines
	sale.Total = total

	s.salesByID[sale.ID] = cloneSale(sale)

	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.Day != nil && !sameDay(sale.SoldAt, *filter.Day) {
			continue
		}
		if filter.Seller != "" && !strings.EqualFold(sale.Seller, filter.Seller) {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.SoldAt.Equal(b.SoldAt) {
			return int(b.ID - a.ID)
		}
		if a.SoldAt.After(b.SoldAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) CancelSale(_ context.Context, id int64, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	for _, line := range sale.Lines {
		product, ok := s.productsByID[line.ProductID]
		if !ok {
			// Product deleted after the sale is impossible while lines exist,
			// but guard against it rather than panic.
			continue
		}
		product.Stock += line.Qty
		product.UpdatedAt = at
		s.productsByID[line.ProductID] = product
	}

	sale.Status = domain.SaleStatusCancelled
	cancelledAt := at
	sale.CancelledAt = &cancelledAt
	sale.UpdatedAt = at
	s.salesByID[id] = cloneSale(sale)

	cancelled := cloneSale(sale)
	return &cancelled, nil
}

func (s *Store) SalesStats(_ context.Context, from time.Time, to time.Time) (domain.SalesStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.SalesStats{
		From:    dayKey(from),
		To:      dayKey(to),
		Revenue: decimal.Zero,
		Average: decimal.Zero,
	}
	for _, sale := range s.salesByID {
		day := sale.SoldAt.UTC()
		if day.Before(startOfDay(from)) || !day.Before(startOfDay(to).AddDate(0, 0, 1)) {
			continue
		}
		stats.Count++
		switch sale.Status {
		case domain.SaleStatusCompleted:
			stats.Completed++
			stats.Revenue = stats.Revenue.Add(sale.Total)
		case domain.SaleStatusCancelled:
			stats.Cancelled++
		}
	}
	if stats.Completed > 0 {
		stats.Average = stats.Revenue.Div(decimal.NewFromInt(int64(stats.Completed))).Round(2)
	}
	return stats, nil
}

func (s *Store) CreateCashCut(_ context.Context, cut domain.CashCut) (*domain.CashCut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(cut.Date)
	if _, exists := s.cashCutByDay[key]; exists {
		return nil, store.ErrDuplicateCashCut
	}

	s.nextCashCutID++
	cut.ID = s.nextCashCutID
	cut.Date = startOfDay(cut.Date)
	if cut.CreatedAt.IsZero() {
		cut.CreatedAt = time.Now().UTC()
	}
	s.cashCutsByID[cut.ID] = cut
	s.cashCutByDay[key] = cut.ID

	created := cut
	return &created, nil
}

func (s *Store) GetCashCutByID(_ context.Context, id int64) (*domain.CashCut, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cut, exists := s.cashCutsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCut := cut
	return &copyCut, nil
}

func (s *Store) GetCashCutByDate(_ context.Context, day time.Time) (*domain.CashCut, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.cashCutByDay[dayKey(day)]
	if !exists {
		return nil, store.ErrNotFound
	}
	cut := s.cashCutsByID[id]
	copyCut := cut
	return &copyCut, nil
}

func (s *Store) ListCashCuts(_ context.Context, filter domain.CashCutFilter) ([]domain.CashCut, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cuts := make([]domain.CashCut, 0, len(s.cashCutsByID))
	for _, cut := range s.cashCutsByID {
		if filter.Day != nil && !sameDay(cut.Date, *filter.Day) {
			continue
		}
		if filter.Responsible != "" && !strings.EqualFold(cut.Responsible, filter.Responsible) {
			continue
		}
		cuts = append(cuts, cut)
	}
	slices.SortFunc(cuts, func(a, b domain.CashCut) int {
		if a.Date.Equal(b.Date) {
			return int(b.ID - a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(cuts) > filter.Limit {
		cuts = cuts[:filter.Limit]
	}
	return cuts, nil
}

func (s *Store) CashCutStats(_ context.Context, from time.Time, to time.Time) (domain.CashCutStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.CashCutStats{
		From:           dayKey(from),
		To:             dayKey(to),
		TotalRevenue:   decimal.Zero,
		AverageRevenue: decimal.Zero,
		BestRevenue:    decimal.Zero,
		WorstRevenue:   decimal.Zero,
	}
	for _, cut := range s.cashCutsByID {
		if cut.Date.Before(startOfDay(from)) || cut.Date.After(startOfDay(to)) {
			continue
		}
		stats.Count++
		stats.TotalRevenue = stats.TotalRevenue.Add(cut.TotalRevenue)
		if stats.BestDay == "" || cut.TotalRevenue.GreaterThan(stats.BestRevenue) {
			stats.BestDay = dayKey(cut.Date)
			stats.BestRevenue = cut.TotalRevenue
		}
		if stats.WorstDay == "" || cut.TotalRevenue.LessThan(stats.WorstRevenue) {
			stats.WorstDay = dayKey(cut.Date)
			stats.WorstRevenue = cut.TotalRevenue
		}
	}
	if stats.Count > 0 {
		stats.AverageRevenue = stats.TotalRevenue.Div(decimal.NewFromInt(int64(stats.Count))).Round(2)
	}
	return stats, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, day time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if !sameDay(entry.CreatedAt, day) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.usersByEmail[email]; exists {
		return nil, store.ErrConflict
	}

	s.nextUserID++
	user.ID = s.nextUserID
	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByEmail[email] = user

	created := user
	return &created, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.usersByEmail {
		if user.ID == id {
			copyUser := user
			return &copyUser, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, user := range s.usersByEmail {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *domain.UserAccount
	for _, u := range s.usersByEmail {
		if u.ID == user.ID {
			match := u
			existing = &match
			break
		}
	}
	if existing == nil {
		return nil, store.ErrNotFound
	}

	user.Email = existing.Email
	user.CreatedAt = existing.CreatedAt
	if user.Password == "" {
		user.Password = existing.Password
	}
	s.usersByEmail[user.Email] = user

	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for email, user := range s.usersByEmail {
		if user.ID == id {
			delete(s.usersByEmail, email)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(email))
	user, exists := s.usersByEmail[key]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByEmail[key] = user
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	copySale := sale
	copySale.Lines = make([]domain.SaleLine, len(sale.Lines))
	copy(copySale.Lines, sale.Lines)
	if sale.CancelledAt != nil {
		at := *sale.CancelledAt
		copySale.CancelledAt = &at
	}
	return copySale
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
