package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"ferremax/backend/internal/domain"
	"ferremax/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, description, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id, created_at, updated_at
	`, category.Name, category.Description).Scan(&category.ID, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE categories
		SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, category.ID, category.Name, category.Description).Scan(&category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE category_id = $1)
	`, id).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return store.ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, phone, email, address, created_at, updated_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Contact, &sp.Phone, &sp.Email, &sp.Address, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return suppliers, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, id int64) (*domain.Supplier, error) {
	var sp domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact, phone, email, address, created_at, updated_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sp.ID, &sp.Name, &sp.Contact, &sp.Phone, &sp.Email, &sp.Address, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sp, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" || supplier.Email == "" {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact, phone, email, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, created_at, updated_at
	`, supplier.Name, supplier.Contact, supplier.Phone, supplier.Email, supplier.Address).
		Scan(&supplier.ID, &supplier.CreatedAt, &supplier.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" || supplier.Email == "" {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE suppliers
		SET name = $2, contact = $3, phone = $4, email = $5, address = $6, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, supplier.ID, supplier.Name, supplier.Contact, supplier.Phone, supplier.Email, supplier.Address).
		Scan(&supplier.CreatedAt, &supplier.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE supplier_id = $1)
	`, id).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return store.ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const productSelect = `
	SELECT p.id, p.name, p.code, p.price, p.stock, p.min_stock,
	       p.category_id, p.supplier_id,
	       COALESCE(c.name, ''), COALESCE(sp.name, ''),
	       p.created_at, p.updated_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN suppliers sp ON sp.id = p.supplier_id
`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var categoryID, supplierID sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Price, &p.Stock, &p.MinStock,
		&categoryID, &supplierID, &p.CategoryName, &p.SupplierName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if categoryID.Valid {
		v := categoryID.Int64
		p.CategoryID = &v
	}
	if supplierID.Valid {
		v := supplierID.Int64
		p.SupplierID = &v
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		conditions = append(conditions, fmt.Sprintf("lower(p.name) LIKE $%d", len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if filter.SupplierID != nil {
		args = append(args, *filter.SupplierID)
		conditions = append(conditions, fmt.Sprintf("p.supplier_id = $%d", len(args)))
	}

	query := productSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY p.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, productSelect+` WHERE upper(p.code) = upper($1)`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Code == "" {
		return nil, store.ErrValidation
	}
	if product.Price.IsNegative() || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, code, price, stock, min_stock, category_id, supplier_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id
	`, product.Name, product.Code, product.Price, product.Stock, product.MinStock,
		nullInt64(product.CategoryID), nullInt64(product.SupplierID)).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Code == "" {
		return nil, store.ErrValidation
	}
	if product.Price.IsNegative() || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, code = $3, price = $4, stock = $5, min_stock = $6,
		    category_id = $7, supplier_id = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Code, product.Price, product.Stock, product.MinStock,
		nullInt64(product.CategoryID), nullInt64(product.SupplierID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	var hasSales bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sale_lines WHERE product_id = $1)
	`, id).Scan(&hasSales)
	if err != nil {
		return err
	}
	if hasSales {
		return store.ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, productSelect+`
		WHERE p.stock <= p.min_stock
		ORDER BY p.stock, p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// AdjustStock applies a guarded stock mutation. Decrements use a conditional
// UPDATE so a concurrent sale can never drive stock negative.
func (s *Store) AdjustStock(ctx context.Context, productID int64, qty int, mode string) (*domain.Product, error) {
	var res sql.Result
	var err error
	switch mode {
	case domain.StockModeSet:
		if qty < 0 {
			return nil, store.ErrValidation
		}
		res, err = s.db.ExecContext(ctx, `
			UPDATE products SET stock = $1, updated_at = now() WHERE id = $2
		`, qty, productID)
	case domain.StockModeIncrement:
		if qty < 1 {
			return nil, store.ErrValidation
		}
		res, err = s.db.ExecContext(ctx, `
			UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2
		`, qty, productID)
	case domain.StockModeDecrement:
		if qty < 1 {
			return nil, store.ErrValidation
		}
		res, err = s.db.ExecContext(ctx, `
			UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2 AND stock >= $1
		`, qty, productID)
	default:
		return nil, store.ErrValidation
	}
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if mode != domain.StockModeDecrement {
			return nil, store.ErrNotFound
		}
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrInsufficientStock
	}

	return s.GetProductByID(ctx, productID)
}

// CreateSale inserts the sale header and lines and decrements stock per line
// inside one serializable transaction. Any failing line rolls back the whole
// sale, including decrements already applied for earlier lines.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	total := decimal.Zero
	for i := range sale.Lines {
		line := &sale.Lines[i]
		if line.Qty < 1 || !line.UnitPrice.IsPositive() {
			return nil, store.ErrValidation
		}
		line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Qty)))
		total = total.Add(line.Subtotal)
	}

	if sale.SoldAt.IsZero() {
		sale.SoldAt = time.Now().UTC()
	}

	var saleID int64
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (sold_at, seller, total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id
	`, sale.SoldAt, sale.Seller, total, domain.SaleStatusCompleted).Scan(&saleID)
	if err != nil {
		return nil, err
	}

	for _, line := range sale.Lines {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
		`, line.Qty, line.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var exists bool
			if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, line.ProductID).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientStock
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, qty, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5)
		`, saleID, line.ProductID, line.Qty, line.UnitPrice, line.Subtotal)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSaleByID(ctx, saleID)
}

func (s *Store) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	var cancelledAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sold_at, seller, total, status, cancelled_at, created_at, updated_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.SoldAt, &sale.Seller, &sale.Total, &sale.Status, &cancelledAt, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time
		sale.CancelledAt = &at
	}

	lines, err := s.loadSaleLines(ctx, []int64{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Lines = lines[sale.ID]
	if sale.Lines == nil {
		sale.Lines = []domain.SaleLine{}
	}

	return &sale, nil
}

func (s *Store) loadSaleLines(ctx context.Context, saleIDs []int64) (map[int64][]domain.SaleLine, error) {
	if len(saleIDs) == 0 {
		return map[int64][]domain.SaleLine{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.sale_id, l.product_id, p.name, l.qty, l.unit_price, l.subtotal
		FROM sale_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.sale_id = ANY($1)
		ORDER BY l.id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64][]domain.SaleLine, len(saleIDs))
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.ProductName, &line.Qty, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, err
		}
		result[line.SaleID] = append(result[line.SaleID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.Day != nil {
		start := startOfDay(*filter.Day)
		args = append(args, start)
		conditions = append(conditions, fmt.Sprintf("sold_at >= $%d", len(args)))
		args = append(args, start.AddDate(0, 0, 1))
		conditions = append(conditions, fmt.Sprintf("sold_at < $%d", len(args)))
	}
	if filter.Seller != "" {
		args = append(args, filter.Seller)
		conditions = append(conditions, fmt.Sprintf("lower(seller) = lower($%d)", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `
		SELECT id, sold_at, seller, total, status, cancelled_at, created_at, updated_at
		FROM sales
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY sold_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	saleIDs := make([]int64, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var cancelledAt sql.NullTime
		if err := rows.Scan(&sale.ID, &sale.SoldAt, &sale.Seller, &sale.Total, &sale.Status, &cancelledAt, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
			return nil, err
		}
		if cancelledAt.Valid {
			at := cancelledAt.Time
			sale.CancelledAt = &at
		}
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := s.loadSaleLines(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
		if sales[i].Lines == nil {
			sales[i].Lines = []domain.SaleLine{}
		}
	}

	return sales, nil
}

// CancelSale flips a completed sale to cancelled and restores the stock of
// every line in one serializable transaction. Cancellation is terminal.
func (s *Store) CancelSale(ctx context.Context, id int64, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.SaleStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	lineRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, qty
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	type restock struct {
		productID int64
		qty       int
	}
	restocks := make([]restock, 0, 8)
	for lineRows.Next() {
		var r restock
		if err := lineRows.Scan(&r.productID, &r.qty); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		restocks = append(restocks, r)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, err
	}
	_ = lineRows.Close()

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, cancelled_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.SaleStatusCancelled, at, domain.SaleStatusCompleted)
	if err != nil {
		return nil, err
	}

	for _, r := range restocks {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1, updated_at = $2
			WHERE id = $3
		`, r.qty, at, r.productID)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSaleByID(ctx, id)
}

func (s *Store) SalesStats(ctx context.Context, from time.Time, to time.Time) (domain.SalesStats, error) {
	stats := domain.SalesStats{
		From:    startOfDay(from).Format("2006-01-02"),
		To:      startOfDay(to).Format("2006-01-02"),
		Revenue: decimal.Zero,
		Average: decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COALESCE(SUM(total) FILTER (WHERE status = 'completed'), 0)
		FROM sales
		WHERE sold_at >= $1 AND sold_at < $2
	`, startOfDay(from), startOfDay(to).AddDate(0, 0, 1)).
		Scan(&stats.Count, &stats.Completed, &stats.Cancelled, &stats.Revenue)
	if err != nil {
		return domain.SalesStats{}, err
	}

	if stats.Completed > 0 {
		stats.Average = stats.Revenue.Div(decimal.NewFromInt(int64(stats.Completed))).Round(2)
	}
	return stats, nil
}

func (s *Store) CreateCashCut(ctx context.Context, cut domain.CashCut) (*domain.CashCut, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cash_cuts (cut_date, responsible, completed_count, cancelled_count, total_revenue, units_sold, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, created_at
	`, startOfDay(cut.Date), cut.Responsible, cut.CompletedCount, cut.CancelledCount, cut.TotalRevenue, cut.UnitsSold).
		Scan(&cut.ID, &cut.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateCashCut
		}
		return nil, err
	}

	cut.Date = startOfDay(cut.Date)
	created := cut
	return &created, nil
}

func (s *Store) GetCashCutByID(ctx context.Context, id int64) (*domain.CashCut, error) {
	return s.findCashCut(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetCashCutByDate(ctx context.Context, day time.Time) (*domain.CashCut, error) {
	return s.findCashCut(ctx, `WHERE cut_date = $1`, startOfDay(day))
}

func (s *Store) findCashCut(ctx context.Context, where string, arg any) (*domain.CashCut, error) {
	var cut domain.CashCut
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cut_date, responsible, completed_count, cancelled_count, total_revenue, units_sold, created_at
		FROM cash_cuts
	`+where, arg).Scan(&cut.ID, &cut.Date, &cut.Responsible, &cut.CompletedCount, &cut.CancelledCount, &cut.TotalRevenue, &cut.UnitsSold, &cut.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	cut.Date = cut.Date.UTC()
	return &cut, nil
}

func (s *Store) ListCashCuts(ctx context.Context, filter domain.CashCutFilter) ([]domain.CashCut, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if filter.Day != nil {
		args = append(args, startOfDay(*filter.Day))
		conditions = append(conditions, fmt.Sprintf("cut_date = $%d", len(args)))
	}
	if filter.Responsible != "" {
		args = append(args, filter.Responsible)
		conditions = append(conditions, fmt.Sprintf("lower(responsible) = lower($%d)", len(args)))
	}

	query := `
		SELECT id, cut_date, responsible, completed_count, cancelled_count, total_revenue, units_sold, created_at
		FROM cash_cuts
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY cut_date DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cuts := make([]domain.CashCut, 0, 32)
	for rows.Next() {
		var cut domain.CashCut
		if err := rows.Scan(&cut.ID, &cut.Date, &cut.Responsible, &cut.CompletedCount, &cut.CancelledCount, &cut.TotalRevenue, &cut.UnitsSold, &cut.CreatedAt); err != nil {
			return nil, err
		}
		cut.Date = cut.Date.UTC()
		cuts = append(cuts, cut)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cuts, nil
}

func (s *Store) CashCutStats(ctx context.Context, from time.Time, to time.Time) (domain.CashCutStats, error) {
	stats := domain.CashCutStats{
		From:           startOfDay(from).Format("2006-01-02"),
		To:             startOfDay(to).Format("2006-01-02"),
		TotalRevenue:   decimal.Zero,
		AverageRevenue: decimal.Zero,
		BestRevenue:    decimal.Zero,
		WorstRevenue:   decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_revenue), 0), COALESCE(ROUND(AVG(total_revenue), 2), 0)
		FROM cash_cuts
		WHERE cut_date >= $1 AND cut_date <= $2
	`, startOfDay(from), startOfDay(to)).Scan(&stats.Count, &stats.TotalRevenue, &stats.AverageRevenue)
	if err != nil {
		return domain.CashCutStats{}, err
	}
	if stats.Count == 0 {
		return stats, nil
	}

	var bestDay, worstDay time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT cut_date, total_revenue
		FROM cash_cuts
		WHERE cut_date >= $1 AND cut_date <= $2
		ORDER BY total_revenue DESC, cut_date DESC
		LIMIT 1
	`, startOfDay(from), startOfDay(to)).Scan(&bestDay, &stats.BestRevenue)
	if err != nil {
		return domain.CashCutStats{}, err
	}
	stats.BestDay = bestDay.UTC().Format("2006-01-02")

	err = s.db.QueryRowContext(ctx, `
		SELECT cut_date, total_revenue
		FROM cash_cuts
		WHERE cut_date >= $1 AND cut_date <= $2
		ORDER BY total_revenue ASC, cut_date ASC
		LIMIT 1
	`, startOfDay(from), startOfDay(to)).Scan(&worstDay, &stats.WorstRevenue)
	if err != nil {
		return domain.CashCutStats{}, err
	}
	stats.WorstDay = worstDay.UTC().Format("2006-01-02")

	return stats, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_email, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ActorEmail, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, day time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	start := startOfDay(day)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_email, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, start, start.AddDate(0, 0, 1), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorEmail, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Email == "" || user.Password == "" {
		return nil, store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password, role, active, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6)
		RETURNING id
	`, user.Name, user.Email, user.Password, user.Role, user.Active, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.UserAccount, error) {
	return s.findUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.findUser(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password, role, active, created_at
		FROM users
	`+where, arg).Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password, role, active, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, role = $3, active = $4,
		    password = CASE WHEN $5 = '' THEN password ELSE $5 END
		WHERE id = $1
	`, user.ID, user.Name, user.Role, user.Active, user.Password)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetUserByID(ctx, user.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, email string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE lower(email) = lower($1)
	`, email, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
