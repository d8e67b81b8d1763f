package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type SupplierUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Contact *string `json:"contact,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
}

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Code         string          `json:"code"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	MinStock     int             `json:"min_stock"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	SupplierID   *int64          `json:"supplier_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	SupplierName string          `json:"supplier_name,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasStock reports whether at least qty units are on hand.
func (p Product) HasStock(qty int) bool {
	return p.Stock >= qty
}

// IsLowStock reports whether the product has reached its reorder threshold.
func (p Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}

type ProductCreateRequest struct {
	Name       string          `json:"name"`
	Code       string          `json:"code"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	MinStock   int             `json:"min_stock"`
	CategoryID *int64          `json:"category_id,omitempty"`
	SupplierID *int64          `json:"supplier_id,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string          `json:"name,omitempty"`
	Code       *string          `json:"code,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Stock      *int             `json:"stock,omitempty"`
	MinStock   *int             `json:"min_stock,omitempty"`
	CategoryID *int64           `json:"category_id,omitempty"`
	SupplierID *int64           `json:"supplier_id,omitempty"`
}

type StockAdjustRequest struct {
	Qty  int    `json:"qty"`
	Mode string `json:"mode"`
}

type ProductFilter struct {
	Query      string
	CategoryID *int64
	SupplierID *int64
}

type SaleLine struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID          int64           `json:"id"`
	SoldAt      time.Time       `json:"sold_at"`
	Seller      string          `json:"seller"`
	Total       decimal.Decimal `json:"total"`
	Status      string          `json:"status"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	Lines       []SaleLine      `json:"lines"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type SaleLineRequest struct {
	ProductID int64           `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SaleCreateRequest struct {
	Seller string            `json:"seller"`
	Total  decimal.Decimal   `json:"total"`
	Lines  []SaleLineRequest `json:"lines"`
}

type SaleFilter struct {
	Day    *time.Time
	Seller string
	Status string
	Limit  int
}

type SalesStats struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Count     int             `json:"count"`
	Completed int             `json:"completed"`
	Cancelled int             `json:"cancelled"`
	Revenue   decimal.Decimal `json:"revenue"`
	Average   decimal.Decimal `json:"average"`
}

type CashCut struct {
	ID             int64           `json:"id"`
	Date           time.Time       `json:"date"`
	Responsible    string          `json:"responsible"`
	CompletedCount int             `json:"completed_count"`
	CancelledCount int             `json:"cancelled_count"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	UnitsSold      int             `json:"units_sold"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CashCutCreateRequest struct {
	Date           string          `json:"date,omitempty"`
	Responsible    string          `json:"responsible"`
	CompletedCount int             `json:"completed_count"`
	CancelledCount int             `json:"cancelled_count"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	UnitsSold      int             `json:"units_sold"`
}

type CashCutResponse struct {
	CashCut CashCut `json:"cash_cut"`
	Warning string  `json:"warning,omitempty"`
}

type CashCutFilter struct {
	Day         *time.Time
	Responsible string
	Limit       int
}

type CashCutStats struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	Count          int             `json:"count"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	AverageRevenue decimal.Decimal `json:"average_revenue"`
	BestDay        string          `json:"best_day,omitempty"`
	BestRevenue    decimal.Decimal `json:"best_revenue"`
	WorstDay       string          `json:"worst_day,omitempty"`
	WorstRevenue   decimal.Decimal `json:"worst_revenue"`
}

// DailySummary is the reconciliation view of one calendar day (UTC).
type DailySummary struct {
	Date           string          `json:"date"`
	CompletedCount int             `json:"completed_count"`
	CancelledCount int             `json:"cancelled_count"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	CancelledValue decimal.Decimal `json:"cancelled_value"`
	UnitsSold      int             `json:"units_sold"`
	AverageSale    decimal.Decimal `json:"average_sale"`
	SuccessRate    float64         `json:"success_rate"`
	CashCutDone    bool            `json:"cash_cut_done"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Email string
	Name  string
	Role  string
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
	Password *string `json:"password,omitempty"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        int64
	Name      string
	Email     string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorEmail string    `json:"actor_email"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

const (
	StockModeSet       = "set"
	StockModeIncrement = "increment"
	StockModeDecrement = "decrement"
)
