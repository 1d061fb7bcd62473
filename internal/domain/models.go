package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Quantity  int             `json:"quantity"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Quantity int             `json:"quantity"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Category *string          `json:"category,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
	Quantity *int             `json:"quantity,omitempty"`
	Active   *bool            `json:"active,omitempty"`
}

type SaleLineItem struct {
	ID          string           `json:"id"`
	SaleID      string           `json:"sale_id"`
	ProductID   *string          `json:"product_id,omitempty"`
	ProductName string           `json:"product_name"`
	Quantity    int              `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	UnitCost    *decimal.Decimal `json:"unit_cost,omitempty"`
}

type SaleRecord struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	MarketID       *string         `json:"market_id,omitempty"`
	MarketLocation string          `json:"market_location"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMethod  string          `json:"payment_method"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []SaleLineItem  `json:"items"`
}

type SaleLineItemInput struct {
	ProductID   *string          `json:"product_id,omitempty"`
	ProductName string           `json:"product_name"`
	Quantity    int              `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	UnitCost    *decimal.Decimal `json:"unit_cost,omitempty"`
}

type SaleCreateRequest struct {
	PaymentMethod string              `json:"payment_method"`
	Notes         string              `json:"notes"`
	OccurredAt    *time.Time          `json:"occurred_at,omitempty"`
	Items         []SaleLineItemInput `json:"items"`
}

type SaleUpdateRequest struct {
	PaymentMethod *string             `json:"payment_method,omitempty"`
	Notes         *string             `json:"notes,omitempty"`
	Items         []SaleLineItemInput `json:"items"`
}

type SaleResponse struct {
	Sale SaleRecord `json:"sale"`
}

type SaleListResponse struct {
	Sales []SaleRecord `json:"sales"`
}

type CostRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	MarketID    *string         `json:"market_id,omitempty"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Recurring   bool            `json:"recurring"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CostCreateRequest struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Recurring   bool            `json:"recurring"`
	OccurredAt  *time.Time      `json:"occurred_at,omitempty"`
}

type CostListResponse struct {
	Costs []CostRecord `json:"costs"`
}

type MarketSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Location  string     `json:"location"`
	Status    string     `json:"status"`
	OpenedAt  time.Time  `json:"opened_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type MarketOpenRequest struct {
	Location string `json:"location"`
}

type MarketSessionResponse struct {
	Session MarketSession `json:"session"`
}

// StockDelta is a signed stock adjustment for one product. A positive
// delta restores stock, a negative delta consumes it.
type StockDelta struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

type DailyAggregate struct {
	Date       string          `json:"date"`
	SalesCount int             `json:"sales_count"`
	Total      decimal.Decimal `json:"total"`
}

type CategoryBreakdown struct {
	Label      string          `json:"label"`
	Value      decimal.Decimal `json:"value"`
	Percentage float64         `json:"percentage"`
}

type Report struct {
	SalesCount        int                 `json:"sales_count"`
	TotalSales        decimal.Decimal     `json:"total_sales"`
	TotalCosts        decimal.Decimal     `json:"total_costs"`
	NetProfit         decimal.Decimal     `json:"net_profit"`
	AverageTicket     decimal.Decimal     `json:"average_ticket"`
	ProfitMargin      float64             `json:"profit_margin"`
	AverageDailySales decimal.Decimal     `json:"average_daily_sales"`
	DailySeries       []DailyAggregate    `json:"daily_series"`
	BestDay           *DailyAggregate     `json:"best_day,omitempty"`
	PaymentBreakdown  []CategoryBreakdown `json:"payment_breakdown"`
	LocationBreakdown []CategoryBreakdown `json:"location_breakdown"`
}

type ReportResponse struct {
	Range      string    `json:"range"`
	Report     Report    `json:"report"`
	Stale      bool      `json:"stale"`
	ComputedAt time.Time `json:"computed_at"`
}

type Preferences struct {
	UserID       string    `json:"user_id"`
	Theme        string    `json:"theme"`
	DefaultRange string    `json:"default_range"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PreferencesUpdateRequest struct {
	Theme        *string `json:"theme,omitempty"`
	DefaultRange *string `json:"default_range,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

type AuditLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	PaymentCash     = "cash"
	PaymentQRIS     = "qris"
	PaymentTransfer = "transfer"
)

const (
	MarketStatusOpen   = "open"
	MarketStatusClosed = "closed"
)

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)
