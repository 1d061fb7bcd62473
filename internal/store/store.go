package store

import (
	"context"
	"errors"
	"time"

	"lapakku/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrSessionOpen       = errors.New("market session already open")
)

type Repository interface {
	ListProducts(ctx context.Context, userID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, userID string, productID string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, userID string, productIDs []string) (map[string]domain.Product, error)

	CreateSale(ctx context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error)
	GetSaleByID(ctx context.Context, userID string, saleID string) (*domain.SaleRecord, error)
	ListSalesSince(ctx context.Context, userID string, since time.Time, until time.Time) ([]domain.SaleRecord, error)
	ApplySaleEdit(ctx context.Context, sale domain.SaleRecord, deltas []domain.StockDelta) (*domain.SaleRecord, error)
	DeleteSale(ctx context.Context, userID string, saleID string, restock []domain.StockDelta) error

	CreateCost(ctx context.Context, cost domain.CostRecord) (*domain.CostRecord, error)
	ListCostsSince(ctx context.Context, userID string, since time.Time, until time.Time) ([]domain.CostRecord, error)
	DeleteCost(ctx context.Context, userID string, costID string) error

	OpenMarketSession(ctx context.Context, session domain.MarketSession) (*domain.MarketSession, error)
	CloseActiveMarketSession(ctx context.Context, userID string, closedAt time.Time) (*domain.MarketSession, error)
	GetActiveMarketSession(ctx context.Context, userID string) (*domain.MarketSession, error)

	GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error)
	UpsertPreferences(ctx context.Context, prefs domain.Preferences) (*domain.Preferences, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, userID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
