package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"lapakku/backend/internal/domain"
	"lapakku/backend/internal/store"
	"lapakku/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	salesByID       map[string]domain.SaleRecord
	costsByID       map[string]domain.CostRecord
	sessionsByID    map[string]domain.MarketSession
	activeSession   map[string]string
	prefsByUser     map[string]domain.Preferences
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// The credential is read from the SEED_VENDOR_PASSWORD environment
// variable. If unset, a hardcoded dev default is used with a warning
// printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	vendorPwd := envOr("SEED_VENDOR_PASSWORD", "vendor123")
	if os.Getenv("SEED_VENDOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_VENDOR_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(vendorPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return map[string]domain.UserAccount{
		"vendor": {
			ID:        "user-vendor",
			Username:  "vendor",
			Password:  string(hash),
			Role:      "vendor",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-sambal-01", Name: "Sambal Bawang 250ml", Category: "sauce", Price: decimal.NewFromInt(15000), UnitCost: decimal.NewFromInt(8000), Quantity: 40},
		{ID: "prod-keripik-01", Name: "Keripik Singkong", Category: "snack", Price: decimal.NewFromInt(12000), UnitCost: decimal.NewFromInt(6500), Quantity: 60},
		{ID: "prod-kue-01", Name: "Kue Lapis", Category: "bakery", Price: decimal.NewFromInt(5000), UnitCost: decimal.NewFromInt(2500), Quantity: 80},
		{ID: "prod-kopi-01", Name: "Kopi Bubuk 200g", Category: "beverage", Price: decimal.NewFromInt(28000), UnitCost: decimal.NewFromInt(19000), Quantity: 25},
		{ID: "prod-madu-01", Name: "Madu Hutan 350ml", Category: "grocery", Price: decimal.NewFromInt(65000), UnitCost: decimal.NewFromInt(42000), Quantity: 15},
		{ID: "prod-tas-01", Name: "Tas Anyaman", Category: "craft", Price: decimal.NewFromInt(45000), UnitCost: decimal.NewFromInt(27000), Quantity: 12},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.UserID = "user-vendor"
		p.Active = true
		p.CreatedAt = now
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		salesByID:       make(map[string]domain.SaleRecord),
		costsByID:       make(map[string]domain.CostRecord),
		sessionsByID:    make(map[string]domain.MarketSession),
		activeSession:   make(map[string]string),
		prefsByUser:     make(map[string]domain.Preferences),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, userID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("product %s already exists", product.ID)
	}
	s.products[product.ID] = product
	out := product
	return &out, nil
}

func (s *Store) GetProductByID(_ context.Context, userID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || existing.UserID != product.UserID {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	out := product
	return &out, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, userID string, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok && p.UserID == userID {
			result[id] = p
		}
	}
	return result, nil
}

// CreateSale persists the sale and decrements stock for product-linked
// lines under one lock hold. Any shortage aborts the whole sale.
func (s *Store) CreateSale(_ context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, fmt.Errorf("sale %s already exists", sale.ID)
	}
	needed := make(map[string]int)
	for _, item := range sale.Items {
		if item.ProductID != nil && *item.ProductID != "" {
			needed[*item.ProductID] += item.Quantity
		}
	}
	for id, qty := range needed {
		p, ok := s.products[id]
		if !ok || p.UserID != sale.UserID {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		if p.Quantity < qty {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrInsufficientStock)
		}
	}
	for id, qty := range needed {
		p := s.products[id]
		p.Quantity -= qty
		s.products[id] = p
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) GetSaleByID(_ context.Context, userID string, saleID string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[saleID]
	if !ok || sale.UserID != userID {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) ListSalesSince(_ context.Context, userID string, since time.Time, until time.Time) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SaleRecord, 0, 32)
	for _, sale := range s.salesByID {
		if sale.UserID != userID {
			continue
		}
		if sale.CreatedAt.Before(since) || sale.CreatedAt.After(until) {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	slices.SortFunc(out, func(a, b domain.SaleRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ApplySaleEdit replaces the sale's stored state and applies the stock
// deltas as one unit. If any delta would drive stock negative, nothing
// is changed.
func (s *Store) ApplySaleEdit(_ context.Context, sale domain.SaleRecord, deltas []domain.StockDelta) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[sale.ID]
	if !ok || existing.UserID != sale.UserID {
		return nil, store.ErrNotFound
	}
	for _, d := range deltas {
		p, ok := s.products[d.ProductID]
		if !ok || p.UserID != sale.UserID {
			return nil, fmt.Errorf("product %s: %w", d.ProductID, store.ErrNotFound)
		}
		if p.Quantity+d.Delta < 0 {
			return nil, fmt.Errorf("product %s: %w", d.ProductID, store.ErrInsufficientStock)
		}
	}
	for _, d := range deltas {
		p := s.products[d.ProductID]
		p.Quantity += d.Delta
		s.products[d.ProductID] = p
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) DeleteSale(_ context.Context, userID string, saleID string, restock []domain.StockDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok || sale.UserID != userID {
		return store.ErrNotFound
	}
	for _, d := range restock {
		if p, ok := s.products[d.ProductID]; ok && p.UserID == userID {
			p.Quantity += d.Delta
			s.products[d.ProductID] = p
		}
	}
	delete(s.salesByID, saleID)
	return nil
}

func (s *Store) CreateCost(_ context.Context, cost domain.CostRecord) (*domain.CostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.costsByID[cost.ID]; exists {
		return nil, fmt.Errorf("cost %s already exists", cost.ID)
	}
	s.costsByID[cost.ID] = cost
	out := cost
	return &out, nil
}

func (s *Store) ListCostsSince(_ context.Context, userID string, since time.Time, until time.Time) ([]domain.CostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CostRecord, 0, 16)
	for _, cost := range s.costsByID {
		if cost.UserID != userID {
			continue
		}
		if cost.CreatedAt.Before(since) || cost.CreatedAt.After(until) {
			continue
		}
		out = append(out, cost)
	}
	slices.SortFunc(out, func(a, b domain.CostRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) DeleteCost(_ context.Context, userID string, costID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost, ok := s.costsByID[costID]
	if !ok || cost.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.costsByID, costID)
	return nil
}

func (s *Store) OpenMarketSession(_ context.Context, session domain.MarketSession) (*domain.MarketSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, active := s.activeSession[session.UserID]; active {
		return nil, store.ErrSessionOpen
	}
	s.sessionsByID[session.ID] = session
	s.activeSession[session.UserID] = session.ID
	out := session
	return &out, nil
}

func (s *Store) CloseActiveMarketSession(_ context.Context, userID string, closedAt time.Time) (*domain.MarketSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.activeSession[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	session := s.sessionsByID[id]
	session.Status = domain.MarketStatusClosed
	session.ClosedAt = &closedAt
	s.sessionsByID[id] = session
	delete(s.activeSession, userID)
	out := session
	return &out, nil
}

func (s *Store) GetActiveMarketSession(_ context.Context, userID string) (*domain.MarketSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeSession[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	session := s.sessionsByID[id]
	out := session
	return &out, nil
}

func (s *Store) GetPreferences(_ context.Context, userID string) (*domain.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs, ok := s.prefsByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := prefs
	return &out, nil
}

func (s *Store) UpsertPreferences(_ context.Context, prefs domain.Preferences) (*domain.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefsByUser[prefs.UserID] = prefs
	out := prefs
	return &out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, userID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.UserID != userID {
			continue
		}
		if entry.CreatedAt.Before(from) || entry.CreatedAt.After(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, exists := s.usersByUsername[key]; exists {
		return fmt.Errorf("user %s already exists", user.Username)
	}
	s.usersByUsername[key] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return strings.Compare(a.Username, b.Username) })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	user, ok := s.usersByUsername[key]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[key] = user
	return nil
}

func cloneSale(sale domain.SaleRecord) domain.SaleRecord {
	out := sale
	out.Items = make([]domain.SaleLineItem, len(sale.Items))
	copy(out.Items, sale.Items)
	if sale.MarketID != nil {
		id := *sale.MarketID
		out.MarketID = &id
	}
	return out
}
