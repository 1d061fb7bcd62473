package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lapakku/backend/internal/cache"
	"lapakku/backend/internal/debounce"
	"lapakku/backend/internal/domain"
	"lapakku/backend/internal/reconcile"
	"lapakku/backend/internal/report"
	"lapakku/backend/internal/store"
	"lapakku/backend/internal/xid"
)

// ErrNoSession is returned when an operation runs without an
// authenticated actor in the context. Operations fail on it before
// touching the store.
var ErrNoSession = errors.New("no authenticated session")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	reports       cache.ReportCache
	loc           *time.Location
	cacheTTL      time.Duration
	prefsDebounce time.Duration

	mu          sync.Mutex
	lastReports map[string]domain.ReportResponse
	debouncers  map[string]*debounce.Debouncer
}

func New(repo store.Repository, reports cache.ReportCache, loc *time.Location, cacheTTL time.Duration, prefsDebounce time.Duration) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if cacheTTL < time.Minute {
		cacheTTL = 24 * time.Hour
	}
	if prefsDebounce <= 0 {
		prefsDebounce = 400 * time.Millisecond
	}

	return &Service{
		repo:          repo,
		reports:       reports,
		loc:           loc,
		cacheTTL:      cacheTTL,
		prefsDebounce: prefsDebounce,
		lastReports:   make(map[string]domain.ReportResponse),
		debouncers:    make(map[string]*debounce.Debouncer),
	}
}

// Location reports the calendar location used for report bucketing.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, ErrNoSession
	}
	return actor, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, actor.UserID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" {
		return domain.Product{}, store.ErrInvalidSale
	}
	if req.Price.IsNegative() || req.UnitCost.IsNegative() || req.Quantity < 0 {
		return domain.Product{}, store.ErrInvalidSale
	}

	product := domain.Product{
		ID:        xid.New("prod"),
		UserID:    actor.UserID,
		Name:      req.Name,
		Category:  req.Category,
		Price:     req.Price,
		UnitCost:  req.UnitCost,
		Quantity:  req.Quantity,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,qty=%d", created.Name, created.Price, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, store.ErrInvalidSale
	}

	existing, err := s.repo.GetProductByID(ctx, actor.UserID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Price = *req.Price
	}
	if req.UnitCost != nil {
		if req.UnitCost.IsNegative() {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.UnitCost = *req.UnitCost
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Quantity = *req.Quantity
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%s,qty=%d", saved.Active, saved.Price, saved.Quantity))
	return *saved, nil
}

// RecordSale validates and persists a sale. Line items referencing a
// catalog product inherit its name, price and cost when the input
// leaves them blank, and decrement its stock. Ad-hoc lines (no product
// id) need an explicit name and price. When a market session is open
// its id and location are stamped onto the sale.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleRecord, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.SaleRecord{}, err
	}

	payment := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if payment == "" || len(req.Items) == 0 {
		return domain.SaleRecord{}, store.ErrInvalidSale
	}

	saleID := xid.New("sale")
	items, total, err := s.buildLineItems(ctx, actor.UserID, saleID, req.Items)
	if err != nil {
		return domain.SaleRecord{}, err
	}

	createdAt := time.Now().UTC()
	if req.OccurredAt != nil {
		createdAt = req.OccurredAt.UTC()
	}

	sale := domain.SaleRecord{
		ID:            saleID,
		UserID:        actor.UserID,
		TotalAmount:   total,
		PaymentMethod: payment,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     createdAt,
		Items:         items,
	}

	if session, err := s.repo.GetActiveMarketSession(ctx, actor.UserID); err == nil {
		sale.MarketID = &session.ID
		sale.MarketLocation = session.Location
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] WARN: failed to resolve active market session user=%s: %v", actor.UserID, err)
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleRecord{}, err
	}

	s.logAudit(ctx, "sale_record", "sale", created.ID, fmt.Sprintf("total=%s,payment=%s,items=%d", created.TotalAmount, created.PaymentMethod, len(created.Items)))
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.SaleRecord, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	sale, err := s.repo.GetSaleByID(ctx, actor.UserID, strings.TrimSpace(saleID))
	if err != nil {
		return domain.SaleRecord{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, rng domain.TimeRange) ([]domain.SaleRecord, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return s.repo.ListSalesSince(ctx, actor.UserID, rng.PeriodStart(now, s.loc), now)
}

// UpdateSale replaces a sale's line items and metadata. The stock
// difference between the old and new item sets is computed per product
// and applied together with the item replacement in one store
// operation, so a shortage on any product leaves both the sale and all
// stock untouched.
func (s *Service) UpdateSale(ctx context.Context, saleID string, req domain.SaleUpdateRequest) (domain.SaleRecord, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.SaleRecord{}, err
	}

	original, err := s.repo.GetSaleByID(ctx, actor.UserID, strings.TrimSpace(saleID))
	if err != nil {
		return domain.SaleRecord{}, err
	}

	if len(req.Items) == 0 {
		return domain.SaleRecord{}, store.ErrInvalidSale
	}
	items, total, err := s.buildLineItems(ctx, actor.UserID, original.ID, req.Items)
	if err != nil {
		return domain.SaleRecord{}, err
	}

	updated := *original
	updated.Items = items
	updated.TotalAmount = total
	if req.PaymentMethod != nil {
		payment := strings.ToLower(strings.TrimSpace(*req.PaymentMethod))
		if payment == "" {
			return domain.SaleRecord{}, store.ErrInvalidSale
		}
		updated.PaymentMethod = payment
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}

	deltas := reconcile.ComputeDeltas(original.Items, items)
	saved, err := s.repo.ApplySaleEdit(ctx, updated, deltas)
	if err != nil {
		return domain.SaleRecord{}, err
	}

	s.logAudit(ctx, "sale_edit", "sale", saved.ID, fmt.Sprintf("total=%s,stock_deltas=%d", saved.TotalAmount, len(deltas)))
	return *saved, nil
}

// DeleteSale removes a sale and restores the stock its lines consumed.
func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return err
	}

	sale, err := s.repo.GetSaleByID(ctx, actor.UserID, strings.TrimSpace(saleID))
	if err != nil {
		return err
	}

	restock := reconcile.RestockDeltas(sale.Items)
	if err := s.repo.DeleteSale(ctx, actor.UserID, sale.ID, restock); err != nil {
		return err
	}

	s.logAudit(ctx, "sale_delete", "sale", sale.ID, fmt.Sprintf("total=%s,restocked=%d", sale.TotalAmount, len(restock)))
	return nil
}

func (s *Service) CreateCost(ctx context.Context, req domain.CostCreateRequest) (domain.CostRecord, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.CostRecord{}, err
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" || !req.Amount.IsPositive() {
		return domain.CostRecord{}, store.ErrInvalidSale
	}

	createdAt := time.Now().UTC()
	if req.OccurredAt != nil {
		createdAt = req.OccurredAt.UTC()
	}

	cost := domain.CostRecord{
		ID:          xid.New("cost"),
		UserID:      actor.UserID,
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Amount:      req.Amount,
		Recurring:   req.Recurring,
		CreatedAt:   createdAt,
	}

	if session, err := s.repo.GetActiveMarketSession(ctx, actor.UserID); err == nil {
		cost.MarketID = &session.ID
	}

	created, err := s.repo.CreateCost(ctx, cost)
	if err != nil {
		return domain.CostRecord{}, err
	}

	s.logAudit(ctx, "cost_create", "cost", created.ID, fmt.Sprintf("amount=%s,desc=%s", created.Amount, created.Description))
	return *created, nil
}

func (s *Service) ListCosts(ctx context.Context, rng domain.TimeRange) ([]domain.CostRecord, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return s.repo.ListCostsSince(ctx, actor.UserID, rng.PeriodStart(now, s.loc), now)
}

func (s *Service) DeleteCost(ctx context.Context, costID string) error {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCost(ctx, actor.UserID, strings.TrimSpace(costID)); err != nil {
		return err
	}
	s.logAudit(ctx, "cost_delete", "cost", costID, "")
	return nil
}

func (s *Service) OpenMarket(ctx context.Context, req domain.MarketOpenRequest) (domain.MarketSession, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.MarketSession{}, err
	}

	location := strings.TrimSpace(req.Location)
	if location == "" {
		return domain.MarketSession{}, store.ErrInvalidSale
	}

	session := domain.MarketSession{
		ID:       xid.New("mkt"),
		UserID:   actor.UserID,
		Location: location,
		Status:   domain.MarketStatusOpen,
		OpenedAt: time.Now().UTC(),
	}

	opened, err := s.repo.OpenMarketSession(ctx, session)
	if err != nil {
		return domain.MarketSession{}, err
	}

	s.logAudit(ctx, "market_open", "market_session", opened.ID, fmt.Sprintf("location=%s", opened.Location))
	return *opened, nil
}

func (s *Service) CloseMarket(ctx context.Context) (domain.MarketSession, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.MarketSession{}, err
	}

	closed, err := s.repo.CloseActiveMarketSession(ctx, actor.UserID, time.Now().UTC())
	if err != nil {
		return domain.MarketSession{}, err
	}

	s.logAudit(ctx, "market_close", "market_session", closed.ID, fmt.Sprintf("location=%s", closed.Location))
	return *closed, nil
}

func (s *Service) ActiveMarket(ctx context.Context) (domain.MarketSession, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.MarketSession{}, err
	}
	session, err := s.repo.GetActiveMarketSession(ctx, actor.UserID)
	if err != nil {
		return domain.MarketSession{}, err
	}
	return *session, nil
}

// Report computes the aggregates for the given range ending now. On a
// store failure the last successfully computed report for the same
// user and range is returned with Stale set, first from process memory
// and then from the external cache; a fresh result replaces both.
func (s *Service) Report(ctx context.Context, rng domain.TimeRange) (domain.ReportResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.ReportResponse{}, err
	}

	now := time.Now().UTC()
	periodStart := rng.PeriodStart(now, s.loc)
	key := reportKey(actor.UserID, rng)

	sales, salesErr := s.repo.ListSalesSince(ctx, actor.UserID, periodStart, now)
	var costs []domain.CostRecord
	var costsErr error
	if salesErr == nil {
		costs, costsErr = s.repo.ListCostsSince(ctx, actor.UserID, periodStart, now)
	}
	if salesErr != nil || costsErr != nil {
		fetchErr := salesErr
		if fetchErr == nil {
			fetchErr = costsErr
		}
		log.Printf("[service] WARN: report refresh failed user=%s range=%s: %v", actor.UserID, rng, fetchErr)
		if stale, ok := s.staleReport(ctx, key); ok {
			return stale, nil
		}
		return domain.ReportResponse{}, fmt.Errorf("report refresh: %w", fetchErr)
	}

	resp := domain.ReportResponse{
		Range:      string(rng),
		Report:     report.ComputeReport(sales, costs, periodStart, now, s.loc),
		ComputedAt: now,
	}

	s.mu.Lock()
	s.lastReports[key] = resp
	s.mu.Unlock()
	if err := s.reports.Set(ctx, key, &resp, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: failed to cache report key=%s: %v", key, err)
	}

	return resp, nil
}

func (s *Service) staleReport(ctx context.Context, key string) (domain.ReportResponse, bool) {
	s.mu.Lock()
	last, ok := s.lastReports[key]
	s.mu.Unlock()
	if ok {
		last.Stale = true
		return last, true
	}

	cached, found, err := s.reports.Get(ctx, key)
	if err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", key, err)
		return domain.ReportResponse{}, false
	}
	if !found {
		return domain.ReportResponse{}, false
	}
	cached.Stale = true
	return *cached, true
}

func (s *Service) GetPreferences(ctx context.Context) (domain.Preferences, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Preferences{}, err
	}

	prefs, err := s.repo.GetPreferences(ctx, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Preferences{
			UserID:       actor.UserID,
			Theme:        domain.ThemeSystem,
			DefaultRange: string(domain.RangeWeek),
		}, nil
	}
	if err != nil {
		return domain.Preferences{}, err
	}
	return *prefs, nil
}

// UpdatePreferences merges the requested changes and schedules the
// write. Bursts of updates within the debounce window collapse into a
// single persisted write of the latest state; the merged value is
// returned immediately.
func (s *Service) UpdatePreferences(ctx context.Context, req domain.PreferencesUpdateRequest) (domain.Preferences, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Preferences{}, err
	}

	prefs, err := s.GetPreferences(ctx)
	if err != nil {
		return domain.Preferences{}, err
	}

	if req.Theme != nil {
		switch *req.Theme {
		case domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem:
			prefs.Theme = *req.Theme
		default:
			return domain.Preferences{}, store.ErrInvalidSale
		}
	}
	if req.DefaultRange != nil {
		if _, ok := domain.ParseTimeRange(*req.DefaultRange); !ok {
			return domain.Preferences{}, store.ErrInvalidSale
		}
		prefs.DefaultRange = *req.DefaultRange
	}
	prefs.UpdatedAt = time.Now().UTC()

	snapshot := prefs
	s.debouncerFor(actor.UserID).Do(func() {
		// Detached context: the HTTP request may be long gone by the
		// time the write fires.
		if _, err := s.repo.UpsertPreferences(context.Background(), snapshot); err != nil {
			log.Printf("[service] WARN: failed to persist preferences user=%s: %v", snapshot.UserID, err)
		}
	})

	return prefs, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, actor.UserID, from, to, limit)
}

func (s *Service) debouncerFor(userID string) *debounce.Debouncer {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debouncers[userID]
	if !ok {
		d = debounce.New(s.prefsDebounce)
		s.debouncers[userID] = d
	}
	return d
}

// buildLineItems normalizes the line-item inputs, resolves catalog
// products, and returns the persisted item set plus the sale total.
func (s *Service) buildLineItems(ctx context.Context, userID string, saleID string, inputs []domain.SaleLineItemInput) ([]domain.SaleLineItem, decimal.Decimal, error) {
	productIDs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductID != nil && strings.TrimSpace(*in.ProductID) != "" {
			productIDs = append(productIDs, strings.TrimSpace(*in.ProductID))
		}
	}
	catalog := map[string]domain.Product{}
	if len(productIDs) > 0 {
		var err error
		catalog, err = s.repo.GetProductsByIDs(ctx, userID, productIDs)
		if err != nil {
			return nil, decimal.Zero, err
		}
	}

	items := make([]domain.SaleLineItem, 0, len(inputs))
	total := decimal.Zero
	for _, in := range inputs {
		if in.Quantity < 1 || in.UnitPrice.IsNegative() {
			return nil, decimal.Zero, store.ErrInvalidSale
		}

		item := domain.SaleLineItem{
			ID:          xid.New("line"),
			SaleID:      saleID,
			ProductName: strings.TrimSpace(in.ProductName),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			UnitCost:    in.UnitCost,
		}

		if in.ProductID != nil && strings.TrimSpace(*in.ProductID) != "" {
			id := strings.TrimSpace(*in.ProductID)
			product, ok := catalog[id]
			if !ok {
				return nil, decimal.Zero, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
			}
			item.ProductID = &id
			if item.ProductName == "" {
				item.ProductName = product.Name
			}
			if item.UnitPrice.IsZero() && product.Price.IsPositive() {
				item.UnitPrice = product.Price
			}
			if item.UnitCost == nil {
				cost := product.UnitCost
				item.UnitCost = &cost
			}
		} else if item.ProductName == "" {
			return nil, decimal.Zero, store.ErrInvalidSale
		}

		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		items = append(items, item)
	}

	return items, total, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		UserID:     actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

func reportKey(userID string, rng domain.TimeRange) string {
	return fmt.Sprintf("report:%s:%s", userID, rng)
}
