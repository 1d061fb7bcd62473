package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"lapakku/backend/internal/domain"
	"lapakku/backend/internal/store"
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

func (s *Store) ListProducts(ctx context.Context, userID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, category, price, unit_cost, quantity, active, created_at
		FROM products
		WHERE user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Category, &p.Price, &p.UnitCost, &p.Quantity, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.UserID == "" || product.Name == "" {
		return nil, store.ErrInvalidSale
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, user_id, name, category, price, unit_cost, quantity, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.ID, product.UserID, product.Name, product.Category, product.Price, product.UnitCost, product.Quantity, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, userID string, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, category, price, unit_cost, quantity, active, created_at
		FROM products
		WHERE id = $1 AND user_id = $2
	`, productID, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.Category, &p.Price, &p.UnitCost, &p.Quantity, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.UserID == "" || product.Name == "" {
		return nil, store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, category = $4, price = $5, unit_cost = $6, quantity = $7, active = $8, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, product.ID, product.UserID, product.Name, product.Category, product.Price, product.UnitCost, product.Quantity, product.Active)
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

	updated := product
	return &updated, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, userID string, productIDs []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, category, price, unit_cost, quantity, active, created_at
		FROM products
		WHERE user_id = $1 AND id = ANY($2)
	`, userID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Category, &p.Price, &p.UnitCost, &p.Quantity, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateSale inserts the sale with its line items and decrements stock
// for product-linked lines in one serializable transaction.
func (s *Store) CreateSale(ctx context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error) {
	if sale.ID == "" || sale.UserID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidSale
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	needed := make(map[string]int)
	for _, item := range sale.Items {
		if item.ProductID != nil && *item.ProductID != "" {
			needed[*item.ProductID] += item.Quantity
		}
	}
	for productID, qty := range needed {
		if err := adjustStockTx(ctx, tx, sale.UserID, productID, -qty); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, user_id, market_id, market_location, total_amount, payment_method, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.UserID, nullIfEmptyPtr(sale.MarketID), sale.MarketLocation, sale.TotalAmount, sale.PaymentMethod, sale.Notes, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	if err := insertLineItemsTx(ctx, tx, sale.ID, sale.Items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, userID string, saleID string) (*domain.SaleRecord, error) {
	var sale domain.SaleRecord
	var marketID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, market_id, market_location, total_amount, payment_method, notes, created_at
		FROM sales
		WHERE id = $1 AND user_id = $2
	`, saleID, userID).Scan(&sale.ID, &sale.UserID, &marketID, &sale.MarketLocation, &sale.TotalAmount, &sale.PaymentMethod, &sale.Notes, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if marketID.Valid {
		id := marketID.String
		sale.MarketID = &id
	}

	items, err := s.listLineItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]

	return &sale, nil
}

func (s *Store) ListSalesSince(ctx context.Context, userID string, since time.Time, until time.Time) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, market_id, market_location, total_amount, payment_method, notes, created_at
		FROM sales
		WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at, id
	`, userID, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 64)
	saleIDs := make([]string, 0, 64)
	for rows.Next() {
		var sale domain.SaleRecord
		var marketID sql.NullString
		if err := rows.Scan(&sale.ID, &sale.UserID, &marketID, &sale.MarketLocation, &sale.TotalAmount, &sale.PaymentMethod, &sale.Notes, &sale.CreatedAt); err != nil {
			return nil, err
		}
		if marketID.Valid {
			id := marketID.String
			sale.MarketID = &id
		}
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemsBySale, err := s.listLineItems(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = itemsBySale[sales[i].ID]
	}

	return sales, nil
}

// ApplySaleEdit updates the parent sale, replaces its line items, and
// applies the stock deltas in one serializable transaction. Any
// shortage rolls the whole edit back.
func (s *Store) ApplySaleEdit(ctx context.Context, sale domain.SaleRecord, deltas []domain.StockDelta) (*domain.SaleRecord, error) {
	if sale.ID == "" || sale.UserID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidSale
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range deltas {
		if err := adjustStockTx(ctx, tx, sale.UserID, d.ProductID, d.Delta); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET total_amount = $3, payment_method = $4, notes = $5
		WHERE id = $1 AND user_id = $2
	`, sale.ID, sale.UserID, sale.TotalAmount, sale.PaymentMethod, sale.Notes)
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return nil, err
	}
	if err := insertLineItemsTx(ctx, tx, sale.ID, sale.Items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := sale
	return &saved, nil
}

func (s *Store) DeleteSale(ctx context.Context, userID string, saleID string, restock []domain.StockDelta) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range restock {
		if err := adjustStockTx(ctx, tx, userID, d.ProductID, d.Delta); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1 AND user_id = $2`, saleID, userID)
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

	return tx.Commit()
}

func (s *Store) CreateCost(ctx context.Context, cost domain.CostRecord) (*domain.CostRecord, error) {
	if cost.ID == "" || cost.UserID == "" || cost.Description == "" {
		return nil, store.ErrInvalidSale
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO costs (id, user_id, market_id, description, category, amount, recurring, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, cost.ID, cost.UserID, nullIfEmptyPtr(cost.MarketID), cost.Description, cost.Category, cost.Amount, cost.Recurring, cost.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	created := cost
	return &created, nil
}

func (s *Store) ListCostsSince(ctx context.Context, userID string, since time.Time, until time.Time) ([]domain.CostRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, market_id, description, category, amount, recurring, created_at
		FROM costs
		WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at, id
	`, userID, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	costs := make([]domain.CostRecord, 0, 32)
	for rows.Next() {
		var cost domain.CostRecord
		var marketID sql.NullString
		if err := rows.Scan(&cost.ID, &cost.UserID, &marketID, &cost.Description, &cost.Category, &cost.Amount, &cost.Recurring, &cost.CreatedAt); err != nil {
			return nil, err
		}
		if marketID.Valid {
			id := marketID.String
			cost.MarketID = &id
		}
		costs = append(costs, cost)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return costs, nil
}

func (s *Store) DeleteCost(ctx context.Context, userID string, costID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM costs WHERE id = $1 AND user_id = $2`, costID, userID)
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

func (s *Store) OpenMarketSession(ctx context.Context, session domain.MarketSession) (*domain.MarketSession, error) {
	if session.ID == "" || session.UserID == "" || session.Location == "" {
		return nil, store.ErrInvalidSale
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM market_sessions WHERE user_id = $1 AND status = $2
	`, session.UserID, domain.MarketStatusOpen).Scan(&existing)
	if err == nil {
		return nil, store.ErrSessionOpen
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO market_sessions (id, user_id, location, status, opened_at)
		VALUES ($1,$2,$3,$4,$5)
	`, session.ID, session.UserID, session.Location, session.Status, session.OpenedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	opened := session
	return &opened, nil
}

func (s *Store) CloseActiveMarketSession(ctx context.Context, userID string, closedAt time.Time) (*domain.MarketSession, error) {
	var session domain.MarketSession
	var closed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		UPDATE market_sessions
		SET status = $3, closed_at = $2
		WHERE user_id = $1 AND status = $4
		RETURNING id, user_id, location, status, opened_at, closed_at
	`, userID, closedAt, domain.MarketStatusClosed, domain.MarketStatusOpen).
		Scan(&session.ID, &session.UserID, &session.Location, &session.Status, &session.OpenedAt, &closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if closed.Valid {
		t := closed.Time
		session.ClosedAt = &t
	}
	return &session, nil
}

func (s *Store) GetActiveMarketSession(ctx context.Context, userID string) (*domain.MarketSession, error) {
	var session domain.MarketSession
	var closed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, location, status, opened_at, closed_at
		FROM market_sessions
		WHERE user_id = $1 AND status = $2
	`, userID, domain.MarketStatusOpen).
		Scan(&session.ID, &session.UserID, &session.Location, &session.Status, &session.OpenedAt, &closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if closed.Valid {
		t := closed.Time
		session.ClosedAt = &t
	}
	return &session, nil
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	var prefs domain.Preferences
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, theme, default_range, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`, userID).Scan(&prefs.UserID, &prefs.Theme, &prefs.DefaultRange, &prefs.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &prefs, nil
}

func (s *Store) UpsertPreferences(ctx context.Context, prefs domain.Preferences) (*domain.Preferences, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, theme, default_range, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE
		SET theme = EXCLUDED.theme, default_range = EXCLUDED.default_range, updated_at = EXCLUDED.updated_at
	`, prefs.UserID, prefs.Theme, prefs.DefaultRange, prefs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := prefs
	return &saved, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, userID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
		LIMIT $4
	`, userID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrInvalidSale
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
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

// adjustStockTx applies a signed quantity change and fails with
// ErrInsufficientStock when the decrement would drive stock negative.
func adjustStockTx(ctx context.Context, tx *sql.Tx, userID string, productID string, delta int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $3, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND quantity + $3 >= 0
	`, productID, userID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM products WHERE id = $1 AND user_id = $2)
		`, productID, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrInsufficientStock
	}
	return nil
}

func insertLineItemsTx(ctx context.Context, tx *sql.Tx, saleID string, items []domain.SaleLineItem) error {
	for _, item := range items {
		var unitCost decimal.NullDecimal
		if item.UnitCost != nil {
			unitCost = decimal.NullDecimal{Decimal: *item.UnitCost, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, product_name, quantity, unit_price, unit_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, saleID, nullIfEmptyPtr(item.ProductID), item.ProductName, item.Quantity, item.UnitPrice, unitCost)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) listLineItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleLineItem, error) {
	result := make(map[string][]domain.SaleLineItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price, unit_cost
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleLineItem
		var productID sql.NullString
		var unitCost decimal.NullDecimal
		if err := rows.Scan(&item.ID, &item.SaleID, &productID, &item.ProductName, &item.Quantity, &item.UnitPrice, &unitCost); err != nil {
			return nil, err
		}
		if productID.Valid {
			id := productID.String
			item.ProductID = &id
		}
		if unitCost.Valid {
			cost := unitCost.Decimal
			item.UnitCost = &cost
		}
		result[item.SaleID] = append(result[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmptyPtr(val *string) any {
	if val == nil || *val == "" {
		return nil
	}
	return *val
}
