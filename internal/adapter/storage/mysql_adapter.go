package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/port"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id                VARCHAR(36)    NOT NULL PRIMARY KEY,
		name              VARCHAR(255)   NOT NULL,
		category          VARCHAR(128)   NOT NULL,
		price             DECIMAL(14,2)  NOT NULL,
		cost_price        DECIMAL(14,2)  NOT NULL,
		initial_stock     INT            NOT NULL,
		stock_quantity    INT            NOT NULL,
		reorder_threshold INT            NOT NULL,
		version           BIGINT         NOT NULL DEFAULT 0,
		created_at        DATETIME(6)    NOT NULL,
		updated_at        DATETIME(6)    NOT NULL,
		CHECK (stock_quantity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id             VARCHAR(36)  NOT NULL PRIMARY KEY,
		seq            BIGINT       NOT NULL AUTO_INCREMENT UNIQUE,
		product_id     VARCHAR(36)  NOT NULL,
		quantity_delta INT          NOT NULL,
		kind           VARCHAR(16)  NOT NULL,
		actor_id       VARCHAR(128) NOT NULL,
		reason         VARCHAR(255) NOT NULL DEFAULT '',
		reference      VARCHAR(36)  NOT NULL DEFAULT '',
		stock_after    INT          NOT NULL,
		created_at     DATETIME(6)  NOT NULL,
		INDEX idx_inventory_product (product_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              VARCHAR(36)   NOT NULL PRIMARY KEY,
		status          VARCHAR(16)   NOT NULL,
		subtotal        DECIMAL(14,2) NOT NULL,
		tax_amount      DECIMAL(14,2) NOT NULL,
		discount_amount DECIMAL(14,2) NOT NULL,
		total_amount    DECIMAL(14,2) NOT NULL,
		actor_id        VARCHAR(128)  NOT NULL,
		version         BIGINT        NOT NULL DEFAULT 0,
		created_at      DATETIME(6)   NOT NULL,
		updated_at      DATETIME(6)   NOT NULL,
		completed_at    DATETIME(6)   NULL,
		cancelled_at    DATETIME(6)   NULL,
		INDEX idx_orders_status_created (status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id          VARCHAR(36)   NOT NULL PRIMARY KEY,
		seq         BIGINT        NOT NULL AUTO_INCREMENT UNIQUE,
		order_id    VARCHAR(36)   NOT NULL,
		product_id  VARCHAR(36)   NOT NULL,
		quantity    INT           NOT NULL,
		unit_price  DECIMAL(14,2) NOT NULL,
		total_price DECIMAL(14,2) NOT NULL,
		created_at  DATETIME(6)   NOT NULL,
		INDEX idx_order_items_order (order_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id         VARCHAR(36)   NOT NULL PRIMARY KEY,
		seq        BIGINT        NOT NULL AUTO_INCREMENT UNIQUE,
		order_id   VARCHAR(36)   NOT NULL,
		amount     DECIMAL(14,2) NOT NULL,
		method     VARCHAR(32)   NOT NULL,
		notes      VARCHAR(512)  NOT NULL DEFAULT '',
		actor_id   VARCHAR(128)  NOT NULL,
		created_at DATETIME(6)   NOT NULL,
		INDEX idx_payments_order (order_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS financial_transactions (
		id          VARCHAR(36)   NOT NULL PRIMARY KEY,
		kind        VARCHAR(16)   NOT NULL,
		amount      DECIMAL(14,2) NOT NULL,
		order_id    VARCHAR(36)   NULL,
		actor_id    VARCHAR(128)  NOT NULL,
		description VARCHAR(512)  NOT NULL DEFAULT '',
		created_at  DATETIME(6)   NOT NULL,
		INDEX idx_finance_created (created_at)
	)`,
}

type MySQLAdapter struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewMySQLAdapter expects a DSN with parseTime=true. Row lock waits inside a
// transaction give up after lockTimeout (rounded up to whole seconds).
func NewMySQLAdapter(db *sql.DB, lockTimeout time.Duration) *MySQLAdapter {
	return &MySQLAdapter{db: db, lockTimeout: lockTimeout}
}

// Migrate creates the tables when missing.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapMySQLError(err))
	}
	defer tx.Rollback()

	if secs := lockWaitSeconds(m.lockTimeout); secs > 0 {
		if _, err := tx.ExecContext(ctx, `SET SESSION innodb_lock_wait_timeout = ?`, secs); err != nil {
			return fmt.Errorf("set lock wait timeout: %w", err)
		}
	}

	if err := fn(ctx, &mysqlTx{mysqlReader: mysqlReader{q: tx, forUpdate: true}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapMySQLError(err))
	}
	return nil
}

func (m *MySQLAdapter) Snapshot(ctx context.Context, fn func(ctx context.Context, r port.Reader) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", mapMySQLError(err))
	}
	defer tx.Rollback()

	if err := fn(ctx, mysqlReader{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func lockWaitSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// mapMySQLError turns lock-wait timeouts and deadlocks into retryable
// conflicts and duplicate entries into ErrDuplicateKey.
func mapMySQLError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
		return fmt.Errorf("%w: %v", domain.ErrConcurrentModification, err)
	case mysqlErrDuplicateEntry:
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type mysqlReader struct {
	q         querier
	forUpdate bool
}

func (r mysqlReader) lockClause() string {
	if r.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

const productColumns = `id, name, category, price, cost_price, initial_stock, stock_quantity,
	reorder_threshold, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.CostPrice, &p.InitialStock,
		&p.StockQuantity, &p.ReorderThreshold, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r mysqlReader) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`+r.lockClause(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", mapMySQLError(err))
	}
	return p, nil
}

func (r mysqlReader) ListProducts(ctx context.Context, afterID string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", mapMySQLError(err))
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const orderColumns = `id, status, subtotal, tax_amount, discount_amount, total_amount, actor_id,
	version, created_at, updated_at, completed_at, cancelled_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o         domain.Order
		completed sql.NullTime
		cancelled sql.NullTime
	)
	err := row.Scan(&o.ID, &o.Status, &o.Subtotal, &o.TaxAmount, &o.DiscountAmount, &o.TotalAmount,
		&o.ActorID, &o.Version, &o.CreatedAt, &o.UpdatedAt, &completed, &cancelled)
	if completed.Valid {
		o.CompletedAt = &completed.Time
	}
	if cancelled.Valid {
		o.CancelledAt = &cancelled.Time
	}
	return o, err
}

func (r mysqlReader) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`+r.lockClause(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", mapMySQLError(err))
	}

	items, err := r.ListOrderItems(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	o.ItemIDs = make([]string, 0, len(items))
	for _, it := range items {
		o.ItemIDs = append(o.ItemIDs, it.ID)
	}
	return o, nil
}

func (r mysqlReader) ListOrders(ctx context.Context, f port.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.To)
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", mapMySQLError(err))
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const itemColumns = `id, order_id, product_id, quantity, unit_price, total_price, created_at`

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var it domain.OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.CreatedAt)
	return it, err
}

func (r mysqlReader) GetOrderItem(ctx context.Context, id string) (domain.OrderItem, error) {
	it, err := scanItem(r.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE id = ?`+r.lockClause(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OrderItem{}, fmt.Errorf("order item %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("query order item: %w", mapMySQLError(err))
	}
	return it, nil
}

func (r mysqlReader) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = ? ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", mapMySQLError(err))
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r mysqlReader) ListInventoryTransactions(ctx context.Context, productID string) ([]domain.InventoryTransaction, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, quantity_delta, kind, actor_id, reason, reference, stock_after, created_at
		FROM inventory_transactions WHERE product_id = ? ORDER BY seq`, productID)
	if err != nil {
		return nil, fmt.Errorf("query inventory transactions: %w", mapMySQLError(err))
	}
	defer rows.Close()

	var out []domain.InventoryTransaction
	for rows.Next() {
		var e domain.InventoryTransaction
		if err := rows.Scan(&e.ID, &e.ProductID, &e.QuantityDelta, &e.Kind, &e.ActorID,
			&e.Reason, &e.Reference, &e.StockAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory transaction: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r mysqlReader) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, amount, method, notes, actor_id, created_at
		FROM payments WHERE order_id = ? ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", mapMySQLError(err))
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Notes, &p.ActorID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r mysqlReader) ListFinancialTransactions(ctx context.Context, from, to time.Time) ([]domain.FinancialTransaction, error) {
	query := `SELECT id, kind, amount, order_id, actor_id, description, created_at
		FROM financial_transactions WHERE 1 = 1`
	var args []any
	if !from.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, from)
	}
	if !to.IsZero() {
		query += " AND created_at < ?"
		args = append(args, to)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query financial transactions: %w", mapMySQLError(err))
	}
	defer rows.Close()

	var out []domain.FinancialTransaction
	for rows.Next() {
		var (
			ft      domain.FinancialTransaction
			orderID sql.NullString
		)
		if err := rows.Scan(&ft.ID, &ft.Kind, &ft.Amount, &orderID, &ft.ActorID, &ft.Description, &ft.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan financial transaction: %w", err)
		}
		ft.OrderID = orderID.String
		out = append(out, ft)
	}
	return out, rows.Err()
}

type mysqlTx struct {
	mysqlReader
}

func (t *mysqlTx) InsertProduct(ctx context.Context, p domain.Product) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, cost_price, initial_stock, stock_quantity,
			reorder_threshold, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Category, p.Price, p.CostPrice, p.InitialStock, p.StockQuantity,
		p.ReorderThreshold, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", mapMySQLError(err))
	}
	return nil
}

func (t *mysqlTx) UpdateProduct(ctx context.Context, p domain.Product) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE products
		SET name = ?, category = ?, price = ?, cost_price = ?, reorder_threshold = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		p.Name, p.Category, p.Price, p.CostPrice, p.ReorderThreshold, p.UpdatedAt, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", mapMySQLError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := t.GetProduct(ctx, p.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: product %s version %d is stale", domain.ErrConcurrentModification, p.ID, p.Version)
	}
	return nil
}

// ApplyStockDelta checks and applies the delta in one UPDATE, so no other
// writer can slip between the stock check and the write.
func (t *mysqlTx) ApplyStockDelta(ctx context.Context, productID string, delta int) (int, error) {
	result, err := t.q.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ? AND (? >= 0 OR stock_quantity + ? >= 0)`,
		delta, productID, delta, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("update stock: %w", mapMySQLError(err))
	}

	rows, _ := result.RowsAffected()
	p, err := t.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return p.StockQuantity, fmt.Errorf("%w: product %s has %d, requested %d",
			domain.ErrInsufficientStock, productID, p.StockQuantity, -delta)
	}
	return p.StockQuantity, nil
}

func (t *mysqlTx) InsertInventoryTransaction(ctx context.Context, e domain.InventoryTransaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO inventory_transactions (id, product_id, quantity_delta, kind, actor_id, reason,
			reference, stock_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProductID, e.QuantityDelta, e.Kind, e.ActorID, e.Reason, e.Reference, e.StockAfter, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inventory transaction: %w", mapMySQLError(err))
	}
	return nil
}

func (t *mysqlTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (id, status, subtotal, tax_amount, discount_amount, total_amount, actor_id,
			version, created_at, updated_at, completed_at, cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Status, o.Subtotal, o.TaxAmount, o.DiscountAmount, o.TotalAmount, o.ActorID,
		o.Version, o.CreatedAt, o.UpdatedAt, o.CompletedAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapMySQLError(err))
	}
	return nil
}

func (t *mysqlTx) UpdateOrder(ctx context.Context, o domain.Order) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, subtotal = ?, tax_amount = ?, discount_amount = ?, total_amount = ?,
			updated_at = ?, completed_at = ?, cancelled_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		o.Status, o.Subtotal, o.TaxAmount, o.DiscountAmount, o.TotalAmount,
		o.UpdatedAt, o.CompletedAt, o.CancelledAt, o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", mapMySQLError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: order %s version %d is stale", domain.ErrConcurrentModification, o.ID, o.Version)
	}
	return nil
}

func (t *mysqlTx) InsertOrderItem(ctx context.Context, it domain.OrderItem) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, total_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPrice, it.TotalPrice, it.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order item: %w", mapMySQLError(err))
	}
	return nil
}

func (t *mysqlTx) DeleteOrderItem(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM order_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order item: %w", mapMySQLError(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("order item %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *mysqlTx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, method, notes, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.Amount, p.Method, p.Notes, p.ActorID, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", mapMySQLError(err))
	}
	return nil
}

func (t *mysqlTx) InsertFinancialTransaction(ctx context.Context, ft domain.FinancialTransaction) error {
	var orderID sql.NullString
	if ft.OrderID != "" {
		orderID = sql.NullString{String: ft.OrderID, Valid: true}
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO financial_transactions (id, kind, amount, order_id, actor_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ft.ID, ft.Kind, ft.Amount, orderID, ft.ActorID, ft.Description, ft.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert financial transaction: %w", mapMySQLError(err))
	}
	return nil
}
