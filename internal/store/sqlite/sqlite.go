package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store"
)

// Store is the on-disk repository backing the terminal. Local commits land
// here before any network is involved.
type Store struct {
	db *sql.DB
}

// migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id             TEXT PRIMARY KEY,
			remote_id      TEXT NOT NULL DEFAULT '',
			type           TEXT NOT NULL,
			status         TEXT NOT NULL,
			customer_id    TEXT NOT NULL DEFAULT '',
			total_paisa    INTEGER NOT NULL DEFAULT 0,
			paid_paisa     INTEGER NOT NULL DEFAULT 0,
			due_paisa      INTEGER NOT NULL DEFAULT 0,
			payment_status TEXT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			note           TEXT NOT NULL DEFAULT '',
			cancel_reason  TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,
			cancelled_at   TEXT,
			is_synced      INTEGER NOT NULL DEFAULT 0,
			synced_at      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_unsynced ON transactions(is_synced, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_remote ON transactions(remote_id)`,

		`CREATE TABLE IF NOT EXISTS transaction_items (
			id                TEXT PRIMARY KEY,
			transaction_id    TEXT NOT NULL,
			inventory_item_id TEXT NOT NULL,
			effect            TEXT NOT NULL,
			quantity_kg       REAL NOT NULL,
			bags              INTEGER NOT NULL DEFAULT 0,
			unit_price_paisa  INTEGER NOT NULL DEFAULT 0,
			amount_paisa      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_items_tx ON transaction_items(transaction_id)`,

		`CREATE TABLE IF NOT EXISTS inventory_items (
			id              TEXT PRIMARY KEY,
			remote_id       TEXT NOT NULL DEFAULT '',
			type            TEXT NOT NULL,
			variety         TEXT NOT NULL,
			company_id      TEXT NOT NULL DEFAULT '',
			quantity_kg     REAL NOT NULL DEFAULT 0,
			bags            INTEGER NOT NULL DEFAULT 0,
			avg_price_paisa INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			is_synced       INTEGER NOT NULL DEFAULT 0,
			synced_at       TEXT,
			UNIQUE(type, variety, company_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_unsynced ON inventory_items(is_synced, created_at)`,

		`CREATE TABLE IF NOT EXISTS stock_movements (
			id                TEXT PRIMARY KEY,
			inventory_item_id TEXT NOT NULL,
			type              TEXT NOT NULL,
			quantity_kg       REAL NOT NULL,
			bags              INTEGER NOT NULL DEFAULT 0,
			transaction_id    TEXT NOT NULL DEFAULT '',
			note              TEXT NOT NULL DEFAULT '',
			created_at        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements(inventory_item_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_tx ON stock_movements(transaction_id)`,

		`CREATE TABLE IF NOT EXISTS customers (
			id                    TEXT PRIMARY KEY,
			remote_id             TEXT NOT NULL DEFAULT '',
			name                  TEXT NOT NULL,
			phone                 TEXT NOT NULL DEFAULT '',
			balance_paisa         INTEGER NOT NULL DEFAULT 0,
			total_purchases_paisa INTEGER NOT NULL DEFAULT 0,
			total_sales_paisa     INTEGER NOT NULL DEFAULT 0,
			created_at            TEXT NOT NULL,
			updated_at            TEXT NOT NULL,
			is_synced             INTEGER NOT NULL DEFAULT 0,
			synced_at             TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_unsynced ON customers(is_synced, created_at)`,

		`CREATE TABLE IF NOT EXISTS users (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL,
			active     INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sync_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
}

// Open creates or opens the database file and applies the schema. WAL mode
// keeps reads cheap while the sync loop writes.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.Type == "" {
		return nil, store.ErrInvalidTransaction
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO transactions (id, remote_id, type, status, customer_id, total_paisa, paid_paisa, due_paisa,
			payment_status, payment_method, note, cancel_reason, created_at, updated_at, cancelled_at, is_synced, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.RemoteID, tx.Type, tx.Status, tx.CustomerID, tx.TotalPaisa, tx.PaidPaisa, tx.DuePaisa,
		tx.PaymentStatus, tx.PaymentMethod, tx.Note, tx.CancelReason,
		formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt), nullableTime(tx.CancelledAt),
		boolToInt(tx.IsSynced), nullableTime(tx.SyncedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	for _, item := range tx.Items {
		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO transaction_items (id, transaction_id, inventory_item_id, effect, quantity_kg, bags, unit_price_paisa, amount_paisa)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, tx.ID, item.InventoryItemID, item.Effect, item.QuantityKg, item.Bags, item.UnitPricePaisa, item.AmountPaisa)
		if err != nil {
			return nil, err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}
	created := tx
	return &created, nil
}

const transactionColumns = `id, remote_id, type, status, customer_id, total_paisa, paid_paisa, due_paisa,
	payment_status, payment_method, note, cancel_reason, created_at, updated_at, cancelled_at, is_synced, synced_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var createdAt, updatedAt string
	var cancelledAt, syncedAt sql.NullString
	var isSynced int
	err := row.Scan(&tx.ID, &tx.RemoteID, &tx.Type, &tx.Status, &tx.CustomerID,
		&tx.TotalPaisa, &tx.PaidPaisa, &tx.DuePaisa,
		&tx.PaymentStatus, &tx.PaymentMethod, &tx.Note, &tx.CancelReason,
		&createdAt, &updatedAt, &cancelledAt, &isSynced, &syncedAt)
	if err != nil {
		return nil, err
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tx.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if tx.CancelledAt, err = scanNullableTime(cancelledAt); err != nil {
		return nil, err
	}
	if tx.SyncedAt, err = scanNullableTime(syncedAt); err != nil {
		return nil, err
	}
	tx.IsSynced = isSynced == 1
	return &tx, nil
}

func (s *Store) loadItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, inventory_item_id, effect, quantity_kg, bags, unit_price_paisa, amount_paisa
		FROM transaction_items WHERE transaction_id = ? ORDER BY id`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionItem, 0, 4)
	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.InventoryItemID, &item.Effect,
			&item.QuantityKg, &item.Bags, &item.UnitPricePaisa, &item.AmountPaisa); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tx.Items, err = s.loadItems(ctx, tx.ID); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET remote_id = ?, type = ?, status = ?, customer_id = ?, total_paisa = ?,
			paid_paisa = ?, due_paisa = ?, payment_status = ?, payment_method = ?, note = ?, cancel_reason = ?,
			updated_at = ?, cancelled_at = ?, is_synced = ?, synced_at = ?
		WHERE id = ?`,
		tx.RemoteID, tx.Type, tx.Status, tx.CustomerID, tx.TotalPaisa,
		tx.PaidPaisa, tx.DuePaisa, tx.PaymentStatus, tx.PaymentMethod, tx.Note, tx.CancelReason,
		formatTime(tx.UpdatedAt), nullableTime(tx.CancelledAt), boolToInt(tx.IsSynced), nullableTime(tx.SyncedAt),
		tx.ID)
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
	updated := tx
	return &updated, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if tx.IsSynced {
		return store.ErrInvalidTransaction
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = ?`, id); err != nil {
		return err
	}
	if _, err := dbTx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := make([]any, 0, 4)
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.CustomerID != "" {
		query += ` AND customer_id = ?`
		args = append(args, filter.CustomerID)
	}
	if filter.UnsyncedOnly {
		query += ` AND is_synced = 0`
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 16)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range transactions {
		if transactions[i].Items, err = s.loadItems(ctx, transactions[i].ID); err != nil {
			return nil, err
		}
	}
	return transactions, nil
}

func (s *Store) FindTransactionByRemoteID(ctx context.Context, remoteID string) (*domain.Transaction, error) {
	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE remote_id = ?`, remoteID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tx.Items, err = s.loadItems(ctx, tx.ID); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) MarkTransactionSynced(ctx context.Context, id string, remoteID string, at time.Time) error {
	return s.markSynced(ctx, "transactions", id, remoteID, at)
}

func (s *Store) markSynced(ctx context.Context, table string, id string, remoteID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET remote_id = ?, is_synced = 1, synced_at = ? WHERE id = ?`,
		remoteID, formatTime(at), id)
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

const inventoryColumns = `id, remote_id, type, variety, company_id, quantity_kg, bags, avg_price_paisa,
	created_at, updated_at, is_synced, synced_at`

func scanInventoryItem(row interface{ Scan(...any) error }) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	var createdAt, updatedAt string
	var syncedAt sql.NullString
	var isSynced int
	err := row.Scan(&item.ID, &item.RemoteID, &item.Type, &item.Variety, &item.CompanyID,
		&item.QuantityKg, &item.Bags, &item.AvgPricePaisa,
		&createdAt, &updatedAt, &isSynced, &syncedAt)
	if err != nil {
		return nil, err
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if item.SyncedAt, err = scanNullableTime(syncedAt); err != nil {
		return nil, err
	}
	item.IsSynced = isSynced == 1
	return &item, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.ID == "" || item.Type == "" || strings.TrimSpace(item.Variety) == "" {
		return nil, store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, remote_id, type, variety, company_id, quantity_kg, bags, avg_price_paisa,
			created_at, updated_at, is_synced, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.RemoteID, item.Type, item.Variety, item.CompanyID, item.QuantityKg, item.Bags, item.AvgPricePaisa,
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt), boolToInt(item.IsSynced), nullableTime(item.SyncedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := item
	return &created, nil
}

func (s *Store) GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory_items WHERE id = ?`, id)
	item, err := scanInventoryItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

func (s *Store) FindInventoryItem(ctx context.Context, itemType domain.ItemType, variety string, companyID string) (*domain.InventoryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE type = ? AND variety = ? AND company_id = ?`,
		itemType, variety, companyID)
	item, err := scanInventoryItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

func (s *Store) FindInventoryItemByRemoteID(ctx context.Context, remoteID string) (*domain.InventoryItem, error) {
	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory_items WHERE remote_id = ?`, remoteID)
	item, err := scanInventoryItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

func (s *Store) UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_items SET remote_id = ?, type = ?, variety = ?, company_id = ?, quantity_kg = ?,
			bags = ?, avg_price_paisa = ?, updated_at = ?, is_synced = ?, synced_at = ?
		WHERE id = ?`,
		item.RemoteID, item.Type, item.Variety, item.CompanyID, item.QuantityKg,
		item.Bags, item.AvgPricePaisa, formatTime(item.UpdatedAt), boolToInt(item.IsSynced), nullableTime(item.SyncedAt),
		item.ID)
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
	updated := item
	return &updated, nil
}

func (s *Store) ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+inventoryColumns+` FROM inventory_items ORDER BY type, variety`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 16)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *Store) MarkInventoryItemSynced(ctx context.Context, id string, remoteID string, at time.Time) error {
	return s.markSynced(ctx, "inventory_items", id, remoteID, at)
}

func (s *Store) AppendStockMovement(ctx context.Context, movement domain.StockMovement) error {
	if movement.ID == "" || movement.InventoryItemID == "" || movement.Type == "" {
		return store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_movements (id, inventory_item_id, type, quantity_kg, bags, transaction_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		movement.ID, movement.InventoryItemID, movement.Type, movement.QuantityKg, movement.Bags,
		movement.TransactionID, movement.Note, formatTime(movement.CreatedAt))
	return err
}

func (s *Store) ListStockMovements(ctx context.Context, inventoryItemID string, limit int) ([]domain.StockMovement, error) {
	query := `SELECT id, inventory_item_id, type, quantity_kg, bags, transaction_id, note, created_at
		FROM stock_movements WHERE inventory_item_id = ? ORDER BY created_at DESC, id`
	args := []any{inventoryItemID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMovements(ctx, query, args...)
}

func (s *Store) ListStockMovementsByTransaction(ctx context.Context, transactionID string) ([]domain.StockMovement, error) {
	return s.queryMovements(ctx, `SELECT id, inventory_item_id, type, quantity_kg, bags, transaction_id, note, created_at
		FROM stock_movements WHERE transaction_id = ? ORDER BY created_at, id`, transactionID)
}

func (s *Store) queryMovements(ctx context.Context, query string, args ...any) ([]domain.StockMovement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 16)
	for rows.Next() {
		var movement domain.StockMovement
		var createdAt string
		if err := rows.Scan(&movement.ID, &movement.InventoryItemID, &movement.Type, &movement.QuantityKg,
			&movement.Bags, &movement.TransactionID, &movement.Note, &createdAt); err != nil {
			return nil, err
		}
		if movement.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}
	return movements, rows.Err()
}

const customerColumns = `id, remote_id, name, phone, balance_paisa, total_purchases_paisa, total_sales_paisa,
	created_at, updated_at, is_synced, synced_at`

func scanCustomer(row interface{ Scan(...any) error }) (*domain.Customer, error) {
	var customer domain.Customer
	var createdAt, updatedAt string
	var syncedAt sql.NullString
	var isSynced int
	err := row.Scan(&customer.ID, &customer.RemoteID, &customer.Name, &customer.Phone,
		&customer.BalancePaisa, &customer.TotalPurchasesPaisa, &customer.TotalSalesPaisa,
		&createdAt, &updatedAt, &isSynced, &syncedAt)
	if err != nil {
		return nil, err
	}
	if customer.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if customer.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if customer.SyncedAt, err = scanNullableTime(syncedAt); err != nil {
		return nil, err
	}
	customer.IsSynced = isSynced == 1
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, remote_id, name, phone, balance_paisa, total_purchases_paisa, total_sales_paisa,
			created_at, updated_at, is_synced, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID, customer.RemoteID, customer.Name, customer.Phone,
		customer.BalancePaisa, customer.TotalPurchasesPaisa, customer.TotalSalesPaisa,
		formatTime(customer.CreatedAt), formatTime(customer.UpdatedAt),
		boolToInt(customer.IsSynced), nullableTime(customer.SyncedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	customer, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return customer, err
}

func (s *Store) FindCustomerByRemoteID(ctx context.Context, remoteID string) (*domain.Customer, error) {
	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE remote_id = ?`, remoteID)
	customer, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return customer, err
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET remote_id = ?, name = ?, phone = ?, balance_paisa = ?,
			total_purchases_paisa = ?, total_sales_paisa = ?, updated_at = ?, is_synced = ?, synced_at = ?
		WHERE id = ?`,
		customer.RemoteID, customer.Name, customer.Phone, customer.BalancePaisa,
		customer.TotalPurchasesPaisa, customer.TotalSalesPaisa, formatTime(customer.UpdatedAt),
		boolToInt(customer.IsSynced), nullableTime(customer.SyncedAt),
		customer.ID)
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
	updated := customer
	return &updated, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 16)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *customer)
	}
	return customers, rows.Err()
}

func (s *Store) MarkCustomerSynced(ctx context.Context, id string, remoteID string, at time.Time) error {
	return s.markSynced(ctx, "customers", id, remoteID, at)
}

func (s *Store) ListUnsyncedCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE is_synced = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 8)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *customer)
	}
	return customers, rows.Err()
}

func (s *Store) ListUnsyncedInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE is_synced = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 8)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *Store) ListUnsyncedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE is_synced = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 8)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range transactions {
		if transactions[i].Items, err = s.loadItems(ctx, transactions[i].ID); err != nil {
			return nil, err
		}
	}
	return transactions, nil
}

const lastSyncKey = "last_sync_time"

func (s *Store) LastSyncTime(ctx context.Context) (*time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, lastSyncKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	parsed, err := parseTime(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func (s *Store) SetLastSyncTime(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastSyncKey, formatTime(at))
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Password, user.Role, boolToInt(user.Active), formatTime(user.CreatedAt))
	if isUniqueViolation(err) {
		return store.ErrInvalidTransaction
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password, role, active, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 4)
	for rows.Next() {
		var user domain.UserAccount
		var active int
		var createdAt string
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &active, &createdAt); err != nil {
			return nil, err
		}
		user.Active = active == 1
		if user.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
