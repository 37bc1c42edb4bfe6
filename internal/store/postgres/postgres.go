package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store"
)

// Store is the PostgreSQL repository. A terminal normally runs on SQLite;
// this backend serves deployments where several terminals share one mill
// database and the sync loop is pointed at an upstream aggregator.
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

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id             TEXT PRIMARY KEY,
			remote_id      TEXT NOT NULL DEFAULT '',
			type           TEXT NOT NULL,
			status         TEXT NOT NULL,
			customer_id    TEXT NOT NULL DEFAULT '',
			total_paisa    BIGINT NOT NULL DEFAULT 0,
			paid_paisa     BIGINT NOT NULL DEFAULT 0,
			due_paisa      BIGINT NOT NULL DEFAULT 0,
			payment_status TEXT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			note           TEXT NOT NULL DEFAULT '',
			cancel_reason  TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			cancelled_at   TIMESTAMPTZ,
			is_synced      BOOLEAN NOT NULL DEFAULT false,
			synced_at      TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_unsynced ON transactions(is_synced, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id)`,
		`CREATE TABLE IF NOT EXISTS transaction_items (
			id                TEXT PRIMARY KEY,
			transaction_id    TEXT NOT NULL REFERENCES transactions(id),
			inventory_item_id TEXT NOT NULL,
			effect            TEXT NOT NULL,
			quantity_kg       DOUBLE PRECISION NOT NULL,
			bags              INTEGER NOT NULL DEFAULT 0,
			unit_price_paisa  BIGINT NOT NULL DEFAULT 0,
			amount_paisa      BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_items_tx ON transaction_items(transaction_id)`,
		`CREATE TABLE IF NOT EXISTS inventory_items (
			id              TEXT PRIMARY KEY,
			remote_id       TEXT NOT NULL DEFAULT '',
			type            TEXT NOT NULL,
			variety         TEXT NOT NULL,
			company_id      TEXT NOT NULL DEFAULT '',
			quantity_kg     DOUBLE PRECISION NOT NULL DEFAULT 0,
			bags            INTEGER NOT NULL DEFAULT 0,
			avg_price_paisa BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL,
			is_synced       BOOLEAN NOT NULL DEFAULT false,
			synced_at       TIMESTAMPTZ,
			UNIQUE(type, variety, company_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id                TEXT PRIMARY KEY,
			inventory_item_id TEXT NOT NULL,
			type              TEXT NOT NULL,
			quantity_kg       DOUBLE PRECISION NOT NULL,
			bags              INTEGER NOT NULL DEFAULT 0,
			transaction_id    TEXT NOT NULL DEFAULT '',
			note              TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements(inventory_item_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id                    TEXT PRIMARY KEY,
			remote_id             TEXT NOT NULL DEFAULT '',
			name                  TEXT NOT NULL,
			phone                 TEXT NOT NULL DEFAULT '',
			balance_paisa         BIGINT NOT NULL DEFAULT 0,
			total_purchases_paisa BIGINT NOT NULL DEFAULT 0,
			total_sales_paisa     BIGINT NOT NULL DEFAULT 0,
			created_at            TIMESTAMPTZ NOT NULL,
			updated_at            TIMESTAMPTZ NOT NULL,
			is_synced             BOOLEAN NOT NULL DEFAULT false,
			synced_at             TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL,
			active     BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			key   TEXT PRIMARY KEY,
			value TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, tx.ID, tx.RemoteID, tx.Type, tx.Status, tx.CustomerID, tx.TotalPaisa, tx.PaidPaisa, tx.DuePaisa,
		tx.PaymentStatus, tx.PaymentMethod, tx.Note, tx.CancelReason,
		tx.CreatedAt, tx.UpdatedAt, tx.CancelledAt, tx.IsSynced, tx.SyncedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	for _, item := range tx.Items {
		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO transaction_items (id, transaction_id, inventory_item_id, effect, quantity_kg, bags, unit_price_paisa, amount_paisa)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, tx.ID, item.InventoryItemID, item.Effect, item.QuantityKg, item.Bags, item.UnitPricePaisa, item.AmountPaisa)
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
	err := row.Scan(&tx.ID, &tx.RemoteID, &tx.Type, &tx.Status, &tx.CustomerID,
		&tx.TotalPaisa, &tx.PaidPaisa, &tx.DuePaisa,
		&tx.PaymentStatus, &tx.PaymentMethod, &tx.Note, &tx.CancelReason,
		&tx.CreatedAt, &tx.UpdatedAt, &tx.CancelledAt, &tx.IsSynced, &tx.SyncedAt)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) loadItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, inventory_item_id, effect, quantity_kg, bags, unit_price_paisa, amount_paisa
		FROM transaction_items WHERE transaction_id = $1 ORDER BY id
	`, transactionID)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
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
		UPDATE transactions SET remote_id = $1, type = $2, status = $3, customer_id = $4, total_paisa = $5,
			paid_paisa = $6, due_paisa = $7, payment_status = $8, payment_method = $9, note = $10,
			cancel_reason = $11, updated_at = $12, cancelled_at = $13, is_synced = $14, synced_at = $15
		WHERE id = $16
	`, tx.RemoteID, tx.Type, tx.Status, tx.CustomerID, tx.TotalPaisa,
		tx.PaidPaisa, tx.DuePaisa, tx.PaymentStatus, tx.PaymentMethod, tx.Note,
		tx.CancelReason, tx.UpdatedAt, tx.CancelledAt, tx.IsSynced, tx.SyncedAt, tx.ID)
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

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, id); err != nil {
		return err
	}
	if _, err := dbTx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	var conditions []string
	var args []any
	appendCondition := func(expr string, value any) {
		args = append(args, value)
		conditions = append(conditions, strings.Replace(expr, "?", placeholder(len(args)), 1))
	}
	if filter.Type != "" {
		appendCondition("type = ?", filter.Type)
	}
	if filter.Status != "" {
		appendCondition("status = ?", filter.Status)
	}
	if filter.CustomerID != "" {
		appendCondition("customer_id = ?", filter.CustomerID)
	}
	if filter.UnsyncedOnly {
		conditions = append(conditions, "is_synced = false")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT ` + placeholder(len(args))
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

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (s *Store) FindTransactionByRemoteID(ctx context.Context, remoteID string) (*domain.Transaction, error) {
	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE remote_id = $1`, remoteID)
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
		`UPDATE `+table+` SET remote_id = $1, is_synced = true, synced_at = $2 WHERE id = $3`,
		remoteID, at, id)
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
	err := row.Scan(&item.ID, &item.RemoteID, &item.Type, &item.Variety, &item.CompanyID,
		&item.QuantityKg, &item.Bags, &item.AvgPricePaisa,
		&item.CreatedAt, &item.UpdatedAt, &item.IsSynced, &item.SyncedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.ID == "" || item.Type == "" || strings.TrimSpace(item.Variety) == "" {
		return nil, store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, remote_id, type, variety, company_id, quantity_kg, bags, avg_price_paisa,
			created_at, updated_at, is_synced, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, item.ID, item.RemoteID, item.Type, item.Variety, item.CompanyID, item.QuantityKg, item.Bags, item.AvgPricePaisa,
		item.CreatedAt, item.UpdatedAt, item.IsSynced, item.SyncedAt)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory_items WHERE id = $1`, id)
	item, err := scanInventoryItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

func (s *Store) FindInventoryItem(ctx context.Context, itemType domain.ItemType, variety string, companyID string) (*domain.InventoryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE type = $1 AND variety = $2 AND company_id = $3`,
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
	row := s.db.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory_items WHERE remote_id = $1`, remoteID)
	item, err := scanInventoryItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

func (s *Store) UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_items SET remote_id = $1, type = $2, variety = $3, company_id = $4, quantity_kg = $5,
			bags = $6, avg_price_paisa = $7, updated_at = $8, is_synced = $9, synced_at = $10
		WHERE id = $11
	`, item.RemoteID, item.Type, item.Variety, item.CompanyID, item.QuantityKg,
		item.Bags, item.AvgPricePaisa, item.UpdatedAt, item.IsSynced, item.SyncedAt, item.ID)
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
	return s.queryInventory(ctx, `SELECT `+inventoryColumns+` FROM inventory_items ORDER BY type, variety`)
}

func (s *Store) ListUnsyncedInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.queryInventory(ctx, `SELECT `+inventoryColumns+` FROM inventory_items WHERE is_synced = false ORDER BY created_at, id`)
}

func (s *Store) queryInventory(ctx context.Context, query string, args ...any) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, movement.ID, movement.InventoryItemID, movement.Type, movement.QuantityKg, movement.Bags,
		movement.TransactionID, movement.Note, movement.CreatedAt)
	return err
}

func (s *Store) ListStockMovements(ctx context.Context, inventoryItemID string, limit int) ([]domain.StockMovement, error) {
	query := `SELECT id, inventory_item_id, type, quantity_kg, bags, transaction_id, note, created_at
		FROM stock_movements WHERE inventory_item_id = $1 ORDER BY created_at DESC, id`
	args := []any{inventoryItemID}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $2`
	}
	return s.queryMovements(ctx, query, args...)
}

func (s *Store) ListStockMovementsByTransaction(ctx context.Context, transactionID string) ([]domain.StockMovement, error) {
	return s.queryMovements(ctx, `SELECT id, inventory_item_id, type, quantity_kg, bags, transaction_id, note, created_at
		FROM stock_movements WHERE transaction_id = $1 ORDER BY created_at, id`, transactionID)
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
		if err := rows.Scan(&movement.ID, &movement.InventoryItemID, &movement.Type, &movement.QuantityKg,
			&movement.Bags, &movement.TransactionID, &movement.Note, &movement.CreatedAt); err != nil {
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
	err := row.Scan(&customer.ID, &customer.RemoteID, &customer.Name, &customer.Phone,
		&customer.BalancePaisa, &customer.TotalPurchasesPaisa, &customer.TotalSalesPaisa,
		&customer.CreatedAt, &customer.UpdatedAt, &customer.IsSynced, &customer.SyncedAt)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, remote_id, name, phone, balance_paisa, total_purchases_paisa, total_sales_paisa,
			created_at, updated_at, is_synced, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, customer.ID, customer.RemoteID, customer.Name, customer.Phone,
		customer.BalancePaisa, customer.TotalPurchasesPaisa, customer.TotalSalesPaisa,
		customer.CreatedAt, customer.UpdatedAt, customer.IsSynced, customer.SyncedAt)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE remote_id = $1`, remoteID)
	customer, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return customer, err
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET remote_id = $1, name = $2, phone = $3, balance_paisa = $4,
			total_purchases_paisa = $5, total_sales_paisa = $6, updated_at = $7, is_synced = $8, synced_at = $9
		WHERE id = $10
	`, customer.RemoteID, customer.Name, customer.Phone, customer.BalancePaisa,
		customer.TotalPurchasesPaisa, customer.TotalSalesPaisa, customer.UpdatedAt,
		customer.IsSynced, customer.SyncedAt, customer.ID)
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
	return s.queryCustomers(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name`)
}

func (s *Store) ListUnsyncedCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `SELECT `+customerColumns+` FROM customers WHERE is_synced = false ORDER BY created_at, id`)
}

func (s *Store) queryCustomers(ctx context.Context, query string, args ...any) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *Store) ListUnsyncedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE is_synced = false ORDER BY created_at, id`)
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
	var at time.Time
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = $1`, lastSyncKey).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *Store) SetLastSyncTime(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, lastSyncKey, at)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
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
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
