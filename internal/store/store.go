package store

import (
	"context"
	"errors"
	"time"

	"millbook/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

type Repository interface {
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// DeleteTransaction removes a never-synced row. Synced rows are
	// immutable history and only move through status changes.
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	FindTransactionByRemoteID(ctx context.Context, remoteID string) (*domain.Transaction, error)
	MarkTransactionSynced(ctx context.Context, id string, remoteID string, at time.Time) error

	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error)
	FindInventoryItem(ctx context.Context, itemType domain.ItemType, variety string, companyID string) (*domain.InventoryItem, error)
	FindInventoryItemByRemoteID(ctx context.Context, remoteID string) (*domain.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error)
	MarkInventoryItemSynced(ctx context.Context, id string, remoteID string, at time.Time) error

	AppendStockMovement(ctx context.Context, movement domain.StockMovement) error
	ListStockMovements(ctx context.Context, inventoryItemID string, limit int) ([]domain.StockMovement, error)
	ListStockMovementsByTransaction(ctx context.Context, transactionID string) ([]domain.StockMovement, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByRemoteID(ctx context.Context, remoteID string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	MarkCustomerSynced(ctx context.Context, id string, remoteID string, at time.Time) error

	ListUnsyncedCustomers(ctx context.Context) ([]domain.Customer, error)
	ListUnsyncedInventoryItems(ctx context.Context) ([]domain.InventoryItem, error)
	ListUnsyncedTransactions(ctx context.Context) ([]domain.Transaction, error)

	LastSyncTime(ctx context.Context) (*time.Time, error)
	SetLastSyncTime(ctx context.Context, at time.Time) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
