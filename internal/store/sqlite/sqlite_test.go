package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "millbook-test.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedItem(t *testing.T, s *Store, id string, itemType domain.ItemType, variety string) {
	t.Helper()
	now := time.Now().UTC()
	if _, err := s.CreateInventoryItem(context.Background(), domain.InventoryItem{
		ID: id, Type: itemType, Variety: variety, CompanyID: "mill-1",
		QuantityKg: 1000, Bags: 20, AvgPricePaisa: 2200,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedItem(t, s, "inv-1", domain.ItemTypeRice, "Sona Masoori")
	now := time.Now().UTC().Truncate(time.Millisecond)

	tx := domain.Transaction{
		ID:     "txn-1",
		Type:   domain.TxTypeSell,
		Status: domain.TxStatusCompleted,
		Items: []domain.TransactionItem{
			{
				ID: "txi-1", TransactionID: "txn-1", InventoryItemID: "inv-1",
				Effect: domain.EffectStockOut, QuantityKg: 50, Bags: 1,
				UnitPricePaisa: 10000, AmountPaisa: 500000,
			},
		},
		TotalPaisa:    500000,
		PaidPaisa:     300000,
		DuePaisa:      200000,
		PaymentStatus: domain.PaymentStatusPartial,
		PaymentMethod: "cash",
		Note:          "fifty kilos",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	got, err := s.GetTransaction(ctx, "txn-1")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if got.TotalPaisa != 500000 || got.DuePaisa != 200000 {
		t.Fatalf("amounts lost in round trip: %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].Effect != domain.EffectStockOut {
		t.Fatalf("items lost in round trip: %+v", got.Items)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at drifted: want %v got %v", now, got.CreatedAt)
	}
	if got.IsSynced {
		t.Fatal("new transaction must be unsynced")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTransaction(context.Background(), "txn-missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedItem(t, s, "inv-1", domain.ItemTypeRice, "Sona Masoori")

	base := time.Now().UTC().Add(-time.Hour)
	for i, spec := range []struct {
		id     string
		txType domain.TransactionType
		status domain.TransactionStatus
	}{
		{"txn-a", domain.TxTypeSell, domain.TxStatusCompleted},
		{"txn-b", domain.TxTypeBuy, domain.TxStatusCompleted},
		{"txn-c", domain.TxTypeSell, domain.TxStatusCancelled},
	} {
		at := base.Add(time.Duration(i) * time.Minute)
		if _, err := s.CreateTransaction(ctx, domain.Transaction{
			ID: spec.id, Type: spec.txType, Status: spec.status,
			PaymentStatus: domain.PaymentStatusCompleted,
			CreatedAt:     at, UpdatedAt: at,
		}); err != nil {
			t.Fatalf("create %s: %v", spec.id, err)
		}
	}

	sells, err := s.ListTransactions(ctx, domain.TransactionFilter{Type: domain.TxTypeSell})
	if err != nil {
		t.Fatalf("list sells: %v", err)
	}
	if len(sells) != 2 {
		t.Fatalf("expected 2 sells, got %d", len(sells))
	}

	cancelled, err := s.ListTransactions(ctx, domain.TransactionFilter{Status: domain.TxStatusCancelled})
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].ID != "txn-c" {
		t.Fatalf("expected only txn-c, got %+v", cancelled)
	}

	limited, err := s.ListTransactions(ctx, domain.TransactionFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "txn-c" {
		t.Fatalf("expected newest transaction first, got %+v", limited)
	}
}

func TestMarkTransactionSyncedAndUnsyncedList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"txn-1", "txn-2"} {
		if _, err := s.CreateTransaction(ctx, domain.Transaction{
			ID: id, Type: domain.TxTypeSell, Status: domain.TxStatusCompleted,
			PaymentStatus: domain.PaymentStatusCompleted,
			CreatedAt:     now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	if err := s.MarkTransactionSynced(ctx, "txn-1", "remote-1", now); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	unsynced, err := s.ListUnsyncedTransactions(ctx)
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].ID != "txn-2" {
		t.Fatalf("expected only txn-2 pending, got %+v", unsynced)
	}

	synced, err := s.FindTransactionByRemoteID(ctx, "remote-1")
	if err != nil {
		t.Fatalf("find by remote id: %v", err)
	}
	if synced.ID != "txn-1" || !synced.IsSynced || synced.SyncedAt == nil {
		t.Fatalf("sync mark lost: %+v", synced)
	}
}

func TestDeleteTransactionRefusesSyncedRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.CreateTransaction(ctx, domain.Transaction{
		ID: "txn-1", Type: domain.TxTypeSell, Status: domain.TxStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Items: []domain.TransactionItem{
			{ID: "txi-1", TransactionID: "txn-1", InventoryItemID: "inv-1", Effect: domain.EffectStockOut, QuantityKg: 5},
		},
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if err := s.DeleteTransaction(ctx, "txn-1"); err != nil {
		t.Fatalf("delete pending transaction: %v", err)
	}
	if _, err := s.GetTransaction(ctx, "txn-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected row gone, got %v", err)
	}

	if _, err := s.CreateTransaction(ctx, domain.Transaction{
		ID: "txn-2", Type: domain.TxTypeSell, Status: domain.TxStatusCompleted,
		PaymentStatus: domain.PaymentStatusCompleted,
		CreatedAt:     now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if err := s.MarkTransactionSynced(ctx, "txn-2", "remote-2", now); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if err := s.DeleteTransaction(ctx, "txn-2"); err == nil {
		t.Fatal("expected refusal to delete a synced transaction")
	}
}

func TestInventoryUniqueKeyEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedItem(t, s, "inv-1", domain.ItemTypePaddy, "Sona Masoori")

	now := time.Now().UTC()
	_, err := s.CreateInventoryItem(ctx, domain.InventoryItem{
		ID: "inv-2", Type: domain.ItemTypePaddy, Variety: "Sona Masoori", CompanyID: "mill-1",
		CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected unique violation mapped to ErrInvalidTransaction, got %v", err)
	}

	found, err := s.FindInventoryItem(ctx, domain.ItemTypePaddy, "Sona Masoori", "mill-1")
	if err != nil {
		t.Fatalf("find inventory item: %v", err)
	}
	if found.ID != "inv-1" {
		t.Fatalf("expected inv-1, got %s", found.ID)
	}
}

func TestStockMovementsOrderedNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedItem(t, s, "inv-1", domain.ItemTypeRice, "Sona Masoori")

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"mov-1", "mov-2", "mov-3"} {
		if err := s.AppendStockMovement(ctx, domain.StockMovement{
			ID: id, InventoryItemID: "inv-1", Type: domain.MovementStockIn,
			QuantityKg: 10, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	movements, err := s.ListStockMovements(ctx, "inv-1", 2)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 2 || movements[0].ID != "mov-3" {
		t.Fatalf("expected newest first with limit, got %+v", movements)
	}
}

func TestCustomerBalancePersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := s.CreateCustomer(ctx, domain.Customer{
		ID: "cust-1", Name: "Ravi Traders", Phone: "9822001100",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	created.BalancePaisa = -150000
	created.TotalPurchasesPaisa = 150000
	created.IsSynced = false
	if _, err := s.UpdateCustomer(ctx, *created); err != nil {
		t.Fatalf("update customer: %v", err)
	}

	got, err := s.GetCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if got.BalancePaisa != -150000 {
		t.Fatalf("expected negative balance preserved, got %d", got.BalancePaisa)
	}
}

func TestLastSyncTimeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.LastSyncTime(ctx)
	if err != nil {
		t.Fatalf("last sync time: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil before any sync, got %v", got)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.SetLastSyncTime(ctx, at); err != nil {
		t.Fatalf("set last sync time: %v", err)
	}
	got, err = s.LastSyncTime(ctx)
	if err != nil {
		t.Fatalf("last sync time: %v", err)
	}
	if got == nil || !got.Equal(at) {
		t.Fatalf("expected %v, got %v", at, got)
	}

	// Overwrite on subsequent cycles.
	later := at.Add(time.Minute)
	if err := s.SetLastSyncTime(ctx, later); err != nil {
		t.Fatalf("set last sync time: %v", err)
	}
	got, _ = s.LastSyncTime(ctx)
	if got == nil || !got.Equal(later) {
		t.Fatalf("expected %v, got %v", later, got)
	}
}

func TestUserAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.CreateUser(ctx, domain.UserAccount{
		Username: "admin", Password: "$2a$10$fakehash", Role: "admin", Active: true, CreatedAt: now,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "admin" || !users[0].Active {
		t.Fatalf("unexpected users %+v", users)
	}
}
