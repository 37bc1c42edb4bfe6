package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store"
	"millbook/backend/internal/store/memory"
)

func newTestInventoryLedger() (*InventoryLedger, *memory.Store) {
	repo := memory.NewSeeded()
	return NewInventoryLedger(repo), repo
}

func TestCreateItemRejectsDuplicateKey(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	_, err := ledger.CreateItem(ctx, domain.InventoryItemCreateRequest{
		Type:      domain.ItemTypePaddy,
		Variety:   "Sona Masoori",
		CompanyID: "mill-1",
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestCreateItemWritesOpeningMovementOnlyWithStock(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	empty, err := ledger.CreateItem(ctx, domain.InventoryItemCreateRequest{
		Type:    domain.ItemTypeHusk,
		Variety: "Common",
	})
	if err != nil {
		t.Fatalf("create empty item failed: %v", err)
	}
	movements, err := ledger.Movements(ctx, empty.ID, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("expected no movement for zero opening stock, got %d", len(movements))
	}

	stocked, err := ledger.CreateItem(ctx, domain.InventoryItemCreateRequest{
		Type:              domain.ItemTypeRice,
		Variety:           "Basmati",
		OpeningQuantityKg: 300,
		OpeningBags:       6,
	})
	if err != nil {
		t.Fatalf("create stocked item failed: %v", err)
	}
	movements, err = ledger.Movements(ctx, stocked.ID, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 || movements[0].Type != domain.MovementInitial {
		t.Fatalf("expected one initial movement, got %+v", movements)
	}
}

func TestGetOrCreateIsIdempotentPerKey(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := ledger.GetOrCreate(ctx, domain.ItemTypeBran, "Fine", "mill-1")
			if err != nil {
				t.Errorf("get or create failed: %v", err)
				return
			}
			ids <- item.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("expected one item for the key, got %d distinct ids", len(seen))
	}
}

func TestDeductStockNeverGoesNegative(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	err := ledger.DeductStock(ctx, "inv-rice-sona", 600, 0, "txn-test", "sale")
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	item, err := ledger.GetItem(ctx, "inv-rice-sona")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.QuantityKg != 500 {
		t.Fatalf("failed deduction must leave stock untouched, got %.2f", item.QuantityKg)
	}
}

func TestDeductStockChecksBagsIndependently(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	// 500 kg covers the quantity but only 10 bags exist.
	err := ledger.DeductStock(ctx, "inv-rice-sona", 100, 15, "txn-test", "sale")
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected bag shortage rejection, got %v", err)
	}
}

func TestAddStockReweightsAveragePrice(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	// 2000 kg @ 2200 plus 1000 kg @ 2500 averages to 2300.
	if err := ledger.AddStock(ctx, "inv-paddy-sona", 1000, 20, 2500, "txn-test", "purchase"); err != nil {
		t.Fatalf("add stock failed: %v", err)
	}

	item, err := ledger.GetItem(ctx, "inv-paddy-sona")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.AvgPricePaisa != 2300 {
		t.Fatalf("expected avg price 2300, got %d", item.AvgPricePaisa)
	}
	if item.QuantityKg != 3000 || item.Bags != 60 {
		t.Fatalf("expected 3000 kg / 60 bags, got %.2f / %d", item.QuantityKg, item.Bags)
	}
	if item.IsSynced {
		t.Fatal("stock change must mark the item unsynced")
	}
}

func TestAddStockWithoutPriceKeepsAverage(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	if err := ledger.AddStock(ctx, "inv-paddy-sona", 500, 10, 0, "txn-test", "milling reversal"); err != nil {
		t.Fatalf("add stock failed: %v", err)
	}
	item, err := ledger.GetItem(ctx, "inv-paddy-sona")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.AvgPricePaisa != 2200 {
		t.Fatalf("zero-price add must not change the average, got %d", item.AvgPricePaisa)
	}
}

func TestAdjustStockNoOpWritesNothing(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	if _, err := ledger.AdjustStock(ctx, domain.AdjustInventoryRequest{
		InventoryItemID: "inv-bran",
		NewQuantityKg:   120,
		NewBags:         3,
		Reason:          "recount",
	}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	movements, err := ledger.Movements(ctx, "inv-bran", 20)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	for _, m := range movements {
		if m.Type == domain.MovementAdjustment {
			t.Fatal("no-op adjustment must not append a movement")
		}
	}
}

func TestTransferStockRestoresSourceWhenAddFails(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	err := ledger.TransferStock(ctx, domain.TransferStockRequest{
		FromItemID: "inv-rice-sona",
		ToItemID:   "inv-rice-missing",
		QuantityKg: 50,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing destination, got %v", err)
	}

	item, err := ledger.GetItem(ctx, "inv-rice-sona")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.QuantityKg != 500 {
		t.Fatalf("failed transfer must leave source intact, got %.2f", item.QuantityKg)
	}
}

func TestTransferStockWritesPairedMovements(t *testing.T) {
	ledger, _ := newTestInventoryLedger()
	ctx := context.Background()

	second, err := ledger.CreateItem(ctx, domain.InventoryItemCreateRequest{
		Type:    domain.ItemTypeRice,
		Variety: "Broken",
	})
	if err != nil {
		t.Fatalf("create item failed: %v", err)
	}

	if err := ledger.TransferStock(ctx, domain.TransferStockRequest{
		FromItemID: "inv-rice-sona",
		ToItemID:   second.ID,
		QuantityKg: 60,
		Bags:       1,
	}); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	out, err := ledger.Movements(ctx, "inv-rice-sona", 20)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	var sawNegative bool
	for _, m := range out {
		if m.Type == domain.MovementTransfer && m.QuantityKg == -60 {
			sawNegative = true
		}
	}
	if !sawNegative {
		t.Fatal("expected a negative transfer movement on the source")
	}

	in, err := ledger.Movements(ctx, second.ID, 20)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(in) != 1 || in[0].Type != domain.MovementTransfer || in[0].QuantityKg != 60 {
		t.Fatalf("expected one positive transfer movement on the destination, got %+v", in)
	}
}
