package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store"
	"millbook/backend/internal/xid"
)

// InventoryLedger is the only writer of inventory items and stock movements.
// Every quantity change goes through it, and every change appends exactly one
// movement row.
type InventoryLedger struct {
	repo store.Repository
	keys *keyedMutex
	now  func() time.Time
}

func NewInventoryLedger(repo store.Repository) *InventoryLedger {
	return &InventoryLedger{
		repo: repo,
		keys: newKeyedMutex(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// StockChange describes one inventory mutation tied to a transaction, so the
// caller can later apply the exact inverse.
type StockChange struct {
	InventoryItemID string
	QuantityKg      float64
	Bags            int
}

func (l *InventoryLedger) CreateItem(ctx context.Context, req domain.InventoryItemCreateRequest) (*domain.InventoryItem, error) {
	req.Variety = strings.TrimSpace(req.Variety)
	if req.Variety == "" {
		return nil, fmt.Errorf("%w: variety is required", store.ErrInvalidTransaction)
	}
	switch req.Type {
	case domain.ItemTypePaddy, domain.ItemTypeRice, domain.ItemTypeBran, domain.ItemTypeHusk:
	default:
		return nil, fmt.Errorf("%w: unknown item type %q", store.ErrInvalidTransaction, req.Type)
	}
	if req.OpeningQuantityKg < 0 || req.OpeningBags < 0 {
		return nil, fmt.Errorf("%w: opening stock cannot be negative", store.ErrInvalidTransaction)
	}
	if existing, err := l.repo.FindInventoryItem(ctx, req.Type, req.Variety, req.CompanyID); err == nil {
		return nil, fmt.Errorf("%w: item already exists as %s", store.ErrInvalidTransaction, existing.ID)
	}

	now := l.now()
	item := domain.InventoryItem{
		ID:            xid.New("inv"),
		Type:          req.Type,
		Variety:       req.Variety,
		CompanyID:     req.CompanyID,
		QuantityKg:    req.OpeningQuantityKg,
		Bags:          req.OpeningBags,
		AvgPricePaisa: req.AvgPricePaisa,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := l.repo.CreateInventoryItem(ctx, item)
	if err != nil {
		return nil, err
	}
	if req.OpeningQuantityKg > 0 {
		movement := domain.StockMovement{
			ID:              xid.New("mov"),
			InventoryItemID: created.ID,
			Type:            domain.MovementInitial,
			QuantityKg:      req.OpeningQuantityKg,
			Bags:            req.OpeningBags,
			Note:            "opening stock",
			CreatedAt:       now,
		}
		if err := l.repo.AppendStockMovement(ctx, movement); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// GetOrCreate finds the item for a (type, variety, company) key, creating an
// empty one when none exists. New items start at zero quantity with no
// movement row.
func (l *InventoryLedger) GetOrCreate(ctx context.Context, itemType domain.ItemType, variety string, companyID string) (*domain.InventoryItem, error) {
	variety = strings.TrimSpace(variety)
	if variety == "" {
		return nil, fmt.Errorf("%w: variety is required", store.ErrInvalidTransaction)
	}

	unlock := l.keys.lock("find:" + string(itemType) + ":" + variety + ":" + companyID)
	defer unlock()

	item, err := l.repo.FindInventoryItem(ctx, itemType, variety, companyID)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := l.now()
	created, err := l.repo.CreateInventoryItem(ctx, domain.InventoryItem{
		ID:        xid.New("inv"),
		Type:      itemType,
		Variety:   variety,
		CompanyID: companyID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (l *InventoryLedger) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return l.repo.GetInventoryItem(ctx, id)
}

func (l *InventoryLedger) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return l.repo.ListInventoryItems(ctx)
}

func (l *InventoryLedger) Movements(ctx context.Context, inventoryItemID string, limit int) ([]domain.StockMovement, error) {
	if _, err := l.repo.GetInventoryItem(ctx, inventoryItemID); err != nil {
		return nil, err
	}
	return l.repo.ListStockMovements(ctx, inventoryItemID, limit)
}

// AddStock increases an item's stock and appends a stock_in movement. When a
// positive unit price is given, the item's average price is re-weighted over
// the combined quantity.
func (l *InventoryLedger) AddStock(ctx context.Context, itemID string, quantityKg float64, bags int, unitPricePaisa int64, transactionID string, note string) error {
	if quantityKg <= 0 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidTransaction)
	}
	if bags < 0 {
		return fmt.Errorf("%w: bags cannot be negative", store.ErrInvalidTransaction)
	}

	unlock := l.keys.lock(itemID)
	defer unlock()

	item, err := l.repo.GetInventoryItem(ctx, itemID)
	if err != nil {
		return err
	}

	if unitPricePaisa > 0 {
		combined := item.QuantityKg + quantityKg
		if combined > 0 {
			weighted := float64(item.AvgPricePaisa)*item.QuantityKg + float64(unitPricePaisa)*quantityKg
			item.AvgPricePaisa = int64(math.Round(weighted / combined))
		}
	}
	item.QuantityKg += quantityKg
	item.Bags += bags
	item.UpdatedAt = l.now()
	item.IsSynced = false

	if _, err := l.repo.UpdateInventoryItem(ctx, *item); err != nil {
		return err
	}
	return l.repo.AppendStockMovement(ctx, domain.StockMovement{
		ID:              xid.New("mov"),
		InventoryItemID: itemID,
		Type:            domain.MovementStockIn,
		QuantityKg:      quantityKg,
		Bags:            bags,
		TransactionID:   transactionID,
		Note:            note,
		CreatedAt:       l.now(),
	})
}

// DeductStock decreases an item's stock after re-checking availability under
// the item lock. On insufficient stock the item is left untouched and
// store.ErrInsufficientStock is returned.
func (l *InventoryLedger) DeductStock(ctx context.Context, itemID string, quantityKg float64, bags int, transactionID string, note string) error {
	if quantityKg <= 0 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidTransaction)
	}
	if bags < 0 {
		return fmt.Errorf("%w: bags cannot be negative", store.ErrInvalidTransaction)
	}

	unlock := l.keys.lock(itemID)
	defer unlock()

	item, err := l.repo.GetInventoryItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.QuantityKg < quantityKg {
		return fmt.Errorf("%w: %s has %.2f kg, need %.2f kg", store.ErrInsufficientStock, item.ID, item.QuantityKg, quantityKg)
	}
	if item.Bags < bags {
		return fmt.Errorf("%w: %s has %d bags, need %d", store.ErrInsufficientStock, item.ID, item.Bags, bags)
	}

	item.QuantityKg -= quantityKg
	item.Bags -= bags
	item.UpdatedAt = l.now()
	item.IsSynced = false

	if _, err := l.repo.UpdateInventoryItem(ctx, *item); err != nil {
		return err
	}
	return l.repo.AppendStockMovement(ctx, domain.StockMovement{
		ID:              xid.New("mov"),
		InventoryItemID: itemID,
		Type:            domain.MovementStockOut,
		QuantityKg:      quantityKg,
		Bags:            bags,
		TransactionID:   transactionID,
		Note:            note,
		CreatedAt:       l.now(),
	})
}

// AdjustStock sets an item's quantity and bags to absolute values, recording
// the signed difference as an adjustment movement. Physical stock counts use
// this after a manual recount.
func (l *InventoryLedger) AdjustStock(ctx context.Context, req domain.AdjustInventoryRequest) (*domain.InventoryItem, error) {
	if req.NewQuantityKg < 0 || req.NewBags < 0 {
		return nil, fmt.Errorf("%w: adjusted stock cannot be negative", store.ErrInvalidTransaction)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: adjustment reason is required", store.ErrInvalidTransaction)
	}

	unlock := l.keys.lock(req.InventoryItemID)
	defer unlock()

	item, err := l.repo.GetInventoryItem(ctx, req.InventoryItemID)
	if err != nil {
		return nil, err
	}

	deltaKg := req.NewQuantityKg - item.QuantityKg
	deltaBags := req.NewBags - item.Bags
	if deltaKg == 0 && deltaBags == 0 {
		return item, nil
	}

	item.QuantityKg = req.NewQuantityKg
	item.Bags = req.NewBags
	item.UpdatedAt = l.now()
	item.IsSynced = false

	updated, err := l.repo.UpdateInventoryItem(ctx, *item)
	if err != nil {
		return nil, err
	}
	if err := l.repo.AppendStockMovement(ctx, domain.StockMovement{
		ID:              xid.New("mov"),
		InventoryItemID: item.ID,
		Type:            domain.MovementAdjustment,
		QuantityKg:      deltaKg,
		Bags:            deltaBags,
		Note:            strings.TrimSpace(req.Reason),
		CreatedAt:       l.now(),
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// TransferStock moves quantity between two items of the same type, for
// example splitting one rice variety bin into another after regrading. The
// deduct side runs first so a failed transfer never creates stock.
func (l *InventoryLedger) TransferStock(ctx context.Context, req domain.TransferStockRequest) error {
	if req.FromItemID == req.ToItemID {
		return fmt.Errorf("%w: transfer source and destination are the same item", store.ErrInvalidTransaction)
	}
	if req.QuantityKg <= 0 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidTransaction)
	}
	if req.Bags < 0 {
		return fmt.Errorf("%w: bags cannot be negative", store.ErrInvalidTransaction)
	}

	from, err := l.repo.GetInventoryItem(ctx, req.FromItemID)
	if err != nil {
		return err
	}
	to, err := l.repo.GetInventoryItem(ctx, req.ToItemID)
	if err != nil {
		return err
	}
	if from.Type != to.Type {
		return fmt.Errorf("%w: cannot transfer %s stock into a %s item", store.ErrInvalidTransaction, from.Type, to.Type)
	}

	if err := l.deductForTransfer(ctx, req); err != nil {
		return err
	}
	if err := l.addForTransfer(ctx, req); err != nil {
		// Put the deducted stock back so a failed add leaves totals intact.
		if restoreErr := l.restoreAfterFailedTransfer(ctx, req); restoreErr != nil {
			return fmt.Errorf("transfer add failed (%v) and restore failed: %w", err, restoreErr)
		}
		return err
	}
	return nil
}

func (l *InventoryLedger) deductForTransfer(ctx context.Context, req domain.TransferStockRequest) error {
	unlock := l.keys.lock(req.FromItemID)
	defer unlock()

	from, err := l.repo.GetInventoryItem(ctx, req.FromItemID)
	if err != nil {
		return err
	}
	if from.QuantityKg < req.QuantityKg || from.Bags < req.Bags {
		return fmt.Errorf("%w: %s cannot cover transfer of %.2f kg", store.ErrInsufficientStock, from.ID, req.QuantityKg)
	}
	from.QuantityKg -= req.QuantityKg
	from.Bags -= req.Bags
	from.UpdatedAt = l.now()
	from.IsSynced = false
	if _, err := l.repo.UpdateInventoryItem(ctx, *from); err != nil {
		return err
	}
	return l.repo.AppendStockMovement(ctx, domain.StockMovement{
		ID:              xid.New("mov"),
		InventoryItemID: from.ID,
		Type:            domain.MovementTransfer,
		QuantityKg:      -req.QuantityKg,
		Bags:            -req.Bags,
		Note:            noteOr(req.Note, "transfer to "+req.ToItemID),
		CreatedAt:       l.now(),
	})
}

func (l *InventoryLedger) addForTransfer(ctx context.Context, req domain.TransferStockRequest) error {
	unlock := l.keys.lock(req.ToItemID)
	defer unlock()

	to, err := l.repo.GetInventoryItem(ctx, req.ToItemID)
	if err != nil {
		return err
	}
	to.QuantityKg += req.QuantityKg
	to.Bags += req.Bags
	to.UpdatedAt = l.now()
	to.IsSynced = false
	if _, err := l.repo.UpdateInventoryItem(ctx, *to); err != nil {
		return err
	}
	return l.repo.AppendStockMovement(ctx, domain.StockMovement{
		ID:              xid.New("mov"),
		InventoryItemID: to.ID,
		Type:            domain.MovementTransfer,
		QuantityKg:      req.QuantityKg,
		Bags:            req.Bags,
		Note:            noteOr(req.Note, "transfer from "+req.FromItemID),
		CreatedAt:       l.now(),
	})
}

func (l *InventoryLedger) restoreAfterFailedTransfer(ctx context.Context, req domain.TransferStockRequest) error {
	unlock := l.keys.lock(req.FromItemID)
	defer unlock()

	from, err := l.repo.GetInventoryItem(ctx, req.FromItemID)
	if err != nil {
		return err
	}
	from.QuantityKg += req.QuantityKg
	from.Bags += req.Bags
	from.UpdatedAt = l.now()
	from.IsSynced = false
	if _, err := l.repo.UpdateInventoryItem(ctx, *from); err != nil {
		return err
	}
	return l.repo.AppendStockMovement(ctx, domain.StockMovement{
		ID:              xid.New("mov"),
		InventoryItemID: from.ID,
		Type:            domain.MovementTransfer,
		QuantityKg:      req.QuantityKg,
		Bags:            req.Bags,
		Note:            "transfer reversal after failed add",
		CreatedAt:       l.now(),
	})
}

func noteOr(note, fallback string) string {
	if strings.TrimSpace(note) != "" {
		return note
	}
	return fallback
}
