package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"millbook/backend/internal/cache"
	"millbook/backend/internal/domain"
	"millbook/backend/internal/ledger"
	"millbook/backend/internal/logger"
	"millbook/backend/internal/metrics"
	"millbook/backend/internal/store"
	"millbook/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	stockCacheKey = "inventory:list"
	stockCacheTTL = 30 * time.Second
)

// Service coordinates transactions across the inventory and customer
// ledgers. It is the only writer of transaction status and payment fields.
// Cross-ledger writes are ordered inventory first, customer second, with
// compensating inverse operations on failure instead of a shared database
// transaction, so the two ledgers stay correct even when backed by separate
// stores.
type Service struct {
	repo        store.Repository
	inventory   *ledger.InventoryLedger
	customers   *ledger.CustomerLedger
	stockCache  cache.StockCache
	log         zerolog.Logger
	syncTrigger func()
	now         func() time.Time
}

func New(repo store.Repository, stockCache cache.StockCache) *Service {
	if stockCache == nil {
		stockCache = cache.NoopStockCache{}
	}
	return &Service{
		repo:       repo,
		inventory:  ledger.NewInventoryLedger(repo),
		customers:  ledger.NewCustomerLedger(repo),
		stockCache: stockCache,
		log:        logger.WithComponent("service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetSyncTrigger registers the callback that nudges the sync scheduler after
// a local commit. The callback must never block.
func (s *Service) SetSyncTrigger(trigger func()) {
	s.syncTrigger = trigger
}

func (s *Service) notifySync() {
	if s.syncTrigger != nil {
		s.syncTrigger()
	}
}

// CreateTransaction validates a buy or sell, then commits it: transaction
// row first, stock per line, customer balance last. Validation does all
// checks before any write, so most failures leave no trace at all. A failure
// after the first write unwinds everything already applied.
func (s *Service) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	if req.Type != domain.TxTypeBuy && req.Type != domain.TxTypeSell {
		return nil, fmt.Errorf("%w: type must be buy or sell", store.ErrInvalidTransaction)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", store.ErrInvalidTransaction)
	}
	if req.PaidPaisa < 0 {
		return nil, fmt.Errorf("%w: paid amount cannot be negative", store.ErrInvalidTransaction)
	}

	effect := domain.EffectStockIn
	if req.Type == domain.TxTypeSell {
		effect = domain.EffectStockOut
	}

	now := s.now()
	txID := xid.New("txn")
	items := make([]domain.TransactionItem, 0, len(req.Items))
	var totalPaisa int64
	neededKg := make(map[string]float64)
	neededBags := make(map[string]int)
	for _, line := range req.Items {
		if line.QuantityKg <= 0 {
			return nil, fmt.Errorf("%w: item quantity must be positive", store.ErrInvalidTransaction)
		}
		if line.Bags < 0 {
			return nil, fmt.Errorf("%w: item bags cannot be negative", store.ErrInvalidTransaction)
		}
		if line.UnitPricePaisa < 0 {
			return nil, fmt.Errorf("%w: unit price cannot be negative", store.ErrInvalidTransaction)
		}
		invItem, err := s.repo.GetInventoryItem(ctx, line.InventoryItemID)
		if err != nil {
			return nil, fmt.Errorf("inventory item %s: %w", line.InventoryItemID, err)
		}

		// Every sell line is checked against current stock before any
		// write, so an insufficient line leaves no transaction row and no
		// movement. DeductStock rechecks under the item lock at commit, so
		// a concurrent sell racing past this check still cannot go
		// negative; it fails there and the applied lines are unwound.
		if effect == domain.EffectStockOut {
			neededKg[invItem.ID] += line.QuantityKg
			neededBags[invItem.ID] += line.Bags
			if invItem.QuantityKg < neededKg[invItem.ID] {
				metrics.StockRejections.Inc()
				return nil, fmt.Errorf("%w: %s has %.2f kg, need %.2f kg",
					store.ErrInsufficientStock, invItem.ID, invItem.QuantityKg, neededKg[invItem.ID])
			}
			if invItem.Bags < neededBags[invItem.ID] {
				metrics.StockRejections.Inc()
				return nil, fmt.Errorf("%w: %s has %d bags, need %d",
					store.ErrInsufficientStock, invItem.ID, invItem.Bags, neededBags[invItem.ID])
			}
		}

		amount := domain.LineAmountPaisa(line.QuantityKg, line.UnitPricePaisa)
		totalPaisa += amount
		items = append(items, domain.TransactionItem{
			ID:              xid.New("txi"),
			TransactionID:   txID,
			InventoryItemID: line.InventoryItemID,
			Effect:          effect,
			QuantityKg:      line.QuantityKg,
			Bags:            line.Bags,
			UnitPricePaisa:  line.UnitPricePaisa,
			AmountPaisa:     amount,
		})
	}

	if req.PaidPaisa > totalPaisa {
		return nil, fmt.Errorf("%w: paid amount exceeds transaction total", store.ErrInvalidTransaction)
	}
	duePaisa := totalPaisa - req.PaidPaisa

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
			return nil, fmt.Errorf("customer %s: %w", req.CustomerID, err)
		}
	} else if duePaisa > 0 {
		return nil, fmt.Errorf("%w: credit transactions require a customer", store.ErrInvalidTransaction)
	}

	tx := domain.Transaction{
		ID:            txID,
		Type:          req.Type,
		Status:        domain.TxStatusPending,
		CustomerID:    req.CustomerID,
		Items:         items,
		TotalPaisa:    totalPaisa,
		PaidPaisa:     req.PaidPaisa,
		DuePaisa:      duePaisa,
		PaymentStatus: domain.DerivePaymentStatus(totalPaisa, req.PaidPaisa),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Note:          strings.TrimSpace(req.Note),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	applied, err := s.applyStockForward(ctx, items, txID)
	if err != nil {
		s.unwindStock(ctx, applied, txID)
		s.discardPending(ctx, txID)
		return nil, err
	}

	if tx.CustomerID != "" {
		direction, _ := domain.DirectionFor(tx.Type)
		if err := s.customers.ApplyDue(ctx, tx.CustomerID, duePaisa, direction); err != nil {
			s.unwindStock(ctx, applied, txID)
			s.discardPending(ctx, txID)
			return nil, err
		}
		if err := s.customers.AccumulateTurnover(ctx, tx.CustomerID, tx.Type, totalPaisa); err != nil {
			s.log.Error().Err(err).Str("transaction_id", txID).Msg("turnover accumulation failed")
		}
	}

	tx.Status = domain.TxStatusCompleted
	tx.UpdatedAt = s.now()
	committed, err := s.repo.UpdateTransaction(ctx, tx)
	if err != nil {
		// The status flip failed after stock and balance were applied.
		// Undo both in reverse order and drop the pending row so the
		// failure leaves no trace.
		if tx.CustomerID != "" {
			direction, _ := domain.DirectionFor(tx.Type)
			if revErr := s.customers.Reverse(ctx, tx.CustomerID, duePaisa, direction); revErr != nil {
				s.log.Error().Err(revErr).Str("transaction_id", txID).Msg("balance unwind failed")
			}
			if revErr := s.customers.AccumulateTurnover(ctx, tx.CustomerID, tx.Type, -totalPaisa); revErr != nil {
				s.log.Error().Err(revErr).Str("transaction_id", txID).Msg("turnover unwind failed")
			}
		}
		s.unwindStock(ctx, applied, txID)
		s.discardPending(ctx, txID)
		return nil, err
	}

	s.invalidateStockCache(ctx)
	metrics.TransactionsCreated.WithLabelValues(string(tx.Type)).Inc()
	s.log.Info().
		Str("transaction_id", txID).
		Str("type", string(tx.Type)).
		Int64("total_paisa", totalPaisa).
		Int64("due_paisa", duePaisa).
		Msg("transaction committed")
	s.notifySync()
	return committed, nil
}

// CancelTransaction reverses every effect of a committed transaction: each
// line's stock change is inverted by its recorded effect, and the customer
// balance is moved back by the remaining due. If removing a stock-in line
// would drive stock negative, the cancellation is refused and any lines
// already inverted are re-applied.
func (s *Service) CancelTransaction(ctx context.Context, id string, reason string) (*domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status == domain.TxStatusCancelled {
		return nil, fmt.Errorf("%w: transaction is already cancelled", store.ErrInvalidTransaction)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", store.ErrInvalidTransaction)
	}

	inverted := make([]domain.TransactionItem, 0, len(tx.Items))
	for _, item := range tx.Items {
		if err := s.applyInverse(ctx, item, tx.ID); err != nil {
			s.reapplyForward(ctx, inverted, tx.ID)
			if errors.Is(err, store.ErrInsufficientStock) {
				metrics.StockRejections.Inc()
			}
			return nil, err
		}
		inverted = append(inverted, item)
	}

	if tx.CustomerID != "" {
		direction, hasEffect := domain.DirectionFor(tx.Type)
		if hasEffect {
			if err := s.customers.Reverse(ctx, tx.CustomerID, tx.DuePaisa, direction); err != nil {
				s.reapplyForward(ctx, inverted, tx.ID)
				return nil, err
			}
			if err := s.customers.AccumulateTurnover(ctx, tx.CustomerID, tx.Type, -tx.TotalPaisa); err != nil {
				s.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("turnover reversal failed")
			}
		}
	}

	cancelledAt := s.now()
	tx.Status = domain.TxStatusCancelled
	tx.CancelReason = strings.TrimSpace(reason)
	tx.CancelledAt = &cancelledAt
	tx.UpdatedAt = cancelledAt
	tx.IsSynced = false
	tx.SyncedAt = nil
	cancelled, err := s.repo.UpdateTransaction(ctx, *tx)
	if err != nil {
		// The stored row still says completed, so put the stock and
		// balance back the way a completed transaction left them.
		if tx.CustomerID != "" {
			if direction, hasEffect := domain.DirectionFor(tx.Type); hasEffect {
				if revErr := s.customers.ApplyDue(ctx, tx.CustomerID, tx.DuePaisa, direction); revErr != nil {
					s.log.Error().Err(revErr).Str("transaction_id", tx.ID).Msg("balance reapply failed")
				}
				if revErr := s.customers.AccumulateTurnover(ctx, tx.CustomerID, tx.Type, tx.TotalPaisa); revErr != nil {
					s.log.Error().Err(revErr).Str("transaction_id", tx.ID).Msg("turnover reapply failed")
				}
			}
		}
		s.reapplyForward(ctx, inverted, tx.ID)
		return nil, err
	}

	s.invalidateStockCache(ctx)
	metrics.TransactionsCancelled.Inc()
	s.log.Info().Str("transaction_id", tx.ID).Str("reason", tx.CancelReason).Msg("transaction cancelled")
	s.notifySync()
	return cancelled, nil
}

// AddPayment applies a partial or final payment toward a transaction's due.
// Payments never exceed the remaining due, so paid grows monotonically from
// the original paid amount toward the total.
func (s *Service) AddPayment(ctx context.Context, id string, req domain.AddPaymentRequest) (*domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status == domain.TxStatusCancelled {
		return nil, fmt.Errorf("%w: cannot pay a cancelled transaction", store.ErrInvalidTransaction)
	}
	if req.AmountPaisa <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidTransaction)
	}
	if req.AmountPaisa > tx.DuePaisa {
		return nil, fmt.Errorf("%w: payment exceeds due amount", store.ErrInvalidTransaction)
	}

	if tx.CustomerID != "" {
		direction, hasEffect := domain.DirectionFor(tx.Type)
		if hasEffect {
			if err := s.customers.ApplyPayment(ctx, tx.CustomerID, req.AmountPaisa, direction); err != nil {
				return nil, err
			}
		}
	}

	tx.PaidPaisa += req.AmountPaisa
	tx.DuePaisa -= req.AmountPaisa
	tx.PaymentStatus = domain.DerivePaymentStatus(tx.TotalPaisa, tx.PaidPaisa)
	if method := strings.TrimSpace(req.Method); method != "" {
		tx.PaymentMethod = method
	}
	tx.UpdatedAt = s.now()
	tx.IsSynced = false
	tx.SyncedAt = nil

	updated, err := s.repo.UpdateTransaction(ctx, *tx)
	if err != nil {
		// The stored row still carries the old due, so move the balance
		// back by the amount the payment took off.
		if tx.CustomerID != "" {
			if direction, hasEffect := domain.DirectionFor(tx.Type); hasEffect {
				if revErr := s.customers.ApplyDue(ctx, tx.CustomerID, req.AmountPaisa, direction); revErr != nil {
					s.log.Error().Err(revErr).Str("transaction_id", tx.ID).Msg("payment unwind failed")
				}
			}
		}
		return nil, err
	}
	s.log.Info().
		Str("transaction_id", tx.ID).
		Int64("amount_paisa", req.AmountPaisa).
		Int64("remaining_due_paisa", updated.DuePaisa).
		Msg("payment recorded")
	s.notifySync()
	return updated, nil
}

// CompleteTransaction moves a pending transaction to completed. Locally
// created transactions complete inside CreateTransaction; this covers rows
// pulled from the remote in a pending state.
func (s *Service) CompleteTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxStatusPending {
		return nil, fmt.Errorf("%w: only pending transactions can be completed", store.ErrInvalidTransaction)
	}
	tx.Status = domain.TxStatusCompleted
	tx.UpdatedAt = s.now()
	tx.IsSynced = false
	tx.SyncedAt = nil
	updated, err := s.repo.UpdateTransaction(ctx, *tx)
	if err != nil {
		return nil, err
	}
	s.notifySync()
	return updated, nil
}

// RecordMilling converts paddy stock into rice stock as a single milling
// transaction with one stock-out line and one stock-in line. The caller's
// weighed wastage must reconcile with the two quantities; when omitted it is
// derived as their difference. Wastage is recorded in the note.
func (s *Service) RecordMilling(ctx context.Context, req domain.MillingRequest) (*domain.Transaction, error) {
	if req.PaddyQtyKg <= 0 || req.RiceQtyKg <= 0 {
		return nil, fmt.Errorf("%w: milling quantities must be positive", store.ErrInvalidTransaction)
	}
	if req.RiceQtyKg > req.PaddyQtyKg {
		return nil, fmt.Errorf("%w: rice output cannot exceed paddy input", store.ErrInvalidTransaction)
	}
	if req.WastageQtyKg < 0 {
		return nil, fmt.Errorf("%w: wastage cannot be negative", store.ErrInvalidTransaction)
	}
	// Weighbridge readings carry two decimals, so reconcile to 10 grams.
	if req.WastageQtyKg > 0 && math.Abs(req.PaddyQtyKg-req.RiceQtyKg-req.WastageQtyKg) > 0.01 {
		return nil, fmt.Errorf("%w: paddy input must equal rice output plus wastage", store.ErrInvalidTransaction)
	}

	paddy, err := s.repo.GetInventoryItem(ctx, req.PaddyItemID)
	if err != nil {
		return nil, fmt.Errorf("paddy item %s: %w", req.PaddyItemID, err)
	}
	if paddy.Type != domain.ItemTypePaddy {
		return nil, fmt.Errorf("%w: %s is not a paddy item", store.ErrInvalidTransaction, paddy.ID)
	}
	rice, err := s.repo.GetInventoryItem(ctx, req.RiceItemID)
	if err != nil {
		return nil, fmt.Errorf("rice item %s: %w", req.RiceItemID, err)
	}
	if rice.Type != domain.ItemTypeRice {
		return nil, fmt.Errorf("%w: %s is not a rice item", store.ErrInvalidTransaction, rice.ID)
	}

	now := s.now()
	txID := xid.New("txn")
	wastageKg := req.PaddyQtyKg - req.RiceQtyKg
	if req.WastageQtyKg > 0 {
		wastageKg = req.WastageQtyKg
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = fmt.Sprintf("milled %.2f kg paddy into %.2f kg rice, %.2f kg wastage", req.PaddyQtyKg, req.RiceQtyKg, wastageKg)
	}
	tx := domain.Transaction{
		ID:     txID,
		Type:   domain.TxTypeMilling,
		Status: domain.TxStatusPending,
		Items: []domain.TransactionItem{
			{
				ID:              xid.New("txi"),
				TransactionID:   txID,
				InventoryItemID: paddy.ID,
				Effect:          domain.EffectStockOut,
				QuantityKg:      req.PaddyQtyKg,
				Bags:            req.PaddyBags,
			},
			{
				ID:              xid.New("txi"),
				TransactionID:   txID,
				InventoryItemID: rice.ID,
				Effect:          domain.EffectStockIn,
				QuantityKg:      req.RiceQtyKg,
				Bags:            req.RiceBags,
			},
		},
		PaymentStatus: domain.PaymentStatusPending,
		Note:          note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	if err := s.inventory.DeductStock(ctx, paddy.ID, req.PaddyQtyKg, req.PaddyBags, txID, "milling input"); err != nil {
		s.discardPending(ctx, txID)
		if errors.Is(err, store.ErrInsufficientStock) {
			metrics.StockRejections.Inc()
		}
		return nil, err
	}
	if err := s.inventory.AddStock(ctx, rice.ID, req.RiceQtyKg, req.RiceBags, 0, txID, "milling output"); err != nil {
		if restoreErr := s.inventory.AddStock(ctx, paddy.ID, req.PaddyQtyKg, req.PaddyBags, 0, txID, "milling reversal"); restoreErr != nil {
			s.log.Error().Err(restoreErr).Str("transaction_id", txID).Msg("milling reversal failed, paddy stock understated")
		}
		s.discardPending(ctx, txID)
		return nil, err
	}

	tx.Status = domain.TxStatusCompleted
	tx.UpdatedAt = s.now()
	committed, err := s.repo.UpdateTransaction(ctx, tx)
	if err != nil {
		// Status flip failed with both stock moves applied. Put the grain
		// back where it was and drop the pending row.
		if revErr := s.inventory.DeductStock(ctx, rice.ID, req.RiceQtyKg, req.RiceBags, txID, "milling reversal"); revErr != nil {
			s.log.Error().Err(revErr).Str("transaction_id", txID).Msg("milling reversal failed, rice stock overstated")
		}
		if revErr := s.inventory.AddStock(ctx, paddy.ID, req.PaddyQtyKg, req.PaddyBags, 0, txID, "milling reversal"); revErr != nil {
			s.log.Error().Err(revErr).Str("transaction_id", txID).Msg("milling reversal failed, paddy stock understated")
		}
		s.discardPending(ctx, txID)
		return nil, err
	}

	s.invalidateStockCache(ctx)
	metrics.TransactionsCreated.WithLabelValues(string(domain.TxTypeMilling)).Inc()
	s.log.Info().
		Str("transaction_id", txID).
		Float64("paddy_kg", req.PaddyQtyKg).
		Float64("rice_kg", req.RiceQtyKg).
		Float64("wastage_kg", wastageKg).
		Msg("milling recorded")
	s.notifySync()
	return committed, nil
}

// AdjustInventory sets an item to recounted absolute values.
func (s *Service) AdjustInventory(ctx context.Context, req domain.AdjustInventoryRequest) (*domain.InventoryItem, error) {
	item, err := s.inventory.AdjustStock(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateStockCache(ctx)
	s.log.Info().
		Str("inventory_item_id", item.ID).
		Float64("quantity_kg", item.QuantityKg).
		Str("reason", req.Reason).
		Msg("inventory adjusted")
	s.notifySync()
	return item, nil
}

// TransferStock moves stock between two items of the same type.
func (s *Service) TransferStock(ctx context.Context, req domain.TransferStockRequest) error {
	if err := s.inventory.TransferStock(ctx, req); err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			metrics.StockRejections.Inc()
		}
		return err
	}
	s.invalidateStockCache(ctx)
	s.notifySync()
	return nil
}

func (s *Service) CreateInventoryItem(ctx context.Context, req domain.InventoryItemCreateRequest) (*domain.InventoryItem, error) {
	item, err := s.inventory.CreateItem(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateStockCache(ctx)
	s.notifySync()
	return item, nil
}

func (s *Service) GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return s.inventory.GetItem(ctx, id)
}

// ListInventory serves from the stock cache when warm, falling back to the
// repository on a miss or cache error.
func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	if cached, hit, err := s.stockCache.Get(ctx, stockCacheKey); err == nil && hit {
		return cached, nil
	}
	items, err := s.inventory.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.stockCache.Set(ctx, stockCacheKey, items, stockCacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("stock cache set failed")
	}
	return items, nil
}

func (s *Service) ListStockMovements(ctx context.Context, inventoryItemID string, limit int) ([]domain.StockMovement, error) {
	return s.inventory.Movements(ctx, inventoryItemID, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	customer, err := s.customers.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.notifySync()
	return customer, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.customers.Get(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.customers.List(ctx)
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) applyStockForward(ctx context.Context, items []domain.TransactionItem, txID string) ([]domain.TransactionItem, error) {
	applied := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		var err error
		switch item.Effect {
		case domain.EffectStockOut:
			err = s.inventory.DeductStock(ctx, item.InventoryItemID, item.QuantityKg, item.Bags, txID, "sale")
		case domain.EffectStockIn:
			err = s.inventory.AddStock(ctx, item.InventoryItemID, item.QuantityKg, item.Bags, item.UnitPricePaisa, txID, "purchase")
		}
		if err != nil {
			if errors.Is(err, store.ErrInsufficientStock) {
				metrics.StockRejections.Inc()
			}
			return applied, err
		}
		applied = append(applied, item)
	}
	return applied, nil
}

func (s *Service) applyInverse(ctx context.Context, item domain.TransactionItem, txID string) error {
	switch item.Effect {
	case domain.EffectStockOut:
		return s.inventory.AddStock(ctx, item.InventoryItemID, item.QuantityKg, item.Bags, 0, txID, "cancellation restock")
	case domain.EffectStockIn:
		return s.inventory.DeductStock(ctx, item.InventoryItemID, item.QuantityKg, item.Bags, txID, "cancellation removal")
	default:
		return fmt.Errorf("%w: item has no recorded stock effect", store.ErrInvalidTransaction)
	}
}

// unwindStock inverts already-applied lines after a mid-commit failure.
// Errors here are logged rather than returned: the caller is already failing
// and an unwind error means stock is understated, never negative.
func (s *Service) unwindStock(ctx context.Context, applied []domain.TransactionItem, txID string) {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := s.applyInverse(ctx, applied[i], txID); err != nil {
			s.log.Error().Err(err).
				Str("transaction_id", txID).
				Str("inventory_item_id", applied[i].InventoryItemID).
				Msg("stock unwind failed")
		}
	}
}

func (s *Service) reapplyForward(ctx context.Context, inverted []domain.TransactionItem, txID string) {
	for i := len(inverted) - 1; i >= 0; i-- {
		item := inverted[i]
		var err error
		switch item.Effect {
		case domain.EffectStockOut:
			err = s.inventory.DeductStock(ctx, item.InventoryItemID, item.QuantityKg, item.Bags, txID, "cancellation abort")
		case domain.EffectStockIn:
			err = s.inventory.AddStock(ctx, item.InventoryItemID, item.QuantityKg, item.Bags, 0, txID, "cancellation abort")
		}
		if err != nil {
			s.log.Error().Err(err).
				Str("transaction_id", txID).
				Str("inventory_item_id", item.InventoryItemID).
				Msg("cancellation abort reapply failed")
		}
	}
}

func (s *Service) discardPending(ctx context.Context, txID string) {
	if err := s.repo.DeleteTransaction(ctx, txID); err != nil {
		s.log.Error().Err(err).Str("transaction_id", txID).Msg("pending transaction cleanup failed")
	}
}

func (s *Service) invalidateStockCache(ctx context.Context) {
	if err := s.stockCache.Invalidate(ctx, stockCacheKey); err != nil {
		s.log.Warn().Err(err).Msg("stock cache invalidation failed")
	}
}
