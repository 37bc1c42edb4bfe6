package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/logger"
	"millbook/backend/internal/metrics"
	"millbook/backend/internal/store"
	"millbook/backend/internal/xid"
)

// ErrOffline is returned by SyncOnce when the remote is unreachable. The
// caller treats it as a normal condition, not a failure.
var ErrOffline = errors.New("remote unreachable")

// RemoteClient pushes local records to the system of record and pulls
// records created elsewhere. Push returns the remote-assigned id.
type RemoteClient interface {
	PushCustomer(ctx context.Context, customer domain.Customer) (string, error)
	PushInventoryItem(ctx context.Context, item domain.InventoryItem) (string, error)
	PushTransaction(ctx context.Context, tx domain.Transaction) (string, error)
	PullCustomers(ctx context.Context, since *time.Time) ([]domain.Customer, error)
	PullInventoryItems(ctx context.Context, since *time.Time) ([]domain.InventoryItem, error)
	PullTransactions(ctx context.Context, since *time.Time) ([]domain.Transaction, error)
}

// Connectivity reports whether the remote is reachable right now.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Syncer drains unsynced local records to the remote and pulls remote
// changes, on a fixed interval and on demand after each local commit. At
// most one cycle runs at a time; a trigger during a running cycle collapses
// into the next one.
type Syncer struct {
	repo     store.Repository
	remote   RemoteClient
	conn     Connectivity
	interval time.Duration
	trigger  chan struct{}
	runMu    sync.Mutex
	log      zerolog.Logger
	now      func() time.Time
}

func New(repo store.Repository, remote RemoteClient, conn Connectivity, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Syncer{
		repo:     repo,
		remote:   remote,
		conn:     conn,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		log:      logger.WithComponent("sync"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Trigger requests a sync cycle without blocking. Calls while a trigger is
// already queued are dropped.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run loops until the context is cancelled, syncing on every tick and on
// every trigger.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}
		if err := s.SyncOnce(ctx); err != nil && !errors.Is(err, ErrOffline) {
			s.log.Warn().Err(err).Msg("sync cycle failed")
		}
	}
}

// SyncOnce runs one full push-then-pull cycle. Push order is customers,
// inventory, then transactions, so a transaction never arrives before the
// records it references. A record failing to push is skipped and retried
// next cycle; the rest of the batch and the later entity passes still run.
// Any push failure keeps the sync marker from advancing.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return nil
	}
	defer s.runMu.Unlock()

	if !s.conn.Online(ctx) {
		return ErrOffline
	}

	var pushErrs []error
	if err := s.pushCustomers(ctx); err != nil {
		pushErrs = append(pushErrs, fmt.Errorf("push customers: %w", err))
	}
	if err := s.pushInventory(ctx); err != nil {
		pushErrs = append(pushErrs, fmt.Errorf("push inventory: %w", err))
	}
	if err := s.pushTransactions(ctx); err != nil {
		pushErrs = append(pushErrs, fmt.Errorf("push transactions: %w", err))
	}
	if len(pushErrs) > 0 {
		metrics.SyncFailures.Inc()
		s.updatePendingGauges(ctx)
		return errors.Join(pushErrs...)
	}

	since, err := s.repo.LastSyncTime(ctx)
	if err != nil {
		return err
	}
	if err := s.pullCustomers(ctx, since); err != nil {
		metrics.SyncFailures.Inc()
		return fmt.Errorf("pull customers: %w", err)
	}
	if err := s.pullInventory(ctx, since); err != nil {
		metrics.SyncFailures.Inc()
		return fmt.Errorf("pull inventory: %w", err)
	}
	if err := s.pullTransactions(ctx, since); err != nil {
		metrics.SyncFailures.Inc()
		return fmt.Errorf("pull transactions: %w", err)
	}

	completedAt := s.now()
	if err := s.repo.SetLastSyncTime(ctx, completedAt); err != nil {
		return err
	}
	metrics.SyncLastSuccess.Set(float64(completedAt.Unix()))
	s.updatePendingGauges(ctx)
	s.log.Debug().Time("completed_at", completedAt).Msg("sync cycle completed")
	return nil
}

// Status reports connectivity, the last successful cycle, and how many
// local records are waiting to be pushed.
func (s *Syncer) Status(ctx context.Context) (*domain.SyncStatus, error) {
	customers, err := s.repo.ListUnsyncedCustomers(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListUnsyncedInventoryItems(ctx)
	if err != nil {
		return nil, err
	}
	transactions, err := s.repo.ListUnsyncedTransactions(ctx)
	if err != nil {
		return nil, err
	}
	lastSync, err := s.repo.LastSyncTime(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.SyncStatus{
		Online:              s.conn.Online(ctx),
		LastSyncAt:          lastSync,
		PendingCustomers:    len(customers),
		PendingInventory:    len(items),
		PendingTransactions: len(transactions),
	}, nil
}

func (s *Syncer) pushCustomers(ctx context.Context) error {
	customers, err := s.repo.ListUnsyncedCustomers(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, customer := range customers {
		remoteID, err := s.remote.PushCustomer(ctx, customer)
		if err != nil {
			s.log.Warn().Err(err).Str("customer_id", customer.ID).Msg("push customer failed")
			errs = append(errs, fmt.Errorf("customer %s: %w", customer.ID, err))
			continue
		}
		if err := s.repo.MarkCustomerSynced(ctx, customer.ID, remoteID, s.now()); err != nil {
			errs = append(errs, fmt.Errorf("mark customer %s synced: %w", customer.ID, err))
			continue
		}
		metrics.SyncPushed.WithLabelValues("customer").Inc()
	}
	return errors.Join(errs...)
}

func (s *Syncer) pushInventory(ctx context.Context) error {
	items, err := s.repo.ListUnsyncedInventoryItems(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, item := range items {
		remoteID, err := s.remote.PushInventoryItem(ctx, item)
		if err != nil {
			s.log.Warn().Err(err).Str("inventory_item_id", item.ID).Msg("push inventory item failed")
			errs = append(errs, fmt.Errorf("inventory item %s: %w", item.ID, err))
			continue
		}
		if err := s.repo.MarkInventoryItemSynced(ctx, item.ID, remoteID, s.now()); err != nil {
			errs = append(errs, fmt.Errorf("mark inventory item %s synced: %w", item.ID, err))
			continue
		}
		metrics.SyncPushed.WithLabelValues("inventory_item").Inc()
	}
	return errors.Join(errs...)
}

func (s *Syncer) pushTransactions(ctx context.Context) error {
	transactions, err := s.repo.ListUnsyncedTransactions(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, tx := range transactions {
		remoteID, err := s.remote.PushTransaction(ctx, tx)
		if err != nil {
			s.log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("push transaction failed")
			errs = append(errs, fmt.Errorf("transaction %s: %w", tx.ID, err))
			continue
		}
		if err := s.repo.MarkTransactionSynced(ctx, tx.ID, remoteID, s.now()); err != nil {
			errs = append(errs, fmt.Errorf("mark transaction %s synced: %w", tx.ID, err))
			continue
		}
		metrics.SyncPushed.WithLabelValues("transaction").Inc()
	}
	return errors.Join(errs...)
}

// pullCustomers inserts remote customers unknown locally. Pulled rows are
// stored already synced so the next push does not echo them back.
func (s *Syncer) pullCustomers(ctx context.Context, since *time.Time) error {
	customers, err := s.remote.PullCustomers(ctx, since)
	if err != nil {
		return err
	}
	for _, customer := range customers {
		if customer.RemoteID == "" {
			continue
		}
		if _, err := s.repo.FindCustomerByRemoteID(ctx, customer.RemoteID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		now := s.now()
		customer.ID = xid.New("cust")
		customer.IsSynced = true
		customer.SyncedAt = &now
		if customer.CreatedAt.IsZero() {
			customer.CreatedAt = now
		}
		customer.UpdatedAt = now
		if _, err := s.repo.CreateCustomer(ctx, customer); err != nil {
			return err
		}
		metrics.SyncPulled.WithLabelValues("customer").Inc()
	}
	return nil
}

func (s *Syncer) pullInventory(ctx context.Context, since *time.Time) error {
	items, err := s.remote.PullInventoryItems(ctx, since)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.RemoteID == "" {
			continue
		}
		if _, err := s.repo.FindInventoryItemByRemoteID(ctx, item.RemoteID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		now := s.now()
		item.ID = xid.New("inv")
		item.IsSynced = true
		item.SyncedAt = &now
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.UpdatedAt = now
		if _, err := s.repo.CreateInventoryItem(ctx, item); err != nil {
			return err
		}
		metrics.SyncPulled.WithLabelValues("inventory_item").Inc()
	}
	return nil
}

func (s *Syncer) pullTransactions(ctx context.Context, since *time.Time) error {
	transactions, err := s.remote.PullTransactions(ctx, since)
	if err != nil {
		return err
	}
	for _, tx := range transactions {
		if tx.RemoteID == "" {
			continue
		}
		if _, err := s.repo.FindTransactionByRemoteID(ctx, tx.RemoteID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		now := s.now()
		tx.ID = xid.New("txn")
		for i := range tx.Items {
			tx.Items[i].ID = xid.New("txi")
			tx.Items[i].TransactionID = tx.ID
		}
		tx.IsSynced = true
		tx.SyncedAt = &now
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
		tx.UpdatedAt = now
		if _, err := s.repo.CreateTransaction(ctx, tx); err != nil {
			return err
		}
		metrics.SyncPulled.WithLabelValues("transaction").Inc()
	}
	return nil
}

func (s *Syncer) updatePendingGauges(ctx context.Context) {
	if customers, err := s.repo.ListUnsyncedCustomers(ctx); err == nil {
		metrics.SyncPending.WithLabelValues("customer").Set(float64(len(customers)))
	}
	if items, err := s.repo.ListUnsyncedInventoryItems(ctx); err == nil {
		metrics.SyncPending.WithLabelValues("inventory_item").Set(float64(len(items)))
	}
	if transactions, err := s.repo.ListUnsyncedTransactions(ctx); err == nil {
		metrics.SyncPending.WithLabelValues("transaction").Set(float64(len(transactions)))
	}
}
