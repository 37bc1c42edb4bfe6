package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store"
	"millbook/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	transactionsByID map[string]*domain.Transaction
	inventoryByID    map[string]*domain.InventoryItem
	movements        []domain.StockMovement
	customersByID    map[string]*domain.Customer
	usersByUsername  map[string]domain.UserAccount
	lastSyncAt       *time.Time
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"operator", operatorPwd, "operator"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		transactionsByID: make(map[string]*domain.Transaction),
		inventoryByID:    make(map[string]*domain.InventoryItem),
		movements:        make([]domain.StockMovement, 0, 128),
		customersByID:    make(map[string]*domain.Customer),
		usersByUsername:  seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small mill inventory and one
// customer account, for dev mode and tests.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	items := []domain.InventoryItem{
		{ID: "inv-paddy-sona", Type: domain.ItemTypePaddy, Variety: "Sona Masoori", CompanyID: "mill-1", QuantityKg: 2000, Bags: 40, AvgPricePaisa: 2200, CreatedAt: now, UpdatedAt: now},
		{ID: "inv-rice-sona", Type: domain.ItemTypeRice, Variety: "Sona Masoori", CompanyID: "mill-1", QuantityKg: 500, Bags: 10, AvgPricePaisa: 5200, CreatedAt: now, UpdatedAt: now},
		{ID: "inv-bran", Type: domain.ItemTypeBran, Variety: "Common", CompanyID: "mill-1", QuantityKg: 120, Bags: 3, AvgPricePaisa: 1400, CreatedAt: now, UpdatedAt: now},
	}
	for i := range items {
		item := items[i]
		s.inventoryByID[item.ID] = &item
		if item.QuantityKg > 0 {
			s.movements = append(s.movements, domain.StockMovement{
				ID:              xid.New("mov"),
				InventoryItemID: item.ID,
				Type:            domain.MovementInitial,
				QuantityKg:      item.QuantityKg,
				Bags:            item.Bags,
				Note:            "opening stock",
				CreatedAt:       now,
			})
		}
	}

	s.customersByID["cust-ravi"] = &domain.Customer{
		ID:        "cust-ravi",
		Name:      "Ravi Traders",
		Phone:     "9822001100",
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	cloned := *tx
	cloned.Items = slices.Clone(tx.Items)
	if tx.CancelledAt != nil {
		at := *tx.CancelledAt
		cloned.CancelledAt = &at
	}
	if tx.SyncedAt != nil {
		at := *tx.SyncedAt
		cloned.SyncedAt = &at
	}
	return &cloned
}

func cloneInventoryItem(item *domain.InventoryItem) *domain.InventoryItem {
	cloned := *item
	if item.SyncedAt != nil {
		at := *item.SyncedAt
		cloned.SyncedAt = &at
	}
	return &cloned
}

func cloneCustomer(customer *domain.Customer) *domain.Customer {
	cloned := *customer
	if customer.SyncedAt != nil {
		at := *customer.SyncedAt
		cloned.SyncedAt = &at
	}
	return &cloned
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" || tx.Type == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}

	s.transactionsByID[tx.ID] = cloneTransaction(&tx)
	return cloneTransaction(&tx), nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByID[tx.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.transactionsByID[tx.ID] = cloneTransaction(&tx)
	return cloneTransaction(&tx), nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	if tx.IsSynced {
		return store.ErrInvalidTransaction
	}
	delete(s.transactionsByID, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transactions := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && tx.CustomerID != filter.CustomerID {
			continue
		}
		if filter.UnsyncedOnly && tx.IsSynced {
			continue
		}
		transactions = append(transactions, *cloneTransaction(tx))
	}

	slices.SortFunc(transactions, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	if filter.Limit > 0 && len(transactions) > filter.Limit {
		transactions = transactions[:filter.Limit]
	}
	return transactions, nil
}

func (s *Store) FindTransactionByRemoteID(_ context.Context, remoteID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	for _, tx := range s.transactionsByID {
		if tx.RemoteID == remoteID {
			return cloneTransaction(tx), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) MarkTransactionSynced(_ context.Context, id string, remoteID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	tx.RemoteID = remoteID
	tx.IsSynced = true
	syncedAt := at
	tx.SyncedAt = &syncedAt
	return nil
}

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" || item.Type == "" || strings.TrimSpace(item.Variety) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.inventoryByID[item.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.inventoryByID {
		if existing.Type == item.Type && existing.Variety == item.Variety && existing.CompanyID == item.CompanyID {
			return nil, store.ErrInvalidTransaction
		}
	}

	s.inventoryByID[item.ID] = cloneInventoryItem(&item)
	return cloneInventoryItem(&item), nil
}

func (s *Store) GetInventoryItem(_ context.Context, id string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.inventoryByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneInventoryItem(item), nil
}

func (s *Store) FindInventoryItem(_ context.Context, itemType domain.ItemType, variety string, companyID string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.inventoryByID {
		if item.Type == itemType && item.Variety == variety && item.CompanyID == companyID {
			return cloneInventoryItem(item), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindInventoryItemByRemoteID(_ context.Context, remoteID string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	for _, item := range s.inventoryByID {
		if item.RemoteID == remoteID {
			return cloneInventoryItem(item), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.inventoryByID[item.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.inventoryByID[item.ID] = cloneInventoryItem(&item)
	return cloneInventoryItem(&item), nil
}

func (s *Store) ListInventoryItems(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.inventoryByID))
	for _, item := range s.inventoryByID {
		items = append(items, *cloneInventoryItem(item))
	}

	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		if a.Type == b.Type {
			return cmpString(a.Variety, b.Variety)
		}
		return cmpString(string(a.Type), string(b.Type))
	})
	return items, nil
}

func (s *Store) MarkInventoryItemSynced(_ context.Context, id string, remoteID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.inventoryByID[id]
	if !exists {
		return store.ErrNotFound
	}
	item.RemoteID = remoteID
	item.IsSynced = true
	syncedAt := at
	item.SyncedAt = &syncedAt
	return nil
}

func (s *Store) AppendStockMovement(_ context.Context, movement domain.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.ID == "" || movement.InventoryItemID == "" || movement.Type == "" {
		return store.ErrInvalidTransaction
	}
	s.movements = append(s.movements, movement)
	return nil
}

func (s *Store) ListStockMovements(_ context.Context, inventoryItemID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0, 16)
	for i := len(s.movements) - 1; i >= 0; i-- {
		if s.movements[i].InventoryItemID != inventoryItemID {
			continue
		}
		movements = append(movements, s.movements[i])
		if limit > 0 && len(movements) >= limit {
			break
		}
	}
	return movements, nil
}

func (s *Store) ListStockMovementsByTransaction(_ context.Context, transactionID string) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0, 4)
	for _, movement := range s.movements {
		if movement.TransactionID == transactionID {
			movements = append(movements, movement)
		}
	}
	return movements, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.customersByID[customer.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.customersByID[customer.ID] = cloneCustomer(&customer)
	return cloneCustomer(&customer), nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneCustomer(customer), nil
}

func (s *Store) FindCustomerByRemoteID(_ context.Context, remoteID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if remoteID == "" {
		return nil, store.ErrNotFound
	}
	for _, customer := range s.customersByID {
		if customer.RemoteID == remoteID {
			return cloneCustomer(customer), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[customer.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.customersByID[customer.ID] = cloneCustomer(&customer)
	return cloneCustomer(&customer), nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		customers = append(customers, *cloneCustomer(customer))
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) MarkCustomerSynced(_ context.Context, id string, remoteID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return store.ErrNotFound
	}
	customer.RemoteID = remoteID
	customer.IsSynced = true
	syncedAt := at
	customer.SyncedAt = &syncedAt
	return nil
}

func (s *Store) ListUnsyncedCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, 8)
	for _, customer := range s.customersByID {
		if customer.IsSynced {
			continue
		}
		customers = append(customers, *cloneCustomer(customer))
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return customers, nil
}

func (s *Store) ListUnsyncedInventoryItems(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, 8)
	for _, item := range s.inventoryByID {
		if item.IsSynced {
			continue
		}
		items = append(items, *cloneInventoryItem(item))
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return items, nil
}

func (s *Store) ListUnsyncedTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transactions := make([]domain.Transaction, 0, 8)
	for _, tx := range s.transactionsByID {
		if tx.IsSynced {
			continue
		}
		transactions = append(transactions, *cloneTransaction(tx))
	}
	slices.SortFunc(transactions, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return transactions, nil
}

func (s *Store) LastSyncTime(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastSyncAt == nil {
		return nil, nil
	}
	at := *s.lastSyncAt
	return &at, nil
}

func (s *Store) SetLastSyncTime(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marker := at
	s.lastSyncAt = &marker
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidTransaction
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}
