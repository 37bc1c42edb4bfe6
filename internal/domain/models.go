package domain

import (
	"math"
	"time"
)

type TransactionType string

const (
	TxTypeBuy        TransactionType = "buy"
	TxTypeSell       TransactionType = "sell"
	TxTypeMilling    TransactionType = "milling"
	TxTypeAdjustment TransactionType = "adjustment"
	TxTypeTransfer   TransactionType = "transfer"
)

type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusCancelled TransactionStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusCompleted PaymentStatus = "completed"
)

type ItemType string

const (
	ItemTypePaddy ItemType = "paddy"
	ItemTypeRice  ItemType = "rice"
	ItemTypeBran  ItemType = "bran"
	ItemTypeHusk  ItemType = "husk"
)

type MovementType string

const (
	MovementInitial    MovementType = "initial"
	MovementStockIn    MovementType = "stock_in"
	MovementStockOut   MovementType = "stock_out"
	MovementAdjustment MovementType = "adjustment"
	MovementTransfer   MovementType = "transfer"
)

// StockEffect records which way a transaction line moved inventory, so
// cancellation can apply the exact inverse without re-deriving it from the
// transaction type. A milling transaction carries one line of each.
type StockEffect string

const (
	EffectStockIn  StockEffect = "in"
	EffectStockOut StockEffect = "out"
)

// BalanceDirection makes the customer-balance sign convention explicit at
// every call site. A receivable due raises the balance (the customer owes
// the mill), a payable due lowers it (the mill owes the supplier).
type BalanceDirection string

const (
	DirectionReceivable BalanceDirection = "receivable"
	DirectionPayable    BalanceDirection = "payable"
)

type Transaction struct {
	ID            string            `json:"id"`
	RemoteID      string            `json:"remote_id,omitempty"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	CustomerID    string            `json:"customer_id,omitempty"`
	Items         []TransactionItem `json:"items"`
	TotalPaisa    int64             `json:"total_paisa"`
	PaidPaisa     int64             `json:"paid_paisa"`
	DuePaisa      int64             `json:"due_paisa"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Note          string            `json:"note,omitempty"`
	CancelReason  string            `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	IsSynced      bool              `json:"is_synced"`
	SyncedAt      *time.Time        `json:"synced_at,omitempty"`
}

type TransactionItem struct {
	ID              string      `json:"id"`
	TransactionID   string      `json:"transaction_id"`
	InventoryItemID string      `json:"inventory_item_id"`
	Effect          StockEffect `json:"effect"`
	QuantityKg      float64     `json:"quantity_kg"`
	Bags            int         `json:"bags"`
	UnitPricePaisa  int64       `json:"unit_price_paisa"`
	AmountPaisa     int64       `json:"amount_paisa"`
}

type InventoryItem struct {
	ID            string     `json:"id"`
	RemoteID      string     `json:"remote_id,omitempty"`
	Type          ItemType   `json:"type"`
	Variety       string     `json:"variety"`
	CompanyID     string     `json:"company_id"`
	QuantityKg    float64    `json:"quantity_kg"`
	Bags          int        `json:"bags"`
	AvgPricePaisa int64      `json:"avg_price_paisa"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	IsSynced      bool       `json:"is_synced"`
	SyncedAt      *time.Time `json:"synced_at,omitempty"`
}

// StockMovement is an append-only audit record of one inventory change.
// Rows are never updated or deleted once written.
type StockMovement struct {
	ID              string       `json:"id"`
	InventoryItemID string       `json:"inventory_item_id"`
	Type            MovementType `json:"type"`
	QuantityKg      float64      `json:"quantity_kg"`
	Bags            int          `json:"bags"`
	TransactionID   string       `json:"transaction_id,omitempty"`
	Note            string       `json:"note,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

type Customer struct {
	ID                  string     `json:"id"`
	RemoteID            string     `json:"remote_id,omitempty"`
	Name                string     `json:"name"`
	Phone               string     `json:"phone,omitempty"`
	BalancePaisa        int64      `json:"balance_paisa"`
	TotalPurchasesPaisa int64      `json:"total_purchases_paisa"`
	TotalSalesPaisa     int64      `json:"total_sales_paisa"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	IsSynced            bool       `json:"is_synced"`
	SyncedAt            *time.Time `json:"synced_at,omitempty"`
}

type TransactionItemRequest struct {
	InventoryItemID string  `json:"inventory_item_id"`
	QuantityKg      float64 `json:"quantity_kg"`
	Bags            int     `json:"bags"`
	UnitPricePaisa  int64   `json:"unit_price_paisa"`
}

type CreateTransactionRequest struct {
	Type          TransactionType          `json:"type"`
	CustomerID    string                   `json:"customer_id,omitempty"`
	PaidPaisa     int64                    `json:"paid_paisa"`
	PaymentMethod string                   `json:"payment_method,omitempty"`
	Note          string                   `json:"note,omitempty"`
	Items         []TransactionItemRequest `json:"items"`
}

type AddPaymentRequest struct {
	AmountPaisa int64  `json:"amount_paisa"`
	Method      string `json:"method"`
}

type CancelTransactionRequest struct {
	Reason string `json:"reason"`
}

type MillingRequest struct {
	PaddyItemID string  `json:"paddy_item_id"`
	RiceItemID  string  `json:"rice_item_id"`
	PaddyQtyKg  float64 `json:"paddy_qty_kg"`
	PaddyBags   int     `json:"paddy_bags"`
	RiceQtyKg   float64 `json:"rice_qty_kg"`
	RiceBags    int     `json:"rice_bags"`
	// WastageQtyKg is the weighed loss (husk, broken grain). When zero it
	// is derived as paddy minus rice; when supplied it must reconcile with
	// the two weights.
	WastageQtyKg float64 `json:"wastage_qty_kg,omitempty"`
	Note         string  `json:"note,omitempty"`
}

type AdjustInventoryRequest struct {
	InventoryItemID string  `json:"inventory_item_id"`
	NewQuantityKg   float64 `json:"new_quantity_kg"`
	NewBags         int     `json:"new_bags"`
	Reason          string  `json:"reason"`
}

type TransferStockRequest struct {
	FromItemID string  `json:"from_item_id"`
	ToItemID   string  `json:"to_item_id"`
	QuantityKg float64 `json:"quantity_kg"`
	Bags       int     `json:"bags"`
	Note       string  `json:"note,omitempty"`
}

type InventoryItemCreateRequest struct {
	Type              ItemType `json:"type"`
	Variety           string   `json:"variety"`
	CompanyID         string   `json:"company_id,omitempty"`
	OpeningQuantityKg float64  `json:"opening_quantity_kg"`
	OpeningBags       int      `json:"opening_bags"`
	AvgPricePaisa     int64    `json:"avg_price_paisa"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type TransactionFilter struct {
	Type         TransactionType
	Status       TransactionStatus
	CustomerID   string
	UnsyncedOnly bool
	Limit        int
}

type SyncStatus struct {
	Online              bool       `json:"online"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	PendingCustomers    int        `json:"pending_customers"`
	PendingInventory    int        `json:"pending_inventory"`
	PendingTransactions int        `json:"pending_transactions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount holds login credentials for the local terminal. Passwords are
// stored as bcrypt hashes.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// LineAmountPaisa rounds a quantity times unit-price product to whole paisa.
// Rounding happens once per line at total computation, never earlier.
func LineAmountPaisa(quantityKg float64, unitPricePaisa int64) int64 {
	return int64(math.Round(quantityKg * float64(unitPricePaisa)))
}

// DerivePaymentStatus maps paid against total to the payment state shown in
// listings. A zero-total transaction with no payment stays pending.
func DerivePaymentStatus(totalPaisa, paidPaisa int64) PaymentStatus {
	switch {
	case totalPaisa > 0 && paidPaisa >= totalPaisa:
		return PaymentStatusCompleted
	case paidPaisa > 0:
		return PaymentStatusPartial
	default:
		return PaymentStatusPending
	}
}

// DirectionFor maps a transaction type to its customer-balance direction.
// Sales are receivable, purchases are payable. Other transaction types carry
// no customer effect.
func DirectionFor(txType TransactionType) (BalanceDirection, bool) {
	switch txType {
	case TxTypeSell:
		return DirectionReceivable, true
	case TxTypeBuy:
		return DirectionPayable, true
	default:
		return "", false
	}
}
