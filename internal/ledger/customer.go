package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store"
	"millbook/backend/internal/xid"
)

// CustomerLedger is the only writer of customer balances. Balances are signed
// paisa: positive means the customer owes the mill, negative means the mill
// owes the customer. All arithmetic is integer so a reversal restores the
// exact prior balance.
type CustomerLedger struct {
	repo store.Repository
	keys *keyedMutex
	now  func() time.Time
}

func NewCustomerLedger(repo store.Repository) *CustomerLedger {
	return &CustomerLedger{
		repo: repo,
		keys: newKeyedMutex(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (l *CustomerLedger) Create(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrInvalidTransaction)
	}

	now := l.now()
	return l.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cust"),
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (l *CustomerLedger) Get(ctx context.Context, id string) (*domain.Customer, error) {
	return l.repo.GetCustomer(ctx, id)
}

func (l *CustomerLedger) List(ctx context.Context) ([]domain.Customer, error) {
	return l.repo.ListCustomers(ctx)
}

// ApplyDue moves a customer's balance by the due amount of a transaction.
// Receivable raises the balance, payable lowers it.
func (l *CustomerLedger) ApplyDue(ctx context.Context, customerID string, duePaisa int64, direction domain.BalanceDirection) error {
	if duePaisa < 0 {
		return fmt.Errorf("%w: due amount cannot be negative", store.ErrInvalidTransaction)
	}
	return l.shift(ctx, customerID, signed(duePaisa, direction))
}

// ApplyPayment records a payment against an outstanding due: the balance
// moves back toward zero by the paid amount.
func (l *CustomerLedger) ApplyPayment(ctx context.Context, customerID string, amountPaisa int64, direction domain.BalanceDirection) error {
	if amountPaisa <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidTransaction)
	}
	return l.shift(ctx, customerID, -signed(amountPaisa, direction))
}

// Reverse undoes a transaction's remaining balance effect. At any point the
// cumulative effect on the balance equals the current due (the creation
// applied the full due, each payment removed its amount and reduced the due
// by the same amount), so applying the current due in the opposite direction
// restores the balance exactly.
func (l *CustomerLedger) Reverse(ctx context.Context, customerID string, duePaisa int64, direction domain.BalanceDirection) error {
	if duePaisa < 0 {
		return fmt.Errorf("%w: due amount cannot be negative", store.ErrInvalidTransaction)
	}
	return l.shift(ctx, customerID, -signed(duePaisa, direction))
}

// AccumulateTurnover updates the running purchase/sale totals shown on the
// customer card. Pass negative amounts to unwind a cancelled transaction.
func (l *CustomerLedger) AccumulateTurnover(ctx context.Context, customerID string, txType domain.TransactionType, totalPaisa int64) error {
	unlock := l.keys.lock(customerID)
	defer unlock()

	customer, err := l.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	switch txType {
	case domain.TxTypeBuy:
		customer.TotalPurchasesPaisa += totalPaisa
	case domain.TxTypeSell:
		customer.TotalSalesPaisa += totalPaisa
	default:
		return nil
	}
	customer.UpdatedAt = l.now()
	customer.IsSynced = false
	_, err = l.repo.UpdateCustomer(ctx, *customer)
	return err
}

func (l *CustomerLedger) shift(ctx context.Context, customerID string, deltaPaisa int64) error {
	if deltaPaisa == 0 {
		return nil
	}

	unlock := l.keys.lock(customerID)
	defer unlock()

	customer, err := l.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	customer.BalancePaisa += deltaPaisa
	customer.UpdatedAt = l.now()
	customer.IsSynced = false
	_, err = l.repo.UpdateCustomer(ctx, *customer)
	return err
}

func signed(amountPaisa int64, direction domain.BalanceDirection) int64 {
	if direction == domain.DirectionPayable {
		return -amountPaisa
	}
	return amountPaisa
}
