package ledger

import (
	"context"
	"errors"
	"testing"

	"millbook/backend/internal/domain"
	"millbook/backend/internal/store"
	"millbook/backend/internal/store/memory"
)

func newTestCustomerLedger() *CustomerLedger {
	return NewCustomerLedger(memory.NewSeeded())
}

func TestCreateCustomerRequiresName(t *testing.T) {
	ledger := newTestCustomerLedger()

	_, err := ledger.Create(context.Background(), domain.CustomerCreateRequest{Name: "   "})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected name rejection, got %v", err)
	}
}

func TestReceivableAndPayableSignConvention(t *testing.T) {
	ledger := newTestCustomerLedger()
	ctx := context.Background()

	// A credit sale raises the balance: the customer owes the mill.
	if err := ledger.ApplyDue(ctx, "cust-ravi", 150000, domain.DirectionReceivable); err != nil {
		t.Fatalf("apply receivable due: %v", err)
	}
	customer, err := ledger.Get(ctx, "cust-ravi")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.BalancePaisa != 150000 {
		t.Fatalf("expected balance 150000, got %d", customer.BalancePaisa)
	}

	// An unpaid purchase lowers it: the mill owes the supplier.
	if err := ledger.ApplyDue(ctx, "cust-ravi", 50000, domain.DirectionPayable); err != nil {
		t.Fatalf("apply payable due: %v", err)
	}
	customer, _ = ledger.Get(ctx, "cust-ravi")
	if customer.BalancePaisa != 100000 {
		t.Fatalf("expected balance 100000, got %d", customer.BalancePaisa)
	}
}

func TestPaymentThenReverseRestoresExactBalance(t *testing.T) {
	ledger := newTestCustomerLedger()
	ctx := context.Background()

	if err := ledger.ApplyDue(ctx, "cust-ravi", 200000, domain.DirectionReceivable); err != nil {
		t.Fatalf("apply due: %v", err)
	}
	if err := ledger.ApplyPayment(ctx, "cust-ravi", 75000, domain.DirectionReceivable); err != nil {
		t.Fatalf("apply payment: %v", err)
	}

	customer, _ := ledger.Get(ctx, "cust-ravi")
	if customer.BalancePaisa != 125000 {
		t.Fatalf("expected balance 125000, got %d", customer.BalancePaisa)
	}

	// Reversing with the remaining due restores the starting balance exactly.
	if err := ledger.Reverse(ctx, "cust-ravi", 125000, domain.DirectionReceivable); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	customer, _ = ledger.Get(ctx, "cust-ravi")
	if customer.BalancePaisa != 0 {
		t.Fatalf("expected balance restored to 0, got %d", customer.BalancePaisa)
	}
}

func TestApplyDueRejectsNegativeAmounts(t *testing.T) {
	ledger := newTestCustomerLedger()

	err := ledger.ApplyDue(context.Background(), "cust-ravi", -1, domain.DirectionReceivable)
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected negative due rejection, got %v", err)
	}
}

func TestZeroDueDoesNotTouchCustomer(t *testing.T) {
	ledger := newTestCustomerLedger()
	ctx := context.Background()

	before, _ := ledger.Get(ctx, "cust-ravi")
	if err := ledger.ApplyDue(ctx, "cust-ravi", 0, domain.DirectionReceivable); err != nil {
		t.Fatalf("apply zero due: %v", err)
	}
	after, _ := ledger.Get(ctx, "cust-ravi")
	if after.UpdatedAt != before.UpdatedAt {
		t.Fatal("a zero shift must not rewrite the customer row")
	}
}

func TestAccumulateTurnoverByType(t *testing.T) {
	ledger := newTestCustomerLedger()
	ctx := context.Background()

	if err := ledger.AccumulateTurnover(ctx, "cust-ravi", domain.TxTypeSell, 500000); err != nil {
		t.Fatalf("accumulate sale: %v", err)
	}
	if err := ledger.AccumulateTurnover(ctx, "cust-ravi", domain.TxTypeBuy, 200000); err != nil {
		t.Fatalf("accumulate purchase: %v", err)
	}
	if err := ledger.AccumulateTurnover(ctx, "cust-ravi", domain.TxTypeSell, -500000); err != nil {
		t.Fatalf("unwind sale: %v", err)
	}

	customer, _ := ledger.Get(ctx, "cust-ravi")
	if customer.TotalSalesPaisa != 0 {
		t.Fatalf("expected sales turnover unwound to 0, got %d", customer.TotalSalesPaisa)
	}
	if customer.TotalPurchasesPaisa != 200000 {
		t.Fatalf("expected purchase turnover 200000, got %d", customer.TotalPurchasesPaisa)
	}
}
