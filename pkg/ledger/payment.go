package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/mcclellann/milkrun/pkg/store"
	"github.com/shopspring/decimal"
)

// PaymentRequest is a payment received against one bill.
type PaymentRequest struct {
	BillID uuid.UUID
	Amount decimal.Decimal
	Method models.PaymentMethod // defaults to cash
	Notes  string
	Date   time.Time // defaults to now
}

// PostPayment records a payment against a bill. The payment row, the bill's
// paid amount and status, and the customer's outstanding balance are written
// in one transaction: either all three change or none do.
//
// The amount must be positive and no larger than the bill's remaining
// balance. PostPayment never retries; on a conflict the caller should check
// the bill's payments before posting again.
func (l *Ledger) PostPayment(ctx context.Context, req PaymentRequest) (*models.Payment, *models.Bill, error) {
	if !req.Amount.GreaterThan(decimal.Zero) {
		return nil, nil, invalid("amount", "must be greater than zero")
	}
	if req.Method == "" {
		req.Method = models.PaymentMethodCash
	}
	if !req.Method.Valid() {
		return nil, nil, invalid("payment_method", "unknown method %q", req.Method)
	}

	bill, err := l.storage.GetBill(ctx, req.BillID)
	if err != nil {
		return nil, nil, wrapStoreError("load bill", err)
	}

	unlock := l.locks.Lock(bill.CustomerID)
	defer unlock()

	var payment *models.Payment
	err = l.storage.InTx(ctx, func(tx store.Tx) error {
		customer, err := tx.GetCustomerForUpdate(ctx, bill.CustomerID)
		if err != nil {
			return err
		}
		current, err := tx.GetBillForUpdate(ctx, req.BillID)
		if err != nil {
			return err
		}
		if req.Amount.GreaterThan(current.RemainingBalance) {
			return invalid("amount", "%s exceeds remaining balance %s", req.Amount, current.RemainingBalance)
		}

		now := l.clock()
		paidAt := req.Date
		if paidAt.IsZero() {
			paidAt = now
		}
		payment = &models.Payment{
			ID:           uuid.New(),
			CustomerID:   customer.ID,
			CustomerName: customer.Name,
			BillID:       current.ID,
			Amount:       req.Amount,
			PaymentDate:  paidAt.UTC(),
			Method:       req.Method,
			Notes:        req.Notes,
			CreatedAt:    now,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		current.AmountPaid = current.AmountPaid.Add(req.Amount)
		current.Settle()
		current.UpdatedAt = now
		if err := tx.UpdateBill(ctx, current); err != nil {
			return err
		}

		balance := customer.OutstandingBalance.Sub(req.Amount)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		if err := tx.UpdateCustomerBalance(ctx, customer.ID, balance, now); err != nil {
			return err
		}

		bill = current
		return nil
	})
	if err != nil {
		return nil, nil, wrapStoreError(fmt.Sprintf("post payment on bill %s", req.BillID), err)
	}

	l.log.Info().
		Str("bill_id", bill.ID.String()).
		Str("customer_id", bill.CustomerID.String()).
		Str("amount", payment.Amount.String()).
		Str("status", string(bill.Status)).
		Msg("Payment posted")
	return payment, bill, nil
}
