package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/mcclellann/milkrun/pkg/store"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// BillOutcome says what GenerateBill did for one customer.
type BillOutcome string

const (
	BillCreated   BillOutcome = "created"
	BillUpdated   BillOutcome = "updated"
	BillUnchanged BillOutcome = "unchanged"
	BillSkipped   BillOutcome = "skipped"
)

// GenerateResult summarizes a bulk run. Updated counts every existing bill
// that was refreshed; Unchanged is the subset of those with nothing to write.
type GenerateResult struct {
	Period    models.Period     `json:"month"`
	Created   int               `json:"created"`
	Updated   int               `json:"updated"`
	Unchanged int               `json:"unchanged"`
	Skipped   int               `json:"skipped"`
	Failures  []CustomerFailure `json:"failed"`
}

// Err returns a *BatchError when any customer failed.
func (r *GenerateResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &BatchError{Failures: r.Failures}
}

// GenerateBill creates or refreshes the bill of customerID for period.
//
// A period with no delivered amount gets no new bill, but an existing bill is
// always refreshed, even down to zero. The previous balance is taken from the
// customer's outstanding balance until the bill receives its first payment;
// from then on it keeps the value the payment was made against. Amount paid
// is never touched here.
func (l *Ledger) GenerateBill(ctx context.Context, customerID uuid.UUID, period models.Period) (BillOutcome, *models.Bill, error) {
	if period.IsZero() {
		return "", nil, invalid("month", "period is required")
	}

	unlock := l.locks.Lock(customerID)
	defer unlock()

	var outcome BillOutcome
	var bill *models.Bill
	err := l.storage.InTx(ctx, func(tx store.Tx) error {
		customer, err := tx.GetCustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		totals, err := tx.SumDeliveries(ctx, customerID, period.FirstDay(), period.LastDay())
		if err != nil {
			return err
		}
		existing, err := tx.GetBillByPeriodForUpdate(ctx, customerID, period)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := l.clock()
		if existing == nil {
			if !totals.Amount.GreaterThan(decimal.Zero) {
				outcome = BillSkipped
				return nil
			}
			bill = &models.Bill{
				ID:              uuid.New(),
				CustomerID:      customer.ID,
				CustomerName:    customer.Name,
				Period:          period,
				PeriodQuantity:  totals.Quantity,
				PeriodAmount:    totals.Amount,
				PreviousBalance: customer.OutstandingBalance,
				AmountPaid:      decimal.Zero,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			bill.Settle()
			outcome = BillCreated
			return tx.CreateBill(ctx, bill)
		}

		refreshed := *existing
		refreshed.CustomerName = customer.Name
		refreshed.PeriodQuantity = totals.Quantity
		refreshed.PeriodAmount = totals.Amount
		if existing.AmountPaid.IsZero() {
			refreshed.PreviousBalance = customer.OutstandingBalance
		}
		refreshed.Settle()

		if sameAmounts(existing, &refreshed) {
			outcome = BillUnchanged
			bill = existing
			return nil
		}
		refreshed.UpdatedAt = now
		outcome = BillUpdated
		bill = &refreshed
		return tx.UpdateBill(ctx, &refreshed)
	})
	if err != nil {
		return "", nil, wrapStoreError(fmt.Sprintf("generate bill for customer %s in %s", customerID, period), err)
	}

	l.log.Debug().
		Str("customer_id", customerID.String()).
		Str("month", period.String()).
		Str("outcome", string(outcome)).
		Msg("Bill generated")
	return outcome, bill, nil
}

func sameAmounts(a, b *models.Bill) bool {
	return a.CustomerName == b.CustomerName &&
		a.PeriodQuantity.Equal(b.PeriodQuantity) &&
		a.PeriodAmount.Equal(b.PeriodAmount) &&
		a.PreviousBalance.Equal(b.PreviousBalance) &&
		a.TotalDue.Equal(b.TotalDue) &&
		a.AmountPaid.Equal(b.AmountPaid) &&
		a.RemainingBalance.Equal(b.RemainingBalance) &&
		a.Status == b.Status
}

// GenerateBills runs GenerateBill for every active customer. Customers are
// processed in parallel, bounded by the configured worker count; a failure
// for one customer is recorded in the result and does not stop the others.
// The returned error is only set when the customer list cannot be read.
func (l *Ledger) GenerateBills(ctx context.Context, period models.Period) (*GenerateResult, error) {
	if period.IsZero() {
		return nil, invalid("month", "period is required")
	}

	customers, err := l.storage.ListCustomers(ctx, true)
	if err != nil {
		return nil, wrapStoreError("list active customers", err)
	}

	result := &GenerateResult{Period: period, Failures: []CustomerFailure{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(l.workers)
	for _, customer := range customers {
		customer := customer
		g.Go(func() error {
			outcome, _, err := l.GenerateBill(ctx, customer.ID, period)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.log.Error().Err(err).
					Str("customer_id", customer.ID.String()).
					Str("month", period.String()).
					Msg("Bill generation failed")
				result.Failures = append(result.Failures, CustomerFailure{
					CustomerID:   customer.ID,
					CustomerName: customer.Name,
					Message:      err.Error(),
					Err:          err,
				})
				return nil
			}
			switch outcome {
			case BillCreated:
				result.Created++
			case BillUpdated:
				result.Updated++
			case BillUnchanged:
				result.Updated++
				result.Unchanged++
			case BillSkipped:
				result.Skipped++
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].CustomerName < result.Failures[j].CustomerName
	})

	l.log.Info().
		Str("month", period.String()).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failures)).
		Msg("Bill generation finished")
	return result, nil
}
