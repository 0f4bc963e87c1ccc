package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/shopspring/decimal"
)

// Aggregate is a customer's delivered totals for one period.
type Aggregate struct {
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DeliveryCount int             `json:"delivery_count"`
}

func aggregateOf(totals models.DeliveryTotals) Aggregate {
	return Aggregate{
		TotalQuantity: totals.Quantity,
		TotalAmount:   totals.Amount,
		DeliveryCount: totals.Count,
	}
}

// Aggregate sums delivered quantity and amount for customerID over every day
// of period. Days that were not delivered, or carry no amount, count for
// nothing. A customer with no qualifying deliveries gets zeros.
func (l *Ledger) Aggregate(ctx context.Context, customerID uuid.UUID, period models.Period) (Aggregate, error) {
	if period.IsZero() {
		return Aggregate{}, invalid("month", "period is required")
	}
	totals, err := l.storage.SumDeliveries(ctx, customerID, period.FirstDay(), period.LastDay())
	if err != nil {
		return Aggregate{}, wrapStoreError(fmt.Sprintf("aggregate deliveries for customer %s", customerID), err)
	}
	return aggregateOf(totals), nil
}
