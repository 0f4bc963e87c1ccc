package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/shopspring/decimal"
)

// DailyEntry is one calendar day of a bill's period.
type DailyEntry struct {
	Date     string                `json:"date"`
	Weekday  string                `json:"day_name"`
	Quantity decimal.NullDecimal   `json:"quantity"`
	Status   models.DeliveryStatus `json:"status"`
	Amount   decimal.Decimal       `json:"amount"`
}

// BillDetails is a bill with its customer, its day-by-day deliveries and
// the payments made against it.
type BillDetails struct {
	Bill     *models.Bill      `json:"bill"`
	Customer *models.Customer  `json:"customer"`
	Daily    []DailyEntry      `json:"daily_deliveries"`
	Payments []*models.Payment `json:"payments"`
}

// CustomerSummary is a customer's delivered totals for a period and the bill
// for it, if one exists.
type CustomerSummary struct {
	Customer      *models.Customer `json:"customer"`
	Period        models.Period    `json:"month"`
	TotalQuantity decimal.Decimal  `json:"total_liters"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	DeliveryCount int              `json:"delivery_count"`
	Bill          *models.Bill     `json:"bill,omitempty"`
}

// DailyBreakdown returns one entry for every day in the bill's period, in
// date order. Days without a delivery record are reported as not delivered.
func (l *Ledger) DailyBreakdown(ctx context.Context, billID uuid.UUID) ([]DailyEntry, error) {
	bill, err := l.storage.GetBill(ctx, billID)
	if err != nil {
		return nil, wrapStoreError("load bill", err)
	}
	return l.dailyBreakdown(ctx, bill.CustomerID, bill.Period)
}

func (l *Ledger) dailyBreakdown(ctx context.Context, customerID uuid.UUID, period models.Period) ([]DailyEntry, error) {
	first, last := period.FirstDay(), period.LastDay()
	deliveries, err := l.storage.ListDeliveries(ctx, customerID, first, last)
	if err != nil {
		return nil, wrapStoreError("list deliveries", err)
	}

	byDate := make(map[string]*models.Delivery, len(deliveries))
	for _, d := range deliveries {
		byDate[models.FormatDate(d.Date)] = d
	}

	entries := make([]DailyEntry, 0, period.Days())
	for day := first; period.Contains(day); day = day.AddDate(0, 0, 1) {
		date := models.FormatDate(day)
		entry := DailyEntry{
			Date:    date,
			Weekday: day.Weekday().String()[:3],
			Status:  models.DeliveryStatusNotDelivered,
			Amount:  decimal.Zero,
		}
		if d, ok := byDate[date]; ok {
			entry.Quantity = d.Quantity
			entry.Status = d.Status
			entry.Amount = d.Amount
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BillDetails loads a bill with its customer, daily breakdown and payments.
func (l *Ledger) BillDetails(ctx context.Context, billID uuid.UUID) (*BillDetails, error) {
	bill, err := l.storage.GetBill(ctx, billID)
	if err != nil {
		return nil, wrapStoreError("load bill", err)
	}
	customer, err := l.storage.GetCustomer(ctx, bill.CustomerID)
	if err != nil {
		return nil, wrapStoreError("load customer", err)
	}
	daily, err := l.dailyBreakdown(ctx, bill.CustomerID, bill.Period)
	if err != nil {
		return nil, err
	}
	payments, err := l.storage.ListPayments(ctx, models.PaymentFilter{BillID: &bill.ID})
	if err != nil {
		return nil, wrapStoreError("list payments", err)
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return &BillDetails{Bill: bill, Customer: customer, Daily: daily, Payments: payments}, nil
}

// ListBills returns bills matching filter. It never generates or updates a
// bill; callers that want fresh bills run GenerateBills first.
func (l *Ledger) ListBills(ctx context.Context, filter models.BillFilter) ([]*models.Bill, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "unknown bill status %q", filter.Status)
	}
	bills, err := l.storage.ListBills(ctx, filter)
	if err != nil {
		return nil, wrapStoreError("list bills", err)
	}
	if bills == nil {
		bills = []*models.Bill{}
	}
	return bills, nil
}

// PaymentHistory returns payments for a customer, a bill, or both, newest first.
func (l *Ledger) PaymentHistory(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error) {
	payments, err := l.storage.ListPayments(ctx, filter)
	if err != nil {
		return nil, wrapStoreError("list payments", err)
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return payments, nil
}

// PeriodSummary returns a customer's delivered totals and bill for period.
func (l *Ledger) PeriodSummary(ctx context.Context, customerID uuid.UUID, period models.Period) (*CustomerSummary, error) {
	if period.IsZero() {
		return nil, invalid("month", "period is required")
	}
	customer, err := l.storage.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, wrapStoreError("load customer", err)
	}
	return l.summarize(ctx, customer, period)
}

func (l *Ledger) summarize(ctx context.Context, customer *models.Customer, period models.Period) (*CustomerSummary, error) {
	totals, err := l.storage.SumDeliveries(ctx, customer.ID, period.FirstDay(), period.LastDay())
	if err != nil {
		return nil, wrapStoreError(fmt.Sprintf("aggregate deliveries for customer %s", customer.ID), err)
	}
	summary := &CustomerSummary{
		Customer:      customer,
		Period:        period,
		TotalQuantity: totals.Quantity,
		TotalAmount:   totals.Amount,
		DeliveryCount: totals.Count,
	}
	bill, err := l.storage.GetBillByPeriod(ctx, customer.ID, period)
	switch {
	case err == nil:
		summary.Bill = bill
	case !IsNotFound(err):
		return nil, wrapStoreError("load bill", err)
	}
	return summary, nil
}

// MonthlyReport summarizes every active customer with deliveries in period,
// in route order. A non-nil customerID narrows the report to that customer.
func (l *Ledger) MonthlyReport(ctx context.Context, period models.Period, customerID *uuid.UUID) ([]*CustomerSummary, error) {
	if period.IsZero() {
		return nil, invalid("month", "period is required")
	}
	customers, err := l.storage.ListCustomers(ctx, true)
	if err != nil {
		return nil, wrapStoreError("list active customers", err)
	}

	report := []*CustomerSummary{}
	for _, customer := range customers {
		if customerID != nil && customer.ID != *customerID {
			continue
		}
		summary, err := l.summarize(ctx, customer, period)
		if err != nil {
			return nil, err
		}
		if summary.DeliveryCount == 0 {
			continue
		}
		report = append(report, summary)
	}
	return report, nil
}
