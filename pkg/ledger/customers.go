package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/mcclellann/milkrun/pkg/store"
	"github.com/shopspring/decimal"
)

// fallbackRate is the default rate until settings have been saved once.
var fallbackRate = decimal.NewFromInt(45)

// CustomerInput carries the editable fields of a customer. A nil rate on
// create falls back to the default rate from settings.
type CustomerInput struct {
	Name            string
	Phone           string
	Address         string
	RatePerLiter    *decimal.Decimal
	DefaultQuantity *decimal.Decimal
	OpeningBalance  decimal.Decimal
}

func (in *CustomerInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	switch {
	case in.Name == "":
		return invalid("name", "is required")
	case in.Phone == "":
		return invalid("phone", "is required")
	case in.Address == "":
		return invalid("address", "is required")
	case in.RatePerLiter != nil && in.RatePerLiter.IsNegative():
		return invalid("rate_per_liter", "must not be negative")
	case in.DefaultQuantity != nil && in.DefaultQuantity.IsNegative():
		return invalid("default_quantity", "must not be negative")
	case in.OpeningBalance.IsNegative():
		return invalid("outstanding_balance", "must not be negative")
	}
	return nil
}

// CreateCustomer adds an active customer at the end of the delivery route.
func (l *Ledger) CreateCustomer(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var rate decimal.Decimal
	if in.RatePerLiter != nil {
		rate = *in.RatePerLiter
	} else {
		settings, err := l.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		rate = settings.DefaultRate
	}
	quantity := decimal.NewFromInt(1)
	if in.DefaultQuantity != nil {
		quantity = *in.DefaultQuantity
	}

	order, err := l.storage.NextDeliveryOrder(ctx)
	if err != nil {
		return nil, wrapStoreError("compute delivery order", err)
	}

	now := l.clock()
	customer := &models.Customer{
		ID:                 uuid.New(),
		Name:               in.Name,
		Phone:              in.Phone,
		Address:            in.Address,
		RatePerLiter:       rate,
		DefaultQuantity:    quantity,
		DeliveryOrder:      order,
		IsActive:           true,
		OutstandingBalance: in.OpeningBalance,
		RateUpdatedAt:      now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := l.storage.CreateCustomer(ctx, customer); err != nil {
		return nil, wrapStoreError("create customer", err)
	}

	l.log.Info().Str("customer_id", customer.ID.String()).Str("name", customer.Name).Msg("Customer created")
	return customer, nil
}

func (l *Ledger) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	customer, err := l.storage.GetCustomer(ctx, id)
	if err != nil {
		return nil, wrapStoreError("load customer", err)
	}
	return customer, nil
}

// ListCustomers returns customers in delivery route order.
func (l *Ledger) ListCustomers(ctx context.Context, activeOnly bool) ([]*models.Customer, error) {
	customers, err := l.storage.ListCustomers(ctx, activeOnly)
	if err != nil {
		return nil, wrapStoreError("list customers", err)
	}
	if customers == nil {
		customers = []*models.Customer{}
	}
	return customers, nil
}

// UpdateCustomer edits a customer's profile. A rate change applies to
// deliveries recorded afterwards; recorded deliveries keep their rate. The
// opening balance is ignored: only payments change the outstanding balance.
func (l *Ledger) UpdateCustomer(ctx context.Context, id uuid.UUID, in CustomerInput) (*models.Customer, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	// Read and write under the row lock: UpdateDefaultRate may change the
	// rate at any time.
	var customer *models.Customer
	err := l.storage.InTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetCustomerForUpdate(ctx, id)
		if err != nil {
			return err
		}

		now := l.clock()
		current.Name = in.Name
		current.Phone = in.Phone
		current.Address = in.Address
		if in.RatePerLiter != nil && !in.RatePerLiter.Equal(current.RatePerLiter) {
			current.RatePerLiter = *in.RatePerLiter
			current.RateUpdatedAt = now
		}
		if in.DefaultQuantity != nil {
			current.DefaultQuantity = *in.DefaultQuantity
		}
		current.UpdatedAt = now

		if err := tx.UpdateCustomer(ctx, current); err != nil {
			return err
		}
		customer = current
		return nil
	})
	if err != nil {
		return nil, wrapStoreError("update customer", err)
	}
	return customer, nil
}

// DeactivateCustomer soft-deletes a customer. Bills, deliveries and payments
// are kept.
func (l *Ledger) DeactivateCustomer(ctx context.Context, id uuid.UUID) error {
	unlock := l.locks.Lock(id)
	defer unlock()

	err := l.storage.InTx(ctx, func(tx store.Tx) error {
		customer, err := tx.GetCustomerForUpdate(ctx, id)
		if err != nil {
			return err
		}
		customer.IsActive = false
		customer.UpdatedAt = l.clock()
		return tx.UpdateCustomer(ctx, customer)
	})
	if err != nil {
		return wrapStoreError("deactivate customer", err)
	}
	l.log.Info().Str("customer_id", id.String()).Msg("Customer deactivated")
	return nil
}

// ReorderCustomers sets the delivery route to the order of ids.
func (l *Ledger) ReorderCustomers(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return invalid("customer_ids", "at least one customer is required")
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return invalid("customer_ids", "customer %s listed twice", id)
		}
		seen[id] = true
	}
	return wrapStoreError("reorder customers", l.storage.ReorderCustomers(ctx, ids))
}

// DeliveryEntry is one customer's record for a day.
type DeliveryEntry struct {
	CustomerID uuid.UUID
	Quantity   decimal.Decimal
	Status     models.DeliveryStatus
}

// SkippedEntry is a DeliveryEntry RecordDeliveries did not write.
type SkippedEntry struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Reason     string    `json:"reason"`
}

type RecordResult struct {
	Date    string             `json:"date"`
	Saved   int                `json:"saved"`
	Skipped []SkippedEntry     `json:"skipped"`
	Records []*models.Delivery `json:"deliveries"`
}

// RecordDeliveries upserts a day's delivery records, priced at each
// customer's current rate. Entries for unknown customers are skipped and
// reported; the rest are written in one transaction.
func (l *Ledger) RecordDeliveries(ctx context.Context, date time.Time, entries []DeliveryEntry) (*RecordResult, error) {
	if date.IsZero() {
		return nil, invalid("date", "is required")
	}
	if len(entries) == 0 {
		return nil, invalid("deliveries", "at least one entry is required")
	}
	date = models.DateOf(date)

	result := &RecordResult{Date: models.FormatDate(date), Skipped: []SkippedEntry{}, Records: []*models.Delivery{}}
	now := l.clock()
	for _, e := range entries {
		if !e.Status.Valid() {
			return nil, invalid("status", "unknown delivery status %q", e.Status)
		}
		if e.Quantity.IsNegative() {
			return nil, invalid("quantity", "must not be negative")
		}
		customer, err := l.storage.GetCustomer(ctx, e.CustomerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				result.Skipped = append(result.Skipped, SkippedEntry{CustomerID: e.CustomerID, Reason: "customer not found"})
				continue
			}
			return nil, wrapStoreError("load customer", err)
		}
		d := models.NewDelivery(customer, date, e.Status, e.Quantity)
		d.CreatedAt = now
		d.UpdatedAt = now
		result.Records = append(result.Records, d)
	}

	if len(result.Records) > 0 {
		if err := l.storage.UpsertDeliveries(ctx, result.Records); err != nil {
			return nil, wrapStoreError("record deliveries", err)
		}
	}
	result.Saved = len(result.Records)

	l.log.Info().
		Str("date", result.Date).
		Int("saved", result.Saved).
		Int("skipped", len(result.Skipped)).
		Msg("Deliveries recorded")
	return result, nil
}

// SheetRow pairs an active customer with the day's delivery. Recorded is false
// when Delivery is the proposal built from the customer's default quantity.
type SheetRow struct {
	Customer *models.Customer `json:"customer"`
	Delivery *models.Delivery `json:"delivery"`
	Recorded bool             `json:"recorded"`
}

// DeliverySheet lists active customers in route order with the delivery
// recorded for date, or a proposed delivery of their default quantity.
func (l *Ledger) DeliverySheet(ctx context.Context, date time.Time) ([]SheetRow, error) {
	if date.IsZero() {
		return nil, invalid("date", "is required")
	}
	date = models.DateOf(date)

	customers, err := l.storage.ListCustomers(ctx, true)
	if err != nil {
		return nil, wrapStoreError("list active customers", err)
	}
	deliveries, err := l.storage.ListDeliveriesByDate(ctx, date)
	if err != nil {
		return nil, wrapStoreError("list deliveries", err)
	}
	byCustomer := make(map[uuid.UUID]*models.Delivery, len(deliveries))
	for _, d := range deliveries {
		byCustomer[d.CustomerID] = d
	}

	rows := make([]SheetRow, 0, len(customers))
	for _, c := range customers {
		if d, ok := byCustomer[c.ID]; ok {
			rows = append(rows, SheetRow{Customer: c, Delivery: d, Recorded: true})
			continue
		}
		rows = append(rows, SheetRow{Customer: c, Delivery: models.NewDelivery(c, date, models.DeliveryStatusDelivered, c.DefaultQuantity)})
	}
	return rows, nil
}

// GetSettings returns the saved settings, or the built-in default rate when
// nothing has been saved yet.
func (l *Ledger) GetSettings(ctx context.Context) (*models.Settings, error) {
	settings, err := l.storage.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			now := l.clock()
			return &models.Settings{DefaultRate: fallbackRate, EffectiveDate: models.DateOf(now), UpdatedAt: now}, nil
		}
		return nil, wrapStoreError("load settings", err)
	}
	return settings, nil
}

// RateUpdate reports the outcome of UpdateDefaultRate.
type RateUpdate struct {
	Settings         *models.Settings `json:"settings"`
	CustomersUpdated int64            `json:"customers_updated"`
}

// UpdateDefaultRate saves a new default rate and applies it to every active
// customer in a single write. Recorded deliveries keep their rate snapshot and
// bills are untouched until they are next generated.
func (l *Ledger) UpdateDefaultRate(ctx context.Context, rate decimal.Decimal) (*RateUpdate, error) {
	if !rate.GreaterThan(decimal.Zero) {
		return nil, invalid("default_rate", "must be greater than zero")
	}

	now := l.clock()
	settings := &models.Settings{DefaultRate: rate, EffectiveDate: models.DateOf(now), UpdatedAt: now}
	var updated int64
	err := l.storage.InTx(ctx, func(tx store.Tx) error {
		if err := tx.SaveSettings(ctx, settings); err != nil {
			return err
		}
		var err error
		updated, err = tx.SetRateForActiveCustomers(ctx, rate, now)
		return err
	})
	if err != nil {
		return nil, wrapStoreError("update default rate", err)
	}

	l.log.Info().Str("rate", rate.String()).Int64("customers", updated).Msg("Default rate updated")
	return &RateUpdate{Settings: settings, CustomersUpdated: updated}, nil
}

// MarkBillSent records that the bill was handed to the customer.
func (l *Ledger) MarkBillSent(ctx context.Context, billID uuid.UUID) (*models.Bill, error) {
	bill, err := l.storage.MarkBillSent(ctx, billID, l.clock())
	if err != nil {
		return nil, wrapStoreError(fmt.Sprintf("mark bill %s sent", billID), err)
	}
	return bill, nil
}
