package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Customer struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Phone              string          `json:"phone"`
	Address            string          `json:"address"`
	RatePerLiter       decimal.Decimal `json:"rate_per_liter"`      // Applies to deliveries recorded from now on
	DefaultQuantity    decimal.Decimal `json:"default_quantity"`    // Proposed daily quantity on the delivery sheet
	DeliveryOrder      int             `json:"delivery_order"`      // Route position, 1-based
	IsActive           bool            `json:"is_active"`           // false = soft deleted
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"` // Never negative
	RateUpdatedAt      time.Time       `json:"rate_updated_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type DeliveryStatus string

const (
	DeliveryStatusDelivered    DeliveryStatus = "delivered"
	DeliveryStatusNotDelivered DeliveryStatus = "not_delivered"
	DeliveryStatusAbsent       DeliveryStatus = "absent"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusDelivered, DeliveryStatusNotDelivered, DeliveryStatusAbsent:
		return true
	}
	return false
}

type Delivery struct {
	ID             uuid.UUID           `json:"id"`
	CustomerID     uuid.UUID           `json:"customer_id"`
	CustomerName   string              `json:"customer_name"`
	Date           time.Time           `json:"date"`     // UTC midnight
	Quantity       decimal.NullDecimal `json:"quantity"` // Only set for delivered days
	Status         DeliveryStatus      `json:"status"`
	Amount         decimal.Decimal     `json:"amount"`
	RateAtDelivery decimal.Decimal     `json:"rate_at_delivery"` // Snapshot, immune to later rate changes
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NewDelivery prices a delivery against rate. Non-delivered days and
// non-positive quantities carry no quantity and a zero amount.
func NewDelivery(customer *Customer, date time.Time, status DeliveryStatus, quantity decimal.Decimal) *Delivery {
	d := &Delivery{
		ID:             uuid.New(),
		CustomerID:     customer.ID,
		CustomerName:   customer.Name,
		Date:           DateOf(date),
		Status:         status,
		Amount:         decimal.Zero,
		RateAtDelivery: customer.RatePerLiter,
	}
	if status == DeliveryStatusDelivered && quantity.GreaterThan(decimal.Zero) {
		d.Quantity = decimal.NullDecimal{Decimal: quantity, Valid: true}
		d.Amount = quantity.Mul(customer.RatePerLiter)
	}
	return d
}

type BillStatus string

const (
	BillStatusPending BillStatus = "pending"
	BillStatusPartial BillStatus = "partial"
	BillStatusPaid    BillStatus = "paid"
)

func (s BillStatus) Valid() bool {
	switch s {
	case BillStatusPending, BillStatusPartial, BillStatusPaid:
		return true
	}
	return false
}

// Bill is the invoice for one customer and one period.
type Bill struct {
	ID               uuid.UUID       `json:"id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	CustomerName     string          `json:"customer_name"`
	Period           Period          `json:"month"`
	PeriodQuantity   decimal.Decimal `json:"total_liters"`
	PeriodAmount     decimal.Decimal `json:"total_amount"`
	PreviousBalance  decimal.Decimal `json:"previous_balance"`
	TotalDue         decimal.Decimal `json:"total_due"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Status           BillStatus      `json:"status"`
	Sent             bool            `json:"bill_sent"`
	SentAt           *time.Time      `json:"bill_sent_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Settle recomputes TotalDue, RemainingBalance and Status from the period
// amount, previous balance and amount paid.
func (b *Bill) Settle() {
	b.TotalDue = b.PeriodAmount.Add(b.PreviousBalance)
	remaining := b.TotalDue.Sub(b.AmountPaid)
	if remaining.LessThanOrEqual(decimal.Zero) {
		b.RemainingBalance = decimal.Zero
		b.Status = BillStatusPaid
		return
	}
	b.RemainingBalance = remaining
	if b.AmountPaid.GreaterThan(decimal.Zero) {
		b.Status = BillStatusPartial
	} else {
		b.Status = BillStatusPending
	}
}

type PaymentMethod string

const (
	PaymentMethodCash          PaymentMethod = "cash"
	PaymentMethodBankTransfer  PaymentMethod = "bank_transfer"
	PaymentMethodMobilePayment PaymentMethod = "mobile_payment"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodMobilePayment:
		return true
	}
	return false
}

// Payment is append-only: once stored it is never updated or deleted.
type Payment struct {
	ID           uuid.UUID       `json:"id"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	BillID       uuid.UUID       `json:"bill_id"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentDate  time.Time       `json:"payment_date"`
	Method       PaymentMethod   `json:"payment_method"`
	Notes        string          `json:"notes"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Settings struct {
	DefaultRate   decimal.Decimal `json:"default_rate"`
	EffectiveDate time.Time       `json:"effective_date"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DeliveryTotals is the result of summing a customer's delivered days.
type DeliveryTotals struct {
	Quantity decimal.Decimal `json:"total_quantity"`
	Amount   decimal.Decimal `json:"total_amount"`
	Count    int             `json:"delivery_count"`
}

type BillFilter struct {
	Period     *Period
	CustomerID *uuid.UUID
	Status     BillStatus
}

type PaymentFilter struct {
	CustomerID *uuid.UUID
	BillID     *uuid.UUID
}
