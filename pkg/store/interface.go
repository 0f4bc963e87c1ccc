package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/shopspring/decimal"
)

// Storage defines the interface for database operations on customers,
// deliveries, bills and payments.
type Storage interface {
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	ListCustomers(ctx context.Context, activeOnly bool) ([]*models.Customer, error)
	NextDeliveryOrder(ctx context.Context) (int, error)
	ReorderCustomers(ctx context.Context, ids []uuid.UUID) error

	// UpsertDeliveries writes every delivery in one transaction, replacing
	// any existing record for the same customer and date.
	UpsertDeliveries(ctx context.Context, deliveries []*models.Delivery) error
	ListDeliveries(ctx context.Context, customerID uuid.UUID, from, to time.Time) ([]*models.Delivery, error)
	ListDeliveriesByDate(ctx context.Context, date time.Time) ([]*models.Delivery, error)
	SumDeliveries(ctx context.Context, customerID uuid.UUID, from, to time.Time) (models.DeliveryTotals, error)

	GetBill(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	GetBillByPeriod(ctx context.Context, customerID uuid.UUID, period models.Period) (*models.Bill, error)
	ListBills(ctx context.Context, filter models.BillFilter) ([]*models.Bill, error)
	MarkBillSent(ctx context.Context, id uuid.UUID, at time.Time) (*models.Bill, error)

	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error)

	// GetSettings returns ErrNotFound until settings have been saved once.
	GetSettings(ctx context.Context) (*models.Settings, error)

	// InTx runs fn inside a single database transaction. The transaction
	// commits only if fn returns nil; any error rolls back every write.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the read-modify-write surface available inside InTx. The ForUpdate
// reads lock the returned rows until the transaction ends.
type Tx interface {
	GetCustomerForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	GetBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	GetBillByPeriodForUpdate(ctx context.Context, customerID uuid.UUID, period models.Period) (*models.Bill, error)
	SumDeliveries(ctx context.Context, customerID uuid.UUID, from, to time.Time) (models.DeliveryTotals, error)

	CreateBill(ctx context.Context, bill *models.Bill) error
	UpdateBill(ctx context.Context, bill *models.Bill) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdateCustomerBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error

	SaveSettings(ctx context.Context, settings *models.Settings) error
	// SetRateForActiveCustomers updates every active customer in a single
	// statement and returns how many rows changed.
	SetRateForActiveCustomers(ctx context.Context, rate decimal.Decimal, at time.Time) (int64, error)
}
