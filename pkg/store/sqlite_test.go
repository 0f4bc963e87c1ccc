package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/shopspring/decimal"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "milkrun.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	for name, run := range storageCases {
		t.Run(name, func(t *testing.T) {
			run(t, newTestSQLiteStore(t))
		})
	}
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "milkrun.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	c := newTestCustomer(t, s, "Asha", 50)
	s.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetCustomer(ctx, c.ID); err != nil {
		t.Errorf("Expected customer to survive reopening, got %v", err)
	}
}

func TestSQLiteStore_DecimalPrecision(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	c := newTestCustomer(t, s, "Asha", 0)
	c.RatePerLiter = decimal.RequireFromString("0.1")

	var deliveries []*models.Delivery
	for d := 1; d <= 10; d++ {
		date := day("2024-03-01").AddDate(0, 0, d-1)
		deliveries = append(deliveries, models.NewDelivery(c, date, models.DeliveryStatusDelivered, decimal.RequireFromString("0.3")))
	}
	if err := s.UpsertDeliveries(ctx, deliveries); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	totals, err := s.SumDeliveries(ctx, c.ID, day("2024-03-01"), day("2024-03-31"))
	if err != nil {
		t.Fatalf("Failed to sum: %v", err)
	}
	if totals.Amount.String() != "0.3" {
		t.Errorf("Expected exact amount 0.3, got %s", totals.Amount)
	}
	if totals.Quantity.String() != "3" {
		t.Errorf("Expected exact quantity 3, got %s", totals.Quantity)
	}
}

func TestSQLiteStore_ConcurrentTransactionsSerialize(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	c := newTestCustomer(t, s, "Asha", 50)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InTx(ctx, func(tx Tx) error {
				current, err := tx.GetCustomerForUpdate(ctx, c.ID)
				if err != nil {
					return err
				}
				return tx.UpdateCustomerBalance(ctx, c.ID, current.OutstandingBalance.Add(decimal.NewFromInt(1)), current.UpdatedAt)
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrConflict):
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	fetched, _ := s.GetCustomer(ctx, c.ID)
	if !fetched.OutstandingBalance.Equal(decimal.NewFromInt(int64(succeeded))) {
		t.Errorf("Expected balance %d to match committed increments, got %s", succeeded, fetched.OutstandingBalance)
	}
}
