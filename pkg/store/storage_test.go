package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/shopspring/decimal"
)

// storageCases run against every Storage implementation.
var storageCases = map[string]func(t *testing.T, s Storage){
	"CustomerRoundTrip":       testCustomerRoundTrip,
	"ListCustomersOrder":      testListCustomersOrder,
	"UpsertDeliveryOverwrite": testUpsertDeliveryOverwrite,
	"SumDeliveriesFilters":    testSumDeliveriesFilters,
	"BillLifecycle":           testBillLifecycle,
	"TxRollback":              testTxRollback,
	"DuplicateBillConflict":   testDuplicateBillConflict,
	"SettingsAndRates":        testSettingsAndRates,
	"NotFound":                testNotFound,
}

func newTestCustomer(t *testing.T, s Storage, name string, rate int64) *models.Customer {
	t.Helper()
	now := time.Now().UTC()
	order, err := s.NextDeliveryOrder(context.Background())
	if err != nil {
		t.Fatalf("Failed to get next delivery order: %v", err)
	}
	c := &models.Customer{
		ID:                 uuid.New(),
		Name:               name,
		Phone:              "555-0100",
		Address:            "1 Dairy Lane",
		RatePerLiter:       decimal.NewFromInt(rate),
		DefaultQuantity:    decimal.NewFromInt(1),
		DeliveryOrder:      order,
		IsActive:           true,
		OutstandingBalance: decimal.Zero,
		RateUpdatedAt:      now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	return c
}

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testCustomerRoundTrip(t *testing.T, s Storage) {
	ctx := context.Background()
	c := newTestCustomer(t, s, "Asha", 50)

	fetched, err := s.GetCustomer(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}
	if fetched.Name != "Asha" || !fetched.RatePerLiter.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Unexpected customer %+v", fetched)
	}
	if !fetched.IsActive {
		t.Error("Expected customer to be active")
	}

	fetched.Name = "Asha K"
	fetched.IsActive = false
	fetched.OutstandingBalance = decimal.NewFromInt(999)
	if err := updateCustomer(ctx, s, fetched); err != nil {
		t.Fatalf("Failed to update customer: %v", err)
	}

	again, _ := s.GetCustomer(ctx, c.ID)
	if again.Name != "Asha K" || again.IsActive {
		t.Errorf("Expected updated inactive customer, got %+v", again)
	}
	if !again.OutstandingBalance.IsZero() {
		t.Errorf("Expected UpdateCustomer to leave the balance alone, got %s", again.OutstandingBalance)
	}
}

func testListCustomersOrder(t *testing.T, s Storage) {
	ctx := context.Background()
	a := newTestCustomer(t, s, "A", 50)
	b := newTestCustomer(t, s, "B", 50)
	c := newTestCustomer(t, s, "C", 50)

	if err := s.ReorderCustomers(ctx, []uuid.UUID{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("Failed to reorder: %v", err)
	}

	if err := updateCustomer(ctx, s, mustGetCustomer(t, s, b.ID, func(x *models.Customer) { x.IsActive = false })); err != nil {
		t.Fatalf("Failed to deactivate: %v", err)
	}

	active, err := s.ListCustomers(ctx, true)
	if err != nil {
		t.Fatalf("Failed to list customers: %v", err)
	}
	if len(active) != 2 || active[0].ID != c.ID || active[1].ID != a.ID {
		t.Fatalf("Unexpected active order: %v", names(active))
	}

	all, _ := s.ListCustomers(ctx, false)
	if len(all) != 3 || all[2].ID != b.ID {
		t.Errorf("Unexpected full order: %v", names(all))
	}

	if err := s.ReorderCustomers(ctx, []uuid.UUID{uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound reordering unknown customer, got %v", err)
	}
}

func updateCustomer(ctx context.Context, s Storage, c *models.Customer) error {
	return s.InTx(ctx, func(tx Tx) error {
		return tx.UpdateCustomer(ctx, c)
	})
}

func mustGetCustomer(t *testing.T, s Storage, id uuid.UUID, edit func(*models.Customer)) *models.Customer {
	t.Helper()
	c, err := s.GetCustomer(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to get customer: %v", err)
	}
	edit(c)
	return c
}

func names(cs []*models.Customer) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}

func testUpsertDeliveryOverwrite(t *testing.T, s Storage) {
	ctx := context.Background()
	c := newTestCustomer(t, s, "Asha", 50)

	first := models.NewDelivery(c, day("2024-03-05"), models.DeliveryStatusDelivered, decimal.NewFromInt(2))
	if err := s.UpsertDeliveries(ctx, []*models.Delivery{first}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	second := models.NewDelivery(c, day("2024-03-05"), models.DeliveryStatusAbsent, decimal.Zero)
	if err := s.UpsertDeliveries(ctx, []*models.Delivery{second}); err != nil {
		t.Fatalf("Failed to upsert overwrite: %v", err)
	}

	got, err := s.ListDeliveries(ctx, c.ID, day("2024-03-01"), day("2024-03-31"))
	if err != nil {
		t.Fatalf("Failed to list deliveries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected exactly one delivery for the day, got %d", len(got))
	}
	if got[0].ID != first.ID {
		t.Errorf("Expected the original row id to be kept")
	}
	if got[0].Status != models.DeliveryStatusAbsent || got[0].Quantity.Valid || !got[0].Amount.IsZero() {
		t.Errorf("Expected absent day with no quantity, got %+v", got[0])
	}
	if !got[0].Date.Equal(day("2024-03-05")) {
		t.Errorf("Unexpected date %s", got[0].Date)
	}

	byDate, _ := s.ListDeliveriesByDate(ctx, day("2024-03-05"))
	if len(byDate) != 1 || byDate[0].CustomerName != "Asha" {
		t.Errorf("Unexpected deliveries for date: %+v", byDate)
	}
}

func testSumDeliveriesFilters(t *testing.T, s Storage) {
	ctx := context.Background()
	c := newTestCustomer(t, s, "Asha", 50)
	other := newTestCustomer(t, s, "Ravi", 40)

	deliveries := []*models.Delivery{
		models.NewDelivery(c, day("2024-02-29"), models.DeliveryStatusDelivered, decimal.NewFromInt(9)),
		models.NewDelivery(c, day("2024-03-01"), models.DeliveryStatusDelivered, decimal.NewFromFloat(1.5)),
		models.NewDelivery(c, day("2024-03-02"), models.DeliveryStatusAbsent, decimal.Zero),
		models.NewDelivery(c, day("2024-03-03"), models.DeliveryStatusNotDelivered, decimal.Zero),
		models.NewDelivery(c, day("2024-03-31"), models.DeliveryStatusDelivered, decimal.NewFromFloat(0.5)),
		models.NewDelivery(c, day("2024-04-01"), models.DeliveryStatusDelivered, decimal.NewFromInt(9)),
		models.NewDelivery(other, day("2024-03-10"), models.DeliveryStatusDelivered, decimal.NewFromInt(9)),
	}
	if err := s.UpsertDeliveries(ctx, deliveries); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	totals, err := s.SumDeliveries(ctx, c.ID, day("2024-03-01"), day("2024-03-31"))
	if err != nil {
		t.Fatalf("Failed to sum deliveries: %v", err)
	}
	if !totals.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected quantity 2, got %s", totals.Quantity)
	}
	if !totals.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected amount 100, got %s", totals.Amount)
	}
	if totals.Count != 2 {
		t.Errorf("Expected 2 delivered days, got %d", totals.Count)
	}

	empty, err := s.SumDeliveries(ctx, c.ID, day("2023-01-01"), day("2023-01-31"))
	if err != nil {
		t.Fatalf("Failed to sum empty range: %v", err)
	}
	if !empty.Amount.IsZero() || empty.Count != 0 {
		t.Errorf("Expected zero totals, got %+v", empty)
	}
}

func newTestBill(c *models.Customer, period string, amount int64) *models.Bill {
	p, _ := models.ParsePeriod(period)
	now := time.Now().UTC()
	b := &models.Bill{
		ID:              uuid.New(),
		CustomerID:      c.ID,
		CustomerName:    c.Name,
		Period:          p,
		PeriodQuantity:  decimal.NewFromInt(amount / 50),
		PeriodAmount:    decimal.NewFromInt(amount),
		PreviousBalance: decimal.Zero,
		AmountPaid:      decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.Settle()
	return b
}

func testBillLifecycle(t *testing.T, s Storage) {
	ctx := context.Background()
	c := newTestCustomer(t, s, "Asha", 50)
	bill := newTestBill(c, "2024-03", 1000)

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.CreateBill(ctx, bill)
	})
	if err != nil {
		t.Fatalf("Failed to create bill: %v", err)
	}

	payment := &models.Payment{
		ID:           uuid.New(),
		CustomerID:   c.ID,
		CustomerName: c.Name,
		BillID:       bill.ID,
		Amount:       decimal.NewFromInt(400),
		PaymentDate:  time.Now().UTC(),
		Method:       models.PaymentMethodCash,
		CreatedAt:    time.Now().UTC(),
	}
	err = s.InTx(ctx, func(tx Tx) error {
		locked, err := tx.GetBillForUpdate(ctx, bill.ID)
		if err != nil {
			return err
		}
		locked.AmountPaid = locked.AmountPaid.Add(payment.Amount)
		locked.Settle()
		if err := tx.UpdateBill(ctx, locked); err != nil {
			return err
		}
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		t.Fatalf("Failed to post payment: %v", err)
	}

	fetched, err := s.GetBillByPeriod(ctx, c.ID, bill.Period)
	if err != nil {
		t.Fatalf("Failed to get bill by period: %v", err)
	}
	if fetched.Status != models.BillStatusPartial || !fetched.RemainingBalance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected partial bill with 600 remaining, got %s %s", fetched.Status, fetched.RemainingBalance)
	}
	if fetched.Period.String() != "2024-03" {
		t.Errorf("Unexpected period %s", fetched.Period)
	}

	sent, err := s.MarkBillSent(ctx, bill.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to mark sent: %v", err)
	}
	if !sent.Sent || sent.SentAt == nil {
		t.Errorf("Expected bill to be marked sent, got %+v", sent)
	}

	partial := models.BillStatusPartial
	bills, err := s.ListBills(ctx, models.BillFilter{Period: &bill.Period, Status: partial})
	if err != nil {
		t.Fatalf("Failed to list bills: %v", err)
	}
	if len(bills) != 1 {
		t.Errorf("Expected 1 partial bill, got %d", len(bills))
	}
	none, _ := s.ListBills(ctx, models.BillFilter{Status: models.BillStatusPaid})
	if len(none) != 0 {
		t.Errorf("Expected no paid bills, got %d", len(none))
	}

	payments, err := s.ListPayments(ctx, models.PaymentFilter{BillID: &bill.ID})
	if err != nil {
		t.Fatalf("Failed to list payments: %v", err)
	}
	if len(payments) != 1 || !payments[0].Amount.Equal(decimal.NewFromInt(400)) || payments[0].Method != models.PaymentMethodCash {
		t.Errorf("Unexpected payments %+v", payments)
	}
}

func testTxRollback(t *testing.T, s Storage) {
	ctx := context.Background()
	c := newTestCustomer(t, s, "Asha", 50)
	bill := newTestBill(c, "2024-03", 1000)
	if err := s.InTx(ctx, func(tx Tx) error { return tx.CreateBill(ctx, bill) }); err != nil {
		t.Fatalf("Failed to create bill: %v", err)
	}

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.CreatePayment(ctx, &models.Payment{
			ID:          uuid.New(),
			CustomerID:  c.ID,
			BillID:      bill.ID,
			Amount:      decimal.NewFromInt(100),
			PaymentDate: time.Now().UTC(),
			Method:      models.PaymentMethodCash,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := tx.UpdateCustomerBalance(ctx, c.ID, decimal.NewFromInt(5), time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected fn error to be returned, got %v", err)
	}

	payments, _ := s.ListPayments(ctx, models.PaymentFilter{CustomerID: &c.ID})
	if len(payments) != 0 {
		t.Errorf("Expected rollback to discard the payment, found %d", len(payments))
	}
	fetched, _ := s.GetCustomer(ctx, c.ID)
	if !fetched.OutstandingBalance.IsZero() {
		t.Errorf("Expected rollback to discard the balance change, got %s", fetched.OutstandingBalance)
	}
}

func testDuplicateBillConflict(t *testing.T, s Storage) {
	ctx := context.Background()
	c := newTestCustomer(t, s, "Asha", 50)
	if err := s.InTx(ctx, func(tx Tx) error { return tx.CreateBill(ctx, newTestBill(c, "2024-03", 1000)) }); err != nil {
		t.Fatalf("Failed to create bill: %v", err)
	}
	err := s.InTx(ctx, func(tx Tx) error { return tx.CreateBill(ctx, newTestBill(c, "2024-03", 500)) })
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for a second bill in the same period, got %v", err)
	}
}

func testSettingsAndRates(t *testing.T, s Storage) {
	ctx := context.Background()
	if _, err := s.GetSettings(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before settings are saved, got %v", err)
	}

	a := newTestCustomer(t, s, "A", 50)
	b := newTestCustomer(t, s, "B", 50)
	if err := updateCustomer(ctx, s, mustGetCustomer(t, s, b.ID, func(x *models.Customer) { x.IsActive = false })); err != nil {
		t.Fatalf("Failed to deactivate: %v", err)
	}

	now := time.Now().UTC()
	var updated int64
	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.SaveSettings(ctx, &models.Settings{DefaultRate: decimal.NewFromInt(60), EffectiveDate: day("2024-04-01"), UpdatedAt: now}); err != nil {
			return err
		}
		var err error
		updated, err = tx.SetRateForActiveCustomers(ctx, decimal.NewFromInt(60), now)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to update rate: %v", err)
	}
	if updated != 1 {
		t.Errorf("Expected 1 active customer updated, got %d", updated)
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("Failed to get settings: %v", err)
	}
	if !settings.DefaultRate.Equal(decimal.NewFromInt(60)) || !settings.EffectiveDate.Equal(day("2024-04-01")) {
		t.Errorf("Unexpected settings %+v", settings)
	}

	if got, _ := s.GetCustomer(ctx, a.ID); !got.RatePerLiter.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected active customer rate 60, got %s", got.RatePerLiter)
	}
	if got, _ := s.GetCustomer(ctx, b.ID); !got.RatePerLiter.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected inactive customer rate to stay 50, got %s", got.RatePerLiter)
	}
}

func testNotFound(t *testing.T, s Storage) {
	ctx := context.Background()
	if _, err := s.GetCustomer(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for customer, got %v", err)
	}
	if _, err := s.GetBill(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for bill, got %v", err)
	}
	p, _ := models.ParsePeriod("2024-03")
	if _, err := s.GetBillByPeriod(ctx, uuid.New(), p); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for bill by period, got %v", err)
	}
	if _, err := s.MarkBillSent(ctx, uuid.New(), time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound marking unknown bill sent, got %v", err)
	}
	if err := updateCustomer(ctx, s, &models.Customer{ID: uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound updating unknown customer, got %v", err)
	}
}
