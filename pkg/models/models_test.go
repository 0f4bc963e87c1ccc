package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-03")
	if err != nil {
		t.Fatalf("Failed to parse period: %v", err)
	}
	if p.Year != 2024 || p.Month != time.March {
		t.Errorf("Expected 2024-03, got %d-%d", p.Year, p.Month)
	}
	if p.String() != "2024-03" {
		t.Errorf("Expected string 2024-03, got %s", p.String())
	}

	for _, bad := range []string{"", "2024-13", "2024/03", "March", "2024-3-01"} {
		if _, err := ParsePeriod(bad); err == nil {
			t.Errorf("Expected error for period %q", bad)
		}
	}
}

func TestPeriodDays(t *testing.T) {
	cases := map[string]int{
		"2024-02": 29,
		"2023-02": 28,
		"1900-02": 28,
		"2000-02": 29,
		"2024-03": 31,
		"2024-04": 30,
		"2024-12": 31,
	}
	for s, want := range cases {
		p, _ := ParsePeriod(s)
		if got := p.Days(); got != want {
			t.Errorf("%s: expected %d days, got %d", s, want, got)
		}
	}

	dec, _ := ParsePeriod("2024-12")
	if dec.LastDay() != time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Unexpected last day %s", dec.LastDay())
	}
}

func TestPeriodContains(t *testing.T) {
	p, _ := ParsePeriod("2024-03")
	if !p.Contains(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)) {
		t.Error("Expected last day of March to be inside the period")
	}
	if p.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("Expected April 1st to be outside the period")
	}
	if p.Contains(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Error("Expected February 29th to be outside the period")
	}
}

func TestPeriodJSON(t *testing.T) {
	p, _ := ParsePeriod("2024-03")
	body, err := json.Marshal(struct {
		Month Period `json:"month"`
	}{p})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(body) != `{"month":"2024-03"}` {
		t.Errorf("Unexpected JSON %s", body)
	}

	var decoded struct {
		Month Period `json:"month"`
	}
	if err := json.Unmarshal([]byte(`{"month":"2023-11"}`), &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.Month.String() != "2023-11" {
		t.Errorf("Expected 2023-11, got %s", decoded.Month)
	}
}

func TestNewDelivery(t *testing.T) {
	customer := &Customer{ID: uuid.New(), Name: "Asha", RatePerLiter: decimal.NewFromInt(50)}
	day := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	d := NewDelivery(customer, day, DeliveryStatusDelivered, decimal.NewFromFloat(1.5))
	if !d.Amount.Equal(decimal.NewFromInt(75)) {
		t.Errorf("Expected amount 75, got %s", d.Amount)
	}
	if !d.Quantity.Valid || !d.Quantity.Decimal.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("Expected quantity 1.5, got %v", d.Quantity)
	}
	if !d.Date.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected date truncated to the day, got %s", d.Date)
	}

	absent := NewDelivery(customer, day, DeliveryStatusAbsent, decimal.NewFromInt(2))
	if absent.Quantity.Valid || !absent.Amount.IsZero() {
		t.Errorf("Expected absent day to carry no quantity and zero amount, got %v / %s", absent.Quantity, absent.Amount)
	}

	zero := NewDelivery(customer, day, DeliveryStatusDelivered, decimal.Zero)
	if zero.Quantity.Valid || !zero.Amount.IsZero() {
		t.Errorf("Expected zero quantity delivery to have no amount, got %s", zero.Amount)
	}

	customer.RatePerLiter = decimal.NewFromInt(60)
	if !d.RateAtDelivery.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected rate snapshot to stay at 50, got %s", d.RateAtDelivery)
	}
}

func TestBillSettle(t *testing.T) {
	b := &Bill{
		PeriodAmount:    decimal.NewFromInt(1000),
		PreviousBalance: decimal.NewFromInt(200),
	}
	b.Settle()
	if !b.TotalDue.Equal(decimal.NewFromInt(1200)) || b.Status != BillStatusPending {
		t.Errorf("Expected pending bill of 1200, got %s %s", b.Status, b.TotalDue)
	}

	b.AmountPaid = decimal.NewFromInt(500)
	b.Settle()
	if !b.RemainingBalance.Equal(decimal.NewFromInt(700)) || b.Status != BillStatusPartial {
		t.Errorf("Expected partial bill with 700 remaining, got %s %s", b.Status, b.RemainingBalance)
	}

	b.PeriodAmount = decimal.NewFromInt(100)
	b.Settle()
	if !b.RemainingBalance.IsZero() || b.Status != BillStatusPaid {
		t.Errorf("Expected paid bill after correction below amount paid, got %s %s", b.Status, b.RemainingBalance)
	}

	empty := &Bill{}
	empty.Settle()
	if empty.Status != BillStatusPaid {
		t.Errorf("Expected zero bill to be paid, got %s", empty.Status)
	}
}
