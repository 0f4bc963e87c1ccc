package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/mcclellann/milkrun/pkg/logger"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	sqliteQueries
	db *sql.DB
}

// sqliteTx is the Tx handed to InTx callbacks.
type sqliteTx struct {
	sqliteQueries
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteQueries struct {
	q querier
}

// NewSQLiteStore opens the database file and applies pending migrations.
//
// Connection options are passed in the DSN so every pooled connection gets
// them. Transactions start with BEGIN IMMEDIATE, which takes the write lock
// up front: two read-modify-write transactions can never interleave.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	if err := migrate(ctx, db, goose.DialectSQLite3, "migrations/sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}

	log := logger.WithComponent("store")
	log.Info().Str("driver", "sqlite").Str("path", path).Msg("Database connection established and schema initialized")
	return &SQLiteStore{sqliteQueries: sqliteQueries{q: db}, db: db}, nil
}

// mapSQLiteError translates driver errors into the store sentinels.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

// InTx runs fn in a single transaction, rolling back on any error.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapSQLiteError(err))
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{sqliteQueries{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapSQLiteError(err))
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const customerColumns = `id, name, phone, address, rate_per_liter, default_quantity, delivery_order, is_active, outstanding_balance, rate_updated_at, created_at, updated_at`

func scanSQLiteCustomer(scanner interface{ Scan(...any) error }) (*models.Customer, error) {
	var c models.Customer
	var idStr string
	err := scanner.Scan(&idStr, &c.Name, &c.Phone, &c.Address, &c.RatePerLiter, &c.DefaultQuantity,
		&c.DeliveryOrder, &c.IsActive, &c.OutstandingBalance, &c.RateUpdatedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = uuid.MustParse(idStr)
	return &c, nil
}

// CreateCustomer inserts a new customer into the database.
func (s sqliteQueries) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, c.Phone, c.Address, c.RatePerLiter, c.DefaultQuantity,
		c.DeliveryOrder, c.IsActive, c.OutstandingBalance, c.RateUpdatedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", mapSQLiteError(err))
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s sqliteQueries) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	c, err := scanSQLiteCustomer(s.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", mapSQLiteError(err))
	}
	return c, nil
}

// GetCustomerForUpdate reads a customer inside the transaction. The
// transaction already holds the database write lock.
func (t *sqliteTx) GetCustomerForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return t.GetCustomer(ctx, id)
}

// UpdateCustomer updates profile, rate and ordering fields. The outstanding
// balance is only written through UpdateCustomerBalance.
func (s sqliteQueries) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE customers SET name = ?, phone = ?, address = ?, rate_per_liter = ?, default_quantity = ?, delivery_order = ?, is_active = ?, rate_updated_at = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Phone, c.Address, c.RatePerLiter, c.DefaultQuantity, c.DeliveryOrder, c.IsActive, c.RateUpdatedAt, c.UpdatedAt, c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", mapSQLiteError(err))
	}
	return checkSQLiteAffected(result, "customer", c.ID)
}

func (s sqliteQueries) UpdateCustomerBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE customers SET outstanding_balance = ?, updated_at = ? WHERE id = ?`,
		balance, at, id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update customer balance: %w", mapSQLiteError(err))
	}
	return checkSQLiteAffected(result, "customer", id)
}

// ListCustomers returns customers in route order.
func (s sqliteQueries) ListCustomers(ctx context.Context, activeOnly bool) ([]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY delivery_order ASC, name ASC`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", mapSQLiteError(err))
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanSQLiteCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

func (s sqliteQueries) NextDeliveryOrder(ctx context.Context) (int, error) {
	var next int
	if err := s.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(delivery_order), 0) + 1 FROM customers`).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute delivery order: %w", mapSQLiteError(err))
	}
	return next, nil
}

// ReorderCustomers assigns delivery_order 1..n following ids.
func (s *SQLiteStore) ReorderCustomers(ctx context.Context, ids []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapSQLiteError(err))
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i, id := range ids {
		result, err := tx.ExecContext(ctx, `UPDATE customers SET delivery_order = ?, updated_at = ? WHERE id = ?`, i+1, now, id.String())
		if err != nil {
			return fmt.Errorf("failed to reorder customer %s: %w", id, mapSQLiteError(err))
		}
		if err := checkSQLiteAffected(result, "customer", id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (t *sqliteTx) SetRateForActiveCustomers(ctx context.Context, rate decimal.Decimal, at time.Time) (int64, error) {
	result, err := t.q.ExecContext(ctx,
		`UPDATE customers SET rate_per_liter = ?, rate_updated_at = ?, updated_at = ? WHERE is_active = 1`,
		rate, at, at,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update customer rates: %w", mapSQLiteError(err))
	}
	return result.RowsAffected()
}

const deliveryColumns = `id, customer_id, customer_name, date, quantity, status, amount, rate_at_delivery, created_at, updated_at`

func scanSQLiteDelivery(scanner interface{ Scan(...any) error }) (*models.Delivery, error) {
	var d models.Delivery
	var idStr, customerIDStr, dateStr string
	err := scanner.Scan(&idStr, &customerIDStr, &d.CustomerName, &dateStr, &d.Quantity, &d.Status,
		&d.Amount, &d.RateAtDelivery, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ID = uuid.MustParse(idStr)
	d.CustomerID = uuid.MustParse(customerIDStr)
	d.Date, err = models.ParseDate(dateStr)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpsertDeliveries replaces the record for each (customer, date) pair, keeping
// the original row id and creation time.
func (s *SQLiteStore) UpsertDeliveries(ctx context.Context, deliveries []*models.Delivery) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapSQLiteError(err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id, date) DO UPDATE SET
			customer_name = excluded.customer_name,
			quantity = excluded.quantity,
			status = excluded.status,
			amount = excluded.amount,
			rate_at_delivery = excluded.rate_at_delivery,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare delivery upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range deliveries {
		_, err := stmt.ExecContext(ctx,
			d.ID.String(), d.CustomerID.String(), d.CustomerName, models.FormatDate(d.Date), d.Quantity, d.Status,
			d.Amount, d.RateAtDelivery, d.CreatedAt, d.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert delivery for customer %s on %s: %w", d.CustomerID, models.FormatDate(d.Date), mapSQLiteError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deliveries: %w", mapSQLiteError(err))
	}
	return nil
}

func (s sqliteQueries) queryDeliveries(ctx context.Context, query string, args ...any) ([]*models.Delivery, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get deliveries: %w", mapSQLiteError(err))
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanSQLiteDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery row: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for deliveries: %w", err)
	}
	return deliveries, nil
}

// ListDeliveries returns a customer's deliveries between from and to inclusive, by date.
func (s sqliteQueries) ListDeliveries(ctx context.Context, customerID uuid.UUID, from, to time.Time) ([]*models.Delivery, error) {
	return s.queryDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE customer_id = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		customerID.String(), models.FormatDate(from), models.FormatDate(to),
	)
}

func (s sqliteQueries) ListDeliveriesByDate(ctx context.Context, date time.Time) ([]*models.Delivery, error) {
	return s.queryDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE date = ? ORDER BY customer_name ASC`,
		models.FormatDate(date),
	)
}

// SumDeliveries totals delivered days with a positive amount. Amounts are
// TEXT columns and SQLite's SUM would convert them through REAL, so the sum
// is taken in decimal here.
func (s sqliteQueries) SumDeliveries(ctx context.Context, customerID uuid.UUID, from, to time.Time) (models.DeliveryTotals, error) {
	totals := models.DeliveryTotals{Quantity: decimal.Zero, Amount: decimal.Zero}

	rows, err := s.q.QueryContext(ctx,
		`SELECT quantity, amount FROM deliveries WHERE customer_id = ? AND date >= ? AND date <= ? AND status = ?`,
		customerID.String(), models.FormatDate(from), models.FormatDate(to), models.DeliveryStatusDelivered,
	)
	if err != nil {
		return totals, fmt.Errorf("failed to sum deliveries: %w", mapSQLiteError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var quantity decimal.NullDecimal
		var amount decimal.Decimal
		if err := rows.Scan(&quantity, &amount); err != nil {
			return totals, fmt.Errorf("failed to scan delivery totals: %w", err)
		}
		if !amount.GreaterThan(decimal.Zero) {
			continue
		}
		totals.Quantity = totals.Quantity.Add(quantity.Decimal)
		totals.Amount = totals.Amount.Add(amount)
		totals.Count++
	}
	if err := rows.Err(); err != nil {
		return totals, fmt.Errorf("error during rows iteration for delivery totals: %w", err)
	}
	return totals, nil
}

const billColumns = `id, customer_id, customer_name, month, total_liters, total_amount, previous_balance, total_due, amount_paid, remaining_balance, status, bill_sent, bill_sent_at, created_at, updated_at`

func scanSQLiteBill(scanner interface{ Scan(...any) error }) (*models.Bill, error) {
	var b models.Bill
	var idStr, customerIDStr, month string
	var sentAt sql.NullTime
	err := scanner.Scan(&idStr, &customerIDStr, &b.CustomerName, &month, &b.PeriodQuantity, &b.PeriodAmount,
		&b.PreviousBalance, &b.TotalDue, &b.AmountPaid, &b.RemainingBalance, &b.Status, &b.Sent, &sentAt,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.ID = uuid.MustParse(idStr)
	b.CustomerID = uuid.MustParse(customerIDStr)
	b.Period, err = models.ParsePeriod(month)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		b.SentAt = &sentAt.Time
	}
	return &b, nil
}

func (s sqliteQueries) getBill(ctx context.Context, query string, args ...any) (*models.Bill, error) {
	b, err := scanSQLiteBill(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bill: %w", mapSQLiteError(err))
	}
	return b, nil
}

// GetBill retrieves a bill by its ID.
func (s sqliteQueries) GetBill(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	b, err := s.getBill(ctx, `SELECT `+billColumns+` FROM bills WHERE id = ?`, id.String())
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("bill %s: %w", id, ErrNotFound)
	}
	return b, err
}

func (s sqliteQueries) GetBillByPeriod(ctx context.Context, customerID uuid.UUID, period models.Period) (*models.Bill, error) {
	b, err := s.getBill(ctx, `SELECT `+billColumns+` FROM bills WHERE customer_id = ? AND month = ?`, customerID.String(), period.String())
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("bill for customer %s in %s: %w", customerID, period, ErrNotFound)
	}
	return b, err
}

func (t *sqliteTx) GetBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	return t.GetBill(ctx, id)
}

func (t *sqliteTx) GetBillByPeriodForUpdate(ctx context.Context, customerID uuid.UUID, period models.Period) (*models.Bill, error) {
	return t.GetBillByPeriod(ctx, customerID, period)
}

func (t *sqliteTx) CreateBill(ctx context.Context, b *models.Bill) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO bills (`+billColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.CustomerID.String(), b.CustomerName, b.Period.String(), b.PeriodQuantity, b.PeriodAmount,
		b.PreviousBalance, b.TotalDue, b.AmountPaid, b.RemainingBalance, b.Status, b.Sent, b.SentAt,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bill: %w", mapSQLiteError(err))
	}
	return nil
}

// UpdateBill writes the computed amount fields. The sent marker is owned by
// MarkBillSent.
func (t *sqliteTx) UpdateBill(ctx context.Context, b *models.Bill) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE bills SET customer_name = ?, total_liters = ?, total_amount = ?, previous_balance = ?, total_due = ?, amount_paid = ?, remaining_balance = ?, status = ?, updated_at = ? WHERE id = ?`,
		b.CustomerName, b.PeriodQuantity, b.PeriodAmount, b.PreviousBalance, b.TotalDue, b.AmountPaid,
		b.RemainingBalance, b.Status, b.UpdatedAt, b.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", mapSQLiteError(err))
	}
	return checkSQLiteAffected(result, "bill", b.ID)
}

// ListBills returns bills matching filter, newest period first.
func (s sqliteQueries) ListBills(ctx context.Context, filter models.BillFilter) ([]*models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills`
	var conditions []string
	var args []any

	if filter.Period != nil {
		conditions = append(conditions, "month = ?")
		args = append(args, filter.Period.String())
	}
	if filter.CustomerID != nil {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, filter.CustomerID.String())
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY month DESC, customer_name ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", mapSQLiteError(err))
	}
	defer rows.Close()

	var bills []*models.Bill
	for rows.Next() {
		b, err := scanSQLiteBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill row: %w", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for bills: %w", err)
	}
	return bills, nil
}

func (s sqliteQueries) MarkBillSent(ctx context.Context, id uuid.UUID, at time.Time) (*models.Bill, error) {
	result, err := s.q.ExecContext(ctx, `UPDATE bills SET bill_sent = 1, bill_sent_at = ?, updated_at = ? WHERE id = ?`, at, at, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to mark bill sent: %w", mapSQLiteError(err))
	}
	if err := checkSQLiteAffected(result, "bill", id); err != nil {
		return nil, err
	}
	return s.GetBill(ctx, id)
}

const paymentColumns = `id, customer_id, customer_name, bill_id, amount, payment_date, payment_method, notes, created_at`

func (t *sqliteTx) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.CustomerID.String(), p.CustomerName, p.BillID.String(), p.Amount, p.PaymentDate,
		p.Method, p.Notes, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", mapSQLiteError(err))
	}
	return nil
}

// ListPayments returns payments matching filter, most recent first.
func (s sqliteQueries) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`
	var conditions []string
	var args []any

	if filter.CustomerID != nil {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, filter.CustomerID.String())
	}
	if filter.BillID != nil {
		conditions = append(conditions, "bill_id = ?")
		args = append(args, filter.BillID.String())
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY payment_date DESC, created_at DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", mapSQLiteError(err))
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var idStr, customerIDStr, billIDStr string
		if err := rows.Scan(&idStr, &customerIDStr, &p.CustomerName, &billIDStr, &p.Amount, &p.PaymentDate,
			&p.Method, &p.Notes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.ID = uuid.MustParse(idStr)
		p.CustomerID = uuid.MustParse(customerIDStr)
		p.BillID = uuid.MustParse(billIDStr)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

func (s sqliteQueries) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	var effective string
	err := s.q.QueryRowContext(ctx, `SELECT default_rate, effective_date, updated_at FROM settings WHERE id = 1`).
		Scan(&settings.DefaultRate, &effective, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("settings: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get settings: %w", mapSQLiteError(err))
	}
	settings.EffectiveDate, err = models.ParseDate(effective)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (t *sqliteTx) SaveSettings(ctx context.Context, settings *models.Settings) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO settings (id, default_rate, effective_date, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET default_rate = excluded.default_rate, effective_date = excluded.effective_date, updated_at = excluded.updated_at`,
		settings.DefaultRate, models.FormatDate(settings.EffectiveDate), settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", mapSQLiteError(err))
	}
	return nil
}

func checkSQLiteAffected(result sql.Result, entity string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
