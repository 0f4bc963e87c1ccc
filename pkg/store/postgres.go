package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mcclellann/milkrun/pkg/logger"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

// PostgresStore implements Storage on a pgx connection pool.
type PostgresStore struct {
	pgQueries
	pool *pgxpool.Pool
}

type pgTx struct {
	pgQueries
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgQueries struct {
	q pgxQuerier
}

// NewPostgresStore connects to databaseURL and applies pending migrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migrate(ctx, db, goose.DialectPostgres, "migrations/postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}

	log := logger.WithComponent("store")
	log.Info().Str("driver", "postgres").Msg("Database connection established and schema initialized")
	return &PostgresStore{pgQueries: pgQueries{q: pool}, pool: pool}, nil
}

// mapPgError translates driver errors into the store sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01": // unique_violation, serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

// InTx runs fn in a single transaction, rolling back on any error.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPgError(err))
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{pgQueries{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPgError(err))
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.RatePerLiter, &c.DefaultQuantity,
		&c.DeliveryOrder, &c.IsActive, &c.OutstandingBalance, &c.RateUpdatedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s pgQueries) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Name, c.Phone, c.Address, c.RatePerLiter, c.DefaultQuantity,
		c.DeliveryOrder, c.IsActive, c.OutstandingBalance, c.RateUpdatedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", mapPgError(err))
	}
	return nil
}

func (s pgQueries) getCustomer(ctx context.Context, id uuid.UUID, suffix string) (*models.Customer, error) {
	c, err := scanPgCustomer(s.q.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`+suffix, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", mapPgError(err))
	}
	return c, nil
}

func (s pgQueries) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return s.getCustomer(ctx, id, "")
}

func (t *pgTx) GetCustomerForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return t.getCustomer(ctx, id, " FOR UPDATE")
}

func (s pgQueries) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE customers SET name = $1, phone = $2, address = $3, rate_per_liter = $4, default_quantity = $5, delivery_order = $6, is_active = $7, rate_updated_at = $8, updated_at = $9 WHERE id = $10`,
		c.Name, c.Phone, c.Address, c.RatePerLiter, c.DefaultQuantity, c.DeliveryOrder, c.IsActive, c.RateUpdatedAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", mapPgError(err))
	}
	return checkPgAffected(tag, "customer", c.ID)
}

func (s pgQueries) UpdateCustomerBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE customers SET outstanding_balance = $1, updated_at = $2 WHERE id = $3`, balance, at, id)
	if err != nil {
		return fmt.Errorf("failed to update customer balance: %w", mapPgError(err))
	}
	return checkPgAffected(tag, "customer", id)
}

func (s pgQueries) ListCustomers(ctx context.Context, activeOnly bool) ([]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY delivery_order ASC, name ASC`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", mapPgError(err))
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanPgCustomer(rows)
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

func (s pgQueries) NextDeliveryOrder(ctx context.Context) (int, error) {
	var next int
	if err := s.q.QueryRow(ctx, `SELECT COALESCE(MAX(delivery_order), 0) + 1 FROM customers`).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute delivery order: %w", mapPgError(err))
	}
	return next, nil
}

func (s *PostgresStore) ReorderCustomers(ctx context.Context, ids []uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		batch := &pgx.Batch{}
		for i, id := range ids {
			batch.Queue(`UPDATE customers SET delivery_order = $1, updated_at = $2 WHERE id = $3`, i+1, now, id)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for _, id := range ids {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("failed to reorder customer %s: %w", id, mapPgError(err))
			}
			if err := checkPgAffected(tag, "customer", id); err != nil {
				return err
			}
		}
		return results.Close()
	})
}

func (t *pgTx) SetRateForActiveCustomers(ctx context.Context, rate decimal.Decimal, at time.Time) (int64, error) {
	tag, err := t.q.Exec(ctx, `UPDATE customers SET rate_per_liter = $1, rate_updated_at = $2, updated_at = $2 WHERE is_active`, rate, at)
	if err != nil {
		return 0, fmt.Errorf("failed to update customer rates: %w", mapPgError(err))
	}
	return tag.RowsAffected(), nil
}

func scanPgDelivery(row pgx.Row) (*models.Delivery, error) {
	var d models.Delivery
	err := row.Scan(&d.ID, &d.CustomerID, &d.CustomerName, &d.Date, &d.Quantity, &d.Status,
		&d.Amount, &d.RateAtDelivery, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Date = models.DateOf(d.Date)
	return &d, nil
}

// UpsertDeliveries sends every upsert in one batch inside a transaction.
func (s *PostgresStore) UpsertDeliveries(ctx context.Context, deliveries []*models.Delivery) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range deliveries {
			batch.Queue(`INSERT INTO deliveries (`+deliveryColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (customer_id, date) DO UPDATE SET
					customer_name = EXCLUDED.customer_name,
					quantity = EXCLUDED.quantity,
					status = EXCLUDED.status,
					amount = EXCLUDED.amount,
					rate_at_delivery = EXCLUDED.rate_at_delivery,
					updated_at = EXCLUDED.updated_at`,
				d.ID, d.CustomerID, d.CustomerName, d.Date, d.Quantity, string(d.Status),
				d.Amount, d.RateAtDelivery, d.CreatedAt, d.UpdatedAt,
			)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for _, d := range deliveries {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("failed to upsert delivery for customer %s on %s: %w", d.CustomerID, models.FormatDate(d.Date), mapPgError(err))
			}
		}
		return results.Close()
	})
}

func (s pgQueries) queryDeliveries(ctx context.Context, query string, args ...any) ([]*models.Delivery, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get deliveries: %w", mapPgError(err))
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanPgDelivery(rows)
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

func (s pgQueries) ListDeliveries(ctx context.Context, customerID uuid.UUID, from, to time.Time) ([]*models.Delivery, error) {
	return s.queryDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE customer_id = $1 AND date BETWEEN $2 AND $3 ORDER BY date ASC`,
		customerID, from, to,
	)
}

func (s pgQueries) ListDeliveriesByDate(ctx context.Context, date time.Time) ([]*models.Delivery, error) {
	return s.queryDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE date = $1 ORDER BY customer_name ASC`,
		models.DateOf(date),
	)
}

// SumDeliveries totals delivered days with a positive amount using NUMERIC arithmetic.
func (s pgQueries) SumDeliveries(ctx context.Context, customerID uuid.UUID, from, to time.Time) (models.DeliveryTotals, error) {
	var totals models.DeliveryTotals
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(amount), 0), COUNT(*)
		FROM deliveries
		WHERE customer_id = $1 AND date BETWEEN $2 AND $3 AND status = $4 AND amount > 0`,
		customerID, from, to, string(models.DeliveryStatusDelivered),
	).Scan(&totals.Quantity, &totals.Amount, &totals.Count)
	if err != nil {
		return models.DeliveryTotals{}, fmt.Errorf("failed to sum deliveries: %w", mapPgError(err))
	}
	return totals, nil
}

func scanPgBill(row pgx.Row) (*models.Bill, error) {
	var b models.Bill
	var month string
	err := row.Scan(&b.ID, &b.CustomerID, &b.CustomerName, &month, &b.PeriodQuantity, &b.PeriodAmount,
		&b.PreviousBalance, &b.TotalDue, &b.AmountPaid, &b.RemainingBalance, &b.Status, &b.Sent, &b.SentAt,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Period, err = models.ParsePeriod(month)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s pgQueries) getBill(ctx context.Context, what string, query string, args ...any) (*models.Bill, error) {
	b, err := scanPgBill(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bill: %w", mapPgError(err))
	}
	return b, nil
}

func (s pgQueries) GetBill(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	return s.getBill(ctx, "bill "+id.String(), `SELECT `+billColumns+` FROM bills WHERE id = $1`, id)
}

func (s pgQueries) GetBillByPeriod(ctx context.Context, customerID uuid.UUID, period models.Period) (*models.Bill, error) {
	return s.getBill(ctx, fmt.Sprintf("bill for customer %s in %s", customerID, period),
		`SELECT `+billColumns+` FROM bills WHERE customer_id = $1 AND month = $2`, customerID, period.String())
}

func (t *pgTx) GetBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	return t.getBill(ctx, "bill "+id.String(), `SELECT `+billColumns+` FROM bills WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) GetBillByPeriodForUpdate(ctx context.Context, customerID uuid.UUID, period models.Period) (*models.Bill, error) {
	return t.getBill(ctx, fmt.Sprintf("bill for customer %s in %s", customerID, period),
		`SELECT `+billColumns+` FROM bills WHERE customer_id = $1 AND month = $2 FOR UPDATE`, customerID, period.String())
}

func (t *pgTx) CreateBill(ctx context.Context, b *models.Bill) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO bills (`+billColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		b.ID, b.CustomerID, b.CustomerName, b.Period.String(), b.PeriodQuantity, b.PeriodAmount,
		b.PreviousBalance, b.TotalDue, b.AmountPaid, b.RemainingBalance, string(b.Status), b.Sent, b.SentAt,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bill: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) UpdateBill(ctx context.Context, b *models.Bill) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE bills SET customer_name = $1, total_liters = $2, total_amount = $3, previous_balance = $4, total_due = $5, amount_paid = $6, remaining_balance = $7, status = $8, updated_at = $9 WHERE id = $10`,
		b.CustomerName, b.PeriodQuantity, b.PeriodAmount, b.PreviousBalance, b.TotalDue, b.AmountPaid,
		b.RemainingBalance, string(b.Status), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", mapPgError(err))
	}
	return checkPgAffected(tag, "bill", b.ID)
}

func (s pgQueries) ListBills(ctx context.Context, filter models.BillFilter) ([]*models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills`
	var conditions []string
	var args []any

	if filter.Period != nil {
		args = append(args, filter.Period.String())
		conditions = append(conditions, fmt.Sprintf("month = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY month DESC, customer_name ASC"

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", mapPgError(err))
	}
	defer rows.Close()

	var bills []*models.Bill
	for rows.Next() {
		b, err := scanPgBill(rows)
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

func (s pgQueries) MarkBillSent(ctx context.Context, id uuid.UUID, at time.Time) (*models.Bill, error) {
	return s.getBill(ctx, "bill "+id.String(),
		`UPDATE bills SET bill_sent = TRUE, bill_sent_at = $1, updated_at = $1 WHERE id = $2 RETURNING `+billColumns, at, id)
}

func (t *pgTx) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.CustomerID, p.CustomerName, p.BillID, p.Amount, p.PaymentDate, string(p.Method), p.Notes, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", mapPgError(err))
	}
	return nil
}

func (s pgQueries) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`
	var conditions []string
	var args []any

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.BillID != nil {
		args = append(args, *filter.BillID)
		conditions = append(conditions, fmt.Sprintf("bill_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY payment_date DESC, created_at DESC"

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", mapPgError(err))
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.CustomerName, &p.BillID, &p.Amount, &p.PaymentDate,
			&p.Method, &p.Notes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

func (s pgQueries) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := s.q.QueryRow(ctx, `SELECT default_rate, effective_date, updated_at FROM settings WHERE id = 1`).
		Scan(&settings.DefaultRate, &settings.EffectiveDate, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("settings: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get settings: %w", mapPgError(err))
	}
	settings.EffectiveDate = models.DateOf(settings.EffectiveDate)
	return &settings, nil
}

func (t *pgTx) SaveSettings(ctx context.Context, settings *models.Settings) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO settings (id, default_rate, effective_date, updated_at) VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET default_rate = EXCLUDED.default_rate, effective_date = EXCLUDED.effective_date, updated_at = EXCLUDED.updated_at`,
		settings.DefaultRate, settings.EffectiveDate, settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", mapPgError(err))
	}
	return nil
}

func checkPgAffected(tag pgconn.CommandTag, entity string, id uuid.UUID) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
