// Package repository содержит реализацию хранилища предложений замены в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/order-replacement/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrBatchNotFound возвращается, если для заказа нет ни одного предложения замены.
var (
	ErrBatchNotFound = errors.New("replacement batch not found")
	// ErrAlreadyResponded возвращается, если пакет уже принят покупателем.
	ErrAlreadyResponded = errors.New("customer already responded")
	// ErrUnknownDecision возвращается, если решение не соответствует ни одной записи пакета.
	ErrUnknownDecision = errors.New("decision does not match any replacement")
	// ErrProposalExists возвращается при повторном создании замены для той же позиции заказа.
	ErrProposalExists = errors.New("replacement already proposed for line item")
	// ErrInvalidTransition возвращается при попытке нарушить порядок статусов.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

const recordColumns = `id, order_id, order_name,
	original_product_ref, original_handle, original_title, quantity, unit_price, total_price, currency,
	replacement_product_ref, replacement_handle, replacement_title, replacement_quantity,
	replacement_price, total_replacement_amount, balance,
	customer_name, send_date, order_status, line_item_status,
	accepted_at, confirmed_at, replacement_added_at`

const selectColumns = `id::text, order_id, order_name,
	original_product_ref, original_handle, original_title, quantity, unit_price, total_price, currency,
	replacement_product_ref, replacement_handle, replacement_title, replacement_quantity,
	replacement_price, total_replacement_amount, balance,
	customer_name, send_date, order_status, line_item_status,
	accepted_at, confirmed_at, replacement_added_at`

// PostgresRepository предоставляет доступ к хранилищу предложений замены в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateRecord сохраняет одну запись о замене. Каждая вставка фиксируется отдельно.
func (r *PostgresRepository) CreateRecord(ctx context.Context, rec model.ReplacementRecord) (model.ReplacementRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OrderStatus == "" {
		rec.OrderStatus = model.OrderStatusPending
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO order_replacements (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		rec.ID, rec.OrderID, rec.OrderName,
		rec.OriginalProductRef, rec.OriginalHandle, rec.OriginalTitle, rec.Quantity, rec.UnitPrice, rec.TotalPrice, rec.Currency,
		rec.ReplacementProductRef, rec.ReplacementHandle, rec.ReplacementTitle, rec.ReplacementQuantity,
		rec.ReplacementPrice, rec.TotalReplacementAmount, rec.Balance,
		rec.CustomerName, rec.SendDate, string(rec.OrderStatus), string(rec.LineItemStatus),
		rec.AcceptedDate, rec.ConfirmedDate, rec.ReplacementAddedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.ReplacementRecord{}, fmt.Errorf("%w: %s", ErrProposalExists, rec.OriginalProductRef)
		}
		return model.ReplacementRecord{}, fmt.Errorf("insert replacement: %w", err)
	}

	return rec, nil
}

// GetByOrderName возвращает все записи пакета по имени заказа.
func (r *PostgresRepository) GetByOrderName(ctx context.Context, orderName string) ([]model.ReplacementRecord, error) {
	return r.queryRecords(ctx, `WHERE order_name = $1`, orderName)
}

// GetByOrderID возвращает все записи пакета по идентификатору заказа.
func (r *PostgresRepository) GetByOrderID(ctx context.Context, orderID string) ([]model.ReplacementRecord, error) {
	return r.queryRecords(ctx, `WHERE order_id = $1`, orderID)
}

func (r *PostgresRepository) queryRecords(ctx context.Context, where string, arg string) ([]model.ReplacementRecord, error) {
	var res []model.ReplacementRecord

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+selectColumns+` FROM order_replacements `+where+` ORDER BY created_at, id`,
			arg,
		)
		if err != nil {
			return fmt.Errorf("select replacements: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			res = append(res, rec)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func scanRecord(row pgx.Row) (model.ReplacementRecord, error) {
	var (
		rec            model.ReplacementRecord
		orderStatus    string
		lineItemStatus string
	)

	err := row.Scan(
		&rec.ID, &rec.OrderID, &rec.OrderName,
		&rec.OriginalProductRef, &rec.OriginalHandle, &rec.OriginalTitle, &rec.Quantity, &rec.UnitPrice, &rec.TotalPrice, &rec.Currency,
		&rec.ReplacementProductRef, &rec.ReplacementHandle, &rec.ReplacementTitle, &rec.ReplacementQuantity,
		&rec.ReplacementPrice, &rec.TotalReplacementAmount, &rec.Balance,
		&rec.CustomerName, &rec.SendDate, &orderStatus, &lineItemStatus,
		&rec.AcceptedDate, &rec.ConfirmedDate, &rec.ReplacementAddedAt,
	)
	if err != nil {
		return model.ReplacementRecord{}, fmt.Errorf("scan replacement: %w", err)
	}

	rec.OrderStatus = model.OrderStatus(orderStatus)
	rec.LineItemStatus = model.LineItemStatus(lineItemStatus)

	return rec, nil
}

// AcceptBatch атомарно переводит пакет заказа в статус Accepted и сохраняет решения покупателя.
// Строки пакета блокируются до проверки, поэтому из параллельных ответов успешен только один.
func (r *PostgresRepository) AcceptBatch(ctx context.Context, orderName string, decisions []model.Decision, now time.Time) error {
	return r.withRetry(ctx, func() error {
		return r.acceptBatch(ctx, orderName, decisions, now)
	})
}

func (r *PostgresRepository) acceptBatch(ctx context.Context, orderName string, decisions []model.Decision, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT original_product_ref, replacement_product_ref, order_status
		 FROM order_replacements
		 WHERE order_name = $1
		 ORDER BY id
		 FOR UPDATE`,
		orderName,
	)
	if err != nil {
		return fmt.Errorf("lock batch: %w", err)
	}

	type pair struct{ original, replacement string }
	known := make(map[pair]struct{})
	responded := false
	for rows.Next() {
		var original, replacement, status string
		if err := rows.Scan(&original, &replacement, &status); err != nil {
			rows.Close()
			return fmt.Errorf("scan batch: %w", err)
		}
		if model.OrderStatus(status) != model.OrderStatusPending {
			responded = true
		}
		known[pair{original, replacement}] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	if len(known) == 0 {
		return ErrBatchNotFound
	}
	if responded {
		return ErrAlreadyResponded
	}

	for _, d := range decisions {
		if _, ok := known[pair{d.OriginalProductRef, d.ReplacementProductRef}]; !ok {
			return fmt.Errorf("%w: %s -> %s", ErrUnknownDecision, d.OriginalProductRef, d.ReplacementProductRef)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE order_replacements
		 SET order_status = $2, accepted_at = $3
		 WHERE order_name = $1 AND order_status = $4`,
		orderName, string(model.OrderStatusAccepted), now, string(model.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("accept batch: %w", err)
	}

	for _, d := range decisions {
		_, err := tx.Exec(ctx,
			`UPDATE order_replacements
			 SET line_item_status = $4
			 WHERE order_name = $1 AND original_product_ref = $2 AND replacement_product_ref = $3`,
			orderName, d.OriginalProductRef, d.ReplacementProductRef, string(d.Status),
		)
		if err != nil {
			return fmt.Errorf("update line item status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// MarkReplacementAdded фиксирует, что замена уже добавлена в заказ во внешней системе.
func (r *PostgresRepository) MarkReplacementAdded(ctx context.Context, id string, at time.Time) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE order_replacements
			 SET replacement_added_at = $2
			 WHERE id = $1 AND order_status = $3 AND replacement_added_at IS NULL`,
			id, at, string(model.OrderStatusAccepted),
		)
		if err != nil {
			return fmt.Errorf("mark replacement added: %w", err)
		}
		return nil
	})
}

// MarkConfirmed переводит запись из Accepted в Confirmed.
func (r *PostgresRepository) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE order_replacements
			 SET order_status = $2, confirmed_at = $3
			 WHERE id = $1 AND order_status = $4`,
			id, string(model.OrderStatusConfirmed), at, string(model.OrderStatusAccepted),
		)
		if err != nil {
			return fmt.Errorf("mark confirmed: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: record %s is not accepted", ErrInvalidTransition, id)
		}
		return nil
	})
}

// ListBatches возвращает пакеты, в которых есть записи с указанным статусом.
func (r *PostgresRepository) ListBatches(ctx context.Context, status model.OrderStatus) ([]model.BatchSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id, order_name, MIN(customer_name), COUNT(*), MIN(send_date)
		 FROM order_replacements
		 WHERE order_status = $1
		 GROUP BY order_id, order_name
		 ORDER BY MIN(send_date) DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}
	defer rows.Close()

	var res []model.BatchSummary
	for rows.Next() {
		b := model.BatchSummary{Status: status}
		if err := rows.Scan(&b.OrderID, &b.OrderName, &b.CustomerName, &b.Items, &b.SendDate); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListReconcilable возвращает принятые пакеты, в которых есть хотя бы одно решение покупателя.
// Items считает только позиции с решением.
func (r *PostgresRepository) ListReconcilable(ctx context.Context) ([]model.BatchSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id, order_name, MIN(customer_name), COUNT(*), MIN(send_date)
		 FROM order_replacements
		 WHERE order_status = $1 AND line_item_status <> ''
		 GROUP BY order_id, order_name
		 ORDER BY MIN(send_date)`,
		string(model.OrderStatusAccepted),
	)
	if err != nil {
		return nil, fmt.Errorf("select reconcilable batches: %w", err)
	}
	defer rows.Close()

	var res []model.BatchSummary
	for rows.Next() {
		b := model.BatchSummary{Status: model.OrderStatusAccepted}
		if err := rows.Scan(&b.OrderID, &b.OrderName, &b.CustomerName, &b.Items, &b.SendDate); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
