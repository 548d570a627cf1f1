package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/domain/credit"
	"credit-ledger/internal/domain/usage"
)

// mysqlErrDuplicateEntry ER_DUP_ENTRY
const mysqlErrDuplicateEntry = 1062

// UsageEntryRepository MySQL実装のEntryRepository
type UsageEntryRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewUsageEntryRepository 新しいUsageEntryRepositoryを作成
func NewUsageEntryRepository(db *DB) *UsageEntryRepository {
	return &UsageEntryRepository{
		db:     db,
		tracer: otel.Tracer("usage-entry-repository"),
	}
}

const usageEntryColumns = `entry_id, user_id, entry_type, amount, balance_before, balance_after,
	status, action, idempotency_key, reference, audit_email, created_at`

// Save 利用履歴を保存
func (r *UsageEntryRepository) Save(ctx context.Context, tx *sql.Tx, e *usage.Entry) error {
	ctx, span := r.tracer.Start(ctx, "UsageEntryRepository.Save")
	defer span.End()
	defer r.db.observe(ctx, "INSERT", "usage_entries", time.Now())

	span.SetAttributes(
		attribute.String("db.entry_id", e.EntryID()),
		attribute.String("db.user_id", e.UserID()),
		attribute.String("db.entry_type", e.Type().String()),
		attribute.Int64("db.amount", e.Amount()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "usage_entries"),
	)

	query := `INSERT INTO usage_entries (` + usageEntryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var action sql.NullString
	if e.Action() != "" {
		action = sql.NullString{String: e.Action().String(), Valid: true}
	}

	_, err := r.db.conn(tx).ExecContext(ctx, query,
		e.EntryID(),
		e.UserID(),
		e.Type().String(),
		e.Amount(),
		e.BalanceBefore(),
		e.BalanceAfter(),
		e.Status().String(),
		action,
		nullString(e.IdempotencyKey()),
		nullString(e.Reference()),
		nullString(e.AuditEmail()),
		e.CreatedAt(),
	)
	if err != nil {
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
			span.SetStatus(otelcodes.Error, "duplicate idempotency key")
			return usage.ErrDuplicateIdempotencyKey
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save usage entry: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "usage entry saved")
	return nil
}

// FindByIdempotencyKey 冪等キーで利用履歴を取得
func (r *UsageEntryRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*usage.Entry, error) {
	ctx, span := r.tracer.Start(ctx, "UsageEntryRepository.FindByIdempotencyKey")
	defer span.End()
	defer r.db.observe(ctx, "SELECT", "usage_entries", time.Now())

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.String("db.idempotency_key", key),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "usage_entries"),
	)

	query := `SELECT ` + usageEntryColumns + `
		FROM usage_entries
		WHERE user_id = ? AND idempotency_key = ?`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, userID, key))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "usage entry not found")
		return nil, usage.ErrEntryNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find usage entry: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "usage entry found")
	return entry, nil
}

// FindByUserID ユーザーIDで利用履歴一覧を取得（新しい順）
func (r *UsageEntryRepository) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*usage.Entry, error) {
	ctx, span := r.tracer.Start(ctx, "UsageEntryRepository.FindByUserID")
	defer span.End()
	defer r.db.observe(ctx, "SELECT", "usage_entries", time.Now())

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.Int("db.limit", limit),
		attribute.Int("db.offset", offset),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "usage_entries"),
	)

	query := `SELECT ` + usageEntryColumns + `
		FROM usage_entries
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to query usage entries: %w", err)
	}
	defer rows.Close()

	var entries []*usage.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan usage entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate usage entries: %w", err)
	}

	span.SetAttributes(attribute.Int("db.count", len(entries)))
	span.SetStatus(otelcodes.Ok, "usage entries found")
	return entries, nil
}

// CountByUserID ユーザーIDで利用履歴の件数を取得
func (r *UsageEntryRepository) CountByUserID(ctx context.Context, userID string) (int, error) {
	ctx, span := r.tracer.Start(ctx, "UsageEntryRepository.CountByUserID")
	defer span.End()
	defer r.db.observe(ctx, "SELECT", "usage_entries", time.Now())

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "usage_entries"),
	)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_entries WHERE user_id = ?`, userID).Scan(&count); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, fmt.Errorf("failed to count usage entries: %w", err)
	}

	span.SetAttributes(attribute.Int("db.count", count))
	span.SetStatus(otelcodes.Ok, "usage entries counted")
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*usage.Entry, error) {
	var (
		entryID, userID, entryType, status string
		amount, before, after              int64
		action, key, reference, email      sql.NullString
		createdAt                          time.Time
	)
	if err := row.Scan(&entryID, &userID, &entryType, &amount, &before, &after,
		&status, &action, &key, &reference, &email, &createdAt); err != nil {
		return nil, err
	}

	et, err := usage.NewEntryType(entryType)
	if err != nil {
		return nil, fmt.Errorf("invalid entry type: %w", err)
	}
	es, err := usage.NewEntryStatus(status)
	if err != nil {
		return nil, fmt.Errorf("invalid entry status: %w", err)
	}
	var at credit.ActionType
	if action.Valid {
		if at, err = credit.NewActionType(action.String); err != nil {
			return nil, err
		}
	}

	return usage.NewEntry(usage.EntryParams{
		EntryID:        entryID,
		UserID:         userID,
		Type:           et,
		Amount:         amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Status:         es,
		Action:         at,
		IdempotencyKey: key.String,
		Reference:      reference.String,
		AuditEmail:     email.String,
		CreatedAt:      createdAt,
	})
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
