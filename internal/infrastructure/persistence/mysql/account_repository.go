package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/domain/credit"
)

// AccountRepository MySQL実装のAccountRepository
type AccountRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewAccountRepository 新しいAccountRepositoryを作成
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{
		db:     db,
		tracer: otel.Tracer("account-repository"),
	}
}

// FindByUserID ユーザーIDでアカウントを取得
func (r *AccountRepository) FindByUserID(ctx context.Context, userID string) (*credit.Account, error) {
	ctx, span := r.tracer.Start(ctx, "AccountRepository.FindByUserID")
	defer span.End()
	defer r.db.observe(ctx, "SELECT", "credit_accounts", time.Now())

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "credit_accounts"),
	)

	query := `
		SELECT user_id, balance, version, created_at, updated_at
		FROM credit_accounts
		WHERE user_id = ?
	`

	var dbUserID string
	var balance int64
	var version int
	var createdAt, updatedAt time.Time

	err := r.db.QueryRowContext(ctx, query, userID).Scan(&dbUserID, &balance, &version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "account not found")
		return nil, credit.ErrAccountNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("db.balance", balance),
		attribute.Int("db.version", version),
	)
	span.SetStatus(otelcodes.Ok, "account found")

	return credit.ReconstructAccount(dbUserID, balance, version, createdAt, updatedAt), nil
}

// Create 新しいアカウントを作成（既に存在する場合は何もしない）
func (r *AccountRepository) Create(ctx context.Context, a *credit.Account) error {
	ctx, span := r.tracer.Start(ctx, "AccountRepository.Create")
	defer span.End()
	defer r.db.observe(ctx, "INSERT", "credit_accounts", time.Now())

	span.SetAttributes(
		attribute.String("db.user_id", a.UserID()),
		attribute.Int64("db.balance", a.Balance()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "credit_accounts"),
	)

	// 同時作成時に既存の残高を上書きしない
	query := `
		INSERT INTO credit_accounts (user_id, balance, version)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE user_id = user_id
	`

	if _, err := r.db.ExecContext(ctx, query, a.UserID(), a.Balance(), a.Version()); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to create account: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "account created")
	return nil
}

// Save アカウントを保存（更新、楽観的ロック対応）
// aのバージョンは読み込み時の値で、更新後にインクリメントされた値がDBに入る
func (r *AccountRepository) Save(ctx context.Context, tx *sql.Tx, a *credit.Account) error {
	ctx, span := r.tracer.Start(ctx, "AccountRepository.Save")
	defer span.End()
	defer r.db.observe(ctx, "UPDATE", "credit_accounts", time.Now())

	span.SetAttributes(
		attribute.String("db.user_id", a.UserID()),
		attribute.Int64("db.balance", a.Balance()),
		attribute.Int("db.version", a.Version()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "credit_accounts"),
	)

	query := `
		UPDATE credit_accounts
		SET balance = ?, version = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND version = ?
	`

	result, err := r.db.conn(tx).ExecContext(ctx, query,
		a.Balance(),
		a.Version(),
		a.UserID(),
		a.Version()-1,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		span.RecordError(credit.ErrVersionConflict)
		span.SetStatus(otelcodes.Error, credit.ErrVersionConflict.Error())
		return credit.ErrVersionConflict
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
	span.SetStatus(otelcodes.Ok, "account saved")
	return nil
}

// DecrementIfSufficient 残高が足りる場合のみ原子的に減算する
func (r *AccountRepository) DecrementIfSufficient(ctx context.Context, tx *sql.Tx, userID string, amount int64) (int64, bool, error) {
	ctx, span := r.tracer.Start(ctx, "AccountRepository.DecrementIfSufficient")
	defer span.End()
	defer r.db.observe(ctx, "UPDATE", "credit_accounts", time.Now())

	span.SetAttributes(
		attribute.String("db.user_id", userID),
		attribute.Int64("db.amount", amount),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "credit_accounts"),
	)

	q := r.db.conn(tx)

	update := `
		UPDATE credit_accounts
		SET balance = balance - ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND balance >= ?
	`

	result, err := q.ExecContext(ctx, update, amount, userID, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, false, fmt.Errorf("failed to decrement balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	var balance int64
	err = q.QueryRowContext(ctx, `SELECT balance FROM credit_accounts WHERE user_id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Error, "account not found")
		return 0, false, credit.ErrAccountNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, false, fmt.Errorf("failed to read balance: %w", err)
	}

	applied := rowsAffected > 0
	span.SetAttributes(
		attribute.Bool("db.applied", applied),
		attribute.Int64("db.balance", balance),
	)
	span.SetStatus(otelcodes.Ok, "decrement evaluated")
	return balance, applied, nil
}
