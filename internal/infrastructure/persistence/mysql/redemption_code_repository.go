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

	"credit-ledger/internal/domain/redemption_code"
)

// RedemptionCodeRepository MySQL実装のRedemptionCodeRepository
type RedemptionCodeRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewRedemptionCodeRepository 新しいRedemptionCodeRepositoryを作成
func NewRedemptionCodeRepository(db *DB) *RedemptionCodeRepository {
	return &RedemptionCodeRepository{
		db:     db,
		tracer: otel.Tracer("redemption-code-repository"),
	}
}

// FindByCode コードで引き換えコードを取得
func (r *RedemptionCodeRepository) FindByCode(ctx context.Context, code string) (*redemption_code.RedemptionCode, error) {
	ctx, span := r.tracer.Start(ctx, "RedemptionCodeRepository.FindByCode")
	defer span.End()
	defer r.db.observe(ctx, "SELECT", "redemption_codes", time.Now())

	span.SetAttributes(
		attribute.String("db.code", code),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "redemption_codes"),
	)

	query := `
		SELECT
			code, code_type, credits, max_uses, current_uses,
			valid_from, valid_until, status, created_at, updated_at
		FROM redemption_codes
		WHERE code = ?
	`

	var dbCode, dbCodeType, dbStatus string
	var credits int64
	var maxUses, currentUses int
	var validFrom, validUntil, createdAt, updatedAt time.Time

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&dbCode,
		&dbCodeType,
		&credits,
		&maxUses,
		&currentUses,
		&validFrom,
		&validUntil,
		&dbStatus,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "redemption code not found")
		return nil, redemption_code.ErrCodeNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find redemption code: %w", err)
	}

	span.SetAttributes(
		attribute.String("db.code_type", dbCodeType),
		attribute.Int64("db.credits", credits),
		attribute.String("db.status", dbStatus),
	)
	span.SetStatus(otelcodes.Ok, "redemption code found")

	ct, err := redemption_code.NewCodeType(dbCodeType)
	if err != nil {
		return nil, fmt.Errorf("invalid code type: %w", err)
	}
	status, err := redemption_code.NewCodeStatus(dbStatus)
	if err != nil {
		return nil, fmt.Errorf("invalid code status: %w", err)
	}

	return redemption_code.ReconstructRedemptionCode(
		dbCode, ct, credits, maxUses, currentUses,
		validFrom, validUntil, status, createdAt, updatedAt,
	), nil
}

// Create 引き換えコードを新規作成
func (r *RedemptionCodeRepository) Create(ctx context.Context, code *redemption_code.RedemptionCode) error {
	ctx, span := r.tracer.Start(ctx, "RedemptionCodeRepository.Create")
	defer span.End()
	defer r.db.observe(ctx, "INSERT", "redemption_codes", time.Now())

	span.SetAttributes(
		attribute.String("db.code", code.Code()),
		attribute.String("db.code_type", code.CodeType().String()),
		attribute.Int64("db.credits", code.Credits()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "redemption_codes"),
	)

	query := `
		INSERT INTO redemption_codes (
			code, code_type, credits, max_uses, current_uses,
			valid_from, valid_until, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		code.Code(),
		code.CodeType().String(),
		code.Credits(),
		code.MaxUses(),
		code.CurrentUses(),
		code.ValidFrom(),
		code.ValidUntil(),
		code.Status().String(),
		code.CreatedAt(),
		code.UpdatedAt(),
	)
	if err != nil {
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
			span.SetStatus(otelcodes.Error, "code already exists")
			return redemption_code.ErrCodeAlreadyExists
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to create redemption code: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "redemption code created")
	return nil
}

// Update 引き換えコードの使用回数を1増やし、ステータスを保存
// 上限に達している場合は更新せずErrCodeMaxUsesReachedを返す
func (r *RedemptionCodeRepository) Update(ctx context.Context, tx *sql.Tx, code *redemption_code.RedemptionCode) error {
	ctx, span := r.tracer.Start(ctx, "RedemptionCodeRepository.Update")
	defer span.End()
	defer r.db.observe(ctx, "UPDATE", "redemption_codes", time.Now())

	span.SetAttributes(
		attribute.String("db.code", code.Code()),
		attribute.Int("db.current_uses", code.CurrentUses()),
		attribute.String("db.status", code.Status().String()),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.table", "redemption_codes"),
	)

	query := `
		UPDATE redemption_codes
		SET
			current_uses = current_uses + 1,
			status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE code = ? AND (max_uses = 0 OR current_uses < max_uses)
	`

	result, err := r.db.conn(tx).ExecContext(ctx, query,
		code.Status().String(),
		code.Code(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to update redemption code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		span.SetStatus(otelcodes.Error, "max uses reached")
		return redemption_code.ErrCodeMaxUsesReached
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
	span.SetStatus(otelcodes.Ok, "redemption code updated")
	return nil
}

// HasUserRedeemed ユーザーが既にこのコードを引き換え済みかチェック
func (r *RedemptionCodeRepository) HasUserRedeemed(ctx context.Context, code string, userID string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "RedemptionCodeRepository.HasUserRedeemed")
	defer span.End()
	defer r.db.observe(ctx, "SELECT", "code_redemptions", time.Now())

	span.SetAttributes(
		attribute.String("db.code", code),
		attribute.String("db.user_id", userID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "code_redemptions"),
	)

	query := `
		SELECT COUNT(*)
		FROM code_redemptions
		WHERE code = ? AND user_id = ?
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, code, userID).Scan(&count); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, fmt.Errorf("failed to check redemption: %w", err)
	}

	span.SetAttributes(attribute.Int("db.count", count))
	span.SetStatus(otelcodes.Ok, fmt.Sprintf("user redeemed: %v", count > 0))
	return count > 0, nil
}

// SaveRedemption 引き換え履歴を保存
// (code, user_id)の一意制約に違反した場合はErrUserAlreadyRedeemedを返す
func (r *RedemptionCodeRepository) SaveRedemption(ctx context.Context, tx *sql.Tx, redemption *redemption_code.CodeRedemption) error {
	ctx, span := r.tracer.Start(ctx, "RedemptionCodeRepository.SaveRedemption")
	defer span.End()
	defer r.db.observe(ctx, "INSERT", "code_redemptions", time.Now())

	span.SetAttributes(
		attribute.String("db.redemption_id", redemption.RedemptionID()),
		attribute.String("db.code", redemption.Code()),
		attribute.String("db.user_id", redemption.UserID()),
		attribute.String("db.entry_id", redemption.EntryID()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "code_redemptions"),
	)

	query := `
		INSERT INTO code_redemptions (
			redemption_id, code, user_id, entry_id, redeemed_at
		) VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.conn(tx).ExecContext(ctx, query,
		redemption.RedemptionID(),
		redemption.Code(),
		redemption.UserID(),
		redemption.EntryID(),
		redemption.RedeemedAt(),
	)
	if err != nil {
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
			span.SetStatus(otelcodes.Error, "user already redeemed")
			return redemption_code.ErrUserAlreadyRedeemed
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save redemption: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "redemption saved")
	return nil
}
