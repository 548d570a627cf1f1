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

	"credit-ledger/internal/domain/purchase"
)

// PurchaseRepository MySQL実装のPurchaseRepository
type PurchaseRepository struct {
	db     *DB
	tracer trace.Tracer
}

// NewPurchaseRepository 新しいPurchaseRepositoryを作成
func NewPurchaseRepository(db *DB) *PurchaseRepository {
	return &PurchaseRepository{
		db:     db,
		tracer: otel.Tracer("purchase-repository"),
	}
}

// Save 購入を新規保存
// order_idの一意制約で同じ注文の二重付与を防ぐ
func (r *PurchaseRepository) Save(ctx context.Context, tx *sql.Tx, p *purchase.Purchase) error {
	ctx, span := r.tracer.Start(ctx, "PurchaseRepository.Save")
	defer span.End()
	defer r.db.observe(ctx, "INSERT", "purchases", time.Now())

	span.SetAttributes(
		attribute.String("db.order_id", p.OrderID()),
		attribute.String("db.user_id", p.UserID()),
		attribute.String("db.package_id", p.PackageID()),
		attribute.Int64("db.credits", p.Credits()),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "purchases"),
	)

	query := `
		INSERT INTO purchases (order_id, user_id, package_id, credits, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.conn(tx).ExecContext(ctx, query,
		p.OrderID(),
		p.UserID(),
		p.PackageID(),
		p.Credits(),
		p.Status().String(),
		p.CreatedAt(),
		p.UpdatedAt(),
	)
	if err != nil {
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
			span.SetStatus(otelcodes.Error, "purchase already processed")
			return purchase.ErrPurchaseAlreadyProcessed
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("failed to save purchase: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "purchase saved")
	return nil
}

// FindByOrderID 注文IDで購入を取得
func (r *PurchaseRepository) FindByOrderID(ctx context.Context, orderID string) (*purchase.Purchase, error) {
	ctx, span := r.tracer.Start(ctx, "PurchaseRepository.FindByOrderID")
	defer span.End()
	defer r.db.observe(ctx, "SELECT", "purchases", time.Now())

	span.SetAttributes(
		attribute.String("db.order_id", orderID),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "purchases"),
	)

	query := `
		SELECT order_id, user_id, package_id, credits, status, created_at, updated_at
		FROM purchases
		WHERE order_id = ?
	`

	var dbOrderID, userID, packageID, status string
	var credits int64
	var createdAt, updatedAt time.Time

	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&dbOrderID, &userID, &packageID, &credits, &status, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Ok, "purchase not found")
		return nil, purchase.ErrPurchaseNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to find purchase: %w", err)
	}

	span.SetAttributes(attribute.String("db.status", status))
	span.SetStatus(otelcodes.Ok, "purchase found")

	return purchase.ReconstructPurchase(dbOrderID, userID, packageID, credits, purchase.Status(status), createdAt, updatedAt), nil
}
