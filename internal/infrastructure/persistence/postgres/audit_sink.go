package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/domain/event"
)

// Execer pgxpool.Poolとpgx.Txが満たす書き込みインターフェース
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_audit (
	entry_id        TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	kind            TEXT NOT NULL,
	delta           BIGINT NOT NULL,
	balance         BIGINT NOT NULL,
	action          TEXT,
	audit_email     TEXT,
	idempotency_key TEXT,
	reference       TEXT,
	occurred_at     TIMESTAMPTZ NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_ledger_audit_user_occurred ON ledger_audit (user_id, occurred_at DESC);
`

// Connect PostgreSQLへ接続し疎通を確認する
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate 監査テーブルを作成する
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate audit schema: %w", err)
	}
	return nil
}

// AuditSink 残高変更イベントを監査テーブルへ追記する
// 同じentry_idは一度だけ記録される（NATSの再配信に対して冪等）
type AuditSink struct {
	db     Execer
	tracer trace.Tracer
}

// NewAuditSink 新しいAuditSinkを作成
func NewAuditSink(db Execer) *AuditSink {
	return &AuditSink{
		db:     db,
		tracer: otel.Tracer("audit-sink"),
	}
}

// Record イベントを記録し、新規に追加された場合はtrueを返す
func (s *AuditSink) Record(ctx context.Context, e event.BalanceChanged) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "AuditSink.Record")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("entry_id", e.EntryID),
		attribute.String("user_id", e.UserID),
	)

	query := `
		INSERT INTO ledger_audit (entry_id, user_id, kind, delta, balance, action, audit_email, idempotency_key, reference, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (entry_id) DO NOTHING`

	tag, err := s.db.Exec(ctx, query,
		e.EntryID,
		e.UserID,
		string(e.Kind),
		e.Delta,
		e.Balance,
		nullable(e.Action),
		nullable(e.AuditEmail),
		nullable(e.IdempotencyKey),
		nullable(e.Reference),
		e.OccurredAt.UTC(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return false, fmt.Errorf("failed to insert audit entry %s: %w", e.EntryID, err)
	}

	inserted := tag.RowsAffected() == 1
	span.SetAttributes(attribute.Bool("inserted", inserted))
	return inserted, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
