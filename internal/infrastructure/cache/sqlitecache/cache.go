// Package sqlitecache SQLiteファイルに残高を保存するBalanceCache実装
// ledgerctlを再起動してもキャッシュした残高を引き継ぐ
package sqlitecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"credit-ledger/internal/application/ledgerclient"
)

// migrations スキーマ（SQLiteは1文ずつ実行する）
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS balances (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL CHECK (balance >= 0),
			version INTEGER NOT NULL DEFAULT 0,
			epoch   INTEGER NOT NULL DEFAULT 0
		)`,
		// 削除後も上書き世代を引き継ぐ
		`CREATE TABLE IF NOT EXISTS epochs (
			user_id TEXT PRIMARY KEY,
			epoch   INTEGER NOT NULL DEFAULT 0
		)`,
	}
}

// Cache SQLite実装のBalanceCache
type Cache struct {
	db *sql.DB
}

// Open パスのSQLiteファイルを開く（":memory:" でメモリ上に作成）
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	// 書き込みを1接続に直列化する（":memory:" は接続ごとに別DBになる）
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate sqlite cache: %w", err)
		}
	}
	return &Cache{db: db}, nil
}

// Close データベースを閉じる
func (c *Cache) Close() error {
	return c.db.Close()
}

type row struct {
	balance int64
	version uint64
	epoch   uint64
}

func (r row) snapshot() ledgerclient.Snapshot {
	return ledgerclient.Snapshot{Balance: r.balance, Version: r.version, Known: true}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func load(ctx context.Context, q queryer, userID string) (row, bool, error) {
	var r row
	err := q.QueryRowContext(ctx,
		`SELECT balance, version, epoch FROM balances WHERE user_id = ?`, userID,
	).Scan(&r.balance, &r.version, &r.epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return row{}, false, nil
	}
	if err != nil {
		return row{}, false, fmt.Errorf("failed to read balance cache: %w", err)
	}
	return r, true, nil
}

// withTx トランザクション内でfnを実行
func (c *Cache) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache transaction: %w", err)
	}
	return nil
}

// Get 残高を取得
func (c *Cache) Get(ctx context.Context, userID string) (ledgerclient.Snapshot, error) {
	r, ok, err := load(ctx, c.db, userID)
	if err != nil || !ok {
		return ledgerclient.Snapshot{}, err
	}
	return r.snapshot(), nil
}

// Set サーバー値で上書き
func (c *Cache) Set(ctx context.Context, userID string, balance int64) (ledgerclient.Snapshot, error) {
	if balance < 0 {
		return ledgerclient.Snapshot{}, ledgerclient.ErrNegativeBalance
	}
	var snap ledgerclient.Snapshot
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO epochs (user_id, epoch) VALUES (?, 1)
			 ON CONFLICT(user_id) DO UPDATE SET epoch = epoch + 1`, userID); err != nil {
			return fmt.Errorf("failed to advance cache epoch: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO balances (user_id, balance, version, epoch)
			 VALUES (?, ?, 1, (SELECT epoch FROM epochs WHERE user_id = ?))
			 ON CONFLICT(user_id) DO UPDATE SET
			   balance = excluded.balance,
			   version = balances.version + 1,
			   epoch = excluded.epoch`, userID, balance, userID); err != nil {
			return fmt.Errorf("failed to write balance cache: %w", err)
		}
		r, _, err := load(ctx, tx, userID)
		if err != nil {
			return err
		}
		snap = r.snapshot()
		return nil
	})
	return snap, err
}

// Add 加算（未取得の場合は何もしない）
func (c *Cache) Add(ctx context.Context, userID string, delta int64) (ledgerclient.Snapshot, error) {
	if delta <= 0 {
		return ledgerclient.Snapshot{}, ledgerclient.ErrInvalidAmount
	}
	var snap ledgerclient.Snapshot
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE balances SET balance = balance + ?, version = version + 1 WHERE user_id = ?`, delta, userID)
		if err != nil {
			return fmt.Errorf("failed to add to balance cache: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		r, _, err := load(ctx, tx, userID)
		if err != nil {
			return err
		}
		snap = r.snapshot()
		return nil
	})
	return snap, err
}

// Reserve 楽観的に減算
func (c *Cache) Reserve(ctx context.Context, userID string, amount int64) (ledgerclient.Reservation, error) {
	if amount <= 0 {
		return ledgerclient.Reservation{}, ledgerclient.ErrInvalidAmount
	}
	res := ledgerclient.Reservation{Status: ledgerclient.ReservationUnknown, Amount: amount}
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		r, ok, err := load(ctx, tx, userID)
		if err != nil || !ok {
			return err
		}
		res.Before = r.snapshot()
		res.Epoch = r.epoch
		if r.balance < amount {
			res.Status = ledgerclient.ReservationInsufficient
			res.After = res.Before
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE balances SET balance = balance - ?, version = version + 1 WHERE user_id = ?`, amount, userID); err != nil {
			return fmt.Errorf("failed to reserve from balance cache: %w", err)
		}
		res.Status = ledgerclient.ReservationReserved
		res.After = ledgerclient.Snapshot{Balance: r.balance - amount, Version: r.version + 1, Known: true}
		return nil
	})
	if err != nil {
		return ledgerclient.Reservation{}, err
	}
	return res, nil
}

// Restore 予約を取り消す
func (c *Cache) Restore(ctx context.Context, userID string, r ledgerclient.Reservation) error {
	if r.Status != ledgerclient.ReservationReserved {
		return nil
	}
	_, err := c.db.ExecContext(ctx,
		`UPDATE balances SET balance = balance + ?, version = version + 1 WHERE user_id = ? AND epoch = ?`,
		r.Amount, userID, r.Epoch)
	if err != nil {
		return fmt.Errorf("failed to restore balance cache: %w", err)
	}
	return nil
}

// Delete 未取得状態に戻す
func (c *Cache) Delete(ctx context.Context, userID string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM balances WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("failed to delete balance cache: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE epochs SET epoch = epoch + 1 WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to advance cache epoch: %w", err)
		}
		return nil
	})
}
