// Package rediscache Redisを使った共有BalanceCache実装
// 複数のクライアントプロセスが同じ残高キャッシュを参照できる
package rediscache

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"credit-ledger/internal/application/ledgerclient"
)

//go:embed set.lua
var setLua string

//go:embed add.lua
var addLua string

//go:embed reserve.lua
var reserveLua string

//go:embed restore.lua
var restoreLua string

//go:embed delete.lua
var deleteLua string

var (
	setScript     = redis.NewScript(setLua)
	addScript     = redis.NewScript(addLua)
	reserveScript = redis.NewScript(reserveLua)
	restoreScript = redis.NewScript(restoreLua)
	deleteScript  = redis.NewScript(deleteLua)
)

// Cache Redis実装のBalanceCache
// 読み書きはLuaスクリプトで原子的に行う
type Cache struct {
	client redis.UniversalClient
	prefix string
}

// New 新しいCacheを作成
func New(client redis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Open アドレスに接続してCacheを作成
func Open(ctx context.Context, addr string, db int, prefix string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, prefix), nil
}

// Close 接続を閉じる
func (c *Cache) Close() error {
	return c.client.Close()
}

// keys ハッシュと世代カウンタを同じスロットに置く
func (c *Cache) keys(userID string) []string {
	base := c.prefix + "{" + userID + "}"
	return []string{base, base + ":epoch"}
}

// Get 残高を取得
func (c *Cache) Get(ctx context.Context, userID string) (ledgerclient.Snapshot, error) {
	vals, err := c.client.HMGet(ctx, c.keys(userID)[0], "balance", "version").Result()
	if err != nil {
		return ledgerclient.Snapshot{}, fmt.Errorf("failed to read balance cache: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return ledgerclient.Snapshot{}, nil
	}
	balance, err := parseInt(vals[0])
	if err != nil {
		return ledgerclient.Snapshot{}, err
	}
	version, err := parseInt(vals[1])
	if err != nil {
		return ledgerclient.Snapshot{}, err
	}
	return ledgerclient.Snapshot{Balance: balance, Version: uint64(version), Known: true}, nil
}

// Set サーバー値で上書き
func (c *Cache) Set(ctx context.Context, userID string, balance int64) (ledgerclient.Snapshot, error) {
	if balance < 0 {
		return ledgerclient.Snapshot{}, ledgerclient.ErrNegativeBalance
	}
	res, err := setScript.Run(ctx, c.client, c.keys(userID), balance).Int64Slice()
	if err != nil {
		return ledgerclient.Snapshot{}, fmt.Errorf("failed to write balance cache: %w", err)
	}
	if len(res) != 2 {
		return ledgerclient.Snapshot{}, errUnexpectedReply
	}
	return ledgerclient.Snapshot{Balance: res[0], Version: uint64(res[1]), Known: true}, nil
}

// Add 加算（未取得の場合は何もしない）
func (c *Cache) Add(ctx context.Context, userID string, delta int64) (ledgerclient.Snapshot, error) {
	if delta <= 0 {
		return ledgerclient.Snapshot{}, ledgerclient.ErrInvalidAmount
	}
	res, err := addScript.Run(ctx, c.client, c.keys(userID)[:1], delta).Int64Slice()
	if err != nil {
		return ledgerclient.Snapshot{}, fmt.Errorf("failed to add to balance cache: %w", err)
	}
	if len(res) != 3 {
		return ledgerclient.Snapshot{}, errUnexpectedReply
	}
	if res[0] == 0 {
		return ledgerclient.Snapshot{}, nil
	}
	return ledgerclient.Snapshot{Balance: res[1], Version: uint64(res[2]), Known: true}, nil
}

// Reserve 楽観的に減算
func (c *Cache) Reserve(ctx context.Context, userID string, amount int64) (ledgerclient.Reservation, error) {
	if amount <= 0 {
		return ledgerclient.Reservation{}, ledgerclient.ErrInvalidAmount
	}
	res, err := reserveScript.Run(ctx, c.client, c.keys(userID)[:1], amount).Int64Slice()
	if err != nil {
		return ledgerclient.Reservation{}, fmt.Errorf("failed to reserve from balance cache: %w", err)
	}
	return decodeReservation(res, amount)
}

// Restore 予約を取り消す
func (c *Cache) Restore(ctx context.Context, userID string, r ledgerclient.Reservation) error {
	if r.Status != ledgerclient.ReservationReserved {
		return nil
	}
	err := restoreScript.Run(ctx, c.client, c.keys(userID)[:1], r.Amount, strconv.FormatUint(r.Epoch, 10)).Err()
	if err != nil {
		return fmt.Errorf("failed to restore balance cache: %w", err)
	}
	return nil
}

// Delete 未取得状態に戻す
func (c *Cache) Delete(ctx context.Context, userID string) error {
	if err := deleteScript.Run(ctx, c.client, c.keys(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete balance cache: %w", err)
	}
	return nil
}

var errUnexpectedReply = errors.New("unexpected reply from redis script")

// decodeReservation reserve.luaの戻り値を変換
func decodeReservation(res []int64, amount int64) (ledgerclient.Reservation, error) {
	if len(res) != 6 {
		return ledgerclient.Reservation{}, errUnexpectedReply
	}
	before := ledgerclient.Snapshot{Balance: res[1], Version: uint64(res[2]), Known: true}
	after := ledgerclient.Snapshot{Balance: res[3], Version: uint64(res[4]), Known: true}
	epoch := uint64(res[5])

	switch res[0] {
	case 0:
		return ledgerclient.Reservation{Status: ledgerclient.ReservationUnknown, Amount: amount}, nil
	case 1:
		return ledgerclient.Reservation{Status: ledgerclient.ReservationReserved, Amount: amount, Before: before, After: after, Epoch: epoch}, nil
	case 2:
		return ledgerclient.Reservation{Status: ledgerclient.ReservationInsufficient, Amount: amount, Before: before, After: before, Epoch: epoch}, nil
	default:
		return ledgerclient.Reservation{}, fmt.Errorf("%w: status %d", errUnexpectedReply, res[0])
	}
}

func parseInt(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, errUnexpectedReply
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errUnexpectedReply, err)
	}
	return n, nil
}
