package ledgerclient

import (
	"context"
	"sync"
)

type memoryEntry struct {
	balance int64
	version uint64
	epoch   uint64
}

// MemoryCache プロセス内のBalanceCache実装
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	epochs  map[string]uint64 // Delete後も世代を引き継ぐ
}

// NewMemoryCache 新しいMemoryCacheを作成
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		epochs:  make(map[string]uint64),
	}
}

func (c *MemoryCache) snapshot(userID string) Snapshot {
	e, ok := c.entries[userID]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{Balance: e.balance, Version: e.version, Known: true}
}

// Get 残高を取得
func (c *MemoryCache) Get(_ context.Context, userID string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(userID), nil
}

// Set サーバー値で上書き
func (c *MemoryCache) Set(_ context.Context, userID string, balance int64) (Snapshot, error) {
	if balance < 0 {
		return Snapshot{}, ErrNegativeBalance
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epochs[userID]++
	e, ok := c.entries[userID]
	if !ok {
		e = &memoryEntry{}
		c.entries[userID] = e
	}
	e.balance = balance
	e.version++
	e.epoch = c.epochs[userID]
	return c.snapshot(userID), nil
}

// Add 加算（未取得の場合は何もしない）
func (c *MemoryCache) Add(_ context.Context, userID string, delta int64) (Snapshot, error) {
	if delta <= 0 {
		return Snapshot{}, ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return Snapshot{}, nil
	}
	e.balance += delta
	e.version++
	return c.snapshot(userID), nil
}

// Reserve 楽観的に減算
func (c *MemoryCache) Reserve(_ context.Context, userID string, amount int64) (Reservation, error) {
	if amount <= 0 {
		return Reservation{}, ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return Reservation{Status: ReservationUnknown, Amount: amount}, nil
	}
	before := c.snapshot(userID)
	if e.balance < amount {
		return Reservation{Status: ReservationInsufficient, Amount: amount, Before: before, After: before, Epoch: e.epoch}, nil
	}
	e.balance -= amount
	e.version++
	return Reservation{
		Status: ReservationReserved,
		Amount: amount,
		Before: before,
		After:  c.snapshot(userID),
		Epoch:  e.epoch,
	}, nil
}

// Restore 予約を取り消す
func (c *MemoryCache) Restore(_ context.Context, userID string, r Reservation) error {
	if r.Status != ReservationReserved {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok || e.epoch != r.Epoch {
		// 予約後に上書きまたはリセットされた
		return nil
	}
	e.balance += r.Amount
	e.version++
	return nil
}

// Delete 未取得状態に戻す
func (c *MemoryCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[userID]; ok {
		c.epochs[userID]++
	}
	delete(c.entries, userID)
	return nil
}
