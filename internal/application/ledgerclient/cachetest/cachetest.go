// Package cachetest BalanceCache実装の共通テスト
package cachetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-ledger/internal/application/ledgerclient"
)

// Factory テストごとに空のキャッシュを作成する
type Factory func(t *testing.T) ledgerclient.BalanceCache

// Run BalanceCacheの振る舞いを検証する
func Run(t *testing.T, newCache Factory) {
	t.Run("正常系: 未取得の状態", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)

		s, err := c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.False(t, s.Known)

		r, err := c.Reserve(ctx, "user123", 1)
		require.NoError(t, err)
		assert.Equal(t, ledgerclient.ReservationUnknown, r.Status)

		s, err = c.Add(ctx, "user123", 5)
		require.NoError(t, err)
		assert.False(t, s.Known)
	})

	t.Run("正常系: 上書きと加算", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)

		s, err := c.Set(ctx, "user123", 3)
		require.NoError(t, err)
		assert.True(t, s.Known)
		assert.Equal(t, int64(3), s.Balance)
		v1 := s.Version

		s, err = c.Add(ctx, "user123", 20)
		require.NoError(t, err)
		assert.Equal(t, int64(23), s.Balance)
		assert.Greater(t, s.Version, v1)

		got, err := c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, s, got)
	})

	t.Run("正常系: 減算と取り消し", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)
		_, err := c.Set(ctx, "user123", 2)
		require.NoError(t, err)

		r, err := c.Reserve(ctx, "user123", 3)
		require.NoError(t, err)
		assert.Equal(t, ledgerclient.ReservationInsufficient, r.Status)
		assert.Equal(t, int64(2), r.Before.Balance)

		r, err = c.Reserve(ctx, "user123", 2)
		require.NoError(t, err)
		assert.Equal(t, ledgerclient.ReservationReserved, r.Status)
		assert.Equal(t, int64(2), r.Before.Balance)
		assert.Equal(t, int64(0), r.After.Balance)

		require.NoError(t, c.Restore(ctx, "user123", r))
		s, err := c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, int64(2), s.Balance)
	})

	t.Run("正常系: 取り消しの順序に依存しない", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)
		_, err := c.Set(ctx, "user123", 5)
		require.NoError(t, err)

		a, err := c.Reserve(ctx, "user123", 1)
		require.NoError(t, err)
		b, err := c.Reserve(ctx, "user123", 1)
		require.NoError(t, err)

		require.NoError(t, c.Restore(ctx, "user123", b))
		require.NoError(t, c.Restore(ctx, "user123", a))
		s, err := c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, int64(5), s.Balance)
	})

	t.Run("正常系: 予約後に加算されても取り消しは適用される", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)
		_, err := c.Set(ctx, "user123", 5)
		require.NoError(t, err)
		r, err := c.Reserve(ctx, "user123", 1)
		require.NoError(t, err)

		credited, err := c.Add(ctx, "user123", 10)
		require.NoError(t, err)
		// バージョンは進むが上書き世代は変わらない
		require.NotEqual(t, r.After.Version, credited.Version)
		require.NoError(t, c.Restore(ctx, "user123", r))

		s, err := c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, int64(15), s.Balance)
	})

	t.Run("正常系: 上書き後の取り消しは無視", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)
		_, err := c.Set(ctx, "user123", 5)
		require.NoError(t, err)
		r, err := c.Reserve(ctx, "user123", 1)
		require.NoError(t, err)

		_, err = c.Set(ctx, "user123", 4)
		require.NoError(t, err)
		require.NoError(t, c.Restore(ctx, "user123", r))

		s, err := c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, int64(4), s.Balance)
	})

	t.Run("正常系: 削除後の取り消しは無視", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)
		_, err := c.Set(ctx, "user123", 5)
		require.NoError(t, err)
		r, err := c.Reserve(ctx, "user123", 1)
		require.NoError(t, err)

		require.NoError(t, c.Delete(ctx, "user123"))
		s, err := c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.False(t, s.Known)

		_, err = c.Set(ctx, "user123", 5)
		require.NoError(t, err)
		require.NoError(t, c.Restore(ctx, "user123", r))
		s, err = c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, int64(5), s.Balance)
	})

	t.Run("正常系: ユーザーごとに独立", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)
		_, err := c.Set(ctx, "alice", 1)
		require.NoError(t, err)

		s, err := c.Get(ctx, "bob")
		require.NoError(t, err)
		assert.False(t, s.Known)
	})

	t.Run("異常系: 入力値の検証", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)

		_, err := c.Set(ctx, "user123", -1)
		assert.ErrorIs(t, err, ledgerclient.ErrNegativeBalance)
		_, err = c.Reserve(ctx, "user123", 0)
		assert.ErrorIs(t, err, ledgerclient.ErrInvalidAmount)
		_, err = c.Add(ctx, "user123", -2)
		assert.ErrorIs(t, err, ledgerclient.ErrInvalidAmount)
	})

	t.Run("正常系: 同時減算でもマイナスにならない", func(t *testing.T) {
		ctx := context.Background()
		c := newCache(t)
		_, err := c.Set(ctx, "user123", 10)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		reserved := 0
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := c.Reserve(ctx, "user123", 1)
				if !assert.NoError(t, err) {
					return
				}
				if r.Status == ledgerclient.ReservationReserved {
					mu.Lock()
					reserved++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		s, err := c.Get(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, 10, reserved)
		assert.Equal(t, int64(0), s.Balance)
	})
}
