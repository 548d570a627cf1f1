package ledgerclient

import (
	"context"
)

// Snapshot キャッシュされた残高
// Known=falseは未取得（Unknown状態）
type Snapshot struct {
	Balance int64
	Version uint64
	Known   bool
}

// ReservationStatus 楽観的減算の結果
type ReservationStatus int

const (
	ReservationUnknown      ReservationStatus = iota // キャッシュ未取得、減算なし
	ReservationReserved                              // 減算済み
	ReservationInsufficient                          // キャッシュ上で残高不足
)

// Reservation 楽観的減算の記録、ロールバックに使用する
type Reservation struct {
	Status ReservationStatus
	Amount int64
	Before Snapshot
	After  Snapshot
	// Epoch 予約時点の上書き世代。Set/Deleteで進む
	Epoch uint64
}

// BalanceCache クライアント側の残高キャッシュ
// 書き込みはClient経由のみで行う
type BalanceCache interface {
	// Get 残高を取得
	Get(ctx context.Context, userID string) (Snapshot, error)
	// Set サーバー値で上書き
	Set(ctx context.Context, userID string, balance int64) (Snapshot, error)
	// Add 加算（未取得の場合は何もしない）
	Add(ctx context.Context, userID string, delta int64) (Snapshot, error)
	// Reserve 楽観的に減算（マイナスにはしない）
	Reserve(ctx context.Context, userID string, amount int64) (Reservation, error)
	// Restore 予約を取り消す。予約後にSet/Deleteされていた場合は何もしない
	Restore(ctx context.Context, userID string, r Reservation) error
	// Delete 未取得状態に戻す
	Delete(ctx context.Context, userID string) error
}
