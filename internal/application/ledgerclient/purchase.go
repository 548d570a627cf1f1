package ledgerclient

import (
	"context"
)

// DefaultPurchaseThreshold 購入通知を出す残高増加量の既定値
const DefaultPurchaseThreshold int64 = 20

// PurchaseNotice 購入検知時の通知内容
type PurchaseNotice struct {
	UserID   string
	Previous int64
	Current  int64
	Delta    int64
}

// Notifier 購入完了をユーザーに一度だけ通知する
type Notifier interface {
	NotifyPurchase(ctx context.Context, notice PurchaseNotice)
}

// NotifierFunc 関数をNotifierとして扱う
type NotifierFunc func(ctx context.Context, notice PurchaseNotice)

// NotifyPurchase fを呼び出す
func (f NotifierFunc) NotifyPurchase(ctx context.Context, notice PurchaseNotice) {
	f(ctx, notice)
}

// PurchaseDetector 残高の遷移から購入を判定する
type PurchaseDetector struct {
	Threshold int64
}

// NewPurchaseDetector 新しいPurchaseDetectorを作成（0以下の場合は既定値）
func NewPurchaseDetector(threshold int64) PurchaseDetector {
	if threshold <= 0 {
		threshold = DefaultPurchaseThreshold
	}
	return PurchaseDetector{Threshold: threshold}
}

// Detect 直前の値が既知かつ0以外で、増加量が閾値以上の場合にtrueを返す
// 初回ロード（未取得または0からの遷移）は購入とみなさない
func (d PurchaseDetector) Detect(prev Snapshot, next int64) bool {
	if !prev.Known || prev.Balance == 0 {
		return false
	}
	return next-prev.Balance >= d.Threshold
}
