package ledgerclient

import "time"

// Metrics クライアント側のメトリクス記録インターフェース
type Metrics interface {
	ObserveUseCredit(outcome, code string)
	ObserveRefresh(result string)
	ObserveRemoteLatency(operation string, d time.Duration)
	ObservePurchaseNotification()
}

type nopMetrics struct{}

func (nopMetrics) ObserveUseCredit(string, string) {}
func (nopMetrics) ObserveRefresh(string) {}
func (nopMetrics) ObserveRemoteLatency(string, time.Duration) {}
func (nopMetrics) ObservePurchaseNotification() {}
