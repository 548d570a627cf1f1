package credit

import "fmt"

// ActionType クレジットを消費する有料アクションを表す値オブジェクト
type ActionType string

const (
	ActionTypeJobAnalysis      ActionType = "job_analysis"      // 求人とCVの適合分析
	ActionTypeNetworkingSearch ActionType = "networking_search" // ネットワーキング検索
	ActionTypeEmailLookup      ActionType = "email_lookup"      // メールアドレス推定
)

// NewActionType 新しいActionTypeを作成
func NewActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionTypeJobAnalysis, ActionTypeNetworkingSearch, ActionTypeEmailLookup:
		return ActionType(s), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidActionType, s)
	}
}

// String 文字列表現を返す
func (a ActionType) String() string {
	return string(a)
}

// Valid 有効なアクションタイプかどうかを返す
func (a ActionType) Valid() bool {
	switch a {
	case ActionTypeJobAnalysis, ActionTypeNetworkingSearch, ActionTypeEmailLookup:
		return true
	default:
		return false
	}
}
