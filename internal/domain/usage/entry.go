package usage

import (
	"regexp"
	"time"

	"credit-ledger/internal/domain/credit"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// Entry 利用履歴エンティティ
// 残高の増減は全てEntryとして追記され、更新されない
type Entry struct {
	entryID        string
	userID         string
	entryType      EntryType
	amount         int64
	balanceBefore  int64
	balanceAfter   int64
	status         EntryStatus
	action         credit.ActionType // 消費の場合のみ
	idempotencyKey *string
	reference      *string // 注文IDや引き換えコード
	auditEmail     *string
	createdAt      time.Time
}

// EntryParams Entry作成パラメータ
type EntryParams struct {
	EntryID        string
	UserID         string
	Type           EntryType
	Amount         int64
	BalanceBefore  int64
	BalanceAfter   int64
	Status         EntryStatus
	Action         credit.ActionType
	IdempotencyKey string
	Reference      string
	AuditEmail     string
	CreatedAt      time.Time
}

// NewEntry 新しいEntryエンティティを作成
func NewEntry(p EntryParams) (*Entry, error) {
	if !idRegex.MatchString(p.EntryID) {
		return nil, ErrInvalidEntryID
	}
	if !credit.ValidUserID(p.UserID) {
		return nil, ErrInvalidUserID
	}
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if p.BalanceBefore < 0 || p.BalanceAfter < 0 {
		return nil, ErrBalanceOutOfRange
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Entry{
		entryID:        p.EntryID,
		userID:         p.UserID,
		entryType:      p.Type,
		amount:         p.Amount,
		balanceBefore:  p.BalanceBefore,
		balanceAfter:   p.BalanceAfter,
		status:         p.Status,
		action:         p.Action,
		idempotencyKey: optional(p.IdempotencyKey),
		reference:      optional(p.Reference),
		auditEmail:     optional(p.AuditEmail),
		createdAt:      createdAt,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// EntryID 利用履歴IDを返す
func (e *Entry) EntryID() string {
	return e.entryID
}

// UserID ユーザーIDを返す
func (e *Entry) UserID() string {
	return e.userID
}

// Type 利用履歴タイプを返す
func (e *Entry) Type() EntryType {
	return e.entryType
}

// Amount クレジット数を返す
func (e *Entry) Amount() int64 {
	return e.amount
}

// BalanceBefore 処理前の残高を返す
func (e *Entry) BalanceBefore() int64 {
	return e.balanceBefore
}

// BalanceAfter 処理後の残高を返す
func (e *Entry) BalanceAfter() int64 {
	return e.balanceAfter
}

// Status ステータスを返す
func (e *Entry) Status() EntryStatus {
	return e.status
}

// Action アクションタイプを返す
func (e *Entry) Action() credit.ActionType {
	return e.action
}

// IdempotencyKey 冪等キーを返す
func (e *Entry) IdempotencyKey() *string {
	return e.idempotencyKey
}

// Reference 参照IDを返す
func (e *Entry) Reference() *string {
	return e.reference
}

// AuditEmail 監査用メールアドレスを返す
func (e *Entry) AuditEmail() *string {
	return e.auditEmail
}

// CreatedAt 作成日時を返す
func (e *Entry) CreatedAt() time.Time {
	return e.createdAt
}

// MustNewEntry テスト用ヘルパー: NewEntryを呼び出し、エラーが発生した場合はpanicする
func MustNewEntry(p EntryParams) *Entry {
	e, err := NewEntry(p)
	if err != nil {
		panic(err)
	}
	return e
}
