package redemption_code

import (
	"strings"
	"time"
)

// RedemptionCode クレジットを付与する引き換えコードエンティティ
type RedemptionCode struct {
	code        string
	codeType    CodeType
	credits     int64
	maxUses     int // 0 = 無制限
	currentUses int
	validFrom   time.Time
	validUntil  time.Time
	status      CodeStatus
	createdAt   time.Time
	updatedAt   time.Time
}

// NormalizeCode 入力されたコードを正規化（前後の空白除去、大文字化）
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewRedemptionCode 新しいRedemptionCodeエンティティを作成
func NewRedemptionCode(
	code string,
	codeType CodeType,
	credits int64,
	maxUses int,
	validFrom time.Time,
	validUntil time.Time,
) (*RedemptionCode, error) {
	code = NormalizeCode(code)
	if code == "" || !codeType.Valid() || credits <= 0 || maxUses < 0 {
		return nil, ErrInvalidCode
	}
	if !validUntil.After(validFrom) {
		return nil, ErrInvalidCode
	}

	now := time.Now()
	return &RedemptionCode{
		code:       code,
		codeType:   codeType,
		credits:    credits,
		maxUses:    maxUses,
		validFrom:  validFrom,
		validUntil: validUntil,
		status:     CodeStatusActive,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// ReconstructRedemptionCode 永続化層からRedemptionCodeを復元
func ReconstructRedemptionCode(
	code string,
	codeType CodeType,
	credits int64,
	maxUses, currentUses int,
	validFrom, validUntil time.Time,
	status CodeStatus,
	createdAt, updatedAt time.Time,
) *RedemptionCode {
	return &RedemptionCode{
		code:        code,
		codeType:    codeType,
		credits:     credits,
		maxUses:     maxUses,
		currentUses: currentUses,
		validFrom:   validFrom,
		validUntil:  validUntil,
		status:      status,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// Code コードを返す
func (rc *RedemptionCode) Code() string {
	return rc.code
}

// CodeType コードタイプを返す
func (rc *RedemptionCode) CodeType() CodeType {
	return rc.codeType
}

// Credits 付与クレジット数を返す
func (rc *RedemptionCode) Credits() int64 {
	return rc.credits
}

// MaxUses 最大使用回数を返す
func (rc *RedemptionCode) MaxUses() int {
	return rc.maxUses
}

// CurrentUses 現在の使用回数を返す
func (rc *RedemptionCode) CurrentUses() int {
	return rc.currentUses
}

// ValidFrom 有効開始日時を返す
func (rc *RedemptionCode) ValidFrom() time.Time {
	return rc.validFrom
}

// ValidUntil 有効期限を返す
func (rc *RedemptionCode) ValidUntil() time.Time {
	return rc.validUntil
}

// Status ステータスを返す
func (rc *RedemptionCode) Status() CodeStatus {
	return rc.status
}

// CreatedAt 作成日時を返す
func (rc *RedemptionCode) CreatedAt() time.Time {
	return rc.createdAt
}

// UpdatedAt 更新日時を返す
func (rc *RedemptionCode) UpdatedAt() time.Time {
	return rc.updatedAt
}

// CheckRedeemable 引き換え可能かを検証し、不可の場合は理由をエラーで返す
func (rc *RedemptionCode) CheckRedeemable(now time.Time) error {
	switch rc.status {
	case CodeStatusDisabled:
		return ErrCodeDisabled
	case CodeStatusExpired:
		return ErrCodeExpired
	}
	if now.Before(rc.validFrom) {
		return ErrCodeNotYetValid
	}
	if now.After(rc.validUntil) {
		return ErrCodeExpired
	}
	if rc.maxUses > 0 && rc.currentUses >= rc.maxUses {
		return ErrCodeMaxUsesReached
	}
	return nil
}

// Redeem 引き換え処理（使用回数を増やす）
func (rc *RedemptionCode) Redeem(now time.Time) error {
	if err := rc.CheckRedeemable(now); err != nil {
		return err
	}
	rc.currentUses++
	rc.updatedAt = now
	return nil
}

// Disable コードを無効化
func (rc *RedemptionCode) Disable() {
	rc.status = CodeStatusDisabled
	rc.updatedAt = time.Now()
}

// MustNewRedemptionCode テスト用ヘルパー: NewRedemptionCodeを呼び出し、エラーが発生した場合はpanicする
func MustNewRedemptionCode(code string, codeType CodeType, credits int64, maxUses int, validFrom, validUntil time.Time) *RedemptionCode {
	rc, err := NewRedemptionCode(code, codeType, credits, maxUses, validFrom, validUntil)
	if err != nil {
		panic(err)
	}
	return rc
}
