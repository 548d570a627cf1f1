package redemption_code

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedemptionCode(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		code     string
		codeType CodeType
		credits  int64
		maxUses  int
		from     time.Time
		until    time.Time
		wantErr  bool
		wantCode string
	}{
		{
			name:     "正常系: コードは大文字に正規化される",
			code:     " welcome20 ",
			codeType: CodeTypePromotion,
			credits:  20,
			maxUses:  100,
			from:     now.Add(-time.Hour),
			until:    now.Add(time.Hour),
			wantCode: "WELCOME20",
		},
		{
			name:     "異常系: 空のコード",
			code:     "  ",
			codeType: CodeTypeGift,
			credits:  5,
			from:     now,
			until:    now.Add(time.Hour),
			wantErr:  true,
		},
		{
			name:     "異常系: クレジット数が0",
			code:     "GIFT",
			codeType: CodeTypeGift,
			credits:  0,
			from:     now,
			until:    now.Add(time.Hour),
			wantErr:  true,
		},
		{
			name:     "異常系: 無効なコードタイプ",
			code:     "GIFT",
			codeType: CodeType("bonus"),
			credits:  5,
			from:     now,
			until:    now.Add(time.Hour),
			wantErr:  true,
		},
		{
			name:     "異常系: 有効期間が逆転",
			code:     "GIFT",
			codeType: CodeTypeGift,
			credits:  5,
			from:     now,
			until:    now.Add(-time.Hour),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRedemptionCode(tt.code, tt.codeType, tt.credits, tt.maxUses, tt.from, tt.until)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, got.Code())
			assert.Equal(t, tt.credits, got.Credits())
			assert.Equal(t, CodeStatusActive, got.Status())
			assert.Equal(t, 0, got.CurrentUses())
		})
	}
}

func TestRedemptionCode_Redeem(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		setup     func() *RedemptionCode
		wantError error
		wantUses  int
	}{
		{
			name: "正常系: 引き換え成功",
			setup: func() *RedemptionCode {
				return MustNewRedemptionCode("CODE", CodeTypeGift, 10, 1, now.Add(-time.Hour), now.Add(time.Hour))
			},
			wantUses: 1,
		},
		{
			name: "正常系: 無制限コード",
			setup: func() *RedemptionCode {
				return ReconstructRedemptionCode("CODE", CodeTypeEvent, 10, 0, 500, now.Add(-time.Hour), now.Add(time.Hour), CodeStatusActive, now, now)
			},
			wantUses: 501,
		},
		{
			name: "異常系: 使用上限",
			setup: func() *RedemptionCode {
				return ReconstructRedemptionCode("CODE", CodeTypeGift, 10, 1, 1, now.Add(-time.Hour), now.Add(time.Hour), CodeStatusActive, now, now)
			},
			wantError: ErrCodeMaxUsesReached,
			wantUses:  1,
		},
		{
			name: "異常系: 期限切れ",
			setup: func() *RedemptionCode {
				return MustNewRedemptionCode("CODE", CodeTypeGift, 10, 0, now.Add(-2*time.Hour), now.Add(-time.Hour))
			},
			wantError: ErrCodeExpired,
		},
		{
			name: "異常系: 有効期間前",
			setup: func() *RedemptionCode {
				return MustNewRedemptionCode("CODE", CodeTypeGift, 10, 0, now.Add(time.Hour), now.Add(2*time.Hour))
			},
			wantError: ErrCodeNotYetValid,
		},
		{
			name: "異常系: 無効化済み",
			setup: func() *RedemptionCode {
				rc := MustNewRedemptionCode("CODE", CodeTypeGift, 10, 0, now.Add(-time.Hour), now.Add(time.Hour))
				rc.Disable()
				return rc
			},
			wantError: ErrCodeDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := tt.setup()
			err := rc.Redeem(now)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantUses, rc.CurrentUses())
		})
	}
}

func TestCodeKinds(t *testing.T) {
	for _, s := range []string{"promotion", "gift", "event"} {
		ct, err := NewCodeType(s)
		require.NoError(t, err)
		assert.Equal(t, s, ct.String())
	}
	_, err := NewCodeType("referral")
	assert.Error(t, err)

	cs, err := NewCodeStatus("expired")
	require.NoError(t, err)
	assert.False(t, cs.IsActive())
	_, err = NewCodeStatus("used")
	assert.Error(t, err)
}
