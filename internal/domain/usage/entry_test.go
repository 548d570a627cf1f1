package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-ledger/internal/domain/credit"
)

func TestNewEntry(t *testing.T) {
	tests := []struct {
		name      string
		params    EntryParams
		wantError error
		checkFunc func(*testing.T, *Entry)
	}{
		{
			name: "正常系: 消費エントリ",
			params: EntryParams{
				EntryID:        "entry-1",
				UserID:         "user123",
				Type:           EntryTypeConsume,
				Amount:         1,
				BalanceBefore:  3,
				BalanceAfter:   2,
				Status:         EntryStatusCompleted,
				Action:         credit.ActionTypeJobAnalysis,
				IdempotencyKey: "key-1",
				AuditEmail:     "u@example.com",
			},
			checkFunc: func(t *testing.T, e *Entry) {
				assert.Equal(t, "entry-1", e.EntryID())
				assert.Equal(t, EntryTypeConsume, e.Type())
				assert.Equal(t, credit.ActionTypeJobAnalysis, e.Action())
				require.NotNil(t, e.IdempotencyKey())
				assert.Equal(t, "key-1", *e.IdempotencyKey())
				require.NotNil(t, e.AuditEmail())
				assert.Nil(t, e.Reference())
				assert.False(t, e.CreatedAt().IsZero())
			},
		},
		{
			name: "正常系: 購入エントリ（参照IDあり）",
			params: EntryParams{
				EntryID:       "entry-2",
				UserID:        "user123",
				Type:          EntryTypePurchase,
				Amount:        30,
				BalanceBefore: 0,
				BalanceAfter:  30,
				Status:        EntryStatusCompleted,
				Reference:     "order-9",
			},
			checkFunc: func(t *testing.T, e *Entry) {
				require.NotNil(t, e.Reference())
				assert.Equal(t, "order-9", *e.Reference())
				assert.Nil(t, e.IdempotencyKey())
				assert.True(t, e.Type().IsCredit())
			},
		},
		{
			name:      "異常系: 空のエントリID",
			params:    EntryParams{UserID: "user123", Amount: 1},
			wantError: ErrInvalidEntryID,
		},
		{
			name:      "異常系: 無効なユーザーID",
			params:    EntryParams{EntryID: "e", UserID: "", Amount: 1},
			wantError: ErrInvalidUserID,
		},
		{
			name:      "異常系: クレジット数が0",
			params:    EntryParams{EntryID: "e", UserID: "user123", Amount: 0},
			wantError: ErrInvalidAmount,
		},
		{
			name:      "異常系: マイナス残高",
			params:    EntryParams{EntryID: "e", UserID: "user123", Amount: 1, BalanceBefore: 0, BalanceAfter: -1},
			wantError: ErrBalanceOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEntry(tt.params)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			tt.checkFunc(t, got)
		})
	}
}

func TestEntryType_And_Status(t *testing.T) {
	for _, s := range []string{"consume", "grant", "purchase", "redeem"} {
		et, err := NewEntryType(s)
		require.NoError(t, err)
		assert.True(t, et.Valid())
	}
	_, err := NewEntryType("refund")
	assert.Error(t, err)
	assert.False(t, EntryTypeConsume.IsCredit())

	st, err := NewEntryStatus("rejected")
	require.NoError(t, err)
	assert.False(t, st.IsCompleted())
	_, err = NewEntryStatus("pending")
	assert.Error(t, err)
}
