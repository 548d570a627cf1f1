package purchase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-ledger/internal/domain/credit"
)

func TestNewPurchase(t *testing.T) {
	p, err := NewPurchase("order-1", "user123", "pro", 30)
	require.NoError(t, err)

	assert.Equal(t, "order-1", p.OrderID())
	assert.Equal(t, "user123", p.UserID())
	assert.Equal(t, "pro", p.PackageID())
	assert.Equal(t, int64(30), p.Credits())
	assert.Equal(t, StatusPending, p.Status())
	assert.WithinDuration(t, time.Now(), p.CreatedAt(), time.Second)
}

func TestNewPurchase_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		orderID   string
		userID    string
		packageID string
		credits   int64
		wantError error
	}{
		{name: "異常系: 注文IDが空", orderID: "", userID: "user123", packageID: "pro", credits: 30, wantError: ErrInvalidPurchase},
		{name: "異常系: ユーザーIDが不正", orderID: "o", userID: "", packageID: "pro", credits: 30, wantError: credit.ErrInvalidUserID},
		{name: "異常系: クレジット数が0", orderID: "o", userID: "user123", packageID: "pro", credits: 0, wantError: credit.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPurchase(tt.orderID, tt.userID, tt.packageID, tt.credits)
			assert.ErrorIs(t, err, tt.wantError)
		})
	}
}

func TestPurchase_Complete(t *testing.T) {
	p := MustNewPurchase("order-1", "user123", "pro", 30)

	require.NoError(t, p.Complete())
	assert.True(t, p.IsCompleted())

	// 二重完了はエラー
	assert.ErrorIs(t, p.Complete(), ErrPurchaseAlreadyProcessed)
}

func TestParseCatalog(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Catalog
		wantErr bool
	}{
		{name: "正常系: 複数パッケージ", input: "starter:10, pro:30,max:100", want: Catalog{"starter": 10, "pro": 30, "max": 100}},
		{name: "異常系: 区切りなし", input: "starter10", wantErr: true},
		{name: "異常系: 数値でない", input: "starter:ten", wantErr: true},
		{name: "異常系: 空", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCatalog(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog_Credits(t *testing.T) {
	c := Catalog{"pro": 30}
	got, err := c.Credits("pro")
	require.NoError(t, err)
	assert.Equal(t, int64(30), got)

	_, err = c.Credits("gold")
	assert.ErrorIs(t, err, ErrUnknownPackage)
}
