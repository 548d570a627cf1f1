package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	tok, err := NewStaticSource(" abc ").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = NewStaticSource("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestJWTSource_CachesUntilNearExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src := NewJWTSource("secret", "credit-ledger", "user123", time.Hour)
	src.now = func() time.Time { return now }

	first, err := src.Token(context.Background())
	require.NoError(t, err)
	userID, err := ParseUserIDAt("secret", first, now)
	require.NoError(t, err)
	assert.Equal(t, "user123", userID)

	now = now.Add(30 * time.Minute)
	second, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	now = now.Add(29*time.Minute + 30*time.Second)
	third, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestJWTSource_MissingSecret(t *testing.T) {
	_, err := NewJWTSource("", "credit-ledger", "user123", time.Hour).Token(context.Background())
	assert.Error(t, err)
}

func TestServerSource_Token(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/v1/auth/token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user123", body.UserID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{Token: "server-token", ExpiresIn: 3600, TokenType: "Bearer"})
	}))
	defer srv.Close()

	src := NewServerSource(srv.URL+"/", "user123", srv.Client())

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "server-token", tok)

	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	src.Forget()
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestServerSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewServerSource(srv.URL, "user123", srv.Client()).Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}
