package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"credit-ledger/internal/application/ledgerclient"
	"credit-ledger/internal/domain/credit"
	otelinfra "credit-ledger/internal/infrastructure/observability/otel"
)

// MockLedger モッククレジット台帳
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) UseCredit(ctx context.Context, req ledgerclient.ConsumeRequest) (ledgerclient.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ledgerclient.Result), args.Error(1)
}

type tokenFunc func(ctx context.Context) (string, error)

func (f tokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

func testLogger() *otelinfra.Logger {
	return otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"))
}

// resultFromRemote 実際のClientで結果を作る
func resultFromRemote(t *testing.T, seedBalance *int64, resp *ledgerclient.RemoteConsumeResponse, remoteErr error, token string) ledgerclient.Result {
	t.Helper()
	cache := ledgerclient.NewMemoryCache()
	if seedBalance != nil {
		_, err := cache.Set(context.Background(), "user123", *seedBalance)
		require.NoError(t, err)
	}
	remote := &stubRemote{resp: resp, err: remoteErr}
	client := ledgerclient.NewClient(cache, remote, testLogger(), ledgerclient.Config{})
	r, err := client.UseCredit(context.Background(), ledgerclient.ConsumeRequest{UserID: "user123", Amount: 1, AuthToken: token})
	require.NoError(t, err)
	return r
}

type stubRemote struct {
	resp *ledgerclient.RemoteConsumeResponse
	err  error
}

func (s *stubRemote) Consume(context.Context, ledgerclient.RemoteConsumeRequest) (*ledgerclient.RemoteConsumeResponse, error) {
	return s.resp, s.err
}

func (s *stubRemote) GetBalance(context.Context, string, string) (int64, error) { return 0, s.err }

func TestGate_Run(t *testing.T) {
	zero := int64(0)
	five := int64(5)

	tests := []struct {
		name        string
		result      func(t *testing.T) ledgerclient.Result
		useErr      error
		wantSurface Surface
		wantPaid    int32
	}{
		{
			name: "正常系: 消費成功で有料アクションを1回実行",
			result: func(t *testing.T) ledgerclient.Result {
				return resultFromRemote(t, &five, &ledgerclient.RemoteConsumeResponse{Success: true, NewBalance: 4}, nil, "token")
			},
			wantSurface: SurfaceNone,
			wantPaid:    1,
		},
		{
			name: "異常系: ローカル残高不足はアップセル",
			result: func(t *testing.T) ledgerclient.Result {
				return resultFromRemote(t, &zero, nil, nil, "token")
			},
			wantSurface: SurfaceUpsell,
		},
		{
			name: "異常系: サーバー残高不足はアップセル",
			result: func(t *testing.T) ledgerclient.Result {
				return resultFromRemote(t, &five, &ledgerclient.RemoteConsumeResponse{Success: false, Reason: ledgerclient.ReasonInsufficientFunds}, nil, "token")
			},
			wantSurface: SurfaceUpsell,
		},
		{
			name: "異常系: タイムアウトはエラー表示",
			result: func(t *testing.T) ledgerclient.Result {
				return resultFromRemote(t, &five, nil, context.DeadlineExceeded, "token")
			},
			wantSurface: SurfaceError,
		},
		{
			name: "異常系: 前提条件エラーは一時的エラーとして扱う",
			result: func(t *testing.T) ledgerclient.Result {
				return ledgerclient.Result{}
			},
			useErr:      ledgerclient.ErrInvalidUserID,
			wantSurface: SurfaceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := new(MockLedger)
			ledger.On("UseCredit", mock.Anything, mock.Anything).Return(tt.result(t), tt.useErr)

			g := NewGate(ledger, tokenFunc(func(context.Context) (string, error) { return "token", nil }), testLogger(), nil)

			var paid int32
			decision, err := g.Run(context.Background(), Request{UserID: "user123", Action: credit.ActionTypeNetworkingSearch}, func(context.Context) error {
				atomic.AddInt32(&paid, 1)
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, tt.wantSurface, decision.Surface)
			assert.Equal(t, tt.wantPaid, atomic.LoadInt32(&paid))
			assert.Equal(t, decision.Proceeded(), paid == 1)
		})
	}
}

func TestGate_Run_TokenFailureProceedsWithoutToken(t *testing.T) {
	ledger := new(MockLedger)
	ledger.On("UseCredit", mock.Anything, mock.MatchedBy(func(r ledgerclient.ConsumeRequest) bool {
		return r.AuthToken == "" && r.Amount == 1 && r.AuditEmail == "u@example.com"
	})).Return(ledgerclient.TransientResult(ledgerclient.ErrAuthTokenUnavailable), nil)

	g := NewGate(ledger, tokenFunc(func(context.Context) (string, error) {
		return "", errors.New("identity provider not configured")
	}), testLogger(), nil)

	called := false
	decision, err := g.Run(context.Background(), Request{UserID: "user123", Action: credit.ActionTypeEmailLookup, AuditEmail: "u@example.com"}, func(context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, SurfaceError, decision.Surface)
	assert.Equal(t, ledgerclient.CodeUnauthorized, decision.Result.ErrorCode())
	ledger.AssertExpectations(t)
}

func TestGate_Run_PaidActionErrorIsReturned(t *testing.T) {
	ledger := new(MockLedger)
	five := int64(5)
	ledger.On("UseCredit", mock.Anything, mock.Anything).Return(
		resultFromRemote(t, &five, &ledgerclient.RemoteConsumeResponse{Success: true, NewBalance: 4}, nil, "token"), nil)

	g := NewGate(ledger, nil, testLogger(), nil)
	paidErr := errors.New("llm unavailable")

	decision, err := g.Run(context.Background(), Request{UserID: "user123", Action: credit.ActionTypeJobAnalysis}, func(context.Context) error {
		return paidErr
	})

	assert.ErrorIs(t, err, paidErr)
	assert.True(t, decision.Proceeded())
	ledger.AssertNumberOfCalls(t, "UseCredit", 1)
}

func TestGate_Run_DoubleSpendGuard(t *testing.T) {
	ledger := new(MockLedger)
	five := int64(5)
	ledger.On("UseCredit", mock.Anything, mock.Anything).Return(
		resultFromRemote(t, &five, &ledgerclient.RemoteConsumeResponse{Success: true, NewBalance: 4}, nil, "token"), nil)

	g := NewGate(ledger, nil, testLogger(), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := g.Run(context.Background(), Request{UserID: "user123", Action: credit.ActionTypeJobAnalysis}, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
		assert.NoError(t, err)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start")
	}

	// 同じユーザー・アクションの二重実行は台帳に触れない
	decision, err := g.Run(context.Background(), Request{UserID: "user123", Action: credit.ActionTypeJobAnalysis}, func(context.Context) error {
		t.Fatal("duplicate paid action must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrActionPending)
	assert.Equal(t, SurfacePending, decision.Surface)

	// 別アクションは独立
	other, err := g.Run(context.Background(), Request{UserID: "user123", Action: credit.ActionTypeEmailLookup}, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, other.Proceeded())

	close(release)
	wg.Wait()
	ledger.AssertNumberOfCalls(t, "UseCredit", 2)

	// 完了後は再実行できる
	again, err := g.Run(context.Background(), Request{UserID: "user123", Action: credit.ActionTypeJobAnalysis}, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, again.Proceeded())
}

func TestGate_NoFreeLunch(t *testing.T) {
	// 任意の結果列に対し、有料アクションは直前の消費が成功した場合のみ実行される
	five := int64(5)
	zero := int64(0)
	sequence := []ledgerclient.Result{
		resultFromRemote(t, &five, &ledgerclient.RemoteConsumeResponse{Success: true, NewBalance: 4}, nil, "token"),
		resultFromRemote(t, &zero, nil, nil, "token"),
		resultFromRemote(t, &five, nil, errors.New("boom"), "token"),
		resultFromRemote(t, &five, &ledgerclient.RemoteConsumeResponse{Success: false, Reason: ledgerclient.ReasonInsufficientFunds}, nil, "token"),
		resultFromRemote(t, &five, &ledgerclient.RemoteConsumeResponse{Success: true, NewBalance: 3}, nil, "token"),
	}

	ledger := new(MockLedger)
	for _, r := range sequence {
		ledger.On("UseCredit", mock.Anything, mock.Anything).Return(r, nil).Once()
	}
	g := NewGate(ledger, nil, testLogger(), nil)

	for i, want := range sequence {
		ran := false
		_, err := g.Run(context.Background(), Request{UserID: "user123", Action: credit.ActionTypeJobAnalysis}, func(context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, want.Success(), ran, "step %d", i)
	}
}
