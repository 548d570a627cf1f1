package ledgerclient

// Outcome クレジット消費結果の種類
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeInsufficientFunds
	OutcomeTransientError
)

// String 文字列表現を返す
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInsufficientFunds:
		return "insufficient_funds"
	case OutcomeTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Scope 残高不足を判定した場所
type Scope string

const (
	ScopeLocal  Scope = "local"  // キャッシュで判定、ネットワーク呼び出しなし
	ScopeRemote Scope = "remote" // リモート台帳が拒否
)

// 呼び出し側に公開されるエラーコード
// 残高不足の2種以外は全てリトライ可能な汎用エラーとして扱う
const (
	CodeInsufficientFundsLocal  = "insufficient_funds_local"
	CodeInsufficientFundsServer = "insufficient_funds_server"
	CodeTimeout                 = "timeout"
	CodeCanceled                = "canceled"
	CodeUnauthorized            = "unauthorized"
	CodeMalformedResponse       = "malformed_response"
	CodeServerError             = "server_error"
	CodeNetworkError            = "network_error"
	CodeRejected                = "remote_rejected"
)

// Result クレジット消費の結果
type Result struct {
	Outcome    Outcome
	NewBalance int64 // 成功時のみ
	Scope      Scope // 残高不足時のみ
	Cause      error // 一時的エラー時のみ
	code       string
}

// Success 成功したかどうかを返す
func (r Result) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// IsInsufficientFunds 残高不足かどうかを返す
func (r Result) IsInsufficientFunds() bool {
	return r.Outcome == OutcomeInsufficientFunds
}

// ErrorCode エラーコードを返す（成功時は空文字列）
func (r Result) ErrorCode() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return ""
	case OutcomeInsufficientFunds:
		if r.Scope == ScopeLocal {
			return CodeInsufficientFundsLocal
		}
		return CodeInsufficientFundsServer
	default:
		if r.code == "" {
			return CodeNetworkError
		}
		return r.code
	}
}

func successResult(balance int64) Result {
	return Result{Outcome: OutcomeSuccess, NewBalance: balance}
}

func insufficientResult(scope Scope) Result {
	return Result{Outcome: OutcomeInsufficientFunds, Scope: scope}
}

func transientResult(cause error) Result {
	return Result{Outcome: OutcomeTransientError, Cause: cause, code: classify(cause)}
}

// TransientResult 原因エラーから一時的エラーの結果を作成
func TransientResult(cause error) Result {
	return transientResult(cause)
}
