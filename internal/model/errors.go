package model

import (
	"fmt"
	"net/http"
)

// ErrorKind はエラーの原因カテゴリ。
type ErrorKind string

const (
	KindNetwork           ErrorKind = "network"
	KindAuthentication    ErrorKind = "authentication"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindFunctionNotFound  ErrorKind = "function_not_found"
	KindServer            ErrorKind = "server"
	KindContractViolation ErrorKind = "contract_violation"
	KindNotLoggedIn       ErrorKind = "not_logged_in"
)

// Error はSDKが返す統一エラー。
// errors.Isでカテゴリ別のセンチネル値と比較できる。
type Error struct {
	Kind       ErrorKind // 原因カテゴリ
	Code       string    // バックエンドのerror_code、またはSDK定義のコード
	Message    string    // エラーメッセージ
	StatusCode int       // HTTPステータス（レスポンスがない場合は0）
	Link       string    // バックエンドが返したログへのリンク
	Err        error     // 下位のエラー
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap は下位のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Is はカテゴリ単位での比較を行う。
// targetにCodeが設定されている場合はCodeも一致する必要がある。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// カテゴリ別のセンチネルエラー。errors.Isの比較対象として使用する。
var (
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrAuthentication    = &Error{Kind: KindAuthentication}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrFunctionNotFound  = &Error{Kind: KindFunctionNotFound}
	ErrServer            = &Error{Kind: KindServer}
	ErrContractViolation = &Error{Kind: KindContractViolation}
	ErrNotLoggedIn       = &Error{Kind: KindNotLoggedIn}
)

// 定義済みエラーコード
const (
	ErrCodeNetwork           = "NETWORK_ERROR"
	ErrCodeInvalidArgument   = "INVALID_ARGUMENT"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeFunctionNotFound  = "FunctionNotFound"
	ErrCodeServer            = "SERVER_ERROR"
	ErrCodeContractViolation = "CONTRACT_VIOLATION"
	ErrCodeNotLoggedIn       = "NOT_LOGGED_IN"
	ErrCodeReservedName      = "RESERVED_FUNCTION_NAME"
)

// NewNetworkError は通信失敗エラーを生成する。
func NewNetworkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Code:    ErrCodeNetwork,
		Message: "request to backend failed",
		Err:     err,
	}
}

// NewAuthenticationError は認証失敗エラーを生成する。
func NewAuthenticationError(message string) *Error {
	return &Error{
		Kind:       KindAuthentication,
		Code:       ErrCodeAuthFailed,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewInvalidArgumentError は引数不正エラーを生成する。
func NewInvalidArgumentError(message string) *Error {
	return &Error{
		Kind:    KindInvalidArgument,
		Code:    ErrCodeInvalidArgument,
		Message: message,
	}
}

// NewReservedFunctionNameError は予約済みの関数名が指定された場合のエラーを生成する。
func NewReservedFunctionNameError(name string) *Error {
	return &Error{
		Kind:    KindInvalidArgument,
		Code:    ErrCodeReservedName,
		Message: fmt.Sprintf("%q is reserved and cannot be used as a function name", name),
	}
}

// NewFunctionNotFoundError はリモート関数が存在しない場合のエラーを生成する。
func NewFunctionNotFoundError(name string) *Error {
	return &Error{
		Kind:       KindFunctionNotFound,
		Code:       ErrCodeFunctionNotFound,
		Message:    fmt.Sprintf("function not found: %s", name),
		StatusCode: http.StatusNotFound,
	}
}

// NewServerError はバックエンド内部エラーを生成する。
func NewServerError(statusCode int, message string) *Error {
	return &Error{
		Kind:       KindServer,
		Code:       ErrCodeServer,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewContractViolationError はレスポンスが契約に反する場合のエラーを生成する。
func NewContractViolationError(message string) *Error {
	return &Error{
		Kind:    KindContractViolation,
		Code:    ErrCodeContractViolation,
		Message: message,
	}
}

// NewNotLoggedInError はログイン前に認証必須の操作を行った場合のエラーを生成する。
func NewNotLoggedInError() *Error {
	return &Error{
		Kind:    KindNotLoggedIn,
		Code:    ErrCodeNotLoggedIn,
		Message: "no user is logged in",
	}
}
