package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponseBody はプラットフォーム互換のエラーレスポンス形式。
// SDKのtransport層はerror_codeとHTTPステータスからエラーカテゴリを判別する。
type ErrorResponseBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Link      string `json:"link,omitempty"`
}

// プラットフォームが返すerror_code
const (
	ErrorCodeInvalidSession    = "InvalidSession"
	ErrorCodeInvalidPassword   = "InvalidPassword"
	ErrorCodeAuthError         = "AuthError"
	ErrorCodeProviderNotFound  = "AuthProviderNotFound"
	ErrorCodeAppNotFound       = "AppNotFound"
	ErrorCodeNotFound          = "NotFound"
	ErrorCodeFunctionNotFound  = "FunctionNotFound"
	ErrorCodeFunctionExecution = "FunctionExecutionError"
	ErrorCodeBadRequest        = "BadRequest"
	ErrorCodeTooManyRequests   = "TooManyRequests"
	ErrorCodeInternal          = "InternalServerError"
)

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// error_codeはリクエストログに記録される。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	if rec, ok := w.(errorCodeRecorder); ok {
		rec.recordErrorCode(body.ErrorCode)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteError はメッセージとerror_codeからエラーレスポンスを書き込む。
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorResponse(w, statusCode, ErrorResponseBody{
		Error:     message,
		ErrorCode: errorCode,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, ErrorCodeInternal, "internal server error")
}
