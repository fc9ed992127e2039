package transport

import (
	"net/http"

	"github.com/hitoshi/appclient/internal/model"
)

// authErrorCodes は認証失敗として扱うバックエンドのerror_code。
var authErrorCodes = map[string]bool{
	"AuthError":             true,
	"InvalidPassword":       true,
	"InvalidSession":        true,
	"MissingAuthReq":        true,
	"UserDisabled":          true,
	"UserNotFound":          true,
	"AuthProviderNotFound":  true,
	"InvalidAuthentication": true,
}

// Classify はHTTPステータスコードとerror_codeをエラーカテゴリに分類する。
// error_codeで判別できる場合はステータスコードより優先する。
func Classify(statusCode int, errorCode string) model.ErrorKind {
	switch {
	case errorCode == model.ErrCodeFunctionNotFound:
		return model.KindFunctionNotFound
	case authErrorCodes[errorCode]:
		return model.KindAuthentication
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return model.KindAuthentication
	case statusCode == http.StatusBadRequest || statusCode == http.StatusNotFound ||
		statusCode == http.StatusUnprocessableEntity || statusCode == http.StatusConflict:
		return model.KindInvalidArgument
	default:
		// 429、5xx、想定外のステータスはサーバー側の問題として扱う
		return model.KindServer
	}
}
