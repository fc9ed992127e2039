// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// requestLogContextKey はリクエストログのエントリを格納するためのキー。
	requestLogContextKey = contextKey("request_log")
)

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
// 有効なトークンの場合はユーザーIDを返す。
type TokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewBearerAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			token, ok := BearerToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, ErrorCodeInvalidSession, "must authenticate first")
				return
			}

			// 2. トークンの有効性を検証
			userID, err := verifier.VerifyAccessToken(token)
			if err != nil {
				logger.Debug("access token rejected",
					slog.String("error", err.Error()),
				)
				WriteError(w, http.StatusUnauthorized, ErrorCodeInvalidSession, "invalid session")
				return
			}

			// 3. 認証済みユーザーIDをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithUserID はユーザーIDを格納したコンテキストを返す。
// 外側のロギングミドルウェアのリクエストログにもユーザーIDを記録する。
func WithUserID(ctx context.Context, userID string) context.Context {
	if entry := requestLogFromContext(ctx); entry != nil {
		entry.setUserID(userID)
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ユーザーIDが存在しない場合はエラーを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
