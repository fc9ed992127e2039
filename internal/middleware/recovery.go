package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー（エミュレーター上の関数を含む）のpanicを捕捉し、
// プラットフォーム形式の500レスポンスに変換するミドルウェアを生成する。
// ロギングミドルウェアの内側に置くと、panicしたリクエストも500として記録される。
// レスポンスの書き込み開始後にpanicした場合はボディを追記しない。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				args := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if entry := requestLogFromContext(r.Context()); entry != nil && entry.currentUserID() != "" {
					args = append(args, slog.String("user_id", entry.currentUserID()))
				}
				args = append(args, slog.String("stack", string(debug.Stack())))
				logger.Error("panic recovered", args...)

				if sr, ok := w.(*statusRecorder); ok && sr.written {
					return
				}
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
