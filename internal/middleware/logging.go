package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// errorCodeRecorder はWriteErrorResponseが書き込んだerror_codeを受け取る。
type errorCodeRecorder interface {
	recordErrorCode(code string)
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードとerror_codeを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
	errorCode  string
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// recordErrorCode はerror_codeを記録し、外側のstatusRecorderにも伝える。
func (sr *statusRecorder) recordErrorCode(code string) {
	sr.errorCode = code
	if inner, ok := sr.ResponseWriter.(errorCodeRecorder); ok {
		inner.recordErrorCode(code)
	}
}

// requestLog はロギングミドルウェアより内側で確定する値を受け渡す。
// 認証ミドルウェアはロギングの内側にあるため、ユーザーIDはここ経由で記録する。
type requestLog struct {
	mu     sync.Mutex
	userID string
}

func (l *requestLog) setUserID(userID string) {
	l.mu.Lock()
	l.userID = userID
	l.mu.Unlock()
}

func (l *requestLog) currentUserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID
}

func requestLogFromContext(ctx context.Context) *requestLog {
	entry, _ := ctx.Value(requestLogContextKey).(*requestLog)
	return entry
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_msに加え、マッチしたルートのroute、app_id、provider、
// 認証済みの場合のuser_id、エラーレスポンスのerror_codeを含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			entry := &requestLog{}
			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogContextKey, entry)))

			duration := time.Since(start)
			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
			}
			args = append(args, routeAttrs(r)...)

			if userID := entry.currentUserID(); userID != "" {
				args = append(args, slog.String("user_id", userID))
			} else if userID, err := UserIDFromContext(r.Context()); err == nil {
				args = append(args, slog.String("user_id", userID))
			}
			if rec.errorCode != "" {
				args = append(args, slog.String("error_code", rec.errorCode))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// routeAttrs はchiのルーティング結果からログ属性を構築する。
// routeはパスパラメータを含まないパターンで、appIDとproviderは個別の属性とする。
func routeAttrs(r *http.Request) []any {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}

	var attrs []any
	if pattern := rctx.RoutePattern(); pattern != "" {
		attrs = append(attrs, slog.String("route", pattern))
	}
	if appID := rctx.URLParam("appID"); appID != "" {
		attrs = append(attrs, slog.String("app_id", appID))
	}
	if provider := rctx.URLParam("provider"); provider != "" {
		attrs = append(attrs, slog.String("provider", provider))
	}
	return attrs
}
