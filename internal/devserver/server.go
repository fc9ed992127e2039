// Package devserver はSDKとCLIをローカルで動作確認するためのプラットフォームエミュレーターを提供する。
//
// ログイン、プロフィール取得、関数呼び出しの3エンドポイントを実装し、
// エラーはプラットフォームと同じ {error, error_code, link} 形式で返す。
package devserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	applogger "github.com/hitoshi/appclient/internal/logger"
	"github.com/hitoshi/appclient/internal/metrics"
	"github.com/hitoshi/appclient/internal/middleware"
)

const (
	// defaultAccessTTL はアクセストークンのデフォルト有効期間。
	defaultAccessTTL = 30 * time.Minute
	// tokenIssuer はアクセストークンのissクレーム。
	tokenIssuer = "appclient-devserver"
)

// Config はServerの設定。
type Config struct {
	AppID      string
	SigningKey []byte
	AccessTTL  time.Duration
	Logger     *slog.Logger
	Metrics    metrics.Recorder
	// CORSAllowedOrigin が空の場合はCORSヘッダーを付与しない。
	CORSAllowedOrigin string
	// LoginRateLimit はログインエンドポイントのクライアントごとの流量制限。
	// ゼロ値の場合はmiddleware.DefaultRateLimiterConfigを使う。
	LoginRateLimit middleware.RateLimiterConfig
}

// Server はプラットフォームエミュレーター。
type Server struct {
	appID     string
	store     *Store
	functions *Registry
	tokens    *TokenIssuer
	limiter   *middleware.RateLimiter
	logger    *slog.Logger
	metrics   metrics.Recorder
	handler   http.Handler
}

// New はServerを生成する。Closeで後始末が必要。
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = applogger.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.LoginRateLimit.Rate <= 0 {
		cfg.LoginRateLimit = middleware.DefaultRateLimiterConfig()
	}

	tokens, err := NewTokenIssuer(cfg.SigningKey, tokenIssuer, cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	if len(cfg.SigningKey) == 0 {
		cfg.Logger.Warn("DEV_SIGNING_KEY is not set; using an ephemeral signing key")
	}

	s := &Server{
		appID:     cfg.AppID,
		store:     NewStore(),
		functions: NewRegistry(),
		tokens:    tokens,
		limiter:   middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.Logger),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	s.handler = s.routes(cfg.CORSAllowedOrigin)
	return s, nil
}

// routes はchi.Routerを構成する。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → Metrics → CORS → (ログイン: RateLimit) / (認証必須: BearerAuth)
//
// BearerAuthで確定したユーザーIDとエラーレスポンスのerror_codeはリクエストログに記録される。
func (s *Server) routes(corsOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(s.logger))
	r.Use(middleware.NewRecoveryMiddleware(s.logger))
	r.Use(middleware.NewMetricsMiddleware(s.metrics))
	r.Use(middleware.NewCORSMiddleware(corsOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrorCodeNotFound, "not found")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/client/v2.0", func(r chi.Router) {
		r.With(s.limiter.Middleware(middleware.ClientIPKey)).
			Post("/app/{appID}/auth/providers/{provider}/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerAuthMiddleware(s.tokens, s.logger))
			r.Get("/auth/profile", s.handleProfile)
			r.Post("/app/{appID}/functions/call", s.handleCallFunction)
		})
	})

	return r
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Functions は関数レジストリを返す。
func (s *Server) Functions() *Registry {
	return s.functions
}

// Store はユーザーストアを返す。
func (s *Server) Store() *Store {
	return s.store
}

// Close はバックグラウンド処理を停止する。
func (s *Server) Close() {
	s.limiter.Stop()
}
