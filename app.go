// Package appclient はリモートアプリケーションプラットフォームのGoクライアントSDK。
//
// アプリIDからAppを生成し、Credentialsでログインした後、
// Functionsからバックエンドに登録された関数を呼び出す。
//
//	app, err := appclient.New("my-app-id")
//	user, err := app.Login(ctx, appclient.Anonymous())
//	result, err := app.Functions().Call(ctx, "sum", 1, 2)
package appclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/appclient/internal/auth"
	"github.com/hitoshi/appclient/internal/function"
	applogger "github.com/hitoshi/appclient/internal/logger"
	"github.com/hitoshi/appclient/internal/metrics"
	"github.com/hitoshi/appclient/internal/model"
	"github.com/hitoshi/appclient/internal/security"
	"github.com/hitoshi/appclient/internal/transport"
	"golang.org/x/time/rate"
)

// DefaultBaseURL はAppConfiguration未指定時の接続先。
const DefaultBaseURL = "https://services.cloud.mongodb.com"

// defaultRequestTimeout はHTTPクライアント未指定時のリクエストタイムアウト。
const defaultRequestTimeout = 10 * time.Second

// AppConfiguration はAppの接続設定。
type AppConfiguration struct {
	// BaseURL はバックエンドのベースURL。全リクエストはこのURLを起点に送信される。
	BaseURL string
}

// App はリモートアプリケーションへのハンドル。
// 複数のgoroutineから同時に利用できる。
type App struct {
	id        string
	config    AppConfiguration
	logger    *slog.Logger
	auth      *auth.Service
	functions *function.Factory
}

// New はアプリIDからAppを生成する。
// baseURLが不正な場合（http/https以外、ホストなし）はエラーを返す。
func New(id string, opts ...Option) (*App, error) {
	if id == "" {
		return nil, model.NewInvalidArgumentError("app id is required")
	}

	o := options{
		config:         AppConfiguration{BaseURL: DefaultBaseURL},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = applogger.Discard()
	}
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}

	// 1. 接続先の検証
	guard := security.NewEndpointGuard(o.blockPrivateNetworks)
	baseURL, err := guard.Validate(o.config.BaseURL)
	if err != nil {
		apiErr := model.NewInvalidArgumentError("invalid base URL")
		apiErr.Err = err
		return nil, apiErr
	}

	// 2. トランスポートの構築
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = guard.HTTPClient(baseURL, o.requestTimeout)
	}
	var limiter *rate.Limiter
	if o.rateLimit > 0 {
		limiter = rate.NewLimiter(o.rateLimit, max(o.rateBurst, 1))
	}
	client := transport.NewClient(transport.Config{
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		Logger:     o.logger,
		Metrics:    o.metrics,
		Limiter:    limiter,
	})

	// 3. 認証と関数呼び出しの構築
	authService := auth.NewService(client, id, o.logger, o.metrics)
	functions := function.NewFactory(client, authService, id, o.logger, o.metrics)

	o.logger.Debug("app initialized",
		slog.String("app_id", id),
		slog.String("base_url", baseURL.String()),
		slog.Bool("block_private_networks", guard.BlocksPrivateNetworks()),
	)

	return &App{
		id:        id,
		config:    AppConfiguration{BaseURL: baseURL.String()},
		logger:    o.logger,
		auth:      authService,
		functions: functions,
	}, nil
}

// ID はNewに渡されたアプリIDをそのまま返す。
func (a *App) ID() string {
	return a.id
}

// Configuration は正規化済みの接続設定を返す。
func (a *App) Configuration() AppConfiguration {
	return a.config
}

// Functions はリモート関数の呼び出しを返す。
// ログイン前に呼び出した関数はErrNotLoggedInで失敗する。
func (a *App) Functions() *FunctionFactory {
	return a.functions
}

// Login はCredentialsでログインし、認証済みユーザーを返す。
// 成功時はCurrentUserを置き換え、失敗時は変更しない。
// 1回の呼び出しにつき1回だけ試行する。
func (a *App) Login(ctx context.Context, creds Credentials) (*User, error) {
	return a.auth.Login(ctx, creds)
}

// CurrentUser はログイン中ユーザーを返す。ログイン前はnilを返す。
func (a *App) CurrentUser() *User {
	return a.auth.CurrentUser()
}

// Option はNewのオプション。
type Option func(*options)

type options struct {
	config               AppConfiguration
	httpClient           *http.Client
	requestTimeout       time.Duration
	logger               *slog.Logger
	metrics              metrics.Recorder
	rateLimit            rate.Limit
	rateBurst            int
	blockPrivateNetworks bool
}

// WithConfiguration は接続設定を指定する。
func WithConfiguration(cfg AppConfiguration) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithHTTPClient はリクエストに使うHTTPクライアントを指定する。
// 指定した場合、WithRequestTimeoutとWithBlockPrivateNetworksのクライアント設定は適用されない。
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithRequestTimeout はデフォルトHTTPクライアントのタイムアウトを指定する。
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithLogger はSDKのログ出力先を指定する。未指定の場合はログを出力しない。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics はメトリクスの記録先を指定する。
func WithMetrics(recorder MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = recorder
	}
}

// WithRateLimit はクライアント側のリクエスト流量を制限する。
// limitが0以下の場合は制限しない。
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.rateLimit = limit
		o.rateBurst = burst
	}
}

// WithBlockPrivateNetworks はプライベートネットワークへの接続を遮断する。
func WithBlockPrivateNetworks(block bool) Option {
	return func(o *options) {
		o.blockPrivateNetworks = block
	}
}
