package appclient

import (
	"github.com/hitoshi/appclient/internal/auth"
	"github.com/hitoshi/appclient/internal/function"
	"github.com/hitoshi/appclient/internal/metrics"
	"github.com/hitoshi/appclient/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	// User はログイン成功時に返される認証済みユーザー。
	User = model.User
	// UserIdentity は認証プロバイダーごとの識別情報。
	UserIdentity = model.UserIdentity
	// UserProfile はユーザーのプロフィール。
	UserProfile = model.UserProfile
	// UserType はアカウント種別。
	UserType = model.UserType
	// Credentials はログインに使う認証情報。
	Credentials = model.Credentials

	// FunctionFactory はリモート関数の呼び出しを提供する。
	FunctionFactory = function.Factory
	// Func は名前で束縛されたリモート関数。
	Func = function.Func

	// MetricsRecorder はSDKのメトリクス記録先。
	MetricsRecorder = metrics.Recorder

	// Error はSDKが返すエラー。errors.Isでカテゴリ別のセンチネルと比較できる。
	Error = model.Error
	// ErrorKind はエラーの原因カテゴリ。
	ErrorKind = model.ErrorKind
)

const (
	UserTypeNormal = model.UserTypeNormal
	UserTypeServer = model.UserTypeServer
)

// errors.Isの比較対象となるセンチネルエラー。
var (
	ErrNetwork           = model.ErrNetwork
	ErrAuthentication    = model.ErrAuthentication
	ErrInvalidArgument   = model.ErrInvalidArgument
	ErrFunctionNotFound  = model.ErrFunctionNotFound
	ErrServer            = model.ErrServer
	ErrContractViolation = model.ErrContractViolation
	ErrNotLoggedIn       = model.ErrNotLoggedIn
)

// NewPrometheusMetrics はregに登録されるPrometheusのMetricsRecorderを生成する。
func NewPrometheusMetrics(reg prometheus.Registerer) MetricsRecorder {
	return metrics.NewCollector(reg)
}

// NewCredentials は任意のプロバイダー用のCredentialsを生成する。
// materialはコピーされ、生成後に変更できない。
func NewCredentials(providerName, providerType string, material map[string]string) Credentials {
	return model.NewCredentials(providerName, providerType, material)
}

// Anonymous は匿名ログイン用のCredentialsを返す。
func Anonymous() Credentials { return auth.Anonymous() }

// EmailPassword はメールアドレスとパスワードのCredentialsを返す。
func EmailPassword(email, password string) Credentials { return auth.EmailPassword(email, password) }

// APIKey はAPIキーのCredentialsを返す。
func APIKey(key string) Credentials { return auth.APIKey(key) }

// Google はGoogle認可コードのCredentialsを返す。
func Google(authCode string) Credentials { return auth.Google(authCode) }

// Facebook はFacebookアクセストークンのCredentialsを返す。
func Facebook(accessToken string) Credentials { return auth.Facebook(accessToken) }

// Apple はSign in with AppleのIDトークンのCredentialsを返す。
func Apple(idToken string) Credentials { return auth.Apple(idToken) }

// JWT はカスタムJWTのCredentialsを返す。
func JWT(token string) Credentials { return auth.JWT(token) }

// Function はカスタム認証関数のCredentialsを返す。
func Function(payload map[string]string) Credentials { return auth.Function(payload) }
