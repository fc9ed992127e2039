// Package auth はプロバイダー付きCredentialsによるログインフローと、
// ログイン中ユーザーの保持を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-playground/validator/v10"
	applogger "github.com/hitoshi/appclient/internal/logger"
	"github.com/hitoshi/appclient/internal/metrics"
	"github.com/hitoshi/appclient/internal/model"
	"github.com/hitoshi/appclient/internal/transport"
)

// profilePath はログイン中ユーザーのプロフィール取得エンドポイント。
const profilePath = "/api/client/v2.0/auth/profile"

// Doer はバックエンドへのリクエスト送信のインターフェース。
// transport.Clientの部分集合として定義する。
type Doer interface {
	Do(ctx context.Context, req transport.Request, out any) error
}

// loginRequest はログイン前に検証する項目。
// プロバイダー名はURLパスに埋め込むため区切り文字を許可しない。
type loginRequest struct {
	ProviderName string `validate:"required,max=64,excludesall=/?#%"`
	ProviderType string `validate:"required"`
}

// loginResponse はログインエンドポイントのレスポンス。
type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id"`
}

// profileResponse はプロフィールエンドポイントのレスポンス。
type profileResponse struct {
	UserID     string `json:"user_id"`
	Type       string `json:"type"`
	Identities []struct {
		ID           string `json:"id"`
		ProviderType string `json:"provider_type"`
	} `json:"identities"`
	Data struct {
		Name       string `json:"name"`
		Email      string `json:"email"`
		PictureURL string `json:"picture_url"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Gender     string `json:"gender"`
		Birthday   string `json:"birthday"`
		MinAge     string `json:"min_age"`
		MaxAge     string `json:"max_age"`
	} `json:"data"`
}

// Service はログインとログイン中ユーザーの管理を提供する。
type Service struct {
	client   Doer
	appID    string
	logger   *slog.Logger
	metrics  metrics.Recorder
	validate *validator.Validate

	mu      sync.RWMutex
	current *model.User
}

// NewService はServiceを生成する。
func NewService(client Doer, appID string, logger *slog.Logger, recorder metrics.Recorder) *Service {
	if logger == nil {
		logger = applogger.Discard()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		client:   client,
		appID:    appID,
		logger:   logger,
		metrics:  recorder,
		validate: validator.New(),
	}
}

// Login はCredentialsでログインし、認証済みユーザーを返す。
// 成功した場合のみログイン中ユーザーを置き換える。失敗時は直前の状態を維持する。
// リトライは行わず、1回の呼び出しにつき1回だけ試行する。
func (s *Service) Login(ctx context.Context, creds model.Credentials) (*model.User, error) {
	user, err := s.login(ctx, creds)
	s.metrics.RecordLogin(creds.ProviderType(), err == nil)
	if err != nil {
		s.logger.Warn("login failed",
			slog.String("provider_name", creds.ProviderName()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.mu.Lock()
	s.current = user
	s.mu.Unlock()

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider_name", creds.ProviderName()),
		slog.String("user_type", string(user.Profile.UserType)),
	)
	return user, nil
}

func (s *Service) login(ctx context.Context, creds model.Credentials) (*model.User, error) {
	// 1. ローカルで検証できる項目の確認（materialの内容はサーバー側で検証される）
	if err := s.validate.Struct(loginRequest{
		ProviderName: creds.ProviderName(),
		ProviderType: creds.ProviderType(),
	}); err != nil {
		apiErr := model.NewInvalidArgumentError("invalid credentials")
		apiErr.Err = err
		return nil, apiErr
	}

	// 2. プロバイダーのログインエンドポイントでトークンを取得
	var tokens loginResponse
	err := s.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   LoginPath(s.appID, creds.ProviderName()),
		Route:  "login",
		Body:   creds.Material(),
	}, &tokens)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, model.NewContractViolationError("login response has no access token")
	}

	// 3. アクセストークンでプロフィールを取得
	var profile profileResponse
	err = s.client.Do(ctx, transport.Request{
		Method:      http.MethodGet,
		Path:        profilePath,
		Route:       "profile",
		BearerToken: tokens.AccessToken,
	}, &profile)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}

	// 4. ユーザーの構築と検証
	user := buildUser(tokens, profile)
	if err := user.Profile.Validate(); err != nil {
		return nil, err
	}

	// JWTでないトークンも許容する
	if claims, err := ParseAccessToken(user.AccessToken); err == nil {
		user.ExpiresAt = claims.ExpiresAt
		user.CustomData = claims.UserData
	} else {
		s.logger.Debug("access token is not a JWT", slog.String("error", err.Error()))
	}

	return user, nil
}

// CurrentUser はログイン中ユーザーを返す。未ログインの場合はnilを返す。
func (s *Service) CurrentUser() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AccessToken はログイン中ユーザーのアクセストークンを返す。
func (s *Service) AccessToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", model.NewNotLoggedInError()
	}
	return s.current.AccessToken, nil
}

// LoginPath はプロバイダーのログインエンドポイントのパスを返す。
func LoginPath(appID, providerName string) string {
	return fmt.Sprintf("/api/client/v2.0/app/%s/auth/providers/%s/login",
		url.PathEscape(appID), url.PathEscape(providerName))
}

// buildUser はレスポンスからUserを構築する。
func buildUser(tokens loginResponse, profile profileResponse) *model.User {
	userID := tokens.UserID
	if userID == "" {
		userID = profile.UserID
	}

	identities := make([]model.UserIdentity, 0, len(profile.Identities))
	for _, id := range profile.Identities {
		identities = append(identities, model.UserIdentity{
			UserID:       id.ID,
			ProviderType: id.ProviderType,
		})
	}

	return &model.User{
		ID:           userID,
		Identities:   identities,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		DeviceID:     tokens.DeviceID,
		Profile: model.UserProfile{
			Name:       profile.Data.Name,
			Email:      profile.Data.Email,
			PictureURL: profile.Data.PictureURL,
			FirstName:  profile.Data.FirstName,
			LastName:   profile.Data.LastName,
			Gender:     profile.Data.Gender,
			Birthday:   profile.Data.Birthday,
			MinAge:     profile.Data.MinAge,
			MaxAge:     profile.Data.MaxAge,
			UserType:   model.UserType(profile.Type),
		},
	}
}
