package devserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/appclient/internal/auth"
	"github.com/hitoshi/appclient/internal/middleware"
	"github.com/hitoshi/appclient/internal/model"
)

// maxRequestBody はリクエストボディの最大サイズ（1MB）。
const maxRequestBody = 1 << 20

// loginResponse はログインエンドポイントのレスポンス。
type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id"`
}

// identityResponse はプロフィールのidentity要素。
type identityResponse struct {
	ID           string `json:"id"`
	ProviderType string `json:"provider_type"`
}

// profileResponse はプロフィールエンドポイントのレスポンス。
type profileResponse struct {
	UserID     string             `json:"user_id"`
	Type       string             `json:"type"`
	Identities []identityResponse `json:"identities"`
	Data       map[string]string  `json:"data"`
}

// callRequest は関数呼び出しのリクエストボディ。
type callRequest struct {
	Name      string `json:"name"`
	Arguments []any  `json:"arguments"`
}

// handleHealth はヘルスチェックに応答する。
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogin はプロバイダーごとのログインを処理する。
// POST /api/client/v2.0/app/{appID}/auth/providers/{provider}/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.checkAppID(w, r) {
		return
	}
	provider := chi.URLParam(r, "provider")

	// 1. materialのデコード
	material := map[string]string{}
	if err := decodeBody(r, &material); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorCodeBadRequest, err.Error())
		return
	}

	// 2. プロバイダーごとのユーザー解決
	var user *userRecord
	switch provider {
	case auth.ProviderAnonymous:
		user = s.store.CreateUser(model.UserTypeNormal, auth.ProviderTypeAnonymous, uuid.NewString(), nil)

	case auth.ProviderEmailPassword:
		email, password := material["username"], material["password"]
		if email == "" || password == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorCodeBadRequest, "username and password are required")
			return
		}
		if !s.store.CheckPassword(email, password) {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrorCodeInvalidPassword, "invalid username/password")
			return
		}
		user = s.store.FindByIdentity(auth.ProviderEmailPassword, email)

	case auth.ProviderAPIKey:
		user = s.store.FindByAPIKey(material["key"])
		if user == nil {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrorCodeAuthError, "invalid API key")
			return
		}

	default:
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrorCodeProviderNotFound,
			fmt.Sprintf("authentication provider not found: %s", provider))
		return
	}

	// 3. トークン発行
	accessToken, _, err := s.tokens.IssueAccess(user.ID, userData(user))
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", provider),
	)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  accessToken,
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		DeviceID:     uuid.NewString(),
	})
}

// handleProfile はログイン中ユーザーのプロフィールを返す。
// GET /api/client/v2.0/auth/profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	identities := make([]identityResponse, 0, len(user.Identities))
	for _, id := range user.Identities {
		identities = append(identities, identityResponse{ID: id.UserID, ProviderType: id.ProviderType})
	}

	writeJSON(w, http.StatusOK, profileResponse{
		UserID:     user.ID,
		Type:       string(user.Type),
		Identities: identities,
		Data:       user.Data,
	})
}

// handleCallFunction は登録済み関数を実行する。
// POST /api/client/v2.0/app/{appID}/functions/call
func (s *Server) handleCallFunction(w http.ResponseWriter, r *http.Request) {
	if !s.checkAppID(w, r) {
		return
	}
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req callRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorCodeBadRequest, err.Error())
		return
	}

	fn, ok := s.functions.Lookup(req.Name)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrorCodeFunctionNotFound,
			fmt.Sprintf("function not found: '%s'", req.Name))
		return
	}

	if req.Arguments == nil {
		req.Arguments = []any{}
	}
	result, err := fn(r.Context(), Call{UserID: user.ID, Arguments: req.Arguments})
	if err != nil {
		s.logger.Warn("function returned error",
			slog.String("function", req.Name),
			slog.String("error", err.Error()),
		)
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrorCodeFunctionExecution, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// checkAppID はパスのappIDがエミュレーターのappIDと一致するかを確認する。
func (s *Server) checkAppID(w http.ResponseWriter, r *http.Request) bool {
	if chi.URLParam(r, "appID") != s.appID {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrorCodeAppNotFound,
			fmt.Sprintf("cannot find app using Client App ID '%s'", chi.URLParam(r, "appID")))
		return false
	}
	return true
}

// currentUser は認証済みユーザーをストアから取得する。
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*userRecord, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrorCodeInvalidSession, "must authenticate first")
		return nil, false
	}
	user := s.store.FindByID(userID)
	if user == nil {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrorCodeInvalidSession, "user no longer exists")
		return nil, false
	}
	return user, true
}

// userData はアクセストークンのuser_dataクレームを構築する。
func userData(user *userRecord) map[string]any {
	if len(user.Data) == 0 {
		return nil
	}
	data := make(map[string]any, len(user.Data))
	for k, v := range user.Data {
		data[k] = v
	}
	return data
}

// decodeBody はJSONリクエストボディをデコードする。空のボディは許容する。
func decodeBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return fmt.Errorf("malformed JSON at offset %d", syntaxErr.Offset)
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
