package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/appclient/internal/model"
	"github.com/hitoshi/appclient/internal/transport"
)

// --- モック定義 ---

// mockDoer はパスごとにレスポンスを返すDoerのモック。
type mockDoer struct {
	responses map[string]string
	errs      map[string]error
	requests  []transport.Request
}

func (m *mockDoer) Do(_ context.Context, req transport.Request, out any) error {
	m.requests = append(m.requests, req)
	if err, ok := m.errs[req.Route]; ok {
		return err
	}
	body, ok := m.responses[req.Route]
	if !ok {
		return model.NewServerError(http.StatusInternalServerError, "unexpected route "+req.Route)
	}
	return json.Unmarshal([]byte(body), out)
}

// mockRecorder はログイン結果を記録するmetrics.Recorderのモック。
type mockRecorder struct {
	logins []bool
}

func (m *mockRecorder) RecordRequest(string, int, time.Duration) {}
func (m *mockRecorder) RecordLogin(_ string, ok bool) { m.logins = append(m.logins, ok) }
func (m *mockRecorder) RecordFunctionCall(string, bool, time.Duration) {}

const anonymousProfile = `{
	"user_id": "user-1",
	"type": "normal",
	"identities": [{"id": "anon-identity-1", "provider_type": "anonymous"}],
	"data": {}
}`

func newTestService(doer Doer, rec *mockRecorder, buf *bytes.Buffer) *Service {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewService(doer, "my-app-id", logger, rec)
}

func TestService_Login_Anonymous(t *testing.T) {
	doer := &mockDoer{responses: map[string]string{
		"login":   `{"access_token":"access-1","refresh_token":"refresh-1","user_id":"user-1","device_id":"device-1"}`,
		"profile": anonymousProfile,
	}}
	rec := &mockRecorder{}
	var buf bytes.Buffer
	svc := newTestService(doer, rec, &buf)

	user, err := svc.Login(context.Background(), Anonymous())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if user.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
	if user.ID != "user-1" || user.DeviceID != "device-1" || user.RefreshToken != "refresh-1" {
		t.Errorf("unexpected user: %+v", user)
	}
	if !user.HasIdentity("anonymous") {
		t.Errorf("expected anonymous identity, got %+v", user.Identities)
	}
	if user.Profile.UserType != model.UserTypeNormal {
		t.Errorf("UserType = %q, want normal", user.Profile.UserType)
	}
	if svc.CurrentUser() != user {
		t.Error("CurrentUser() should return the logged in user")
	}

	// リクエスト内容の検証
	if len(doer.requests) != 2 {
		t.Fatalf("request count = %d, want 2", len(doer.requests))
	}
	loginReq := doer.requests[0]
	if loginReq.Method != http.MethodPost {
		t.Errorf("login method = %s, want POST", loginReq.Method)
	}
	if loginReq.Path != "/api/client/v2.0/app/my-app-id/auth/providers/anon-user/login" {
		t.Errorf("login path = %s", loginReq.Path)
	}
	profileReq := doer.requests[1]
	if profileReq.BearerToken != "access-1" {
		t.Errorf("profile bearer = %q, want access-1", profileReq.BearerToken)
	}

	if len(rec.logins) != 1 || !rec.logins[0] {
		t.Errorf("recorded logins = %v, want [true]", rec.logins)
	}
}

func TestService_Login_MapsProfileFields(t *testing.T) {
	doer := &mockDoer{responses: map[string]string{
		"login": `{"access_token":"a","user_id":"u"}`,
		"profile": `{
			"type": "server",
			"identities": [{"id": "key-1", "provider_type": "api-key"}],
			"data": {
				"name": "Alice", "email": "alice@example.com", "picture_url": "https://img/a.png",
				"first_name": "Alice", "last_name": "Liddell", "gender": "female",
				"birthday": "1852-05-04", "min_age": "18", "max_age": "99"
			}
		}`,
	}}
	var buf bytes.Buffer
	svc := newTestService(doer, &mockRecorder{}, &buf)

	user, err := svc.Login(context.Background(), APIKey("secret"))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	want := model.UserProfile{
		Name: "Alice", Email: "alice@example.com", PictureURL: "https://img/a.png",
		FirstName: "Alice", LastName: "Liddell", Gender: "female",
		Birthday: "1852-05-04", MinAge: "18", MaxAge: "99",
		UserType: model.UserTypeServer,
	}
	if user.Profile != want {
		t.Errorf("Profile = %+v, want %+v", user.Profile, want)
	}
}

func TestService_Login_InvalidUserTypeIsContractViolation(t *testing.T) {
	doer := &mockDoer{responses: map[string]string{
		"login":   `{"access_token":"a","user_id":"u"}`,
		"profile": `{"type": "admin", "identities": [], "data": {}}`,
	}}
	rec := &mockRecorder{}
	var buf bytes.Buffer
	svc := newTestService(doer, rec, &buf)

	_, err := svc.Login(context.Background(), Anonymous())
	if !errors.Is(err, model.ErrContractViolation) {
		t.Fatalf("error = %v, want contract violation", err)
	}
	if svc.CurrentUser() != nil {
		t.Error("CurrentUser() should stay nil after failed login")
	}
	if len(rec.logins) != 1 || rec.logins[0] {
		t.Errorf("recorded logins = %v, want [false]", rec.logins)
	}
}

func TestService_Login_EmptyAccessToken(t *testing.T) {
	doer := &mockDoer{responses: map[string]string{
		"login": `{"user_id":"u"}`,
	}}
	var buf bytes.Buffer
	svc := newTestService(doer, &mockRecorder{}, &buf)

	_, err := svc.Login(context.Background(), Anonymous())
	if !errors.Is(err, model.ErrContractViolation) {
		t.Fatalf("error = %v, want contract violation", err)
	}
	if len(doer.requests) != 1 {
		t.Errorf("profile should not be requested without a token; requests = %d", len(doer.requests))
	}
}

func TestService_Login_BackendFailureKeepsPreviousUser(t *testing.T) {
	doer := &mockDoer{responses: map[string]string{
		"login":   `{"access_token":"first","user_id":"user-1"}`,
		"profile": anonymousProfile,
	}}
	var buf bytes.Buffer
	svc := newTestService(doer, &mockRecorder{}, &buf)

	first, err := svc.Login(context.Background(), Anonymous())
	if err != nil {
		t.Fatalf("first Login() error = %v", err)
	}

	doer.errs = map[string]error{"login": model.NewAuthenticationError("invalid username/password")}
	_, err = svc.Login(context.Background(), EmailPassword("alice@example.com", "wrong"))
	if !errors.Is(err, model.ErrAuthentication) {
		t.Fatalf("error = %v, want authentication error", err)
	}

	if svc.CurrentUser() != first {
		t.Error("failed login should not replace the current user")
	}
	token, err := svc.AccessToken()
	if err != nil || token != "first" {
		t.Errorf("AccessToken() = %q, %v; want first, nil", token, err)
	}
}

func TestService_Login_ReplacesUserOnEachSuccess(t *testing.T) {
	doer := &mockDoer{responses: map[string]string{
		"login":   `{"access_token":"a1","user_id":"user-1"}`,
		"profile": anonymousProfile,
	}}
	var buf bytes.Buffer
	svc := newTestService(doer, &mockRecorder{}, &buf)

	first, _ := svc.Login(context.Background(), Anonymous())
	doer.responses["login"] = `{"access_token":"a2","user_id":"user-2"}`
	second, err := svc.Login(context.Background(), Anonymous())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if first == second {
		t.Error("each login should produce a fresh user")
	}
	if svc.CurrentUser().AccessToken != "a2" {
		t.Errorf("current token = %q, want a2", svc.CurrentUser().AccessToken)
	}
}

func TestService_Login_RejectsInvalidProviderName(t *testing.T) {
	tests := []model.Credentials{
		model.NewCredentials("", "anonymous", nil),
		model.NewCredentials("bad/name", "anonymous", nil),
		model.NewCredentials("anon-user", "", nil),
	}

	for _, creds := range tests {
		t.Run(creds.ProviderName(), func(t *testing.T) {
			doer := &mockDoer{}
			var buf bytes.Buffer
			svc := newTestService(doer, &mockRecorder{}, &buf)

			_, err := svc.Login(context.Background(), creds)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Fatalf("error = %v, want invalid argument", err)
			}
			if len(doer.requests) != 0 {
				t.Errorf("no request should be sent; got %d", len(doer.requests))
			}
		})
	}
}

func TestService_AccessToken_NotLoggedIn(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(&mockDoer{}, &mockRecorder{}, &buf)

	if _, err := svc.AccessToken(); !errors.Is(err, model.ErrNotLoggedIn) {
		t.Errorf("error = %v, want not logged in", err)
	}
	if svc.CurrentUser() != nil {
		t.Error("CurrentUser() should be nil before login")
	}
}

func TestService_Login_ReadsJWTClaims(t *testing.T) {
	expiresAt := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserData: map[string]any{"plan": "pro"},
	})
	signed, err := token.SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	doer := &mockDoer{responses: map[string]string{
		"login":   `{"access_token":"` + signed + `","user_id":"user-1"}`,
		"profile": anonymousProfile,
	}}
	var buf bytes.Buffer
	svc := newTestService(doer, &mockRecorder{}, &buf)

	user, err := svc.Login(context.Background(), Anonymous())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !user.ExpiresAt.Equal(expiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", user.ExpiresAt, expiresAt)
	}
	if user.CustomData["plan"] != "pro" {
		t.Errorf("CustomData = %v, want plan=pro", user.CustomData)
	}
}

// TestService_Login_OverHTTP はtransport.Clientと組み合わせたログインフローを検証する。
func TestService_Login_OverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/client/v2.0/app/my-app-id/auth/providers/local-userpass/login":
			var material map[string]string
			if err := json.NewDecoder(r.Body).Decode(&material); err != nil {
				t.Errorf("failed to decode material: %v", err)
			}
			if material["username"] != "alice@example.com" || material["password"] != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid username/password","error_code":"InvalidPassword"}`))
				return
			}
			w.Write([]byte(`{"access_token":"tok","refresh_token":"ref","user_id":"u-1","device_id":"d-1"}`))
		case "/api/client/v2.0/auth/profile":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"user_id":"u-1","type":"normal","identities":[{"id":"i-1","provider_type":"local-userpass"}],"data":{"email":"alice@example.com"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	base, _ := url.Parse(server.URL)
	client := transport.NewClient(transport.Config{BaseURL: base, HTTPClient: server.Client()})
	var buf bytes.Buffer
	svc := newTestService(client, &mockRecorder{}, &buf)

	user, err := svc.Login(context.Background(), EmailPassword("alice@example.com", "pw"))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.Profile.Email != "alice@example.com" {
		t.Errorf("Email = %q", user.Profile.Email)
	}

	_, err = svc.Login(context.Background(), EmailPassword("alice@example.com", "wrong"))
	if !errors.Is(err, model.ErrAuthentication) {
		t.Fatalf("error = %v, want authentication error", err)
	}
}
