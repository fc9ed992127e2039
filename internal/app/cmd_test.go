package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"empty defaults to help", []string{}, CommandHelp},
		{"login", []string{"login", "anon-user"}, CommandLogin},
		{"call", []string{"call", "sum", "1"}, CommandCall},
		{"serve", []string{"serve"}, CommandServe},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"unknown defaults to help", []string{"migrate"}, CommandHelp},
		{"ignores extra args", []string{"serve", "--flag", "value"}, CommandServe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

// TestRun_DispatchesHealthcheck はhealthcheckが設定読み込みなしでDEV_SERVER_PORTへ問い合わせることを検証する。
func TestRun_DispatchesHealthcheck(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	// APP_IDが無くても動作すること
	t.Setenv("APP_ID", "")
	t.Setenv("DEV_SERVER_PORT", u.Port())

	var stdout, stderr bytes.Buffer
	if err := Run(&stdout, &stderr, []string{"healthcheck"}); err != nil {
		t.Fatalf("Run(healthcheck) error = %v", err)
	}
	if gotPath != "/healthz" {
		t.Errorf("path = %q, want /healthz", gotPath)
	}

	ts.Close()
	if err := Run(&stdout, &stderr, []string{"healthcheck"}); err == nil {
		t.Error("Run(healthcheck) error = nil after the server stopped")
	}
}
