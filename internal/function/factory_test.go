package function

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/appclient/internal/model"
	"github.com/hitoshi/appclient/internal/transport"
)

// --- モック定義 ---

type mockTokenSource struct {
	token string
	err   error
}

func (m *mockTokenSource) AccessToken() (string, error) {
	return m.token, m.err
}

// mockDoer は送信されたリクエストを記録し、doFnの結果を返す。
type mockDoer struct {
	doFn     func(req transport.Request, out any) error
	requests []transport.Request
}

func (m *mockDoer) Do(_ context.Context, req transport.Request, out any) error {
	m.requests = append(m.requests, req)
	if m.doFn != nil {
		return m.doFn(req, out)
	}
	return nil
}

type callRecord struct {
	name string
	ok   bool
}

type mockRecorder struct {
	calls []callRecord
}

func (m *mockRecorder) RecordRequest(string, int, time.Duration) {}
func (m *mockRecorder) RecordLogin(string, bool) {}
func (m *mockRecorder) RecordFunctionCall(name string, ok bool, _ time.Duration) {
	m.calls = append(m.calls, callRecord{name: name, ok: ok})
}

// echoDoer は引数をそのまま結果として返すDoer。
func echoDoer() *mockDoer {
	return &mockDoer{doFn: func(req transport.Request, out any) error {
		body := req.Body.(callRequest)
		payload, _ := json.Marshal(map[string]any{"name": body.Name, "arguments": body.Arguments})
		return json.Unmarshal(payload, out)
	}}
}

func TestFactory_Call_SendsNameAndArguments(t *testing.T) {
	doer := echoDoer()
	rec := &mockRecorder{}
	f := NewFactory(doer, &mockTokenSource{token: "tok"}, "my-app-id", nil, rec)

	result, err := f.Call(context.Background(), "sum", 1, 2)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	if len(doer.requests) != 1 {
		t.Fatalf("request count = %d, want 1", len(doer.requests))
	}
	req := doer.requests[0]
	if req.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	if req.Path != "/api/client/v2.0/app/my-app-id/functions/call" {
		t.Errorf("Path = %s", req.Path)
	}
	if req.BearerToken != "tok" {
		t.Errorf("BearerToken = %q, want tok", req.BearerToken)
	}
	body := req.Body.(callRequest)
	if body.Name != "sum" || !reflect.DeepEqual(body.Arguments, []any{1, 2}) {
		t.Errorf("Body = %+v", body)
	}

	m, ok := result.(map[string]any)
	if !ok || m["name"] != "sum" {
		t.Errorf("result = %#v", result)
	}
	if len(rec.calls) != 1 || rec.calls[0] != (callRecord{name: "sum", ok: true}) {
		t.Errorf("recorded calls = %+v", rec.calls)
	}
}

func TestFactory_Call_NoArgumentsSendsEmptyArray(t *testing.T) {
	doer := &mockDoer{}
	f := NewFactory(doer, &mockTokenSource{token: "tok"}, "app", nil, nil)

	if _, err := f.Call(context.Background(), "ping"); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	payload, err := json.Marshal(doer.requests[0].Body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	if string(payload) != `{"name":"ping","arguments":[]}` {
		t.Errorf("body = %s", payload)
	}
}

func TestFactory_Call_NotLoggedIn(t *testing.T) {
	doer := &mockDoer{}
	f := NewFactory(doer, &mockTokenSource{err: model.NewNotLoggedInError()}, "app", nil, nil)

	_, err := f.Call(context.Background(), "sum", 1)
	if !errors.Is(err, model.ErrNotLoggedIn) {
		t.Fatalf("error = %v, want not logged in", err)
	}
	if len(doer.requests) != 0 {
		t.Errorf("no request should be sent; got %d", len(doer.requests))
	}
}

func TestFactory_Call_EmptyName(t *testing.T) {
	doer := &mockDoer{}
	f := NewFactory(doer, &mockTokenSource{token: "tok"}, "app", nil, nil)

	_, err := f.Call(context.Background(), "")
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("error = %v, want invalid argument", err)
	}
	if len(doer.requests) != 0 {
		t.Errorf("no request should be sent; got %d", len(doer.requests))
	}
}

func TestFactory_Call_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		backend error
		want    error
	}{
		{
			name:    "function not found code",
			backend: &model.Error{Kind: model.KindFunctionNotFound, Code: "FunctionNotFound", Message: "function not found: 'nope'", StatusCode: 404},
			want:    model.ErrFunctionNotFound,
		},
		{
			name:    "bare 404",
			backend: &model.Error{Kind: model.KindInvalidArgument, Code: model.ErrCodeInvalidArgument, Message: "Not Found", StatusCode: 404},
			want:    model.ErrFunctionNotFound,
		},
		{
			name:    "unknown app keeps its code",
			backend: &model.Error{Kind: model.KindInvalidArgument, Code: "AppNotFound", Message: "cannot find app using Client App ID 'x'", StatusCode: 404},
			want:    &model.Error{Kind: model.KindInvalidArgument, Code: "AppNotFound"},
		},
		{
			name:    "bad arguments",
			backend: &model.Error{Kind: model.KindInvalidArgument, Code: model.ErrCodeInvalidArgument, StatusCode: 400},
			want:    model.ErrInvalidArgument,
		},
		{
			name:    "server failure",
			backend: model.NewServerError(500, "boom"),
			want:    model.ErrServer,
		},
		{
			name:    "network failure",
			backend: model.NewNetworkError(io.ErrUnexpectedEOF),
			want:    model.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &mockDoer{doFn: func(transport.Request, any) error { return tt.backend }}
			rec := &mockRecorder{}
			f := NewFactory(doer, &mockTokenSource{token: "tok"}, "app", nil, rec)

			_, err := f.Call(context.Background(), "nope")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if tt.want != model.ErrFunctionNotFound && errors.Is(err, model.ErrFunctionNotFound) {
				t.Errorf("error = %v, must not be function-not-found", err)
			}
			if len(rec.calls) != 1 || rec.calls[0].ok {
				t.Errorf("recorded calls = %+v, want one failure", rec.calls)
			}
		})
	}
}

func TestFactory_Get_MatchesCall(t *testing.T) {
	f := NewFactory(echoDoer(), &mockTokenSource{token: "tok"}, "app", nil, nil)

	names := []string{"sum", "getUser", "call", "functions"}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			fn, err := f.Get(name)
			if err != nil {
				t.Fatalf("Get(%q) error = %v", name, err)
			}

			got, err := fn(context.Background(), "a", 1)
			if err != nil {
				t.Fatalf("dynamic call error = %v", err)
			}
			want, err := f.Call(context.Background(), name, "a", 1)
			if err != nil {
				t.Fatalf("Call() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("dynamic result = %#v, Call result = %#v", got, want)
			}
		})
	}
}

func TestFactory_Get_RejectsReservedAndEmptyNames(t *testing.T) {
	f := NewFactory(&mockDoer{}, &mockTokenSource{token: "tok"}, "app", nil, nil)

	_, err := f.Get(ReservedName)
	if !errors.Is(err, &model.Error{Kind: model.KindInvalidArgument, Code: model.ErrCodeReservedName}) {
		t.Errorf("Get(callFunction) error = %v, want reserved name error", err)
	}

	if _, err := f.Get(""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("Get(\"\") error = %v, want invalid argument", err)
	}
}

func TestFactory_MustGet_PanicsOnReservedName(t *testing.T) {
	f := NewFactory(&mockDoer{}, &mockTokenSource{token: "tok"}, "app", nil, nil)

	defer func() {
		if recover() == nil {
			t.Error("MustGet(callFunction) should panic")
		}
	}()
	f.MustGet(ReservedName)
}

// TestFactory_CallInto_OverHTTP はtransport.Clientと組み合わせた呼び出しを検証する。
func TestFactory_CallInto_OverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var req callRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch req.Name {
		case "sum":
			var total float64
			for _, a := range req.Arguments {
				total += a.(float64)
			}
			json.NewEncoder(w).Encode(total)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"function not found: '` + req.Name + `'","error_code":"FunctionNotFound","link":"https://logs/1"}`))
		}
	}))
	defer server.Close()

	base, _ := url.Parse(server.URL)
	client := transport.NewClient(transport.Config{BaseURL: base, HTTPClient: server.Client()})
	f := NewFactory(client, &mockTokenSource{token: "tok"}, "app", nil, nil)

	var sum int
	if err := f.CallInto(context.Background(), &sum, "sum", 1, 2, 3); err != nil {
		t.Fatalf("CallInto() error = %v", err)
	}
	if sum != 6 {
		t.Errorf("sum = %d, want 6", sum)
	}

	result, err := f.Call(context.Background(), "sum", 2, 3)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result != json.Number("5") {
		t.Errorf("result = %#v, want json.Number(5)", result)
	}

	_, err = f.Call(context.Background(), "missing")
	if !errors.Is(err, model.ErrFunctionNotFound) {
		t.Fatalf("error = %v, want function not found", err)
	}
	var apiErr *model.Error
	if errors.As(err, &apiErr) && apiErr.Link != "https://logs/1" {
		t.Errorf("Link = %q, want https://logs/1", apiErr.Link)
	}
}

// TestFactory_Call_UnknownAppOverHTTP はアプリID誤りの404が関数未定義として扱われないことを検証する。
func TestFactory_Call_UnknownAppOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"cannot find app using Client App ID 'wrong-app'","error_code":"AppNotFound"}`))
	}))
	defer server.Close()

	base, _ := url.Parse(server.URL)
	client := transport.NewClient(transport.Config{BaseURL: base, HTTPClient: server.Client()})
	f := NewFactory(client, &mockTokenSource{token: "tok"}, "wrong-app", nil, nil)

	_, err := f.Call(context.Background(), "sum", 1)
	if errors.Is(err, model.ErrFunctionNotFound) {
		t.Fatalf("error = %v, want app-not-found to stay invalid argument", err)
	}
	var apiErr *model.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *model.Error", err)
	}
	if apiErr.Kind != model.KindInvalidArgument || apiErr.Code != "AppNotFound" {
		t.Errorf("Kind/Code = %s/%s, want invalid_argument/AppNotFound", apiErr.Kind, apiErr.Code)
	}
}
