// Package transport はバックエンドとのJSON over HTTP通信を提供する。
// 1回の呼び出しにつき1リクエストのみ送信し、リトライは行わない。
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/appclient/internal/metrics"
	"github.com/hitoshi/appclient/internal/model"
	"golang.org/x/time/rate"
)

const (
	// defaultUserAgent はリクエストに付与するUser-Agent。
	defaultUserAgent = "appclient-go/1.0"
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（10MB）。
	maxResponseSize = 10 << 20
)

// Config はClientの設定。
type Config struct {
	BaseURL    *url.URL
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    metrics.Recorder
	// Limiter はクライアント側のリクエスト流量制限。nilの場合は制限しない。
	Limiter   *rate.Limiter
	UserAgent string
}

// Client はbaseURLに紐付いたJSON HTTPクライアント。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.Recorder
	limiter    *rate.Limiter
	userAgent  string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		limiter:    cfg.Limiter,
		userAgent:  cfg.UserAgent,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	return c
}

// BaseURL はリクエスト先のbaseURLを返す。
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

// Request は1回のHTTPリクエストを表す。
type Request struct {
	Method string
	// Path はbaseURLからの相対パス。
	Path string
	// Route はメトリクスとログに使うルート名。
	Route       string
	Body        any
	BearerToken string
}

// errorBody はバックエンドのエラーレスポンス。
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Link      string `json:"link"`
}

// Do はリクエストを送信し、成功レスポンスをoutにデコードする。
// outがnilの場合はレスポンスボディを読み捨てる。
// 失敗時は*model.Errorを返す。
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	// 1. クライアント側の流量制限
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.NewNetworkError(fmt.Errorf("rate limiter wait: %w", err))
		}
	}

	// 2. リクエストボディのエンコード
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			apiErr := model.NewInvalidArgumentError("request body is not JSON serializable")
			apiErr.Err = err
			return apiErr
		}
		body = bytes.NewReader(payload)
	}

	// 3. HTTPリクエスト作成
	reqURL := c.baseURL.JoinPath(req.Path)
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL.String(), body)
	if err != nil {
		return model.NewNetworkError(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	// 4. HTTPリクエスト実行
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordRequest(req.Route, 0, time.Since(start))
		c.logger.Error("backend request failed",
			slog.String("route", req.Route),
			slog.String("error", err.Error()),
		)
		return model.NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	duration := time.Since(start)
	c.metrics.RecordRequest(req.Route, resp.StatusCode, duration)
	if err != nil {
		return model.NewNetworkError(fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.Debug("backend request completed",
		slog.String("route", req.Route),
		slog.Int("http_status", resp.StatusCode),
		slog.Duration("duration", duration),
	)

	// 5. HTTPステータスチェック
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, respBody)
		c.logger.Warn("backend returned error status",
			slog.String("route", req.Route),
			slog.Int("http_status", resp.StatusCode),
			slog.String("error_code", apiErr.Code),
		)
		return apiErr
	}

	// 6. JSONデコード
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		apiErr := model.NewContractViolationError(fmt.Sprintf("failed to decode %s response", req.Route))
		apiErr.Err = err
		return apiErr
	}
	return nil
}

// decodeError はエラーレスポンスを*model.Errorに変換する。
// ボディがJSONでない場合もステータスコードから分類する。
func decodeError(statusCode int, body []byte) *model.Error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	message := eb.Error
	if message == "" {
		message = http.StatusText(statusCode)
	}

	kind := Classify(statusCode, eb.ErrorCode)
	code := eb.ErrorCode
	if code == "" {
		code = defaultCode(kind)
	}

	return &model.Error{
		Kind:       kind,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Link:       eb.Link,
	}
}

func defaultCode(kind model.ErrorKind) string {
	switch kind {
	case model.KindAuthentication:
		return model.ErrCodeAuthFailed
	case model.KindInvalidArgument:
		return model.ErrCodeInvalidArgument
	case model.KindFunctionNotFound:
		return model.ErrCodeFunctionNotFound
	default:
		return model.ErrCodeServer
	}
}
