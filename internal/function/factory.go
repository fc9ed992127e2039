// Package function はバックエンドに登録されたリモート関数の呼び出しを提供する。
//
// 正規の呼び出し経路はFactory.Callで、Factory.Getによる名前付きアクセスは
// その糖衣構文にすぎない。
package function

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	applogger "github.com/hitoshi/appclient/internal/logger"
	"github.com/hitoshi/appclient/internal/metrics"
	"github.com/hitoshi/appclient/internal/model"
	"github.com/hitoshi/appclient/internal/transport"
)

// ReservedName は名前付きアクセスから除外される予約名。
const ReservedName = "callFunction"

// Doer はバックエンドへのリクエスト送信のインターフェース。
type Doer interface {
	Do(ctx context.Context, req transport.Request, out any) error
}

// TokenSource はログイン中ユーザーのアクセストークンを提供する。
// 未ログインの場合はmodel.ErrNotLoggedInに該当するエラーを返す。
type TokenSource interface {
	AccessToken() (string, error)
}

// Func は名前で束縛されたリモート関数。
type Func func(ctx context.Context, args ...any) (any, error)

// callRequest は関数呼び出しエンドポイントへのリクエストボディ。
type callRequest struct {
	Name      string `json:"name"`
	Arguments []any  `json:"arguments"`
}

// Factory はリモート関数の呼び出しを提供する。
type Factory struct {
	client  Doer
	tokens  TokenSource
	appID   string
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewFactory はFactoryを生成する。
func NewFactory(client Doer, tokens TokenSource, appID string, logger *slog.Logger, recorder metrics.Recorder) *Factory {
	if logger == nil {
		logger = applogger.Discard()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Factory{
		client:  client,
		tokens:  tokens,
		appID:   appID,
		logger:  logger,
		metrics: recorder,
	}
}

// Call は名前を指定してリモート関数を呼び出し、デコード済みの結果を返す。
// 数値はjson.Numberとして保持される。
func (f *Factory) Call(ctx context.Context, name string, args ...any) (any, error) {
	var result any
	if err := f.CallInto(ctx, &result, name, args...); err != nil {
		return nil, err
	}
	return result, nil
}

// CallInto はリモート関数を呼び出し、結果をoutにデコードする。
func (f *Factory) CallInto(ctx context.Context, out any, name string, args ...any) error {
	if name == "" {
		return model.NewInvalidArgumentError("function name is required")
	}

	token, err := f.tokens.AccessToken()
	if err != nil {
		return err
	}

	if args == nil {
		args = []any{}
	}

	start := time.Now()
	err = f.client.Do(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        CallPath(f.appID),
		Route:       "function_call",
		Body:        callRequest{Name: name, Arguments: args},
		BearerToken: token,
	}, out)
	duration := time.Since(start)
	f.metrics.RecordFunctionCall(name, err == nil, duration)

	if err != nil {
		err = classifyCallError(name, err)
		f.logger.Warn("function call failed",
			slog.String("function", name),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.logger.Debug("function call completed",
		slog.String("function", name),
		slog.Duration("duration", duration),
	)
	return nil
}

// Get は名前で束縛されたFuncを返す。
// 予約名と空文字列は指定できない。
func (f *Factory) Get(name string) (Func, error) {
	if name == ReservedName {
		return nil, model.NewReservedFunctionNameError(name)
	}
	if name == "" {
		return nil, model.NewInvalidArgumentError("function name is required")
	}
	return func(ctx context.Context, args ...any) (any, error) {
		return f.Call(ctx, name, args...)
	}, nil
}

// MustGet はGetと同じだが、名前が不正な場合はpanicする。
// 関数名が定数である初期化処理向け。
func (f *Factory) MustGet(name string) Func {
	fn, err := f.Get(name)
	if err != nil {
		panic(err)
	}
	return fn
}

// CallPath は関数呼び出しエンドポイントのパスを返す。
func CallPath(appID string) string {
	return fmt.Sprintf("/api/client/v2.0/app/%s/functions/call", url.PathEscape(appID))
}

// classifyCallError は関数呼び出し固有のエラー分類を適用する。
// error_codeのない404は関数が存在しないことを意味する。
// AppNotFoundなど明示的なerror_codeを持つ404はそのまま返す。
func classifyCallError(name string, err error) error {
	var apiErr *model.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	bareNotFound := apiErr.Kind == model.KindInvalidArgument &&
		apiErr.StatusCode == http.StatusNotFound &&
		(apiErr.Code == "" || apiErr.Code == model.ErrCodeInvalidArgument)
	if apiErr.Kind == model.KindFunctionNotFound || bareNotFound {
		notFound := model.NewFunctionNotFoundError(name)
		notFound.Link = apiErr.Link
		if apiErr.Message != "" && apiErr.Message != http.StatusText(http.StatusNotFound) {
			notFound.Message = apiErr.Message
		}
		return notFound
	}
	return err
}
