// Package app はCLI（appctl）のサブコマンドの実装を提供する。
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hitoshi/appclient"
	"github.com/hitoshi/appclient/internal/auth"
	"github.com/hitoshi/appclient/internal/config"
	"github.com/hitoshi/appclient/internal/devserver"
	"github.com/hitoshi/appclient/internal/logger"
	"github.com/hitoshi/appclient/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// ErrUsage はサブコマンドや引数が不正な場合のエラー。
var ErrUsage = errors.New("invalid usage")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// ログはwに出力し、標準出力はコマンド結果の表示に使う。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.SetupDefault(w, cfg.LogLevel)
	return cfg, log, nil
}

// Run はCLIのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、結果をstdoutへ、ログをstderrへ出力する。
// argsにはos.Args[1:]を渡す。
func Run(stdout, stderr io.Writer, args []string) error {
	cmd := ParseCommand(args)

	switch cmd {
	case CommandHelp:
		fmt.Fprint(stderr, usage)
		if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
			return nil
		}
		return ErrUsage
	case CommandHealthcheck:
		// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
		port := os.Getenv("DEV_SERVER_PORT")
		if port == "" {
			port = "9090"
		}
		return runHealthcheck(fmt.Sprintf("http://localhost:%s/healthz", port))
	}

	cfg, log, err := Init(stderr)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Debug("running command",
		slog.String("command", string(cmd)),
		slog.String("app_id", cfg.AppID),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandLogin:
		return runLogin(ctx, stdout, cfg, log, args[1:])
	case CommandCall:
		return runCall(ctx, stdout, cfg, log, args[1:])
	default:
		return runServe(ctx, cfg, log)
	}
}

// newApp は設定からSDKのAppを構築する。
func newApp(cfg *config.Config, log *slog.Logger) (*appclient.App, error) {
	return appclient.New(cfg.AppID,
		appclient.WithConfiguration(appclient.AppConfiguration{BaseURL: cfg.BaseURL}),
		appclient.WithLogger(log),
		appclient.WithRequestTimeout(cfg.RequestTimeout),
		appclient.WithRateLimit(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		appclient.WithBlockPrivateNetworks(cfg.BlockPrivateNetworks),
	)
}

// userSummary はloginコマンドの出力形式。
type userSummary struct {
	UserID     string            `json:"user_id"`
	UserType   string            `json:"user_type"`
	DeviceID   string            `json:"device_id,omitempty"`
	Identities []identitySummary `json:"identities"`
	Profile    map[string]string `json:"profile,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

type identitySummary struct {
	ID           string `json:"id"`
	ProviderType string `json:"provider_type"`
}

// runLogin はログインしてユーザー情報をJSONで出力する。
// login <provider> [key=value...]
func runLogin(ctx context.Context, w io.Writer, cfg *config.Config, log *slog.Logger, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: login requires a provider name", ErrUsage)
	}

	material, err := parseMaterial(args[1:])
	if err != nil {
		return err
	}

	client, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	user, err := client.Login(ctx, credentialsFor(args[0], material))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	return printJSON(w, summarizeUser(user))
}

// runCall はログイン後にリモート関数を呼び出し、結果をJSONで出力する。
// call [-provider name] [-material key=value]... <name> [json-arg...]
func runCall(ctx context.Context, w io.Writer, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	provider := fs.String("provider", auth.ProviderAnonymous, "authentication provider name")
	var pairs materialFlag
	fs.Var(&pairs, "material", "credential material as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: call requires a function name", ErrUsage)
	}

	name := fs.Arg(0)
	fnArgs, err := parseArguments(fs.Args()[1:])
	if err != nil {
		return err
	}
	material, err := parseMaterial(pairs)
	if err != nil {
		return err
	}

	client, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	if _, err := client.Login(ctx, credentialsFor(*provider, material)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	result, err := client.Functions().Call(ctx, name, fnArgs...)
	if err != nil {
		return fmt.Errorf("function %s failed: %w", name, err)
	}

	return printJSON(w, result)
}

// runServe はローカルのプラットフォームエミュレーターを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. エミュレーターの構築
	srv, err := devserver.New(devServerConfig(cfg, log, collector))
	if err != nil {
		return fmt.Errorf("failed to create dev server: %w", err)
	}
	defer srv.Close()

	devserver.RegisterBuiltins(srv.Functions())

	// サーバー種別ユーザーで動作確認できるよう、起動ごとにAPIキーを発行する
	key, user := srv.Store().CreateAPIKey("appctl")
	log.Info("server API key issued",
		slog.String("api_key", key),
		slog.String("user_id", user.ID),
	)

	// 3. メトリクスサーバーの起動（METRICS_ADDR指定時のみ）
	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.SetupMetricsRoute(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server listen error", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.DevServerPort,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("dev server starting",
			slog.String("addr", server.Addr),
			slog.String("app_id", cfg.AppID),
			slog.Any("functions", srv.Functions().Names()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dev server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down dev server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("dev server stopped gracefully")
	return nil
}

// devServerConfig は設定からエミュレーターの設定を構築する。
func devServerConfig(cfg *config.Config, log *slog.Logger, recorder metrics.Recorder) devserver.Config {
	return devserver.Config{
		AppID:             cfg.AppID,
		SigningKey:        []byte(cfg.DevSigningKey),
		Logger:            log,
		Metrics:           recorder,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// credentialsFor はプロバイダー名からCredentialsを構築する。
// 匿名認証以外はプロバイダー名と種別が一致する。
func credentialsFor(providerName string, material map[string]string) appclient.Credentials {
	providerType := providerName
	if providerName == auth.ProviderAnonymous {
		providerType = auth.ProviderTypeAnonymous
	}
	return appclient.NewCredentials(providerName, providerType, material)
}

// materialFlag は繰り返し指定できる -material フラグ。
type materialFlag []string

func (m *materialFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *materialFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// parseMaterial は key=value 形式の引数をmaterialに変換する。
func parseMaterial(pairs []string) (map[string]string, error) {
	material := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: material must be key=value, got %q", ErrUsage, pair)
		}
		material[key] = value
	}
	return material, nil
}

// parseArguments は関数引数をJSONとしてデコードする。数値はjson.Numberとして保持する。
func parseArguments(raw []string) ([]any, error) {
	args := make([]any, 0, len(raw))
	for i, r := range raw {
		dec := json.NewDecoder(bytes.NewReader([]byte(r)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: argument %d is not valid JSON: %q", ErrUsage, i+1, r)
		}
		args = append(args, v)
	}
	return args, nil
}

// summarizeUser はUserを表示用に変換する。トークンは出力しない。
func summarizeUser(user *appclient.User) userSummary {
	s := userSummary{
		UserID:     user.ID,
		UserType:   string(user.Profile.UserType),
		DeviceID:   user.DeviceID,
		Identities: make([]identitySummary, 0, len(user.Identities)),
	}
	for _, id := range user.Identities {
		s.Identities = append(s.Identities, identitySummary{ID: id.UserID, ProviderType: id.ProviderType})
	}

	profile := map[string]string{
		"name":        user.Profile.Name,
		"email":       user.Profile.Email,
		"picture_url": user.Profile.PictureURL,
		"first_name":  user.Profile.FirstName,
		"last_name":   user.Profile.LastName,
		"gender":      user.Profile.Gender,
		"birthday":    user.Profile.Birthday,
		"min_age":     user.Profile.MinAge,
		"max_age":     user.Profile.MaxAge,
	}
	for k, v := range profile {
		if v == "" {
			delete(profile, k)
		}
	}
	if len(profile) > 0 {
		s.Profile = profile
	}
	if !user.ExpiresAt.IsZero() {
		expiresAt := user.ExpiresAt.UTC()
		s.ExpiresAt = &expiresAt
	}
	return s
}

// printJSON は値をインデント付きJSONで出力する。
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
