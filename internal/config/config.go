// Package config はCLIとローカルエミュレータの設定を読み込む。
// 環境変数と任意の.envファイルからViperで読み込み、起動時に1回だけ構築してイミュータブルとして扱う。
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultBaseURL はBASE_URL未指定時に接続するバックエンド。
const DefaultBaseURL = "https://services.cloud.mongodb.com"

// Config はアプリケーション全体の設定を保持する。
type Config struct {
	// App
	AppID   string `mapstructure:"APP_ID" validate:"required"`
	BaseURL string `mapstructure:"BASE_URL" validate:"required,url"`

	// HTTP
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT" validate:"gt=0"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST" validate:"gte=1"`
	BlockPrivateNetworks bool          `mapstructure:"BLOCK_PRIVATE_NETWORKS"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	// Metrics
	MetricsAddr string `mapstructure:"METRICS_ADDR"`

	// Dev server
	DevServerPort string `mapstructure:"DEV_SERVER_PORT" validate:"required,numeric"`
	DevSigningKey string `mapstructure:"DEV_SIGNING_KEY"`
	// CORSAllowedOrigin が空の場合、エミュレーターはCORSヘッダーを付与しない
	CORSAllowedOrigin string `mapstructure:"CORS_ALLOWED_ORIGIN" validate:"omitempty,url"`
}

// defaults は任意項目のデフォルト値。
// Viperは既知のキーしかUnmarshalしないため、必須項目も空文字で登録する。
var defaults = map[string]any{
	"APP_ID":                 "",
	"BASE_URL":               DefaultBaseURL,
	"REQUEST_TIMEOUT":        "10s",
	"RATE_LIMIT_RPS":         0,
	"RATE_LIMIT_BURST":       10,
	"BLOCK_PRIVATE_NETWORKS": false,
	"LOG_LEVEL":              "info",
	"METRICS_ADDR":           "",
	"DEV_SERVER_PORT":        "9090",
	"DEV_SIGNING_KEY":        "",
	"CORS_ALLOWED_ORIGIN":    "",
}

// Load は.env（存在する場合）と環境変数からConfigを読み込む。
// 環境変数は.envより優先される。必須項目が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .envが無い環境（CI等）では無視する

	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate は構造体タグに従ってConfigを検証する。
// 必須項目の欠落は環境変数名の一覧として報告する。
func validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("mapstructure")
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return fmt.Errorf("invalid environment variables: %v", invalid)
}
