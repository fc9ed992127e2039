package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims はアクセストークンから読み取ったクレーム。
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	UserData  map[string]any
}

// accessClaims はバックエンドが発行するアクセストークンのクレーム。
type accessClaims struct {
	jwt.RegisteredClaims
	UserData map[string]any `json:"user_data,omitempty"`
}

// ParseAccessToken はアクセストークンのクレームを読み取る。
// クライアントは署名鍵を持たないため署名は検証しない。
// 表示やキャッシュ期限の判断にのみ使用し、認可判断には使わないこと。
func ParseAccessToken(token string) (*TokenClaims, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	tc := &TokenClaims{
		Subject:  claims.Subject,
		UserData: claims.UserData,
	}
	if claims.IssuedAt != nil {
		tc.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tc.ExpiresAt = claims.ExpiresAt.Time
	}
	return tc, nil
}
