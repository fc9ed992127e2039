// Package model はSDKのドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// UserType はアカウント種別を表す判別子。
type UserType string

const (
	// UserTypeNormal は通常のエンドユーザーアカウント。
	UserTypeNormal UserType = "normal"
	// UserTypeServer はサーバーAPIキーで認証されたアカウント。
	UserTypeServer UserType = "server"
)

// Valid はUserTypeが定義済みの値かを判定する。
func (t UserType) Valid() bool {
	return t == UserTypeNormal || t == UserTypeServer
}

// User はログイン成功時に返される認証済みユーザーを表す。
// ログインのたびに新しいUserが生成され、部分更新は行わない。
type User struct {
	ID           string
	Identities   []UserIdentity
	AccessToken  string
	RefreshToken string
	DeviceID     string
	Profile      UserProfile

	// ExpiresAt はアクセストークンの有効期限。JWTでない場合はゼロ値。
	ExpiresAt time.Time
	// CustomData はアクセストークンのuser_dataクレーム。
	CustomData map[string]any
}

// UserIdentity は紐付けられた認証プロバイダーごとの識別情報。
type UserIdentity struct {
	UserID       string
	ProviderType string
}

// UserProfile はユーザーのプロフィール情報。
// UserType以外は任意項目で、空文字列は未設定を意味する。
type UserProfile struct {
	Name       string
	Email      string
	PictureURL string
	FirstName  string
	LastName   string
	Gender     string
	Birthday   string
	MinAge     string
	MaxAge     string
	UserType   UserType
}

// Validate はプロフィールの必須項目を検証する。
func (p UserProfile) Validate() error {
	if !p.UserType.Valid() {
		return NewContractViolationError(fmt.Sprintf("unexpected user type %q", p.UserType))
	}
	return nil
}

// HasIdentity は指定プロバイダー種別のidentityを持つかを返す。
func (u *User) HasIdentity(providerType string) bool {
	for _, id := range u.Identities {
		if id.ProviderType == providerType {
			return true
		}
	}
	return false
}
