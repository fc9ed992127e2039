package model

import "maps"

// Credentials はログインに使用するプロバイダー付きの認証情報。
// 生成後は変更できない。materialはそのままバックエンドへ送られる。
type Credentials struct {
	providerName string
	providerType string
	material     map[string]string
}

// NewCredentials はCredentialsを生成する。
// materialはコピーして保持するため、呼び出し元が後から変更しても影響しない。
func NewCredentials(providerName, providerType string, material map[string]string) Credentials {
	copied := make(map[string]string, len(material))
	maps.Copy(copied, material)
	return Credentials{
		providerName: providerName,
		providerType: providerType,
		material:     copied,
	}
}

// ProviderName は認証プロバイダー名を返す。
func (c Credentials) ProviderName() string {
	return c.providerName
}

// ProviderType は認証プロバイダー種別を返す。
func (c Credentials) ProviderType() string {
	return c.providerType
}

// Material は認証情報の内容のコピーを返す。
func (c Credentials) Material() map[string]string {
	copied := make(map[string]string, len(c.material))
	maps.Copy(copied, c.material)
	return copied
}

// MaterialValue はmaterialの単一キーを参照する。
func (c Credentials) MaterialValue(key string) (string, bool) {
	v, ok := c.material[key]
	return v, ok
}
