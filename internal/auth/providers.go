package auth

import "github.com/hitoshi/appclient/internal/model"

// 組み込みの認証プロバイダー名。
const (
	ProviderAnonymous      = "anon-user"
	ProviderEmailPassword  = "local-userpass"
	ProviderAPIKey         = "api-key"
	ProviderGoogle         = "oauth2-google"
	ProviderFacebook       = "oauth2-facebook"
	ProviderApple          = "oauth2-apple"
	ProviderCustomJWT      = "custom-token"
	ProviderCustomFunction = "custom-function"
)

// 組み込みの認証プロバイダー種別。
// 匿名認証のみ名前と種別が異なる。
const (
	ProviderTypeAnonymous = "anonymous"
)

// Anonymous は匿名ログイン用のCredentialsを生成する。
func Anonymous() model.Credentials {
	return model.NewCredentials(ProviderAnonymous, ProviderTypeAnonymous, nil)
}

// EmailPassword はメールアドレスとパスワードによるログイン用のCredentialsを生成する。
func EmailPassword(email, password string) model.Credentials {
	return model.NewCredentials(ProviderEmailPassword, ProviderEmailPassword, map[string]string{
		"username": email,
		"password": password,
	})
}

// APIKey はAPIキーによるログイン用のCredentialsを生成する。
// サーバーAPIキーの場合、バックエンドはUserType "server" のユーザーを返す。
func APIKey(key string) model.Credentials {
	return model.NewCredentials(ProviderAPIKey, ProviderAPIKey, map[string]string{
		"key": key,
	})
}

// Google はGoogleの認可コードによるログイン用のCredentialsを生成する。
func Google(authCode string) model.Credentials {
	return model.NewCredentials(ProviderGoogle, ProviderGoogle, map[string]string{
		"authCode": authCode,
	})
}

// Facebook はFacebookのアクセストークンによるログイン用のCredentialsを生成する。
func Facebook(accessToken string) model.Credentials {
	return model.NewCredentials(ProviderFacebook, ProviderFacebook, map[string]string{
		"accessToken": accessToken,
	})
}

// Apple はSign in with AppleのIDトークンによるログイン用のCredentialsを生成する。
func Apple(idToken string) model.Credentials {
	return model.NewCredentials(ProviderApple, ProviderApple, map[string]string{
		"id_token": idToken,
	})
}

// JWT はカスタムJWTによるログイン用のCredentialsを生成する。
func JWT(token string) model.Credentials {
	return model.NewCredentials(ProviderCustomJWT, ProviderCustomJWT, map[string]string{
		"token": token,
	})
}

// Function はカスタム認証関数に渡すペイロードでCredentialsを生成する。
func Function(payload map[string]string) model.Credentials {
	return model.NewCredentials(ProviderCustomFunction, ProviderCustomFunction, payload)
}
