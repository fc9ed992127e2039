package devserver

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/hitoshi/appclient/internal/auth"
	"github.com/hitoshi/appclient/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmailAlreadyRegistered はメールアドレスが登録済みの場合のエラー。
var ErrEmailAlreadyRegistered = errors.New("email already registered")

// userRecord はエミュレーターが保持するユーザー。
type userRecord struct {
	ID         string
	Type       model.UserType
	Identities []model.UserIdentity
	Data       map[string]string
}

// clone はストア外へ渡すためのコピーを返す。
func (u *userRecord) clone() *userRecord {
	return &userRecord{
		ID:         u.ID,
		Type:       u.Type,
		Identities: slices.Clone(u.Identities),
		Data:       maps.Clone(u.Data),
	}
}

// identityKey はプロバイダー種別とプロバイダー内IDの組。
type identityKey struct {
	providerType string
	id           string
}

// Store はユーザー、パスワード、APIキーを保持するインメモリストア。
// 永続化は行わず、プロセス終了で破棄される。パスワードはbcryptハッシュで保持する。
type Store struct {
	mu         sync.RWMutex
	users      map[string]*userRecord
	identities map[identityKey]string
	passwords  map[string][]byte
	apiKeys    map[string]string
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		users:      make(map[string]*userRecord),
		identities: make(map[identityKey]string),
		passwords:  make(map[string][]byte),
		apiKeys:    make(map[string]string),
	}
}

// CreateUser はユーザーとidentityを同時に作成する。
func (s *Store) CreateUser(userType model.UserType, providerType, identityID string, data map[string]string) *userRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(userType, providerType, identityID, data)
}

func (s *Store) createUserLocked(userType model.UserType, providerType, identityID string, data map[string]string) *userRecord {
	user := &userRecord{
		ID:   uuid.NewString(),
		Type: userType,
		Identities: []model.UserIdentity{
			{UserID: identityID, ProviderType: providerType},
		},
		Data: maps.Clone(data),
	}
	if user.Data == nil {
		user.Data = map[string]string{}
	}
	s.users[user.ID] = user
	s.identities[identityKey{providerType: providerType, id: identityID}] = user.ID
	return user.clone()
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *Store) FindByID(id string) *userRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil
	}
	return user.clone()
}

// FindByIdentity はプロバイダー種別とプロバイダー内IDでユーザーを検索する。
// 見つからない場合はnilを返す。
func (s *Store) FindByIdentity(providerType, identityID string) *userRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.identities[identityKey{providerType: providerType, id: identityID}]
	if !ok {
		return nil
	}
	return s.users[userID].clone()
}

// RegisterEmailPassword はメールアドレスとパスワードのユーザーを登録する。
func (s *Store) RegisterEmailPassword(email, password string) (*userRecord, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.passwords[email]; exists {
		return nil, ErrEmailAlreadyRegistered
	}
	s.passwords[email] = hash
	return s.createUserLocked(model.UserTypeNormal, auth.ProviderEmailPassword, email,
		map[string]string{"email": email}), nil
}

// CheckPassword はメールアドレスとパスワードの組が登録済みかを判定する。
func (s *Store) CheckPassword(email, password string) bool {
	s.mu.RLock()
	hash, ok := s.passwords[email]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// CreateAPIKey はサーバー種別のユーザーとAPIキーを発行する。
func (s *Store) CreateAPIKey(name string) (key string, user *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = uuid.NewString()
	user = s.createUserLocked(model.UserTypeServer, auth.ProviderAPIKey, uuid.NewString(),
		map[string]string{"name": name})
	s.apiKeys[key] = user.ID
	return key, user
}

// FindByAPIKey はAPIキーに紐付くユーザーを返す。見つからない場合はnilを返す。
func (s *Store) FindByAPIKey(key string) *userRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.apiKeys[key]
	if !ok {
		return nil
	}
	return s.users[userID].clone()
}

// UserCount は登録済みユーザー数を返す。
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
