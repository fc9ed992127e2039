package devserver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Call は関数ハンドラーに渡される呼び出し情報。
type Call struct {
	UserID string
	// Arguments はJSONデコード済みの引数。数値はjson.Numberとして渡される。
	Arguments []any
}

// HandlerFunc はエミュレーター上のリモート関数の実装。
// エラーを返すと呼び出し元には400 FunctionExecutionErrorが返る。
type HandlerFunc func(ctx context.Context, call Call) (any, error)

// Registry は関数名とハンドラーの対応を保持する。
type Registry struct {
	mu        sync.RWMutex
	functions map[string]HandlerFunc
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]HandlerFunc)}
}

// Register は関数を登録する。同名の関数は置き換える。
func (r *Registry) Register(name string, fn HandlerFunc) error {
	if name == "" {
		return errors.New("function name is required")
	}
	if fn == nil {
		return fmt.Errorf("function %q has no handler", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[name] = fn
	return nil
}

// Lookup は関数を検索する。
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	return fn, ok
}

// Names は登録済みの関数名を昇順で返す。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
