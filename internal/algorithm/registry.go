package algorithm

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/meoying/dbkernel/internal/errs"
)

// Factory 根据属性创建算法实例
type Factory[T any] func(props *Props) (T, error)

// Registry 按照类型名注册的算法工厂，类型名大小写不敏感
type Registry[T any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry kind 只用于错误信息，例如 "sharding"、"load-balance"
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:      kind,
		factories: make(map[string]Factory[T], 8),
	}
}

func (r *Registry[T]) Register(typ string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToUpper(typ)] = factory
}

func (r *Registry[T]) New(cfg Configuration) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToUpper(strings.TrimSpace(cfg.Type))]
	r.mu.RUnlock()
	if !ok {
		var t T
		return t, errs.NewAlgorithmNotFoundError(r.kind, cfg.Type)
	}
	props, err := NewProps(cfg.Props)
	if err != nil {
		var t T
		return t, err
	}
	return factory(props)
}

// NewAll 创建一组命名的算法实例
func (r *Registry[T]) NewAll(cfgs map[string]Configuration) (map[string]T, error) {
	res := make(map[string]T, len(cfgs))
	for name, cfg := range cfgs {
		alg, err := r.New(cfg)
		if err != nil {
			return nil, errs.NewInvalidConfigError("算法 %s: %s", name, err)
		}
		res[name] = alg
	}
	return res, nil
}

// Types 已经注册的类型，排序后返回
func (r *Registry[T]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := maps.Keys(r.factories)
	sort.Strings(types)
	return types
}
