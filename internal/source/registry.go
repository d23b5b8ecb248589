package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fastly/pathly-visualizer/internal/config"
)

// ErrUnknownSource 表示请求的数据源未注册。
var ErrUnknownSource = errors.New("unknown source")

var globalRegistry = newRegistry()

type registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func newRegistry() *registry {
	return &registry{sources: make(map[string]Source)}
}

// Register 将数据源加入全局注册表，重复名称会返回错误。
func Register(src Source) error {
	return globalRegistry.register(src, false)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(src Source) {
	if err := Register(src); err != nil {
		panic(err)
	}
}

// Configure 应用配置文件中的 [[Source]]：同名数据源被覆盖，其余新增。
func Configure(items []config.SourceConfig) error {
	for _, item := range items {
		src := Source{
			Name:        item.Name,
			BaseURL:     item.BaseURL,
			Description: item.Description,
			Compression: Compression(item.Compression),
		}
		if err := globalRegistry.register(src, true); err != nil {
			return err
		}
	}
	return nil
}

// Resolve 返回指定名称的数据源，名称大小写不敏感。
func Resolve(name string) (Source, error) {
	src, ok := globalRegistry.resolve(name)
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return src, nil
}

// List 返回按名称排序的数据源列表。
func List() []Source {
	return globalRegistry.list()
}

// Keys 返回所有已注册数据源名称，供诊断使用。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, src := range items {
		result[i] = src.Name
	}
	return result
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *registry) register(src Source, override bool) error {
	name := normalizeName(src.Name)
	if name == "" {
		return fmt.Errorf("source name is required")
	}
	if strings.TrimSpace(src.BaseURL) == "" {
		return fmt.Errorf("source %s: base url is required", name)
	}
	src.Name = name
	src.BaseURL = strings.TrimRight(strings.TrimSpace(src.BaseURL), "/")
	if src.Compression == "" {
		src.Compression = CompressionAuto
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.sources[name]; exists {
		if !override {
			return fmt.Errorf("source %s already registered", name)
		}
		src.Builtin = existing.Builtin
		if src.Description == "" {
			src.Description = existing.Description
		}
	}
	r.sources[name] = src
	return nil
}

func (r *registry) resolve(name string) (Source, bool) {
	normalized := normalizeName(name)
	if normalized == "" {
		return Source{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[normalized]
	return src, ok
}

func (r *registry) list() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sources) == 0 {
		return nil
	}

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Source, 0, len(names))
	for _, name := range names {
		result = append(result, r.sources[name])
	}
	return result
}
