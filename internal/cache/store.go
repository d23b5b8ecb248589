package cache

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/fastly/pathly-visualizer/internal/bytesize"
)

// Doer 是 Store 发起上游请求所需的最小 HTTP 能力，测试中可注入假实现。
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Options 在构造时一次性读取，之后不可修改。
type Options struct {
	// Directory 为缓存目录，启动时其中只能包含缓存文件。
	Directory string
	// Capacity 是 "10GB"、"512MiB" 形式的容量字符串。
	Capacity string
	// Client 负责上游 GET，nil 时使用 http.DefaultClient。
	Client Doer
	// UserAgent 附加在每个上游请求上。
	UserAgent string
	// ClearBakFiles 为 true 时在构造完成前清理崩溃遗留的 .bak 文件。
	ClearBakFiles bool
	Logger        logrus.FieldLogger
	Metrics       *Metrics
}

// Store 组合条目索引、单飞下载协调与 HTTP 客户端，整个进程共享一份实例。
type Store struct {
	dir       string
	client    Doer
	userAgent string
	logger    logrus.FieldLogger
	metrics   *Metrics

	mu         sync.Mutex
	index      *entryIndex
	changed    *sync.Cond
	generation atomic.Uint64
}

// New 解析容量、扫描缓存目录并构建 Store。目录中出现非普通文件时返回 ErrNotCacheFile。
func New(opts Options) (*Store, error) {
	if opts.Directory == "" {
		return nil, errors.New("cache directory required")
	}
	limit, ok := bytesize.Parse(opts.Capacity)
	if !ok {
		return nil, fmt.Errorf("invalid cache size: %q", opts.Capacity)
	}

	abs, err := filepath.Abs(opts.Directory)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	index, err := loadIndex(abs, limit, logger, opts.Metrics)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:       abs,
		client:    client,
		userAgent: opts.UserAgent,
		logger:    logger,
		metrics:   opts.Metrics,
		index:     index,
	}
	s.changed = sync.NewCond(&s.mu)

	if opts.ClearBakFiles {
		s.ClearBakFiles()
	}
	return s, nil
}

// Dir returns the absolute cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// CacheSpace 返回 (已用字节, 容量上限)，用于进度展示。
func (s *Store) CacheSpace() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.cacheSpace()
}

// Len returns the number of tracked entries, including in-flight stubs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index.entries)
}

// ClearBakFiles 删除上次运行遗留的 .bak 文件并修正用量统计，返回删除数量与释放字节数。
func (s *Store) ClearBakFiles() (int, uint64) {
	s.mu.Lock()
	removed, freed := s.index.clearBakFiles()
	if removed > 0 {
		s.bumpLocked()
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_clear_bak",
			"files":  removed,
			"freed":  bytesize.Format(freed),
		}).Info("cleared stale bak files")
	}
	return removed, freed
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.dir, key)
}

// bumpLocked 推进 generation 并唤醒所有等待方；调用方须持有 s.mu。
func (s *Store) bumpLocked() {
	s.generation.Inc()
	s.changed.Broadcast()
}
