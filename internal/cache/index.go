package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/djherbis/times"
	"github.com/sirupsen/logrus"

	"github.com/fastly/pathly-visualizer/internal/bytesize"
	"github.com/fastly/pathly-visualizer/internal/logging"
)

// ErrNotCacheFile 表示缓存目录中出现了非普通文件，缓存无法安全地统计用量。
var ErrNotCacheFile = errors.New("non-file entry in cache directory")

type cacheEntry struct {
	key          string
	path         string
	size         uint64
	lastAccessed time.Time
	token        *usageToken
	ready        bool
}

// entryIndex 是缓存状态的唯一来源。所有方法都要求调用方持有 Store.mu。
type entryIndex struct {
	dir     string
	used    uint64
	limit   uint64
	entries map[string]*cacheEntry

	logger  logrus.FieldLogger
	metrics *Metrics

	accessTime func(path string) (time.Time, error)
	removeFile func(path string) error
}

func newEntryIndex(dir string, limit uint64, logger logrus.FieldLogger, metrics *Metrics) *entryIndex {
	return &entryIndex{
		dir:        dir,
		limit:      limit,
		entries:    make(map[string]*cacheEntry),
		logger:     logger,
		metrics:    metrics,
		accessTime: statAccessTime,
		removeFile: os.Remove,
	}
}

// loadIndex 扫描缓存目录，每个普通文件（或指向普通文件的链接）都作为已就绪条目载入。
func loadIndex(dir string, limit uint64, logger logrus.FieldLogger, metrics *Metrics) (*entryIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read cache directory: %w", err)
	}

	ix := newEntryIndex(dir, limit, logger, metrics)
	for _, item := range items {
		path := filepath.Join(dir, item.Name())
		// os.Stat 跟随符号链接：指向普通文件的链接同样视为缓存文件。
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat cache file %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrNotCacheFile, path)
		}
		size := uint64(info.Size())
		ix.entries[item.Name()] = &cacheEntry{
			key:          item.Name(),
			path:         path,
			size:         size,
			lastAccessed: times.Get(info).AccessTime(),
			token:        newUsageToken(),
			ready:        true,
		}
		ix.used += size
	}

	logger.WithFields(logrus.Fields{
		"action":  "cache_load",
		"dir":     dir,
		"entries": len(ix.entries),
		"used":    bytesize.Format(ix.used),
		"limit":   bytesize.Format(limit),
	}).Info("loaded cache index")
	ix.metrics.observeSpace(ix.used, ix.limit)
	return ix, nil
}

func statAccessTime(path string) (time.Time, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return ts.AccessTime(), nil
}

func (ix *entryIndex) cacheSpace() (uint64, uint64) {
	return ix.used, ix.limit
}

func (ix *entryIndex) hasEntry(key string) (*usageToken, bool, bool) {
	entry, ok := ix.entries[key]
	if !ok {
		return nil, false, false
	}
	return entry.token, entry.ready, true
}

// addStub 插入占位条目并返回已为调用方 acquire 的 token，持有者即本次下载的唯一负责人。
func (ix *entryIndex) addStub(key string) *usageToken {
	token := newUsageToken()
	ix.entries[key] = &cacheEntry{
		key:          key,
		path:         filepath.Join(ix.dir, key),
		lastAccessed: time.Now().Round(0),
		token:        token,
	}
	return token.acquire()
}

func (ix *entryIndex) removeStub(key string) {
	ix.drop(key)
}

// setStubLength 为占位条目预留 size 字节；无法腾出空间时移除占位并返回 false。
func (ix *entryIndex) setStubLength(key string, size uint64) bool {
	entry, ok := ix.entries[key]
	if !ok {
		return false
	}
	if !ix.evictSpaceFor(size) {
		ix.drop(key)
		return false
	}
	ix.used += size
	entry.size += size
	ix.metrics.observeSpace(ix.used, ix.limit)
	return true
}

// readySize 返回已发布条目的大小；占位或缺失时 ok 为 false。
func (ix *entryIndex) readySize(key string) (uint64, bool) {
	entry, ok := ix.entries[key]
	if !ok || !entry.ready {
		return 0, false
	}
	return entry.size, true
}

func (ix *entryIndex) completeStub(key string) {
	if entry, ok := ix.entries[key]; ok {
		entry.ready = true
	}
}

// isReady 的第二个返回值为 false 表示条目已消失，等待方应从头重试。
func (ix *entryIndex) isReady(key string) (bool, bool) {
	entry, ok := ix.entries[key]
	if !ok {
		return false, false
	}
	return entry.ready, true
}

func (ix *entryIndex) drop(key string) {
	entry, ok := ix.entries[key]
	if !ok {
		return
	}
	delete(ix.entries, key)
	ix.used -= entry.size
	ix.metrics.observeSpace(ix.used, ix.limit)
}

func (ix *entryIndex) available() uint64 {
	if ix.used >= ix.limit {
		return 0
	}
	return ix.limit - ix.used
}

func (ix *entryIndex) sortedEntries() []*cacheEntry {
	ordered := make([]*cacheEntry, 0, len(ix.entries))
	for _, entry := range ix.entries {
		ordered = append(ordered, entry)
	}
	sortByAccess(ordered)
	return ordered
}

func sortByAccess(entries []*cacheEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].lastAccessed.Equal(entries[j].lastAccessed) {
			return entries[i].key < entries[j].key
		}
		return entries[i].lastAccessed.Before(entries[j].lastAccessed)
	})
}

// evictSpaceFor 按访问时间从旧到新淘汰未被占用的条目，直到能容纳 required 字节。
// 淘汰前重新读取 atime，若有变化则重新排序后在同一位置重试。
func (ix *entryIndex) evictSpaceFor(required uint64) bool {
	if ix.available() >= required {
		return true
	}
	if required > ix.limit {
		return false
	}

	ordered := ix.sortedEntries()
	i := 0
	for i < len(ordered) && ix.available() < required {
		entry := ordered[i]
		if !entry.ready || entry.token.busy() {
			i++
			continue
		}

		accessed, err := ix.accessTime(entry.path)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrPermission):
			i++
			continue
		default:
			ix.logger.WithFields(logging.CacheFields("cache_drop", entry.key)).
				WithError(err).Warn("dropping cache entry")
			ix.drop(entry.key)
			ordered = append(ordered[:i], ordered[i+1:]...)
			continue
		}

		if !accessed.Equal(entry.lastAccessed) {
			entry.lastAccessed = accessed
			sortByAccess(ordered)
			continue
		}

		ix.logger.WithFields(logging.CacheFields("cache_evict", entry.key)).
			WithField("size", entry.size).Debug("evicting cache entry")
		if err := ix.removeFile(entry.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			ix.logger.WithFields(logging.CacheFields("cache_evict", entry.key)).
				WithError(err).Warn("failed to remove evicted cache file")
		}
		ix.metrics.evicted(entry.size)
		ix.drop(entry.key)
		ordered = append(ordered[:i], ordered[i+1:]...)
	}

	return ix.available() >= required
}

// clearBakFiles 删除上次崩溃遗留的 .bak 临时文件；删除失败的条目继续保留在索引中。
func (ix *entryIndex) clearBakFiles() (int, uint64) {
	var (
		removed int
		freed   uint64
	)
	for key, entry := range ix.entries {
		if !strings.HasSuffix(key, bakSuffix) || !entry.ready {
			continue
		}
		if err := ix.removeFile(entry.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			ix.logger.WithFields(logging.CacheFields("cache_clear_bak", key)).
				WithError(err).Error("unable to remove bak file")
			continue
		}
		removed++
		freed += entry.size
		ix.drop(key)
	}
	return removed, freed
}

// accountedSize 汇总所有条目大小，用于校验 used 计数。
func (ix *entryIndex) accountedSize() uint64 {
	var total uint64
	for _, entry := range ix.entries {
		total += entry.size
	}
	return total
}
