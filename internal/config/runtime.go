package config

import (
	"time"

	"github.com/fastly/pathly-visualizer/internal/bytesize"
)

// 以下方法均假定 Validate 已通过，返回运行时直接可用的值。

// CacheLimit 返回解析后的缓存容量（字节）。
func (g GlobalConfig) CacheLimit() uint64 {
	size, _ := bytesize.Parse(g.CacheSize)
	return size
}

// RetryWindow 返回单次下载在重试上允许花费的退避区间。
func (g GlobalConfig) RetryWindow() (time.Duration, time.Duration) {
	return g.InitialBackoff.DurationValue(), g.MaxBackoff.DurationValue()
}
