// Package prefetch 在批处理开始前预热磁盘缓存。
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fastly/pathly-visualizer/internal/bytesize"
	"github.com/fastly/pathly-visualizer/internal/cache"
)

// Getter 是 *cache.Store 的子集，便于测试替换。
type Getter interface {
	Get(ctx context.Context, rawURL string) (cache.Stream, error)
}

// Report 汇总一次预热的结果。
type Report struct {
	Fetched     int64 `json:"fetched"`
	Cached      int64 `json:"cached"`
	Passthrough int64 `json:"passthrough"`
	Failed      int64 `json:"failed"`
	Bytes       int64 `json:"bytes"`
}

// Err 在存在失败项时返回汇总错误。
func (r Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("prefetch: %d of %d urls failed", r.Failed, r.Fetched)
}

// Run 以最多 workers 个并发请求依次读取每个 URL 并丢弃内容，使其落入缓存。
// 单个 URL 失败不会中断其他 URL；ctx 取消时尚未开始的 URL 计为失败。
func Run(ctx context.Context, store Getter, urls []string, workers int, logger logrus.FieldLogger) Report {
	if workers < 1 {
		workers = 1
	}

	var (
		fetched, cached, passthrough, failed, total atomic.Int64
	)
	sem := semaphore.NewWeighted(int64(workers))
	eg, egCtx := errgroup.WithContext(ctx)

	for _, rawURL := range urls {
		if egCtx.Err() != nil || sem.Acquire(egCtx, 1) != nil {
			fetched.Inc()
			failed.Inc()
			continue
		}
		eg.Go(func() error {
			defer sem.Release(1)
			fetched.Inc()

			start := time.Now()
			n, isCached, err := drain(egCtx, store, rawURL)
			entry := logger.WithFields(logrus.Fields{
				"action":   "prefetch",
				"url":      rawURL,
				"duration": time.Since(start).String(),
			})
			if err != nil {
				failed.Inc()
				entry.WithError(err).Warn("prefetch failed")
				return nil
			}
			total.Add(n)
			if isCached {
				cached.Inc()
			} else {
				passthrough.Inc()
			}
			entry.WithFields(logrus.Fields{
				"size":      bytesize.Format(uint64(n)),
				"cache_hit": isCached,
			}).Info("prefetched")
			return nil
		})
	}
	_ = eg.Wait()

	return Report{
		Fetched:     fetched.Load(),
		Cached:      cached.Load(),
		Passthrough: passthrough.Load(),
		Failed:      failed.Load(),
		Bytes:       total.Load(),
	}
}

func drain(ctx context.Context, store Getter, rawURL string) (int64, bool, error) {
	stream, err := store.Get(ctx, rawURL)
	if err != nil {
		return 0, false, err
	}
	n, copyErr := io.Copy(io.Discard, stream)
	closeErr := stream.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return n, stream.Cached(), err
	}
	return n, stream.Cached(), nil
}
