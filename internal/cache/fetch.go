package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/fastly/pathly-visualizer/internal/logging"
)

// FetchError 描述一次失败的上游请求；只有下载负责人会收到该错误。
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Get 返回 url 对应的内容流。命中时返回 *FileHandle；未命中时由当前 goroutine
// 独占下载并发布；其他请求同一 key 的调用方等待发布结果或在失败后重新竞争。
// ctx 只约束等待过程，已开始的下载总会运行到结束。
func (s *Store) Get(ctx context.Context, rawURL string) (Stream, error) {
	key := FileName(rawURL)
	path := s.pathFor(key)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.Lock()
		token, ready, ok := s.index.hasEntry(key)
		switch {
		case !ok:
			owner := s.index.addStub(key)
			s.mu.Unlock()
			s.metrics.miss()
			s.logger.WithFields(logging.CacheFields("cache_miss", key)).WithField("url", rawURL).Trace("cache miss")
			return s.fetch(context.WithoutCancel(ctx), rawURL, key, owner)

		case ready:
			token.acquire()
			s.mu.Unlock()

			handle, err := openHandle(path, token)
			if err == nil {
				s.metrics.hit()
				s.logger.WithFields(logging.CacheFields("cache_hit", key)).WithField("url", rawURL).Trace("cache hit")
				return handle, nil
			}
			token.release()
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			s.forgetVanished(key, token)

		default:
			err := s.awaitChangeLocked(ctx)
			s.mu.Unlock()
			if err != nil {
				return nil, err
			}
		}
	}
}

// Stat 返回 url 对应内容的大小而不下载正文：已发布的条目直接读索引，
// 否则向上游发送 HEAD。上游未给出长度时 size 为 -1。
func (s *Store) Stat(ctx context.Context, rawURL string) (size int64, cached bool, err error) {
	key := FileName(rawURL)

	s.mu.Lock()
	n, ok := s.index.readySize(key)
	s.mu.Unlock()
	if ok {
		return int64(n), true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false, &FetchError{URL: rawURL, Err: err}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, false, &FetchError{URL: rawURL, Err: err}
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, false, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp.ContentLength, false, nil
}

// awaitChangeLocked 阻塞到任意条目状态变化（generation 前进）或 ctx 结束。调用方须持有 s.mu。
func (s *Store) awaitChangeLocked(ctx context.Context) error {
	start := s.generation.Load()
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.changed.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for s.generation.Load() == start {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.changed.Wait()
	}
	return nil
}

// forgetVanished 移除磁盘文件已被外部删除的就绪条目，使下一轮重新下载。
func (s *Store) forgetVanished(key string, token *usageToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, _, ok := s.index.hasEntry(key); ok && current == token {
		s.logger.WithFields(logging.CacheFields("cache_drop", key)).Warn("cache file vanished, dropping entry")
		s.index.drop(key)
		s.bumpLocked()
	}
}

// abandon 回滚占位条目并唤醒等待方。
func (s *Store) abandon(key string, owner *usageToken) {
	s.mu.Lock()
	s.index.removeStub(key)
	s.bumpLocked()
	s.mu.Unlock()
	owner.release()
}

func (s *Store) fetch(ctx context.Context, rawURL, key string, owner *usageToken) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		s.abandon(key, owner)
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.abandon(key, owner)
		s.metrics.fetchError()
		s.logger.WithFields(logging.CacheFields("cache_fetch", key)).WithField("url", rawURL).
			WithError(err).Warn("upstream fetch failed")
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		s.abandon(key, owner)
		s.metrics.fetchError()
		s.logger.WithFields(logging.CacheFields("cache_fetch", key)).WithFields(logrus.Fields{
			"url":    rawURL,
			"status": resp.StatusCode,
		}).Warn("upstream returned error status")
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength < 0 {
		s.abandon(key, owner)
		s.metrics.passthrough(passthroughNoLength)
		s.logger.WithFields(logging.CacheFields("cache_bypass", key)).WithField("url", rawURL).
			Debug("no content length, bypassing cache")
		return newPassthrough(resp), nil
	}

	s.mu.Lock()
	reserved := s.index.setStubLength(key, uint64(resp.ContentLength))
	if !reserved {
		s.bumpLocked()
	}
	s.mu.Unlock()

	if !reserved {
		owner.release()
		s.metrics.passthrough(passthroughNoSpace)
		s.logger.WithFields(logging.CacheFields("cache_bypass", key)).WithFields(logrus.Fields{
			"url":  rawURL,
			"size": resp.ContentLength,
		}).Debug("unable to reserve cache space, bypassing cache")
		return newPassthrough(resp), nil
	}

	return s.publish(rawURL, key, resp, owner)
}

// publish 先写入 <final>.bak，fsync 后 rename 到正式文件名；rename 即发布点。
func (s *Store) publish(rawURL, key string, resp *http.Response, owner *usageToken) (Stream, error) {
	finalPath := s.pathFor(key)
	bakPath := finalPath + bakSuffix

	err := writeBak(bakPath, resp.Body, resp.ContentLength)
	_ = resp.Body.Close()
	if err == nil {
		err = os.Rename(bakPath, finalPath)
	}
	if err != nil {
		if rmErr := os.Remove(bakPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.WithFields(logging.CacheFields("cache_publish", key)).
				WithError(rmErr).Error("failed to remove bak file after failed download")
		}
		s.abandon(key, owner)
		s.metrics.fetchError()
		s.logger.WithFields(logging.CacheFields("cache_publish", key)).WithField("url", rawURL).
			WithError(err).Warn("failed to publish cache file")
		return nil, err
	}

	s.mu.Lock()
	s.index.completeStub(key)
	s.bumpLocked()
	s.mu.Unlock()

	s.logger.WithFields(logging.CacheFields("cache_publish", key)).WithFields(logrus.Fields{
		"url":  rawURL,
		"size": resp.ContentLength,
	}).Debug("published cache file")

	handle, err := openHandle(finalPath, owner)
	if err != nil {
		owner.release()
		return nil, err
	}
	return handle, nil
}

func writeBak(path string, body io.Reader, expected int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	written, err := io.CopyBuffer(f, body, make([]byte, 256*1024))
	if err == nil && written != expected {
		err = fmt.Errorf("wrote %d of %d bytes: %w", written, expected, io.ErrUnexpectedEOF)
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
