package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/fastly/pathly-visualizer/internal/archive"
	"github.com/fastly/pathly-visualizer/internal/cache"
	"github.com/fastly/pathly-visualizer/internal/logging"
	"github.com/fastly/pathly-visualizer/internal/server"
	"github.com/fastly/pathly-visualizer/internal/source"
)

// Getter 是 *cache.Store 的子集，测试中可替换为假实现。
type Getter interface {
	Get(ctx context.Context, rawURL string) (cache.Stream, error)
	Stat(ctx context.Context, rawURL string) (int64, bool, error)
}

// Handler 将 /fetch 请求交给磁盘缓存：命中直接读文件，未命中由缓存单飞回源后再流式返回。
type Handler struct {
	store  Getter
	logger *logrus.Logger
}

// NewHandler constructs a fetch handler backed by the shared cache store.
func NewHandler(store Getter, logger *logrus.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Handle 解析上游地址、读取缓存流并写回响应；?decode=1 时按数据源压缩方式解压后返回。
func (h *Handler) Handle(c fiber.Ctx, route *server.SourceRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)

	upstream, err := route.UpstreamURL()
	if err != nil {
		h.logResult(route, upstream, requestID, fiber.StatusBadRequest, nil, started, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_path"})
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if c.Method() == http.MethodHead {
		return h.head(ctx, c, route, upstream, requestID, started)
	}

	stream, err := h.store.Get(ctx, upstream)
	if err != nil {
		status, code := classifyError(err)
		h.logResult(route, upstream, requestID, status, nil, started, err)
		return c.Status(status).JSON(fiber.Map{"error": code})
	}

	setPathlyHeaders(c, upstream, requestID, stream.Cached())

	body := io.ReadCloser(stream)
	size := stream.Size()
	contentType := inferContentType(route.Path)
	if wantsDecode(c) {
		format := archive.Resolve(archive.Format(route.Source.Compression), route.Path)
		decoded, err := archive.Open(stream, route.Path, format)
		if err != nil {
			_ = stream.Close()
			h.logResult(route, upstream, requestID, fiber.StatusUnprocessableEntity, stream, started, err)
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "decode_failed"})
		}
		if format != archive.FormatNone {
			body = &decodedStream{ReadCloser: decoded, src: stream}
			size = -1
			contentType = inferContentType(strings.TrimSuffix(route.Path, path.Ext(route.Path)))
		}
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Status(fiber.StatusOK)

	h.logResult(route, upstream, requestID, fiber.StatusOK, stream, started, nil)
	// fasthttp 在写完响应后关闭 body，从而释放缓存文件的占用。
	if size >= 0 {
		return c.SendStream(body, int(size))
	}
	return c.SendStream(body)
}

// head 只报告大小与缓存状态，不触发下载：命中读索引，未命中转为上游 HEAD。
func (h *Handler) head(
	ctx context.Context,
	c fiber.Ctx,
	route *server.SourceRoute,
	upstream string,
	requestID string,
	started time.Time,
) error {
	size, cached, err := h.store.Stat(ctx, upstream)
	if err != nil {
		status, code := classifyError(err)
		h.logResult(route, upstream, requestID, status, nil, started, err)
		return c.Status(status).JSON(fiber.Map{"error": code})
	}

	setPathlyHeaders(c, upstream, requestID, cached)
	contentType := inferContentType(route.Path)
	if wantsDecode(c) {
		if format := archive.Resolve(archive.Format(route.Source.Compression), route.Path); format != archive.FormatNone {
			size = -1
			contentType = inferContentType(strings.TrimSuffix(route.Path, path.Ext(route.Path)))
		}
	}
	c.Set(fiber.HeaderContentType, contentType)
	if size >= 0 {
		c.Response().Header.SetContentLength(int(size))
	}

	fields := logging.RequestFields(route.Source.Name, upstream, requestID, cached)
	fields["action"] = "stat"
	fields["status"] = fiber.StatusOK
	fields["size"] = size
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	h.logger.WithFields(fields).Info("stat_ready")
	c.Status(fiber.StatusOK)
	return nil
}

func setPathlyHeaders(c fiber.Ctx, upstream, requestID string, cached bool) {
	c.Set("X-Pathly-Upstream", upstream)
	c.Set("X-Pathly-Cache-Hit", strconv.FormatBool(cached))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
}

func classifyError(err error) (int, string) {
	var fetchErr *cache.FetchError
	switch {
	case errors.Is(err, source.ErrInvalidPath):
		return fiber.StatusBadRequest, "invalid_path"
	case errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound:
		return fiber.StatusNotFound, "upstream_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "request_cancelled"
	default:
		return fiber.StatusBadGateway, "upstream_failed"
	}
}

func wantsDecode(c fiber.Ctx) bool {
	switch strings.ToLower(c.Query("decode")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// decodedStream 关闭解压器的同时关闭底层缓存流。
type decodedStream struct {
	io.ReadCloser
	src io.Closer
}

func (d *decodedStream) Close() error {
	return errors.Join(d.ReadCloser.Close(), d.src.Close())
}

func inferContentType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return "application/json"
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(lower, ".bz2"):
		return "application/x-bzip2"
	case strings.HasSuffix(lower, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(lower, ".tsv"):
		return "text/tab-separated-values"
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".csv"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func (h *Handler) logResult(
	route *server.SourceRoute,
	upstream string,
	requestID string,
	status int,
	stream cache.Stream,
	started time.Time,
	err error,
) {
	cacheHit := stream != nil && stream.Cached()
	fields := logging.RequestFields(route.Source.Name, upstream, requestID, cacheHit)
	fields["action"] = "fetch"
	if handle, ok := stream.(*cache.FileHandle); ok {
		fields["cache_file"] = filepath.Base(handle.Name())
	}
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("fetch_failed")
		return
	}
	h.logger.WithFields(fields).Info("fetch_ready")
}
