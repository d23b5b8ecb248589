package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.uber.org/atomic"

	"github.com/fastly/pathly-visualizer/internal/cache"
	"github.com/fastly/pathly-visualizer/internal/config"
	"github.com/fastly/pathly-visualizer/internal/server"
	"github.com/fastly/pathly-visualizer/internal/source"
)

func TestFetchServesFromCacheAfterFirstRequest(t *testing.T) {
	upstream, hits := newUpstream(t, map[string][]byte{
		"/data/ip2asn-v4.tsv": []byte("1.0.0.0\t1.0.0.255\t13335\n"),
	})
	app, _ := newProxyApp(t, upstream.URL, "1MB")

	for i := 0; i < 2; i++ {
		resp := doRequest(t, app, "GET", "/fetch/stub/data/ip2asn-v4.tsv")
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d (%s)", i, resp.StatusCode, body)
		}
		if string(body) != "1.0.0.0\t1.0.0.255\t13335\n" {
			t.Fatalf("request %d: unexpected body %q", i, body)
		}
		if resp.Header.Get("X-Pathly-Cache-Hit") != "true" {
			t.Fatalf("request %d: published file should be served from cache", i)
		}
		if resp.Header.Get("X-Pathly-Upstream") != upstream.URL+"/data/ip2asn-v4.tsv" {
			t.Fatalf("unexpected upstream header %s", resp.Header.Get("X-Pathly-Upstream"))
		}
		if resp.Header.Get("Content-Type") != "text/tab-separated-values" {
			t.Fatalf("unexpected content type %s", resp.Header.Get("Content-Type"))
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream should be hit once, got %d", hits.Load())
	}
}

func TestFetchPassthroughWhenCacheTooSmall(t *testing.T) {
	payload := bytes.Repeat([]byte("m"), 4096)
	upstream, _ := newUpstream(t, map[string][]byte{"/big.mrt": payload})
	app, store := newProxyApp(t, upstream.URL, "1KB")

	resp := doRequest(t, app, "GET", "/fetch/stub/big.mrt")
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, payload) {
		t.Fatalf("passthrough body mismatch: %d bytes", len(body))
	}
	if resp.Header.Get("X-Pathly-Cache-Hit") != "false" {
		t.Fatalf("oversized response should bypass cache")
	}
	if store.Len() != 0 {
		t.Fatalf("bypassed response must not be indexed")
	}
}

func TestFetchDecodesGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("1.0.0.0\t1.0.0.255\t13335\n"))
	_ = zw.Close()

	upstream, _ := newUpstream(t, map[string][]byte{"/ip2asn-v4.tsv.gz": buf.Bytes()})
	app, _ := newProxyApp(t, upstream.URL, "1MB")

	resp := doRequest(t, app, "GET", "/fetch/stub/ip2asn-v4.tsv.gz?decode=1")
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "1.0.0.0\t1.0.0.255\t13335\n" {
		t.Fatalf("expected decoded body, got %q", body)
	}
	if resp.Header.Get("Content-Type") != "text/tab-separated-values" {
		t.Fatalf("decoded content type should follow inner extension, got %s", resp.Header.Get("Content-Type"))
	}

	raw := doRequest(t, app, "GET", "/fetch/stub/ip2asn-v4.tsv.gz")
	rawBody, _ := io.ReadAll(raw.Body)
	if !bytes.Equal(rawBody, buf.Bytes()) {
		t.Fatalf("raw request should return compressed bytes")
	}
}

func TestHeadReportsSizeWithoutDownloading(t *testing.T) {
	payload := bytes.Repeat([]byte("r"), 2048)
	upstream, hits := newUpstream(t, map[string][]byte{"/rrc00/bview.gz": payload})
	app, store := newProxyApp(t, upstream.URL, "1MB")

	resp := doRequest(t, app, "HEAD", "/fetch/stub/rrc00/bview.gz")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Pathly-Cache-Hit") != "false" {
		t.Fatalf("uncached HEAD should report a miss")
	}
	if resp.ContentLength != int64(len(payload)) {
		t.Fatalf("expected upstream length %d, got %d", len(payload), resp.ContentLength)
	}
	if store.Len() != 0 {
		t.Fatalf("HEAD must not populate the cache")
	}

	get := doRequest(t, app, "GET", "/fetch/stub/rrc00/bview.gz")
	_, _ = io.ReadAll(get.Body)

	resp = doRequest(t, app, "HEAD", "/fetch/stub/rrc00/bview.gz")
	if resp.Header.Get("X-Pathly-Cache-Hit") != "true" {
		t.Fatalf("HEAD after GET should be answered from the cache")
	}
	if resp.ContentLength != int64(len(payload)) {
		t.Fatalf("cached length mismatch: %d", resp.ContentLength)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one upstream HEAD and one GET, got %d", hits.Load())
	}

	missing := doRequest(t, app, "HEAD", "/fetch/stub/absent.gz")
	if missing.StatusCode != fiber.StatusNotFound {
		t.Fatalf("missing upstream object should map to 404, got %d", missing.StatusCode)
	}
}

func TestFetchLogsCacheFileName(t *testing.T) {
	upstream, _ := newUpstream(t, map[string][]byte{"/rrc01/updates.gz": []byte("mrt")})
	if err := source.Configure([]config.SourceConfig{{Name: "stub", BaseURL: upstream.URL, Compression: "auto"}}); err != nil {
		t.Fatalf("configure source: %v", err)
	}
	store, err := cache.New(cache.Options{Directory: t.TempDir(), Capacity: "1MB"})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	logger, hook := logtest.NewNullLogger()
	app, err := server.NewApp(server.AppOptions{Logger: logger, Fetch: NewHandler(store, logger), ListenPort: 5000})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}

	resp := doRequest(t, app, "GET", "/fetch/stub/rrc01/updates.gz")
	_, _ = io.ReadAll(resp.Body)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message != "fetch_ready" {
			continue
		}
		found = true
		if entry.Data["cache_file"] != cache.FileName(upstream.URL+"/rrc01/updates.gz") {
			t.Fatalf("unexpected cache_file field: %v", entry.Data["cache_file"])
		}
	}
	if !found {
		t.Fatalf("fetch_ready entry not logged")
	}
}

func TestFetchMapsUpstreamErrors(t *testing.T) {
	upstream, _ := newUpstream(t, nil)
	app, _ := newProxyApp(t, upstream.URL, "1MB")

	resp := doRequest(t, app, "GET", "/fetch/stub/missing.gz")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusNotFound || !bytes.Contains(body, []byte(`"upstream_not_found"`)) {
		t.Fatalf("expected upstream_not_found, got %d %s", resp.StatusCode, body)
	}
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		err    error
		status int
		code   string
	}{
		{&cache.FetchError{URL: "u", StatusCode: http.StatusServiceUnavailable}, fiber.StatusBadGateway, "upstream_failed"},
		{&cache.FetchError{URL: "u", Err: errors.New("reset")}, fiber.StatusBadGateway, "upstream_failed"},
		{&cache.FetchError{URL: "u", StatusCode: http.StatusNotFound}, fiber.StatusNotFound, "upstream_not_found"},
		{context.Canceled, fiber.StatusGatewayTimeout, "request_cancelled"},
		{io.ErrUnexpectedEOF, fiber.StatusBadGateway, "upstream_failed"},
	}
	for _, tc := range testCases {
		status, code := classifyError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("classifyError(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestFetchRejectsEmptyPath(t *testing.T) {
	upstream, hits := newUpstream(t, nil)
	store, err := cache.New(cache.Options{Directory: t.TempDir(), Capacity: "1MB"})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	handler := NewHandler(store, quietLogger())

	app := fiber.New()
	app.Get("/fetch-empty", func(c fiber.Ctx) error {
		route := &server.SourceRoute{Source: source.Source{Name: "stub", BaseURL: upstream.URL}, Path: ""}
		return handler.Handle(c, route)
	})

	resp := doRequest(t, app, "GET", "/fetch-empty")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusBadRequest || !bytes.Contains(body, []byte(`"invalid_path"`)) {
		t.Fatalf("empty path should be rejected, got %d %s", resp.StatusCode, body)
	}
	if hits.Load() != 0 {
		t.Fatalf("rejected paths must not reach upstream")
	}
}

func newUpstream(t *testing.T, files map[string][]byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	hits := atomic.NewInt64(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func newProxyApp(t *testing.T, upstreamURL, capacity string) (*fiber.App, *cache.Store) {
	t.Helper()
	if err := source.Configure([]config.SourceConfig{{Name: "stub", BaseURL: upstreamURL, Compression: "auto"}}); err != nil {
		t.Fatalf("configure source: %v", err)
	}

	store, err := cache.New(cache.Options{Directory: t.TempDir(), Capacity: capacity})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	logger := quietLogger()
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Fetch:      NewHandler(store, logger),
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	return app, store
}

func doRequest(t *testing.T, app *fiber.App, method, target string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
