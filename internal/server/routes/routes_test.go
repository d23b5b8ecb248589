package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeStats struct{}

func (fakeStats) CacheSpace() (uint64, uint64) { return 1536, 10 * 1000 * 1000 * 1000 }
func (fakeStats) Len() int                     { return 3 }
func (fakeStats) Dir() string                  { return "/var/cache/pathly" }

func TestEncodeCacheFormatsSizes(t *testing.T) {
	payload := encodeCache(fakeStats{})
	if payload.Used != 1536 || payload.Entries != 3 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.UsedHuman != "1.500KB" {
		t.Fatalf("expected 1.500KB, got %s", payload.UsedHuman)
	}
	if payload.LimitHuman != "9.313GB" {
		t.Fatalf("expected 9.313GB, got %s", payload.LimitHuman)
	}
}

func TestCacheRouteServesJSON(t *testing.T) {
	app := fiber.New()
	RegisterCacheRoutes(app, fakeStats{})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/cache", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var payload cachePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.Directory != "/var/cache/pathly" || payload.Limit != 10*1000*1000*1000 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSourceRoutesListAndDetail(t *testing.T) {
	app := fiber.New()
	RegisterSourceRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/sources", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"name":"routeviews"`) {
		t.Fatalf("expected builtin sources in listing, got %s", string(body))
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/-/sources/ATLAS", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"base_url":"https://atlas.ripe.net"`) {
		t.Fatalf("unexpected detail response %d %s", resp.StatusCode, string(body))
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/-/sources/none", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMetricsRouteExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pathly_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(2)

	app := fiber.New()
	RegisterMetricsRoute(app, reg)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pathly_test_total 2") {
		t.Fatalf("metrics output missing counter: %s", string(body))
	}
}
