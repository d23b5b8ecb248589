// Package upstream 构建访问归档数据源的共享 HTTP 客户端：连接池、超时、
// 指数退避重试以及统一的 User-Agent。
package upstream

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/fastly/pathly-visualizer/internal/config"
)

// Options 控制客户端行为，零值字段使用 config 默认值。
type Options struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Logger       logrus.FieldLogger
}

// OptionsFromConfig 从全局配置提取客户端参数。
func OptionsFromConfig(g config.GlobalConfig, logger logrus.FieldLogger) Options {
	waitMin, waitMax := g.RetryWindow()
	return Options{
		Timeout:      g.UpstreamTimeout.DurationValue(),
		RetryMax:     g.MaxRetries,
		RetryWaitMin: waitMin,
		RetryWaitMax: waitMax,
		UserAgent:    g.UserAgent,
		Logger:       logger,
	}
}

// NewClient 返回带重试的 *http.Client。重试耗尽后仍返回最后一次响应，
// 由调用方根据状态码决定如何处理。
func NewClient(opts Options) *http.Client {
	base := cleanhttp.DefaultPooledClient()
	if opts.Timeout > 0 {
		base.Timeout = opts.Timeout
	}

	retrying := &retryablehttp.Client{
		HTTPClient:   base,
		Logger:       newLeveledLogger(opts.Logger),
		RetryWaitMin: opts.RetryWaitMin,
		RetryWaitMax: opts.RetryWaitMax,
		RetryMax:     opts.RetryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	return &http.Client{
		Transport: &userAgentTransport{
			userAgent: ua,
			next:      &retryablehttp.RoundTripper{Client: retrying},
		},
	}
}

// userAgentTransport 为未显式设置 User-Agent 的请求补上默认值。
type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(clone)
}
