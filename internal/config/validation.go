package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fastly/pathly-visualizer/internal/bytesize"
)

var supportedCompression = map[string]struct{}{
	"auto":  {},
	"gzip":  {},
	"bzip2": {},
	"zstd":  {},
	"none":  {},
}

const supportedCompressionList = "auto|gzip|bzip2|zstd|none"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.CacheLocation) == "" {
		return newFieldError("Global.CacheLocation", "不能为空")
	}
	if size, ok := bytesize.Parse(g.CacheSize); !ok {
		return newFieldError("Global.CacheSize", fmt.Sprintf("无法解析容量: %q", g.CacheSize))
	} else if size == 0 {
		return newFieldError("Global.CacheSize", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.MaxBackoff.DurationValue() < g.InitialBackoff.DurationValue() {
		return newFieldError("Global.MaxBackoff", "不能小于 InitialBackoff")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.FetchWorkers < 1 {
		return newFieldError("Global.FetchWorkers", "至少为 1")
	}
	for i, raw := range g.Prefetch {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("Global.Prefetch[%d]: %w", i, err)
		}
	}

	seenNames := map[string]struct{}{}
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Name == "" {
			return newFieldError("Source[].Name", "不能为空")
		}
		if strings.ContainsAny(src.Name, "/ ") {
			return newFieldError(sourceField(src.Name, "Name"), "不允许包含斜杠或空格")
		}
		if _, exists := seenNames[src.Name]; exists {
			return newFieldError(sourceField(src.Name, "Name"), "重复")
		}
		seenNames[src.Name] = struct{}{}

		if err := validateURL(src.BaseURL); err != nil {
			return fmt.Errorf("%s: %w", sourceField(src.Name, "BaseURL"), err)
		}
		if _, ok := supportedCompression[src.Compression]; !ok {
			return newFieldError(sourceField(src.Name, "Compression"), "仅支持 "+supportedCompressionList)
		}
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
