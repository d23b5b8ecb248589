package server

import (
	"github.com/gofiber/fiber/v3"

	"github.com/fastly/pathly-visualizer/internal/source"
)

// SourceRoute 是一次 /fetch 请求解析后的结果，供代理层直接复用。
type SourceRoute struct {
	// Source 为请求命中的数据源（已应用配置覆盖）。
	Source source.Source
	// Path 是数据源内的相对路径，不含前导斜杠。
	Path string
	// RawQuery 原样透传给上游。
	RawQuery string
}

// UpstreamURL 拼接最终的上游地址。
func (r *SourceRoute) UpstreamURL() (string, error) {
	target, err := r.Source.URLFor(r.Path)
	if err != nil {
		return "", err
	}
	if r.RawQuery != "" {
		target += "?" + r.RawQuery
	}
	return target, nil
}

// resolveRoute 根据 :source 与通配路径查找数据源。
func resolveRoute(c fiber.Ctx) (*SourceRoute, error) {
	src, err := source.Resolve(c.Params("source"))
	if err != nil {
		return nil, err
	}
	return &SourceRoute{
		Source:   src,
		Path:     c.Params("*"),
		RawQuery: string(c.Request().URI().QueryString()),
	}, nil
}
