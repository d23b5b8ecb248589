package source

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidPath 表示请求路径为空或试图跳出数据源根目录。
var ErrInvalidPath = errors.New("invalid source path")

// Compression 描述数据源文件的压缩格式，auto 表示按扩展名判断。
type Compression string

const (
	CompressionAuto  Compression = "auto"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
	CompressionZstd  Compression = "zstd"
	CompressionNone  Compression = "none"
)

// Source 是一个归档数据提供方，例如 RIPE RIS 或 RouteViews。
type Source struct {
	Name        string      `json:"name"`
	BaseURL     string      `json:"base_url"`
	Description string      `json:"description"`
	Compression Compression `json:"compression"`
	Builtin     bool        `json:"builtin"`
}

// URLFor 将相对路径拼接到 BaseURL，拒绝空路径与 ".." 段。
func (s Source) URLFor(rel string) (string, error) {
	trimmed := strings.Trim(rel, "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." || segment == "." {
			return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
		}
	}

	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("source %s: %w", s.Name, err)
	}
	base.Path = path.Join("/", base.Path, trimmed)
	return base.String(), nil
}
