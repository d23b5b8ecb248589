// Package archive 为缓存中的归档文件提供透明解压，MRT 转储通常为 bzip2 或 gzip。
package archive

import (
	"compress/bzip2"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format 指定解压方式，取值与数据源的 Compression 配置一致。
type Format string

const (
	FormatAuto  Format = "auto"
	FormatGzip  Format = "gzip"
	FormatBzip2 Format = "bzip2"
	FormatZstd  Format = "zstd"
	FormatNone  Format = "none"
)

// Detect 根据文件扩展名推断压缩格式，无法识别时返回 FormatNone。
func Detect(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatGzip
	case strings.HasSuffix(lower, ".bz2"):
		return FormatBzip2
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return FormatZstd
	default:
		return FormatNone
	}
}

// Resolve 将 auto 或空值替换为按扩展名推断的格式。
func Resolve(format Format, name string) Format {
	if format == "" || format == FormatAuto {
		return Detect(name)
	}
	return format
}

// Open 返回 r 的解压视图。关闭返回值只释放解压器，不会关闭 r。
func Open(r io.Reader, name string, format Format) (io.ReadCloser, error) {
	switch Resolve(format, name) {
	case FormatGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", name, err)
		}
		return zr, nil
	case FormatBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case FormatZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zstd %s: %w", name, err)
		}
		return dec.IOReadCloser(), nil
	case FormatNone:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", format)
	}
}
