package cache

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	bakSuffix     = ".bak"
	maxNameSuffix = 128
)

// FileName 将 URL 映射为稳定且可安全落盘的文件名：
// "<FNV-64 大写十六进制>_<最后一段路径>"。scheme、www. 前缀与首尾斜杠不参与哈希。
func FileName(rawURL string) string {
	address := strings.Trim(strings.TrimSpace(rawURL), "/")
	for _, prefix := range []string{"http://", "https://", "www."} {
		address = strings.TrimPrefix(address, prefix)
	}

	h := fnv.New64()
	_, _ = h.Write([]byte(address))

	tail := address
	if idx := strings.LastIndexByte(tail, '/'); idx >= 0 {
		tail = tail[idx+1:]
	}
	tail = sanitizeSegment(tail)

	// 超长时从头部按字符截断，保留扩展名。
	for len(tail) > maxNameSuffix {
		_, size := utf8.DecodeRuneInString(tail)
		tail = tail[size:]
	}
	if strings.HasSuffix(tail, bakSuffix) {
		tail = tail[:len(tail)-len(bakSuffix)] + "_bak"
	}

	return fmt.Sprintf("%X_%s", h.Sum64(), tail)
}

func sanitizeSegment(segment string) string {
	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		switch {
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case r == utf8.RuneError:
			b.WriteByte('_')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
