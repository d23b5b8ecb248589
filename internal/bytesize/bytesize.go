// Package bytesize converts human readable capacities such as "10GB" or
// "512MiB" into byte counts and back. Every unit is a binary multiple, so
// "KB" and "KiB" both mean 1024 bytes.
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type unit struct {
	suffix     string
	multiplier uint64
}

// suffixes 按长度降序排列，保证 "KiB" 先于 "B" 被匹配。
var suffixes = []unit{
	{"TiB", 1 << 40},
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// Parse 解析容量字符串。只有在存在大于 1 的倍数时才接受小数，
// 因此 "1.5" 非法而 "1.5MB" 合法。
func Parse(input string) (uint64, bool) {
	value := strings.TrimSpace(input)
	multiplier := uint64(1)

	for _, u := range suffixes {
		if len(value) > len(u.suffix) && strings.EqualFold(value[len(value)-len(u.suffix):], u.suffix) {
			value = strings.TrimSpace(value[:len(value)-len(u.suffix)])
			multiplier = u.multiplier
			break
		}
	}

	if n, err := strconv.ParseUint(value, 10, 64); err == nil {
		if multiplier > 1 && n > math.MaxUint64/multiplier {
			return 0, false
		}
		return n * multiplier, true
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if multiplier == 1 {
		if f != math.Trunc(f) || f >= math.MaxUint64 {
			return 0, false
		}
		return uint64(f), true
	}

	scaled := f * float64(multiplier)
	if scaled >= math.MaxUint64 {
		return 0, false
	}
	return uint64(scaled), true
}

var formatUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// Format renders n for logs, e.g. 1536 -> "1.500KB".
func Format(n uint64) string {
	value := float64(n)
	idx := 0
	for value >= 1024 && idx < len(formatUnits)-1 {
		value /= 1024
		idx++
	}
	return fmt.Sprintf("%.3f%s", value, formatUnits[idx])
}
