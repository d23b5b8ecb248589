package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/fastly/pathly-visualizer/internal/bytesize"
)

// CacheStats 是 /-/cache 所需的只读缓存视图，*cache.Store 满足该接口。
type CacheStats interface {
	CacheSpace() (uint64, uint64)
	Len() int
	Dir() string
}

type cachePayload struct {
	Directory  string `json:"directory"`
	Used       uint64 `json:"used"`
	Limit      uint64 `json:"limit"`
	UsedHuman  string `json:"used_human"`
	LimitHuman string `json:"limit_human"`
	Entries    int    `json:"entries"`
}

// RegisterCacheRoutes 暴露 /-/cache，用于查看磁盘缓存用量与条目数。
func RegisterCacheRoutes(app *fiber.App, stats CacheStats) {
	if app == nil || stats == nil {
		return
	}

	app.Get("/-/cache", func(c fiber.Ctx) error {
		return c.JSON(encodeCache(stats))
	})
}

func encodeCache(stats CacheStats) cachePayload {
	used, limit := stats.CacheSpace()
	return cachePayload{
		Directory:  stats.Dir(),
		Used:       used,
		Limit:      limit,
		UsedHuman:  bytesize.Format(used),
		LimitHuman: bytesize.Format(limit),
		Entries:    stats.Len(),
	}
}
