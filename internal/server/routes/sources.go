package routes

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/fastly/pathly-visualizer/internal/source"
)

// RegisterSourceRoutes 暴露 /-/sources，列出可通过 /fetch/<name>/ 访问的数据源。
func RegisterSourceRoutes(app *fiber.App) {
	if app == nil {
		return
	}

	app.Get("/-/sources", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"sources": source.List()})
	})

	app.Get("/-/sources/:name", func(c fiber.Ctx) error {
		name := strings.TrimSpace(c.Params("name"))
		src, err := source.Resolve(name)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "source_not_found"})
		}
		return c.JSON(src)
	})
}
