package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FetchHandler describes the component that serves a resolved source route
// from the cache. It allows injecting fake handlers during tests.
type FetchHandler interface {
	Handle(fiber.Ctx, *SourceRoute) error
}

// FetchHandlerFunc adapts a function to the FetchHandler interface.
type FetchHandlerFunc func(fiber.Ctx, *SourceRoute) error

// Handle makes FetchHandlerFunc satisfy FetchHandler.
func (f FetchHandlerFunc) Handle(c fiber.Ctx, route *SourceRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Fetch      FetchHandler
	ListenPort int
}

const contextKeyRequestID = "_pathly_request_id"

// NewApp builds a Fiber application with request-id middleware, the
// /fetch/:source/* route and structured error handling. Diagnostics routes
// under /-/ are registered afterwards by the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Fetch == nil {
		return nil, errors.New("fetch handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	fetch := func(c fiber.Ctx) error {
		route, err := resolveRoute(c)
		if err != nil {
			return renderSourceNotFound(c, opts.Logger, c.Params("source"))
		}
		return opts.Fetch.Handle(c, route)
	}
	app.Get("/fetch/:source/*", fetch) // GET 同时注册 HEAD

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "route_not_found",
		})
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，并写入响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func renderSourceNotFound(c fiber.Ctx, logger *logrus.Logger, name string) error {
	logger.WithFields(logrus.Fields{
		"action":     "source_lookup",
		"source":     name,
		"request_id": RequestID(c),
	}).Warn("source not found")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "source_not_found",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
