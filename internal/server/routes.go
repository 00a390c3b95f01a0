package server

import (
	"context"
	"net/http"
	"time"

	"checkout/internal/config"
	"checkout/internal/metrics"
	"checkout/internal/middleware"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// 各Handlerは認証済みの /api グループに自分のルートを登録する
type RouteRegistrar interface {
	RegisterRoutes(g *echo.Group)
}

// 疎通確認（DBなど）。nilなら常にok
type ReadyFunc func(ctx context.Context) error

func registerRoutes(e *echo.Echo, cfg config.JWT, gatherer prometheus.Gatherer, ready ReadyFunc, handlers ...RouteRegistrar) {
	e.GET("/healthz", healthz(ready))
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(gatherer)))
	}

	api := e.Group("/api", middleware.AuthJWT(cfg))
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
}

func healthz(ready ReadyFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
