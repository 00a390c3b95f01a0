package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

const (
	ScopeRead  = "compras:read"
	ScopeWrite = "compras:write"
)

// contextに入っているscopeにrequiredが含まれるか確認します。
// AuthJWTの後ろに置く。
func RequireScope(required string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scopes, ok := c.Get(CtxScopesKey).([]string)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			if !slices.Contains(scopes, required) {
				return c.JSON(http.StatusForbidden, errorJSON("insufficient scope"))
			}

			return next(c)
		}
	}
}
