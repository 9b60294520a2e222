package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole enforces that the authenticated caller holds at least one of
// the given role ids.  It assumes JWTAuth already stored the session claims
// in the context; requests without claims or without a matching role get a
// 403, keeping the authorization denial distinct from the 401s the auth
// middleware produces.
func RequireRole(roleIDs ...uint64) echo.MiddlewareFunc {
	allowed := make(map[uint64]bool, len(roleIDs))
	for _, id := range roleIDs {
		allowed[id] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := CurrentClaims(c)
			if !ok {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			for _, id := range claims.RoleIDs {
				if allowed[id] {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}
