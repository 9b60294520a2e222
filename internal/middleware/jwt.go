package middleware // reusable HTTP middleware shared by the routers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/charaka/user-auth-service/internal/utils"
)

// Context keys populated by JWTAuth for downstream handlers.
const (
	CtxUserID = "user_id"
	CtxClaims = "claims"
)

// JWTAuth returns an Echo middleware that validates a session token from
// either the Authorization header (Bearer) or the token cookie, and injects
// the parsed claims into the request context.  Both carriers are accepted
// because the login flow delivers the token through both.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				raw = strings.TrimPrefix(auth, "Bearer ")
			} else if ck, err := c.Cookie("token"); err == nil {
				raw = ck.Value
			}
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			claims, err := utils.ParseSessionToken(secret, raw)
			if err != nil || claims.UserID == 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			// Rate limiting keys off the string form of the user id.
			c.Set(CtxUserID, strconv.FormatUint(claims.UserID, 10))
			c.Set(CtxClaims, claims)
			return next(c)
		}
	}
}

// CurrentClaims pulls the parsed session claims out of the context.  The
// second return is false when JWTAuth did not run on the route.
func CurrentClaims(c echo.Context) (utils.SessionClaims, bool) {
	claims, ok := c.Get(CtxClaims).(utils.SessionClaims)
	return claims, ok
}
