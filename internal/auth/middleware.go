package auth

import (
	"net/http"
	"strings"

	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/labstack/echo/v4"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Middleware rejects requests without a valid "Bearer <token>" header and
// stores the caller's id and role in the Echo context.
func (ts *TokenService) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			claims, err := ts.fromHeader(header)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxRole, claims.Role)
			return next(c)
		}
	}
}

// OptionalMiddleware authenticates when a header is present and lets
// anonymous requests through (guest donations).
func (ts *TokenService) OptionalMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return next(c)
			}
			claims, err := ts.fromHeader(header)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxRole, claims.Role)
			return next(c)
		}
	}
}

func (ts *TokenService) fromHeader(header string) (*Claims, error) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return nil, echo.ErrUnauthorized
	}
	return ts.ValidateAccessToken(token)
}

// GetUserID extracts the authenticated user ID from the Echo context.
func GetUserID(c echo.Context) int64 {
	return c.Get(ctxUserID).(int64)
}

// OptionalUserID returns the caller's id, if authenticated.
func OptionalUserID(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxUserID).(int64)
	return id, ok
}

// GetRole returns the role snapshot from the access token.
func GetRole(c echo.Context) models.Role {
	role, _ := c.Get(ctxRole).(models.Role)
	return role
}
