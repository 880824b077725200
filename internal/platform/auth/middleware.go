package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	userIDKey = "user_id"
	rolesKey  = "user_roles"
)

// Claims carried by the bearer tokens this server accepts.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// JWT validates HS256 bearer tokens and stashes the subject and roles on
// the request context. Token issuance lives outside this service.
func JWT(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(userIDKey, claims.Subject)
			c.Set(rolesKey, claims.Roles)
			return next(c)
		}
	}
}

// DevAuth grants every request admin access. Development mode only.
func DevAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(userIDKey, "dev-user")
			c.Set(rolesKey, []string{"admin"})
			return next(c)
		}
	}
}

// RequireRole rejects requests whose token carries none of the given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			have, _ := c.Get(rolesKey).([]string)
			for _, want := range roles {
				for _, r := range have {
					if r == want {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// UserID returns the authenticated subject, if any.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// HasRole reports whether the authenticated user carries a role.
func HasRole(c echo.Context, role string) bool {
	have, _ := c.Get(rolesKey).([]string)
	for _, r := range have {
		if r == role {
			return true
		}
	}
	return false
}
