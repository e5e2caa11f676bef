package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"

	RoleAdmin = "admin"

	actorKey = "actor"
)

// Actor is the caller identity forwarded by the gateway. Authentication
// happens upstream.
type Actor struct {
	UserID int64
	Roles  []string
}

func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// ActorMiddleware reads the identity headers. Requests without X-User-ID
// continue anonymously.
func ActorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var actor Actor

			if raw := c.Request().Header.Get(HeaderUserID); raw != "" {
				id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
				if err != nil || id <= 0 {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+HeaderUserID+" header")
				}
				actor.UserID = id
			}

			for _, role := range strings.Split(c.Request().Header.Get(HeaderUserRoles), ",") {
				if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
					actor.Roles = append(actor.Roles, role)
				}
			}

			c.Set(actorKey, actor)
			return next(c)
		}
	}
}

func ActorFrom(c echo.Context) Actor {
	actor, _ := c.Get(actorKey).(Actor)
	return actor
}

func RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !ActorFrom(c).Authenticated() {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return next(c)
	}
}

func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := ActorFrom(c)
		if !actor.Authenticated() {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		if !actor.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "admin role required")
		}
		return next(c)
	}
}
