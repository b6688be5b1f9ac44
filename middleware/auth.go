package middleware

import (
	"errors"
	"net/http"
	"strings"

	"law_flow_notify/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const (
	// UserIDHeader carries the authenticated user id set by the upstream
	// auth layer (gateway or session service)
	UserIDHeader = "X-User-ID"
	// ContextKeyUser is the context key for the authenticated user
	ContextKeyUser = "user"
)

// RequireUser loads the user named by the X-User-ID header. Unknown or
// inactive users are rejected.
func RequireUser(database *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.TrimSpace(c.Request().Header.Get(UserIDHeader))
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
			}

			var user models.User
			err := database.WithContext(c.Request().Context()).First(&user, "id = ?", userID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unknown user")
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load user").SetInternal(err)
			}
			if !user.IsActive {
				return echo.NewHTTPError(http.StatusForbidden, "Account is inactive")
			}

			c.Set(ContextKeyUser, &user)
			return next(c)
		}
	}
}

// RequireRole is middleware that requires specific roles
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := GetCurrentUser(c)
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
			}

			hasRole := false
			for _, role := range roles {
				if user.Role == role {
					hasRole = true
					break
				}
			}

			if !hasRole {
				return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
			}

			return next(c)
		}
	}
}

// GetCurrentUser retrieves the current user from context
func GetCurrentUser(c echo.Context) *models.User {
	user, ok := c.Get(ContextKeyUser).(*models.User)
	if !ok {
		return nil
	}
	return user
}
