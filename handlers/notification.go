package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ListNotifications returns the newest notifications of the current user.
// ?unread=true limits to unread ones, ?limit caps the count.
func (a *API) ListNotifications(c echo.Context) error {
	unreadOnly := c.QueryParam("unread") == "true"
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	notifications, err := a.Notifications.ListForUser(c.Request().Context(), currentUser(c).ID, unreadOnly, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, notifications)
}

func (a *API) UnreadNotificationCount(c echo.Context) error {
	count, err := a.Notifications.UnreadCount(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

func (a *API) MarkNotificationRead(c echo.Context) error {
	if err := a.Notifications.MarkAsRead(c.Request().Context(), c.Param("id"), currentUser(c).ID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) MarkAllNotificationsRead(c echo.Context) error {
	updated, err := a.Notifications.MarkAllAsRead(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": updated})
}

func (a *API) DeleteNotification(c echo.Context) error {
	if err := a.Notifications.Delete(c.Request().Context(), c.Param("id"), currentUser(c).ID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListCaseNotifications returns the current user's notifications about one case
func (a *API) ListCaseNotifications(c echo.Context) error {
	notifications, err := a.Notifications.ListForCase(c.Request().Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, notifications)
}

func (a *API) CaseUnreadNotificationCount(c echo.Context) error {
	count, err := a.Notifications.UnreadCountForCase(c.Request().Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

func (a *API) MarkCaseNotificationsRead(c echo.Context) error {
	updated, err := a.Notifications.MarkCaseAsRead(c.Request().Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": updated})
}
