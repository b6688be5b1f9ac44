package handlers

import (
	"errors"
	"net/http"

	"law_flow_notify/middleware"
	"law_flow_notify/models"
	"law_flow_notify/services"
	"law_flow_notify/services/jobs"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// API holds the services behind the JSON endpoints
type API struct {
	DB            *gorm.DB
	Cases         *services.CaseService
	Activity      *services.CaseActivityService
	Notifications *services.NotificationService
	Templates     *services.TemplateStore
	Scheduler     *jobs.Scheduler
	Scanner       *jobs.InactivityScanner
	Digest        *jobs.DigestBuilder
}

// Register mounts every route on e. limiter may be nil.
func (a *API) Register(e *echo.Echo, limiter *middleware.RateLimiter, gatherer prometheus.Gatherer) {
	e.Validator = NewRequestValidator()

	e.GET("/health", a.Health)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	api.Use(middleware.RequireUser(a.DB))
	if limiter != nil {
		api.Use(limiter.Middleware())
	}

	// Cases
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleLawyer)
	api.POST("/cases", a.CreateCase, staff)
	api.GET("/cases/:id", a.GetCase)
	api.GET("/cases/:id/events", a.ListCaseEvents)
	api.PUT("/cases/:id/status", a.UpdateCaseStatus, staff)
	api.PUT("/cases/:id/lawyer", a.AssignCaseLawyer, middleware.RequireRole(models.RoleAdmin))
	api.GET("/cases/:id/messages", a.ListCaseMessages)
	api.POST("/cases/:id/messages", a.PostCaseMessage)
	api.POST("/cases/:id/documents", a.RecordCaseDocument)

	// Notifications of the current user
	api.GET("/notifications", a.ListNotifications)
	api.GET("/notifications/unread-count", a.UnreadNotificationCount)
	api.POST("/notifications/read-all", a.MarkAllNotificationsRead)
	api.POST("/notifications/:id/read", a.MarkNotificationRead)
	api.DELETE("/notifications/:id", a.DeleteNotification)
	api.GET("/cases/:id/notifications", a.ListCaseNotifications)
	api.GET("/cases/:id/notifications/unread-count", a.CaseUnreadNotificationCount)
	api.POST("/cases/:id/notifications/read", a.MarkCaseNotificationsRead)

	// Email templates
	admin := api.Group("", middleware.RequireRole(models.RoleAdmin))
	admin.GET("/email-templates", a.ListEmailTemplates)
	admin.GET("/email-templates/:key", a.GetEmailTemplate)
	admin.PUT("/email-templates/:key", a.SaveEmailTemplate)
	admin.DELETE("/email-templates/:key", a.ResetEmailTemplate)

	// Jobs
	admin.POST("/jobs/inactivity-scan", a.RunInactivityScan)
	admin.POST("/jobs/weekly-digest", a.RunWeeklyDigest)
	api.GET("/lawyers/:id/digest.xlsx", a.ExportDigest, staff)
}

// Health reports whether the database answers
func (a *API) Health(c echo.Context) error {
	sqlDB, err := a.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// RequestValidator plugs go-playground/validator into echo's Validate
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validator: validator.New()}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	if err := rv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// bindAndValidate binds the request body into req and validates it
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return c.Validate(req)
}

// toHTTPError maps service errors onto HTTP statuses
func toHTTPError(err error) error {
	var nf *services.NotFoundError
	if errors.As(err, &nf) {
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	}
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
}

func currentUser(c echo.Context) *models.User {
	return middleware.GetCurrentUser(c)
}
