package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"law_flow_notify/models"
	"law_flow_notify/services/jobs"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// RunInactivityScan triggers the inactivity scan now. It shares the job
// guard with the cron trigger, so a running scan answers 409.
func (a *API) RunInactivityScan(c echo.Context) error {
	var result jobs.ScanResult
	var runErr error
	ran := a.Scheduler.Run(c.Request().Context(), jobs.JobInactivityScan, func(ctx context.Context) error {
		result, runErr = a.Scanner.Run(ctx)
		return runErr
	})
	if !ran {
		return echo.NewHTTPError(http.StatusConflict, "Inactivity scan is already running")
	}
	if runErr != nil {
		return toHTTPError(runErr)
	}
	return c.JSON(http.StatusOK, result)
}

func (a *API) RunWeeklyDigest(c echo.Context) error {
	var result jobs.DigestResult
	var runErr error
	ran := a.Scheduler.Run(c.Request().Context(), jobs.JobWeeklyDigest, func(ctx context.Context) error {
		result, runErr = a.Digest.Run(ctx)
		return runErr
	})
	if !ran {
		return echo.NewHTTPError(http.StatusConflict, "Weekly digest is already running")
	}
	if runErr != nil {
		return toHTTPError(runErr)
	}
	return c.JSON(http.StatusOK, result)
}

// ExportDigest downloads the current digest of a lawyer as a spreadsheet.
// Lawyers may only export their own.
func (a *API) ExportDigest(c echo.Context) error {
	lawyerID := c.Param("id")
	user := currentUser(c)
	if user.Role == models.RoleLawyer {
		var lawyer models.Lawyer
		err := a.DB.WithContext(c.Request().Context()).First(&lawyer, "id = ?", lawyerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Lawyer not found")
		}
		if err != nil {
			return toHTTPError(err)
		}
		if lawyer.UserID != user.ID {
			return echo.NewHTTPError(http.StatusForbidden, "You can only export your own digest")
		}
	}

	payload, err := a.Digest.BuildForLawyerID(c.Request().Context(), lawyerID)
	if err != nil {
		return toHTTPError(err)
	}
	buf, err := a.Digest.ExportXLSX(payload)
	if err != nil {
		return toHTTPError(err)
	}

	filename := fmt.Sprintf("digest-%s.xlsx", payload.PeriodEnd.Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
