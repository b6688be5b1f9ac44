package handlers

import (
	"net/http"

	"law_flow_notify/models"
	"law_flow_notify/services"

	"github.com/labstack/echo/v4"
)

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type assignLawyerRequest struct {
	LawyerID string `json:"lawyer_id" validate:"required"`
}

type postMessageRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

type recordDocumentRequest struct {
	FileName   string `json:"file_name" validate:"required,max=255"`
	StorageKey string `json:"storage_key" validate:"max=1024"`
}

// CreateCase opens a case
func (a *API) CreateCase(c echo.Context) error {
	var req services.CaseInput
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	created, err := a.Cases.CreateCase(c.Request().Context(), req, currentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (a *API) GetCase(c echo.Context) error {
	found, err := a.accessibleCase(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, found)
}

// ListCaseEvents returns the case timeline, oldest first
func (a *API) ListCaseEvents(c echo.Context) error {
	found, err := a.accessibleCase(c)
	if err != nil {
		return err
	}
	events, err := a.Cases.ListCaseEvents(c.Request().Context(), found.ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, events)
}

func (a *API) UpdateCaseStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := a.Cases.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status, currentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (a *API) AssignCaseLawyer(c echo.Context) error {
	var req assignLawyerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := a.Cases.AssignLawyer(c.Request().Context(), c.Param("id"), req.LawyerID, currentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (a *API) ListCaseMessages(c echo.Context) error {
	found, err := a.accessibleCase(c)
	if err != nil {
		return err
	}
	messages, err := a.Activity.ListMessages(c.Request().Context(), found.ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

func (a *API) PostCaseMessage(c echo.Context) error {
	found, err := a.accessibleCase(c)
	if err != nil {
		return err
	}
	var req postMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	msg, err := a.Activity.PostMessage(c.Request().Context(), found.ID, currentUser(c).ID, req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// RecordCaseDocument registers a file already stored by the upload service
func (a *API) RecordCaseDocument(c echo.Context) error {
	found, err := a.accessibleCase(c)
	if err != nil {
		return err
	}
	var req recordDocumentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	doc, err := a.Activity.RecordDocumentUpload(c.Request().Context(), found.ID, currentUser(c).ID, req.FileName, req.StorageKey)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

// accessibleCase loads the :id case. Clients only see their own cases.
func (a *API) accessibleCase(c echo.Context) (*models.Case, error) {
	found, err := a.Cases.GetCase(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, toHTTPError(err)
	}
	user := currentUser(c)
	if user.Role == models.RoleClient && (found.Client == nil || found.Client.UserID != user.ID) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "You do not have access to this case")
	}
	return found, nil
}
