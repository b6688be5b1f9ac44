package handlers

import (
	"net/http"

	"law_flow_notify/services"

	"github.com/labstack/echo/v4"
)

type emailTemplateResponse struct {
	Key        string                        `json:"key"`
	Subject    string                        `json:"subject"`
	HTML       string                        `json:"html"`
	Overridden bool                          `json:"overridden"`
	Default    services.EmailTemplateContent `json:"default"`
}

type saveEmailTemplateRequest struct {
	Subject string `json:"subject" validate:"required,max=255"`
	HTML    string `json:"html" validate:"required"`
}

func (a *API) ListEmailTemplates(c echo.Context) error {
	keys := a.Templates.Keys()
	out := make([]emailTemplateResponse, 0, len(keys))
	for _, key := range keys {
		tpl, err := a.emailTemplate(c, key)
		if err != nil {
			return err
		}
		out = append(out, *tpl)
	}
	return c.JSON(http.StatusOK, out)
}

func (a *API) GetEmailTemplate(c echo.Context) error {
	tpl, err := a.emailTemplate(c, c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tpl)
}

// SaveEmailTemplate stores an override; the HTML is sanitized before saving
func (a *API) SaveEmailTemplate(c echo.Context) error {
	var req saveEmailTemplateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	userID := currentUser(c).ID
	if _, err := a.Templates.SaveOverride(c.Request().Context(), c.Param("key"), req.Subject, req.HTML, &userID); err != nil {
		return toHTTPError(err)
	}
	tpl, err := a.emailTemplate(c, c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tpl)
}

// ResetEmailTemplate drops the override so the built-in default applies
func (a *API) ResetEmailTemplate(c echo.Context) error {
	if err := a.Templates.ResetOverride(c.Request().Context(), c.Param("key")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) emailTemplate(c echo.Context, key string) (*emailTemplateResponse, error) {
	def, ok := a.Templates.GetDefault(key)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "Unknown email template")
	}
	override, err := a.Templates.GetByKey(c.Request().Context(), key)
	if err != nil {
		return nil, toHTTPError(err)
	}

	resp := &emailTemplateResponse{Key: key, Subject: def.Subject, HTML: def.HTML, Default: def}
	if override != nil {
		resp.Subject = override.Subject
		resp.HTML = override.HTML
		resp.Overridden = true
	}
	return resp, nil
}
