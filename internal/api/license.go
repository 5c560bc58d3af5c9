package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/api/middleware"
	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/pkg/models"
)

// attachPublicLicenseRoutes registers the endpoints the POS and clinic
// software call before anyone logs in.
func (s *Server) attachPublicLicenseRoutes(g *echo.Group) {
	g.POST("/activate", s.handleActivate)
	g.GET("/validate", s.handleValidate)
	g.POST("/validate", s.handleValidate)
}

// attachLicenseRoutes registers license administration under /api. Staff
// may read; everything that changes a license is admin only.
func (s *Server) attachLicenseRoutes(api *echo.Group, requireAuth, staff, admin echo.MiddlewareFunc) {
	g := api.Group("/licenses", requireAuth, staff)
	g.GET("", s.handleListLicenses)
	g.POST("", s.handleIssueLicense, admin)
	g.GET("/:id", s.handleGetLicense)
	g.PUT("/:id", s.handleUpdateLicense, admin)
	g.DELETE("/:id", s.handleDeleteLicense, admin)
	g.POST("/:id/pause", s.licenseTransition((*license.Service).Pause), admin)
	g.POST("/:id/resume", s.licenseTransition((*license.Service).Resume), admin)
	g.POST("/:id/revoke", s.licenseTransition((*license.Service).Revoke), admin)
	g.POST("/:id/renew", s.handleRenewLicense, admin)
	g.GET("/:id/devices", s.handleListDevices)
	g.DELETE("/:id/devices/:deviceId", s.handleDeactivateDevice, admin)

	api.GET("/transactions", s.handleListTransactions, requireAuth, admin)
}

func (s *Server) handleActivate(c echo.Context) error {
	var req license.ActivateRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := s.deps.Licenses.Activate(c.Request().Context(), auth.Actor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// handleValidate accepts the serial as a query parameter or a JSON body
func (s *Server) handleValidate(c echo.Context) error {
	serial := c.QueryParam("serial")
	if serial == "" && c.Request().Method == http.MethodPost {
		var body struct {
			Serial string `json:"serial"`
		}
		if err := c.Bind(&body); err != nil {
			return apperr.Wrap(middleware.ErrBadBody, err)
		}
		serial = body.Serial
	}
	res, err := s.deps.Licenses.Validate(c.Request().Context(), serial)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListLicenses(c echo.Context) error {
	clinicID, err := middleware.QueryID(c, "clinicId")
	if err != nil {
		return err
	}
	limit, offset := middleware.Paging(c)
	items, total, err := s.deps.Licenses.List(c.Request().Context(), license.ListFilter{
		Status:   models.LicenseStatus(c.QueryParam("status")),
		Search:   c.QueryParam("search"),
		ClinicID: clinicID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, middleware.Page("licenses", items, total, limit, offset))
}

func (s *Server) handleIssueLicense(c echo.Context) error {
	var req license.IssueRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	l, err := s.deps.Licenses.Issue(c.Request().Context(), auth.Actor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

func (s *Server) handleGetLicense(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	l, err := s.deps.Licenses.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (s *Server) handleUpdateLicense(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req license.UpdateRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	l, err := s.deps.Licenses.Update(c.Request().Context(), auth.Actor(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (s *Server) handleDeleteLicense(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := s.deps.Licenses.Delete(c.Request().Context(), auth.Actor(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type licenseTransitionFunc func(*license.Service, context.Context, models.Actor, int64) (*models.License, error)

// licenseTransition adapts pause, resume and revoke, which share a shape
func (s *Server) licenseTransition(fn licenseTransitionFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := middleware.ParamID(c, "id")
		if err != nil {
			return err
		}
		l, err := fn(s.deps.Licenses, c.Request().Context(), auth.Actor(c), id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, l)
	}
}

// RenewRequest is the body of POST /api/licenses/:id/renew
type RenewRequest struct {
	Months int `json:"months"`
}

func (s *Server) handleRenewLicense(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req RenewRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	l, err := s.deps.Licenses.Renew(c.Request().Context(), auth.Actor(c), id, req.Months)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (s *Server) handleListDevices(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	devices, err := s.deps.Licenses.Devices(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, devices)
}

func (s *Server) handleDeactivateDevice(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	deviceID, err := middleware.ParamID(c, "deviceId")
	if err != nil {
		return err
	}
	d, err := s.deps.Licenses.DeactivateDevice(c.Request().Context(), auth.Actor(c), id, deviceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) handleListTransactions(c echo.Context) error {
	licenseID, err := middleware.QueryID(c, "licenseId")
	if err != nil {
		return err
	}
	limit, offset := middleware.Paging(c)
	items, err := s.deps.Licenses.Transactions(c.Request().Context(), license.TransactionFilter{
		LicenseID: licenseID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}
