package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/api/middleware"
	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/clinic"
	"github.com/licensehub/pkg/models"
)

var errClinicIDRequired = apperr.Validation("clinicId is required")

// attachClinicRoutes registers tenant registration, the public controls
// endpoints used by the clinic software, and clinic administration.
func (s *Server) attachClinicRoutes(api *echo.Group, requireAuth, staff, admin echo.MiddlewareFunc) {
	api.POST("/clinics/register", s.handleRegisterClinic)
	api.GET("/clinics/:id/controls", s.handleGetControls)
	api.POST("/clinics/:id/controls/check", s.handleCheckControls)

	g := api.Group("/clinics", requireAuth, staff)
	g.GET("", s.handleListClinics)
	g.GET("/:id", s.handleGetClinic)
	g.DELETE("/:id", s.handleDeleteClinic, admin)
	g.POST("/:id/approve", s.handleApproveClinic, admin)
	g.POST("/:id/reject", s.handleRejectClinic, admin)
	g.POST("/:id/suspend", s.handleSuspendClinic, admin)
	g.POST("/:id/logout", s.handleClinicLogout, admin)
	g.PUT("/:id/controls", s.handleUpdateControls, admin)
}

func (s *Server) handleRegisterClinic(c echo.Context) error {
	var req clinic.RegisterRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	cl, err := s.deps.Clinics.Register(c.Request().Context(), auth.Actor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cl)
}

// handleSubscriptionStatus resolves the clinic from a clinic user's token,
// falling back to the clinicId query parameter.
func (s *Server) handleSubscriptionStatus(c echo.Context) error {
	var clinicID *int64
	if u := auth.GetUser(c); u != nil && u.Role == models.RoleClinic {
		clinicID = u.ClinicID
	}
	if clinicID == nil {
		id, err := middleware.QueryID(c, "clinicId")
		if err != nil {
			return err
		}
		clinicID = id
	}
	if clinicID == nil {
		return errClinicIDRequired
	}
	st, err := s.deps.Subscriptions.Status(c.Request().Context(), *clinicID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleListClinics(c echo.Context) error {
	limit, offset := middleware.Paging(c)
	items, total, err := s.deps.Clinics.List(c.Request().Context(), clinic.ListFilter{
		Status: models.ClinicStatus(c.QueryParam("status")),
		Search: c.QueryParam("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, middleware.Page("clinics", items, total, limit, offset))
}

func (s *Server) handleGetClinic(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	cl, err := s.deps.Clinics.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (s *Server) handleDeleteClinic(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := s.deps.Clinics.Delete(c.Request().Context(), auth.Actor(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ApproveRequest optionally names the plan the clinic's license is issued
// from.
type ApproveRequest struct {
	PlanID *int64 `json:"planId"`
}

func (s *Server) handleApproveClinic(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req ApproveRequest
	if err := middleware.BindOptionalJSON(c, &req); err != nil {
		return err
	}
	cl, err := s.deps.Clinics.Approve(c.Request().Context(), auth.Actor(c), id, req.PlanID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (s *Server) handleRejectClinic(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	cl, err := s.deps.Clinics.Reject(c.Request().Context(), auth.Actor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (s *Server) handleSuspendClinic(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	cl, err := s.deps.Clinics.ToggleSuspension(c.Request().Context(), auth.Actor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (s *Server) handleClinicLogout(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	n, err := s.deps.Clinics.ForceLogout(c.Request().Context(), auth.Actor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Clinic users logged out", "sessionsEnded": n})
}

func (s *Server) handleGetControls(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	ctl, err := s.deps.Controls.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctl)
}

func (s *Server) handleUpdateControls(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var patch clinic.ControlsPatch
	if err := middleware.BindAndValidate(c, &patch); err != nil {
		return err
	}
	ctl, err := s.deps.Controls.Update(c.Request().Context(), auth.Actor(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctl)
}

// ControlsCheckRequest is what the clinic software is about to hold plus
// the feature it wants to use, if any.
type ControlsCheckRequest struct {
	clinic.Usage
	Feature string `json:"feature"`
}

func (s *Server) handleCheckControls(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req ControlsCheckRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	ctl, err := s.deps.Controls.Enforce(c.Request().Context(), id, req.Usage, req.Feature)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"allowed": true, "controls": ctl})
}
