package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/api/middleware"
	"github.com/licensehub/internal/catalog"
	"github.com/licensehub/pkg/models"
)

// attachCatalogRoutes registers plans, currencies, app versions and
// notifications. The update check and a user's own notifications are the
// only non-admin routes.
func (s *Server) attachCatalogRoutes(api *echo.Group, requireAuth, admin echo.MiddlewareFunc) {
	api.GET("/versions/latest", s.handleLatestVersion)
	api.GET("/notifications/mine", s.handleMyNotifications, requireAuth)

	plans := api.Group("/plans", requireAuth, admin)
	plans.GET("", s.handleListPlans)
	plans.POST("", s.handleCreatePlan)
	plans.GET("/:id", s.handleGetPlan)
	plans.PUT("/:id", s.handleUpdatePlan)
	plans.DELETE("/:id", s.handleDeletePlan)

	currencies := api.Group("/currencies", requireAuth, admin)
	currencies.GET("", s.handleListCurrencies)
	currencies.POST("", s.handleCreateCurrency)
	currencies.PUT("/:id", s.handleUpdateCurrency)
	currencies.DELETE("/:id", s.handleDeleteCurrency)

	versions := api.Group("/versions", requireAuth, admin)
	versions.GET("", s.handleListVersions)
	versions.POST("", s.handleCreateVersion)
	versions.PUT("/:id", s.handleUpdateVersion)
	versions.DELETE("/:id", s.handleDeleteVersion)

	notifications := api.Group("/notifications", requireAuth, admin)
	notifications.GET("", s.handleListNotifications)
	notifications.POST("", s.handleCreateNotification)
	notifications.DELETE("/:id", s.handleDeleteNotification)
}

// Plans

func (s *Server) handleListPlans(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	plans, err := s.deps.Catalog.Plans(c.Request().Context(), activeOnly)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, plans)
}

func (s *Server) handleGetPlan(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := s.deps.Catalog.Plan(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleCreatePlan(c echo.Context) error {
	var in catalog.PlanInput
	if err := middleware.BindAndValidate(c, &in); err != nil {
		return err
	}
	p, err := s.deps.Catalog.CreatePlan(c.Request().Context(), auth.Actor(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) handleUpdatePlan(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var patch catalog.PlanPatch
	if err := middleware.BindAndValidate(c, &patch); err != nil {
		return err
	}
	p, err := s.deps.Catalog.UpdatePlan(c.Request().Context(), auth.Actor(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeletePlan(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := s.deps.Catalog.DeletePlan(c.Request().Context(), auth.Actor(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Currencies

func (s *Server) handleListCurrencies(c echo.Context) error {
	items, err := s.deps.Catalog.Currencies(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleCreateCurrency(c echo.Context) error {
	var in catalog.CurrencyInput
	if err := middleware.BindAndValidate(c, &in); err != nil {
		return err
	}
	cur, err := s.deps.Catalog.CreateCurrency(c.Request().Context(), auth.Actor(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cur)
}

func (s *Server) handleUpdateCurrency(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var patch catalog.CurrencyPatch
	if err := middleware.BindAndValidate(c, &patch); err != nil {
		return err
	}
	cur, err := s.deps.Catalog.UpdateCurrency(c.Request().Context(), auth.Actor(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cur)
}

func (s *Server) handleDeleteCurrency(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := s.deps.Catalog.DeleteCurrency(c.Request().Context(), auth.Actor(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Versions

func (s *Server) handleLatestVersion(c echo.Context) error {
	res, err := s.deps.Catalog.Latest(c.Request().Context(), c.QueryParam("product"), c.QueryParam("current"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListVersions(c echo.Context) error {
	items, err := s.deps.Catalog.Versions(c.Request().Context(), c.QueryParam("product"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleCreateVersion(c echo.Context) error {
	var in catalog.VersionInput
	if err := middleware.BindAndValidate(c, &in); err != nil {
		return err
	}
	v, err := s.deps.Catalog.CreateVersion(c.Request().Context(), auth.Actor(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (s *Server) handleUpdateVersion(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var patch catalog.VersionPatch
	if err := middleware.BindAndValidate(c, &patch); err != nil {
		return err
	}
	v, err := s.deps.Catalog.UpdateVersion(c.Request().Context(), auth.Actor(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) handleDeleteVersion(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := s.deps.Catalog.DeleteVersion(c.Request().Context(), auth.Actor(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Notifications

func (s *Server) handleListNotifications(c echo.Context) error {
	limit, offset := middleware.Paging(c)
	items, err := s.deps.Catalog.Notifications(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// handleMyNotifications returns what the caller's clinic should see.
// Users without a clinic only get broadcasts.
func (s *Server) handleMyNotifications(c echo.Context) error {
	var clinicID int64
	if u := auth.GetUser(c); u != nil && u.Role == models.RoleClinic && u.ClinicID != nil {
		clinicID = *u.ClinicID
	}
	items, err := s.deps.Catalog.ForClinic(c.Request().Context(), clinicID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleCreateNotification(c echo.Context) error {
	var in catalog.NotificationInput
	if err := middleware.BindAndValidate(c, &in); err != nil {
		return err
	}
	n, err := s.deps.Catalog.CreateNotification(c.Request().Context(), auth.Actor(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, n)
}

func (s *Server) handleDeleteNotification(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := s.deps.Catalog.DeleteNotification(c.Request().Context(), auth.Actor(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
