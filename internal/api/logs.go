package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/api/middleware"
	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/traffic"
)

func (s *Server) attachLogRoutes(api *echo.Group, requireAuth, admin echo.MiddlewareFunc) {
	al := api.Group("/audit-logs", requireAuth, admin)
	al.GET("", s.handleListAuditLogs)
	al.DELETE("", s.handleClearAuditLogs)

	tl := api.Group("/traffic-logs", requireAuth, admin)
	tl.GET("", s.handleListTrafficLogs)
	tl.DELETE("", s.handleClearTrafficLogs)
}

func (s *Server) handleListAuditLogs(c echo.Context) error {
	userID, err := middleware.QueryID(c, "userId")
	if err != nil {
		return err
	}
	limit, offset := middleware.Paging(c)
	items, total, err := s.deps.AuditLogs.List(c.Request().Context(), audit.Filter{
		Action: c.QueryParam("action"),
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, middleware.Page("logs", items, total, limit, offset))
}

func (s *Server) handleClearAuditLogs(c echo.Context) error {
	n, err := s.deps.AuditLogs.Clear(c.Request().Context(), auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Audit logs cleared", "removed": n})
}

func (s *Server) handleListTrafficLogs(c echo.Context) error {
	userID, err := middleware.QueryID(c, "userId")
	if err != nil {
		return err
	}
	var status int
	if raw := c.QueryParam("status"); raw != "" {
		if status, err = strconv.Atoi(raw); err != nil {
			return apperr.Validation("Invalid status")
		}
	}
	limit, offset := middleware.Paging(c)
	items, total, err := s.deps.TrafficLogs.List(c.Request().Context(), traffic.Filter{
		Method: c.QueryParam("method"),
		Path:   c.QueryParam("path"),
		Status: status,
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, middleware.Page("logs", items, total, limit, offset))
}

func (s *Server) handleClearTrafficLogs(c echo.Context) error {
	n, err := s.deps.TrafficLogs.Clear(c.Request().Context(), auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Traffic logs cleared", "removed": n})
}
