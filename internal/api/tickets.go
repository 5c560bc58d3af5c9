package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/api/middleware"
	"github.com/licensehub/internal/support"
)

// attachTicketRoutes registers support tickets. Every role may use them;
// the support service scopes clinic users to their own clinic.
func (s *Server) attachTicketRoutes(g *echo.Group) {
	g.GET("", s.handleListTickets)
	g.POST("", s.handleOpenTicket)
	g.GET("/:id", s.handleGetTicket)
	g.POST("/:id/messages", s.handleReplyTicket)
	g.POST("/:id/close", s.handleCloseTicket)
}

func requester(c echo.Context) (support.Requester, error) {
	u := auth.GetUser(c)
	if u == nil {
		return support.Requester{}, auth.ErrMissingToken
	}
	return support.Requester{Actor: auth.Actor(c), Role: u.Role, ClinicID: u.ClinicID}, nil
}

func (s *Server) handleListTickets(c echo.Context) error {
	r, err := requester(c)
	if err != nil {
		return err
	}
	clinicID, err := middleware.QueryID(c, "clinicId")
	if err != nil {
		return err
	}
	limit, offset := middleware.Paging(c)
	items, total, err := s.deps.Support.List(c.Request().Context(), r, support.ListFilter{
		ClinicID: clinicID,
		Status:   c.QueryParam("status"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, middleware.Page("tickets", items, total, limit, offset))
}

func (s *Server) handleOpenTicket(c echo.Context) error {
	r, err := requester(c)
	if err != nil {
		return err
	}
	var req support.OpenRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	t, err := s.deps.Support.Open(c.Request().Context(), r, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) handleGetTicket(c echo.Context) error {
	r, err := requester(c)
	if err != nil {
		return err
	}
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	t, err := s.deps.Support.Get(c.Request().Context(), r, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// ReplyRequest is the body of POST /api/tickets/:id/messages
type ReplyRequest struct {
	Body string `json:"body" validate:"required"`
}

func (s *Server) handleReplyTicket(c echo.Context) error {
	r, err := requester(c)
	if err != nil {
		return err
	}
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req ReplyRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	m, err := s.deps.Support.Reply(c.Request().Context(), r, id, req.Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (s *Server) handleCloseTicket(c echo.Context) error {
	r, err := requester(c)
	if err != nil {
		return err
	}
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	t, err := s.deps.Support.Close(c.Request().Context(), r, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}
