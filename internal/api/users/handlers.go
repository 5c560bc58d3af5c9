package users

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/api/middleware"
)

// UserHandlers contains the user management handler methods
type UserHandlers struct {
	userService *UserService
}

// NewUserHandlers creates a new user handlers instance
func NewUserHandlers(userService *UserService) *UserHandlers {
	return &UserHandlers{userService: userService}
}

// Register mounts the handlers on an admin-only group
func (uh *UserHandlers) Register(g *echo.Group) {
	g.GET("", uh.ListUsers)
	g.POST("", uh.CreateUser)
	g.GET("/:id", uh.GetUser)
	g.PUT("/:id", uh.UpdateUser)
	g.DELETE("/:id", uh.DeleteUser)
	g.POST("/:id/logout", uh.ForceLogout)
}

func (uh *UserHandlers) ListUsers(c echo.Context) error {
	clinicID, err := middleware.QueryID(c, "clinicId")
	if err != nil {
		return err
	}
	limit, offset := middleware.Paging(c)
	users, total, err := uh.userService.List(c.Request().Context(), Filter{
		Role:     c.QueryParam("role"),
		ClinicID: clinicID,
		Search:   c.QueryParam("search"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, middleware.Page("users", users, total, limit, offset))
}

func (uh *UserHandlers) GetUser(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	user, err := uh.userService.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (uh *UserHandlers) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := uh.userService.Create(c.Request().Context(), auth.Actor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

func (uh *UserHandlers) UpdateUser(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateUserRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := uh.userService.Update(c.Request().Context(), auth.Actor(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (uh *UserHandlers) DeleteUser(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := uh.userService.Delete(c.Request().Context(), auth.Actor(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (uh *UserHandlers) ForceLogout(c echo.Context) error {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		return err
	}
	n, err := uh.userService.ForceLogout(c.Request().Context(), auth.Actor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "User logged out", "sessionsEnded": n})
}
