package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/database"
)

var ErrBadBody = apperr.Validation("Invalid request body")

// BindAndValidate decodes the request into req and runs the echo validator
func BindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Wrap(ErrBadBody, err)
	}
	return c.Validate(req)
}

// BindOptionalJSON decodes a JSON body that may be absent. A missing or
// empty body leaves req untouched whether or not the client sent a length.
func BindOptionalJSON(c echo.Context, req any) error {
	body := c.Request().Body
	if body == nil {
		return nil
	}
	err := json.NewDecoder(body).Decode(req)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(ErrBadBody, err)
	}
	return nil
}

// ParamID parses a positive integer path parameter
func ParamID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("Invalid " + name)
	}
	return id, nil
}

// QueryID parses an optional positive integer query parameter
func QueryID(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperr.Validation("Invalid " + name)
	}
	return &id, nil
}

// Paging reads limit/offset query parameters, clamped to the storage bounds
func Paging(c echo.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	offset, _ = strconv.Atoi(c.QueryParam("offset"))
	return database.ClampPage(limit, offset)
}

// Page is the list envelope: items under key plus paging metadata
func Page(key string, items any, total, limit, offset int) map[string]any {
	return map[string]any{key: items, "total": total, "limit": limit, "offset": offset}
}
