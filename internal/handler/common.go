// Package handler contains the HTTP handlers.  Handlers bind and
// validate requests, delegate to the service layer and translate
// sentinel errors into HTTP responses; they never touch transactions
// themselves.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/moyeora/group-order/internal/repository"
	"github.com/moyeora/group-order/internal/service"
)

// getUserID extracts the authenticated user's ID from the context.
// JWT claims decode numbers as float64, so several representations
// are accepted.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// serviceError maps sentinel errors from the service and repository
// layers onto HTTP responses.  Unknown errors become opaque 500s.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrMeetingNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrOrderItemNotFound),
		errors.Is(err, repository.ErrStoreNotFound),
		errors.Is(err, repository.ErrMenuNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrInvalidCapacity),
		errors.Is(err, service.ErrInvalidDeadline),
		errors.Is(err, service.ErrInvalidAmount):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrMeetingFull),
		errors.Is(err, service.ErrDeadlinePassed),
		errors.Is(err, service.ErrAlreadyJoined),
		errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
