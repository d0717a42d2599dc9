package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/moyeora/group-order/internal/repository"
)

// PointHandler serves the caller's point ledger.
type PointHandler struct {
	Points *repository.PointRepo
}

// NewPointHandler constructs a PointHandler.
func NewPointHandler(points *repository.PointRepo) *PointHandler {
	if points == nil {
		panic("nil repository passed to NewPointHandler")
	}
	return &PointHandler{Points: points}
}

// History handles GET /v1/points/history: the authenticated user's
// ledger entries, newest first.
func (h *PointHandler) History(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Points.HistoryByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]echo.Map, 0, len(list))
	for _, e := range list {
		entry := echo.Map{
			"amount":      e.Amount,
			"type":        e.Type,
			"description": e.Description,
			"created_at":  e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.MeetingID != nil {
			entry["meeting_id"] = *e.MeetingID
		}
		out = append(out, entry)
	}
	return c.JSON(http.StatusOK, echo.Map{"history": out})
}
