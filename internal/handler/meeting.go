package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/moyeora/group-order/internal/repository"
	"github.com/moyeora/group-order/internal/service"
)

// MeetingHandler serves the meeting lifecycle: creation, the public
// listing and detail reads, member joins, the leader's order commit
// and post-delivery settlement.
type MeetingHandler struct {
	Meetings    *service.MeetingService
	MeetingRepo *repository.MeetingRepo
	MemberRepo  *repository.MemberRepo
	PaymentRepo *repository.PaymentRepo
}

// NewMeetingHandler constructs a MeetingHandler.  All dependencies
// must be non-nil.
func NewMeetingHandler(meetings *service.MeetingService, meetingRepo *repository.MeetingRepo, memberRepo *repository.MemberRepo, paymentRepo *repository.PaymentRepo) *MeetingHandler {
	if meetings == nil || meetingRepo == nil || memberRepo == nil || paymentRepo == nil {
		panic("nil dependency passed to NewMeetingHandler")
	}
	return &MeetingHandler{Meetings: meetings, MeetingRepo: meetingRepo, MemberRepo: memberRepo, PaymentRepo: paymentRepo}
}

// Create handles POST /v1/meetings.  The caller becomes the leader
// and the first member; the deadline must be an RFC3339 timestamp in
// the future.
func (h *MeetingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		StoreID         uint64  `json:"store_id"`
		Title           string  `json:"title"`
		DiningType      string  `json:"dining_type"`
		OrderType       string  `json:"order_type"`
		PickupLocation  string  `json:"pickup_location"`
		MeetingLocation *string `json:"meeting_location"`
		MinMembers      int64   `json:"min_members"`
		MaxMembers      int64   `json:"max_members"`
		DeliveryFee     int64   `json:"delivery_fee"`
		Deadline        string  `json:"deadline"`
		Campus          *string `json:"campus"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.StoreID == 0 || body.Title == "" || body.PickupLocation == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "store_id, title and pickup_location are required"})
	}
	deadline, err := time.Parse(time.RFC3339, body.Deadline)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "deadline must be RFC3339"})
	}

	m, err := h.Meetings.Create(c.Request().Context(), userID, service.CreateParams{
		StoreID:         body.StoreID,
		Title:           body.Title,
		DiningType:      body.DiningType,
		OrderType:       body.OrderType,
		PickupLocation:  body.PickupLocation,
		MeetingLocation: body.MeetingLocation,
		MinMembers:      body.MinMembers,
		MaxMembers:      body.MaxMembers,
		DeliveryFee:     body.DeliveryFee,
		Deadline:        deadline,
		Campus:          body.Campus,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":       m.ID,
		"status":   m.Status,
		"deadline": m.Deadline.UTC().Format(time.RFC3339),
	})
}

// List handles GET /v1/meetings.  Supports campus and category
// filters plus sort=deadline|latest and page/limit pagination.  The
// response is a point-in-time snapshot and may lag joins by a cache
// TTL.
func (h *MeetingHandler) List(c echo.Context) error {
	f := repository.ListFilter{
		Campus:   c.QueryParam("campus"),
		Category: c.QueryParam("category"),
		Sort:     c.QueryParam("sort"),
	}
	if p := c.QueryParam("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			f.Page = n
		}
	}
	if l := c.QueryParam("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			f.Limit = n
		}
	}
	list, err := h.MeetingRepo.ListRecruiting(c.Request().Context(), f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"meetings": list})
}

// Detail handles GET /v1/meetings/:id.
func (h *MeetingHandler) Detail(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid meeting id"})
	}
	d, err := h.MeetingRepo.GetDetail(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrMeetingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "meeting not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, d)
}

// Join handles POST /v1/meetings/:id/join.  The body carries the
// member's cart and an optional point spend; the response reports the
// charged amount breakdown.
func (h *MeetingHandler) Join(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	meetingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid meeting id"})
	}
	var body struct {
		Items []struct {
			MenuID   uint64 `json:"menu_id"`
			Quantity int64  `json:"quantity"`
			IsShared bool   `json:"is_shared"`
		} `json:"items"`
		PointsUsed int64 `json:"points_used"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	items := make([]service.JoinItem, 0, len(body.Items))
	for _, it := range body.Items {
		if it.MenuID == 0 {
			continue
		}
		items = append(items, service.JoinItem{MenuID: it.MenuID, Quantity: it.Quantity, IsShared: it.IsShared})
	}

	res, err := h.Meetings.Join(c.Request().Context(), meetingID, userID, items, body.PointsUsed)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ProcessOrder handles POST /v1/meetings/:id/order, the leader's
// commit point.  A threshold failure is a committed cancellation, not
// a rollback, so it is reported as a conflict with cancelled=true.
func (h *MeetingHandler) ProcessOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	meetingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid meeting id"})
	}
	if err := h.Meetings.ProcessOrder(c.Request().Context(), meetingID, userID); err != nil {
		if errors.Is(err, service.ErrBelowThreshold) {
			return c.JSON(http.StatusConflict, echo.Map{
				"error":     "minimum not met",
				"cancelled": true,
			})
		}
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ordered"})
}

// Complete handles POST /v1/meetings/:id/complete: the leader settles
// a delivered meeting and every member receives the delivery-fee
// difference back as points.
func (h *MeetingHandler) Complete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	meetingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid meeting id"})
	}
	refund, err := h.Meetings.Complete(c.Request().Context(), meetingID, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":            "completed",
		"refund_per_person": refund,
	})
}

// CancelItem handles DELETE /v1/order-items/:id.  Members may remove
// their own cart lines while the meeting is still recruiting.
func (h *MeetingHandler) CancelItem(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	itemID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	if err := h.Meetings.CancelMenuItem(c.Request().Context(), itemID, userID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true})
}

// Payments handles GET /v1/meetings/:id/payments, the per-member
// charge breakdown of a meeting.  Only members of the meeting may
// read it; the leader is always a member.
func (h *MeetingHandler) Payments(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	meetingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid meeting id"})
	}
	member, err := h.MemberRepo.Exists(c.Request().Context(), meetingID, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if !member {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	list, err := h.PaymentRepo.ListByMeeting(c.Request().Context(), meetingID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]echo.Map, 0, len(list))
	for _, p := range list {
		out = append(out, echo.Map{
			"user_id":            p.UserID,
			"amount":             p.Amount,
			"delivery_fee_share": p.DeliveryFeeShare,
			"points_used":        p.PointsUsed,
			"status":             p.Status,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"payments": out})
}
