package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/moyeora/group-order/internal/service"
)

// OrderHandler serves the post-placement order progress: the store
// owner's approve/reject/cooked/delay steps and the rider's dispatch
// board and delivery confirmations.
type OrderHandler struct {
	Orders *service.OrderService
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	if orders == nil {
		panic("nil service passed to NewOrderHandler")
	}
	return &OrderHandler{Orders: orders}
}

// Approve handles POST /v1/orders/:id/approve (business role).
func (h *OrderHandler) Approve(c echo.Context) error {
	return h.ownerStep(c, h.Orders.Approve, "approved")
}

// Cooked handles POST /v1/orders/:id/cooked (business role).
func (h *OrderHandler) Cooked(c echo.Context) error {
	return h.ownerStep(c, h.Orders.Cooked, "cooked")
}

// ownerStep runs one owner-gated status transition and reports the
// resulting order status.
func (h *OrderHandler) ownerStep(c echo.Context, step func(ctx context.Context, orderID, ownerID uint64) error, status string) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	if err := step(c.Request().Context(), orderID, userID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": status})
}

// Reject handles POST /v1/orders/:id/reject (business role).  The
// body may carry a reason shown to members.
func (h *OrderHandler) Reject(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body)
	if err := h.Orders.Reject(c.Request().Context(), orderID, userID, body.Reason); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "rejected"})
}

// Delay handles POST /v1/orders/:id/delay (business role).
func (h *OrderHandler) Delay(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil || body.Reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason is required"})
	}
	if err := h.Orders.NotifyDelay(c.Request().Context(), orderID, userID, body.Reason); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"delayed": true})
}

// StoreOrders handles GET /v1/stores/:id/orders (business role).
func (h *OrderHandler) StoreOrders(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	storeID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid store id"})
	}
	list, err := h.Orders.StoreOrders(c.Request().Context(), storeID, userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": list})
}

// Dispatchable handles GET /v1/deliveries (rider role): cooked orders
// nobody has claimed yet.
func (h *OrderHandler) Dispatchable(c echo.Context) error {
	list, err := h.Orders.Dispatchable(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deliveries": list})
}

// AcceptDelivery handles POST /v1/orders/:id/accept-delivery (rider
// role).  Losing the claim race returns 409.
func (h *OrderHandler) AcceptDelivery(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	if err := h.Orders.AcceptDelivery(c.Request().Context(), orderID, userID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "delivering"})
}

// CompleteDelivery handles POST /v1/orders/:id/complete-delivery
// (rider role).
func (h *OrderHandler) CompleteDelivery(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	if err := h.Orders.CompleteDelivery(c.Request().Context(), orderID, userID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "delivered"})
}
