package service

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"github.com/moyeora/group-order/internal/model"
	"github.com/moyeora/group-order/internal/queue"
	"github.com/moyeora/group-order/internal/repository"
)

// OrderService drives the post-placement order progress: the store
// owner's approve/reject/cooked/delay steps and the rider's dispatch
// and delivery steps.  Order and meeting statuses move in lockstep
// inside one transaction per step; ownership checks ride on the same
// row lock as the status write.
type OrderService struct {
	db       *sql.DB
	meetings *repository.MeetingRepo
	orders   *repository.OrderRepo
	catalog  *repository.CatalogRepo
	events   EventPublisher
	log      *logrus.Logger
}

// NewOrderService constructs an OrderService.  events may be nil.
func NewOrderService(
	db *sql.DB,
	meetings *repository.MeetingRepo,
	orders *repository.OrderRepo,
	catalog *repository.CatalogRepo,
	events EventPublisher,
	log *logrus.Logger,
) *OrderService {
	if db == nil || meetings == nil || orders == nil || catalog == nil || log == nil {
		panic("nil dependency passed to NewOrderService")
	}
	return &OrderService{
		db:       db,
		meetings: meetings,
		orders:   orders,
		catalog:  catalog,
		events:   events,
		log:      log,
	}
}

// Approve moves a pending order to approved and its meeting to
// cooking.  Only the owner of the order's store may approve.
func (s *OrderService) Approve(ctx context.Context, orderID, ownerID uint64) error {
	return s.ownerTransition(ctx, orderID, ownerID, model.OrderPending, model.OrderApproved, model.MeetingCooking, "")
}

// Reject moves a pending order to rejected and cancels its meeting.
// Members learn about the rejection through the emitted event.
func (s *OrderService) Reject(ctx context.Context, orderID, ownerID uint64, reason string) error {
	return s.ownerTransition(ctx, orderID, ownerID, model.OrderPending, model.OrderRejected, model.MeetingCancelled, reason)
}

// Cooked marks an approved order as ready for pickup and its meeting
// as delivering.  Cooked orders with no rider are what the dispatch
// board lists.
func (s *OrderService) Cooked(ctx context.Context, orderID, ownerID uint64) error {
	return s.ownerTransition(ctx, orderID, ownerID, model.OrderApproved, model.OrderCooked, model.MeetingDelivering, "")
}

// ownerTransition is the shared owner-gated status step: lock the
// order, verify the caller owns the store, require the expected
// current status and write both new statuses atomically.
func (s *OrderService) ownerTransition(ctx context.Context, orderID, ownerID uint64, from, to, meetingStatus, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, storeOwner, err := s.orders.GetWithOwnerTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if storeOwner != ownerID {
		return repository.ErrForbidden
	}
	if order.Status != from {
		return ErrInvalidState
	}
	if err := s.orders.UpdateStatusTx(ctx, tx, orderID, to); err != nil {
		return err
	}
	if err := s.meetings.UpdateStatusTx(ctx, tx, order.MeetingID, meetingStatus); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	s.log.WithFields(logrus.Fields{
		"order_id":   orderID,
		"meeting_id": order.MeetingID,
		"status":     to,
	}).Info("order status updated")

	ev := queue.MeetingEvent{
		Type:      queue.EventStatusChanged,
		MeetingID: order.MeetingID,
		OrderID:   orderID,
		Status:    meetingStatus,
	}
	if to == model.OrderRejected {
		ev.Type = queue.EventOrderRejected
		ev.Reason = reason
	}
	s.emit(ctx, ev)
	return nil
}

// NotifyDelay records a delay note on an order without changing its
// status.  Only the store owner may post one.
func (s *OrderService) NotifyDelay(ctx context.Context, orderID, ownerID uint64, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, storeOwner, err := s.orders.GetWithOwnerTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if storeOwner != ownerID {
		return repository.ErrForbidden
	}
	if err := s.orders.SetDelayReasonTx(ctx, tx, orderID, reason); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// StoreOrders lists a store's orders for its owner's dashboard.
func (s *OrderService) StoreOrders(ctx context.Context, storeID, ownerID uint64) ([]repository.StoreOrder, error) {
	owner, err := s.catalog.StoreOwner(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if owner != ownerID {
		return nil, repository.ErrForbidden
	}
	return s.orders.ListByStore(ctx, storeID)
}

// Dispatchable lists cooked orders with no rider assigned.
func (s *OrderService) Dispatchable(ctx context.Context) ([]repository.Dispatch, error) {
	return s.orders.ListDispatchable(ctx)
}

// AcceptDelivery claims a cooked order for the calling rider.  The
// claim is a single conditional update, so two riders racing for the
// same order resolve to exactly one winner; the loser gets
// repository.ErrConflict.
func (s *OrderService) AcceptDelivery(ctx context.Context, orderID, riderID uint64) error {
	if err := s.orders.AcceptDelivery(ctx, orderID, riderID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"order_id": orderID, "rider_id": riderID}).Info("delivery accepted")
	return nil
}

// CompleteDelivery is the rider's drop-off confirmation: the order
// and its meeting both move to delivered.  Settlement is a separate
// step taken by the leader through MeetingService.Complete.
func (s *OrderService) CompleteDelivery(ctx context.Context, orderID, riderID uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, err := s.orders.GetForRiderTx(ctx, tx, orderID, riderID)
	if err != nil {
		return err
	}
	if order.Status != model.OrderDelivering {
		return ErrInvalidState
	}
	if err := s.orders.UpdateStatusTx(ctx, tx, orderID, model.OrderDelivered); err != nil {
		return err
	}
	if err := s.meetings.UpdateStatusTx(ctx, tx, order.MeetingID, model.MeetingDelivered); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	s.log.WithFields(logrus.Fields{"order_id": orderID, "meeting_id": order.MeetingID}).Info("delivery completed")
	s.emit(ctx, queue.MeetingEvent{
		Type:      queue.EventDeliveryCompleted,
		MeetingID: order.MeetingID,
		OrderID:   orderID,
		Status:    model.MeetingDelivered,
	})
	return nil
}

func (s *OrderService) emit(ctx context.Context, ev queue.MeetingEvent) {
	publishEvent(ctx, s.events, ev)
}
