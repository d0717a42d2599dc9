package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moyeora/group-order/internal/model"
	"github.com/moyeora/group-order/internal/queue"
	"github.com/moyeora/group-order/internal/repository"
	"github.com/moyeora/group-order/internal/settlement"
)

// EventPublisher is the boundary to the notification collaborator.
// Implementations must be safe to call after a transaction has
// committed; their failures are logged, never propagated.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.MeetingEvent) error
}

// MeetingService coordinates the meeting lifecycle: creation,
// concurrent-join admission control, cart edits, the leader's order
// placement and post-delivery settlement.  Each operation owns one
// transaction; the meeting row lock taken at the start of every
// mutating operation is the only synchronization primitive, so
// handlers may run across multiple processes.
type MeetingService struct {
	db        *sql.DB
	meetings  *repository.MeetingRepo
	members   *repository.MemberRepo
	orders    *repository.OrderRepo
	payments  *repository.PaymentRepo
	points    *repository.PointRepo
	catalog   *repository.CatalogRepo
	chatRooms *repository.ChatRoomRepo
	events    EventPublisher
	log       *logrus.Logger
}

// NewMeetingService constructs a MeetingService.  events may be nil
// when no broker is configured; every other dependency is required.
func NewMeetingService(
	db *sql.DB,
	meetings *repository.MeetingRepo,
	members *repository.MemberRepo,
	orders *repository.OrderRepo,
	payments *repository.PaymentRepo,
	points *repository.PointRepo,
	catalog *repository.CatalogRepo,
	chatRooms *repository.ChatRoomRepo,
	events EventPublisher,
	log *logrus.Logger,
) *MeetingService {
	if db == nil || meetings == nil || members == nil || orders == nil ||
		payments == nil || points == nil || catalog == nil || chatRooms == nil || log == nil {
		panic("nil dependency passed to NewMeetingService")
	}
	return &MeetingService{
		db:        db,
		meetings:  meetings,
		members:   members,
		orders:    orders,
		payments:  payments,
		points:    points,
		catalog:   catalog,
		chatRooms: chatRooms,
		events:    events,
		log:       log,
	}
}

// CreateParams carries the leader's meeting setup.
type CreateParams struct {
	StoreID         uint64
	Title           string
	DiningType      string
	OrderType       string
	PickupLocation  string
	MeetingLocation *string
	MinMembers      int64
	MaxMembers      int64
	DeliveryFee     int64
	Deadline        time.Time
	Campus          *string
}

// Create validates the parameters and atomically inserts the meeting,
// the leader's member record and the chat-room handle.  The leader is
// implicitly the first member.
func (s *MeetingService) Create(ctx context.Context, leaderID uint64, p CreateParams) (*model.Meeting, error) {
	// Omitted bounds fall back to a 2..4 group.
	if p.MinMembers == 0 {
		p.MinMembers = 2
	}
	if p.MaxMembers == 0 {
		p.MaxMembers = 4
	}
	if p.MinMembers < 1 || p.MinMembers > p.MaxMembers {
		return nil, ErrInvalidCapacity
	}
	if !p.Deadline.After(time.Now().UTC()) {
		return nil, ErrInvalidDeadline
	}
	if p.DeliveryFee < 0 {
		return nil, ErrInvalidAmount
	}
	if p.DiningType == "" {
		p.DiningType = "individual"
	}
	if p.OrderType == "" {
		p.OrderType = "instant"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ok, err := s.catalog.StoreExistsTx(ctx, tx, p.StoreID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrStoreNotFound
	}

	m := &model.Meeting{
		LeaderID:        leaderID,
		StoreID:         p.StoreID,
		Title:           p.Title,
		DiningType:      p.DiningType,
		OrderType:       p.OrderType,
		PickupLocation:  p.PickupLocation,
		MeetingLocation: p.MeetingLocation,
		MinMembers:      p.MinMembers,
		MaxMembers:      p.MaxMembers,
		DeliveryFee:     p.DeliveryFee,
		Deadline:        p.Deadline.UTC(),
		Campus:          p.Campus,
	}
	if err := s.meetings.CreateTx(ctx, tx, m); err != nil {
		return nil, err
	}
	if _, err := s.members.InsertTx(ctx, tx, m.ID, leaderID, true); err != nil {
		return nil, err
	}
	if _, err := s.chatRooms.CreateTx(ctx, tx, m.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	s.log.WithFields(logrus.Fields{"meeting_id": m.ID, "leader_id": leaderID}).Info("meeting created")
	return m, nil
}

// JoinItem is one menu selection submitted with a join request.
type JoinItem struct {
	MenuID   uint64
	Quantity int64
	IsShared bool
}

// JoinResult reports the outcome of a successful join.
type JoinResult struct {
	MemberID         uint64 `json:"member_id"`
	MemberCount      int64  `json:"member_count"`
	Subtotal         int64  `json:"subtotal"`
	DeliveryFeeShare int64  `json:"delivery_fee_share"`
	PaymentAmount    int64  `json:"payment_amount"`
}

// Join admits a user into a recruiting meeting.  Every precondition
// (status, capacity, deadline, duplicate membership) is checked on
// fresh reads inside one transaction, under the meeting row lock, so
// two simultaneous joins serialize and the (N+1)th attempt on a full
// meeting always fails with ErrMeetingFull instead of overcommitting.
// On success the member record, the lazily created order, the cart
// items (with unit-price snapshots), the payment and any point debit
// commit atomically; on any failure none of them are observable.
func (s *MeetingService) Join(ctx context.Context, meetingID, userID uint64, items []JoinItem, pointsUsed int64) (*JoinResult, error) {
	if pointsUsed < 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	m, err := s.meetings.GetForUpdateTx(ctx, tx, meetingID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MeetingRecruiting {
		return nil, ErrInvalidState
	}
	count, err := s.members.CountTx(ctx, tx, meetingID)
	if err != nil {
		return nil, err
	}
	if count >= m.MaxMembers {
		return nil, ErrMeetingFull
	}
	if !m.Deadline.After(time.Now().UTC()) {
		return nil, ErrDeadlinePassed
	}
	joined, err := s.members.ExistsTx(ctx, tx, meetingID, userID)
	if err != nil {
		return nil, err
	}
	if joined {
		return nil, ErrAlreadyJoined
	}

	memberID, err := s.members.InsertTx(ctx, tx, meetingID, userID, false)
	if err != nil {
		return nil, err
	}
	orderID, err := s.orders.EnsureTx(ctx, tx, meetingID, m.StoreID, m.DeliveryFee)
	if err != nil {
		return nil, err
	}

	var subtotal int64
	for _, it := range items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		price, err := s.catalog.MenuPriceTx(ctx, tx, it.MenuID)
		if err != nil {
			if errors.Is(err, repository.ErrMenuNotFound) {
				// A vanished menu is skipped rather than failing the
				// join.  TODO: make this strict behind a config flag
				// once the product owners sign off on rejecting stale
				// carts.
				s.log.WithFields(logrus.Fields{
					"meeting_id": meetingID,
					"user_id":    userID,
					"menu_id":    it.MenuID,
				}).Warn("menu missing; item skipped on join")
				continue
			}
			return nil, err
		}
		item := &model.OrderItem{
			OrderID:   orderID,
			UserID:    userID,
			MenuID:    it.MenuID,
			Quantity:  qty,
			UnitPrice: price,
			IsShared:  it.IsShared,
		}
		if err := s.orders.InsertItemTx(ctx, tx, item); err != nil {
			return nil, err
		}
		subtotal += price * qty
	}
	if err := s.orders.AddToTotalTx(ctx, tx, orderID, subtotal); err != nil {
		return nil, err
	}

	// The share is charged against the minimum threshold, not the
	// current member count: early joiners overpay so the pool stays
	// solvent even if the meeting never grows past minMembers.  The
	// difference comes back as a refund at completion.
	share := settlement.ShareOf(m.DeliveryFee, m.MinMembers)
	amount := subtotal + share - pointsUsed
	pay := &model.Payment{
		UserID:           userID,
		MeetingID:        meetingID,
		Amount:           amount,
		DeliveryFeeShare: share,
		PointsUsed:       pointsUsed,
		Status:           model.PaymentPaid,
	}
	if err := s.payments.CreateTx(ctx, tx, pay); err != nil {
		return nil, err
	}

	if pointsUsed > 0 {
		if err := s.points.AddTx(ctx, tx, userID, -pointsUsed); err != nil {
			return nil, err
		}
		hist := &model.PointHistory{
			UserID:      userID,
			Amount:      -pointsUsed,
			Type:        model.PointUse,
			Description: "points used on meeting join",
			MeetingID:   &meetingID,
		}
		if err := s.points.AppendHistoryTx(ctx, tx, hist); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	res := &JoinResult{
		MemberID:         memberID,
		MemberCount:      count + 1,
		Subtotal:         subtotal,
		DeliveryFeeShare: share,
		PaymentAmount:    amount,
	}
	s.emit(ctx, queue.MeetingEvent{
		Type:        queue.EventMemberJoined,
		MeetingID:   meetingID,
		UserID:      userID,
		MemberCount: res.MemberCount,
	})
	return res, nil
}

// CancelMenuItem removes one of the caller's cart lines while the
// meeting is still recruiting and decrements the order total by the
// stored subtotal (quantity × unit-price snapshot, not the current
// menu price).  The payment captured at join time is deliberately not
// adjusted; see DESIGN.md.
func (s *MeetingService) CancelMenuItem(ctx context.Context, itemID, userID uint64) error {
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

	item, meetingID, err := s.orders.ItemForUpdateTx(ctx, tx, itemID, userID)
	if err != nil {
		return err
	}
	m, err := s.meetings.GetForUpdateTx(ctx, tx, meetingID)
	if err != nil {
		return err
	}
	if m.Status != model.MeetingRecruiting {
		return ErrInvalidState
	}
	if err := s.orders.DeleteItemTx(ctx, tx, itemID); err != nil {
		return err
	}
	if err := s.orders.AddToTotalTx(ctx, tx, item.OrderID, -(item.UnitPrice * item.Quantity)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ProcessOrder is the leader's commit point: it re-reads the member
// count and the cart total inside the transaction and either advances
// the meeting to ordered (order to pending) or, when the minimum
// member count or the store's minimum order amount is not met,
// cancels the meeting and its order.  The cancellation is a COMMITTED
// write: ErrBelowThreshold reports an outcome, not a rollback, and
// the caller must present the meeting as cancelled.
func (s *MeetingService) ProcessOrder(ctx context.Context, meetingID, requesterID uint64) error {
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

	m, err := s.meetings.GetForUpdateTx(ctx, tx, meetingID)
	if err != nil {
		return err
	}
	if m.LeaderID != requesterID {
		return repository.ErrForbidden
	}
	if m.Status != model.MeetingRecruiting {
		return ErrInvalidState
	}

	count, err := s.members.CountTx(ctx, tx, meetingID)
	if err != nil {
		return err
	}
	minOrder, err := s.catalog.StoreMinOrderTx(ctx, tx, m.StoreID)
	if err != nil {
		return err
	}
	var total int64
	hasOrder := true
	order, err := s.orders.GetByMeetingTx(ctx, tx, meetingID)
	if err != nil {
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return err
		}
		hasOrder = false
	} else {
		total = order.TotalAmount
	}

	if count < m.MinMembers || (hasOrder && total < minOrder) {
		if err := s.meetings.UpdateStatusTx(ctx, tx, meetingID, model.MeetingCancelled); err != nil {
			return err
		}
		if err := s.orders.UpdateStatusByMeetingTx(ctx, tx, meetingID, model.OrderCancelled); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		s.log.WithFields(logrus.Fields{
			"meeting_id":   meetingID,
			"member_count": count,
			"total_amount": total,
		}).Info("meeting cancelled: threshold not met")
		s.emit(ctx, queue.MeetingEvent{
			Type:      queue.EventStatusChanged,
			MeetingID: meetingID,
			Status:    model.MeetingCancelled,
		})
		return ErrBelowThreshold
	}

	if err := s.meetings.UpdateStatusTx(ctx, tx, meetingID, model.MeetingOrdered); err != nil {
		return err
	}
	if err := s.orders.UpdateStatusByMeetingTx(ctx, tx, meetingID, model.OrderPending); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	s.emit(ctx, queue.MeetingEvent{
		Type:      queue.EventStatusChanged,
		MeetingID: meetingID,
		Status:    model.MeetingOrdered,
	})
	return nil
}

// Complete settles a delivered meeting.  Members were charged
// ceil(fee/minMembers) at join; with the final head count each
// member's true share is ceil(fee/actualMembers), and the difference
// is credited back as points: one balance update plus one ledger
// entry per member, then the status transitions of the meeting and
// its order, all in one transaction.  Only the leader may settle,
// and only once the rider confirmed the drop-off.  Returns the
// per-member refund for caller-side notification.
func (s *MeetingService) Complete(ctx context.Context, meetingID, requesterID uint64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	m, err := s.meetings.GetForUpdateTx(ctx, tx, meetingID)
	if err != nil {
		return 0, err
	}
	if m.LeaderID != requesterID {
		return 0, repository.ErrForbidden
	}
	if m.Status != model.MeetingDelivered {
		// Refunds presuppose a confirmed drop-off; completing twice
		// would double-credit every member.
		return 0, ErrInvalidState
	}

	count, err := s.members.CountTx(ctx, tx, meetingID)
	if err != nil {
		return 0, err
	}
	refund := settlement.RefundOf(m.DeliveryFee, m.MinMembers, count)

	var memberIDs []uint64
	if refund > 0 {
		memberIDs, err = s.members.UserIDsTx(ctx, tx, meetingID)
		if err != nil {
			return 0, err
		}
		for _, uid := range memberIDs {
			if err := s.points.AddTx(ctx, tx, uid, refund); err != nil {
				return 0, err
			}
			hist := &model.PointHistory{
				UserID:      uid,
				Amount:      refund,
				Type:        model.PointRefund,
				Description: "delivery fee difference refund",
				MeetingID:   &meetingID,
			}
			if err := s.points.AppendHistoryTx(ctx, tx, hist); err != nil {
				return 0, err
			}
		}
	}

	if err := s.meetings.UpdateStatusTx(ctx, tx, meetingID, model.MeetingCompleted); err != nil {
		return 0, err
	}
	if err := s.orders.UpdateStatusByMeetingTx(ctx, tx, meetingID, model.OrderCompleted); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true

	s.log.WithFields(logrus.Fields{
		"meeting_id":        meetingID,
		"member_count":      count,
		"refund_per_person": refund,
	}).Info("meeting completed")
	s.emit(ctx, queue.MeetingEvent{
		Type:            queue.EventDeliveryCompleted,
		MeetingID:       meetingID,
		Status:          model.MeetingCompleted,
		MemberCount:     count,
		RefundPerPerson: refund,
		MemberIDs:       memberIDs,
	})
	return refund, nil
}

func (s *MeetingService) emit(ctx context.Context, ev queue.MeetingEvent) {
	publishEvent(ctx, s.events, ev)
}

// publishEvent publishes a meeting event best-effort.  It runs after
// the owning transaction committed; the publisher logs its own
// failures, so the result is discarded.
func publishEvent(ctx context.Context, events EventPublisher, ev queue.MeetingEvent) {
	if events == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = events.Publish(pubCtx, ev)
}
