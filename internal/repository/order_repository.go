package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/moyeora/group-order/internal/model"
)

// ErrOrderNotFound indicates that an order was not located in the DB.
var ErrOrderNotFound = errors.New("order not found")

// ErrOrderItemNotFound indicates that an order item does not exist or
// does not belong to the requesting user.
var ErrOrderItemNotFound = errors.New("order item not found")

// OrderRepo provides data access to the orders and order_items
// tables.  An order is the single aggregate cart of a meeting; its
// total_amount column is adjusted in the same transaction as every
// item insert or delete so that it always equals the sum of the live
// item subtotals.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// EnsureTx returns the meeting's order ID, creating the order row if
// it does not exist yet.  The create-or-fetch is idempotent: the
// unique key on meeting_id makes a duplicate insert impossible, and
// under the meeting row lock the select-then-insert cannot race.
func (r *OrderRepo) EnsureTx(ctx context.Context, tx *sql.Tx, meetingID, storeID uint64, deliveryFee int64) (uint64, error) {
	var id uint64
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE meeting_id = ?`, meetingID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (meeting_id, store_id, delivery_fee) VALUES (?, ?, ?)`,
		meetingID, storeID, deliveryFee,
	)
	if err != nil {
		return 0, err
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(newID), nil
}

// InsertItemTx adds one cart line with its unit-price snapshot and
// populates the generated ID on the record.
func (r *OrderRepo) InsertItemTx(ctx context.Context, tx *sql.Tx, it *model.OrderItem) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO order_items (order_id, user_id, menu_id, quantity, price, is_shared) VALUES (?, ?, ?, ?, ?, ?)`,
		it.OrderID, it.UserID, it.MenuID, it.Quantity, it.UnitPrice, it.IsShared,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	it.ID = uint64(id)
	return nil
}

// AddToTotalTx adjusts the order's running total by delta (positive on
// item add, negative on removal) in the caller's transaction.
func (r *OrderRepo) AddToTotalTx(ctx context.Context, tx *sql.Tx, orderID uint64, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET total_amount = total_amount + ? WHERE id = ?`, delta, orderID)
	return err
}

// GetByMeetingTx loads a meeting's order inside the caller's
// transaction.  Returns ErrOrderNotFound when no order exists yet,
// which is a legal state before the first join adds items.
func (r *OrderRepo) GetByMeetingTx(ctx context.Context, tx *sql.Tx, meetingID uint64) (*model.Order, error) {
	const q = `SELECT id, meeting_id, store_id, total_amount, delivery_fee, status, rider_id, delay_reason, created_at, updated_at
			   FROM orders WHERE meeting_id = ?`
	return scanOrder(tx.QueryRowContext(ctx, q, meetingID))
}

// ItemForUpdateTx loads an order item together with its owning
// meeting ID, locked for update, restricted to the given user.  A
// missing item and an item owned by someone else are indistinguishable
// to the caller on purpose: both return ErrOrderItemNotFound.
func (r *OrderRepo) ItemForUpdateTx(ctx context.Context, tx *sql.Tx, itemID, userID uint64) (*model.OrderItem, uint64, error) {
	const q = `SELECT oi.id, oi.order_id, oi.user_id, oi.menu_id, oi.quantity, oi.price, oi.is_shared, o.meeting_id
			   FROM order_items oi
			   JOIN orders o ON o.id = oi.order_id
			   WHERE oi.id = ? AND oi.user_id = ?
			   FOR UPDATE`
	var it model.OrderItem
	var meetingID uint64
	err := tx.QueryRowContext(ctx, q, itemID, userID).Scan(
		&it.ID, &it.OrderID, &it.UserID, &it.MenuID, &it.Quantity, &it.UnitPrice, &it.IsShared, &meetingID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrOrderItemNotFound
		}
		return nil, 0, err
	}
	return &it, meetingID, nil
}

// DeleteItemTx removes one cart line.  The caller decrements the
// order total by the stored subtotal in the same transaction.
func (r *OrderRepo) DeleteItemTx(ctx context.Context, tx *sql.Tx, itemID uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE id = ?`, itemID)
	return err
}

// UpdateStatusByMeetingTx sets the status of a meeting's order, if
// one exists.  Affecting zero rows is not an error: a meeting whose
// members never added items has no order row.
func (r *OrderRepo) UpdateStatusByMeetingTx(ctx context.Context, tx *sql.Tx, meetingID uint64, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE meeting_id = ?`, status, meetingID)
	return err
}

// UpdateStatusTx sets an order's status by its primary key.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, orderID uint64, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, orderID)
	return err
}

// GetWithOwnerTx loads an order and the owner of its store, locked
// for update.  Used by store-side transitions to authorize the actor
// before mutating state.  Returns ErrOrderNotFound when missing.
func (r *OrderRepo) GetWithOwnerTx(ctx context.Context, tx *sql.Tx, orderID uint64) (*model.Order, uint64, error) {
	const q = `SELECT o.id, o.meeting_id, o.store_id, o.total_amount, o.delivery_fee, o.status, o.rider_id, o.delay_reason, o.created_at, o.updated_at, s.owner_id
			   FROM orders o
			   JOIN stores s ON s.id = o.store_id
			   WHERE o.id = ?
			   FOR UPDATE`
	var o model.Order
	var riderID sql.NullInt64
	var delay sql.NullString
	var ownerID uint64
	err := tx.QueryRowContext(ctx, q, orderID).Scan(
		&o.ID, &o.MeetingID, &o.StoreID, &o.TotalAmount, &o.DeliveryFee, &o.Status,
		&riderID, &delay, &o.CreatedAt, &o.UpdatedAt, &ownerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrOrderNotFound
		}
		return nil, 0, err
	}
	applyNullable(&o, riderID, delay)
	return &o, ownerID, nil
}

// SetDelayReasonTx records the store's delay note on an order in the
// caller's transaction.
func (r *OrderRepo) SetDelayReasonTx(ctx context.Context, tx *sql.Tx, orderID uint64, reason string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET delay_reason = ? WHERE id = ?`, reason, orderID)
	return err
}

// StoreOrder is a listing row for a store's inbound group orders.
type StoreOrder struct {
	ID             uint64  `json:"id"`
	MeetingID      uint64  `json:"meeting_id"`
	MeetingTitle   string  `json:"meeting_title"`
	PickupLocation string  `json:"pickup_location"`
	DiningType     string  `json:"dining_type"`
	MemberCount    int64   `json:"member_count"`
	TotalAmount    int64   `json:"total_amount"`
	DeliveryFee    int64   `json:"delivery_fee"`
	Status         string  `json:"status"`
	RiderID        *uint64 `json:"rider_id,omitempty"`
	DelayReason    *string `json:"delay_reason,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// ListByStore returns all orders placed against a store, newest
// first, with meeting context joined in.
func (r *OrderRepo) ListByStore(ctx context.Context, storeID uint64) ([]StoreOrder, error) {
	const q = `SELECT o.id, o.meeting_id, m.title, m.pickup_location, m.dining_type,
					  (SELECT COUNT(*) FROM meeting_members WHERE meeting_id = m.id),
					  o.total_amount, o.delivery_fee, o.status, o.rider_id, o.delay_reason, o.created_at
			   FROM orders o
			   JOIN meetings m ON m.id = o.meeting_id
			   WHERE o.store_id = ?
			   ORDER BY o.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]StoreOrder, 0)
	for rows.Next() {
		var s StoreOrder
		var riderID sql.NullInt64
		var delay sql.NullString
		var created time.Time
		if err := rows.Scan(&s.ID, &s.MeetingID, &s.MeetingTitle, &s.PickupLocation, &s.DiningType,
			&s.MemberCount, &s.TotalAmount, &s.DeliveryFee, &s.Status, &riderID, &delay, &created); err != nil {
			return nil, err
		}
		if riderID.Valid {
			v := uint64(riderID.Int64)
			s.RiderID = &v
		}
		if delay.Valid {
			v := delay.String
			s.DelayReason = &v
		}
		s.CreatedAt = created.UTC().Format(time.RFC3339)
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// Dispatch is a listing row for riders browsing orders awaiting
// pickup.
type Dispatch struct {
	OrderID         uint64  `json:"order_id"`
	StoreName       string  `json:"store_name"`
	StoreAddress    string  `json:"store_address"`
	PickupLocation  string  `json:"pickup_location"`
	MeetingLocation *string `json:"meeting_location,omitempty"`
	TotalAmount     int64   `json:"total_amount"`
	DeliveryFee     int64   `json:"delivery_fee"`
}

// ListDispatchable returns cooked, unassigned orders in FIFO order.
func (r *OrderRepo) ListDispatchable(ctx context.Context) ([]Dispatch, error) {
	const q = `SELECT o.id, s.name, s.address, m.pickup_location, m.meeting_location, o.total_amount, o.delivery_fee
			   FROM orders o
			   JOIN stores s ON s.id = o.store_id
			   JOIN meetings m ON m.id = o.meeting_id
			   WHERE o.status = 'cooked' AND o.rider_id IS NULL
			   ORDER BY o.created_at ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]Dispatch, 0)
	for rows.Next() {
		var d Dispatch
		var loc sql.NullString
		if err := rows.Scan(&d.OrderID, &d.StoreName, &d.StoreAddress, &d.PickupLocation, &loc,
			&d.TotalAmount, &d.DeliveryFee); err != nil {
			return nil, err
		}
		if loc.Valid {
			v := loc.String
			d.MeetingLocation = &v
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// AcceptDelivery assigns a rider to a cooked, unassigned order with a
// single conditional UPDATE; the WHERE clause re-checks the
// dispatchable state at write time so two riders racing for the same
// order cannot both win.  Returns ErrConflict when the order was not
// in a dispatchable state.
func (r *OrderRepo) AcceptDelivery(ctx context.Context, orderID, riderID uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET rider_id = ?, status = 'delivering' WHERE id = ? AND status = 'cooked' AND rider_id IS NULL`,
		riderID, orderID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// GetForRiderTx loads an order locked for update and verifies that it
// is assigned to the given rider.  Returns ErrOrderNotFound when the
// order does not exist and ErrForbidden when it belongs to a
// different rider.
func (r *OrderRepo) GetForRiderTx(ctx context.Context, tx *sql.Tx, orderID, riderID uint64) (*model.Order, error) {
	const q = `SELECT id, meeting_id, store_id, total_amount, delivery_fee, status, rider_id, delay_reason, created_at, updated_at
			   FROM orders WHERE id = ? FOR UPDATE`
	o, err := scanOrder(tx.QueryRowContext(ctx, q, orderID))
	if err != nil {
		return nil, err
	}
	if o.RiderID == nil || *o.RiderID != riderID {
		return nil, ErrForbidden
	}
	return o, nil
}

func scanOrder(row *sql.Row) (*model.Order, error) {
	var o model.Order
	var riderID sql.NullInt64
	var delay sql.NullString
	err := row.Scan(&o.ID, &o.MeetingID, &o.StoreID, &o.TotalAmount, &o.DeliveryFee, &o.Status,
		&riderID, &delay, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	applyNullable(&o, riderID, delay)
	return &o, nil
}

func applyNullable(o *model.Order, riderID sql.NullInt64, delay sql.NullString) {
	if riderID.Valid {
		v := uint64(riderID.Int64)
		o.RiderID = &v
	}
	if delay.Valid {
		v := delay.String
		o.DelayReason = &v
	}
}
