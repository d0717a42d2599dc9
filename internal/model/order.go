package model

import "time"

// Order statuses.  An order mirrors a subset of its meeting's
// progress once the leader has placed it.
const (
	OrderPending    = "pending"
	OrderApproved   = "approved"
	OrderRejected   = "rejected"
	OrderCooking    = "cooking"
	OrderCooked     = "cooked"
	OrderDelivering = "delivering"
	OrderDelivered  = "delivered"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
)

// Order is the single aggregate cart of a meeting, stored in the
// `orders` table.  There is at most one order per meeting (unique key
// on meeting_id); it is created lazily on the first join.
// TotalAmount is maintained to always equal the sum of the live
// order_items subtotals.
//
// Fields:
//  ID          – primary key identifier.
//  MeetingID   – owning meeting (1:1).
//  StoreID     – store copied from the meeting at creation.
//  TotalAmount – running sum of item subtotals.
//  DeliveryFee – fee copied from the meeting at creation.
//  Status      – see constants above.
//  RiderID     – rider assigned for delivery (nullable).
//  DelayReason – optional delay note from the store (nullable).
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Order struct {
	ID          uint64    // orders.id
	MeetingID   uint64    // orders.meeting_id
	StoreID     uint64    // orders.store_id
	TotalAmount int64     // orders.total_amount
	DeliveryFee int64     // orders.delivery_fee
	Status      string    // orders.status
	RiderID     *uint64   // orders.rider_id (nullable)
	DelayReason *string   // orders.delay_reason (nullable)
	CreatedAt   time.Time // orders.created_at
	UpdatedAt   time.Time // orders.updated_at
}

// OrderItem is one member's menu selection within an order.
// UnitPrice is a snapshot of the menu price at add time; later menu
// price changes never alter historical totals.
//
// Fields:
//  ID        – primary key identifier.
//  OrderID   – owning order.
//  UserID    – member who selected the item.
//  MenuID    – menu entry ordered.
//  Quantity  – number of units (≥1).
//  UnitPrice – menu price snapshot at add time.
//  IsShared  – whether the item is shared with the group.
//  CreatedAt – creation timestamp.
type OrderItem struct {
	ID        uint64    // order_items.id
	OrderID   uint64    // order_items.order_id
	UserID    uint64    // order_items.user_id
	MenuID    uint64    // order_items.menu_id
	Quantity  int64     // order_items.quantity
	UnitPrice int64     // order_items.price
	IsShared  bool      // order_items.is_shared
	CreatedAt time.Time // order_items.created_at
}
