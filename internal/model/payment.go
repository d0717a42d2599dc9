package model

import "time"

// Payment statuses.
const (
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// Point history entry types.
const (
	PointUse    = "use"
	PointEarn   = "earn"
	PointRefund = "refund"
)

// Payment is a member's settlement record for one meeting, captured
// at join time.  Amount = item subtotal + DeliveryFeeShare −
// PointsUsed.  There is exactly one non-refunded payment per
// (user, meeting).
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – paying member.
//  MeetingID        – meeting the payment settles.
//  Amount           – charged amount in currency units.
//  DeliveryFeeShare – share of the fixed delivery fee charged.
//  PointsUsed       – points applied against the amount.
//  Status           – paid or refunded.
//  CreatedAt        – creation timestamp.
type Payment struct {
	ID               uint64    // payments.id
	UserID           uint64    // payments.user_id
	MeetingID        uint64    // payments.meeting_id
	Amount           int64     // payments.amount
	DeliveryFeeShare int64     // payments.delivery_fee_share
	PointsUsed       int64     // payments.points_used
	Status           string    // payments.status
	CreatedAt        time.Time // payments.created_at
}

// PointHistory is an append-only ledger entry in the `point_history`
// table.  Entries are never updated or deleted; the sum of a user's
// entries reconciles with the balance column on users.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – ledger owner.
//  Amount      – signed delta applied to the balance.
//  Type        – use, earn or refund.
//  Description – human-readable reason.
//  MeetingID   – originating meeting, when applicable (nullable).
//  CreatedAt   – creation timestamp.
type PointHistory struct {
	ID          uint64    // point_history.id
	UserID      uint64    // point_history.user_id
	Amount      int64     // point_history.amount
	Type        string    // point_history.type
	Description string    // point_history.description
	MeetingID   *uint64   // point_history.meeting_id (nullable)
	CreatedAt   time.Time // point_history.created_at
}
