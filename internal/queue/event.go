// Package queue defines message payloads exchanged over the message broker.
package queue

// Event types emitted by the coordination core.  Delivery and fan-out
// (push, socket, in-app rows) are the notification service's
// responsibility; a publish failure never rolls back the transaction
// that already committed.
const (
	EventMemberJoined      = "member_joined"
	EventStatusChanged     = "status_changed"
	EventOrderRejected     = "order_rejected"
	EventDeliveryCompleted = "delivery_completed"
)

// MeetingEvent is published on every externally visible transition of
// a meeting.  It carries enough information for downstream consumers
// to notify members without querying the primary database.
type MeetingEvent struct {
	Type            string   `json:"type"`
	MeetingID       uint64   `json:"meeting_id"`
	OrderID         uint64   `json:"order_id,omitempty"`
	UserID          uint64   `json:"user_id,omitempty"`
	Status          string   `json:"status,omitempty"`
	MemberCount     int64    `json:"member_count,omitempty"`
	RefundPerPerson int64    `json:"refund_per_person,omitempty"`
	MemberIDs       []uint64 `json:"member_ids,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	OccurredAt      string   `json:"occurred_at"`
}
