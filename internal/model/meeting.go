package model

import "time"

// Meeting statuses.  A meeting only ever moves forward along the
// lifecycle; the only reverse-looking transition is cancellation,
// which is allowed from any state before completed.
const (
	MeetingRecruiting = "recruiting" // accepting new members
	MeetingClosed     = "closed"     // deadline passed before an order was placed; dead end
	MeetingOrdered    = "ordered"    // leader placed the group order
	MeetingCooking    = "cooking"    // store approved and is preparing
	MeetingDelivering = "delivering" // food left the store
	MeetingDelivered  = "delivered"  // rider confirmed drop-off
	MeetingCompleted  = "completed"  // settlement done, refunds issued
	MeetingCancelled  = "cancelled"  // rejected or threshold failure
)

// Meeting represents a recruiting campaign pooling users toward one
// store order, as stored in the `meetings` table.  DeliveryFee is the
// fixed total fee for the whole group; members are charged a share of
// it computed against MinMembers at join time.
//
// Fields:
//  ID              – primary key identifier.
//  LeaderID        – user who created the meeting; always a member.
//  StoreID         – store the group order targets.
//  Title           – free-form recruiting title.
//  DiningType      – individual or together.
//  OrderType       – instant or reservation.
//  PickupLocation  – where members collect the food.
//  MeetingLocation – optional gathering spot for shared dining.
//  MinMembers      – minimum member count to place the order (≥1).
//  MaxMembers      – hard cap on members (≥MinMembers).
//  DeliveryFee     – fixed total delivery fee in currency units.
//  Deadline        – recruiting cutoff; immutable after creation.
//  Status          – lifecycle state, see constants above.
//  Campus          – optional campus tag used for listing filters.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Meeting struct {
	ID              uint64    // meetings.id
	LeaderID        uint64    // meetings.leader_id
	StoreID         uint64    // meetings.store_id
	Title           string    // meetings.title
	DiningType      string    // meetings.dining_type
	OrderType       string    // meetings.order_type
	PickupLocation  string    // meetings.pickup_location
	MeetingLocation *string   // meetings.meeting_location (nullable)
	MinMembers      int64     // meetings.min_members
	MaxMembers      int64     // meetings.max_members
	DeliveryFee     int64     // meetings.delivery_fee
	Deadline        time.Time // meetings.deadline (UTC)
	Status          string    // meetings.status
	Campus          *string   // meetings.campus (nullable)
	CreatedAt       time.Time // meetings.created_at
	UpdatedAt       time.Time // meetings.updated_at
}

// MeetingMember is a join record in the `meeting_members` table.  A
// (meeting, user) pair is unique; the leader's record exists for the
// whole lifetime of the meeting.
//
// Fields:
//  ID        – primary key identifier.
//  MeetingID – meeting joined.
//  UserID    – member user.
//  IsLeader  – true for the creator's record only.
//  JoinedAt  – when the member joined.
type MeetingMember struct {
	ID        uint64    // meeting_members.id
	MeetingID uint64    // meeting_members.meeting_id
	UserID    uint64    // meeting_members.user_id
	IsLeader  bool      // meeting_members.is_leader
	JoinedAt  time.Time // meeting_members.joined_at
}
