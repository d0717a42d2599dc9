package model

import "time"

// User roles as carried in the JWT role claim.  Identity issuance is
// handled by a separate auth service; this service only trusts the
// claims injected by the middleware.
const (
	RoleUser     = "user"
	RoleBusiness = "business"
	RoleRider    = "rider"
	RoleAdmin    = "admin"
)

// User represents the slice of the `users` table this service
// touches.  Points is the authoritative spendable balance; every
// change to it is mirrored by an append-only point_history row.
//
// Fields:
//  ID        – primary key identifier.
//  Nickname  – public display name.
//  Role      – user, business, rider or admin.
//  Campus    – optional campus tag.
//  Points    – spendable point balance.
//  CreatedAt – timestamp of creation.
type User struct {
	ID        uint64    // users.id
	Nickname  string    // users.nickname
	Role      string    // users.role
	Campus    *string   // users.campus (nullable)
	Points    int64     // users.points
	CreatedAt time.Time // users.created_at
}
