// Package repository contains data access logic for the group-order
// domain. This file covers the meetings table. A Meeting is the
// contention point for a group: every mutating operation on a group
// locks its meeting row so that concurrent joins, the leader's order
// placement and the deadline sweeper serialize through the database
// rather than through in-process locks.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/moyeora/group-order/internal/model"
)

// ErrMeetingNotFound indicates that a meeting was not located in the DB.
var ErrMeetingNotFound = errors.New("meeting not found")

// dbTimeLayout is the DATETIME format used for values sent to MySQL.
const dbTimeLayout = "2006-01-02 15:04:05"

// MeetingRepo manages persistence for meetings.
type MeetingRepo struct {
	db *sql.DB
}

// NewMeetingRepo returns a new MeetingRepo bound to the given database.
func NewMeetingRepo(db *sql.DB) *MeetingRepo { return &MeetingRepo{db: db} }

// CreateTx inserts a new meeting within the scope of an existing
// transaction and populates the generated ID plus DB-default fields
// (status, timestamps) on the provided record.  The caller must
// commit or roll back the transaction.
func (r *MeetingRepo) CreateTx(ctx context.Context, tx *sql.Tx, m *model.Meeting) error {
	const q = `INSERT INTO meetings (leader_id, store_id, title, dining_type, order_type,
			   pickup_location, meeting_location, min_members, max_members, delivery_fee,
			   deadline, campus)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		m.LeaderID, m.StoreID, m.Title, m.DiningType, m.OrderType,
		m.PickupLocation, m.MeetingLocation, m.MinMembers, m.MaxMembers, m.DeliveryFee,
		m.Deadline.UTC().Format(dbTimeLayout), m.Campus,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	// Query back the inserted row to obtain default fields.
	const sel = `SELECT status, created_at, updated_at FROM meetings WHERE id = ?`
	return tx.QueryRowContext(ctx, sel, m.ID).Scan(&m.Status, &m.CreatedAt, &m.UpdatedAt)
}

// GetForUpdateTx loads a meeting with a row-level write lock
// (SELECT ... FOR UPDATE).  The lock is what serializes concurrent
// joins and the leader's order placement on the same meeting; joins
// to different meetings never block each other.  Returns
// ErrMeetingNotFound when no such meeting exists.
func (r *MeetingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Meeting, error) {
	const q = `SELECT id, leader_id, store_id, title, dining_type, order_type,
					  pickup_location, meeting_location, min_members, max_members,
					  delivery_fee, deadline, status, campus, created_at, updated_at
			   FROM meetings WHERE id = ? FOR UPDATE`
	var m model.Meeting
	var loc, campus sql.NullString
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&m.ID, &m.LeaderID, &m.StoreID, &m.Title, &m.DiningType, &m.OrderType,
		&m.PickupLocation, &loc, &m.MinMembers, &m.MaxMembers,
		&m.DeliveryFee, &m.Deadline, &m.Status, &campus, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, err
	}
	if loc.Valid {
		v := loc.String
		m.MeetingLocation = &v
	}
	if campus.Valid {
		v := campus.String
		m.Campus = &v
	}
	return &m, nil
}

// UpdateStatusTx sets a meeting's status within the provided
// transaction.  State legality is the caller's responsibility; this
// method only performs the write.
func (r *MeetingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE meetings SET status = ? WHERE id = ?`, status, id)
	return err
}

// CloseExpired transitions every recruiting meeting whose deadline has
// passed to closed and returns the number of rows affected.  It is a
// single conditional UPDATE on purpose: the WHERE clause re-checks
// status = 'recruiting' at write time, so a meeting that moved to
// ordered a moment earlier is left untouched and no read-then-write
// race with a concurrent join is possible.
func (r *MeetingRepo) CloseExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meetings SET status = 'closed' WHERE status = 'recruiting' AND deadline < UTC_TIMESTAMP()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MeetingSummary is the listing row returned for recruiting meetings.
// It joins store and leader display fields and the current member
// count so clients can render a list without extra round trips.
type MeetingSummary struct {
	ID             uint64  `json:"id"`
	Title          string  `json:"title"`
	StoreID        uint64  `json:"store_id"`
	StoreName      string  `json:"store_name"`
	StoreCategory  string  `json:"store_category"`
	LeaderNickname string  `json:"leader_nickname"`
	DiningType     string  `json:"dining_type"`
	PickupLocation string  `json:"pickup_location"`
	MinMembers     int64   `json:"min_members"`
	MaxMembers     int64   `json:"max_members"`
	CurrentMembers int64   `json:"current_members"`
	DeliveryFee    int64   `json:"delivery_fee"`
	Deadline       string  `json:"deadline"`
	Campus         *string `json:"campus,omitempty"`
}

// ListFilter narrows and orders the recruiting-meeting listing.
// Sort accepts "latest" (default) or "deadline".
type ListFilter struct {
	Campus   string
	Category string
	Sort     string
	Page     int
	Limit    int
}

// ListRecruiting returns recruiting meetings whose deadline has not
// passed, newest first by default.  The member count is a point-in-time
// subquery; listings are advisory and admission control re-reads the
// count under the row lock.
func (r *MeetingRepo) ListRecruiting(ctx context.Context, f ListFilter) ([]MeetingSummary, error) {
	q := `SELECT m.id, m.title, m.store_id, s.name, s.category, u.nickname,
				 m.dining_type, m.pickup_location, m.min_members, m.max_members,
				 (SELECT COUNT(*) FROM meeting_members WHERE meeting_id = m.id),
				 m.delivery_fee, m.deadline, m.campus
		  FROM meetings m
		  JOIN stores s ON s.id = m.store_id
		  JOIN users u ON u.id = m.leader_id
		  WHERE m.status = 'recruiting' AND m.deadline > UTC_TIMESTAMP()`
	args := make([]interface{}, 0, 4)
	if f.Campus != "" {
		q += " AND m.campus = ?"
		args = append(args, f.Campus)
	}
	if f.Category != "" {
		q += " AND s.category = ?"
		args = append(args, f.Category)
	}
	if f.Sort == "deadline" {
		q += " ORDER BY m.deadline ASC"
	} else {
		q += " ORDER BY m.created_at DESC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	q += " LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]MeetingSummary, 0)
	for rows.Next() {
		var s MeetingSummary
		var deadline time.Time
		var campus sql.NullString
		if err := rows.Scan(
			&s.ID, &s.Title, &s.StoreID, &s.StoreName, &s.StoreCategory, &s.LeaderNickname,
			&s.DiningType, &s.PickupLocation, &s.MinMembers, &s.MaxMembers,
			&s.CurrentMembers, &s.DeliveryFee, &deadline, &campus,
		); err != nil {
			return nil, err
		}
		s.Deadline = deadline.UTC().Format(time.RFC3339)
		if campus.Valid {
			v := campus.String
			s.Campus = &v
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// MemberInfo is one member row in a meeting detail response.
type MemberInfo struct {
	UserID   uint64 `json:"user_id"`
	Nickname string `json:"nickname"`
	IsLeader bool   `json:"is_leader"`
	JoinedAt string `json:"joined_at"`
}

// ItemInfo is one cart line in a meeting detail response.  UnitPrice
// is the snapshot captured when the item was added.
type ItemInfo struct {
	ID        uint64 `json:"id"`
	UserID    uint64 `json:"user_id"`
	Nickname  string `json:"nickname"`
	MenuID    uint64 `json:"menu_id"`
	MenuName  string `json:"menu_name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	IsShared  bool   `json:"is_shared"`
}

// MeetingDetail aggregates a meeting with its store, members and the
// current cart contents for display.
type MeetingDetail struct {
	ID             uint64       `json:"id"`
	LeaderID       uint64       `json:"leader_id"`
	LeaderNickname string       `json:"leader_nickname"`
	StoreID        uint64       `json:"store_id"`
	StoreName      string       `json:"store_name"`
	StoreCategory  string       `json:"store_category"`
	MinOrderAmount int64        `json:"min_order_amount"`
	Title          string       `json:"title"`
	DiningType     string       `json:"dining_type"`
	OrderType      string       `json:"order_type"`
	PickupLocation string       `json:"pickup_location"`
	MinMembers     int64        `json:"min_members"`
	MaxMembers     int64        `json:"max_members"`
	DeliveryFee    int64        `json:"delivery_fee"`
	Deadline       string       `json:"deadline"`
	Status         string       `json:"status"`
	Campus         *string      `json:"campus,omitempty"`
	Members        []MemberInfo `json:"members"`
	Items          []ItemInfo   `json:"items"`
}

// GetDetail loads a meeting together with its store, member list and
// cart items.  Returns ErrMeetingNotFound when the meeting does not
// exist.
func (r *MeetingRepo) GetDetail(ctx context.Context, id uint64) (*MeetingDetail, error) {
	const q = `SELECT m.id, m.leader_id, u.nickname, m.store_id, s.name, s.category,
					  s.min_order_amount, m.title, m.dining_type, m.order_type,
					  m.pickup_location, m.min_members, m.max_members, m.delivery_fee,
					  m.deadline, m.status, m.campus
			   FROM meetings m
			   JOIN stores s ON s.id = m.store_id
			   JOIN users u ON u.id = m.leader_id
			   WHERE m.id = ?`
	var d MeetingDetail
	var deadline time.Time
	var campus sql.NullString
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.LeaderID, &d.LeaderNickname, &d.StoreID, &d.StoreName, &d.StoreCategory,
		&d.MinOrderAmount, &d.Title, &d.DiningType, &d.OrderType,
		&d.PickupLocation, &d.MinMembers, &d.MaxMembers, &d.DeliveryFee,
		&deadline, &d.Status, &campus,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, err
	}
	d.Deadline = deadline.UTC().Format(time.RFC3339)
	if campus.Valid {
		v := campus.String
		d.Campus = &v
	}

	const memberQ = `SELECT mm.user_id, u.nickname, mm.is_leader, mm.joined_at
					 FROM meeting_members mm
					 JOIN users u ON u.id = mm.user_id
					 WHERE mm.meeting_id = ?
					 ORDER BY mm.joined_at ASC`
	mrows, err := r.db.QueryContext(ctx, memberQ, id)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	d.Members = make([]MemberInfo, 0)
	for mrows.Next() {
		var m MemberInfo
		var joined time.Time
		if err := mrows.Scan(&m.UserID, &m.Nickname, &m.IsLeader, &joined); err != nil {
			return nil, err
		}
		m.JoinedAt = joined.UTC().Format(time.RFC3339)
		d.Members = append(d.Members, m)
	}
	if err := mrows.Err(); err != nil {
		return nil, err
	}

	const itemQ = `SELECT oi.id, oi.user_id, u.nickname, oi.menu_id, mn.name,
						  oi.quantity, oi.price, oi.is_shared
				   FROM order_items oi
				   JOIN orders o ON o.id = oi.order_id
				   JOIN menus mn ON mn.id = oi.menu_id
				   JOIN users u ON u.id = oi.user_id
				   WHERE o.meeting_id = ?
				   ORDER BY oi.id ASC`
	irows, err := r.db.QueryContext(ctx, itemQ, id)
	if err != nil {
		return nil, err
	}
	defer irows.Close()
	d.Items = make([]ItemInfo, 0)
	for irows.Next() {
		var it ItemInfo
		if err := irows.Scan(&it.ID, &it.UserID, &it.Nickname, &it.MenuID, &it.MenuName,
			&it.Quantity, &it.UnitPrice, &it.IsShared); err != nil {
			return nil, err
		}
		d.Items = append(d.Items, it)
	}
	if err := irows.Err(); err != nil {
		return nil, err
	}
	return &d, nil
}
