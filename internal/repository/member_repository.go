package repository

import (
	"context"
	"database/sql"
)

// MemberRepo provides data access to the meeting_members table.  A
// (meeting_id, user_id) pair is unique at the schema level; callers
// still check ExistsTx inside the meeting-locked transaction so that
// a duplicate join surfaces as a domain error rather than a driver
// constraint violation.
type MemberRepo struct {
	db *sql.DB
}

// NewMemberRepo returns a new MemberRepo bound to the provided database.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

// InsertTx adds a member record within the provided transaction and
// returns the generated member ID.  isLeader is set only for the
// creator's record at meeting creation.
func (r *MemberRepo) InsertTx(ctx context.Context, tx *sql.Tx, meetingID, userID uint64, isLeader bool) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO meeting_members (meeting_id, user_id, is_leader) VALUES (?, ?, ?)`,
		meetingID, userID, isLeader,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ExistsTx reports whether the user already has a member record for
// the meeting.  Must run inside the same transaction as the insert to
// be authoritative.
func (r *MemberRepo) ExistsTx(ctx context.Context, tx *sql.Tx, meetingID, userID uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM meeting_members WHERE meeting_id = ? AND user_id = ?`,
		meetingID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Exists is the read-only variant of ExistsTx, used to gate
// member-facing reads outside any transaction.
func (r *MemberRepo) Exists(ctx context.Context, meetingID, userID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM meeting_members WHERE meeting_id = ? AND user_id = ?`,
		meetingID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountTx returns the current member count for a meeting.  It is a
// fresh COUNT(*) executed inside the caller's transaction, never a
// cached counter, so capacity checks cannot lose updates to a
// concurrent join.
func (r *MemberRepo) CountTx(ctx context.Context, tx *sql.Tx, meetingID uint64) (int64, error) {
	var n int64
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meeting_members WHERE meeting_id = ?`, meetingID,
	).Scan(&n)
	return n, err
}

// UserIDsTx returns the user IDs of all current members, in join
// order.  Used by settlement to credit refunds.
func (r *MemberRepo) UserIDsTx(ctx context.Context, tx *sql.Tx, meetingID uint64) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT user_id FROM meeting_members WHERE meeting_id = ? ORDER BY joined_at ASC, id ASC`,
		meetingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
