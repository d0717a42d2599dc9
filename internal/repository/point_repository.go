package repository

import (
	"context"
	"database/sql"

	"github.com/moyeora/group-order/internal/model"
)

// PointRepo is the ledger primitive shared by every money-moving
// operation: an atomic balance adjustment on users.points paired with
// an append-only point_history record.  Both writes always happen in
// the caller's transaction so a debit can never commit without its
// ledger entry.
type PointRepo struct {
	db *sql.DB
}

// NewPointRepo returns a new PointRepo bound to the given database.
func NewPointRepo(db *sql.DB) *PointRepo { return &PointRepo{db: db} }

// AddTx applies a signed delta to a user's point balance.
func (r *PointRepo) AddTx(ctx context.Context, tx *sql.Tx, userID uint64, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET points = points + ? WHERE id = ?`, delta, userID)
	return err
}

// AppendHistoryTx appends one ledger entry.  History rows are never
// updated or deleted.
func (r *PointRepo) AppendHistoryTx(ctx context.Context, tx *sql.Tx, h *model.PointHistory) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO point_history (user_id, amount, type, description, meeting_id) VALUES (?, ?, ?, ?, ?)`,
		h.UserID, h.Amount, h.Type, h.Description, h.MeetingID,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	return nil
}

// HistoryByUser returns a user's ledger entries, newest first.
func (r *PointRepo) HistoryByUser(ctx context.Context, userID uint64) ([]model.PointHistory, error) {
	const q = `SELECT id, user_id, amount, type, description, meeting_id, created_at
			   FROM point_history WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]model.PointHistory, 0)
	for rows.Next() {
		var h model.PointHistory
		var meetingID sql.NullInt64
		if err := rows.Scan(&h.ID, &h.UserID, &h.Amount, &h.Type, &h.Description, &meetingID, &h.CreatedAt); err != nil {
			return nil, err
		}
		if meetingID.Valid {
			v := uint64(meetingID.Int64)
			h.MeetingID = &v
		}
		list = append(list, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
