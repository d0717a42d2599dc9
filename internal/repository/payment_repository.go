package repository

import (
	"context"
	"database/sql"

	"github.com/moyeora/group-order/internal/model"
)

// PaymentRepo provides data access to the payments table.  One
// non-refunded payment exists per (user, meeting); it is captured at
// join time and never adjusted by later cart edits.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// CreateTx inserts a payment record within the caller's transaction
// and populates the generated ID.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO payments (user_id, meeting_id, amount, delivery_fee_share, points_used, status) VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.MeetingID, p.Amount, p.DeliveryFeeShare, p.PointsUsed, p.Status,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// ListByMeeting returns all payments captured for a meeting, in
// insertion order.
func (r *PaymentRepo) ListByMeeting(ctx context.Context, meetingID uint64) ([]model.Payment, error) {
	const q = `SELECT id, user_id, meeting_id, amount, delivery_fee_share, points_used, status, created_at
			   FROM payments WHERE meeting_id = ? ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, q, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]model.Payment, 0)
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.MeetingID, &p.Amount, &p.DeliveryFeeShare,
			&p.PointsUsed, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
