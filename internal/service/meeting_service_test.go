package service

import (
	"context"
	"database/sql"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyeora/group-order/internal/repository"
)

func newMeetingService(t *testing.T) (*MeetingService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := NewMeetingService(
		db,
		repository.NewMeetingRepo(db),
		repository.NewMemberRepo(db),
		repository.NewOrderRepo(db),
		repository.NewPaymentRepo(db),
		repository.NewPointRepo(db),
		repository.NewCatalogRepo(db),
		repository.NewChatRoomRepo(db),
		nil,
		log,
	)
	return svc, mock
}

var meetingCols = []string{
	"id", "leader_id", "store_id", "title", "dining_type", "order_type",
	"pickup_location", "meeting_location", "min_members", "max_members",
	"delivery_fee", "deadline", "status", "campus", "created_at", "updated_at",
}

// meetingRow builds the FOR UPDATE result for meeting 1 led by user 10
// at store 2.
func meetingRow(status string, min, max, fee int64, deadline time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(meetingCols).AddRow(
		1, 10, 2, "lunch run", "individual", "instant",
		"dorm A lobby", nil, min, max, fee, deadline, status, nil, now, now,
	)
}

func expectMeetingLock(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM meetings WHERE id = ? FOR UPDATE")).
		WithArgs(1).WillReturnRows(rows)
}

func expectMemberCount(mock sqlmock.Sqlmock, n int64) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM meeting_members WHERE meeting_id = ?")).
		WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func TestCreateMeeting(t *testing.T) {
	svc, mock := newMeetingService(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM stores WHERE id = ?")).
		WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("INSERT INTO meetings").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, created_at, updated_at FROM meetings WHERE id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"status", "created_at", "updated_at"}).
			AddRow("recruiting", now, now))
	mock.ExpectExec("INSERT INTO meeting_members").
		WithArgs(1, 10, true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_rooms").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	m, err := svc.Create(context.Background(), 10, CreateParams{
		StoreID:        2,
		Title:          "lunch run",
		PickupLocation: "dorm A lobby",
		MinMembers:     3,
		MaxMembers:     5,
		DeliveryFee:    1000,
		Deadline:       now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.ID)
	assert.Equal(t, "recruiting", m.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMeetingValidation(t *testing.T) {
	svc, _ := newMeetingService(t)
	future := time.Now().UTC().Add(time.Hour)

	_, err := svc.Create(context.Background(), 10, CreateParams{
		StoreID: 2, MinMembers: -1, MaxMembers: 5, Deadline: future,
	})
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = svc.Create(context.Background(), 10, CreateParams{
		StoreID: 2, MinMembers: 4, MaxMembers: 3, Deadline: future,
	})
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = svc.Create(context.Background(), 10, CreateParams{
		StoreID: 2, MinMembers: 2, MaxMembers: 4,
		Deadline: time.Now().UTC().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, ErrInvalidDeadline)

	_, err = svc.Create(context.Background(), 10, CreateParams{
		StoreID: 2, MinMembers: 2, MaxMembers: 4, DeliveryFee: -1, Deadline: future,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCreateMeetingDefaultBounds(t *testing.T) {
	svc, mock := newMeetingService(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM stores WHERE id = ?")).
		WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("INSERT INTO meetings").
		WithArgs(10, 2, "snack run", "individual", "instant", "dorm A lobby",
			nil, 2, 4, 1000, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, created_at, updated_at FROM meetings WHERE id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"status", "created_at", "updated_at"}).
			AddRow("recruiting", now, now))
	mock.ExpectExec("INSERT INTO meeting_members").
		WithArgs(1, 10, true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO chat_rooms").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	m, err := svc.Create(context.Background(), 10, CreateParams{
		StoreID:        2,
		Title:          "snack run",
		PickupLocation: "dorm A lobby",
		DeliveryFee:    1000,
		Deadline:       now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.MinMembers)
	assert.Equal(t, int64(4), m.MaxMembers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinSuccess(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	expectMemberCount(mock, 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM meeting_members WHERE meeting_id = ? AND user_id = ?")).
		WithArgs(1, 20).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO meeting_members").
		WithArgs(1, 20, false).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM orders WHERE meeting_id = ?")).
		WithArgs(1).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(1, 2, 1000).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT price FROM menus WHERE id = ?")).
		WithArgs(30).WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(6000))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(7, 20, 30, 2, 6000, false).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET total_amount = total_amount + ?")).
		WithArgs(12000, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(20, 1, 12000+334-500, 334, 500, "paid").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET points = points + ?")).
		WithArgs(-500, 20).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO point_history").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	res, err := svc.Join(context.Background(), 1, 20,
		[]JoinItem{{MenuID: 30, Quantity: 2}}, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.MemberID)
	assert.Equal(t, int64(2), res.MemberCount)
	assert.Equal(t, int64(12000), res.Subtotal)
	assert.Equal(t, int64(334), res.DeliveryFeeShare)
	assert.Equal(t, int64(11834), res.PaymentAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMeetingFull(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	expectMemberCount(mock, 5)
	mock.ExpectRollback()

	_, err := svc.Join(context.Background(), 1, 20, nil, 0)
	assert.ErrorIs(t, err, ErrMeetingFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinNotRecruiting(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("ordered", 3, 5, 1000, deadline))
	mock.ExpectRollback()

	_, err := svc.Join(context.Background(), 1, 20, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A meeting the sweeper already closed reports its status, not the
// stale deadline: the status check runs first, so the past deadline
// never surfaces as ErrDeadlinePassed.
func TestJoinClosedMeetingPastDeadline(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(-time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("closed", 3, 5, 1000, deadline))
	mock.ExpectRollback()

	_, err := svc.Join(context.Background(), 1, 20, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinDeadlinePassed(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(-time.Minute)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	expectMemberCount(mock, 1)
	mock.ExpectRollback()

	_, err := svc.Join(context.Background(), 1, 20, nil, 0)
	assert.ErrorIs(t, err, ErrDeadlinePassed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinAlreadyJoined(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	expectMemberCount(mock, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM meeting_members WHERE meeting_id = ? AND user_id = ?")).
		WithArgs(1, 20).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := svc.Join(context.Background(), 1, 20, nil, 0)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinSkipsMissingMenu(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	expectMemberCount(mock, 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM meeting_members WHERE meeting_id = ? AND user_id = ?")).
		WithArgs(1, 20).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO meeting_members").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM orders WHERE meeting_id = ?")).
		WithArgs(1).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT price FROM menus WHERE id = ?")).
		WithArgs(99).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET total_amount = total_amount + ?")).
		WithArgs(0, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(20, 1, 334, 334, 0, "paid").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	res, err := svc.Join(context.Background(), 1, 20,
		[]JoinItem{{MenuID: 99, Quantity: 1}}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Subtotal)
	assert.Equal(t, int64(334), res.PaymentAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelMenuItem(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE oi.id = ? AND oi.user_id = ?")).
		WithArgs(11, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_id", "user_id", "menu_id", "quantity", "price", "is_shared", "meeting_id",
		}).AddRow(11, 7, 20, 30, 2, 6000, false, 1))
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM order_items WHERE id = ?")).
		WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET total_amount = total_amount + ?")).
		WithArgs(-12000, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.CancelMenuItem(context.Background(), 11, 20)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelMenuItemAfterRecruiting(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE oi.id = ? AND oi.user_id = ?")).
		WithArgs(11, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_id", "user_id", "menu_id", "quantity", "price", "is_shared", "meeting_id",
		}).AddRow(11, 7, 20, 30, 1, 6000, false, 1))
	expectMeetingLock(mock, meetingRow("ordered", 3, 5, 1000, deadline))
	mock.ExpectRollback()

	err := svc.CancelMenuItem(context.Background(), 11, 20)
	assert.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOrderAdvances(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)
	now := time.Now().UTC()

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	expectMemberCount(mock, 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT min_order_amount FROM stores WHERE id = ?")).
		WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"min_order_amount"}).AddRow(10000))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE meeting_id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "meeting_id", "store_id", "total_amount", "delivery_fee", "status",
			"rider_id", "delay_reason", "created_at", "updated_at",
		}).AddRow(7, 1, 2, 15000, 1000, "pending", nil, nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE meetings SET status = ?")).
		WithArgs("ordered", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = ? WHERE meeting_id = ?")).
		WithArgs("pending", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.ProcessOrder(context.Background(), 1, 10)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOrderBelowThresholdCancels(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)
	now := time.Now().UTC()

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	expectMemberCount(mock, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT min_order_amount FROM stores WHERE id = ?")).
		WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"min_order_amount"}).AddRow(10000))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE meeting_id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "meeting_id", "store_id", "total_amount", "delivery_fee", "status",
			"rider_id", "delay_reason", "created_at", "updated_at",
		}).AddRow(7, 1, 2, 15000, 1000, "pending", nil, nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE meetings SET status = ?")).
		WithArgs("cancelled", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = ? WHERE meeting_id = ?")).
		WithArgs("cancelled", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The cancellation commits; the error reports an outcome, not a
	// rollback.
	mock.ExpectCommit()

	err := svc.ProcessOrder(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrBelowThreshold)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOrderNotLeader(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("recruiting", 3, 5, 1000, deadline))
	mock.ExpectRollback()

	err := svc.ProcessOrder(context.Background(), 1, 20)
	assert.ErrorIs(t, err, repository.ErrForbidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRefundsMembers(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(-time.Hour)

	// fee 1000, charged share ceil(1000/2)=500, true share
	// ceil(1000/3)=334, refund 166 each.
	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("delivered", 2, 5, 1000, deadline))
	expectMemberCount(mock, 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM meeting_members WHERE meeting_id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(10).AddRow(20).AddRow(30))
	for _, uid := range []int{10, 20, 30} {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET points = points + ?")).
			WithArgs(166, uid).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO point_history").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE meetings SET status = ?")).
		WithArgs("completed", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = ? WHERE meeting_id = ?")).
		WithArgs("completed", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	refund, err := svc.Complete(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(166), refund)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteNoRefundWhenAtMinimum(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(-time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("delivered", 3, 5, 1000, deadline))
	expectMemberCount(mock, 3)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE meetings SET status = ?")).
		WithArgs("completed", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status = ? WHERE meeting_id = ?")).
		WithArgs("completed", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	refund, err := svc.Complete(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), refund)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Settlement is only legal after the rider's drop-off confirmation;
// a meeting still recruiting or ordered must not jump to completed
// and credit refunds for an undelivered order.
func TestCompleteBeforeDeliveryRejected(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(time.Hour)

	for _, status := range []string{"recruiting", "ordered", "cooking"} {
		mock.ExpectBegin()
		expectMeetingLock(mock, meetingRow(status, 2, 5, 1000, deadline))
		mock.ExpectRollback()

		_, err := svc.Complete(context.Background(), 1, 10)
		assert.ErrorIs(t, err, ErrInvalidState, status)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteTwiceRejected(t *testing.T) {
	svc, mock := newMeetingService(t)
	deadline := time.Now().UTC().Add(-time.Hour)

	mock.ExpectBegin()
	expectMeetingLock(mock, meetingRow("completed", 2, 5, 1000, deadline))
	mock.ExpectRollback()

	_, err := svc.Complete(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}
