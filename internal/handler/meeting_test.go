package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyeora/group-order/internal/repository"
	"github.com/moyeora/group-order/internal/service"
)

func newMeetingHandler(t *testing.T) (*MeetingHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logrus.New()
	log.SetOutput(io.Discard)
	meetings := service.NewMeetingService(
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
	h := NewMeetingHandler(meetings, repository.NewMeetingRepo(db),
		repository.NewMemberRepo(db), repository.NewPaymentRepo(db))
	return h, mock
}

// paymentsContext builds an authenticated GET request against the
// payments endpoint of meeting 1.
func paymentsContext(userID uint64) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/meetings/1/payments", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/meetings/:id/payments")
	c.SetParamNames("id")
	c.SetParamValues("1")
	c.Set("user_id", userID)
	return c, rec
}

func TestPaymentsListsForMember(t *testing.T) {
	h, mock := newMeetingHandler(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM meeting_members WHERE meeting_id = ? AND user_id = ?")).
		WithArgs(1, 20).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE meeting_id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "meeting_id", "amount", "delivery_fee_share", "points_used", "status", "created_at",
		}).AddRow(3, 20, 1, 11834, 334, 500, "paid", now))

	c, rec := paymentsContext(20)
	require.NoError(t, h.Payments(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "delivery_fee_share")
	require.NoError(t, mock.ExpectationsWereMet())
}

// Charged amounts and point spends are visible to the group only;
// an authenticated outsider gets 403 and no payment row is read.
func TestPaymentsRejectsNonMember(t *testing.T) {
	h, mock := newMeetingHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM meeting_members WHERE meeting_id = ? AND user_id = ?")).
		WithArgs(1, 99).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	c, rec := paymentsContext(99)
	require.NoError(t, h.Payments(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
