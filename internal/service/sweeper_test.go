package service

import (
	"context"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/moyeora/group-order/internal/repository"
)

func TestSweeperClosesExpiredMeetings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logrus.New()
	log.SetOutput(io.Discard)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE meetings SET status = 'closed' WHERE status = 'recruiting' AND deadline < UTC_TIMESTAMP()")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	s := NewSweeper(repository.NewMeetingRepo(db), time.Hour, log)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweeperSurvivesErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logrus.New()
	log.SetOutput(io.Discard)

	mock.ExpectExec("UPDATE meetings SET status = 'closed'").
		WillReturnError(context.DeadlineExceeded)

	s := NewSweeper(repository.NewMeetingRepo(db), time.Hour, log)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.NoError(t, mock.ExpectationsWereMet())
}