// Package service owns the transactional orchestration of the
// group-order domain: meeting lifecycle, admission control, fund
// movement and the deadline sweeper.  Every operation runs as one
// database transaction that either commits in full or rolls back in
// full; the sentinels below are the typed outcomes surfaced to
// handlers, decoupled from any transport status code.
package service

import "errors"

// ErrInvalidState is returned when an operation is not legal in the
// meeting's current status: joining a closed meeting, cancelling an
// item after recruiting ended, completing a cancelled meeting.
var ErrInvalidState = errors.New("operation not allowed in current meeting state")

// ErrMeetingFull is returned when the fresh in-transaction member
// count has already reached maxMembers.
var ErrMeetingFull = errors.New("meeting is full")

// ErrDeadlinePassed is returned when a join arrives after the
// recruiting deadline but before the sweeper has closed the meeting.
var ErrDeadlinePassed = errors.New("meeting deadline has passed")

// ErrAlreadyJoined is returned when the user already has a member
// record for the meeting.
var ErrAlreadyJoined = errors.New("already joined this meeting")

// ErrBelowThreshold reports that placing the order failed because the
// member count or order total was below the minimum, and that the
// meeting was cancelled as a consequence.  Unlike every other error
// in this package it accompanies a COMMITTED state change: callers
// must treat it as a final business outcome, not a retryable failure.
var ErrBelowThreshold = errors.New("minimum threshold not met; meeting cancelled")

// ErrInvalidCapacity is returned at creation when the member bounds
// are inconsistent (minMembers < 1 or minMembers > maxMembers).
var ErrInvalidCapacity = errors.New("invalid member capacity bounds")

// ErrInvalidDeadline is returned at creation when the deadline is not
// in the future.
var ErrInvalidDeadline = errors.New("deadline must be in the future")

// ErrInvalidAmount is returned when a request carries a negative
// delivery fee or negative points.
var ErrInvalidAmount = errors.New("amount must not be negative")
