// This file contains the background consumer that listens to the
// meeting.events queue and writes structured lines to
// logs/meeting-events.log. It stands in for the notification
// service's fan-out in deployments where that service is absent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// StartMeetingEventConsumer connects to RabbitMQ, declares the
// durable meeting.events queue, and consumes messages forever. Each
// message is appended to logs/meeting-events.log in a single-line
// format. The function runs a reconnect loop with backoff; processing
// errors are logged and the offending message rejected (not requeued)
// so one bad payload cannot wedge the consumer.  Returns when ctx is
// cancelled.
func StartMeetingEventConsumer(ctx context.Context, log *logrus.Logger) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(brokerURL())
		if err != nil {
			log.WithError(err).Warnf("event consumer: dial failed; retrying in %s", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeLoop(ctx, conn, log); err != nil {
			log.WithError(err).Warn("event consumer: consume loop ended; reconnecting")
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
		}
	}
}

// sleepCtx waits d or until ctx is cancelled; reports whether the
// caller should keep running.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, log *logrus.Logger) error {
	defer func() { _ = conn.Close() }()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("event consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(meetingQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(meetingQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(d.Body); err != nil {
				log.WithError(err).Warn("event consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(body []byte) error {
	var ev MeetingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "meeting-events.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | meeting_id=%d | order_id=%d | user_id=%d | status=%s | members=%d | refund=%d\n",
		ev.OccurredAt, ev.Type, ev.MeetingID, ev.OrderID, ev.UserID, ev.Status, ev.MemberCount, ev.RefundPerPerson)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
