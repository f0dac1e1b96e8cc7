package mailer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"
)

var ErrSimulatedOutage = errors.New("mail provider down (simulated)")

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	log *slog.Logger

	// Delay simulates a slow provider.
	Delay time.Duration
	// Fail simulates a provider outage.
	Fail bool
}

// NewLogMailer reads MAIL_SLEEP_MS and MAIL_SIMULATE_FAILURE so local runs
// can exercise the timeout and failure paths.
func NewLogMailer(log *slog.Logger) *LogMailer {
	m := &LogMailer{log: log}

	if msStr := os.Getenv("MAIL_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			m.Delay = time.Duration(ms) * time.Millisecond
		}
	}

	m.Fail = os.Getenv("MAIL_SIMULATE_FAILURE") == "1"

	return m
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if m.Fail {
		return ErrSimulatedOutage
	}

	m.log.InfoContext(ctx, "mail.sent",
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return nil
}
