package mailer

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type ProtectedMailerConfig struct {
	Timeout          time.Duration // hard timeout per attempt
	MaxAttempts      int           // attempts per Send, including the first
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	FailureThreshold int           // consecutive failed sends to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half_open"
)

// ProtectedMailer wraps a Mailer with per-attempt timeouts, bounded retries
// and a circuit breaker.
type ProtectedMailer struct {
	inner Mailer
	cfg   ProtectedMailerConfig
	mu    sync.Mutex

	state string

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewProtectedMailer(inner Mailer, cfg ProtectedMailerConfig) *ProtectedMailer {
	//defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedMailer{
		inner: inner,
		cfg:   cfg,
		state: stateClosed,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func (m *ProtectedMailer) Send(ctx context.Context, msg Message) error {
	// fail-fast gate
	if !m.allowRequest() {
		return ErrCircuitOpen
	}

	err := m.sendWithRetry(ctx, msg)

	m.afterRequest(err)

	return err
}

// State reports the breaker state: closed, open or half_open.
func (m *ProtectedMailer) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ProtectedMailer) sendWithRetry(ctx context.Context, msg Message) error {
	var err error

	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := m.sleep(ctx, ExponentialBackoff(attempt-1, m.cfg.BackoffBase, m.cfg.BackoffCap)); sleepErr != nil {
				return err
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		err = m.inner.Send(sendCtx, msg)
		cancel()

		if err == nil || IsPermanent(err) || ctx.Err() != nil {
			return err
		}
	}

	return err
}

func (m *ProtectedMailer) allowRequest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateClosed:
		return true
	case stateOpen:
		// cooldown has passed? move to half open
		if m.now().Sub(m.openedAt) >= m.cfg.Cooldown {
			m.state = stateHalfOpen
			m.halfOpenInFlight = 1
			return true
		}
		return false
	case stateHalfOpen:
		if m.halfOpenInFlight >= m.cfg.HalfOpenMaxCalls {
			return false
		}
		m.halfOpenInFlight++
		return true

	default:
		return true
	}
}

func (m *ProtectedMailer) afterRequest(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// half-open call just finished
	if m.state == stateHalfOpen && m.halfOpenInFlight > 0 {
		m.halfOpenInFlight--
	}

	// a rejected address says nothing about provider health
	if err == nil || IsPermanent(err) {
		m.consecutiveFailures = 0
		m.state = stateClosed
		return
	}

	m.consecutiveFailures++

	// if half-open failed, reopen immediately
	if m.state == stateHalfOpen {
		m.state = stateOpen
		m.openedAt = m.now()
		return
	}

	if m.consecutiveFailures >= m.cfg.FailureThreshold {
		m.state = stateOpen
		m.openedAt = m.now()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
