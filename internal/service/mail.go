package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/securedata/internal/domain/email"
	"github.com/geocoder89/securedata/internal/mailer"
	"github.com/geocoder89/securedata/internal/observability"
	"github.com/geocoder89/securedata/internal/security"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrDeliveryFailed  = errors.New("email delivery failed")
	ErrMailUnavailable = errors.New("email delivery temporarily unavailable")

	errSignatureMismatch = errors.New("signature mismatch")
)

// FailedDeliveryMessage is the error text recorded and returned when a send
// does not go through.
const FailedDeliveryMessage = "Failed to send email"

type EmailsStore interface {
	Create(ctx context.Context, rec email.Record) (email.Record, error)
	List(ctx context.Context, limit int) ([]email.Record, error)
}

type MailService struct {
	signer  *security.Signer
	mailer  mailer.Mailer
	store   EmailsStore
	metrics Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewMailService(signer *security.Signer, m mailer.Mailer, store EmailsStore, metrics Metrics, log *slog.Logger) *MailService {
	return &MailService{
		signer:  signer,
		mailer:  m,
		store:   store,
		metrics: metricsOrNop(metrics),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Send signs message, mails message and signature to recipient, and records
// the attempt. On failure the returned details carry signed=false and the
// error text alongside ErrDeliveryFailed or ErrMailUnavailable.
func (s *MailService) Send(ctx context.Context, recipient, message string) (email.Details, error) {
	ctx, span := observability.StartSpan(ctx, "mail.send")
	defer span.End()

	signature := s.signer.Sign(message)
	s.metrics.ObserveCrypto("sign", nil)

	start := time.Now()
	sendErr := s.mailer.Send(ctx, mailer.Message{
		To:      recipient,
		Subject: email.Subject,
		Body:    email.Body(message, signature),
	})
	took := time.Since(start)

	rec := email.Record{
		Recipient: recipient,
		Message:   message,
		SentAt:    s.now(),
	}

	var err error
	switch {
	case sendErr == nil:
		rec.Signed = true
		rec.Signature = signature
		s.metrics.ObserveMail("sent", took)

	case errors.Is(sendErr, mailer.ErrCircuitOpen):
		rec.Error = FailedDeliveryMessage
		err = ErrMailUnavailable
		s.metrics.ObserveMail("circuit_open", took)

	default:
		rec.Error = FailedDeliveryMessage
		err = ErrDeliveryFailed
		s.metrics.ObserveMail("failed", took)
	}

	if sendErr != nil {
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, "delivery failed")
		s.log.ErrorContext(ctx, "error sending email", "err", sendErr)
	}

	// delivery outcome stands even if the history write fails
	if _, storeErr := s.store.Create(ctx, rec); storeErr != nil {
		s.log.ErrorContext(ctx, "could not record email", "err", storeErr)
	}

	span.SetAttributes(attribute.Bool("mail.signed", rec.Signed))

	return rec.Details(), err
}

func (s *MailService) Verify(ctx context.Context, message, signature string) bool {
	_, span := observability.StartSpan(ctx, "mail.verify")
	defer span.End()

	ok := s.signer.Verify(message, signature)

	var verr error
	if !ok {
		verr = errSignatureMismatch
	}
	s.metrics.ObserveCrypto("verify", verr)
	span.SetAttributes(attribute.Bool("signature.valid", ok))

	return ok
}

// History lists recorded attempts, newest first.
func (s *MailService) History(ctx context.Context, limit int) ([]email.Record, error) {
	return s.store.List(ctx, limit)
}
