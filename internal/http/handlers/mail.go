package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/securedata/internal/domain/email"
	"github.com/geocoder89/securedata/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type SignedMailer interface {
	Send(ctx context.Context, recipient, message string) (email.Details, error)
	Verify(ctx context.Context, message, signature string) bool
	History(ctx context.Context, limit int) ([]email.Record, error)
}

type MailHandler struct {
	mail    SignedMailer
	timeout time.Duration
}

// timeout must cover the mailer's retries
func NewMailHandler(mail SignedMailer, timeout time.Duration) *MailHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MailHandler{mail: mail, timeout: timeout}
}

func (h *MailHandler) SendEmail(ctx *gin.Context) {
	var req email.SendEmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	details, err := h.mail.Send(cctx, req.Email, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMailUnavailable):
			RespondUnavailable(ctx, "mail_unavailable", service.FailedDeliveryMessage)
		default:
			RespondBadGateway(ctx, "delivery_failed", service.FailedDeliveryMessage)
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"emailDetails": details})
}

func (h *MailHandler) VerifySignature(ctx *gin.Context) {
	var req email.VerifySignatureRequest

	if !BindJSON(ctx, &req) {
		return
	}

	ok := h.mail.Verify(ctx.Request.Context(), req.Message, req.Signature)

	ctx.JSON(http.StatusOK, email.VerifySignatureResponse{IsValid: ok})
}

// ListEmails is the admin view of send attempts, newest first.
func (h *MailHandler) ListEmails(ctx *gin.Context) {
	limit := defaultHistoryLimit

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondBadRequest(ctx, "limit must be a positive integer", gin.H{"limit": raw})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	emails, err := h.mail.History(cctx, limit)
	if err != nil {
		RespondInternal(ctx, "Could not list emails")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"emails": emails,
		"count":  len(emails),
	})
}
