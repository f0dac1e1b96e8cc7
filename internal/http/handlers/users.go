package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/securedata/internal/domain/user"
	"github.com/geocoder89/securedata/internal/service"
	"github.com/gin-gonic/gin"
)

type UserVault interface {
	AddUser(ctx context.Context, name, password string) ([]user.Record, error)
	Decrypt(ctx context.Context, passphrase string) ([]user.Record, error)
	List(ctx context.Context) ([]user.Record, error)
}

type UsersHandler struct {
	vault UserVault
	log   *slog.Logger
	// bcrypt runs once per stored row on decrypt
	timeout time.Duration
}

func NewUsersHandler(vault UserVault, log *slog.Logger, timeout time.Duration) *UsersHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UsersHandler{vault: vault, log: log, timeout: timeout}
}

func (h *UsersHandler) AddUser(ctx *gin.Context) {
	var req user.AddUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	users, err := h.vault.AddUser(cctx, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrPasswordTooLong) {
			RespondBadRequest(ctx, "Password is too long", nil)
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "add user failed", "err", err)
		RespondInternal(ctx, "Could not add user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *UsersHandler) Decrypt(ctx *gin.Context) {
	var req user.DecryptRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	users, err := h.vault.Decrypt(cctx, req.Passphrase())
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "decrypt failed", "err", err)
		RespondInternal(ctx, "Could not decrypt data")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

// ListUsers is the admin view of every row as stored.
func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	users, err := h.vault.List(cctx)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "list users failed", "err", err)
		RespondInternal(ctx, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"users": users})
}
