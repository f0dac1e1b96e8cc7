package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/geocoder89/securedata/internal/domain/user"
	"github.com/geocoder89/securedata/internal/observability"
	"github.com/geocoder89/securedata/internal/security"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// bcrypt only looks at the first 72 bytes; longer input is rejected rather
// than silently truncated.
const maxPasswordBytes = 72

var ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

type UsersStore interface {
	Create(ctx context.Context, nameEncrypted, passwordHash string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
}

type UserService struct {
	store   UsersStore
	cipher  *security.Cipher
	metrics Metrics
	log     *slog.Logger
}

func NewUserService(store UsersStore, cipher *security.Cipher, metrics Metrics, log *slog.Logger) *UserService {
	return &UserService{
		store:   store,
		cipher:  cipher,
		metrics: metricsOrNop(metrics),
		log:     log,
	}
}

// AddUser stores the name encrypted and the password hashed, then returns
// every stored row as it sits at rest, oldest first.
func (s *UserService) AddUser(ctx context.Context, name, password string) ([]user.Record, error) {
	ctx, span := observability.StartSpan(ctx, "users.add")
	defer span.End()

	if len(password) > maxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	nameEnc, err := s.cipher.Seal(name)
	s.metrics.ObserveCrypto("encrypt", err)
	if err != nil {
		return nil, fmt.Errorf("encrypt name: %w", err)
	}

	hash, err := security.HashPassword(password)
	s.metrics.ObserveCrypto("hash", err)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.store.Create(ctx, nameEnc, hash); err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}

	return s.List(ctx)
}

// List returns every row in stored form.
func (s *UserService) List(ctx context.Context) ([]user.Record, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]user.Record, 0, len(users))
	for _, u := range users {
		out = append(out, u.Stored())
	}

	return out, nil
}

// Decrypt reveals the names of rows whose password matches passphrase. All
// other rows come back as the "Not yours" placeholder, so the list keeps its
// length and order.
func (s *UserService) Decrypt(ctx context.Context, passphrase string) ([]user.Record, error) {
	ctx, span := observability.StartSpan(ctx, "users.decrypt")
	defer span.End()

	users, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	span.SetAttributes(attribute.Int("users.count", len(users)))

	out := make([]user.Record, len(users))

	// bcrypt dominates; spread the comparisons over the cores
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, u := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.reveal(gctx, u, passphrase)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *UserService) reveal(ctx context.Context, u user.User, passphrase string) user.Record {
	if len(passphrase) > maxPasswordBytes || !security.PasswordMatches(u.PasswordHash, passphrase) {
		return user.Hidden()
	}

	name, err := s.cipher.Open(u.NameEncrypted)
	s.metrics.ObserveCrypto("decrypt", err)
	if err != nil {
		// encrypted under a different key; nothing the caller can do
		s.log.ErrorContext(ctx, "user name could not be decrypted", "user_id", u.ID, "err", err)
		return user.Hidden()
	}

	return user.Record{Name: name, Password: passphrase}
}
