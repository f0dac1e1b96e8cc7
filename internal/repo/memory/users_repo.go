package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/securedata/internal/domain/user"
	"github.com/google/uuid"
)

type UsersRepo struct {
	mu    sync.RWMutex
	items []user.User // insertion order
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{}
}

func (r *UsersRepo) Create(ctx context.Context, nameEncrypted, passwordHash string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	u := user.User{
		ID:            uuid.NewString(),
		NameEncrypted: nameEncrypted,
		PasswordHash:  passwordHash,
		CreatedAt:     time.Now().UTC(),
	}

	r.mu.Lock()
	r.items = append(r.items, u)
	r.mu.Unlock()

	return u, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.User, len(r.items))
	copy(out, r.items)

	return out, nil
}
