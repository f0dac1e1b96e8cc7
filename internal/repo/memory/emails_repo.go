package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/securedata/internal/domain/email"
	"github.com/google/uuid"
)

type EmailsRepo struct {
	mu    sync.RWMutex
	items []email.Record
}

func NewEmailsRepo() *EmailsRepo {
	return &EmailsRepo{}
}

func (r *EmailsRepo) Create(ctx context.Context, rec email.Record) (email.Record, error) {
	if err := ctx.Err(); err != nil {
		return email.Record{}, err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	r.mu.Lock()
	r.items = append(r.items, rec)
	r.mu.Unlock()

	return rec, nil
}

// List returns up to limit records, newest first.
func (r *EmailsRepo) List(ctx context.Context, limit int) ([]email.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.items)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]email.Record, 0, n)
	for i := len(r.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.items[i])
	}

	return out, nil
}
