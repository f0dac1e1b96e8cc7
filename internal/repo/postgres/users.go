package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/securedata/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	obs  Observer
}

func NewUsersRepo(pool *pgxpool.Pool, obs Observer) *UsersRepo {
	return &UsersRepo{pool: pool, obs: observerOrNoop(obs)}
}

func (r *UsersRepo) Create(ctx context.Context, nameEncrypted, passwordHash string) (user.User, error) {
	u := user.User{
		ID:            uuid.NewString(),
		NameEncrypted: nameEncrypted,
		PasswordHash:  passwordHash,
		CreatedAt:     time.Now().UTC(),
	}

	err := r.obs.ObserveDB("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, name_encrypted, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
			u.ID, u.NameEncrypted, u.PasswordHash, u.CreatedAt,
		)
		return err
	})

	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	var out []user.User

	err := r.obs.ObserveDB("users.list", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, name_encrypted, password_hash, created_at
			 FROM users
			 ORDER BY created_at ASC, id ASC`,
		)
		if err != nil {
			return err
		}

		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.User, error) {
			var u user.User
			err := row.Scan(&u.ID, &u.NameEncrypted, &u.PasswordHash, &u.CreatedAt)
			return u, err
		})
		return err
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}
