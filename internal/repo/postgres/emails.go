package postgres

import (
	"context"

	"github.com/geocoder89/securedata/internal/domain/email"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EmailsRepo struct {
	pool *pgxpool.Pool
	obs  Observer
}

func NewEmailsRepo(pool *pgxpool.Pool, obs Observer) *EmailsRepo {
	return &EmailsRepo{pool: pool, obs: observerOrNoop(obs)}
}

func (r *EmailsRepo) Create(ctx context.Context, rec email.Record) (email.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	err := r.obs.ObserveDB("emails.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO emails (id, recipient, message, signature, signed, error, sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.ID, rec.Recipient, rec.Message, rec.Signature, rec.Signed, rec.Error, rec.SentAt,
		)
		return err
	})

	if err != nil {
		return email.Record{}, err
	}

	return rec, nil
}

// List returns up to limit records, newest first. limit <= 0 means no limit.
func (r *EmailsRepo) List(ctx context.Context, limit int) ([]email.Record, error) {
	var out []email.Record

	err := r.obs.ObserveDB("emails.list", func() error {
		query := `SELECT id, recipient, message, signature, signed, error, sent_at
			FROM emails
			ORDER BY sent_at DESC, id DESC`
		args := []any{}

		if limit > 0 {
			query += ` LIMIT $1`
			args = append(args, limit)
		}

		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}

		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (email.Record, error) {
			var rec email.Record
			err := row.Scan(&rec.ID, &rec.Recipient, &rec.Message, &rec.Signature, &rec.Signed, &rec.Error, &rec.SentAt)
			return rec, err
		})
		return err
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}
