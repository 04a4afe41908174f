package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
	"github.com/rxhub/pharmacy/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Upsert(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, first_name, last_name, email, phone, date_of_birth)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			date_of_birth = EXCLUDED.date_of_birth,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return apperr.FromDB(errors.Wrap(err, "upsert patient"), "patient")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, date_of_birth, created_at, updated_at
		FROM patient WHERE id = $1`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(errors.Wrap(err, "get patient"), "patient")
	}
	return &p, nil
}
