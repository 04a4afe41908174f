package pharmacy

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

const pharmacyCols = `id, name, owner_user_id, email, phone, address, license_number,
	is_active, created_at, updated_at`

func scanPharmacy(row pgx.Row) (*Pharmacy, error) {
	var p Pharmacy
	err := row.Scan(&p.ID, &p.Name, &p.OwnerUserID, &p.Email, &p.Phone, &p.Address,
		&p.LicenseNumber, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Pharmacy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy (id, name, owner_user_id, email, phone, address, license_number, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.OwnerUserID, p.Email, p.Phone, p.Address, p.LicenseNumber, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return apperr.FromDB(errors.Wrap(err, "insert pharmacy"), "pharmacy")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	p, err := scanPharmacy(r.conn(ctx).QueryRow(ctx,
		`SELECT `+pharmacyCols+` FROM pharmacy WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(errors.Wrap(err, "get pharmacy"), "pharmacy")
	}
	return p, nil
}

func (r *repoPG) GetByOperator(ctx context.Context, userID uuid.UUID) (*Pharmacy, error) {
	// A direct id match wins over an ownership match.
	p, err := scanPharmacy(r.conn(ctx).QueryRow(ctx, `
		SELECT `+pharmacyCols+` FROM pharmacy
		WHERE id = $1 OR owner_user_id = $1
		ORDER BY (id = $1) DESC, created_at ASC
		LIMIT 1`, userID))
	if err != nil {
		return nil, apperr.FromDB(errors.Wrap(err, "get pharmacy by operator"), "pharmacy")
	}
	return p, nil
}

func (r *repoPG) ListByOperator(ctx context.Context, userID uuid.UUID) ([]*Pharmacy, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+pharmacyCols+` FROM pharmacy
		WHERE id = $1 OR owner_user_id = $1
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list pharmacies by operator")
	}
	defer rows.Close()

	var out []*Pharmacy
	for rows.Next() {
		p, err := scanPharmacy(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan pharmacy")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate pharmacies")
}

func (r *repoPG) Update(ctx context.Context, p *Pharmacy) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE pharmacy SET name=$2, email=$3, phone=$4, address=$5, license_number=$6,
			is_active=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Email, p.Phone, p.Address, p.LicenseNumber, p.IsActive,
	).Scan(&p.UpdatedAt)
	return apperr.FromDB(errors.Wrap(err, "update pharmacy"), "pharmacy")
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Pharmacy, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pharmacy WHERE is_active`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count pharmacies")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+pharmacyCols+` FROM pharmacy
		WHERE is_active ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list pharmacies")
	}
	defer rows.Close()
	items := make([]*Pharmacy, 0, limit)
	for rows.Next() {
		p, err := scanPharmacy(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan pharmacy")
		}
		items = append(items, p)
	}
	return items, total, errors.Wrap(rows.Err(), "iterate pharmacies")
}
