package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

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

const orderCols = `id, order_number, patient_id, pharmacy_id, prescription_id, status, items,
	total_amount, notes, delivered_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o     Order
		items []byte
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.PatientID, &o.PharmacyID, &o.PrescriptionID, &o.Status,
		&items, &o.TotalAmount, &o.Notes, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrap(err, "decode order items")
	}
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "encode order items")
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy_order (id, order_number, patient_id, pharmacy_id, prescription_id,
			status, items, total_amount, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.PatientID, o.PharmacyID, o.PrescriptionID,
		o.Status, items, o.TotalAmount, o.Notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	return apperr.FromDB(errors.Wrap(err, "insert order"), "order")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM pharmacy_order WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(errors.Wrap(err, "get order"), "order")
	}
	return o, nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Order, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.PatientID != uuid.Nil {
		args = append(args, f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if len(f.PharmacyIDs) > 0 {
		args = append(args, f.PharmacyIDs)
		where = append(where, fmt.Sprintf("pharmacy_id = ANY($%d)", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pharmacy_order`+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM pharmacy_order%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderCols, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	defer rows.Close()
	out := make([]*Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	return out, total, errors.Wrap(rows.Err(), "iterate orders")
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, deliveredAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE pharmacy_order
		SET status = $3, delivered_at = COALESCE($4, delivered_at), updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to, deliveredAt)
	if err != nil {
		return apperr.FromDB(errors.Wrap(err, "update order status"), "order")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflictf("order status changed concurrently")
	}
	return nil
}
