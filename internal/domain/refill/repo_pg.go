package refill

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

// onePendingIndex is the partial unique index that backs the one pending
// request per order rule.
const onePendingIndex = "refill_request_one_pending"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const refillCols = `r.id, r.original_order_id, r.prescription_id, r.patient_id, r.pharmacy_id,
	r.status, r.medications, r.notes, r.response_message, r.responded_at, r.responded_by,
	r.requested_at, r.created_at, r.updated_at`

const detailCols = refillCols + `,
	o.id, o.order_number, o.status, o.total_amount, o.created_at,
	pr.id, pr.prescription_number, pr.doctor_name, pr.issued_at,
	pa.id, pa.first_name, pa.last_name, pa.email, pa.phone,
	ph.id, ph.name, ph.email, ph.phone`

const detailFrom = ` FROM refill_request r
	LEFT JOIN pharmacy_order o ON o.id = r.original_order_id
	LEFT JOIN prescription pr ON pr.id = r.prescription_id
	LEFT JOIN patient pa ON pa.id = r.patient_id
	LEFT JOIN pharmacy ph ON ph.id = r.pharmacy_id`

type refillRow struct {
	req         RefillRequest
	meds        []byte
	respMessage *string
	respondedAt *time.Time
	respondedBy *uuid.UUID
}

func (row *refillRow) dest() []interface{} {
	r := &row.req
	return []interface{}{&r.ID, &r.OriginalOrderID, &r.PrescriptionID, &r.PatientID, &r.PharmacyID,
		&r.Status, &row.meds, &r.Notes, &row.respMessage, &row.respondedAt, &row.respondedBy,
		&r.RequestedAt, &r.CreatedAt, &r.UpdatedAt}
}

func (row *refillRow) finish() (*RefillRequest, error) {
	r := row.req
	r.Medications = []Medication{}
	if len(row.meds) > 0 {
		if err := json.Unmarshal(row.meds, &r.Medications); err != nil {
			return nil, errors.Wrap(err, "decode medications")
		}
		if r.Medications == nil {
			r.Medications = []Medication{}
		}
	}
	if row.respondedAt != nil {
		resp := &PharmacyResponse{Message: row.respMessage, RespondedAt: *row.respondedAt}
		if row.respondedBy != nil {
			resp.RespondedBy = *row.respondedBy
		}
		r.PharmacyResponse = resp
	}
	return &r, nil
}

func scanRefill(row pgx.Row) (*RefillRequest, error) {
	var rr refillRow
	if err := row.Scan(rr.dest()...); err != nil {
		return nil, err
	}
	return rr.finish()
}

func scanDetail(row pgx.Row) (*RefillRequestDetail, error) {
	var (
		rr refillRow

		oID        *uuid.UUID
		oNumber    *string
		oStatus    *string
		oTotal     *float64
		oCreatedAt *time.Time

		prID       *uuid.UUID
		prNumber   *string
		prDoctor   *string
		prIssuedAt *time.Time

		paID    *uuid.UUID
		paFirst *string
		paLast  *string
		paEmail *string
		paPhone *string

		phID    *uuid.UUID
		phName  *string
		phEmail *string
		phPhone *string
	)
	dest := append(rr.dest(),
		&oID, &oNumber, &oStatus, &oTotal, &oCreatedAt,
		&prID, &prNumber, &prDoctor, &prIssuedAt,
		&paID, &paFirst, &paLast, &paEmail, &paPhone,
		&phID, &phName, &phEmail, &phPhone)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	req, err := rr.finish()
	if err != nil {
		return nil, err
	}

	d := &RefillRequestDetail{RefillRequest: *req}
	if oID != nil {
		d.Order = &OrderSummary{ID: *oID, OrderNumber: deref(oNumber), Status: deref(oStatus)}
		if oTotal != nil {
			d.Order.TotalAmount = *oTotal
		}
		if oCreatedAt != nil {
			d.Order.CreatedAt = *oCreatedAt
		}
	}
	if prID != nil {
		d.Prescription = &PrescriptionSummary{ID: *prID, PrescriptionNumber: deref(prNumber), DoctorName: deref(prDoctor)}
		if prIssuedAt != nil {
			d.Prescription.IssuedAt = *prIssuedAt
		}
	}
	if paID != nil {
		d.Patient = &PatientSummary{ID: *paID, FirstName: deref(paFirst), LastName: deref(paLast),
			Email: deref(paEmail), Phone: deref(paPhone)}
	}
	if phID != nil {
		d.Pharmacy = &PharmacySummary{ID: *phID, Name: deref(phName), Email: deref(phEmail), Phone: deref(phPhone)}
	}
	return d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *repoPG) Create(ctx context.Context, req *RefillRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	meds, err := json.Marshal(req.Medications)
	if err != nil {
		return errors.Wrap(err, "encode medications")
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO refill_request (id, original_order_id, prescription_id, patient_id, pharmacy_id,
			status, medications, notes, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		req.ID, req.OriginalOrderID, req.PrescriptionID, req.PatientID, req.PharmacyID,
		req.Status, meds, req.Notes, req.RequestedAt,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if apperr.IsUniqueViolation(err, onePendingIndex) {
		return apperr.Wrap(apperr.Conflict, err, "a refill request is already pending for this order")
	}
	return apperr.FromDB(errors.Wrap(err, "insert refill request"), "refill request")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*RefillRequest, error) {
	req, err := scanRefill(r.conn(ctx).QueryRow(ctx,
		`SELECT `+refillCols+` FROM refill_request r WHERE r.id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(errors.Wrap(err, "get refill request"), "refill request")
	}
	return req, nil
}

func (r *repoPG) GetDetail(ctx context.Context, id uuid.UUID) (*RefillRequestDetail, error) {
	d, err := scanDetail(r.conn(ctx).QueryRow(ctx,
		`SELECT `+detailCols+detailFrom+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(errors.Wrap(err, "get refill request detail"), "refill request")
	}
	return d, nil
}

func (r *repoPG) HasPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM refill_request WHERE original_order_id = $1 AND status = 'pending')`,
		orderID).Scan(&exists)
	return exists, errors.Wrap(err, "check pending refill request")
}

func (r *repoPG) Respond(ctx context.Context, id uuid.UUID, status Status, resp PharmacyResponse) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE refill_request
		SET status = $2, response_message = $3, responded_at = $4, responded_by = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, status, resp.Message, resp.RespondedAt, resp.RespondedBy)
	if err != nil {
		return apperr.FromDB(errors.Wrap(err, "respond to refill request"), "refill request")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflictf("refill request has already been processed")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*RefillRequestDetail, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(f.PharmacyIDs) > 0 {
		args = append(args, f.PharmacyIDs)
		where = append(where, fmt.Sprintf("r.pharmacy_id = ANY($%d)", len(args)))
	}
	if f.PatientID != uuid.Nil {
		args = append(args, f.PatientID)
		where = append(where, fmt.Sprintf("r.patient_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM refill_request r`+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count refill requests")
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY r.requested_at DESC LIMIT $%d OFFSET $%d`,
		detailCols, detailFrom, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list refill requests")
	}
	defer rows.Close()

	out := make([]*RefillRequestDetail, 0, limit)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan refill request")
		}
		out = append(out, d)
	}
	return out, total, errors.Wrap(rows.Err(), "iterate refill requests")
}

func (r *repoPG) CountPending(ctx context.Context, pharmacyIDs []uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM refill_request WHERE pharmacy_id = ANY($1) AND status = 'pending'`,
		pharmacyIDs).Scan(&n)
	return n, errors.Wrap(err, "count pending refill requests")
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM refill_request WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete refill request")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("refill request not found")
	}
	return nil
}
