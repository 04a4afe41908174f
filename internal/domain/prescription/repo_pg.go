package prescription

import (
	"context"
	"encoding/json"

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

const prescriptionCols = `id, prescription_number, patient_id, pharmacy_id, doctor_name, medications,
	status, issued_at, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var (
		p    Prescription
		meds []byte
	)
	err := row.Scan(&p.ID, &p.PrescriptionNumber, &p.PatientID, &p.PharmacyID, &p.DoctorName, &meds,
		&p.Status, &p.IssuedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meds, &p.Medications); err != nil {
		return nil, errors.Wrap(err, "decode medications")
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	meds, err := json.Marshal(p.Medications)
	if err != nil {
		return errors.Wrap(err, "encode medications")
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, prescription_number, patient_id, pharmacy_id, doctor_name,
			medications, status, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.PrescriptionNumber, p.PatientID, p.PharmacyID, p.DoctorName, meds, p.Status, p.IssuedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return apperr.FromDB(errors.Wrap(err, "insert prescription"), "prescription")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromDB(errors.Wrap(err, "get prescription"), "prescription")
	}
	return p, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count prescriptions")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+prescriptionCols+` FROM prescription
		WHERE patient_id = $1 ORDER BY issued_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list prescriptions")
	}
	defer rows.Close()
	items := make([]*Prescription, 0, limit)
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan prescription")
		}
		items = append(items, p)
	}
	return items, total, errors.Wrap(rows.Err(), "iterate prescriptions")
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, pharmacyID *uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription SET status = $3, pharmacy_id = COALESCE($4, pharmacy_id), updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to, pharmacyID)
	if err != nil {
		return apperr.FromDB(errors.Wrap(err, "update prescription status"), "prescription")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflictf("prescription status changed concurrently")
	}
	return nil
}
