// Package refill manages patient refill requests against previously
// fulfilled orders: creation, the pharmacy's approve/reject decision and the
// notifications that accompany both.
package refill

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Decision reports whether s is a terminal answer a pharmacy may give.
func (s Status) Decision() bool {
	return s == StatusApproved || s == StatusRejected
}

// Medication is copied from the order when the refill is requested and is
// not linked to the live prescription afterwards.
type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// PharmacyResponse is set once, together with the move out of pending.
type PharmacyResponse struct {
	Message     *string   `json:"message,omitempty"`
	RespondedAt time.Time `json:"respondedAt"`
	RespondedBy uuid.UUID `json:"respondedBy"`
}

type RefillRequest struct {
	ID               uuid.UUID         `json:"id"`
	OriginalOrderID  uuid.UUID         `json:"originalOrderId"`
	PrescriptionID   uuid.UUID         `json:"prescriptionId"`
	PatientID        uuid.UUID         `json:"patientId"`
	PharmacyID       uuid.UUID         `json:"pharmacyId"`
	Status           Status            `json:"status"`
	Medications      []Medication      `json:"medications"`
	Notes            *string           `json:"notes,omitempty"`
	PharmacyResponse *PharmacyResponse `json:"pharmacyResponse,omitempty"`
	RequestedAt      time.Time         `json:"requestedAt"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type OrderSummary struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"totalAmount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PrescriptionSummary struct {
	ID                 uuid.UUID `json:"id"`
	PrescriptionNumber string    `json:"prescriptionNumber"`
	DoctorName         string    `json:"doctorName"`
	IssuedAt           time.Time `json:"issuedAt"`
}

type PatientSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
}

type PharmacySummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone"`
}

// RefillRequestDetail is a refill request joined with summaries of the
// records it references. A nil summary means the referenced row is gone.
type RefillRequestDetail struct {
	RefillRequest
	Order        *OrderSummary        `json:"order,omitempty"`
	Prescription *PrescriptionSummary `json:"prescription,omitempty"`
	Patient      *PatientSummary      `json:"patient,omitempty"`
	Pharmacy     *PharmacySummary     `json:"pharmacy,omitempty"`
}

type CreateInput struct {
	OriginalOrderID string          `json:"originalOrderId" validate:"required,uuid"`
	PrescriptionID  string          `json:"prescriptionId" validate:"required,uuid"`
	PharmacyID      string          `json:"pharmacyId" validate:"required,uuid"`
	Medications     json.RawMessage `json:"medications"`
	Notes           *string         `json:"notes" validate:"omitempty,max=2000"`
}

type RespondInput struct {
	Status  string  `json:"status"`
	Message *string `json:"message"`
}

// decodeMedications accepts anything the client sent. A value that is not a
// JSON array yields an empty list; array elements that are not medication
// objects are skipped.
func decodeMedications(raw json.RawMessage) []Medication {
	meds := []Medication{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return meds
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return meds
	}
	for _, elem := range elems {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			continue
		}
		var m Medication
		if err := json.Unmarshal(elem, &m); err != nil {
			continue
		}
		meds = append(meds, m)
	}
	return meds
}
