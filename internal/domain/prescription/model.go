package prescription

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFilled   Status = "filled"
	StatusRejected Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusRejected},
	StatusVerified: {StatusFilled, StatusRejected},
}

// CanTransition reports whether a prescription may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Medication struct {
	Name         string `json:"name" validate:"required,max=255"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type Prescription struct {
	ID                 uuid.UUID    `json:"id"`
	PrescriptionNumber string       `json:"prescriptionNumber"`
	PatientID          uuid.UUID    `json:"patientId"`
	PharmacyID         *uuid.UUID   `json:"pharmacyId,omitempty"`
	DoctorName         string       `json:"doctorName"`
	Medications        []Medication `json:"medications"`
	Status             Status       `json:"status"`
	IssuedAt           time.Time    `json:"issuedAt"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

type CreateInput struct {
	PharmacyID  string       `json:"pharmacyId" validate:"omitempty,uuid"`
	DoctorName  string       `json:"doctorName" validate:"required,max=255"`
	Medications []Medication `json:"medications" validate:"required,min=1,dive"`
	IssuedAt    *time.Time   `json:"issuedAt"`
}

type UpdateStatusInput struct {
	Status string `json:"status" validate:"required,oneof=verified filled rejected"`
}
