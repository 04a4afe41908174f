package order

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusReady, StatusCancelled},
	StatusReady:      {StatusShipped, StatusDelivered},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusReady,
		StatusShipped, StatusDelivered, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Fulfilled reports whether the order has reached the patient. Only
// fulfilled orders can be refilled.
func (s Status) Fulfilled() bool {
	return s == StatusDelivered || s == StatusCompleted
}

type Item struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Dosage    string  `json:"dosage,omitempty"`
	Frequency string  `json:"frequency,omitempty"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"`
}

type Order struct {
	ID             uuid.UUID  `json:"id"`
	OrderNumber    string     `json:"orderNumber"`
	PatientID      uuid.UUID  `json:"patientId"`
	PharmacyID     uuid.UUID  `json:"pharmacyId"`
	PrescriptionID *uuid.UUID `json:"prescriptionId,omitempty"`
	Status         Status     `json:"status"`
	Items          []Item     `json:"items"`
	TotalAmount    float64    `json:"totalAmount"`
	Notes          *string    `json:"notes,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type CreateInput struct {
	PharmacyID     string  `json:"pharmacyId" validate:"required,uuid"`
	PrescriptionID string  `json:"prescriptionId" validate:"omitempty,uuid"`
	Items          []Item  `json:"items" validate:"required,min=1,dive"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
}

type UpdateStatusInput struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed processing ready shipped delivered completed cancelled"`
}
