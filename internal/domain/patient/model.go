package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the profile of a patient user. ID is the user id.
type Patient struct {
	ID          uuid.UUID  `json:"id"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (p *Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

type UpsertInput struct {
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"omitempty,max=64"`
	DateOfBirth string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
}
