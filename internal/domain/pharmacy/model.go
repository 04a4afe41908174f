package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

type Pharmacy struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	OwnerUserID   uuid.UUID `json:"ownerUserId"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	LicenseNumber string    `json:"licenseNumber"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// OperatedBy reports whether userID may act for this pharmacy. Operators
// authenticate either as the pharmacy itself or as its owner.
func (p *Pharmacy) OperatedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && (userID == p.ID || userID == p.OwnerUserID)
}

type CreateInput struct {
	Name          string `json:"name" validate:"required,max=255"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"omitempty,max=64"`
	Address       string `json:"address"`
	LicenseNumber string `json:"licenseNumber" validate:"omitempty,max=128"`
}

type UpdateInput struct {
	Name          *string `json:"name" validate:"omitempty,max=255"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Phone         *string `json:"phone" validate:"omitempty,max=64"`
	Address       *string `json:"address"`
	LicenseNumber *string `json:"licenseNumber" validate:"omitempty,max=128"`
	IsActive      *bool   `json:"isActive"`
}
