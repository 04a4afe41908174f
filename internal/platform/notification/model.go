// Package notification stores in-app notifications for patients and
// pharmacies and serves them over HTTP.
package notification

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
)

// Notification types emitted by the refill workflow.
const (
	TypeRefillRequest  = "refill_request"
	TypeRefillApproved = "refill_approved"
	TypeRefillRejected = "refill_rejected"
)

type Notification struct {
	ID            uuid.UUID         `json:"id"`
	RecipientID   uuid.UUID         `json:"recipientId"`
	RecipientRole string            `json:"recipientRole"`
	Type          string            `json:"type"`
	Priority      Priority          `json:"priority"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Data          map[string]string `json:"data,omitempty"`
	Channels      []Channel         `json:"channels"`
	Status        Status            `json:"status"`
	DeliveredAt   *time.Time        `json:"deliveredAt,omitempty"`
	ReadAt        *time.Time        `json:"readAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

func (n *Notification) IsRead() bool { return n.ReadAt != nil }
