package models

import (
	"time"
)

type SignatoryStatus string

const (
	SignatoryPending  SignatoryStatus = "pending"
	SignatoryNotified SignatoryStatus = "notified"
	SignatoryViewed   SignatoryStatus = "viewed"
	SignatorySigned   SignatoryStatus = "signed"
	SignatoryDeclined SignatoryStatus = "declined"
	SignatoryExpired  SignatoryStatus = "expired"
)

// Settled reports whether the signatory can no longer act.
func (s SignatoryStatus) Settled() bool {
	switch s {
	case SignatorySigned, SignatoryDeclined, SignatoryExpired:
		return true
	}
	return false
}

// Signatory is one participant inside a Workflow. Position only matters
// in sequential workflows: the signatory at position k may not sign
// before everyone at a smaller position has.
type Signatory struct {
	ID         string `gorm:"primaryKey"`
	WorkflowID string `gorm:"index:idx_signatory_workflow;uniqueIndex:idx_workflow_email;not null"`

	// Set once the signatory starts their own signing transaction.
	SignatureRequestID string `gorm:"size:36"`

	Email string `gorm:"uniqueIndex:idx_workflow_email;size:255;not null"`
	Name  string `gorm:"size:100;not null"`
	Phone string `gorm:"size:20"`
	Role  string `gorm:"size:50;default:'signer'"`

	Position int `gorm:"not null;default:1"`

	Status        SignatoryStatus `gorm:"size:20;not null;default:'pending';index"`
	DeclineReason string

	InvitedAt      *time.Time
	ViewedAt       *time.Time
	LastReminderAt *time.Time
	SignedAt       *time.Time
	DeclinedAt     *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Signatory) TableName() string {
	return "signatories"
}
