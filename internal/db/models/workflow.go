package models

import (
	"time"
)

type WorkflowStatus string

const (
	WorkflowActive    WorkflowStatus = "active"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

type SigningOrder string

const (
	OrderParallel   SigningOrder = "parallel"
	OrderSequential SigningOrder = "sequential"
)

// Workflow groups one document with N required signatures.
// Invariant: Status == completed iff SignedCount == TotalSignatories.
type Workflow struct {
	ID         string `gorm:"primaryKey"`
	DocumentID string `gorm:"index;not null"`
	CreatedBy  uint   `gorm:"index"`

	Status WorkflowStatus `gorm:"size:20;not null;default:'active';index"`

	TotalSignatories int `gorm:"not null"`
	// SignedCount only moves through an atomic SQL increment guarded by
	// signed_count < total_signatories; see WorkflowOrchestrator.
	SignedCount int `gorm:"not null;default:0"`

	SigningOrder    SigningOrder `gorm:"size:20;not null;default:'parallel'"`
	ReminderEnabled bool         `gorm:"not null;default:true"`

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	CompletedAt *time.Time
	CancelledAt *time.Time
}

func (Workflow) TableName() string {
	return "signature_workflows"
}
