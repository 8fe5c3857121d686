package models

import (
	"time"
)

// Audit event types written by the engine and the orchestrator.
const (
	EventOTPRequested     = "otp_requested"
	EventOTPVerified      = "otp_verified"
	EventOTPFailed        = "otp_verification_failed"
	EventDocumentSigned   = "document_signed"
	EventSignatureFailed  = "signature_failed"
	EventSignatureExpired = "signature_expired"
	EventCertificateIssue = "certificate_generated"
	EventCertificateError = "certificate_generation_failed"
	EventWorkflowCreated  = "workflow_created"
	EventWorkflowComplete = "workflow_completed"
	EventWorkflowCancel   = "workflow_cancelled"
	EventSignatoryAdded   = "signatory_added"
	EventSignatoryRemoved = "signatory_removed"
	EventSignatoryInvited = "signatory_invited"
	EventSignatoryViewed  = "signatory_viewed"
	EventSignatoryDecline = "signatory_declined"
	EventReminderSent     = "reminder_sent"
)

// AuditEntry is append-only. Nothing in the codebase updates or deletes
// rows of this table; the trail is authoritative even when the caller
// never sees the response.
type AuditEntry struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	SignatureRequestID string `gorm:"size:36;index"`
	WorkflowID         string `gorm:"size:36;index"`

	EventType string `gorm:"size:50;not null;index"`
	Payload   string `gorm:"type:text"`

	ActorID   uint
	IP        string `gorm:"size:45"`
	UserAgent string

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (AuditEntry) TableName() string {
	return "signature_audit_log"
}
