package models

import (
	"time"
)

type SignatureStatus string

const (
	SignaturePending  SignatureStatus = "pending"
	SignatureOTPSent  SignatureStatus = "otp_sent"
	SignatureVerified SignatureStatus = "verified"
	SignatureSigned   SignatureStatus = "signed"
	SignatureFailed   SignatureStatus = "failed"
	SignatureExpired  SignatureStatus = "expired"
)

// MaxOTPRetries bounds verify attempts per OTP cycle. The check happens
// before any provider call, so an exhausted request never reaches the wire.
const MaxOTPRetries = 3

// Terminal reports whether no further transitions are permitted.
func (s SignatureStatus) Terminal() bool {
	switch s {
	case SignatureSigned, SignatureFailed, SignatureExpired:
		return true
	}
	return false
}

// CanTransition is the single source of truth for state machine legality.
// Every status mutation in the engine goes through this check.
func (s SignatureStatus) CanTransition(to SignatureStatus) bool {
	switch s {
	case SignaturePending:
		return to == SignatureOTPSent || to == SignatureFailed
	case SignatureOTPSent:
		return to == SignatureVerified || to == SignatureExpired || to == SignatureFailed
	case SignatureVerified:
		return to == SignatureSigned || to == SignatureExpired || to == SignatureFailed
	default:
		return false
	}
}

// SignatureRequest is one signing transaction for one (document, signer) pair.
// The raw Aadhaar number is never stored; only its SHA-256 hash.
type SignatureRequest struct {
	ID         string `gorm:"primaryKey"`
	DocumentID string `gorm:"index;not null"`
	SignerID   uint   `gorm:"index"`

	AadhaarHash  string `gorm:"size:64;not null"`
	DocumentHash string `gorm:"size:64;not null"`

	TransactionID     string `gorm:"uniqueIndex;size:100"`
	ProviderRequestID string `gorm:"size:100"`
	VerificationToken string

	Status     SignatureStatus `gorm:"size:20;not null;default:'pending';index"`
	RetryCount int             `gorm:"not null;default:0"`
	// Version backs the optimistic concurrency check; every status or
	// retry-count mutation must match the loaded version.
	Version int `gorm:"not null;default:1"`

	SignerName  string `gorm:"size:100"`
	SignerEmail string `gorm:"size:255"`
	SignerPhone string `gorm:"size:20"`

	SignedDocumentHash string `gorm:"size:64"`
	SignedDocumentPath string
	CertificateID      string `gorm:"size:64;index"`
	CertificatePath    string

	ErrorMessage string
	OriginIP     string `gorm:"size:45"`
	DeviceInfo   string
	Simulated    bool `gorm:"not null;default:false"`

	CreatedAt      time.Time `gorm:"autoCreateTime"`
	OTPRequestedAt *time.Time
	OTPVerifiedAt  *time.Time
	SignedAt       *time.Time
	ExpiresAt      *time.Time
}

func (SignatureRequest) TableName() string {
	return "signature_requests"
}
