// Package esign abstracts the external Aadhaar OTP / e-sign provider.
// Two implementations exist: a live HTTP client for the provider's API
// and a simulated client for development and tests. The mode is chosen
// once at construction and is transparent to callers except for the
// explicit Simulated flag carried on every result.
package esign

import (
	"context"
	"errors"
	"time"
)

// Failure kinds. Transport and provider outages map to ErrUnavailable
// (retryable, does not consume an OTP attempt); everything else is a
// business failure the engine handles explicitly.
var (
	ErrUnavailable        = errors.New("esign provider unavailable")
	ErrOTPMismatch        = errors.New("invalid OTP")
	ErrOTPExpired         = errors.New("OTP expired")
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrRejected           = errors.New("request rejected by provider")
)

// SignerInfo identifies the person the OTP is delivered to.
type SignerInfo struct {
	Name  string
	Email string
	Phone string
}

// OTPRequest is the provider's answer to a request-OTP call.
type OTPRequest struct {
	ProviderRequestID string
	ExpiresAt         time.Time
	Message           string
	// FixedOTP is populated in simulated mode only, to unblock manual
	// testing. Live mode never sees the OTP value.
	FixedOTP  string
	Simulated bool
}

// OTPVerification is the provider's answer to a verify-OTP call.
type OTPVerification struct {
	Verified          bool
	SignerName        string
	AadhaarLast4      string
	VerificationToken string
	Simulated         bool
}

// SignedArtifact is the provider's answer to an apply-signature call.
type SignedArtifact struct {
	SignedDocument        []byte
	ProviderCertificateID string
	SignedAt              time.Time
	SignerName            string
	Simulated             bool
}

// Client is the outbound port to the e-sign provider. All calls carry a
// context and are expected to return within a bounded timeout.
type Client interface {
	RequestOTP(ctx context.Context, aadhaarNumber, transactionID, documentHash string, signer SignerInfo) (*OTPRequest, error)
	VerifyOTP(ctx context.Context, transactionID, otp, providerRequestID string) (*OTPVerification, error)
	ApplySignature(ctx context.Context, transactionID, verificationToken string, document []byte) (*SignedArtifact, error)
	Simulated() bool
}
