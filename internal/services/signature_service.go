package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lexsign/internal/aadhaar"
	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/esign"
	"github.com/lexsign/internal/notify"
	"github.com/lexsign/internal/pdfutil"
	"github.com/lexsign/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EngineConfig holds filesystem locations for signed artifacts.
type EngineConfig struct {
	SignedDir string
}

// CompletionHook is invoked after a request reaches the signed state.
// The workflow orchestrator registers here to advance multi-party
// workflows without the engine depending on it.
type CompletionHook func(ctx context.Context, req *models.SignatureRequest)

// SignatureEngine drives a single signing transaction through its
// lifecycle: pending, otp_sent, verified, signed, with failed and
// expired as terminal failure states. All state mutations are
// version-guarded so concurrent calls on the same request cannot
// interleave updates.
type SignatureEngine struct {
	db       *gorm.DB
	provider esign.Client
	certs    *CertificateService
	audit    *AuditLog
	notifier notify.Notifier
	cfg      EngineConfig
	logger   *zap.Logger
	metrics  *metrics.MetricsCollector
	now      func() time.Time

	onComplete CompletionHook
}

func NewSignatureEngine(db *gorm.DB, provider esign.Client, certs *CertificateService, audit *AuditLog, notifier notify.Notifier, cfg EngineConfig, logger *zap.Logger, collector *metrics.MetricsCollector) *SignatureEngine {
	if cfg.SignedDir == "" {
		cfg.SignedDir = filepath.Join("generated_documents", "signed")
	}
	return &SignatureEngine{
		db:       db,
		provider: provider,
		certs:    certs,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(zap.String("service", "signature_engine")),
		metrics:  collector,
		now:      time.Now,
	}
}

// SetCompletionHook registers the single completion callback. Call
// during wiring, before the engine serves traffic.
func (e *SignatureEngine) SetCompletionHook(hook CompletionHook) {
	e.onComplete = hook
}

// InitiateParams starts a signing transaction for one document/signer pair.
type InitiateParams struct {
	DocumentID    string
	AadhaarNumber string
	Signer        esign.SignerInfo
	SignerID      uint
	OriginIP      string
	DeviceInfo    string
}

// InitiateResult is returned to the caller that started the transaction.
type InitiateResult struct {
	SignatureID   string                 `json:"signature_id"`
	TransactionID string                 `json:"transaction_id"`
	Status        models.SignatureStatus `json:"status"`
	MaskedAadhaar string                 `json:"masked_aadhaar"`
	Message       string                 `json:"message"`
	ExpiresAt     time.Time              `json:"expires_at"`
	Simulated     bool                   `json:"simulated"`
	// FixedOTP is disclosed only in simulated mode.
	FixedOTP string `json:"fixed_otp,omitempty"`
}

// Initiate validates the signer's Aadhaar number, asks the provider to
// dispatch an OTP and persists the new request in otp_sent. A provider
// failure leaves no record behind; the caller simply retries.
func (e *SignatureEngine) Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error) {
	ok, reason := aadhaar.Validate(p.AadhaarNumber)
	if !ok {
		return nil, newError(KindInvalidIdentity, reason)
	}
	number := aadhaar.Normalize(p.AadhaarNumber)

	var doc models.Document
	if err := e.db.WithContext(ctx).First(&doc, "id = ?", p.DocumentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "document not found")
		}
		return nil, fmt.Errorf("loading document: %w", err)
	}

	txnID, err := e.newTransactionID()
	if err != nil {
		return nil, fmt.Errorf("generating transaction id: %w", err)
	}

	otp, err := e.provider.RequestOTP(ctx, number, txnID, doc.ContentHash, p.Signer)
	if err != nil {
		if errors.Is(err, esign.ErrUnavailable) {
			return nil, wrapError(KindProviderUnavailable, "OTP dispatch failed", err)
		}
		return nil, wrapError(KindProviderRejected, "OTP dispatch rejected", err)
	}

	now := e.now()
	expiresAt := otp.ExpiresAt
	req := models.SignatureRequest{
		ID:                uuid.NewString(),
		DocumentID:        doc.ID,
		SignerID:          p.SignerID,
		AadhaarHash:       aadhaar.Hash(number),
		DocumentHash:      doc.ContentHash,
		TransactionID:     txnID,
		ProviderRequestID: otp.ProviderRequestID,
		Status:            models.SignatureOTPSent,
		SignerName:        p.Signer.Name,
		SignerEmail:       p.Signer.Email,
		SignerPhone:       p.Signer.Phone,
		OriginIP:          p.OriginIP,
		DeviceInfo:        p.DeviceInfo,
		Simulated:         otp.Simulated,
		OTPRequestedAt:    &now,
		ExpiresAt:         &expiresAt,
	}
	if err := e.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, fmt.Errorf("persisting signature request: %w", err)
	}

	e.audit.Record(ctx, Event{
		SignatureRequestID: req.ID,
		EventType:          models.EventOTPRequested,
		ActorID:            p.SignerID,
		IP:                 p.OriginIP,
		UserAgent:          p.DeviceInfo,
		Payload: map[string]any{
			"transaction_id": txnID,
			"document_id":    doc.ID,
			"masked_aadhaar": aadhaar.Mask(number),
			"simulated":      otp.Simulated,
		},
	})

	e.metrics.IncrementCounter("signature.initiated", map[string]string{"simulated": fmt.Sprintf("%t", otp.Simulated)})

	e.logger.Info("signature initiated",
		zap.String("signature_id", req.ID),
		zap.String("transaction_id", txnID),
		zap.String("document_id", doc.ID),
		zap.Bool("simulated", otp.Simulated))

	if p.Signer.Email != "" {
		go func(to notify.Recipient, docName string) {
			if err := e.notifier.SendOTPNotice(to, docName); err != nil {
				e.logger.Warn("OTP notice delivery failed", zap.Error(err))
			}
		}(notify.Recipient{Name: p.Signer.Name, Email: p.Signer.Email}, doc.Name)
	}

	return &InitiateResult{
		SignatureID:   req.ID,
		TransactionID: txnID,
		Status:        req.Status,
		MaskedAadhaar: aadhaar.Mask(number),
		Message:       otp.Message,
		ExpiresAt:     expiresAt,
		Simulated:     otp.Simulated,
		FixedOTP:      otp.FixedOTP,
	}, nil
}

// BulkItem is the per-document outcome of a bulk initiation.
type BulkItem struct {
	DocumentID string          `json:"document_id"`
	Result     *InitiateResult `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// BulkInitiate starts one signing transaction per document with a shared
// signer. Failures are reported per document and do not stop the batch.
func (e *SignatureEngine) BulkInitiate(ctx context.Context, documentIDs []string, p InitiateParams) []BulkItem {
	items := make([]BulkItem, 0, len(documentIDs))
	for _, docID := range documentIDs {
		params := p
		params.DocumentID = docID
		res, err := e.Initiate(ctx, params)
		item := BulkItem{DocumentID: docID}
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Result = res
		}
		items = append(items, item)
	}
	return items
}

// VerifyResult is the outcome of a successful OTP check.
type VerifyResult struct {
	SignatureID  string                 `json:"signature_id"`
	Status       models.SignatureStatus `json:"status"`
	SignerName   string                 `json:"signer_name,omitempty"`
	AadhaarLast4 string                 `json:"aadhaar_last4,omitempty"`
}

// VerifyOTP checks the supplied OTP against the provider. The retry
// budget is enforced before the provider is contacted; a mismatch burns
// one attempt, a provider outage burns none.
func (e *SignatureEngine) VerifyOTP(ctx context.Context, signatureID, otp string) (*VerifyResult, error) {
	req, err := e.load(ctx, signatureID)
	if err != nil {
		return nil, err
	}
	if err := e.guardActionable(ctx, req, models.SignatureOTPSent); err != nil {
		return nil, err
	}

	if req.RetryCount >= models.MaxOTPRetries {
		e.fail(ctx, req, "OTP retry limit exceeded", models.EventSignatureFailed)
		return nil, newError(KindRetryLimitExceeded, "maximum OTP attempts exceeded")
	}

	verification, err := e.provider.VerifyOTP(ctx, req.TransactionID, otp, req.ProviderRequestID)
	switch {
	case errors.Is(err, esign.ErrUnavailable):
		return nil, wrapError(KindProviderUnavailable, "OTP verification unavailable", err)
	case errors.Is(err, esign.ErrOTPMismatch):
		remaining := models.MaxOTPRetries - req.RetryCount - 1
		if uerr := e.transition(ctx, req, req.Status, map[string]any{
			"retry_count": req.RetryCount + 1,
		}); uerr != nil {
			return nil, uerr
		}
		e.audit.Record(ctx, Event{
			SignatureRequestID: req.ID,
			EventType:          models.EventOTPFailed,
			Payload: map[string]any{
				"retry_count":        req.RetryCount,
				"attempts_remaining": remaining,
			},
		})
		e.metrics.IncrementCounter("signature.otp_mismatch", nil)
		return nil, newError(KindOTPMismatch, fmt.Sprintf("invalid OTP, %d attempts remaining", remaining))
	case errors.Is(err, esign.ErrOTPExpired):
		e.expire(ctx, req, "OTP expired")
		return nil, newError(KindExpired, "OTP expired, restart the signing flow")
	case err != nil:
		e.fail(ctx, req, err.Error(), models.EventSignatureFailed)
		return nil, wrapError(KindProviderRejected, "OTP verification rejected", err)
	}

	now := e.now()
	updates := map[string]any{
		"verification_token": verification.VerificationToken,
		"otp_verified_at":    &now,
	}
	if verification.SignerName != "" {
		updates["signer_name"] = verification.SignerName
	}
	if err := e.transition(ctx, req, models.SignatureVerified, updates); err != nil {
		return nil, err
	}

	e.audit.Record(ctx, Event{
		SignatureRequestID: req.ID,
		EventType:          models.EventOTPVerified,
		Payload: map[string]any{
			"transaction_id": req.TransactionID,
			"aadhaar_last4":  verification.AadhaarLast4,
		},
	})
	e.metrics.IncrementCounter("signature.otp_verified", nil)
	e.logger.Info("OTP verified",
		zap.String("signature_id", req.ID),
		zap.String("transaction_id", req.TransactionID))

	return &VerifyResult{
		SignatureID:  req.ID,
		Status:       req.Status,
		SignerName:   req.SignerName,
		AadhaarLast4: verification.AadhaarLast4,
	}, nil
}

// SignResult describes a completed signature.
type SignResult struct {
	SignatureID        string                 `json:"signature_id"`
	Status             models.SignatureStatus `json:"status"`
	SignedDocumentHash string                 `json:"signed_document_hash"`
	SignedDocumentPath string                 `json:"signed_document_path"`
	CertificateID      string                 `json:"certificate_id,omitempty"`
	CertificatePath    string                 `json:"certificate_path,omitempty"`
	SignedAt           time.Time              `json:"signed_at"`
	Simulated          bool                   `json:"simulated"`
}

// ApplySignature asks the provider to produce the signed artifact and
// finalizes the request. Calling it again on an already signed request
// returns the stored result instead of an error, so retried HTTP calls
// after a dropped response stay safe.
func (e *SignatureEngine) ApplySignature(ctx context.Context, signatureID string) (*SignResult, error) {
	req, err := e.load(ctx, signatureID)
	if err != nil {
		return nil, err
	}
	if req.Status == models.SignatureSigned {
		return signResultFrom(req), nil
	}
	if err := e.guardActionable(ctx, req, models.SignatureVerified); err != nil {
		return nil, err
	}

	var doc models.Document
	if err := e.db.WithContext(ctx).First(&doc, "id = ?", req.DocumentID).Error; err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}

	artifact, err := e.provider.ApplySignature(ctx, req.TransactionID, req.VerificationToken, doc.Content)
	switch {
	case errors.Is(err, esign.ErrUnavailable):
		return nil, wrapError(KindProviderUnavailable, "signing unavailable", err)
	case err != nil:
		e.fail(ctx, req, err.Error(), models.EventSignatureFailed)
		return nil, wrapError(KindProviderRejected, "signing rejected", err)
	}

	signedHash := pdfutil.HashBytes(artifact.SignedDocument)
	signedPath := filepath.Join(e.cfg.SignedDir, "signed_"+req.ID+".pdf")
	if err := os.MkdirAll(e.cfg.SignedDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating signed directory: %w", err)
	}
	if err := os.WriteFile(signedPath, artifact.SignedDocument, 0o644); err != nil {
		return nil, fmt.Errorf("writing signed document: %w", err)
	}

	signedAt := artifact.SignedAt
	if signedAt.IsZero() {
		signedAt = e.now()
	}
	if err := e.transition(ctx, req, models.SignatureSigned, map[string]any{
		"signed_document_hash": signedHash,
		"signed_document_path": signedPath,
		"signed_at":            &signedAt,
	}); err != nil {
		return nil, err
	}

	e.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", doc.ID).
		Update("status", models.DocumentSigned)

	e.audit.Record(ctx, Event{
		SignatureRequestID: req.ID,
		EventType:          models.EventDocumentSigned,
		Payload: map[string]any{
			"transaction_id":       req.TransactionID,
			"signed_document_hash": signedHash,
			"simulated":            artifact.Simulated,
		},
	})
	e.metrics.IncrementCounter("signature.signed", nil)
	e.metrics.ObserveSize("signature.signed_document_bytes", float64(len(artifact.SignedDocument)))
	e.logger.Info("document signed",
		zap.String("signature_id", req.ID),
		zap.String("transaction_id", req.TransactionID),
		zap.String("signed_hash", signedHash))

	// Certificate generation failures never undo a completed signature;
	// the certificate can be reissued out of band.
	if _, _, cerr := e.certs.Generate(ctx, req, &doc); cerr != nil {
		e.logger.Error("certificate generation failed",
			zap.String("signature_id", req.ID), zap.Error(cerr))
		e.audit.Record(ctx, Event{
			SignatureRequestID: req.ID,
			EventType:          models.EventCertificateError,
			Payload:            map[string]any{"error": cerr.Error()},
		})
	} else {
		e.audit.Record(ctx, Event{
			SignatureRequestID: req.ID,
			EventType:          models.EventCertificateIssue,
			Payload:            map[string]any{"certificate_id": req.CertificateID},
		})
	}

	if e.onComplete != nil {
		e.onComplete(ctx, req)
	}

	if req.SignerEmail != "" {
		go func(to notify.Recipient, docName, signer string) {
			if err := e.notifier.SendCompletion(to, docName, signer, ""); err != nil {
				e.logger.Warn("completion notice delivery failed", zap.Error(err))
			}
		}(notify.Recipient{Name: req.SignerName, Email: req.SignerEmail}, doc.Name, req.SignerName)
	}

	return signResultFrom(req), nil
}

// GetStatus returns the current request state.
func (e *SignatureEngine) GetStatus(ctx context.Context, signatureID string) (*models.SignatureRequest, error) {
	return e.load(ctx, signatureID)
}

// ByTransaction resolves a request by its transaction ID.
func (e *SignatureEngine) ByTransaction(ctx context.Context, txnID string) (*models.SignatureRequest, error) {
	var req models.SignatureRequest
	err := e.db.WithContext(ctx).First(&req, "transaction_id = ?", txnID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "signature request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading signature request: %w", err)
	}
	return &req, nil
}

func (e *SignatureEngine) load(ctx context.Context, signatureID string) (*models.SignatureRequest, error) {
	var req models.SignatureRequest
	err := e.db.WithContext(ctx).First(&req, "id = ?", signatureID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "signature request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading signature request: %w", err)
	}
	return &req, nil
}

// guardActionable rejects calls against requests that are not in the
// expected state and lazily expires overdue ones.
func (e *SignatureEngine) guardActionable(ctx context.Context, req *models.SignatureRequest, want models.SignatureStatus) error {
	switch req.Status {
	case models.SignatureSigned:
		return newError(KindAlreadySigned, "document already signed")
	case models.SignatureFailed, models.SignatureExpired:
		return newError(KindTerminalState, fmt.Sprintf("request is %s and cannot proceed", req.Status))
	}
	if req.ExpiresAt != nil && e.now().After(*req.ExpiresAt) {
		e.expire(ctx, req, "request expired")
		return newError(KindExpired, "signing window expired, restart the flow")
	}
	if req.Status != want {
		if req.Status == models.SignatureVerified {
			return newError(KindAlreadyVerified, "OTP already verified")
		}
		if want == models.SignatureVerified && req.Status == models.SignatureOTPSent {
			return newError(KindInvalidState, "OTP not verified yet")
		}
		return newError(KindInvalidState, fmt.Sprintf("request is %s, expected %s", req.Status, want))
	}
	return nil
}

// transition applies a version-guarded status change. A zero row count
// means another caller mutated the request first.
func (e *SignatureEngine) transition(ctx context.Context, req *models.SignatureRequest, to models.SignatureStatus, extra map[string]any) error {
	if to != req.Status && !req.Status.CanTransition(to) {
		return newError(KindInvalidState, fmt.Sprintf("cannot transition from %s to %s", req.Status, to))
	}
	updates := map[string]any{
		"status":  to,
		"version": req.Version + 1,
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := e.db.WithContext(ctx).Model(&models.SignatureRequest{}).
		Where("id = ? AND version = ?", req.ID, req.Version).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating signature request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return newError(KindConflict, "request was modified concurrently, reload and retry")
	}
	req.Status = to
	req.Version++
	if rc, ok := extra["retry_count"].(int); ok {
		req.RetryCount = rc
	}
	if v, ok := extra["signed_document_hash"].(string); ok {
		req.SignedDocumentHash = v
	}
	if v, ok := extra["signed_document_path"].(string); ok {
		req.SignedDocumentPath = v
	}
	if v, ok := extra["signed_at"].(*time.Time); ok {
		req.SignedAt = v
	}
	if v, ok := extra["otp_verified_at"].(*time.Time); ok {
		req.OTPVerifiedAt = v
	}
	if v, ok := extra["verification_token"].(string); ok {
		req.VerificationToken = v
	}
	if v, ok := extra["signer_name"].(string); ok {
		req.SignerName = v
	}
	return nil
}

func (e *SignatureEngine) fail(ctx context.Context, req *models.SignatureRequest, reason, eventType string) {
	if err := e.transition(ctx, req, models.SignatureFailed, map[string]any{
		"error_message": reason,
	}); err != nil {
		e.logger.Error("failed to mark request failed",
			zap.String("signature_id", req.ID), zap.Error(err))
		return
	}
	e.audit.Record(ctx, Event{
		SignatureRequestID: req.ID,
		EventType:          eventType,
		Payload:            map[string]any{"reason": reason},
	})
}

func (e *SignatureEngine) expire(ctx context.Context, req *models.SignatureRequest, reason string) {
	if err := e.transition(ctx, req, models.SignatureExpired, map[string]any{
		"error_message": reason,
	}); err != nil {
		e.logger.Error("failed to mark request expired",
			zap.String("signature_id", req.ID), zap.Error(err))
		return
	}
	e.audit.Record(ctx, Event{
		SignatureRequestID: req.ID,
		EventType:          models.EventSignatureExpired,
		Payload:            map[string]any{"reason": reason},
	})
}

// newTransactionID returns TXN_<yyyymmdd>_<12 hex chars>, unique per day
// with overwhelming probability.
func (e *SignatureEngine) newTransactionID() (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("TXN_%s_%s",
		e.now().UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(buf[:]))), nil
}

func signResultFrom(req *models.SignatureRequest) *SignResult {
	res := &SignResult{
		SignatureID:        req.ID,
		Status:             req.Status,
		SignedDocumentHash: req.SignedDocumentHash,
		SignedDocumentPath: req.SignedDocumentPath,
		CertificateID:      req.CertificateID,
		CertificatePath:    req.CertificatePath,
		Simulated:          req.Simulated,
	}
	if req.SignedAt != nil {
		res.SignedAt = *req.SignedAt
	}
	return res
}
