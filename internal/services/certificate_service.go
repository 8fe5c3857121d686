package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/pdfutil"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CertificatePayload is the machine-readable content embedded in the
// certificate's QR code. The field set and names are a stable
// interoperability contract; do not rename.
type CertificatePayload struct {
	CertificateID  string `json:"certificate_id"`
	SignatureID    string `json:"signature_id"`
	TransactionID  string `json:"transaction_id"`
	DocumentID     string `json:"document_id"`
	DocumentName   string `json:"document_name"`
	DocumentHash   string `json:"document_hash"`
	SignerName     string `json:"signer_name"`
	SignedAt       string `json:"signed_at"`
	VerifyURL      string `json:"verify_url"`
	ESignRequestID string `json:"esign_request_id"`
}

// VerificationResult is the outcome of a document/certificate check.
type VerificationResult struct {
	Valid   bool           `json:"valid"`
	Reason  string         `json:"reason"`
	Method  string         `json:"method"`
	Details map[string]any `json:"details,omitempty"`
}

const certificateIDPrefix = "CERT"

// CertificateConfig locates generated artifacts and the public verify
// endpoint embedded in every payload.
type CertificateConfig struct {
	OutputDir     string
	VerifyBaseURL string
}

// CertificateService mints verifiable certificates for signed requests
// and later verifies presented documents against the stored record. It
// never mutates signature state beyond the certificate columns.
type CertificateService struct {
	db     *gorm.DB
	cfg    CertificateConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewCertificateService(db *gorm.DB, cfg CertificateConfig, logger *zap.Logger) *CertificateService {
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join("generated_documents", "certificates")
	}
	return &CertificateService{
		db:     db,
		cfg:    cfg,
		logger: logger.With(zap.String("service", "certificate_service")),
		now:    time.Now,
	}
}

// NewCertificateID builds a self-describing certificate identifier:
// CERT-<yyyymmddhhmmss>-<signatureID>. The separator makes the parts
// recoverable without fixed-width slicing.
func (cs *CertificateService) NewCertificateID(signatureID string) string {
	return fmt.Sprintf("%s-%s-%s", certificateIDPrefix, cs.now().UTC().Format("20060102150405"), signatureID)
}

// ParseCertificateID recovers the issue timestamp and signature ID.
func ParseCertificateID(certID string) (time.Time, string, error) {
	parts := strings.SplitN(certID, "-", 3)
	if len(parts) != 3 || parts[0] != certificateIDPrefix {
		return time.Time{}, "", fmt.Errorf("malformed certificate id %q", certID)
	}
	issued, err := time.Parse("20060102150405", parts[1])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed certificate id %q: %w", certID, err)
	}
	return issued, parts[2], nil
}

// Generate mints a certificate for a signed request: a JSON payload, a
// scannable QR code of that payload, and a human-readable certificate
// document embedding both. Returns the payload and the artifact path.
func (cs *CertificateService) Generate(ctx context.Context, req *models.SignatureRequest, doc *models.Document) (*CertificatePayload, string, error) {
	if req.Status != models.SignatureSigned {
		return nil, "", newError(KindInvalidState, "certificate requires a signed request")
	}
	if req.SignedAt == nil {
		return nil, "", newError(KindInvalidState, "signed request missing signing timestamp")
	}

	certID := cs.NewCertificateID(req.ID)
	payload := &CertificatePayload{
		CertificateID: certID,
		SignatureID:   req.ID,
		TransactionID: req.TransactionID,
		DocumentID:    req.DocumentID,
		DocumentName:  doc.Name,
		// Commits to the signed artifact: the bytes a third party
		// actually holds after signing.
		DocumentHash:   req.SignedDocumentHash,
		SignerName:     req.SignerName,
		SignedAt:       req.SignedAt.UTC().Format(time.RFC3339),
		VerifyURL:      fmt.Sprintf("%s/verify-signature?cert=%s", cs.cfg.VerifyBaseURL, certID),
		ESignRequestID: req.ProviderRequestID,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, "", wrapError(KindCertificateGeneration, "encoding certificate payload", err)
	}

	if err := os.MkdirAll(cs.cfg.OutputDir, 0o755); err != nil {
		return nil, "", wrapError(KindCertificateGeneration, "creating certificate directory", err)
	}

	qrPNG, err := qrcode.Encode(string(payloadJSON), qrcode.High, 512)
	if err != nil {
		return nil, "", wrapError(KindCertificateGeneration, "encoding QR code", err)
	}
	qrPath := filepath.Join(cs.cfg.OutputDir, "qr_"+certID+".png")
	if err := os.WriteFile(qrPath, qrPNG, 0o644); err != nil {
		return nil, "", wrapError(KindCertificateGeneration, "writing QR code", err)
	}

	certPath := filepath.Join(cs.cfg.OutputDir, "certificate_"+certID+".txt")
	if err := os.WriteFile(certPath, cs.renderCertificate(payload, doc, payloadJSON), 0o644); err != nil {
		return nil, "", wrapError(KindCertificateGeneration, "writing certificate", err)
	}

	update := cs.db.WithContext(ctx).Model(&models.SignatureRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]any{
			"certificate_id":   certID,
			"certificate_path": certPath,
		})
	if update.Error != nil {
		return nil, "", wrapError(KindCertificateGeneration, "recording certificate location", update.Error)
	}
	req.CertificateID = certID
	req.CertificatePath = certPath

	cs.logger.Info("certificate generated",
		zap.String("certificate_id", certID),
		zap.String("signature_id", req.ID),
		zap.String("path", certPath))

	return payload, certPath, nil
}

func (cs *CertificateService) renderCertificate(p *CertificatePayload, doc *models.Document, payloadJSON []byte) []byte {
	var b strings.Builder
	b.WriteString("==================================================================\n")
	b.WriteString("                DIGITAL SIGNATURE CERTIFICATE\n")
	b.WriteString("==================================================================\n\n")
	fmt.Fprintf(&b, "Certificate ID:   %s\n\n", p.CertificateID)
	b.WriteString("Document Information\n")
	fmt.Fprintf(&b, "  Name:           %s\n", p.DocumentName)
	fmt.Fprintf(&b, "  Document ID:    %s\n", p.DocumentID)
	fmt.Fprintf(&b, "  Content Hash:   %s\n", p.DocumentHash)
	if doc.PageCount > 0 {
		fmt.Fprintf(&b, "  Pages:          %d\n", doc.PageCount)
	}
	b.WriteString("\nSigner Information\n")
	fmt.Fprintf(&b, "  Name:           %s\n", p.SignerName)
	b.WriteString("\nSignature Details\n")
	fmt.Fprintf(&b, "  Signature ID:   %s\n", p.SignatureID)
	fmt.Fprintf(&b, "  Transaction ID: %s\n", p.TransactionID)
	fmt.Fprintf(&b, "  Signed At:      %s\n", p.SignedAt)
	fmt.Fprintf(&b, "  Request ID:     %s\n", p.ESignRequestID)
	b.WriteString("\nVerification\n")
	fmt.Fprintf(&b, "  Verify at: %s\n", p.VerifyURL)
	b.WriteString("  Or scan the accompanying QR code with any QR scanner.\n\n")
	b.WriteString("-----BEGIN SIGNATURE CERTIFICATE-----\n")
	b.WriteString(base64.StdEncoding.EncodeToString(payloadJSON))
	b.WriteString("\n-----END SIGNATURE CERTIFICATE-----\n")
	return []byte(b.String())
}

// ExtractPayload recovers the machine-readable payload from a rendered
// certificate document.
func ExtractPayload(certificate []byte) (*CertificatePayload, error) {
	const (
		begin = "-----BEGIN SIGNATURE CERTIFICATE-----"
		end   = "-----END SIGNATURE CERTIFICATE-----"
	)
	text := string(certificate)
	i := strings.Index(text, begin)
	j := strings.Index(text, end)
	if i == -1 || j == -1 || i >= j {
		return nil, errors.New("certificate markers not found")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text[i+len(begin) : j]))
	if err != nil {
		return nil, fmt.Errorf("decoding certificate payload: %w", err)
	}
	var payload CertificatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing certificate payload: %w", err)
	}
	return &payload, nil
}

// Verify checks a presented document. With a payload, the document's
// hash must match the payload's committed hash exactly. Without one,
// the most recent signed request with a matching signed-document hash
// is looked up. Read-only in both paths.
func (cs *CertificateService) Verify(ctx context.Context, presented []byte, payload *CertificatePayload) (*VerificationResult, error) {
	presentedHash := pdfutil.HashBytes(presented)

	if payload != nil {
		if payload.DocumentHash == presentedHash {
			return &VerificationResult{
				Valid:  true,
				Reason: "document signature verified successfully",
				Method: "certificate",
				Details: map[string]any{
					"certificate_id": payload.CertificateID,
					"signer_name":    payload.SignerName,
					"signed_at":      payload.SignedAt,
					"transaction_id": payload.TransactionID,
					"document_name":  payload.DocumentName,
				},
			}, nil
		}
		return &VerificationResult{
			Valid:  false,
			Reason: "document has been modified after signing",
			Method: "certificate",
			Details: map[string]any{
				"expected_hash": payload.DocumentHash,
				"actual_hash":   presentedHash,
			},
		}, nil
	}

	var req models.SignatureRequest
	err := cs.db.WithContext(ctx).
		Where("signed_document_hash = ? AND status = ?", presentedHash, models.SignatureSigned).
		Order("signed_at DESC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &VerificationResult{
			Valid:   false,
			Reason:  "no signature found for this document",
			Method:  "database_lookup",
			Details: map[string]any{"document_hash": presentedHash},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up signature by hash: %w", err)
	}

	details := map[string]any{
		"signature_id":   req.ID,
		"transaction_id": req.TransactionID,
		"signer_name":    req.SignerName,
		"certificate_id": req.CertificateID,
	}
	if req.SignedAt != nil {
		details["signed_at"] = req.SignedAt.UTC().Format(time.RFC3339)
	}
	return &VerificationResult{
		Valid:   true,
		Reason:  "document signature verified from records",
		Method:  "database_lookup",
		Details: details,
	}, nil
}

// Lookup resolves a certificate ID back to its signed request.
func (cs *CertificateService) Lookup(ctx context.Context, certID string) (*models.SignatureRequest, error) {
	if _, _, err := ParseCertificateID(certID); err != nil {
		return nil, wrapError(KindNotFound, "malformed certificate id", err)
	}
	var req models.SignatureRequest
	err := cs.db.WithContext(ctx).
		Where("certificate_id = ? AND status = ?", certID, models.SignatureSigned).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "certificate not found")
	}
	if err != nil {
		return nil, fmt.Errorf("looking up certificate: %w", err)
	}
	return &req, nil
}
