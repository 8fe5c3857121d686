package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/esign"
	"github.com/lexsign/internal/pdfutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient records provider calls so tests can assert the engine
// never reached the wire.
type countingClient struct {
	esign.Client
	verifyCalls int
}

func (c *countingClient) VerifyOTP(ctx context.Context, transactionID, otp, providerRequestID string) (*esign.OTPVerification, error) {
	c.verifyCalls++
	return c.Client.VerifyOTP(ctx, transactionID, otp, providerRequestID)
}

func TestEndToEndSigningFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "agreement.pdf")

	res := env.initiate(t, doc.ID, testAadhaar)
	assert.Equal(t, models.SignatureOTPSent, res.Status)
	assert.Equal(t, "XXXX-XXXX-0124", res.MaskedAadhaar)
	assert.True(t, res.Simulated)
	assert.Equal(t, esign.FixedOTP, res.FixedOTP)
	assert.Contains(t, res.TransactionID, "TXN_")
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), res.ExpiresAt, time.Minute)

	verified, err := env.engine.VerifyOTP(ctx, res.SignatureID, esign.FixedOTP)
	require.NoError(t, err)
	assert.Equal(t, models.SignatureVerified, verified.Status)
	assert.Equal(t, "0124", verified.AadhaarLast4)

	signed, err := env.engine.ApplySignature(ctx, res.SignatureID)
	require.NoError(t, err)
	assert.Equal(t, models.SignatureSigned, signed.Status)
	assert.NotEmpty(t, signed.SignedDocumentHash)
	assert.NotEqual(t, doc.ContentHash, signed.SignedDocumentHash)
	assert.Contains(t, signed.CertificateID, "CERT-")

	signedBytes, err := os.ReadFile(signed.SignedDocumentPath)
	require.NoError(t, err)
	assert.Equal(t, signed.SignedDocumentHash, pdfutil.HashBytes(signedBytes))

	// Round trip through the rendered certificate artifact.
	certBytes, err := os.ReadFile(signed.CertificatePath)
	require.NoError(t, err)
	payload, err := ExtractPayload(certBytes)
	require.NoError(t, err)
	assert.Equal(t, signed.CertificateID, payload.CertificateID)
	assert.Equal(t, signed.SignedDocumentHash, payload.DocumentHash)

	result, err := env.certs.Verify(ctx, signedBytes, payload)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	tampered := append([]byte(nil), signedBytes...)
	tampered[len(tampered)/2] ^= 0x01
	result, err = env.certs.Verify(ctx, tampered, payload)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	// Hash lookup path, no payload supplied.
	result, err = env.certs.Verify(ctx, signedBytes, nil)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "database_lookup", result.Method)
}

func TestInitiateRejectsInvalidAadhaar(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "agreement.pdf")

	for _, number := range []string{"", "12345", "123456789012", "034567890124", "234567890125"} {
		_, err := env.engine.Initiate(context.Background(), InitiateParams{
			DocumentID:    doc.ID,
			AadhaarNumber: number,
			Signer:        esign.SignerInfo{Name: "Asha Rao"},
		})
		assert.True(t, IsKind(err, KindInvalidIdentity), "number %q: got %v", number, err)
	}

	var count int64
	env.db.Model(&models.SignatureRequest{}).Count(&count)
	assert.Zero(t, count, "rejected initiations must leave no record")
}

func TestInitiateUnknownDocument(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Initiate(context.Background(), InitiateParams{
		DocumentID:    "missing",
		AadhaarNumber: testAadhaar,
		Signer:        esign.SignerInfo{Name: "Asha Rao"},
	})
	assert.True(t, IsKind(err, KindNotFound))
}

func TestVerifyOTPRetryLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "agreement.pdf")

	counting := &countingClient{Client: env.provider}
	env.engine.provider = counting

	res := env.initiate(t, doc.ID, testAadhaar)

	for attempt := 1; attempt <= models.MaxOTPRetries; attempt++ {
		_, err := env.engine.VerifyOTP(ctx, res.SignatureID, "000000")
		assert.True(t, IsKind(err, KindOTPMismatch), "attempt %d: got %v", attempt, err)

		req, lerr := env.engine.GetStatus(ctx, res.SignatureID)
		require.NoError(t, lerr)
		assert.Equal(t, attempt, req.RetryCount)
		assert.Equal(t, models.SignatureOTPSent, req.Status)
	}
	assert.Equal(t, models.MaxOTPRetries, counting.verifyCalls)

	// The fourth attempt is refused before the provider is contacted,
	// even with the correct OTP.
	_, err := env.engine.VerifyOTP(ctx, res.SignatureID, esign.FixedOTP)
	assert.True(t, IsKind(err, KindRetryLimitExceeded))
	assert.Equal(t, models.MaxOTPRetries, counting.verifyCalls)

	req, err2 := env.engine.GetStatus(ctx, res.SignatureID)
	require.NoError(t, err2)
	assert.Equal(t, models.SignatureFailed, req.Status)
}

func TestVerifyOTPExpiredRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "agreement.pdf")
	res := env.initiate(t, doc.ID, testAadhaar)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, env.db.Model(&models.SignatureRequest{}).
		Where("id = ?", res.SignatureID).
		Update("expires_at", &past).Error)

	_, err := env.engine.VerifyOTP(ctx, res.SignatureID, esign.FixedOTP)
	assert.True(t, IsKind(err, KindExpired))

	req, lerr := env.engine.GetStatus(ctx, res.SignatureID)
	require.NoError(t, lerr)
	assert.Equal(t, models.SignatureExpired, req.Status)

	// Expired is terminal.
	_, err = env.engine.VerifyOTP(ctx, res.SignatureID, esign.FixedOTP)
	assert.True(t, IsKind(err, KindTerminalState))
	_, err = env.engine.ApplySignature(ctx, res.SignatureID)
	assert.True(t, IsKind(err, KindTerminalState))
}

func TestApplySignatureRequiresVerification(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "agreement.pdf")
	res := env.initiate(t, doc.ID, testAadhaar)

	_, err := env.engine.ApplySignature(context.Background(), res.SignatureID)
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestApplySignatureIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "agreement.pdf")

	first := env.signThrough(t, doc.ID, testAadhaar)
	again, err := env.engine.ApplySignature(ctx, first.SignatureID)
	require.NoError(t, err)
	assert.Equal(t, first.SignedDocumentHash, again.SignedDocumentHash)
	assert.Equal(t, first.CertificateID, again.CertificateID)
}

func TestVerifyOTPAfterVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "agreement.pdf")
	res := env.initiate(t, doc.ID, testAadhaar)

	_, err := env.engine.VerifyOTP(ctx, res.SignatureID, esign.FixedOTP)
	require.NoError(t, err)
	_, err = env.engine.VerifyOTP(ctx, res.SignatureID, esign.FixedOTP)
	assert.True(t, IsKind(err, KindAlreadyVerified))
}

func TestVerifyOTPAfterSigned(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "agreement.pdf")
	signed := env.signThrough(t, doc.ID, testAadhaar)

	_, err := env.engine.VerifyOTP(context.Background(), signed.SignatureID, esign.FixedOTP)
	assert.True(t, IsKind(err, KindAlreadySigned))
}

func TestConcurrentTransitionConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "agreement.pdf")
	res := env.initiate(t, doc.ID, testAadhaar)

	req, err := env.engine.load(ctx, res.SignatureID)
	require.NoError(t, err)

	// Another caller bumps the version first.
	require.NoError(t, env.db.Model(&models.SignatureRequest{}).
		Where("id = ?", req.ID).
		Update("version", req.Version+1).Error)

	err = env.engine.transition(ctx, req, models.SignatureVerified, nil)
	assert.True(t, IsKind(err, KindConflict))
}

func TestBulkInitiate(t *testing.T) {
	env := newTestEnv(t)
	docA := env.uploadDocument(t, "a.pdf")
	docB := env.uploadDocument(t, "b.pdf")

	items := env.engine.BulkInitiate(context.Background(),
		[]string{docA.ID, docB.ID, "missing"},
		InitiateParams{
			AadhaarNumber: testAadhaar,
			Signer:        esign.SignerInfo{Name: "Asha Rao"},
		})
	require.Len(t, items, 3)
	assert.Empty(t, items[0].Error)
	assert.Empty(t, items[1].Error)
	assert.NotEmpty(t, items[2].Error)
	assert.NotEqual(t, items[0].Result.TransactionID, items[1].Result.TransactionID)
}

func TestSigningRecordsAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "agreement.pdf")
	signed := env.signThrough(t, doc.ID, testAadhaar)

	entries, err := env.audit.BySignature(context.Background(), signed.SignatureID)
	require.NoError(t, err)

	types := make([]string, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, models.EventOTPRequested)
	assert.Contains(t, types, models.EventOTPVerified)
	assert.Contains(t, types, models.EventDocumentSigned)
	assert.Contains(t, types, models.EventCertificateIssue)
}
