package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexsign/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateIDRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	env.certs.now = func() time.Time { return fixed }

	certID := env.certs.NewCertificateID("req-abc-123")
	assert.Equal(t, "CERT-20250314092653-req-abc-123", certID)

	issued, sigID, err := ParseCertificateID(certID)
	require.NoError(t, err)
	assert.True(t, issued.Equal(fixed))
	assert.Equal(t, "req-abc-123", sigID)
}

func TestParseCertificateIDMalformed(t *testing.T) {
	for _, bad := range []string{
		"",
		"CERT",
		"CERT-20250314092653",
		"NOPE-20250314092653-req-abc",
		"CERT-notatimestamp-req-abc",
	} {
		_, _, err := ParseCertificateID(bad)
		assert.Error(t, err, "id %q", bad)
	}
}

func (env *testEnv) loadRequest(t *testing.T, signatureID string) *models.SignatureRequest {
	t.Helper()
	var req models.SignatureRequest
	require.NoError(t, env.db.First(&req, "id = ?", signatureID).Error)
	return &req
}

func TestGenerateRequiresSignedRequest(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "contract.pdf")
	res := env.initiate(t, doc.ID, testAadhaar)
	req := env.loadRequest(t, res.SignatureID)

	_, _, err := env.certs.Generate(context.Background(), req, doc)
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestGenerateWritesArtifacts(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "contract.pdf")
	signed := env.signThrough(t, doc.ID, testAadhaar)
	req := env.loadRequest(t, signed.SignatureID)

	// signThrough already generated once; regeneration replaces it.
	payload, certPath, err := env.certs.Generate(context.Background(), req, doc)
	require.NoError(t, err)

	assert.Equal(t, req.ID, payload.SignatureID)
	assert.Equal(t, req.TransactionID, payload.TransactionID)
	assert.Equal(t, req.SignedDocumentHash, payload.DocumentHash)
	assert.Equal(t, doc.Name, payload.DocumentName)
	assert.Contains(t, payload.VerifyURL, payload.CertificateID)

	rendered, err := os.ReadFile(certPath)
	require.NoError(t, err)
	extracted, err := ExtractPayload(rendered)
	require.NoError(t, err)
	assert.Equal(t, payload, extracted)

	qrPath := filepath.Join(filepath.Dir(certPath), "qr_"+payload.CertificateID+".png")
	qr, err := os.ReadFile(qrPath)
	require.NoError(t, err)
	assert.NotEmpty(t, qr)

	// The request row now points at the new certificate.
	var stored models.SignatureRequest
	require.NoError(t, env.db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, payload.CertificateID, stored.CertificateID)
	assert.Equal(t, certPath, stored.CertificatePath)
}

func TestExtractPayloadRejectsGarbage(t *testing.T) {
	_, err := ExtractPayload([]byte("not a certificate"))
	assert.Error(t, err)

	_, err = ExtractPayload([]byte(
		"-----BEGIN SIGNATURE CERTIFICATE-----\n!!not base64!!\n-----END SIGNATURE CERTIFICATE-----\n"))
	assert.Error(t, err)
}

func TestVerifyWithoutCertificateNoMatch(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.certs.Verify(context.Background(), []byte("never signed"), nil)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "database_lookup", res.Method)
	assert.Equal(t, "no signature found for this document", res.Reason)
}

func TestLookupCertificate(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "contract.pdf")
	signed := env.signThrough(t, doc.ID, testAadhaar)
	require.NotEmpty(t, signed.CertificateID)

	found, err := env.certs.Lookup(context.Background(), signed.CertificateID)
	require.NoError(t, err)
	assert.Equal(t, signed.SignatureID, found.ID)

	_, err = env.certs.Lookup(context.Background(), "CERT-20250101000000-missing")
	assert.True(t, IsKind(err, KindNotFound))

	_, err = env.certs.Lookup(context.Background(), "garbage")
	assert.True(t, IsKind(err, KindNotFound))
}
