package esign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(opts ...SimulatedOption) *SimulatedClient {
	return NewSimulatedClient(zap.NewNop(), opts...)
}

var testSigner = SignerInfo{Name: "Asha Rao", Email: "asha@example.com", Phone: "+919800000001"}

func TestSimulatedFullFlow(t *testing.T) {
	c := newTestClient()
	ctx := context.Background()
	doc := []byte("agreement body")

	otp, err := c.RequestOTP(ctx, "234567890124", "TXN_1", "dochash", testSigner)
	require.NoError(t, err)
	assert.True(t, otp.Simulated)
	assert.Equal(t, FixedOTP, otp.FixedOTP)
	assert.Equal(t, "SIM_TXN_1", otp.ProviderRequestID)
	assert.WithinDuration(t, time.Now().Add(DefaultOTPTTL), otp.ExpiresAt, 2*time.Second)

	ver, err := c.VerifyOTP(ctx, "TXN_1", FixedOTP, otp.ProviderRequestID)
	require.NoError(t, err)
	assert.True(t, ver.Verified)
	assert.Equal(t, "Asha Rao", ver.SignerName)
	assert.Equal(t, "0124", ver.AadhaarLast4)
	require.NotEmpty(t, ver.VerificationToken)

	signed, err := c.ApplySignature(ctx, "TXN_1", ver.VerificationToken, doc)
	require.NoError(t, err)
	assert.True(t, signed.Simulated)
	assert.NotEmpty(t, signed.ProviderCertificateID)
	assert.Greater(t, len(signed.SignedDocument), len(doc))
	assert.Equal(t, doc, signed.SignedDocument[:len(doc)], "signed artifact must embed the original bytes")
}

func TestSimulatedWrongOTP(t *testing.T) {
	c := newTestClient()
	ctx := context.Background()

	otp, err := c.RequestOTP(ctx, "234567890124", "TXN_2", "h", testSigner)
	require.NoError(t, err)

	_, err = c.VerifyOTP(ctx, "TXN_2", "000000", otp.ProviderRequestID)
	assert.ErrorIs(t, err, ErrOTPMismatch)

	// A mismatch must not consume the transaction.
	_, err = c.VerifyOTP(ctx, "TXN_2", FixedOTP, otp.ProviderRequestID)
	assert.NoError(t, err)
}

func TestSimulatedUnknownTransaction(t *testing.T) {
	c := newTestClient()
	_, err := c.VerifyOTP(context.Background(), "TXN_MISSING", FixedOTP, "")
	assert.ErrorIs(t, err, ErrUnknownTransaction)

	_, err = c.ApplySignature(context.Background(), "TXN_MISSING", "tok", nil)
	assert.ErrorIs(t, err, ErrUnknownTransaction)
}

func TestSimulatedExpiredOTP(t *testing.T) {
	current := time.Now()
	c := newTestClient(WithClock(func() time.Time { return current }), WithOTPTTL(time.Minute))

	otp, err := c.RequestOTP(context.Background(), "234567890124", "TXN_3", "h", testSigner)
	require.NoError(t, err)
	assert.Equal(t, current.Add(time.Minute), otp.ExpiresAt)

	current = current.Add(2 * time.Minute)
	_, err = c.VerifyOTP(context.Background(), "TXN_3", FixedOTP, otp.ProviderRequestID)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestSimulatedSignRequiresVerification(t *testing.T) {
	c := newTestClient()
	ctx := context.Background()

	_, err := c.RequestOTP(ctx, "234567890124", "TXN_4", "h", testSigner)
	require.NoError(t, err)

	_, err = c.ApplySignature(ctx, "TXN_4", "SIM_TOKEN_TXN_4", []byte("doc"))
	assert.ErrorIs(t, err, ErrRejected, "unverified transaction must not sign")
}

func TestSimulatedClientsAreIsolated(t *testing.T) {
	a := newTestClient()
	b := newTestClient()
	ctx := context.Background()

	_, err := a.RequestOTP(ctx, "234567890124", "TXN_5", "h", testSigner)
	require.NoError(t, err)

	_, err = b.VerifyOTP(ctx, "TXN_5", FixedOTP, "SIM_TXN_5")
	assert.ErrorIs(t, err, ErrUnknownTransaction)
}
