package esign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FixedOTP is the well-known OTP accepted by the simulated provider.
const FixedOTP = "123456"

// DefaultOTPTTL matches the live provider's 10-minute OTP window.
const DefaultOTPTTL = 10 * time.Minute

type simTransaction struct {
	aadhaarNumber string
	documentHash  string
	signer        SignerInfo
	requestID     string
	token         string
	expiresAt     time.Time
	verified      bool
}

// SimulatedClient reproduces every success and failure shape of the
// live provider without network access. State lives on the instance so
// parallel tests never share transactions.
type SimulatedClient struct {
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu  sync.Mutex
	txs map[string]*simTransaction
}

// SimulatedOption tweaks a SimulatedClient, mainly for tests.
type SimulatedOption func(*SimulatedClient)

// WithOTPTTL overrides the OTP validity window.
func WithOTPTTL(ttl time.Duration) SimulatedOption {
	return func(c *SimulatedClient) { c.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SimulatedOption {
	return func(c *SimulatedClient) { c.now = now }
}

func NewSimulatedClient(logger *zap.Logger, opts ...SimulatedOption) *SimulatedClient {
	c := &SimulatedClient{
		logger: logger.With(zap.String("esign", "simulated")),
		ttl:    DefaultOTPTTL,
		now:    time.Now,
		txs:    make(map[string]*simTransaction),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SimulatedClient) Simulated() bool { return true }

func (c *SimulatedClient) RequestOTP(ctx context.Context, aadhaarNumber, transactionID, documentHash string, signer SignerInfo) (*OTPRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	requestID := "SIM_" + transactionID
	expiresAt := c.now().Add(c.ttl)

	c.mu.Lock()
	c.txs[transactionID] = &simTransaction{
		aadhaarNumber: aadhaarNumber,
		documentHash:  documentHash,
		signer:        signer,
		requestID:     requestID,
		token:         "SIM_TOKEN_" + transactionID,
		expiresAt:     expiresAt,
	}
	c.mu.Unlock()

	c.logger.Info("simulated OTP issued",
		zap.String("transaction_id", transactionID),
		zap.Time("expires_at", expiresAt))

	return &OTPRequest{
		ProviderRequestID: requestID,
		ExpiresAt:         expiresAt,
		Message:           "simulated mode: OTP sent (use " + FixedOTP + ")",
		FixedOTP:          FixedOTP,
		Simulated:         true,
	}, nil
}

func (c *SimulatedClient) VerifyOTP(ctx context.Context, transactionID, otp, providerRequestID string) (*OTPVerification, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.mu.Lock()
	tx, ok := c.txs[transactionID]
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownTransaction
	}
	if c.now().After(tx.expiresAt) {
		return nil, ErrOTPExpired
	}
	if otp != FixedOTP {
		return nil, ErrOTPMismatch
	}

	c.mu.Lock()
	tx.verified = true
	c.mu.Unlock()

	last4 := ""
	if len(tx.aadhaarNumber) >= 4 {
		last4 = tx.aadhaarNumber[len(tx.aadhaarNumber)-4:]
	}

	return &OTPVerification{
		Verified:          true,
		SignerName:        tx.signer.Name,
		AadhaarLast4:      last4,
		VerificationToken: tx.token,
		Simulated:         true,
	}, nil
}

func (c *SimulatedClient) ApplySignature(ctx context.Context, transactionID, verificationToken string, document []byte) (*SignedArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.mu.Lock()
	tx, ok := c.txs[transactionID]
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownTransaction
	}
	if !tx.verified || verificationToken != tx.token {
		return nil, fmt.Errorf("%w: verification token invalid", ErrRejected)
	}

	signedAt := c.now()
	certID := "SIM-CERT-" + transactionID

	// The simulated signature is a trailer block appended to the
	// document, enough to make the signed hash differ from the
	// pre-sign hash the way a real signature container would.
	trailer := fmt.Sprintf("\n%%%%LEXSIGN-SIM-SIGNATURE txn=%s signer=%s at=%s cert=%s\n",
		transactionID, tx.signer.Name, signedAt.UTC().Format(time.RFC3339), certID)
	signed := make([]byte, 0, len(document)+len(trailer))
	signed = append(signed, document...)
	signed = append(signed, trailer...)

	c.logger.Info("simulated signature applied",
		zap.String("transaction_id", transactionID),
		zap.String("certificate_id", certID))

	return &SignedArtifact{
		SignedDocument:        signed,
		ProviderCertificateID: certID,
		SignedAt:              signedAt,
		SignerName:            tx.signer.Name,
		Simulated:             true,
	}, nil
}
