package esign

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LiveConfig carries the provider credentials and endpoints. The client
// is considered configured only when both credentials are present;
// otherwise the caller should construct a SimulatedClient instead.
type LiveConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	// Timeout bounds a single HTTP exchange. Zero means 30 seconds.
	Timeout time.Duration
	// SignTimeout bounds the apply-signature exchange, which uploads
	// the document. Zero means 60 seconds.
	SignTimeout time.Duration
}

func (c LiveConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

const (
	liveRetryAttempts = 3
	liveRetryBackoff  = 500 * time.Millisecond
	otpValidity       = 10 * time.Minute
)

// LiveClient talks to the provider's JSON API. Transient transport and
// 5xx failures are retried with exponential backoff before surfacing
// ErrUnavailable; provider-side rejections are mapped to the package's
// failure kinds and never retried.
type LiveClient struct {
	cfg     LiveConfig
	http    *http.Client
	signing *http.Client
	logger  *zap.Logger
}

func NewLiveClient(cfg LiveConfig, logger *zap.Logger) *LiveClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	signTimeout := cfg.SignTimeout
	if signTimeout == 0 {
		signTimeout = 60 * time.Second
	}
	return &LiveClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		signing: &http.Client{Timeout: signTimeout},
		logger:  logger.With(zap.String("esign", "live")),
	}
}

func (c *LiveClient) Simulated() bool { return false }

type providerResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`

	RequestID         string `json:"requestId"`
	SignerName        string `json:"signerName"`
	AadhaarLast4      string `json:"aadhaarLast4"`
	VerificationToken string `json:"verificationToken"`
	SignedDocument    string `json:"signedDocument"`
	CertificateID     string `json:"certificateId"`
	Timestamp         string `json:"timestamp"`

	AccessToken string `json:"access_token"`
}

func (c *LiveClient) RequestOTP(ctx context.Context, aadhaarNumber, transactionID, documentHash string, signer SignerInfo) (*OTPRequest, error) {
	payload := map[string]any{
		"clientId":      c.cfg.ClientID,
		"transactionId": transactionID,
		"aadhaarNumber": aadhaarNumber,
		"documentHash":  documentHash,
		"signerDetails": map[string]string{
			"name":   signer.Name,
			"email":  signer.Email,
			"mobile": signer.Phone,
		},
		"callbackUrl": c.cfg.CallbackURL,
	}

	resp, err := c.post(ctx, c.http, "/esign/otp/request", payload)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, c.mapRejection(resp)
	}

	return &OTPRequest{
		ProviderRequestID: resp.RequestID,
		ExpiresAt:         time.Now().Add(otpValidity),
		Message:           "OTP sent to Aadhaar-linked mobile number",
	}, nil
}

func (c *LiveClient) VerifyOTP(ctx context.Context, transactionID, otp, providerRequestID string) (*OTPVerification, error) {
	payload := map[string]any{
		"clientId":      c.cfg.ClientID,
		"transactionId": transactionID,
		"requestId":     providerRequestID,
		"otp":           otp,
	}

	resp, err := c.post(ctx, c.http, "/esign/otp/verify", payload)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, c.mapRejection(resp)
	}

	return &OTPVerification{
		Verified:          true,
		SignerName:        resp.SignerName,
		AadhaarLast4:      resp.AadhaarLast4,
		VerificationToken: resp.VerificationToken,
	}, nil
}

func (c *LiveClient) ApplySignature(ctx context.Context, transactionID, verificationToken string, document []byte) (*SignedArtifact, error) {
	payload := map[string]any{
		"clientId":          c.cfg.ClientID,
		"transactionId":     transactionID,
		"verificationToken": verificationToken,
		"document":          base64.StdEncoding.EncodeToString(document),
		"signatureReason":   "Legal Document Signature",
		"signatureLocation": "India",
	}

	resp, err := c.post(ctx, c.signing, "/esign/sign", payload)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, c.mapRejection(resp)
	}

	signed, err := base64.StdEncoding.DecodeString(resp.SignedDocument)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable signed document: %v", ErrRejected, err)
	}

	signedAt := time.Now()
	if resp.Timestamp != "" {
		if ts, perr := time.Parse(time.RFC3339, resp.Timestamp); perr == nil {
			signedAt = ts
		}
	}

	return &SignedArtifact{
		SignedDocument:        signed,
		ProviderCertificateID: resp.CertificateID,
		SignedAt:              signedAt,
		SignerName:            resp.SignerName,
	}, nil
}

// post runs one provider call with bearer auth, retrying transport and
// 5xx failures with exponential backoff.
func (c *LiveClient) post(ctx context.Context, client *http.Client, path string, payload any) (*providerResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding provider request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < liveRetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := liveRetryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if rerr != nil {
			return nil, fmt.Errorf("building provider request: %w", rerr)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, herr := client.Do(req)
		if herr != nil {
			lastErr = herr
			c.logger.Warn("provider call failed",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(herr))
			continue
		}

		data, rerr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if rerr != nil {
			lastErr = rerr
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("provider returned %d", resp.StatusCode)
			c.logger.Warn("provider server error",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			continue
		}

		var parsed providerResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("%w: undecodable response: %v", ErrUnavailable, err)
		}
		return &parsed, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *LiveClient) accessToken(ctx context.Context) (string, error) {
	payload := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: undecodable token response: %v", ErrUnavailable, err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUnavailable)
	}
	return parsed.AccessToken, nil
}

// mapRejection translates provider error codes into the package's
// failure kinds so the engine can decide what consumes a retry.
func (c *LiveClient) mapRejection(resp *providerResponse) error {
	switch resp.ErrorCode {
	case "OTP_MISMATCH", "INVALID_OTP":
		return ErrOTPMismatch
	case "OTP_EXPIRED":
		return ErrOTPExpired
	case "TXN_NOT_FOUND", "UNKNOWN_TRANSACTION":
		return ErrUnknownTransaction
	default:
		if resp.Message != "" {
			return fmt.Errorf("%w: %s", ErrRejected, resp.Message)
		}
		return ErrRejected
	}
}
