package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/esign"
	"github.com/lexsign/internal/services"
	"go.uber.org/zap"
)

type SignatureHandler struct {
	engine *services.SignatureEngine
	audit  *services.AuditLog
	logger *zap.Logger
}

func NewSignatureHandler(engine *services.SignatureEngine, audit *services.AuditLog, logger *zap.Logger) *SignatureHandler {
	return &SignatureHandler{
		engine: engine,
		audit:  audit,
		logger: logger.With(zap.String("handler", "signature")),
	}
}

type initiateRequest struct {
	DocumentID    string `json:"document_id" binding:"required"`
	AadhaarNumber string `json:"aadhaar_number" binding:"required"`
	SignerName    string `json:"signer_name" binding:"required"`
	SignerEmail   string `json:"signer_email"`
	SignerPhone   string `json:"signer_phone"`
}

func (h *SignatureHandler) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.Initiate(c.Request.Context(), services.InitiateParams{
		DocumentID:    req.DocumentID,
		AadhaarNumber: req.AadhaarNumber,
		Signer: esign.SignerInfo{
			Name:  req.SignerName,
			Email: req.SignerEmail,
			Phone: req.SignerPhone,
		},
		SignerID:   c.GetUint("userID"),
		OriginIP:   c.ClientIP(),
		DeviceInfo: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type bulkInitiateRequest struct {
	DocumentIDs   []string `json:"document_ids" binding:"required,min=1"`
	AadhaarNumber string   `json:"aadhaar_number" binding:"required"`
	SignerName    string   `json:"signer_name" binding:"required"`
	SignerEmail   string   `json:"signer_email"`
	SignerPhone   string   `json:"signer_phone"`
}

func (h *SignatureHandler) BulkInitiate(c *gin.Context) {
	var req bulkInitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := h.engine.BulkInitiate(c.Request.Context(), req.DocumentIDs, services.InitiateParams{
		AadhaarNumber: req.AadhaarNumber,
		Signer: esign.SignerInfo{
			Name:  req.SignerName,
			Email: req.SignerEmail,
			Phone: req.SignerPhone,
		},
		SignerID:   c.GetUint("userID"),
		OriginIP:   c.ClientIP(),
		DeviceInfo: c.Request.UserAgent(),
	})

	succeeded := 0
	for _, item := range items {
		if item.Error == "" {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     len(items),
		"succeeded": succeeded,
		"failed":    len(items) - succeeded,
		"results":   items,
	})
}

type verifyOTPRequest struct {
	OTP string `json:"otp" binding:"required"`
}

func (h *SignatureHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OTP required"})
		return
	}

	res, err := h.engine.VerifyOTP(c.Request.Context(), c.Param("id"), req.OTP)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SignatureHandler) ApplySignature(c *gin.Context) {
	res, err := h.engine.ApplySignature(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SignatureHandler) GetStatus(c *gin.Context) {
	req, err := h.engine.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, statusView(req))
}

func (h *SignatureHandler) AuditTrail(c *gin.Context) {
	entries, err := h.audit.BySignature(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// statusView omits internal columns (version, provider token, file
// paths) from the public status shape.
func statusView(req *models.SignatureRequest) gin.H {
	view := gin.H{
		"signature_id":   req.ID,
		"document_id":    req.DocumentID,
		"transaction_id": req.TransactionID,
		"status":         req.Status,
		"retry_count":    req.RetryCount,
		"signer_name":    req.SignerName,
		"simulated":      req.Simulated,
		"created_at":     req.CreatedAt,
	}
	if req.ExpiresAt != nil {
		view["expires_at"] = req.ExpiresAt
	}
	if req.SignedAt != nil {
		view["signed_at"] = req.SignedAt
		view["signed_document_hash"] = req.SignedDocumentHash
		view["certificate_id"] = req.CertificateID
	}
	if req.ErrorMessage != "" {
		view["error_message"] = req.ErrorMessage
	}
	return view
}
