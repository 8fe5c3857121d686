package handlers

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/internal/services"
	"go.uber.org/zap"
)

type VerificationHandler struct {
	certs  *services.CertificateService
	logger *zap.Logger
}

func NewVerificationHandler(certs *services.CertificateService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{
		certs:  certs,
		logger: logger.With(zap.String("handler", "verification")),
	}
}

// VerifyDocument checks an uploaded document. An optional certificate
// file pins the check to a specific certificate payload; without one
// the signature records are searched by hash.
func (h *VerificationHandler) VerifyDocument(c *gin.Context) {
	docHdr, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Document file required"})
		return
	}
	document, err := readUpload(docHdr.Open())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read document"})
		return
	}

	var payload *services.CertificatePayload
	if certHdr, cerr := c.FormFile("certificate"); cerr == nil {
		certBytes, rerr := readUpload(certHdr.Open())
		if rerr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read certificate"})
			return
		}
		payload, err = services.ExtractPayload(certBytes)
		if err != nil {
			h.logger.Warn("invalid certificate upload", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid certificate format"})
			return
		}
	}

	result, err := h.certs.Verify(c.Request.Context(), document, payload)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCertificate resolves a certificate ID to its signature record.
func (h *VerificationHandler) GetCertificate(c *gin.Context) {
	certID := c.Param("id")
	req, err := h.certs.Lookup(c.Request.Context(), certID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	issued, signatureID, _ := services.ParseCertificateID(certID)
	c.JSON(http.StatusOK, gin.H{
		"certificate_id": certID,
		"issued_at":      issued.Format(time.RFC3339),
		"signature_id":   signatureID,
		"transaction_id": req.TransactionID,
		"document_id":    req.DocumentID,
		"signer_name":    req.SignerName,
		"signed_at":      req.SignedAt,
		"simulated":      req.Simulated,
	})
}

// DownloadCertificate serves the rendered certificate document.
func (h *VerificationHandler) DownloadCertificate(c *gin.Context) {
	req, err := h.certs.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	content, err := os.ReadFile(req.CertificatePath)
	if err != nil {
		h.logger.Error("certificate artifact missing",
			zap.String("certificate_id", req.CertificateID),
			zap.String("path", req.CertificatePath), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "Certificate artifact not found"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="certificate_`+req.CertificateID+`.txt"`)
	c.Data(http.StatusOK, "text/plain", content)
}

func readUpload(f io.ReadCloser, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
