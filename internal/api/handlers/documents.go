package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/internal/services"
	"go.uber.org/zap"
)

type DocumentHandler struct {
	documentService *services.DocumentService
	logger          *zap.Logger
}

func NewDocumentHandler(documentService *services.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          logger.With(zap.String("handler", "document")),
	}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	userID := c.GetUint("userID")

	fileHdr, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Document file required"})
		return
	}
	name := c.PostForm("name")
	if name == "" {
		name = fileHdr.Filename
	}

	f, err := fileHdr.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read uploaded file"})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read uploaded file"})
		return
	}

	doc, err := h.documentService.Upload(c.Request.Context(), userID, name, content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"document_id":  doc.ID,
		"name":         doc.Name,
		"content_hash": doc.ContentHash,
		"page_count":   doc.PageCount,
		"status":       doc.Status,
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID := c.GetUint("userID")
	docs, err := h.documentService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id":  doc.ID,
		"name":         doc.Name,
		"content_hash": doc.ContentHash,
		"page_count":   doc.PageCount,
		"status":       doc.Status,
		"created_at":   doc.CreatedAt,
	})
}

// Download serves the raw stored bytes.
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, err := h.documentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Name+`"`)
	c.Data(http.StatusOK, "application/octet-stream", doc.Content)
}

// Preview serves a display copy; drafts carry the draft watermark.
func (h *DocumentHandler) Preview(c *gin.Context) {
	content, doc, err := h.documentService.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+doc.Name+`"`)
	c.Data(http.StatusOK, "application/pdf", content)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID := c.GetUint("userID")
	err := h.documentService.Delete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
