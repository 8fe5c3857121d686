package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/pdfutil"
	"github.com/lexsign/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocSummary is the listing view of a stored document.
type DocSummary struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	PageCount int                   `json:"page_count"`
	Status    models.DocumentStatus `json:"status"`
	SizeBytes int                   `json:"size_bytes"`
	CreatedAt time.Time             `json:"created_at"`
}

// DocumentService stores the documents signatures commit to. Content is
// kept in the database as an opaque blob; the hash is computed once at
// upload and never recomputed.
type DocumentService struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *metrics.MetricsCollector
}

func NewDocumentService(db *gorm.DB, logger *zap.Logger, collector *metrics.MetricsCollector) *DocumentService {
	return &DocumentService{
		db:      db,
		logger:  logger.With(zap.String("service", "document_service")),
		metrics: collector,
	}
}

// Upload stores a new document as a draft. Page count is best-effort;
// non-PDF content simply records zero pages.
func (ds *DocumentService) Upload(ctx context.Context, ownerID uint, name string, content []byte) (*models.Document, error) {
	if name == "" {
		return nil, newError(KindInvalidState, "document needs a name")
	}
	if len(content) == 0 {
		return nil, newError(KindInvalidState, "document is empty")
	}

	pages, err := pdfutil.PageCount(content)
	if err != nil {
		pages = 0
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		Name:        name,
		Content:     content,
		ContentHash: pdfutil.HashBytes(content),
		PageCount:   pages,
		OwnerID:     ownerID,
		Status:      models.DocumentDraft,
	}
	if err := ds.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	ds.metrics.IncrementCounter("documents.uploaded", nil)
	ds.metrics.ObserveSize("documents.upload_bytes", float64(len(content)))
	ds.logger.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("name", name),
		zap.Int("pages", pages),
		zap.Int("bytes", len(content)))
	return doc, nil
}

// Get loads a document with its content.
func (ds *DocumentService) Get(ctx context.Context, docID string) (*models.Document, error) {
	var doc models.Document
	err := ds.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	return &doc, nil
}

// List returns the owner's documents, newest first.
func (ds *DocumentService) List(ctx context.Context, ownerID uint) ([]DocSummary, error) {
	var docs []models.Document
	err := ds.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	summaries := make([]DocSummary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, DocSummary{
			ID:        d.ID,
			Name:      d.Name,
			PageCount: d.PageCount,
			Status:    d.Status,
			SizeBytes: len(d.Content),
			CreatedAt: d.CreatedAt,
		})
	}
	return summaries, nil
}

// Preview returns the document bytes for display. Drafts get a
// watermark so a downloaded preview cannot pass for a signed copy;
// content the stamper cannot process is returned unmodified.
func (ds *DocumentService) Preview(ctx context.Context, docID string) ([]byte, *models.Document, error) {
	doc, err := ds.Get(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	if doc.Status != models.DocumentDraft {
		return doc.Content, doc, nil
	}
	stamped, err := pdfutil.Watermark(doc.Content, pdfutil.DraftWatermarkText)
	if err != nil {
		ds.logger.Warn("draft watermark failed, serving original",
			zap.String("document_id", doc.ID), zap.Error(err))
		return doc.Content, doc, nil
	}
	return stamped, doc, nil
}

// Delete removes a draft. Signed documents are immutable.
func (ds *DocumentService) Delete(ctx context.Context, ownerID uint, docID string) error {
	doc, err := ds.Get(ctx, docID)
	if err != nil {
		return err
	}
	if doc.OwnerID != ownerID {
		return ErrDocumentNotFound
	}
	if doc.Status == models.DocumentSigned {
		return newError(KindAlreadySigned, "signed documents cannot be deleted")
	}
	if err := ds.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", docID).Error; err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// VerifyIntegrity reports whether the stored content still matches its
// recorded hash.
func (ds *DocumentService) VerifyIntegrity(ctx context.Context, docID string) (bool, error) {
	doc, err := ds.Get(ctx, docID)
	if err != nil {
		return false, err
	}
	return pdfutil.HashBytes(doc.Content) == doc.ContentHash, nil
}
