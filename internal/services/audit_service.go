package services

import (
	"context"
	"encoding/json"

	"github.com/lexsign/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditLog appends immutable events for every state transition. Write
// failures are logged but never propagated: a transition must not fail
// because its audit write did.
type AuditLog struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAuditLog(db *gorm.DB, logger *zap.Logger) *AuditLog {
	return &AuditLog{
		db:     db,
		logger: logger.With(zap.String("service", "audit_log")),
	}
}

// Event describes one audit record before persistence.
type Event struct {
	SignatureRequestID string
	WorkflowID         string
	EventType          string
	Payload            map[string]any
	ActorID            uint
	IP                 string
	UserAgent          string
}

func (a *AuditLog) Record(ctx context.Context, ev Event) {
	payload := ""
	if ev.Payload != nil {
		if data, err := json.Marshal(ev.Payload); err == nil {
			payload = string(data)
		}
	}

	entry := models.AuditEntry{
		SignatureRequestID: ev.SignatureRequestID,
		WorkflowID:         ev.WorkflowID,
		EventType:          ev.EventType,
		Payload:            payload,
		ActorID:            ev.ActorID,
		IP:                 ev.IP,
		UserAgent:          ev.UserAgent,
	}

	if err := a.db.WithContext(ctx).Create(&entry).Error; err != nil {
		a.logger.Error("audit write failed",
			zap.String("event_type", ev.EventType),
			zap.String("signature_id", ev.SignatureRequestID),
			zap.Error(err))
	}
}

// BySignature lists entries for one signature request, oldest first.
func (a *AuditLog) BySignature(ctx context.Context, signatureID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := a.db.WithContext(ctx).
		Where("signature_request_id = ?", signatureID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// ByWorkflow lists entries for one workflow, oldest first.
func (a *AuditLog) ByWorkflow(ctx context.Context, workflowID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := a.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// Recent lists the newest entries across the system, for operators.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.AuditEntry
	err := a.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
