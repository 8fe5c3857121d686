package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/esign"
	"github.com/lexsign/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WorkflowConfig tunes orchestration behavior.
type WorkflowConfig struct {
	// ReminderCooldown is the minimum gap between reminders to the same
	// signatory. Zero means the 24h default.
	ReminderCooldown time.Duration
	// SigningBaseURL prefixes the per-signatory signing links embedded
	// in invitations and reminders.
	SigningBaseURL string
}

// WorkflowOrchestrator coordinates multi-party signing: one workflow per
// document, one signatory row per participant, each participant backed
// by their own SignatureRequest once they start signing. It registers
// itself as the engine's completion hook so finished signatures advance
// the aggregate.
type WorkflowOrchestrator struct {
	db       *gorm.DB
	engine   *SignatureEngine
	audit    *AuditLog
	notifier notify.Notifier
	cfg      WorkflowConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewWorkflowOrchestrator(db *gorm.DB, engine *SignatureEngine, audit *AuditLog, notifier notify.Notifier, cfg WorkflowConfig, logger *zap.Logger) *WorkflowOrchestrator {
	if cfg.ReminderCooldown <= 0 {
		cfg.ReminderCooldown = 24 * time.Hour
	}
	w := &WorkflowOrchestrator{
		db:       db,
		engine:   engine,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(zap.String("service", "workflow_orchestrator")),
		now:      time.Now,
	}
	engine.SetCompletionHook(w.onSignatureCompleted)
	return w
}

// SignatoryInput describes one participant at workflow creation time.
type SignatoryInput struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

// CreateWorkflowParams creates a workflow over an existing document.
type CreateWorkflowParams struct {
	DocumentID      string
	CreatedBy       uint
	Signatories     []SignatoryInput
	SigningOrder    models.SigningOrder
	ReminderEnabled bool
}

// CreateWorkflow persists the workflow and its signatories in one
// transaction. Positions are assigned in input order starting at 1.
func (w *WorkflowOrchestrator) CreateWorkflow(ctx context.Context, p CreateWorkflowParams) (*models.Workflow, error) {
	if len(p.Signatories) == 0 {
		return nil, newError(KindInvalidState, "workflow needs at least one signatory")
	}
	if p.SigningOrder == "" {
		p.SigningOrder = models.OrderParallel
	}
	if p.SigningOrder != models.OrderParallel && p.SigningOrder != models.OrderSequential {
		return nil, newError(KindInvalidState, fmt.Sprintf("unknown signing order %q", p.SigningOrder))
	}
	seen := make(map[string]bool, len(p.Signatories))
	for _, s := range p.Signatories {
		email := strings.ToLower(strings.TrimSpace(s.Email))
		if email == "" || s.Name == "" {
			return nil, newError(KindInvalidState, "each signatory needs a name and an email")
		}
		if seen[email] {
			return nil, newError(KindInvalidState, fmt.Sprintf("duplicate signatory email %s", email))
		}
		seen[email] = true
	}

	var doc models.Document
	if err := w.db.WithContext(ctx).First(&doc, "id = ?", p.DocumentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "document not found")
		}
		return nil, fmt.Errorf("loading document: %w", err)
	}

	wf := &models.Workflow{
		ID:               uuid.NewString(),
		DocumentID:       doc.ID,
		CreatedBy:        p.CreatedBy,
		Status:           models.WorkflowActive,
		TotalSignatories: len(p.Signatories),
		SigningOrder:     p.SigningOrder,
		ReminderEnabled:  p.ReminderEnabled,
	}
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(wf).Error; err != nil {
			return err
		}
		for i, s := range p.Signatories {
			role := s.Role
			if role == "" {
				role = "signer"
			}
			sig := models.Signatory{
				ID:         uuid.NewString(),
				WorkflowID: wf.ID,
				Email:      strings.ToLower(strings.TrimSpace(s.Email)),
				Name:       s.Name,
				Phone:      s.Phone,
				Role:       role,
				Position:   i + 1,
				Status:     models.SignatoryPending,
			}
			if err := tx.Create(&sig).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating workflow: %w", err)
	}

	emails := make([]string, 0, len(p.Signatories))
	for e := range seen {
		emails = append(emails, e)
	}
	w.audit.Record(ctx, Event{
		WorkflowID: wf.ID,
		EventType:  models.EventWorkflowCreated,
		ActorID:    p.CreatedBy,
		Payload: map[string]any{
			"document_id":   doc.ID,
			"signing_order": string(p.SigningOrder),
			"signatories":   emails,
		},
	})
	w.logger.Info("workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("document_id", doc.ID),
		zap.Int("signatories", wf.TotalSignatories),
		zap.String("signing_order", string(p.SigningOrder)))
	return wf, nil
}

// AddSignatory appends a participant to an active workflow at the next
// position.
func (w *WorkflowOrchestrator) AddSignatory(ctx context.Context, workflowID string, in SignatoryInput) (*models.Signatory, error) {
	wf, err := w.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowActive {
		return nil, newError(KindTerminalState, fmt.Sprintf("workflow is %s", wf.Status))
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Name == "" {
		return nil, newError(KindInvalidState, "signatory needs a name and an email")
	}
	role := in.Role
	if role == "" {
		role = "signer"
	}

	var maxPos int
	w.db.WithContext(ctx).Model(&models.Signatory{}).
		Where("workflow_id = ?", workflowID).
		Select("COALESCE(MAX(position), 0)").Scan(&maxPos)

	sig := &models.Signatory{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Email:      email,
		Name:       in.Name,
		Phone:      in.Phone,
		Role:       role,
		Position:   maxPos + 1,
		Status:     models.SignatoryPending,
	}
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sig).Error; err != nil {
			return err
		}
		return tx.Model(&models.Workflow{}).
			Where("id = ?", workflowID).
			Update("total_signatories", gorm.Expr("total_signatories + 1")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("adding signatory: %w", err)
	}

	w.audit.Record(ctx, Event{
		WorkflowID: workflowID,
		EventType:  models.EventSignatoryAdded,
		Payload:    map[string]any{"signatory_id": sig.ID, "email": email, "position": sig.Position},
	})
	return sig, nil
}

// RemoveSignatory drops a participant from an active workflow. A
// signatory that already signed cannot be removed.
func (w *WorkflowOrchestrator) RemoveSignatory(ctx context.Context, workflowID, signatoryID string) error {
	wf, err := w.loadWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status != models.WorkflowActive {
		return newError(KindTerminalState, fmt.Sprintf("workflow is %s", wf.Status))
	}
	sig, err := w.loadSignatory(ctx, workflowID, signatoryID)
	if err != nil {
		return err
	}
	if sig.Status == models.SignatorySigned {
		return newError(KindAlreadySigned, "signatory has already signed")
	}

	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Signatory{}, "id = ?", sig.ID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Workflow{}).
			Where("id = ? AND total_signatories > 0", workflowID).
			Update("total_signatories", gorm.Expr("total_signatories - 1")).Error
	})
	if err != nil {
		return fmt.Errorf("removing signatory: %w", err)
	}

	w.audit.Record(ctx, Event{
		WorkflowID: workflowID,
		EventType:  models.EventSignatoryRemoved,
		Payload:    map[string]any{"signatory_id": sig.ID, "email": sig.Email},
	})

	// Removing the last unsigned participant can complete the workflow.
	w.maybeComplete(ctx, workflowID)
	return nil
}

// DispatchRequest invites a signatory to sign. Sequential workflows
// refuse dispatch until everyone earlier in the order has signed.
func (w *WorkflowOrchestrator) DispatchRequest(ctx context.Context, workflowID, signatoryID string) error {
	wf, err := w.loadWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status != models.WorkflowActive {
		return newError(KindTerminalState, fmt.Sprintf("workflow is %s", wf.Status))
	}
	sig, err := w.loadSignatory(ctx, workflowID, signatoryID)
	if err != nil {
		return err
	}
	if sig.Status.Settled() {
		return newError(KindTerminalState, fmt.Sprintf("signatory is %s", sig.Status))
	}
	if err := w.checkOrder(ctx, wf, sig); err != nil {
		return err
	}

	var doc models.Document
	if err := w.db.WithContext(ctx).First(&doc, "id = ?", wf.DocumentID).Error; err != nil {
		return fmt.Errorf("loading document: %w", err)
	}

	now := w.now()
	res := w.db.WithContext(ctx).Model(&models.Signatory{}).
		Where("id = ? AND status IN ?", sig.ID, []models.SignatoryStatus{models.SignatoryPending, models.SignatoryNotified}).
		Updates(map[string]any{"status": models.SignatoryNotified, "invited_at": &now})
	if res.Error != nil {
		return fmt.Errorf("updating signatory: %w", res.Error)
	}

	go func(to notify.Recipient, docName, link string) {
		if err := w.notifier.SendInvitation(to, docName, "", link); err != nil {
			w.logger.Warn("invitation delivery failed", zap.Error(err))
		}
	}(notify.Recipient{Name: sig.Name, Email: sig.Email}, doc.Name, w.signingLink(wf.ID, sig.ID))

	w.audit.Record(ctx, Event{
		WorkflowID: workflowID,
		EventType:  models.EventSignatoryInvited,
		Payload:    map[string]any{"signatory_id": sig.ID, "email": sig.Email},
	})
	return nil
}

// MarkViewed records that a signatory opened their signing link.
func (w *WorkflowOrchestrator) MarkViewed(ctx context.Context, workflowID, signatoryID string) error {
	sig, err := w.loadSignatory(ctx, workflowID, signatoryID)
	if err != nil {
		return err
	}
	if sig.Status.Settled() {
		return newError(KindTerminalState, fmt.Sprintf("signatory is %s", sig.Status))
	}
	now := w.now()
	res := w.db.WithContext(ctx).Model(&models.Signatory{}).
		Where("id = ? AND status = ?", sig.ID, models.SignatoryNotified).
		Updates(map[string]any{"status": models.SignatoryViewed, "viewed_at": &now})
	if res.Error != nil {
		return fmt.Errorf("updating signatory: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		w.audit.Record(ctx, Event{
			WorkflowID: workflowID,
			EventType:  models.EventSignatoryViewed,
			Payload:    map[string]any{"signatory_id": sig.ID},
		})
	}
	return nil
}

// Decline records a signatory's refusal with an optional reason. The
// workflow stays active so the creator can replace the participant.
func (w *WorkflowOrchestrator) Decline(ctx context.Context, workflowID, signatoryID, reason string) error {
	sig, err := w.loadSignatory(ctx, workflowID, signatoryID)
	if err != nil {
		return err
	}
	if sig.Status.Settled() {
		return newError(KindTerminalState, fmt.Sprintf("signatory is %s", sig.Status))
	}
	now := w.now()
	res := w.db.WithContext(ctx).Model(&models.Signatory{}).
		Where("id = ? AND status NOT IN ?", sig.ID, []models.SignatoryStatus{models.SignatorySigned, models.SignatoryDeclined, models.SignatoryExpired}).
		Updates(map[string]any{
			"status":         models.SignatoryDeclined,
			"decline_reason": reason,
			"declined_at":    &now,
		})
	if res.Error != nil {
		return fmt.Errorf("updating signatory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return newError(KindConflict, "signatory settled concurrently")
	}
	w.audit.Record(ctx, Event{
		WorkflowID: workflowID,
		EventType:  models.EventSignatoryDecline,
		Payload:    map[string]any{"signatory_id": sig.ID, "reason": reason},
	})
	return nil
}

// SendReminders nudges every signatory in notified or viewed whose last
// reminder is older than the cooldown. Returns the number reminded.
func (w *WorkflowOrchestrator) SendReminders(ctx context.Context, workflowID string) (int, error) {
	wf, err := w.loadWorkflow(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	if wf.Status != models.WorkflowActive {
		return 0, newError(KindTerminalState, fmt.Sprintf("workflow is %s", wf.Status))
	}
	if !wf.ReminderEnabled {
		return 0, nil
	}

	var doc models.Document
	if err := w.db.WithContext(ctx).First(&doc, "id = ?", wf.DocumentID).Error; err != nil {
		return 0, fmt.Errorf("loading document: %w", err)
	}

	var pending []models.Signatory
	err = w.db.WithContext(ctx).
		Where("workflow_id = ? AND status IN ?", workflowID,
			[]models.SignatoryStatus{models.SignatoryNotified, models.SignatoryViewed}).
		Order("position").
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("listing signatories: %w", err)
	}

	now := w.now()
	reminded := 0
	for i := range pending {
		sig := &pending[i]
		if sig.LastReminderAt != nil && now.Sub(*sig.LastReminderAt) < w.cfg.ReminderCooldown {
			continue
		}
		res := w.db.WithContext(ctx).Model(&models.Signatory{}).
			Where("id = ? AND (last_reminder_at IS NULL OR last_reminder_at <= ?)",
				sig.ID, now.Add(-w.cfg.ReminderCooldown)).
			Update("last_reminder_at", &now)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}
		go func(to notify.Recipient, docName, link string) {
			if err := w.notifier.SendReminder(to, docName, link, w.cfg.ReminderCooldown); err != nil {
				w.logger.Warn("reminder delivery failed", zap.Error(err))
			}
		}(notify.Recipient{Name: sig.Name, Email: sig.Email}, doc.Name, w.signingLink(wf.ID, sig.ID))
		w.audit.Record(ctx, Event{
			WorkflowID: workflowID,
			EventType:  models.EventReminderSent,
			Payload:    map[string]any{"signatory_id": sig.ID, "email": sig.Email},
		})
		reminded++
	}
	return reminded, nil
}

// BeginSigning starts the signatory's own signing transaction through
// the engine and links the request back to the signatory row.
func (w *WorkflowOrchestrator) BeginSigning(ctx context.Context, workflowID, signatoryID, aadhaarNumber, originIP, deviceInfo string) (*InitiateResult, error) {
	wf, err := w.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowActive {
		return nil, newError(KindTerminalState, fmt.Sprintf("workflow is %s", wf.Status))
	}
	sig, err := w.loadSignatory(ctx, workflowID, signatoryID)
	if err != nil {
		return nil, err
	}
	if sig.Status.Settled() {
		return nil, newError(KindTerminalState, fmt.Sprintf("signatory is %s", sig.Status))
	}
	if err := w.checkOrder(ctx, wf, sig); err != nil {
		return nil, err
	}

	res, err := w.engine.Initiate(ctx, InitiateParams{
		DocumentID:    wf.DocumentID,
		AadhaarNumber: aadhaarNumber,
		Signer:        esign.SignerInfo{Name: sig.Name, Email: sig.Email, Phone: sig.Phone},
		OriginIP:      originIP,
		DeviceInfo:    deviceInfo,
	})
	if err != nil {
		return nil, err
	}

	if uerr := w.db.WithContext(ctx).Model(&models.Signatory{}).
		Where("id = ?", sig.ID).
		Update("signature_request_id", res.SignatureID).Error; uerr != nil {
		return nil, fmt.Errorf("linking signature request: %w", uerr)
	}
	return res, nil
}

// Cancel stops an active workflow.
func (w *WorkflowOrchestrator) Cancel(ctx context.Context, workflowID string, actorID uint) error {
	now := w.now()
	res := w.db.WithContext(ctx).Model(&models.Workflow{}).
		Where("id = ? AND status = ?", workflowID, models.WorkflowActive).
		Updates(map[string]any{"status": models.WorkflowCancelled, "cancelled_at": &now})
	if res.Error != nil {
		return fmt.Errorf("cancelling workflow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := w.loadWorkflow(ctx, workflowID); err != nil {
			return err
		}
		return newError(KindTerminalState, "workflow is not active")
	}
	w.audit.Record(ctx, Event{
		WorkflowID: workflowID,
		EventType:  models.EventWorkflowCancel,
		ActorID:    actorID,
	})
	return nil
}

// WorkflowStatusView is the aggregate progress report.
type WorkflowStatusView struct {
	Workflow        *models.Workflow   `json:"workflow"`
	Signatories     []models.Signatory `json:"signatories"`
	ProgressPercent float64            `json:"progress_percent"`
}

// GetWorkflowStatus returns the workflow, its signatories ordered by
// position and the completion percentage.
func (w *WorkflowOrchestrator) GetWorkflowStatus(ctx context.Context, workflowID string) (*WorkflowStatusView, error) {
	wf, err := w.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	var sigs []models.Signatory
	if err := w.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("position").
		Find(&sigs).Error; err != nil {
		return nil, fmt.Errorf("listing signatories: %w", err)
	}
	progress := 0.0
	if wf.TotalSignatories > 0 {
		progress = float64(wf.SignedCount) / float64(wf.TotalSignatories) * 100
	}
	return &WorkflowStatusView{Workflow: wf, Signatories: sigs, ProgressPercent: progress}, nil
}

// onSignatureCompleted is the engine's completion hook. It marks the
// linked signatory signed and advances the workflow aggregate.
func (w *WorkflowOrchestrator) onSignatureCompleted(ctx context.Context, req *models.SignatureRequest) {
	var sig models.Signatory
	err := w.db.WithContext(ctx).First(&sig, "signature_request_id = ?", req.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Standalone signature outside any workflow.
		return
	}
	if err != nil {
		w.logger.Error("loading signatory for completed signature",
			zap.String("signature_id", req.ID), zap.Error(err))
		return
	}

	now := w.now()
	res := w.db.WithContext(ctx).Model(&models.Signatory{}).
		Where("id = ? AND status <> ?", sig.ID, models.SignatorySigned).
		Updates(map[string]any{"status": models.SignatorySigned, "signed_at": &now})
	if res.Error != nil {
		w.logger.Error("marking signatory signed", zap.String("signatory_id", sig.ID), zap.Error(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		return
	}

	// The guard keeps signed_count from ever passing total_signatories,
	// even with concurrent completions.
	inc := w.db.WithContext(ctx).Model(&models.Workflow{}).
		Where("id = ? AND signed_count < total_signatories", sig.WorkflowID).
		Update("signed_count", gorm.Expr("signed_count + 1"))
	if inc.Error != nil {
		w.logger.Error("incrementing signed count", zap.String("workflow_id", sig.WorkflowID), zap.Error(inc.Error))
		return
	}

	w.maybeComplete(ctx, sig.WorkflowID)
}

// maybeComplete transitions an active workflow to completed once every
// signatory has signed. Safe to call repeatedly.
func (w *WorkflowOrchestrator) maybeComplete(ctx context.Context, workflowID string) {
	now := w.now()
	res := w.db.WithContext(ctx).Model(&models.Workflow{}).
		Where("id = ? AND status = ? AND total_signatories > 0 AND signed_count = total_signatories",
			workflowID, models.WorkflowActive).
		Updates(map[string]any{"status": models.WorkflowCompleted, "completed_at": &now})
	if res.Error != nil || res.RowsAffected == 0 {
		return
	}

	w.audit.Record(ctx, Event{
		WorkflowID: workflowID,
		EventType:  models.EventWorkflowComplete,
	})
	w.logger.Info("workflow completed", zap.String("workflow_id", workflowID))

	wf, err := w.loadWorkflow(ctx, workflowID)
	if err != nil {
		return
	}
	var doc models.Document
	if err := w.db.WithContext(ctx).First(&doc, "id = ?", wf.DocumentID).Error; err != nil {
		return
	}
	var sigs []models.Signatory
	if err := w.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Find(&sigs).Error; err != nil {
		return
	}
	for _, s := range sigs {
		if s.Email == "" {
			continue
		}
		go func(to notify.Recipient, docName string) {
			if err := w.notifier.SendCompletion(to, docName, "all parties", ""); err != nil {
				w.logger.Warn("completion notice delivery failed", zap.Error(err))
			}
		}(notify.Recipient{Name: s.Name, Email: s.Email}, doc.Name)
	}
}

// checkOrder enforces sequential signing: everyone at a smaller position
// must already be signed.
func (w *WorkflowOrchestrator) checkOrder(ctx context.Context, wf *models.Workflow, sig *models.Signatory) error {
	if wf.SigningOrder != models.OrderSequential {
		return nil
	}
	var blocking int64
	err := w.db.WithContext(ctx).Model(&models.Signatory{}).
		Where("workflow_id = ? AND position < ? AND status <> ?",
			wf.ID, sig.Position, models.SignatorySigned).
		Count(&blocking).Error
	if err != nil {
		return fmt.Errorf("checking signing order: %w", err)
	}
	if blocking > 0 {
		return newError(KindOutOfOrder,
			fmt.Sprintf("%d earlier signatories have not signed yet", blocking))
	}
	return nil
}

func (w *WorkflowOrchestrator) signingLink(workflowID, signatoryID string) string {
	base := strings.TrimRight(w.cfg.SigningBaseURL, "/")
	return fmt.Sprintf("%s/sign/%s/%s", base, workflowID, signatoryID)
}

func (w *WorkflowOrchestrator) loadWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	var wf models.Workflow
	err := w.db.WithContext(ctx).First(&wf, "id = ?", workflowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "workflow not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading workflow: %w", err)
	}
	return &wf, nil
}

func (w *WorkflowOrchestrator) loadSignatory(ctx context.Context, workflowID, signatoryID string) (*models.Signatory, error) {
	var sig models.Signatory
	err := w.db.WithContext(ctx).First(&sig, "id = ? AND workflow_id = ?", signatoryID, workflowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "signatory not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading signatory: %w", err)
	}
	return &sig, nil
}
