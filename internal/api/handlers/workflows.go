package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/services"
	"go.uber.org/zap"
)

type WorkflowHandler struct {
	orchestrator *services.WorkflowOrchestrator
	audit        *services.AuditLog
	logger       *zap.Logger
}

func NewWorkflowHandler(orchestrator *services.WorkflowOrchestrator, audit *services.AuditLog, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		orchestrator: orchestrator,
		audit:        audit,
		logger:       logger.With(zap.String("handler", "workflow")),
	}
}

type createWorkflowRequest struct {
	DocumentID      string                    `json:"document_id" binding:"required"`
	Signatories     []services.SignatoryInput `json:"signatories" binding:"required,min=1"`
	SigningOrder    string                    `json:"signing_order"`
	ReminderEnabled *bool                     `json:"reminder_enabled"`
}

func (h *WorkflowHandler) Create(c *gin.Context) {
	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reminders := true
	if req.ReminderEnabled != nil {
		reminders = *req.ReminderEnabled
	}

	wf, err := h.orchestrator.CreateWorkflow(c.Request.Context(), services.CreateWorkflowParams{
		DocumentID:      req.DocumentID,
		CreatedBy:       c.GetUint("userID"),
		Signatories:     req.Signatories,
		SigningOrder:    models.SigningOrder(req.SigningOrder),
		ReminderEnabled: reminders,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"workflow_id":       wf.ID,
		"document_id":       wf.DocumentID,
		"status":            wf.Status,
		"total_signatories": wf.TotalSignatories,
		"signing_order":     wf.SigningOrder,
	})
}

func (h *WorkflowHandler) Status(c *gin.Context) {
	view, err := h.orchestrator.GetWorkflowStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *WorkflowHandler) AddSignatory(c *gin.Context) {
	var req services.SignatoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := h.orchestrator.AddSignatory(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"signatory_id": sig.ID,
		"email":        sig.Email,
		"position":     sig.Position,
		"status":       sig.Status,
	})
}

func (h *WorkflowHandler) RemoveSignatory(c *gin.Context) {
	err := h.orchestrator.RemoveSignatory(c.Request.Context(), c.Param("id"), c.Param("signatoryId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *WorkflowHandler) Dispatch(c *gin.Context) {
	err := h.orchestrator.DispatchRequest(c.Request.Context(), c.Param("id"), c.Param("signatoryId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "dispatched"})
}

func (h *WorkflowHandler) MarkViewed(c *gin.Context) {
	err := h.orchestrator.MarkViewed(c.Request.Context(), c.Param("id"), c.Param("signatoryId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "viewed"})
}

type declineRequest struct {
	Reason string `json:"reason"`
}

func (h *WorkflowHandler) Decline(c *gin.Context) {
	var req declineRequest
	_ = c.ShouldBindJSON(&req)
	err := h.orchestrator.Decline(c.Request.Context(), c.Param("id"), c.Param("signatoryId"), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}

func (h *WorkflowHandler) SendReminders(c *gin.Context) {
	count, err := h.orchestrator.SendReminders(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminded": count})
}

type beginSigningRequest struct {
	AadhaarNumber string `json:"aadhaar_number" binding:"required"`
}

func (h *WorkflowHandler) BeginSigning(c *gin.Context) {
	var req beginSigningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aadhaar number required"})
		return
	}
	res, err := h.orchestrator.BeginSigning(c.Request.Context(),
		c.Param("id"), c.Param("signatoryId"), req.AadhaarNumber,
		c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *WorkflowHandler) Cancel(c *gin.Context) {
	err := h.orchestrator.Cancel(c.Request.Context(), c.Param("id"), c.GetUint("userID"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *WorkflowHandler) AuditTrail(c *gin.Context) {
	entries, err := h.audit.ByWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
