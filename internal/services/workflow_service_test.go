package services

import (
	"context"
	"testing"
	"time"

	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/esign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoPartyParams(docID string, order models.SigningOrder) CreateWorkflowParams {
	return CreateWorkflowParams{
		DocumentID: docID,
		CreatedBy:  1,
		Signatories: []SignatoryInput{
			{Email: "first@example.com", Name: "First Signer"},
			{Email: "second@example.com", Name: "Second Signer"},
		},
		SigningOrder:    order,
		ReminderEnabled: true,
	}
}

func (env *testEnv) signatories(t *testing.T, workflowID string) []models.Signatory {
	t.Helper()
	view, err := env.orchestrator.GetWorkflowStatus(context.Background(), workflowID)
	require.NoError(t, err)
	return view.Signatories
}

func TestCreateWorkflowAssignsPositions(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "contract.pdf")

	wf, err := env.orchestrator.CreateWorkflow(context.Background(), twoPartyParams(doc.ID, models.OrderSequential))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowActive, wf.Status)
	assert.Equal(t, 2, wf.TotalSignatories)

	sigs := env.signatories(t, wf.ID)
	require.Len(t, sigs, 2)
	assert.Equal(t, 1, sigs[0].Position)
	assert.Equal(t, "first@example.com", sigs[0].Email)
	assert.Equal(t, 2, sigs[1].Position)
	assert.Equal(t, models.SignatoryPending, sigs[0].Status)
}

func TestCreateWorkflowValidation(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "contract.pdf")
	ctx := context.Background()

	_, err := env.orchestrator.CreateWorkflow(ctx, CreateWorkflowParams{DocumentID: doc.ID})
	assert.True(t, IsKind(err, KindInvalidState), "no signatories")

	params := twoPartyParams(doc.ID, models.OrderParallel)
	params.Signatories[1].Email = params.Signatories[0].Email
	_, err = env.orchestrator.CreateWorkflow(ctx, params)
	assert.True(t, IsKind(err, KindInvalidState), "duplicate email")

	_, err = env.orchestrator.CreateWorkflow(ctx, twoPartyParams("missing", models.OrderParallel))
	assert.True(t, IsKind(err, KindNotFound))
}

func TestSequentialDispatchEnforcesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "contract.pdf")
	wf, err := env.orchestrator.CreateWorkflow(ctx, twoPartyParams(doc.ID, models.OrderSequential))
	require.NoError(t, err)
	sigs := env.signatories(t, wf.ID)

	err = env.orchestrator.DispatchRequest(ctx, wf.ID, sigs[1].ID)
	assert.True(t, IsKind(err, KindOutOfOrder))

	require.NoError(t, env.orchestrator.DispatchRequest(ctx, wf.ID, sigs[0].ID))
	assert.Equal(t, models.SignatoryNotified, env.signatories(t, wf.ID)[0].Status)

	// Second stays blocked until the first actually signs.
	_, err = env.orchestrator.BeginSigning(ctx, wf.ID, sigs[1].ID, testAadhaar2, "", "")
	assert.True(t, IsKind(err, KindOutOfOrder))
}

func (env *testEnv) signAsSignatory(t *testing.T, workflowID, signatoryID, aadhaar string) {
	t.Helper()
	ctx := context.Background()
	res, err := env.orchestrator.BeginSigning(ctx, workflowID, signatoryID, aadhaar, "", "")
	require.NoError(t, err)
	_, err = env.engine.VerifyOTP(ctx, res.SignatureID, esign.FixedOTP)
	require.NoError(t, err)
	_, err = env.engine.ApplySignature(ctx, res.SignatureID)
	require.NoError(t, err)
}

func TestWorkflowCompletesWhenAllSign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "contract.pdf")
	wf, err := env.orchestrator.CreateWorkflow(ctx, twoPartyParams(doc.ID, models.OrderParallel))
	require.NoError(t, err)
	sigs := env.signatories(t, wf.ID)

	env.signAsSignatory(t, wf.ID, sigs[0].ID, testAadhaar)

	view, err := env.orchestrator.GetWorkflowStatus(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowActive, view.Workflow.Status)
	assert.Equal(t, 1, view.Workflow.SignedCount)
	assert.InDelta(t, 50, view.ProgressPercent, 0.01)
	assert.Equal(t, models.SignatorySigned, view.Signatories[0].Status)
	require.NotNil(t, view.Signatories[0].SignedAt)

	env.signAsSignatory(t, wf.ID, sigs[1].ID, testAadhaar2)

	view, err = env.orchestrator.GetWorkflowStatus(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, view.Workflow.Status)
	assert.Equal(t, 2, view.Workflow.SignedCount)
	assert.InDelta(t, 100, view.ProgressPercent, 0.01)
	require.NotNil(t, view.Workflow.CompletedAt)

	// signedCount never passes totalSignatories.
	assert.LessOrEqual(t, view.Workflow.SignedCount, view.Workflow.TotalSignatories)
}

func TestSequentialWorkflowFullRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "contract.pdf")
	wf, err := env.orchestrator.CreateWorkflow(ctx, twoPartyParams(doc.ID, models.OrderSequential))
	require.NoError(t, err)
	sigs := env.signatories(t, wf.ID)

	env.signAsSignatory(t, wf.ID, sigs[0].ID, testAadhaar)
	env.signAsSignatory(t, wf.ID, sigs[1].ID, testAadhaar2)

	view, err := env.orchestrator.GetWorkflowStatus(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, view.Workflow.Status)
}

func TestRemoveSignatory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "contract.pdf")
	wf, err := env.orchestrator.CreateWorkflow(ctx, twoPartyParams(doc.ID, models.OrderParallel))
	require.NoError(t, err)
	sigs := env.signatories(t, wf.ID)

	env.signAsSignatory(t, wf.ID, sigs[0].ID, testAadhaar)

	err = env.orchestrator.RemoveSignatory(ctx, wf.ID, sigs[0].ID)
	assert.True(t, IsKind(err, KindAlreadySigned))

	// Removing the remaining unsigned signatory completes the workflow.
	require.NoError(t, env.orchestrator.RemoveSignatory(ctx, wf.ID, sigs[1].ID))
	view, err := env.orchestrator.GetWorkflowStatus(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Workflow.TotalSignatories)
	assert.Equal(t, models.WorkflowCompleted, view.Workflow.Status)
}

func TestAddSignatoryAppendsPosition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "contract.pdf")
	wf, err := env.orchestrator.CreateWorkflow(ctx, twoPartyParams(doc.ID, models.OrderParallel))
	require.NoError(t, err)

	sig, err := env.orchestrator.AddSignatory(ctx, wf.ID, SignatoryInput{
		Email: "third@example.com", Name: "Third Signer",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sig.Position)

	view, err := env.orchestrator.GetWorkflowStatus(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Workflow.TotalSignatories)
}

func TestDeclineAndViewedTracking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "contract.pdf")
	wf, err := env.orchestrator.CreateWorkflow(ctx, twoPartyParams(doc.ID, models.OrderParallel))
	require.NoError(t, err)
	sigs := env.signatories(t, wf.ID)

	require.NoError(t, env.orchestrator.DispatchRequest(ctx, wf.ID, sigs[0].ID))
	require.NoError(t, env.orchestrator.MarkViewed(ctx, wf.ID, sigs[0].ID))
	viewed := env.signatories(t, wf.ID)[0]
	assert.Equal(t, models.SignatoryViewed, viewed.Status)
	require.NotNil(t, viewed.ViewedAt)

	require.NoError(t, env.orchestrator.Decline(ctx, wf.ID, sigs[0].ID, "not my contract"))
	declined := env.signatories(t, wf.ID)[0]
	assert.Equal(t, models.SignatoryDeclined, declined.Status)
	assert.Equal(t, "not my contract", declined.DeclineReason)

	// Settled signatories cannot act again.
	err = env.orchestrator.Decline(ctx, wf.ID, sigs[0].ID, "again")
	assert.True(t, IsKind(err, KindTerminalState))
	err = env.orchestrator.DispatchRequest(ctx, wf.ID, sigs[0].ID)
	assert.True(t, IsKind(err, KindTerminalState))
}

func TestSendRemindersRespectsCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "contract.pdf")
	wf, err := env.orchestrator.CreateWorkflow(ctx, twoPartyParams(doc.ID, models.OrderParallel))
	require.NoError(t, err)
	sigs := env.signatories(t, wf.ID)
	require.NoError(t, env.orchestrator.DispatchRequest(ctx, wf.ID, sigs[0].ID))

	// Pending signatories (never dispatched) are not reminded.
	count, err := env.orchestrator.SendReminders(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = env.orchestrator.SendReminders(ctx, wf.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "within cooldown")

	// Pretend a cooldown period has passed.
	env.orchestrator.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	count, err = env.orchestrator.SendReminders(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCancelWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadDocument(t, "contract.pdf")
	wf, err := env.orchestrator.CreateWorkflow(ctx, twoPartyParams(doc.ID, models.OrderParallel))
	require.NoError(t, err)
	sigs := env.signatories(t, wf.ID)

	require.NoError(t, env.orchestrator.Cancel(ctx, wf.ID, 1))

	view, err := env.orchestrator.GetWorkflowStatus(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCancelled, view.Workflow.Status)
	require.NotNil(t, view.Workflow.CancelledAt)

	err = env.orchestrator.DispatchRequest(ctx, wf.ID, sigs[0].ID)
	assert.True(t, IsKind(err, KindTerminalState))
	err = env.orchestrator.Cancel(ctx, wf.ID, 1)
	assert.True(t, IsKind(err, KindTerminalState))
}

func TestStandaloneSignatureIgnoredByWorkflows(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadDocument(t, "solo.pdf")

	// A signature outside any workflow completes without touching
	// workflow state.
	signed := env.signThrough(t, doc.ID, testAadhaar)
	assert.Equal(t, models.SignatureSigned, signed.Status)

	var count int64
	env.db.Model(&models.Workflow{}).Count(&count)
	assert.Zero(t, count)
}
