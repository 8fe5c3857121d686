package services

import (
	"context"
	"testing"

	"github.com/lexsign/internal/db"
	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/esign"
	"github.com/lexsign/internal/notify"
	"github.com/lexsign/pkg/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Checksum-valid 12-digit test identities.
const (
	testAadhaar  = "234567890124"
	testAadhaar2 = "999999999999"
	testAadhaar3 = "314159265351"
)

type testEnv struct {
	db           *gorm.DB
	provider     *esign.SimulatedClient
	audit        *AuditLog
	certs        *CertificateService
	engine       *SignatureEngine
	orchestrator *WorkflowOrchestrator
	documents    *DocumentService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory
	// database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.RunMigrations(gdb))
	return gdb
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := newTestDB(t)
	logger := zap.NewNop()
	collector := metrics.NewMetricsCollector()
	provider := esign.NewSimulatedClient(logger)
	notifier := notify.NewEmailNotifier(notify.Config{Enabled: false, AppName: "test"}, logger)

	audit := NewAuditLog(gdb, logger)
	certs := NewCertificateService(gdb, CertificateConfig{
		OutputDir:     t.TempDir(),
		VerifyBaseURL: "http://test.local",
	}, logger)
	engine := NewSignatureEngine(gdb, provider, certs, audit, notifier, EngineConfig{
		SignedDir: t.TempDir(),
	}, logger, collector)
	orchestrator := NewWorkflowOrchestrator(gdb, engine, audit, notifier, WorkflowConfig{
		SigningBaseURL: "http://test.local",
	}, logger)
	documents := NewDocumentService(gdb, logger, collector)

	return &testEnv{
		db:           gdb,
		provider:     provider,
		audit:        audit,
		certs:        certs,
		engine:       engine,
		orchestrator: orchestrator,
		documents:    documents,
	}
}

func (env *testEnv) uploadDocument(t *testing.T, name string) *models.Document {
	t.Helper()
	doc, err := env.documents.Upload(context.Background(), 1, name,
		[]byte("%PDF-1.4 test content for "+name))
	require.NoError(t, err)
	return doc
}

func (env *testEnv) initiate(t *testing.T, docID, aadhaar string) *InitiateResult {
	t.Helper()
	res, err := env.engine.Initiate(context.Background(), InitiateParams{
		DocumentID:    docID,
		AadhaarNumber: aadhaar,
		Signer:        esign.SignerInfo{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
	})
	require.NoError(t, err)
	return res
}

// signThrough drives a request from initiation to signed.
func (env *testEnv) signThrough(t *testing.T, docID, aadhaar string) *SignResult {
	t.Helper()
	ctx := context.Background()
	res := env.initiate(t, docID, aadhaar)
	_, err := env.engine.VerifyOTP(ctx, res.SignatureID, esign.FixedOTP)
	require.NoError(t, err)
	signed, err := env.engine.ApplySignature(ctx, res.SignatureID)
	require.NoError(t, err)
	return signed
}
