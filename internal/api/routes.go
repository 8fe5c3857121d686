package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/internal/api/handlers"
	"github.com/lexsign/internal/api/middleware"
	"github.com/lexsign/internal/services"
	"github.com/lexsign/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Router struct {
	engine            *gin.Engine
	logger            *zap.Logger
	metrics           *metrics.MetricsCollector
	authHandler       *handlers.AuthHandler
	docHandler        *handlers.DocumentHandler
	signatureHandler  *handlers.SignatureHandler
	workflowHandler   *handlers.WorkflowHandler
	verifyHandler     *handlers.VerificationHandler
	auditHandler      *handlers.AuditHandler
	authMiddleware    *middleware.AuthMiddleware
	reqMiddleware     *middleware.RequestMiddleware
	metricsMiddleware *middleware.MetricsMiddleware
}

func NewRouter(
	logger *zap.Logger,
	collector *metrics.MetricsCollector,
	authService *services.AuthService,
	docService *services.DocumentService,
	engine *services.SignatureEngine,
	orchestrator *services.WorkflowOrchestrator,
	certService *services.CertificateService,
	audit *services.AuditLog,
	db *gorm.DB,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	ginEngine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	authMiddleware := middleware.NewAuthMiddleware(authService, db)
	metricsMiddleware := middleware.NewMetricsMiddleware(collector)

	ginEngine.Use(reqMiddleware.ProcessRequest())
	ginEngine.Use(reqMiddleware.RecoverPanic())
	ginEngine.Use(metricsMiddleware.Collect())

	return &Router{
		engine:            ginEngine,
		logger:            logger,
		metrics:           collector,
		authHandler:       handlers.NewAuthHandler(authService, logger),
		docHandler:        handlers.NewDocumentHandler(docService, logger),
		signatureHandler:  handlers.NewSignatureHandler(engine, audit, logger),
		workflowHandler:   handlers.NewWorkflowHandler(orchestrator, audit, logger),
		verifyHandler:     handlers.NewVerificationHandler(certService, logger),
		auditHandler:      handlers.NewAuditHandler(audit, logger),
		authMiddleware:    authMiddleware,
		reqMiddleware:     reqMiddleware,
		metricsMiddleware: metricsMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "lexsign"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.GetCounters(),
			"latencies": r.metrics.GetLatencies(),
			"sizes":     r.metrics.GetSizes(),
		})
	})

	api := r.engine.Group("/api")

	api.POST("/auth/register", r.authHandler.Register)
	api.POST("/auth/login", r.authHandler.Login)
	api.POST("/auth/logout", r.authHandler.Logout)

	// Public verification: anyone holding a document and certificate can
	// check it without an account.
	api.POST("/verify-signature", r.verifyHandler.VerifyDocument)
	api.GET("/certificates/:id", r.verifyHandler.GetCertificate)
	api.GET("/certificates/:id/download", r.verifyHandler.DownloadCertificate)

	authorized := api.Group("/")
	authorized.Use(r.authMiddleware.RequireAuth())
	{
		authorized.POST("/documents", r.docHandler.Upload)
		authorized.GET("/documents", r.docHandler.List)
		authorized.GET("/documents/:id", r.docHandler.Get)
		authorized.GET("/documents/:id/download", r.docHandler.Download)
		authorized.GET("/documents/:id/preview", r.docHandler.Preview)
		authorized.DELETE("/documents/:id", r.docHandler.Delete)

		authorized.POST("/signatures/initiate", r.signatureHandler.Initiate)
		authorized.POST("/signatures/bulk-initiate", r.signatureHandler.BulkInitiate)
		authorized.POST("/signatures/:id/verify-otp",
			r.reqMiddleware.OTPAttemptMiddleware(), r.signatureHandler.VerifyOTP)
		authorized.POST("/signatures/:id/apply", r.signatureHandler.ApplySignature)
		authorized.GET("/signatures/:id", r.signatureHandler.GetStatus)
		authorized.GET("/signatures/:id/audit", r.signatureHandler.AuditTrail)

		authorized.POST("/workflows", r.workflowHandler.Create)
		authorized.GET("/workflows/:id", r.workflowHandler.Status)
		authorized.POST("/workflows/:id/signatories", r.workflowHandler.AddSignatory)
		authorized.DELETE("/workflows/:id/signatories/:signatoryId", r.workflowHandler.RemoveSignatory)
		authorized.POST("/workflows/:id/signatories/:signatoryId/dispatch", r.workflowHandler.Dispatch)
		authorized.POST("/workflows/:id/signatories/:signatoryId/viewed", r.workflowHandler.MarkViewed)
		authorized.POST("/workflows/:id/signatories/:signatoryId/decline", r.workflowHandler.Decline)
		authorized.POST("/workflows/:id/signatories/:signatoryId/sign", r.workflowHandler.BeginSigning)
		authorized.POST("/workflows/:id/reminders", r.workflowHandler.SendReminders)
		authorized.POST("/workflows/:id/cancel", r.workflowHandler.Cancel)
		authorized.GET("/workflows/:id/audit", r.workflowHandler.AuditTrail)

		authorized.GET("/audit", r.auditHandler.Recent)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
