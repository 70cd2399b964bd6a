// Package http provides the HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application
// service calls and engine errors to status codes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corehr/payroll-engine/internal/application/service"
	"github.com/corehr/payroll-engine/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config            ServerConfig
	httpServer        *http.Server
	router            *gin.Engine
	runService        service.RunService
	exceptionService  service.ExceptionService
	adjustmentService service.AdjustmentService
	grantService      service.GrantService
	payslipService    service.PayslipService
	logger            Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	runService service.RunService,
	exceptionService service.ExceptionService,
	adjustmentService service.AdjustmentService,
	grantService service.GrantService,
	payslipService service.PayslipService,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:            config,
		router:            gin.New(),
		runService:        runService,
		exceptionService:  exceptionService,
		adjustmentService: adjustmentService,
		grantService:      grantService,
		payslipService:    payslipService,
		logger:            logger,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// actorMiddleware resolves the caller identity from the headers the upstream
// authentication proxy attaches. The engine trusts them; it only checks role
// membership per operation.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := entity.Actor{ID: c.GetHeader("X-User-Id")}
		for _, role := range strings.Split(c.GetHeader("X-User-Roles"), ",") {
			role = strings.TrimSpace(role)
			if role != "" {
				actor.Roles = append(actor.Roles, entity.Role(role))
			}
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.runService, s.exceptionService, s.adjustmentService,
		s.grantService, s.payslipService, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	api.Use(actorMiddleware())
	{
		runs := api.Group("/runs")
		{
			runs.POST("", handlers.StartPayrollInitiation)
			runs.GET("/:runId", handlers.GetPayrollRun)
			runs.DELETE("/:runId", handlers.DeletePayrollRun)
			runs.PUT("/:runId/period", handlers.EditPayrollPeriod)
			runs.POST("/:runId/publish", handlers.PublishDraftForApproval)
			runs.POST("/:runId/manager-approval", handlers.ApproveByPayrollManager)
			runs.POST("/:runId/manager-rejection", handlers.RejectByPayrollManager)
			runs.POST("/:runId/finance-approval", handlers.ApproveByFinanceStaff)
			runs.POST("/:runId/finance-rejection", handlers.RejectByFinanceStaff)
			runs.POST("/:runId/freeze", handlers.FreezePayroll)
			runs.POST("/:runId/unfreeze", handlers.UnfreezePayroll)
			runs.POST("/:runId/paid", handlers.MarkPayrollAsPaid)
			runs.GET("/:runId/approvals", handlers.GetApprovals)
			runs.GET("/:runId/review", handlers.ReviewPayrollDraft)
			runs.GET("/:runId/manager-review", handlers.GetPayrollForManagerReview)
			runs.GET("/:runId/finance-review", handlers.GetPayrollForFinanceReview)
			runs.POST("/:runId/exceptions", handlers.FlagPayrollExceptions)
			runs.GET("/:runId/exceptions", handlers.GetPayrollRunExceptions)
			runs.POST("/:runId/exceptions/resolve", handlers.ResolveException)
			runs.POST("/:runId/adjustments", handlers.CreatePayrollAdjustment)
			runs.GET("/:runId/adjustments", handlers.GetPayrollAdjustments)
			runs.POST("/:runId/payslips", handlers.GeneratePayslips)
			runs.GET("/:runId/payslips", handlers.GetPayslipBatch)
			runs.POST("/:runId/payslips/distribute", handlers.DistributePayslips)
		}

		entities := api.Group("/entities")
		{
			entities.GET("/:entity/pre-run-approvals", handlers.CheckPreRunApprovalsComplete)
			entities.GET("/:entity/suggested-period", handlers.GetSuggestedPayrollPeriod)
		}

		api.POST("/periods/validate", handlers.ValidatePayrollPeriod)

		grants := api.Group("/grants/:kind")
		{
			grants.POST("", handlers.CreateGrant)
			grants.GET("/pending", handlers.GetPendingGrants)
			grants.GET("/:id", handlers.GetGrantByID)
			grants.PUT("/:id", handlers.EditGrant)
			grants.POST("/:id/approval", handlers.ApproveGrant)
			grants.POST("/:id/rejection", handlers.RejectGrant)
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
