package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/application/service"
	"github.com/corehr/payroll-engine/internal/calculation"
	"github.com/corehr/payroll-engine/internal/config"
	httpadapter "github.com/corehr/payroll-engine/internal/interfaces/http"
	"github.com/corehr/payroll-engine/internal/notification"
	"github.com/corehr/payroll-engine/internal/payslip"
	"github.com/corehr/payroll-engine/internal/repository"
	"github.com/corehr/payroll-engine/internal/worker"
	"github.com/corehr/payroll-engine/pkg/database"
	"github.com/corehr/payroll-engine/pkg/utils"
)

func main() {
	// Local overrides from .env, ignored when absent
	_ = gotenv.Load()

	configPath := os.Getenv("PAYROLL_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting payroll engine",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	runRepo := repository.NewRunRepository(db, logger)
	approvalRepo := repository.NewApprovalRepository(db, logger)
	exceptionRepo := repository.NewExceptionRepository(db, logger)
	adjustmentRepo := repository.NewAdjustmentRepository(db, logger)
	grantRepo := repository.NewGrantRepository(db, logger)
	employeeRepo := repository.NewEmployeeRepository(db, logger)
	payslipRepo := repository.NewPayslipRepository(db, logger)

	// Domain collaborators
	calculator := calculation.NewCalculator(employeeRepo, logger)

	renderer, err := payslip.NewExcelRenderer(cfg.Payroll.OutputDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize payslip renderer", zap.Error(err))
	}

	var notifier port.PayslipNotifier
	if cfg.Lark.Enabled {
		notifier = notification.NewLarkNotifier(notification.LarkConfig{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
		}, logger)
	} else {
		notifier = notification.NewLogNotifier(logger)
	}

	// Application services
	serviceLogger := service.NewZapLogger(logger)
	locks := service.NewRunLocks()

	runService := service.NewRunService(runRepo, approvalRepo, exceptionRepo,
		adjustmentRepo, grantRepo, db, locks, service.RunServiceConfig{
			RequireFreshTotals: cfg.Payroll.RequireFreshTotals,
			PeriodWindowMonths: cfg.Payroll.PeriodWindowMonths,
		}, serviceLogger)
	exceptionService := service.NewExceptionService(runRepo, exceptionRepo,
		adjustmentRepo, calculator, db, locks, serviceLogger)
	adjustmentService := service.NewAdjustmentService(runRepo, adjustmentRepo,
		db, locks, serviceLogger)
	grantService := service.NewGrantService(grantRepo, locks, serviceLogger)
	payslipService := service.NewPayslipService(runRepo, payslipRepo,
		employeeRepo, notifier, locks, serviceLogger)

	// Background workers
	workerManager := worker.NewManager(logger)
	workerManager.Register(worker.NewPayslipWorker(worker.PayslipWorkerConfig{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
	}, runRepo, payslipRepo, adjustmentRepo, calculator, renderer, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workerManager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}
	defer workerManager.StopAll()

	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, runService, exceptionService, adjustmentService, grantService,
		payslipService, serviceLogger)

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Payroll engine stopped")
}
