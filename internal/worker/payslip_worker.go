package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/corehr/payroll-engine/internal/application/port"
	"github.com/corehr/payroll-engine/internal/domain/entity"
)

// PayslipWorkerConfig holds configuration for the payslip worker
type PayslipWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPayslipWorkerConfig returns default configuration
func DefaultPayslipWorkerConfig() PayslipWorkerConfig {
	return PayslipWorkerConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    10,
	}
}

// PayslipWorker renders pending payslip batches in the background. The
// service submits a batch and returns; this worker picks it up, recalculates
// the pay lines, renders the register, and marks the batch generated or
// failed.
type PayslipWorker struct {
	config PayslipWorkerConfig

	runRepo        port.RunRepository
	payslipRepo    port.PayslipRepository
	adjustmentRepo port.AdjustmentRepository
	calculator     port.Calculator
	renderer       port.PayslipRenderer
	logger         *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
}

// NewPayslipWorker creates a new payslip worker
func NewPayslipWorker(
	config PayslipWorkerConfig,
	runRepo port.RunRepository,
	payslipRepo port.PayslipRepository,
	adjustmentRepo port.AdjustmentRepository,
	calculator port.Calculator,
	renderer port.PayslipRenderer,
	logger *zap.Logger,
) *PayslipWorker {
	return &PayslipWorker{
		config:         config,
		runRepo:        runRepo,
		payslipRepo:    payslipRepo,
		adjustmentRepo: adjustmentRepo,
		calculator:     calculator,
		renderer:       renderer,
		logger:         logger,
	}
}

// Start begins the worker polling loop
func (w *PayslipWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("payslip worker already running")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("PayslipWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop()
	return nil
}

// Stop gracefully terminates the worker
func (w *PayslipWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

// Name returns the worker name for identification
func (w *PayslipWorker) Name() string {
	return "PayslipWorker"
}

func (w *PayslipWorker) pollLoop() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.processPendingBatches(w.ctx); err != nil {
				w.logger.Error("Failed to process pending batches", zap.Error(err))
			}
		}
	}
}

func (w *PayslipWorker) processPendingBatches(ctx context.Context) error {
	batches, err := w.payslipRepo.ListPending(ctx, w.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending batches: %w", err)
	}

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.renderBatch(ctx, batch); err != nil {
			w.logger.Error("Failed to render batch",
				zap.String("batch_id", batch.ID),
				zap.String("run_id", batch.RunID),
				zap.Error(err))
			if markErr := w.payslipRepo.MarkFailed(ctx, batch.ID, err.Error()); markErr != nil {
				w.logger.Error("Failed to mark batch failed",
					zap.String("batch_id", batch.ID),
					zap.Error(markErr))
			}
		}
	}
	return nil
}

func (w *PayslipWorker) renderBatch(ctx context.Context, batch *entity.PayslipBatch) error {
	run, err := w.runRepo.GetByRunID(ctx, batch.RunID)
	if err != nil {
		return err
	}
	adjustments, err := w.adjustmentRepo.ListByRun(ctx, batch.RunID)
	if err != nil {
		return err
	}

	result, err := w.calculator.Calculate(ctx, run, adjustments)
	if err != nil {
		return err
	}

	path, err := w.renderer.Render(ctx, run, batch, result.Lines)
	if err != nil {
		return err
	}

	if err := w.payslipRepo.MarkGenerated(ctx, batch.ID, path, time.Now().UTC()); err != nil {
		return err
	}

	w.logger.Info("Payslip batch rendered",
		zap.String("batch_id", batch.ID),
		zap.String("run_id", batch.RunID),
		zap.String("file_path", path))
	return nil
}
