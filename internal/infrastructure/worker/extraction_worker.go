package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/engine"
	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// Recorder persists a finished extraction. Satisfied by the engine.
type Recorder interface {
	RecordExtraction(ctx context.Context, job engine.ExtractionJob, md *entity.ExtractedMetadata) error
}

// ExtractionWorkerConfig holds configuration for the extraction worker
type ExtractionWorkerConfig struct {
	QueueSize      int
	Concurrency    int
	ProcessTimeout time.Duration
}

// DefaultExtractionWorkerConfig returns default configuration
func DefaultExtractionWorkerConfig() ExtractionWorkerConfig {
	return ExtractionWorkerConfig{
		QueueSize:      64,
		Concurrency:    2,
		ProcessTimeout: 120 * time.Second,
	}
}

// ExtractionWorker runs proforma metadata extraction in the background.
// Submission must never wait on the AI backend, so jobs go through a
// buffered queue; when the queue is full the job is dropped with a
// warning, which leaves the request without metadata rather than
// blocking the workflow.
type ExtractionWorker struct {
	config    ExtractionWorkerConfig
	extractor port.Extractor
	recorder  Recorder
	logger    *zap.Logger

	queue chan engine.ExtractionJob

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	wg        sync.WaitGroup
}

// NewExtractionWorker creates a new extraction worker
func NewExtractionWorker(config ExtractionWorkerConfig, extractor port.Extractor, logger *zap.Logger) *ExtractionWorker {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultExtractionWorkerConfig().QueueSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultExtractionWorkerConfig().Concurrency
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = DefaultExtractionWorkerConfig().ProcessTimeout
	}
	return &ExtractionWorker{
		config:    config,
		extractor: extractor,
		logger:    logger,
		queue:     make(chan engine.ExtractionJob, config.QueueSize),
	}
}

// SetRecorder wires the result sink. The engine holds the worker as its
// scheduler and the worker holds the engine as its recorder, so one of
// the two references is set after construction.
func (w *ExtractionWorker) SetRecorder(r Recorder) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recorder = r
}

// Schedule implements engine.ExtractionScheduler. Non-blocking.
func (w *ExtractionWorker) Schedule(job engine.ExtractionJob) {
	select {
	case w.queue <- job:
	default:
		w.logger.Warn("Extraction queue full, dropping job",
			zap.String("request_id", job.RequestID.String()),
			zap.String("attachment_id", job.AttachmentID.String()))
	}
}

// Start launches the worker goroutines
func (w *ExtractionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("extraction worker already running")
	}
	if w.recorder == nil {
		w.mu.Unlock()
		return fmt.Errorf("extraction worker has no recorder")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("ExtractionWorker started",
		zap.Int("concurrency", w.config.Concurrency),
		zap.Int("queue_size", w.config.QueueSize))

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.run()
	}
	return nil
}

// Stop gracefully terminates the worker, waiting for in-flight jobs
func (w *ExtractionWorker) Stop() error {
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
	w.wg.Wait()

	w.logger.Info("ExtractionWorker stopped")
	return nil
}

// Name returns the worker name for identification
func (w *ExtractionWorker) Name() string {
	return "ExtractionWorker"
}

func (w *ExtractionWorker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case job := <-w.queue:
			w.process(job)
		}
	}
}

// process extracts one document and records the result. The extractor
// reports its own failures through the metadata status, so the only
// error path here is persistence.
func (w *ExtractionWorker) process(job engine.ExtractionJob) {
	ctx, cancel := context.WithTimeout(w.ctx, w.config.ProcessTimeout)
	defer cancel()

	w.logger.Info("Processing extraction job",
		zap.String("request_id", job.RequestID.String()),
		zap.String("attachment_id", job.AttachmentID.String()))

	md := w.extractor.Extract(ctx, job.Handle)

	if err := w.recorder.RecordExtraction(ctx, job, md); err != nil {
		w.logger.Error("Failed to record extraction result",
			zap.String("request_id", job.RequestID.String()),
			zap.Error(err))
	}
}

// Verify interface compliance
var _ engine.ExtractionScheduler = (*ExtractionWorker)(nil)
var _ Worker = (*ExtractionWorker)(nil)
