package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrQueueFull is returned when no more jobs can be accepted.
	ErrQueueFull = errors.New("report generation queue is full")

	// ErrShuttingDown is returned for jobs submitted after Shutdown.
	ErrShuttingDown = errors.New("job service is shutting down")
)

const defaultQueueSize = 100

// JobService runs report generation in the background for ?async=true
// requests.
type JobService struct {
	db          *gorm.DB
	generator   Generator
	jobQueue    chan uuid.UUID
	workerCount int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// ctx is cancelled when Shutdown gives up waiting
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJobService creates a new job service and starts its workers
func NewJobService(db *gorm.DB, generator Generator, workerCount int) *JobService {
	if workerCount <= 0 {
		workerCount = 2
	}
	ctx, cancel := context.WithCancel(context.Background())

	js := &JobService{
		db:          db,
		generator:   generator,
		jobQueue:    make(chan uuid.UUID, defaultQueueSize),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start workers
	for i := 0; i < js.workerCount; i++ {
		js.wg.Add(1)
		go js.worker(i)
	}

	return js
}

// worker processes jobs from the queue. Once stopChan is closed no new job
// is started; queued jobs stay pending for RecoverJobs.
func (js *JobService) worker(id int) {
	defer js.wg.Done()

	for {
		if js.stopping() {
			logger.Info("Worker stopping", map[string]interface{}{"worker_id": id})
			return
		}

		select {
		case jobID := <-js.jobQueue:
			// select picks at random when both cases are ready
			if js.stopping() {
				logger.Info("Worker stopping, job left pending", map[string]interface{}{
					"worker_id": id,
					"job_id":    jobID.String(),
				})
				return
			}
			logger.Info("Worker processing job", map[string]interface{}{
				"worker_id": id,
				"job_id":    jobID.String(),
			})
			js.ProcessGenerationJob(js.ctx, jobID)

		case <-js.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"worker_id": id})
			return
		}
	}
}

func (js *JobService) stopping() bool {
	select {
	case <-js.stopChan:
		return true
	default:
		return false
	}
}

// CreateGenerationJob stores a pending job and queues it.
func (js *JobService) CreateGenerationJob(ctx context.Context, incidentID uuid.UUID, requestedBy *uuid.UUID) (*models.GenerationJob, error) {
	job := &models.GenerationJob{
		IncidentID:  incidentID,
		Status:      models.JobStatusPending,
		RequestedBy: requestedBy,
	}
	if err := js.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := js.enqueue(job.JobID); err != nil {
		js.updateJobStatus(job.JobID, models.JobStatusFailed, err.Error(), nil)
		return nil, err
	}
	return job, nil
}

func (js *JobService) enqueue(jobID uuid.UUID) error {
	if js.stopping() {
		return ErrShuttingDown
	}
	select {
	case js.jobQueue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// ProcessGenerationJob runs one job to completion and records the outcome.
func (js *JobService) ProcessGenerationJob(ctx context.Context, jobID uuid.UUID) {
	// Update job status to running
	now := time.Now()
	if err := js.db.Model(&models.GenerationJob{}).Where("job_id = ?", jobID).Updates(map[string]interface{}{
		"status":     models.JobStatusRunning,
		"started_at": &now,
	}).Error; err != nil {
		logger.Error("Failed to update job status to running", map[string]interface{}{"job_id": jobID.String(), "error": err.Error()})
		return
	}

	var job models.GenerationJob
	if err := js.db.First(&job, "job_id = ?", jobID).Error; err != nil {
		logger.Error("Failed to get job details", map[string]interface{}{"job_id": jobID.String(), "error": err.Error()})
		js.updateJobStatus(jobID, models.JobStatusFailed, "Failed to get job details", nil)
		return
	}

	log := logger.WithJob(jobID.String(), job.IncidentID.String())
	result, err := js.generator.Generate(ctx, job.IncidentID)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Report generation job failed")
		js.updateJobStatus(jobID, models.JobStatusFailed, err.Error(), nil)
		return
	}

	js.updateJobStatus(jobID, models.JobStatusCompleted, "", map[string]interface{}{
		"report_id": result.ReportID.String(),
		"pdf_path":  result.PDFPath,
		"preview":   result.Preview,
	})
	log.WithField("report_id", result.ReportID.String()).Info("Report generation job completed")
}

// GetJobStatus returns the current state of a job. It returns
// gorm.ErrRecordNotFound for unknown ids.
func (js *JobService) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := js.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// RecoverJobs fails jobs left running by a previous process and queues the
// ones that never started. It returns the number of requeued jobs.
func (js *JobService) RecoverJobs(ctx context.Context) (int, error) {
	now := time.Now()
	if err := js.db.WithContext(ctx).Model(&models.GenerationJob{}).
		Where("status = ?", models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.JobStatusFailed,
			"error":        "interrupted by server restart",
			"completed_at": &now,
		}).Error; err != nil {
		return 0, fmt.Errorf("failed to fail interrupted jobs: %w", err)
	}

	var pending []models.GenerationJob
	if err := js.db.WithContext(ctx).
		Where("status = ?", models.JobStatusPending).
		Order("created_at ASC").
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("failed to load pending jobs: %w", err)
	}

	requeued := 0
	for _, job := range pending {
		if err := js.enqueue(job.JobID); err != nil {
			js.updateJobStatus(job.JobID, models.JobStatusFailed, err.Error(), nil)
			continue
		}
		requeued++
	}
	return requeued, nil
}

// Shutdown stops accepting jobs and waits for running ones. If ctx ends
// first, running generations are cancelled.
func (js *JobService) Shutdown(ctx context.Context) error {
	js.stopOnce.Do(func() { close(js.stopChan) })

	done := make(chan struct{})
	go func() {
		js.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		js.cancel()
		return nil
	case <-ctx.Done():
		js.cancel()
		<-done
		return ctx.Err()
	}
}

func (js *JobService) updateJobStatus(jobID uuid.UUID, status models.JobStatus, errorMsg string, result map[string]interface{}) {
	updates := map[string]interface{}{
		"status": status,
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	if result != nil {
		updates["result"] = datatypes.JSONMap(result)
	}

	if status == models.JobStatusFailed || status == models.JobStatusCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}

	if err := js.db.Model(&models.GenerationJob{}).Where("job_id = ?", jobID).Updates(updates).Error; err != nil {
		logger.Error("Failed to update job status", map[string]interface{}{"job_id": jobID.String(), "error": err.Error()})
	}
}
