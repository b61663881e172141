// Package worker runs document processing asynchronously. Uploads enqueue
// a task and return immediately; the worker drives the pipeline while the
// application polls document status.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/bull/study-core/internal/pipeline"
)

// TaskProcessDocument is the asynq task type for document processing.
const TaskProcessDocument = "document:process"

const queueDocuments = "documents"

// processPayload is the task body. The raw bytes stay in the blob store;
// the task carries only the id so retriggering is cheap and idempotent.
type processPayload struct {
	DocumentID string `json:"document_id"`
}

// Enqueuer submits processing tasks.
type Enqueuer struct {
	client *asynq.Client
	logger *zap.Logger
}

// NewEnqueuer connects an enqueuer to Redis. logger may be nil.
func NewEnqueuer(redisAddr string, logger *zap.Logger) *Enqueuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enqueuer{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		logger: logger,
	}
}

// Enqueue schedules processing for a document. Safe to call again for the
// same document after an ERROR outcome.
func (e *Enqueuer) Enqueue(ctx context.Context, documentID string) error {
	payload, err := json.Marshal(processPayload{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("encoding task payload: %w", err)
	}

	task := asynq.NewTask(TaskProcessDocument, payload)
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(queueDocuments),
		asynq.MaxRetry(2),
	)
	if err != nil {
		return fmt.Errorf("enqueueing document %s: %w", documentID, err)
	}
	e.logger.Info("document enqueued",
		zap.String("document_id", documentID),
		zap.String("task_id", info.ID))
	return nil
}

// Close releases the underlying Redis client.
func (e *Enqueuer) Close() error { return e.client.Close() }

// Worker consumes processing tasks and drives the pipeline.
type Worker struct {
	server      *asynq.Server
	coordinator *pipeline.Coordinator
	logger      *zap.Logger
}

// NewWorker builds a worker with concurrency workers pulling from the
// documents queue. logger may be nil.
func NewWorker(redisAddr string, concurrency int, coordinator *pipeline.Coordinator, logger *zap.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queueDocuments: 1},
		},
	)
	return &Worker{server: server, coordinator: coordinator, logger: logger}
}

// Run blocks serving tasks until Shutdown is called.
func (w *Worker) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProcessDocument, w.handleProcess)
	return w.server.Run(mux)
}

// Shutdown stops the worker, waiting for in-flight tasks.
func (w *Worker) Shutdown() { w.server.Shutdown() }

func (w *Worker) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload processPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads will never succeed, skip retries.
		return fmt.Errorf("decoding task payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.coordinator.ProcessStored(ctx, payload.DocumentID); err != nil {
		w.logger.Error("processing task failed",
			zap.String("document_id", payload.DocumentID),
			zap.Error(err))
		// The pipeline already recorded ERROR on the document; asynq
		// retries cover transient infrastructure failures.
		return err
	}
	return nil
}
