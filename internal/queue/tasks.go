// Package queue runs document processing as asynq background tasks.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"document-intelligence/internal/config"
	"document-intelligence/internal/models"
)

const (
	TaskProcessDocument = "document:process"
	QueueDocuments      = "documents"

	defaultTaskTimeout = 30 * time.Minute
)

type ProcessPayload struct {
	Metadata models.DocumentMetadata `json:"metadata"`
	FilePath string                  `json:"file_path"`
}

// Processor is the pipeline entry point the handler drives.
type Processor interface {
	ProcessDocument(ctx context.Context, meta models.DocumentMetadata, filePath string) models.ProcessResult
}

func NewProcessTask(meta models.DocumentMetadata, filePath string, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessPayload{Metadata: meta, FilePath: filePath})
	if err != nil {
		return nil, err
	}
	if maxRetry < 0 {
		maxRetry = 0
	}
	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(defaultTaskTimeout),
		asynq.Queue(QueueDocuments),
	), nil
}

func redisOpt(cfg config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

type Client struct {
	client   *asynq.Client
	maxRetry int
}

func NewClient(cfg config.QueueConfig) *Client {
	return &Client{client: asynq.NewClient(redisOpt(cfg)), maxRetry: cfg.MaxRetry}
}

// Enqueue schedules one pipeline run and returns the task id.
func (c *Client) Enqueue(ctx context.Context, meta models.DocumentMetadata, filePath string) (string, error) {
	task, err := NewProcessTask(meta, filePath, c.maxRetry)
	if err != nil {
		return "", fmt.Errorf("failed to build task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue document %s: %w", meta.DocumentID, err)
	}
	log.Info().Str("task_id", info.ID).Str("queue", info.Queue).Str("document_id", meta.DocumentID.String()).Msg("Document enqueued")
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

type TaskProcessor struct {
	processor Processor
	maxRetry  int
}

func NewTaskProcessor(p Processor, maxRetry int) *TaskProcessor {
	return &TaskProcessor{processor: p, maxRetry: maxRetry}
}

// ProcessDocument handles TaskProcessDocument. Each attempt is a full,
// fresh pipeline run. A failed run is returned as an error only when
// retries are configured, so asynq schedules the next attempt.
func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload ProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if payload.FilePath == "" {
		return fmt.Errorf("payload has no file path: %w", asynq.SkipRetry)
	}

	retry, _ := asynq.GetRetryCount(ctx)
	taskID, _ := asynq.GetTaskID(ctx)
	logger := log.With().Str("task_id", taskID).Int("retry", retry).Logger()

	result := p.processor.ProcessDocument(ctx, payload.Metadata, payload.FilePath)
	if result.Status == models.StatusProcessed {
		logger.Info().Int("chunks", result.ChunksCreated).Msg("Task completed")
		return nil
	}

	logger.Warn().Str("message", result.Message).Msg("Task failed")
	if p.maxRetry > 0 {
		return errors.New(result.Message)
	}
	return nil
}
