package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-intelligence/internal/config"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker builds an asynq server that feeds document tasks to p.
func NewWorker(cfg config.QueueConfig, p Processor) *Worker {
	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				QueueDocuments: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task_type", task.Type()).Msg("Task failed")
			}),
			Logger: zerologAdapter{log.With().Str("component", "asynq").Logger()},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProcessDocument, NewTaskProcessor(p, cfg.MaxRetry).ProcessDocument)

	return &Worker{server: server, mux: mux}
}

// Run blocks until the process receives a termination signal.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// zerologAdapter routes asynq's internal logs through zerolog.
type zerologAdapter struct {
	logger zerolog.Logger
}

func (z zerologAdapter) Debug(args ...interface{}) { z.logger.Debug().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Info(args ...interface{})  { z.logger.Info().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Warn(args ...interface{})  { z.logger.Warn().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Error(args ...interface{}) { z.logger.Error().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Fatal(args ...interface{}) { z.logger.Fatal().Msg(fmt.Sprint(args...)) }
