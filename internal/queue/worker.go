package queue

import (
	"context"
	"errors"
	"fmt"

	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Processor is implemented by the engine. Returning an error retries the
// task up to the client's MaxRetry; wrap with asynq.SkipRetry to drop it.
type Processor interface {
	ProcessMessage(ctx context.Context, payload ProcessMessagePayload) error
	ProcessNurtureFollowUp(ctx context.Context, payload NurtureFollowUpPayload) error
}

// Worker pulls engine jobs off the queue and hands them to the processor.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor Processor
	log       *logger.Logger
}

func NewWorker(cfg config.QueueConfig, processor Processor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetQueueConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		log:       log,
	}

	mux.HandleFunc(TaskProcessMessage, w.handleProcessMessage)
	mux.HandleFunc(TaskNurtureFollowUp, w.handleNurtureFollowUp)

	return w, nil
}

func (w *Worker) handleProcessMessage(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProcessMessagePayload(task)
	if err != nil {
		// Malformed payloads never deserialize better on retry.
		return errors.Join(err, asynq.SkipRetry)
	}

	return w.processor.ProcessMessage(ctx, payload)
}

func (w *Worker) handleNurtureFollowUp(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNurtureFollowUpPayload(task)
	if err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}

	return w.processor.ProcessNurtureFollowUp(ctx, payload)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("queue worker stopped", "error", err)
	}
}
