package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	taskTypeConvert = "pdf:convert"
	queueName       = "pdf"
)

// AsynqDispatcher は Asynq (Redis) のキュー経由でタスクを実行します。
// 変換の失敗はジョブの failed 状態で表すため、Asynq の再試行は使いません。
type AsynqDispatcher struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	logger zerolog.Logger
}

// NewAsynqDispatcher は AsynqDispatcher を初期化します。
func NewAsynqDispatcher(redisURL string, concurrency int, logger zerolog.Logger) (*AsynqDispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	return &AsynqDispatcher{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(
			opt,
			asynq.Config{
				Concurrency: concurrency,
				Queues: map[string]int{
					queueName: 1,
				},
			},
		),
		mux:    asynq.NewServeMux(),
		logger: logger,
	}, nil
}

// Start は Asynq サーバーをバックグラウンドで起動します。
func (d *AsynqDispatcher) Start(handler TaskHandler) error {
	if handler == nil {
		return errors.New("handler is nil")
	}
	d.mux.HandleFunc(taskTypeConvert, func(ctx context.Context, t *asynq.Task) error {
		task, err := decodeTask(t.Payload())
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if err := handler(ctx, task); err != nil {
			d.logger.Error().Err(err).Str("job_id", task.JobID).Msg("convert task failed")
		}
		return nil
	})
	if err := d.server.Start(d.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Dispatch はタスクをキューに投入します。
func (d *AsynqDispatcher) Dispatch(ctx context.Context, task Task) error {
	if task.JobID == "" {
		return fmt.Errorf("task.JobID is required")
	}
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx,
		asynq.NewTask(taskTypeConvert, body),
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
		asynq.TaskID(task.JobID),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", task.JobID, err)
	}
	d.logger.Debug().Str("job_id", task.JobID).Str("task_id", info.ID).Msg("task enqueued")
	return nil
}

// Shutdown はサーバーとクライアントを閉じます。
func (d *AsynqDispatcher) Shutdown(ctx context.Context) error {
	d.server.Shutdown()
	return d.client.Close()
}

func decodeTask(payload []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return Task{}, fmt.Errorf("invalid task payload: %w", err)
	}
	if task.JobID == "" {
		return Task{}, fmt.Errorf("missing jobId in payload")
	}
	if task.SourcePath == "" {
		return Task{}, fmt.Errorf("missing sourcePath in payload")
	}
	return task, nil
}
