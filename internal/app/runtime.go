// Package app は設定からジョブ基盤一式を組み立てます。
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourusername/pdf2img/internal/config"
	"github.com/yourusername/pdf2img/internal/jobs"
	"github.com/yourusername/pdf2img/internal/pdf"
	"github.com/yourusername/pdf2img/internal/storage"
)

// Runtime は組み立て済みのジョブ基盤です。
type Runtime struct {
	Manager  *jobs.Manager
	Uploader *pdf.Uploader
	Store    *storage.Local

	closers []func() error
}

// Build は設定に従って台帳、ディスパッチャ、変換器を選び Manager を作ります。
func Build(cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{}

	converter, err := pdf.NewConverter(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := rt.buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	var dispatcher jobs.Dispatcher
	switch cfg.JobDispatch {
	case "asynq":
		d, err := jobs.NewAsynqDispatcher(cfg.QueueRedisURL, cfg.WorkerConcurrency, logger)
		if err != nil {
			_ = rt.closeAll()
			return nil, err
		}
		dispatcher = d
	default:
		dispatcher = jobs.NewLocalDispatcher(cfg.WorkerConcurrency)
	}

	rt.Store = storage.NewLocal(cfg.OutputDir)
	rt.Uploader = pdf.NewUploader(cfg.UploadDir, cfg.MaxFileSize, cfg.MaxPages)

	manager, err := jobs.NewManager(jobs.ManagerOptions{
		Registry:    registry,
		Store:       rt.Store,
		Converter:   converter,
		Defaults:    pdf.DefaultOptions(cfg),
		Dispatcher:  dispatcher,
		Concurrency: cfg.WorkerConcurrency,
		Sweeper: jobs.SweeperOptions{
			Retention:  cfg.RetentionAge(),
			Interval:   cfg.SweepInterval(),
			SkipActive: cfg.SweepSkipActive,
		},
		Logger: logger,
	})
	if err != nil {
		_ = rt.closeAll()
		return nil, err
	}
	rt.Manager = manager

	logger.Info().
		Str("store", cfg.JobStore).
		Str("dispatch", cfg.JobDispatch).
		Str("converter", cfg.Converter).
		Str("output_dir", cfg.OutputDir).
		Msg("job runtime configured")
	return rt, nil
}

func (rt *Runtime) buildRegistry(cfg *config.Config) (jobs.Registry, error) {
	if cfg.JobStore != "redis" {
		return jobs.NewMemoryRegistry(), nil
	}
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	rt.closers = append(rt.closers, client.Close)

	// 掃除が止まっていてもキーが残り続けないよう、保持期間に1周期分の余裕を足して期限を付ける
	ttl := cfg.RetentionAge() + cfg.SweepInterval()
	return jobs.NewRedisRegistry(client, ttl), nil
}

// Close は Manager を止め、外部接続を閉じます。
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Manager != nil {
		if err := rt.Manager.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (rt *Runtime) closeAll() error {
	var errs []error
	for _, c := range rt.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
