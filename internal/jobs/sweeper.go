package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/yourusername/pdf2img/internal/storage"
)

// SweepReport は1回の掃除結果です。
type SweepReport struct {
	Cutoff  time.Time
	Evicted []string
	Skipped []string
	Orphans []string
	Errors  []error
}

// Sweeper は保持期間を過ぎたジョブの成果物と台帳レコードを削除します。
type Sweeper struct {
	registry   Registry
	store      *storage.Local
	retention  time.Duration
	interval   time.Duration
	skipActive bool
	logger     zerolog.Logger
	now        func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// SweeperOptions は Sweeper の設定です。
type SweeperOptions struct {
	Retention  time.Duration
	Interval   time.Duration
	SkipActive bool
}

// NewSweeper は Sweeper を作成します。
func NewSweeper(registry Registry, store *storage.Local, opts SweeperOptions, logger zerolog.Logger) *Sweeper {
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	return &Sweeper{
		registry:   registry,
		store:      store,
		retention:  opts.Retention,
		interval:   opts.Interval,
		skipActive: opts.SkipActive,
		logger:     logger,
		now:        time.Now,
	}
}

// Sweep は createdAt が now - retention より前のジョブを削除します。
// ファイルを先に消し、成功したものだけ台帳から外します。
// 台帳にレコードが無く、最終更新が cutoff より前の出力ディレクトリも削除します。
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	report := &SweepReport{Cutoff: now.Add(-s.retention)}

	list, err := s.registry.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list jobs: %w", err)
	}

	known := make(map[string]struct{}, len(list))
	for _, job := range list {
		known[job.ID] = struct{}{}
		if !job.CreatedAt.Before(report.Cutoff) {
			continue
		}
		if s.skipActive && !job.Status.IsTerminal() {
			report.Skipped = append(report.Skipped, job.ID)
			continue
		}

		dir := job.OutputDir
		if dir == "" {
			dir = s.store.JobDir("", job.ID)
		}
		if err := s.store.Remove(dir); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		if err := s.registry.Delete(ctx, job.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("failed to delete job %s: %w", job.ID, err))
			continue
		}
		report.Evicted = append(report.Evicted, job.ID)
	}

	s.sweepOrphans(known, report)
	return report, nil
}

// sweepOrphans はレコードの期限切れなどで台帳から消えたジョブのディレクトリを削除します。
func (s *Sweeper) sweepOrphans(known map[string]struct{}, report *SweepReport) {
	dirs, err := s.store.JobDirs()
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	for _, dir := range dirs {
		if _, ok := known[dir.Name]; ok {
			continue
		}
		if !dir.ModTime.Before(report.Cutoff) {
			continue
		}
		if err := s.store.Remove(dir.Path); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Orphans = append(report.Orphans, dir.Name)
	}
}

// Start は interval ごとに Sweep を実行します。
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+s.interval.String(), func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("retention", s.retention).
		Bool("skip_active", s.skipActive).
		Msg("retention sweeper started")
	return nil
}

// Stop はスケジュールを止め、実行中の Sweep が終わるまで待ちます。
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (s *Sweeper) runOnce(ctx context.Context) {
	report, err := s.Sweep(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
		return
	}
	for _, sweepErr := range report.Errors {
		s.logger.Warn().Err(sweepErr).Msg("sweep could not evict job")
	}
	if len(report.Evicted) > 0 || len(report.Skipped) > 0 || len(report.Orphans) > 0 {
		s.logger.Info().
			Int("evicted", len(report.Evicted)).
			Int("skipped", len(report.Skipped)).
			Int("orphans", len(report.Orphans)).
			Time("cutoff", report.Cutoff).
			Msg("sweep finished")
	}
}
