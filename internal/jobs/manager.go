// Package jobs は変換ジョブの台帳、状態遷移、実行、保持期間の管理を提供します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/yourusername/pdf2img/internal/pdf"
	"github.com/yourusername/pdf2img/internal/storage"
)

// Manager は変換ジョブの投入から終了状態までを管理します。
type Manager struct {
	registry   Registry
	store      *storage.Local
	converter  pdf.Converter
	defaults   pdf.Options
	dispatcher Dispatcher
	slots      *semaphore.Weighted
	sweeper    *Sweeper
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// ManagerOptions は Manager の依存と設定です。
type ManagerOptions struct {
	Registry   Registry
	Store      *storage.Local
	Converter  pdf.Converter
	Defaults   pdf.Options
	Dispatcher Dispatcher
	// Concurrency は同期・非同期を合わせた同時変換数の上限です。0 以下なら 4。
	Concurrency int
	Sweeper     SweeperOptions
	Logger      zerolog.Logger
}

// NewManager は Manager を初期化します。Dispatcher を省略した場合は LocalDispatcher を使います。
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry is nil")
	}
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Converter == nil {
		return nil, errors.New("converter is nil")
	}
	if opts.Defaults.OutputRoot == "" {
		opts.Defaults.OutputRoot = opts.Store.Root()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = NewLocalDispatcher(concurrency)
	}

	return &Manager{
		registry:   opts.Registry,
		store:      opts.Store,
		converter:  opts.Converter,
		defaults:   opts.Defaults,
		dispatcher: dispatcher,
		slots:      semaphore.NewWeighted(int64(concurrency)),
		sweeper:    NewSweeper(opts.Registry, opts.Store, opts.Sweeper, opts.Logger),
		logger:     opts.Logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Start はディスパッチャと定期掃除を起動します。
func (m *Manager) Start(ctx context.Context) error {
	if err := m.store.EnsureDir(m.defaults.OutputRoot); err != nil {
		return err
	}
	if err := m.dispatcher.Start(m.handleTask); err != nil {
		return err
	}
	return m.sweeper.Start(ctx)
}

// Shutdown は掃除を止め、実行中のジョブが終わるまで待ちます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.sweeper.Stop()
	return m.dispatcher.Shutdown(ctx)
}

// Sweeper は保持期間の掃除を返します。
func (m *Manager) Sweeper() *Sweeper {
	return m.sweeper
}

// Convert はジョブを登録して同期的に変換し、結果を返します。
// 変換枠が空くまで待ってから登録します。待機中に ctx が終わった場合はそのエラーを返し、ジョブは作りません。
// それ以外で返るエラーは投入内容そのものの誤りだけで、変換の失敗は Outcome で表します。
func (m *Manager) Convert(ctx context.Context, sub Submission) (*Outcome, error) {
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.slots.Release(1)

	job, err := m.register(ctx, sub)
	if err != nil {
		return nil, err
	}
	return m.run(context.WithoutCancel(ctx), job.ID, sub.SourcePath, sub.Overrides), nil
}

// Submit はジョブを登録してバックグラウンドで変換し、ジョブIDをすぐに返します。
func (m *Manager) Submit(ctx context.Context, sub Submission) (string, error) {
	job, err := m.register(ctx, sub)
	if err != nil {
		return "", err
	}

	task := Task{
		JobID:      job.ID,
		SourcePath: sub.SourcePath,
		Overrides:  sub.Overrides,
	}
	if err := m.dispatcher.Dispatch(ctx, task); err != nil {
		if delErr := m.registry.Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			err = fmt.Errorf("%w (cleanup failed: %v)", err, delErr)
		}
		return "", err
	}
	return job.ID, nil
}

// GetJobStatus はジョブの現在状態を返します。
func (m *Manager) GetJobStatus(ctx context.Context, jobID string) (*Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, jobNotFound(jobID)
	}
	return m.registry.Get(ctx, jobID)
}

// GetAllJobs は全ジョブを返します。
func (m *Manager) GetAllJobs(ctx context.Context) ([]*Job, error) {
	return m.registry.List(ctx)
}

// GetImageFile は完了済みジョブに記録された成果物のパスを返します。
// 未完了・失敗ジョブ、記録にないファイル名、ジョブディレクトリ外を指す名前はすべて見つからない扱いです。
func (m *Manager) GetImageFile(ctx context.Context, jobID, filename string) (string, error) {
	job, err := m.GetJobStatus(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted {
		return "", imageNotFound(jobID, filename)
	}

	var match *PageArtifact
	for i := range job.Pages {
		if job.Pages[i].Filename != filename {
			continue
		}
		if match != nil {
			return "", imageNotFound(jobID, filename)
		}
		match = &job.Pages[i]
	}
	if match == nil {
		return "", imageNotFound(jobID, filename)
	}

	path, err := m.store.Resolve(job.OutputDir, filename)
	if err != nil {
		return "", imageNotFound(jobID, filename)
	}
	if !m.store.Exists(path) {
		return "", imageNotFound(jobID, filename)
	}
	return path, nil
}

func (m *Manager) register(ctx context.Context, sub Submission) (*Job, error) {
	if strings.TrimSpace(sub.SourcePath) == "" {
		return nil, newError(CodeInvalidInput, "source file is required", nil)
	}
	info, err := os.Stat(sub.SourcePath)
	if err != nil {
		return nil, newError(CodeInvalidInput, fmt.Sprintf("source file is not readable: %s", sub.SourcePath), err)
	}
	if info.IsDir() {
		return nil, newError(CodeInvalidInput, fmt.Sprintf("source is a directory: %s", sub.SourcePath), nil)
	}

	job := &Job{
		ID:               m.newID(),
		Status:           StatusPending,
		OriginalFilename: sub.OriginalFilename,
		SourcePages:      sub.SourcePages,
		CreatedAt:        m.now().UTC(),
	}
	if err := m.registry.Create(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Info().
		Str("job_id", job.ID).
		Str("filename", sub.OriginalFilename).
		Msg("job registered")
	return job, nil
}

func (m *Manager) handleTask(ctx context.Context, task Task) error {
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire conversion slot for job %s: %w", task.JobID, err)
	}
	defer m.slots.Release(1)

	outcome := m.run(ctx, task.JobID, task.SourcePath, task.Overrides)
	if !outcome.Success && outcome.ErrorCode == CodeJobNotFound {
		return errors.New(outcome.Message)
	}
	return nil
}

// run は登録済みジョブを processing に進め、変換して終了状態まで運びます。
func (m *Manager) run(ctx context.Context, jobID, sourcePath string, overrides pdf.Overrides) *Outcome {
	log := m.logger.With().Str("job_id", jobID).Logger()

	if _, err := m.registry.Update(ctx, jobID, func(j *Job) error {
		return j.transition(StatusProcessing, m.now().UTC())
	}); err != nil {
		log.Error().Err(err).Msg("failed to start job")
		m.removeSource(sourcePath, log)
		return &Outcome{
			JobID:     jobID,
			Success:   false,
			Message:   "Failed to convert PDF",
			ErrorCode: CodeOf(err),
			Error:     err.Error(),
		}
	}

	opts := pdf.ResolveOptions(overrides, m.defaults)
	jobDir := m.store.JobDir(opts.OutputRoot, jobID)

	pages, err := m.convertPages(ctx, jobID, sourcePath, opts, jobDir)
	if err != nil {
		return m.failJob(ctx, jobID, sourcePath, jobDir, err, log)
	}

	// completed が見える時点でマニフェストが揃っているよう、先に書き出す
	completedAt := m.now().UTC()
	m.writeManifest(ctx, jobID, jobDir, completedAt, log)

	job, err := m.registry.Update(ctx, jobID, func(j *Job) error {
		return j.complete(completedAt)
	})
	if err != nil {
		return m.failJob(ctx, jobID, sourcePath, jobDir, err, log)
	}
	m.removeSource(sourcePath, log)

	log.Info().Int("pages", pages).Msg("job completed")
	return &Outcome{
		JobID:      jobID,
		Success:    true,
		Message:    "PDF converted successfully",
		TotalPages: pages,
		Pages:      job.Pages,
	}
}

// convertPages は出力先を作り、変換されたページを1枚ずつ台帳へ反映します。
func (m *Manager) convertPages(ctx context.Context, jobID, sourcePath string, opts pdf.Options, jobDir string) (int, error) {
	if _, err := m.registry.Update(ctx, jobID, func(j *Job) error {
		j.Options = opts
		j.OutputDir = jobDir
		return nil
	}); err != nil {
		return 0, err
	}
	if err := m.store.EnsureDir(jobDir); err != nil {
		return 0, err
	}

	produced := 0
	req := pdf.Request{
		Source:  sourcePath,
		DestDir: jobDir,
		Format:  opts.Format,
		Quality: opts.Quality,
		Density: opts.Density,
	}
	err := m.converter.Convert(ctx, req, func(page pdf.Page) error {
		info, err := m.store.Register(jobDir, page.Path)
		if err != nil {
			return err
		}
		artifact := PageArtifact{
			PageNumber: produced + 1,
			Filename:   info.Name,
			Path:       info.Path,
			Size:       info.Size,
		}
		if _, err := m.registry.Update(ctx, jobID, func(j *Job) error {
			return j.appendPage(artifact)
		}); err != nil {
			return err
		}
		produced++
		return nil
	})
	if err != nil {
		return produced, newError(CodeConversionFailed, err.Error(), err)
	}
	if produced == 0 {
		return 0, newError(CodeNoPagesProduced, "Failed to convert PDF - no pages found", ErrNoPagesProduced)
	}
	return produced, nil
}

// failJob はジョブを failed にし、入力ファイルとジョブディレクトリを削除します。
func (m *Manager) failJob(ctx context.Context, jobID, sourcePath, jobDir string, cause error, log zerolog.Logger) *Outcome {
	code := CodeOf(cause)
	if code == "" {
		code = CodeConversionFailed
	}
	message := cause.Error()

	if _, err := m.registry.Update(ctx, jobID, func(j *Job) error {
		return j.fail(code, message, m.now().UTC())
	}); err != nil {
		log.Error().Err(err).Msg("failed to record job failure")
	}
	m.removeSource(sourcePath, log)
	if err := m.store.Remove(jobDir); err != nil {
		log.Error().Err(err).Str("dir", jobDir).Msg("failed to remove job directory")
	}

	log.Warn().Str("code", code).Str("error", message).Msg("job failed")
	return &Outcome{
		JobID:     jobID,
		Success:   false,
		Message:   "Failed to convert PDF",
		ErrorCode: code,
		Error:     message,
	}
}

func (m *Manager) removeSource(path string, log zerolog.Logger) {
	if err := m.store.RemoveFile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove source file")
	}
}

// writeManifest は変換済みページからマニフェストを書き出します。失敗してもジョブは失敗にしません。
func (m *Manager) writeManifest(ctx context.Context, jobID, jobDir string, completedAt time.Time, log zerolog.Logger) {
	job, err := m.registry.Get(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load job for manifest")
		return
	}
	job.CompletedAt = &completedAt
	if err := pdf.WriteManifest(jobDir, newManifest(job)); err != nil {
		log.Warn().Err(err).Msg("failed to write manifest")
	}
}

func newManifest(job *Job) *pdf.Manifest {
	manifest := &pdf.Manifest{
		JobID:            job.ID,
		OriginalFilename: job.OriginalFilename,
		Format:           job.Options.Format,
		Quality:          job.Options.Quality,
		Density:          job.Options.Density,
		Pages:            make([]pdf.ManifestPage, 0, len(job.Pages)),
		CreatedAt:        job.CreatedAt,
	}
	if job.CompletedAt != nil {
		manifest.CompletedAt = *job.CompletedAt
	}
	for _, p := range job.Pages {
		manifest.Pages = append(manifest.Pages, pdf.ManifestPage{
			PageNumber: p.PageNumber,
			Filename:   p.Filename,
			Size:       p.Size,
		})
	}
	return manifest
}

func imageNotFound(jobID, filename string) *Error {
	return newError(CodeImageNotFound, fmt.Sprintf("image not found: %s/%s", jobID, filename), ErrNotFound)
}
