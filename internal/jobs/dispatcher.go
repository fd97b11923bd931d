package jobs

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/yourusername/pdf2img/internal/pdf"
)

// ErrDispatcherClosed は停止済みのディスパッチャへ投入したときに返ります。
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Task はバックグラウンドで実行する変換1件です。
type Task struct {
	JobID      string        `json:"jobId"`
	SourcePath string        `json:"sourcePath"`
	Overrides  pdf.Overrides `json:"overrides"`
}

// TaskHandler はタスクを実行します。
type TaskHandler func(ctx context.Context, task Task) error

// Dispatcher は変換タスクを非同期に実行します。
type Dispatcher interface {
	Start(handler TaskHandler) error
	Dispatch(ctx context.Context, task Task) error
	Shutdown(ctx context.Context) error
}

// LocalDispatcher は同一プロセスの goroutine でタスクを実行します。
// 同時実行数はセマフォで制限します。
type LocalDispatcher struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	handler TaskHandler
	closed  bool
	wg      sync.WaitGroup
}

// NewLocalDispatcher は LocalDispatcher を作成します。
func NewLocalDispatcher(concurrency int) *LocalDispatcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &LocalDispatcher{
		sem: semaphore.NewWeighted(int64(concurrency)),
	}
}

// Start はハンドラーを登録します。
func (d *LocalDispatcher) Start(handler TaskHandler) error {
	if handler == nil {
		return errors.New("handler is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
	return nil
}

// Dispatch はタスクを goroutine で実行します。呼び出し元のキャンセルは実行中の変換に伝わりません。
func (d *LocalDispatcher) Dispatch(ctx context.Context, task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if d.handler == nil {
		return errors.New("dispatcher not started")
	}

	handler := d.handler
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(runCtx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		_ = handler(runCtx, task)
	}()
	return nil
}

// Shutdown は新規投入を止め、実行中と待機中のタスクが終わるまで待ちます。
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
