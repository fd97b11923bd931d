package jobs

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// Registry はジョブ台帳です。同じIDへの Update は直列化され、異なるIDは互いを待ちません。
type Registry interface {
	// Create は新しいジョブを登録します。既にある場合は ErrDuplicateJobID。
	Create(ctx context.Context, job *Job) error
	// Get は現在の状態のコピーを返します。
	Get(ctx context.Context, id string) (*Job, error)
	// Update は mutate を原子的に適用し、適用後のコピーを返します。
	// mutate がエラーを返した場合は何も変更しません。
	Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error)
	// List は全ジョブのコピーを作成日時順で返します。
	List(ctx context.Context) ([]*Job, error)
	// Delete はジョブを削除します。存在しなくてもエラーにしません。
	Delete(ctx context.Context, id string) error
}

const shardCount = 32

type shard struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// MemoryRegistry はプロセス内メモリにジョブを保持します。ロックはIDのハッシュで分割されています。
type MemoryRegistry struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewMemoryRegistry は MemoryRegistry を作成します。
func NewMemoryRegistry() *MemoryRegistry {
	r := &MemoryRegistry{now: time.Now}
	for i := range r.shards {
		r.shards[i] = &shard{jobs: make(map[string]*Job)}
	}
	return r
}

func (r *MemoryRegistry) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Create はジョブを登録します。
func (r *MemoryRegistry) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job.ID is required")
	}
	s := r.shardFor(job.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return newError(CodeDuplicateJobID, fmt.Sprintf("job already exists: %s", job.ID), ErrDuplicateJobID)
	}
	stored := job.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.jobs[job.ID] = stored
	return nil
}

// Get はジョブのコピーを返します。
func (r *MemoryRegistry) Get(ctx context.Context, id string) (*Job, error) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}
	return job.Clone(), nil
}

// Update はコピーに mutate を適用し、成功した場合だけ差し替えます。
func (r *MemoryRegistry) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = r.now().UTC()
	s.jobs[id] = next
	return next.Clone(), nil
}

// List は全ジョブのコピーを返します。各レコードは更新前か更新後のどちらかです。
func (r *MemoryRegistry) List(ctx context.Context) ([]*Job, error) {
	var out []*Job
	for _, s := range r.shards {
		s.mu.RLock()
		for _, job := range s.jobs {
			out = append(out, job.Clone())
		}
		s.mu.RUnlock()
	}
	sortByCreatedAt(out)
	return out, nil
}

// Delete はジョブを削除します。
func (r *MemoryRegistry) Delete(ctx context.Context, id string) error {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func jobNotFound(id string) *Error {
	return newError(CodeJobNotFound, fmt.Sprintf("job not found: %s", id), ErrNotFound)
}

func sortByCreatedAt(list []*Job) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
