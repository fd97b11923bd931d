package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix   = "pdf2img:job:"
	maxUpdateTries = 16
	listBatchSize  = 200
	scanBatchSize  = 500
)

// RedisRegistry はジョブ状態を Redis に保存します。
// 各ジョブは1キーで、更新は WATCH/MULTI による楽観ロックで行います。
type RedisRegistry struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisRegistry は RedisRegistry を作成します。ttl が 0 の場合は期限を付けません。
func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

// Create はジョブを登録します（SETNX）。
func (s *RedisRegistry) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job.ID is required")
	}
	stored := job.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt

	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return newError(CodeDuplicateJobID, fmt.Sprintf("job already exists: %s", job.ID), ErrDuplicateJobID)
	}
	return nil
}

// Get はジョブ情報を取得します。
func (s *RedisRegistry) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, jobNotFound(id)
	}
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, jobNotFound(id)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeJob(data)
}

// Update は WATCH したキーを読み、mutate を適用して書き戻します。競合時は再試行します。
func (s *RedisRegistry) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	key := jobKey(id)
	var updated *Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return jobNotFound(id)
			}
			return err
		}
		current, err := decodeJob(data)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = s.now().UTC()

		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err == nil {
			updated = next
		}
		return err
	}

	for i := 0; i < maxUpdateTries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated.Clone(), nil
	}
	return nil, fmt.Errorf("job %s: too many concurrent updates", id)
}

// List は SCAN で全ジョブを集めます。取得中に削除されたキーは読み飛ばします。
func (s *RedisRegistry) List(ctx context.Context) ([]*Job, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, jobKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	out := make([]*Job, 0, len(keys))
	for start := 0; start < len(keys); start += listBatchSize {
		end := start + listBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		values, err := s.rdb.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget: %w", err)
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			job, err := decodeJob([]byte(raw))
			if err != nil {
				return nil, err
			}
			out = append(out, job)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

// Delete はジョブを削除します。
func (s *RedisRegistry) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, jobKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
