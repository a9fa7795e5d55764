// Package redisstore keeps render jobs in Redis as JSON values: one key
// per job, one key per submitted request and a set indexing all job ids.
package redisstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
)

const defaultPrefix = "videoproc"

type Store struct {
	rdb    *redis.Client
	prefix string
}

// New returns a store using keys under prefix ("videoproc" when empty).
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Kind() string  { return "redis" }
func (s *Store) Durable() bool { return true }

func (s *Store) jobKey(id string) string     { return s.prefix + ":job:" + id }
func (s *Store) requestKey(id string) string { return s.prefix + ":request:" + id }
func (s *Store) indexKey() string            { return s.prefix + ":jobs" }

var errExists = stderrors.New("job key exists")

// Create writes the record, its request and the index entry in one
// MULTI block guarded by WATCH on the record key.
func (s *Store) Create(ctx context.Context, job *models.RenderJob, req timeline.Request) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "redisstore.create", "encode job")
	}
	reqPayload, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "redisstore.create", "encode request")
	}

	key := s.jobKey(job.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return errExists
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, payload, 0)
			p.Set(ctx, s.requestKey(job.ID), reqPayload, 0)
			p.SAdd(ctx, s.indexKey(), job.ID)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errExists), stderrors.Is(err, redis.TxFailedErr):
		return errors.Conflict("job already exists").WithField("id", job.ID)
	default:
		return errors.Wrap(err, "redisstore.create", "store job")
	}
}

func (s *Store) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	raw, err := s.rdb.Get(ctx, s.jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.NotFound("job", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "redisstore.get", "load job")
	}
	return decode(raw)
}

// Update overwrites an existing record only (SET XX), so a job deleted
// while rendering is not resurrected by a late progress write.
func (s *Store) Update(ctx context.Context, job *models.RenderJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "redisstore.update", "encode job")
	}

	ok, err := s.rdb.SetXX(ctx, s.jobKey(job.ID), payload, 0).Result()
	if err != nil {
		return errors.Wrap(err, "redisstore.update", "store job")
	}
	if !ok {
		return errors.NotFound("job", job.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.jobKey(id), s.requestKey(id))
		p.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redisstore.delete", "delete job")
	}
	return nil
}

func (s *Store) Request(ctx context.Context, id string) (timeline.Request, error) {
	var req timeline.Request
	raw, err := s.rdb.Get(ctx, s.requestKey(id)).Bytes()
	if err == redis.Nil {
		return req, errors.NotFound("request", id)
	}
	if err != nil {
		return req, errors.Wrap(err, "redisstore.request", "load request")
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, errors.Wrap(err, "redisstore.request", "decode request")
	}
	return req, nil
}

func (s *Store) DropRequest(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.requestKey(id)).Err(); err != nil {
		return errors.Wrap(err, "redisstore.drop_request", "delete request")
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*models.RenderJob, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redisstore.list", "read index")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redisstore.list", "load jobs")
	}

	out := make([]*models.RenderJob, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a record; Delete raced with List
			continue
		}
		job, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *Store) Close() error { return nil }

func decode(raw []byte) (*models.RenderJob, error) {
	var job models.RenderJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, errors.Wrap(err, "redisstore.decode", "decode job")
	}
	return &job, nil
}
