package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/redis/go-redis/v9"
)

const redisBatchSize = 256

// RedisAccessLogStore keeps each record as a JSON document under
// <prefix>:rec:<id>, indexed by two sorted sets: by ID and by timestamp.
type RedisAccessLogStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisAccessLogStore(rdb *redis.Client, prefix string) *RedisAccessLogStore {
	return &RedisAccessLogStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisAccessLogStore) seqKey() string { return s.prefix + ":seq" }
func (s *RedisAccessLogStore) byIDKey() string { return s.prefix + ":by_id" }
func (s *RedisAccessLogStore) byTimeKey() string { return s.prefix + ":by_time" }
func (s *RedisAccessLogStore) metaKey() string { return s.prefix + ":meta" }
func (s *RedisAccessLogStore) recKey(id int64) string { return s.prefix + ":rec:" + strconv.FormatInt(id, 10) }
func (s *RedisAccessLogStore) ridKey(rid string) string { return s.prefix + ":rid:" + rid }

func (s *RedisAccessLogStore) Initialize(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	return s.rdb.HSetNX(ctx, s.metaKey(), "schema_version", 1).Err()
}

// Insert claims the request id first so a duplicate is ignored. Any failure
// after the claim releases it, and rec.ID is only set once the write commits.
func (s *RedisAccessLogStore) Insert(ctx context.Context, rec *model.AccessLog) (err error) {
	if rec == nil {
		return nil
	}
	if rec.RequestID != "" {
		fresh, claimErr := s.rdb.SetNX(ctx, s.ridKey(rec.RequestID), 0, 0).Result()
		if claimErr != nil {
			return claimErr
		}
		if !fresh {
			return nil
		}
		defer func() {
			if err != nil {
				s.rdb.Del(context.WithoutCancel(ctx), s.ridKey(rec.RequestID))
			}
		}()
	}

	id, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return err
	}
	stored := *rec
	stored.ID = id
	doc, err := json.Marshal(&stored)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recKey(id), doc, 0)
		if rec.RequestID != "" {
			pipe.Set(ctx, s.ridKey(rec.RequestID), id, 0)
		}
		pipe.ZAdd(ctx, s.byTimeKey(), redis.Z{Score: float64(rec.Timestamp.UnixMilli()), Member: id})
		pipe.ZAdd(ctx, s.byIDKey(), redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// candidateIDs returns IDs in descending order, narrowed by time range when given.
func (s *RedisAccessLogStore) candidateIDs(ctx context.Context, start, end *time.Time) ([]int64, error) {
	var members []string
	var err error
	if start == nil && end == nil {
		members, err = s.rdb.ZRevRange(ctx, s.byIDKey(), 0, -1).Result()
	} else {
		rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
		if start != nil {
			rng.Min = strconv.FormatInt(start.UnixMilli(), 10)
		}
		if end != nil {
			rng.Max = strconv.FormatInt(end.UnixMilli(), 10)
		}
		members, err = s.rdb.ZRangeByScore(ctx, s.byTimeKey(), rng).Result()
	}
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}

// load fetches documents in batches, preserving order and skipping missing keys.
func (s *RedisAccessLogStore) load(ctx context.Context, ids []int64, visit func(*model.AccessLog) error) error {
	for startIdx := 0; startIdx < len(ids); startIdx += redisBatchSize {
		endIdx := min(startIdx+redisBatchSize, len(ids))
		keys := make([]string, 0, endIdx-startIdx)
		for _, id := range ids[startIdx:endIdx] {
			keys = append(keys, s.recKey(id))
		}
		vals, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var l model.AccessLog
			if err := json.Unmarshal([]byte(raw), &l); err != nil {
				return fmt.Errorf("decode access log: %w", err)
			}
			if err := visit(&l); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *RedisAccessLogStore) Query(ctx context.Context, q model.LogQuery) (*model.LogPage, error) {
	unfiltered := q.Method == "" && q.Path == "" && q.StatusCode == nil && q.StartDate == nil && q.EndDate == nil
	if unfiltered {
		return s.queryAll(ctx, q)
	}

	ids, err := s.candidateIDs(ctx, q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	matched := make([]*model.AccessLog, 0)
	err = s.load(ctx, ids, func(l *model.AccessLog) error {
		if matchesQuery(l, q) {
			matched = append(matched, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model.NewLogPage(pageOf(matched, q), int64(len(matched)), q), nil
}

func (s *RedisAccessLogStore) queryAll(ctx context.Context, q model.LogQuery) (*model.LogPage, error) {
	total, err := s.rdb.ZCard(ctx, s.byIDKey()).Result()
	if err != nil {
		return nil, err
	}
	logs := make([]*model.AccessLog, 0)
	if q.PageSize > 0 && total > int64(q.Offset()) {
		first := int64(q.Offset())
		members, err := s.rdb.ZRevRange(ctx, s.byIDKey(), first, first+int64(q.PageSize)-1).Result()
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			if id, err := strconv.ParseInt(m, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		err = s.load(ctx, ids, func(l *model.AccessLog) error {
			logs = append(logs, l)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return model.NewLogPage(logs, total, q), nil
}

func (s *RedisAccessLogStore) GetByID(ctx context.Context, id int64) (*model.AccessLog, error) {
	raw, err := s.rdb.Get(ctx, s.recKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var l model.AccessLog
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode access log: %w", err)
	}
	return &l, nil
}

func (s *RedisAccessLogStore) GetStatistics(ctx context.Context, start, end *time.Time) (*model.LogStatistics, error) {
	ids, err := s.candidateIDs(ctx, start, end)
	if err != nil {
		return nil, err
	}
	acc := newStatsAccumulator()
	err = s.load(ctx, ids, func(l *model.AccessLog) error {
		if inRange(l.Timestamp, start, end) {
			acc.add(l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc.result(), nil
}

func (s *RedisAccessLogStore) PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	maxID, err := s.rdb.Get(ctx, s.seqKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	members, err := s.rdb.ZRangeByScore(ctx, s.byTimeKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil && id <= maxID {
			ids = append(ids, id)
		}
	}

	var removed int64
	for startIdx := 0; startIdx < len(ids); startIdx += redisBatchSize {
		batch := ids[startIdx:min(startIdx+redisBatchSize, len(ids))]
		doomed := make([]*model.AccessLog, 0, len(batch))
		if err := s.load(ctx, batch, func(l *model.AccessLog) error {
			doomed = append(doomed, l)
			return nil
		}); err != nil {
			return removed, err
		}

		var dels []*redis.IntCmd
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, l := range doomed {
				dels = append(dels, pipe.Del(ctx, s.recKey(l.ID)))
				if l.RequestID != "" {
					pipe.Del(ctx, s.ridKey(l.RequestID))
				}
			}
			for _, id := range batch {
				pipe.ZRem(ctx, s.byTimeKey(), id)
				pipe.ZRem(ctx, s.byIDKey(), id)
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		for _, d := range dels {
			removed += d.Val()
		}
	}
	return removed, nil
}
