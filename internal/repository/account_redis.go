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

// accountDoc is the stored shape; unlike model.AdminAccount it serializes the credentials.
type accountDoc struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	Salt         string     `json:"salt"`
	DisplayName  string     `json:"display_name"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP  string     `json:"last_login_ip,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func docFromModel(a *model.AdminAccount) *accountDoc {
	return &accountDoc{
		ID: a.ID, Username: a.Username, PasswordHash: a.PasswordHash, Salt: a.Salt,
		DisplayName: a.DisplayName, Role: a.Role, IsActive: a.IsActive,
		LastLoginAt: a.LastLoginAt, LastLoginIP: a.LastLoginIP,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (d *accountDoc) toModel() *model.AdminAccount {
	return &model.AdminAccount{
		ID: d.ID, Username: d.Username, PasswordHash: d.PasswordHash, Salt: d.Salt,
		DisplayName: d.DisplayName, Role: d.Role, IsActive: d.IsActive,
		LastLoginAt: d.LastLoginAt, LastLoginIP: d.LastLoginIP,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type RedisAccountStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisAccountStore(rdb *redis.Client, prefix string) *RedisAccountStore {
	return &RedisAccountStore{rdb: rdb, prefix: prefix}
}

func (s *RedisAccountStore) accKey(id int64) string {
	return s.prefix + ":acc:" + strconv.FormatInt(id, 10)
}

func (s *RedisAccountStore) usernameKey(username string) string {
	return s.prefix + ":username:" + username
}

func (s *RedisAccountStore) Initialize(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisAccountStore) GetByID(ctx context.Context, id int64) (*model.AdminAccount, error) {
	raw, err := s.rdb.Get(ctx, s.accKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc accountDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return doc.toModel(), nil
}

func (s *RedisAccountStore) GetByUsername(ctx context.Context, username string) (*model.AdminAccount, error) {
	id, err := s.rdb.Get(ctx, s.usernameKey(username)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *RedisAccountStore) Create(ctx context.Context, acc *model.AdminAccount) error {
	id, err := s.rdb.Incr(ctx, s.prefix+":seq").Result()
	if err != nil {
		return err
	}
	claimed, err := s.rdb.SetNX(ctx, s.usernameKey(acc.Username), id, 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return ErrDuplicate
	}

	now := time.Now().UTC()
	acc.ID = id
	acc.CreatedAt, acc.UpdatedAt = now, now
	if err := s.save(ctx, acc); err != nil {
		s.rdb.Del(ctx, s.usernameKey(acc.Username))
		return err
	}
	return s.rdb.SAdd(ctx, s.prefix+":ids", id).Err()
}

func (s *RedisAccountStore) save(ctx context.Context, acc *model.AdminAccount) error {
	raw, err := json.Marshal(docFromModel(acc))
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.accKey(acc.ID), raw, 0).Err()
}

func (s *RedisAccountStore) update(ctx context.Context, id int64, fn func(*model.AdminAccount)) error {
	acc, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	fn(acc)
	acc.UpdatedAt = time.Now().UTC()
	return s.save(ctx, acc)
}

func (s *RedisAccountStore) UpdatePassword(ctx context.Context, id int64, hash, salt string) error {
	return s.update(ctx, id, func(acc *model.AdminAccount) {
		acc.PasswordHash, acc.Salt = hash, salt
	})
}

func (s *RedisAccountStore) TouchLastLogin(ctx context.Context, id int64, at time.Time, ip string) error {
	return s.update(ctx, id, func(acc *model.AdminAccount) {
		at := at.UTC()
		acc.LastLoginAt, acc.LastLoginIP = &at, ip
	})
}

func (s *RedisAccountStore) List(ctx context.Context) ([]*model.AdminAccount, error) {
	members, err := s.rdb.SMembers(ctx, s.prefix+":ids").Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.AdminAccount, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		acc, err := s.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
