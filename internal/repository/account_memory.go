package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
)

type MemoryAccountStore struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*model.AdminAccount
	byUsername map[string]int64
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:       make(map[int64]*model.AdminAccount),
		byUsername: make(map[string]int64),
	}
}

func (s *MemoryAccountStore) Initialize(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryAccountStore) GetByID(ctx context.Context, id int64) (*model.AdminAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *MemoryAccountStore) GetByUsername(ctx context.Context, username string) (*model.AdminAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	id, ok := s.byUsername[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryAccountStore) Create(ctx context.Context, acc *model.AdminAccount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[acc.Username]; taken {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	s.nextID++
	acc.ID = s.nextID
	acc.CreatedAt, acc.UpdatedAt = now, now
	cp := *acc
	s.byID[acc.ID] = &cp
	s.byUsername[acc.Username] = acc.ID
	return nil
}

func (s *MemoryAccountStore) UpdatePassword(ctx context.Context, id int64, hash, salt string) error {
	return s.update(ctx, id, func(acc *model.AdminAccount) {
		acc.PasswordHash, acc.Salt = hash, salt
	})
}

func (s *MemoryAccountStore) TouchLastLogin(ctx context.Context, id int64, at time.Time, ip string) error {
	return s.update(ctx, id, func(acc *model.AdminAccount) {
		at := at.UTC()
		acc.LastLoginAt, acc.LastLoginIP = &at, ip
	})
}

func (s *MemoryAccountStore) update(ctx context.Context, id int64, fn func(*model.AdminAccount)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(acc)
	acc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryAccountStore) List(ctx context.Context) ([]*model.AdminAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.AdminAccount, 0, len(s.byID))
	for _, acc := range s.byID {
		cp := *acc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
