package repository

import (
	"context"
	"errors"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("record already exists")
	ErrUnknownProvider = errors.New("unknown storage provider")
)

// AccessLogStore is implemented identically by every storage backend.
// Every method honours ctx cancellation.
type AccessLogStore interface {
	// Initialize creates the schema and indexes if missing. It is idempotent.
	Initialize(ctx context.Context) error
	// Insert appends rec and sets rec.ID. A record whose RequestID was
	// already stored is ignored without error.
	Insert(ctx context.Context, rec *model.AccessLog) error
	// Query returns matching records by descending ID together with the
	// unpaged match count.
	Query(ctx context.Context, q model.LogQuery) (*model.LogPage, error)
	GetByID(ctx context.Context, id int64) (*model.AccessLog, error)
	GetStatistics(ctx context.Context, start, end *time.Time) (*model.LogStatistics, error)
	// PurgeOlderThan deletes records older than now minus retentionDays and
	// returns the number removed. Records inserted after the call began are kept.
	PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// AccountStore persists operator accounts. Usernames are unique and case-sensitive.
type AccountStore interface {
	Initialize(ctx context.Context) error
	GetByID(ctx context.Context, id int64) (*model.AdminAccount, error)
	GetByUsername(ctx context.Context, username string) (*model.AdminAccount, error)
	// Create stores acc, sets acc.ID and returns ErrDuplicate for a taken username.
	Create(ctx context.Context, acc *model.AdminAccount) error
	UpdatePassword(ctx context.Context, id int64, hash, salt string) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time, ip string) error
	List(ctx context.Context) ([]*model.AdminAccount, error)
}
