package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type adminAccountRecord struct {
	ID           int64      `gorm:"primaryKey;autoIncrement"`
	Username     string     `gorm:"size:100;not null;uniqueIndex"`
	PasswordHash string     `gorm:"size:255;not null"`
	Salt         string     `gorm:"size:255;not null"`
	DisplayName  string     `gorm:"size:100"`
	Role         string     `gorm:"size:20;not null"`
	IsActive     bool       `gorm:"not null"`
	LastLoginAt  *time.Time
	LastLoginIP  string `gorm:"size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *adminAccountRecord) toModel() *model.AdminAccount {
	return &model.AdminAccount{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Salt:         r.Salt,
		DisplayName:  r.DisplayName,
		Role:         r.Role,
		IsActive:     r.IsActive,
		LastLoginAt:  r.LastLoginAt,
		LastLoginIP:  r.LastLoginIP,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

// mysqlTableOptions keeps username lookups and its unique index
// case-sensitive; the server default collation folds case.
const mysqlTableOptions = "DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin"

// GormAccountStore persists accounts through gorm on top of an existing pool,
// so credentials share the access log database.
type GormAccountStore struct {
	db    *gorm.DB
	table string
}

// OpenGorm wraps an already opened *sql.DB in the gorm dialector for d.
func OpenGorm(conn *sql.DB, d dialect, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch d.name {
	case postgresDialect.name:
		dialector = postgres.New(postgres.Config{Conn: conn})
	case mysqlDialect.name:
		dialector = mysql.New(mysql.Config{Conn: conn})
	case sqliteDialect.name:
		dialector = &sqlite.Dialector{DriverName: d.driver, Conn: conn}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, d.name)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
}

func NewGormAccountStore(db *gorm.DB, table string) *GormAccountStore {
	return &GormAccountStore{db: db, table: table}
}

func (s *GormAccountStore) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *GormAccountStore) Initialize(ctx context.Context) error {
	db := s.scoped(ctx)
	if s.db.Dialector.Name() == mysqlDialect.name {
		db = db.Set("gorm:table_options", mysqlTableOptions)
	}
	if err := db.AutoMigrate(&adminAccountRecord{}); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

func (s *GormAccountStore) first(ctx context.Context, query string, arg any) (*model.AdminAccount, error) {
	var rec adminAccountRecord
	err := s.scoped(ctx).Where(query, arg).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (s *GormAccountStore) GetByID(ctx context.Context, id int64) (*model.AdminAccount, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByUsername re-checks the match in Go: a table created under a
// case-folding collation would otherwise return "Admin" for "admin".
func (s *GormAccountStore) GetByUsername(ctx context.Context, username string) (*model.AdminAccount, error) {
	acc, err := s.first(ctx, "username = ?", username)
	if err != nil {
		return nil, err
	}
	if acc.Username != username {
		return nil, ErrNotFound
	}
	return acc, nil
}

func (s *GormAccountStore) Create(ctx context.Context, acc *model.AdminAccount) error {
	rec := adminAccountRecord{
		Username:     acc.Username,
		PasswordHash: acc.PasswordHash,
		Salt:         acc.Salt,
		DisplayName:  acc.DisplayName,
		Role:         acc.Role,
		IsActive:     acc.IsActive,
	}
	if err := s.scoped(ctx).Create(&rec).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	acc.ID = rec.ID
	acc.CreatedAt, acc.UpdatedAt = rec.CreatedAt.UTC(), rec.UpdatedAt.UTC()
	return nil
}

// isDuplicateKey also inspects the message because not every driver is translated by gorm.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

func (s *GormAccountStore) updates(ctx context.Context, id int64, values map[string]any) error {
	values["updated_at"] = time.Now().UTC()
	res := s.scoped(ctx).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormAccountStore) UpdatePassword(ctx context.Context, id int64, hash, salt string) error {
	return s.updates(ctx, id, map[string]any{"password_hash": hash, "salt": salt})
}

func (s *GormAccountStore) TouchLastLogin(ctx context.Context, id int64, at time.Time, ip string) error {
	return s.updates(ctx, id, map[string]any{"last_login_at": at.UTC(), "last_login_ip": ip})
}

func (s *GormAccountStore) List(ctx context.Context) ([]*model.AdminAccount, error) {
	var recs []adminAccountRecord
	if err := s.scoped(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.AdminAccount, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toModel())
	}
	return out, nil
}
