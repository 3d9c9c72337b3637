package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var accessLogColumns = []string{
	"logged_at", "request_id", "method", "path", "query_string", "request_headers",
	"request_body", "status_code", "response_body", "duration", "level", "logger",
	"client_ip_address", "user_agent", "user_id", "exception",
}

// SQLAccessLogStore serves postgres, mysql and sqlite through one query builder.
type SQLAccessLogStore struct {
	db    *sqlx.DB
	d     dialect
	table string
	sb    sq.StatementBuilderType
	now   func() time.Time
}

func NewSQLAccessLogStore(db *sqlx.DB, d dialect, table string) *SQLAccessLogStore {
	return &SQLAccessLogStore{
		db:    db,
		d:     d,
		table: table,
		sb:    sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		now:   time.Now,
	}
}

type accessLogRow struct {
	ID             int64          `db:"id"`
	LoggedAt       time.Time      `db:"logged_at"`
	RequestID      string         `db:"request_id"`
	Method         string         `db:"method"`
	Path           string         `db:"path"`
	QueryString    string         `db:"query_string"`
	RequestHeaders string         `db:"request_headers"`
	RequestBody    string         `db:"request_body"`
	StatusCode     sql.NullInt64  `db:"status_code"`
	ResponseBody   string         `db:"response_body"`
	Duration       sql.NullInt64  `db:"duration"`
	Level          string         `db:"level"`
	Logger         string         `db:"logger"`
	ClientIP       string         `db:"client_ip_address"`
	UserAgent      string         `db:"user_agent"`
	UserID         sql.NullString `db:"user_id"`
	Exception      string         `db:"exception"`
}

func (r *accessLogRow) toModel() *model.AccessLog {
	l := &model.AccessLog{
		ID:             r.ID,
		Timestamp:      r.LoggedAt.UTC(),
		RequestID:      r.RequestID,
		Method:         r.Method,
		Path:           r.Path,
		QueryString:    r.QueryString,
		RequestHeaders: r.RequestHeaders,
		RequestBody:    r.RequestBody,
		ResponseBody:   r.ResponseBody,
		Level:          r.Level,
		Logger:         r.Logger,
		ClientIP:       r.ClientIP,
		UserAgent:      r.UserAgent,
		Exception:      r.Exception,
	}
	if r.StatusCode.Valid {
		code := int(r.StatusCode.Int64)
		l.StatusCode = &code
	}
	if r.Duration.Valid {
		d := r.Duration.Int64
		l.Duration = &d
	}
	if r.UserID.Valid {
		uid := r.UserID.String
		l.UserID = &uid
	}
	return l
}

func (s *SQLAccessLogStore) Initialize(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(stmt, s.table)); err != nil {
			return fmt.Errorf("ensure %s schema: %w", s.table, err)
		}
	}
	return nil
}

func (s *SQLAccessLogStore) Insert(ctx context.Context, rec *model.AccessLog) error {
	if rec == nil {
		return nil
	}
	var status, duration, userID any
	if rec.StatusCode != nil {
		status = *rec.StatusCode
	}
	if rec.Duration != nil {
		duration = *rec.Duration
	}
	if rec.UserID != nil {
		userID = *rec.UserID
	}

	ib := s.sb.Insert(s.table).
		Options(s.d.insertOptions...).
		Columns(accessLogColumns...).
		Values(
			rec.Timestamp.UTC(), rec.RequestID, rec.Method, rec.Path, rec.QueryString, rec.RequestHeaders,
			rec.RequestBody, status, rec.ResponseBody, duration, rec.Level, rec.Logger,
			rec.ClientIP, rec.UserAgent, userID, rec.Exception,
		)

	if s.d.returning {
		query, args, err := ib.Suffix(s.d.insertSuffix + " RETURNING id").ToSql()
		if err != nil {
			return err
		}
		err = s.db.QueryRowxContext(ctx, query, args...).Scan(&rec.ID)
		if errors.Is(err, sql.ErrNoRows) {
			// request id already stored
			return nil
		}
		return err
	}

	query, args, err := ib.ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	rec.ID, err = res.LastInsertId()
	return err
}

func (s *SQLAccessLogStore) where(q model.LogQuery) sq.And {
	cond := sq.And{}
	if q.Method != "" {
		cond = append(cond, sq.Expr("UPPER(method) = ?", strings.ToUpper(q.Method)))
	}
	if q.Path != "" {
		cond = append(cond, sq.Expr("LOWER(path) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(q.Path))+"%"))
	}
	if q.StatusCode != nil {
		cond = append(cond, sq.Eq{"status_code": *q.StatusCode})
	}
	return append(cond, timeRange(q.StartDate, q.EndDate)...)
}

func timeRange(start, end *time.Time) sq.And {
	cond := sq.And{}
	if start != nil {
		cond = append(cond, sq.GtOrEq{"logged_at": start.UTC()})
	}
	if end != nil {
		cond = append(cond, sq.LtOrEq{"logged_at": end.UTC()})
	}
	return cond
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *SQLAccessLogStore) Query(ctx context.Context, q model.LogQuery) (*model.LogPage, error) {
	cond := s.where(q)

	query, args, err := s.sb.Select("COUNT(*)").From(s.table).Where(cond).ToSql()
	if err != nil {
		return nil, err
	}
	var total int64
	if err := s.db.GetContext(ctx, &total, query, args...); err != nil {
		return nil, fmt.Errorf("count access logs: %w", err)
	}

	logs := make([]*model.AccessLog, 0)
	if q.PageSize > 0 && total > int64(q.Offset()) {
		query, args, err = s.sb.Select(append([]string{"id"}, accessLogColumns...)...).
			From(s.table).
			Where(cond).
			OrderBy("id DESC").
			Limit(uint64(q.PageSize)).
			Offset(uint64(q.Offset())).
			ToSql()
		if err != nil {
			return nil, err
		}
		var rows []accessLogRow
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, fmt.Errorf("query access logs: %w", err)
		}
		for i := range rows {
			logs = append(logs, rows[i].toModel())
		}
	}
	return model.NewLogPage(logs, total, q), nil
}

func (s *SQLAccessLogStore) GetByID(ctx context.Context, id int64) (*model.AccessLog, error) {
	query, args, err := s.sb.Select(append([]string{"id"}, accessLogColumns...)...).
		From(s.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var row accessLogRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *SQLAccessLogStore) GetStatistics(ctx context.Context, start, end *time.Time) (*model.LogStatistics, error) {
	cond := timeRange(start, end)

	query, args, err := s.sb.Select("COUNT(*) AS total", "AVG(duration) AS avg_duration").
		From(s.table).Where(cond).ToSql()
	if err != nil {
		return nil, err
	}
	var agg struct {
		Total int64           `db:"total"`
		Avg   sql.NullFloat64 `db:"avg_duration"`
	}
	if err := s.db.GetContext(ctx, &agg, query, args...); err != nil {
		return nil, fmt.Errorf("aggregate access logs: %w", err)
	}

	query, args, err = s.sb.Select("status_code", "COUNT(*) AS cnt").
		From(s.table).Where(cond).
		GroupBy("status_code").
		OrderBy("cnt DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var buckets []struct {
		StatusCode sql.NullInt64 `db:"status_code"`
		Count      int64         `db:"cnt"`
	}
	if err := s.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("group access logs: %w", err)
	}

	counts := make([]model.StatusCodeCount, 0, len(buckets))
	for _, b := range buckets {
		c := model.StatusCodeCount{Count: b.Count}
		if b.StatusCode.Valid {
			code := int(b.StatusCode.Int64)
			c.StatusCode = &code
		}
		counts = append(counts, c)
	}
	return newStatistics(agg.Total, agg.Avg.Float64, counts), nil
}

// PurgeOlderThan bounds the delete by the highest ID visible when it starts,
// so rows committed afterwards survive however long the delete takes.
func (s *SQLAccessLogStore) PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	query, args, err := s.sb.Select("COALESCE(MAX(id), 0)").From(s.table).ToSql()
	if err != nil {
		return 0, err
	}
	var maxID int64
	if err := s.db.GetContext(ctx, &maxID, query, args...); err != nil {
		return 0, fmt.Errorf("snapshot access logs: %w", err)
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	query, args, err = s.sb.Delete(s.table).
		Where(sq.Lt{"logged_at": cutoff}).
		Where(sq.LtOrEq{"id": maxID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge access logs: %w", err)
	}
	return res.RowsAffected()
}
