package repository

import (
	"sort"
	"strings"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/shopspring/decimal"
)

// matchesQuery applies LogQuery semantics in process for the non-SQL stores.
func matchesQuery(l *model.AccessLog, q model.LogQuery) bool {
	if q.Method != "" && !strings.EqualFold(l.Method, q.Method) {
		return false
	}
	if q.Path != "" && !strings.Contains(strings.ToLower(l.Path), strings.ToLower(q.Path)) {
		return false
	}
	if q.StatusCode != nil && (l.StatusCode == nil || *l.StatusCode != *q.StatusCode) {
		return false
	}
	return inRange(l.Timestamp, q.StartDate, q.EndDate)
}

func inRange(ts time.Time, start, end *time.Time) bool {
	if start != nil && ts.Before(*start) {
		return false
	}
	if end != nil && ts.After(*end) {
		return false
	}
	return true
}

// pageOf slices an already filtered, ID-descending result set.
func pageOf(matched []*model.AccessLog, q model.LogQuery) []*model.AccessLog {
	if q.PageSize <= 0 {
		return []*model.AccessLog{}
	}
	offset := q.Offset()
	if offset >= len(matched) {
		return []*model.AccessLog{}
	}
	end := offset + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*model.AccessLog, 0, end-offset)
	for _, l := range matched[offset:end] {
		out = append(out, l.Clone())
	}
	return out
}

type statsAccumulator struct {
	total       int64
	durationSum int64
	durationN   int64
	byStatus    map[int]int64
	nilStatus   int64
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{byStatus: make(map[int]int64)}
}

func (a *statsAccumulator) add(l *model.AccessLog) {
	a.total++
	if l.Duration != nil {
		a.durationSum += *l.Duration
		a.durationN++
	}
	if l.StatusCode == nil {
		a.nilStatus++
		return
	}
	a.byStatus[*l.StatusCode]++
}

func (a *statsAccumulator) result() *model.LogStatistics {
	avg := 0.0
	if a.durationN > 0 {
		avg = float64(a.durationSum) / float64(a.durationN)
	}
	counts := make([]model.StatusCodeCount, 0, len(a.byStatus)+1)
	for code, n := range a.byStatus {
		code := code
		counts = append(counts, model.StatusCodeCount{StatusCode: &code, Count: n})
	}
	if a.nilStatus > 0 {
		counts = append(counts, model.StatusCodeCount{Count: a.nilStatus})
	}
	return newStatistics(a.total, avg, counts)
}

// newStatistics rounds the average to two places and orders buckets by count.
func newStatistics(total int64, avg float64, counts []model.StatusCodeCount) *model.LogStatistics {
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return &model.LogStatistics{
		TotalRequests:   total,
		AverageDuration: decimal.NewFromFloat(avg).Round(2).InexactFloat64(),
		StatusCodes:     counts,
	}
}
