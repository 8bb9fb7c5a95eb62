package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/recurrence"
	"homeplanner/backend/internal/repository"
)

// maxOccurrenceRangeDays 单次查询允许的最大跨度
const maxOccurrenceRangeDays = 3 * 366

// ErrInvalidDateRange 日期区间无效
var ErrInvalidDateRange = errors.New("日期区间无效")

// ImportantDateService 重要日期投影接口；结果只在查询时计算
type ImportantDateService interface {
	// Occurrences 返回闭区间 [from, to]（yyyy-MM-dd）内的全部出现
	Occurrences(ctx context.Context, houseID, from, to string) ([]dto.OccurrenceResponse, error)
	// Upcoming 返回每个重要日期在今天起 days 天内的下一次出现，附带距今天数
	Upcoming(ctx context.Context, houseID string, days int, now time.Time) ([]dto.OccurrenceResponse, error)
	// Between 供日程与日历导出复用；today 非零时计算 DaysUntil
	Between(ctx context.Context, houseID string, from, to, today time.Time) ([]dto.OccurrenceResponse, error)
}

type importantDateService struct {
	repo     *repository.Repository
	features Features
	loc      *time.Location
	logger   *zap.Logger
}

// NewImportantDateService 创建 ImportantDateService 实例
func NewImportantDateService(repo *repository.Repository, features Features, loc *time.Location, logger *zap.Logger) ImportantDateService {
	if loc == nil {
		loc = time.UTC
	}
	return &importantDateService{repo: repo, features: features, loc: loc, logger: logger}
}

func (s *importantDateService) Occurrences(ctx context.Context, houseID, from, to string) ([]dto.OccurrenceResponse, error) {
	start, end, err := ParseDateRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.Between(ctx, houseID, start, end, time.Time{})
}

func (s *importantDateService) Upcoming(ctx context.Context, houseID string, days int, now time.Time) ([]dto.OccurrenceResponse, error) {
	if days < 0 || days > maxOccurrenceRangeDays {
		return nil, fmt.Errorf("%w: days=%d", ErrInvalidDateRange, days)
	}
	if !s.features.ImportantDates {
		return []dto.OccurrenceResponse{}, nil
	}

	sources, kinds, err := s.loadSources(ctx, houseID)
	if err != nil {
		return nil, err
	}
	today := recurrence.Today(now, s.loc)
	return toOccurrenceResponses(recurrence.UpcomingOccurrences(sources, today, days), kinds, today), nil
}

func (s *importantDateService) Between(ctx context.Context, houseID string, from, to, today time.Time) ([]dto.OccurrenceResponse, error) {
	if !s.features.ImportantDates {
		return []dto.OccurrenceResponse{}, nil
	}

	sources, kinds, err := s.loadSources(ctx, houseID)
	if err != nil {
		return nil, err
	}
	return toOccurrenceResponses(recurrence.OccurrencesInRange(sources, from, to), kinds, today), nil
}

// loadSources 返回家庭的日期源及其类型（按 ID）
func (s *importantDateService) loadSources(ctx context.Context, houseID string) ([]recurrence.Source, map[string]string, error) {
	rows, err := s.repo.ImportantDate.ListByHouse(ctx, houseID)
	if err != nil {
		s.logger.Error("查询重要日期失败", zap.String("house_id", houseID), zap.Error(err))
		return nil, nil, err
	}

	sources := make([]recurrence.Source, 0, len(rows))
	kinds := make(map[string]string, len(rows))
	for _, r := range rows {
		sources = append(sources, recurrence.Source{
			ID:        r.ImportantDateID,
			Title:     r.Title,
			Date:      r.Date.UTC(),
			Recurring: r.IsRecurring,
		})
		kinds[r.ImportantDateID] = r.Kind
	}
	return sources, kinds, nil
}

func toOccurrenceResponses(occ []recurrence.Occurrence, kinds map[string]string, today time.Time) []dto.OccurrenceResponse {
	result := make([]dto.OccurrenceResponse, 0, len(occ))
	for _, o := range occ {
		resp := dto.OccurrenceResponse{
			ID:        o.ID,
			SourceID:  o.SourceID,
			Title:     o.Title,
			Kind:      kinds[o.SourceID],
			Date:      recurrence.DateKey(o.Date),
			Recurring: o.Recurring,
		}
		if !today.IsZero() {
			n := int(o.Date.Sub(recurrence.NormalizeDate(today)).Hours() / 24)
			resp.DaysUntil = &n
		}
		result = append(result, resp)
	}
	return result
}

// ParseDateRange 解析 yyyy-MM-dd 闭区间；to 早于 from 或跨度过大时返回 ErrInvalidDateRange
func ParseDateRange(from, to string) (time.Time, time.Time, error) {
	start, err := recurrence.ParseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	end, err := recurrence.ParseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 结束日期早于开始日期", ErrInvalidDateRange)
	}
	if end.Sub(start) > maxOccurrenceRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 跨度超过 %d 天", ErrInvalidDateRange, maxOccurrenceRangeDays)
	}
	return start, end, nil
}
