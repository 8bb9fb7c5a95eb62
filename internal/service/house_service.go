package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/recurrence"
	"homeplanner/backend/internal/repository"
	"homeplanner/backend/pkg/metrics"
	"homeplanner/backend/pkg/redis"
)

// 刷新阶段名称（日志与指标标签）
const (
	StageExpand     = "expand"
	StageReminders  = "reminders"
	StageEscalation = "escalation"
)

// HouseService 家庭级调度入口：页面加载时按需刷新，并组装首页日程
type HouseService interface {
	// Refresh 依次执行周期展开、到期提醒、升级扫描。各阶段失败只记录日志，不向调用方返回错误。
	// 同一进程内对同一家庭的并发刷新会合并；跨实例由 Redis 锁跳过重复工作。
	Refresh(ctx context.Context, houseID string, now time.Time) *dto.RefreshResult
	// RefreshAll 逐个刷新全部家庭，供运维命令使用
	RefreshAll(ctx context.Context, now time.Time) (map[string]*dto.RefreshResult, error)
	Agenda(ctx context.Context, houseID, userID string, days int, now time.Time) (*dto.AgendaResponse, error)
}

type houseService struct {
	repo       *repository.Repository
	recurrence RecurrenceService
	reminders  ReminderService
	escalation EscalationService
	notif      NotificationService
	dates      ImportantDateService
	redis      *redis.Client
	lockTTL    time.Duration
	loc        *time.Location
	metrics    *metrics.Metrics
	logger     *zap.Logger

	group singleflight.Group
}

// HouseServiceDeps HouseService 依赖集合
type HouseServiceDeps struct {
	Repo         *repository.Repository
	Recurrence   RecurrenceService
	Reminders    ReminderService
	Escalation   EscalationService
	Notification NotificationService
	Dates        ImportantDateService
	Redis        *redis.Client // 可为 nil，此时不加跨实例锁
	LockTTL      time.Duration
	Location     *time.Location
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// NewHouseService 创建 HouseService 实例
func NewHouseService(d HouseServiceDeps) HouseService {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	ttl := d.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &houseService{
		repo:       d.Repo,
		recurrence: d.Recurrence,
		reminders:  d.Reminders,
		escalation: d.Escalation,
		notif:      d.Notification,
		dates:      d.Dates,
		redis:      d.Redis,
		lockTTL:    ttl,
		loc:        loc,
		metrics:    d.Metrics,
		logger:     d.Logger,
	}
}

// ────────────────────── Refresh ──────────────────────

func (s *houseService) Refresh(ctx context.Context, houseID string, now time.Time) *dto.RefreshResult {
	// 合并后的刷新由首个请求执行，不能随该请求取消而中断
	runCtx := context.WithoutCancel(ctx)
	v, _, _ := s.group.Do(houseID, func() (interface{}, error) {
		return s.refresh(runCtx, houseID, now), nil
	})
	return v.(*dto.RefreshResult)
}

func (s *houseService) refresh(ctx context.Context, houseID string, now time.Time) *dto.RefreshResult {
	lock, ok, err := s.redis.AcquireLock(ctx, "expand:"+houseID, s.lockTTL)
	if err != nil {
		s.logger.Warn("获取刷新锁失败，继续执行", zap.String("house_id", houseID), zap.Error(err))
	} else if !ok {
		s.metrics.IncRefreshSkipped("locked")
		return &dto.RefreshResult{Skipped: true, Reason: "locked"}
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.logger.Warn("释放刷新锁失败", zap.String("house_id", houseID), zap.Error(err))
		}
	}()

	result := &dto.RefreshResult{}

	start := time.Now()
	expand, err := s.recurrence.ExpandHouse(ctx, houseID, now)
	s.finishStage(StageExpand, houseID, err, start)
	result.Expand = expand

	start = time.Now()
	reminders, err := s.reminders.Run(ctx, houseID, now)
	s.finishStage(StageReminders, houseID, err, start)
	result.Reminders = reminders

	start = time.Now()
	sweep, err := s.escalation.Sweep(ctx, houseID, now)
	s.finishStage(StageEscalation, houseID, err, start)
	result.Escalation = sweep

	return result
}

func (s *houseService) finishStage(stage, houseID string, err error, start time.Time) {
	s.metrics.ObserveStage(stage, err, time.Since(start))
	if err != nil {
		s.logger.Warn("家庭刷新阶段失败",
			zap.String("stage", stage),
			zap.String("house_id", houseID),
			zap.Error(err),
		)
	}
}

func (s *houseService) RefreshAll(ctx context.Context, now time.Time) (map[string]*dto.RefreshResult, error) {
	ids, err := s.repo.House.ListIDs(ctx)
	if err != nil {
		s.logger.Error("查询家庭列表失败", zap.Error(err))
		return nil, err
	}
	results := make(map[string]*dto.RefreshResult, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results[id] = s.Refresh(ctx, id, now)
	}
	return results, nil
}

// ────────────────────── Agenda ──────────────────────

func (s *houseService) Agenda(ctx context.Context, houseID, userID string, days int, now time.Time) (*dto.AgendaResponse, error) {
	refresh := s.Refresh(ctx, houseID, now)

	today := recurrence.Today(now, s.loc)
	end := today.AddDate(0, 0, days)

	tasks, err := s.repo.Task.ListDueBetween(ctx, houseID, today, end)
	if err != nil {
		s.logger.Error("查询日程任务失败", zap.String("house_id", houseID), zap.Error(err))
		return nil, err
	}
	taskResp := make([]dto.TaskResponse, 0, len(tasks))
	for i := range tasks {
		taskResp = append(taskResp, *toTaskResponse(&tasks[i]))
	}

	dates, err := s.dates.Between(ctx, houseID, today, end, today)
	if err != nil {
		return nil, err
	}

	unread, err := s.notif.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("查询未读通知数失败", zap.String("user_id", userID), zap.Error(err))
		unread = 0
	}

	return &dto.AgendaResponse{
		Today:               recurrence.DateKey(today),
		Days:                days,
		Tasks:               taskResp,
		ImportantDates:      dates,
		UnreadNotifications: unread,
		Refresh:             refresh,
	}, nil
}
