package service

import (
	"go.uber.org/zap"

	"homeplanner/backend/config"
	"homeplanner/backend/internal/repository"
	"homeplanner/backend/pkg/jwt"
	"homeplanner/backend/pkg/mailer"
	"homeplanner/backend/pkg/metrics"
	"homeplanner/backend/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Features      Features
	Notification  NotificationService
	Recurrence    RecurrenceService
	Reminder      ReminderService
	Escalation    EscalationService
	Task          TaskService
	ImportantDate ImportantDateService
	Calendar      CalendarService
	House         HouseService
}

// Deps 构建 Service 所需的外部依赖；Redis、Metrics 可为 nil
type Deps struct {
	Config   *config.Config
	Repo     *repository.Repository
	JWT      *jwt.Manager
	Mailer   mailer.Sender
	Redis    *redis.Client
	Metrics  *metrics.Metrics
	Features Features
	Logger   *zap.Logger
}

// NewService 创建 Service 聚合
func NewService(d Deps) *Service {
	cfg := d.Config
	loc := cfg.Scheduler.Location()

	notif := NewNotificationService(d.Repo, d.Mailer, d.Features,
		DefaultNotifySettings(&cfg.Scheduler), cfg.Server.BaseURL, d.Metrics, d.Logger)
	recur := NewRecurrenceService(d.Repo, cfg.Scheduler.HorizonDays, loc, d.Metrics, d.Logger)
	reminder := NewReminderService(d.Repo, notif, loc, d.Logger)
	escalation := NewEscalationService(d.Repo, notif, d.Features, d.Metrics, d.Logger)
	dates := NewImportantDateService(d.Repo, d.Features, loc, d.Logger)

	return &Service{
		Features:      d.Features,
		Notification:  notif,
		Recurrence:    recur,
		Reminder:      reminder,
		Escalation:    escalation,
		Task:          NewTaskService(d.Repo, notif, d.Logger),
		ImportantDate: dates,
		Calendar: NewCalendarService(d.Repo, dates, d.JWT, cfg.Server.BaseURL,
			cfg.Scheduler.HorizonDays, loc, d.Logger),
		House: NewHouseService(HouseServiceDeps{
			Repo:         d.Repo,
			Recurrence:   recur,
			Reminders:    reminder,
			Escalation:   escalation,
			Notification: notif,
			Dates:        dates,
			Redis:        d.Redis,
			LockTTL:      cfg.Scheduler.ExpansionLockTTL,
			Location:     loc,
			Metrics:      d.Metrics,
			Logger:       d.Logger,
		}),
	}
}
