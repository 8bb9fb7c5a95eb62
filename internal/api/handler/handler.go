package handler

import (
	"go.uber.org/zap"

	"homeplanner/backend/config"
	"homeplanner/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Schedule      *ScheduleHandler
	Task          *TaskHandler
	Notification  *NotificationHandler
	ImportantDate *ImportantDateHandler
	Calendar      *CalendarHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(cfg *config.Config, svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Schedule:      NewScheduleHandler(svc.House, svc.Recurrence, svc.Escalation, logger),
		Task:          NewTaskHandler(svc.Task),
		Notification:  NewNotificationHandler(svc.Notification),
		ImportantDate: NewImportantDateHandler(svc.ImportantDate, cfg.Scheduler.ImportantDateLookaheadDays),
		Calendar:      NewCalendarHandler(svc.Calendar),
	}
}
