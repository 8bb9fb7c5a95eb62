package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/service"
	"homeplanner/backend/pkg/response"
)

const defaultAgendaDays = 7

// ScheduleHandler 日程与调度 HTTP 处理器
type ScheduleHandler struct {
	houseSvc      service.HouseService
	recurrenceSvc service.RecurrenceService
	escalationSvc service.EscalationService
	logger        *zap.Logger
}

// NewScheduleHandler 创建 ScheduleHandler
func NewScheduleHandler(
	houseSvc service.HouseService,
	recurrenceSvc service.RecurrenceService,
	escalationSvc service.EscalationService,
	logger *zap.Logger,
) *ScheduleHandler {
	return &ScheduleHandler{
		houseSvc:      houseSvc,
		recurrenceSvc: recurrenceSvc,
		escalationSvc: escalationSvc,
		logger:        logger,
	}
}

// GetAgenda 首页日程，加载前刷新家庭的周期实例、提醒与升级
// GET /api/v1/agenda?days=7
func (h *ScheduleHandler) GetAgenda(c *gin.Context) {
	var req dto.DaysRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	userID, houseID, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	agenda, err := h.houseSvc.Agenda(c.Request.Context(), houseID, userID, req.GetDays(defaultAgendaDays), time.Now())
	if err != nil {
		h.logger.Error("加载日程失败", zap.String("house_id", houseID), zap.Error(err))
		response.InternalError(c)
		return
	}

	response.OK(c, agenda)
}

// ExpandRecurrences 手动补齐周期实例
// POST /api/v1/recurrence/expand
func (h *ScheduleHandler) ExpandRecurrences(c *gin.Context) {
	houseID, ok := MustGetHouseID(c)
	if !ok {
		return
	}

	result, err := h.recurrenceSvc.ExpandHouse(c.Request.Context(), houseID, time.Now())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// SweepEscalations 手动执行升级扫描
// POST /api/v1/escalations/sweep
func (h *ScheduleHandler) SweepEscalations(c *gin.Context) {
	houseID, ok := MustGetHouseID(c)
	if !ok {
		return
	}

	result, err := h.escalationSvc.Sweep(c.Request.Context(), houseID, time.Now())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}
