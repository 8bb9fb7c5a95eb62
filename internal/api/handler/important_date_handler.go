package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/service"
	"homeplanner/backend/pkg/response"
)

// ImportantDateHandler 重要日期 HTTP 处理器
type ImportantDateHandler struct {
	dateSvc       service.ImportantDateService
	lookaheadDays int // days 未指定时的默认值
}

// NewImportantDateHandler 创建 ImportantDateHandler
func NewImportantDateHandler(dateSvc service.ImportantDateService, lookaheadDays int) *ImportantDateHandler {
	return &ImportantDateHandler{dateSvc: dateSvc, lookaheadDays: lookaheadDays}
}

// ListOccurrences 查询区间内的重要日期出现
// GET /api/v1/important-dates/occurrences?from=2025-01-01&to=2025-12-31
func (h *ImportantDateHandler) ListOccurrences(c *gin.Context) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "from 与 to 不能为空")
		return
	}

	houseID, ok := MustGetHouseID(c)
	if !ok {
		return
	}

	list, err := h.dateSvc.Occurrences(c.Request.Context(), houseID, req.From, req.To)
	if err != nil {
		handleDateRangeError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// ListUpcoming 查询未来 N 天的重要日期
// GET /api/v1/important-dates/upcoming?days=30
func (h *ImportantDateHandler) ListUpcoming(c *gin.Context) {
	var req dto.DaysRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	houseID, ok := MustGetHouseID(c)
	if !ok {
		return
	}

	list, err := h.dateSvc.Upcoming(c.Request.Context(), houseID, req.GetDays(h.lookaheadDays), time.Now())
	if err != nil {
		handleDateRangeError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// handleDateRangeError 日期区间类接口共用，日历导出同样适用
func handleDateRangeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDateRange):
		response.ErrorWithDetails(c, http.StatusBadRequest, 16001, "日期区间无效", err.Error())
	default:
		response.InternalError(c)
	}
}
