package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/service"
	"homeplanner/backend/pkg/response"
)

const (
	mimeICS  = "text/calendar; charset=utf-8"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// CalendarHandler 日历导出与订阅 HTTP 处理器
type CalendarHandler struct {
	calendarSvc service.CalendarService
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(calendarSvc service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarSvc: calendarSvc}
}

// ExportICS 导出 iCalendar 文件
// GET /api/v1/calendar/export.ics?from=2024-06-01&to=2024-06-30
func (h *CalendarHandler) ExportICS(c *gin.Context) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "from 与 to 不能为空")
		return
	}

	houseID, ok := MustGetHouseID(c)
	if !ok {
		return
	}

	data, filename, err := h.calendarSvc.ExportICS(c.Request.Context(), houseID, req.From, req.To)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	attachment(c, filename, mimeICS, data)
}

// ExportXLSX 导出 Excel 日程表
// GET /api/v1/calendar/export.xlsx?from=2024-06-01&to=2024-06-30
func (h *CalendarHandler) ExportXLSX(c *gin.Context) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "from 与 to 不能为空")
		return
	}

	houseID, ok := MustGetHouseID(c)
	if !ok {
		return
	}

	buf, filename, err := h.calendarSvc.ExportXLSX(c.Request.Context(), houseID, req.From, req.To)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	attachment(c, filename, mimeXLSX, buf.Bytes())
}

// GetFeedURL 生成日历订阅链接
// GET /api/v1/calendar/feed-url
func (h *CalendarHandler) GetFeedURL(c *gin.Context) {
	userID, houseID, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	resp, err := h.calendarSvc.FeedURL(c.Request.Context(), userID, houseID)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, resp)
}

// Feed 日历客户端拉取订阅内容，令牌即凭证
// GET /calendar/feed/:token
func (h *CalendarHandler) Feed(c *gin.Context) {
	data, err := h.calendarSvc.Feed(c.Request.Context(), c.Param("token"), time.Now())
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	c.Data(http.StatusOK, mimeICS, data)
}

func (h *CalendarHandler) handleCalendarError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidFeedToken):
		response.NotFound(c, 17001, err.Error())
	case errors.Is(err, service.ErrCalendarGenerateFail):
		response.Error(c, http.StatusInternalServerError, 17002, err.Error())
	default:
		handleDateRangeError(c, err)
	}
}

// attachment 以附件形式返回文件，文件名按 RFC 5987 编码
func attachment(c *gin.Context, filename, mime string, data []byte) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, mime, data)
}
