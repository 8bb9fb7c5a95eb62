package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"homeplanner/backend/config"
	"homeplanner/backend/internal/api/handler"
	"homeplanner/backend/internal/api/middleware"
	"homeplanner/backend/pkg/jwt"
	"homeplanner/backend/pkg/redis"
)

const (
	maxBodyBytes = 1 << 20

	// 订阅链接会被日历客户端周期拉取，限流比 API 宽松
	feedRateLimit = 60
	apiRateLimit  = 300
	rateWindow    = time.Minute
)

// Deps 路由所需依赖
type Deps struct {
	Config   *config.Config
	Handler  *handler.Handler
	JWT      *jwt.Manager
	Redis    *redis.Client
	IsMember middleware.MembershipChecker
	Logger   *zap.Logger
}

// Setup 初始化并返回 Gin 路由引擎
func Setup(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	cfg, h := d.Config, d.Handler
	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查与指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// ── 日历订阅（令牌即凭证，无需登录） ──
	r.GET("/calendar/feed/:token",
		middleware.RateLimit(d.Redis, feedRateLimit, rateWindow),
		h.Calendar.Feed,
	)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(d.JWT))
	v1.Use(middleware.HouseMember(d.IsMember, d.Logger))
	v1.Use(middleware.RateLimit(d.Redis, apiRateLimit, rateWindow))
	{
		// 日程与调度
		v1.GET("/agenda", h.Schedule.GetAgenda)
		v1.POST("/recurrence/expand", h.Schedule.ExpandRecurrences)
		v1.POST("/escalations/sweep", h.Schedule.SweepEscalations)

		// 任务模块
		tasks := v1.Group("/tasks")
		{
			tasks.PUT("/:id/assignee", h.Task.AssignTask)
			tasks.PUT("/:id/status", h.Task.UpdateTaskStatus)
		}

		// 重要日期模块
		dates := v1.Group("/important-dates")
		{
			dates.GET("/occurrences", h.ImportantDate.ListOccurrences)
			dates.GET("/upcoming", h.ImportantDate.ListUpcoming)
		}

		// 通知模块
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.Notification.ListNotifications)
			notifications.PUT("/read-all", h.Notification.MarkAllRead)
			notifications.PUT("/:id/read", h.Notification.MarkRead)
		}
		v1.GET("/notification-settings", h.Notification.GetSettings)
		v1.PUT("/notification-settings", h.Notification.UpdateSettings)

		// 日历导出模块
		calendar := v1.Group("/calendar")
		{
			calendar.GET("/export.ics", h.Calendar.ExportICS)
			calendar.GET("/export.xlsx", h.Calendar.ExportXLSX)
			calendar.GET("/feed-url", h.Calendar.GetFeedURL)
		}
	}

	return r
}
