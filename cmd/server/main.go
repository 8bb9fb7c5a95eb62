package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"homeplanner/backend/config"
	"homeplanner/backend/internal/api/handler"
	"homeplanner/backend/internal/api/router"
	"homeplanner/backend/internal/repository"
	"homeplanner/backend/internal/service"
	"homeplanner/backend/pkg/database"
	"homeplanner/backend/pkg/jwt"
	applogger "homeplanner/backend/pkg/logger"
	"homeplanner/backend/pkg/mailer"
	"homeplanner/backend/pkg/metrics"
	"homeplanner/backend/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("HOME_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Int("horizon_days", cfg.Scheduler.HorizonDays),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移；关闭自动迁移时表结构由 hhctl migrate 维护，可能落后于当前版本
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("已关闭自动迁移，按现有表结构探测可选功能")
	}

	// 3.2 探测可选功能的表结构
	features := service.ResolveFeatures(cfg.Feature, db.Migrator().HasTable, logger)

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，跨实例展开锁与限流将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 指标、邮件、JWT
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.MustNewMetrics(prometheus.DefaultRegisterer, cfg.Metrics.Namespace)
	}
	sender := mailer.NewSMTPSender(cfg.Mail, logger)
	if !cfg.Mail.Configured() {
		logger.Warn("未配置 SMTP，通知仅写入收件箱")
	}
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(service.Deps{
		Config:   cfg,
		Repo:     repo,
		JWT:      jwtMgr,
		Mailer:   sender,
		Redis:    rdb,
		Metrics:  m,
		Features: features,
		Logger:   logger,
	})
	h := handler.NewHandler(cfg, svc, logger)

	// 7. 初始化路由
	engine := router.Setup(router.Deps{
		Config:   cfg,
		Handler:  h,
		JWT:      jwtMgr,
		Redis:    rdb,
		IsMember: repo.House.IsMember,
		Logger:   logger,
	})

	// 8. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 关闭数据库连接
	sqlDB.Close()

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
