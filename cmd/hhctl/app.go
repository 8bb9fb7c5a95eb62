package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"homeplanner/backend/config"
	"homeplanner/backend/internal/repository"
	"homeplanner/backend/internal/service"
	"homeplanner/backend/pkg/database"
	"homeplanner/backend/pkg/jwt"
	applogger "homeplanner/backend/pkg/logger"
	"homeplanner/backend/pkg/mailer"
	"homeplanner/backend/pkg/redis"
)

// app 按需初始化依赖；token 命令只需要配置，不连接数据库
type app struct {
	configPath string

	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	rdb    *redis.Client
	repo   *repository.Repository
	svc    *service.Service
}

func (a *app) loadConfig() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func (a *app) connectDB() error {
	if a.db != nil {
		return nil
	}
	if err := a.loadConfig(); err != nil {
		return err
	}
	db, err := database.NewDB(&a.cfg.Database, a.cfg.Log.Level, a.logger)
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}
	a.db = db
	return nil
}

// services 构建与服务进程一致的 Service 聚合；不注册指标
func (a *app) services() (*service.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if err := a.connectDB(); err != nil {
		return nil, err
	}

	rdb, err := redis.NewClient(&a.cfg.Redis, a.logger)
	if err != nil {
		a.logger.Warn("Redis 连接失败，跳过跨实例展开锁", zap.Error(err))
		rdb = nil
	}
	a.rdb = rdb

	a.repo = repository.NewRepository(a.db)
	a.svc = service.NewService(service.Deps{
		Config:   a.cfg,
		Repo:     a.repo,
		JWT:      jwt.NewManager(&a.cfg.Auth),
		Mailer:   mailer.NewSMTPSender(a.cfg.Mail, a.logger),
		Redis:    rdb,
		Features: service.ResolveFeatures(a.cfg.Feature, a.db.Migrator().HasTable, a.logger),
		Logger:   a.logger,
	})
	return a.svc, nil
}

// houseIDs 解析 --house / --all
func (a *app) houseIDs(ctx context.Context, house string, all bool) ([]string, error) {
	switch {
	case house != "" && all:
		return nil, fmt.Errorf("--house 与 --all 不能同时使用")
	case house != "":
		return []string{house}, nil
	case all:
		return a.repo.House.ListIDs(ctx)
	default:
		return nil, fmt.Errorf("需要指定 --house 或 --all")
	}
}

func (a *app) close() {
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
