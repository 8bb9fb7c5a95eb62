package service

import (
	"errors"

	"go.uber.org/zap"

	"homeplanner/backend/config"
)

// ErrFeatureUnavailable 功能未启用或表结构尚未就绪
var ErrFeatureUnavailable = errors.New("功能未启用")

// Features 启动时确定的功能可用性，运行期间不变
type Features struct {
	Notifications  bool
	ImportantDates bool
}

// AllFeatures 全部功能可用，测试与运维命令使用
func AllFeatures() Features {
	return Features{Notifications: true, ImportantDates: true}
}

// ResolveFeatures 结合配置开关与表结构探测确定功能可用性。
// hasTable 通常为 db.Migrator().HasTable；迁移尚未执行到对应版本时该功能降级为空结果。
func ResolveFeatures(cfg config.FeatureConfig, hasTable func(interface{}) bool, logger *zap.Logger) Features {
	f := Features{
		Notifications: cfg.NotificationsEnabled &&
			hasTable("notifications") && hasTable("notification_settings"),
		ImportantDates: cfg.ImportantDatesEnabled && hasTable("important_dates"),
	}

	if cfg.NotificationsEnabled && !f.Notifications {
		logger.Warn("通知表不存在，通知功能降级为不可用")
	}
	if cfg.ImportantDatesEnabled && !f.ImportantDates {
		logger.Warn("重要日期表不存在，重要日期功能降级为不可用")
	}
	logger.Info("功能可用性",
		zap.Bool("notifications", f.Notifications),
		zap.Bool("important_dates", f.ImportantDates),
	)
	return f
}
