package service

import (
	"testing"

	"go.uber.org/zap"

	"homeplanner/backend/config"
)

func hasTables(names ...string) func(interface{}) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(v interface{}) bool {
		name, _ := v.(string)
		return set[name]
	}
}

func TestResolveFeatures_MissingTablesDisable(t *testing.T) {
	cfg := config.FeatureConfig{NotificationsEnabled: true, ImportantDatesEnabled: true}

	// 未自动迁移时库中只有早期版本的表
	f := ResolveFeatures(cfg, hasTables("tasks", "notifications"), zap.NewNop())
	if f.Notifications || f.ImportantDates {
		t.Errorf("缺少表时功能应不可用，实际 %+v", f)
	}

	f = ResolveFeatures(cfg, hasTables("notifications", "notification_settings", "important_dates"), zap.NewNop())
	if f != AllFeatures() {
		t.Errorf("表齐全时功能应全部可用，实际 %+v", f)
	}
}

func TestResolveFeatures_ConfigSwitchWins(t *testing.T) {
	cfg := config.FeatureConfig{NotificationsEnabled: false, ImportantDatesEnabled: true}

	f := ResolveFeatures(cfg, hasTables("notifications", "notification_settings", "important_dates"), zap.NewNop())
	if f.Notifications || !f.ImportantDates {
		t.Errorf("配置关闭的功能不可用，实际 %+v", f)
	}
}
