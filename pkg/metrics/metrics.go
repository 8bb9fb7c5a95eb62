// Package metrics 暴露周期展开与通知调度相关的 Prometheus 指标。
// 所有方法对 nil 接收者安全，未启用指标时直接传 nil。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 邮件投递结果
const (
	EmailSent          = "sent"
	EmailDeferred      = "deferred" // 被免打扰或投递窗口拦截
	EmailNotConfigured = "not_configured"
	EmailFailed        = "failed"
)

// Metrics Prometheus 指标集合
type Metrics struct {
	instancesCreated   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	emailsTotal        *prometheus.CounterVec
	escalationsTotal   prometheus.Counter
	refreshDuration    *prometheus.HistogramVec
	refreshSkipped     *prometheus.CounterVec
}

// MustNewMetrics 在给定 Registerer 上注册指标；同名指标已存在时复用已有的 collector
func MustNewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "homeplanner"
	}

	m := &Metrics{
		instancesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recurrence",
			Name:      "instances_created_total",
			Help:      "Recurring task instances created by expansion.",
		}, []string{"unit"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "dispatched_total",
			Help:      "Notification dispatch attempts by type and outcome (created or deduped).",
		}, []string{"type", "result"}),
		emailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "emails_total",
			Help:      "Notification email outcomes.",
		}, []string{"result"}),
		escalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "escalations_total",
			Help:      "Escalation notifications created by the sweep.",
		}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each opportunistic refresh stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		refreshSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "refresh_skipped_total",
			Help:      "House refreshes skipped because another refresh held the lock.",
		}, []string{"reason"}),
	}

	m.instancesCreated = register(reg, m.instancesCreated)
	m.notificationsTotal = register(reg, m.notificationsTotal)
	m.emailsTotal = register(reg, m.emailsTotal)
	m.escalationsTotal = register(reg, m.escalationsTotal)
	m.refreshDuration = register(reg, m.refreshDuration)
	m.refreshSkipped = register(reg, m.refreshSkipped)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// AddInstancesCreated 记录展开新建的实例数
func (m *Metrics) AddInstancesCreated(unit string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.instancesCreated.WithLabelValues(unit).Add(float64(n))
}

// IncNotification 记录一次通知分发，deduped 表示命中已有记录
func (m *Metrics) IncNotification(notificationType string, deduped bool) {
	if m == nil {
		return
	}
	result := "created"
	if deduped {
		result = "deduped"
	}
	m.notificationsTotal.WithLabelValues(notificationType, result).Inc()
}

// IncEmail 记录邮件投递结果
func (m *Metrics) IncEmail(result string) {
	if m == nil {
		return
	}
	m.emailsTotal.WithLabelValues(result).Inc()
}

// IncEscalation 记录一条升级通知
func (m *Metrics) IncEscalation() {
	if m == nil {
		return
	}
	m.escalationsTotal.Inc()
}

// ObserveStage 记录刷新阶段耗时
func (m *Metrics) ObserveStage(stage string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.refreshDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// IncRefreshSkipped 记录被跳过的刷新
func (m *Metrics) IncRefreshSkipped(reason string) {
	if m == nil {
		return
	}
	m.refreshSkipped.WithLabelValues(reason).Inc()
}
