package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/notify"
	"homeplanner/backend/internal/repository"
	"homeplanner/backend/internal/timewindow"
	pkgerrors "homeplanner/backend/pkg/errors"
	"homeplanner/backend/pkg/mailer"
	"homeplanner/backend/pkg/metrics"
)

// ── 通知模块业务错误 ──

var (
	ErrNotificationNotFound = errors.New("通知不存在")
	ErrInvalidSettings      = errors.New("通知设置无效")
)

// Event 待分发的通知事件
type Event struct {
	RecipientID string
	HouseID     string
	TaskID      *string
	Type        string
	Title       string
	Body        string
	Link        string // 站内路径，如 /tasks/<id>
	DedupeKey   string // 为空表示不去重

	SendEmail        bool
	BypassQuietHours bool
	BypassSchedule   bool
	Now              time.Time
}

// NotificationService 通知业务接口
type NotificationService interface {
	// Dispatch 创建通知并按投递闸门发送邮件。
	// 去重键已存在时原样返回已有通知，created=false，且不再发送邮件。
	Dispatch(ctx context.Context, ev *Event) (n *model.Notification, created bool, err error)

	List(ctx context.Context, userID string, req *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)

	// ResolveSettings 返回用户的有效设置，未保存过时返回默认值
	ResolveSettings(ctx context.Context, userID string) (notify.Settings, error)
	GetSettings(ctx context.Context, userID string) (*dto.NotificationSettingsResponse, error)
	UpdateSettings(ctx context.Context, userID string, req *dto.UpdateNotificationSettingsRequest) (*dto.NotificationSettingsResponse, error)
}

type notificationService struct {
	repo     *repository.Repository
	mail     mailer.Sender
	features Features
	defaults notify.Settings
	baseURL  string
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(
	repo *repository.Repository,
	mail mailer.Sender,
	features Features,
	defaults notify.Settings,
	baseURL string,
	m *metrics.Metrics,
	logger *zap.Logger,
) NotificationService {
	return &notificationService{
		repo:     repo,
		mail:     mail,
		features: features,
		defaults: defaults,
		baseURL:  strings.TrimRight(baseURL, "/"),
		metrics:  m,
		logger:   logger,
	}
}

// ────────────────────── Dispatch ──────────────────────

func (s *notificationService) Dispatch(ctx context.Context, ev *Event) (*model.Notification, bool, error) {
	if !s.features.Notifications {
		return nil, false, ErrFeatureUnavailable
	}
	if ev.Now.IsZero() {
		ev.Now = time.Now()
	}

	if ev.DedupeKey != "" {
		existing, err := s.repo.Notification.GetByDedupeKey(ctx, ev.DedupeKey)
		if err == nil {
			s.metrics.IncNotification(ev.Type, true)
			return existing, false, nil
		}
		if !pkgerrors.IsNotFound(err) {
			return nil, false, fmt.Errorf("查询去重键失败: %w", err)
		}
	}

	n := &model.Notification{
		UserID:    ev.RecipientID,
		HouseID:   ev.HouseID,
		TaskID:    ev.TaskID,
		Type:      ev.Type,
		Title:     ev.Title,
		Body:      ev.Body,
		Link:      ev.Link,
		CreatedAt: ev.Now.UTC(),
	}
	if ev.DedupeKey != "" {
		key := ev.DedupeKey
		n.DedupeKey = &key
	}

	if err := s.repo.Notification.Create(ctx, n); err != nil {
		// 并发请求抢先写入了同一个去重键
		if ev.DedupeKey != "" && pkgerrors.IsUniqueViolation(err) {
			existing, getErr := s.repo.Notification.GetByDedupeKey(ctx, ev.DedupeKey)
			if getErr != nil {
				return nil, false, fmt.Errorf("去重冲突后重新读取失败: %w", getErr)
			}
			s.metrics.IncNotification(ev.Type, true)
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("创建通知失败: %w", err)
	}
	s.metrics.IncNotification(ev.Type, false)

	if ev.SendEmail {
		s.deliverEmail(ctx, n, ev)
	}
	return n, true, nil
}

// deliverEmail 邮件失败只记录日志，不影响通知本身
func (s *notificationService) deliverEmail(ctx context.Context, n *model.Notification, ev *Event) {
	settings, err := s.ResolveSettings(ctx, n.UserID)
	if err != nil {
		s.logger.Warn("读取通知设置失败，使用默认设置", zap.String("user_id", n.UserID), zap.Error(err))
		settings = s.defaults
	}

	if !notify.MayDeliverNow(settings, ev.Now, ev.BypassQuietHours, ev.BypassSchedule) {
		s.metrics.IncEmail(metrics.EmailDeferred)
		s.logger.Debug("当前处于免打扰或投递窗口外，跳过邮件",
			zap.String("notification_id", n.NotificationID),
			zap.String("user_id", n.UserID),
		)
		return
	}

	user, err := s.repo.User.GetByID(ctx, n.UserID)
	if err != nil {
		s.metrics.IncEmail(metrics.EmailFailed)
		s.logger.Warn("查询收件人失败", zap.String("user_id", n.UserID), zap.Error(err))
		return
	}

	text, htmlBody := s.renderEmail(n, user.Name)
	delivered, err := s.mail.Send(ctx, &mailer.Message{
		To:      user.Email,
		ToName:  user.Name,
		Subject: n.Title,
		Text:    text,
		HTML:    htmlBody,
	})
	if err != nil {
		s.metrics.IncEmail(metrics.EmailFailed)
		s.logger.Warn("通知邮件发送失败",
			zap.String("notification_id", n.NotificationID),
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
		return
	}
	if !delivered {
		s.metrics.IncEmail(metrics.EmailNotConfigured)
		return
	}

	sentAt := ev.Now.UTC()
	if err := s.repo.Notification.MarkEmailSent(ctx, n.NotificationID, sentAt); err != nil {
		s.logger.Warn("记录邮件发送时间失败", zap.String("notification_id", n.NotificationID), zap.Error(err))
	} else {
		n.EmailSentAt = &sentAt
	}
	s.metrics.IncEmail(metrics.EmailSent)
}

func (s *notificationService) renderEmail(n *model.Notification, name string) (string, string) {
	link := ""
	if n.Link != "" {
		link = s.baseURL + n.Link
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s，你好：\n\n%s\n", name, n.Title)
	if n.Body != "" {
		fmt.Fprintf(&text, "\n%s\n", n.Body)
	}
	if link != "" {
		fmt.Fprintf(&text, "\n查看详情：%s\n", link)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<p>%s，你好：</p><p><strong>%s</strong></p>", html.EscapeString(name), html.EscapeString(n.Title))
	if n.Body != "" {
		fmt.Fprintf(&body, "<p>%s</p>", html.EscapeString(n.Body))
	}
	if link != "" {
		fmt.Fprintf(&body, `<p><a href="%s">查看详情</a></p>`, html.EscapeString(link))
	}
	return text.String(), body.String()
}

// ────────────────────── 收件箱 ──────────────────────

func (s *notificationService) List(ctx context.Context, userID string, req *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error) {
	if !s.features.Notifications {
		return []dto.NotificationResponse{}, 0, nil
	}

	list, total, err := s.repo.Notification.ListByUser(ctx, userID, req.UnreadOnly, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询通知列表失败", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.NotificationResponse, 0, len(list))
	for i := range list {
		result = append(result, toNotificationResponse(&list[i]))
	}
	return result, total, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if !s.features.Notifications {
		return 0, nil
	}
	return s.repo.Notification.CountUnread(ctx, userID)
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id string) error {
	if !s.features.Notifications {
		return ErrNotificationNotFound
	}

	n, err := s.repo.Notification.GetByID(ctx, id)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return ErrNotificationNotFound
		}
		s.logger.Error("查询通知失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if n.UserID != userID {
		return ErrNotificationNotFound
	}
	if n.IsRead() {
		return nil
	}

	if _, err := s.repo.Notification.MarkRead(ctx, id, userID, time.Now().UTC()); err != nil {
		s.logger.Error("标记已读失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if !s.features.Notifications {
		return 0, nil
	}
	n, err := s.repo.Notification.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		s.logger.Error("全部标记已读失败", zap.String("user_id", userID), zap.Error(err))
		return 0, err
	}
	return n, nil
}

// ────────────────────── 通知设置 ──────────────────────

// loadSettings 显式区分「未保存过」与查询失败
func (s *notificationService) loadSettings(ctx context.Context, userID string) (*model.NotificationSettings, bool, error) {
	m, err := s.repo.NotificationSettings.Get(ctx, userID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}

func (s *notificationService) ResolveSettings(ctx context.Context, userID string) (notify.Settings, error) {
	if !s.features.Notifications {
		return s.defaults, nil
	}
	m, found, err := s.loadSettings(ctx, userID)
	if err != nil {
		return s.defaults, err
	}
	if !found {
		return s.defaults, nil
	}
	return toNotifySettings(m, s.defaults), nil
}

func (s *notificationService) GetSettings(ctx context.Context, userID string) (*dto.NotificationSettingsResponse, error) {
	if !s.features.Notifications {
		return settingsResponse(s.defaults, true), nil
	}
	m, found, err := s.loadSettings(ctx, userID)
	if err != nil {
		s.logger.Error("查询通知设置失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	if !found {
		return settingsResponse(s.defaults, true), nil
	}
	return settingsResponse(toNotifySettings(m, s.defaults), false), nil
}

func (s *notificationService) UpdateSettings(ctx context.Context, userID string, req *dto.UpdateNotificationSettingsRequest) (*dto.NotificationSettingsResponse, error) {
	if !s.features.Notifications {
		return nil, ErrFeatureUnavailable
	}

	m, found, err := s.loadSettings(ctx, userID)
	if err != nil {
		s.logger.Error("查询通知设置失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	if !found {
		m = s.defaultSettingsRow(userID)
	}

	if err := applySettingsUpdate(m, req); err != nil {
		return nil, err
	}
	m.UpdatedAt = time.Now().UTC()
	m.UpdatedBy = &userID

	if err := s.repo.NotificationSettings.Upsert(ctx, m); err != nil {
		s.logger.Error("保存通知设置失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return settingsResponse(toNotifySettings(m, s.defaults), false), nil
}

func (s *notificationService) defaultSettingsRow(userID string) *model.NotificationSettings {
	d := s.defaults
	tz := "UTC"
	if d.Location != nil {
		tz = d.Location.String()
	}
	row := &model.NotificationSettings{
		UserID:               userID,
		QuietHoursEnabled:    d.QuietHoursEnabled,
		QuietHoursStart:      timewindow.FormatClock(d.QuietHours.Start),
		QuietHoursEnd:        timewindow.FormatClock(d.QuietHours.End),
		ScheduleEnabled:      d.ScheduleEnabled,
		ScheduleDays:         model.IntArray{},
		ScheduleStart:        timewindow.FormatClock(d.ScheduleWindow.Start),
		ScheduleEnd:          timewindow.FormatClock(d.ScheduleWindow.End),
		EscalationEnabled:    d.EscalationEnabled,
		EscalationDelayHours: int(d.EscalationDelay / time.Hour),
		Timezone:             tz,
	}
	row.CreatedBy = &userID
	return row
}

// applySettingsUpdate 校验并合并更新；任一字段非法时不修改 m
func applySettingsUpdate(m *model.NotificationSettings, req *dto.UpdateNotificationSettingsRequest) error {
	next := *m

	if req.QuietHoursEnabled != nil {
		next.QuietHoursEnabled = *req.QuietHoursEnabled
	}
	if req.QuietHoursStart != nil {
		next.QuietHoursStart = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		next.QuietHoursEnd = *req.QuietHoursEnd
	}
	if _, err := timewindow.New(next.QuietHoursStart, next.QuietHoursEnd); err != nil {
		return fmt.Errorf("%w: 免打扰时段 %v", ErrInvalidSettings, err)
	}

	if req.ScheduleEnabled != nil {
		next.ScheduleEnabled = *req.ScheduleEnabled
	}
	if req.ScheduleDays != nil {
		seen := make(map[int]bool, len(req.ScheduleDays))
		days := make(model.IntArray, 0, len(req.ScheduleDays))
		for _, d := range req.ScheduleDays {
			if _, ok := notify.ISOWeekday(d); !ok {
				return fmt.Errorf("%w: 投递星期 %d 超出 1-7", ErrInvalidSettings, d)
			}
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
		next.ScheduleDays = days
	}
	if req.ScheduleStart != nil {
		next.ScheduleStart = *req.ScheduleStart
	}
	if req.ScheduleEnd != nil {
		next.ScheduleEnd = *req.ScheduleEnd
	}
	if _, err := timewindow.New(next.ScheduleStart, next.ScheduleEnd); err != nil {
		return fmt.Errorf("%w: 投递窗口 %v", ErrInvalidSettings, err)
	}
	if next.ScheduleEnabled && len(next.ScheduleDays) == 0 {
		return fmt.Errorf("%w: 开启投递窗口时至少选择一天", ErrInvalidSettings)
	}

	if req.EscalationEnabled != nil {
		next.EscalationEnabled = *req.EscalationEnabled
	}
	if req.EscalationDelayHours != nil {
		if *req.EscalationDelayHours < 1 {
			return fmt.Errorf("%w: 升级延迟必须为正数", ErrInvalidSettings)
		}
		next.EscalationDelayHours = *req.EscalationDelayHours
	}

	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil || *req.Timezone == "" {
			return fmt.Errorf("%w: 时区 %q 无效", ErrInvalidSettings, *req.Timezone)
		}
		next.Timezone = *req.Timezone
	}

	*m = next
	return nil
}

func toNotificationResponse(n *model.Notification) dto.NotificationResponse {
	resp := dto.NotificationResponse{
		ID:        n.NotificationID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Link:      n.Link,
		TaskID:    n.TaskID,
		IsRead:    n.IsRead(),
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		resp.ReadAt = n.ReadAt.Format(time.RFC3339)
	}
	if n.EmailSentAt != nil {
		resp.EmailSentAt = n.EmailSentAt.Format(time.RFC3339)
	}
	return resp
}
