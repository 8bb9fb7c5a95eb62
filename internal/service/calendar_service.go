package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/recurrence"
	"homeplanner/backend/internal/repository"
	"homeplanner/backend/pkg/jwt"
)

// feedLookbackDays 订阅源包含的历史天数
const feedLookbackDays = 30

// ── 日历模块业务错误 ──

var (
	ErrInvalidFeedToken     = errors.New("订阅链接无效或已过期")
	ErrCalendarGenerateFail = errors.New("生成日历文件失败")
)

// CalendarService 日历导出接口
//
// 导出内容为区间内有到期日的任务（不含周期模板）与重要日期的出现；
// UID 由任务 ID 或重要日期出现 ID 派生，重复导出时订阅端能识别为同一事件。
type CalendarService interface {
	ExportICS(ctx context.Context, houseID, from, to string) ([]byte, string, error)
	ExportXLSX(ctx context.Context, houseID, from, to string) (*bytes.Buffer, string, error)
	// FeedURL 生成长期有效的订阅链接，无需登录即可被日历客户端拉取
	FeedURL(ctx context.Context, userID, houseID string) (*dto.FeedURLResponse, error)
	// Feed 校验订阅令牌并返回最近 30 天到展开窗口末尾的 ICS
	Feed(ctx context.Context, token string, now time.Time) ([]byte, error)
}

type calendarService struct {
	repo        *repository.Repository
	dates       ImportantDateService
	jwtMgr      *jwt.Manager
	baseURL     string
	uidHost     string
	horizonDays int
	loc         *time.Location
	logger      *zap.Logger
}

// NewCalendarService 创建 CalendarService 实例
func NewCalendarService(
	repo *repository.Repository,
	dates ImportantDateService,
	jwtMgr *jwt.Manager,
	baseURL string,
	horizonDays int,
	loc *time.Location,
	logger *zap.Logger,
) CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &calendarService{
		repo:        repo,
		dates:       dates,
		jwtMgr:      jwtMgr,
		baseURL:     baseURL,
		uidHost:     uidHost(baseURL),
		horizonDays: horizonDays,
		loc:         loc,
		logger:      logger,
	}
}

// calendarEntry 导出的一行；任务与重要日期统一为全天事件
type calendarEntry struct {
	uid      string
	date     time.Time
	title    string
	kind     string // task | birthday | anniversary | other
	status   string
	assignee string
	link     string
	note     string
}

// ────────────────────── ICS ──────────────────────

func (s *calendarService) ExportICS(ctx context.Context, houseID, from, to string) ([]byte, string, error) {
	start, end, err := ParseDateRange(from, to)
	if err != nil {
		return nil, "", err
	}
	entries, err := s.collect(ctx, houseID, start, end, false)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("日程_%s_%s.ics", recurrence.DateKey(start), recurrence.DateKey(end))
	return s.renderICS(entries, time.Now()), filename, nil
}

func (s *calendarService) renderICS(entries []calendarEntry, stamp time.Time) []byte {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//homeplanner//agenda//ZH")
	cal.SetXWRCalName("家庭日程")

	for _, e := range entries {
		ev := cal.AddEvent(e.uid)
		ev.SetDtStampTime(stamp.UTC())
		ev.SetAllDayStartAt(e.date)
		ev.SetAllDayEndAt(e.date.AddDate(0, 0, 1))
		ev.SetSummary(e.title)
		if e.note != "" {
			ev.SetDescription(e.note)
		}
		if e.link != "" {
			ev.SetURL(e.link)
		}
	}
	return []byte(cal.Serialize())
}

// ────────────────────── XLSX ──────────────────────

func (s *calendarService) ExportXLSX(ctx context.Context, houseID, from, to string) (*bytes.Buffer, string, error) {
	start, end, err := ParseDateRange(from, to)
	if err != nil {
		return nil, "", err
	}
	entries, err := s.collect(ctx, houseID, start, end, true)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "日程"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "B", 10)
	f.SetColWidth(sheetName, "C", "C", 32)
	f.SetColWidth(sheetName, "D", "D", 10)
	f.SetColWidth(sheetName, "E", "E", 14)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetCellValue(sheetName, "A1", fmt.Sprintf("家庭日程 %s ~ %s", recurrence.DateKey(start), recurrence.DateKey(end)))
	f.MergeCell(sheetName, "A1", "E1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	headers := []string{"日期", "类型", "标题", "状态", "指派人"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(sheetName, "A2", "E2", headerStyle)

	row := 3
	for _, e := range entries {
		f.SetCellValue(sheetName, cell("A", row), recurrence.DateKey(e.date))
		f.SetCellValue(sheetName, cell("B", row), kindLabel(e.kind))
		f.SetCellValue(sheetName, cell("C", row), e.title)
		f.SetCellValue(sheetName, cell("D", row), e.status)
		f.SetCellValue(sheetName, cell("E", row), e.assignee)
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrCalendarGenerateFail
	}
	filename := fmt.Sprintf("日程_%s_%s.xlsx", recurrence.DateKey(start), recurrence.DateKey(end))
	return buf, filename, nil
}

// ────────────────────── 订阅 ──────────────────────

func (s *calendarService) FeedURL(_ context.Context, userID, houseID string) (*dto.FeedURLResponse, error) {
	token, err := s.jwtMgr.GenerateFeedToken(userID, houseID)
	if err != nil {
		s.logger.Error("生成订阅令牌失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	claims, err := s.jwtMgr.ParseFeedToken(token)
	if err != nil {
		return nil, err
	}
	return &dto.FeedURLResponse{
		URL:       fmt.Sprintf("%s/calendar/feed/%s", s.baseURL, url.PathEscape(token)),
		ExpiresAt: claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	}, nil
}

func (s *calendarService) Feed(ctx context.Context, token string, now time.Time) ([]byte, error) {
	claims, err := s.jwtMgr.ParseFeedToken(token)
	if err != nil {
		return nil, ErrInvalidFeedToken
	}

	// 成员退出家庭后订阅链接随之失效
	ok, err := s.repo.House.IsMember(ctx, claims.HouseID, claims.UserID)
	if err != nil {
		s.logger.Error("校验订阅成员失败", zap.String("house_id", claims.HouseID), zap.Error(err))
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidFeedToken
	}

	today := recurrence.Today(now, s.loc)
	entries, err := s.collect(ctx, claims.HouseID, today.AddDate(0, 0, -feedLookbackDays), today.AddDate(0, 0, s.horizonDays), false)
	if err != nil {
		return nil, err
	}
	return s.renderICS(entries, now), nil
}

// ── 辅助函数 ──

// collect 汇总区间内的任务与重要日期出现，按日期、标题排序
func (s *calendarService) collect(ctx context.Context, houseID string, from, to time.Time, withNames bool) ([]calendarEntry, error) {
	tasks, err := s.repo.Task.ListDueBetween(ctx, houseID, from, to.Add(12*time.Hour-time.Nanosecond))
	if err != nil {
		s.logger.Error("查询区间任务失败", zap.String("house_id", houseID), zap.Error(err))
		return nil, err
	}
	occ, err := s.dates.Between(ctx, houseID, from, to, time.Time{})
	if err != nil {
		return nil, err
	}

	names := map[string]string{}
	if withNames {
		names, err = s.assigneeNames(ctx, tasks)
		if err != nil {
			return nil, err
		}
	}

	entries := make([]calendarEntry, 0, len(tasks)+len(occ))
	for i := range tasks {
		t := &tasks[i]
		if t.DueDate == nil {
			continue
		}
		e := calendarEntry{
			uid:    fmt.Sprintf("task-%s@%s", t.TaskID, s.uidHost),
			date:   recurrence.NormalizeDate(t.DueDate.UTC()),
			title:  t.Title,
			kind:   "task",
			status: statusLabels[t.Status],
			link:   s.baseURL + taskLink(t.TaskID),
			note:   t.Description,
		}
		if t.AssigneeID != nil {
			e.assignee = names[*t.AssigneeID]
		}
		entries = append(entries, e)
	}
	for _, o := range occ {
		date, err := recurrence.ParseDate(o.Date)
		if err != nil {
			continue
		}
		entries = append(entries, calendarEntry{
			uid:   fmt.Sprintf("date-%s-%s@%s", o.SourceID, occurrenceSuffix(o), s.uidHost),
			date:  date,
			title: o.Title,
			kind:  o.Kind,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].date.Equal(entries[j].date) {
			return entries[i].date.Before(entries[j].date)
		}
		return entries[i].title < entries[j].title
	})
	return entries, nil
}

func (s *calendarService) assigneeNames(ctx context.Context, tasks []model.Task) (map[string]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range tasks {
		if t.AssigneeID != nil && !seen[*t.AssigneeID] {
			seen[*t.AssigneeID] = true
			ids = append(ids, *t.AssigneeID)
		}
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	users, err := s.repo.User.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询指派人失败", zap.Error(err))
		return nil, err
	}
	for _, u := range users {
		names[u.UserID] = u.Name
	}
	return names, nil
}

// occurrenceSuffix 重复日期取年份，一次性日期取具体日期
func occurrenceSuffix(o dto.OccurrenceResponse) string {
	if i := strings.LastIndex(o.ID, ":"); i >= 0 {
		return o.ID[i+1:]
	}
	return o.Date
}

func uidHost(baseURL string) string {
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "homeplanner.local"
}

var kindLabels = map[string]string{
	"task":        "任务",
	"birthday":    "生日",
	"anniversary": "纪念日",
	"other":       "重要日期",
}

func kindLabel(kind string) string {
	if l, ok := kindLabels[kind]; ok {
		return l
	}
	return kindLabels["other"]
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
