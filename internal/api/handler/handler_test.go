package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/notify"
	"homeplanner/backend/internal/service"
	"homeplanner/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock HouseService / RecurrenceService / EscalationService ──

type mockHouseService struct {
	agendaResult *dto.AgendaResponse
	agendaErr    error
	agendaDays   int
}

func (m *mockHouseService) Refresh(_ context.Context, _ string, _ time.Time) *dto.RefreshResult {
	return &dto.RefreshResult{}
}
func (m *mockHouseService) RefreshAll(_ context.Context, _ time.Time) (map[string]*dto.RefreshResult, error) {
	return nil, nil
}
func (m *mockHouseService) Agenda(_ context.Context, _, _ string, days int, _ time.Time) (*dto.AgendaResponse, error) {
	m.agendaDays = days
	return m.agendaResult, m.agendaErr
}

type mockRecurrenceService struct {
	result  *dto.ExpandResult
	err     error
	houseID string
}

func (m *mockRecurrenceService) ExpandHouse(_ context.Context, houseID string, _ time.Time) (*dto.ExpandResult, error) {
	m.houseID = houseID
	return m.result, m.err
}

type mockEscalationService struct {
	result *dto.SweepResult
	err    error
}

func (m *mockEscalationService) Sweep(_ context.Context, _ string, _ time.Time) (*dto.SweepResult, error) {
	return m.result, m.err
}

// ── Mock TaskService ──

type mockTaskService struct {
	result   *dto.TaskResponse
	err      error
	callerID string
	houseID  string
}

func (m *mockTaskService) Assign(_ context.Context, houseID, callerID, _ string, _ *dto.AssignTaskRequest) (*dto.TaskResponse, error) {
	m.houseID, m.callerID = houseID, callerID
	return m.result, m.err
}
func (m *mockTaskService) UpdateStatus(_ context.Context, houseID, callerID, _ string, _ *dto.UpdateTaskStatusRequest) (*dto.TaskResponse, error) {
	m.houseID, m.callerID = houseID, callerID
	return m.result, m.err
}

// ── Mock NotificationService ──

type mockNotificationService struct {
	listResult     []dto.NotificationResponse
	listTotal      int64
	markErr        error
	markAllResult  int64
	settingsResult *dto.NotificationSettingsResponse
	settingsErr    error
}

func (m *mockNotificationService) Dispatch(_ context.Context, _ *service.Event) (*model.Notification, bool, error) {
	return nil, false, nil
}
func (m *mockNotificationService) List(_ context.Context, _ string, _ *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error) {
	return m.listResult, m.listTotal, nil
}
func (m *mockNotificationService) UnreadCount(_ context.Context, _ string) (int64, error) {
	return 0, nil
}
func (m *mockNotificationService) MarkRead(_ context.Context, _, _ string) error {
	return m.markErr
}
func (m *mockNotificationService) MarkAllRead(_ context.Context, _ string) (int64, error) {
	return m.markAllResult, m.markErr
}
func (m *mockNotificationService) ResolveSettings(_ context.Context, _ string) (notify.Settings, error) {
	return notify.Settings{}, nil
}
func (m *mockNotificationService) GetSettings(_ context.Context, _ string) (*dto.NotificationSettingsResponse, error) {
	return m.settingsResult, m.settingsErr
}
func (m *mockNotificationService) UpdateSettings(_ context.Context, _ string, _ *dto.UpdateNotificationSettingsRequest) (*dto.NotificationSettingsResponse, error) {
	return m.settingsResult, m.settingsErr
}

// ── Mock ImportantDateService ──

type mockImportantDateService struct {
	result []dto.OccurrenceResponse
	err    error
	days   int
}

func (m *mockImportantDateService) Occurrences(_ context.Context, _, _, _ string) ([]dto.OccurrenceResponse, error) {
	return m.result, m.err
}
func (m *mockImportantDateService) Upcoming(_ context.Context, _ string, days int, _ time.Time) ([]dto.OccurrenceResponse, error) {
	m.days = days
	return m.result, m.err
}
func (m *mockImportantDateService) Between(_ context.Context, _ string, _, _, _ time.Time) ([]dto.OccurrenceResponse, error) {
	return m.result, m.err
}

// ── Mock CalendarService ──

type mockCalendarService struct {
	data     []byte
	filename string
	err      error
	feedURL  *dto.FeedURLResponse
}

func (m *mockCalendarService) ExportICS(_ context.Context, _, _, _ string) ([]byte, string, error) {
	return m.data, m.filename, m.err
}
func (m *mockCalendarService) ExportXLSX(_ context.Context, _, _, _ string) (*bytes.Buffer, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return bytes.NewBuffer(m.data), m.filename, nil
}
func (m *mockCalendarService) FeedURL(_ context.Context, _, _ string) (*dto.FeedURLResponse, error) {
	return m.feedURL, m.err
}
func (m *mockCalendarService) Feed(_ context.Context, _ string, _ time.Time) ([]byte, error) {
	return m.data, m.err
}

// ═══════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════

const (
	testUserID  = "5f0c7a3e-1d2b-4c5a-9e8f-0a1b2c3d4e5f"
	testHouseID = "house-test"
)

func setAuth(c *gin.Context) {
	c.Set("user_id", testUserID)
	c.Set("house_id", testHouseID)
}

// serve 注册单个路由并执行请求；auth 为 true 时注入认证信息
func serve(method, route, target string, body io.Reader, auth bool, h gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	r := gin.New()
	r.Handle(method, route, func(c *gin.Context) {
		if auth {
			setAuth(c)
		}
		h(c)
	})
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

// ═══════════════════════════════════════════════════════════
// ScheduleHandler Tests
// ═══════════════════════════════════════════════════════════

func newScheduleHandler(house *mockHouseService, recur *mockRecurrenceService, esc *mockEscalationService) *ScheduleHandler {
	return NewScheduleHandler(house, recur, esc, zap.NewNop())
}

func TestScheduleHandler_GetAgenda_DefaultDays(t *testing.T) {
	house := &mockHouseService{agendaResult: &dto.AgendaResponse{Today: "2024-06-17"}}
	h := newScheduleHandler(house, &mockRecurrenceService{}, &mockEscalationService{})

	w := serve("GET", "/agenda", "/agenda", nil, true, h.GetAgenda)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if house.agendaDays != defaultAgendaDays {
		t.Errorf("expected default days %d, got %d", defaultAgendaDays, house.agendaDays)
	}
}

func TestScheduleHandler_GetAgenda_InvalidDays(t *testing.T) {
	h := newScheduleHandler(&mockHouseService{}, &mockRecurrenceService{}, &mockEscalationService{})

	w := serve("GET", "/agenda", "/agenda?days=0x", nil, true, h.GetAgenda)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestScheduleHandler_GetAgenda_Unauthenticated(t *testing.T) {
	h := newScheduleHandler(&mockHouseService{}, &mockRecurrenceService{}, &mockEscalationService{})

	w := serve("GET", "/agenda", "/agenda", nil, false, h.GetAgenda)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestScheduleHandler_ExpandRecurrences(t *testing.T) {
	recur := &mockRecurrenceService{result: &dto.ExpandResult{Templates: 2, Created: 5}}
	h := newScheduleHandler(&mockHouseService{}, recur, &mockEscalationService{})

	w := serve("POST", "/recurrence/expand", "/recurrence/expand", nil, true, h.ExpandRecurrences)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if recur.houseID != testHouseID {
		t.Errorf("expected house %s, got %s", testHouseID, recur.houseID)
	}
}

func TestScheduleHandler_SweepEscalations_Error(t *testing.T) {
	esc := &mockEscalationService{err: errors.New("db down")}
	h := newScheduleHandler(&mockHouseService{}, &mockRecurrenceService{}, esc)

	w := serve("POST", "/escalations/sweep", "/escalations/sweep", nil, true, h.SweepEscalations)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// TaskHandler Tests
// ═══════════════════════════════════════════════════════════

func TestTaskHandler_AssignTask_Success(t *testing.T) {
	mock := &mockTaskService{result: &dto.TaskResponse{ID: "t1", Version: 2}}
	h := NewTaskHandler(mock)

	body := jsonBody(map[string]string{"assignee_id": testUserID})
	w := serve("PUT", "/tasks/:id/assignee", "/tasks/t1/assignee", body, true, h.AssignTask)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.callerID != testUserID || mock.houseID != testHouseID {
		t.Errorf("expected identity from context, got caller=%s house=%s", mock.callerID, mock.houseID)
	}
}

func TestTaskHandler_AssignTask_InvalidAssignee(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{})

	body := jsonBody(map[string]string{"assignee_id": "not-a-uuid"})
	w := serve("PUT", "/tasks/:id/assignee", "/tasks/t1/assignee", body, true, h.AssignTask)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestTaskHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{service.ErrTaskNotFound, http.StatusNotFound, 14001},
		{service.ErrTaskIsTemplate, http.StatusBadRequest, 14002},
		{fmt.Errorf("wrap: %w", service.ErrTaskConflict), http.StatusConflict, 14003},
		{service.ErrAssigneeNotMember, http.StatusBadRequest, 14004},
		{errors.New("boom"), http.StatusInternalServerError, 50000},
	}

	for _, tc := range cases {
		h := NewTaskHandler(&mockTaskService{err: tc.err})
		body := jsonBody(dto.UpdateTaskStatusRequest{Status: model.TaskStatusDone})
		w := serve("PUT", "/tasks/:id/status", "/tasks/t1/status", body, true, h.UpdateTaskStatus)

		if w.Code != tc.status {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
		}
		if resp := parseResponse(w); resp.Code != tc.code {
			t.Errorf("%v: expected code %d, got %d", tc.err, tc.code, resp.Code)
		}
	}
}

func TestTaskHandler_UpdateTaskStatus_BadStatus(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{})

	body := jsonBody(map[string]string{"status": "archived"})
	w := serve("PUT", "/tasks/:id/status", "/tasks/t1/status", body, true, h.UpdateTaskStatus)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// NotificationHandler Tests
// ═══════════════════════════════════════════════════════════

func TestNotificationHandler_List_Paged(t *testing.T) {
	mock := &mockNotificationService{
		listResult: []dto.NotificationResponse{{ID: "n1", Type: model.NotificationReminder}},
		listTotal:  41,
	}
	h := NewNotificationHandler(mock)

	w := serve("GET", "/notifications", "/notifications?page=2&page_size=20", nil, true, h.ListNotifications)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data response.PageData `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.Pagination.TotalPages != 3 || resp.Data.Pagination.Page != 2 {
		t.Errorf("unexpected pagination %+v", resp.Data.Pagination)
	}
}

func TestNotificationHandler_MarkRead_NotFound(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{markErr: service.ErrNotificationNotFound})

	w := serve("PUT", "/notifications/:id/read", "/notifications/n1/read", nil, true, h.MarkRead)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestNotificationHandler_MarkAllRead(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{markAllResult: 4})

	w := serve("PUT", "/notifications/read-all", "/notifications/read-all", nil, true, h.MarkAllRead)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"updated":4`) {
		t.Errorf("expected updated count in body, got %s", w.Body.String())
	}
}

func TestNotificationHandler_UpdateSettings_Invalid(t *testing.T) {
	mock := &mockNotificationService{settingsErr: fmt.Errorf("%w: 时区 \"Mars\" 无效", service.ErrInvalidSettings)}
	h := NewNotificationHandler(mock)

	body := jsonBody(map[string]string{"timezone": "Mars"})
	w := serve("PUT", "/notification-settings", "/notification-settings", body, true, h.UpdateSettings)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != 15002 || !strings.Contains(resp.Details, "Mars") {
		t.Errorf("expected code 15002 with details, got %+v", resp)
	}
}

func TestNotificationHandler_UpdateSettings_BindingRejectsDelay(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{})

	body := jsonBody(map[string]int{"escalation_delay_hours": -1})
	w := serve("PUT", "/notification-settings", "/notification-settings", body, true, h.UpdateSettings)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative delay, got %d", w.Code)
	}
}

func TestNotificationHandler_GetSettings_FeatureUnavailable(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationService{settingsErr: service.ErrFeatureUnavailable})

	w := serve("GET", "/notification-settings", "/notification-settings", nil, true, h.GetSettings)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// ImportantDateHandler Tests
// ═══════════════════════════════════════════════════════════

func TestImportantDateHandler_ListOccurrences_MissingRange(t *testing.T) {
	h := NewImportantDateHandler(&mockImportantDateService{}, 30)

	w := serve("GET", "/important-dates/occurrences", "/important-dates/occurrences?from=2025-01-01", nil, true, h.ListOccurrences)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestImportantDateHandler_ListOccurrences_InvalidRange(t *testing.T) {
	h := NewImportantDateHandler(&mockImportantDateService{err: fmt.Errorf("%w: 结束日期早于开始日期", service.ErrInvalidDateRange)}, 30)

	w := serve("GET", "/important-dates/occurrences", "/important-dates/occurrences?from=2025-06-01&to=2025-01-01", nil, true, h.ListOccurrences)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 16001 {
		t.Errorf("expected code 16001, got %d", resp.Code)
	}
}

func TestImportantDateHandler_ListUpcoming_DefaultDays(t *testing.T) {
	mock := &mockImportantDateService{result: []dto.OccurrenceResponse{{ID: "bday:2024", Date: "2024-06-20"}}}
	h := NewImportantDateHandler(mock, 45)

	w := serve("GET", "/important-dates/upcoming", "/important-dates/upcoming", nil, true, h.ListUpcoming)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.days != 45 {
		t.Errorf("expected configured lookahead 45, got %d", mock.days)
	}
}

// ═══════════════════════════════════════════════════════════
// CalendarHandler Tests
// ═══════════════════════════════════════════════════════════

func TestCalendarHandler_ExportICS_Attachment(t *testing.T) {
	mock := &mockCalendarService{data: []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), filename: "家庭日程.ics"}
	h := NewCalendarHandler(mock)

	w := serve("GET", "/calendar/export.ics", "/calendar/export.ics?from=2024-06-01&to=2024-06-30", nil, true, h.ExportICS)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("expected text/calendar, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename*=UTF-8''") {
		t.Errorf("unexpected Content-Disposition %s", cd)
	}
}

func TestCalendarHandler_ExportXLSX(t *testing.T) {
	mock := &mockCalendarService{data: []byte("PK"), filename: "schedule.xlsx"}
	h := NewCalendarHandler(mock)

	w := serve("GET", "/calendar/export.xlsx", "/calendar/export.xlsx?from=2024-06-01&to=2024-06-30", nil, true, h.ExportXLSX)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != mimeXLSX {
		t.Errorf("expected xlsx mime, got %s", ct)
	}
}

func TestCalendarHandler_Feed_InvalidToken(t *testing.T) {
	h := NewCalendarHandler(&mockCalendarService{err: service.ErrInvalidFeedToken})

	w := serve("GET", "/calendar/feed/:token", "/calendar/feed/bad", nil, false, h.Feed)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCalendarHandler_GetFeedURL(t *testing.T) {
	mock := &mockCalendarService{feedURL: &dto.FeedURLResponse{URL: "https://home.example.com/calendar/feed/x"}}
	h := NewCalendarHandler(mock)

	w := serve("GET", "/calendar/feed-url", "/calendar/feed-url", nil, true, h.GetFeedURL)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/calendar/feed/x") {
		t.Errorf("expected feed url in body, got %s", w.Body.String())
	}
}
