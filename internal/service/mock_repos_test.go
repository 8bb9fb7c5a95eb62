package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/recurrence"
	"homeplanner/backend/internal/repository"
	pkgerrors "homeplanner/backend/pkg/errors"
	"homeplanner/backend/pkg/mailer"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) add(id, name, email string) {
	m.users[id] = &model.User{UserID: id, Name: name, Email: email}
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) ListByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var result []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result = append(result, *u)
		}
	}
	return result, nil
}

// ── Mock HouseRepository ──

type mockHouseRepo struct {
	houses  map[string]*model.House
	members map[string]map[string]bool // houseID → userID
}

func newMockHouseRepo() *mockHouseRepo {
	return &mockHouseRepo{
		houses:  make(map[string]*model.House),
		members: make(map[string]map[string]bool),
	}
}

func (m *mockHouseRepo) add(id, ownerID string, memberIDs ...string) {
	m.houses[id] = &model.House{HouseID: id, Name: "家-" + id, OwnerID: ownerID}
	m.members[id] = map[string]bool{}
	for _, uid := range memberIDs {
		m.members[id][uid] = true
	}
}

func (m *mockHouseRepo) GetByID(_ context.Context, id string) (*model.House, error) {
	if h, ok := m.houses[id]; ok {
		c := *h
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockHouseRepo) IsMember(_ context.Context, houseID, userID string) (bool, error) {
	h, ok := m.houses[houseID]
	if !ok {
		return false, nil
	}
	return h.OwnerID == userID || m.members[houseID][userID], nil
}

func (m *mockHouseRepo) ListIDs(_ context.Context) ([]string, error) {
	var ids []string
	for id := range m.houses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ── Mock TaskRepository ──

type mockTaskRepo struct {
	mu      sync.Mutex
	tasks   map[string]*model.Task
	seq     int
	failFor map[string]error // 按模板 ID 注入 Create 失败
	stale   bool             // ListInstanceDueDates 返回空快照，模拟并发写入尚未可见
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[string]*model.Task), failFor: make(map[string]error)}
}

func (m *mockTaskRepo) Create(_ context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ParentID != nil {
		if err, ok := m.failFor[*task.ParentID]; ok {
			return err
		}
		for _, t := range m.tasks {
			if t.ParentID != nil && *t.ParentID == *task.ParentID &&
				t.DueDate != nil && task.DueDate != nil &&
				recurrence.DateKey(*t.DueDate) == recurrence.DateKey(*task.DueDate) {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	if task.TaskID == "" {
		m.seq++
		task.TaskID = fmt.Sprintf("task-%d", m.seq)
	}
	if task.Version == 0 {
		task.Version = 1
	}
	if task.Status == "" {
		task.Status = model.TaskStatusTodo
	}
	c := *task
	m.tasks[task.TaskID] = &c
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTaskRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Task, error) {
	return m.GetByID(ctx, id)
}

func (m *mockTaskRepo) Update(_ context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[task.TaskID]
	if !ok || cur.Version != task.Version {
		return pkgerrors.ErrOptimisticLock
	}
	task.Version++
	c := *task
	m.tasks[task.TaskID] = &c
	return nil
}

func (m *mockTaskRepo) ListTemplates(_ context.Context, houseID string) ([]model.Task, error) {
	return m.filter(func(t *model.Task) bool {
		return t.HouseID == houseID && t.IsTemplate() && t.DueDate != nil
	}), nil
}

func (m *mockTaskRepo) ListInstanceDueDates(_ context.Context, parentID string) ([]time.Time, error) {
	if m.stale {
		return nil, nil
	}
	return m.instanceDates(parentID), nil
}

func (m *mockTaskRepo) instanceDates(parentID string) []time.Time {
	var dates []time.Time
	for _, t := range m.filter(func(t *model.Task) bool {
		return t.ParentID != nil && *t.ParentID == parentID && t.DueDate != nil
	}) {
		dates = append(dates, *t.DueDate)
	}
	return dates
}

func (m *mockTaskRepo) ListOpenAssigned(_ context.Context, houseID string) ([]model.Task, error) {
	return m.filter(func(t *model.Task) bool {
		return t.HouseID == houseID && !t.IsTemplate() && t.IsOpen() && t.AssigneeID != nil
	}), nil
}

func (m *mockTaskRepo) ListDueBetween(_ context.Context, houseID string, from, to time.Time) ([]model.Task, error) {
	return m.filter(func(t *model.Task) bool {
		return t.HouseID == houseID && !t.IsTemplate() && t.DueDate != nil &&
			!t.DueDate.Before(from) && !t.DueDate.After(to)
	}), nil
}

// filter 返回按到期日、ID 排序的副本
func (m *mockTaskRepo) filter(keep func(*model.Task) bool) []model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Task
	for _, t := range m.tasks {
		if keep(t) {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].DueDate, result[j].DueDate
		if a != nil && b != nil && !a.Equal(*b) {
			return a.Before(*b)
		}
		return result[i].TaskID < result[j].TaskID
	})
	return result
}

// instancesOf 模板下的实例数
func (m *mockTaskRepo) instancesOf(parentID string) int {
	return len(m.instanceDates(parentID))
}

// ── Mock ImportantDateRepository ──

type mockImportantDateRepo struct {
	dates []model.ImportantDate
}

func newMockImportantDateRepo() *mockImportantDateRepo {
	return &mockImportantDateRepo{}
}

func (m *mockImportantDateRepo) ListByHouse(_ context.Context, houseID string) ([]model.ImportantDate, error) {
	var result []model.ImportantDate
	for _, d := range m.dates {
		if d.HouseID == houseID {
			result = append(result, d)
		}
	}
	return result, nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	mu    sync.Mutex
	items map[string]*model.Notification
	seq   int
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{items: make(map[string]*model.Notification)}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.DedupeKey != nil {
		for _, e := range m.items {
			if e.DedupeKey != nil && *e.DedupeKey == *n.DedupeKey {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	m.seq++
	if n.NotificationID == "" {
		n.NotificationID = fmt.Sprintf("n-%d", m.seq)
	}
	c := *n
	m.items[n.NotificationID] = &c
	return nil
}

func (m *mockNotificationRepo) GetByID(_ context.Context, id string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.items[id]; ok {
		c := *n
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) GetByDedupeKey(_ context.Context, key string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.DedupeKey != nil && *n.DedupeKey == key {
			c := *n
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) LatestForTask(_ context.Context, taskID, userID string, types []string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	var latest *model.Notification
	for _, n := range m.items {
		if n.TaskID == nil || *n.TaskID != taskID || n.UserID != userID || !allowed[n.Type] {
			continue
		}
		if latest == nil || n.CreatedAt.After(latest.CreatedAt) {
			latest = n
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	c := *latest
	return &c, nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Notification, int64, error) {
	all := m.byUser(userID, unreadOnly)
	total := int64(len(all))
	if offset >= len(all) {
		return []model.Notification{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockNotificationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	return int64(len(m.byUser(userID, true))), nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID || n.ReadAt != nil {
		return 0, nil
	}
	n.ReadAt = &at
	return 1, nil
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.items {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) MarkEmailSent(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.items[id]; ok {
		n.EmailSentAt = &at
	}
	return nil
}

// byUser 按创建时间倒序
func (m *mockNotificationRepo) byUser(userID string, unreadOnly bool) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Notification
	for _, n := range m.items {
		if n.UserID != userID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		result = append(result, *n)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].NotificationID > result[j].NotificationID
	})
	return result
}

// ofType 指定类型的全部通知
func (m *mockNotificationRepo) ofType(notificationType string) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Notification
	for _, n := range m.items {
		if n.Type == notificationType {
			result = append(result, *n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result
}

// ── Mock NotificationSettingsRepository ──

type mockSettingsRepo struct {
	settings map[string]*model.NotificationSettings
}

func newMockSettingsRepo() *mockSettingsRepo {
	return &mockSettingsRepo{settings: make(map[string]*model.NotificationSettings)}
}

func (m *mockSettingsRepo) Get(_ context.Context, userID string) (*model.NotificationSettings, error) {
	if s, ok := m.settings[userID]; ok {
		c := *s
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSettingsRepo) Upsert(_ context.Context, s *model.NotificationSettings) error {
	c := *s
	m.settings[s.UserID] = &c
	return nil
}

// ── Fake mailer.Sender ──

type fakeSender struct {
	mu         sync.Mutex
	sent       []*mailer.Message
	configured bool
	err        error
}

func newFakeSender() *fakeSender {
	return &fakeSender{configured: true}
}

func (f *fakeSender) Send(_ context.Context, msg *mailer.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if !f.configured {
		return false, nil
	}
	f.sent = append(f.sent, msg)
	return true, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// ── 测试装配 ──

type testEnv struct {
	repo     *repository.Repository
	users    *mockUserRepo
	houses   *mockHouseRepo
	tasks    *mockTaskRepo
	dates    *mockImportantDateRepo
	notifs   *mockNotificationRepo
	settings *mockSettingsRepo
	mail     *fakeSender
}

// newTestEnv 预置家庭 house-1：负责人 owner，成员 alice、bob
func newTestEnv() *testEnv {
	env := &testEnv{
		users:    newMockUserRepo(),
		houses:   newMockHouseRepo(),
		tasks:    newMockTaskRepo(),
		dates:    newMockImportantDateRepo(),
		notifs:   newMockNotificationRepo(),
		settings: newMockSettingsRepo(),
		mail:     newFakeSender(),
	}
	env.repo = &repository.Repository{
		User:                 env.users,
		House:                env.houses,
		Task:                 env.tasks,
		ImportantDate:        env.dates,
		Notification:         env.notifs,
		NotificationSettings: env.settings,
	}

	env.users.add("owner", "负责人", "owner@example.com")
	env.users.add("alice", "Alice", "alice@example.com")
	env.users.add("bob", "Bob", "bob@example.com")
	env.houses.add("house-1", "owner", "alice", "bob")
	return env
}

func ptr[T any](v T) *T { return &v }

// date 构造归一化日期
func date(y int, m time.Month, d int) time.Time {
	return recurrence.NormalizeDate(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// addTemplate 新增周期模板，创建人为 alice
func (e *testEnv) addTemplate(unit string, interval int, anchor time.Time) *model.Task {
	tpl := &model.Task{
		HouseID:            "house-1",
		Title:              "倒垃圾",
		IsRecurring:        true,
		RecurrenceUnit:     unit,
		RecurrenceInterval: interval,
		DueDate:            &anchor,
	}
	tpl.CreatedBy = ptr("alice")
	_ = e.tasks.Create(context.Background(), tpl)
	return tpl
}

// addTask 新增普通任务
func (e *testEnv) addTask(title string, due time.Time, creator, assignee string) *model.Task {
	t := &model.Task{
		HouseID: "house-1",
		Title:   title,
		DueDate: &due,
	}
	if creator != "" {
		t.CreatedBy = ptr(creator)
	}
	if assignee != "" {
		t.AssigneeID = ptr(assignee)
	}
	_ = e.tasks.Create(context.Background(), t)
	return t
}
