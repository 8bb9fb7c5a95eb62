package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"homeplanner/backend/internal/model"
	"homeplanner/backend/internal/recurrence"
)

// ── 测试辅助 ──

func setupTestRecurrenceService(horizon int) (RecurrenceService, *testEnv) {
	env := newTestEnv()
	return NewRecurrenceService(env.repo, horizon, time.UTC, nil, zap.NewNop()), env
}

func instanceAt(parentID string, due time.Time) *model.Task {
	return &model.Task{
		TaskID:         "pre",
		HouseID:        "house-1",
		Title:          "倒垃圾",
		Status:         model.TaskStatusTodo,
		ParentID:       &parentID,
		RecurrenceUnit: "none",
		DueDate:        &due,
	}
}

// ── ExpandHouse 测试 ──

func TestRecurrenceService_ExpandHouse_MonthlyExample(t *testing.T) {
	svc, env := setupTestRecurrenceService(90)
	tpl := env.addTemplate("monthly", 1, date(2023, 1, 1))

	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	result, err := svc.ExpandHouse(context.Background(), "house-1", now)
	if err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	if result.Templates != 1 || result.Created != 3 {
		t.Fatalf("期望 templates=1 created=3，实际 %+v", result)
	}

	dates, _ := env.tasks.ListInstanceDueDates(context.Background(), tpl.TaskID)
	got := map[string]bool{}
	for _, d := range dates {
		got[recurrence.DateKey(d)] = true
	}
	for _, want := range []string{"2024-07-01", "2024-08-01", "2024-09-01"} {
		if !got[want] {
			t.Errorf("缺少实例 %s，实际=%v", want, got)
		}
	}
}

func TestRecurrenceService_ExpandHouse_Idempotent(t *testing.T) {
	svc, env := setupTestRecurrenceService(14)
	tpl := env.addTemplate("daily", 1, date(2024, 6, 1))
	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

	first, err := svc.ExpandHouse(context.Background(), "house-1", now)
	if err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	if first.Created != 15 {
		t.Errorf("期望首次创建15个实例（含今天），实际=%d", first.Created)
	}

	second, err := svc.ExpandHouse(context.Background(), "house-1", now)
	if err != nil {
		t.Fatalf("重复 ExpandHouse 应成功: %v", err)
	}
	if second.Created != 0 {
		t.Errorf("重复展开不应新建实例，实际=%d", second.Created)
	}
	if n := env.tasks.instancesOf(tpl.TaskID); n != 15 {
		t.Errorf("期望共15个实例，实际=%d", n)
	}
}

func TestRecurrenceService_ExpandHouse_InstanceInheritsTemplate(t *testing.T) {
	svc, env := setupTestRecurrenceService(7)
	tpl := env.addTemplate("weekly", 1, date(2024, 6, 17))
	env.tasks.tasks[tpl.TaskID].AssigneeID = ptr("bob")
	env.tasks.tasks[tpl.TaskID].ReminderOffsetDays = 2
	env.tasks.tasks[tpl.TaskID].QuietHoursBypass = true

	if _, err := svc.ExpandHouse(context.Background(), "house-1", noon); err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	instances, _ := env.tasks.ListOpenAssigned(context.Background(), "house-1")
	if len(instances) != 2 {
		t.Fatalf("期望2个已指派实例（6/17、6/24），实际=%d", len(instances))
	}
	inst := instances[0]
	if inst.ParentID == nil || *inst.ParentID != tpl.TaskID {
		t.Error("实例应指向模板")
	}
	if *inst.AssigneeID != "bob" || inst.ReminderOffsetDays != 2 || !inst.QuietHoursBypass {
		t.Errorf("实例应继承指派人与投递设置，实际 %+v", inst)
	}
	if inst.CreatedBy == nil || *inst.CreatedBy != "alice" {
		t.Error("实例应继承模板创建人")
	}
	if inst.IsTemplate() {
		t.Error("实例不应被识别为模板")
	}
}

func TestRecurrenceService_ExpandHouse_CatchUpBounded(t *testing.T) {
	svc, env := setupTestRecurrenceService(90)
	tpl := env.addTemplate("daily", 1, date(2021, 6, 15))

	result, err := svc.ExpandHouse(context.Background(), "house-1", time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	// 不回填过去三年的实例，只生成 [today, today+90]
	if result.Created != 91 {
		t.Errorf("期望91个实例，实际=%d", result.Created)
	}
	dates, _ := env.tasks.ListInstanceDueDates(context.Background(), tpl.TaskID)
	for _, d := range dates {
		if d.Before(date(2024, 6, 15)) {
			t.Fatalf("不应生成今天之前的实例: %s", recurrence.DateKey(d))
		}
	}
}

func TestRecurrenceService_ExpandHouse_SkipsExistingInstances(t *testing.T) {
	svc, env := setupTestRecurrenceService(6)
	tpl := env.addTemplate("daily", 2, date(2024, 6, 17))

	// 另一个请求已生成 6/19 的实例
	env.tasks.tasks["pre"] = instanceAt(tpl.TaskID, date(2024, 6, 19))

	result, err := svc.ExpandHouse(context.Background(), "house-1", noon)
	if err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	if result.Created != 3 {
		t.Errorf("期望创建 6/17、6/21、6/23 共3个，实际=%d", result.Created)
	}
}

func TestRecurrenceService_ExpandHouse_EndDate(t *testing.T) {
	svc, env := setupTestRecurrenceService(90)
	tpl := env.addTemplate("weekly", 1, date(2024, 6, 17))
	end := date(2024, 7, 1)
	env.tasks.tasks[tpl.TaskID].RecurrenceEndDate = &end

	result, err := svc.ExpandHouse(context.Background(), "house-1", noon)
	if err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	if result.Created != 3 {
		t.Errorf("期望截止日期内3个实例，实际=%d", result.Created)
	}
}

func TestRecurrenceService_ExpandHouse_FailureIsolated(t *testing.T) {
	svc, env := setupTestRecurrenceService(3)
	broken := env.addTemplate("daily", 1, date(2024, 6, 1))
	healthy := env.addTemplate("daily", 1, date(2024, 6, 1))
	env.tasks.failFor[broken.TaskID] = errors.New("connection reset")

	result, err := svc.ExpandHouse(context.Background(), "house-1", noon)
	if err != nil {
		t.Fatalf("单个模板失败不应中断: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("期望 Failed=1，实际=%d", result.Failed)
	}
	if n := env.tasks.instancesOf(healthy.TaskID); n != 4 {
		t.Errorf("正常模板应生成4个实例，实际=%d", n)
	}
}

func TestRecurrenceService_ExpandHouse_InvalidInterval(t *testing.T) {
	svc, env := setupTestRecurrenceService(30)
	env.addTemplate("monthly", 0, date(2024, 1, 1))

	result, err := svc.ExpandHouse(context.Background(), "house-1", noon)
	if err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	if result.Failed != 1 || result.Created != 0 {
		t.Errorf("非法间隔应计入失败，实际 %+v", result)
	}
}

func TestRecurrenceService_ExpandHouse_StaleSnapshotSkipsDuplicates(t *testing.T) {
	svc, env := setupTestRecurrenceService(30)
	tpl := env.addTemplate("daily", 1, date(2024, 6, 17))

	first, err := svc.ExpandHouse(context.Background(), "house-1", noon)
	if err != nil || first.Created != 31 {
		t.Fatalf("首次展开应创建31个实例，实际 %+v err=%v", first, err)
	}

	// 已有实例查询落后于写入，插入时由唯一约束拦截
	env.tasks.stale = true
	second, err := svc.ExpandHouse(context.Background(), "house-1", noon)
	if err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	if second.Failed != 0 || second.Created != 0 {
		t.Errorf("重复实例应被跳过且不计失败，实际 %+v", second)
	}
	if n := env.tasks.instancesOf(tpl.TaskID); n != 31 {
		t.Errorf("不应产生重复实例，期望31，实际=%d", n)
	}
}

func TestRecurrenceService_ExpandHouse_Concurrent(t *testing.T) {
	svc, env := setupTestRecurrenceService(30)
	tpl := env.addTemplate("daily", 1, date(2024, 6, 17))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		failed  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.ExpandHouse(context.Background(), "house-1", noon)
			if err != nil {
				t.Errorf("ExpandHouse 应成功: %v", err)
				return
			}
			mu.Lock()
			created += result.Created
			failed += result.Failed
			mu.Unlock()
		}()
	}
	wg.Wait()

	if failed != 0 {
		t.Errorf("并发展开不应计入失败，实际 Failed=%d", failed)
	}
	if created != 31 {
		t.Errorf("并发展开合计应创建31个实例，实际=%d", created)
	}
	if n := env.tasks.instancesOf(tpl.TaskID); n != 31 {
		t.Errorf("期望31个实例，实际=%d", n)
	}
}

func TestRecurrenceService_ExpandHouse_AnchorReadInSessionZone(t *testing.T) {
	svc, env := setupTestRecurrenceService(40)
	// 驱动按会话时区返回日期字段：UTC+14 下 6/1 12:00Z 显示为 6/2
	kiritimati := time.FixedZone("LINT", 14*3600)
	tpl := env.addTemplate("monthly", 1, date(2024, 6, 1).In(kiritimati))
	end := date(2024, 7, 1).In(kiritimati)
	env.tasks.tasks[tpl.TaskID].RecurrenceEndDate = &end

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	result, err := svc.ExpandHouse(context.Background(), "house-1", now)
	if err != nil {
		t.Fatalf("ExpandHouse 应成功: %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("期望创建2个实例，实际 %+v", result)
	}

	got := map[string]bool{}
	for _, d := range env.tasks.instanceDates(tpl.TaskID) {
		got[recurrence.DateKey(d)] = true
	}
	for _, want := range []string{"2024-06-01", "2024-07-01"} {
		if !got[want] {
			t.Errorf("缺少实例 %s，实际=%v", want, got)
		}
	}
}
