package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"homeplanner/backend/internal/dto"
	"homeplanner/backend/internal/model"
)

// ── 测试辅助 ──

func setupTestTaskService() (TaskService, *testEnv) {
	env := newTestEnv()
	notif := env.notificationService(AllFeatures())
	return NewTaskService(env.repo, notif, zap.NewNop()), env
}

// ── Assign 测试 ──

func TestTaskService_Assign_NotifiesAssignee(t *testing.T) {
	svc, env := setupTestTaskService()
	task := env.addTask("浇花", date(2024, 6, 20), "alice", "")

	resp, err := svc.Assign(context.Background(), "house-1", "alice", task.TaskID,
		&dto.AssignTaskRequest{AssigneeID: ptr("bob")})
	if err != nil {
		t.Fatalf("Assign 应成功: %v", err)
	}
	if resp.AssigneeID == nil || *resp.AssigneeID != "bob" {
		t.Errorf("期望指派人=bob，实际=%v", resp.AssigneeID)
	}
	if resp.Version != 2 {
		t.Errorf("期望版本号递增为2，实际=%d", resp.Version)
	}

	assigned := env.notifs.ofType(model.NotificationAssigned)
	if len(assigned) != 1 || assigned[0].UserID != "bob" {
		t.Fatalf("期望向 bob 发送1条指派通知，实际=%v", assigned)
	}
}

func TestTaskService_Assign_SelfOrUnchangedNoNotification(t *testing.T) {
	svc, env := setupTestTaskService()
	ctx := context.Background()
	task := env.addTask("浇花", date(2024, 6, 20), "alice", "bob")

	resp, err := svc.Assign(ctx, "house-1", "alice", task.TaskID, &dto.AssignTaskRequest{AssigneeID: ptr("bob")})
	if err != nil {
		t.Fatalf("Assign 应成功: %v", err)
	}
	if resp.Version != 1 {
		t.Errorf("指派人未变化时不应写库，实际版本=%d", resp.Version)
	}

	if _, err := svc.Assign(ctx, "house-1", "alice", task.TaskID, &dto.AssignTaskRequest{AssigneeID: ptr("alice")}); err != nil {
		t.Fatalf("Assign 应成功: %v", err)
	}
	if n := len(env.notifs.ofType(model.NotificationAssigned)); n != 0 {
		t.Errorf("指派给自己不应发送通知，实际=%d", n)
	}
}

func TestTaskService_Assign_Unassign(t *testing.T) {
	svc, env := setupTestTaskService()
	task := env.addTask("浇花", date(2024, 6, 20), "alice", "bob")

	resp, err := svc.Assign(context.Background(), "house-1", "alice", task.TaskID, &dto.AssignTaskRequest{})
	if err != nil {
		t.Fatalf("取消指派应成功: %v", err)
	}
	if resp.AssigneeID != nil {
		t.Errorf("期望指派人为空，实际=%v", *resp.AssigneeID)
	}
}

func TestTaskService_Assign_NotMember(t *testing.T) {
	svc, env := setupTestTaskService()
	task := env.addTask("浇花", date(2024, 6, 20), "alice", "")

	_, err := svc.Assign(context.Background(), "house-1", "alice", task.TaskID,
		&dto.AssignTaskRequest{AssigneeID: ptr("stranger")})
	if !errors.Is(err, ErrAssigneeNotMember) {
		t.Errorf("期望 ErrAssigneeNotMember，实际: %v", err)
	}
}

func TestTaskService_Assign_OtherHouse(t *testing.T) {
	svc, env := setupTestTaskService()
	env.houses.add("house-2", "bob")
	task := env.addTask("浇花", date(2024, 6, 20), "alice", "")

	_, err := svc.Assign(context.Background(), "house-2", "bob", task.TaskID, &dto.AssignTaskRequest{AssigneeID: ptr("bob")})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("跨家庭访问应返回 ErrTaskNotFound，实际: %v", err)
	}
	_, err = svc.Assign(context.Background(), "house-1", "alice", "missing", &dto.AssignTaskRequest{})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("期望 ErrTaskNotFound，实际: %v", err)
	}
}

// ── UpdateStatus 测试 ──

func TestTaskService_UpdateStatus_DoneNotifiesCreator(t *testing.T) {
	svc, env := setupTestTaskService()
	task := env.addTask("浇花", date(2024, 6, 20), "alice", "bob")

	resp, err := svc.UpdateStatus(context.Background(), "house-1", "bob", task.TaskID,
		&dto.UpdateTaskStatusRequest{Status: model.TaskStatusDone})
	if err != nil {
		t.Fatalf("UpdateStatus 应成功: %v", err)
	}
	if resp.Status != model.TaskStatusDone || resp.CompletedAt == "" {
		t.Errorf("完成后应记录完成时间，实际 %+v", resp)
	}
	status := env.notifs.ofType(model.NotificationStatus)
	if len(status) != 1 || status[0].UserID != "alice" {
		t.Fatalf("期望向创建人 alice 发送状态通知，实际=%v", status)
	}

	reopened, err := svc.UpdateStatus(context.Background(), "house-1", "bob", task.TaskID,
		&dto.UpdateTaskStatusRequest{Status: model.TaskStatusTodo})
	if err != nil {
		t.Fatalf("UpdateStatus 应成功: %v", err)
	}
	if reopened.CompletedAt != "" {
		t.Error("重新打开后应清空完成时间")
	}
	if n := len(env.notifs.ofType(model.NotificationStatus)); n != 2 {
		t.Errorf("每次状态变更各发一条通知，实际=%d", n)
	}
}

func TestTaskService_UpdateStatus_TemplateRejected(t *testing.T) {
	svc, env := setupTestTaskService()
	tpl := env.addTemplate("weekly", 1, date(2024, 6, 17))

	_, err := svc.UpdateStatus(context.Background(), "house-1", "alice", tpl.TaskID,
		&dto.UpdateTaskStatusRequest{Status: model.TaskStatusDone})
	if !errors.Is(err, ErrTaskIsTemplate) {
		t.Errorf("期望 ErrTaskIsTemplate，实际: %v", err)
	}
}

func TestTaskService_UpdateStatus_Invalid(t *testing.T) {
	svc, env := setupTestTaskService()
	task := env.addTask("浇花", date(2024, 6, 20), "alice", "bob")

	_, err := svc.UpdateStatus(context.Background(), "house-1", "bob", task.TaskID,
		&dto.UpdateTaskStatusRequest{Status: "archived"})
	if !errors.Is(err, ErrInvalidTaskStatus) {
		t.Errorf("期望 ErrInvalidTaskStatus，实际: %v", err)
	}
}
