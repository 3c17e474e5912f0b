package project

import (
	"Guides-Server/model"
	"database/sql"
	"testing"
)

// fakeProjectRepo 内存假仓库
type fakeProjectRepo struct {
	total    int
	projects []model.Project
	created  *model.Project
	owned    int
	opened   int64
	closed   int64
}

func (f *fakeProjectRepo) CountProjects(username, query string) (int, error) { return f.total, nil }

func (f *fakeProjectRepo) ListProjects(username, query string, limit, offset int) ([]model.Project, error) {
	return f.projects, nil
}

func (f *fakeProjectRepo) ListAllProjects(username, query string) ([]model.Project, error) {
	return f.projects, nil
}

func (f *fakeProjectRepo) GetProject(id int, username string) (*model.Project, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeProjectRepo) GetProjectByUID(uid string) (*model.Project, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeProjectRepo) CreateProject(p *model.Project, username, userID string) (*model.Project, error) {
	f.created = p
	return p, nil
}

func (f *fakeProjectRepo) UpdateProject(p *model.Project, username string) (*model.Project, error) {
	return p, nil
}

func (f *fakeProjectRepo) UpdateProjectStatus(id, status int, username string) error { return nil }

func (f *fakeProjectRepo) CountOwned(ids []int, username string) (int, error) { return f.owned, nil }

func (f *fakeProjectRepo) DeleteCascadeTx(tx *sql.Tx, projectID int, username string) error {
	return nil
}

func (f *fakeProjectRepo) OpenDueProjects() (int64, error)     { return f.opened, nil }
func (f *fakeProjectRepo) CloseExpiredProjects() (int64, error) { return f.closed, nil }

func strPtr(s string) *string { return &s }

func TestCreateAppliesDefaults(t *testing.T) {
	repo := &fakeProjectRepo{}
	svc := NewService(repo)

	p := &model.Project{ProjectName: "灰度感知实验"}
	if _, err := svc.Create(p, "alice", "u-1"); err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if repo.created.ImageCount != 10 {
		t.Errorf("默认图片数量错误: %d", repo.created.ImageCount)
	}
	if repo.created.ImageDuration != 5 {
		t.Errorf("默认展示时长错误: %v", repo.created.ImageDuration)
	}
}

func TestCreateWindowOrderChecked(t *testing.T) {
	svc := NewService(&fakeProjectRepo{})

	p := &model.Project{
		ProjectName: "时间窗口倒置",
		StartAt:     strPtr("2026-09-02 10:00:00"),
		EndAt:       strPtr("2026-09-01 10:00:00"),
	}
	if _, err := svc.Create(p, "alice", "u-1"); err == nil {
		t.Error("结束时间早于开始时间应当报错")
	}
}

func TestCreateNormalizesRFC3339Window(t *testing.T) {
	repo := &fakeProjectRepo{}
	svc := NewService(repo)

	p := &model.Project{
		ProjectName: "窗口格式化",
		StartAt:     strPtr("2026-09-01T10:00:00Z"),
	}
	if _, err := svc.Create(p, "alice", "u-1"); err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if repo.created.StartAt == nil {
		t.Fatal("开始时间被丢弃")
	}
	if len(*repo.created.StartAt) != len("2006-01-02 15:04:05") {
		t.Errorf("时间未规范化: %s", *repo.created.StartAt)
	}
}

func TestCreateDropsInvalidWindow(t *testing.T) {
	repo := &fakeProjectRepo{}
	svc := NewService(repo)

	p := &model.Project{
		ProjectName: "非法时间",
		StartAt:     strPtr("下周三"),
	}
	if _, err := svc.Create(p, "alice", "u-1"); err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if repo.created.StartAt != nil {
		t.Errorf("非法时间应被置空, got %s", *repo.created.StartAt)
	}
}

func TestListPageClamped(t *testing.T) {
	repo := &fakeProjectRepo{total: 25}
	svc := NewService(repo)

	_, total, totalPages, err := svc.List("alice", "", 0, 1000)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if total != 25 {
		t.Errorf("总数错误: %d", total)
	}
	// 非法分页参数回落为 pageSize=10
	if totalPages != 3 {
		t.Errorf("总页数错误: %d", totalPages)
	}
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	svc := NewService(&fakeProjectRepo{})

	if err := svc.SetStatus(1, 9, "alice"); err == nil {
		t.Error("未知状态应当报错")
	}
	if err := svc.SetStatus(1, model.ProjectStatusOpen, "alice"); err != nil {
		t.Errorf("合法状态不应报错: %v", err)
	}
}

func TestDeleteBatchOwnershipChecked(t *testing.T) {
	repo := &fakeProjectRepo{owned: 1}
	svc := NewService(repo)

	// 请求2个但只拥有1个，整批拒绝
	if err := svc.DeleteBatch(nil, []int{1, 2}, "alice"); err == nil {
		t.Error("部分无权限应当报错")
	}

	repo.owned = 2
	if err := svc.DeleteBatch(nil, []int{1, 2}, "alice"); err != nil {
		t.Errorf("全部有权限不应报错: %v", err)
	}
}
