package score

import (
	"Guides-Server/model"
	"testing"
)

// fakeRepository 内存假仓库，按需配置返回值
type fakeRepository struct {
	projectByImage map[int64]int
	closedProjects map[int]bool
	ranges         map[int][2]float64
	saveErr        error
	saved          []*model.ScoreSubmission

	ownedProjects map[int]string
	batchValid    int
}

func (f *fakeRepository) GetOpenProjectByUID(uid string) (*model.Project, []model.Question, []model.ProjectImage, error) {
	return nil, nil, nil, ErrProjectNotFound
}

func (f *fakeRepository) ResolveProjectByImageIDs(imageIDs []int64) (int, error) {
	pid := 0
	for _, id := range imageIDs {
		p, ok := f.projectByImage[id]
		if !ok {
			return 0, ErrProjectNotFound
		}
		if pid != 0 && p != pid {
			return 0, ErrMixedProjectImages
		}
		pid = p
	}
	if pid == 0 {
		return 0, ErrProjectNotFound
	}
	return pid, nil
}

func (f *fakeRepository) VerifyProjectOpen(projectID int) error {
	if f.closedProjects[projectID] {
		return ErrProjectNotOpen
	}
	return nil
}

func (f *fakeRepository) GetQuestionRanges(projectID int) (map[int][2]float64, error) {
	return f.ranges, nil
}

func (f *fakeRepository) SaveSubmission(sub *model.ScoreSubmission) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	sub.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, sub)
	return nil
}

func (f *fakeRepository) RecordView(projectID int, viewerIP string) error { return nil }

func (f *fakeRepository) VerifyProjectOwnership(projectID int, username string) error {
	if owner, ok := f.ownedProjects[projectID]; ok && owner == username {
		return nil
	}
	return ErrPermissionDenied
}

func (f *fakeRepository) GetSubmissionsByProjectID(projectID int) ([]model.ScoreSubmission, error) {
	return nil, nil
}

func (f *fakeRepository) GetSubmissionByIDWithPermission(submissionID int64, username string) (*model.ScoreSubmission, error) {
	return nil, ErrSubmissionNotFound
}

func (f *fakeRepository) VerifySubmissionOwnership(submissionID int64, username string) error {
	return nil
}

func (f *fakeRepository) VerifyBatchSubmissionOwnership(submissionIDs []int64, username string) (int, error) {
	return f.batchValid, nil
}

func (f *fakeRepository) VerifyDeletedSubmissionOwnership(submissionID int64, username string) error {
	return nil
}

func (f *fakeRepository) VerifyBatchDeletedSubmissionOwnership(submissionIDs []int64, username string) (int, error) {
	return f.batchValid, nil
}

func (f *fakeRepository) DeleteSubmissionByID(submissionID int64) error { return nil }

func (f *fakeRepository) BatchDeleteSubmissions(submissionIDs []int64) (int, error) {
	return len(submissionIDs), nil
}

func (f *fakeRepository) RestoreSubmissionByID(submissionID int64) error { return nil }

func (f *fakeRepository) BatchRestoreSubmissions(submissionIDs []int64) (int, error) {
	return len(submissionIDs), nil
}

func (f *fakeRepository) GetDeletedSubmissionsByProjectID(projectID int) ([]model.ScoreSubmission, error) {
	return nil, nil
}

func (f *fakeRepository) PhysicalDeleteSubmissionByID(submissionID int64) error { return nil }

func (f *fakeRepository) BatchPhysicalDeleteSubmissions(submissionIDs []int64) (int, error) {
	return len(submissionIDs), nil
}

func (f *fakeRepository) PhysicalDeleteExpiredSubmissions(days int) (int, error) { return 0, nil }

func newFakeRepo() *fakeRepository {
	return &fakeRepository{
		projectByImage: map[int64]int{101: 7, 102: 7},
		ranges:         map[int][2]float64{1: {-1, 1}, 2: {-1, 1}},
		ownedProjects:  map[int]string{7: "alice"},
	}
}

func TestSubmitScoresSaved(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	req := &model.SubmitScoreRequest{
		SessionID: "sess-abc",
		Answers: []model.ScoreAnswer{
			{ImageID: "101", QuestionID: "1", Value: 0.5},
			{ImageID: "101", QuestionID: "2", Value: -1},
			{ImageID: "102", QuestionID: "1", Value: 1},
		},
	}

	sub, err := svc.SubmitScores(req, "u-1")
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if sub.ProjectID != 7 {
		t.Errorf("项目解析错误: got %d, want 7", sub.ProjectID)
	}
	if sub.SessionUID != "sess-abc" {
		t.Errorf("会话标识错误: %s", sub.SessionUID)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("期望落库1次, 实际 %d", len(repo.saved))
	}
}

func TestSubmitScoresEmptySession(t *testing.T) {
	svc := NewService(newFakeRepo())

	req := &model.SubmitScoreRequest{
		SessionID: "   ",
		Answers:   []model.ScoreAnswer{{ImageID: "101", QuestionID: "1", Value: 0}},
	}
	if _, err := svc.SubmitScores(req, ""); err != ErrEmptySession {
		t.Errorf("期望 ErrEmptySession, got %v", err)
	}
}

func TestSubmitScoresEmptyAnswers(t *testing.T) {
	svc := NewService(newFakeRepo())

	req := &model.SubmitScoreRequest{SessionID: "sess-1"}
	if _, err := svc.SubmitScores(req, ""); err != ErrEmptyAnswers {
		t.Errorf("期望 ErrEmptyAnswers, got %v", err)
	}
}

func TestSubmitScoresValueOutOfBand(t *testing.T) {
	svc := NewService(newFakeRepo())

	req := &model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers: []model.ScoreAnswer{
			{ImageID: "101", QuestionID: "1", Value: 1.2},
		},
	}
	if _, err := svc.SubmitScores(req, ""); err != ErrValueOutOfBand {
		t.Errorf("期望 ErrValueOutOfBand, got %v", err)
	}
}

func TestSubmitScoresUnknownQuestion(t *testing.T) {
	svc := NewService(newFakeRepo())

	req := &model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers: []model.ScoreAnswer{
			{ImageID: "101", QuestionID: "99", Value: 0},
		},
	}
	if _, err := svc.SubmitScores(req, ""); err != ErrInvalidAnswer {
		t.Errorf("期望 ErrInvalidAnswer, got %v", err)
	}
}

func TestSubmitScoresBadImageID(t *testing.T) {
	svc := NewService(newFakeRepo())

	req := &model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers: []model.ScoreAnswer{
			{ImageID: "not-a-number", QuestionID: "1", Value: 0},
		},
	}
	if _, err := svc.SubmitScores(req, ""); err != ErrInvalidAnswer {
		t.Errorf("期望 ErrInvalidAnswer, got %v", err)
	}
}

func TestSubmitScoresCrossProjectImages(t *testing.T) {
	// 第二条评分引用了别的项目的图片，整批拒绝，不得污染他人项目的数据
	repo := newFakeRepo()
	repo.projectByImage[201] = 8
	svc := NewService(repo)

	req := &model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers: []model.ScoreAnswer{
			{ImageID: "101", QuestionID: "1", Value: 0},
			{ImageID: "201", QuestionID: "1", Value: 0},
		},
	}
	if _, err := svc.SubmitScores(req, ""); err != ErrMixedProjectImages {
		t.Errorf("期望 ErrMixedProjectImages, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Errorf("跨项目提交不应落库, 实际 %d", len(repo.saved))
	}
}

func TestSubmitScoresUnknownImageInTail(t *testing.T) {
	// 首条图片合法不代表整批合法，后续评分引用的图片同样要存在
	svc := NewService(newFakeRepo())

	req := &model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers: []model.ScoreAnswer{
			{ImageID: "101", QuestionID: "1", Value: 0},
			{ImageID: "999", QuestionID: "1", Value: 0},
		},
	}
	if _, err := svc.SubmitScores(req, ""); err != ErrProjectNotFound {
		t.Errorf("期望 ErrProjectNotFound, got %v", err)
	}
}

func TestSubmitScoresProjectClosed(t *testing.T) {
	repo := newFakeRepo()
	repo.closedProjects = map[int]bool{7: true}
	svc := NewService(repo)

	req := &model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers:   []model.ScoreAnswer{{ImageID: "101", QuestionID: "1", Value: 0}},
	}
	if _, err := svc.SubmitScores(req, ""); err != ErrProjectNotOpen {
		t.Errorf("期望 ErrProjectNotOpen, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Errorf("收尾项目的提交不应落库, 实际 %d", len(repo.saved))
	}
}

func TestSubmitScoresDuplicateSession(t *testing.T) {
	repo := newFakeRepo()
	repo.saveErr = ErrDuplicateSession
	svc := NewService(repo)

	req := &model.SubmitScoreRequest{
		SessionID: "sess-dup",
		Answers:   []model.ScoreAnswer{{ImageID: "101", QuestionID: "1", Value: 0}},
	}
	if _, err := svc.SubmitScores(req, ""); err != ErrDuplicateSession {
		t.Errorf("期望 ErrDuplicateSession, got %v", err)
	}
}

func TestGetSubmissionsPermissionDenied(t *testing.T) {
	svc := NewService(newFakeRepo())

	if _, err := svc.GetSubmissionsByProject(7, "mallory"); err != ErrPermissionDenied {
		t.Errorf("期望 ErrPermissionDenied, got %v", err)
	}
}

func TestBatchDeletePartialPermission(t *testing.T) {
	repo := newFakeRepo()
	repo.batchValid = 2
	svc := NewService(repo)

	// 请求3条但只有2条有权限，整批拒绝
	if _, err := svc.BatchDeleteSubmissions([]int64{1, 2, 3}, "alice"); err != ErrPartialPermissionDenied {
		t.Errorf("期望 ErrPartialPermissionDenied, got %v", err)
	}

	repo.batchValid = 3
	count, err := svc.BatchDeleteSubmissions([]int64{1, 2, 3}, "alice")
	if err != nil {
		t.Fatalf("批量删除失败: %v", err)
	}
	if count != 3 {
		t.Errorf("期望删除3条, 实际 %d", count)
	}
}
