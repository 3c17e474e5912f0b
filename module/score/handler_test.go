package score

import (
	"Guides-Server/model"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// fakeService 注入 scoreService 的假服务
type fakeService struct {
	submitErr error
	openErr   error
	project   *model.Project
	viewCount int
}

func (f *fakeService) GetOpenProject(uid string) (*model.Project, []model.Question, []model.ProjectImage, error) {
	if f.openErr != nil {
		return nil, nil, nil, f.openErr
	}
	return f.project, nil, nil, nil
}

func (f *fakeService) RecordView(projectID int, viewerIP string) error {
	f.viewCount++
	return nil
}

func (f *fakeService) SubmitScores(req *model.SubmitScoreRequest, userID string) (*model.ScoreSubmission, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &model.ScoreSubmission{ID: 42, SessionUID: req.SessionID, Answers: req.Answers}, nil
}

func (f *fakeService) GetSubmissionsByProject(projectID int, username string) ([]model.ScoreSubmission, error) {
	return nil, nil
}

func (f *fakeService) GetSubmissionByID(submissionID int64, username string) (*model.ScoreSubmission, error) {
	return nil, ErrSubmissionNotFound
}

func (f *fakeService) DeleteSubmission(submissionID int64, username string) error { return nil }

func (f *fakeService) BatchDeleteSubmissions(submissionIDs []int64, username string) (int, error) {
	return len(submissionIDs), nil
}

func (f *fakeService) PhysicalDeleteSubmission(submissionID int64, username string) error {
	return nil
}

func (f *fakeService) BatchPhysicalDeleteSubmissions(submissionIDs []int64, username string) (int, error) {
	return len(submissionIDs), nil
}

func (f *fakeService) GetDeletedSubmissions(projectID int, username string) ([]model.ScoreSubmission, error) {
	return nil, nil
}

func (f *fakeService) RestoreSubmission(submissionID int64, username string) error { return nil }

func (f *fakeService) BatchRestoreSubmissions(submissionIDs []int64, username string) (int, error) {
	return len(submissionIDs), nil
}

func (f *fakeService) CleanupRecycleBin(days int) (int, error) { return 0, nil }

func setupSubmitRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	scoreService = svc
	r := gin.New()
	r.POST("/scores", SubmitScoresHandler)
	r.GET("/api/public/project/:uid", GetPublicProjectHandler)
	return r
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitScoresHandlerCreated(t *testing.T) {
	r := setupSubmitRouter(&fakeService{})

	w := postJSON(r, "/scores", model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers:   []model.ScoreAnswer{{ImageID: "101", QuestionID: "1", Value: 0.3}},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("期望201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if resp["submissionId"] != float64(42) {
		t.Errorf("submissionId 错误: %v", resp["submissionId"])
	}
}

func TestSubmitScoresHandlerMissingSession(t *testing.T) {
	r := setupSubmitRouter(&fakeService{})

	// sessionId 缺失由 binding 拦下
	w := postJSON(r, "/scores", gin.H{
		"answers": []gin.H{{"imageId": "101", "questionId": "1", "value": 0}},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望400, got %d", w.Code)
	}
}

func TestSubmitScoresHandlerValueOutOfBand(t *testing.T) {
	r := setupSubmitRouter(&fakeService{submitErr: ErrValueOutOfBand})

	w := postJSON(r, "/scores", model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers:   []model.ScoreAnswer{{ImageID: "101", QuestionID: "1", Value: 3}},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望400, got %d", w.Code)
	}
}

func TestSubmitScoresHandlerDuplicateIdempotent(t *testing.T) {
	r := setupSubmitRouter(&fakeService{submitErr: ErrDuplicateSession})

	w := postJSON(r, "/scores", model.SubmitScoreRequest{
		SessionID: "sess-dup",
		Answers:   []model.ScoreAnswer{{ImageID: "101", QuestionID: "1", Value: 0}},
	})

	// 重复提交按幂等处理，返回200而不是错误
	if w.Code != http.StatusOK {
		t.Errorf("期望200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmitScoresHandlerProjectClosed(t *testing.T) {
	r := setupSubmitRouter(&fakeService{submitErr: ErrProjectNotOpen})

	w := postJSON(r, "/scores", model.SubmitScoreRequest{
		SessionID: "sess-late",
		Answers:   []model.ScoreAnswer{{ImageID: "101", QuestionID: "1", Value: 0}},
	})

	if w.Code != http.StatusForbidden {
		t.Errorf("期望403, got %d", w.Code)
	}
}

func TestSubmitScoresHandlerMixedProjects(t *testing.T) {
	r := setupSubmitRouter(&fakeService{submitErr: ErrMixedProjectImages})

	w := postJSON(r, "/scores", model.SubmitScoreRequest{
		SessionID: "sess-1",
		Answers: []model.ScoreAnswer{
			{ImageID: "101", QuestionID: "1", Value: 0},
			{ImageID: "201", QuestionID: "1", Value: 0},
		},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望400, got %d", w.Code)
	}
}

func TestGetPublicProjectHandlerNotFound(t *testing.T) {
	r := setupSubmitRouter(&fakeService{openErr: ErrProjectNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/public/project/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("期望404, got %d", w.Code)
	}
}

func TestGetPublicProjectHandlerNotOpen(t *testing.T) {
	r := setupSubmitRouter(&fakeService{openErr: ErrProjectNotOpen})

	req := httptest.NewRequest(http.MethodGet, "/api/public/project/closed", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("期望403, got %d", w.Code)
	}
}
