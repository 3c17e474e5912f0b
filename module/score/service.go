package score

import (
	"Guides-Server/config"
	"Guides-Server/model"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptySession   = errors.New("缺少会话标识")
	ErrEmptyAnswers   = errors.New("评分列表不能为空")
	ErrInvalidAnswer  = errors.New("评分数据不合法")
	ErrValueOutOfBand = errors.New("评分取值超出题目区间")
)

// Service 定义评分业务逻辑接口
type Service interface {
	// 参与端：获取开放中的项目（含题目与图片）
	GetOpenProject(uid string) (*model.Project, []model.Question, []model.ProjectImage, error)

	// 参与端：记录浏览
	RecordView(projectID int, viewerIP string) error

	// 参与端：提交一次会话的全部评分
	SubmitScores(req *model.SubmitScoreRequest, userID string) (*model.ScoreSubmission, error)

	// 研究者端
	GetSubmissionsByProject(projectID int, username string) ([]model.ScoreSubmission, error)
	GetSubmissionByID(submissionID int64, username string) (*model.ScoreSubmission, error)
	DeleteSubmission(submissionID int64, username string) error
	BatchDeleteSubmissions(submissionIDs []int64, username string) (int, error)
	PhysicalDeleteSubmission(submissionID int64, username string) error
	BatchPhysicalDeleteSubmissions(submissionIDs []int64, username string) (int, error)
	GetDeletedSubmissions(projectID int, username string) ([]model.ScoreSubmission, error)
	RestoreSubmission(submissionID int64, username string) error
	BatchRestoreSubmissions(submissionIDs []int64, username string) (int, error)

	// 清理回收站 (定时任务调用)
	CleanupRecycleBin(days int) (int, error)
}

type serviceImpl struct {
	repo Repository
}

// NewService 创建评分服务实例
func NewService(repo Repository) Service {
	return &serviceImpl{repo: repo}
}

// GetOpenProject 获取开放中的项目
func (s *serviceImpl) GetOpenProject(uid string) (*model.Project, []model.Question, []model.ProjectImage, error) {
	return s.repo.GetOpenProjectByUID(uid)
}

// RecordView 记录浏览，按配置对参与者IP做匿名化处理
func (s *serviceImpl) RecordView(projectID int, viewerIP string) error {
	return s.repo.RecordView(projectID, anonymizeViewerIP(viewerIP))
}

// anonymizeViewerIP 按 ANON_ID_MODE 处理参与者IP
// off-存原始IP normal-加盐哈希 strict-按天轮换的加盐哈希（同一IP跨天不可关联）
func anonymizeViewerIP(ip string) string {
	mode := config.GetAnonIDMode()
	if mode == "off" {
		return ip
	}

	input := ip + config.GetAnonIDSalt()
	if mode == "strict" {
		input = time.Now().Format("2006-01-02") + input
	}
	sum := sha256.Sum256([]byte(input))
	return "anon_" + hex.EncodeToString(sum[:])[:16]
}

// SubmitScores 校验并保存一次会话提交
// 项目归属由评分中引用的图片反查得出
func (s *serviceImpl) SubmitScores(req *model.SubmitScoreRequest, userID string) (*model.ScoreSubmission, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, ErrEmptySession
	}
	if len(req.Answers) == 0 {
		return nil, ErrEmptyAnswers
	}

	// 归集去重后的全部图片ID，反查项目并校验同属一个项目
	seen := make(map[int64]struct{}, len(req.Answers))
	imageIDs := make([]int64, 0, len(req.Answers))
	for _, a := range req.Answers {
		id, err := strconv.ParseInt(a.ImageID, 10, 64)
		if err != nil {
			return nil, ErrInvalidAnswer
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			imageIDs = append(imageIDs, id)
		}
	}
	projectID, err := s.repo.ResolveProjectByImageIDs(imageIDs)
	if err != nil {
		return nil, err
	}

	// 项目收尾后迟到的提交不再接收
	if err := s.repo.VerifyProjectOpen(projectID); err != nil {
		return nil, err
	}

	ranges, err := s.repo.GetQuestionRanges(projectID)
	if err != nil {
		return nil, err
	}

	// 校验每条评分：题目属于该项目、取值在题目区间内
	for _, a := range req.Answers {
		qid, err := strconv.Atoi(a.QuestionID)
		if err != nil {
			return nil, ErrInvalidAnswer
		}
		bounds, ok := ranges[qid]
		if !ok {
			return nil, ErrInvalidAnswer
		}
		if a.Value < bounds[0] || a.Value > bounds[1] {
			return nil, ErrValueOutOfBand
		}
	}

	sub := &model.ScoreSubmission{
		SessionUID: req.SessionID,
		ProjectID:  projectID,
		UserID:     userID,
		Answers:    req.Answers,
	}
	if err := s.repo.SaveSubmission(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// GetSubmissionsByProject 项目下的全部提交
func (s *serviceImpl) GetSubmissionsByProject(projectID int, username string) ([]model.ScoreSubmission, error) {
	if err := s.repo.VerifyProjectOwnership(projectID, username); err != nil {
		return nil, err
	}
	return s.repo.GetSubmissionsByProjectID(projectID)
}

// GetSubmissionByID 按ID获取提交
func (s *serviceImpl) GetSubmissionByID(submissionID int64, username string) (*model.ScoreSubmission, error) {
	return s.repo.GetSubmissionByIDWithPermission(submissionID, username)
}

// DeleteSubmission 逻辑删除单个提交
func (s *serviceImpl) DeleteSubmission(submissionID int64, username string) error {
	if err := s.repo.VerifySubmissionOwnership(submissionID, username); err != nil {
		return err
	}
	return s.repo.DeleteSubmissionByID(submissionID)
}

// BatchDeleteSubmissions 批量逻辑删除提交
func (s *serviceImpl) BatchDeleteSubmissions(submissionIDs []int64, username string) (int, error) {
	validCount, err := s.repo.VerifyBatchSubmissionOwnership(submissionIDs, username)
	if err != nil {
		return 0, err
	}
	if validCount != len(submissionIDs) {
		return 0, ErrPartialPermissionDenied
	}
	return s.repo.BatchDeleteSubmissions(submissionIDs)
}

// PhysicalDeleteSubmission 物理删除单个提交
func (s *serviceImpl) PhysicalDeleteSubmission(submissionID int64, username string) error {
	sub, err := s.repo.GetSubmissionByIDWithPermission(submissionID, username)
	if err != nil {
		return err
	}
	if err := s.repo.VerifyProjectOwnership(sub.ProjectID, username); err != nil {
		return err
	}
	return s.repo.PhysicalDeleteSubmissionByID(submissionID)
}

// BatchPhysicalDeleteSubmissions 批量物理删除提交
func (s *serviceImpl) BatchPhysicalDeleteSubmissions(submissionIDs []int64, username string) (int, error) {
	validCount, err := s.repo.VerifyBatchSubmissionOwnership(submissionIDs, username)
	if err != nil {
		return 0, err
	}
	if validCount != len(submissionIDs) {
		return 0, ErrPartialPermissionDenied
	}
	return s.repo.BatchPhysicalDeleteSubmissions(submissionIDs)
}

// GetDeletedSubmissions 获取回收站列表
func (s *serviceImpl) GetDeletedSubmissions(projectID int, username string) ([]model.ScoreSubmission, error) {
	if err := s.repo.VerifyProjectOwnership(projectID, username); err != nil {
		return nil, err
	}
	return s.repo.GetDeletedSubmissionsByProjectID(projectID)
}

// RestoreSubmission 恢复已删除提交
func (s *serviceImpl) RestoreSubmission(submissionID int64, username string) error {
	if err := s.repo.VerifyDeletedSubmissionOwnership(submissionID, username); err != nil {
		return err
	}
	return s.repo.RestoreSubmissionByID(submissionID)
}

// BatchRestoreSubmissions 批量恢复已删除提交
func (s *serviceImpl) BatchRestoreSubmissions(submissionIDs []int64, username string) (int, error) {
	validCount, err := s.repo.VerifyBatchDeletedSubmissionOwnership(submissionIDs, username)
	if err != nil {
		return 0, err
	}
	if validCount != len(submissionIDs) {
		return 0, ErrPartialPermissionDenied
	}
	return s.repo.BatchRestoreSubmissions(submissionIDs)
}

// CleanupRecycleBin 清理回收站 (定时任务调用)
func (s *serviceImpl) CleanupRecycleBin(days int) (int, error) {
	return s.repo.PhysicalDeleteExpiredSubmissions(days)
}
