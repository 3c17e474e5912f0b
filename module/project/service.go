package project

import (
	"Guides-Server/model"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"
)

type Service interface {
	// 查询
	List(username, query string, page, pageSize int) (items []model.Project, total, totalPages int, err error)
	ListAll(username, query string) ([]model.Project, error)
	Get(id int, username string) (*model.Project, error)

	// 变更
	Create(p *model.Project, username, userID string) (*model.Project, error)
	Update(p *model.Project, username string) (*model.Project, error)
	SetStatus(id, status int, username string) error
	DeleteBatch(tx *sql.Tx, ids []int, username string) error

	// 采集窗口调度
	AdvanceWindows() error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) List(username, query string, page, pageSize int) (items []model.Project, total, totalPages int, err error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	total, err = s.repo.CountProjects(username, query)
	if err != nil {
		return nil, 0, 0, err
	}

	items, err = s.repo.ListProjects(username, query, pageSize, offset)
	if err != nil {
		return nil, 0, 0, err
	}

	totalPages = (total + pageSize - 1) / pageSize
	return
}

func (s *service) ListAll(username, query string) ([]model.Project, error) {
	return s.repo.ListAllProjects(username, query)
}

func (s *service) Get(id int, username string) (*model.Project, error) {
	return s.repo.GetProject(id, username)
}

func (s *service) Create(p *model.Project, username, userID string) (*model.Project, error) {
	if p == nil {
		return nil, errors.New("nil project")
	}
	if err := normalizeWindow(p); err != nil {
		return nil, err
	}
	applyDefaults(p)
	return s.repo.CreateProject(p, username, userID)
}

func (s *service) Update(p *model.Project, username string) (*model.Project, error) {
	if p == nil {
		return nil, errors.New("nil project")
	}
	if err := normalizeWindow(p); err != nil {
		return nil, err
	}
	applyDefaults(p)
	return s.repo.UpdateProject(p, username)
}

func (s *service) SetStatus(id, status int, username string) error {
	if status != model.ProjectStatusDraft && status != model.ProjectStatusOpen && status != model.ProjectStatusClosed {
		return errors.New("无效的项目状态")
	}
	return s.repo.UpdateProjectStatus(id, status, username)
}

func (s *service) DeleteBatch(tx *sql.Tx, ids []int, username string) error {
	if len(ids) == 0 {
		return nil
	}
	// 校验归属
	cnt, err := s.repo.CountOwned(ids, username)
	if err != nil {
		return err
	}
	if cnt != len(ids) {
		return errors.New("部分项目不存在或无权限删除")
	}

	for _, id := range ids {
		if err := s.repo.DeleteCascadeTx(tx, id, username); err != nil {
			return err
		}
	}
	return nil
}

// AdvanceWindows 推进采集窗口：到达开始时间的草稿开放，超过结束时间的项目关闭
func (s *service) AdvanceWindows() error {
	opened, err := s.repo.OpenDueProjects()
	if err != nil {
		return err
	}
	closed, err := s.repo.CloseExpiredProjects()
	if err != nil {
		return err
	}
	if opened > 0 || closed > 0 {
		log.Printf("采集窗口调度: 开放 %d 个, 关闭 %d 个", opened, closed)
	}
	return nil
}

// applyDefaults 补齐采集参数默认值
func applyDefaults(p *model.Project) {
	if p.ImageCount <= 0 {
		p.ImageCount = 10
	}
	if p.ImageDuration <= 0 {
		p.ImageDuration = 5
	}
}

// normalizeWindow 规范化采集窗口时间并校验先后顺序
func normalizeWindow(p *model.Project) error {
	p.StartAt = normalizeTime(p.StartAt)
	p.EndAt = normalizeTime(p.EndAt)
	if p.StartAt != nil && p.EndAt != nil {
		start, err1 := time.ParseInLocation("2006-01-02 15:04:05", *p.StartAt, time.Local)
		end, err2 := time.ParseInLocation("2006-01-02 15:04:05", *p.EndAt, time.Local)
		if err1 == nil && err2 == nil && !end.After(start) {
			return errors.New("结束时间必须晚于开始时间")
		}
	}
	return nil
}

func normalizeTime(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	s := strings.TrimSpace(*ptr)
	if s == "" {
		return nil
	}
	// 尝试多种格式解析
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		v := t.Local().Format("2006-01-02 15:04:05")
		return &v
	}
	layouts := []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			v := t.Format("2006-01-02 15:04:05")
			return &v
		}
	}
	// 兜底：返回 nil，避免写入非法值
	return nil
}
