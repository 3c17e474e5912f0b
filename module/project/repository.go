package project

import (
	"Guides-Server/config"
	"Guides-Server/model"
	"database/sql"
	"fmt"
)

type Repository interface {
	// 聚合/计数
	CountProjects(username, query string) (int, error)
	// 分页列表
	ListProjects(username, query string, limit, offset int) ([]model.Project, error)
	// 全量列表（无分页）
	ListAllProjects(username, query string) ([]model.Project, error)

	// 单个项目
	GetProject(id int, username string) (*model.Project, error)
	GetProjectByUID(uid string) (*model.Project, error)

	// 创建/更新
	CreateProject(p *model.Project, username, userID string) (*model.Project, error)
	UpdateProject(p *model.Project, username string) (*model.Project, error)
	UpdateProjectStatus(id, status int, username string) error

	// 归属校验
	CountOwned(ids []int, username string) (int, error)

	// 级联删除（单个或批量），在事务中执行
	DeleteCascadeTx(tx *sql.Tx, projectID int, username string) error

	// 采集窗口调度：按 start_at/end_at 批量推进项目状态
	OpenDueProjects() (int64, error)
	CloseExpiredProjects() (int64, error)
}

type projectRepository struct{}

func NewProjectRepository() Repository { return &projectRepository{} }

const projectColumns = `id, project_uid, project_name, project_description, consent_text,
	       image_count, image_duration, project_status,
	       DATE_FORMAT(start_at, '%Y-%m-%d %H:%i:%s'), DATE_FORMAT(end_at, '%Y-%m-%d %H:%i:%s'),
	       user_id, create_by, create_time, update_time, update_by`

func scanProject(row interface{ Scan(...interface{}) error }) (*model.Project, error) {
	var p model.Project
	var startAt, endAt sql.NullString
	err := row.Scan(&p.ID, &p.ProjectUID, &p.ProjectName, &p.ProjectDescription, &p.ConsentText,
		&p.ImageCount, &p.ImageDuration, &p.ProjectStatus,
		&startAt, &endAt,
		&p.UserID, &p.CreateBy, &p.CreateTime, &p.UpdateTime, &p.UpdateBy)
	if err != nil {
		return nil, err
	}
	if startAt.Valid {
		p.StartAt = &startAt.String
	}
	if endAt.Valid {
		p.EndAt = &endAt.String
	}
	return &p, nil
}

func (r *projectRepository) CountProjects(username, query string) (int, error) {
	where := "create_by = ?"
	args := []interface{}{username}
	if query != "" {
		where += " AND project_name LIKE ?"
		args = append(args, "%"+query+"%")
	}
	var total int
	err := config.DB.QueryRow("SELECT COUNT(*) FROM projects WHERE "+where, args...).Scan(&total)
	return total, err
}

func (r *projectRepository) ListProjects(username, query string, limit, offset int) ([]model.Project, error) {
	where := "create_by = ?"
	args := []interface{}{username}
	if query != "" {
		where += " AND project_name LIKE ?"
		args = append(args, "%"+query+"%")
	}
	args = append(args, limit, offset)
	rows, err := config.DB.Query(`
		SELECT `+projectColumns+`
		FROM projects
		WHERE `+where+`
		ORDER BY create_time DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *projectRepository) ListAllProjects(username, query string) ([]model.Project, error) {
	where := "create_by = ?"
	args := []interface{}{username}
	if query != "" {
		where += " AND project_name LIKE ?"
		args = append(args, "%"+query+"%")
	}
	rows, err := config.DB.Query(`
		SELECT `+projectColumns+`
		FROM projects
		WHERE `+where+`
		ORDER BY create_time DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *projectRepository) GetProject(id int, username string) (*model.Project, error) {
	row := config.DB.QueryRow(`
		SELECT `+projectColumns+`
		FROM projects WHERE id = ? AND create_by = ?`, id, username)
	return scanProject(row)
}

func (r *projectRepository) GetProjectByUID(uid string) (*model.Project, error) {
	row := config.DB.QueryRow(`
		SELECT `+projectColumns+`
		FROM projects WHERE project_uid = ?`, uid)
	return scanProject(row)
}

func (r *projectRepository) CreateProject(p *model.Project, username, userID string) (*model.Project, error) {
	res, err := config.DB.Exec(`
		INSERT INTO projects (project_uid, project_name, project_description, consent_text,
		                      image_count, image_duration, project_status, start_at, end_at,
		                      user_id, create_by, update_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ProjectUID, p.ProjectName, p.ProjectDescription, p.ConsentText,
		p.ImageCount, p.ImageDuration, p.ProjectStatus, p.StartAt, p.EndAt,
		userID, username, username)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	p.ID = int(id)
	p.UserID = userID
	p.CreateBy = username
	p.UpdateBy = username
	return p, nil
}

func (r *projectRepository) UpdateProject(p *model.Project, username string) (*model.Project, error) {
	// 权限校验
	var cnt int
	if err := config.DB.QueryRow("SELECT COUNT(*) FROM projects WHERE id = ? AND create_by = ?", p.ID, username).Scan(&cnt); err != nil {
		return nil, err
	}
	if cnt == 0 {
		return nil, fmt.Errorf("无权更新该项目")
	}

	_, err := config.DB.Exec(`
		UPDATE projects
		SET project_name = ?, project_description = ?, consent_text = ?,
		    image_count = ?, image_duration = ?, project_status = ?,
		    start_at = ?, end_at = ?,
		    update_time = CURRENT_TIMESTAMP, update_by = ?
		WHERE id = ? AND create_by = ?
	`, p.ProjectName, p.ProjectDescription, p.ConsentText,
		p.ImageCount, p.ImageDuration, p.ProjectStatus,
		p.StartAt, p.EndAt, username, p.ID, username)
	if err != nil {
		return nil, err
	}

	return r.GetProject(p.ID, username)
}

func (r *projectRepository) UpdateProjectStatus(id, status int, username string) error {
	res, err := config.DB.Exec(`
		UPDATE projects SET project_status = ?, update_time = CURRENT_TIMESTAMP, update_by = ?
		WHERE id = ? AND create_by = ?`, status, username, id, username)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("项目不存在或无权限")
	}
	return nil
}

func (r *projectRepository) CountOwned(ids []int, username string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := ""
	args := make([]interface{}, 0, len(ids)+1)
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}
	args = append(args, username)
	var count int
	q := fmt.Sprintf("SELECT COUNT(*) FROM projects WHERE id IN (%s) AND create_by = ?", placeholders)
	if err := config.DB.QueryRow(q, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *projectRepository) DeleteCascadeTx(tx *sql.Tx, projectID int, username string) error {
	// 关联数据自底向上清理
	if _, err := tx.Exec("DELETE FROM score_answers WHERE submission_id IN (SELECT id FROM score_submissions WHERE project_id = ?)", projectID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM score_submissions WHERE project_id = ?", projectID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM project_views WHERE project_id = ?", projectID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM project_stats WHERE project_id = ?", projectID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM questions WHERE project_id = ?", projectID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM project_images WHERE project_id = ?", projectID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM projects WHERE id = ? AND create_by = ?", projectID, username); err != nil {
		return err
	}
	return nil
}

func (r *projectRepository) OpenDueProjects() (int64, error) {
	res, err := config.DB.Exec(`
		UPDATE projects SET project_status = ?
		WHERE project_status = ? AND start_at IS NOT NULL AND start_at <= NOW()
		  AND (end_at IS NULL OR end_at > NOW())`,
		model.ProjectStatusOpen, model.ProjectStatusDraft)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *projectRepository) CloseExpiredProjects() (int64, error) {
	res, err := config.DB.Exec(`
		UPDATE projects SET project_status = ?
		WHERE project_status = ? AND end_at IS NOT NULL AND end_at <= NOW()`,
		model.ProjectStatusClosed, model.ProjectStatusOpen)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
