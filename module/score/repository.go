package score

import (
	"Guides-Server/config"
	"Guides-Server/model"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrSubmissionNotFound      = errors.New("提交记录不存在")
	ErrProjectNotFound         = errors.New("项目不存在")
	ErrProjectNotOpen          = errors.New("项目未开放采集")
	ErrPermissionDenied        = errors.New("无权限访问")
	ErrPartialPermissionDenied = errors.New("部分提交记录不存在或无权限操作")
	ErrDuplicateSession        = errors.New("该会话已提交过")
	ErrMixedProjectImages      = errors.New("评分引用了不同项目的图片")
)

// Repository 定义评分数据访问接口
type Repository interface {
	// 按对外UID获取开放中的项目（含题目与图片）
	GetOpenProjectByUID(uid string) (*model.Project, []model.Question, []model.ProjectImage, error)

	// 按图片ID集合解析所属项目（全部图片必须同属一个项目）
	ResolveProjectByImageIDs(imageIDs []int64) (int, error)

	// 校验项目处于开放采集状态
	VerifyProjectOpen(projectID int) error

	// 项目的题目取值区间
	GetQuestionRanges(projectID int) (map[int][2]float64, error)

	// 保存一次会话提交（事务内写主表、明细与统计）
	SaveSubmission(sub *model.ScoreSubmission) error

	// 记录浏览
	RecordView(projectID int, viewerIP string) error

	// 验证项目所有权
	VerifyProjectOwnership(projectID int, username string) error

	// 项目下的提交列表
	GetSubmissionsByProjectID(projectID int) ([]model.ScoreSubmission, error)

	// 按ID获取提交（带权限验证）
	GetSubmissionByIDWithPermission(submissionID int64, username string) (*model.ScoreSubmission, error)

	// 所有权验证
	VerifySubmissionOwnership(submissionID int64, username string) error
	VerifyBatchSubmissionOwnership(submissionIDs []int64, username string) (int, error)
	VerifyDeletedSubmissionOwnership(submissionID int64, username string) error
	VerifyBatchDeletedSubmissionOwnership(submissionIDs []int64, username string) (int, error)

	// 逻辑删除/恢复
	DeleteSubmissionByID(submissionID int64) error
	BatchDeleteSubmissions(submissionIDs []int64) (int, error)
	RestoreSubmissionByID(submissionID int64) error
	BatchRestoreSubmissions(submissionIDs []int64) (int, error)

	// 回收站
	GetDeletedSubmissionsByProjectID(projectID int) ([]model.ScoreSubmission, error)
	PhysicalDeleteSubmissionByID(submissionID int64) error
	BatchPhysicalDeleteSubmissions(submissionIDs []int64) (int, error)
	PhysicalDeleteExpiredSubmissions(days int) (int, error)
}

type repositoryImpl struct{}

// NewRepository 创建 Repository 实例
func NewRepository() Repository {
	return &repositoryImpl{}
}

// GetOpenProjectByUID 按对外UID获取开放中的项目，附带题目与图片
func (r *repositoryImpl) GetOpenProjectByUID(uid string) (*model.Project, []model.Question, []model.ProjectImage, error) {
	db := config.DB

	var p model.Project
	var startAt, endAt sql.NullString
	err := db.QueryRow(`
		SELECT id, project_uid, project_name, project_description, consent_text,
		       image_count, image_duration, project_status,
		       DATE_FORMAT(start_at, '%Y-%m-%d %H:%i:%s'), DATE_FORMAT(end_at, '%Y-%m-%d %H:%i:%s')
		FROM projects WHERE project_uid = ?`, uid).
		Scan(&p.ID, &p.ProjectUID, &p.ProjectName, &p.ProjectDescription, &p.ConsentText,
			&p.ImageCount, &p.ImageDuration, &p.ProjectStatus, &startAt, &endAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil, ErrProjectNotFound
		}
		return nil, nil, nil, err
	}
	if startAt.Valid {
		p.StartAt = &startAt.String
	}
	if endAt.Valid {
		p.EndAt = &endAt.String
	}

	if p.ProjectStatus != model.ProjectStatusOpen {
		return nil, nil, nil, ErrProjectNotOpen
	}

	questions := []model.Question{}
	qRows, err := db.Query(`
		SELECT id, project_id, question_text, question_order, min_label, max_label, min_value, max_value
		FROM questions WHERE project_id = ?
		ORDER BY question_order ASC`, p.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	defer qRows.Close()
	for qRows.Next() {
		var q model.Question
		if err := qRows.Scan(&q.ID, &q.ProjectID, &q.QuestionText, &q.Order,
			&q.MinLabel, &q.MaxLabel, &q.MinValue, &q.MaxValue); err != nil {
			return nil, nil, nil, err
		}
		questions = append(questions, q)
	}

	images := []model.ProjectImage{}
	iRows, err := db.Query(`
		SELECT id, project_id, image_name, image_url, image_order
		FROM project_images WHERE project_id = ?
		ORDER BY image_order ASC`, p.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	defer iRows.Close()
	for iRows.Next() {
		var img model.ProjectImage
		if err := iRows.Scan(&img.ID, &img.ProjectID, &img.ImageName, &img.ImageURL, &img.Order); err != nil {
			return nil, nil, nil, err
		}
		images = append(images, img)
	}

	return &p, questions, images, nil
}

// ResolveProjectByImageIDs 按图片ID集合解析所属项目。
// 调用方需先去重；任一图片不存在返回 ErrProjectNotFound，
// 图片分属多个项目返回 ErrMixedProjectImages
func (r *repositoryImpl) ResolveProjectByImageIDs(imageIDs []int64) (int, error) {
	if len(imageIDs) == 0 {
		return 0, ErrProjectNotFound
	}

	placeholders := strings.Repeat("?,", len(imageIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(imageIDs))
	for i, id := range imageIDs {
		args[i] = id
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*), COUNT(DISTINCT project_id), MIN(project_id) FROM project_images WHERE id IN (%s)",
		placeholders)
	var found, projects int
	var projectID sql.NullInt64
	if err := config.DB.QueryRow(query, args...).Scan(&found, &projects, &projectID); err != nil {
		return 0, err
	}
	if found != len(imageIDs) {
		return 0, ErrProjectNotFound
	}
	if projects != 1 {
		return 0, ErrMixedProjectImages
	}
	return int(projectID.Int64), nil
}

// VerifyProjectOpen 校验项目处于开放采集状态
func (r *repositoryImpl) VerifyProjectOpen(projectID int) error {
	var status int
	err := config.DB.QueryRow(`SELECT project_status FROM projects WHERE id = ?`, projectID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrProjectNotFound
		}
		return err
	}
	if status != model.ProjectStatusOpen {
		return ErrProjectNotOpen
	}
	return nil
}

// GetQuestionRanges 项目下每个题目的取值区间
func (r *repositoryImpl) GetQuestionRanges(projectID int) (map[int][2]float64, error) {
	rows, err := config.DB.Query(`SELECT id, min_value, max_value FROM questions WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ranges := make(map[int][2]float64)
	for rows.Next() {
		var id int
		var min, max float64
		if err := rows.Scan(&id, &min, &max); err != nil {
			return nil, err
		}
		ranges[id] = [2]float64{min, max}
	}
	return ranges, nil
}

// SaveSubmission 保存一次会话提交
// session_uid 有唯一约束，同一会话的重试提交在这里会命中重复键
func (r *repositoryImpl) SaveSubmission(sub *model.ScoreSubmission) error {
	db := config.DB

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 插入提交主表
	result, err := tx.Exec(`
		INSERT INTO score_submissions (session_uid, project_id, user_id)
		VALUES (?, ?, ?)`,
		sub.SessionUID, sub.ProjectID, sub.UserID)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDuplicateSession
		}
		return err
	}

	submissionID, _ := result.LastInsertId()
	sub.ID = submissionID

	// 插入评分明细，保持提交顺序
	for i := range sub.Answers {
		a := &sub.Answers[i]
		_, err = tx.Exec(`
			INSERT INTO score_answers (submission_id, image_id, question_id, answer_order, value)
			VALUES (?, ?, ?, ?, ?)`,
			submissionID, a.ImageID, a.QuestionID, i+1, a.Value)
		if err != nil {
			return err
		}
		a.SubmissionID = submissionID
	}

	// 更新统计
	_, err = tx.Exec(`
		INSERT INTO project_stats (project_id, submit_count, last_submit_time)
		VALUES (?, 1, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE
		submit_count = submit_count + 1,
		last_submit_time = CURRENT_TIMESTAMP`, sub.ProjectID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RecordView 记录浏览并更新统计
func (r *repositoryImpl) RecordView(projectID int, viewerIP string) error {
	db := config.DB

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO project_views (project_id, viewer_ip)
		VALUES (?, ?)`, projectID, viewerIP); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO project_stats (project_id, view_count, last_view_time)
		VALUES (?, 1, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE
		view_count = view_count + 1,
		last_view_time = CURRENT_TIMESTAMP`, projectID); err != nil {
		return err
	}

	return tx.Commit()
}

// VerifyProjectOwnership 验证项目所有权
func (r *repositoryImpl) VerifyProjectOwnership(projectID int, username string) error {
	var count int
	err := config.DB.QueryRow(`
		SELECT COUNT(*) FROM projects
		WHERE id = ? AND create_by = ?`, projectID, username).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrPermissionDenied
	}
	return nil
}

// GetSubmissionsByProjectID 项目下的全部提交
func (r *repositoryImpl) GetSubmissionsByProjectID(projectID int) ([]model.ScoreSubmission, error) {
	db := config.DB

	submissions := make([]model.ScoreSubmission, 0)
	rows, err := db.Query(`
		SELECT s.id, s.session_uid, s.project_id, s.user_id, s.create_time
		FROM score_submissions s
		WHERE s.project_id = ? AND s.is_delete = 0
		ORDER BY s.create_time DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s model.ScoreSubmission
		var userID sql.NullString
		if err := rows.Scan(&s.ID, &s.SessionUID, &s.ProjectID, &userID, &s.CreateTime); err != nil {
			return nil, err
		}
		if userID.Valid {
			s.UserID = userID.String
		}

		answers, err := r.getSubmissionAnswers(s.ID)
		if err != nil {
			return nil, err
		}
		s.Answers = answers

		submissions = append(submissions, s)
	}

	return submissions, nil
}

// GetSubmissionByIDWithPermission 按ID获取提交（带权限验证）
func (r *repositoryImpl) GetSubmissionByIDWithPermission(submissionID int64, username string) (*model.ScoreSubmission, error) {
	db := config.DB

	var s model.ScoreSubmission
	var userID sql.NullString
	err := db.QueryRow(`
		SELECT s.id, s.session_uid, s.project_id, s.user_id, s.create_time
		FROM score_submissions s
		JOIN projects p ON s.project_id = p.id
		WHERE s.id = ? AND p.create_by = ? AND s.is_delete = 0`, submissionID, username).
		Scan(&s.ID, &s.SessionUID, &s.ProjectID, &userID, &s.CreateTime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if userID.Valid {
		s.UserID = userID.String
	}

	answers, err := r.getSubmissionAnswers(s.ID)
	if err != nil {
		return nil, err
	}
	s.Answers = answers

	return &s, nil
}

// getSubmissionAnswers 获取提交的评分明细（内部方法）
func (r *repositoryImpl) getSubmissionAnswers(submissionID int64) ([]model.ScoreAnswer, error) {
	rows, err := config.DB.Query(`
		SELECT id, submission_id, image_id, question_id, value
		FROM score_answers
		WHERE submission_id = ?
		ORDER BY answer_order ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.ScoreAnswer
	for rows.Next() {
		var a model.ScoreAnswer
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.ImageID, &a.QuestionID, &a.Value); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}

	return answers, nil
}

// VerifySubmissionOwnership 验证提交所有权
func (r *repositoryImpl) VerifySubmissionOwnership(submissionID int64, username string) error {
	var count int
	err := config.DB.QueryRow(`
		SELECT COUNT(*)
		FROM score_submissions s
		JOIN projects p ON s.project_id = p.id
		WHERE s.id = ? AND p.create_by = ? AND s.is_delete = 0`, submissionID, username).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrPermissionDenied
	}
	return nil
}

// VerifyBatchSubmissionOwnership 批量验证提交所有权
func (r *repositoryImpl) VerifyBatchSubmissionOwnership(submissionIDs []int64, username string) (int, error) {
	return r.countOwned(submissionIDs, username, 0)
}

// VerifyDeletedSubmissionOwnership 验证已删除提交的所有权
func (r *repositoryImpl) VerifyDeletedSubmissionOwnership(submissionID int64, username string) error {
	var count int
	err := config.DB.QueryRow(`
		SELECT COUNT(*)
		FROM score_submissions s
		JOIN projects p ON s.project_id = p.id
		WHERE s.id = ? AND p.create_by = ? AND s.is_delete = 1`, submissionID, username).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrPermissionDenied
	}
	return nil
}

// VerifyBatchDeletedSubmissionOwnership 批量验证已删除提交的所有权
func (r *repositoryImpl) VerifyBatchDeletedSubmissionOwnership(submissionIDs []int64, username string) (int, error) {
	return r.countOwned(submissionIDs, username, 1)
}

func (r *repositoryImpl) countOwned(submissionIDs []int64, username string, isDelete int) (int, error) {
	if len(submissionIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(submissionIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM score_submissions s
		JOIN projects p ON s.project_id = p.id
		WHERE s.id IN (%s) AND p.create_by = ? AND s.is_delete = ?`, placeholders)

	args := make([]interface{}, len(submissionIDs)+2)
	for i, id := range submissionIDs {
		args[i] = id
	}
	args[len(submissionIDs)] = username
	args[len(submissionIDs)+1] = isDelete

	var count int
	if err := config.DB.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteSubmissionByID 逻辑删除提交
func (r *repositoryImpl) DeleteSubmissionByID(submissionID int64) error {
	db := config.DB

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE score_submissions SET is_delete = 1, deleted_at = CURRENT_TIMESTAMP WHERE id = ?", submissionID); err != nil {
		return err
	}

	// 更新统计：递减提交次数
	var projectID int
	if err := tx.QueryRow("SELECT project_id FROM score_submissions WHERE id = ?", submissionID).Scan(&projectID); err == nil {
		_, _ = tx.Exec("UPDATE project_stats SET submit_count = GREATEST(0, submit_count - 1) WHERE project_id = ?", projectID)
	}

	return tx.Commit()
}

// BatchDeleteSubmissions 批量逻辑删除提交
func (r *repositoryImpl) BatchDeleteSubmissions(submissionIDs []int64) (int, error) {
	return r.batchSetDeleted(submissionIDs, 1)
}

// RestoreSubmissionByID 恢复已删除提交
func (r *repositoryImpl) RestoreSubmissionByID(submissionID int64) error {
	db := config.DB

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE score_submissions SET is_delete = 0, deleted_at = NULL WHERE id = ?", submissionID); err != nil {
		return err
	}

	var projectID int
	if err := tx.QueryRow("SELECT project_id FROM score_submissions WHERE id = ?", submissionID).Scan(&projectID); err == nil {
		_, _ = tx.Exec("UPDATE project_stats SET submit_count = submit_count + 1 WHERE project_id = ?", projectID)
	}

	return tx.Commit()
}

// BatchRestoreSubmissions 批量恢复已删除提交
func (r *repositoryImpl) BatchRestoreSubmissions(submissionIDs []int64) (int, error) {
	return r.batchSetDeleted(submissionIDs, 0)
}

func (r *repositoryImpl) batchSetDeleted(submissionIDs []int64, isDelete int) (int, error) {
	db := config.DB

	if len(submissionIDs) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	placeholders := strings.Repeat("?,", len(submissionIDs))
	placeholders = placeholders[:len(placeholders)-1]

	// 只统计并更新状态实际发生变化的行：
	// 重复删除/重复恢复不得再次增减 submit_count
	args := make([]interface{}, len(submissionIDs)+1)
	for i, id := range submissionIDs {
		args[i] = id
	}
	args[len(submissionIDs)] = 1 - isDelete

	queryStats := fmt.Sprintf("SELECT project_id, COUNT(*) FROM score_submissions WHERE id IN (%s) AND is_delete = ? GROUP BY project_id", placeholders)
	statsRows, err := tx.Query(queryStats, args...)
	type projectCount struct {
		id    int
		count int
	}
	var updates []projectCount
	if err == nil {
		for statsRows.Next() {
			var pc projectCount
			if err := statsRows.Scan(&pc.id, &pc.count); err == nil {
				updates = append(updates, pc)
			}
		}
		statsRows.Close()
	}

	var query string
	if isDelete == 1 {
		query = fmt.Sprintf("UPDATE score_submissions SET is_delete = 1, deleted_at = CURRENT_TIMESTAMP WHERE id IN (%s) AND is_delete = ?", placeholders)
	} else {
		query = fmt.Sprintf("UPDATE score_submissions SET is_delete = 0, deleted_at = NULL WHERE id IN (%s) AND is_delete = ?", placeholders)
	}
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}

	for _, pc := range updates {
		if isDelete == 1 {
			_, _ = tx.Exec("UPDATE project_stats SET submit_count = GREATEST(0, submit_count - ?) WHERE project_id = ?", pc.count, pc.id)
		} else {
			_, _ = tx.Exec("UPDATE project_stats SET submit_count = submit_count + ? WHERE project_id = ?", pc.count, pc.id)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	count, _ := res.RowsAffected()
	return int(count), nil
}

// GetDeletedSubmissionsByProjectID 获取回收站列表
func (r *repositoryImpl) GetDeletedSubmissionsByProjectID(projectID int) ([]model.ScoreSubmission, error) {
	db := config.DB

	submissions := make([]model.ScoreSubmission, 0)
	rows, err := db.Query(`
		SELECT s.id, s.session_uid, s.project_id, s.user_id, s.create_time, s.deleted_at
		FROM score_submissions s
		WHERE s.project_id = ? AND s.is_delete = 1
		ORDER BY s.deleted_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s model.ScoreSubmission
		var userID, deletedAt sql.NullString
		if err := rows.Scan(&s.ID, &s.SessionUID, &s.ProjectID, &userID, &s.CreateTime, &deletedAt); err != nil {
			return nil, err
		}
		s.IsDelete = 1
		if userID.Valid {
			s.UserID = userID.String
		}
		if deletedAt.Valid {
			s.DeletedAt = &deletedAt.String
		}

		answers, err := r.getSubmissionAnswers(s.ID)
		if err != nil {
			return nil, err
		}
		s.Answers = answers

		submissions = append(submissions, s)
	}

	return submissions, nil
}

// PhysicalDeleteSubmissionByID 物理删除提交
func (r *repositoryImpl) PhysicalDeleteSubmissionByID(submissionID int64) error {
	db := config.DB

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var projectID int
	if err := tx.QueryRow("SELECT project_id FROM score_submissions WHERE id = ?", submissionID).Scan(&projectID); err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM score_answers WHERE submission_id = ?", submissionID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM score_submissions WHERE id = ?", submissionID); err != nil {
		return err
	}

	_, _ = tx.Exec("UPDATE project_stats SET submit_count = GREATEST(0, submit_count - 1) WHERE project_id = ?", projectID)

	return tx.Commit()
}

// BatchPhysicalDeleteSubmissions 批量物理删除提交
func (r *repositoryImpl) BatchPhysicalDeleteSubmissions(submissionIDs []int64) (int, error) {
	db := config.DB

	if len(submissionIDs) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	placeholders := strings.Repeat("?,", len(submissionIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(submissionIDs))
	for i, id := range submissionIDs {
		args[i] = id
	}

	queryStats := fmt.Sprintf("SELECT project_id, COUNT(*) FROM score_submissions WHERE id IN (%s) GROUP BY project_id", placeholders)
	statsRows, err := tx.Query(queryStats, args...)
	type projectCount struct {
		id    int
		count int
	}
	var updates []projectCount
	if err == nil {
		for statsRows.Next() {
			var pc projectCount
			if err := statsRows.Scan(&pc.id, &pc.count); err == nil {
				updates = append(updates, pc)
			}
		}
		statsRows.Close()
	}

	queryAnswers := fmt.Sprintf("DELETE FROM score_answers WHERE submission_id IN (%s)", placeholders)
	if _, err := tx.Exec(queryAnswers, args...); err != nil {
		return 0, err
	}

	querySubmissions := fmt.Sprintf("DELETE FROM score_submissions WHERE id IN (%s)", placeholders)
	res, err := tx.Exec(querySubmissions, args...)
	if err != nil {
		return 0, err
	}

	for _, pc := range updates {
		_, _ = tx.Exec("UPDATE project_stats SET submit_count = GREATEST(0, submit_count - ?) WHERE project_id = ?", pc.count, pc.id)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	count, _ := res.RowsAffected()
	return int(count), nil
}

// PhysicalDeleteExpiredSubmissions 清理过期的回收站数据
func (r *repositoryImpl) PhysicalDeleteExpiredSubmissions(days int) (int, error) {
	db := config.DB

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM score_submissions WHERE is_delete = 1 AND deleted_at < DATE_SUB(CURRENT_TIMESTAMP, INTERVAL ? DAY)", days)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	queryAnswers := fmt.Sprintf("DELETE FROM score_answers WHERE submission_id IN (%s)", placeholders)
	if _, err := tx.Exec(queryAnswers, args...); err != nil {
		return 0, err
	}

	querySubmissions := fmt.Sprintf("DELETE FROM score_submissions WHERE id IN (%s)", placeholders)
	res, err := tx.Exec(querySubmissions, args...)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	count, _ := res.RowsAffected()
	return int(count), nil
}
