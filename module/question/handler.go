package question

import (
	"Guides-Server/config"
	"Guides-Server/model"
	"Guides-Server/utils"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// GET /api/project/:projectId/questions
// 获取项目下的滑块题列表，按展示顺序返回
func GetQuestionsHandler(c *gin.Context) {
	db := config.DB

	projectID := c.Param("projectId")
	username := c.MustGet("username").(string)

	// 验证项目所有权
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM projects
		WHERE id = ? AND create_by = ?`, projectID, username).Scan(&count)
	if err != nil || count == 0 {
		utils.SendError(c, http.StatusForbidden, "无权访问此项目")
		return
	}

	rows, err := db.Query(`
		SELECT id, project_id, question_text, question_order, min_label, max_label, min_value, max_value
		FROM questions
		WHERE project_id = ?
		ORDER BY question_order ASC`, projectID)
	if err != nil {
		log.Printf("查询问题列表失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, "获取问题列表失败")
		return
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.QuestionText, &q.Order,
			&q.MinLabel, &q.MaxLabel, &q.MinValue, &q.MaxValue); err != nil {
			log.Printf("读取问题数据失败: %v", err)
			continue
		}
		questions = append(questions, q)
	}

	c.JSON(http.StatusOK, questions)
}

// POST /api/project/:projectId/question
func AddQuestionHandler(c *gin.Context) {
	db := config.DB

	projectID := c.Param("projectId")
	username := c.MustGet("username").(string)

	// 验证项目所有权
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM projects
		WHERE id = ? AND create_by = ?`, projectID, username).Scan(&count)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "验证项目所有权失败")
		return
	}
	if count == 0 {
		utils.SendError(c, http.StatusForbidden, "无权限操作此项目")
		return
	}

	var question model.Question
	if err := c.ShouldBindJSON(&question); err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的题目数据")
		return
	}

	if !validateQuestion(c, &question) {
		return
	}

	// 获取当前最大排序号
	var maxOrder int
	err = db.QueryRow("SELECT COALESCE(MAX(question_order), 0) FROM questions WHERE project_id = ?", projectID).Scan(&maxOrder)
	if err != nil {
		log.Printf("获取最大排序号失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, "系统错误")
		return
	}

	result, err := db.Exec(`
		INSERT INTO questions (project_id, question_text, question_order, min_label, max_label, min_value, max_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, question.QuestionText, maxOrder+1,
		question.MinLabel, question.MaxLabel, question.MinValue, question.MaxValue)
	if err != nil {
		log.Printf("插入问题失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, "添加问题失败")
		return
	}

	questionID, _ := result.LastInsertId()
	question.ID = int(questionID)
	question.ProjectID, _ = strconv.Atoi(projectID)
	question.Order = maxOrder + 1

	c.JSON(http.StatusCreated, question)
}

// PUT /api/project/:projectId/question/:questionId
func UpdateQuestionHandler(c *gin.Context) {
	db := config.DB

	projectID := c.Param("projectId")
	questionID := c.Param("questionId")
	username := c.MustGet("username").(string)

	// 验证问题归属
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM questions q
		JOIN projects p ON q.project_id = p.id
		WHERE q.id = ? AND q.project_id = ? AND p.create_by = ?`, questionID, projectID, username).Scan(&count)
	if err != nil || count == 0 {
		utils.SendError(c, http.StatusForbidden, "无权更新此问题")
		return
	}

	var question model.Question
	if err := c.ShouldBindJSON(&question); err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的题目数据")
		return
	}

	if !validateQuestion(c, &question) {
		return
	}

	_, err = db.Exec(`
		UPDATE questions
		SET question_text = ?, min_label = ?, max_label = ?, min_value = ?, max_value = ?
		WHERE id = ? AND project_id = ?`,
		question.QuestionText, question.MinLabel, question.MaxLabel,
		question.MinValue, question.MaxValue, questionID, projectID)
	if err != nil {
		log.Printf("更新问题失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, "更新问题失败")
		return
	}

	question.ID, _ = strconv.Atoi(questionID)
	question.ProjectID, _ = strconv.Atoi(projectID)
	c.JSON(http.StatusOK, question)
}

// DELETE /api/project/:projectId/question/:questionId
func DeleteQuestionHandler(c *gin.Context) {
	db := config.DB

	projectID := c.Param("projectId")
	questionID := c.Param("questionId")
	username := c.MustGet("username").(string)

	// 验证问题归属
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM questions q
		JOIN projects p ON q.project_id = p.id
		WHERE q.id = ? AND q.project_id = ? AND p.create_by = ?`, questionID, projectID, username).Scan(&count)
	if err != nil || count == 0 {
		utils.SendError(c, http.StatusForbidden, "无权删除此问题")
		return
	}

	tx, err := db.Begin()
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "创建事务失败")
		return
	}
	defer tx.Rollback()

	// 已有评分保留，仅删除题目本身
	if _, err = tx.Exec("DELETE FROM questions WHERE id = ? AND project_id = ?", questionID, projectID); err != nil {
		log.Printf("删除问题失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, "删除问题失败")
		return
	}

	if err = tx.Commit(); err != nil {
		utils.SendError(c, http.StatusInternalServerError, "提交事务失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "问题删除成功"})
}

// PUT /api/project/:projectId/questions/reorder
func ReorderQuestionsHandler(c *gin.Context) {
	db := config.DB

	projectID := c.Param("projectId")
	username := c.MustGet("username").(string)

	// 验证项目所有权
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM projects
		WHERE id = ? AND create_by = ?`, projectID, username).Scan(&count)
	if err != nil || count == 0 {
		utils.SendError(c, http.StatusForbidden, "无权重新排序此项目的问题")
		return
	}

	var req struct {
		QuestionIds []int `json:"questionIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的排序数据")
		return
	}

	if len(req.QuestionIds) == 0 {
		utils.SendError(c, http.StatusBadRequest, "问题ID列表不能为空")
		return
	}

	// 验证所有问题都属于此项目
	placeholders := strings.Repeat("?,", len(req.QuestionIds))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf("SELECT COUNT(*) FROM questions WHERE id IN (%s) AND project_id = ?", placeholders)
	args := make([]interface{}, len(req.QuestionIds)+1)
	for i, id := range req.QuestionIds {
		args[i] = id
	}
	args[len(req.QuestionIds)] = projectID

	err = db.QueryRow(query, args...).Scan(&count)
	if err != nil {
		log.Printf("验证问题所有权失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, "系统错误")
		return
	}

	if count != len(req.QuestionIds) {
		utils.SendError(c, http.StatusForbidden, "部分问题不存在或无权限操作")
		return
	}

	tx, err := db.Begin()
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "创建事务失败")
		return
	}
	defer tx.Rollback()

	// 更新问题排序
	for i, questionID := range req.QuestionIds {
		_, err = tx.Exec("UPDATE questions SET question_order = ? WHERE id = ? AND project_id = ?", i+1, questionID, projectID)
		if err != nil {
			log.Printf("更新问题排序失败: %v", err)
			utils.SendError(c, http.StatusInternalServerError, "重新排序失败")
			return
		}
	}

	if err = tx.Commit(); err != nil {
		utils.SendError(c, http.StatusInternalServerError, "提交事务失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "排序成功"})
}

// validateQuestion 校验滑块题干与取值区间，失败时已写入响应
func validateQuestion(c *gin.Context, q *model.Question) bool {
	q.QuestionText = utils.SanitizeInput(strings.TrimSpace(q.QuestionText))
	if len(q.QuestionText) < 1 || len(q.QuestionText) > 500 {
		utils.SendError(c, http.StatusBadRequest, "题干长度必须在1-500个字符之间")
		return false
	}

	// 取值区间默认 [-1, 1]
	if q.MinValue == 0 && q.MaxValue == 0 {
		q.MinValue = model.ScoreValueMin
		q.MaxValue = model.ScoreValueMax
	}
	if q.MinValue >= q.MaxValue {
		utils.SendError(c, http.StatusBadRequest, "取值下界必须小于上界")
		return false
	}

	q.MinLabel = utils.SanitizeInput(q.MinLabel)
	q.MaxLabel = utils.SanitizeInput(q.MaxLabel)
	return true
}
