package metrics

import (
	"Guides-Server/config"
	"Guides-Server/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

type QuestionAggregate struct {
	QuestionID   int     `json:"questionId"`
	QuestionText string  `json:"questionText"`
	Order        int     `json:"order"`
	AnswerCount  int     `json:"answerCount"`
	AvgValue     float64 `json:"avgValue"`
	MinValue     float64 `json:"minValue"`
	MaxValue     float64 `json:"maxValue"`
	StdDev       float64 `json:"stdDev"`
}

type ImageAggregate struct {
	ImageID     int64   `json:"imageId"`
	ImageName   string  `json:"imageName"`
	ImageURL    string  `json:"url"`
	AnswerCount int     `json:"answerCount"`
	AvgValue    float64 `json:"avgValue"`
	MinValue    float64 `json:"minValue"`
	MaxValue    float64 `json:"maxValue"`
}

type CellAggregate struct {
	ImageID     int64   `json:"imageId"`
	QuestionID  int     `json:"questionId"`
	AnswerCount int     `json:"answerCount"`
	AvgValue    float64 `json:"avgValue"`
}

// checkProjectOwnership 校验项目归属，统计接口共用
func checkProjectOwnership(projectID, username string) (bool, error) {
	var count int
	err := config.DB.QueryRow(
		"SELECT COUNT(*) FROM projects WHERE id = ? AND create_by = ?",
		projectID, username).Scan(&count)
	return count > 0, err
}

// GetQuestionAggregatesHandler 按题目聚合评分：均值、极值、标准差
func GetQuestionAggregatesHandler(c *gin.Context) {
	db := config.DB
	projectID := c.Param("id")
	username := c.MustGet("username").(string)

	owned, err := checkProjectOwnership(projectID, username)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "验证项目所有权失败", err)
		return
	}
	if !owned {
		utils.SendError(c, http.StatusForbidden, "无权查看此项目的统计")
		return
	}

	rows, err := db.Query(`
        SELECT q.id, q.question_text, q.question_order,
               COUNT(sa.id) AS answer_count,
               COALESCE(AVG(sa.answer_value), 0) AS avg_value,
               COALESCE(MIN(sa.answer_value), 0) AS min_value,
               COALESCE(MAX(sa.answer_value), 0) AS max_value,
               COALESCE(STDDEV_POP(sa.answer_value), 0) AS std_dev
        FROM questions q
        LEFT JOIN score_answers sa ON sa.question_id = q.id
        LEFT JOIN score_submissions ss ON sa.submission_id = ss.id AND ss.is_delete = 0
        WHERE q.project_id = ?
        GROUP BY q.id, q.question_text, q.question_order
        ORDER BY q.question_order ASC, q.id ASC`, projectID)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "获取题目统计失败", err)
		return
	}
	defer rows.Close()

	var aggregates []QuestionAggregate
	for rows.Next() {
		var agg QuestionAggregate
		if err := rows.Scan(&agg.QuestionID, &agg.QuestionText, &agg.Order,
			&agg.AnswerCount, &agg.AvgValue, &agg.MinValue, &agg.MaxValue, &agg.StdDev); err != nil {
			utils.SendError(c, http.StatusInternalServerError, "读取题目统计失败", err)
			return
		}
		aggregates = append(aggregates, agg)
	}

	c.JSON(http.StatusOK, gin.H{"questions": aggregates, "count": len(aggregates)})
}

// GetImageAggregatesHandler 按图片聚合评分
func GetImageAggregatesHandler(c *gin.Context) {
	db := config.DB
	projectID := c.Param("id")
	username := c.MustGet("username").(string)

	owned, err := checkProjectOwnership(projectID, username)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "验证项目所有权失败", err)
		return
	}
	if !owned {
		utils.SendError(c, http.StatusForbidden, "无权查看此项目的统计")
		return
	}

	rows, err := db.Query(`
        SELECT pi.id, pi.image_name, pi.image_url,
               COUNT(sa.id) AS answer_count,
               COALESCE(AVG(sa.answer_value), 0) AS avg_value,
               COALESCE(MIN(sa.answer_value), 0) AS min_value,
               COALESCE(MAX(sa.answer_value), 0) AS max_value
        FROM project_images pi
        LEFT JOIN score_answers sa ON sa.image_id = pi.id
        LEFT JOIN score_submissions ss ON sa.submission_id = ss.id AND ss.is_delete = 0
        WHERE pi.project_id = ?
        GROUP BY pi.id, pi.image_name, pi.image_url
        ORDER BY pi.image_order ASC, pi.id ASC`, projectID)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "获取图片统计失败", err)
		return
	}
	defer rows.Close()

	var aggregates []ImageAggregate
	for rows.Next() {
		var agg ImageAggregate
		if err := rows.Scan(&agg.ImageID, &agg.ImageName, &agg.ImageURL,
			&agg.AnswerCount, &agg.AvgValue, &agg.MinValue, &agg.MaxValue); err != nil {
			utils.SendError(c, http.StatusInternalServerError, "读取图片统计失败", err)
			return
		}
		aggregates = append(aggregates, agg)
	}

	c.JSON(http.StatusOK, gin.H{"images": aggregates, "count": len(aggregates)})
}

// GetScoreMatrixHandler 图片×题目交叉聚合，供热力图类展示
func GetScoreMatrixHandler(c *gin.Context) {
	db := config.DB
	projectID := c.Param("id")
	username := c.MustGet("username").(string)

	owned, err := checkProjectOwnership(projectID, username)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "验证项目所有权失败", err)
		return
	}
	if !owned {
		utils.SendError(c, http.StatusForbidden, "无权查看此项目的统计")
		return
	}

	rows, err := db.Query(`
        SELECT sa.image_id, sa.question_id,
               COUNT(sa.id) AS answer_count,
               AVG(sa.answer_value) AS avg_value
        FROM score_answers sa
        JOIN score_submissions ss ON sa.submission_id = ss.id
        WHERE ss.project_id = ? AND ss.is_delete = 0
        GROUP BY sa.image_id, sa.question_id`, projectID)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "获取交叉统计失败", err)
		return
	}
	defer rows.Close()

	var cells []CellAggregate
	for rows.Next() {
		var cell CellAggregate
		if err := rows.Scan(&cell.ImageID, &cell.QuestionID, &cell.AnswerCount, &cell.AvgValue); err != nil {
			utils.SendError(c, http.StatusInternalServerError, "读取交叉统计失败", err)
			return
		}
		cells = append(cells, cell)
	}

	c.JSON(http.StatusOK, gin.H{"cells": cells, "count": len(cells)})
}
