package metrics

import (
	"Guides-Server/config"
	"Guides-Server/model"
	"Guides-Server/utils"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetProjectStatsHandler 获取单个项目的访问与提交统计
func GetProjectStatsHandler(c *gin.Context) {
	db := config.DB

	projectID := c.Param("id")
	username := c.MustGet("username").(string)

	var stats model.ProjectStats

	err := db.QueryRow(`
        SELECT p.id, p.project_name,
               COALESCE(ps.view_count, 0) AS view_count,
               COALESCE(ps.submit_count, 0) AS submit_count,
               COALESCE(ps.last_view_time, '1970-01-01 00:00:00') AS last_view_time,
               COALESCE(ps.last_submit_time, '1970-01-01 00:00:00') AS last_submit_time
        FROM projects p
        LEFT JOIN project_stats ps ON p.id = ps.project_id
        WHERE p.id = ? AND p.create_by = ?`,
		projectID, username).
		Scan(
			&stats.ProjectID,
			&stats.ProjectName,
			&stats.ViewCount,
			&stats.SubmitCount,
			&stats.LastViewTime,
			&stats.LastSubmitTime,
		)

	if err != nil {
		if err == sql.ErrNoRows {
			log.Printf("拒绝连接: 访问不存在的项目 %s", projectID)
			c.AbortWithStatus(http.StatusNotFound)
		} else {
			log.Printf("获取项目统计失败: %v", err)
			utils.SendError(c, http.StatusInternalServerError, "获取项目统计失败")
		}
		return
	}

	// 最近提交的会话列表
	rows, err := db.Query(`
SELECT session_uid, DATE_FORMAT(submit_time, '%Y-%m-%d %H:%i:%s')
FROM score_submissions
WHERE project_id = ? AND is_delete = 0
ORDER BY submit_time DESC
LIMIT 100`, projectID)

	if err != nil {
		log.Printf("获取提交会话列表失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, "获取提交会话列表失败")
		return
	}
	defer rows.Close()

	type sessionItem struct {
		SessionUID string `json:"sessionUid"`
		SubmitTime string `json:"submitTime"`
	}
	var sessions []sessionItem
	for rows.Next() {
		var item sessionItem
		if err := rows.Scan(&item.SessionUID, &item.SubmitTime); err != nil {
			log.Printf("读取会话数据失败: %v", err)
			utils.SendError(c, http.StatusInternalServerError, "读取会话数据失败")
			return
		}
		sessions = append(sessions, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":    stats,
		"sessions": sessions,
	})
}

// GetAllProjectStatsHandler 获取当前用户所有项目的统计列表
func GetAllProjectStatsHandler(c *gin.Context) {
	db := config.DB

	username := c.MustGet("username").(string)

	rows, err := db.Query(`
        SELECT p.id, p.project_name,
               COALESCE(ps.view_count, 0) AS view_count,
               COALESCE(ps.submit_count, 0) AS submit_count,
               COALESCE(ps.last_view_time, '1970-01-01 00:00:00') AS last_view_time,
               COALESCE(ps.last_submit_time, '1970-01-01 00:00:00') AS last_submit_time
        FROM projects p
        LEFT JOIN project_stats ps ON p.id = ps.project_id
        WHERE p.create_by = ?`,
		username)

	if err != nil {
		log.Printf("获取项目统计列表失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, "获取项目统计列表失败")
		return
	}
	defer rows.Close()

	var statsList []model.ProjectStats
	for rows.Next() {
		var stats model.ProjectStats

		err := rows.Scan(
			&stats.ProjectID,
			&stats.ProjectName,
			&stats.ViewCount,
			&stats.SubmitCount,
			&stats.LastViewTime,
			&stats.LastSubmitTime,
		)
		if err != nil {
			log.Printf("读取统计数据失败: %v", err)
			utils.SendError(c, http.StatusInternalServerError, "读取统计数据失败")
			return
		}

		statsList = append(statsList, stats)
	}

	c.JSON(http.StatusOK, statsList)
}
