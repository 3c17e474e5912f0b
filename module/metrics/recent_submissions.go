package metrics

import (
	"Guides-Server/config"
	"Guides-Server/utils"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type RecentSubmission struct {
	SessionUID  string    `json:"sessionUid"`
	ProjectName string    `json:"projectName"`
	AnswerCount int       `json:"answerCount"`
	SubmitTime  time.Time `json:"submitTime"`
	TimeAgo     string    `json:"timeAgo"`
}

func GetRecentSubmissionsHandler(c *gin.Context) {
	db := config.DB
	username := c.MustGet("username").(string)

	// 最近的评分提交记录，附带该次会话的答案数量
	rows, err := db.Query(`
		SELECT ss.session_uid, p.project_name, COUNT(sa.id), ss.submit_time
		FROM score_submissions ss
		JOIN projects p ON ss.project_id = p.id
		LEFT JOIN score_answers sa ON sa.submission_id = ss.id
		WHERE p.create_by = ? AND ss.is_delete = 0
		GROUP BY ss.id, ss.session_uid, p.project_name, ss.submit_time
		ORDER BY ss.submit_time DESC
		LIMIT 20`, username)

	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "获取最近提交记录失败")
		return
	}
	defer rows.Close()

	var submissions []RecentSubmission
	for rows.Next() {
		var submission RecentSubmission
		var submitTime time.Time

		err := rows.Scan(
			&submission.SessionUID,
			&submission.ProjectName,
			&submission.AnswerCount,
			&submitTime,
		)
		if err != nil {
			utils.SendError(c, http.StatusInternalServerError, "读取提交记录失败")
			return
		}

		// 直接使用驱动解析后的时间（受 DSN 中 parseTime 与 loc 影响）
		submission.SubmitTime = submitTime
		submission.TimeAgo = formatTimeAgo(submission.SubmitTime)

		submissions = append(submissions, submission)
	}

	c.JSON(http.StatusOK, gin.H{
		"submissions": submissions,
		"total":       len(submissions),
	})
}

func formatTimeAgo(submitTime time.Time) string {
	now := time.Now()
	diff := now.Sub(submitTime)

	// 处理负时间差（未来时间）
	if diff < 0 {
		return "刚刚"
	}

	if diff < time.Minute {
		return "刚刚"
	} else if diff < time.Hour {
		minutes := int(diff.Minutes())
		return fmt.Sprintf("%d分钟前", minutes)
	} else if diff < 24*time.Hour {
		hours := int(diff.Hours())
		return fmt.Sprintf("%d小时前", hours)
	} else if diff < 30*24*time.Hour { // 限制在30天内
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%d天前", days)
	} else {
		// 超过30天显示具体日期
		return submitTime.Format("2006-01-02")
	}
}
