package metrics

import (
	"Guides-Server/config"
	"Guides-Server/utils"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// 概览：当前用户所有项目的总浏览数、总提交数、总项目数、开放采集中的项目数
func GetOverviewHandler(c *gin.Context) {
	db := config.DB
	username := c.MustGet("username").(string)

	// 查询总浏览数与总提交数
	var totalViews, totalSubmits sql.NullInt64
	err := db.QueryRow(`
    SELECT COALESCE(SUM(ps.view_count),0) AS total_views,
           COALESCE(SUM(ps.submit_count),0) AS total_submits
    FROM projects p
    LEFT JOIN project_stats ps ON ps.project_id = p.id
    WHERE p.create_by = ?`, username).Scan(&totalViews, &totalSubmits)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "获取总览失败", err)
		return
	}

	// 查询总项目数和开放中的项目数（status=1，即采集窗口内的项目）
	var totalProjects, openProjects int
	err = db.QueryRow(`
    SELECT COUNT(*) AS total,
           COALESCE(SUM(CASE WHEN p.project_status = 1 THEN 1 ELSE 0 END), 0) AS open
    FROM projects p
    WHERE p.create_by = ?`, username).Scan(&totalProjects, &openProjects)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "获取项目统计失败", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalViews":    totalViews.Int64,
		"totalSubmits":  totalSubmits.Int64,
		"totalProjects": totalProjects,
		"openProjects":  openProjects,
	})
}

// 提交趋势：range=7d | month（默认7d）。7日按天聚合，月按月份聚合近12个月
func GetSubmitTrendHandler(c *gin.Context) {
	db := config.DB
	username := c.MustGet("username").(string)
	rng := c.DefaultQuery("range", "7d")

	type Point struct {
		Label string
		Count int
	}
	var points []Point

	if rng == "month" {
		// 近12个月（含本月）聚合
		rows, err := db.Query(`
      SELECT DATE_FORMAT(ss.submit_time, '%Y-%m') AS ym, COUNT(*)
      FROM score_submissions ss
      JOIN projects p ON ss.project_id = p.id
      WHERE p.create_by = ? AND ss.is_delete = 0
        AND ss.submit_time >= DATE_FORMAT(DATE_SUB(CURDATE(), INTERVAL 11 MONTH),'%Y-%m-01')
      GROUP BY ym
      ORDER BY ym ASC`, username)
		if err != nil {
			utils.SendError(c, http.StatusInternalServerError, "获取趋势失败", err)
			return
		}
		defer rows.Close()
		m := map[string]int{}
		for rows.Next() {
			var ym string
			var cnt int
			_ = rows.Scan(&ym, &cnt)
			m[ym] = cnt
		}
		// 填充缺失月份
		now := time.Now()
		for i := 11; i >= 0; i-- {
			t := now.AddDate(0, -i, 0)
			ym := t.Format("2006-01")
			points = append(points, Point{Label: ym, Count: m[ym]})
		}
	} else {
		// 近7日滚动窗口（过去 6 天到当前时刻），避免时区/边界导致的数据缺失
		rows, err := db.Query(`
      SELECT DATE_FORMAT(DATE(ss.submit_time), '%Y-%m-%d') AS d, COUNT(*)
      FROM score_submissions ss
      JOIN projects p ON ss.project_id = p.id
      WHERE p.create_by = ? AND ss.is_delete = 0
        AND ss.submit_time >= DATE_SUB(CURDATE(), INTERVAL 6 DAY)
      GROUP BY d
      ORDER BY d ASC`, username)
		if err != nil {
			utils.SendError(c, http.StatusInternalServerError, "获取趋势失败", err)
			return
		}
		defer rows.Close()
		m := map[string]int{}
		for rows.Next() {
			var d string
			var cnt int
			_ = rows.Scan(&d, &cnt)
			m[d] = cnt
		}
		// 填充缺失日期
		today := time.Now()
		for i := 6; i >= 0; i-- {
			d := today.AddDate(0, 0, -i).Format("2006-01-02")
			points = append(points, Point{Label: d, Count: m[d]})
		}
	}

	labels := make([]string, 0, len(points))
	counts := make([]int, 0, len(points))
	for _, p := range points {
		labels = append(labels, p.Label)
		counts = append(counts, p.Count)
	}

	c.JSON(http.StatusOK, gin.H{
		"labels": labels,
		"counts": counts,
		"range":  rng,
	})
}
