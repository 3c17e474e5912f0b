package score

import (
	"Guides-Server/config"
	"Guides-Server/model"
	"Guides-Server/utils"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

var scoreService Service

// InitService 初始化评分服务
func InitService() {
	repo := NewRepository()
	scoreService = NewService(repo)
}

// CleanupRecycleBinTask 定时清理回收站任务
func CleanupRecycleBinTask(days int) (int, error) {
	if scoreService == nil {
		return 0, fmt.Errorf("scoreService not initialized")
	}
	return scoreService.CleanupRecycleBin(days)
}

// participantIP 获取参与者IP，不信任代理头时回落到直连地址
func participantIP(c *gin.Context) string {
	if config.TrustProxy() {
		return c.ClientIP()
	}
	return c.RemoteIP()
}

// GetPublicProjectHandler 参与端获取项目
// GET /api/public/project/:uid
// 返回知情同意文本、采集参数、题目与图片列表；浏览记录异步写入
func GetPublicProjectHandler(c *gin.Context) {
	uid := c.Param("uid")

	project, questions, images, err := scoreService.GetOpenProject(uid)
	if err != nil {
		switch err {
		case ErrProjectNotFound:
			log.Printf("拒绝连接: 访问不存在的项目 %s", uid)
			c.AbortWithStatus(http.StatusNotFound)
		case ErrProjectNotOpen:
			utils.SendError(c, http.StatusForbidden, "项目未开放采集", nil)
		default:
			utils.SendError(c, http.StatusInternalServerError, "获取项目失败", err)
		}
		return
	}

	// 异步记录浏览，不阻塞响应
	viewerIP := participantIP(c)
	projectID := project.ID
	go func() {
		if err := scoreService.RecordView(projectID, viewerIP); err != nil {
			log.Printf("记录项目浏览失败: %v", err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{
		"project":   project,
		"questions": questions,
		"images":    images,
	})
}

// SubmitScoresHandler 参与端提交评分
// POST /scores 与 POST /api/public/scores 共用
// 同一 sessionId 的重复提交按幂等处理，返回成功
func SubmitScoresHandler(c *gin.Context) {
	var req model.SubmitScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的评分数据", err)
		return
	}

	// 参与者可匿名，登录时带上用户ID
	userID := ""
	if v, exists := c.Get("user_id"); exists {
		if id, ok := v.(string); ok {
			userID = id
		}
	}

	sub, err := scoreService.SubmitScores(&req, userID)
	if err != nil {
		switch err {
		case ErrEmptySession, ErrEmptyAnswers, ErrInvalidAnswer, ErrValueOutOfBand, ErrMixedProjectImages:
			utils.SendError(c, http.StatusBadRequest, err.Error(), nil)
		case ErrProjectNotFound:
			utils.SendError(c, http.StatusBadRequest, "评分引用的图片不存在", nil)
		case ErrProjectNotOpen:
			utils.SendError(c, http.StatusForbidden, "项目未开放采集", nil)
		case ErrDuplicateSession:
			// 重试到达：该会话已落库，直接确认成功
			c.JSON(http.StatusOK, gin.H{"message": "评分已提交"})
		default:
			utils.SendError(c, http.StatusInternalServerError, "提交评分失败", err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "评分提交成功",
		"submissionId": sub.ID,
	})
}

// GetSubmissionsHandler 获取项目下所有提交
func GetSubmissionsHandler(c *gin.Context) {
	projectIDStr := c.Param("projectId")
	username := c.MustGet("username").(string)

	projectID, err := strconv.Atoi(projectIDStr)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的项目ID", err)
		return
	}

	submissions, err := scoreService.GetSubmissionsByProject(projectID, username)
	if err != nil {
		if err == ErrPermissionDenied {
			utils.SendError(c, http.StatusForbidden, "无权查看提交记录", err)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "获取提交列表失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, submissions)
}

// GetSubmissionByIDHandler 按ID获取提交详情
func GetSubmissionByIDHandler(c *gin.Context) {
	idStr := c.Param("id")
	username := c.MustGet("username").(string)

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的提交ID", err)
		return
	}

	sub, err := scoreService.GetSubmissionByID(id, username)
	if err != nil {
		if err == ErrSubmissionNotFound {
			log.Printf("拒绝连接: 访问不存在的提交 %d", id)
			c.AbortWithStatus(http.StatusNotFound)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "获取提交失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, sub)
}

// LogicDeleteSubmissionHandler 逻辑删除单个提交
func LogicDeleteSubmissionHandler(c *gin.Context) {
	idStr := c.Param("id")
	username := c.MustGet("username").(string)

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的提交ID", err)
		return
	}

	if err := scoreService.DeleteSubmission(id, username); err != nil {
		if err == ErrPermissionDenied {
			utils.SendError(c, http.StatusForbidden, "提交不存在或无权限逻辑删除", nil)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "逻辑删除提交失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "提交逻辑删除成功"})
}

// BatchLogicDeleteSubmissionsHandler 批量逻辑删除提交
func BatchLogicDeleteSubmissionsHandler(c *gin.Context) {
	username := c.MustGet("username").(string)

	var request struct {
		SubmissionIDs []int64 `json:"submissionIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的请求数据", err)
		return
	}

	if len(request.SubmissionIDs) == 0 {
		utils.SendError(c, http.StatusBadRequest, "未指定要删除的提交", nil)
		return
	}

	deletedCount, err := scoreService.BatchDeleteSubmissions(request.SubmissionIDs, username)
	if err != nil {
		if err == ErrPartialPermissionDenied {
			utils.SendError(c, http.StatusForbidden, "部分提交不存在或无权限逻辑删除", nil)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "批量逻辑删除提交失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      fmt.Sprintf("成功逻辑删除 %d 个提交", deletedCount),
		"deletedCount": deletedCount,
	})
}

// DeleteSubmissionHandler 物理删除单个提交 (仅限创建者)
func DeleteSubmissionHandler(c *gin.Context) {
	idStr := c.Param("id")
	username := c.MustGet("username").(string)

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的提交ID", err)
		return
	}

	if err := scoreService.PhysicalDeleteSubmission(id, username); err != nil {
		if err == ErrPermissionDenied || err == ErrSubmissionNotFound {
			utils.SendError(c, http.StatusForbidden, "提交不存在或无权限物理删除 (仅限创建者)", nil)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "物理删除提交失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "提交物理删除成功"})
}

// BatchDeleteSubmissionsHandler 批量物理删除提交 (仅限创建者)
func BatchDeleteSubmissionsHandler(c *gin.Context) {
	username := c.MustGet("username").(string)

	var request struct {
		SubmissionIDs []int64 `json:"submissionIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的请求数据", err)
		return
	}

	if len(request.SubmissionIDs) == 0 {
		utils.SendError(c, http.StatusBadRequest, "未指定要删除的提交", nil)
		return
	}

	deletedCount, err := scoreService.BatchPhysicalDeleteSubmissions(request.SubmissionIDs, username)
	if err != nil {
		if err == ErrPartialPermissionDenied {
			utils.SendError(c, http.StatusForbidden, "部分提交不存在或无权限物理删除", nil)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "批量物理删除提交失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      fmt.Sprintf("成功物理删除 %d 个提交", deletedCount),
		"deletedCount": deletedCount,
	})
}

// GetDeletedSubmissionsHandler 获取回收站列表
func GetDeletedSubmissionsHandler(c *gin.Context) {
	projectIDStr := c.Param("projectId")
	username := c.MustGet("username").(string)

	projectID, err := strconv.Atoi(projectIDStr)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的项目ID", err)
		return
	}

	submissions, err := scoreService.GetDeletedSubmissions(projectID, username)
	if err != nil {
		if err == ErrPermissionDenied {
			utils.SendError(c, http.StatusForbidden, "无权查看回收站", err)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "获取回收站列表失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, submissions)
}

// RestoreSubmissionHandler 恢复单个提交
func RestoreSubmissionHandler(c *gin.Context) {
	idStr := c.Param("id")
	username := c.MustGet("username").(string)

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的提交ID", err)
		return
	}

	if err := scoreService.RestoreSubmission(id, username); err != nil {
		if err == ErrPermissionDenied {
			utils.SendError(c, http.StatusForbidden, "提交不存在或无权限恢复", nil)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "恢复提交失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "提交恢复成功"})
}

// BatchRestoreSubmissionsHandler 批量恢复提交
func BatchRestoreSubmissionsHandler(c *gin.Context) {
	username := c.MustGet("username").(string)

	var request struct {
		SubmissionIDs []int64 `json:"submissionIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的请求数据", err)
		return
	}

	if len(request.SubmissionIDs) == 0 {
		utils.SendError(c, http.StatusBadRequest, "未指定要恢复的提交", nil)
		return
	}

	restoredCount, err := scoreService.BatchRestoreSubmissions(request.SubmissionIDs, username)
	if err != nil {
		if err == ErrPartialPermissionDenied {
			utils.SendError(c, http.StatusForbidden, "部分提交不存在或无权限恢复", nil)
		} else {
			utils.SendError(c, http.StatusInternalServerError, "批量恢复提交失败", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       fmt.Sprintf("成功恢复 %d 个提交", restoredCount),
		"restoredCount": restoredCount,
	})
}
