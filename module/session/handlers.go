package session

import (
	"net/http"
	"strconv"

	"Guides-Server/utils"

	"github.com/gin-gonic/gin"
)

// SessionHandlers 登录会话管理处理器
type SessionHandlers struct {
	sessionManager *SessionManager
}

func NewSessionHandlers(sm *SessionManager) *SessionHandlers {
	return &SessionHandlers{sessionManager: sm}
}

// GetUserSessions 获取当前用户的所有活跃登录会话
func (h *SessionHandlers) GetUserSessions(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	sessions, err := h.sessionManager.GetUserSessions(userID)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "获取会话列表失败", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// RevokeSession 撤销指定登录会话
func (h *SessionHandlers) RevokeSession(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	sessionID, err := strconv.ParseInt(c.Param("session_id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的会话ID", err)
		return
	}

	if err := h.sessionManager.RevokeSession(userID, sessionID); err != nil {
		if err == ErrSessionNotFound {
			utils.SendError(c, http.StatusNotFound, "会话不存在", nil)
			return
		}
		utils.SendError(c, http.StatusInternalServerError, "撤销会话失败", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "会话已撤销"})
}

// RevokeAllSessions 撤销当前用户的所有登录会话（其他设备将需要重新登录）
func (h *SessionHandlers) RevokeAllSessions(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	revoked, err := h.sessionManager.RevokeUserSessions(userID)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "撤销会话失败", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "所有会话已撤销",
		"revoked_count": revoked,
	})
}

// LimitUserSessions 限制当前用户的活跃会话数量
func (h *SessionHandlers) LimitUserSessions(c *gin.Context) {
	var req struct {
		MaxSessions int `json:"max_sessions" binding:"required,min=1,max=20"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "参数错误", err)
		return
	}

	userID := c.MustGet("user_id").(string)

	if err := h.sessionManager.LimitUserSessions(userID, req.MaxSessions); err != nil {
		utils.SendError(c, http.StatusInternalServerError, "限制会话失败", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "会话数量已限制",
		"max_sessions": req.MaxSessions,
	})
}
