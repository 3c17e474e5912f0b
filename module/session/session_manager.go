package session

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

var ErrSessionNotFound = errors.New("会话不存在")

// SessionManager 登录会话管理，基于 refresh_tokens 表记录的设备会话
type SessionManager struct {
	db *sql.DB
}

// DeviceSession 一条登录设备会话（对应一个未撤销的刷新令牌）
type DeviceSession struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IPAddress  string     `json:"ip_address"`
	UserAgent  string     `json:"user_agent"`
}

func NewSessionManager(database *sql.DB) *SessionManager {
	return &SessionManager{db: database}
}

// GetUserSessions 获取用户的活跃登录会话
func (sm *SessionManager) GetUserSessions(userID string) ([]DeviceSession, error) {
	rows, err := sm.db.Query(`
		SELECT id, user_id, issued_at, expires_at, last_used_at, ip_address, user_agent
		FROM refresh_tokens
		WHERE user_id = ? AND is_revoked = 0 AND expires_at > NOW()
		ORDER BY issued_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("查询登录会话失败: %v", err)
	}
	defer rows.Close()

	var sessions []DeviceSession
	for rows.Next() {
		var s DeviceSession
		var lastUsed sql.NullTime
		err := rows.Scan(&s.ID, &s.UserID, &s.IssuedAt, &s.ExpiresAt,
			&lastUsed, &s.IPAddress, &s.UserAgent)
		if err != nil {
			continue
		}
		if lastUsed.Valid {
			s.LastUsedAt = &lastUsed.Time
		}
		sessions = append(sessions, s)
	}

	return sessions, nil
}

// RevokeSession 撤销指定会话（仅限本人的会话）
func (sm *SessionManager) RevokeSession(userID string, sessionID int64) error {
	result, err := sm.db.Exec(`
		UPDATE refresh_tokens
		SET is_revoked = 1
		WHERE id = ? AND user_id = ? AND is_revoked = 0
	`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("撤销会话失败: %v", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrSessionNotFound
	}

	log.Printf("用户 %s 撤销登录会话: %d", userID, sessionID)
	return nil
}

// RevokeUserSessions 撤销用户的所有登录会话，返回撤销数量
func (sm *SessionManager) RevokeUserSessions(userID string) (int64, error) {
	result, err := sm.db.Exec(`
		UPDATE refresh_tokens
		SET is_revoked = 1
		WHERE user_id = ? AND is_revoked = 0
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("撤销用户会话失败: %v", err)
	}

	affected, _ := result.RowsAffected()
	log.Printf("已撤销用户 %s 的 %d 个登录会话", userID, affected)
	return affected, nil
}

// CleanupExpiredSessions 清理过期与已撤销的刷新令牌记录
func (sm *SessionManager) CleanupExpiredSessions() error {
	result, err := sm.db.Exec(`
		DELETE FROM refresh_tokens
		WHERE expires_at < NOW() OR is_revoked = 1
	`)
	if err != nil {
		return fmt.Errorf("清理过期会话失败: %v", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		log.Printf("已清理 %d 条过期会话记录", affected)
	}

	return nil
}

// LimitUserSessions 限制用户活跃会话数量，淘汰最久未使用的会话
func (sm *SessionManager) LimitUserSessions(userID string, maxSessions int) error {
	_, err := sm.db.Exec(`
		UPDATE refresh_tokens t1
		INNER JOIN (
			SELECT id, ROW_NUMBER() OVER (ORDER BY COALESCE(last_used_at, issued_at) DESC) as rn
			FROM refresh_tokens
			WHERE user_id = ? AND is_revoked = 0 AND expires_at > NOW()
		) t2 ON t1.id = t2.id
		SET t1.is_revoked = 1
		WHERE t2.rn > ?
	`, userID, maxSessions)

	return err
}

// StartCleanupRoutine 启动定期清理协程
func (sm *SessionManager) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(1 * time.Hour) // 每小时清理一次
		defer ticker.Stop()

		for range ticker.C {
			if err := sm.CleanupExpiredSessions(); err != nil {
				log.Printf("定期清理会话失败: %v", err)
			}
		}
	}()

	log.Println("登录会话清理服务已启动")
}
