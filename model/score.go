package model

// ScoreAnswer 一条参与者评分：某张图片上某个问题的取值
type ScoreAnswer struct {
	ID           int64   `json:"id,omitempty"`
	SubmissionID int64   `json:"submissionId,omitempty"`
	ImageID      string  `json:"imageId" binding:"required"`
	QuestionID   string  `json:"questionId" binding:"required"`
	Value        float64 `json:"value"`
}

// ScoreSubmission 一次完整的会话提交（参与端在最后一张图片答完后一次性上报）
type ScoreSubmission struct {
	ID         int64         `json:"id"`
	SessionUID string        `json:"sessionId"`
	ProjectID  int           `json:"projectId"`
	UserID     string        `json:"userId,omitempty"`
	CreateTime string        `json:"createTime"`
	IsDelete   int           `json:"isDelete"` // 逻辑删除 0-未删除
	DeletedAt  *string       `json:"deletedAt,omitempty"`
	Answers    []ScoreAnswer `json:"answers"`
}

// SubmitScoreRequest POST /scores 的请求体
type SubmitScoreRequest struct {
	SessionID string        `json:"sessionId" binding:"required"`
	Answers   []ScoreAnswer `json:"answers" binding:"required"`
}
