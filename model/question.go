package model

type Question struct {
	ID           int     `json:"id"`
	ProjectID    int     `json:"projectId"`
	QuestionText string  `json:"text" binding:"required"` // 滑块题题干
	Order        int     `json:"order"`                   // 展示顺序，参与端按此顺序渲染
	MinLabel     string  `json:"minLabel"`                // 滑块左端标签
	MaxLabel     string  `json:"maxLabel"`                // 滑块右端标签
	MinValue     float64 `json:"minValue"`                // 取值下界，默认 -1
	MaxValue     float64 `json:"maxValue"`                // 取值上界，默认 1
	CreateTime   string  `json:"createTime,omitempty"`
	UpdateTime   string  `json:"updateTime,omitempty"`
}
