package evaluate

import (
	"context"
	"time"
)

// Question 一个滑块评分问题，会话期间不可变
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ImageItem 待评图片。URL 为空白的条目在会话开始前被过滤
type ImageItem struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Project 参与端视角的项目配置，由外部加载方提供，只读
type Project struct {
	ID            string      `json:"id"`
	ImageCount    int         `json:"imageCount"`    // 每次会话抽取的图片数量
	ImageDuration float64     `json:"imageDuration"` // 每张图片的展示时长（秒）
	Questions     []Question  `json:"questions"`
	Images        []ImageItem `json:"images"`
}

// Answer 一条评分：一张图片上一个问题的一个取值
type Answer struct {
	ImageID    string  `json:"imageId"`
	QuestionID string  `json:"questionId"`
	Value      float64 `json:"value"`
}

// Submission 会话结束时一次性上报的完整评分集合
type Submission struct {
	SessionID string   `json:"sessionId"`
	Answers   []Answer `json:"answers"`
}

// Phase 会话在当前图片上的子状态
type Phase int

const (
	PhaseShowImage   Phase = iota // 展示图片，计时中
	PhaseShowSliders              // 图片展示结束，回答问题
	PhaseSubmitted                // 终态：完整评分已成功上报
)

func (p Phase) String() string {
	switch p {
	case PhaseShowImage:
		return "show_image"
	case PhaseShowSliders:
		return "show_sliders"
	case PhaseSubmitted:
		return "submitted"
	}
	return "unknown"
}

// Rand 可注入的随机源，测试中可替换为确定性序列
type Rand interface {
	Intn(n int) int
}

// Clock 可注入的时钟，测试中可替换为虚拟时钟
type Clock interface {
	Now() time.Time
}

// Preloader 预热下一张图片的缓存。只是建议性操作，不阻塞状态转移
type Preloader interface {
	Preload(url string)
}

// Submitter 评分收集方。任何 2xx 视为成功
type Submitter interface {
	Submit(ctx context.Context, sub Submission) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
