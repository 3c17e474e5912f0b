package model

type Project struct {
	ID                 int     `json:"id"`
	ProjectUID         string  `json:"projectUid,omitempty"`
	ProjectName        string  `json:"projectName" binding:"required"`
	ProjectDescription string  `json:"projectDescription"`
	ConsentText        string  `json:"consentText"`   // 参与者知情同意文本
	ImageCount         int     `json:"imageCount"`    // 每次会话抽取的图片数量
	ImageDuration      float64 `json:"imageDuration"` // 每张图片的展示时长（秒）
	ProjectStatus      int     `json:"projectStatus"` // 0-草稿，1-开放采集中，2-已关闭
	StartAt            *string `json:"startAt,omitempty"` // 采集窗口开始时间
	EndAt              *string `json:"endAt,omitempty"`   // 采集窗口结束时间
	UserID             string  `json:"userId"`
	CreateBy           string  `json:"createBy"`
	CreateTime         string  `json:"createTime"`
	UpdateTime         string  `json:"updateTime"`
	UpdateBy           string  `json:"updateBy"`
}

type ProjectStats struct {
	ProjectID      int    `json:"projectId"`
	ProjectName    string `json:"projectName"`
	ViewCount      int    `json:"viewCount"`
	SubmitCount    int    `json:"submitCount"`
	LastViewTime   string `json:"lastViewTime"`
	LastSubmitTime string `json:"lastSubmitTime"`
}
