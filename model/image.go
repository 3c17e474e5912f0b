package model

type ProjectImage struct {
	ID         int64  `json:"id"`
	ProjectID  int    `json:"projectId"`
	ImageName  string `json:"imageName"`
	ImageURL   string `json:"url"` // 参与端直接加载的地址，空白 URL 在会话开始前被过滤
	Order      int    `json:"order"`
	UploadTime string `json:"uploadTime,omitempty"`
}

type ImageInfo struct {
	ID          int64  `json:"id"`
	ImageName   string `json:"imageName"`
	ImageURL    string `json:"imageUrl"`
	ImageSize   int64  `json:"imageSize"`
	ContentType string `json:"contentType"`
	UploadTime  string `json:"uploadTime"`
	Owner       string `json:"owner"`
}
