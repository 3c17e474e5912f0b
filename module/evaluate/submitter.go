package evaluate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSubmitter 将评分 POST 到收集端的 /scores 接口
type HTTPSubmitter struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSubmitter(baseURL string) *HTTPSubmitter {
	return &HTTPSubmitter{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPSubmitter) Submit(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("序列化评分失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/scores", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 任何 2xx 视为成功
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("评分接口返回 %d", resp.StatusCode)
	}
	return nil
}

// HTTPPreloader 发起一次图片资源抓取来预热缓存。
// 完全旁路：不关心结果，不阻塞调用方
type HTTPPreloader struct {
	Client *http.Client
}

func (p *HTTPPreloader) Preload(url string) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	go func() {
		resp, err := client.Get(url)
		if err != nil {
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
}
