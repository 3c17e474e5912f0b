package evaluate

import (
	"context"
	"time"
)

// StartTimer 在展示阶段以固定节奏驱动 Tick，模拟宿主环境的逐帧回调。
// 循环在发生阶段转移或离开展示阶段时自行退出；返回的 stop 用于提前取消
// （离开 ShowImage 时必须取消而不是放任，避免过期回调继续运行）。
func (s *Session) StartTimer(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.Tick() {
					return
				}
				if s.Phase() != PhaseShowImage {
					return
				}
			}
		}
	}()
	return cancel
}
