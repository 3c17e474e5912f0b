package evaluate

import (
	mrand "math/rand"
	"strings"
	"time"
)

// 过滤空白 URL 后做 Fisher–Yates 洗牌，再截取前 min(count, len) 张。
// 结果在会话生命周期内冻结，重复渲染不会重新洗牌。
func sampleImages(images []ImageItem, count int, r Rand) []ImageItem {
	valid := make([]ImageItem, 0, len(images))
	for _, img := range images {
		if strings.TrimSpace(img.URL) != "" {
			valid = append(valid, img)
		}
	}

	// Fisher–Yates：从末位向前，每次与 [0, i] 内的均匀随机位置交换
	for i := len(valid) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		valid[i], valid[j] = valid[j], valid[i]
	}

	if count < 0 {
		count = 0
	}
	if count < len(valid) {
		valid = valid[:count]
	}
	return valid
}

func defaultRand() Rand {
	return mrand.New(mrand.NewSource(time.Now().UnixNano()))
}
