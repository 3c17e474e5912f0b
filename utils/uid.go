package utils

import (
	"fmt"
	mrand "math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GenerateRandomUID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	r := mrand.New(mrand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[r.Intn(len(charset))]
	}
	return string(b)
}

func GenerateCustomUserID() string {
	// 生成一个 UUID 并移除破折号
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	for len(id) < 14 {
		id += strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	id = id[:14]

	// 格式化为 XXX_XXXXXXXXXXX
	return fmt.Sprintf("%s_%s", id[:3], id[3:])
}
