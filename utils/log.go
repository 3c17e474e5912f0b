package utils

import (
	"log"

	"github.com/gin-gonic/gin"
)

// SendError 支持可选 err 参数
func SendError(c *gin.Context, code int, msg string, errs ...error) {
	var err error
	if len(errs) > 0 {
		err = errs[0]
	}

	LogError(msg, err)

	c.JSON(code, gin.H{
		"error":   msg,
		"status":  code,
		"success": false,
	})
	c.Abort()
}

// 错误日志记录函数
func LogError(context string, err error) {
	if err != nil {
		log.Printf("[ERROR] %s: %v", context, err)
	} else {
		log.Printf("[ERROR] %s", context)
	}
}
