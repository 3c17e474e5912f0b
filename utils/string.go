package utils

import (
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
var urlRegex = regexp.MustCompile(`(?i)(https?|ftp|file)://[-A-Za-z0-9+&@#/%?=~_|!:,.;]*[-A-Za-z0-9+&@#/%=~_|]`)

var eventHandlers = []string{
	"onload", "onerror", "onclick", "onmouseover", "onmouseout",
	"onkeydown", "onkeyup", "onkeypress", "onsubmit", "onchange",
	"onfocus", "onblur", "onresize", "onscroll", "onunload",
}

var dangerousProtocols = []string{
	"javascript:", "data:", "vbscript:", "file:", "about:", "blob:",
}

// 检查字符串是否包含危险字符
func ContainsDangerousChars(s string) bool {
	if htmlTagRegex.MatchString(s) {
		return true
	}

	lower := strings.ToLower(s)
	for _, protocol := range dangerousProtocols {
		if strings.Contains(lower, protocol) {
			return true
		}
	}

	// 检查HTML解码后的字符串
	decoded := html.UnescapeString(s)
	if decoded != s {
		lowerDecoded := strings.ToLower(decoded)
		if htmlTagRegex.MatchString(decoded) {
			return true
		}
		for _, protocol := range dangerousProtocols {
			if strings.Contains(lowerDecoded, protocol) {
				return true
			}
		}
	}

	// 检查是否包含事件处理器
	for _, handler := range eventHandlers {
		if strings.Contains(lower, handler) {
			return true
		}
	}

	return false
}

// 检查字符串是否包含URL
func ContainsURL(s string) bool {
	return urlRegex.MatchString(s)
}

// 从字符串中提取所有URL
func ExtractURLs(s string) []string {
	return urlRegex.FindAllString(s, -1)
}

// 根据文件扩展名获取MIME类型
func GetContentTypeByExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	mimeTypes := map[string]string{
		".jpeg": "image/jpeg",
		".jpg":  "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
		".bmp":  "image/bmp",
		".tiff": "image/tiff",
		".svg":  "image/svg+xml",
		".heic": "image/heic",
		".heif": "image/heif",
		".avif": "image/avif",
	}
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// 安全过滤函数
func SanitizeInput(input string) string {
	// 先解码 HTML 实体，再移除标签
	decoded := html.UnescapeString(input)
	cleaned := htmlTagRegex.ReplaceAllString(decoded, "")

	// 移除 JavaScript 事件处理器
	for _, handler := range eventHandlers {
		pattern := fmt.Sprintf(`(?i)%s\s*=\s*["'][^"']*["']`, handler)
		cleaned = regexp.MustCompile(pattern).ReplaceAllString(cleaned, "")
	}

	// 移除危险协议
	for _, protocol := range dangerousProtocols {
		cleaned = strings.ReplaceAll(strings.ToLower(cleaned), protocol, "")
	}

	return strings.TrimSpace(html.EscapeString(cleaned))
}
