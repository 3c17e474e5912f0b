package utils

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// 验证URL是否安全
func IsSafeURL(urlStr string) bool {
	// 允许同源相对资源路径（无协议主机），例如服务端返回的资源相对URL
	if strings.HasPrefix(urlStr, "/openassets/files/") {
		// 严格路径校验，防止 ../ 与重复分隔符
		if strings.Contains(urlStr, "..") || strings.Contains(urlStr, "//") {
			return false
		}
		return true
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// 开发环境允许本地地址
	if os.Getenv("ENV") == "dev" {
		host := parsedURL.Hostname()
		if host == "127.0.0.1" || host == "localhost" || host == "0.0.0.0" || host == "::1" {
			return true
		}
	}

	// 检查协议
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}

	host := parsedURL.Hostname()
	if host == "" {
		return false
	}

	// IP 地址：拒绝链路本地、组播与未指定地址
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() {
			return true
		}
		if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return false
		}
		if ip.IsUnspecified() || ip.IsMulticast() {
			return false
		}
	}

	// 检查是否是本地主机名
	localhostNames := []string{"localhost", "127.0.0.1", "::1", "0.0.0.0", "[::]", "local"}
	for _, name := range localhostNames {
		if strings.EqualFold(host, name) {
			return false
		}
	}

	// 检查是否是内部域名
	internalDomains := []string{
		".local", ".internal", ".intranet", ".corp", ".home", ".lan",
		".localdomain", ".test", ".example", ".invalid", ".localhost",
		".private", ".workgroup", ".arpa",
	}
	for _, domain := range internalDomains {
		if strings.HasSuffix(strings.ToLower(host), domain) {
			return false
		}
	}

	// 检查端口：拒绝常用内部服务端口
	if parsedURL.Port() != "" {
		port, err := strconv.Atoi(parsedURL.Port())
		if err != nil || port < 1 || port > 65535 {
			return false
		}
		internalPorts := []int{
			20, 21, 22, 23, 25, 53, 110, 143, 3306, 3389, 5432, 5900, 6379,
		}
		for _, p := range internalPorts {
			if port == p {
				return false
			}
		}
	}

	// 检查路径与查询参数
	if strings.Contains(parsedURL.Path, "..") || strings.Contains(parsedURL.Path, "//") {
		return false
	}
	if strings.Contains(parsedURL.RawQuery, "..") || strings.Contains(parsedURL.RawQuery, "//") {
		return false
	}

	// 检查是否是云服务元数据URL
	metadataPaths := []string{
		"/latest/meta-data/", "/metadata/", "/computeMetadata/", "/instance/",
	}
	for _, path := range metadataPaths {
		if strings.HasPrefix(strings.ToLower(parsedURL.Path), path) {
			return false
		}
	}

	return true
}
