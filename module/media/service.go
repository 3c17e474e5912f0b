package media

import (
	"Guides-Server/model"
	"Guides-Server/module/assets"
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

type Service interface {
	// 项目图片相关
	UploadProjectImage(projectID, username, originalFilename, contentType string, fileSize int64, file io.Reader, openAssetsService *assets.Service) (*ImageUploadResult, error)
	BatchUploadProjectImages(projectID, username string, files []FileUploadInfo, openAssetsService *assets.Service) ([]BatchUploadResult, int64, int, error)
	DeleteProjectImage(projectID, imageID, username string, openAssetsService *assets.Service) (string, error)
	GetProjectImages(projectID, username string) ([]model.ProjectImage, error)
	ReorderProjectImages(projectID, username string, imageIDs []int64) error

	// 用户图像库相关
	DeleteImage(imageID, username string, openAssetsService *assets.Service) (string, error)
	GetImages(username string, page, pageSize int) ([]model.ImageInfo, int, int, error)
	GetImage(imageID, username string) (*model.ImageInfo, error)
	GetUserImageStorage(username string) (*StorageInfo, error)

	// 头像相关
	UploadAvatar(username string, file io.Reader, filename string, fileSize int64, openAssetsService *assets.Service) (string, error)
}

// 判断是否图片扩展名
func isImageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// 简单判断是否有透明通道（基于格式字符串）
func hasAlpha(format string) bool {
	f := strings.ToLower(format)
	return f == "png" || f == "gif" || f == "webp"
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// ===== 数据结构 =====

type ImageUploadResult struct {
	ID          int64
	ImageName   string
	ImageURL    string
	ImageSize   int64
	ContentType string
	Order       int
}

type StorageInfo struct {
	Username      string
	UsedSize      int64
	ImageCount    int64
	MaxSize       int64
	RemainingSize int64
	UsagePercent  float64
}

type FileUploadInfo struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

type BatchUploadResult struct {
	FileName    string
	Success     bool
	Error       string
	ImageName   string
	ImageURL    string
	ImageSize   int64
	ContentType string
	RecordID    int64
}

// compressImage 上传前统一压缩：最大边1920，透明图保持PNG，其余导出JPEG 85。
// 若压缩结果不更小则保留原始字节。
func compressImage(rawBytes []byte, fileExt, contentType string) ([]byte, string, string) {
	imgObj, format, err := image.Decode(bytes.NewReader(rawBytes))
	if err != nil {
		log.Printf("图片解码失败，使用原始文件: %v", err)
		return rawBytes, fileExt, contentType
	}

	maxSide := 1920
	w := imgObj.Bounds().Dx()
	h := imgObj.Bounds().Dy()
	if w > maxSide || h > maxSide {
		if w >= h {
			imgObj = imaging.Resize(imgObj, maxSide, 0, imaging.Lanczos)
		} else {
			imgObj = imaging.Resize(imgObj, 0, maxSide, imaging.Lanczos)
		}
	}

	if hasAlpha(format) {
		buf := &bytes.Buffer{}
		if err := png.Encode(buf, imgObj); err != nil {
			log.Printf("PNG编码失败，使用原始文件: %v", err)
			return rawBytes, fileExt, contentType
		}
		candidate := buf.Bytes()
		if len(candidate) < len(rawBytes) {
			log.Printf("[Media] 图片处理(透明PNG): 原始=%dB -> 输出(PNG)= %dB, 应用压缩", len(rawBytes), len(candidate))
			return candidate, ".png", "image/png"
		}
		log.Printf("[Media] 图片处理(透明PNG): 缩放后不更小 原始=%dB, 候选=%dB, 保留原始", len(rawBytes), len(candidate))
		return rawBytes, fileExt, contentType
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, imgObj, &jpeg.Options{Quality: 85}); err != nil {
		log.Printf("JPEG编码失败，使用原始文件: %v", err)
		return rawBytes, fileExt, contentType
	}
	candidate := buf.Bytes()
	if len(candidate) < len(rawBytes) {
		log.Printf("[Media] 图片处理(JPEG): 原始=%dB -> 输出(JPEG)= %dB, 应用压缩", len(rawBytes), len(candidate))
		return candidate, ".jpg", "image/jpeg"
	}
	log.Printf("[Media] 图片处理(JPEG): 压缩后更大 原始=%dB, 候选=%dB, 保留原始", len(rawBytes), len(candidate))
	return rawBytes, fileExt, contentType
}

// ===== 项目图片相关 =====

func (s *service) UploadProjectImage(projectID, username, originalFilename, contentType string, fileSize int64, file io.Reader, openAssetsService *assets.Service) (*ImageUploadResult, error) {
	// 检查权限
	owned, err := s.repo.CheckProjectOwnership(projectID, username)
	if err != nil || !owned {
		return nil, errors.New("无权上传图片到此项目")
	}

	// 读取上传内容到内存以便压缩处理
	rawBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取上传内容失败: %w", err)
	}

	// 推断扩展名（以原始文件名为主）
	fileExt := strings.ToLower(filepath.Ext(originalFilename))
	if fileExt == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			fileExt = exts[0]
		}
	}
	if !isImageExt(fileExt) {
		return nil, fmt.Errorf("不支持的图片格式: %s", fileExt)
	}

	log.Printf("[Media] 接收上传: name=%s ext=%s type=%s size=%d", originalFilename, fileExt, contentType, len(rawBytes))

	processed, outExt, outContentType := compressImage(rawBytes, fileExt, contentType)

	// 生成输出文件名（基于处理后的扩展名）
	imageName := fmt.Sprintf("%s%s", generateUUID(), outExt)

	// 上传到存储服务（使用处理后字节）
	metadata, err := openAssetsService.UploadFile("project-images", imageName, originalFilename, outContentType, username, int64(len(processed)), bytes.NewReader(processed))
	if err != nil {
		return nil, fmt.Errorf("图片上传到存储服务失败: %w", err)
	}

	// 排序号追加在末尾
	maxOrder, err := s.repo.MaxImageOrder(projectID)
	if err != nil {
		maxOrder = 0
	}
	order := maxOrder + 1

	// 保存图片记录
	recordID, err := s.repo.SaveProjectImage(projectID, username, metadata.FileName, metadata.URL, metadata.FileSize, metadata.ContentType, order)
	if err != nil {
		// 回滚：删除已上传的文件
		_ = openAssetsService.DeleteFile(metadata.Bucket, metadata.FileName, username)
		return nil, fmt.Errorf("保存图片记录失败: %w", err)
	}

	return &ImageUploadResult{
		ID:          recordID,
		ImageName:   metadata.FileName,
		ImageURL:    metadata.URL,
		ImageSize:   metadata.FileSize,
		ContentType: metadata.ContentType,
		Order:       order,
	}, nil
}

func (s *service) BatchUploadProjectImages(projectID, username string, files []FileUploadInfo, openAssetsService *assets.Service) ([]BatchUploadResult, int64, int, error) {
	// 权限只查一次
	owned, err := s.repo.CheckProjectOwnership(projectID, username)
	if err != nil || !owned {
		return nil, 0, 0, errors.New("无权上传图片到此项目")
	}

	var results []BatchUploadResult
	var totalSize int64
	var successCount int

	for _, fileInfo := range files {
		result := s.uploadSingleProjectImage(projectID, username, fileInfo, openAssetsService)
		results = append(results, result)

		if result.Success {
			totalSize += result.ImageSize
			successCount++
		}
	}

	return results, totalSize, successCount, nil
}

func (s *service) uploadSingleProjectImage(projectID, username string, fileInfo FileUploadInfo, openAssetsService *assets.Service) BatchUploadResult {
	if fileInfo.Size > 50*1024*1024 {
		return BatchUploadResult{
			FileName: fileInfo.Filename,
			Success:  false,
			Error:    "图片文件大小不能超过50MB",
		}
	}

	contentType := getContentTypeByExtension(fileInfo.Filename)
	if !openAssetsService.Config().AllowedTypes[contentType] {
		return BatchUploadResult{
			FileName: fileInfo.Filename,
			Success:  false,
			Error:    "不支持的图片文件类型: " + contentType,
		}
	}

	rawBytes, err := io.ReadAll(fileInfo.Reader)
	if err != nil {
		return BatchUploadResult{
			FileName: fileInfo.Filename,
			Success:  false,
			Error:    "读取上传内容失败",
		}
	}

	fileExt := strings.ToLower(filepath.Ext(fileInfo.Filename))
	processed, outExt, outContentType := compressImage(rawBytes, fileExt, contentType)

	imageName := fmt.Sprintf("%s%s", generateUUID(), outExt)

	metadata, err := openAssetsService.UploadFile("project-images", imageName, fileInfo.Filename, outContentType, username, int64(len(processed)), bytes.NewReader(processed))
	if err != nil {
		return BatchUploadResult{
			FileName: fileInfo.Filename,
			Success:  false,
			Error:    "上传到存储服务失败: " + err.Error(),
		}
	}

	maxOrder, err := s.repo.MaxImageOrder(projectID)
	if err != nil {
		maxOrder = 0
	}

	recordID, err := s.repo.SaveProjectImage(projectID, username, imageName, metadata.URL, metadata.FileSize, outContentType, maxOrder+1)
	if err != nil {
		_ = openAssetsService.DeleteFile("project-images", imageName, username)
		return BatchUploadResult{
			FileName: fileInfo.Filename,
			Success:  false,
			Error:    "保存图片记录失败",
		}
	}

	return BatchUploadResult{
		FileName:    fileInfo.Filename,
		Success:     true,
		ImageName:   imageName,
		ImageURL:    metadata.URL,
		ImageSize:   metadata.FileSize,
		ContentType: outContentType,
		RecordID:    recordID,
	}
}

func (s *service) DeleteProjectImage(projectID, imageID, username string, openAssetsService *assets.Service) (string, error) {
	// 查询图片信息
	imageName, err := s.repo.GetProjectImageName(imageID, projectID, username)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", errors.New("图片不存在或无权限删除")
		}
		return "", fmt.Errorf("查询图片信息失败: %w", err)
	}

	// 从存储服务删除
	err = openAssetsService.DeleteFile("project-images", imageName, username)
	if err != nil {
		log.Printf("从OpenAssets删除图片失败 (可能文件已不存在): %v", err)
	}

	// 删除数据库记录
	err = s.repo.DeleteProjectImage(imageID, projectID)
	if err != nil {
		return "", fmt.Errorf("删除图片记录失败: %w", err)
	}

	return imageName, nil
}

func (s *service) GetProjectImages(projectID, username string) ([]model.ProjectImage, error) {
	// 检查权限
	owned, err := s.repo.CheckProjectOwnership(projectID, username)
	if err != nil || !owned {
		return nil, errors.New("无权访问此项目的图片")
	}

	images, err := s.repo.ListProjectImages(projectID)
	if err != nil {
		return nil, fmt.Errorf("获取图片列表失败: %w", err)
	}

	// 过滤不存在的文件
	var validImages []model.ProjectImage
	var deletedIDs []int64

	for _, img := range images {
		if !isMediaFileExists(img.ImageURL) {
			log.Printf("图片文件不存在，已标记删除: %s (ID: %d)", img.ImageURL, img.ID)
			deletedIDs = append(deletedIDs, img.ID)
			continue
		}
		validImages = append(validImages, img)
	}

	// 删除不存在的文件记录
	for _, id := range deletedIDs {
		if err := s.repo.DeleteProjectImageByID(id); err != nil {
			log.Printf("删除图片记录失败 (ID: %d): %v", id, err)
		}
	}

	return validImages, nil
}

func (s *service) ReorderProjectImages(projectID, username string, imageIDs []int64) error {
	owned, err := s.repo.CheckProjectOwnership(projectID, username)
	if err != nil {
		return fmt.Errorf("验证项目所有权失败: %w", err)
	}
	if !owned {
		return errors.New("无权调整此项目的图片顺序")
	}

	// 所有ID必须属于该项目
	count, err := s.repo.CountProjectImages(projectID, imageIDs)
	if err != nil {
		return fmt.Errorf("校验图片归属失败: %w", err)
	}
	if count != len(imageIDs) {
		return errors.New("部分图片不属于此项目")
	}

	for i, id := range imageIDs {
		if err := s.repo.UpdateImageOrder(id, projectID, i+1); err != nil {
			return fmt.Errorf("更新图片顺序失败: %w", err)
		}
	}
	return nil
}

// ===== 用户图像库相关 =====

func (s *service) DeleteImage(imageID, username string, openAssetsService *assets.Service) (string, error) {
	imageName, err := s.repo.GetImageInfo(imageID, username)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", errors.New("图像不存在或无权限删除")
		}
		return "", fmt.Errorf("查询图像信息失败: %w", err)
	}

	err = openAssetsService.DeleteFile("project-images", imageName, username)
	if err != nil {
		log.Printf("从OpenAssets删除图像失败: %v", err)
	}

	err = s.repo.DeleteImageRecord(imageID, username)
	if err != nil {
		return "", fmt.Errorf("删除图像记录失败: %w", err)
	}

	return imageName, nil
}

func (s *service) GetImages(username string, page, pageSize int) ([]model.ImageInfo, int, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	offset := (page - 1) * pageSize

	total, err := s.repo.CountImages(username)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("查询图像总数失败: %w", err)
	}

	images, err := s.repo.ListImages(username, offset, pageSize)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("查询图像列表失败: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	return images, total, totalPages, nil
}

func (s *service) GetImage(imageID, username string) (*model.ImageInfo, error) {
	image, err := s.repo.GetImageDetail(imageID, username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("图像不存在或无权限访问")
		}
		return nil, fmt.Errorf("查询图像信息失败: %w", err)
	}
	return image, nil
}

func (s *service) GetUserImageStorage(username string) (*StorageInfo, error) {
	totalSize, totalCount, err := s.repo.GetUserImageStorage(username)
	if err != nil {
		return nil, fmt.Errorf("查询存储信息失败: %w", err)
	}

	maxStorage := int64(1024 * 1024 * 1024) // 1GB
	remainingSize := maxStorage - totalSize
	if remainingSize < 0 {
		remainingSize = 0
	}
	usagePercent := float64(totalSize) / float64(maxStorage) * 100

	return &StorageInfo{
		Username:      username,
		UsedSize:      totalSize,
		ImageCount:    totalCount,
		MaxSize:       maxStorage,
		RemainingSize: remainingSize,
		UsagePercent:  usagePercent,
	}, nil
}

// ===== 头像相关 =====

func (s *service) UploadAvatar(username string, file io.Reader, filename string, fileSize int64, openAssetsService *assets.Service) (string, error) {
	if fileSize > 5*1024*1024 {
		return "", errors.New("头像文件大小不能超过5MB")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" && ext != ".webp" {
		return "", errors.New("仅支持JPG, PNG, WEBP格式的头像")
	}

	avatarName := fmt.Sprintf("%s%s", generateUUID(), ext)
	contentType := getContentTypeByExtension(filename)

	metadata, err := openAssetsService.UploadFile("avatars", avatarName, filename, contentType, username, fileSize, file)
	if err != nil {
		return "", fmt.Errorf("头像上传到存储服务失败: %w", err)
	}

	if err := s.repo.UpdateAvatar(username, metadata.URL); err != nil {
		_ = openAssetsService.DeleteFile("avatars", avatarName, username)
		return "", fmt.Errorf("更新头像URL失败: %w", err)
	}

	return metadata.URL, nil
}

// ===== 工具函数 =====

func isMediaFileExists(url string) bool {
	if url == "" {
		return false
	}

	// 从URL中提取文件路径
	if !strings.HasPrefix(url, "/openassets/files/") {
		return true // 不是本地文件，假定存在
	}

	relPath := strings.TrimPrefix(url, "/openassets/files/")
	fullPath := filepath.Join("assets_storage", relPath)

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return false
	}

	return true
}

func generateUUID() string {
	return uuid.NewString()
}

func getContentTypeByExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	contentTypes := map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
	}

	if contentType, ok := contentTypes[ext]; ok {
		return contentType
	}
	return "application/octet-stream"
}
