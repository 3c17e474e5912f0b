package media

import (
	"Guides-Server/module/assets"
	"Guides-Server/utils"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// 依赖注入：默认使用真实实现
var mediaService Service = NewService(NewMediaRepository())
var openAssetsService *assets.Service

// SetOpenAssetsService 设置OpenAssets服务实例
func SetOpenAssetsService(service *assets.Service) {
	openAssetsService = service
}

// ===== 项目图片处理器 =====

// UploadProjectImageHandler 上传项目图片
func UploadProjectImageHandler(c *gin.Context) {
	projectID := c.Param("projectId")
	username := c.MustGet("username").(string)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "未上传文件或文件格式错误")
		return
	}

	if fileHeader.Size > 50*1024*1024 { // 50MB
		utils.SendError(c, http.StatusBadRequest, "图片文件大小不能超过50MB")
		return
	}

	contentType := utils.GetContentTypeByExtension(fileHeader.Filename)
	if !openAssetsService.Config().AllowedTypes[contentType] {
		utils.SendError(c, http.StatusBadRequest, "不支持的文件类型")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "无法打开上传的文件")
		return
	}
	defer file.Close()

	result, err := mediaService.UploadProjectImage(projectID, username, fileHeader.Filename, contentType, fileHeader.Size, file, openAssetsService)
	if err != nil {
		log.Printf("上传项目图片失败: %v", err)
		if strings.Contains(err.Error(), "无权") {
			utils.SendError(c, http.StatusForbidden, err.Error())
		} else {
			utils.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        result.ID,
		"imageName": result.ImageName,
		"url":       result.ImageURL,
		"size":      result.ImageSize,
		"type":      result.ContentType,
		"order":     result.Order,
	})
}

// BatchUploadProjectImagesHandler 批量上传项目图片
func BatchUploadProjectImagesHandler(c *gin.Context) {
	projectID := c.Param("projectId")
	username := c.MustGet("username").(string)

	form, err := c.MultipartForm()
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "获取上传表单失败")
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		utils.SendError(c, http.StatusBadRequest, "未上传任何图片文件")
		return
	}
	if len(files) > 20 {
		utils.SendError(c, http.StatusBadRequest, "一次最多只能上传20个图片文件")
		return
	}

	// 准备文件信息
	var fileInfos []FileUploadInfo
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			continue
		}
		fileInfos = append(fileInfos, FileUploadInfo{
			Filename: header.Filename,
			Size:     header.Size,
			Reader:   file,
		})
	}

	results, totalSize, successCount, err := mediaService.BatchUploadProjectImages(projectID, username, fileInfos, openAssetsService)
	if err != nil {
		log.Printf("批量上传项目图片失败: %v", err)
		if strings.Contains(err.Error(), "无权") {
			utils.SendError(c, http.StatusForbidden, err.Error())
		} else {
			utils.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	// 关闭所有文件
	for _, info := range fileInfos {
		if closer, ok := info.Reader.(interface{ Close() error }); ok {
			closer.Close()
		}
	}

	// 转换结果格式
	var responseResults []gin.H
	for _, result := range results {
		responseResults = append(responseResults, gin.H{
			"fileName":    result.FileName,
			"success":     result.Success,
			"error":       result.Error,
			"imageName":   result.ImageName,
			"url":         result.ImageURL,
			"imageSize":   result.ImageSize,
			"contentType": result.ContentType,
			"recordId":    result.RecordID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": responseResults, "totalSize": totalSize, "successCount": successCount})
}

// DeleteProjectImageHandler 删除项目图片
func DeleteProjectImageHandler(c *gin.Context) {
	projectID := c.Param("projectId")
	imageID := c.Param("imageId")
	username := c.MustGet("username").(string)

	imageName, err := mediaService.DeleteProjectImage(projectID, imageID, username, openAssetsService)
	if err != nil {
		log.Printf("删除项目图片失败: %v", err)
		if strings.Contains(err.Error(), "不存在") || strings.Contains(err.Error(), "无权限") {
			log.Printf("拒绝连接: %v", err)
			c.AbortWithStatus(http.StatusNotFound)
		} else {
			utils.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "图片删除成功",
		"imageName": imageName,
	})
}

// GetProjectImagesHandler 获取项目图片列表
func GetProjectImagesHandler(c *gin.Context) {
	projectID := c.Param("projectId")
	username := c.MustGet("username").(string)

	images, err := mediaService.GetProjectImages(projectID, username)
	if err != nil {
		log.Printf("获取项目图片列表失败: %v", err)
		if strings.Contains(err.Error(), "无权") {
			utils.SendError(c, http.StatusForbidden, err.Error())
		} else {
			utils.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"images": images, "count": len(images)})
}

// ReorderProjectImagesHandler 调整项目图片顺序
func ReorderProjectImagesHandler(c *gin.Context) {
	projectID := c.Param("projectId")
	username := c.MustGet("username").(string)

	var request struct {
		ImageIDs []int64 `json:"imageIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendError(c, http.StatusBadRequest, "无效的请求数据")
		return
	}
	if len(request.ImageIDs) == 0 {
		utils.SendError(c, http.StatusBadRequest, "未指定图片顺序")
		return
	}

	if err := mediaService.ReorderProjectImages(projectID, username, request.ImageIDs); err != nil {
		log.Printf("调整图片顺序失败: %v", err)
		if strings.Contains(err.Error(), "无权") || strings.Contains(err.Error(), "不属于") {
			utils.SendError(c, http.StatusForbidden, err.Error())
		} else {
			utils.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "图片顺序更新成功"})
}

// ===== 用户图像库处理器 =====

// DeleteImageHandler 删除用户图像
func DeleteImageHandler(c *gin.Context) {
	imageID := c.Param("imageId")
	username := c.MustGet("username").(string)

	imageName, err := mediaService.DeleteImage(imageID, username, openAssetsService)
	if err != nil {
		log.Printf("删除图像失败: %v", err)
		if strings.Contains(err.Error(), "不存在") || strings.Contains(err.Error(), "无权限") {
			log.Printf("拒绝连接: %v", err)
			c.AbortWithStatus(http.StatusNotFound)
		} else {
			utils.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "图像删除成功",
		"imageName": imageName,
	})
}

// GetImagesHandler 获取用户图像列表
func GetImagesHandler(c *gin.Context) {
	username := c.MustGet("username").(string)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	images, total, totalPages, err := mediaService.GetImages(username, page, pageSize)
	if err != nil {
		log.Printf("获取图像列表失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"images":     images,
		"total":      total,
		"page":       page,
		"pageSize":   pageSize,
		"totalPages": totalPages,
	})
}

// GetImageHandler 获取单个图像信息
func GetImageHandler(c *gin.Context) {
	imageID := c.Param("imageId")
	username := c.MustGet("username").(string)

	image, err := mediaService.GetImage(imageID, username)
	if err != nil {
		log.Printf("获取图像信息失败: %v", err)
		if strings.Contains(err.Error(), "不存在") || strings.Contains(err.Error(), "无权限") {
			log.Printf("拒绝连接: %v", err)
			c.AbortWithStatus(http.StatusNotFound)
		} else {
			utils.SendError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, image)
}

// GetUserImageStorageHandler 获取用户图像存储信息
func GetUserImageStorageHandler(c *gin.Context) {
	username := c.MustGet("username").(string)

	storage, err := mediaService.GetUserImageStorage(username)
	if err != nil {
		log.Printf("获取存储信息失败: %v", err)
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":      storage.Username,
		"usedSize":      storage.UsedSize,
		"imageCount":    storage.ImageCount,
		"maxSize":       storage.MaxSize,
		"remainingSize": storage.RemainingSize,
		"usagePercent":  storage.UsagePercent,
	})
}

// ===== 头像处理器 =====

// UploadAvatarHandler 上传用户头像
func UploadAvatarHandler(c *gin.Context) {
	username := c.MustGet("username").(string)
	file, err := c.FormFile("avatar")
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "未上传头像文件")
		return
	}

	openedFile, err := file.Open()
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "无法打开上传的文件")
		return
	}
	defer openedFile.Close()

	avatarURL, err := mediaService.UploadAvatar(username, openedFile, file.Filename, file.Size, openAssetsService)
	if err != nil {
		log.Printf("上传头像失败: %v", err)
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "avatarUrl": avatarURL})
}
