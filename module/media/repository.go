package media

import (
	"Guides-Server/config"
	"Guides-Server/model"
	"fmt"
	"time"
)

type Repository interface {
	// 项目图片相关
	CheckProjectOwnership(projectID, username string) (bool, error)
	SaveProjectImage(projectID, username, imageName, imageURL string, imageSize int64, contentType string, order int) (int64, error)
	GetProjectImageName(imageID, projectID, username string) (string, error)
	DeleteProjectImage(imageID, projectID string) error
	ListProjectImages(projectID string) ([]model.ProjectImage, error)
	DeleteProjectImageByID(id int64) error
	MaxImageOrder(projectID string) (int, error)
	UpdateImageOrder(imageID int64, projectID string, order int) error
	CountProjectImages(projectID string, imageIDs []int64) (int, error)

	// 用户图像库相关
	SaveImageRecord(username, imageName, imageURL string, imageSize int64, contentType string) (int64, error)
	GetImageInfo(imageID, username string) (string, error)
	DeleteImageRecord(imageID, username string) error
	CountImages(username string) (int, error)
	ListImages(username string, offset, limit int) ([]model.ImageInfo, error)
	GetImageDetail(imageID, username string) (*model.ImageInfo, error)
	GetUserImageStorage(username string) (int64, int64, error)
	BatchGetImageNames(imageIDs []int64, username string) (map[int64]string, error)

	// 头像相关
	UpdateAvatar(username, avatarURL string) error
}

type mediaRepository struct{}

func NewMediaRepository() Repository {
	return &mediaRepository{}
}

// ===== 项目图片相关 =====

func (r *mediaRepository) CheckProjectOwnership(projectID, username string) (bool, error) {
	var count int
	err := config.DB.QueryRow(
		"SELECT COUNT(*) FROM projects WHERE id = ? AND create_by = ?",
		projectID, username).Scan(&count)
	return count > 0, err
}

func (r *mediaRepository) SaveProjectImage(projectID, username, imageName, imageURL string, imageSize int64, contentType string, order int) (int64, error) {
	now := time.Now().Format("2006-01-02 15:04:05")
	result, err := config.DB.Exec(`
		INSERT INTO project_images (project_id, username, image_name, image_url, image_size, content_type, image_order, upload_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, username, imageName, imageURL, imageSize, contentType, order, now)
	if err != nil {
		return 0, fmt.Errorf("插入图片记录失败: %w", err)
	}
	return result.LastInsertId()
}

func (r *mediaRepository) GetProjectImageName(imageID, projectID, username string) (string, error) {
	var imageName string
	err := config.DB.QueryRow(`
		SELECT pi.image_name FROM project_images pi
		JOIN projects p ON pi.project_id = p.id
		WHERE pi.id = ? AND pi.project_id = ? AND p.create_by = ?`,
		imageID, projectID, username).Scan(&imageName)
	return imageName, err
}

func (r *mediaRepository) DeleteProjectImage(imageID, projectID string) error {
	_, err := config.DB.Exec("DELETE FROM project_images WHERE id = ? AND project_id = ?", imageID, projectID)
	return err
}

func (r *mediaRepository) ListProjectImages(projectID string) ([]model.ProjectImage, error) {
	rows, err := config.DB.Query(`
		SELECT id, project_id, image_name, image_url, image_order, upload_time
		FROM project_images
		WHERE project_id = ?
		ORDER BY image_order ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []model.ProjectImage
	for rows.Next() {
		var img model.ProjectImage
		if err := rows.Scan(&img.ID, &img.ProjectID, &img.ImageName, &img.ImageURL, &img.Order, &img.UploadTime); err != nil {
			continue
		}
		images = append(images, img)
	}
	return images, nil
}

func (r *mediaRepository) DeleteProjectImageByID(id int64) error {
	_, err := config.DB.Exec("DELETE FROM project_images WHERE id = ?", id)
	return err
}

func (r *mediaRepository) MaxImageOrder(projectID string) (int, error) {
	var maxOrder int
	err := config.DB.QueryRow(
		"SELECT COALESCE(MAX(image_order), 0) FROM project_images WHERE project_id = ?",
		projectID).Scan(&maxOrder)
	return maxOrder, err
}

func (r *mediaRepository) UpdateImageOrder(imageID int64, projectID string, order int) error {
	_, err := config.DB.Exec(
		"UPDATE project_images SET image_order = ? WHERE id = ? AND project_id = ?",
		order, imageID, projectID)
	return err
}

func (r *mediaRepository) CountProjectImages(projectID string, imageIDs []int64) (int, error) {
	if len(imageIDs) == 0 {
		return 0, nil
	}

	placeholders := ""
	args := make([]interface{}, 0, len(imageIDs)+1)
	for i, id := range imageIDs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}
	args = append(args, projectID)

	query := fmt.Sprintf("SELECT COUNT(*) FROM project_images WHERE id IN (%s) AND project_id = ?", placeholders)
	var count int
	err := config.DB.QueryRow(query, args...).Scan(&count)
	return count, err
}

// ===== 用户图像库相关 =====

func (r *mediaRepository) SaveImageRecord(username, imageName, imageURL string, imageSize int64, contentType string) (int64, error) {
	now := time.Now().Format("2006-01-02 15:04:05")
	result, err := config.DB.Exec(`
		INSERT INTO user_images (owner, image_name, image_url, image_size, content_type, upload_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		username, imageName, imageURL, imageSize, contentType, now)
	if err != nil {
		return 0, fmt.Errorf("插入图像记录失败: %w", err)
	}
	return result.LastInsertId()
}

func (r *mediaRepository) GetImageInfo(imageID, username string) (string, error) {
	var imageName string
	err := config.DB.QueryRow(`
		SELECT image_name FROM user_images
		WHERE id = ? AND owner = ?`,
		imageID, username).Scan(&imageName)
	return imageName, err
}

func (r *mediaRepository) DeleteImageRecord(imageID, username string) error {
	_, err := config.DB.Exec("DELETE FROM user_images WHERE id = ? AND owner = ?", imageID, username)
	return err
}

func (r *mediaRepository) CountImages(username string) (int, error) {
	var total int
	err := config.DB.QueryRow("SELECT COUNT(*) FROM user_images WHERE owner = ?", username).Scan(&total)
	return total, err
}

func (r *mediaRepository) ListImages(username string, offset, limit int) ([]model.ImageInfo, error) {
	rows, err := config.DB.Query(`
		SELECT id, image_name, image_url, image_size, content_type, upload_time
		FROM user_images
		WHERE owner = ?
		ORDER BY upload_time DESC
		LIMIT ? OFFSET ?`, username, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []model.ImageInfo
	for rows.Next() {
		var img model.ImageInfo
		if err := rows.Scan(&img.ID, &img.ImageName, &img.ImageURL, &img.ImageSize, &img.ContentType, &img.UploadTime); err != nil {
			continue
		}
		img.Owner = username
		images = append(images, img)
	}
	return images, nil
}

func (r *mediaRepository) GetImageDetail(imageID, username string) (*model.ImageInfo, error) {
	var image model.ImageInfo
	err := config.DB.QueryRow(`
		SELECT id, image_name, image_url, image_size, content_type, upload_time
		FROM user_images WHERE id = ? AND owner = ?`,
		imageID, username).Scan(&image.ID, &image.ImageName, &image.ImageURL, &image.ImageSize, &image.ContentType, &image.UploadTime)
	if err != nil {
		return nil, err
	}
	image.Owner = username
	return &image, nil
}

func (r *mediaRepository) GetUserImageStorage(username string) (int64, int64, error) {
	var totalSize, totalCount int64
	err := config.DB.QueryRow(`SELECT COALESCE(SUM(image_size), 0), COUNT(*) FROM user_images WHERE owner = ?`, username).Scan(&totalSize, &totalCount)
	return totalSize, totalCount, err
}

func (r *mediaRepository) BatchGetImageNames(imageIDs []int64, username string) (map[int64]string, error) {
	if len(imageIDs) == 0 {
		return make(map[int64]string), nil
	}

	placeholders := ""
	args := make([]interface{}, 0, len(imageIDs)+1)
	for i, id := range imageIDs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}
	args = append(args, username)

	query := fmt.Sprintf("SELECT id, image_name FROM user_images WHERE id IN (%s) AND owner = ?", placeholders)
	rows, err := config.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			continue
		}
		result[id] = name
	}
	return result, nil
}

// ===== 头像相关 =====

func (r *mediaRepository) UpdateAvatar(username, avatarURL string) error {
	_, err := config.DB.Exec("UPDATE users SET avatar_url = ? WHERE username = ?", avatarURL, username)
	return err
}
