package model

import (
	"time"

	"gorm.io/gorm"

	"coloring-page-service/internal/pagesapi"
)

// Page 对应 pages 表，本地画廊缓存。权威数据在上游服务，
// 这里只保存只读投影和归档后的本地文件路径。
type Page struct {
	ID            uint           `gorm:"primaryKey" json:"-"`
	PageID        string         `gorm:"uniqueIndex;not null" json:"page_id"`             // 上游分配的页面 ID
	Title         string         `json:"title"`
	Prompt        string         `gorm:"index" json:"prompt"`                             // 提示词，支持搜索
	Mode          string         `gorm:"index" json:"mode"`                               // text / wordArt / frontCover / photo
	Quality       string         `json:"quality"`
	Dimensions    string         `json:"dimensions"`
	Status        string         `gorm:"index:idx_status_created;not null" json:"status"` // 含客户端本地终态 timed_out
	ErrorMessage  string         `json:"error_message"`
	ImageURL      string         `json:"image_url"`
	ThumbnailURL  string         `json:"thumbnail_url"`
	LocalPath     string         `json:"local_path"`      // 归档后的本地原图路径
	ThumbnailPath string         `json:"thumbnail_path"`  // 归档后的本地缩略图路径
	ArchiveURL    string         `json:"archive_url"`     // 归档镜像的 OSS 地址
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	FolderID      string         `gorm:"index" json:"folder_id"`
	IsFavorite    bool           `json:"is_favorite"`
	CreatedAt     time.Time      `gorm:"index:idx_status_created;index" json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// ArchiveResult 完成页归档产物
type ArchiveResult struct {
	LocalPath     string
	ThumbnailPath string
	RemoteURL     string
	ThumbRemoteURL string
	Width         int
	Height        int
}

// SavePages 将提交返回的页面落为本地记录（已存在则更新状态字段）
func SavePages(pages []pagesapi.Page) {
	if DB == nil {
		return
	}
	for _, p := range pages {
		record := fromUpstream(p)
		var existing Page
		if err := DB.Where("page_id = ?", p.ID).First(&existing).Error; err != nil {
			DB.Create(&record)
			continue
		}
		DB.Model(&existing).Updates(map[string]interface{}{
			"status":        record.Status,
			"image_url":     record.ImageURL,
			"thumbnail_url": record.ThumbnailURL,
			"error_message": record.ErrorMessage,
		})
	}
}

// ApplyOutcome 按页面 ID 写入轮询终态。已处于终态的记录不再改写。
func ApplyOutcome(pageID, state string, page pagesapi.Page, errorMessage string) {
	if DB == nil {
		return
	}
	updates := map[string]interface{}{
		"status":        state,
		"error_message": errorMessage,
	}
	if page.ID != "" {
		updates["image_url"] = page.ImageURL
		updates["thumbnail_url"] = page.ThumbnailURL
		updates["title"] = page.Title
	}
	if state == "completed" {
		now := time.Now()
		updates["completed_at"] = &now
	}
	DB.Model(&Page{}).
		Where("page_id = ? AND status NOT IN ?", pageID, []string{"completed", "failed", "timed_out"}).
		Updates(updates)
}

// SetArchive 记录归档产物路径
func SetArchive(pageID string, ar *ArchiveResult) {
	if DB == nil || ar == nil {
		return
	}
	DB.Model(&Page{}).Where("page_id = ?", pageID).Updates(map[string]interface{}{
		"local_path":     ar.LocalPath,
		"thumbnail_path": ar.ThumbnailPath,
		"archive_url":    ar.RemoteURL,
		"width":          ar.Width,
		"height":         ar.Height,
	})
}

// UpdateFromUpstream 对账：用上游最新状态覆盖本地记录（列表刷新用）
func UpdateFromUpstream(p pagesapi.Page) {
	if DB == nil {
		return
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":        p.Status,
		"image_url":     p.ImageURL,
		"thumbnail_url": p.ThumbnailURL,
		"error_message": p.ErrorMessage,
		"title":         p.Title,
	}
	if p.Status == "completed" {
		updates["completed_at"] = &now
	}
	DB.Model(&Page{}).Where("page_id = ?", p.ID).Updates(updates)
}

func fromUpstream(p pagesapi.Page) Page {
	status := p.Status
	if status == "" {
		status = pagesapi.StatusPending
	}
	folderID := ""
	if p.FolderID != nil {
		folderID = *p.FolderID
	}
	return Page{
		PageID:       p.ID,
		Title:        p.Title,
		Prompt:       p.Prompt,
		Mode:         p.Type,
		Quality:      p.Quality,
		Dimensions:   p.Dimensions,
		Status:       status,
		ErrorMessage: p.ErrorMessage,
		ImageURL:     p.ImageURL,
		ThumbnailURL: p.ThumbnailURL,
		FolderID:     folderID,
		IsFavorite:   p.IsFavorite,
	}
}
