package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"coloring-page-service/internal/model"
	"coloring-page-service/internal/pagesapi"
)

const maxArchiveBytes = 50 * 1024 * 1024

// PageArchiver 把已完成的涂色页原图下载到归档存储并生成缩略图
type PageArchiver struct {
	Storage Storage
	HTTP    *http.Client
}

func NewPageArchiver(store Storage) *PageArchiver {
	return &PageArchiver{
		Storage: store,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Archive 下载 imageUrl 并写入存储。只处理终态为 completed 的页面。
func (a *PageArchiver) Archive(ctx context.Context, page pagesapi.Page) (*model.ArchiveResult, error) {
	if page.ImageURL == "" {
		return nil, fmt.Errorf("页面 %s 没有可归档的图片地址", page.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.ImageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载原图失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("下载原图失败: http status %d", resp.StatusCode)
	}

	name := page.ID + imageExt(page.ImageURL)
	reader := io.LimitReader(resp.Body, maxArchiveBytes)
	saved, err := a.Storage.SaveWithThumbnail(name, reader)
	if err != nil {
		return nil, err
	}

	return &model.ArchiveResult{
		LocalPath:      saved.LocalPath,
		ThumbnailPath:  saved.ThumbLocalPath,
		RemoteURL:      saved.RemoteURL,
		ThumbRemoteURL: saved.ThumbRemoteURL,
		Width:          saved.Width,
		Height:         saved.Height,
	}, nil
}

// imageExt 从图片地址推断扩展名，取不到默认 .png。
// 先解析 URL 再取扩展名，避免把查询串误并进扩展名
func imageExt(source string) string {
	var ext string
	if parsed, err := url.Parse(source); err == nil {
		ext = filepath.Ext(parsed.Path)
	}
	if ext == "" {
		ext = filepath.Ext(source)
	}
	if ext == "" || len(ext) > 5 {
		ext = ".png"
	}
	return ext
}
