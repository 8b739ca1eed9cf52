package api

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coloring-page-service/internal/model"

	"github.com/gin-gonic/gin"
)

const maxExportRemoteSize = 50 * 1024 * 1024

type exportPagesRequest struct {
	PageIDs    []string `json:"pageIds"`
	PageIDsAlt []string `json:"page_ids"`
}

// ExportPagesHandler 将选中的涂色页打包为 zip 导出。
// 本地归档文件优先，缺失时回退拉取远端图片地址。
func ExportPagesHandler(c *gin.Context) {
	var req exportPagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, 400, "参数解析失败")
		return
	}

	ids := req.PageIDs
	if len(ids) == 0 {
		ids = req.PageIDsAlt
	}
	if len(ids) == 0 {
		Error(c, http.StatusBadRequest, 400, "pageIds 不能为空")
		return
	}

	var records []model.Page
	if err := model.DB.Where("page_id IN ?", ids).Find(&records).Error; err != nil {
		Error(c, http.StatusInternalServerError, 500, "查询页面失败")
		return
	}
	if len(records) == 0 {
		Error(c, http.StatusNotFound, 404, "未找到可导出的页面")
		return
	}

	recordMap := make(map[string]model.Page, len(records))
	for _, record := range records {
		recordMap[record.PageID] = record
	}

	type fileEntry struct {
		name string
		path string
	}
	var files []fileEntry
	var missing []string

	for _, id := range ids {
		record, ok := recordMap[id]
		if !ok {
			missing = append(missing, fmt.Sprintf("%s: not found", id))
			continue
		}

		localPath := strings.TrimSpace(record.LocalPath)
		if localPath != "" {
			if _, err := os.Stat(localPath); err == nil {
				ext := filepath.Ext(localPath)
				if ext == "" {
					ext = ".png"
				}
				files = append(files, fileEntry{name: id + ext, path: localPath})
				continue
			} else {
				missing = append(missing, fmt.Sprintf("%s: %v", id, err))
			}
		}

		remoteURL := strings.TrimSpace(record.ImageURL)
		if remoteURL == "" {
			remoteURL = strings.TrimSpace(record.ThumbnailURL)
		}
		if remoteURL != "" {
			// 先解析再取扩展名，避免把查询串并进文件名
			var ext string
			if parsed, err := url.Parse(remoteURL); err == nil {
				ext = filepath.Ext(parsed.Path)
			}
			if ext == "" {
				ext = filepath.Ext(remoteURL)
			}
			if ext == "" || len(ext) > 5 {
				ext = ".png"
			}
			files = append(files, fileEntry{name: id + ext, path: remoteURL})
			continue
		}
		missing = append(missing, fmt.Sprintf("%s: no available file", id))
	}

	if len(files) == 0 {
		Error(c, http.StatusNotFound, 404, "没有可导出的页面")
		return
	}

	fileName := fmt.Sprintf("coloring-pages-%d.zip", time.Now().Unix())
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	if len(missing) > 0 {
		c.Header("X-Export-Partial", "true")
	}
	c.Status(http.StatusOK)

	zipWriter := zip.NewWriter(c.Writer)
	defer zipWriter.Close()

	for _, entry := range files {
		if strings.HasPrefix(entry.path, "http://") || strings.HasPrefix(entry.path, "https://") {
			writer, err := zipWriter.Create(entry.name)
			if err != nil {
				missing = append(missing, fmt.Sprintf("%s: %v", entry.name, err))
				continue
			}
			if err := writeRemoteFile(writer, entry.path); err != nil {
				missing = append(missing, fmt.Sprintf("%s: %v", entry.name, err))
			}
			continue
		}

		file, err := os.Open(entry.path)
		if err != nil {
			missing = append(missing, fmt.Sprintf("%s: %v", entry.name, err))
			continue
		}

		writer, err := zipWriter.Create(entry.name)
		if err != nil {
			file.Close()
			missing = append(missing, fmt.Sprintf("%s: %v", entry.name, err))
			continue
		}
		if _, err := io.Copy(writer, file); err != nil {
			missing = append(missing, fmt.Sprintf("%s: %v", entry.name, err))
		}
		file.Close()
	}

	if len(missing) > 0 {
		if writer, err := zipWriter.Create("missing.txt"); err == nil {
			_, _ = writer.Write([]byte(strings.Join(missing, "\n")))
		}
	}
}

func writeRemoteFile(writer io.Writer, source string) error {
	resp, err := http.Get(source)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}

	reader := io.LimitReader(resp.Body, maxExportRemoteSize+1)
	written, err := io.Copy(writer, reader)
	if err != nil {
		return err
	}
	if written > maxExportRemoteSize {
		return fmt.Errorf("remote file exceeds %d bytes", maxExportRemoteSize)
	}
	return nil
}
