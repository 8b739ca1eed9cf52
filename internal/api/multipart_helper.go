package api

import (
	"fmt"
	"io"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/mazrean/formstream"
	ginform "github.com/mazrean/formstream/gin"
)

// PhotoRequest 照片模式请求解析后的数据
type PhotoRequest struct {
	Prompt      string
	Count       string
	Quality     string
	AspectRatio string
	FolderID    string
	Photo       []byte
}

// ParsePhotoRequestFromMultipart 使用 formstream 解析照片模式请求
func ParsePhotoRequestFromMultipart(c *gin.Context) (*PhotoRequest, error) {
	req := &PhotoRequest{}

	p, err := ginform.NewParser(c)
	if err != nil {
		return nil, fmt.Errorf("创建解析器失败: %w", err)
	}

	textField := func(dst *string) func(io.Reader, formstream.Header) error {
		return func(reader io.Reader, header formstream.Header) error {
			data, err := io.ReadAll(reader)
			if err != nil {
				return err
			}
			*dst = string(data)
			return nil
		}
	}

	p.Parser.Register("prompt", textField(&req.Prompt))
	p.Parser.Register("count", textField(&req.Count))
	p.Parser.Register("quality", textField(&req.Quality))
	p.Parser.Register("aspectRatio", textField(&req.AspectRatio))
	p.Parser.Register("folderId", textField(&req.FolderID))

	p.Parser.Register("photo", func(reader io.Reader, header formstream.Header) error {
		content, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("读取照片失败: %w", err)
		}
		req.Photo = content
		return nil
	})

	if err := p.Parse(); err != nil {
		// formstream 解析失败时回退到标准库
		log.Printf("[回退] formstream 解析失败: %v, 尝试使用标准库", err)
		return parsePhotoWithStandardLibrary(c)
	}

	return req, nil
}

// parsePhotoWithStandardLibrary 标准库回退解析逻辑
func parsePhotoWithStandardLibrary(c *gin.Context) (*PhotoRequest, error) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("解析表单失败: %w", err)
	}

	req := &PhotoRequest{
		Prompt:      c.PostForm("prompt"),
		Count:       c.PostForm("count"),
		Quality:     c.PostForm("quality"),
		AspectRatio: c.PostForm("aspectRatio"),
		FolderID:    c.PostForm("folderId"),
	}

	form, err := c.MultipartForm()
	if err == nil && form.File != nil {
		if files := form.File["photo"]; len(files) > 0 {
			file, err := files[0].Open()
			if err != nil {
				return nil, fmt.Errorf("打开照片失败: %w", err)
			}
			content, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, fmt.Errorf("读取照片失败: %w", err)
			}
			req.Photo = content
		}
	}

	return req, nil
}
