package storage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/disintegration/imaging"
)

// SavedImage 一次归档写入的产物
type SavedImage struct {
	LocalPath      string
	RemoteURL      string
	ThumbLocalPath string
	ThumbRemoteURL string
	Width          int
	Height         int
}

// Storage 归档存储接口：保存完成页原图与缩略图
type Storage interface {
	Save(name string, reader io.Reader) (string, string, error) // 返回 (localPath, remoteURL, error)
	SaveWithThumbnail(name string, reader io.Reader) (*SavedImage, error)
	Delete(name string) error
}

// LocalStorage 本地存储实现
type LocalStorage struct {
	BaseDir string
}

func (l *LocalStorage) Save(name string, reader io.Reader) (string, string, error) {
	path := filepath.Join(l.BaseDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", "", fmt.Errorf("创建目录失败: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("创建本地文件失败: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return "", "", fmt.Errorf("写入本地文件失败: %w", err)
	}
	return path, "", nil
}

func (l *LocalStorage) SaveWithThumbnail(name string, reader io.Reader) (*SavedImage, error) {
	localPath, _, err := l.Save(name, reader)
	if err != nil {
		return nil, err
	}

	srcImg, err := imaging.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("打开原图生成缩略图失败: %w", err)
	}

	thumbPath := filepath.Join(l.BaseDir, "thumb_"+name)
	dstImg := imaging.Thumbnail(srcImg, 256, 256, imaging.Lanczos)
	if err := imaging.Save(dstImg, thumbPath); err != nil {
		return nil, fmt.Errorf("保存缩略图失败: %w", err)
	}

	return &SavedImage{
		LocalPath:      localPath,
		ThumbLocalPath: thumbPath,
		Width:          srcImg.Bounds().Dx(),
		Height:         srcImg.Bounds().Dy(),
	}, nil
}

func (l *LocalStorage) Delete(name string) error {
	err := os.Remove(filepath.Join(l.BaseDir, name))
	_ = os.Remove(filepath.Join(l.BaseDir, "thumb_"+name))
	return err
}

// OSSStorage 阿里云 OSS 镜像实现
type OSSStorage struct {
	Bucket *oss.Bucket
	Domain string
}

func (s *OSSStorage) Save(name string, reader io.Reader) (string, string, error) {
	if err := s.Bucket.PutObject(name, reader); err != nil {
		return "", "", fmt.Errorf("OSS 上传失败: %w", err)
	}
	return "", fmt.Sprintf("https://%s/%s", s.Domain, name), nil
}

func (s *OSSStorage) SaveWithThumbnail(name string, reader io.Reader) (*SavedImage, error) {
	// reader 只能读一次，先落内存
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	_, remoteURL, err := s.Save(name, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解码图片失败: %w", err)
	}

	dstImg := imaging.Thumbnail(img, 256, 256, imaging.Lanczos)
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, dstImg, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("编码缩略图失败: %w", err)
	}
	_, thumbRemoteURL, err := s.Save("thumb_"+name, buf)
	if err != nil {
		return nil, fmt.Errorf("上传缩略图到 OSS 失败: %w", err)
	}

	return &SavedImage{
		RemoteURL:      remoteURL,
		ThumbRemoteURL: thumbRemoteURL,
		Width:          img.Bounds().Dx(),
		Height:         img.Bounds().Dy(),
	}, nil
}

func (s *OSSStorage) Delete(name string) error {
	err := s.Bucket.DeleteObject(name)
	_ = s.Bucket.DeleteObject("thumb_" + name)
	return err
}

// CompositeStorage 本地为主、OSS 镜像为辅
type CompositeStorage struct {
	Local *LocalStorage
	OSS   *OSSStorage
}

func (c *CompositeStorage) Save(name string, reader io.Reader) (string, string, error) {
	return c.Local.Save(name, reader)
}

func (c *CompositeStorage) SaveWithThumbnail(name string, reader io.Reader) (*SavedImage, error) {
	saved, err := c.Local.SaveWithThumbnail(name, reader)
	if err != nil {
		return nil, err
	}

	if c.OSS != nil {
		if file, err := os.Open(saved.LocalPath); err == nil {
			_, saved.RemoteURL, _ = c.OSS.Save(name, file)
			file.Close()
		}
		if thumbFile, err := os.Open(saved.ThumbLocalPath); err == nil {
			_, saved.ThumbRemoteURL, _ = c.OSS.Save("thumb_"+name, thumbFile)
			thumbFile.Close()
		}
	}
	return saved, nil
}

func (c *CompositeStorage) Delete(name string) error {
	var errs []string
	if err := c.Local.Delete(name); err != nil {
		errs = append(errs, fmt.Sprintf("本地删除失败: %v", err))
	}
	if c.OSS != nil {
		if err := c.OSS.Delete(name); err != nil {
			errs = append(errs, fmt.Sprintf("OSS 删除失败: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("删除过程出错: %s", strings.Join(errs, "; "))
	}
	return nil
}

var GlobalStorage Storage

// InitStorage 初始化归档存储
func InitStorage(localDir string, ossConfig map[string]string) {
	local := &LocalStorage{BaseDir: localDir}

	var ossStorage *OSSStorage
	if ossConfig != nil {
		client, err := oss.New(ossConfig["endpoint"], ossConfig["accessKeyID"], ossConfig["accessKeySecret"])
		if err == nil {
			bucket, err := client.Bucket(ossConfig["bucketName"])
			if err == nil {
				ossStorage = &OSSStorage{Bucket: bucket, Domain: ossConfig["domain"]}
			}
		}
	}

	GlobalStorage = &CompositeStorage{Local: local, OSS: ossStorage}
}
