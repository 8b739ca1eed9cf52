package generate

import (
	"fmt"
	"strconv"
	"strings"

	"coloring-page-service/internal/pagesapi"
)

// 创作模式
const (
	ModeText       = "text"
	ModeWordArt    = "wordArt"
	ModeFrontCover = "frontCover"
	ModePhoto      = "photo"
)

const (
	MinCount = 1
	MaxCount = 6

	defaultQuality     = "fast"
	defaultAspectRatio = "2:3"
)

var allowedAspectRatios = map[string]bool{"1:1": true, "2:3": true, "3:2": true}

// Input 未经校验的用户输入。Count 保留原始字符串，解析与钳位在构建时完成。
type Input struct {
	Mode            string
	Prompt          string
	Count           string
	Quality         string
	AspectRatio     string
	FolderID        string
	WordArtStyle    string
	FrontCoverTitle string
	Photo           []byte
}

// Request 校验通过的生成请求，仅在单次提交内存在，不持久化
type Request struct {
	Mode            string
	Prompt          string
	Count           int
	Quality         string
	AspectRatio     string
	FolderID        string
	WordArtStyle    string
	FrontCoverTitle string
	Photo           []byte
}

// ValidationError 字段级校验失败。作为返回值交给调用方渲染表单反馈，
// 预期中的输入问题不走 panic 也不触网。
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BuildRequest 将原始输入转换为合法的生成请求。纯函数，无副作用：
//   - photo 模式必须带图片，提示词可选（只作风格提示）
//   - 其他模式必须有去除空白后非空的提示词
//   - 数量钳位到 [1,6]，非数字按 1 处理
//   - 质量默认 fast，比例默认 2:3
func BuildRequest(in Input) (*Request, *ValidationError) {
	prompt := strings.TrimSpace(in.Prompt)

	switch in.Mode {
	case ModeText, ModeWordArt, ModeFrontCover:
		if prompt == "" {
			return nil, &ValidationError{Field: "prompt", Message: "请输入描述内容"}
		}
	case ModePhoto:
		if len(in.Photo) == 0 {
			return nil, &ValidationError{Field: "photo", Message: "请选择要上传的照片"}
		}
	default:
		return nil, &ValidationError{Field: "mode", Message: "不支持的创作模式: " + in.Mode}
	}

	req := &Request{
		Mode:        in.Mode,
		Prompt:      prompt,
		Count:       clampCount(in.Count),
		Quality:     in.Quality,
		AspectRatio: in.AspectRatio,
		FolderID:    strings.TrimSpace(in.FolderID),
		Photo:       in.Photo,
	}
	if req.Quality == "" {
		req.Quality = defaultQuality
	}
	if req.AspectRatio == "" {
		req.AspectRatio = defaultAspectRatio
	}
	if !allowedAspectRatios[req.AspectRatio] {
		return nil, &ValidationError{Field: "aspectRatio", Message: "不支持的画面比例: " + req.AspectRatio}
	}

	switch in.Mode {
	case ModeWordArt:
		// wordArt 模式始终携带风格标签，未选择时落到默认风格
		req.WordArtStyle = strings.TrimSpace(in.WordArtStyle)
		if req.WordArtStyle == "" {
			req.WordArtStyle = "classic"
		}
	case ModeFrontCover:
		// 封面标题仅在非空时包含
		if title := strings.TrimSpace(in.FrontCoverTitle); title != "" {
			req.FrontCoverTitle = title
		}
	}

	return req, nil
}

// clampCount 解析并钳位生成数量: max(1, min(6, parsed))，解析失败取 1
func clampCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return MinCount
	}
	if n < MinCount {
		return MinCount
	}
	if n > MaxCount {
		return MaxCount
	}
	return n
}

// WireBody 组装发往上游的请求体。photo 模式下由工作流先完成上传，
// 再把存储定位符填入 key/bucket；原始图片不进入请求体。
func (r *Request) WireBody(photoKey, photoBucket string) pagesapi.GenerateBody {
	return pagesapi.GenerateBody{
		Prompt:             r.Prompt,
		Type:               r.Mode,
		Dimensions:         r.AspectRatio,
		Quality:            r.Quality,
		NumImages:          r.Count,
		FolderID:           r.FolderID,
		PhotoS3Key:         photoKey,
		PhotoS3Bucket:      photoBucket,
		WordArtStyle:       r.WordArtStyle,
		TitleForFrontCover: r.FrontCoverTitle,
	}
}
