package pagesapi

import "time"

// 涂色页状态
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Page 上游涂色页记录（只读投影，权威数据在上游服务）
type Page struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Prompt       string    `json:"prompt"`         // 生成该页使用的提示词
	ImageURL     string    `json:"imageUrl"`       // 完成前为空
	ThumbnailURL string    `json:"thumbnailUrl"`
	Type         string    `json:"type"`           // text / wordArt / frontCover / photo
	Quality      string    `json:"quality"`        // fast / standard
	Dimensions   string    `json:"dimensions"`     // 1:1 / 2:3 / 3:2
	IsFavorite   bool      `json:"isFavorite"`
	FolderID     *string   `json:"folderId"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage"`   // 仅失败时存在
	CreatedAt    time.Time `json:"createdAt"`
}

// Terminal 返回状态是否已到达终态
func (p *Page) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// UploadCredential 上传凭证，一次性使用，短时有效
type UploadCredential struct {
	UploadURL        string `json:"uploadUrl"`
	Bucket           string `json:"bucket"`
	Key              string `json:"key"`
	ContentType      string `json:"contentType"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// GenerateBody 生成接口请求体。photo 模式下只携带存储定位符，
// 原始图片与上传 URL 绝不进入该结构。
type GenerateBody struct {
	Prompt             string `json:"prompt,omitempty"`
	Type               string `json:"type"`
	Dimensions         string `json:"dimensions"`
	Quality            string `json:"quality"`
	NumImages          int    `json:"numImages"`
	FolderID           string `json:"folderId,omitempty"`
	PhotoS3Key         string `json:"photoS3Key,omitempty"`
	PhotoS3Bucket      string `json:"photoS3Bucket,omitempty"`
	WordArtStyle       string `json:"wordArtStyle,omitempty"`
	TitleForFrontCover string `json:"titleForFrontCover,omitempty"`
}

// GenerateResult 归一化后的提交结果
type GenerateResult struct {
	Pages            []Page
	CreditsRemaining *int // 后端扣费后的余额，客户端只展示不计算
}

// Folder 收藏夹/文件夹记录
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PageCount int       `json:"pageCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// User 当前用户信息（含积分余额）
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Credits int    `json:"credits"`
	Plan    string `json:"plan"`
}

// CheckoutSession 支付会话，由外部计费服务承接后续流程
type CheckoutSession struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
}
