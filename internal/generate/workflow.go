package generate

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"coloring-page-service/internal/model"
	"coloring-page-service/internal/pagesapi"
	"coloring-page-service/internal/poll"
	"coloring-page-service/internal/session"
)

// API 工作流依赖的上游能力，测试时用假实现替换
type API interface {
	IssueUploadCredential(ctx context.Context, contentType string) (pagesapi.UploadCredential, error)
	UploadPhoto(ctx context.Context, cred pagesapi.UploadCredential, data []byte) error
	Generate(ctx context.Context, body pagesapi.GenerateBody) (pagesapi.GenerateResult, error)
}

// Archiver 完成页归档能力（下载原图、生成缩略图、写入存储）
type Archiver interface {
	Archive(ctx context.Context, page pagesapi.Page) (*model.ArchiveResult, error)
}

// Workflow 生成工作流：构建请求 → （photo 模式）上传交接 → 提交 → 逐页轮询
type Workflow struct {
	Client   API
	Sessions *session.Store
	Poller   *poll.Manager
	Archiver Archiver // 可为 nil，仅影响本地归档
}

// Engine 全局工作流实例，main 中初始化
var Engine *Workflow

func InitEngine(client API, sessions *session.Store, poller *poll.Manager, archiver Archiver) {
	Engine = &Workflow{
		Client:   client,
		Sessions: sessions,
		Poller:   poller,
		Archiver: archiver,
	}
}

// Start 执行一次完整提交。返回的批次携带取消句柄，
// 调用方放弃等待时应显式取消，而不是靠导航离开隐式遗忘。
func (w *Workflow) Start(ctx context.Context, in Input) (*session.Batch, error) {
	req, verr := BuildRequest(in)
	if verr != nil {
		return nil, verr
	}

	var photoKey, photoBucket string
	if req.Mode == ModePhoto {
		key, bucket, err := w.handoffPhoto(ctx, req.Photo)
		if err != nil {
			return nil, err
		}
		photoKey, photoBucket = key, bucket
	}

	result, err := w.Client.Generate(ctx, req.WireBody(photoKey, photoBucket))
	if err != nil {
		return nil, err
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("上游未返回任何页面")
	}

	// 提交成功即作废本地缓存视图：把新页面落为待定记录，
	// 列表读取时会重新对账非终态页
	model.SavePages(result.Pages)

	pollCtx, cancel := context.WithCancel(context.Background())
	batch := w.Sessions.CreateBatch(result.Pages, result.CreditsRemaining, cancel)
	log.Printf("[工作流] 批次 %s 已创建，共 %d 页", batch.ID, len(result.Pages))

	for _, page := range result.Pages {
		if page.Terminal() {
			continue
		}
		pageID := page.ID
		w.Poller.Watch(pollCtx, pageID, func(outcome poll.Outcome) {
			w.resolve(batch, outcome)
		})
	}
	return batch, nil
}

// handoffPhoto 上传交接：换取一次性凭证 → 直传二进制 → 只保留存储定位符。
// 凭证用后即弃；任一步失败都终止本次提交，重试从换凭证重新开始。
func (w *Workflow) handoffPhoto(ctx context.Context, photo []byte) (string, string, error) {
	contentType := detectPhotoContentType(photo)
	cred, err := w.Client.IssueUploadCredential(ctx, contentType)
	if err != nil {
		return "", "", fmt.Errorf("获取上传凭证失败: %w", err)
	}
	if err := w.Client.UploadPhoto(ctx, cred, photo); err != nil {
		return "", "", fmt.Errorf("上传照片失败: %w", err)
	}
	return cred.Key, cred.Bucket, nil
}

// resolve 把单页轮询结果写入批次槽位与本地画廊，完成页触发归档
func (w *Workflow) resolve(batch *session.Batch, outcome poll.Outcome) {
	if !batch.Apply(outcome) {
		return
	}
	model.ApplyOutcome(outcome.PageID, outcome.State, outcome.Page, outcome.ErrorMessage)

	if outcome.State == poll.StateCompleted && w.Archiver != nil {
		ar, err := w.Archiver.Archive(context.Background(), outcome.Page)
		if err != nil {
			log.Printf("[工作流] 页面 %s 归档失败: %v", outcome.PageID, err)
			return
		}
		model.SetArchive(outcome.PageID, ar)
	}
}

// detectPhotoContentType 嗅探照片类型：PNG 按 image/png 申报，其余默认 image/jpeg
func detectPhotoContentType(data []byte) string {
	if http.DetectContentType(data) == "image/png" {
		return "image/png"
	}
	return "image/jpeg"
}
