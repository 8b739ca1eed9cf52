package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"coloring-page-service/internal/generate"
	"coloring-page-service/internal/model"
	"coloring-page-service/internal/pagesapi"
	"coloring-page-service/internal/storage"

	"github.com/gin-gonic/gin"
)

// Response 统一 API 响应结构
type Response struct {
	Code    int         `json:"code"`    // 业务状态码: 200 为成功，其他为失败
	Message string      `json:"message"` // 提示信息
	Data    interface{} `json:"data"`    // 返回数据
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// Upstream 上游客户端，main 中注入
var Upstream *pagesapi.Client

func Init(client *pagesapi.Client) {
	Upstream = client
}

// GeneratePagesRequest 文本类模式（text/wordArt/frontCover）的生成请求
type GeneratePagesRequest struct {
	Mode               string      `json:"mode" binding:"required"`
	Prompt             string      `json:"prompt"`
	Count              interface{} `json:"count"` // 前端可能传数字或字符串
	Quality            string      `json:"quality"`
	AspectRatio        string      `json:"aspectRatio"`
	FolderID           string      `json:"folderId"`
	WordArtStyle       string      `json:"wordArtStyle"`
	TitleForFrontCover string      `json:"titleForFrontCover"`
}

// GenerateHandler 提交文本类生成请求，返回批次快照
func GenerateHandler(c *gin.Context) {
	var req GeneratePagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, 400, "参数解析失败: "+err.Error())
		return
	}
	if req.Mode == generate.ModePhoto {
		Error(c, http.StatusBadRequest, 400, "photo 模式请使用 multipart 接口提交")
		return
	}

	in := generate.Input{
		Mode:            req.Mode,
		Prompt:          req.Prompt,
		Count:           coerceCount(req.Count),
		Quality:         req.Quality,
		AspectRatio:     req.AspectRatio,
		FolderID:        req.FolderID,
		WordArtStyle:    req.WordArtStyle,
		FrontCoverTitle: req.TitleForFrontCover,
	}
	startBatch(c, in)
}

// GenerateWithPhotoHandler 提交照片模式生成请求（multipart）
func GenerateWithPhotoHandler(c *gin.Context) {
	req, err := ParsePhotoRequestFromMultipart(c)
	if err != nil {
		log.Printf("[API] 解析 multipart 请求失败: %v", err)
		Error(c, http.StatusBadRequest, 400, "解析请求失败: "+err.Error())
		return
	}

	in := generate.Input{
		Mode:        generate.ModePhoto,
		Prompt:      req.Prompt,
		Count:       req.Count,
		Quality:     req.Quality,
		AspectRatio: req.AspectRatio,
		FolderID:    req.FolderID,
		Photo:       req.Photo,
	}
	startBatch(c, in)
}

// startBatch 启动工作流并按错误分类返回。
// 402 被单独透出，前端据此跳转套餐升级而非提示通用错误。
func startBatch(c *gin.Context, in generate.Input) {
	batch, err := generate.Engine.Start(c.Request.Context(), in)
	if err != nil {
		if verr, ok := err.(*generate.ValidationError); ok {
			Error(c, http.StatusBadRequest, 400, verr.Error())
			return
		}
		if pagesapi.IsQuota(err) {
			Error(c, http.StatusPaymentRequired, 402, "积分不足，请升级套餐")
			return
		}
		if pagesapi.IsConnectivity(err) {
			Error(c, http.StatusBadGateway, 502, "无法连接生成服务，请稍后再试")
			return
		}
		if status := pagesapi.StatusOf(err); status > 0 {
			Error(c, http.StatusBadGateway, status, err.Error())
			return
		}
		Error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}

	Success(c, batch.Snapshot())
}

// GetBatchHandler 获取批次快照（支持部分完成的中间状态）
func GetBatchHandler(c *gin.Context) {
	batch, ok := generate.Engine.Sessions.Get(c.Param("batch_id"))
	if !ok {
		Error(c, http.StatusNotFound, 404, "批次未找到")
		return
	}
	Success(c, batch.Snapshot())
}

// CancelBatchHandler 显式取消批次的所有在途轮询
func CancelBatchHandler(c *gin.Context) {
	batch, ok := generate.Engine.Sessions.Get(c.Param("batch_id"))
	if !ok {
		Error(c, http.StatusNotFound, 404, "批次未找到")
		return
	}
	batch.Cancel()
	Success(c, "批次已取消")
}

// GetPageHandler 查询单个页面：后端终态命中本地缓存，其余回源刷新。
// timed_out/canceled 是客户端本地放弃，服务端任务可能仍在继续，
// 这类记录不回源就永远看不到后来的完成结果。
func GetPageHandler(c *gin.Context) {
	pageID := c.Param("id")

	var cached *model.Page
	if model.DB != nil {
		var record model.Page
		if err := model.DB.Where("page_id = ?", pageID).First(&record).Error; err == nil {
			if record.Status == pagesapi.StatusCompleted || record.Status == pagesapi.StatusFailed {
				Success(c, record)
				return
			}
			cached = &record
		}
	}

	page, err := Upstream.GetPage(c.Request.Context(), pageID)
	if err != nil {
		if cached != nil {
			// 上游暂不可达时退回本地快照
			Success(c, *cached)
			return
		}
		if pagesapi.IsNotFound(err) {
			Error(c, http.StatusNotFound, 404, "页面未找到")
			return
		}
		Error(c, http.StatusBadGateway, 502, err.Error())
		return
	}

	if cached != nil {
		model.UpdateFromUpstream(page)
		var refreshed model.Page
		if err := model.DB.Where("page_id = ?", pageID).First(&refreshed).Error; err == nil {
			Success(c, refreshed)
			return
		}
	} else {
		model.SavePages([]pagesapi.Page{page})
	}
	Success(c, page)
}

// ListPagesHandler 画廊列表（含搜索与分页）。refresh=1 时先对账非终态页：
// 客户端超时放弃的任务可能已在服务端完成，手动刷新即可发现。
func ListPagesHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize <= 0 {
		pageSize = 20
	} else if pageSize > 100 {
		pageSize = 100
	}
	keyword := c.Query("keyword")

	refresh := strings.TrimSpace(c.Query("refresh"))
	if refresh != "" && refresh != "0" && refresh != "false" {
		reconcilePending(c)
	}

	var records []model.Page
	query := model.DB.Model(&model.Page{})
	if keyword != "" {
		query = query.Where("prompt LIKE ? OR title LIKE ?", "%"+keyword+"%", "%"+keyword+"%")
	}

	var total int64
	query.Count(&total)

	offset := (page - 1) * pageSize
	if err := query.Order("status='processing' DESC, status='pending' DESC, created_at DESC").
		Offset(offset).Limit(pageSize).Find(&records).Error; err != nil {
		Error(c, http.StatusInternalServerError, 500, "查询失败")
		return
	}

	Success(c, gin.H{
		"total": total,
		"list":  records,
	})
}

// reconcilePending 用上游最新状态覆盖本地记录。
// 对账范围是所有非后端终态：在途的 pending/processing，
// 以及客户端本地放弃的 timed_out/canceled
func reconcilePending(c *gin.Context) {
	var pending []model.Page
	if err := model.DB.Where("status IN ?", []string{"pending", "processing", "timed_out", "canceled"}).
		Limit(20).Find(&pending).Error; err != nil {
		return
	}
	for _, record := range pending {
		upstream, err := Upstream.GetPage(c.Request.Context(), record.PageID)
		if err != nil {
			continue
		}
		model.UpdateFromUpstream(upstream)
	}
}

// DeletePageHandler 删除页面：上游删除成功后清理本地记录与归档文件
func DeletePageHandler(c *gin.Context) {
	pageID := c.Param("id")

	if err := Upstream.DeletePage(c.Request.Context(), pageID); err != nil && !pagesapi.IsNotFound(err) {
		Error(c, http.StatusBadGateway, 502, "删除失败: "+err.Error())
		return
	}

	var record model.Page
	if err := model.DB.Where("page_id = ?", pageID).First(&record).Error; err == nil {
		if record.LocalPath != "" {
			if err := storage.GlobalStorage.Delete(pageID + filepathExt(record.LocalPath)); err != nil {
				log.Printf("[API] 删除归档文件失败 %s: %v", pageID, err)
			}
		}
		model.DB.Delete(&record)
	}

	Success(c, "删除成功")
}

// ListFoldersHandler 透传文件夹列表
func ListFoldersHandler(c *gin.Context) {
	folders, err := Upstream.ListFolders(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, 502, err.Error())
		return
	}
	Success(c, folders)
}

// CreateFolderHandler 透传创建文件夹
func CreateFolderHandler(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, 400, "参数解析失败: "+err.Error())
		return
	}
	folder, err := Upstream.CreateFolder(c.Request.Context(), req.Name)
	if err != nil {
		Error(c, http.StatusBadGateway, 502, err.Error())
		return
	}
	Success(c, folder)
}

// CurrentUserHandler 透传当前用户信息与积分余额
func CurrentUserHandler(c *gin.Context) {
	user, err := Upstream.CurrentUser(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, 502, err.Error())
		return
	}
	Success(c, user)
}

// CreateCheckoutHandler 创建支付会话，跳转由外部计费服务承接
func CreateCheckoutHandler(c *gin.Context) {
	var req struct {
		PlanID string `json:"planId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, 400, "参数解析失败: "+err.Error())
		return
	}
	checkout, err := Upstream.CreateCheckoutSession(c.Request.Context(), req.PlanID)
	if err != nil {
		Error(c, http.StatusBadGateway, 502, err.Error())
		return
	}
	Success(c, checkout)
}

// coerceCount 前端的 count 可能是 JSON 数字或字符串，统一转成原始字符串
// 交给构建器钳位
func coerceCount(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.Itoa(int(value))
	case int:
		return strconv.Itoa(value)
	}
	return ""
}

func filepathExt(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ".png"
	}
	return path[idx:]
}
