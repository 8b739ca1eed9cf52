package pagesapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client 涂色页上游服务客户端。所有带身份的调用通过 X-User-Id 头鉴权。
type Client struct {
	BaseURL string
	UserID  string
	HTTP    *http.Client
}

func NewClient(baseURL, userID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		UserID:  userID,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// IssueUploadCredential 获取一次性写入凭证。凭证不缓存不复用，
// 每次照片提交（含重试）都必须重新获取。
func (c *Client) IssueUploadCredential(ctx context.Context, contentType string) (UploadCredential, error) {
	var cred UploadCredential
	body := map[string]string{}
	if contentType != "" {
		body["contentType"] = contentType
	}
	if err := c.doJSON(ctx, http.MethodPost, "/coloring-pages/photo-upload-url", body, &cred); err != nil {
		return cred, err
	}
	return cred, nil
}

// UploadPhoto 将原始图片 PUT 到凭证指定的存储地址。
// URL 本身即授权，不附加任何身份头；非 2xx 直接终止本次提交。
func (c *Client) UploadPhoto(ctx context.Context, cred UploadCredential, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, cred.UploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", cred.ContentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return nil
}

// Generate 提交生成请求，返回归一化后的页面列表
func (c *Client) Generate(ctx context.Context, body GenerateBody) (GenerateResult, error) {
	var result GenerateResult
	raw := json.RawMessage{}
	if err := c.doJSON(ctx, http.MethodPost, "/coloring-pages/generate", body, &raw); err != nil {
		return result, err
	}
	return normalizeGenerateResponse(raw)
}

// GetPage 查询单个页面状态（轮询用）
func (c *Client) GetPage(ctx context.Context, id string) (Page, error) {
	raw := json.RawMessage{}
	if err := c.doJSON(ctx, http.MethodGet, "/coloring-pages/"+id, nil, &raw); err != nil {
		return Page{}, err
	}
	return normalizePageResponse(raw)
}

// DeletePage 删除页面
func (c *Client) DeletePage(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/coloring-pages/"+id, nil, nil)
}

// ListFolders 获取当前用户的文件夹列表
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var out struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/folders", nil, &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}

// CreateFolder 创建文件夹
func (c *Client) CreateFolder(ctx context.Context, name string) (Folder, error) {
	var out struct {
		Folder Folder `json:"folder"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/folders", map[string]string{"name": name}, &out); err != nil {
		return Folder{}, err
	}
	return out.Folder, nil
}

// CurrentUser 获取当前用户信息与积分余额
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// CreateCheckoutSession 创建支付会话，后续跳转由外部计费服务完成
func (c *Client) CreateCheckoutSession(ctx context.Context, planID string) (CheckoutSession, error) {
	var out CheckoutSession
	if err := c.doJSON(ctx, http.MethodPost, "/payments/checkout-session", map[string]string{"planId": planID}, &out); err != nil {
		return out, err
	}
	return out, nil
}

// doJSON 统一请求入口：JSON 编解码、身份头、错误分类
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-Id", c.UserID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectivityError{Err: err}
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: extractErrorMessage(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析上游响应失败: %w", err)
	}
	return nil
}

// extractErrorMessage 尽量取出后端给的错误文案，取不到返回空串
func extractErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// normalizeGenerateResponse 将生成接口的三种历史返回形态归一化为页面列表：
// coloringPages 键下的列表、pages 键下的列表、或单个页面对象。
// 歧义被隔离在这一个函数内，下游只看到 []Page。
func normalizeGenerateResponse(raw json.RawMessage) (GenerateResult, error) {
	var result GenerateResult

	var envelope struct {
		ColoringPages    []Page `json:"coloringPages"`
		Pages            []Page `json:"pages"`
		ColoringPage     *Page  `json:"coloringPage"`
		CreditsRemaining *int   `json:"creditsRemaining"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		result.CreditsRemaining = envelope.CreditsRemaining
		switch {
		case len(envelope.ColoringPages) > 0:
			result.Pages = envelope.ColoringPages
			return result, nil
		case len(envelope.Pages) > 0:
			result.Pages = envelope.Pages
			return result, nil
		case envelope.ColoringPage != nil:
			result.Pages = []Page{*envelope.ColoringPage}
			return result, nil
		}
	}

	// 裸页面对象
	var single Page
	if err := json.Unmarshal(raw, &single); err == nil && single.ID != "" {
		result.Pages = []Page{single}
		return result, nil
	}

	return result, fmt.Errorf("无法识别的生成响应格式")
}

// normalizePageResponse 单页查询返回 {coloringPage: {...}} 或裸对象
func normalizePageResponse(raw json.RawMessage) (Page, error) {
	var envelope struct {
		ColoringPage *Page `json:"coloringPage"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.ColoringPage != nil {
		return *envelope.ColoringPage, nil
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err == nil && page.ID != "" {
		return page, nil
	}
	return Page{}, fmt.Errorf("无法识别的页面响应格式")
}
