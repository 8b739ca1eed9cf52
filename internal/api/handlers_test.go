package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coloring-page-service/internal/generate"
	"coloring-page-service/internal/model"
	"coloring-page-service/internal/pagesapi"
	"coloring-page-service/internal/poll"
	"coloring-page-service/internal/session"
)

// stubUpstream 满足工作流与轮询依赖的最小假上游
type stubUpstream struct {
	generateErr error
	pages       []pagesapi.Page
}

func (s *stubUpstream) IssueUploadCredential(ctx context.Context, contentType string) (pagesapi.UploadCredential, error) {
	return pagesapi.UploadCredential{UploadURL: "https://storage.example.com/put", Key: "k", Bucket: "b", ContentType: contentType}, nil
}

func (s *stubUpstream) UploadPhoto(ctx context.Context, cred pagesapi.UploadCredential, data []byte) error {
	return nil
}

func (s *stubUpstream) Generate(ctx context.Context, body pagesapi.GenerateBody) (pagesapi.GenerateResult, error) {
	if s.generateErr != nil {
		return pagesapi.GenerateResult{}, s.generateErr
	}
	return pagesapi.GenerateResult{Pages: s.pages}, nil
}

func (s *stubUpstream) GetPage(ctx context.Context, id string) (pagesapi.Page, error) {
	return pagesapi.Page{ID: id, Status: pagesapi.StatusCompleted, ImageURL: "https://cdn.example.com/" + id + ".png"}, nil
}

func setupRouter(t *testing.T, stub *stubUpstream) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	poller := poll.NewManager(stub, poll.RealClock(), 5*time.Millisecond, 5)
	t.Cleanup(poller.Stop)
	generate.InitEngine(stub, session.NewStore(), poller, nil)

	r := gin.New()
	r.POST("/pages/generate", GenerateHandler)
	r.GET("/batches/:batch_id", GetBatchHandler)
	r.POST("/batches/:batch_id/cancel", CancelBatchHandler)
	return r
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCoerceCount(t *testing.T) {
	assert.Equal(t, "", coerceCount(nil))
	assert.Equal(t, "3", coerceCount("3"))
	assert.Equal(t, "4", coerceCount(float64(4)))
	assert.Equal(t, "2", coerceCount(2))
	assert.Equal(t, "", coerceCount(true))
}

func TestGenerateHandlerSuccess(t *testing.T) {
	stub := &stubUpstream{pages: []pagesapi.Page{{ID: "p1", Status: pagesapi.StatusPending}}}
	r := setupRouter(t, stub)

	w := postJSON(r, "/pages/generate", gin.H{"mode": "text", "prompt": "一只恐龙", "count": 2})
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.Code)

	data := resp.Data.(map[string]any)
	assert.NotEmpty(t, data["batchId"])
	assert.Len(t, data["slots"], 1)
}

func TestGenerateHandlerValidationError(t *testing.T) {
	r := setupRouter(t, &stubUpstream{})

	w := postJSON(r, "/pages/generate", gin.H{"mode": "text", "prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateHandlerRejectsPhotoMode(t *testing.T) {
	r := setupRouter(t, &stubUpstream{})

	w := postJSON(r, "/pages/generate", gin.H{"mode": "photo", "prompt": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "multipart")
}

func TestGenerateHandlerQuotaExhausted(t *testing.T) {
	stub := &stubUpstream{generateErr: &pagesapi.APIError{StatusCode: http.StatusPaymentRequired, Message: "no credits"}}
	r := setupRouter(t, stub)

	w := postJSON(r, "/pages/generate", gin.H{"mode": "text", "prompt": "x"})
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 402, resp.Code)
	assert.Contains(t, resp.Message, "积分不足")
}

func TestGenerateHandlerUpstreamDown(t *testing.T) {
	stub := &stubUpstream{generateErr: &pagesapi.ConnectivityError{Err: context.DeadlineExceeded}}
	r := setupRouter(t, stub)

	w := postJSON(r, "/pages/generate", gin.H{"mode": "text", "prompt": "x"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetBatchHandler(t *testing.T) {
	stub := &stubUpstream{pages: []pagesapi.Page{{ID: "p1", Status: pagesapi.StatusPending}}}
	r := setupRouter(t, stub)

	w := postJSON(r, "/pages/generate", gin.H{"mode": "text", "prompt": "x"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	batchID := resp.Data.(map[string]any)["batchId"].(string)

	// 轮询结束后快照应收敛到 done
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/batches/"+batchID, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		var got Response
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			return false
		}
		done, _ := got.Data.(map[string]any)["done"].(bool)
		return done
	}, 2*time.Second, 10*time.Millisecond)
}

// setupGallery 用临时 sqlite 库初始化画廊缓存，并在缓存里放入一条
// 指定状态的记录
func setupGallery(t *testing.T, pageID, status string) {
	t.Helper()
	model.InitDB(filepath.Join(t.TempDir(), "gallery.db"))
	model.SavePages([]pagesapi.Page{{ID: pageID, Prompt: "一只恐龙", Status: pagesapi.StatusProcessing}})
	require.NoError(t, model.DB.Model(&model.Page{}).
		Where("page_id = ?", pageID).Update("status", status).Error)
}

// setupUpstream 启动返回固定页面状态的假上游，并注入 Upstream 客户端
func setupUpstream(t *testing.T, pageID, status string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(gin.H{"coloringPage": gin.H{
			"id":       pageID,
			"status":   status,
			"imageUrl": "https://cdn.example.com/" + pageID + ".png",
		}})
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	Init(pagesapi.NewClient(srv.URL, "user-123", 5*time.Second))
}

func TestGetPageHandlerRevalidatesCanceledRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupGallery(t, "c1", "canceled")
	setupUpstream(t, "c1", pagesapi.StatusCompleted)

	r := gin.New()
	r.GET("/pages/:id", GetPageHandler)

	req := httptest.NewRequest(http.MethodGet, "/pages/c1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "completed")

	// 本地记录被对账为上游的终态
	var record model.Page
	require.NoError(t, model.DB.Where("page_id = ?", "c1").First(&record).Error)
	assert.Equal(t, pagesapi.StatusCompleted, record.Status)
	assert.NotEmpty(t, record.ImageURL)
}

func TestGetPageHandlerServesBackendTerminalFromCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupGallery(t, "done1", pagesapi.StatusCompleted)

	var upstreamHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	Init(pagesapi.NewClient(srv.URL, "user-123", 5*time.Second))

	r := gin.New()
	r.GET("/pages/:id", GetPageHandler)

	req := httptest.NewRequest(http.MethodGet, "/pages/done1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, upstreamHits)
}

func TestListPagesRefreshReconcilesCanceled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupGallery(t, "c2", "canceled")
	setupUpstream(t, "c2", pagesapi.StatusCompleted)

	r := gin.New()
	r.GET("/pages", ListPagesHandler)

	req := httptest.NewRequest(http.MethodGet, "/pages?refresh=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var record model.Page
	require.NoError(t, model.DB.Where("page_id = ?", "c2").First(&record).Error)
	assert.Equal(t, pagesapi.StatusCompleted, record.Status)
}

func TestGetBatchHandlerNotFound(t *testing.T) {
	r := setupRouter(t, &stubUpstream{})

	req := httptest.NewRequest(http.MethodGet, "/batches/unknown", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelBatchHandlerNotFound(t *testing.T) {
	r := setupRouter(t, &stubUpstream{})

	w := postJSON(r, "/batches/unknown/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
