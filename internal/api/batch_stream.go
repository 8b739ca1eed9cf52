package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"coloring-page-service/internal/generate"

	"github.com/gin-gonic/gin"
)

const batchStreamKeepAlive = 3 * time.Second

// StreamBatchHandler 通过 SSE 推送批次进度：先发当前快照，
// 之后逐页推送终结事件，批次全部终结后关闭。
// 客户端断开只停止推送，不取消在途轮询（付费生成不能因导航离开而废弃）。
func StreamBatchHandler(c *gin.Context) {
	batch, ok := generate.Engine.Sessions.Get(c.Param("batch_id"))
	if !ok {
		Error(c, http.StatusNotFound, 404, "批次未找到")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		Error(c, http.StatusInternalServerError, 500, "Streaming unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events, unsubscribe := batch.Subscribe()
	defer unsubscribe()

	snap := batch.Snapshot()
	if !writeStreamEvent(c.Writer, flusher, "snapshot", snap) {
		return
	}
	if snap.Done {
		return
	}

	keepAliveTicker := time.NewTicker(batchStreamKeepAlive)
	defer keepAliveTicker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !writeStreamEvent(c.Writer, flusher, "page", event) {
				return
			}
			if event.BatchDone {
				// 收尾再发一次完整快照，补齐可能被丢弃的事件
				writeStreamEvent(c.Writer, flusher, "snapshot", batch.Snapshot())
				return
			}
		case <-keepAliveTicker.C:
			if _, err := fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, flusher http.Flusher, name string, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
