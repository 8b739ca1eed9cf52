package styles

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"coloring-page-service/internal/config"
)

// Style 一个创作风格预设（wordArt 风格标签或封面版式）
type Style struct {
	Tag         string `json:"tag"`         // 提交时携带的风格标签
	Name        string `json:"name"`        // 展示名称
	Mode        string `json:"mode"`        // 适用模式: wordArt / frontCover
	Description string `json:"description"`
}

// Catalog 风格目录
type Catalog struct {
	Version string  `json:"version"`
	Items   []Style `json:"items"`
}

var (
	mu      sync.RWMutex
	current Catalog
)

// 内置目录，远端不可达时兜底
var builtinCatalog = Catalog{
	Version: "builtin",
	Items: []Style{
		{Tag: "classic", Name: "经典描边", Mode: "wordArt", Description: "粗描边气泡字"},
		{Tag: "bubble", Name: "泡泡字", Mode: "wordArt", Description: "圆润膨胀字形"},
		{Tag: "block", Name: "积木体", Mode: "wordArt", Description: "方块拼接字形"},
		{Tag: "graffiti", Name: "涂鸦体", Mode: "wordArt", Description: "街头涂鸦风格"},
		{Tag: "floral", Name: "花环字", Mode: "wordArt", Description: "花草缠绕装饰"},
		{Tag: "banner", Name: "横幅封面", Mode: "frontCover", Description: "标题横幅加边框"},
		{Tag: "frame", Name: "画框封面", Mode: "frontCover", Description: "装饰画框环绕标题"},
		{Tag: "mandala", Name: "曼陀罗封面", Mode: "frontCover", Description: "对称曼陀罗围绕标题"},
	},
}

// Init 装载内置目录，并在配置了远端地址时尝试刷新一次
func Init() {
	mu.Lock()
	current = builtinCatalog
	mu.Unlock()

	if strings.TrimSpace(config.GlobalConfig.Styles.RemoteURL) != "" {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout())
		defer cancel()
		status := RefreshRemote(ctx)
		log.Printf("[风格] 远端目录刷新: %s", status)
	}
}

// GetCatalog 返回当前目录
func GetCatalog() Catalog {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// RefreshRemote 从远端拉取目录并原子替换，失败时保留现有目录。
// 返回状态描述供响应头透出。
func RefreshRemote(ctx context.Context) string {
	remoteURL := strings.TrimSpace(config.GlobalConfig.Styles.RemoteURL)
	if remoteURL == "" {
		return "skipped: no remote url"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "error: " + err.Error()
	}
	client := &http.Client{Timeout: fetchTimeout()}
	resp, err := client.Do(req)
	if err != nil {
		return "error: " + err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "error: http status " + resp.Status
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "error: " + err.Error()
	}

	var fetched Catalog
	if err := json.Unmarshal(body, &fetched); err != nil {
		return "error: " + err.Error()
	}
	if len(fetched.Items) == 0 {
		return "error: empty catalog"
	}

	mu.Lock()
	current = fetched
	mu.Unlock()
	return "ok"
}

// Filter 按模式与关键字过滤
func Filter(items []Style, mode, keyword string) []Style {
	mode = strings.TrimSpace(mode)
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	var out []Style
	for _, item := range items {
		if mode != "" && item.Mode != mode {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(item.Name), keyword) &&
			!strings.Contains(strings.ToLower(item.Tag), keyword) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func fetchTimeout() time.Duration {
	secs := config.GlobalConfig.Styles.FetchTimeoutSeconds
	if secs <= 0 {
		secs = 4
	}
	return time.Duration(secs) * time.Second
}
