package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coloring-page-service/internal/api"
	"coloring-page-service/internal/config"
	"coloring-page-service/internal/generate"
	"coloring-page-service/internal/model"
	"coloring-page-service/internal/pagesapi"
	"coloring-page-service/internal/poll"
	"coloring-page-service/internal/session"
	"coloring-page-service/internal/storage"
	"coloring-page-service/internal/styles"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.InitConfig()

	// 2. 初始化画廊缓存库
	model.InitDB(config.GlobalConfig.Database.Path)

	// 3. 初始化归档存储
	var ossConfig map[string]string
	if config.GlobalConfig.Storage.OSS.Enabled {
		ossConfig = map[string]string{
			"endpoint":        config.GlobalConfig.Storage.OSS.Endpoint,
			"accessKeyID":     config.GlobalConfig.Storage.OSS.AccessKeyID,
			"accessKeySecret": config.GlobalConfig.Storage.OSS.AccessKeySecret,
			"bucketName":      config.GlobalConfig.Storage.OSS.BucketName,
			"domain":          config.GlobalConfig.Storage.OSS.Domain,
		}
	}
	storage.InitStorage(config.GlobalConfig.Storage.LocalDir, ossConfig)

	// 4. 初始化风格预设目录
	styles.Init()

	// 5. 组装上游客户端与生成工作流
	upstream := pagesapi.NewClient(
		config.GlobalConfig.Upstream.BaseURL,
		config.GlobalConfig.Upstream.UserID,
		time.Duration(config.GlobalConfig.Upstream.TimeoutSeconds)*time.Second,
	)
	poller := poll.NewManager(
		upstream,
		poll.RealClock(),
		time.Duration(config.GlobalConfig.Poll.IntervalMs)*time.Millisecond,
		config.GlobalConfig.Poll.MaxAttempts,
	)
	sessions := session.NewStore()
	archiver := storage.NewPageArchiver(storage.GlobalStorage)
	generate.InitEngine(upstream, sessions, poller, archiver)
	api.Init(upstream)

	// 6. 设置路由
	r := gin.Default()

	// 允许跨域请求（前端开发服务器与后端端口不同）
	// 注意：中间件必须在路由注册之前设置
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		api.Success(c, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/pages/generate", api.GenerateHandler)
		v1.POST("/pages/generate-with-photo", api.GenerateWithPhotoHandler)
		v1.GET("/pages", api.ListPagesHandler)
		v1.GET("/pages/:id", api.GetPageHandler)
		v1.DELETE("/pages/:id", api.DeletePageHandler)
		v1.POST("/pages/export", api.ExportPagesHandler)
		v1.GET("/batches/:batch_id", api.GetBatchHandler)
		v1.GET("/batches/:batch_id/stream", api.StreamBatchHandler)
		v1.POST("/batches/:batch_id/cancel", api.CancelBatchHandler)
		v1.GET("/styles", api.ListStylesHandler)
		v1.GET("/folders", api.ListFoldersHandler)
		v1.POST("/folders", api.CreateFolderHandler)
		v1.GET("/user", api.CurrentUserHandler)
		v1.POST("/checkout", api.CreateCheckoutHandler)
	}

	// 归档目录整体暴露，与数据库中的 storage/xxx.png 路径对应
	r.Static("/storage", "storage")

	// 7. 优雅启动与关闭
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.GlobalConfig.Server.Port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("启动服务失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务...")

	// 先停轮询，保证在途会话落下终态回调
	poller.Stop()

	// 优雅停止 HTTP 服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("服务器强制关闭:", err)
	}

	log.Println("服务已安全退出")
}
