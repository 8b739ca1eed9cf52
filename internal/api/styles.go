package api

import (
	"strings"

	"coloring-page-service/internal/styles"

	"github.com/gin-gonic/gin"
)

// ListStylesHandler 返回创作风格预设目录
func ListStylesHandler(c *gin.Context) {
	refresh := strings.TrimSpace(c.Query("refresh"))
	if refresh != "" && refresh != "0" && refresh != "false" {
		status := styles.RefreshRemote(c.Request.Context())
		c.Header("X-Style-Refresh", status)
	}

	catalog := styles.GetCatalog()
	mode := strings.TrimSpace(c.Query("mode"))
	keyword := strings.TrimSpace(c.Query("q"))

	items := styles.Filter(catalog.Items, mode, keyword)

	Success(c, gin.H{
		"version": catalog.Version,
		"items":   items,
	})
}
