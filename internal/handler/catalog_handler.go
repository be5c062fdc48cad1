package handler

import (
	"github.com/gin-gonic/gin"

	"pcbuild/internal/service"
	"pcbuild/pkg/response"
)

// CatalogHandler 配件目录请求处理器
type CatalogHandler struct {
	catalogService *service.CatalogService
}

// NewCatalogHandler 创建 CatalogHandler 实例
func NewCatalogHandler(catalogService *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// Preview 预览某个预算下的候选配件
// @Param budget query string false "预算，例如 5000 或 R$ 5.000,00"
// @Router /api/v1/catalog/preview [get]
func (h *CatalogHandler) Preview(c *gin.Context) {
	preview, err := h.catalogService.Preview(c.Request.Context(), c.Query("budget"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, preview)
}

// GetComponent 获取单个配件
// @Router /api/v1/catalog/components/{id} [get]
func (h *CatalogHandler) GetComponent(c *gin.Context) {
	component, err := h.catalogService.Component(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, component)
}

// Reload 重新加载目录
// @Router /api/v1/catalog/reload [post]
func (h *CatalogHandler) Reload(c *gin.Context) {
	n, err := h.catalogService.Reload(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"components": n})
}
