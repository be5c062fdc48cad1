package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pcbuild/internal/cache"
)

// HealthHandler 健康检查
type HealthHandler struct {
	db    *gorm.DB
	store cache.Store
}

// NewHealthHandler 创建 HealthHandler 实例
func NewHealthHandler(db *gorm.DB, store cache.Store) *HealthHandler {
	return &HealthHandler{db: db, store: store}
}

// Health 检查数据库和缓存
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "cache": "ok"}
	status := http.StatusOK

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := h.store.Ping(ctx); err != nil {
		checks["cache"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": http.StatusText(status),
		"checks": checks,
		"time":   time.Now().UTC(),
	})
}
