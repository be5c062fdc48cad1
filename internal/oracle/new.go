package oracle

import (
	"context"
	"errors"

	"pcbuild/internal/config"
	"pcbuild/pkg/logger"
)

// New 根据配置选择后端
// 缺少凭据时不会失败：返回的后端在每次调用时报告 ErrNotConfigured，由会话按致命错误处理
func New(ctx context.Context, cfg config.AIConfig, log *logger.Logger) (Oracle, error) {
	var backend Oracle

	switch cfg.Provider {
	case "gemini":
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.Endpoint)
		if errors.Is(err, ErrNotConfigured) {
			log.Warn("gemini api key missing, conversations will fail", "provider", cfg.Provider)
			backend = unconfigured{provider: "gemini"}
			break
		}
		if err != nil {
			return nil, err
		}
		backend = g

	case "ollama":
		o, err := NewOllama(cfg.Endpoint, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		backend = o

	default:
		if cfg.QwenAPIKey == "" {
			log.Warn("dashscope api key missing, conversations will fail", "provider", "dashscope")
			backend = unconfigured{provider: "dashscope"}
			break
		}
		backend = NewDashScope(cfg.QwenAPIKey, cfg.Model, cfg.Endpoint, cfg.Timeout)
	}

	log.Info("oracle ready", "provider", cfg.Provider, "model", cfg.Model, "requests_per_minute", cfg.RequestsPerMinute)
	return Throttled(backend, cfg.RequestsPerMinute, cfg.Burst), nil
}
