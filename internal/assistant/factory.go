package assistant

import (
	"context"
	"net/http"

	"watchparty/internal/config"

	"github.com/rs/zerolog/log"
)

// New 按配置选择助手实现；凭据缺失或客户端初始化失败时退化为 Unavailable。
func New(ctx context.Context, cfg config.Config) Gateway {
	switch cfg.AssistantProvider {
	case "vertex":
		if !cfg.Vertex.Configured() {
			log.Warn().Msg("vertex credentials not configured, assistant disabled")
			return Unavailable{}
		}
		gw, err := NewVertexGemini(ctx, cfg.Vertex.ProjectID, cfg.Vertex.Location, cfg.Vertex.Model)
		if err != nil {
			log.Error().Err(err).Str("project", cfg.Vertex.ProjectID).Msg("vertex client init")
			return Unavailable{}
		}
		log.Info().Str("model", cfg.Vertex.Model).Msg("assistant: vertex gemini")
		return gw
	default:
		if !cfg.Azure.Configured() {
			log.Warn().Msg("azure openai credentials not configured, assistant disabled")
			return Unavailable{}
		}
		log.Info().Str("deployment", cfg.Azure.DeploymentName).Msg("assistant: azure openai")
		return NewAzureOpenAI(&http.Client{}, cfg.Azure.Endpoint, cfg.Azure.DeploymentName, cfg.Azure.APIVersion, cfg.Azure.APIKey)
	}
}
