package public

import (
	"strings"

	"github.com/chatmeter-next/internal/aiprovider"
	"github.com/chatmeter-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GenerateMessage 对话消息载荷
type GenerateMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// GenerateRequest 计费生成请求
type GenerateRequest struct {
	ModelID         string            `json:"model_id" binding:"required"`
	Messages        []GenerateMessage `json:"messages" binding:"required,min=1"`
	EstimatedTokens int               `json:"estimated_tokens" binding:"required,gt=0"`
}

// Generate 执行一次计费生成
func (h *Handler) Generate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.generation_invalid", err)
		return
	}

	messages := make([]aiprovider.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, aiprovider.Message{
			Role:    strings.TrimSpace(m.Role),
			Content: m.Content,
		})
	}

	result, err := h.GenerationService.Generate(c.Request.Context(), uid, strings.TrimSpace(req.ModelID), messages, req.EstimatedTokens)
	if err != nil {
		respondGenerationError(c, err)
		return
	}
	response.Success(c, result)
}
