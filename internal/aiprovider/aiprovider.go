package aiprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrConfigInvalid   = errors.New("aiprovider config invalid")
	ErrRequestFailed   = errors.New("aiprovider request failed")
	ErrResponseInvalid = errors.New("aiprovider response invalid")
)

// Config 上游模型服务配置
type Config struct {
	BaseURL string        `json:"base_url"` // 网关地址，如 https://api.example.com
	APIKey  string        `json:"api_key"`  // API Key
	Timeout time.Duration `json:"timeout"`  // 单次调用超时
}

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateInput 生成请求输入
type GenerateInput struct {
	ModelID  string
	Messages []Message
}

// GenerateResult 生成结果
type GenerateResult struct {
	Content          string                 // 生成文本
	PromptTokens     int                    // 输入 token 数
	CompletionTokens int                    // 输出 token 数
	TotalTokens      int                    // 总 token 数（计费依据）
	Raw              map[string]interface{} // 原始响应
}

// Provider 模型生成服务
type Provider interface {
	Generate(ctx context.Context, input *GenerateInput) (*GenerateResult, error)
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
	}
	return nil
}

// HTTPProvider 基于 HTTP 网关的模型服务实现
type HTTPProvider struct {
	cfg    *Config
	client *http.Client
}

// NewHTTPProvider 创建 HTTP 模型服务
func NewHTTPProvider(cfg *Config) (*HTTPProvider, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	normalized := *cfg
	normalized.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	normalized.APIKey = strings.TrimSpace(cfg.APIKey)
	if normalized.Timeout <= 0 {
		normalized.Timeout = 60 * time.Second
	}
	return &HTTPProvider{
		cfg:    &normalized,
		client: &http.Client{Timeout: normalized.Timeout},
	}, nil
}

// Generate 发起一次生成调用
func (p *HTTPProvider) Generate(ctx context.Context, input *GenerateInput) (*GenerateResult, error) {
	if input == nil || strings.TrimSpace(input.ModelID) == "" || len(input.Messages) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrRequestFailed)
	}

	params := map[string]interface{}{
		"model":    input.ModelID,
		"messages": input.Messages,
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	endpoint := p.cfg.BaseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &GenerateResult{
		Content:          parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
		Raw:              raw,
	}, nil
}
