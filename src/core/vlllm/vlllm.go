package vlllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/core/analysis"
	"aiglasses-server-go/src/core/image"
	"aiglasses-server-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// 模型调用的默认采样参数
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// ModelErrorReason 模型调用失败原因
type ModelErrorReason string

const (
	ReasonTransport   ModelErrorReason = "transport"    // 网络或API调用失败
	ReasonBadResponse ModelErrorReason = "bad_response" // 响应缺少预期结构
)

// ModelError 模型调用错误
type ModelError struct {
	Reason ModelErrorReason
	Err    error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("模型调用失败(%s): %v", e.Reason, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Provider VLLLM提供者，直接调用多模态API
type Provider struct {
	config *configs.VLLMConfig
	logger *utils.Logger

	// 直接的API客户端
	openaiClient *openai.Client // 用于OpenAI类型
	httpClient   *http.Client   // 用于Ollama类型
}

// ollamaRequest Ollama API请求结构
type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ollamaMessage Ollama消息结构
type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64编码的图片
}

// ollamaResponse Ollama API响应结构
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// NewProvider 创建新的VLLLM提供者
func NewProvider(config *configs.VLLMConfig, logger *utils.Logger) (*Provider, error) {
	if config.Temperature <= 0 {
		config.Temperature = defaultTemperature
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}

	provider := &Provider{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	// 根据类型初始化对应的客户端
	switch strings.ToLower(config.Type) {
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		clientConfig := openai.DefaultConfig(config.APIKey)
		if config.BaseURL != "" {
			clientConfig.BaseURL = config.BaseURL
		}
		provider.openaiClient = openai.NewClientWithConfig(clientConfig)

	case "ollama":
		// Ollama不需要API key，只需要确保有BaseURL
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // 默认Ollama地址
		}

	default:
		return nil, fmt.Errorf("不支持的VLLLM类型: %s", config.Type)
	}

	logger.Debug("VLLLM Provider初始化成功", map[string]interface{}{
		"type":       config.Type,
		"model_name": config.ModelName,
	})

	return provider, nil
}

// Invoke 用指定模式的指令分析图片，返回模型的完整文本回复
// 不在此处重试，重试策略属于调用方的消息处理逻辑
func (p *Provider) Invoke(ctx context.Context, base64Image string, mode analysis.Mode) (string, error) {
	p.logger.Debug("开始调用多模态API", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
		"mode":       mode.String(),
		"image_size": len(base64Image),
	})

	switch strings.ToLower(p.config.Type) {
	case "openai":
		return p.invokeOpenAIVision(ctx, base64Image, mode)
	case "ollama":
		return p.invokeOllamaVision(ctx, base64Image, mode)
	default:
		return "", &ModelError{Reason: ReasonTransport, Err: fmt.Errorf("不支持的VLLLM类型: %s", p.config.Type)}
	}
}

// invokeOpenAIVision 使用OpenAI Vision API
func (p *Provider) invokeOpenAIVision(ctx context.Context, base64Image string, mode analysis.Mode) (string, error) {
	// 构建包含图片的多模态消息
	visionMessage := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: PromptFor(mode),
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: image.DataURL(base64Image),
				},
			},
		},
	}

	resp, err := p.openaiClient.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       p.config.ModelName,
			Messages:    []openai.ChatCompletionMessage{visionMessage},
			Temperature: float32(p.config.Temperature),
			MaxTokens:   p.config.MaxTokens,
			TopP:        float32(p.config.TopP),
		},
	)
	if err != nil {
		p.logger.Error(fmt.Sprintf("OpenAI Vision API调用失败: %v", err))
		return "", &ModelError{Reason: ReasonTransport, Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &ModelError{Reason: ReasonBadResponse, Err: fmt.Errorf("响应中没有choices")}
	}

	content := resp.Choices[0].Message.Content
	p.logger.Info(fmt.Sprintf("VLLLM分析完成(%s): %d字符", mode, len(content)))
	return content, nil
}

// invokeOllamaVision 使用Ollama Vision API
func (p *Provider) invokeOllamaVision(ctx context.Context, base64Image string, mode analysis.Mode) (string, error) {
	// Ollama需要纯base64，不需要data URL前缀
	request := ollamaRequest{
		Model: p.config.ModelName,
		Messages: []ollamaMessage{
			{
				Role:    "user",
				Content: PromptFor(mode),
				Images:  []string{base64Image},
			},
		},
		Stream: false,
		Options: map[string]interface{}{
			"temperature": p.config.Temperature,
			"num_predict": p.config.MaxTokens,
			"top_p":       p.config.TopP,
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", &ModelError{Reason: ReasonTransport, Err: fmt.Errorf("请求序列化失败: %w", err)}
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", &ModelError{Reason: ReasonTransport, Err: fmt.Errorf("创建请求失败: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error(fmt.Sprintf("Ollama API调用失败: %v", err))
		return "", &ModelError{Reason: ReasonTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ModelError{Reason: ReasonTransport, Err: fmt.Errorf("Ollama API返回错误: %d", resp.StatusCode)}
	}

	var response ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", &ModelError{Reason: ReasonBadResponse, Err: fmt.Errorf("解析Ollama响应失败: %w", err)}
	}

	if response.Message.Content == "" {
		return "", &ModelError{Reason: ReasonBadResponse, Err: fmt.Errorf("响应内容为空")}
	}

	p.logger.Info(fmt.Sprintf("VLLLM分析完成(%s): %d字符", mode, len(response.Message.Content)))
	return response.Message.Content, nil
}

// GetConfig 获取配置信息
func (p *Provider) GetConfig() *configs.VLLMConfig {
	return p.config
}
