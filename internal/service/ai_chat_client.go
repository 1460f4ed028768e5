package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultAIHTTPTimeout = 60 * time.Second
	maxCompletionBody    = 1 << 20
)

// promptRequest 是一次解释文本生成的输入，与具体服务商无关。
type promptRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// completion 为服务商返回的文本与用量。
type completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest 为 OpenAI 兼容接口（OpenAI、DeepSeek）的请求体。
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// chatEndpoint 描述一个 OpenAI 兼容服务商。
type chatEndpoint struct {
	label   string
	baseURL string
	model   string
}

var defaultChatEndpoints = map[string]chatEndpoint{
	AIProviderOpenAI:   {label: "OpenAI", baseURL: "https://api.openai.com/v1", model: defaultOpenAIModel},
	AIProviderDeepSeek: {label: "DeepSeek", baseURL: "https://api.deepseek.com/v1", model: defaultDeepSeekModel},
}

type aiChatClient struct {
	http        httpDoer
	endpoints   map[string]chatEndpoint
	geminiModel string
}

func newAIChatClient() *aiChatClient {
	endpoints := make(map[string]chatEndpoint, len(defaultChatEndpoints))
	for provider, endpoint := range defaultChatEndpoints {
		endpoints[provider] = endpoint
	}
	return &aiChatClient{
		http:        &http.Client{Timeout: defaultAIHTTPTimeout},
		endpoints:   endpoints,
		geminiModel: defaultGeminiModel,
	}
}

// SetHTTPClient 传入 nil 时恢复默认客户端。
func (c *aiChatClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		client = &http.Client{Timeout: defaultAIHTTPTimeout}
	}
	c.http = client
}

func (c *aiChatClient) SetOpenAIBaseURL(base string) {
	c.setBaseURL(AIProviderOpenAI, base)
}

func (c *aiChatClient) SetDeepSeekBaseURL(base string) {
	c.setBaseURL(AIProviderDeepSeek, base)
}

func (c *aiChatClient) setBaseURL(provider, base string) {
	endpoint := c.endpoints[provider]
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = defaultChatEndpoints[provider].baseURL
	}
	endpoint.baseURL = base
	c.endpoints[provider] = endpoint
}

func (c *aiChatClient) doer() httpDoer {
	if c.http == nil {
		return http.DefaultClient
	}
	return c.http
}

// apiKeyFor 返回服务商对应的 Key，未知服务商按 OpenAI 处理。
func apiKeyFor(settings SystemSettings, provider string) string {
	switch provider {
	case AIProviderGemini:
		return strings.TrimSpace(settings.GeminiAPIKey)
	case AIProviderDeepSeek:
		return strings.TrimSpace(settings.DeepSeekAPIKey)
	default:
		return strings.TrimSpace(settings.OpenAIAPIKey)
	}
}

// complete 按设置中的服务商生成文本。
func (c *aiChatClient) complete(ctx context.Context, settings SystemSettings, req promptRequest) (completion, error) {
	provider := normalizeAIProvider(settings.AIProvider)
	if provider == "" {
		provider = AIProviderOpenAI
	}
	apiKey := apiKeyFor(settings, provider)
	if apiKey == "" {
		return completion{}, ErrAIAPIKeyMissing
	}
	if provider == AIProviderGemini {
		return c.completeGemini(ctx, apiKey, req)
	}
	return c.completeChat(ctx, c.endpoints[provider], apiKey, req)
}

func (c *aiChatClient) completeChat(ctx context.Context, endpoint chatEndpoint, apiKey string, req promptRequest) (completion, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model: endpoint.model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(req.System)},
			{Role: "user", Content: req.User},
		},
		MaxTokens:   max(req.MaxTokens, 0),
		Temperature: req.Temperature,
	})
	if err != nil {
		return completion{}, fmt.Errorf("构造请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return completion{}, fmt.Errorf("创建 %s 请求失败: %w", endpoint.label, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "postpulse-ai/1.0")

	resp, err := c.doer().Do(httpReq)
	if err != nil {
		return completion{}, fmt.Errorf("请求 %s 接口失败: %w", endpoint.label, err)
	}
	defer resp.Body.Close()

	return decodeChatCompletion(endpoint.label, resp)
}

// decodeChatCompletion 解析响应；HTTP 错误优先使用服务商返回的 error.message。
func decodeChatCompletion(label string, resp *http.Response) (completion, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionBody))
	if err != nil {
		return completion{}, fmt.Errorf("读取 %s 响应失败: %w", label, err)
	}

	var parsed chatCompletionResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(parsed.Error.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = resp.Status
		}
		return completion{}, fmt.Errorf("%s 接口返回错误：%s", label, msg)
	}
	if decodeErr != nil {
		return completion{}, fmt.Errorf("解析 %s 响应失败: %w", label, decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return completion{}, fmt.Errorf("%s 接口未返回结果", label)
	}

	return completion{
		Text:             strings.TrimSpace(parsed.Choices[0].Message.Content),
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func (c *aiChatClient) completeGemini(ctx context.Context, apiKey string, req promptRequest) (completion, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return completion{}, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	result, err := client.Models.GenerateContent(ctx, c.geminiModel, genai.Text(req.User), config)
	if err != nil {
		return completion{}, fmt.Errorf("请求 Gemini 接口失败: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return completion{}, errors.New("Gemini 接口未返回结果")
	}

	out := completion{Text: text}
	if usage := result.UsageMetadata; usage != nil {
		out.PromptTokens = int(usage.PromptTokenCount)
		out.CompletionTokens = int(usage.CandidatesTokenCount)
	}
	return out, nil
}

// ping 请求模型列表接口验证 Key 是否可用；Gemini 改为发送一次最小生成请求。
func (c *aiChatClient) ping(ctx context.Context, provider, apiKey string) error {
	if provider == AIProviderGemini {
		_, err := c.completeGemini(ctx, apiKey, promptRequest{User: "ping", MaxTokens: 1})
		return err
	}

	endpoint, ok := c.endpoints[provider]
	if !ok {
		endpoint = c.endpoints[AIProviderOpenAI]
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("创建 %s 请求失败: %w", endpoint.label, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("User-Agent", "postpulse-ai/1.0")

	resp, err := c.doer().Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 接口失败: %w", endpoint.label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("%s 返回错误：%s (%s)", endpoint.label, resp.Status, msg)
	}
	return fmt.Errorf("%s 返回错误：%s", endpoint.label, resp.Status)
}
