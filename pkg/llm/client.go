// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"checkin-companion/internal/config"
)

// 角色取值与 Gemini contents 一致
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrEmptyCompletion 表示模型返回了 200 但没有任何文本。
var ErrEmptyCompletion = errors.New("llm returned empty completion")

// Client defines the interface for an LLM client.
type Client interface {
	// GenerateContent 发送系统指令、历史与新消息，返回一次性生成的回复文本。
	GenerateContent(ctx context.Context, req ChatRequest) (string, error)
}

// Content 是一条带角色的历史消息。
type Content struct {
	Role string
	Text string
}

// ChatRequest 描述一次对话生成请求。
type ChatRequest struct {
	SystemInstruction string
	Temperature       *float64
	History           []Content
	Message           string
}

type geminiClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new Gemini client from the config.
func NewClient(cfg config.LLMConfig) Client {
	return NewClientWithHTTP(cfg, &http.Client{})
}

// NewClientWithHTTP 允许注入自定义的 http.Client。
func NewClientWithHTTP(cfg config.LLMConfig, httpClient *http.Client) Client {
	return &geminiClient{cfg: cfg, client: httpClient}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	Contents          []geminiContent   `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *geminiClient) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
}

// GenerateContent calls the Gemini generateContent API.
func (c *geminiClient) GenerateContent(ctx context.Context, chat ChatRequest) (string, error) {
	contents := make([]geminiContent, 0, len(chat.History)+1)
	for _, h := range chat.History {
		contents = append(contents, geminiContent{Role: h.Role, Parts: []geminiPart{{Text: h.Text}}})
	}
	contents = append(contents, geminiContent{Role: RoleUser, Parts: []geminiPart{{Text: chat.Message}}})

	reqBody := generateRequest{Contents: contents}
	if chat.SystemInstruction != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: chat.SystemInstruction}}}
	}
	if chat.Temperature != nil {
		reqBody.GenerationConfig = &generationConfig{Temperature: chat.Temperature}
	} else if c.cfg.Temperature != 0 {
		t := c.cfg.Temperature
		reqBody.GenerationConfig = &generationConfig{Temperature: &t}
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call generate api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate api returned non-200 status: %s, body: %s", resp.Status, string(body))
	}

	var res generateResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	if len(res.Candidates) == 0 {
		return "", ErrEmptyCompletion
	}
	var sb strings.Builder
	for _, p := range res.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
