package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one turn of conversation context passed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Classification is the model's intent verdict for a user message.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// TextGenerator is the contract the orchestrator needs from the external
// text-generation collaborator. Internals of the provider are out of scope.
type TextGenerator interface {
	Classify(ctx context.Context, text string) (Classification, error)
	Generate(ctx context.Context, text string, history []Message) (string, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float32         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

const classifySystemPrompt = "You are an intent classifier for a flight-training support desk. " +
	"Reply with a JSON object {\"intent\": string, \"confidence\": number between 0 and 1}."

const generateSystemPrompt = "You are a support assistant for a flight-training learning platform. " +
	"Answer the student's question concisely and accurately. If you are unsure, say so and " +
	"suggest waiting for a human agent."

// Classify asks the model for an intent verdict. Without credentials it
// returns a neutral mid-confidence verdict so downstream gating still works.
func (c *Client) Classify(ctx context.Context, text string) (Classification, error) {
	if c.apiKey == "" {
		return Classification{Intent: "general", Confidence: 0.5}, nil
	}

	req := chatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: text},
		},
		Temperature:    0,
		MaxTokens:      64,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	raw, err := c.complete(ctx, req)
	if err != nil {
		return Classification{}, err
	}

	var cls Classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		return Classification{}, fmt.Errorf("parse classification: %w", err)
	}
	return cls, nil
}

// Generate produces the reply text for a user message with recent history
// as context.
func (c *Client) Generate(ctx context.Context, text string, history []Message) (string, error) {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: generateSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: text})

	req := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.4,
		MaxTokens:   512,
	}
	return c.complete(ctx, req)
}

func (c *Client) complete(ctx context.Context, req chatCompletionRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
