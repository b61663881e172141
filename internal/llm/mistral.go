package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

const mistralChatURL = "https://api.mistral.ai/v1/chat/completions"

// MistralProvider generates via the Mistral chat completions API, which
// follows the OpenAI wire format.
type MistralProvider struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewMistralProvider reads the API key from apiKeyEnv (MISTRAL_API_KEY
// when empty).
func NewMistralProvider(apiKeyEnv, model string, timeout time.Duration) (*MistralProvider, error) {
	if apiKeyEnv == "" {
		apiKeyEnv = "MISTRAL_API_KEY"
	}
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set", apiKeyEnv)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MistralProvider{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		baseURL:    mistralChatURL,
	}, nil
}

func (p *MistralProvider) Name() string { return "mistral" }

type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralRequest struct {
	Model       string           `json:"model"`
	Messages    []mistralMessage `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type mistralResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *MistralProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]mistralMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, mistralMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, mistralMessage{Role: "user", Content: req.Prompt})

	body := mistralRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}

	resp, err := postJSON(ctx, p.httpClient, p.baseURL, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}, body)
	if err != nil {
		return nil, Classify(p.Name(), FailureTransient, err)
	}
	if resp.status != http.StatusOK {
		return nil, classifyHTTP(p.Name(), resp)
	}

	var decoded mistralResponse
	if err := json.Unmarshal(resp.body, &decoded); err != nil {
		return nil, Classify(p.Name(), FailureInvalidResponse, err)
	}
	if len(decoded.Choices) == 0 {
		return nil, Classify(p.Name(), FailureInvalidResponse, errors.New("no choices in response"))
	}

	return &Response{
		Text:         decoded.Choices[0].Message.Content,
		Model:        decoded.Model,
		InputTokens:  decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
	}, nil
}
