package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenAI-compatible API root used when no override
	// is configured.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the completion model used when no override is
	// configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultTimeout bounds each oracle call end to end.
	DefaultTimeout = 60 * time.Second
)

// OracleClient talks to an OpenAI-compatible chat-completions endpoint.
type OracleClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ Oracle = &OracleClient{}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOracleClient creates a chat-completions client. Empty baseURL and model
// fall back to the defaults.
func NewOracleClient(baseURL, apiKey, model string) (*OracleClient, error) {
	if apiKey == "" {
		return nil, errors.New("oracle API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	return &OracleClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// Complete sends one system-role message and returns the first choice's
// content verbatim.
func (c *OracleClient) Complete(ctx context.Context, instruction string) (string, error) {
	reqURL, err := url.JoinPath(c.baseURL, "chat", "completions")
	if err != nil {
		return "", fmt.Errorf("failed to build request URL: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("oracle API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse oracle response body: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("oracle response contained no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
