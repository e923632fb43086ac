// Package litellm provides a provider.Invoker backed by a LiteLLM proxy's
// OpenAI-compatible chat completions endpoint.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/CrewForge/internal/port/provider"
	"github.com/Strob0t/CrewForge/internal/resilience"
)

// Invoker talks to a LiteLLM proxy. One proxy fronts every configured
// upstream provider, so the provider name travels as a request hint only.
type Invoker struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewInvoker creates a LiteLLM-backed invoker.
func NewInvoker(baseURL, apiKey string) *Invoker {
	return &Invoker{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing completion calls.
func (i *Invoker) SetBreaker(b *resilience.Breaker) {
	i.breaker = b
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string            `json:"model"`
	Messages []chatMessage     `json:"messages"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Invoke implements provider.Invoker.
func (i *Invoker) Invoke(ctx context.Context, providerName, model string, req provider.Request) (*provider.Response, error) {
	body, err := json.Marshal(completionRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Metadata: map[string]string{"provider": providerName, "agent_role": req.Role},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	data, err := i.doRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var result completionResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("completion for model %s returned no choices", model)
	}
	return &provider.Response{Content: result.Choices[0].Message.Content}, nil
}

func (i *Invoker) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if i.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+i.apiKey)
		}

		resp, err := i.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if i.breaker != nil {
		if err := i.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
