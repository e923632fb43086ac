// Package provider defines the opaque language-model capability port.
package provider

import "context"

// Request is the prompt handed to a model.
type Request struct {
	Prompt string `json:"prompt"`
	Role   string `json:"role,omitempty"`
}

// Response is the model's completion.
type Response struct {
	Content string `json:"content"`
}

// Invoker is the narrow contract with whatever serves completions. A provider
// failure is returned as an error; callers convert it into a visible chat
// message rather than crashing a loop.
type Invoker interface {
	Invoke(ctx context.Context, providerName, model string, req Request) (*Response, error)
}
