package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"gwi.com/nova-chat/internal/store"
)

// Message is one entry of the prompt sent to a completion service.
type Message struct {
	Role    store.Role `json:"role"`
	Content string     `json:"content"`
}

type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	User        string
}

type Completion struct {
	Text       string
	TokensUsed int
}

// CompletionService produces the assistant reply for a prompt.
type CompletionService interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// SpeechService converts between text and audio. Both directions are
// optional features of the chat; callers treat failures as warnings.
type SpeechService interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type RemoteErrorKind string

const (
	KindNetwork        RemoteErrorKind = "network"
	KindAuth           RemoteErrorKind = "auth"
	KindRateLimit      RemoteErrorKind = "rate_limit"
	KindInvalidRequest RemoteErrorKind = "invalid_request"
	KindServer         RemoteErrorKind = "server"
	KindEmpty          RemoteErrorKind = "empty"
)

// RemoteError is a failed call to a completion or speech provider.
type RemoteError struct {
	Service    string
	Kind       RemoteErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Service, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Service, e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func kindForStatus(code int) RemoteErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code >= 500:
		return KindServer
	default:
		return KindInvalidRequest
	}
}

// CompletionRouter sends each request to the service registered for the
// model's prefix, or to the fallback.
type CompletionRouter struct {
	routes   []route
	fallback CompletionService
}

type route struct {
	prefix  string
	service CompletionService
}

func NewCompletionRouter(fallback CompletionService) *CompletionRouter {
	return &CompletionRouter{fallback: fallback}
}

// Route registers service for models starting with prefix. Earlier routes win.
func (r *CompletionRouter) Route(prefix string, service CompletionService) *CompletionRouter {
	r.routes = append(r.routes, route{prefix: prefix, service: service})
	return r
}

func (r *CompletionRouter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	for _, rt := range r.routes {
		if strings.HasPrefix(req.Model, rt.prefix) {
			return rt.service.Complete(ctx, req)
		}
	}
	if r.fallback == nil {
		return nil, &RemoteError{
			Service: "router",
			Kind:    KindInvalidRequest,
			Message: fmt.Sprintf("no completion service configured for model %q", req.Model),
		}
	}
	return r.fallback.Complete(ctx, req)
}
