package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gwi.com/nova-chat/internal/store"
)

// GeminiService serves completions for the gemini-* models.
type GeminiService struct {
	client *genai.Client
	logger zerolog.Logger
}

func NewGeminiService(ctx context.Context, apiKey string, logger zerolog.Logger) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiService{client: client, logger: logger}, nil
}

func (s *GeminiService) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close GenAI client: %w", err)
	}
	s.logger.Info().Msg("GenAI client closed")
	return nil
}

func (s *GeminiService) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	system, history := toGeminiHistory(req.Messages)
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return nil, &RemoteError{Service: "completion", Kind: KindInvalidRequest, Message: "last prompt message must come from the user"}
	}

	model := s.client.GenerativeModel(req.Model)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	temp := float32(req.Temperature)
	maxTokens := int32(req.MaxTokens)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	chat := model.StartChat()
	last := history[len(history)-1]
	chat.History = history[:len(history)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		s.logger.Warn().Err(err).Str("model", req.Model).Msg("Gemini SendMessage failed")
		return nil, geminiError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &RemoteError{Service: "completion", Kind: KindEmpty, Message: "no candidates returned"}
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			s.logger.Debug().Str("part", fmt.Sprintf("%T", part)).Msg("Skipping non-text Gemini part")
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, &RemoteError{Service: "completion", Kind: KindEmpty, Message: "empty or non-text response"}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return &Completion{Text: text.String(), TokensUsed: tokens}, nil
}

// toGeminiHistory folds system messages into one instruction and maps the
// remaining turns onto Gemini's user/model roles. Consecutive turns with the
// same role become one content so the history alternates.
func toGeminiHistory(messages []Message) (string, []*genai.Content) {
	var system []string
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		switch m.Role {
		case store.RoleSystem:
			system = append(system, m.Content)
			continue
		case store.RoleAssistant:
			role = "model"
		}
		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, genai.Text(m.Content))
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(system, "\n\n"), history
}

func geminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &RemoteError{Service: "completion", Kind: KindNetwork, Message: networkMessage(err), Err: err}
	}
	st, ok := status.FromError(err)
	if !ok {
		return &RemoteError{Service: "completion", Kind: KindServer, Message: err.Error(), Err: err}
	}
	kind := KindServer
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		kind = KindAuth
	case codes.ResourceExhausted:
		kind = KindRateLimit
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound:
		kind = KindInvalidRequest
	case codes.Unavailable, codes.DeadlineExceeded:
		kind = KindNetwork
	}
	return &RemoteError{Service: "completion", Kind: kind, Message: st.Message(), Err: err}
}
