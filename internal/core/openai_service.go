package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAITimeout = 60 * time.Second
	defaultTTSModel      = "tts-1"
	defaultSTTModel      = "whisper-1"
)

// OpenAIService talks to the OpenAI REST API for chat completions, speech
// synthesis and transcription.
type OpenAIService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	ttsModel   string
	sttModel   string
	logger     zerolog.Logger
}

type OpenAIOption func(*OpenAIService)

// WithBaseURL points the client at a different API root, such as a proxy or
// a test server.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(s *OpenAIService) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(s *OpenAIService) {
		s.httpClient = client
	}
}

func WithSpeechModels(tts, stt string) OpenAIOption {
	return func(s *OpenAIService) {
		if tts != "" {
			s.ttsModel = tts
		}
		if stt != "" {
			s.sttModel = stt
		}
	}
}

func WithOpenAILogger(logger zerolog.Logger) OpenAIOption {
	return func(s *OpenAIService) {
		s.logger = logger
	}
}

func NewOpenAIService(apiKey string, opts ...OpenAIOption) *OpenAIService {
	s := &OpenAIService{
		apiKey:     apiKey,
		baseURL:    defaultOpenAIBaseURL,
		httpClient: &http.Client{Timeout: defaultOpenAITimeout},
		ttsModel:   defaultTTSModel,
		sttModel:   defaultSTTModel,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	User        string    `json:"user,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (s *OpenAIService) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		User:        req.User,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	data, err := s.do(ctx, "completion", "/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RemoteError{Service: "completion", Kind: KindServer, Message: "malformed response body", Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, &RemoteError{Service: "completion", Kind: KindEmpty, Message: "no completion returned"}
	}

	s.logger.Debug().Str("model", req.Model).Int("tokens", resp.Usage.TotalTokens).Msg("Completion received")
	return &Completion{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns MP3 audio for text spoken with voice.
func (s *OpenAIService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Model:          s.ttsModel,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal speech request: %w", err)
	}

	audio, err := s.do(ctx, "speech", "/audio/speech", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, &RemoteError{Service: "speech", Kind: KindEmpty, Message: "no audio returned"}
	}
	return audio, nil
}

// Transcribe uploads audio as a multipart form and returns the recognized text.
func (s *OpenAIService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.wav"
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("model", s.sttModel); err != nil {
		return "", fmt.Errorf("failed to build transcription form: %w", err)
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build transcription form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to build transcription form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to build transcription form: %w", err)
	}

	data, err := s.do(ctx, "transcription", "/audio/transcriptions", form.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", &RemoteError{Service: "transcription", Kind: KindServer, Message: "malformed response body", Err: err}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &RemoteError{Service: "transcription", Kind: KindEmpty, Message: "no speech recognized"}
	}
	return text, nil
}

// do posts body to path and returns the response body of a 2xx reply. Every
// failure is a *RemoteError.
func (s *OpenAIService) do(ctx context.Context, service, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("service", service).Msg("Remote request failed")
		return nil, &RemoteError{Service: service, Kind: KindNetwork, Message: networkMessage(err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Service: service, Kind: KindNetwork, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn().Str("service", service).Int("status", resp.StatusCode).Msg("Remote API error")
		return nil, &RemoteError{
			Service:    service,
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    apiErrorMessage(data, resp.Status),
		}
	}
	return data, nil
}

// apiErrorMessage extracts error.message from an OpenAI error body.
func apiErrorMessage(body []byte, fallback string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return fallback
}

func networkMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	default:
		return "could not reach the service"
	}
}
