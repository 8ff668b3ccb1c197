package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"gwi.com/nova-chat/internal/storage"
	"gwi.com/nova-chat/internal/store"
)

// ErrSpeechUnavailable is returned when no speech service is configured.
var ErrSpeechUnavailable = errors.New("speech service unavailable")

// Exchange is the outcome of one user message or regeneration.
type Exchange struct {
	Conversation  *store.Conversation `json:"conversation"`
	UserTurn      store.Turn          `json:"user_turn"`
	AssistantTurn store.Turn          `json:"assistant_turn"`
	Failed        bool                `json:"failed"`
	AudioKey      string              `json:"audio_key,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// ChatService drives a conversation: it records the user's turn, asks the
// completion service for a reply and records the reply (or the failure) as
// the assistant's turn.
type ChatService struct {
	stores        *store.Stores
	completions   CompletionService
	speech        SpeechService
	audio         *storage.Storage
	logger        zerolog.Logger
	historyWindow int
	memoryLimit   int
}

type ChatOption func(*ChatService)

// WithSpeech enables text-to-speech replies and transcription. audio may be
// nil, in which case synthesized replies are not kept.
func WithSpeech(speech SpeechService, audio *storage.Storage) ChatOption {
	return func(s *ChatService) {
		s.speech = speech
		s.audio = audio
	}
}

func WithHistoryWindow(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.historyWindow = n
		}
	}
}

func WithMemoryLimit(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.memoryLimit = n
		}
	}
}

func WithChatLogger(logger zerolog.Logger) ChatOption {
	return func(s *ChatService) {
		s.logger = logger
	}
}

func NewChatService(stores *store.Stores, completions CompletionService, opts ...ChatOption) *ChatService {
	s := &ChatService{
		stores:        stores,
		completions:   completions,
		logger:        zerolog.Nop(),
		historyWindow: defaultHistoryWindow,
		memoryLimit:   defaultMemoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleUserMessage appends text to the conversation (creating one when
// conversationID is empty) and then the assistant's reply. A failed remote
// call is recorded as a diagnostic turn and does not make this return an
// error.
func (s *ChatService) HandleUserMessage(ctx context.Context, username, conversationID, text string) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, store.NewValidationError("content", "message must not be empty")
	}

	prefs, memories, err := s.promptContext(ctx, username)
	if err != nil {
		return nil, err
	}

	created := false
	if conversationID == "" {
		conv, err := s.stores.Conversations.Create(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conv.ID
		created = true
		s.logger.Info().Str("user", username).Str("conversation", conv.ID).Msg("Conversation created")
	}

	userTurn := store.Turn{Role: store.RoleUser, Content: text}
	conv, err := s.stores.Conversations.AppendTurn(ctx, username, conversationID, userTurn)
	if err != nil {
		if created {
			if derr := s.stores.Conversations.Delete(context.WithoutCancel(ctx), username, conversationID); derr != nil {
				s.logger.Warn().Err(derr).Str("conversation", conversationID).Msg("Failed to remove empty conversation")
			}
		}
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	return s.reply(ctx, username, prefs, memories, conv)
}

// RegenerateLast drops the trailing assistant turn and asks for a new reply
// to the user turn before it.
func (s *ChatService) RegenerateLast(ctx context.Context, username, conversationID string) (*Exchange, error) {
	prefs, memories, err := s.promptContext(ctx, username)
	if err != nil {
		return nil, err
	}

	conv, removed, err := s.stores.Conversations.PopAssistantTurn(ctx, username, conversationID)
	if err != nil {
		return nil, err
	}
	n := len(conv.Messages)
	if n == 0 || conv.Messages[n-1].Role != store.RoleUser {
		return nil, store.NewValidationError("conversation", "there is no user message to regenerate a reply for")
	}
	if removed && s.audio != nil {
		if err := s.audio.Delete(ctx, storage.AudioKey(username, conv.ID, n)); err != nil {
			s.logger.Warn().Err(err).Str("conversation", conv.ID).Msg("Failed to delete cached audio")
		}
	}
	s.logger.Info().Str("user", username).Str("conversation", conv.ID).Bool("replaced", removed).Msg("Regenerating reply")

	return s.reply(ctx, username, prefs, memories, conv)
}

// promptContext loads what the prompt needs besides the transcript. It runs
// before anything is written so a failed read leaves no partial exchange.
func (s *ChatService) promptContext(ctx context.Context, username string) (store.Preferences, []store.MemoryItem, error) {
	prefs, err := s.stores.Preferences.Get(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if !prefs.MemoryEnabled() {
		return prefs, nil, nil
	}
	memories, err := s.stores.Memories.Recent(ctx, username, s.memoryLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load memories: %w", err)
	}
	return prefs, memories, nil
}

// reply runs the remote call for the transcript in conv, whose last turn is
// the user's.
func (s *ChatService) reply(ctx context.Context, username string, prefs store.Preferences, memories []store.MemoryItem, conv *store.Conversation) (*Exchange, error) {
	exch := &Exchange{UserTurn: conv.Messages[len(conv.Messages)-1]}

	model := prefs.Model()
	req := CompletionRequest{
		Model:       model,
		Messages:    buildPrompt(prefs, memories, conv.Messages, s.historyWindow),
		MaxTokens:   prefs.MaxTokens(),
		Temperature: prefs.Temperature(),
		User:        username,
	}

	completion, callErr := s.completions.Complete(ctx, req)

	// the reply is recorded even if the caller went away during the call
	persistCtx := context.WithoutCancel(ctx)

	assistant := store.Turn{Role: store.RoleAssistant, Model: model}
	if callErr != nil {
		s.logger.Warn().Err(callErr).Str("user", username).Str("conversation", conv.ID).Str("model", model).Msg("Completion failed")
		assistant.Content = diagnostic(callErr)
		assistant.Error = true
		exch.Failed = true
	} else {
		assistant.Content = completion.Text
		assistant.TokensUsed = completion.TokensUsed
	}

	conv, err := s.stores.Conversations.AppendTurn(persistCtx, username, conv.ID, assistant)
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	exch.Conversation = conv
	exch.AssistantTurn = conv.Messages[len(conv.Messages)-1]

	if exch.Failed {
		return exch, nil
	}

	if _, err := s.stores.Stats.Record(persistCtx, username, 1, completion.TokensUsed, model); err != nil {
		s.logger.Error().Err(err).Str("user", username).Msg("Failed to record usage")
		exch.Warnings = append(exch.Warnings, "Usage statistics could not be saved.")
	}

	if prefs.TTSEnabled() {
		s.speak(persistCtx, username, prefs.Voice(), exch)
	}

	s.logger.Info().
		Str("user", username).
		Str("conversation", conv.ID).
		Str("model", model).
		Int("tokens", completion.TokensUsed).
		Msg("Exchange completed")
	return exch, nil
}

// speak synthesizes the assistant turn of exch and stores the clip. Any
// failure only adds a warning.
func (s *ChatService) speak(ctx context.Context, username, voice string, exch *Exchange) {
	if s.speech == nil {
		exch.Warnings = append(exch.Warnings, "Text-to-speech is not available.")
		return
	}

	audio, err := s.speech.Synthesize(ctx, exch.AssistantTurn.Content, voice)
	if err != nil {
		s.logger.Warn().Err(err).Str("user", username).Msg("Speech synthesis failed")
		exch.Warnings = append(exch.Warnings, "TTS failed: "+err.Error())
		return
	}
	if s.audio == nil {
		return
	}

	key := storage.AudioKey(username, exch.Conversation.ID, len(exch.Conversation.Messages)-1)
	if err := s.audio.PutAudio(ctx, key, audio); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to store speech audio")
		exch.Warnings = append(exch.Warnings, "Audio could not be saved.")
		return
	}
	exch.AudioKey = key
}

func (s *ChatService) Conversations(ctx context.Context, username string) ([]store.ConversationSummary, error) {
	return s.stores.Conversations.List(ctx, username)
}

func (s *ChatService) Conversation(ctx context.Context, username, id string) (*store.Conversation, error) {
	return s.stores.Conversations.Get(ctx, username, id)
}

func (s *ChatService) CreateConversation(ctx context.Context, username string) (*store.Conversation, error) {
	return s.stores.Conversations.Create(ctx, username)
}

func (s *ChatService) RenameConversation(ctx context.Context, username, id, title string) (*store.Conversation, error) {
	return s.stores.Conversations.Rename(ctx, username, id, title)
}

// DeleteConversation removes the transcript and any audio cached for it.
func (s *ChatService) DeleteConversation(ctx context.Context, username, id string) error {
	conv, err := s.stores.Conversations.Get(ctx, username, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.stores.Conversations.Delete(ctx, username, id); err != nil {
		return err
	}
	if s.audio != nil {
		for i, t := range conv.Messages {
			if t.Role != store.RoleAssistant {
				continue
			}
			if err := s.audio.Delete(ctx, storage.AudioKey(username, id, i)); err != nil {
				s.logger.Warn().Err(err).Str("conversation", id).Msg("Failed to delete cached audio")
			}
		}
	}
	return nil
}

// Audio returns the cached speech for turn of a conversation.
func (s *ChatService) Audio(ctx context.Context, username, id string, turn int) ([]byte, error) {
	conv, err := s.stores.Conversations.Get(ctx, username, id)
	if err != nil {
		return nil, err
	}
	if s.audio == nil || turn < 0 || turn >= len(conv.Messages) || conv.Messages[turn].Role != store.RoleAssistant {
		return nil, store.ErrNotFound
	}
	audio, err := s.audio.GetAudio(ctx, storage.AudioKey(username, id, turn))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, store.ErrNotFound
	}
	return audio, err
}

// Transcribe turns recorded speech into text for the message box.
func (s *ChatService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if s.speech == nil {
		return "", ErrSpeechUnavailable
	}
	if len(audio) == 0 {
		return "", store.NewValidationError("file", "audio file is empty")
	}
	return s.speech.Transcribe(ctx, audio, filename)
}

func (s *ChatService) Preferences(ctx context.Context, username string) (store.Preferences, error) {
	return s.stores.Preferences.Get(ctx, username)
}

func (s *ChatService) UpdatePreferences(ctx context.Context, username string, partial map[string]any) (store.Preferences, error) {
	return s.stores.Preferences.Update(ctx, username, partial)
}

func (s *ChatService) Stats(ctx context.Context, username string) (*store.UsageStats, error) {
	return s.stores.Stats.Get(ctx, username)
}

func (s *ChatService) Memories(ctx context.Context, username string) ([]store.MemoryItem, error) {
	return s.stores.Memories.List(ctx, username)
}

func (s *ChatService) Remember(ctx context.Context, username, text string) (store.MemoryItem, error) {
	return s.stores.Memories.Add(ctx, username, text)
}

func (s *ChatService) ForgetAll(ctx context.Context, username string) error {
	return s.stores.Memories.Clear(ctx, username)
}
