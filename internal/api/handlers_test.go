package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gwi.com/nova-chat/internal/auth"
	"gwi.com/nova-chat/internal/core"
	"gwi.com/nova-chat/internal/store"
)

type mockCompletion struct {
	mock.Mock
}

func (m *mockCompletion) Complete(ctx context.Context, req core.CompletionRequest) (*core.Completion, error) {
	args := m.Called(ctx, req)
	if c := args.Get(0); c != nil {
		return c.(*core.Completion), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSpeech struct {
	mock.Mock
}

func (m *mockSpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	args := m.Called(ctx, text, voice)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockSpeech) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	args := m.Called(ctx, audio, filename)
	return args.String(0), args.Error(1)
}

type testServer struct {
	*httptest.Server
	completions *mockCompletion
	speech      *mockSpeech
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	stores := store.New(backend)
	t.Cleanup(func() { _ = stores.Close() })

	completions := new(mockCompletion)
	speech := new(mockSpeech)
	accounts := core.NewAccountService(stores, auth.NewTokenSigner("test-secret"), zerolog.Nop())
	chat := core.NewChatService(stores, completions, core.WithSpeech(speech, nil))

	srv := httptest.NewServer(NewRouter(NewAPIHandler(accounts, chat), zerolog.Nop()))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, completions: completions, speech: speech}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) signup(t *testing.T, username string) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/signup", "", core.SignupRequest{
		Username: username, Password: "Secret123!", ConfirmPassword: "Secret123!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[core.LoginResult](t, resp).Token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Request-Id"))
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice")

	resp := s.do(t, http.MethodPost, "/api/signup", "", core.SignupRequest{Username: "alice", Password: "Secret123!", ConfirmPassword: "Secret123!"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/signup", "", core.SignupRequest{Username: "bob", Password: "weak", ConfirmPassword: "weak"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "password", decode[ErrorResponse](t, resp).Field)

	resp = s.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "nope-nope1!"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "Secret123!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[core.LoginResult](t, resp).Token)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/conversations", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := s.signup(t, "alice")
	resp = s.do(t, http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/conversations", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	s.completions.On("Complete", mock.Anything, mock.Anything).
		Return(&core.Completion{Text: "Hi there!", TokensUsed: 10}, nil).Once()

	resp := s.do(t, http.MethodPost, "/api/messages", token, PostMessageRequest{Content: "Hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	exch := decode[core.Exchange](t, resp)
	assert.Equal(t, "Hi there!", exch.AssistantTurn.Content)
	convID := exch.Conversation.ID

	resp = s.do(t, http.MethodGet, "/api/conversations", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]store.ConversationSummary](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "Hello", list[0].Title)
	assert.Equal(t, 1, list[0].MessageCount)

	resp = s.do(t, http.MethodGet, "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, stats["total_messages"])
	assert.EqualValues(t, 10, stats["total_tokens_used"])

	s.completions.On("Complete", mock.Anything, mock.Anything).
		Return(nil, &core.RemoteError{Service: "completion", Kind: core.KindServer, StatusCode: 500, Message: "boom"}).Once()
	resp = s.do(t, http.MethodPost, "/api/conversations/"+convID+"/messages", token, PostMessageRequest{Content: "again"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "remote failures are turns, not HTTP errors")
	exch = decode[core.Exchange](t, resp)
	assert.True(t, exch.Failed)

	resp = s.do(t, http.MethodPatch, "/api/conversations/"+convID, token, RenameRequest{Title: "Greetings"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Greetings", decode[store.Conversation](t, resp).Title)

	resp = s.do(t, http.MethodDelete, "/api/conversations/"+convID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/api/conversations/"+convID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostMessage_Validation(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	resp := s.do(t, http.MethodPost, "/api/messages", token, PostMessageRequest{Content: "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "content", decode[ErrorResponse](t, resp).Field)

	resp = s.do(t, http.MethodPost, "/api/conversations/missing/messages", token, PostMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreferences(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	resp := s.do(t, http.MethodPatch, "/api/preferences", token, map[string]any{"theme": "light", "max_tokens": 2000})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/preferences", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prefs := decode[map[string]any](t, resp)
	assert.Equal(t, "light", prefs["theme"])
	assert.EqualValues(t, 2000, prefs["max_tokens"])

	resp = s.do(t, http.MethodPatch, "/api/preferences", token, map[string]any{"temperature": 3})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "temperature", decode[ErrorResponse](t, resp).Field)
}

func TestMemories(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	resp := s.do(t, http.MethodPost, "/api/memories", token, MemoryRequest{Text: "likes tea"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/memories", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]store.MemoryItem](t, resp), 1)

	resp = s.do(t, http.MethodDelete, "/api/memories", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTranscribe(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "clip.webm")
	require.NoError(t, err)
	_, _ = part.Write([]byte("webm"))
	require.NoError(t, form.Close())

	s.speech.On("Transcribe", mock.Anything, []byte("webm"), "clip.webm").Return("hello nova", nil).Once()

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/speech/transcribe", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello nova", decode[TranscriptionResponse](t, resp).Text)
}

func TestDeleteAccount(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "alice")

	resp := s.do(t, http.MethodDelete, "/api/account", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "Secret123!"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
