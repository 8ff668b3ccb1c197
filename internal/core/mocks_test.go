package core

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gwi.com/nova-chat/internal/auth"
	"gwi.com/nova-chat/internal/storage"
	"gwi.com/nova-chat/internal/store"
)

type MockCompletionService struct {
	mock.Mock
}

func (m *MockCompletionService) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	args := m.Called(ctx, req)
	if c := args.Get(0); c != nil {
		return c.(*Completion), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSpeechService struct {
	mock.Mock
}

func (m *MockSpeechService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	args := m.Called(ctx, text, voice)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSpeechService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	args := m.Called(ctx, audio, filename)
	return args.String(0), args.Error(1)
}

func newTestStores(t *testing.T) *store.Stores {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	s := store.New(backend)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestAudio(t *testing.T) *storage.Storage {
	t.Helper()
	disk, err := storage.NewDiskStorage(t.TempDir(), "")
	require.NoError(t, err)
	return storage.NewStorage(disk)
}

func newTestAccounts(t *testing.T, stores *store.Stores) *AccountService {
	t.Helper()
	return NewAccountService(stores, auth.NewTokenSigner("test-secret"), zerolog.Nop())
}

// createUser signs up username with a valid password.
func createUser(t *testing.T, stores *store.Stores, username string) {
	t.Helper()
	_, err := stores.Credentials.CreateUser(context.Background(), username, "Secret123!", "")
	require.NoError(t, err)
}

// rejectingBackend refuses writes whose payload contains reject and passes
// everything else to a file backend.
type rejectingBackend struct {
	store.Backend
	reject []byte
}

func (b *rejectingBackend) Write(ctx context.Context, name string, data []byte) error {
	if bytes.Contains(data, b.reject) {
		return errors.New("disk full")
	}
	return b.Backend.Write(ctx, name, data)
}

func newRejectingStores(t *testing.T, reject string) *store.Stores {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	s := store.New(&rejectingBackend{Backend: backend, reject: []byte(reject)})
	t.Cleanup(func() { _ = s.Close() })
	return s
}
