package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source shared by the stores under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStores(t *testing.T, opts ...Option) (*Stores, *fakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)

	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s := New(backend, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock, dir
}

// failingBackend reads like an empty store and refuses every write.
type failingBackend struct{}

func (failingBackend) Read(context.Context, string) ([]byte, error) { return nil, nil }
func (failingBackend) Write(context.Context, string, []byte) error {
	return errors.New("disk full")
}
func (failingBackend) Close() error { return nil }

func TestFileBackend_MissingDocumentIsEmpty(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	data, err := b.Read(context.Background(), "nothing.json")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileBackend_WriteReplacesDocument(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "doc.json", []byte(`{"a":1}`)))
	require.NoError(t, b.Write(ctx, "doc.json", []byte(`{}`)))

	data, err := b.Read(ctx, "doc.json")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSQLiteBackend_ReadWrite(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	data, err := b.Read(ctx, "users.json")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, b.Write(ctx, "users.json", []byte(`{"a":1}`)))
	require.NoError(t, b.Write(ctx, "users.json", []byte(`{"b":2}`)))

	data, err = b.Read(ctx, "users.json")
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(data))
}

func TestStores_OnSQLiteBackend(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	s := New(b)
	defer s.Close()
	ctx := context.Background()

	_, err = s.Credentials.CreateUser(ctx, "alice", "Secret123!", "")
	require.NoError(t, err)
	assert.True(t, s.Credentials.Verify(ctx, "alice", "Secret123!"))
}

func TestDocument_MalformedIsEmptyWhenLenient(t *testing.T) {
	s, _, dir := newTestStores(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, usersDocument), []byte("{not json"), 0o600))

	_, err := s.Credentials.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Credentials.CreateUser(ctx, "alice", "Secret123!", "")
	require.NoError(t, err)
}

func TestDocument_MalformedFailsWhenStrict(t *testing.T) {
	s, _, dir := newTestStores(t, WithStrict(true))
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(dir, conversationsDocument), []byte("[]"), 0o600))

	_, err := s.Conversations.List(ctx, "alice")
	assert.ErrorIs(t, err, ErrCorruptStore)
}

func TestDocument_WriteFailureIsReported(t *testing.T) {
	s := New(failingBackend{})
	_, err := s.Conversations.Create(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrStorage)
}

func TestDocument_PrettyPrinted(t *testing.T) {
	s, _, dir := newTestStores(t)
	_, err := s.Memories.Add(context.Background(), "alice", "likes <tea> & cake")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, memoriesDocument))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"alice\": [")
	assert.Contains(t, string(data), "likes <tea> & cake")
}

func TestDocument_ConcurrentUpdatesAreNotLost(t *testing.T) {
	s, _, _ := newTestStores(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Stats.Record(ctx, "alice", 1, 10, "m1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := s.Stats.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 20, stats.TotalMessages)
	assert.Equal(t, 200, stats.TotalTokensUsed)
}
