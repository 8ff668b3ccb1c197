// Package storage keeps synthesized speech audio in an object store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with the audio operations the chat
// service needs.
type Storage struct {
	backend ObjectStorage
}

func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// AudioKey names the clip of one assistant turn.
func AudioKey(username, conversationID string, turn int) string {
	return fmt.Sprintf("audio/%s/%s/%d.mp3", username, conversationID, turn)
}

// PutAudio uploads an MP3 clip under key.
func (s *Storage) PutAudio(ctx context.Context, key string, audio []byte) error {
	if err := s.backend.Put(ctx, key, bytes.NewReader(audio), int64(len(audio)), "audio/mpeg"); err != nil {
		return fmt.Errorf("failed to store audio %s: %w", key, err)
	}
	return nil
}

// GetAudio reads a whole clip into memory.
func (s *Storage) GetAudio(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
