package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const (
	usersDocument         = "users.json"
	sessionsDocument      = "sessions.json"
	conversationsDocument = "conversations.json"
	statsDocument         = "stats.json"
	memoriesDocument      = "memories.json"
)

// errNoChange aborts an update without rewriting the document.
var errNoChange = errors.New("no change")

// document is one JSON object persisted wholesale through a Backend. Every
// read-modify-write holds mu, so writers inside this process never lose
// each other's updates.
type document[V any] struct {
	name    string
	backend Backend
	strict  bool
	logger  zerolog.Logger
	mu      sync.Mutex
}

func newDocument[V any](name string, backend Backend, o *options) *document[V] {
	return &document[V]{
		name:    name,
		backend: backend,
		strict:  o.strict,
		logger:  o.logger.With().Str("document", name).Logger(),
	}
}

// load decodes the document. Missing documents are empty. Unreadable or
// malformed ones are empty too unless the store is strict.
func (d *document[V]) load(ctx context.Context) (map[string]V, error) {
	data, err := d.backend.Read(ctx, d.name)
	if err != nil {
		if d.strict {
			return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, d.name, err)
		}
		d.logger.Warn().Err(err).Msg("Failed to read document, treating it as empty")
		return map[string]V{}, nil
	}

	docs := map[string]V{}
	if len(bytes.TrimSpace(data)) == 0 {
		return docs, nil
	}
	if err := json.Unmarshal(data, &docs); err != nil {
		if d.strict {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, d.name, err)
		}
		d.logger.Warn().Err(err).Msg("Malformed document, treating it as empty")
		return map[string]V{}, nil
	}
	if docs == nil {
		docs = map[string]V{}
	}
	return docs, nil
}

func (d *document[V]) save(ctx context.Context, docs map[string]V) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("failed to encode %s: %w", d.name, err)
	}

	if err := d.backend.Write(ctx, d.name, buf.Bytes()); err != nil {
		d.logger.Error().Err(err).Msg("Failed to write document")
		return fmt.Errorf("%w: write %s: %w", ErrStorage, d.name, err)
	}
	return nil
}

func (d *document[V]) view(ctx context.Context, fn func(docs map[string]V) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	docs, err := d.load(ctx)
	if err != nil {
		return err
	}
	return fn(docs)
}

// update runs fn on the current document and writes the result back. fn may
// return errNoChange to skip the write.
func (d *document[V]) update(ctx context.Context, fn func(docs map[string]V) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	docs, err := d.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(docs); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	return d.save(ctx, docs)
}
