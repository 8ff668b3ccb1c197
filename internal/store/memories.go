package store

import (
	"context"
	"strings"
	"time"
)

// MemoryStore is an append-only list of remembered facts per user.
type MemoryStore struct {
	doc *document[[]MemoryItem]
	now func() time.Time
}

func (s *MemoryStore) Add(ctx context.Context, username, text string) (MemoryItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return MemoryItem{}, invalid("text", "memory text is required")
	}
	item := MemoryItem{Text: text, Timestamp: s.now()}
	err := s.doc.update(ctx, func(all map[string][]MemoryItem) error {
		all[username] = append(all[username], item)
		return nil
	})
	if err != nil {
		return MemoryItem{}, err
	}
	return item, nil
}

func (s *MemoryStore) List(ctx context.Context, username string) ([]MemoryItem, error) {
	return s.Recent(ctx, username, 0)
}

// Recent returns the last n items in insertion order; n <= 0 returns all.
func (s *MemoryStore) Recent(ctx context.Context, username string, n int) ([]MemoryItem, error) {
	var items []MemoryItem
	err := s.doc.view(ctx, func(all map[string][]MemoryItem) error {
		items = all[username]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	if items == nil {
		items = []MemoryItem{}
	}
	return items, nil
}

func (s *MemoryStore) Clear(ctx context.Context, username string) error {
	return s.doc.update(ctx, func(all map[string][]MemoryItem) error {
		if _, ok := all[username]; !ok {
			return errNoChange
		}
		delete(all, username)
		return nil
	})
}
