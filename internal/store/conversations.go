package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// titleMaxRunes is the title cut-off; the "..." suffix is not counted.
const titleMaxRunes = 30

// DeriveTitle builds a conversation title from the first user message:
// whitespace collapsed, cut to 30 characters with "..." appended when cut.
func DeriveTitle(content string) string {
	text := strings.Join(strings.Fields(content), " ")
	runes := []rune(text)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes]) + "..."
	}
	return text
}

// ConversationStore keeps transcripts keyed by owner and conversation id.
type ConversationStore struct {
	doc *document[map[string]*Conversation]
	now func() time.Time
}

func (s *ConversationStore) Create(ctx context.Context, owner string) (*Conversation, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, invalid("owner", "owner is required")
	}
	now := s.now()
	conv := &Conversation{
		ID:          uuid.NewString(),
		Owner:       owner,
		Title:       DefaultConversationTitle,
		Created:     now,
		LastUpdated: now,
		Messages:    []Turn{},
	}

	err := s.doc.update(ctx, func(all map[string]map[string]*Conversation) error {
		if all[owner] == nil {
			all[owner] = map[string]*Conversation{}
		}
		all[owner][conv.ID] = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationStore) Get(ctx context.Context, owner, id string) (*Conversation, error) {
	var conv *Conversation
	err := s.doc.view(ctx, func(all map[string]map[string]*Conversation) error {
		conv = all[owner][id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	conv.Owner = owner
	return conv, nil
}

// AppendTurn adds turn at the end of the transcript. The first user turn
// names the conversation.
func (s *ConversationStore) AppendTurn(ctx context.Context, owner, id string, turn Turn) (*Conversation, error) {
	switch turn.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return nil, invalid("role", "unknown role "+string(turn.Role))
	}

	var conv *Conversation
	err := s.doc.update(ctx, func(all map[string]map[string]*Conversation) error {
		conv = all[owner][id]
		if conv == nil {
			return ErrNotFound
		}
		now := s.now()
		if turn.Timestamp.IsZero() {
			turn.Timestamp = now
		}
		conv.Messages = append(conv.Messages, turn)
		if turn.Role == RoleUser && countRole(conv.Messages, RoleUser) == 1 {
			conv.Title = DeriveTitle(turn.Content)
		}
		conv.LastUpdated = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	conv.Owner = owner
	return conv, nil
}

// PopAssistantTurn removes the trailing turn if it is an assistant turn.
// The boolean reports whether anything was removed.
func (s *ConversationStore) PopAssistantTurn(ctx context.Context, owner, id string) (*Conversation, bool, error) {
	var conv *Conversation
	removed := false
	err := s.doc.update(ctx, func(all map[string]map[string]*Conversation) error {
		conv = all[owner][id]
		if conv == nil {
			return ErrNotFound
		}
		n := len(conv.Messages)
		if n == 0 || conv.Messages[n-1].Role != RoleAssistant {
			return errNoChange
		}
		conv.Messages = conv.Messages[:n-1]
		conv.LastUpdated = s.now()
		removed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	conv.Owner = owner
	return conv, removed, nil
}

func (s *ConversationStore) Rename(ctx context.Context, owner, id, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid("title", "title is required")
	}
	var conv *Conversation
	err := s.doc.update(ctx, func(all map[string]map[string]*Conversation) error {
		conv = all[owner][id]
		if conv == nil {
			return ErrNotFound
		}
		conv.Title = title
		conv.LastUpdated = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	conv.Owner = owner
	return conv, nil
}

// List returns owner's conversations, most recently updated first.
func (s *ConversationStore) List(ctx context.Context, owner string) ([]ConversationSummary, error) {
	var summaries []ConversationSummary
	err := s.doc.view(ctx, func(all map[string]map[string]*Conversation) error {
		summaries = make([]ConversationSummary, 0, len(all[owner]))
		for _, conv := range all[owner] {
			if conv != nil {
				summaries = append(summaries, conv.Summary())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.After(b.LastUpdated)
		}
		return a.ID < b.ID
	})
	return summaries, nil
}

// Delete removes a conversation; deleting a missing one is a no-op.
func (s *ConversationStore) Delete(ctx context.Context, owner, id string) error {
	return s.doc.update(ctx, func(all map[string]map[string]*Conversation) error {
		if _, ok := all[owner][id]; !ok {
			return errNoChange
		}
		delete(all[owner], id)
		if len(all[owner]) == 0 {
			delete(all, owner)
		}
		return nil
	})
}

func (s *ConversationStore) DeleteAll(ctx context.Context, owner string) error {
	return s.doc.update(ctx, func(all map[string]map[string]*Conversation) error {
		if _, ok := all[owner]; !ok {
			return errNoChange
		}
		delete(all, owner)
		return nil
	})
}

func countRole(turns []Turn, role Role) int {
	n := 0
	for _, t := range turns {
		if t.Role == role {
			n++
		}
	}
	return n
}
