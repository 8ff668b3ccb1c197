// Package store holds the persistent state of the chat app: credentials,
// sessions, conversations, preferences, memories and usage statistics. Each
// concern is a JSON document rewritten wholesale through a Backend.
package store

import (
	"time"

	"github.com/rs/zerolog"
)

type options struct {
	now           func() time.Time
	strict        bool
	logger        zerolog.Logger
	sessionTTL    time.Duration
	policy        CredentialPolicy
	defaultModel  string
	allowedModels []string
}

type Option func(*options)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStrict makes malformed documents fail with ErrCorruptStore instead of
// being read as empty.
func WithStrict(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(o *options) { o.sessionTTL = ttl }
}

func WithCredentialPolicy(p CredentialPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithModels sets the default model for new users and the models a
// preference update may select. An empty allowed list accepts any model.
func WithModels(defaultModel string, allowed []string) Option {
	return func(o *options) {
		o.defaultModel = defaultModel
		o.allowedModels = allowed
	}
}

// Stores bundles every store built on one backend.
type Stores struct {
	Credentials   *CredentialStore
	Preferences   *PreferenceStore
	Sessions      *SessionStore
	Conversations *ConversationStore
	Memories      *MemoryStore
	Stats         *StatsStore

	backend Backend
}

func New(backend Backend, opts ...Option) *Stores {
	o := &options{
		now:          time.Now,
		logger:       zerolog.Nop(),
		sessionTTL:   24 * time.Hour,
		policy:       DefaultCredentialPolicy(),
		defaultModel: DefaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	users := newDocument[*User](usersDocument, backend, o)

	return &Stores{
		Credentials:   &CredentialStore{users: users, now: o.now, policy: o.policy, defaultModel: o.defaultModel, logger: o.logger},
		Preferences:   &PreferenceStore{users: users, defaultModel: o.defaultModel, allowedModels: o.allowedModels},
		Sessions:      &SessionStore{doc: newDocument[*Session](sessionsDocument, backend, o), now: o.now, ttl: o.sessionTTL},
		Conversations: &ConversationStore{doc: newDocument[map[string]*Conversation](conversationsDocument, backend, o), now: o.now},
		Memories:      &MemoryStore{doc: newDocument[[]MemoryItem](memoriesDocument, backend, o), now: o.now},
		Stats:         &StatsStore{doc: newDocument[*UsageStats](statsDocument, backend, o), now: o.now},
		backend:       backend,
	}
}

func (s *Stores) Close() error {
	return s.backend.Close()
}
