package store

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const DefaultConversationTitle = "New Chat"

type User struct {
	Username     string      `json:"-"` // key of the users document
	PasswordHash string      `json:"password_hash"`
	Salt         string      `json:"salt"`
	CreatedAt    time.Time   `json:"created_at"`
	LastLogin    *time.Time  `json:"last_login"`
	Email        string      `json:"email,omitempty"`
	Preferences  Preferences `json:"preferences"`
}

type Session struct {
	Token     string    `json:"-"` // key of the sessions document
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Conversation struct {
	ID          string    `json:"id"`
	Owner       string    `json:"-"`
	Title       string    `json:"title"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
	Messages    []Turn    `json:"messages"`
}

// MessageCount is the number of exchanged turn pairs shown in listings.
func (c *Conversation) MessageCount() int {
	return len(c.Messages) / 2
}

func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Title:        c.Title,
		Created:      c.Created,
		LastUpdated:  c.LastUpdated,
		MessageCount: c.MessageCount(),
	}
}

type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Created      time.Time `json:"created"`
	LastUpdated  time.Time `json:"last_updated"`
	MessageCount int       `json:"message_count"`
}

type Turn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	Model      string    `json:"model,omitempty"`
	// Error marks an assistant turn that reports a failed completion call.
	Error bool `json:"error,omitempty"`
}

type MemoryItem struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type UsageBucket struct {
	Messages int `json:"messages"`
	Tokens   int `json:"tokens"`
}

type UsageStats struct {
	TotalMessages   int                     `json:"total_messages"`
	TotalTokensUsed int                     `json:"total_tokens_used"`
	FavoriteModel   string                  `json:"favorite_model"`
	DailyUsage      OrderedMap[UsageBucket] `json:"daily_usage"`
	MonthlyUsage    OrderedMap[UsageBucket] `json:"monthly_usage"`
	ModelUsage      OrderedMap[int]         `json:"model_usage"`
	MostActiveDay   string                  `json:"most_active_day"`
}
