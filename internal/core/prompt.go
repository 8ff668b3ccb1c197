package core

import (
	"strings"

	"gwi.com/nova-chat/internal/store"
)

const (
	defaultHistoryWindow = 10
	defaultMemoryLimit   = 20
	diagnosticMaxRunes   = 200
	diagnosticPrefix     = "⚠️ Error: "
)

var personas = map[string]string{
	"Professional": "You are Nova, a professional AI assistant. Give precise, well-structured answers in a formal tone.",
	"Casual":       "You are Nova, a friendly AI assistant. Keep the tone relaxed and conversational.",
	"Fun":          "You are Nova, a playful AI assistant. Be upbeat and witty while still answering the question.",
}

// systemPrompt is the persona text (or the user's own override) followed by
// the remembered facts, one bullet per line.
func systemPrompt(prefs store.Preferences, memories []store.MemoryItem) string {
	var b strings.Builder
	if custom := strings.TrimSpace(prefs.SystemPrompt()); custom != "" {
		b.WriteString(custom)
	} else if persona, ok := personas[prefs.Personality()]; ok {
		b.WriteString(persona)
	} else {
		b.WriteString(personas[store.DefaultPersonality])
	}

	if prefs.MemoryEnabled() && len(memories) > 0 {
		b.WriteString("\n\nThings you remember about the user:")
		for _, m := range memories {
			b.WriteString("\n- ")
			b.WriteString(m.Text)
		}
	}
	return b.String()
}

// buildPrompt assembles the system message and the last window turns of the
// transcript. Diagnostic turns from failed calls are left out.
func buildPrompt(prefs store.Preferences, memories []store.MemoryItem, turns []store.Turn, window int) []Message {
	if window <= 0 {
		window = defaultHistoryWindow
	}

	recent := make([]store.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Error || t.Role == store.RoleSystem {
			continue
		}
		recent = append(recent, t)
	}
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	messages := make([]Message, 0, len(recent)+1)
	messages = append(messages, Message{Role: store.RoleSystem, Content: systemPrompt(prefs, memories)})
	for _, t := range recent {
		messages = append(messages, Message{Role: t.Role, Content: t.Content})
	}
	return messages
}

// diagnostic renders a failed remote call as assistant text.
func diagnostic(err error) string {
	msg := []rune(strings.TrimSpace(err.Error()))
	if len(msg) > diagnosticMaxRunes {
		msg = append(msg[:diagnosticMaxRunes], []rune("...")...)
	}
	return diagnosticPrefix + string(msg)
}
