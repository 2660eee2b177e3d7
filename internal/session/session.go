// Package session provides conversation session management.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/KafClaw/agentcore/internal/provider"
)

// Message is one chat message with its persistence timestamp.
type Message struct {
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	ToolCalls  []provider.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	Timestamp  time.Time           `json:"timestamp,omitempty"`
}

// Provider converts to the provider wire form.
func (m Message) Provider() provider.Message {
	return provider.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
}

// Session is one conversation.
type Session struct {
	Key       string         `json:"key"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	mu        sync.RWMutex
}

// NewSession creates a session with the given key.
func NewSession(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}
}

// AddMessage appends a plain message.
func (s *Session) AddMessage(role, content string) {
	s.Append(Message{Role: role, Content: content})
}

// AddProviderMessage appends a provider message, keeping tool call wiring.
func (s *Session) AddProviderMessage(msg provider.Message) {
	s.Append(Message{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCalls:  msg.ToolCalls,
		ToolCallID: msg.ToolCallID,
	})
}

// Append adds a message, stamping it.
func (s *Session) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.Timestamp = time.Now()
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// SetMessages replaces the history, e.g. after a prune pass.
func (s *Session) SetMessages(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append([]Message{}, messages...)
	s.UpdatedAt = time.Now()
}

// History returns up to maxMessages of the most recent history. A
// non-positive limit returns everything.
func (s *Session) History(maxMessages int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if maxMessages <= 0 || len(s.Messages) <= maxMessages {
		result := make([]Message, len(s.Messages))
		copy(result, s.Messages)
		return result
	}
	result := make([]Message, maxMessages)
	copy(result, s.Messages[len(s.Messages)-maxMessages:])
	return result
}

// ProviderHistory returns the full history in provider wire form.
func (s *Session) ProviderHistory() []provider.Message {
	history := s.History(0)
	out := make([]provider.Message, len(history))
	for i, msg := range history {
		out[i] = msg.Provider()
	}
	return out
}

// Clear removes all messages.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = []Message{}
	s.UpdatedAt = time.Now()
}

// GetMetadata returns a metadata value by key.
func (s *Session) GetMetadata(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Metadata == nil {
		return nil, false
	}
	val, ok := s.Metadata[key]
	return val, ok
}

// SetMetadata sets a metadata value by key.
func (s *Session) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	s.Metadata[key] = value
	s.UpdatedAt = time.Now()
}

// Manager persists sessions as JSONL files.
type Manager struct {
	sessionsDir string
	cache       map[string]*Session
	mu          sync.RWMutex
}

// NewManager creates a session manager rooted at dir. An empty dir uses
// ~/.agentcore/sessions.
func NewManager(dir string) *Manager {
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".agentcore", "sessions")
	}
	os.MkdirAll(dir, 0755)
	return &Manager{
		sessionsDir: dir,
		cache:       make(map[string]*Session),
	}
}

// GetOrCreate returns an existing session or creates a new one.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.cache[key]; ok {
		return session
	}
	session := m.load(key)
	if session == nil {
		session = NewSession(key)
	}
	m.cache[key] = session
	return session
}

// Save persists a session to disk.
func (m *Manager) Save(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.sessionPath(session.Key)

	session.mu.RLock()
	defer session.mu.RUnlock()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer file.Close()

	// Metadata goes on the first line, messages follow one per line.
	meta := map[string]any{
		"_type":      "metadata",
		"created_at": session.CreatedAt.Format(time.RFC3339),
		"updated_at": session.UpdatedAt.Format(time.RFC3339),
		"metadata":   session.Metadata,
	}
	metaLine, _ := json.Marshal(meta)
	file.WriteString(string(metaLine) + "\n")

	for _, msg := range session.Messages {
		msgLine, _ := json.Marshal(msg)
		file.WriteString(string(msgLine) + "\n")
	}

	m.cache[session.Key] = session
	return nil
}

// Delete removes a session.
func (m *Manager) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, key)
	if err := os.Remove(m.sessionPath(key)); err != nil {
		return false
	}
	return true
}

// Info contains metadata about a stored session.
type Info struct {
	Key       string
	CreatedAt time.Time
	UpdatedAt time.Time
	Path      string
}

// List returns information about all stored sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []Info
	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		return sessions
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(m.sessionsDir, entry.Name())
		key := strings.ReplaceAll(strings.TrimSuffix(entry.Name(), ".jsonl"), "_", ":")
		info := Info{Key: key, Path: path}

		if meta := readFirstLine(path); meta != nil {
			if created, ok := meta["created_at"].(string); ok {
				info.CreatedAt, _ = time.Parse(time.RFC3339, created)
			}
			if updated, ok := meta["updated_at"].(string); ok {
				info.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
			}
		}
		sessions = append(sessions, info)
	}
	return sessions
}

func readFirstLine(path string) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	line := data
	if idx := strings.IndexByte(string(data), '\n'); idx >= 0 {
		line = data[:idx]
	}
	var meta map[string]any
	if json.Unmarshal(line, &meta) != nil {
		return nil
	}
	return meta
}

func (m *Manager) sessionPath(key string) string {
	safeKey := strings.ReplaceAll(key, ":", "_")
	// Strip path separators and traversal components to prevent path injection.
	safeKey = strings.ReplaceAll(safeKey, "/", "_")
	safeKey = strings.ReplaceAll(safeKey, "\\", "_")
	safeKey = strings.ReplaceAll(safeKey, "..", "_")
	return filepath.Join(m.sessionsDir, filepath.Base(safeKey)+".jsonl")
}

func (m *Manager) load(key string) *Session {
	file, err := os.Open(m.sessionPath(key))
	if err != nil {
		return nil
	}
	defer file.Close()

	session := NewSession(key)
	decoder := json.NewDecoder(file)
	for decoder.More() {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			break
		}

		var check map[string]any
		if json.Unmarshal(raw, &check) == nil && check["_type"] == "metadata" {
			if created, ok := check["created_at"].(string); ok {
				session.CreatedAt, _ = time.Parse(time.RFC3339, created)
			}
			if updated, ok := check["updated_at"].(string); ok {
				session.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
			}
			if meta, ok := check["metadata"].(map[string]any); ok {
				session.Metadata = meta
			}
			continue
		}

		var msg Message
		if json.Unmarshal(raw, &msg) == nil {
			session.Messages = append(session.Messages, msg)
		}
	}
	return session
}
