// Package session holds per-conversation message memory and a keyed store
// that serializes access to each session.
package session

import (
	"time"

	"github.com/dtessler/coxswain/llm"
)

// Message is one entry in a session's conversation history. Messages are
// immutable once appended; append order is the only ordering guarantee.
type Message struct {
	Role       llm.Role  `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
}

// SystemMessage creates a system Message stamped now. The agent loop keeps
// its system prompt out of memory, but callers seeding a conversation by
// hand may want one.
func SystemMessage(content string) Message {
	return Message{Role: llm.RoleSystem, Content: content, Timestamp: time.Now()}
}

// UserMessage creates a user Message stamped now.
func UserMessage(content string) Message {
	return Message{Role: llm.RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantMessage creates an assistant Message stamped now.
func AssistantMessage(content string) Message {
	return Message{Role: llm.RoleAssistant, Content: content, Timestamp: time.Now()}
}

// ToolMessage creates a tool-result Message tied to a tool call.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: llm.RoleTool, Content: content, Timestamp: time.Now(), ToolCallID: toolCallID}
}

// Memory is the ordered, append-only message history of one session.
// Memory is not safe for concurrent use; Store.Acquire serializes access.
type Memory struct {
	messages []Message
}

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryFromMessages creates a Memory seeded with existing messages.
func NewMemoryFromMessages(messages []Message) *Memory {
	m := &Memory{messages: make([]Message, len(messages))}
	copy(m.messages, messages)
	return m
}

// Append adds a message to the end of the history.
func (m *Memory) Append(msg Message) {
	m.messages = append(m.messages, msg)
}

// Messages returns a copy of the history in append order.
func (m *Memory) Messages() []Message {
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the number of messages.
func (m *Memory) Len() int {
	return len(m.messages)
}

// ToLLMMessages converts the history to wire-level messages in order.
func (m *Memory) ToLLMMessages() []llm.Message {
	out := make([]llm.Message, len(m.messages))
	for i, msg := range m.messages {
		out[i] = llm.Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
	}
	return out
}
