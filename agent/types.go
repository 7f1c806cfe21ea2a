// Package agent runs the step loop that turns a user task into LLM calls
// and tool dispatches.
package agent

import "github.com/dtessler/coxswain/llm"

// ExecutionResult describes one ExecuteTask invocation. It is owned by the
// caller after return and never persisted.
type ExecutionResult struct {
	SessionID   string     `json:"session_id"`
	Steps       []string   `json:"steps"`
	Completed   bool       `json:"completed"`
	FinalResult string     `json:"final_result,omitempty"`
	Err         string     `json:"error,omitempty"`
	Usage       *llm.Usage `json:"usage,omitempty"`
}

// Options tunes a single ExecuteTask call. Zero values fall back to the
// service defaults.
type Options struct {
	// MaxSteps bounds the number of loop iterations.
	MaxSteps int

	// Model overrides the default model for this task.
	Model string

	// UserID is recorded with the persisted history.
	UserID string

	// Stream, when set, switches LLM calls to streaming and receives each
	// content delta as it arrives.
	Stream llm.StreamCallback
}
