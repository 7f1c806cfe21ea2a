package tool

import "context"

// terminateAck is the fixed acknowledgement returned by the terminate tool.
// It is a conversational signal to the model, not a process-level kill
// switch; the loop's completion check decides when to actually stop.
const terminateAck = "The interaction has been completed."

// TerminateTool signals that the model considers the task finished.
type TerminateTool struct{}

// NewTerminateTool creates a TerminateTool.
func NewTerminateTool() *TerminateTool { return &TerminateTool{} }

func (TerminateTool) Name() string { return "terminate" }

func (TerminateTool) Description() string {
	return "Signal that the current task is complete."
}

func (TerminateTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type":        "string",
				"description": "Completion status, e.g. \"success\".",
			},
		},
	}
}

func (TerminateTool) Execute(_ context.Context, _ Args) (string, error) {
	return terminateAck, nil
}
