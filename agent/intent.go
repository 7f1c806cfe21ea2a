package agent

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dtessler/coxswain/tool"
)

// ToolCall is a synthesized intent extracted from assistant text. Created
// transiently per step; only its textual result is kept in memory.
type ToolCall struct {
	ID   string
	Name string
	Args tool.Args
}

// IntentExtractor derives tool calls from the assistant's raw text. The
// default is keyword matching; implementations backed by structured
// function-calling can replace it without touching the loop.
type IntentExtractor interface {
	Extract(assistantText string) []ToolCall
}

// KeywordExtractor synthesizes tool calls from static templates when the
// assistant text mentions a capability by keyword, in English or Chinese.
// It matches on output text, not on the model's structured intent.
type KeywordExtractor struct{}

type keywordRule struct {
	triggers []string
	name     string
	args     func() tool.Args
}

var keywordRules = []keywordRule{
	{
		triggers: []string{"file", "文件"},
		name:     "file_operation",
		args: func() tool.Args {
			return tool.Args{"operation": "list", "path": "."}
		},
	},
	{
		triggers: []string{"python", "代码"},
		name:     "python_execute",
		args: func() tool.Args {
			return tool.Args{"code": `print("Hello from the agent")`}
		},
	},
	{
		triggers: []string{"search", "搜索"},
		name:     "web_search",
		args: func() tool.Args {
			return tool.Args{"query": "latest developments", "max_results": 5}
		},
	},
}

// Extract scans the text for keyword triggers and returns at most one call
// per matched capability, in rule order.
func (KeywordExtractor) Extract(assistantText string) []ToolCall {
	lower := strings.ToLower(assistantText)

	var calls []ToolCall
	for _, rule := range keywordRules {
		for _, trigger := range rule.triggers {
			if strings.Contains(lower, trigger) {
				calls = append(calls, ToolCall{
					ID:   uuid.NewString(),
					Name: rule.name,
					Args: rule.args(),
				})
				break
			}
		}
	}
	return calls
}
