package agent

import (
	"fmt"
	"strings"

	"github.com/dtessler/coxswain/tool"
)

// BuildSystemPrompt describes the available tools and the completion
// protocol to the model. Rebuilt every step so it always reflects the
// current registry contents.
func BuildSystemPrompt(registry *tool.Registry, language string) string {
	var b strings.Builder

	if language == "zh" {
		b.WriteString("你是一个能够使用工具完成任务的智能助手。\n\n")
		b.WriteString("可用工具：\n")
	} else {
		b.WriteString("You are an assistant that completes tasks using the tools available to you.\n\n")
		b.WriteString("Available tools:\n")
	}

	for _, t := range registry.All() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}

	if language == "zh" {
		b.WriteString("\n逐步完成任务。需要使用工具时，在回复中说明要使用的工具。")
		b.WriteString("任务完成后，在回复中包含“任务完成”。")
	} else {
		b.WriteString("\nWork through the task step by step. When you need a tool, say which tool you are using in your reply. ")
		b.WriteString(`When the task is done, include the phrase "task completed" in your reply.`)
	}

	return b.String()
}
