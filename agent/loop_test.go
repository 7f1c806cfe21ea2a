package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dtessler/coxswain/llm"
	"github.com/dtessler/coxswain/tool"
)

// scriptedAdapter replays a fixed sequence of responses, one per call.
type scriptedAdapter struct {
	responses []scriptedResponse
	calls     int
	requests  []llm.Request
	streamed  bool
}

type scriptedResponse struct {
	content string
	finish  llm.FinishReason
	usage   llm.Usage
	err     error
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) next() (*llm.Response, error) {
	i := a.calls
	if i >= len(a.responses) {
		i = len(a.responses) - 1
	}
	a.calls++
	r := a.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{
		Content:      r.content,
		FinishReason: r.finish,
		Usage:        r.usage,
		Provider:     "scripted",
	}, nil
}

func (a *scriptedAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	a.requests = append(a.requests, req)
	return a.next()
}

func (a *scriptedAdapter) Stream(ctx context.Context, req llm.Request, cb llm.StreamCallback) (*llm.Response, error) {
	a.requests = append(a.requests, req)
	a.streamed = true
	resp, err := a.next()
	if err != nil {
		return nil, err
	}
	cb(resp.Content)
	return resp, nil
}

// echoTool records its invocations and returns a fixed result.
type echoTool struct {
	name     string
	result   string
	err      error
	panicMsg string
	calls    int
}

func (e *echoTool) Name() string           { return e.name }
func (e *echoTool) Description() string    { return "test tool" }
func (e *echoTool) Schema() map[string]any { return map[string]any{"type": "object"} }

func (e *echoTool) Execute(ctx context.Context, args tool.Args) (string, error) {
	e.calls++
	if e.panicMsg != "" {
		panic(e.panicMsg)
	}
	return e.result, e.err
}

// staticExtractor returns the same calls for every step that mentions
// "tool", and nothing otherwise.
type staticExtractor struct {
	calls []ToolCall
}

func (s staticExtractor) Extract(text string) []ToolCall {
	if strings.Contains(strings.ToLower(text), "tool") {
		return s.calls
	}
	return nil
}

func newTestService(t *testing.T, adapter *scriptedAdapter, opts ...ServiceOption) *Service {
	t.Helper()
	client := llm.NewClient(llm.WithProvider("scripted", adapter))
	registry := tool.NewRegistry()
	return NewService(client, registry, opts...)
}

func TestExecuteTaskCompletionPhrase(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "All done here. Task Completed.", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)

	result := svc.ExecuteTask(context.Background(), "s1", "do the thing", Options{})

	if !result.Completed {
		t.Error("expected Completed")
	}
	if result.FinalResult != "All done here. Task Completed." {
		t.Errorf("FinalResult = %q", result.FinalResult)
	}
	if len(result.Steps) != 1 {
		t.Errorf("Steps = %v", result.Steps)
	}
	if result.Err != "" {
		t.Errorf("Err = %q", result.Err)
	}
}

func TestExecuteTaskChineseCompletionPhrase(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "已经处理完毕，任务完成。", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter, WithLanguage("zh"))

	result := svc.ExecuteTask(context.Background(), "s1", "做这件事", Options{})
	if !result.Completed {
		t.Error("expected Completed for Chinese completion phrase")
	}
}

func TestExecuteTaskStopFinishReason(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "Here is the answer.", finish: llm.FinishStop},
	}}
	svc := newTestService(t, adapter)

	result := svc.ExecuteTask(context.Background(), "s1", "answer me", Options{})
	if !result.Completed {
		t.Error("stop finish reason should complete the task")
	}
	if result.FinalResult != "Here is the answer." {
		t.Errorf("FinalResult = %q", result.FinalResult)
	}
}

func TestExecuteTaskMaxStepsExhausted(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "still thinking", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)

	result := svc.ExecuteTask(context.Background(), "s1", "never finish", Options{MaxSteps: 3})

	if result.Completed {
		t.Error("expected Completed = false")
	}
	if result.FinalResult != "Task execution reached maximum steps without completion" {
		t.Errorf("FinalResult = %q", result.FinalResult)
	}
	if adapter.calls != 3 {
		t.Errorf("LLM calls = %d, want 3", adapter.calls)
	}
	if len(result.Steps) != 3 {
		t.Errorf("Steps = %v", result.Steps)
	}
}

func TestExecuteTaskToolDispatch(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "Let me check the file situation.", finish: llm.FinishUnknown},
		{content: "Everything is in place. task completed", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)

	et := &echoTool{name: "file_operation", result: "Files in .:"}
	svc.registry.Register(et)

	result := svc.ExecuteTask(context.Background(), "s1", "look at files", Options{})

	if et.calls != 1 {
		t.Errorf("tool calls = %d, want 1", et.calls)
	}
	if !result.Completed {
		t.Error("expected completion on second step")
	}
	// One step entry per LLM call plus one per dispatched tool.
	if len(result.Steps) != 3 {
		t.Fatalf("Steps = %v", result.Steps)
	}
	if !strings.Contains(result.Steps[1], "Tool file_operation: Files in .:") {
		t.Errorf("Steps[1] = %q", result.Steps[1])
	}
}

func TestExecuteTaskNoCompletionCheckOnToolStep(t *testing.T) {
	// The phrase appears alongside a tool keyword; the loop must dispatch
	// and continue rather than completing on that step.
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "Reading the file now. task completed", finish: llm.FinishUnknown},
		{content: "still going", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)
	svc.registry.Register(&echoTool{name: "file_operation", result: "ok"})

	result := svc.ExecuteTask(context.Background(), "s1", "read it", Options{MaxSteps: 2})

	if result.Completed {
		t.Error("tool-dispatching step must not complete the task")
	}
	if adapter.calls != 2 {
		t.Errorf("LLM calls = %d, want 2", adapter.calls)
	}
}

func TestExecuteTaskUnknownTool(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "using a tool", finish: llm.FinishUnknown},
		{content: "task completed", finish: llm.FinishUnknown},
	}}
	extractor := staticExtractor{calls: []ToolCall{{ID: "c1", Name: "missing_tool", Args: tool.Args{}}}}
	svc := newTestService(t, adapter, WithExtractor(extractor))

	result := svc.ExecuteTask(context.Background(), "s1", "go", Options{})

	if result.Err != "" {
		t.Fatalf("unknown tool must not abort the loop: %q", result.Err)
	}
	if !result.Completed {
		t.Error("loop should continue past the missing tool and complete")
	}
	found := false
	for _, step := range result.Steps {
		if strings.Contains(step, "missing_tool failed: Tool not found") {
			found = true
		}
	}
	if !found {
		t.Errorf("Steps = %v, want a failed tool entry", result.Steps)
	}
}

func TestExecuteTaskToolErrorContinues(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "using a tool", finish: llm.FinishUnknown},
		{content: "task completed", finish: llm.FinishUnknown},
	}}
	extractor := staticExtractor{calls: []ToolCall{{ID: "c1", Name: "flaky", Args: tool.Args{}}}}
	svc := newTestService(t, adapter, WithExtractor(extractor))
	svc.registry.Register(&echoTool{name: "flaky", err: errors.New("disk on fire")})

	result := svc.ExecuteTask(context.Background(), "s1", "go", Options{})

	if result.Err != "" {
		t.Fatalf("tool error must not abort the loop: %q", result.Err)
	}
	if !result.Completed {
		t.Error("loop should continue past the failing tool")
	}
	found := false
	for _, step := range result.Steps {
		if strings.Contains(step, "Tool flaky failed: disk on fire") {
			found = true
		}
	}
	if !found {
		t.Errorf("Steps = %v", result.Steps)
	}
}

func TestExecuteTaskUsageAggregation(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "step one", finish: llm.FinishUnknown, usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		{content: "task completed", finish: llm.FinishUnknown, usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
	svc := newTestService(t, adapter)

	result := svc.ExecuteTask(context.Background(), "s1", "go", Options{})

	if result.Usage == nil {
		t.Fatal("expected aggregated usage")
	}
	want := llm.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30}
	if *result.Usage != want {
		t.Errorf("Usage = %+v, want %+v", *result.Usage, want)
	}
}

func TestExecuteTaskUsageOmittedWhenNeverReported(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "task completed", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)

	result := svc.ExecuteTask(context.Background(), "s1", "go", Options{})
	if result.Usage != nil {
		t.Errorf("Usage = %+v, want nil when the provider never reports", result.Usage)
	}
}

func TestExecuteTaskLLMErrorConsumesStep(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{err: errors.New("connection refused")},
		{content: "recovered, task completed", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)

	result := svc.ExecuteTask(context.Background(), "s1", "go", Options{MaxSteps: 3})

	if result.Err != "" {
		t.Fatalf("LLM outage must not abort: %q", result.Err)
	}
	if !result.Completed {
		t.Error("loop should recover on the next step")
	}
	if len(result.Steps) != 2 {
		t.Fatalf("Steps = %v, want outage to consume a step", result.Steps)
	}
	if !strings.Contains(result.Steps[0], "unable to reach the language model") {
		t.Errorf("Steps[0] = %q, want apology", result.Steps[0])
	}
}

func TestExecuteTaskApologyLanguage(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{err: errors.New("down")},
	}}
	svc := newTestService(t, adapter, WithLanguage("zh"))

	result := svc.ExecuteTask(context.Background(), "s1", "去吧", Options{MaxSteps: 1})
	if !strings.Contains(result.Steps[0], "抱歉") {
		t.Errorf("Steps[0] = %q, want Chinese apology", result.Steps[0])
	}
}

func TestExecuteTaskPanicRecovered(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "using a tool", finish: llm.FinishUnknown},
	}}
	extractor := staticExtractor{calls: []ToolCall{{ID: "c1", Name: "bomb", Args: tool.Args{}}}}
	svc := newTestService(t, adapter, WithExtractor(extractor))
	svc.registry.Register(&echoTool{name: "bomb", panicMsg: "boom"})

	result := svc.ExecuteTask(context.Background(), "s1", "go", Options{})

	if result.Err == "" {
		t.Fatal("expected Err after panic")
	}
	if !strings.Contains(result.Err, "boom") {
		t.Errorf("Err = %q", result.Err)
	}
	if len(result.Steps) != 1 {
		t.Errorf("Steps = %v, want the pre-panic step retained", result.Steps)
	}
}

func TestExecuteTaskSystemPromptNotStoredInMemory(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "still thinking", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)

	svc.ExecuteTask(context.Background(), "s1", "go", Options{MaxSteps: 3})

	for i, req := range adapter.requests {
		systemCount := 0
		for _, msg := range req.Messages {
			if msg.Role == llm.RoleSystem {
				systemCount++
			}
		}
		if systemCount != 1 {
			t.Errorf("request %d carries %d system messages, want exactly 1", i, systemCount)
		}
		if req.Messages[0].Role != llm.RoleSystem {
			t.Errorf("request %d: system message not at index 0", i)
		}
	}
}

func TestExecuteTaskMemoryCarriesAcrossCalls(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "task completed", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)
	ctx := context.Background()

	svc.ExecuteTask(ctx, "s1", "first question", Options{})
	svc.ExecuteTask(ctx, "s1", "second question", Options{})

	last := adapter.requests[len(adapter.requests)-1]
	var contents []string
	for _, msg := range last.Messages {
		contents = append(contents, msg.Content)
	}
	joined := strings.Join(contents, "\n")
	if !strings.Contains(joined, "first question") {
		t.Errorf("second call should see first conversation, got %v", contents)
	}
	if !strings.Contains(joined, "second question") {
		t.Errorf("second call should see its own message, got %v", contents)
	}
}

func TestExecuteTaskStreaming(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "task completed", finish: llm.FinishUnknown},
	}}
	svc := newTestService(t, adapter)

	var deltas []string
	result := svc.ExecuteTask(context.Background(), "s1", "go", Options{
		Stream: func(delta string) { deltas = append(deltas, delta) },
	})

	if !adapter.streamed {
		t.Error("expected the streaming variant to be used")
	}
	if len(deltas) == 0 {
		t.Error("expected stream deltas")
	}
	if !result.Completed {
		t.Error("expected completion")
	}
}

func TestExecuteTaskCancelledResponse(t *testing.T) {
	adapter := &scriptedAdapter{responses: []scriptedResponse{
		{content: "Request cancelled.", finish: llm.FinishCancelled},
	}}
	svc := newTestService(t, adapter)

	result := svc.ExecuteTask(context.Background(), "s1", "go", Options{MaxSteps: 5})

	if result.Completed {
		t.Error("cancellation is not completion")
	}
	if result.FinalResult != "Request cancelled." {
		t.Errorf("FinalResult = %q", result.FinalResult)
	}
	if adapter.calls != 1 {
		t.Errorf("LLM calls = %d, want loop to stop on cancellation", adapter.calls)
	}
}

func TestKeywordExtractor(t *testing.T) {
	var ex KeywordExtractor

	tests := []struct {
		text string
		want []string
	}{
		{"please list the File contents", []string{"file_operation"}},
		{"写一段代码试试", []string{"python_execute"}},
		{"let me search for that", []string{"web_search"}},
		{"check the file then search", []string{"file_operation", "web_search"}},
		{"nothing to do", nil},
	}
	for _, tc := range tests {
		calls := ex.Extract(tc.text)
		var names []string
		for _, c := range calls {
			names = append(names, c.Name)
			if c.ID == "" {
				t.Errorf("Extract(%q): empty call ID", tc.text)
			}
		}
		if fmt.Sprint(names) != fmt.Sprint(tc.want) {
			t.Errorf("Extract(%q) = %v, want %v", tc.text, names, tc.want)
		}
	}
}

func TestBuildSystemPromptListsTools(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(&echoTool{name: "file_operation", result: ""})
	registry.Register(&echoTool{name: "web_search", result: ""})

	prompt := BuildSystemPrompt(registry, "en")
	if !strings.Contains(prompt, "file_operation") || !strings.Contains(prompt, "web_search") {
		t.Errorf("prompt missing tools: %q", prompt)
	}
	if !strings.Contains(prompt, "task completed") {
		t.Errorf("prompt missing completion protocol: %q", prompt)
	}

	zh := BuildSystemPrompt(registry, "zh")
	if !strings.Contains(zh, "任务完成") {
		t.Errorf("zh prompt missing completion phrase: %q", zh)
	}
}
