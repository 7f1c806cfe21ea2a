package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dtessler/coxswain/history"
	"github.com/dtessler/coxswain/llm"
	"github.com/dtessler/coxswain/session"
	"github.com/dtessler/coxswain/tool"
)

const (
	defaultMaxSteps = 10

	maxStepsResult = "Task execution reached maximum steps without completion"

	toolNotFoundResult = "Tool not found"
)

var completionPhrases = []string{"task completed", "任务完成"}

var apologies = map[string]string{
	"en": "I'm sorry, I'm unable to reach the language model right now. Please try again in a moment.",
	"zh": "抱歉，我暂时无法连接到语言模型，请稍后再试。",
}

// Service runs agent tasks. One Service is shared across sessions; the
// session store serializes concurrent tasks for the same session ID.
type Service struct {
	client    *llm.Client
	registry  *tool.Registry
	sessions  *session.Store
	history   history.Store
	extractor IntentExtractor
	logger    *slog.Logger

	maxSteps    int
	model       string
	language    string
	maxTokens   int
	temperature *float64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHistory sets the persistence backend. Defaults to a NopStore.
func WithHistory(store history.Store) ServiceOption {
	return func(s *Service) {
		if store != nil {
			s.history = store
		}
	}
}

// WithExtractor replaces the default keyword-based intent extraction.
func WithExtractor(e IntentExtractor) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultMaxSteps sets the step budget used when Options leaves it zero.
func WithDefaultMaxSteps(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxSteps = n
		}
	}
}

// WithDefaultModel sets the model used when Options leaves it empty.
func WithDefaultModel(model string) ServiceOption {
	return func(s *Service) { s.model = model }
}

// WithLanguage sets the prompt and apology language ("en" or "zh").
func WithLanguage(language string) ServiceOption {
	return func(s *Service) {
		if language != "" {
			s.language = language
		}
	}
}

// WithMaxTokens caps completion length per LLM call.
func WithMaxTokens(n int) ServiceOption {
	return func(s *Service) { s.maxTokens = n }
}

// WithTemperature sets the sampling temperature for LLM calls.
func WithTemperature(t float64) ServiceOption {
	return func(s *Service) { s.temperature = &t }
}

// NewService creates a Service around an LLM client and a tool registry.
func NewService(client *llm.Client, registry *tool.Registry, opts ...ServiceOption) *Service {
	s := &Service{
		client:    client,
		registry:  registry,
		sessions:  session.NewStore(),
		history:   history.NopStore{},
		extractor: KeywordExtractor{},
		logger:    slog.Default(),
		maxSteps:  defaultMaxSteps,
		language:  "en",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExecuteTask runs the step loop for one user message and returns a result
// describing everything that happened. Errors inside the loop degrade into
// steps and messages rather than escaping; only a panic sets result.Err,
// and even then the steps collected so far are retained.
func (s *Service) ExecuteTask(ctx context.Context, sessionID, userMessage string, opts Options) (result *ExecutionResult) {
	result = &ExecutionResult{SessionID: sessionID}
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Sprintf("internal error: %v", r)
			s.logger.Error("task aborted", "session_id", sessionID, "panic", r)
		}
	}()

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = s.maxSteps
	}
	model := opts.Model
	if model == "" {
		model = s.model
	}

	mem := s.hydrate(ctx, sessionID, opts.UserID)
	s.sessions.Seed(sessionID, mem)
	handle := s.sessions.Acquire(sessionID)
	defer handle.Release()

	handle.Memory.Append(session.UserMessage(userMessage))

	var usage llm.Usage
	usageReported := false

	for step := 1; step <= maxSteps; step++ {
		resp := s.callLLM(ctx, model, handle.Memory, opts.Stream)

		var assistantText string
		if resp == nil {
			assistantText = s.apology()
		} else {
			assistantText = resp.Content
			if !resp.Usage.IsZero() {
				usage = usage.Add(resp.Usage)
				usageReported = true
			}
		}

		handle.Memory.Append(session.AssistantMessage(assistantText))
		result.Steps = append(result.Steps, fmt.Sprintf("Step %d: %s", step, assistantText))

		if resp != nil && resp.FinishReason == llm.FinishCancelled {
			result.FinalResult = assistantText
			break
		}

		calls := s.extractor.Extract(assistantText)
		if len(calls) > 0 {
			for _, call := range calls {
				result.Steps = append(result.Steps, s.dispatch(ctx, handle.Memory, call))
			}
			// Tool results feed the next step; completion is not checked
			// on tool-dispatching steps.
			continue
		}

		if resp != nil && isFinished(assistantText, resp.FinishReason) {
			result.Completed = true
			result.FinalResult = assistantText
			break
		}
	}

	if !result.Completed && result.FinalResult == "" {
		result.FinalResult = maxStepsResult
	}
	if usageReported {
		result.Usage = &usage
	}

	s.history.Save(sessionID, handle.Memory, opts.UserID)
	return result
}

// hydrate loads persisted history for a session. A load failure degrades
// to an empty memory; the task still runs.
func (s *Service) hydrate(ctx context.Context, sessionID, userID string) *session.Memory {
	mem, err := s.history.Load(ctx, sessionID, userID)
	if err != nil {
		s.logger.Warn("history load failed, starting empty",
			"session_id", sessionID, "error", err)
		return session.NewMemory()
	}
	return mem
}

// callLLM performs one model call. The system prompt is rebuilt each step
// and prepended to the outgoing request only; memory never stores it, so
// repeated steps cannot pile up duplicate system messages. Any call
// failure is converted to nil; the caller substitutes an apology.
func (s *Service) callLLM(ctx context.Context, model string, mem *session.Memory, stream llm.StreamCallback) *llm.Response {
	messages := make([]llm.Message, 0, mem.Len()+1)
	messages = append(messages, llm.SystemMessage(BuildSystemPrompt(s.registry, s.language)))
	messages = append(messages, mem.ToLLMMessages()...)

	req := llm.Request{
		Model:       model,
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	var resp *llm.Response
	var err error
	if stream != nil {
		resp, err = s.client.Stream(ctx, req, stream)
	} else {
		resp, err = s.client.Complete(ctx, req)
	}
	if err != nil {
		s.logger.Warn("llm call failed", "model", model, "error", err)
		return nil
	}
	return resp
}

// dispatch executes one tool call, appends its result to memory as a
// tool-role message, and returns the step description. Unknown tools and
// tool failures become failed results; neither aborts the loop.
func (s *Service) dispatch(ctx context.Context, mem *session.Memory, call ToolCall) string {
	t := s.registry.Get(call.Name)
	if t == nil {
		s.logger.Warn("tool not found", "tool", call.Name)
		mem.Append(session.ToolMessage(call.ID, toolNotFoundResult))
		return fmt.Sprintf("Tool %s failed: %s", call.Name, toolNotFoundResult)
	}

	out, err := t.Execute(ctx, call.Args)
	if err != nil {
		s.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		mem.Append(session.ToolMessage(call.ID, err.Error()))
		return fmt.Sprintf("Tool %s failed: %s", call.Name, err.Error())
	}

	mem.Append(session.ToolMessage(call.ID, out))
	return fmt.Sprintf("Tool %s: %s", call.Name, out)
}

func (s *Service) apology() string {
	if msg, ok := apologies[s.language]; ok {
		return msg
	}
	return apologies["en"]
}

// isFinished reports task completion: a completion phrase in the text
// (case-insensitive) or a stop finish reason from the provider.
func isFinished(assistantText string, reason llm.FinishReason) bool {
	lower := strings.ToLower(assistantText)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return reason == llm.FinishStop
}
