package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultHTTPTimeout   = 120 * time.Second
)

// OpenAIAdapter is an HTTP backend for any OpenAI-compatible
// /chat/completions endpoint. It handles retries with exponential backoff
// and jitter, and per-model circuit breakers via sony/gobreaker.
type OpenAIAdapter struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *slog.Logger
	retry      RetryPolicy
	sleepFn    func(context.Context, time.Duration) // for testing

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*OpenAIAdapter)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.httpClient = c
	}
}

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.baseURL = strings.TrimRight(url, "/")
	}
}

// WithLogger sets a structured logger for the adapter.
func WithLogger(l *slog.Logger) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.logger = l
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.retry = p
	}
}

// WithSleepFunc overrides the retry sleep function (for testing).
func WithSleepFunc(fn func(context.Context, time.Duration)) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.sleepFn = fn
	}
}

// NewOpenAIAdapter creates an adapter with the given API key and options.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIOption) *OpenAIAdapter {
	a := &OpenAIAdapter{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		apiKey:     apiKey,
		baseURL:    defaultOpenAIBaseURL,
		logger:     slog.Default(),
		retry:      DefaultRetryPolicy(),
		sleepFn:    defaultSleep,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[*Response]),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string { return "openai" }

// Wire types for the chat completions endpoint.

type chatCompletionRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	Tools         []chatTool      `json:"tools,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *chatStreamOpts `json:"stream_options,omitempty"`
}

type chatStreamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatTool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type chatCompletionChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Complete sends a blocking chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	cb := a.getOrCreateBreaker(req.Model)
	resp, err := cb.Execute(func() (*Response, error) {
		return a.completeWithRetry(ctx, req)
	})
	if err != nil {
		// Wrap gobreaker sentinel errors for clarity.
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &ServerError{ProviderError: ProviderError{
				ClientError: ClientError{Message: fmt.Sprintf("circuit breaker open for model %s", req.Model), Cause: err},
				Provider:    a.Name(),
				Retryable:   false,
			}}
		}
		return nil, err
	}
	return resp, nil
}

// Stream sends a streaming request, invoking callback per content delta.
// Circuit breaking is not applied to streaming calls: a stream that has
// already delivered tokens cannot be transparently retried.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request, callback StreamCallback) (*Response, error) {
	body := a.buildBody(req, true)
	resp, err := a.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return a.consumeStream(ctx, resp.Body, req, callback)
}

// completeWithRetry runs one blocking completion through the shared Retry
// helper, wiring in the adapter's sleep seam and retry logging.
func (a *OpenAIAdapter) completeWithRetry(ctx context.Context, req Request) (*Response, error) {
	policy := a.retry
	policy.Sleep = a.sleepFn
	if policy.OnRetry == nil {
		policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			a.logger.Warn("retrying chat completion",
				"model", req.Model,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
	}
	return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
		return a.completeOnce(ctx, req)
	})
}

func (a *OpenAIAdapter) completeOnce(ctx context.Context, req Request) (*Response, error) {
	body := a.buildBody(req, false)
	resp, err := a.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{ClientError: ClientError{Message: "read response body", Cause: err}}
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &ClientError{Message: "parse response JSON", Cause: err}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &ClientError{Message: "response contains no choices"}
	}

	choice := chatResp.Choices[0]
	return &Response{
		ID:           chatResp.ID,
		Model:        chatResp.Model,
		Provider:     a.Name(),
		Content:      choice.Message.Content,
		FinishReason: FinishReason(choice.FinishReason),
		Usage:        chatResp.Usage,
	}, nil
}

func (a *OpenAIAdapter) buildBody(req Request, stream bool) chatCompletionRequest {
	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream {
		body.StreamOptions = &chatStreamOpts{IncludeUsage: true}
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, chatTool{Type: "function", Function: t})
	}
	return body
}

// doRequest performs one HTTP POST and classifies failures. The caller owns
// the response body on success.
func (a *OpenAIAdapter) doRequest(ctx context.Context, body chatCompletionRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ClientError{Message: "marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &ClientError{Message: "create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{ClientError: ClientError{Message: "request failed", Cause: err}}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var retryAfter *float64
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.ParseFloat(ra, 64); perr == nil {
				retryAfter = &secs
			}
		}
		return nil, ErrorFromStatusCode(resp.StatusCode, strings.TrimSpace(string(errBody)), a.Name(), retryAfter)
	}

	return resp, nil
}

// consumeStream reads the SSE stream: "data: {json}" lines terminated by
// "data: [DONE]". The final usage record arrives in a chunk with no choices.
func (a *OpenAIAdapter) consumeStream(ctx context.Context, body io.Reader, req Request, callback StreamCallback) (*Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		content      strings.Builder
		finishReason FinishReason
		usage        Usage
		respID       string
		model        = req.Model
	)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return a.cancelledResponse(req), nil
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			a.logger.Debug("skipping malformed stream chunk", "error", err)
			continue
		}

		if chunk.ID != "" {
			respID = chunk.ID
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if callback != nil {
				callback(choice.Delta.Content)
			}
		}
		if choice.FinishReason != "" {
			finishReason = FinishReason(choice.FinishReason)
		}
	}

	if err := scanner.Err(); err != nil {
		// A cancelled stream yields a synthetic response, not an error.
		if ctx.Err() != nil {
			return a.cancelledResponse(req), nil
		}
		return nil, &NetworkError{ClientError: ClientError{Message: "read stream", Cause: err}}
	}

	return &Response{
		ID:           respID,
		Model:        model,
		Provider:     a.Name(),
		Content:      content.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

func (a *OpenAIAdapter) cancelledResponse(req Request) *Response {
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        req.Model,
		Provider:     a.Name(),
		Content:      "Request cancelled.",
		FinishReason: FinishCancelled,
	}
}

// getOrCreateBreaker returns the circuit breaker for the given model,
// creating one if it doesn't exist. Per-model breakers isolate failures.
func (a *OpenAIAdapter) getOrCreateBreaker(model string) *gobreaker.CircuitBreaker[*Response] {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cb, ok := a.breakers[model]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "openai-" + model,
		MaxRequests: 1,                // one probe request in half-open state
		Timeout:     30 * time.Second, // wait before probing after open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Info("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Client-side errors are not provider failures.
			switch err.(type) {
			case *AuthenticationError, *InvalidRequestError, *ContextLengthError:
				return true
			default:
				return false
			}
		},
	})

	a.breakers[model] = cb
	return cb
}
