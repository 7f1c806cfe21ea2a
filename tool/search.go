package tool

import (
	"context"
	"fmt"
	"strings"
)

const defaultMaxResults = 5

// SearchResult is one entry returned by a SearchProvider.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchProvider is the seam for a real search API. The default provider
// fabricates deterministic results without any network call.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// StubSearchProvider returns fabricated results. Useful for development
// and tests; swap in a real provider for production search.
type StubSearchProvider struct{}

func (StubSearchProvider) Search(_ context.Context, query string, maxResults int) ([]SearchResult, error) {
	results := make([]SearchResult, 0, maxResults)
	for i := 1; i <= maxResults; i++ {
		results = append(results, SearchResult{
			Title:   fmt.Sprintf("Result %d for %q", i, query),
			URL:     fmt.Sprintf("https://example.com/search?q=%s&r=%d", strings.ReplaceAll(query, " ", "+"), i),
			Snippet: fmt.Sprintf("Simulated search result %d matching %q.", i, query),
		})
	}
	return results, nil
}

// SearchTool performs a web search through its provider.
type SearchTool struct {
	provider SearchProvider
}

// NewSearchTool creates a SearchTool. A nil provider defaults to the stub.
func NewSearchTool(provider SearchProvider) *SearchTool {
	if provider == nil {
		provider = StubSearchProvider{}
	}
	return &SearchTool{provider: provider}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search the web and return a list of matching results."
}

func (t *SearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query.",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results. Default: 5.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args Args) (string, error) {
	query := args.String("query", "")
	if query == "" {
		return "", fmt.Errorf("query argument is required")
	}
	maxResults := args.Int("max_results", defaultMaxResults)
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	results, err := t.provider.Search(ctx, query, maxResults)
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s\n   %s\n   %s", i+1, r.Title, r.URL, r.Snippet)
	}
	return sb.String(), nil
}
