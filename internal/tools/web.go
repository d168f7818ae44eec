package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rahul/stepwise/internal/agent"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

const (
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxContentLength  = 50000
	defaultMaxResults = 10
)

// Searcher is the subset of the DuckDuckGo tool used by WebAgent.
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// WebAgent fetches readable page content and searches the web.
type WebAgent struct {
	UserAgent string
	Client    *http.Client
	Search    Searcher
}

func NewWebAgent(maxResults int) (*WebAgent, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &WebAgent{
		UserAgent: defaultUserAgent,
		Client:    &http.Client{Timeout: 30 * time.Second},
		Search:    ddg,
	}, nil
}

func (w *WebAgent) Description() string {
	return "Read the web. Commands: scrape (args: url) returns the main page text, search (args: query) returns DuckDuckGo results."
}

// Page is the result of a scrape.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
	Content string `json:"content"`
}

func (w *WebAgent) Execute(ctx context.Context, req agent.Request) (any, error) {
	switch req.Command {
	case "scrape", "fetch":
		target, err := stringArg(req.Args, "url")
		if err != nil {
			return nil, err
		}
		return w.scrape(ctx, target)
	case "search":
		query, err := stringArg(req.Args, "query")
		if err != nil {
			return nil, err
		}
		if w.Search == nil {
			return nil, fmt.Errorf("search service unavailable")
		}
		res, err := w.Search.Call(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		return res, nil
	default:
		return nil, unknownCommand("web", req.Command)
	}
}

func (w *WebAgent) scrape(ctx context.Context, target string) (*Page, error) {
	parsedURL, err := url.Parse(target)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid value for url: %q", target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", w.UserAgent)

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse article: %w", err)
	}

	// readability leaves inline markup in some pages
	content := bluemonday.StrictPolicy().Sanitize(article.TextContent)
	if len(content) > maxContentLength {
		content = content[:maxContentLength] + "\n... (content truncated) ..."
	}

	return &Page{
		URL:     target,
		Title:   article.Title,
		Excerpt: article.Excerpt,
		Content: content,
	}, nil
}
