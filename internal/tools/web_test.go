package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rahul/stepwise/internal/agent"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Release notes</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Release notes</h1>
<p>The scheduler now runs independent steps of a plan concurrently, one wave at a time, and reports deadlocks when pending steps can never become runnable.</p>
<p>Failed steps are classified as recoverable or fatal, and recoverable failures can be revised by a language model within a bounded number of attempts.</p>
<p>Every planning, execution and revision event is written to a trace that can be inspected later from the command line.</p>
<p>Built-in agents cover the filesystem, the shell, the web, a headless browser and the desktop control server, and each of them reports failures with messages that the classifier understands, so that hints shown to the user point at the parameter or command that needs to change.</p>
</article>
</body></html>`

type fakeSearch struct {
	query string
	err   error
}

func (f *fakeSearch) Call(ctx context.Context, input string) (string, error) {
	f.query = input
	return "1. result", f.err
}

func TestWebAgent_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	w := &WebAgent{UserAgent: "test", Client: srv.Client()}
	res, err := w.Execute(context.Background(), agent.Request{Command: "scrape", Args: map[string]any{"url": srv.URL + "/notes"}})
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	page := res.(*Page)
	if !strings.Contains(page.Content, "runs independent steps") {
		t.Errorf("content = %q", page.Content)
	}
	if strings.Contains(page.Content, "<p>") {
		t.Error("content should be plain text")
	}

	_, err = w.Execute(context.Background(), agent.Request{Command: "scrape", Args: map[string]any{"url": srv.URL + "/missing"}})
	if err == nil || !strings.Contains(err.Error(), "status code 404") {
		t.Errorf("missing page: %v", err)
	}

	_, err = w.Execute(context.Background(), agent.Request{Command: "scrape", Args: map[string]any{"url": "not a url"}})
	if err == nil || !strings.Contains(err.Error(), "invalid value") {
		t.Errorf("bad url: %v", err)
	}
}

func TestWebAgent_Search(t *testing.T) {
	search := &fakeSearch{}
	w := &WebAgent{Search: search}

	res, err := w.Execute(context.Background(), agent.Request{Command: "search", Args: map[string]any{"query": "golang errgroup"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res != "1. result" || search.query != "golang errgroup" {
		t.Errorf("search = %v (query %q)", res, search.query)
	}

	search.err = errors.New("rate limit")
	if _, err := w.Execute(context.Background(), agent.Request{Command: "search", Args: map[string]any{"query": "x"}}); err == nil {
		t.Error("expected search error")
	}

	if _, err := w.Execute(context.Background(), agent.Request{Command: "crawl"}); err == nil || !strings.Contains(err.Error(), "command not found") {
		t.Errorf("unknown command: %v", err)
	}
}
