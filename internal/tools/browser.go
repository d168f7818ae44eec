package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/rahul/stepwise/internal/agent"
)

const browserActionTimeout = 60 * time.Second

// BrowserAgent drives one shared Chrome session. The session stays open
// between steps until a close command.
type BrowserAgent struct {
	Headless      bool
	ScreenshotDir string

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowserAgent(headless bool) *BrowserAgent {
	return &BrowserAgent{Headless: headless, ScreenshotDir: "screenshots"}
}

func (b *BrowserAgent) Description() string {
	return "Control a browser. Commands: navigate (url), content, click (selector), type (selector, text), press (text), scroll (selector?), wait (selector or wait_seconds), back, forward, reload, screenshot, close."
}

func (b *BrowserAgent) session() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	if err := chromedp.Run(b.browserCtx); err != nil {
		b.cleanup()
		return nil, err
	}
	return b.browserCtx, nil
}

func (b *BrowserAgent) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser down.
func (b *BrowserAgent) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

func (b *BrowserAgent) Execute(ctx context.Context, req agent.Request) (any, error) {
	if req.Command == "close" {
		b.Close()
		return "Successfully closed the browser.", nil
	}

	actions, describe, err := b.actions(req)
	if err != nil {
		return nil, err
	}

	browserCtx, err := b.session()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	actionCtx, cancel := context.WithTimeout(browserCtx, browserActionTimeout)
	defer cancel()
	// stop the action when the step is cancelled without closing the session
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(actionCtx, actions...); err != nil {
		return nil, fmt.Errorf("browser %s failed: %w", req.Command, err)
	}
	return describe()
}

// actions validates the request and returns the chromedp actions to run plus
// a function producing the step result once they succeed.
func (b *BrowserAgent) actions(req agent.Request) ([]chromedp.Action, func() (any, error), error) {
	text := func(s string) func() (any, error) {
		return func() (any, error) { return s, nil }
	}

	switch req.Command {
	case "navigate":
		u, err := stringArg(req.Args, "url")
		if err != nil {
			return nil, nil, err
		}
		return []chromedp.Action{chromedp.Navigate(u)}, text(fmt.Sprintf("Successfully navigated to %s", u)), nil

	case "content":
		var html string
		get := chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		})
		return []chromedp.Action{get}, func() (any, error) {
			if len(html) > maxContentLength {
				html = html[:maxContentLength] + "\n... (truncated)"
			}
			return html, nil
		}, nil

	case "click":
		sel, err := stringArg(req.Args, "selector")
		if err != nil {
			return nil, nil, err
		}
		return []chromedp.Action{chromedp.Click(sel, chromedp.ByQuery)}, text(fmt.Sprintf("Clicked %s", sel)), nil

	case "type":
		sel, err := stringArg(req.Args, "selector")
		if err != nil {
			return nil, nil, err
		}
		value, err := stringArg(req.Args, "text")
		if err != nil {
			return nil, nil, err
		}
		return []chromedp.Action{chromedp.SendKeys(sel, value, chromedp.ByQuery)}, text(fmt.Sprintf("Typed text in %s", sel)), nil

	case "press":
		key, err := stringArg(req.Args, "text")
		if err != nil {
			return nil, nil, err
		}
		return []chromedp.Action{chromedp.KeyEvent(key)}, text(fmt.Sprintf("Pressed key: %s", key)), nil

	case "scroll":
		sel, err := optionalString(req.Args, "selector", "")
		if err != nil {
			return nil, nil, err
		}
		if sel != "" {
			return []chromedp.Action{chromedp.ScrollIntoView(sel, chromedp.ByQuery)}, text(fmt.Sprintf("Scrolled to %s", sel)), nil
		}
		return []chromedp.Action{chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil)}, text("Scrolled to bottom"), nil

	case "wait":
		sel, err := optionalString(req.Args, "selector", "")
		if err != nil {
			return nil, nil, err
		}
		if sel != "" {
			return []chromedp.Action{chromedp.WaitVisible(sel, chromedp.ByQuery)}, text(fmt.Sprintf("Finished waiting for %s", sel)), nil
		}
		secs, err := intArg(req.Args, "wait_seconds", 0)
		if err != nil {
			return nil, nil, err
		}
		if secs <= 0 {
			return nil, nil, fmt.Errorf("missing required parameter: selector or wait_seconds")
		}
		return []chromedp.Action{chromedp.Sleep(time.Duration(secs) * time.Second)}, text(fmt.Sprintf("Waited for %d seconds", secs)), nil

	case "back":
		return []chromedp.Action{chromedp.NavigateBack()}, text("Navigated back"), nil
	case "forward":
		return []chromedp.Action{chromedp.NavigateForward()}, text("Navigated forward"), nil
	case "reload":
		return []chromedp.Action{chromedp.Reload()}, text("Page reloaded"), nil

	case "screenshot":
		var buf []byte
		return []chromedp.Action{chromedp.CaptureScreenshot(&buf)}, func() (any, error) {
			return b.saveScreenshot(buf)
		}, nil

	default:
		return nil, nil, unknownCommand("browser", req.Command)
	}
}

func (b *BrowserAgent) saveScreenshot(buf []byte) (any, error) {
	if err := os.MkdirAll(b.ScreenshotDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(b.ScreenshotDir, fmt.Sprintf("screenshot_%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return nil, fmt.Errorf("failed to save screenshot: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	return map[string]any{"path": absPath, "bytes": len(buf)}, nil
}
