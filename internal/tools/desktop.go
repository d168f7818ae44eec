package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rahul/stepwise/internal/agent"
)

const DefaultDesktopURL = "http://127.0.0.1:8765"

type desktopRoute struct {
	method   string
	path     string
	required []string
}

var desktopRoutes = map[string]desktopRoute{
	"health":         {http.MethodGet, "/health", nil},
	"view":           {http.MethodGet, "/display/view", nil},
	"bounds":         {http.MethodGet, "/display/bounds", nil},
	"find":           {http.MethodPost, "/display/find", []string{"query"}},
	"find_icons":     {http.MethodPost, "/display/find_icons", []string{"icon"}},
	"click":          {http.MethodPost, "/mouse/click", nil},
	"double_click":   {http.MethodPost, "/mouse/doubleClick", nil},
	"right_click":    {http.MethodPost, "/mouse/rightClick", nil},
	"move":           {http.MethodPost, "/mouse/move", []string{"x", "y"}},
	"drag":           {http.MethodPost, "/mouse/drag", []string{"dragTo"}},
	"scroll":         {http.MethodPost, "/mouse/scroll", []string{"scrollAmount"}},
	"write":          {http.MethodPost, "/keyboard/write", []string{"text"}},
	"press":          {http.MethodPost, "/keyboard/press", []string{"key"}},
	"hotkey":         {http.MethodPost, "/keyboard/hotkey", []string{"keys"}},
	"clipboard_view": {http.MethodGet, "/clipboard/view", nil},
	"clipboard_copy": {http.MethodPost, "/clipboard/copy", []string{"text"}},
	"selected_text":  {http.MethodGet, "/os/selected_text", nil},
	"read_file":      {http.MethodPost, "/files/read", []string{"path"}},
	"write_file":     {http.MethodPost, "/files/write", []string{"path", "content"}},
	"list_files":     {http.MethodPost, "/files/list", nil},
}

// DesktopAgent controls the local desktop through the desktop control server.
// Step args are sent to the server unchanged.
type DesktopAgent struct {
	BaseURL string
	Client  *http.Client
}

func NewDesktopAgent(baseURL string, client *http.Client) *DesktopAgent {
	if baseURL == "" {
		baseURL = DefaultDesktopURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DesktopAgent{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

func (d *DesktopAgent) Description() string {
	names := make([]string, 0, len(desktopRoutes))
	for name := range desktopRoutes {
		names = append(names, name)
	}
	sort.Strings(names)
	return "Control the desktop (mouse, keyboard, screen, clipboard, files). Commands: " + strings.Join(names, ", ") + "."
}

func (d *DesktopAgent) Execute(ctx context.Context, req agent.Request) (any, error) {
	route, ok := desktopRoutes[req.Command]
	if !ok {
		return nil, unknownCommand("desktop", req.Command)
	}
	for _, key := range route.required {
		if v, ok := req.Args[key]; !ok || v == nil {
			return nil, fmt.Errorf("missing required parameter: %s", key)
		}
	}

	var body io.Reader
	if route.method == http.MethodPost {
		args := req.Args
		if args == nil {
			args = map[string]any{}
		}
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("invalid value in args: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, route.method, d.BaseURL+route.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("desktop service unavailable: %w", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("desktop %s: status %d with unreadable body: %w", req.Command, resp.StatusCode, err)
	}

	if success, ok := out["success"].(bool); ok && !success {
		msg, _ := out["error"].(string)
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("desktop %s failed: %s", req.Command, msg)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("desktop %s failed: status code %d", req.Command, resp.StatusCode)
	}

	delete(out, "success")
	return out, nil
}
