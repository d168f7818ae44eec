package agent

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

const (
	RevisionTemplate    = "revision.md"
	ExplanationTemplate = "explanation.md"
)

const defaultRevisionTemplate = `{{if .Urgency}}{{.Urgency}}

{{end}}{{if .System}}{{.System}}

---

{{end}}The following workflow plan failed while fulfilling a user request. Produce a corrected plan.

## Original request
{{.Request}}

## Failed plan (JSON)
{{.PlanJSON}}

## Error
{{.Error}}
{{if .Agents}}
## Available agents
{{range .Agents}}- {{.}}
{{end}}{{end}}
## Instructions
- Respond with a JSON array of steps and nothing else.
- Each step has: "id" (integer, unique), "description", "agentName", "command", "args" (object) and "dependencies" (array of step ids).
- Keep steps that completed successfully unless they caused the failure.
- Dependencies must reference ids that exist in your plan and must not form cycles.

Revision attempt {{.Attempt}} of {{.MaxAttempts}}.`

const defaultExplanationTemplate = `A workflow plan was revised after a failure. In two or three short sentences addressed to the user, explain what changed between the original and the revised plan and why. Do not use JSON or code.

## Request
{{.Request}}

## Original plan
{{.OriginalJSON}}

## Revised plan
{{.RevisedJSON}}`

var builtinTemplates = map[string]string{
	RevisionTemplate:    defaultRevisionTemplate,
	ExplanationTemplate: defaultExplanationTemplate,
}

// RevisionData feeds the revision template.
type RevisionData struct {
	System      string
	Request     string
	PlanJSON    string
	Error       string
	Urgency     string
	Agents      []string
	Attempt     int
	MaxAttempts int
}

// ExplanationData feeds the explanation template.
type ExplanationData struct {
	Request      string
	OriginalJSON string
	RevisedJSON  string
}

// PromptManager renders prompts. Files in Directory override the built-in
// templates; other .md files form a system preamble.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetSystemPrompt joins the preamble files in a fixed order. It returns an
// empty string when no directory is configured.
func (pm *PromptManager) GetSystemPrompt() (string, error) {
	if pm == nil || pm.Directory == "" {
		return "", nil
	}
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	order := map[string]int{
		"identity.md":     1,
		"capabilities.md": 2,
		"rules.md":        3,
		"user.md":         4,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		if _, isTemplate := builtinTemplates[name]; isTemplate {
			continue
		}
		path := filepath.Join(pm.Directory, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}

	return strings.Join(contents, "\n\n---\n\n"), nil
}

// Render executes the named template and reports whether it came from the
// prompts directory ("file") or the built-in set ("builtin").
func (pm *PromptManager) Render(name string, data any) (string, string, error) {
	text, source, err := pm.load(name)
	if err != nil {
		return "", "", err
	}
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", source, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", source, fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), source, nil
}

func (pm *PromptManager) load(name string) (string, string, error) {
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err == nil {
			return string(data), "file", nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("read prompt %s: %w", name, err)
		}
	}
	text, ok := builtinTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown prompt template %s", name)
	}
	return text, "builtin", nil
}
