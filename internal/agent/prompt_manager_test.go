package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_GetSystemPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"identity.md":     "Identity Content",
		"capabilities.md": "Capabilities Content",
		"user.md":         "User Content",
		"extra.md":        "Extra Content",
		"revision.md":     "Revision Template",
		"notes.txt":       "Ignored",
	}

	for name, content := range files {
		err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir)
	prompt, err := pm.GetSystemPrompt()
	if err != nil {
		t.Fatal(err)
	}

	expectedParts := []string{
		"Identity Content",
		"Capabilities Content",
		"User Content",
		"Extra Content",
	}
	for _, part := range expectedParts {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}
	if strings.Contains(prompt, "Revision Template") || strings.Contains(prompt, "Ignored") {
		t.Errorf("Prompt should not include templates or non-markdown files:\n%s", prompt)
	}

	idx := strings.Index(prompt, "Identity Content")
	capIdx := strings.Index(prompt, "Capabilities Content")
	usr := strings.Index(prompt, "User Content")
	extra := strings.Index(prompt, "Extra Content")
	if !(idx < capIdx && capIdx < usr && usr < extra) {
		t.Errorf("Prompt parts out of order:\n%s", prompt)
	}
}

func TestPromptManager_NoDirectory(t *testing.T) {
	pm := NewPromptManager("")
	prompt, err := pm.GetSystemPrompt()
	if err != nil || prompt != "" {
		t.Fatalf("expected empty prompt, got %q, %v", prompt, err)
	}

	out, source, err := pm.Render(RevisionTemplate, RevisionData{
		Request:     "list files",
		PlanJSON:    "[]",
		Error:       "boom",
		Agents:      []string{"filesystem"},
		Attempt:     1,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if source != "builtin" {
		t.Errorf("source = %q, want builtin", source)
	}
	for _, part := range []string{"list files", "boom", "- filesystem", "Revision attempt 1 of 3"} {
		if !strings.Contains(out, part) {
			t.Errorf("rendered prompt missing %q", part)
		}
	}
}

func TestPromptManager_FileOverride(t *testing.T) {
	tempDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tempDir, ExplanationTemplate), []byte("Explain {{.Request}}"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	pm := NewPromptManager(tempDir)
	out, source, err := pm.Render(ExplanationTemplate, ExplanationData{Request: "deploy"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Explain deploy" || source != "file" {
		t.Errorf("got %q from %s", out, source)
	}

	if _, _, err := pm.Render("unknown.md", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestPromptManager_BadTemplate(t *testing.T) {
	tempDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tempDir, RevisionTemplate), []byte("{{.Nope"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewPromptManager(tempDir).Render(RevisionTemplate, RevisionData{}); err == nil {
		t.Error("expected parse error")
	}
}
