package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestIsRunnable(t *testing.T) {
	p := Plan{
		{ID: 1, Status: StatusCompleted},
		{ID: 2, Status: StatusPending, Dependencies: []int{1}},
		{ID: 3, Status: StatusPending, Dependencies: []int{2}},
		{ID: 4, Status: StatusPending, Dependencies: []int{99}},
		{ID: 5, Status: StatusInProgress},
	}

	cases := []struct {
		id   int
		want bool
	}{
		{1, false},
		{2, true},
		{3, false},
		{4, false},
		{5, false},
	}
	for _, c := range cases {
		if got := IsRunnable(p[p.Find(c.id)], p); got != c.want {
			t.Errorf("IsRunnable(step %d) = %v, want %v", c.id, got, c.want)
		}
	}

	r := Runnable(p)
	if len(r) != 1 || r[0].ID != 2 {
		t.Errorf("Runnable = %+v, want only step 2", r)
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(Plan{{ID: 1, Status: StatusPending}}) {
		t.Error("pending plan should not be terminal")
	}
	if IsTerminal(Plan{{ID: 1, Status: StatusInProgress}}) {
		t.Error("in-progress plan should not be terminal")
	}
	if !IsTerminal(Plan{{ID: 1, Status: StatusCompleted}, {ID: 2, Status: StatusFailed}}) {
		t.Error("completed/failed plan should be terminal")
	}
	if !IsTerminal(nil) {
		t.Error("empty plan should be terminal")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Plan{{ID: 1, Args: map[string]any{"a": 1}, Dependencies: []int{2}}}
	c := orig.Clone()
	c[0].Args["a"] = 2
	c[0].Dependencies[0] = 3
	c[0].Status = StatusFailed

	if orig[0].Args["a"] != 1 {
		t.Error("clone shares args map")
	}
	if orig[0].Dependencies[0] != 2 {
		t.Error("clone shares dependency slice")
	}
	if orig[0].Status != "" {
		t.Error("clone shares step value")
	}
}

func TestTransition(t *testing.T) {
	s := Step{ID: 1, Status: StatusPending}
	if err := Transition(&s, StatusCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending -> completed should fail, got %v", err)
	}
	if err := Transition(&s, StatusInProgress); err != nil {
		t.Fatalf("pending -> in_progress: %v", err)
	}
	if err := Transition(&s, StatusFailed); err != nil {
		t.Fatalf("in_progress -> failed: %v", err)
	}
	if err := Transition(&s, StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("failed -> pending should fail, got %v", err)
	}
}

func TestValidateAllowsUnknownDependencies(t *testing.T) {
	if err := Validate(Plan{{ID: 1, Dependencies: []int{42}}}); err != nil {
		t.Errorf("unknown dependency must not be a validation error: %v", err)
	}
	if err := Validate(Plan{{ID: 1}, {ID: 1}}); err == nil {
		t.Error("expected duplicate id error")
	}
}

func TestNormalize(t *testing.T) {
	p := Normalize(Plan{{ID: 1, Status: StatusFailed, Result: "x"}})
	if p[0].Status != StatusPending || p[0].Result != nil {
		t.Errorf("step not reset: %+v", p[0])
	}
	if p[0].Args == nil || p[0].Dependencies == nil {
		t.Errorf("args/dependencies should be non-nil: %+v", p[0])
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlDoc := `request: check the weather
steps:
  - id: 1
    description: fetch
    agent_name: web
    command: scrape
    args:
      url: https://example.com
  - id: 2
    description: save
    agent_name: filesystem
    command: write
    dependencies: [1]
`
	yamlPath := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(yamlPath, []byte(yamlDoc), 0644); err != nil {
		t.Fatal(err)
	}
	doc, err := LoadFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadFile yaml: %v", err)
	}
	if doc.Request != "check the weather" || len(doc.Steps) != 2 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.Steps[0].AgentName != "web" || doc.Steps[0].Args["url"] != "https://example.com" {
		t.Errorf("step 1 decoded wrong: %+v", doc.Steps[0])
	}
	if doc.Steps[1].Status != StatusPending || doc.Steps[1].Dependencies[0] != 1 {
		t.Errorf("step 2 decoded wrong: %+v", doc.Steps[1])
	}

	jsonDoc := `{"request":"r","steps":[{"id":1,"agentName":"shell","command":"run","dependencies":[]}]}`
	jsonPath := filepath.Join(dir, "plan.json")
	if err := os.WriteFile(jsonPath, []byte(jsonDoc), 0644); err != nil {
		t.Fatal(err)
	}
	doc, err = LoadFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFile json: %v", err)
	}
	if doc.Steps[0].AgentName != "shell" || doc.Steps[0].Status != StatusPending {
		t.Errorf("json step decoded wrong: %+v", doc.Steps[0])
	}

	if _, err := Parse([]byte("steps: []"), false); err == nil {
		t.Error("expected error for empty plan")
	}
}

func TestValidateRejectsUnknownStatus(t *testing.T) {
	if err := Validate(Plan{{ID: 1, Status: "done"}}); err == nil {
		t.Error("expected unknown status error")
	}
	if err := Validate(Plan{{ID: 1}, {ID: 2, Status: StatusFailed}}); err != nil {
		t.Errorf("known statuses should validate: %v", err)
	}
}

func TestParseStartingStatuses(t *testing.T) {
	tests := []struct {
		status  string
		wantErr bool
	}{
		{"", false},
		{"pending", false},
		{"completed", false},
		{"failed", true},
		{"in_progress", true},
		{"finished", true},
	}
	for _, tt := range tests {
		t.Run("status="+tt.status, func(t *testing.T) {
			doc := `{"steps":[{"id":1,"agentName":"shell","command":"run","status":"` + tt.status + `"}]}`
			_, err := Parse([]byte(doc), true)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
