package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a workflow file: the request that produced it plus its steps.
type Document struct {
	Request string `json:"request" yaml:"request"`
	Steps   Plan   `json:"steps" yaml:"steps"`
}

// LoadFile reads a workflow document. Files ending in .json are decoded as JSON,
// everything else as YAML.
func LoadFile(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %q: %w", path, err)
	}
	return Parse(b, strings.EqualFold(filepath.Ext(path), ".json"))
}

// Parse decodes a workflow document and fills in default statuses. Steps may
// start pending or completed; a file cannot hand in failed or running steps.
func Parse(b []byte, isJSON bool) (*Document, error) {
	var doc Document
	if isJSON {
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("plan: unmarshal json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("plan: unmarshal yaml: %w", err)
		}
	}
	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("plan: document has no steps")
	}
	if err := Validate(doc.Steps); err != nil {
		return nil, err
	}
	for i := range doc.Steps {
		st := &doc.Steps[i]
		switch st.Status {
		case "":
			st.Status = StatusPending
		case StatusPending, StatusCompleted:
		default:
			return nil, fmt.Errorf("plan: step %d cannot start as %s", st.ID, st.Status)
		}
	}
	return &doc, nil
}
