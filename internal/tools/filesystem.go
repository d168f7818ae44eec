package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahul/stepwise/internal/agent"
)

// FilesystemAgent manages files below Root. Paths escaping Root are rejected.
type FilesystemAgent struct {
	Root string
}

func NewFilesystemAgent(root string) *FilesystemAgent {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	return &FilesystemAgent{Root: absRoot}
}

func (f *FilesystemAgent) Description() string {
	return "Manage files in the local workspace. Commands: read, write, list, delete, mkdir. Args: path, content (write)."
}

func (f *FilesystemAgent) Execute(ctx context.Context, req agent.Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := optionalString(req.Args, "path", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		// older plans use "filename"
		if name, err = optionalString(req.Args, "filename", ""); err != nil {
			return nil, err
		}
	}
	if name == "" && req.Command != "list" {
		return nil, fmt.Errorf("missing required parameter: path")
	}

	targetPath, err := f.resolve(name)
	if err != nil {
		return nil, err
	}

	switch req.Command {
	case "read":
		data, err := os.ReadFile(targetPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), nil
	case "write":
		content, err := optionalString(req.Args, "content", "")
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", err)
		}
		if err := os.WriteFile(targetPath, []byte(content), 0644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
		return fmt.Sprintf("Successfully wrote to %s", name), nil
	case "list":
		entries, err := os.ReadDir(targetPath)
		if err != nil {
			return nil, fmt.Errorf("failed to list directory: %w", err)
		}
		listing := make([]string, 0, len(entries))
		for _, entry := range entries {
			typeStr := "file"
			if entry.IsDir() {
				typeStr = "dir"
			}
			listing = append(listing, fmt.Sprintf("[%s] %s", typeStr, entry.Name()))
		}
		return listing, nil
	case "delete":
		if targetPath == f.Root {
			return nil, fmt.Errorf("invalid value for path: refusing to delete the workspace root")
		}
		if err := os.Remove(targetPath); err != nil {
			return nil, fmt.Errorf("failed to delete: %w", err)
		}
		return fmt.Sprintf("Successfully deleted %s", name), nil
	case "mkdir":
		if err := os.MkdirAll(targetPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		return fmt.Sprintf("Successfully created directory %s", name), nil
	default:
		return nil, unknownCommand("filesystem", req.Command)
	}
}

func (f *FilesystemAgent) resolve(name string) (string, error) {
	targetPath := filepath.Join(f.Root, name)
	rel, err := filepath.Rel(f.Root, targetPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %s is outside the workspace", agent.ErrPermissionDenied, name)
	}
	return targetPath, nil
}
