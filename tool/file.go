package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtessler/coxswain/workspace"
)

// FileTool performs file operations inside a workspace root.
type FileTool struct {
	fs *workspace.FileAccess
}

// NewFileTool creates a FileTool backed by the given workspace.
func NewFileTool(fs *workspace.FileAccess) *FileTool {
	return &FileTool{fs: fs}
}

func (t *FileTool) Name() string { return "file_operation" }

func (t *FileTool) Description() string {
	return "Read, write, list, and check files in the workspace directory."
}

func (t *FileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "list", "exists"},
				"description": "The file operation to perform.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the workspace root.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write (write operation only).",
			},
		},
		"required": []string{"operation", "path"},
	}
}

// Execute dispatches on the operation argument (case-insensitive). An
// unsupported operation returns descriptive text, not an error.
func (t *FileTool) Execute(ctx context.Context, args Args) (string, error) {
	op := strings.ToLower(args.String("operation", ""))
	path := args.String("path", ".")

	switch op {
	case "read":
		content, err := t.fs.Read(path)
		if err != nil {
			return "", err
		}
		return content, nil

	case "write":
		content := args.String("content", "")
		if err := t.fs.Write(path, content); err != nil {
			return "", err
		}
		return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil

	case "list":
		entries, err := t.fs.List(path)
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Files in %s:", path)
		for _, e := range entries {
			name := e.Name
			if e.IsDir {
				name += "/"
			}
			sb.WriteString("\n- " + name)
		}
		return sb.String(), nil

	case "exists":
		if t.fs.Exists(path) {
			return fmt.Sprintf("%s exists", path), nil
		}
		return fmt.Sprintf("%s does not exist", path), nil

	default:
		return fmt.Sprintf("Unknown operation %q. Supported operations: read, write, list, exists", op), nil
	}
}
