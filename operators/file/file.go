// Package file provides a workspace-scoped file operator for scripts.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxReadBytes caps file reads returned to scripts.
const maxReadBytes = 256 * 1024

// Operator exposes file operations restricted to a workspace
// directory. Register it as a static operator.
type Operator struct {
	workspace string
}

// New creates an Operator restricted to workspace.
func New(workspace string) *Operator {
	return &Operator{workspace: workspace}
}

// ReadFile returns the content of a workspace file.
func (o *Operator) ReadFile(path string) (string, error) {
	full, err := o.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return string(data), nil
}

// WriteFile writes content to a workspace file, creating parent
// directories as needed.
func (o *Operator) WriteFile(path, content string) error {
	full, err := o.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ListFiles lists entries of a workspace directory, one name per
// returned element, directories suffixed with a slash.
func (o *Operator) ListFiles(path string) ([]string, error) {
	full, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		out = append(out, name)
	}
	return out, nil
}

// DeleteFile removes a workspace file or empty directory.
func (o *Operator) DeleteFile(path string) error {
	full, err := o.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// resolve joins path under the workspace and rejects escapes.
func (o *Operator) resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	full := filepath.Clean(filepath.Join(o.workspace, path))
	rel, err := filepath.Rel(o.workspace, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return full, nil
}
