package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/peopleworks/ason/operator"
)

// Registry holds the connected tool servers by name and dispatches
// tool-invoke calls from running scripts. Named arguments are validated
// against the tool's input schema before dispatch.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*Client
	schemas map[string]*jsonschema.Schema // "server/tool" -> compiled schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		servers: make(map[string]*Client),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Add registers a connected server under its name and compiles its
// tool schemas for argument validation. A schema that fails to compile
// disables validation for that tool only.
func (r *Registry) Add(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.servers[c.Name()]; dup {
		return fmt.Errorf("mcp: duplicate server %q", c.Name())
	}
	r.servers[c.Name()] = c
	for _, t := range c.Tools() {
		if len(t.InputSchema) == 0 {
			continue
		}
		compiler := jsonschema.NewCompiler()
		url := "mcp:///" + c.Name() + "/" + t.Name + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(t.InputSchema)); err != nil {
			continue
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			continue
		}
		r.schemas[c.Name()+"/"+t.Name] = schema
	}
	return nil
}

// Invoke forwards (server, tool, named-args) to the registered server
// client. Argument names are preserved as given by the runner.
// Implements the runner tool-invoke contract.
func (r *Registry) Invoke(ctx context.Context, server, tool string, args map[string]json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	c, ok := r.servers[server]
	schema := r.schemas[server+"/"+tool]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool server %q", server)
	}

	named := make(map[string]any, len(args))
	for k, raw := range args {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		named[k] = v
	}

	if schema != nil {
		if err := schema.Validate(map[string]any(named)); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s.%s: %w", server, tool, err)
		}
	}

	return c.CallTool(ctx, tool, named)
}

// Catalogs describes every registered server's tool surface for the
// proxy builder.
func (r *Registry) Catalogs() []operator.ToolCatalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]operator.ToolCatalog, 0, len(names))
	for _, name := range names {
		cat := operator.ToolCatalog{Server: name}
		for _, t := range r.servers[name].Tools() {
			cat.Tools = append(cat.Tools, operator.ToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Schema:      t.InputSchema,
			})
		}
		out = append(out, cat)
	}
	return out
}

// Close terminates every server process.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, c := range r.servers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
