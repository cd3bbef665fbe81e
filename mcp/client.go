package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// Client is one connected MCP tool server: a child process spoken to
// over stdio. Requests are correlated by ID; responses complete the
// matching pending slot.
type Client struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan response
	closed  bool

	tools []ToolDefinition
}

// Connect spawns the server command, performs the initialize handshake
// and lists its tools.
func Connect(ctx context.Context, name, command string, args []string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: %s: stdin pipe: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: %s: stdout pipe: %w", name, err)
	}
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: %s: start: %w", name, err)
	}

	c := &Client{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		logger:  logger,
		pending: make(map[int64]chan response),
	}
	go c.readLoop(stdout)

	if err := c.initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	tools, err := c.listTools(ctx)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.tools = tools
	return c, nil
}

// Name returns the registered server name.
func (c *Client) Name() string { return c.name }

// Tools returns the definitions discovered at connect time.
func (c *Client) Tools() []ToolDefinition { return c.tools }

func (c *Client) initialize(ctx context.Context) error {
	_, err := c.call(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: "ason", Version: "1.0"},
	})
	if err != nil {
		return fmt.Errorf("mcp: %s: initialize: %w", c.name, err)
	}
	// initialized notification has no ID and expects no response.
	return c.write(request{JSONRPC: "2.0", Method: "notifications/initialized"})
}

func (c *Client) listTools(ctx context.Context) ([]ToolDefinition, error) {
	raw, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("mcp: %s: tools/list: %w", c.name, err)
	}
	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp: %s: tools/list: %w", c.name, err)
	}
	return result.Tools, nil
}

// CallTool invokes one tool with named arguments and returns its
// payload as JSON. Text content concatenates; a tool-reported error
// becomes a Go error.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	raw, err := c.call(ctx, "tools/call", toolsCallParams{Name: tool, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result toolsCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp: %s: tools/call %s: %w", c.name, tool, err)
	}
	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if result.IsError {
		return nil, fmt.Errorf("%s", text.String())
	}
	payload := text.String()
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload), nil
	}
	quoted, _ := json.Marshal(payload)
	return quoted, nil
}

// call sends one request and awaits its response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	slot := make(chan response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("mcp: %s: server closed", c.name)
	}
	c.pending[id] = slot
	c.mu.Unlock()

	if err := c.write(request{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		c.drop(id)
		return nil, err
	}

	select {
	case resp := <-slot:
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp: %s: %s (%d)", c.name, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.drop(id)
		return nil, ctx.Err()
	}
}

func (c *Client) write(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.stdin.Write(append(data, '\n'))
	return err
}

func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Warn("mcp: malformed response ignored", "server", c.name, "error", err)
			continue
		}
		if resp.ID == nil {
			continue // server notification
		}
		c.mu.Lock()
		slot, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.mu.Unlock()
		if ok {
			slot <- resp
		}
	}
	c.failAll()
}

func (c *Client) drop(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) failAll() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan response)
	c.mu.Unlock()
	msg := "server closed"
	for _, slot := range pending {
		slot <- response{Error: &rpcError{Code: -32000, Message: msg}}
	}
}

// Close terminates the server process.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
