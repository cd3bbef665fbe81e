package runner

import (
	"encoding/json"
	"fmt"
)

// Frame discriminators. Each protocol line is a JSON object carrying
// one of these in its type field.
const (
	TypeLog              = "log"
	TypeExecRequest      = "exec-request"
	TypeExecResult       = "exec-result"
	TypeInvokeRequest    = "invoke-request"
	TypeInvokeResult     = "invoke-result"
	TypeMCPInvokeRequest = "mcp-invoke-request"
)

// Frame is one protocol message. Fields are populated per kind:
//
//	log:                Level, Message, Exception?, Source?
//	exec-request:       ID, Code
//	exec-result:        ID, Result? | Error? (neither means null result)
//	invoke-request:     ID, Target, Method, HandleID?, Args
//	mcp-invoke-request: ID, Server, Tool, Arguments
//	invoke-result:      ID, Result? | Error?
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Code   string          `json:"code,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	Target   string            `json:"target,omitempty"`
	Method   string            `json:"method,omitempty"`
	HandleID string            `json:"handleId,omitempty"`
	Args     []json.RawMessage `json:"args,omitempty"`

	Server    string                     `json:"server,omitempty"`
	Tool      string                     `json:"tool,omitempty"`
	Arguments map[string]json.RawMessage `json:"arguments,omitempty"`

	Level     string `json:"level,omitempty"`
	Message   string `json:"message,omitempty"`
	Exception string `json:"exception,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Encode marshals a frame as one protocol line, newline-terminated.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("runner: encode %s frame: %w", f.Type, err)
	}
	return append(data, '\n'), nil
}

// Decode parses one protocol line. A missing discriminator is a
// protocol error; unknown discriminators are the caller's concern
// (logged and ignored).
func Decode(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("runner: malformed frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("runner: frame has no type discriminator")
	}
	return f, nil
}
