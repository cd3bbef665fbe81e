package ason

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProxiesNotInitialized is returned when a script route is entered
// before the proxy bundle has been built, or after the build failed.
var ErrProxiesNotInitialized = errors.New("Proxies not initialized")

// ErrLLM is a chat service failure.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-OK response from a chat service backend.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrValidation is a script validator rejection. It feeds back into the
// repair loop as the corrective message.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// refusalPrefix marks runner and validator errors that are user-visible
// policy refusals. They are surfaced verbatim and never retried.
// The English prefix match mirrors the refusal convention the script
// and validator surfaces emit; hosts raise a refusal by returning an
// error whose message starts with this prefix.
const refusalPrefix = "Cannot"

// IsPolicyRefusal reports whether msg is a policy refusal that must be
// surfaced verbatim without retrying.
func IsPolicyRefusal(msg string) bool {
	return strings.HasPrefix(strings.TrimSpace(msg), refusalPrefix)
}
