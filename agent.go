package ason

import "context"

// ChatService abstracts the chat-completion backend that hosts each
// agent. Implementations range from OpenAI-compatible HTTP providers
// (see the provider subpackage) to scripted fakes in tests.
type ChatService interface {
	// Complete sends the messages and returns the full reply.
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	// Stream sends the messages and delivers the reply token by token
	// into ch, then returns the full reply. Implementations must not
	// close ch; the caller owns it.
	Stream(ctx context.Context, messages []ChatMessage, ch chan<- string) (string, error)
}

// Agent is one of the three pipeline agents: a name, an instruction
// prompt, and the chat service that hosts it.
type Agent struct {
	name         string
	instructions string
	chat         ChatService
}

// NewAgent creates an agent with the given instruction prompt.
func NewAgent(name, instructions string, chat ChatService) *Agent {
	return &Agent{name: name, instructions: instructions, chat: chat}
}

// Name returns the agent's identifier.
func (a *Agent) Name() string { return a.name }

// Complete runs the agent against the thread and returns its reply.
// The instruction prompt is prepended as the system turn.
func (a *Agent) Complete(ctx context.Context, thread *Thread) (string, error) {
	return a.chat.Complete(ctx, a.messages(thread))
}

// Stream runs the agent against the thread, delivering tokens into ch,
// and returns the full reply. ch is left open for the caller to close.
func (a *Agent) Stream(ctx context.Context, thread *Thread, ch chan<- string) (string, error) {
	return a.chat.Stream(ctx, a.messages(thread), ch)
}

func (a *Agent) messages(thread *Thread) []ChatMessage {
	turns := thread.Messages()
	msgs := make([]ChatMessage, 0, len(turns)+1)
	if a.instructions != "" {
		msgs = append(msgs, SystemMessage(a.instructions))
	}
	return append(msgs, turns...)
}
