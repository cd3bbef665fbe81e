package ason

import (
	"strings"
)

const (
	routeWord    = "script"
	taskOpenTag  = "<task>"
	taskCloseTag = "</task>"
)

// routeDecision is the parsed outcome of a reception reply.
type routeDecision struct {
	route Route
	// task is the consolidated task for the script route ("" means
	// keep the original user task).
	task string
	// answer is the full trimmed reply for the answer route.
	answer string
}

// parseReceptionReply interprets the reception agent's reply:
//
//	starts with "script" + <task> block  -> script, inner task
//	starts with "script", no block       -> script, original task
//	whitespace only                      -> script, original task
//	anything else                        -> answer, trimmed reply
func parseReceptionReply(reply string) routeDecision {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return routeDecision{route: RouteScript}
	}
	if !startsWithFold(trimmed, routeWord) {
		return routeDecision{route: RouteAnswer, answer: trimmed}
	}
	if task, ok := innerTask(trimmed); ok {
		return routeDecision{route: RouteScript, task: task}
	}
	return routeDecision{route: RouteScript}
}

// innerTask extracts the trimmed text between <task> and </task>.
func innerTask(reply string) (string, bool) {
	_, after, ok := strings.Cut(reply, taskOpenTag)
	if !ok {
		return "", false
	}
	inner, _, ok := strings.Cut(after, taskCloseTag)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

func startsWithFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// streamRouter is the token-level state machine for the streaming
// reception variant. It buffers tokens until the reply can be
// classified, so the user never sees any part of the routing word:
// once the decision is answer, the buffer flushes and later tokens
// pass through; once it is script, everything is swallowed and the
// task is recovered from the buffered reply at the end.
type streamRouter struct {
	buf     strings.Builder
	decided bool
	route   Route
	emit    func(string)
}

func newStreamRouter(emit func(string)) *streamRouter {
	return &streamRouter{emit: emit}
}

// Feed consumes one token.
func (r *streamRouter) Feed(token string) {
	r.buf.WriteString(token)
	if r.decided {
		if r.route == RouteAnswer {
			r.emit(token)
		}
		return
	}

	head := strings.TrimLeft(r.buf.String(), " \t\r\n")
	switch {
	case len(head) >= len(routeWord):
		r.decided = true
		if strings.EqualFold(head[:len(routeWord)], routeWord) {
			r.route = RouteScript
		} else {
			r.route = RouteAnswer
			r.emit(strings.TrimSpace(r.buf.String()))
		}
	case head != "" && !strings.EqualFold(head, routeWord[:len(head)]):
		// Diverged from the routing word before completing it.
		r.decided = true
		r.route = RouteAnswer
		r.emit(strings.TrimSpace(r.buf.String()))
	}
}

// Finish classifies the complete reply. An undecided buffer at stream
// end is either whitespace (script route) or a short reply that never
// completed the routing word (answer).
func (r *streamRouter) Finish() routeDecision {
	decision := parseReceptionReply(r.buf.String())
	if !r.decided && decision.route == RouteAnswer {
		r.emit(decision.answer)
	}
	return decision
}
