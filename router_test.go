package ason

import (
	"strings"
	"testing"
)

func TestParseReceptionReply(t *testing.T) {
	cases := []struct {
		name   string
		reply  string
		route  Route
		task   string
		answer string
	}{
		{
			name:  "script with task block",
			reply: "script\n<task>\nsum the numbers\n</task>",
			route: RouteScript,
			task:  "sum the numbers",
		},
		{
			name:  "script without task block",
			reply: "script do it",
			route: RouteScript,
		},
		{
			name:  "bare script word",
			reply: "  script  ",
			route: RouteScript,
		},
		{
			name:  "case insensitive prefix",
			reply: "SCRIPT\n<task>x</task>",
			route: RouteScript,
			task:  "x",
		},
		{
			name:  "whitespace only",
			reply: "   \n\t ",
			route: RouteScript,
		},
		{
			name:   "plain answer",
			reply:  "Plain answer with no script needed.",
			route:  RouteAnswer,
			answer: "Plain answer with no script needed.",
		},
		{
			name:   "answer mentioning script later",
			reply:  "You could write a script for that.",
			route:  RouteAnswer,
			answer: "You could write a script for that.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := parseReceptionReply(tc.reply)
			if d.route != tc.route {
				t.Fatalf("route = %s, want %s", d.route, tc.route)
			}
			if d.task != tc.task {
				t.Fatalf("task = %q, want %q", d.task, tc.task)
			}
			if d.answer != tc.answer {
				t.Fatalf("answer = %q, want %q", d.answer, tc.answer)
			}
		})
	}
}

// Streaming the reply one character at a time must never leak any part
// of the routing word to the consumer.
func TestStreamRouterNoLeakage(t *testing.T) {
	reply := "script\n<task>\nsome task description\n</task>"
	var emitted strings.Builder
	r := newStreamRouter(func(s string) { emitted.WriteString(s) })
	for _, c := range reply {
		r.Feed(string(c))
		if emitted.Len() != 0 {
			t.Fatalf("leaked output %q before routing decided", emitted.String())
		}
	}
	d := r.Finish()
	if d.route != RouteScript {
		t.Fatalf("route = %s, want script", d.route)
	}
	if d.task != "some task description" {
		t.Fatalf("task = %q", d.task)
	}
	if emitted.Len() != 0 {
		t.Fatalf("script route emitted %q", emitted.String())
	}
}

func TestStreamRouterAnswerPassthrough(t *testing.T) {
	reply := "Sure — the capital of France is Paris."
	var emitted strings.Builder
	r := newStreamRouter(func(s string) { emitted.WriteString(s) })
	for _, c := range reply {
		r.Feed(string(c))
	}
	d := r.Finish()
	if d.route != RouteAnswer {
		t.Fatalf("route = %s, want answer", d.route)
	}
	if emitted.String() != reply {
		t.Fatalf("emitted %q, want %q", emitted.String(), reply)
	}
}

func TestStreamRouterShortAnswer(t *testing.T) {
	// A reply shorter than the routing word that diverges only at
	// stream end.
	var emitted strings.Builder
	r := newStreamRouter(func(s string) { emitted.WriteString(s) })
	for _, c := range "scr" {
		r.Feed(string(c))
	}
	d := r.Finish()
	if d.route != RouteAnswer || d.answer != "scr" {
		t.Fatalf("decision = %+v, want answer scr", d)
	}
	if emitted.String() != "scr" {
		t.Fatalf("emitted %q, want scr", emitted.String())
	}
}
