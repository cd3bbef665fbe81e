// Package ason is an orchestration engine that lets an LLM accomplish
// user tasks by writing short scripts, executing them in a sandboxed
// runner against a catalog of host operator methods and external tool
// servers, and repairing them when they fail.
//
// A user message flows through three agents: a reception agent that
// decides whether to answer directly or route the task to scripting, a
// script agent that writes candidate scripts (validated and retried up
// to a configurable budget), and an explainer agent that turns the raw
// script result into user-facing prose.
//
// Scripts execute through a Runner (see the runner subpackage): an
// in-process expression evaluator, a Python child process over stdio, a
// container, or a remote runner over a WebSocket stream. While a script
// runs it can call back into host operator methods and MCP tool servers
// through the same line-delimited JSON protocol.
package ason
