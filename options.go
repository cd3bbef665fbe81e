package ason

import (
	"log/slog"

	"github.com/peopleworks/ason/mcp"
	"github.com/peopleworks/ason/observer"
	"github.com/peopleworks/ason/operator"
	"github.com/peopleworks/ason/store"
)

// ExecutionMode selects where scripts run.
type ExecutionMode string

const (
	// ModeInProcess evaluates scripts in this process with the
	// expression dialect; no transport is involved.
	ModeInProcess ExecutionMode = "in-process"
	// ModeExternalProcess runs the Python runner as a child process
	// over stdio.
	ModeExternalProcess ExecutionMode = "external-process"
	// ModeContainer runs the Python runner inside a container.
	ModeContainer ExecutionMode = "container"
)

type options struct {
	maxFixAttempts int
	skipReception  bool
	skipExplainer  bool

	mode           ExecutionMode
	useRemote      bool
	remoteURL      string
	containerImage string
	runnerPath     string

	forbiddenKeywords []string
	methodFilter      func(*operator.MethodEntry) bool

	receptionInstructions string
	scriptInstructions    string
	explainerInstructions string

	validator Validator
	scheduler operator.Scheduler
	tools     *mcp.Registry
	audit     store.Store
	obs       *observer.Instruments
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{
		maxFixAttempts:        2,
		mode:                  ModeInProcess,
		receptionInstructions: DefaultReceptionInstructions,
		scriptInstructions:    DefaultScriptInstructions,
		explainerInstructions: DefaultExplainerInstructions,
		logger:                nopLogger,
	}
}

// Option configures an Orchestrator.
type Option func(*options)

// WithMaxFixAttempts sets the repair retry budget. Total script-agent
// attempts per turn is the budget plus one. Default: 2.
func WithMaxFixAttempts(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxFixAttempts = n
		}
	}
}

// WithSkipReception bypasses the reception agent; every turn takes the
// script route with the unmodified task.
func WithSkipReception() Option {
	return func(o *options) { o.skipReception = true }
}

// WithSkipExplainer returns raw script results to the user unexplained.
func WithSkipExplainer() Option {
	return func(o *options) { o.skipExplainer = true }
}

// WithExecutionMode selects the runner. Default: ModeInProcess.
func WithExecutionMode(mode ExecutionMode) Option {
	return func(o *options) { o.mode = mode }
}

// WithRemoteRunner enables the remote WebSocket transport. The URL is
// required; New fails without it.
func WithRemoteRunner(baseURL string) Option {
	return func(o *options) {
		o.useRemote = true
		o.remoteURL = baseURL
	}
}

// WithContainerImage overrides the default runner container image.
func WithContainerImage(image string) Option {
	return func(o *options) { o.containerImage = image }
}

// WithRunnerPath overrides the Python binary used by the
// external-process runner.
func WithRunnerPath(path string) Option {
	return func(o *options) { o.runnerPath = path }
}

// WithForbiddenKeywords configures the default keyword validator.
func WithForbiddenKeywords(keywords ...string) Option {
	return func(o *options) { o.forbiddenKeywords = keywords }
}

// WithValidator replaces the script validator entirely.
func WithValidator(v Validator) Option {
	return func(o *options) { o.validator = v }
}

// WithMethodFilter overlays a predicate on the method cache: rejected
// entries resolve as not-found and are omitted from the proxies.
func WithMethodFilter(f func(*operator.MethodEntry) bool) Option {
	return func(o *options) { o.methodFilter = f }
}

// WithReceptionInstructions overrides the reception prompt template.
func WithReceptionInstructions(s string) Option {
	return func(o *options) { o.receptionInstructions = s }
}

// WithScriptInstructions overrides the script prompt template. The
// signatures text and dialect rules are still appended.
func WithScriptInstructions(s string) Option {
	return func(o *options) { o.scriptInstructions = s }
}

// WithExplainerInstructions overrides the explainer prompt template.
func WithExplainerInstructions(s string) Option {
	return func(o *options) { o.explainerInstructions = s }
}

// WithScheduler sets the host invocation scheduler (affinity scheduler
// for single-threaded hosts). Default: pass-through.
func WithScheduler(s operator.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithToolServers attaches the MCP tool server registry. Its catalogs
// augment the proxy surface; the augmentation gates the first turn.
func WithToolServers(reg *mcp.Registry) Option {
	return func(o *options) { o.tools = reg }
}

// WithAuditStore records per-turn orchestration outcomes.
func WithAuditStore(s store.Store) Option {
	return func(o *options) { o.audit = s }
}

// WithObserver enables OTel instrumentation for turns, attempts and
// executions.
func WithObserver(instruments *observer.Instruments) Option {
	return func(o *options) { o.obs = instruments }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
