package ason

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/peopleworks/ason/operator"
	"github.com/peopleworks/ason/runner"
	"github.com/peopleworks/ason/store"
)

// Orchestrator owns the three-agent pipeline, the operator registry
// and the runner lifecycle, and exposes the request/response and
// streaming APIs. Turns may run concurrently; within a turn the
// pipeline is strictly sequential.
type Orchestrator struct {
	chat      ChatService
	reg       *operator.Registry
	inv       *operator.Invoker
	opts      options
	logger    *slog.Logger
	validator Validator

	reception *Agent
	explainer *Agent

	// scriptAgent and bundle are written once by the proxy build
	// goroutine before proxyReady closes.
	scriptAgent *Agent
	bundle      *operator.ProxyBundle
	proxyErr    error
	proxyReady  chan struct{}

	runnerMu sync.Mutex
	runner   runner.Runner
}

// New creates an orchestrator over a chat service and an operator
// registry. The proxy bundle build starts immediately in the
// background and is awaited lazily before the first turn.
func New(chat ChatService, reg *operator.Registry, opts ...Option) (*Orchestrator, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.useRemote && cfg.remoteURL == "" {
		return nil, errors.New("ason: remote runner enabled without a URL")
	}

	o := &Orchestrator{
		chat:       chat,
		reg:        reg,
		opts:       cfg,
		logger:     cfg.logger,
		proxyReady: make(chan struct{}),
	}

	o.validator = cfg.validator
	if o.validator == nil {
		o.validator = NewKeywordValidator(cfg.forbiddenKeywords...)
	}
	if cfg.methodFilter != nil {
		reg.SetMethodFilter(cfg.methodFilter)
	}

	invOpts := []operator.InvokerOption{operator.WithLogger(o.logger)}
	if cfg.scheduler != nil {
		invOpts = append(invOpts, operator.WithScheduler(cfg.scheduler))
	}
	o.inv = operator.NewInvoker(reg, invOpts...)

	o.runner = o.buildRunner()
	o.reception = NewAgent("reception", cfg.receptionInstructions, chat)
	o.explainer = NewAgent("explainer", cfg.explainerInstructions, chat)

	go o.buildProxies()
	return o, nil
}

// buildRunner constructs the runner for the configured execution mode.
func (o *Orchestrator) buildRunner() runner.Runner {
	if o.opts.useRemote {
		t := runner.NewRemoteTransport(o.opts.remoteURL, o.logger)
		return runner.NewClient(t, o.inv, o.toolInvoker(), runner.WithClientLogger(o.logger))
	}
	switch o.opts.mode {
	case ModeExternalProcess:
		t := runner.NewSubprocessTransport(o.opts.runnerPath, o.logger)
		return runner.NewClient(t, o.inv, o.toolInvoker(), runner.WithClientLogger(o.logger))
	case ModeContainer:
		t := runner.NewContainerTransport(o.opts.containerImage, o.logger)
		return runner.NewClient(t, o.inv, o.toolInvoker(), runner.WithClientLogger(o.logger))
	default:
		return runner.NewInProcessRunner(o.reg, o.inv, o.toolInvoker(), o.logger)
	}
}

func (o *Orchestrator) toolInvoker() runner.ToolInvoker {
	if o.opts.tools == nil {
		return nil
	}
	return o.opts.tools
}

// buildProxies runs once at startup: it augments the operator surface
// with the external tool catalogs, builds the proxy bundle, and
// finishes the script agent whose instructions embed the signatures
// text. Its completion gates the first user turn.
func (o *Orchestrator) buildProxies() {
	defer close(o.proxyReady)

	var catalogs []operator.ToolCatalog
	if o.opts.tools != nil {
		catalogs = o.opts.tools.Catalogs()
	}
	bundle, err := o.reg.BuildProxies(catalogs)
	if err != nil {
		o.logger.Error("proxy build failed", "error", err)
		o.proxyErr = err
		return
	}
	o.bundle = bundle
	o.scriptAgent = NewAgent("script", o.scriptInstructions(bundle.Signatures), o.chat)

	if c, ok := o.currentRunner().(*runner.Client); ok {
		c.SetComposer(func(user string) string {
			return o.reg.ComposeScript(bundle, user)
		})
	}
}

// scriptInstructions assembles the script agent prompt: the template,
// the dialect rules for the active runner, and the signatures text.
func (o *Orchestrator) scriptInstructions(signatures string) string {
	dialect := scriptDialectPython
	if !o.opts.useRemote && o.opts.mode == ModeInProcess {
		dialect = scriptDialectExpr
	}
	return o.opts.scriptInstructions + "\n\n" + dialect + "\n\n" + signatures
}

// ensureReady awaits the proxy build and starts the runner. Both
// complete exactly once; later calls are cheap.
func (o *Orchestrator) ensureReady(ctx context.Context) error {
	select {
	case <-o.proxyReady:
	case <-ctx.Done():
		return ctx.Err()
	}
	if o.proxyErr != nil {
		return ErrProxiesNotInitialized
	}
	return o.currentRunner().Start(ctx)
}

func (o *Orchestrator) currentRunner() runner.Runner {
	o.runnerMu.Lock()
	defer o.runnerMu.Unlock()
	return o.runner
}

// Send orchestrates one user message and returns the turn result.
func (o *Orchestrator) Send(ctx context.Context, message string) (Result, error) {
	return o.SendMessages(ctx, []ChatMessage{UserMessage(message)})
}

// SendMessages orchestrates a turn over an existing conversation.
func (o *Orchestrator) SendMessages(ctx context.Context, messages []ChatMessage) (Result, error) {
	return o.runTurn(ctx, NewThread(messages...))
}

// TurnOutcome pairs a turn result with its error for asynchronous
// delivery.
type TurnOutcome struct {
	Result Result
	Err    error
}

// SendAsync offloads the turn to a background goroutine so callers on
// an event loop are never blocked. The returned channel delivers
// exactly one outcome.
func (o *Orchestrator) SendAsync(ctx context.Context, messages []ChatMessage) <-chan TurnOutcome {
	out := make(chan TurnOutcome, 1)
	go func() {
		res, err := o.SendMessages(ctx, messages)
		out <- TurnOutcome{Result: res, Err: err}
	}()
	return out
}

func (o *Orchestrator) runTurn(ctx context.Context, thread *Thread) (Result, error) {
	start := time.Now()
	if err := o.ensureReady(ctx); err != nil {
		return Result{}, err
	}
	tc := &turnContext{task: thread.LastUserText(), thread: thread}

	var decision routeDecision
	if o.opts.skipReception {
		tc.directReason = directRoutingLog
		o.logger.Info(directRoutingLog)
		decision = routeDecision{route: RouteScript}
	} else {
		reply, err := o.reception.Complete(ctx, thread)
		if err != nil {
			return Result{}, err
		}
		decision = parseReceptionReply(reply)
	}

	if decision.route == RouteAnswer {
		thread.Append(AssistantMessage(decision.answer))
		res := Result{Success: true, Route: RouteAnswer, Response: decision.answer}
		o.record(ctx, tc, res, start)
		return res, nil
	}

	if decision.task != "" {
		tc.consolidatedTask = decision.task
		thread.Append(UserMessage(decision.task))
	}

	out := o.repairLoop(ctx, tc)
	res, err := o.finishScriptTurn(ctx, tc, out, nil)
	if err != nil {
		return res, err
	}
	o.record(ctx, tc, res, start)
	return res, nil
}

// finishScriptTurn maps a repair outcome to the user-facing result,
// explaining non-empty raw results unless disabled. When ch is non-nil
// (streaming turn), the response is also delivered into it.
func (o *Orchestrator) finishScriptTurn(ctx context.Context, tc *turnContext, out repairOutcome, ch chan<- string) (Result, error) {
	res := Result{
		Route:     RouteScript,
		Script:    out.script,
		Attempts:  out.attempts,
		RawResult: out.raw,
	}

	if !out.ok {
		if out.refusal && o.opts.obs != nil {
			o.opts.obs.PolicyRefusals.Add(ctx, 1)
		}
		res.Response = out.errMsg
		if res.Response == "" {
			res.Response = failureFallbackText
		}
		tc.thread.Append(AssistantMessage(res.Response))
		emit(ch, res.Response)
		return res, nil
	}

	res.Success = true
	rawText := rawResultText(out.raw)
	switch {
	case rawText == "":
		res.Response = completedText
		emit(ch, res.Response)
	case o.opts.skipExplainer:
		res.Response = rawText
		emit(ch, res.Response)
	case ch != nil:
		explained, err := explainStream(ctx, o.explainer, tc.effectiveTask(), rawText, ch, o.logger)
		if err != nil {
			return res, err
		}
		res.Response = explained
	default:
		explained, err := explain(ctx, o.explainer, tc.effectiveTask(), rawText, o.logger)
		if err != nil {
			// Explainer exceptions are not recovered.
			return res, err
		}
		res.Response = explained
	}

	tc.thread.Append(AssistantMessage(res.Response))
	return res, nil
}

func emit(ch chan<- string, text string) {
	if ch != nil && text != "" {
		ch <- text
	}
}

// Stream orchestrates a turn and delivers user-visible text into ch
// incrementally: answer-route tokens as they arrive (never any part of
// the routing word), explainer tokens as they arrive. ch is closed
// when the turn completes.
func (o *Orchestrator) Stream(ctx context.Context, messages []ChatMessage, ch chan<- string) (Result, error) {
	var closeOnce sync.Once
	closeCh := func() { closeOnce.Do(func() { close(ch) }) }
	defer closeCh()

	start := time.Now()
	if err := o.ensureReady(ctx); err != nil {
		return Result{}, err
	}
	thread := NewThread(messages...)
	tc := &turnContext{task: thread.LastUserText(), thread: thread}

	var decision routeDecision
	if o.opts.skipReception {
		tc.directReason = directRoutingLog
		o.logger.Info(directRoutingLog)
		decision = routeDecision{route: RouteScript}
	} else {
		router := newStreamRouter(func(text string) {
			select {
			case ch <- text:
			case <-ctx.Done():
			}
		})

		tokens := make(chan string, 64)
		var streamErr error
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, streamErr = o.reception.Stream(ctx, thread, tokens)
			close(tokens)
		}()
		for tok := range tokens {
			router.Feed(tok)
		}
		<-done
		if streamErr != nil {
			return Result{}, streamErr
		}
		decision = router.Finish()
	}

	if decision.route == RouteAnswer {
		thread.Append(AssistantMessage(decision.answer))
		res := Result{Success: true, Route: RouteAnswer, Response: decision.answer}
		o.record(ctx, tc, res, start)
		return res, nil
	}

	if decision.task != "" {
		tc.consolidatedTask = decision.task
		thread.Append(UserMessage(decision.task))
	}

	out := o.repairLoop(ctx, tc)
	res, err := o.finishScriptTurn(ctx, tc, out, ch)
	if err != nil {
		return res, err
	}
	o.record(ctx, tc, res, start)
	return res, nil
}

// ExecuteScriptDirect bypasses the agents entirely: the script is
// optionally validated, then executed by the active runner.
func (o *Orchestrator) ExecuteScriptDirect(ctx context.Context, script string, validate bool) (string, error) {
	if err := o.ensureReady(ctx); err != nil {
		return "", err
	}
	if validate {
		if err := o.validator.Validate(script); err != nil {
			return "", err
		}
	}
	raw, err := o.currentRunner().Execute(ctx, script)
	if err != nil {
		return "", err
	}
	return rawResultText(raw), nil
}

// EnableRemote re-points the runner at a remote transport and restarts
// it. In-flight executions fail with a transport-closed error.
func (o *Orchestrator) EnableRemote(ctx context.Context, baseURL string) error {
	if baseURL == "" {
		return errors.New("ason: remote runner URL is required")
	}
	t := runner.NewRemoteTransport(baseURL, o.logger)
	client := runner.NewClient(t, o.inv, o.toolInvoker(), runner.WithClientLogger(o.logger))
	if o.bundle != nil {
		bundle := o.bundle
		client.SetComposer(func(user string) string {
			return o.reg.ComposeScript(bundle, user)
		})
	}

	o.runnerMu.Lock()
	old := o.runner
	o.runner = client
	o.runnerMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return client.Start(ctx)
}

// record captures metrics and the audit entry for a completed turn.
func (o *Orchestrator) record(ctx context.Context, tc *turnContext, res Result, start time.Time) {
	if o.opts.obs != nil {
		o.opts.obs.Turns.Add(ctx, 1)
		o.opts.obs.RepairAttempts.Add(ctx, int64(res.Attempts))
		o.opts.obs.TurnDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	if o.opts.audit == nil {
		return
	}
	rec := store.TurnRecord{
		ID:        NewID(),
		Task:      tc.task,
		Route:     string(res.Route),
		Script:    res.Script,
		RawResult: string(res.RawResult),
		Response:  res.Response,
		Attempts:  res.Attempts,
		Success:   res.Success,
		CreatedAt: NowUnix(),
	}
	if !res.Success {
		rec.Error = res.Response
	}
	if err := o.opts.audit.SaveTurn(ctx, rec); err != nil {
		o.logger.Warn("audit store save failed", "error", err)
	}
}

// Close stops the runner and releases the audit store. Pending
// executions fail with a transport-closed error.
func (o *Orchestrator) Close() error {
	var errs []error
	if r := o.currentRunner(); r != nil {
		errs = append(errs, r.Close())
	}
	if o.opts.audit != nil {
		errs = append(errs, o.opts.audit.Close())
	}
	return errors.Join(errs...)
}
