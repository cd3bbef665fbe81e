package ason

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/peopleworks/ason/runner"
)

// repairOutcome is the result of one pass through the script repair
// loop.
type repairOutcome struct {
	ok       bool
	raw      json.RawMessage
	script   string
	attempts int
	errMsg   string
	refusal  bool
	terminal bool // transport closed or cancelled; no retry possible
}

// repairLoop drives the script agent through up to maxFixAttempts+1
// attempts: generate, normalize, validate, execute, and on failure feed
// the error back as a corrective prompt. Policy refusals ("Cannot…")
// short-circuit the loop; a transport close is terminal for the turn.
func (o *Orchestrator) repairLoop(ctx context.Context, tc *turnContext) repairOutcome {
	maxAttempts := o.opts.maxFixAttempts + 1
	var out repairOutcome

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.attempts = attempt

		reply, err := o.scriptAgent.Complete(ctx, tc.thread)
		if err != nil {
			out.errMsg = err.Error()
			out.terminal = true
			return out
		}
		o.logger.Debug("script agent", "task", tc.effectiveTask(), "reply", reply)

		script := NormalizeScript(reply)
		out.script = script

		if err := o.validator.Validate(script); err != nil {
			msg := validationMessage(err)
			o.logger.Warn("Validation failed", "attempt", attempt, "error", msg)
			out.errMsg = msg
			if IsPolicyRefusal(msg) {
				out.refusal = true
				return out
			}
			o.feedback(tc, msg)
			continue
		}

		execStart := time.Now()
		raw, execErr := o.runner.Execute(ctx, script)
		if o.opts.obs != nil {
			o.opts.obs.Executions.Add(ctx, 1)
			o.opts.obs.ExecDuration.Record(ctx, float64(time.Since(execStart).Milliseconds()))
		}
		if execErr == nil {
			out.ok = true
			out.raw = raw
			out.errMsg = ""
			return out
		}

		msg := execErr.Error()
		var rerr *runner.Error
		if errors.As(execErr, &rerr) {
			msg = rerr.Message
		}
		o.logger.Warn("Execution error", "attempt", attempt, "error", msg)
		out.errMsg = msg

		var closed *runner.ClosedError
		if errors.As(execErr, &closed) || ctx.Err() != nil {
			out.terminal = true
			return out
		}
		if IsPolicyRefusal(msg) {
			out.refusal = true
			return out
		}
		o.feedback(tc, msg)
	}

	return out
}

// feedback appends the corrective turn that asks the script agent to
// regenerate.
func (o *Orchestrator) feedback(tc *turnContext, errMsg string) {
	tc.thread.Append(UserMessage(repairPromptPrefix + errMsg))
}

func validationMessage(err error) string {
	var ve *ErrValidation
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}
