package ason

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// explainPrompt builds the explainer input from the task and the raw
// script result.
func explainPrompt(task, rawText string) string {
	return taskOpenTag + "\n" + task + "\n" + taskCloseTag + "\n" +
		"<result>\n" + rawText + "\n</result>"
}

// explain asks the explainer agent to render the raw result as prose.
// An empty or whitespace reply falls back to the raw result verbatim.
func explain(ctx context.Context, agent *Agent, task, rawText string, logger *slog.Logger) (string, error) {
	reply, err := agent.Complete(ctx, NewThread(UserMessage(explainPrompt(task, rawText))))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		logger.Info("explainer returned empty reply, falling back to raw result")
		return rawText, nil
	}
	return reply, nil
}

// explainStream is the streaming variant: explainer tokens are
// delivered into ch as they arrive and the accumulated reply is
// returned for the final assistant turn.
func explainStream(ctx context.Context, agent *Agent, task, rawText string, ch chan<- string, logger *slog.Logger) (string, error) {
	reply, err := agent.Stream(ctx, NewThread(UserMessage(explainPrompt(task, rawText))), ch)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		logger.Info("explainer returned empty reply, falling back to raw result")
		ch <- rawText
		return rawText, nil
	}
	return reply, nil
}

// rawResultText renders a raw JSON result for prompts and user output:
// JSON strings are unquoted, null and absent values are empty.
func rawResultText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}
