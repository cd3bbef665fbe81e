// Command ason is a command-line host for the script orchestration
// engine: it reads ason.toml, registers the built-in operators, and
// runs a REPL over the orchestrator.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	ason "github.com/peopleworks/ason"
	"github.com/peopleworks/ason/internal/config"
	"github.com/peopleworks/ason/observer"
	"github.com/peopleworks/ason/operator"
	"github.com/peopleworks/ason/operators/document"
	"github.com/peopleworks/ason/operators/file"
	"github.com/peopleworks/ason/operators/web"
	"github.com/peopleworks/ason/provider/openaicompat"
	"github.com/peopleworks/ason/store/postgres"
	"github.com/peopleworks/ason/store/sqlite"
)

func main() {
	cfg := config.Load(os.Getenv("ASON_CONFIG"))
	if cfg.LLM.APIKey == "" {
		log.Fatal("ASON_LLM_API_KEY is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := operator.NewRegistry()
	workspace := filepath.Join(os.TempDir(), "ason-workspace")
	_ = os.MkdirAll(workspace, 0o755)
	must(reg.RegisterStatic(file.New(workspace), operator.WithName("Files"),
		operator.WithDescription("Read, write and list files in the workspace.")))
	must(reg.RegisterStatic(web.New(), operator.WithName("Web"),
		operator.WithDescription("Fetch web pages as readable text.")))
	must(reg.RegisterStatic(document.New(), operator.WithName("Documents"),
		operator.WithDescription("Extract text from PDF documents.")))

	opts := []ason.Option{
		ason.WithLogger(logger),
		ason.WithMaxFixAttempts(cfg.Orchestrator.MaxFixAttempts),
		ason.WithExecutionMode(ason.ExecutionMode(cfg.Runner.ExecutionMode)),
	}
	if cfg.Orchestrator.SkipReception {
		opts = append(opts, ason.WithSkipReception())
	}
	if cfg.Orchestrator.SkipExplainer {
		opts = append(opts, ason.WithSkipExplainer())
	}
	if s := cfg.Orchestrator.ReceptionInstructions; s != "" {
		opts = append(opts, ason.WithReceptionInstructions(s))
	}
	if s := cfg.Orchestrator.ScriptInstructions; s != "" {
		opts = append(opts, ason.WithScriptInstructions(s))
	}
	if s := cfg.Orchestrator.ExplainerInstructions; s != "" {
		opts = append(opts, ason.WithExplainerInstructions(s))
	}
	if len(cfg.Orchestrator.ForbiddenKeywords) > 0 {
		opts = append(opts, ason.WithForbiddenKeywords(cfg.Orchestrator.ForbiddenKeywords...))
	}
	if cfg.Runner.UseRemote {
		opts = append(opts, ason.WithRemoteRunner(cfg.Runner.RemoteBaseURL))
	}
	if cfg.Runner.ContainerImage != "" {
		opts = append(opts, ason.WithContainerImage(cfg.Runner.ContainerImage))
	}
	if cfg.Runner.ExecutablePath != "" {
		opts = append(opts, ason.WithRunnerPath(cfg.Runner.ExecutablePath))
	}
	if cfg.Store.Driver == "sqlite" {
		audit := sqlite.New(cfg.Store.Path, sqlite.WithLogger(logger))
		if err := audit.Init(ctx); err != nil {
			log.Fatal(err)
		}
		opts = append(opts, ason.WithAuditStore(audit))
	}
	if cfg.Store.Driver == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		audit := postgres.New(pool)
		if err := audit.Init(ctx); err != nil {
			log.Fatal(err)
		}
		opts = append(opts, ason.WithAuditStore(audit))
	}
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			log.Fatal(err)
		}
		defer shutdown(context.Background())
		opts = append(opts, ason.WithObserver(inst))
	}

	chat := openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	orch, err := ason.New(chat, reg, opts...)
	if err != nil {
		log.Fatal(err)
	}
	defer orch.Close()

	fmt.Println("ason ready. Type a task, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}

		ch := make(chan string, 64)
		go func() {
			for chunk := range ch {
				fmt.Print(chunk)
			}
			fmt.Println()
		}()
		if _, err := orch.Stream(ctx, []ason.ChatMessage{ason.UserMessage(line)}, ch); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
