// Command runnerd is a remote script runner daemon: it serves the
// runner protocol over a WebSocket endpoint and bridges each
// connection to a local Python runner subprocess.
//
// Designed to run as a sidecar container next to the orchestrating
// app. One connection owns one runner process; when either side goes
// away the other is torn down.
package main

import (
	"bufio"
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/peopleworks/ason/runner"
)

type config struct {
	addr      string
	pythonBin string
}

func loadConfig() config {
	cfg := config{addr: ":9000", pythonBin: "python3"}
	if v := os.Getenv("RUNNERD_ADDR"); v != "" {
		cfg.addr = v
	}
	if v := os.Getenv("RUNNERD_PYTHON_BIN"); v != "" {
		cfg.pythonBin = v
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mux := http.NewServeMux()
	mux.HandleFunc(runner.RemotePath, func(w http.ResponseWriter, r *http.Request) {
		serveRunner(w, r, cfg, logger)
	})

	srv := &http.Server{Addr: cfg.addr, Handler: mux}
	go func() {
		logger.Info("runnerd listening", "addr", cfg.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	_ = srv.Shutdown(context.Background())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// serveRunner bridges one WebSocket connection to one Python runner
// subprocess: frames from the socket go to the runner's stdin, lines
// from its stdout go back as text messages.
func serveRunner(w http.ResponseWriter, r *http.Request, cfg config, logger *slog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	cmd := exec.Command(cfg.pythonBin, "-u", "-c", runner.PreludeSource())
	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.Error("stdin pipe", "error", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Error("stdout pipe", "error", err)
		return
	}
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		logger.Error("start runner", "error", err)
		return
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	logger.Info("runner session started", "remote", r.RemoteAddr)

	// stdout -> socket
	done := make(chan struct{})
	go func() {
		defer close(done)
		// The runner's stdout ended: close the socket so the read loop
		// below stops and the session is torn down.
		defer conn.Close()
		scanner := newLineScanner(stdout)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
				return
			}
		}
	}()

	// socket -> stdin
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if len(data) == 0 {
			continue
		}
		if data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		if _, err := stdin.Write(data); err != nil {
			break
		}
	}

	_ = stdin.Close()
	<-done
	logger.Info("runner session ended", "remote", r.RemoteAddr)
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return s
}
