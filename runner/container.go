package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DefaultContainerImage is used when no image override is configured.
const DefaultContainerImage = "python:3.12-slim"

// ContainerTransport runs the Python protocol prelude inside a
// container and exchanges frames over the attached stdio streams. The
// wire format is identical to SubprocessTransport; only the launcher
// differs.
type ContainerTransport struct {
	image  string
	logger *slog.Logger

	mu          sync.Mutex
	started     bool
	closed      bool
	cli         *client.Client
	containerID string
	stdin       io.Writer
	detach      func()
	writeMu     sync.Mutex
	onLine      func([]byte)
	onClosed    func(error)
}

// NewContainerTransport creates a transport that runs the prelude in a
// container of the given image (DefaultContainerImage when empty).
func NewContainerTransport(image string, logger *slog.Logger) *ContainerTransport {
	if image == "" {
		image = DefaultContainerImage
	}
	if logger == nil {
		logger = slog.New(discardLogHandler{})
	}
	return &ContainerTransport{image: image, logger: logger}
}

func (t *ContainerTransport) Notify(onLine func([]byte), onClosed func(error)) {
	t.onLine = onLine
	t.onClosed = onClosed
}

// Start creates, attaches and starts the runner container.
func (t *ContainerTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started && !t.closed {
		return nil
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("runner: docker client: %w", err)
	}

	created, err := cli.ContainerCreate(ctx, &container.Config{
		Image:       t.image,
		Cmd:         []string{"python3", "-u", "-c", preludeSource},
		OpenStdin:   true,
		AttachStdin: true,
		Tty:         false,
	}, nil, nil, nil, "")
	if err != nil {
		return fmt.Errorf("runner: create container: %w", err)
	}

	attach, err := cli.ContainerAttach(ctx, created.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("runner: attach container: %w", err)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		attach.Close()
		return fmt.Errorf("runner: start container: %w", err)
	}

	t.cli = cli
	t.containerID = created.ID
	t.stdin = attach.Conn
	t.detach = attach.Close
	t.started = true
	t.closed = false
	once := &sync.Once{}

	// The attached stream multiplexes stdout and stderr; demux into
	// pipes and scan protocol lines from stdout only.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(stdoutW, stderrW, attach.Reader)
		stdoutW.CloseWithError(err)
		stderrW.CloseWithError(err)
	}()
	go t.readLoop(stdoutR)
	go t.stderrLoop(stderrR)

	waitCh, errCh := cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	go func() {
		var reason error
		select {
		case w := <-waitCh:
			if w.StatusCode != 0 {
				reason = fmt.Errorf("container exited with status %d", w.StatusCode)
			}
		case err := <-errCh:
			reason = err
		}
		t.fireClosed(once, reason)
	}()
	return nil
}

func (t *ContainerTransport) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if t.onLine != nil {
			t.onLine(line)
		}
	}
}

func (t *ContainerTransport) stderrLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if text := scanner.Text(); text != "" {
			t.logger.Debug("runner stderr", "line", text)
		}
	}
}

func (t *ContainerTransport) fireClosed(once *sync.Once, reason error) {
	once.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		if t.onClosed != nil {
			t.onClosed(reason)
		}
	})
}

// Send writes one protocol line to the container's stdin.
func (t *ContainerTransport) Send(line []byte) error {
	t.mu.Lock()
	started, closed, stdin := t.started, t.closed, t.stdin
	t.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if closed {
		return &ClosedError{}
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := stdin.Write(line); err != nil {
		return &ClosedError{Reason: err}
	}
	return nil
}

// Stop removes the container; the wait goroutine delivers the close
// event.
func (t *ContainerTransport) Stop() error {
	t.mu.Lock()
	cli, id, detach := t.cli, t.containerID, t.detach
	started, closed := t.started, t.closed
	t.mu.Unlock()
	if !started || closed || cli == nil {
		return nil
	}
	if detach != nil {
		detach()
	}
	return cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
}

var _ Transport = (*ContainerTransport)(nil)
