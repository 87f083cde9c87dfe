// Package worker wraps a checker worker as a child OS process exposing a
// JSON-RPC reader/writer pair over its stdin/stdout, with stderr
// inherited for the worker's own logs.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sigcheck/sigcheck/internal/rpc"
)

// Kind identifies what a worker was started for.
type Kind string

const (
	Interaction Kind = "interaction"
	Signature   Kind = "signature"
	Code        Kind = "code"
)

// Process is a spawned worker: its OS process plus the RPC framing over
// its stdio. Reads from the worker are delivered to Inbound; sends go
// through Send. Exactly one reader goroutine and one writer goroutine are
// owned per Process, managed by an errgroup so a reader EOF or writer I/O
// error surfaces through Wait rather than being silently dropped.
type Process struct {
	Kind  Kind
	Index int

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	reader  *rpc.Reader
	writer  *rpc.Writer
	logger  *zap.Logger
	Inbound chan rpc.Message
	send    chan rpc.Message
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// Spawn starts the sigcheck binary as `sigcheck worker <args...>` with
// steepfile and inherited stderr, and wires its stdin/stdout through the
// rpc package.
func Spawn(ctx context.Context, binary string, kind Kind, index int, steepfile string, args []string, logger *zap.Logger) (*Process, error) {
	cmdArgs := append([]string{"worker"}, args...)
	if steepfile != "" {
		cmdArgs = append(cmdArgs, "--steepfile="+steepfile)
	}

	childCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(childCtx, binary, cmdArgs...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("worker: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("worker: start %s: %w", binary, err)
	}

	group, _ := errgroup.WithContext(childCtx)
	p := &Process{
		Kind:    kind,
		Index:   index,
		cmd:     cmd,
		stdin:   stdin,
		reader:  rpc.NewReader(stdout),
		writer:  rpc.NewWriter(stdin),
		logger:  logger.With(zap.String("worker", string(kind)), zap.Int("index", index)),
		Inbound: make(chan rpc.Message, 64),
		send:    make(chan rpc.Message, 64),
		group:   group,
		cancel:  cancel,
	}

	group.Go(p.readLoop)
	group.Go(p.writeLoop)
	return p, nil
}

func (p *Process) readLoop() error {
	defer close(p.Inbound)
	for {
		msg, err := p.reader.ReadMessage()
		if err != nil {
			if rpc.IsMalformed(err) {
				p.logger.Warn("malformed message from worker, ignoring", zap.Error(err))
				continue
			}
			if err == io.EOF {
				p.logger.Warn("worker closed its output stream")
			}
			return err
		}
		p.Inbound <- msg
	}
}

func (p *Process) writeLoop() error {
	for msg := range p.send {
		if err := p.writer.WriteMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// Send enqueues msg for delivery to the worker. Safe to call from the
// master's single event-loop goroutine only (the write queue itself is
// MP-SC at the master level; each Process's send channel has exactly one
// producer by construction).
func (p *Process) Send(msg rpc.Message) {
	p.send <- msg
}

// Shutdown closes the worker's stdin (the graceful-shutdown sentinel),
// waits for its reader/writer goroutines to join, and reaps the process.
// Safe to call once. A fake Process built by NewFake has no subprocess
// to reap; Shutdown just closes its send channel.
func (p *Process) Shutdown() error {
	close(p.send)
	if p.cmd == nil {
		return nil
	}
	_ = p.stdin.Close()
	err := p.group.Wait()
	p.cancel()
	waitErr := p.cmd.Wait()
	if err != nil && err != io.EOF {
		return err
	}
	return waitErr
}

// Kill forcibly terminates a worker that stopped responding, for the
// crash-requeue path when graceful shutdown cannot be used.
func (p *Process) Kill() {
	if p.cancel != nil {
		p.cancel()
	}
}

// NewFake builds a Process with no backing OS process, for tests in
// other packages that need to drive a master's fan-in/fan-out over a
// worker's Inbound channel without spawning a real child. Send enqueues
// onto a live buffered channel a caller can drain via Sent; there is no
// writer goroutine and no subprocess to reap, so Shutdown on a fake
// Process only closes its send channel and Kill does nothing.
func NewFake(kind Kind, index int) *Process {
	return &Process{
		Kind:    kind,
		Index:   index,
		Inbound: make(chan rpc.Message, 64),
		send:    make(chan rpc.Message, 64),
	}
}

// Sent drains messages a fake Process's owner queued via Send.
func (p *Process) Sent() <-chan rpc.Message {
	return p.send
}
