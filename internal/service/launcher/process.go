package launcher

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mitchellh/go-ps"
	"go.uber.org/zap"

	"github.com/oshokin/deploykeeper/internal/logger"
)

const (
	// maxLineSize is the longest output line kept whole.
	maxLineSize = 256 << 10

	// exitGrace is how long a cancelled child gets before the liveness check.
	exitGrace = 5 * time.Second
)

// process is the state of one launch. It is never shared between launches.
type process struct {
	// cmd is the running child.
	cmd *exec.Cmd
	// output is the read end of the combined output pipe.
	output *os.File
	// cancel kills the child.
	cancel context.CancelFunc
	// onCancel observes the single cancellation.
	onCancel func()
	// cancelOnce makes stop idempotent.
	cancelOnce sync.Once
	// done is closed when the drain worker returns.
	done chan struct{}
	// exited is closed when the child has been reaped.
	exited chan struct{}
}

func newProcess(cmd *exec.Cmd, output *os.File, cancel context.CancelFunc, onCancel func()) *process {
	return &process{
		cmd:      cmd,
		output:   output,
		cancel:   cancel,
		onCancel: onCancel,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

// drained reports whether the output of the child has been closed.
func (p *process) drained() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// drain copies output lines into transcript until the pipe closes. After the
// transcript stops recording, lines are still read and discarded so the child
// never blocks on a full pipe.
func (p *process) drain(transcript *Transcript, echo *zap.SugaredLogger) {
	defer close(p.done)

	scanner := bufio.NewScanner(p.output)
	scanner.Buffer(make([]byte, 4*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if transcript.Append(line) && echo != nil {
			echo.Debug(line)
		}
	}

	// An overlong line stops the scanner; keep emptying the pipe.
	if errors.Is(scanner.Err(), bufio.ErrTooLong) {
		_, _ = io.Copy(io.Discard, p.output)
	}

	_ = p.output.Close()
}

// reap waits for the child to exit and releases its resources.
func (p *process) reap(ctx context.Context) {
	defer close(p.exited)

	err := p.cmd.Wait()
	logger.DebugKV(ctx, "Application process exited", "pid", p.pid(), "error", err)
}

// stop cancels the child and its drain worker. Only the first call has effect.
func (p *process) stop(ctx context.Context) {
	p.cancelOnce.Do(func() {
		logger.InfoKV(ctx, "Cancelling application process", "pid", p.pid())

		p.cancel()
		// Unblocks the drain worker even if a grandchild still holds the pipe.
		_ = p.output.Close()

		if p.onCancel != nil {
			p.onCancel()
		}

		select {
		case <-p.exited:
		case <-time.After(exitGrace):
		}

		p.logLiveness(ctx)
	})
}

// logLiveness reports whether the cancelled child is still in the process table.
func (p *process) logLiveness(ctx context.Context) {
	found, err := ps.FindProcess(p.pid())
	switch {
	case err != nil:
		logger.WarnKV(ctx, "Failed to check application process", "pid", p.pid(), "error", err)
	case found != nil:
		logger.WarnKV(ctx, "Application process is still alive after cancellation", "pid", p.pid(), "executable", found.Executable())
	default:
		logger.DebugKV(ctx, "Application process is gone", "pid", p.pid())
	}
}
