package process

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/hupe1980/simlink/clock"
	"github.com/hupe1980/simlink/logging"
)

// StopGrace is how long Stop waits for the engine to exit by itself before
// killing it.
const StopGrace = 3 * time.Second

// Process is a running engine server.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	port   int
	clock  clock.Clock
	logger logging.Logger

	done chan struct{}
	err  error

	stopOnce sync.Once
	stopErr  error
}

func newProcess(cmd *exec.Cmd, stdin io.WriteCloser, port int, clk clock.Clock, logger logging.Logger) *Process {
	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		port:   port,
		clock:  clk,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
		if p.err != nil {
			logger.Warn("Engine exited", "pid", p.PID(), "error", p.err.Error())
		} else {
			logger.Debug("Engine exited", "pid", p.PID())
		}
	}()
	return p
}

// Port returns the server port.
func (p *Process) Port() int { return p.port }

// Endpoint returns the server's base URL.
func (p *Process) Endpoint() string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(p.port))
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error once Done is closed; nil before that and for
// a clean exit.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stop shuts the engine down: it writes to the engine's standard input,
// which the server treats as a quit request, waits up to StopGrace and then
// kills the process. It is safe to call more than once.
func (p *Process) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		_, _ = io.WriteString(p.stdin, "quit\n")
		_ = p.stdin.Close()

		select {
		case <-p.done:
			return
		case <-p.clock.After(StopGrace):
		case <-ctx.Done():
		}

		p.logger.Warn("Engine did not exit in time, killing it", "pid", p.PID())
		if err := p.cmd.Process.Kill(); err != nil {
			p.stopErr = fmt.Errorf("kill engine: %w", err)
			return
		}
		<-p.done
	})
	return p.stopErr
}

func (p *Process) waitListening(ctx context.Context, timeout time.Duration) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(p.port))
	deadline := p.clock.After(timeout)
	for {
		if dialable(addr) {
			return nil
		}
		select {
		case <-p.done:
			return fmt.Errorf("engine exited during startup: %v", p.err)
		case <-deadline:
			return fmt.Errorf("engine did not listen on %s within %s", addr, timeout)
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(50 * time.Millisecond):
		}
	}
}
