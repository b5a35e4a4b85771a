// Package process launches and stops engine server processes.
//
// The engine is a Java application. A Launcher resolves the model package,
// builds the class path from the server library and the model directory,
// starts the JVM on a local port and waits until the port accepts
// connections. The returned Process is the handle used to find the server,
// to notice when it dies and to shut it down.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/simlink/clock"
	"github.com/hupe1980/simlink/logging"
)

// ServerClass is the engine server's main class.
const ServerClass = "com.anylogic.alpyne.AlpyneServer"

// DefaultStartTimeout bounds the wait for the server port.
const DefaultStartTimeout = 30 * time.Second

// JavaLogLevel is a java.util.logging level name.
type JavaLogLevel string

// Java logging levels, most severe first.
const (
	JavaSevere  JavaLogLevel = "SEVERE"
	JavaWarning JavaLogLevel = "WARNING"
	JavaInfo    JavaLogLevel = "INFO"
	JavaConfig  JavaLogLevel = "CONFIG"
	JavaFine    JavaLogLevel = "FINE"
	JavaFiner   JavaLogLevel = "FINER"
	JavaFinest  JavaLogLevel = "FINEST"
)

// JavaLevel maps a logging level onto the engine's logging levels.
func JavaLevel(l logging.LogLevel) JavaLogLevel {
	switch l {
	case logging.LogLevelDebug:
		return JavaFinest
	case logging.LogLevelInfo:
		return JavaInfo
	case logging.LogLevelError:
		return JavaSevere
	default:
		return JavaWarning
	}
}

// ParseJavaLevel accepts a Java level name or a logging level name.
func ParseJavaLevel(s string) (JavaLogLevel, error) {
	switch l := JavaLogLevel(strings.ToUpper(strings.TrimSpace(s))); l {
	case JavaSevere, JavaWarning, JavaInfo, JavaConfig, JavaFine, JavaFiner, JavaFinest:
		return l, nil
	}
	lvl, err := logging.ParseLevel(s)
	if err != nil {
		return "", fmt.Errorf("unknown java log level %q", s)
	}
	return JavaLevel(lvl), nil
}

// Launcher starts engine servers.
//
// The engine may keep exclusive handles on files in the model directory,
// for example an embedded database. Two processes sharing one extracted
// model directory can therefore interfere; launch each from its own .zip
// export, or its own copy, when running engines in parallel.
type Launcher struct {
	// Java is the java executable. Defaults to "java" on the PATH.
	Java string

	// JavaArgs are passed to the JVM before the class path, e.g. "-Xmx2g".
	JavaArgs []string

	// ServerPath is the directory holding the engine server's jars.
	ServerPath string

	// LogLevel is the engine's own log level. Defaults to JavaWarning.
	LogLevel JavaLogLevel

	// AutoFinish makes the engine move a run to FINISHED as soon as its
	// stop condition holds.
	AutoFinish bool

	// StartTimeout bounds the wait for the server port. Defaults to
	// DefaultStartTimeout.
	StartTimeout time.Duration

	// Env is added to the current environment of the process.
	Env []string

	// Stdout and Stderr receive the process output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	Clock  clock.Clock
	Logger logging.Logger
}

// Args returns the command line arguments, without the executable, for
// running pkg on port.
func (l *Launcher) Args(pkg *ModelPackage, port int) ([]string, error) {
	initDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	var sources []string
	if l.ServerPath != "" {
		server, err := wildcards(l.ServerPath)
		if err != nil {
			return nil, fmt.Errorf("server path: %w", err)
		}
		sources = append(sources, server...)
	}
	model, err := wildcards(pkg.Dir)
	if err != nil {
		return nil, fmt.Errorf("model directory: %w", err)
	}
	sources = append(sources, model...)

	level := l.LogLevel
	if level == "" {
		level = JavaWarning
	}

	args := append([]string(nil), l.JavaArgs...)
	args = append(args,
		"-cp", strings.Join(shorten(sources, pkg.Dir), string(os.PathListSeparator)),
		ServerClass,
		"-p", strconv.Itoa(port),
		"-l", string(level),
		"-d", initDir,
	)
	if l.AutoFinish {
		args = append(args, "-f")
	}
	return append(args, "."), nil
}

// Start launches the engine for pkg on port and waits until it listens.
// The process runs in the model directory.
func (l *Launcher) Start(ctx context.Context, pkg *ModelPackage, port int) (*Process, error) {
	logger := logging.Scoped(logging.OrNoOp(l.Logger), "launcher", strconv.Itoa(port))
	clk := clock.OrReal(l.Clock)

	args, err := l.Args(pkg, port)
	if err != nil {
		return nil, err
	}
	java := l.Java
	if java == "" {
		java = "java"
	}

	cmd := exec.Command(java, args...)
	cmd.Dir = pkg.Dir
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	logger.Debug("Starting engine", "command", java, "args", args, "dir", pkg.Dir)
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("java not found (%s): %w", java, err)
		}
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p := newProcess(cmd, stdin, port, clk, logger)
	logger.Info("Started engine", "pid", p.PID(), "port", port)

	timeout := l.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	if err := p.waitListening(ctx, timeout); err != nil {
		_ = p.Stop(context.Background())
		return nil, err
	}
	return p, nil
}

// wildcards returns dir/* and sub/* for every subdirectory of dir, so the
// class path stays short however many jars there are.
func wildcards(dir string) ([]string, error) {
	paths := []string{filepath.Join(dir, "*")}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != dir {
			paths = append(paths, filepath.Join(p, "*"))
		}
		return nil
	})
	return paths, err
}

// shorten rewrites paths relative to base where that is shorter.
func shorten(paths []string, base string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p
		if rel, err := filepath.Rel(base, p); err == nil && len(rel) < len(p) {
			out[i] = rel
		}
	}
	return out
}

// dialable reports whether something accepts connections on addr.
func dialable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
