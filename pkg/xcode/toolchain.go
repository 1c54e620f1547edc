package xcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"Sherpa/pkg/logger"
)

// ErrToolNotFound is returned when xcdevice cannot be located
var ErrToolNotFound = errors.New("xcdevice not found")

// listGrace is added on top of the xcdevice --timeout so the process can report before it is killed
const listGrace = 5 * time.Second

// Runner runs a command to completion and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Starter starts a long-running command
type Starter func(ctx context.Context, name string, args ...string) (Process, error)

// Process is a running `xcdevice observe`
type Process interface {
	Stdout() io.Reader
	Wait() error
	Kill() error
}

// Toolchain wraps the Xcode command line tools used for device discovery
type Toolchain struct {
	developerDir string
	listTimeout  time.Duration

	run   Runner
	start Starter
	stat  func(string) (os.FileInfo, error)

	mu           sync.Mutex
	observerPath string
}

// NewToolchain creates a toolchain. developerDir may be empty to ask xcode-select.
func NewToolchain(developerDir string, listTimeout time.Duration) *Toolchain {
	if listTimeout <= 0 {
		listTimeout = time.Second
	}
	return &Toolchain{
		developerDir: developerDir,
		listTimeout:  listTimeout,
		run:          execRun,
		start:        execStart,
		stat:         os.Stat,
	}
}

// ObserverPath returns the xcdevice path. The first successful lookup is cached.
func (t *Toolchain) ObserverPath(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.observerPath != "" {
		return t.observerPath, nil
	}

	devDir := t.developerDir
	if devDir == "" {
		out, err := t.run(ctx, "xcode-select", "-p")
		if err != nil {
			return "", fmt.Errorf("%w: xcode-select -p: %v", ErrToolNotFound, err)
		}
		devDir = strings.TrimSpace(string(out))
		if devDir == "" {
			return "", fmt.Errorf("%w: xcode-select returned no developer directory", ErrToolNotFound)
		}
	}

	path := filepath.Join(devDir, "usr", "bin", "xcdevice")
	if _, err := t.stat(path); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, path, err)
	}

	logger.LogDebug("xcode").Str("path", path).Msg("Resolved xcdevice")
	t.observerPath = path
	return path, nil
}

// ListTargets runs `xcdevice list` and returns every reported target
func (t *Toolchain) ListTargets(ctx context.Context) ([]Target, error) {
	path, err := t.ObserverPath(ctx)
	if err != nil {
		return nil, err
	}

	secs := int(math.Ceil(t.listTimeout.Seconds()))
	if secs < 1 {
		secs = 1
	}

	listCtx, cancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second+listGrace)
	defer cancel()

	out, err := t.run(listCtx, path, "list", fmt.Sprintf("--timeout=%d", secs))
	if err != nil {
		return nil, fmt.Errorf("xcdevice list: %w", err)
	}
	return ParseTargets(out)
}

// SimulatorStates returns simulator udid -> state from `simctl list devices --json`
func (t *Toolchain) SimulatorStates(ctx context.Context) (map[string]string, error) {
	out, err := t.run(ctx, "xcrun", "simctl", "list", "devices", "--json")
	if err != nil {
		return nil, fmt.Errorf("simctl list: %w", err)
	}
	return ParseSimulatorStates(out)
}

// Observe starts `xcdevice observe --both`. The process dies with ctx.
func (t *Toolchain) Observe(ctx context.Context, path string) (Process, error) {
	return t.start(ctx, path, "observe", "--both")
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w, stderr: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func execStart(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", filepath.Base(name), err)
	}
	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

// Kill is a no-op once the process has exited
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
