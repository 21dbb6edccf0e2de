package supervisor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"todoe2e/pkg/logging"
)

// logCapture drains a child's stdout and stderr on dedicated goroutines so
// the child never blocks on a full pipe. Every line is kept and forwarded to
// the logger.
type logCapture struct {
	name         string
	stdoutBuf    *bytes.Buffer
	stderrBuf    *bytes.Buffer
	stdoutReader *io.PipeReader
	stderrReader *io.PipeReader
	stdoutWriter *io.PipeWriter
	stderrWriter *io.PipeWriter
	wg           sync.WaitGroup
	mu           sync.RWMutex
}

func newLogCapture(name string) *logCapture {
	lc := &logCapture{
		name:      name,
		stdoutBuf: &bytes.Buffer{},
		stderrBuf: &bytes.Buffer{},
	}

	lc.stdoutReader, lc.stdoutWriter = io.Pipe()
	lc.stderrReader, lc.stderrWriter = io.Pipe()

	lc.wg.Add(2)
	go lc.captureOutput(lc.stdoutReader, lc.stdoutBuf, name+"-STDOUT", logging.Debug)
	go lc.captureOutput(lc.stderrReader, lc.stderrBuf, name+"-STDERR", logging.Info)

	return lc
}

func (lc *logCapture) captureOutput(reader *io.PipeReader, buffer *bytes.Buffer, subsystem string, logf func(string, string, ...interface{})) {
	defer lc.wg.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		lc.mu.Lock()
		buffer.WriteString(line + "\n")
		lc.mu.Unlock()
		logf(subsystem, "%s", line)
	}
	// Keep the writer side from blocking if the scanner gave up on a huge line.
	_, _ = io.Copy(io.Discard, reader)
}

// close closes the write ends and waits for the readers to finish.
func (lc *logCapture) close() {
	lc.stdoutWriter.Close()
	lc.stderrWriter.Close()
	lc.wg.Wait()
}

// combined returns both streams in one block, stdout first.
func (lc *logCapture) combined() string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	stdout := lc.stdoutBuf.String()
	stderr := lc.stderrBuf.String()

	var b strings.Builder
	if stdout != "" {
		b.WriteString("=== STDOUT ===\n" + stdout)
	}
	if stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("=== STDERR ===\n" + stderr)
	}
	return b.String()
}

// ProcessSpec describes a child to launch.
type ProcessSpec struct {
	Name    string
	Dir     string
	Command []string
	Env     []string // appended to the parent's environment
}

// Process is a supervised child. Its output goroutines and its waiter
// goroutine all end when the child exits.
type Process struct {
	name    string
	cmd     *exec.Cmd
	capture *logCapture
	done    chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

// StartProcess launches spec and returns once the child is running.
func StartProcess(spec ProcessSpec) (*Process, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("no command for %s", spec.Name)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	// Grandchildren may keep the pipes open after the child exits.
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)

	capture := newLogCapture(spec.Name)
	cmd.Stdout = capture.stdoutWriter
	cmd.Stderr = capture.stderrWriter

	logging.Info("Supervisor", "starting %s: %s (dir %s)", spec.Name, strings.Join(spec.Command, " "), spec.Dir)
	if err := cmd.Start(); err != nil {
		capture.close()
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}

	p := &Process{
		name:    spec.Name,
		cmd:     cmd,
		capture: capture,
		done:    make(chan struct{}),
	}
	go p.wait()

	logging.Debug("Supervisor", "%s started (PID: %d)", spec.Name, cmd.Process.Pid)
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.capture.close()

	p.mu.Lock()
	p.waitErr = err
	p.exitCode = p.cmd.ProcessState.ExitCode()
	p.mu.Unlock()

	close(p.done)
}

// Name is the label the process was started with.
func (p *Process) Name() string { return p.name }

// PID of the child.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Exited reports whether the child has terminated and with which code.
func (p *Process) Exited() (int, bool) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exitCode, true
	default:
		return 0, false
	}
}

// Output returns everything captured so far.
func (p *Process) Output() string {
	return p.capture.combined()
}

// Done is closed once the child has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Stop sends SIGTERM to the child's group, waits up to grace and then kills
// the group.
func (p *Process) Stop(grace time.Duration) error {
	if _, exited := p.Exited(); exited {
		return nil
	}

	logging.Info("Supervisor", "stopping %s (PID: %d)", p.name, p.PID())
	if err := terminate(p.cmd); err != nil {
		logging.Warn("Supervisor", "SIGTERM failed for %s, using SIGKILL: %v", p.name, err)
		return p.forceKill()
	}

	select {
	case <-p.done:
		logging.Info("Supervisor", "%s exited gracefully", p.name)
		return nil
	case <-time.After(grace):
		logging.Warn("Supervisor", "%s did not exit within %v, forcing kill", p.name, grace)
		return p.forceKill()
	}
}

func (p *Process) forceKill() error {
	if err := kill(p.cmd); err != nil {
		if _, exited := p.Exited(); exited {
			return nil
		}
		return fmt.Errorf("kill %s: %w", p.name, err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("%s still running after SIGKILL", p.name)
	}
}
