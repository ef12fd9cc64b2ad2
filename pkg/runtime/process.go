// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/Thermoquad/linkage/pkg/logging"
)

// Process is a running child
type Process interface {
	Pid() int
	// Kill stops the child, forcibly if it does not exit in time. Killing
	// an already exited child is not an error.
	Kill() error
	// Wait reaps the child. A non-zero exit status is not an error.
	Wait() error
}

// Command describes one child to start
type Command struct {
	Name string // used in logs
	Argv []string
	Dir  string
	Env  []string // appended to the supervisor's environment
	// ExtraFiles become fds 3, 4, ... in the child
	ExtraFiles []*os.File
}

// Spawner starts child processes
type Spawner interface {
	Spawn(c Command) (Process, error)
}

// DefaultStopTimeout is how long a child gets to exit after SIGTERM
const DefaultStopTimeout = 2 * time.Second

// ExecSpawner starts children with os/exec. Kill asks a child to stop with
// SIGTERM and falls back to SIGKILL once StopTimeout has passed.
type ExecSpawner struct {
	Stdout      io.Writer
	Stderr      io.Writer
	StopTimeout time.Duration
	Logger      *slog.Logger
}

// Spawn implements Spawner
func (s *ExecSpawner) Spawn(c Command) (Process, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("%s: empty command", c.Name)
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.ExtraFiles = c.ExtraFiles
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	cmd.SysProcAttr = childProcAttr()

	// The robot program treats EOF on stdin as a shutdown request, so keep a
	// pipe open for the life of the child.
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create stdin pipe: %w", c.Name, err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	logger := logging.OrDefault(s.Logger)
	logger.Info("started process", "name", c.Name, "pid", cmd.Process.Pid, "argv", c.Argv)

	stopTimeout := s.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	p := &execProcess{
		name:        c.Name,
		cmd:         cmd,
		stdin:       stdin,
		stopTimeout: stopTimeout,
		exited:      make(chan struct{}),
		logger:      logger,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

type execProcess struct {
	name        string
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stopTimeout time.Duration
	// closed once the child has been reaped; waitErr is set before
	exited  chan struct{}
	waitErr error
	logger  *slog.Logger
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Kill() error {
	p.stdin.Close()
	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("failed to send SIGTERM", "name", p.name, "pid", p.Pid(), "error", err)
	}

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()
	select {
	case <-p.exited:
		return nil
	case <-timer.C:
	}

	p.logger.Warn("process ignored SIGTERM, killing", "name", p.name, "pid", p.Pid(), "timeout", p.stopTimeout)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill %s: %w", p.name, err)
	}
	return nil
}

func (p *execProcess) Wait() error {
	<-p.exited
	err := p.waitErr
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		p.logger.Info("process exited", "name", p.name, "pid", p.Pid(), "status", exitErr.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to wait for %s: %w", p.name, err)
	}
	p.logger.Info("process exited", "name", p.name, "pid", p.Pid(), "status", "exit status 0")
	return nil
}
