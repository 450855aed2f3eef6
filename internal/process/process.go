package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/djsteinke/piCam/internal/logging"
)

// StdoutConsumer receives the subprocess stdout pipe. It is called once
// per process start on its own goroutine and should read until EOF.
// Used to hand the binary MJPEG stream to the frame splitter.
type StdoutConsumer func(r io.Reader)

// LogParser parses a stderr line and returns the log level and message.
// Used to extract structured log info from encoder output.
type LogParser func(line string) (level, msg string)

type exitReason int

const (
	exitReasonProcessExit exitReason = iota
	exitReasonShutdown
	exitReasonRestart
)

// Process manages the lifecycle of a subprocess.
type Process struct {
	id              string
	command         string
	commandMu       sync.RWMutex
	cmd             *exec.Cmd
	logger          logging.Logger
	processLogger   logging.Logger // logger for stderr output (nil = use logger)
	logParser       LogParser      // parses stderr for log level (nil = no parsing)
	stdoutConsumer  StdoutConsumer // binary stdout consumer (nil = discard)
	ctx             context.Context
	cancel          context.CancelFunc
	restartChan     chan string // receives new command for restart
	gracefulTimeout time.Duration
	killTimeout     time.Duration
}

// NewProcess creates a new process.
func NewProcess(id, command string, logger logging.Logger) *Process {
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		id:              id,
		command:         command,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		restartChan:     make(chan string, 1),
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// GetCommand returns the current command string.
func (p *Process) GetCommand() string {
	p.commandMu.RLock()
	defer p.commandMu.RUnlock()
	return p.command
}

// SetStdoutConsumer sets the consumer for the subprocess's binary stdout.
// Must be called before Run or RunWithRestart.
func (p *Process) SetStdoutConsumer(consumer StdoutConsumer) {
	p.stdoutConsumer = consumer
}

// SetLogParser sets a custom logger and log parser for stderr output.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// RequestRestart requests a restart with a new command.
// Non-blocking: if a restart is already pending, this is a no-op.
func (p *Process) RequestRestart(newCommand string) {
	select {
	case p.restartChan <- newCommand:
		p.logger.Info("Restart requested", "id", p.id)
	default:
		p.logger.Warn("Restart already pending, ignoring", "id", p.id)
	}
}

// Shutdown triggers a graceful shutdown of the process.
func (p *Process) Shutdown() {
	p.cancel()
}

// runningProcess holds channels for monitoring a running subprocess.
type runningProcess struct {
	processDone <-chan error
	outputDone  chan struct{} // receives twice, once per output stream
}

// startProcess parses the command, starts the subprocess, and wires up
// stdout/stderr consumption.
func (p *Process) startProcess(command string) (*runningProcess, error) {
	args, err := parseCommand(command)
	if err != nil {
		p.logger.Error("Failed to parse command", "error", err)
		return nil, err
	}
	if len(args) == 0 {
		p.logger.Error("Empty command")
		return nil, fmt.Errorf("empty command")
	}

	p.cmd = exec.Command(args[0], args[1:]...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		p.logger.Error("Failed to create stdout pipe", "error", err)
		return nil, err
	}

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		p.logger.Error("Failed to create stderr pipe", "error", err)
		return nil, err
	}

	if err := p.cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", command)
		return nil, err
	}

	p.logger.Info("Process started", "id", p.id, "pid", p.cmd.Process.Pid, "command", command)

	outputDone := make(chan struct{}, 2)
	go func() {
		if p.stdoutConsumer != nil {
			p.stdoutConsumer(stdout)
		} else {
			_, _ = io.Copy(io.Discard, stdout)
		}
		outputDone <- struct{}{}
	}()
	go func() {
		p.streamStderr(stderr)
		outputDone <- struct{}{}
	}()

	processDone := make(chan error, 1)
	go func() {
		processDone <- p.cmd.Wait()
	}()

	return &runningProcess{processDone: processDone, outputDone: outputDone}, nil
}

// waitOutputDone waits for both output streams to complete.
func (p *Process) waitOutputDone(outputDone <-chan struct{}) {
	<-outputDone
	<-outputDone
}

// exitCodeFromError extracts the exit code from a process error.
// Returns 0 for nil, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// Run starts the subprocess and blocks until it exits or Shutdown is
// called. Returns the exit code of the subprocess.
func (p *Process) Run() int {
	exitCode, _ := p.runOnce()
	return exitCode
}

// RunWithRestart runs the subprocess and handles restart requests.
// It loops, restarting the process when RequestRestart is called.
// Returns when the process exits on its own or Shutdown is called.
func (p *Process) RunWithRestart() int {
	for {
		exitCode, reason := p.runOnce()

		switch reason {
		case exitReasonShutdown:
			p.logger.Info("Shutdown complete", "id", p.id, "exit_code", exitCode)
			return exitCode
		case exitReasonRestart:
			p.logger.Info("Restarting process", "id", p.id)
			continue
		default:
			// Unexpected exit: let the owner decide whether to restart.
			p.logger.Info("Process exited unexpectedly", "id", p.id, "exit_code", exitCode)
			return exitCode
		}
	}
}

// runOnce runs the process once and returns the exit code and exit reason.
func (p *Process) runOnce() (int, exitReason) {
	p.commandMu.RLock()
	command := p.command
	p.commandMu.RUnlock()

	rp, err := p.startProcess(command)
	if err != nil {
		return 1, exitReasonProcessExit
	}
	defer p.waitOutputDone(rp.outputDone)

	select {
	case <-p.ctx.Done():
		p.logger.Info("Context cancelled, shutting down process", "id", p.id)
		p.sendStopSignal()
		return p.waitForExit(rp.processDone, p.gracefulTimeout), exitReasonShutdown

	case newCmd := <-p.restartChan:
		p.logger.Info("Received restart request", "id", p.id)
		p.sendStopSignal()
		p.commandMu.Lock()
		p.command = newCmd
		p.commandMu.Unlock()
		return p.waitForExit(rp.processDone, p.gracefulTimeout), exitReasonRestart

	case processErr := <-rp.processDone:
		exitCode := exitCodeFromError(processErr)
		if processErr != nil && exitCode == 1 {
			p.logger.Error("Process exited with error", "id", p.id, "error", processErr)
		}
		p.logger.Info("Process exited", "id", p.id, "exit_code", exitCode)
		return exitCode, exitReasonProcessExit
	}
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Info("Sending SIGINT to process", "id", p.id, "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// waitForExit waits for the process to exit, force-killing after timeout.
func (p *Process) waitForExit(processDone <-chan error, timeout time.Duration) int {
	select {
	case err := <-processDone:
		return exitCodeFromError(err)
	case <-time.After(timeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", timeout)
		if p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil {
				// The process may have exited between the timeout and the kill.
				if !errors.Is(err, os.ErrProcessDone) {
					p.logger.Error("Failed to kill process", "error", err)
				}
			}
		}
		select {
		case <-processDone:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal")
		}
		return 137
	}
}

// streamStderr streams stderr lines through the process logger.
func (p *Process) streamStderr(reader io.Reader) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning", "warn":
			logger.Warn(msg)
		case "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading stderr", "error", err)
	}
}

// parseCommand parses a command string into arguments.
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++ // take the next rune literally
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
