package py2droid

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Executor runs the external tools the pipelines depend on (curl, patch,
// android.py, llvm-strip, git). Every command receives an explicit
// environment; the parent process environment is never mutated.
type Executor struct {
	Env []string // base environment for every command; nil means inherit
}

// RunOptions adjust a single invocation.
type RunOptions struct {
	Dir     string   // working directory for the command
	Env     []string // overrides Executor.Env for this invocation
	NoCheck bool     // when set, a non-zero exit is returned in the result, not as an error
	Capture bool     // capture stdout/stderr instead of streaming to the terminal
	Quiet   bool     // suppress the invocation log line
}

// CmdResult holds the outcome of a finished command.
type CmdResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandError reports a checked command that exited non-zero. It carries
// the captured output so callers can surface tool diagnostics.
type CommandError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed with exit code %d: %s", e.ExitCode, e.Command)
}

// Run executes name with args. The invocation is logged in shell-quoted form
// unless opt.Quiet is set. A non-zero exit from the child is an error unless
// opt.NoCheck is set; failure to start the command is always an error.
func (e *Executor) Run(name string, args []string, opt RunOptions) (*CmdResult, error) {
	cmdline := shellJoin(append([]string{name}, args...))
	if !opt.Quiet {
		colArrow.Print("> ")
		fmt.Println(cmdline)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = opt.Dir
	switch {
	case opt.Env != nil:
		cmd.Env = opt.Env
	case e.Env != nil:
		cmd.Env = e.Env
	}

	var stdout, stderr bytes.Buffer
	if opt.Capture {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()
	res := &CmdResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return res, fmt.Errorf("failed to run %s: %w", name, err)
	}
	res.ExitCode = exitErr.ExitCode()
	if opt.NoCheck {
		return res, nil
	}
	return res, &CommandError{
		Command:  cmdline,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}
