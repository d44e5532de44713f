// Package proc runs parsed pipelines as groups of operating system processes
// and keeps track of the ones left running in the background.
package proc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"github.com/SullivanCamp/AggieShell/core/shell"
	"golang.org/x/sys/unix"
)

// ErrAborted wraps failures that stop a whole pipeline from being started,
// such as running out of descriptors while creating pipes.
var ErrAborted = errors.New("pipeline aborted")

// ErrEmptyCommand is the stage error for a stage that only has redirections.
var ErrEmptyCommand = errors.New("empty command")

// FailedStatus is the exit status reported for a stage that could not run.
const FailedStatus = 1

// StageError describes why a single stage did not start. The other stages of
// the pipeline are unaffected.
type StageError struct {
	Stage int
	Args  []string
	// Op is "open" for redirection failures and "exec" otherwise.
	Op  string
	Err error
}

func (e *StageError) Error() string {
	name := fmt.Sprintf("stage %d", e.Stage)
	if len(e.Args) > 0 {
		name = e.Args[0]
	}

	switch {
	case e.Op == "open":
		return e.Err.Error()
	case errors.Is(e.Err, exec.ErrNotFound):
		return fmt.Sprintf("%s: command not found", name)
	case errors.Is(e.Err, ErrEmptyCommand):
		return e.Err.Error()
	}

	var execErr *exec.Error
	if errors.As(e.Err, &execErr) {
		return fmt.Sprintf("%s: %v", name, execErr.Err)
	}
	return fmt.Sprintf("%s: %v", name, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the outcome of running a pipeline.
type Result struct {
	// Pids holds the process id of each stage, 0 for stages that failed.
	Pids []int
	// Statuses holds the exit status of each stage. It is only populated for
	// foreground pipelines.
	Statuses []int
	// StageErrors lists the stages that could not start, in stage order.
	StageErrors []*StageError
	// JobID is the registry job for a background pipeline, 0 if nothing
	// started.
	JobID      int
	Background bool
}

// Status returns the exit status of the last stage, which is the status of
// the whole pipeline. Background pipelines report 0.
func (r *Result) Status() int {
	if r == nil || len(r.Statuses) == 0 {
		return 0
	}
	return r.Statuses[len(r.Statuses)-1]
}

// Orchestrator spawns one process per pipeline stage and wires them together.
type Orchestrator struct {
	// Stdin, Stdout and Stderr are the session's streams. Stages that are not
	// connected to a pipe or a file inherit them. A nil stream is connected
	// to the null device.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Dir is the directory stages run in and relative redirections are
	// resolved against. Empty means the current directory.
	Dir string
	// Env is the environment for stages; nil inherits the current process's.
	Env []string

	// Jobs receives background pipelines. It must be set before running a
	// background pipeline.
	Jobs *Registry

	newPipe func() (*os.File, *os.File, error)
}

// Run starts every stage of p. Foreground pipelines block until every
// started stage has exited; background pipelines are handed to Jobs and Run
// returns as soon as they are started.
//
// Stage failures are reported in the Result and never returned as errors.
// The returned error wraps ErrAborted when the pipeline could not be set up
// at all; any stage already started is handed to Jobs so it is reaped later.
func (o *Orchestrator) Run(p *shell.Pipeline) (*Result, error) {
	n := len(p.Commands)
	if n == 0 {
		return nil, shell.ErrNoPipeline
	}

	var fds fdSet
	defer fds.Close()

	// Pipe i connects stage i to stage i+1.
	readers := make([]*os.File, n)
	writers := make([]*os.File, n)
	newPipe := o.newPipe
	if newPipe == nil {
		newPipe = os.Pipe
	}
	for i := 0; i < n-1; i++ {
		r, w, err := newPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: pipe: %w", ErrAborted, err)
		}
		fds.add(r, w)
		readers[i+1], writers[i] = r, w
	}

	res := &Result{
		Pids:       make([]int, n),
		Background: p.Background,
	}
	started := make([]*exec.Cmd, n)

	for i := range p.Commands {
		stage := &p.Commands[i]
		cmd, stageErr, err := o.start(i, stage, readers[i], writers[i])
		switch {
		case err != nil:
			fds.Close()
			if job := o.register(p, started); job != nil {
				res.JobID = job.ID
			}
			return res, fmt.Errorf("%w: %s: %w", ErrAborted, stage.Name(), err)
		case stageErr != nil:
			res.StageErrors = append(res.StageErrors, stageErr)
		default:
			started[i] = cmd
			res.Pids[i] = cmd.Process.Pid
		}
	}

	// Children hold their own copies; ours must go so EOF propagates.
	fds.Close()

	if p.Background {
		if job := o.register(p, started); job != nil {
			res.JobID = job.ID
		}
		return res, nil
	}

	res.Statuses = make([]int, n)
	for i, cmd := range started {
		if cmd == nil {
			res.Statuses[i] = FailedStatus
			continue
		}
		res.Statuses[i] = wait(cmd)
	}
	return res, nil
}

func (o *Orchestrator) register(p *shell.Pipeline, started []*exec.Cmd) *Job {
	jobs := o.Jobs
	if jobs == nil {
		// Nothing to hand the processes to; wait here so they are not leaked.
		for _, cmd := range started {
			if cmd != nil {
				wait(cmd)
			}
		}
		return nil
	}
	return jobs.Add(p.String(), started)
}

// start opens the stage's redirections and starts its process. A problem
// confined to this stage is returned as a StageError; any other error means
// the pipeline cannot continue.
func (o *Orchestrator) start(i int, stage *shell.Command, pipeIn, pipeOut *os.File) (*exec.Cmd, *StageError, error) {
	var redirects fdSet
	defer redirects.Close()

	stageErr := func(op string, err error) *StageError {
		return &StageError{Stage: i, Args: stage.Args, Op: op, Err: err}
	}

	stdin := pipeIn
	if stage.InFile != "" {
		f, err := OpenInput(o.Dir, stage.InFile)
		if err != nil {
			return nil, stageErr("open", err), nil
		}
		redirects.add(f)
		stdin = f
	}

	stdout := pipeOut
	if stage.OutFile != "" {
		f, err := OpenOutput(o.Dir, stage.OutFile)
		if err != nil {
			return nil, stageErr("open", err), nil
		}
		redirects.add(f)
		stdout = f
	}

	if stdin == nil {
		stdin = o.Stdin
	}
	if stdout == nil {
		stdout = o.Stdout
	}

	if len(stage.Args) == 0 {
		return nil, stageErr("exec", ErrEmptyCommand), nil
	}

	path, err := lookPath(o.Env, o.Dir, stage.Args[0])
	if err != nil {
		return nil, stageErr("exec", err), nil
	}

	cmd := &exec.Cmd{Path: path, Args: stage.Args, Dir: o.Dir, Env: o.Env}
	// Assign only non-nil files so exec falls back to the null device
	// instead of seeing a typed nil.
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if o.Stderr != nil {
		cmd.Stderr = o.Stderr
	}

	if err := cmd.Start(); err != nil {
		if isExecFailure(err) {
			return nil, stageErr("exec", err), nil
		}
		return nil, nil, err
	}
	return cmd, nil, nil
}

// isExecFailure reports whether a start error means the program itself could
// not be run, as opposed to the system being unable to create a process.
func isExecFailure(err error) bool {
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, unix.ENOEXEC) ||
		errors.Is(err, unix.ENOTDIR) ||
		errors.Is(err, unix.EISDIR)
}

// wait blocks until cmd exits and returns its shell exit status.
func wait(cmd *exec.Cmd) int {
	err := cmd.Wait()
	if cmd.ProcessState == nil {
		if err != nil {
			return FailedStatus
		}
		return 0
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
		return waitStatus(unix.WaitStatus(ws))
	}
	return cmd.ProcessState.ExitCode()
}
