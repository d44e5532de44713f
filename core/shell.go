package core

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/SullivanCamp/AggieShell/core/config"
	"github.com/SullivanCamp/AggieShell/core/logger"
	"github.com/SullivanCamp/AggieShell/core/proc"
	"github.com/SullivanCamp/AggieShell/core/shell"
	"github.com/SullivanCamp/AggieShell/core/vos"
	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Shell is an interactive session. It owns the background jobs and the
// directory history; all of its methods must be called from one goroutine.
type Shell struct {
	OS     vos.OS
	Config *config.Configuration
	Events *logger.SessionLogger

	Dirs *DirHistory
	Jobs *proc.Registry

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Readline is only set while Run is reading lines.
	Readline *readline.Instance

	history []string

	lastStatus int
	exited     bool
	exitStatus int

	promptColors *promptColors
	errColor     *color.Color
	now          func() time.Time
}

// NewShell creates a session talking to the given streams.
func NewShell(sysOS vos.OS, cfg *config.Configuration, events *logger.SessionLogger, stdin, stdout, stderr *os.File) *Shell {
	if cfg == nil {
		cfg = config.Default()
	}
	if events == nil {
		events = logger.Discard().Sessionless()
	}

	dirs := NewDirHistory(sysOS)
	dirs.RecordFailed = cfg.RecordFailedCd

	useColor := cfg.UseColor(stdout != nil && isatty.IsTerminal(stdout.Fd()))
	errColor := color.New(color.FgRed)
	if useColor {
		errColor.EnableColor()
	} else {
		errColor.DisableColor()
	}

	return &Shell{
		OS:           sysOS,
		Config:       cfg,
		Events:       events,
		Dirs:         dirs,
		Jobs:         proc.NewRegistry(),
		Stdin:        stdin,
		Stdout:       stdout,
		Stderr:       stderr,
		promptColors: newPromptColors(useColor),
		errColor:     errColor,
		now:          time.Now,
	}
}

// LastStatus returns the status of the last line run.
func (s *Shell) LastStatus() int {
	return s.lastStatus
}

// Exited reports whether the exit builtin has run.
func (s *Shell) Exited() bool {
	return s.exited
}

func (s *Shell) stdout() io.Writer {
	if s.Stdout == nil {
		return io.Discard
	}
	return s.Stdout
}

func (s *Shell) stderr() io.Writer {
	if s.Stderr == nil {
		return io.Discard
	}
	return s.Stderr
}

// errorf prints a diagnostic prefixed with the shell's name.
func (s *Shell) errorf(format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	fmt.Fprintln(s.stderr(), s.errColor.Sprintf("aggieshell: %s", msg))
}

// Run reads and runs lines until end of input or exit. It returns the
// status the process should exit with.
func (s *Shell) Run() (int, error) {
	cfg := &readline.Config{
		Stdout:       s.stdout(),
		Stderr:       s.stderr(),
		HistoryLimit: s.Config.HistoryLimit,
	}
	if s.Stdin != nil {
		// Closing the instance cancels pending reads without closing stdin.
		cfg.Stdin = readline.NewCancelableStdin(s.Stdin)
	}
	if err := cfg.Init(); err != nil {
		return 1, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return 1, err
	}
	s.Readline = rl
	defer func() {
		rl.Close()
		s.Readline = nil
	}()

	// Catch rather than ignore SIGINT: exec resets caught signals, so
	// foreground children can still be interrupted.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		for range interrupts {
		}
	}()
	defer func() {
		signal.Stop(interrupts)
		close(interrupts)
	}()

	for !s.exited {
		s.Reap()
		rl.SetPrompt(s.Prompt())
		line, err := rl.Readline()

		switch {
		case err == io.EOF:
			fmt.Fprintln(s.stdout())
			s.Reap()
			return s.lastStatus, nil

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			return 1, fmt.Errorf("reading line: %w", err)
		}

		s.RunLine(line)
	}

	return s.exitStatus, nil
}

// RunLine runs one line of input and returns its status. Blank lines and
// lines that don't hold a pipeline leave the previous status in place.
func (s *Shell) RunLine(line string) int {
	line = shell.TrimBlanks(line)
	if line == "" {
		return s.lastStatus
	}
	s.addHistory(line)

	p, err := shell.ParseLine(line)
	if err != nil {
		return s.lastStatus
	}

	if len(p.Commands) == 1 {
		if builtin, ok := AllBuiltins[p.Commands[0].Name()]; ok {
			s.lastStatus = s.runBuiltin(builtin, p)
			return s.lastStatus
		}
	}

	s.lastStatus = s.runPipeline(line, p)
	return s.lastStatus
}

// runBuiltin runs a single stage builtin inside the shell. Its output goes
// to the stage's > file if it has one; a < file must exist but is not read.
// Builtins change the session's state, so they can't be put in the
// background.
func (s *Shell) runBuiltin(builtin ShellBuiltin, p *shell.Pipeline) int {
	cmd := &p.Commands[0]
	status := s.withRedirects(cmd, p.Background, func() int {
		return builtin.Main(s, cmd.Args)
	})
	s.Events.Record(&logger.Builtin{Command: cmd.Args, Status: status})
	return status
}

func (s *Shell) withRedirects(cmd *shell.Command, background bool, run func() int) int {
	if background {
		s.errorf("%s: builtins can't run in the background", cmd.Name())
		return proc.FailedStatus
	}

	dir, _ := s.OS.Getwd()
	if cmd.InFile != "" {
		f, err := proc.OpenInput(dir, cmd.InFile)
		if err != nil {
			s.errorf("%v", err)
			return proc.FailedStatus
		}
		f.Close()
	}

	if cmd.OutFile != "" {
		f, err := proc.OpenOutput(dir, cmd.OutFile)
		if err != nil {
			s.errorf("%v", err)
			return proc.FailedStatus
		}
		defer f.Close()

		saved := s.Stdout
		s.Stdout = f
		defer func() { s.Stdout = saved }()
	}

	return run()
}

// ExitStatus returns the status passed to exit, or the last status if the
// shell is still running.
func (s *Shell) ExitStatus() int {
	if s.exited {
		return s.exitStatus
	}
	return s.lastStatus
}

func (s *Shell) orchestrator() *proc.Orchestrator {
	o := &proc.Orchestrator{
		Stdin:  s.Stdin,
		Stdout: s.Stdout,
		Stderr: s.Stderr,
		Env:    s.OS.Environ(),
		Jobs:   s.Jobs,
	}
	if wd, err := s.OS.Getwd(); err == nil {
		o.Dir = wd
	}
	return o
}

func (s *Shell) runPipeline(line string, p *shell.Pipeline) int {
	start := s.now()
	res, err := s.orchestrator().Run(p)

	if res != nil {
		for _, stageErr := range res.StageErrors {
			s.errorf("%v", stageErr)
			s.Events.Record(&logger.StageFailure{
				Stage:   stageErr.Stage,
				Command: stageErr.Args,
				Op:      stageErr.Op,
				Error:   stageErr.Error(),
			})
		}
	}

	if err != nil {
		s.errorf("%v", err)
		s.Events.Record(&logger.PipelineAborted{Line: line, Error: err.Error()})
		if res != nil && res.JobID != 0 {
			s.jobStarted(res)
		}
		return proc.FailedStatus
	}

	event := &logger.RunPipeline{
		Line:       line,
		Background: p.Background,
		Statuses:   res.Statuses,
	}
	for _, cmd := range p.Commands {
		event.Commands = append(event.Commands, cmd.Args)
	}
	if !p.Background {
		event.DurationMicros = s.now().Sub(start).Microseconds()
	}
	s.Events.Record(event)

	if p.Background {
		if res.JobID != 0 {
			s.jobStarted(res)
		}
		return 0
	}
	return res.Status()
}

func (s *Shell) jobStarted(res *proc.Result) {
	var pids []int
	for _, pid := range res.Pids {
		if pid != 0 {
			pids = append(pids, pid)
		}
	}

	line := ""
	for _, job := range s.Jobs.Jobs() {
		if job.ID == res.JobID {
			line = job.Line
		}
	}
	s.Events.Record(&logger.JobStarted{JobID: res.JobID, Line: line, Pids: pids})

	if s.Config.JobNotifications {
		fmt.Fprintf(s.stdout(), "[%d] %s\n", res.JobID, joinInts(pids, " "))
	}
}

// Reap reclaims finished background processes without blocking and
// reports the jobs that completed.
func (s *Shell) Reap() {
	reaped, done := s.Jobs.Reap()

	for _, entry := range reaped {
		s.Events.Record(&logger.JobReaped{
			JobID:   entry.Job,
			Pid:     entry.Pid,
			Command: entry.Args,
			Status:  entry.Status,
		})
	}

	if !s.Config.JobNotifications {
		return
	}
	for _, job := range done {
		fmt.Fprintf(s.stdout(), "[%d]+  %-24s%s\n", job.ID, jobState(job.Status), job.Line)
	}
}

func jobState(status int) string {
	if status == 0 || status == -1 {
		return "Done"
	}
	return fmt.Sprintf("Exit %d", status)
}

func (s *Shell) addHistory(line string) {
	limit := s.Config.HistoryLimit
	if limit < 0 {
		return
	}
	if limit == 0 {
		limit = 500
	}

	s.history = append(s.history, line)
	if over := len(s.history) - limit; over > 0 {
		s.history = s.history[over:]
	}
}

func joinInts(vals []int, sep string) string {
	var parts []string
	for _, v := range vals {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, sep)
}
