package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strconv"

	"github.com/SullivanCamp/AggieShell/core/logger"
	"github.com/pborman/getopt/v2"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

type builtinDoc struct {
	Usage   string
	Summary string
}

// builtinDocs holds the one line help for each builtin.
var builtinDocs = map[string]builtinDoc{
	"cd":      {"cd [DIR | -]", "Change the working directory, - returns to the previous one."},
	"exit":    {"exit [N]", "Exit the shell with status N, or the last status."},
	"help":    {"help [NAME...]", "Show help for builtins."},
	"history": {"history [-c]", "Display or clear the line history."},
	"jobs":    {"jobs [-lp]", "List background jobs."},
}

// BuiltinNames returns the registered builtins in sorted order.
func BuiltinNames() []string {
	var names []string
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseBuiltinOpts runs getopt over args and prints usage on a bad option
// or --help. It returns false if the builtin should stop with status.
func parseBuiltinOpts(s *Shell, opts *getopt.Set, args []string) (ok bool, status int) {
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")
	err := opts.Getopt(args, nil)
	if err == nil && !*helpOpt {
		return true, 0
	}

	w := s.stdout()
	if err != nil {
		w = s.stderr()
		fmt.Fprintf(w, "%s: %v\n", args[0], err)
	}
	if doc, ok := builtinDocs[args[0]]; ok {
		fmt.Fprintf(w, "usage: %s\n", doc.Usage)
		fmt.Fprintln(w, doc.Summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	opts.PrintOptions(w)

	if err != nil {
		return false, 2
	}
	return false, 0
}

// Cd is the cd shell builtin
func Cd(s *Shell, args []string) int {
	opts := getopt.New()
	if ok, status := parseBuiltinOpts(s, opts, args); !ok {
		return status
	}

	from, _ := s.OS.Getwd()
	event := &logger.ChangeDir{From: from}
	defer s.Events.Record(event)

	var err error
	switch rest := opts.Args(); {
	case len(rest) == 0:
		event.To, err = s.Dirs.Change("")
	case len(rest) == 1 && rest[0] == "-":
		event.Back = true
		if event.To, err = s.Dirs.Back(); err == nil {
			fmt.Fprintln(s.stdout(), event.To)
		}
	case len(rest) == 1:
		event.To = rest[0]
		if dest, cdErr := s.Dirs.Change(rest[0]); cdErr != nil {
			err = cdErr
		} else {
			event.To = dest
		}
	default:
		err = errors.New("too many arguments")
	}

	if err != nil {
		event.Error = err.Error()
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			s.errorf("cd: %s: %v", pathErr.Path, pathErr.Err)
		} else {
			s.errorf("cd: %v", err)
		}
		return 1
	}
	return 0
}

// Exit quits the shell
func Exit(s *Shell, args []string) int {
	status := s.lastStatus
	switch len(args) {
	case 1:
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil {
			s.errorf("exit: %s: numeric argument required", args[1])
			n = 2
		}
		status = n & 0xff
	default:
		s.errorf("exit: too many arguments")
		return 1
	}

	s.Reap()
	s.exited = true
	s.exitStatus = status
	return status
}

// Jobs reaps finished background jobs, then lists the ones still running.
func Jobs(s *Shell, args []string) int {
	opts := getopt.New()
	long := opts.Bool('l', "list process IDs in addition to the normal information")
	pidsOnly := opts.Bool('p', "list process IDs only")
	if ok, status := parseBuiltinOpts(s, opts, args); !ok {
		return status
	}

	s.Reap()

	w := s.stdout()
	for _, job := range s.Jobs.Jobs() {
		switch {
		case *pidsOnly:
			for _, pid := range job.Pids {
				fmt.Fprintln(w, pid)
			}
		case *long:
			fmt.Fprintf(w, "[%d]  %s  %-24s%s\n", job.ID, joinInts(job.Pids, ","), "Running", job.Line)
		default:
			fmt.Fprintf(w, "[%d]  %-24s%s\n", job.ID, "Running", job.Line)
		}
	}
	return 0
}

func History(s *Shell, args []string) int {
	opts := getopt.New()
	clearOpt := opts.Bool('c', "clear the history by deleting all entries")
	if ok, status := parseBuiltinOpts(s, opts, args); !ok {
		return status
	}

	if *clearOpt {
		if s.Readline != nil {
			s.Readline.Operation.ResetHistory()
		}
		s.history = nil
		return 0
	}

	for i, line := range s.history {
		fmt.Fprintf(s.stdout(), "% 5d  %s\n", i+1, line)
	}
	return 0
}

func Help(s *Shell, args []string) int {
	w := s.stdout()

	if len(args) > 1 {
		status := 0
		for _, name := range args[1:] {
			doc, ok := builtinDocs[name]
			if !ok {
				s.errorf("help: no help topics match `%s'", name)
				status = 1
				continue
			}
			printBuiltinDoc(w, doc)
		}
		return status
	}

	fmt.Fprintln(w, "aggieshell, a small pipeline shell.")
	fmt.Fprintln(w, "These shell commands are defined internally.  Type `help' to see this list.")
	fmt.Fprintln(w, "Type `help name' to find out more about the builtin `name'.")
	fmt.Fprintln(w)

	for _, name := range BuiltinNames() {
		printBuiltinDoc(w, builtinDocs[name])
	}

	return 0
}

func printBuiltinDoc(w io.Writer, doc builtinDoc) {
	fmt.Fprintf(w, "%-20s%s\n", doc.Usage, doc.Summary)
}

func init() {
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["jobs"] = ShellBuiltinFunc(Jobs)
	AllBuiltins["history"] = ShellBuiltinFunc(History)
	AllBuiltins["help"] = ShellBuiltinFunc(Help)
}
