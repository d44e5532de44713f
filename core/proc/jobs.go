package proc

import (
	"errors"
	"os/exec"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// Entry is one background process tracked by the Registry.
type Entry struct {
	Pid  int
	Job  int
	Args []string
	// Status is the exit status observed when the entry was reaped, or -1
	// if the process had already been collected elsewhere.
	Status int

	cmd *exec.Cmd
}

// Job is the set of processes started for one background pipeline.
type Job struct {
	ID      int
	Line    string
	Started time.Time
	Pids    []int
	// Running counts the members that have not been reaped yet.
	Running int
	// Status is the status of the last stage once it has been reaped.
	Status int
}

// Registry tracks background processes until they are reaped.
//
// It is not safe for concurrent use; the interpreter adds to it and reaps
// it from the same goroutine.
type Registry struct {
	entries map[int]*Entry
	jobs    map[int]*Job

	now   func() time.Time
	wait4 func(pid int, ws *unix.WaitStatus, options int, rusage *unix.Rusage) (int, error)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[int]*Entry),
		jobs:    make(map[int]*Job),
		now:     time.Now,
		wait4:   unix.Wait4,
	}
}

// Add registers already started commands as a new job and returns it.
// Commands that never started are ignored; if none started no job is
// created and Add returns nil.
func (r *Registry) Add(line string, cmds []*exec.Cmd) *Job {
	job := &Job{
		ID:      r.nextID(),
		Line:    line,
		Started: r.now(),
	}

	for _, cmd := range cmds {
		if cmd == nil || cmd.Process == nil {
			continue
		}
		pid := cmd.Process.Pid
		r.entries[pid] = &Entry{
			Pid:  pid,
			Job:  job.ID,
			Args: cmd.Args,
			cmd:  cmd,
		}
		job.Pids = append(job.Pids, pid)
	}

	if len(job.Pids) == 0 {
		return nil
	}

	job.Running = len(job.Pids)
	r.jobs[job.ID] = job
	snapshot := *job
	return &snapshot
}

// nextID follows the usual shell numbering: one more than the highest
// live job, starting from 1.
func (r *Registry) nextID() int {
	highest := 0
	for id := range r.jobs {
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}

// Len returns the number of processes still tracked.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Reap checks every tracked process without blocking and forgets the ones
// that have terminated. It returns the reaped entries and the jobs whose
// last member was reaped during this call.
func (r *Registry) Reap() (reaped []Entry, done []Job) {
	pids := make([]int, 0, len(r.entries))
	for pid := range r.entries {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	for _, pid := range pids {
		entry := r.entries[pid]

		var ws unix.WaitStatus
		wpid, err := r.wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case err == nil && wpid == pid:
			entry.Status = waitStatus(ws)
		case errors.Is(err, unix.ECHILD):
			// Collected by someone else; nothing left to wait for.
			entry.Status = -1
		default:
			// Still running, interrupted, or an error worth retrying next cycle.
			continue
		}

		delete(r.entries, pid)
		if entry.cmd.Process != nil {
			entry.cmd.Process.Release()
		}
		reaped = append(reaped, *entry)

		job, ok := r.jobs[entry.Job]
		if !ok {
			continue
		}
		if job.Pids[len(job.Pids)-1] == pid {
			job.Status = entry.Status
		}
		job.Running--
		if job.Running <= 0 {
			delete(r.jobs, job.ID)
			done = append(done, *job)
		}
	}

	sort.Slice(done, func(i, j int) bool { return done[i].ID < done[j].ID })
	return reaped, done
}

// Jobs returns a snapshot of the live jobs ordered by ID.
func (r *Registry) Jobs() []Job {
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		snapshot := *job
		snapshot.Pids = append([]int(nil), job.Pids...)
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entries returns a snapshot of the tracked processes ordered by pid.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pid < out[j].Pid })
	return out
}

// waitStatus converts a wait status into a shell exit status; a process
// killed by a signal reports 128 plus the signal number.
func waitStatus(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
