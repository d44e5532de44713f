package logger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		StageFailure: StageFailureReport{
			Failures: NewPathCounter("command", "op", "error"),
		},
	}
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int `json:"log_entries"`
	InvalidEntries int `json:"invalid_entries,omitempty"`

	Sessions        StrCounter            `json:"sessions"`
	Pipeline        PipelineReport        `json:"pipeline_report"`
	StageFailure    StageFailureReport    `json:"stage_failure_report"`
	PipelineAborted PipelineAbortedReport `json:"pipeline_aborted_report"`
	Jobs            JobReport             `json:"job_report"`
	ChangeDir       ChangeDirReport       `json:"change_dir_report"`
	Builtin         BuiltinReport         `json:"builtin_report"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	if le.SessionID != "" {
		r.Sessions.Increment(le.SessionID)
	}

	switch event := le.GetLogType().(type) {
	case *RunPipeline:
		r.Pipeline.update(event)
	case *StageFailure:
		r.StageFailure.update(event)
	case *PipelineAborted:
		r.PipelineAborted.update(event)
	case *JobStarted:
		r.Jobs.updateStarted(event)
	case *JobReaped:
		r.Jobs.updateReaped(event)
	case *ChangeDir:
		r.ChangeDir.update(event)
	case *Builtin:
		r.Builtin.update(event)
	default:
		r.InvalidEntries++
	}
}

type PipelineReport struct {
	Count      int `json:"count"`
	Background int `json:"background"`
	// Names of every program run, counted per stage.
	CommandNames StrCounter `json:"command_names"`
	// Number of stages per pipeline.
	Lengths StrCounter `json:"lengths"`
	// Status of the last stage of foreground pipelines.
	ExitStatuses StrCounter `json:"exit_statuses"`
}

func (r *PipelineReport) update(rp *RunPipeline) {
	r.Count++
	if rp.Background {
		r.Background++
	}
	for _, cmd := range rp.Commands {
		if len(cmd) > 0 {
			r.CommandNames.Increment(cmd[0])
		}
	}
	r.Lengths.Increment(strconv.Itoa(len(rp.Commands)))
	if n := len(rp.Statuses); n > 0 {
		r.ExitStatuses.Increment(strconv.Itoa(rp.Statuses[n-1]))
	}
}

type StageFailureReport struct {
	Failures *PathCounter `json:"failures"`
}

func (r *StageFailureReport) update(sf *StageFailure) {
	if r.Failures == nil {
		r.Failures = NewPathCounter("command", "op", "error")
	}

	name := ""
	if len(sf.Command) > 0 {
		name = sf.Command[0]
	}
	r.Failures.Increment(name, sf.Op, sf.Error)
}

type PipelineAbortedReport struct {
	Errors StrCounter `json:"errors"`
}

func (r *PipelineAbortedReport) update(pa *PipelineAborted) {
	r.Errors.Increment(pa.Error)
}

type JobReport struct {
	Started      int        `json:"started"`
	Reaped       int        `json:"reaped"`
	ExitStatuses StrCounter `json:"exit_statuses"`
}

func (r *JobReport) updateStarted(*JobStarted) {
	r.Started++
}

func (r *JobReport) updateReaped(jr *JobReaped) {
	r.Reaped++
	r.ExitStatuses.Increment(strconv.Itoa(jr.Status))
}

type ChangeDirReport struct {
	Count        int        `json:"count"`
	Back         int        `json:"back"`
	Destinations StrCounter `json:"destinations"`
	Errors       StrCounter `json:"errors"`
}

func (r *ChangeDirReport) update(cd *ChangeDir) {
	r.Count++
	if cd.Back {
		r.Back++
	}
	if cd.Error != "" {
		r.Errors.Increment(cd.Error)
		return
	}
	r.Destinations.Increment(cd.To)
}

type BuiltinReport struct {
	Names    StrCounter `json:"names"`
	Failures StrCounter `json:"failures"`
}

func (r *BuiltinReport) update(b *Builtin) {
	if len(b.Command) == 0 {
		return
	}
	r.Names.Increment(b.Command[0])
	if b.Status != 0 {
		r.Failures.Increment(fmt.Sprintf("%s: %d", b.Command[0], b.Status))
	}
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implements a custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts tuples of strings, one per column.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Get returns the count for the tuple.
func (ctr *PathCounter) Get(vals ...string) int {
	return ctr.internal[toKey(vals...)]
}

// MarshalJSON implements a custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
