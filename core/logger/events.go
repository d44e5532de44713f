package logger

// LogEntry is a single line of the event log. Exactly one of the event
// fields is set.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	RunPipeline     *RunPipeline     `json:"run_pipeline,omitempty"`
	StageFailure    *StageFailure    `json:"stage_failure,omitempty"`
	PipelineAborted *PipelineAborted `json:"pipeline_aborted,omitempty"`
	JobStarted      *JobStarted      `json:"job_started,omitempty"`
	JobReaped       *JobReaped       `json:"job_reaped,omitempty"`
	ChangeDir       *ChangeDir       `json:"change_dir,omitempty"`
	Builtin         *Builtin         `json:"builtin,omitempty"`
}

// LogType is implemented by every event that can be recorded.
type LogType interface {
	attach(le *LogEntry)
}

// GetLogType returns the event held by the entry, or nil if it has none.
func (le *LogEntry) GetLogType() LogType {
	switch {
	case le.RunPipeline != nil:
		return le.RunPipeline
	case le.StageFailure != nil:
		return le.StageFailure
	case le.PipelineAborted != nil:
		return le.PipelineAborted
	case le.JobStarted != nil:
		return le.JobStarted
	case le.JobReaped != nil:
		return le.JobReaped
	case le.ChangeDir != nil:
		return le.ChangeDir
	case le.Builtin != nil:
		return le.Builtin
	default:
		return nil
	}
}

// RunPipeline is logged after a pipeline has been started, and for
// foreground pipelines, after it has finished.
type RunPipeline struct {
	Line       string     `json:"line"`
	Commands   [][]string `json:"commands"`
	Background bool       `json:"background,omitempty"`
	// Statuses is empty for background pipelines.
	Statuses       []int `json:"statuses,omitempty"`
	DurationMicros int64 `json:"duration_micros,omitempty"`
}

func (e *RunPipeline) attach(le *LogEntry) { le.RunPipeline = e }

// StageFailure is logged when a single stage could not be started.
type StageFailure struct {
	Stage   int      `json:"stage"`
	Command []string `json:"command"`
	Op      string   `json:"op"`
	Error   string   `json:"error"`
}

func (e *StageFailure) attach(le *LogEntry) { le.StageFailure = e }

// PipelineAborted is logged when a pipeline could not be set up at all.
type PipelineAborted struct {
	Line  string `json:"line"`
	Error string `json:"error"`
}

func (e *PipelineAborted) attach(le *LogEntry) { le.PipelineAborted = e }

// JobStarted is logged when a pipeline is moved to the background.
type JobStarted struct {
	JobID int    `json:"job_id"`
	Line  string `json:"line"`
	Pids  []int  `json:"pids"`
}

func (e *JobStarted) attach(le *LogEntry) { le.JobStarted = e }

// JobReaped is logged for each background process that is reclaimed.
type JobReaped struct {
	JobID   int      `json:"job_id"`
	Pid     int      `json:"pid"`
	Command []string `json:"command"`
	Status  int      `json:"status"`
}

func (e *JobReaped) attach(le *LogEntry) { le.JobReaped = e }

// ChangeDir is logged for every cd, successful or not.
type ChangeDir struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	// Back is set for "cd -".
	Back  bool   `json:"back,omitempty"`
	Error string `json:"error,omitempty"`
}

func (e *ChangeDir) attach(le *LogEntry) { le.ChangeDir = e }

// Builtin is logged when a shell builtin runs.
type Builtin struct {
	Command []string `json:"command"`
	Status  int      `json:"status"`
}

func (e *Builtin) attach(le *LogEntry) { le.Builtin = e }
