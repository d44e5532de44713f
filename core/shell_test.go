package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/SullivanCamp/AggieShell/core/config"
	"github.com/SullivanCamp/AggieShell/core/logger"
	"github.com/SullivanCamp/AggieShell/core/vos"
	"github.com/SullivanCamp/AggieShell/core/vos/vostest"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testShell struct {
	*Shell

	out    *os.File
	errs   *os.File
	events *bytes.Buffer
}

func newTestShell(t *testing.T, sysOS vos.OS) *testShell {
	t.Helper()

	streams := t.TempDir()
	out, err := os.Create(filepath.Join(streams, "stdout"))
	require.NoError(t, err)
	errs, err := os.Create(filepath.Join(streams, "stderr"))
	require.NoError(t, err)
	t.Cleanup(func() {
		out.Close()
		errs.Close()
	})

	events := &bytes.Buffer{}
	sh := NewShell(sysOS, config.Default(), logger.NewJsonLinesLogRecorder(events).Sessionless(), nil, out, errs)
	return &testShell{Shell: sh, out: out, errs: errs, events: events}
}

// newProcessShell returns a shell whose working directory is a real
// temporary directory so it can run processes.
func newProcessShell(t *testing.T) (*testShell, string) {
	t.Helper()

	dir := t.TempDir()
	return newTestShell(t, vostest.NewTestOSWithFs(afero.NewOsFs(), dir)), dir
}

func (ts *testShell) readStdout(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(ts.out.Name())
	require.NoError(t, err)
	return string(b)
}

func (ts *testShell) readStderr(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(ts.errs.Name())
	require.NoError(t, err)
	return string(b)
}

func (ts *testShell) loggedEvents(t *testing.T) []*logger.LogEntry {
	t.Helper()

	var out []*logger.LogEntry
	err := logger.ReadJSONLinesLog(bytes.NewReader(ts.events.Bytes()), func(le *logger.LogEntry) {
		out = append(out, le)
	})
	require.NoError(t, err)
	return out
}

// killJobs stops every background process so tests don't leave sleepers.
func (ts *testShell) killJobs(t *testing.T) {
	t.Helper()

	for _, job := range ts.Jobs.Jobs() {
		for _, pid := range job.Pids {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	}
	require.Eventually(t, func() bool {
		ts.Jobs.Reap()
		return ts.Jobs.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunLineBlankKeepsStatus(t *testing.T) {
	ts := newTestShell(t, vostest.NewTestOS())

	assert.Equal(t, 1, ts.RunLine("cd /missing"))
	assert.Equal(t, 1, ts.RunLine("   "))
	assert.Equal(t, 1, ts.RunLine("|"))
	assert.Equal(t, 1, ts.RunLine("&"))
	assert.Equal(t, 1, ts.LastStatus())
}

func TestRunLineCd(t *testing.T) {
	sysOS := vostest.NewTestOS()
	ts := newTestShell(t, sysOS)

	assert.Equal(t, 0, ts.RunLine("cd /tmp"))
	assert.Equal(t, "/tmp", sysOS.Cwd)
	assert.Equal(t, "/tmp", sysOS.Getenv(EnvPWD))

	assert.Equal(t, 0, ts.RunLine("cd -"))
	assert.Equal(t, vostest.DefaultHome, sysOS.Cwd)
	assert.Equal(t, vostest.DefaultHome+"\n", ts.readStdout(t))

	assert.Equal(t, 0, ts.RunLine("cd /"))
	assert.Equal(t, 0, ts.RunLine("cd"))
	assert.Equal(t, vostest.DefaultHome, sysOS.Cwd)
	assert.Empty(t, ts.readStderr(t))
}

func TestRunLineCdErrors(t *testing.T) {
	cases := map[string]struct {
		line string
		want string
	}{
		"missing dir":    {line: "cd /missing", want: "aggieshell: cd: /missing: "},
		"no previous":    {line: "cd -", want: "aggieshell: cd: OLDPWD not set"},
		"too many":       {line: "cd /tmp /", want: "aggieshell: cd: too many arguments"},
		"bad option":     {line: "cd -x", want: "usage: cd [DIR | -]"},
		"file not a dir": {line: "cd /home/aggie/notes", want: "not a directory"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			sysOS := vostest.NewTestOS()
			require.NoError(t, afero.WriteFile(sysOS.Fs, "/home/aggie/notes", []byte("x"), 0644))
			ts := newTestShell(t, sysOS)

			assert.NotEqual(t, 0, ts.RunLine(tc.line))
			assert.Contains(t, ts.readStderr(t), tc.want)
			assert.Equal(t, vostest.DefaultHome, sysOS.Cwd)
		})
	}
}

func TestRunLineCdHelp(t *testing.T) {
	ts := newTestShell(t, vostest.NewTestOS())

	assert.Equal(t, 0, ts.RunLine("cd --help"))
	assert.Contains(t, ts.readStdout(t), "usage: cd [DIR | -]")
	assert.Contains(t, ts.readStdout(t), "Options:")
}

func TestRunLineExit(t *testing.T) {
	cases := map[string]struct {
		lines      []string
		wantExited bool
		wantStatus int
	}{
		"no args":         {lines: []string{"exit"}, wantExited: true, wantStatus: 0},
		"last status":     {lines: []string{"cd /missing", "exit"}, wantExited: true, wantStatus: 1},
		"explicit":        {lines: []string{"exit 3"}, wantExited: true, wantStatus: 3},
		"wraps":           {lines: []string{"exit 257"}, wantExited: true, wantStatus: 1},
		"negative":        {lines: []string{"exit -1"}, wantExited: true, wantStatus: 255},
		"not numeric":     {lines: []string{"exit soon"}, wantExited: true, wantStatus: 2},
		"too many":        {lines: []string{"exit 1 2"}, wantExited: false, wantStatus: 1},
		"whitespace only": {lines: []string{"  exit 4  "}, wantExited: true, wantStatus: 4},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts := newTestShell(t, vostest.NewTestOS())
			for _, line := range tc.lines {
				ts.RunLine(line)
			}

			assert.Equal(t, tc.wantExited, ts.Exited())
			assert.Equal(t, tc.wantStatus, ts.ExitStatus())
		})
	}
}

func TestHelp(t *testing.T) {
	ts := newTestShell(t, vostest.NewTestOS())
	require.Equal(t, 0, ts.RunLine("help"))

	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)
	g.Assert(t, "help", []byte(ts.readStdout(t)))
}

func TestHelpTopics(t *testing.T) {
	ts := newTestShell(t, vostest.NewTestOS())

	assert.Equal(t, 0, ts.RunLine("help cd exit"))
	assert.Equal(t, "cd [DIR | -]        Change the working directory, - returns to the previous one.\n"+
		"exit [N]            Exit the shell with status N, or the last status.\n", ts.readStdout(t))

	assert.Equal(t, 1, ts.RunLine("help cd nope"))
	assert.Contains(t, ts.readStderr(t), "help: no help topics match `nope'")
}

func TestBuiltinsAreDocumented(t *testing.T) {
	for _, name := range BuiltinNames() {
		_, ok := builtinDocs[name]
		assert.True(t, ok, "missing docs for %q", name)
	}
}

func TestHistory(t *testing.T) {
	ts := newTestShell(t, vostest.NewTestOS())

	ts.RunLine("cd /tmp")
	ts.RunLine("")
	ts.RunLine("  jobs ")
	ts.RunLine("history")
	assert.Equal(t, "    1  cd /tmp\n    2  jobs\n    3  history\n", ts.readStdout(t))

	ts.resetStdout(t)
	ts.RunLine("history -c")
	ts.RunLine("history")
	assert.Equal(t, "    1  history\n", ts.readStdout(t))
}

func TestHistoryLimit(t *testing.T) {
	cases := map[string]struct {
		limit int
		want  []string
	}{
		"limited":  {limit: 2, want: []string{"b", "c"}},
		"disabled": {limit: -1, want: nil},
		"default":  {limit: 0, want: []string{"a", "b", "c"}},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts := newTestShell(t, vostest.NewTestOS())
			ts.Config.HistoryLimit = tc.limit
			for _, line := range []string{"a", "b", "c"} {
				ts.addHistory(line)
			}
			assert.Equal(t, tc.want, ts.history)
		})
	}
}

func TestRunLinePipeline(t *testing.T) {
	ts, dir := newProcessShell(t)

	assert.Equal(t, 0, ts.RunLine("echo hello | tr a-z A-Z > out.txt"))
	b, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO\n", string(b))

	assert.Equal(t, 0, ts.RunLine("wc -l < out.txt"))
	assert.Equal(t, "1", strings.TrimSpace(ts.readStdout(t)))
}

func TestRunLineFollowsCd(t *testing.T) {
	ts, dir := newProcessShell(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	assert.Equal(t, 0, ts.RunLine("cd sub"))
	assert.Equal(t, 0, ts.RunLine("pwd > where"))

	b, err := os.ReadFile(filepath.Join(dir, "sub", "where"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sub")+"\n", string(b))
}

func TestRunLineStatus(t *testing.T) {
	ts, _ := newProcessShell(t)

	assert.Equal(t, 1, ts.RunLine("true | false"))
	assert.Equal(t, 0, ts.RunLine("false | true"))
	assert.Equal(t, 5, ts.RunLine("sh -c 'exit 5'"))
	assert.Equal(t, 5, ts.LastStatus())
}

func TestRunLineCommandNotFound(t *testing.T) {
	ts, _ := newProcessShell(t)

	// The last stage decides the status.
	assert.Equal(t, 0, ts.RunLine("aggieshell-no-such-command | cat"))
	assert.Equal(t, 1, ts.RunLine("echo ok | aggieshell-no-such-command"))
	assert.Equal(t, 0, ts.RunLine("echo ok | aggieshell-no-such-command | cat"))
	assert.Contains(t, ts.readStderr(t), "aggieshell: aggieshell-no-such-command: command not found\n")
}

func TestRunLineMissingInput(t *testing.T) {
	ts, _ := newProcessShell(t)

	assert.Equal(t, 1, ts.RunLine("cat < missing.txt"))
	assert.Contains(t, ts.readStderr(t), "missing.txt")
}

func TestRunLineEvents(t *testing.T) {
	ts, dir := newProcessShell(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	ts.RunLine("true | false")
	ts.RunLine("cd sub")
	ts.RunLine("aggieshell-no-such-command")

	events := ts.loggedEvents(t)
	require.Len(t, events, 5)

	run := events[0].RunPipeline
	require.NotNil(t, run)
	assert.Equal(t, "true | false", run.Line)
	assert.Equal(t, [][]string{{"true"}, {"false"}}, run.Commands)
	assert.Equal(t, []int{0, 1}, run.Statuses)
	assert.False(t, run.Background)

	cd := events[1].ChangeDir
	require.NotNil(t, cd)
	assert.Equal(t, dir, cd.From)
	assert.Equal(t, filepath.Join(dir, "sub"), cd.To)
	assert.Empty(t, cd.Error)

	builtin := events[2].Builtin
	require.NotNil(t, builtin)
	assert.Equal(t, []string{"cd", "sub"}, builtin.Command)
	assert.Equal(t, 0, builtin.Status)

	failure := events[3].StageFailure
	require.NotNil(t, failure)
	assert.Equal(t, 0, failure.Stage)
	assert.Equal(t, "exec", failure.Op)
	assert.Contains(t, failure.Error, "command not found")

	require.NotNil(t, events[4].RunPipeline)
	assert.Equal(t, []int{1}, events[4].RunPipeline.Statuses)
}

func TestBackgroundJob(t *testing.T) {
	ts, _ := newProcessShell(t)

	assert.Equal(t, 0, ts.RunLine("sleep 0.1 | cat &"))
	assert.Equal(t, 2, ts.Jobs.Len())
	jobs := ts.Jobs.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].ID)
	assert.Len(t, jobs[0].Pids, 2)

	assert.True(t, strings.HasPrefix(ts.readStdout(t), "[1] "+strconv.Itoa(jobs[0].Pids[0])+" "))

	require.Eventually(t, func() bool {
		ts.Reap()
		return ts.Jobs.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, ts.readStdout(t), "[1]+  Done                    sleep 0.1 | cat &\n")

	var started, reaped int
	for _, le := range ts.loggedEvents(t) {
		if le.JobStarted != nil {
			started++
			assert.Equal(t, jobs[0].Pids, le.JobStarted.Pids)
		}
		if le.JobReaped != nil {
			reaped++
			assert.Equal(t, 1, le.JobReaped.JobID)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 2, reaped)
}

func TestBackgroundJobExitStatus(t *testing.T) {
	ts, _ := newProcessShell(t)
	ts.RunLine("sh -c 'exit 3' &")

	require.Eventually(t, func() bool {
		ts.Reap()
		return ts.Jobs.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, ts.readStdout(t), "[1]+  Exit 3")
}

func TestBackgroundNotificationsDisabled(t *testing.T) {
	ts, _ := newProcessShell(t)
	ts.Config.JobNotifications = false

	ts.RunLine("true &")
	require.Eventually(t, func() bool {
		ts.Reap()
		return ts.Jobs.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, ts.readStdout(t))
}

func TestJobsBuiltin(t *testing.T) {
	ts, _ := newProcessShell(t)
	defer ts.killJobs(t)

	ts.Config.JobNotifications = false
	ts.RunLine("sleep 5 &")
	jobs := ts.Jobs.Jobs()
	require.Len(t, jobs, 1)
	pid := strconv.Itoa(jobs[0].Pids[0])

	cases := map[string]string{
		"jobs":    "[1]  Running                 sleep 5 &\n",
		"jobs -l": "[1]  " + pid + "  Running                 sleep 5 &\n",
		"jobs -p": pid + "\n",
	}
	for line, want := range cases {
		t.Run(line, func(t *testing.T) {
			ts.resetStdout(t)
			assert.Equal(t, 0, ts.RunLine(line))
			assert.Equal(t, want, ts.readStdout(t))
		})
	}

	assert.Equal(t, 2, ts.RunLine("jobs -z"))
	assert.Contains(t, ts.readStderr(t), "usage: jobs [-lp]")
}

func TestShellPrompt(t *testing.T) {
	ts := newTestShell(t, vostest.NewTestOS())
	ts.now = func() time.Time { return time.Date(2021, time.August, 6, 18, 45, 41, 0, time.UTC) }

	assert.Equal(t, "Aug 06 18:45:41 aggie:~$ ", ts.Prompt())

	ts.RunLine("cd /tmp")
	ts.Config.Prompt = `\u@\h:\W\$ `
	assert.Equal(t, "aggie@reveille:tmp$ ", ts.Prompt())
}

func (ts *testShell) resetStdout(t *testing.T) {
	t.Helper()
	require.NoError(t, ts.out.Truncate(0))
	_, err := ts.out.Seek(0, 0)
	require.NoError(t, err)
}

func TestBuiltinOutputRedirect(t *testing.T) {
	ts, dir := newProcessShell(t)
	readFile := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(b)
	}

	assert.Equal(t, 0, ts.RunLine("help > help.txt"))
	assert.True(t, strings.HasPrefix(readFile("help.txt"), "aggieshell, a small pipeline shell.\n"))

	assert.Equal(t, 0, ts.RunLine("history > history.txt"))
	assert.Equal(t, "    1  help > help.txt\n    2  history > history.txt\n", readFile("history.txt"))

	assert.Equal(t, 0, ts.RunLine("jobs > jobs.txt"))
	assert.Equal(t, "", readFile("jobs.txt"))

	assert.Empty(t, ts.readStdout(t))

	// The session's stdout is back in place afterwards.
	assert.Equal(t, 0, ts.RunLine("help exit"))
	assert.Equal(t, "exit [N]            Exit the shell with status N, or the last status.\n", ts.readStdout(t))
}

func TestBuiltinRedirectErrors(t *testing.T) {
	ts, dir := newProcessShell(t)

	assert.Equal(t, 1, ts.RunLine("help < missing.txt"))
	assert.Contains(t, ts.readStderr(t), "missing.txt")

	assert.Equal(t, 1, ts.RunLine("help > no/such/dir.txt"))
	assert.Contains(t, ts.readStderr(t), "no/such/dir.txt")
	assert.Empty(t, ts.readStdout(t))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), nil, 0644))
	assert.Equal(t, 0, ts.RunLine("help exit < in.txt"))
	assert.NotEmpty(t, ts.readStdout(t))
}

func TestBuiltinInBackground(t *testing.T) {
	sysOS := vostest.NewTestOS()
	ts := newTestShell(t, sysOS)

	assert.Equal(t, 1, ts.RunLine("cd /tmp &"))
	assert.Equal(t, vostest.DefaultHome, sysOS.Cwd)
	assert.Contains(t, ts.readStderr(t), "aggieshell: cd: builtins can't run in the background")

	assert.Equal(t, 1, ts.RunLine("exit 3 &"))
	assert.False(t, ts.Exited())
	assert.Equal(t, 0, ts.Jobs.Len())
}

// isZombie reports whether pid has exited but not been waited for.
func isZombie(pid int) bool {
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// The state follows the parenthesised command name.
	stat := string(b)
	end := strings.LastIndexByte(stat, ')')
	return end >= 0 && strings.HasPrefix(stat[end:], ") Z")
}

func TestJobsReportsFinishedJobs(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("needs /proc")
	}

	ts, _ := newProcessShell(t)
	ts.RunLine("true &")
	jobs := ts.Jobs.Jobs()
	require.Len(t, jobs, 1)
	require.Eventually(t, func() bool {
		return isZombie(jobs[0].Pids[0])
	}, 5*time.Second, 10*time.Millisecond)

	ts.resetStdout(t)
	assert.Equal(t, 0, ts.RunLine("jobs"))
	assert.Equal(t, "[1]+  Done                    true &\n", ts.readStdout(t))
	assert.Equal(t, 0, ts.Jobs.Len())
}
