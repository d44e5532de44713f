package cmd

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/SullivanCamp/AggieShell/core"
	"github.com/SullivanCamp/AggieShell/core/config"
	"github.com/SullivanCamp/AggieShell/core/logger"
	"github.com/SullivanCamp/AggieShell/core/vos"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	command string

	// exitStatus is the status of the last shell session, used by Execute.
	exitStatus int
)

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// defaultConfigDir returns the per-user configuration directory.
func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "aggieshell")
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aggieshell",
	Short: "A small pipeline shell",
	Long: `aggieshell reads command lines and runs them as pipelines of processes,
with < and > redirection and & to run a pipeline in the background.

Without -c it reads lines interactively until end of input or exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		status, err := runShell(cmd, os.Stdin, os.Stdout, os.Stderr)
		exitStatus = status
		return err
	},
}

// runShell starts a session on the given streams and returns the status the
// process should exit with.
func runShell(cmd *cobra.Command, stdin, stdout, stderr *os.File) (int, error) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return 1, err
	}

	diag := log.New(cmd.ErrOrStderr(), "aggieshell: ", 0)

	appLog := log.New(io.Discard, "", log.LstdFlags)
	if fd, err := cfg.OpenAppLog(); err != nil {
		diag.Printf("couldn't open %s: %v", config.AppLogName, err)
	} else {
		defer fd.Close()
		appLog.SetOutput(fd)
	}

	events := logger.Discard()
	switch fd, err := cfg.OpenEventLog(); {
	case err == nil:
		defer fd.Close()
		events = logger.NewJsonLinesLogRecorder(fd)
	case !errors.Is(err, config.ErrEventLogDisabled):
		diag.Printf("couldn't open event log: %v", err)
	}

	session := events.NewSession()
	sh := core.NewShell(vos.NewHostOS(), cfg, session, stdin, stdout, stderr)
	appLog.Printf("session %s started", session.SessionID())

	var status int
	if cmd.Flags().Changed("command") {
		sh.RunLine(command)
		status = sh.ExitStatus()
	} else if status, err = sh.Run(); err != nil {
		appLog.Printf("session %s failed: %v", session.SessionID(), err)
		return status, err
	}

	appLog.Printf("session %s ended with status %d", session.SessionID(), status)
	return status, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitStatus)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigDir(), "config path")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run a single line and exit with its status")
}
