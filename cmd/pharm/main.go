package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/cabinet"
	"github.com/stellarlinkco/pharm/internal/config"
	"github.com/stellarlinkco/pharm/internal/logging"
	"github.com/stellarlinkco/pharm/internal/notify"
	"github.com/stellarlinkco/pharm/internal/store"
)

// Options for running the CLI with custom dependencies
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time

	// Config replaces the configuration file when set.
	Config *config.Config
	// Store replaces the document file when set.
	Store store.Store
	// Sink replaces the configured notification sinks for the daemon.
	Sink       notify.Sink
	SignalChan chan os.Signal
}

// app holds the state of one CLI invocation.
type app struct {
	opts   Options
	stdout io.Writer
	stderr io.Writer

	file   string
	format string

	cfg    *config.Config
	logger *zap.Logger
	store  store.Store
	svc    *cabinet.Service
}

func newApp(opts Options) *app {
	a := &app{opts: opts, stdout: opts.Stdout, stderr: opts.Stderr}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}
	return a
}

func main() {
	os.Exit(run(os.Args[1:], Options{}))
}

// run executes the command line and returns the process exit code.
func run(args []string, opts Options) int {
	a := newApp(opts)
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := usageError(root.ExecuteContext(context.Background()))
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		a.printer().failure(err)
		return exitCode(err)
	}
	return exitOK
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pharm",
		Short: "pharm - medication reminders and adherence tracking",
		Long: "pharm tracks medications, records doses and reminds you when one is due.\n" +
			"Everything is saved as a single JSON or YAML file for easy import and export.",
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperr.Validation(cmd.Name(), "%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.file, "file", "", "Medication file (default from config, ~/"+config.DefaultDataFileName+")")
	pf.StringVar(&a.format, "format", formatText, "Output format: text or json")

	root.AddCommand(
		a.addCmd(),
		a.removeCmd(),
		a.takeCmd(),
		a.untakeCmd(),
		a.takeAllCmd(),
		a.editCmd(),
		a.listCmd(),
		a.historyCmd(),
		a.daemonCmd(),
		a.initCmd(),
		a.statusCmd(),
	)
	return root
}

func (a *app) checkFormat() error {
	switch a.format {
	case formatText, formatJSON:
		return nil
	}
	return apperr.Validation("pharm", "--format must be %s or %s, got %q", formatText, formatJSON, a.format)
}

// setup loads configuration and opens the document store.
func (a *app) setup() error {
	if err := a.checkFormat(); err != nil {
		return err
	}

	cfg := a.opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadConfig(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	c := *cfg
	a.cfg = &c

	logger, err := logging.NewWithWriter(a.cfg.Log, a.stderr)
	if err != nil {
		return err
	}
	a.logger = logger

	if a.file != "" {
		a.cfg.DataFile = a.file
	}
	a.store = a.opts.Store
	if a.store == nil {
		a.store = store.NewFileStore(a.cfg.DataFile, logger)
	}
	a.svc = cabinet.New(a.store, cabinet.Options{Now: a.opts.Now, Logger: logger})
	return nil
}

func (a *app) now() time.Time {
	if a.opts.Now != nil {
		return a.opts.Now()
	}
	return time.Now()
}

func (a *app) printer() *printer {
	return &printer{w: a.stdout, errw: a.stderr, json: a.format == formatJSON}
}

// nameArg requires exactly one medication name.
func nameArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return apperr.Validation(cmd.Name(), "expected one medication name, got %d arguments", len(args))
	}
	return nil
}

// noArgs rejects positional arguments.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return apperr.Validation(cmd.Name(), "unexpected argument %q", args[0])
	}
	return nil
}

// optionalName accepts at most one medication name.
func optionalName(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return apperr.Validation(cmd.Name(), "expected at most one medication name, got %d arguments", len(args))
	}
	return nil
}

// usageError classifies cobra's own command lookup failures as validation
// errors. Cobra reports them as plain strings.
func usageError(err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	if strings.HasPrefix(err.Error(), "unknown command ") {
		return apperr.Validation("pharm", "%v", err)
	}
	return err
}
