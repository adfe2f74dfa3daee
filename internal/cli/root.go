// Package cli is the ragpipe command line: ingestion, querying, the HTTP
// server and the queue workers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ragpipe/internal/app"
	"ragpipe/internal/config"
	"ragpipe/internal/logger"
)

const (
	ExitError       = 1
	ExitIngestFails = 2
)

var ErrRegistryDisabled = errors.New("document registry is not enabled: set ENABLE_REGISTRY=true")

// ExitCodeError carries the process exit code for main.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string { return e.Err.Error() }

func (e *ExitCodeError) Unwrap() error { return e.Err }

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec *ExitCodeError
	if errors.As(err, &ec) {
		return ec.Code
	}
	return ExitError
}

// Env holds the process-level hooks the commands depend on.
type Env struct {
	LoadConfig func() (*config.Config, error)
	Bootstrap  func(ctx context.Context, cfg *config.Config) (*app.Dependencies, error)
	Stdin      io.Reader
	// Stdout receives command results, Stderr logs and diagnostics. Cobra
	// sends both to stderr when they are left nil.
	Stdout io.Writer
	Stderr io.Writer
}

func DefaultEnv() Env {
	return Env{
		LoadConfig: config.Load,
		Bootstrap:  app.Bootstrap,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

func NewRootCmd(env Env) *cobra.Command {
	var noColor bool
	root := &cobra.Command{
		Use:           "ragpipe",
		Short:         "Retrieval-augmented question answering over a document corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	if env.Stdout != nil {
		root.SetOut(env.Stdout)
	}
	if env.Stderr != nil {
		root.SetErr(env.Stderr)
	}

	root.AddCommand(
		ingestCmd(env),
		queryCmd(env),
		chatCmd(env),
		serveCmd(env),
		workerCmd(env),
		jobsCmd(env),
		documentsCmd(env),
	)
	return root
}

// open loads configuration, installs the logger and builds the app. The
// returned closer releases every dependency.
func (e Env) open(cmd *cobra.Command) (*app.App, func(), error) {
	cfg, err := e.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(logger.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel))

	deps, err := e.Bootstrap(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap failed: %w", err)
	}
	a, err := app.New(cfg, deps)
	if err != nil {
		deps.Close()
		return nil, nil, err
	}
	return a, deps.Close, nil
}
