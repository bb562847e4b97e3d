package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vk/hotsync/internal/app"
	"github.com/vk/hotsync/internal/config"
	"github.com/vk/hotsync/internal/nodetype"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// options holds the flags shared by all commands.
type options struct {
	configPath      string
	backend         string
	transport       string
	workspace       string
	logLevel        string
	logFormat       string
	healthcheckPort int
}

// NewRootCommand builds the hotsync command tree. Command output goes to
// cmd.OutOrStdout; logs go where each command documents.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "hotsync",
		Short: "hotsync - live node definition reload for a running graph editor",
		Long: `hotsync listens for reload notifications from a node-graph backend,
re-fetches the changed node type definitions and reconciles every live
instance of those types without losing its position, widget values or
properties.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a .hcl, .yaml or .yml config file.")
	flags.StringVar(&opts.backend, "backend", "", "Backend base URL, e.g. http://127.0.0.1:8188.")
	flags.StringVar(&opts.transport, "transport", "", "Event transport: 'websocket' or 'socketio'.")
	flags.StringVar(&opts.workspace, "workspace", "", "Path to a workspace .hcl file or directory.")
	flags.StringVar(&opts.logLevel, "log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log output format. Options: 'text' or 'json'.")
	flags.IntVar(&opts.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP status server. 0 is disabled.")

	root.AddCommand(newRunCommand(opts), newFetchCommand(opts))
	return root
}

// resolveConfig applies file, environment and flags, in that order.
func resolveConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, usageError(err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, usageError(err)
	}

	flags := cmd.Flags()
	overrides := []struct {
		name  string
		apply func()
	}{
		{"backend", func() { cfg.BackendURL = opts.backend }},
		{"transport", func() { cfg.Transport = opts.transport }},
		{"workspace", func() { cfg.Workspace = opts.workspace }},
		{"log-level", func() { cfg.Log.Level = opts.logLevel }},
		{"log-format", func() { cfg.Log.Format = opts.logFormat }},
		{"healthcheck-port", func() { cfg.HealthcheckPort = opts.healthcheckPort }},
	}
	for _, o := range overrides {
		if flags.Changed(o.name) {
			o.apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}
	slog.Debug("Configuration resolved.", "config", cfg)
	return cfg, nil
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Mirror the workspace and reconcile it on every backend reload",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}

			a, err := app.NewApp(cmd.OutOrStdout(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}

type fetchOutput struct {
	Type       nodetype.TypeID      `json:"type"`
	Outcome    string               `json:"outcome"`
	StatusCode int                  `json:"status_code,omitempty"`
	Error      string               `json:"error,omitempty"`
	Definition *nodetype.Definition `json:"definition,omitempty"`
}

// newFetchCommand prints one JSON line per requested type. Logs go to
// stderr so the output stays machine-readable.
func newFetchCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch TYPE...",
		Short: "Fetch and print node type definitions from the backend",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}

			a, err := app.NewApp(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ids := make([]nodetype.TypeID, len(args))
			for i, arg := range args {
				ids[i] = nodetype.TypeID(arg)
			}

			failed := 0
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, res := range a.FetchDefinitions(cmd.Context(), ids) {
				out := fetchOutput{
					Type:       res.TypeID,
					Outcome:    res.Outcome.String(),
					StatusCode: res.StatusCode,
					Definition: res.Definition,
				}
				if res.Err != nil {
					out.Error = res.Err.Error()
					failed++
				}
				if err := enc.Encode(out); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
			}
			if failed > 0 {
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d definitions could not be fetched", failed, len(ids))}
			}
			return nil
		},
	}
}

// Execute runs the command tree with args and maps errors to ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(outW)
	root.SetErr(errW)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: 1, Message: err.Error()}
}
