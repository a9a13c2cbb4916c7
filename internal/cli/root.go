package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/boxesandglue/restyle/internal/log"
	"github.com/boxesandglue/restyle/store"
)

const (
	cmdName = "restyle"
	cmdDesc = `Add classes and custom CSS to HTML pages whose host is on an allow-list.`

	cmdExamples = `  # Allow a host and add a rule:
  restyle domains add example.com
  restyle rules add "article p" lead

  # Apply the configuration to a page:
  restyle apply --host example.com page.html

  # Re-apply whenever the page or the configuration changes:
  restyle watch --host example.com -o out.html page.html

  # Use a shared Redis store:
  restyle --store redis://localhost:6379/0 rules list`
)

type RootArgs struct {
	LogLevel     string
	LogFormat    string
	Store        string
	Namespace    string
	OTLPEndpoint string

	shutdown func(context.Context) error
}

func NewRootArgs() *RootArgs {
	return &RootArgs{}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().
		StringVar(&ra.Store, "store", "", "Configuration store: a file path, file://, redis:// or memory: (default "+GetStorePath()+")")
	cmd.PersistentFlags().
		StringVar(&ra.Namespace, "namespace", store.DefaultNamespace, "Configuration namespace")
	cmd.PersistentFlags().
		StringVar(&ra.OTLPEndpoint, "otlp-endpoint", "", "Export traces to this OTLP gRPC endpoint")

	var err error

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

// OpenStore opens the configured store.
func (ra *RootArgs) OpenStore(ctx context.Context) (store.Store, error) {
	url := ra.Store
	if url == "" {
		url = GetStorePath()
	}

	s, err := store.Open(ctx, url, ra.Namespace)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return s, nil
}

func NewRootCmd() *cobra.Command {
	args := NewRootArgs()

	cmd := &cobra.Command{
		Use:                cmdName,
		Short:              cmdDesc,
		Example:            cmdExamples,
		SilenceUsage:       true,
		PersistentPreRunE:  setup(args),
		PersistentPostRunE: teardown(args),
	}

	args.AddFlags(cmd)

	cmd.AddCommand(
		NewApplyCmd(NewPageArgs(args)),
		NewWatchCmd(NewPageArgs(args)),
		NewTreeCmd(NewPageArgs(args)),
		NewRulesCmd(args),
		NewCSSCmd(args),
		NewDomainsCmd(args),
		NewSchemaCmd(),
	)

	bindEnvVars(cmd)

	return cmd
}

func setup(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logHandler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		logger := slog.New(logHandler)
		slog.SetDefault(logger)

		ctx := log.NewContext(cmd.Context(), logger)
		cmd.SetContext(ctx)

		if ra.OTLPEndpoint != "" {
			ra.shutdown, err = setupTracing(ctx, ra.OTLPEndpoint)
			if err != nil {
				return fmt.Errorf("setup tracing: %w", err)
			}
		}

		return nil
	}
}

func teardown(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if ra.shutdown == nil {
			return nil
		}

		// The command context may already be cancelled by a signal.
		err := ra.shutdown(context.WithoutCancel(cmd.Context()))
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutdown tracing: %w", err)
		}

		return nil
	}
}
