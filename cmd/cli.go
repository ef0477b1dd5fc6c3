package cmd

import (
	"context"
	"fmt"

	"beatsketch/internal/config"
	applog "beatsketch/internal/log"
	"beatsketch/pkg/build"

	"github.com/spf13/cobra"
)

// options holds the persistent flags and the configuration they select.
type options struct {
	configPath string
	logLevel   string
	verbose    bool

	cfg *config.Config
}

// load reads the configuration and applies the log level: --verbose wins,
// then --log-level, then the file's debug flag and log_level.
func (o *options) load() error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg

	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = applog.LevelDebug
	}
	if o.logLevel != "" {
		l, ok := applog.ParseLevel(o.logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", o.logLevel)
		}
		level = l
	}
	if o.verbose {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
	return nil
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Configuration file. Default is "+config.DefaultConfigFile+" when it exists")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Log level (debug, info, warn, error). Overrides the configuration")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.AddCommand(
		newAnalyzeCommand(opts),
		newExportCommand(opts),
		newServeCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), buildInfo.String())
			},
		},
	)

	return rootCmd
}

// Execute runs the command line in args. Cancelling ctx stops a running
// analysis or server.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
