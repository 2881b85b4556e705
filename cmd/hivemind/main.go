package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fentz26/hivemind/internal/config"
	"github.com/fentz26/hivemind/internal/log"
	loglogrus "github.com/fentz26/hivemind/internal/log/logrus"
)

// Version is the application version (set via ldflags).
var Version = "dev"

const (
	loggerTypeDefault = "default"
	loggerTypeJSON    = "json"
)

var rootCmd = &cobra.Command{
	Use:   "hivemind",
	Short: "hivemind - resource-aware task coordinator",
	Long: `hivemind partitions batches of prioritized agent tasks into a run-now set and a
queued remainder, bounded by how busy the host is, and learns from past runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c

		// The configured address is used unless --api is given.
		if !cmd.Flags().Changed("api") {
			apiAddr = cfg.APIAddr
		}

		logger, err = getLogger(os.Stderr, loggerType, debug, noColor)
		return err
	},
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr    string
	configPath string
	debug      bool
	noColor    bool
	loggerType string

	cfg    = config.Default()
	logger = log.Noop
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7477", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $HOME/.hivemind/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored log output")
	rootCmd.PersistentFlags().StringVar(&loggerType, "logger", loggerTypeDefault, "Log format (default, json)")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(learningsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// getLogger returns the application logger.
func getLogger(out io.Writer, format string, debug, noColor bool) (log.Logger, error) {
	logrusLog := logrus.New()
	logrusLog.Out = out // Logs go to stderr so they never mix with printed output.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	// Log format.
	switch format {
	case loggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			DisableColors: noColor,
		})
	case loggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown logger type %q", format)
	}

	l := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	l.Debugf("Debug level is enabled") // Will log only when debug enabled.

	return l, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of hivemind",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hivemind %s\n", Version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
