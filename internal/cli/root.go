// Package cli provides the command-line interface for propchat.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/propchat/internal/chat"
	"github.com/raphaelgruber/propchat/internal/client"
	"github.com/raphaelgruber/propchat/internal/config"
	"github.com/raphaelgruber/propchat/internal/metrics"
	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configPath string
	apiURL     string
	orgID      string

	// Global config, logger and API client
	cfg       config.Config
	logger    = slog.Default()
	closeLog  func() error
	apiClient *client.Client
	collector *metrics.Collector
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "propchat",
	Short: "Chat with your property management data",
	Long: `Propchat is a terminal client for the property management assistant.

Ask questions about leases, properties, tenants and KPIs, either in plain
chat mode or with retrieval over the organization's documents (RAG), and
manage conversations, exports and document processing.

Configuration is read from $XDG_CONFIG_HOME/propchat/config.yaml (or
--config) and PROPCHAT_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		switch cmd.Name() {
		case "version", "help", "completion":
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("api-url") {
			cfg.APIURL = apiURL
		}
		if cmd.Flags().Changed("org") {
			cfg.OrganizationID = orgID
		}
		if verbose && cfg.LogLevel > slog.LevelDebug {
			cfg.LogLevel = slog.LevelDebug
		}

		// The chat screen owns the terminal, so it logs to file only.
		if cmd.Name() == "chat" {
			logger, closeLog = config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
		} else {
			logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		}
		slog.SetDefault(logger)

		collector = metrics.NewCollector()
		apiClient = client.New(client.Config{
			BaseURL:           cfg.APIURL,
			Token:             cfg.Token,
			OrganizationID:    cfg.OrganizationID,
			Timeout:           cfg.Timeout,
			StreamIdleTimeout: cfg.StreamIdleTimeout,
			Logger:            logger,
			Metrics:           collector,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
			closeLog = nil
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/propchat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "backend base URL")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", "", "organization id")

	// Add subcommands
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(suggestionsCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// ragFlags are the retrieval flags shared by ask and chat.
type ragFlags struct {
	enabled bool
	strict  bool
	sources []string
}

func (f *ragFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.enabled, "rag", false, "answer from the organization's data")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "answer only from retrieved sources (with --rag)")
	cmd.Flags().StringSliceVarP(&f.sources, "sources", "s", nil, "source types to search (documents, leases, properties, tenants, kpi, owners, conversations)")
}

// options layers the flags that were set over the configured defaults.
func (f *ragFlags) options(cmd *cobra.Command) (rag.Options, error) {
	opts := cfg.RAGOptions()
	if cmd.Flags().Changed("rag") {
		opts.Enabled = f.enabled
	}
	if cmd.Flags().Changed("strict") {
		opts.Strict = f.strict
	}
	if cmd.Flags().Changed("sources") {
		types := make([]models.SourceType, 0, len(f.sources))
		for _, s := range f.sources {
			t, err := models.ParseSourceType(s)
			if err != nil {
				return rag.Options{}, err
			}
			types = append(types, t)
		}
		opts.SetSources(types...)
	}
	return opts, nil
}

// newSession creates a chat session on the configured client.
func newSession(opts rag.Options) *chat.Session {
	return chat.NewSession(chat.SessionConfig{
		Backend:   apiClient,
		Options:   opts,
		Overrides: cfg.Overrides(),
		Logger:    logger,
		Metrics:   collector,
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "propchat %s\n", Version)
	},
}
