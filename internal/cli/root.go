package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trade-journal/internal/analytics"
	"trade-journal/internal/broker"
	"trade-journal/internal/config"
	"trade-journal/internal/insights"
	"trade-journal/internal/ledger"
	"trade-journal/internal/logging"
	"trade-journal/internal/pattern"
	"trade-journal/internal/reconcile"
	"trade-journal/internal/store"
	syncpkg "trade-journal/internal/sync"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-08-29"
)

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      store.DataStore
	Registry   *broker.Registry
	Ledger     *ledger.Ledger
	Engine     *reconcile.Engine
	Classifier *pattern.Classifier
	Analytics  *analytics.Service
	LLMClient  insights.LLMClient
	History    broker.HistoricalProvider
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: broker.NewRegistry(),
	}

	dbPath := cfg.Journal.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.DefaultConfigDir(), "journal.db")
	}
	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize store, most commands will be unavailable")
	} else {
		app.Store = dataStore
		app.Ledger = ledger.New(dataStore, logger)
		app.Engine = reconcile.NewEngine(dataStore, logger)
		app.Analytics = analytics.NewService(dataStore)
		logger.Debug().Str("path", dbPath).Msg("SQLite store initialized")
	}

	if cfg.Credentials.Zerodha.APIKey != "" {
		zerodha := broker.NewZerodhaAdapter(broker.ZerodhaConfig{
			APIKey:    cfg.Credentials.Zerodha.APIKey,
			APISecret: cfg.Credentials.Zerodha.APISecret,
			UserID:    cfg.Credentials.Zerodha.UserID,
		})
		app.Registry.Register(zerodha)
		app.History = zerodha
		logger.Debug().Msg("Zerodha adapter initialized")
	}

	if cfg.Credentials.Dhan.AccessToken != "" {
		app.Registry.Register(broker.NewDhanAdapter(broker.DhanConfig{
			ClientID:    cfg.Credentials.Dhan.ClientID,
			AccessToken: cfg.Credentials.Dhan.AccessToken,
		}))
		logger.Debug().Msg("Dhan adapter initialized")
	}

	if cfg.Credentials.AngelOne.APIKey != "" {
		app.Registry.Register(broker.NewAngelOneAdapter(broker.AngelOneConfig{
			APIKey:     cfg.Credentials.AngelOne.APIKey,
			ClientCode: cfg.Credentials.AngelOne.ClientCode,
			PIN:        cfg.Credentials.AngelOne.PIN,
			TOTPSecret: cfg.Credentials.AngelOne.TOTPSecret,
		}))
		logger.Debug().Msg("AngelOne adapter initialized")
	}

	artifactPath := cfg.Classifier.ArtifactPath
	if artifactPath == "" {
		artifactPath = filepath.Join(config.DefaultConfigDir(), "patterns.json")
	}
	classifier, err := pattern.NewClassifier(artifactPath, cfg.Classifier.DistanceThreshold, logger)
	if err != nil {
		logger.Debug().Err(err).Msg("pattern artifact unavailable, classification disabled")
	} else {
		app.Classifier = classifier
	}

	if cfg.Credentials.OpenAI.APIKey != "" {
		app.LLMClient = insights.NewOpenAIClient(cfg.Credentials.OpenAI.APIKey, cfg.Insights.Model)
		logger.Debug().Str("model", cfg.Insights.Model).Msg("OpenAI client initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade Journal - multi-broker trading journal for the Indian stock market",
		Long: `Trade Journal ingests executions from Zerodha, Dhan, AngelOne, and CSV
exports into a single idempotent ledger, tracks positions under weighted
average cost, and labels each trade with the market regime it was taken in.

Use 'journal help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/trade-journal)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newSyncCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newRecomputeCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
	rootCmd.AddCommand(newStatsCmd(app))
	rootCmd.AddCommand(newClassifyCmd(app))
	rootCmd.AddCommand(newInsightsCmd(app))

	return rootCmd
}

// newPipeline builds a sync pipeline from the app's collaborators.
func (app *App) newPipeline() *syncpkg.Pipeline {
	return syncpkg.NewPipeline(app.Registry, app.Ledger, app.Engine, app.Store, syncpkg.Options{
		Classifier:      app.Classifier,
		History:         app.History,
		Workers:         app.Config.Classifier.Workers,
		MinObservations: app.Config.Classifier.MinObservations,
	}, app.Logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Trade Journal v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create template configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir := config.DefaultConfigDir()
			if err := config.Init(dir); err != nil {
				output.Error("Failed to create configuration templates: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": dir})
			}
			output.Success("✓ Configuration templates written to %s", dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Journal Configuration")
	output.Printf("  User ID:          %s\n", cfg.Journal.UserID)
	output.Printf("  Database:         %s\n", cfg.Journal.DatabasePath)
	output.Printf("  Default Exchange: %s\n", cfg.Journal.DefaultExchange)
	output.Printf("  Default Product:  %s\n", cfg.Journal.DefaultProduct)
	output.Printf("  Sync Brokers:     %v\n", cfg.Journal.SyncBrokers)
	output.Println()

	output.Bold("Classifier Configuration")
	output.Printf("  Artifact:          %s\n", cfg.Classifier.ArtifactPath)
	output.Printf("  Distance Threshold: %.1f\n", cfg.Classifier.DistanceThreshold)
	output.Printf("  Min Observations:  %d\n", cfg.Classifier.MinObservations)
	output.Printf("  Workers:           %d\n", cfg.Classifier.Workers)
	output.Println()

	output.Bold("Insights Configuration")
	output.Printf("  Enabled: %v\n", cfg.Insights.Enabled)
	output.Printf("  Model:   %s\n", cfg.Insights.Model)
}
