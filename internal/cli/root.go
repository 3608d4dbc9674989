package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"upstox-options/internal/broker"
	"upstox-options/internal/config"
	"upstox-options/internal/logging"
	"upstox-options/internal/security"
	"upstox-options/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Broker broker.Broker

	tokens config.TokenSource
	store  store.SnapshotStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "upstox-options",
		Short: "Option chain and margin/premium tables from Upstox",
		Long: `upstox-options fetches an index option chain from the Upstox v2 API,
reshapes it into (instrument, strike, side, bid/ask) rows, and can enrich
each row with the margin required to sell it and the premium earned per lot.

Use 'upstox-options help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), app.Logger))

			return app.initBroker()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/upstox-options)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addOptionsCommands(rootCmd, app)
	rootCmd.AddCommand(newHistoryCmd(app))

	return rootCmd
}

// initBroker builds the Upstox client from the current config. A broker
// injected beforehand is kept.
func (app *App) initBroker() error {
	if app.Broker != nil {
		return nil
	}

	tokens, err := config.NewTokenSource(app.Config.Credentials.Upstox)
	if err != nil {
		return fmt.Errorf("configuring access token: %w", err)
	}
	app.tokens = tokens

	app.Broker = broker.NewUpstoxBroker(broker.UpstoxConfig{
		BaseURL:     app.Config.Upstox.BaseURL,
		Timeout:     app.Config.Upstox.Timeout,
		IndexPrefix: app.Config.Options.IndexPrefix,
		Tokens:      tokens,
		Logger:      app.Logger,
	})
	app.Logger.Debug().Str("base_url", app.Config.Upstox.BaseURL).Msg("Upstox broker initialized")
	return nil
}

// snapshotStore opens the SQLite store on first use.
func (app *App) snapshotStore() (store.SnapshotStore, error) {
	if app.store != nil {
		return app.store, nil
	}
	s, err := store.NewSQLiteStore(app.Config.Store.Path)
	if err != nil {
		return nil, err
	}
	app.store = s
	app.Logger.Debug().Str("path", app.Config.Store.Path).Msg("SQLite store initialized")
	return s, nil
}

// Close releases the store and the token source if they hold resources.
func (app *App) Close() error {
	var firstErr error
	if c, ok := app.tokens.(io.Closer); ok {
		firstErr = c.Close()
	}
	app.tokens = nil

	if app.store != nil {
		if err := app.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		app.store = nil
	}
	return firstErr
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
				output.Printf("upstox-options v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"upstox":  app.Config.Upstox,
					"options": app.Config.Options,
					"store":   app.Config.Store,
					"logging": app.Config.Logging,
				})
			}
			return showConfig(output, app.Config)
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

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Upstox")
	output.Printf("  Base URL:        %s\n", cfg.Upstox.BaseURL)
	output.Printf("  Timeout:         %s\n", cfg.Upstox.Timeout)
	output.Printf("  Token:           %s\n", tokenStatus(cfg))
	output.Println()

	output.Bold("Options")
	output.Printf("  Lot size:        %d\n", cfg.Options.LotSize)
	output.Printf("  Margin timeout:  %s\n", cfg.Options.MarginTimeout)
	output.Printf("  Index prefix:    %s\n", cfg.Options.IndexPrefix)
	output.Printf("  Option prefix:   %s\n", cfg.Options.OptionPrefix)
	output.Println()

	output.Bold("Store")
	output.Printf("  Path:            %s\n", cfg.Store.Path)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  File:            %v\n", cfg.Logging.File)

	return nil
}

func tokenStatus(cfg *config.Config) string {
	switch {
	case cfg.Credentials.Upstox.AccessToken != "":
		return security.MaskCredential(cfg.Credentials.Upstox.AccessToken)
	case cfg.Credentials.Upstox.RedisURL != "":
		return "redis " + security.MaskURL(cfg.Credentials.Upstox.RedisURL) + " (" + cfg.Credentials.Upstox.TokenKey + ")"
	default:
		return "not configured"
	}
}
