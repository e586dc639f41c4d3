package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/cmd/cascade/commands"
	"github.com/carebridge/shift-cascade/internal/config"
	"github.com/carebridge/shift-cascade/pkg/clients/gmailclient"
	"github.com/carebridge/shift-cascade/pkg/core/cascade"
	"github.com/carebridge/shift-cascade/pkg/core/notify"
	"github.com/carebridge/shift-cascade/pkg/core/sweeper"
	"github.com/carebridge/shift-cascade/pkg/postgres"
	"github.com/carebridge/shift-cascade/pkg/utils"
	"github.com/carebridge/shift-cascade/pkg/utils/logging"
)

var (
	env string
	app *commands.AppContext
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cascade",
		Short: "Shift Offer Cascade Engine - assign open care shifts to ranked candidates",
		Long:  `A service that offers an open caregiving shift to ranked candidates one at a time, escalating on decline or timeout until a candidate accepts or the pool is exhausted.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil && app.Logger != nil {
				app.Logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")

	app = &commands.AppContext{}
	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.SweepCmd(app))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, database, notifier, engine, and sweeper
func initApp() error {
	var err error
	app.Ctx = context.Background()

	// Initialize logger
	app.Logger, err = logging.InitLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	// Load configuration
	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully")

	// Connect to the database and apply pending migrations
	app.Logger.Info("Connecting to database")
	database, err := postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.RunMigrations(app.Ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	app.Database = database
	app.Logger.Info("Database initialized successfully")

	// Pick the notification sink
	sink, err := buildSink(database)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(sink, app.Logger)

	// Build the engine and sweeper
	app.Engine = cascade.NewEngine(
		database,
		dispatcher,
		cascade.SystemClock(),
		app.Cfg.OfferWindow(),
		app.Logger,
	)
	app.Sweeper = sweeper.New(
		database,
		app.Engine,
		cascade.SystemClock(),
		app.Cfg.SweepInterval(),
		app.Logger,
	)

	app.Logger.Info("Cascade engine ready",
		zap.Duration("offer_window", app.Cfg.OfferWindow()),
		zap.Duration("sweep_interval", app.Cfg.SweepInterval()),
		zap.String("notifier", notifierMode()))

	return nil
}

// buildSink selects the notification sink from config: the database outbox
// by default, direct Gmail delivery when configured
func buildSink(database *postgres.DB) (notify.Sink, error) {
	if notifierMode() != config.NotifierGmail {
		return database, nil
	}

	app.Logger.Info("Initializing gmail notifier", zap.String("user_id", app.Cfg.GmailUserID))

	oauthCfg, err := config.LoadOAuthClientWithEnv(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	token, err := utils.LoadToken(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth token: %w", err)
	}

	gmailClient, err := gmailclient.NewClient(app.Ctx, oauthCfg, token, app.Cfg.GmailSender)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}

	return notify.NewEmailSink(gmailClient), nil
}

func notifierMode() string {
	if app.Cfg.Notifier == "" {
		return config.NotifierOutbox
	}
	return app.Cfg.Notifier
}
