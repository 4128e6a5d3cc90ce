package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KAsare1/social-api/cache"
	"github.com/KAsare1/social-api/cmd/api"
	"github.com/KAsare1/social-api/cmd/utils"
	"github.com/KAsare1/social-api/config"
	"github.com/KAsare1/social-api/db"
	"github.com/KAsare1/social-api/logger"
	"github.com/KAsare1/social-api/repository/gormstore"
	"github.com/KAsare1/social-api/service"
	"github.com/KAsare1/social-api/social"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "social-api",
	Short:        "Social graph API server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config, log *zap.Logger, DB *gorm.DB) error {
			return startServer(cmd.Context(), cfg, log, DB)
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config, log *zap.Logger, DB *gorm.DB) error {
			if err := db.Migrate(DB, log); err != nil {
				return fmt.Errorf("migration error: %w", err)
			}
			log.Info("Migrations completed successfully")
			return nil
		})
	},
}

var assumeYes bool

var clearDBCmd = &cobra.Command{
	Use:   "clear-db [table...]",
	Short: "Drop tables (User, Post, Comment, Follow); all of them when none are named",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config, log *zap.Logger, DB *gorm.DB) error {
			return runDatabaseClear(cmd.InOrStdin(), cmd.OutOrStdout(), log, DB, args)
		})
	},
}

func init() {
	clearDBCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(serveCmd, migrateCmd, clearDBCmd)
}

// withDatabase loads config, builds the logger and opens the database for
// the duration of fn.
func withDatabase(fn func(*config.Config, *zap.Logger, *gorm.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	DB, err := db.NewPSQLStorage(cfg, log)
	if err != nil {
		log.Error("Database initialization error", zap.Error(err))
		return err
	}
	defer func() {
		db.Close(DB)
		log.Info("Database connection closed")
	}()
	log.Info("Connected to the database")

	return fn(cfg, log, DB)
}

func startServer(ctx context.Context, cfg *config.Config, log *zap.Logger, DB *gorm.DB) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := gormstore.New(DB, log)
	tokens := utils.NewTokenIssuer(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	var (
		stats       social.StatsComputer
		invalidator social.StatsInvalidator
	)
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		statsCache := cache.NewStatsCache(client, social.NewStats(store), cfg.StatsCacheTTL, log)
		stats, invalidator = statsCache, statsCache
		log.Info("stats cache enabled", zap.Duration("ttl", cfg.StatsCacheTTL))
	}

	deps := service.NewDeps(store, tokens, stats, invalidator, log)
	server := api.NewApiServer(":"+cfg.Port, deps, cfg.CORSOrigins)
	return server.Run(ctx)
}

func runDatabaseClear(in io.Reader, out io.Writer, log *zap.Logger, DB *gorm.DB, names []string) error {
	log.Info("Preparing to clear database...")

	if !assumeYes {
		fmt.Fprint(out, "Are you sure you want to clear the database? (yes/no): ")
		confirmation, _ := bufio.NewReader(in).ReadString('\n')
		if strings.TrimSpace(confirmation) != "yes" {
			log.Info("Database clearing cancelled.")
			return nil
		}
	}

	var tables []interface{}
	for _, name := range splitTableNames(names) {
		table, ok := db.TableByName(name)
		if !ok {
			return fmt.Errorf("unknown table: %s", name)
		}
		tables = append(tables, table)
	}

	if err := db.DropTables(DB, log, tables); err != nil {
		return fmt.Errorf("error clearing database: %w", err)
	}
	log.Info("Database cleared successfully")
	return nil
}

// splitTableNames accepts names as separate arguments or comma separated.
func splitTableNames(args []string) []string {
	var names []string
	for _, arg := range args {
		for _, name := range strings.Split(arg, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
