package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/asimaranov/telestory-backend/internal/fleet"
	"github.com/asimaranov/telestory-backend/internal/fleet/config"
	"github.com/asimaranov/telestory-backend/internal/fleet/content"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

var configPath string

// rootCmd runs the fleet node daemon.
var rootCmd = &cobra.Command{
	Use:   "fleetd",
	Short: "Fleet coordination node",
	Long: `fleetd runs one fleet coordination node. A node keeps a pool of
platform sessions, serves fetch requests from its own pool and, when started
with node.master enabled, routes requests across the whole fleet.

Configuration is read from a YAML file and FLEETD_* environment variables.

Examples:
  # Run with the default config discovery
  fleetd

  # Run with an explicit config file
  fleetd --config /etc/fleetd/config.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}

func runServe() {
	ctx := context.Background()

	log := logger.NewProduction("fleetd", fleet.Version)
	log.InfoContext(ctx, "starting fleetd", "version", fleet.Version)

	cfg, err := loadConfig()
	if err != nil {
		log.ErrorCtx(ctx, "failed to load configuration", err)
		os.Exit(1)
	}

	log = logger.New(logger.Config{
		Level:     logger.LogLevel(cfg.Log.Level),
		Format:    logger.OutputFormat(cfg.Log.Format),
		Component: "fleetd",
		Version:   fleet.Version,
	})
	log.DebugContext(ctx, "configuration loaded successfully", "node", cfg.Node.Name)

	service, err := fleet.NewService(cfg, contentClient(), log)
	if err != nil {
		log.ErrorCtx(ctx, "failed to create service", err)
		os.Exit(1)
	}

	if err := service.Start(ctx); err != nil {
		log.ErrorCtx(ctx, "failed to start service", err)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if stopErr := service.Stop(shutdownCtx); stopErr != nil {
			log.ErrorCtx(ctx, "failed to cleanup service after startup failure", stopErr)
		}

		os.Exit(1)
	}

	log.InfoContext(ctx, "service started successfully, waiting for shutdown signal")

	service.WaitForShutdown()

	log.InfoContext(ctx, "main process exiting")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadWithPath(configPath)
	}
	return config.NewLoader().Load()
}

// contentClient returns the platform client implementation. Deployments embed
// their provider here; the coordination layer only sees the interface.
func contentClient() content.Client {
	return content.Unconfigured{}
}
