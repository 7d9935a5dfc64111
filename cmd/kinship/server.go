package kinshipcmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundprediction/kinship"
	"github.com/soundprediction/kinship/pkg/config"
	"github.com/soundprediction/kinship/pkg/driver"
	kinshipLogger "github.com/soundprediction/kinship/pkg/logger"
	"github.com/soundprediction/kinship/pkg/server"
	"github.com/soundprediction/kinship/pkg/telemetry"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Kinship HTTP server",
	Long: `Start the Kinship HTTP server to provide REST API access to the relationship graph.

The server provides endpoints for:
- Adding persons and facts
- Registering and listing Datalog rules
- Running queries against the graph plus all stored rules
- Inspecting relation types and the person attribute schema
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")

	// Database flags
	serverCmd.Flags().String("db-driver", "sqlite", "Database driver (sqlite, neo4j, badger, memory)")
	serverCmd.Flags().String("db-uri", "./kinship.db", "Database URI/path")
	serverCmd.Flags().String("db-username", "", "Database username (neo4j only)")
	serverCmd.Flags().String("db-password", "", "Database password (neo4j only)")
	serverCmd.Flags().String("db-database", "", "Database name (neo4j only)")

	// Engine flags
	serverCmd.Flags().Int("query-timeout", 30, "Query evaluation timeout in seconds")
	serverCmd.Flags().Int("schema-sample-size", 25, "Persons sampled by inspect_person_schema")
	serverCmd.Flags().Bool("lenient-json", false, "Repair almost-JSON documents instead of rejecting them")
	serverCmd.Flags().String("rules-seed", "", "YAML file of rules loaded at startup")

	// Telemetry flags
	serverCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for error telemetry")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	overrideConfigWithFlags(cmd, cfg)

	// Validate configuration
	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize Kinship
	fmt.Println("Initializing Kinship...")
	client, err := initializeKinship(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Kinship: %w", err)
	}

	// Create and setup server
	srv := server.New(cfg, client)
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Shutdown server
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		if err := client.Close(shutdownCtx); err != nil {
			return fmt.Errorf("store shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Database flags
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-uri") {
		cfg.Database.URI, _ = cmd.Flags().GetString("db-uri")
	}
	if cmd.Flags().Changed("db-username") {
		cfg.Database.Username, _ = cmd.Flags().GetString("db-username")
	}
	if cmd.Flags().Changed("db-password") {
		cfg.Database.Password, _ = cmd.Flags().GetString("db-password")
	}
	if cmd.Flags().Changed("db-database") {
		cfg.Database.Database, _ = cmd.Flags().GetString("db-database")
	}

	// Engine flags
	if cmd.Flags().Changed("query-timeout") {
		cfg.Engine.QueryTimeout, _ = cmd.Flags().GetInt("query-timeout")
	}
	if cmd.Flags().Changed("schema-sample-size") {
		cfg.Engine.SchemaSampleSize, _ = cmd.Flags().GetInt("schema-sample-size")
	}
	if cmd.Flags().Changed("lenient-json") {
		cfg.Engine.LenientJSON, _ = cmd.Flags().GetBool("lenient-json")
	}
	if cmd.Flags().Changed("rules-seed") {
		cfg.Engine.RulesSeedPath, _ = cmd.Flags().GetString("rules-seed")
	}

	// Telemetry flags
	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	if cfg.Database.Driver != "memory" && cfg.Database.URI == "" {
		return fmt.Errorf("database URI is required")
	}
	return nil
}

// initializeKinship builds the driver, logger, and client from configuration.
// Shared by the server and mcp commands.
func initializeKinship(cfg *config.Config) (*kinship.Client, error) {
	logger := slog.New(kinshipLogger.NewColorHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Error telemetry using Parquet
	trackingPath := cfg.Telemetry.ParquetPath
	if trackingPath != "" {
		if err := os.MkdirAll(trackingPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
		}

		colorHandler := kinshipLogger.NewColorHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
		parquetHandler, err := telemetry.NewParquetHandler(colorHandler, trackingPath)
		if err != nil {
			fmt.Printf("Warning: Failed to initialize error tracking: %v\n", err)
		} else {
			logger = slog.New(parquetHandler)
			fmt.Printf("Error tracking enabled at: %s\n", trackingPath)
		}
	}

	graphDriver, err := driver.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s driver: %w", cfg.Database.Driver, err)
	}

	client, err := kinship.NewClient(graphDriver, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kinship client: %w", err)
	}

	if err := client.CreateIndices(context.Background()); err != nil {
		fmt.Printf("Warning: Failed to create indices: %v\n", err)
	}

	fmt.Printf("Kinship initialized successfully with driver: %s\n", cfg.Database.Driver)
	return client, nil
}
