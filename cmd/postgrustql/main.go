// Command postgrustql runs the database server: it loads configuration,
// recovers from the write-ahead log, and serves the PostgreSQL
// simple-query wire protocol subset over TCP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"postgrustql/internal/catalog"
	"postgrustql/internal/config"
)

// version is the server's reported build version; there is no build-time
// injection step in this repo, so it is a fixed constant.
const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "postgrustql",
		Short: "A single-node PostgreSQL-wire-protocol database server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initDBCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type serveFlags struct {
	dataDir string
	host    string
	port    int
}

func serveCmd() *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the database server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyServeFlags(&cfg, flags)
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "Override POSTGRUSTQL_DATA_DIR")
	cmd.Flags().StringVar(&flags.host, "host", "", "Override POSTGRUSTQL_HOST")
	cmd.Flags().IntVar(&flags.port, "port", 0, "Override POSTGRUSTQL_PORT")
	return cmd
}

func applyServeFlags(cfg *config.Config, flags *serveFlags) {
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.host != "" {
		cfg.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Port = flags.port
	}
}

type initDBFlags struct {
	dataDir string
}

func initDBCmd() *cobra.Command {
	flags := &initDBFlags{}
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create a new data directory with a fresh catalog",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if flags.dataDir != "" {
				cfg.DataDir = flags.dataDir
			}
			return runInitDB(cfg)
		},
	}
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "Override POSTGRUSTQL_DATA_DIR")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Println("postgrustql " + version)
			return nil
		},
	}
}

// runInitDB lays out a fresh data directory and writes its initial
// checkpoint, the way a client would run `pgr_restore --format binary`
// against an empty directory, but seeded from config instead of a dump
// file.
func runInitDB(cfg config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("initdb: create data dir: %w", err)
	}
	if _, err := os.Stat(catalogPath(cfg.DataDir)); err == nil {
		return fmt.Errorf("initdb: %s already contains a catalog", cfg.DataDir)
	}

	fl, err := config.LockDataDir(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	b, err := bootstrap(cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.checkpoint(); err != nil {
		return fmt.Errorf("initdb: write checkpoint: %w", err)
	}

	log.Info("initialized data directory",
		zap.String("data_dir", cfg.DataDir),
		zap.String("superuser", cfg.User),
		zap.String("database", cfg.Database))
	return nil
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// bootstrapFreshCatalog seeds a brand-new ServerInstance the way
// ServerInstance.Initialize does for the first server start against an
// empty data directory.
func bootstrapFreshCatalog(cfg config.Config) *catalog.ServerInstance {
	inst := catalog.NewServerInstance()
	inst.Initialize(cfg.User, cfg.Password, cfg.Database)
	return inst
}
