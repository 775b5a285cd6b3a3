package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/newsdeck/backend/pkg/config"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quality",
	Short: "NewsDeck 품질 스냅샷 파이프라인",
	Long: `NewsDeck Quality CLI

테스트, 커버리지, Lighthouse, 안정성 지표를 스냅샷으로 기록하고
대시보드 캐시를 생성/서빙합니다.

Usage:
  go run ./cmd/quality [command]

Examples:
  go run ./cmd/quality generate
  go run ./cmd/quality list --json
  go run ./cmd/quality cache build
  go run ./cmd/quality serve --port 3001`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment (development|staging|production|test)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// loadConfig loads the environment config and applies the global flags.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	return cfg, logger.New(cfg), nil
}
