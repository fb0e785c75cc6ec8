package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"enterprise-kb/internal/bootstrap"
	"enterprise-kb/internal/config"
	"enterprise-kb/internal/pkg/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kbctl",
	Short: "Administer the enterprise knowledge base",
	Long: `kbctl runs maintenance tasks against the same MySQL, Redis and vector
index the server uses.

Example usage:
  kbctl ensure-collection            # Create the chunk collection if missing
  kbctl reindex --all                # Rebuild chunks for every document
  kbctl ask -u 1 "leave policy?"     # Ask a question as user 1
  kbctl promote alice                # Grant superuser to alice`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
				return err
			}
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logging.InitWithWriter(os.Stderr, cfg.App.Name+"-cli", cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_FILE or configs/config.toml)")
}

// openApp connects to every backend without starting the queue consumer.
func openApp(cmd *cobra.Command) (*bootstrap.App, error) {
	app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return app, nil
}
