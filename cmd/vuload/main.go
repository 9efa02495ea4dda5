package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/torosent/vuload/internal/config"
)

// exitFunc terminates the process; replaced in tests.
var exitFunc = os.Exit

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vuload",
		Short: "Concurrent virtual-user load testing with run history",
		Long: `vuload launches many isolated virtual users that walk a workflow against a
target, retries failing steps, and keeps a history of every run so trends and
load levels can be compared over time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newTrendsCmd())
	cmd.AddCommand(newCompareCmd())
	return cmd
}

// loadConfig resolves the configuration of cmd from defaults, the config
// file, the environment, positional arguments and flags.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	return config.NewLoader().FromFlags(cmd.Flags(), args)
}
