package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relife",
	Short: "Searchable visual timeline of your screen",
	Long: `relife captures the screen at a fixed interval, keeps frames that changed,
extracts their text and makes the history searchable over a local API.`,
	SilenceUsage: true,
	RunE:         runRecord,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
