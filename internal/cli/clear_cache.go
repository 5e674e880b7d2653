package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Remove every cached price",
	Run:   runClearCache,
}

func init() {
	rootCmd.AddCommand(clearCacheCmd)
}

func runClearCache(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app := newOneShotApp(ctx, cfg, "clear-cache")
	defer app.Close()

	app.Engine().ClearCache(ctx)
	fmt.Printf("Cleared cached prices for %d symbols\n", len(cfg.Provider.Symbols))
}
