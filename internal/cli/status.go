package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/syncing/cache"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached price of every tracked metal",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app := newOneShotApp(ctx, cfg, "status")
	defer app.Close()

	printStatus(ctx, os.Stdout, app.Store(), cfg.Provider.Symbols, cfg.Cache.MaxAge, time.Now())
}

func printStatus(
	ctx context.Context,
	out io.Writer,
	store *cache.Store[domain.Quote],
	symbols []domain.Symbol,
	maxAge time.Duration,
	now time.Time,
) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SYMBOL\tNAME\tRATE\tSTORED\tAGE\tUSABLE")

	for _, symbol := range symbols {
		// Peek so a status check never evicts.
		entry, ok := store.Peek(ctx, string(symbol))
		if !ok {
			_, _ = fmt.Fprintf(w, "%s\t%s\t-\t-\t-\tno\n", symbol, symbol.Name())
			continue
		}
		age := entry.Age(now)
		usable := "yes"
		if age > maxAge {
			usable = "no"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\t%s\t%s\n",
			symbol,
			symbol.Name(),
			entry.Payload.Rate,
			entry.StoredAt.Format(time.RFC3339),
			age.Round(time.Second),
			usable,
		)
	}
	_ = w.Flush()
}
