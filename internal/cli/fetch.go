package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/syncing/classify"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one refresh cycle and print the results",
	Run:   runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app := newOneShotApp(ctx, cfg, "fetch")

	batch, err := app.Engine().Refresh(ctx)
	if err != nil {
		slog.Error("Refresh failed", "error", err)
		fail(app, 1)
	}
	printBatch(os.Stdout, batch)

	if code := fetchExitCode(batch); code != 0 {
		fail(app, code)
	}
	app.Close()
}

// fetchExitCode is 2 when any symbol has neither fresh nor cached data.
func fetchExitCode(batch domain.BatchResult) int {
	if batch.Status() == domain.SyncStatusFailed {
		return 2
	}
	return 0
}

func printBatch(out io.Writer, batch domain.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SYMBOL\tSTATUS\tRATE\tCHANGE\tDETAIL")

	symbols := make([]domain.Symbol, 0, len(batch.Items))
	for s := range batch.Items {
		symbols = append(symbols, s)
	}
	slices.Sort(symbols)

	for _, symbol := range symbols {
		item := batch.Items[symbol]
		rate, change := "-", "-"
		if item.Quote != nil {
			rate = fmt.Sprintf("%.4f", item.Quote.Rate)
			if c := item.Quote.Change; c != nil {
				change = fmt.Sprintf("%+.2f%%", c.Percent)
			}
		}

		detail := ""
		switch item.Status {
		case domain.SyncStatusStale:
			detail = fmt.Sprintf("may be outdated (%s old): %s", item.Age.Round(time.Second), classify.InfoFor(item.Reason).Title)
		case domain.SyncStatusFailed:
			info := classify.InfoFor(item.Reason)
			detail = fmt.Sprintf("%s. %s", info.Title, info.Action)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", symbol, item.Status, rate, change, detail)
	}
	_ = w.Flush()
}
