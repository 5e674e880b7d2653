package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/metalsync/internal/core/domain"
)

var historyDays int

var historyCmd = &cobra.Command{
	Use:   "history SYMBOL",
	Short: "Show daily prices of a metal over the last days",
	Args:  cobra.ExactArgs(1),
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyDays, "days", 7, "number of days to look back")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app := newApp(ctx, cfg)
	symbol := domain.Symbol(strings.ToUpper(args[0]))

	history, err := app.History(ctx, symbol, historyDays)
	if err != nil {
		slog.Error("Failed to fetch historical prices", "symbol", symbol, "error", err)
		fail(app, 1)
	}
	app.Close()

	printHistory(os.Stdout, history)
}

func printHistory(out io.Writer, h domain.History) {
	_, _ = fmt.Fprintf(out, "%s (%s) in %s, %s to %s\n",
		h.Name, h.Symbol, h.Base, h.Start.Format(time.DateOnly), h.End.Format(time.DateOnly))

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DATE\tRATE")
	for _, p := range h.Points {
		_, _ = fmt.Fprintf(w, "%s\t%.4f\n", p.Date.Format(time.DateOnly), p.Rate)
	}
	_ = w.Flush()

	if c := h.Change(); c != nil {
		_, _ = fmt.Fprintf(out, "Change: %+.4f (%+.2f%%)\n", c.Delta, c.Percent)
	}
}
