package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/metalsync/internal/core/domain"
)

var convertCurrency string

var convertCmd = &cobra.Command{
	Use:   "convert SYMBOL",
	Short: "Price a metal in another currency",
	Args:  cobra.ExactArgs(1),
	Run:   runConvert,
}

func init() {
	convertCmd.Flags().StringVar(&convertCurrency, "currency", "EUR", "target currency code")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app := newApp(ctx, cfg)
	symbol := domain.Symbol(strings.ToUpper(args[0]))

	conv, err := app.Convert(ctx, symbol, convertCurrency)
	if err != nil {
		slog.Error("Failed to convert price", "symbol", symbol, "currency", convertCurrency, "error", err)
		fail(app, 1)
	}
	app.Close()

	printConversion(os.Stdout, conv)
}

func printConversion(out io.Writer, c domain.Conversion) {
	_, _ = fmt.Fprintf(out, "%s (%s): %.4f %s = %.4f %s (as of %s)\n",
		c.Name, c.Symbol, c.Rate, c.Base, c.Converted, c.Currency, c.Timestamp.Format(time.RFC3339))
}
