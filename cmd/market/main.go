package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"phx_market/internal/app"
	"phx_market/internal/domain"
	"phx_market/internal/report"
	"phx_market/internal/service"
	"phx_market/internal/trend"

	"github.com/shopspring/decimal"
)

const usage = `usage: market [-config path] [-json] <command> [args]

commands:
  snapshot                      compute and persist a new price
  peek                          show the last persisted price
  performance                   performance since the oldest sample
  stats                         terminal market summary
  history [n]                   last n price samples
  chart <file.png>              render the price chart
  convert-usd <amount>          tokens to USD
  convert-token <amount>        USD to tokens
  transfer <from> <to> <amount> send tokens and reprice
  balance <address>             holder balance and value
  operations [n]                recent price-affecting operations
`

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to config.yaml")
	asJSON := flag.Bool("json", false, "print JSON instead of text")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := app.NewBootstrap(*configPath, "market.log", false)
	if err := bootstrap.Initialize(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer bootstrap.Close()

	c := &cli{market: bootstrap.Service, out: os.Stdout, json: *asJSON}
	if err := c.run(ctx, flag.Args()); err != nil {
		slog.Error("Command failed", slog.String("command", flag.Arg(0)), slog.Any("error", err))
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid arguments")

type cli struct {
	market *service.MarketService
	out    io.Writer
	json   bool
}

func (c *cli) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "snapshot":
		snap, err := c.market.Snapshot(ctx)
		if err != nil {
			return err
		}
		return c.printSnapshot(snap)

	case "peek":
		return c.printSnapshot(c.market.Peek(ctx))

	case "performance":
		perf, err := c.market.Performance(ctx)
		if err != nil {
			return err
		}
		if c.json {
			return c.printJSON(perf)
		}
		fmt.Fprintf(c.out, "START:        $%s\n", perf.StartPrice.StringFixed(2))
		fmt.Fprintf(c.out, "CURRENT:      $%s\n", perf.CurrentPrice.StringFixed(2))
		fmt.Fprintf(c.out, "HIGH / LOW:   $%s / $%s\n", perf.HighestPrice.StringFixed(2), perf.LowestPrice.StringFixed(2))
		fmt.Fprintf(c.out, "TOTAL RETURN: %s%%\n", perf.TotalChangePercent.StringFixed(2))
		fmt.Fprintf(c.out, "FROM PEAK:    %s%%\n", perf.FromPeakPercent.StringFixed(2))
		fmt.Fprintf(c.out, "VOLATILITY:   %s%%\n", perf.VolatilityPercent.StringFixed(2))
		return nil

	case "stats":
		stats, err := c.market.Statistics(ctx)
		if err != nil && !errors.Is(err, domain.ErrPerformanceUnavailable) {
			return err
		}
		if c.json {
			return c.printJSON(stats)
		}
		if err := report.WriteHeader(c.out); err != nil {
			return err
		}
		if err := report.WriteSummary(c.out, stats, c.market.Peek(ctx)); err != nil || stats == nil {
			return err
		}
		history := c.market.History(ctx)
		prices := make([]float64, len(history))
		for i, s := range history {
			prices[i] = s.Price.InexactFloat64()
		}
		st, err := trend.Scan(prices, 5, 10)
		if err != nil {
			return err
		}
		return report.WriteTrend(c.out, st, len(prices))

	case "history":
		n, err := optionalCount(rest)
		if err != nil {
			return err
		}
		history := c.market.History(ctx)
		if n > 0 && n < len(history) {
			history = history[len(history)-n:]
		}
		if c.json {
			return c.printJSON(history)
		}
		for _, s := range history {
			fmt.Fprintf(c.out, "%-24s $%8s  vol %12s  tx %5d\n",
				s.Timestamp, s.Price.StringFixed(2), s.Volume24h.StringFixed(2), s.TotalTransactions)
		}
		return nil

	case "chart":
		if len(rest) != 1 {
			return errUsage
		}
		opts := report.ChartOptions{BasePeg: c.market.BasePeg()}
		if err := report.RenderChart(c.market.History(ctx), rest[0], opts); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "chart saved to %s\n", rest[0])
		return nil

	case "convert-usd":
		amount, err := amountArg(rest, 0, 1)
		if err != nil {
			return err
		}
		usd, err := c.market.ConvertToQuoteCurrency(ctx, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s PHX = $%s\n", amount, usd.StringFixed(2))
		return nil

	case "convert-token":
		amount, err := amountArg(rest, 0, 1)
		if err != nil {
			return err
		}
		tokens, err := c.market.ConvertToToken(ctx, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "$%s = %s PHX\n", amount.StringFixed(2), tokens.StringFixed(6))
		return nil

	case "transfer":
		amount, err := amountArg(rest, 2, 3)
		if err != nil {
			return err
		}
		out, err := c.market.Transfer(ctx, rest[0], rest[1], amount)
		if err != nil {
			return err
		}
		if c.json {
			return c.printJSON(out)
		}
		fmt.Fprintf(c.out, "tx %s (block %d)\n", out.Receipt.TxHash, out.Receipt.BlockNumber)
		fmt.Fprintf(c.out, "price $%s -> $%s (%s%%)\n",
			out.PreviousPrice.StringFixed(2), out.NewPrice.StringFixed(2), out.ChangePercent.StringFixed(2))
		if out.Declined {
			fmt.Fprintln(c.out, "warning: this transfer lowered the market price")
		}
		return nil

	case "balance":
		if len(rest) != 1 {
			return errUsage
		}
		w, err := c.market.Wallet(ctx, rest[0])
		if err != nil {
			return err
		}
		if c.json {
			return c.printJSON(w)
		}
		fmt.Fprintf(c.out, "%s: %s PHX ($%s)\n", w.Address, w.Balance, w.QuoteValue.StringFixed(2))
		return nil

	case "operations":
		n, err := optionalCount(rest)
		if err != nil {
			return err
		}
		ops := c.market.Operations(ctx, n)
		if c.json {
			return c.printJSON(ops)
		}
		for _, op := range ops {
			fmt.Fprintf(c.out, "%s  %-8s %s -> %s  %s PHX  $%s -> $%s\n",
				op.At.Format("2006-01-02 15:04:05"), op.Kind, op.From, op.To, op.Amount,
				op.PriceBefore.StringFixed(2), op.PriceAfter.StringFixed(2))
		}
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (c *cli) printSnapshot(snap domain.MarketSnapshot) error {
	if c.json {
		return c.printJSON(snap)
	}
	fmt.Fprintf(c.out, "PHX/USD:        $%s (%s%% vs peg $%s)\n",
		snap.Price.StringFixed(2), snap.PriceChangePercent.StringFixed(1), snap.BasePeg.StringFixed(2))
	fmt.Fprintf(c.out, "24h volume:     %s PHX\n", snap.Volume24h.StringFixed(2))
	fmt.Fprintf(c.out, "transactions:   %d\n", snap.TotalTransactions)
	fmt.Fprintf(c.out, "concentration:  %s%%\n", snap.ConcentrationRiskPercent.StringFixed(1))
	fmt.Fprintf(c.out, "velocity:       %s%%\n", snap.VelocityRiskPercent.StringFixed(1))
	fmt.Fprintf(c.out, "large transfer: %s%%\n", snap.LargeTransferRiskPercent.StringFixed(1))
	fmt.Fprintf(c.out, "crash prob.:    %s%%\n", snap.CrashProbabilityPercent.StringFixed(1))
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// amountArg parses args[idx] as a decimal after checking len(args) == want.
func amountArg(args []string, idx, want int) (decimal.Decimal, error) {
	if len(args) != want {
		return decimal.Zero, errUsage
	}
	d, err := decimal.NewFromString(args[idx])
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", errUsage, args[idx])
	}
	return d, nil
}

func optionalCount(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	var n int
	if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a count", errUsage, args[0])
	}
	return n, nil
}
