package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"phx_market/internal/analytics"
	"phx_market/internal/domain"
	"phx_market/internal/trend"
)

const lineWidth = 80

// WriteHeader writes the terminal banner.
func WriteHeader(w io.Writer) error {
	rule := strings.Repeat("=", lineWidth)
	_, err := fmt.Fprintf(w, "\n%s\n%s\n%s\n%s\n",
		rule, center("PHX/USD PRICE ANALYSIS"), center("MARKET ORACLE TERMINAL"), rule)
	return err
}

// WriteSummary writes the fixed-width market summary. stats may be nil when
// there is no price history yet.
func WriteSummary(w io.Writer, stats *analytics.Statistics, snap domain.MarketSnapshot) error {
	if stats == nil {
		_, err := fmt.Fprintln(w, "NO DATA AVAILABLE")
		return err
	}

	rule := strings.Repeat("-", lineWidth)
	at := snap.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nMARKET SUMMARY AS OF %s\n", at.Format("2006-01-02 15:04:05"))
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "LAST PRICE: $%8.2f   CHANGE: %s%7.2f   CHANGE %%: %s%6.2f%%\n",
		stats.Current, sign(stats.Change), stats.Change, sign(stats.Change), stats.ChangePercent)
	fmt.Fprintf(&b, "OPEN:      $%8.2f   HIGH:     $%8.2f   LOW:      $%8.2f\n",
		stats.Open, stats.High, stats.Low)
	fmt.Fprintf(&b, "MEAN:      $%8.2f   STD DEV:  $%8.2f   VOLATILITY: %6.2f%%\n",
		stats.Mean, stats.StdDev, stats.Volatility)
	fmt.Fprintf(&b, "TOTAL RETURN: %s%6.2f%%   DATA POINTS: %4d   BASE PEG: $%s\n",
		sign(stats.TotalReturn), stats.TotalReturn, stats.Points, snap.BasePeg.StringFixed(2))
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "RISK  CONCENTRATION: %5s%%   VELOCITY: %5s%%   LARGE TX: %5s%%   CRASH: %5s%%\n",
		snap.ConcentrationRiskPercent.StringFixed(1),
		snap.VelocityRiskPercent.StringFixed(1),
		snap.LargeTransferRiskPercent.StringFixed(1),
		snap.CrashProbabilityPercent.StringFixed(1))
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteTrend writes the moving-average line under the summary.
func WriteTrend(w io.Writer, st trend.State, points int) error {
	if !st.Ready {
		_, err := fmt.Fprintln(w, "TREND: INSUFFICIENT DATA")
		return err
	}
	last := "NO CROSS"
	if st.Last != trend.None {
		last = fmt.Sprintf("%s %d SAMPLES AGO", strings.ReplaceAll(st.Last.String(), "_", " "), points-1-st.LastIndex)
	}
	_, err := fmt.Fprintf(w, "TREND: MA5 $%8.2f   MA10 $%8.2f   LAST: %s\n", st.Short, st.Long, last)
	return err
}

func sign(v float64) string {
	if v >= 0 {
		return "+"
	}
	return ""
}

func center(s string) string {
	pad := (lineWidth - len(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}
