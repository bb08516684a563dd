package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"lifesync/internal/dashboard"
	"lifesync/internal/export"
)

// printTable renders t as aligned columns.
func printTable(w io.Writer, t export.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if t.Name != "" {
		fmt.Fprintf(tw, "# %s\n", t.Name)
	}
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(t.Header, "\t")))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func formatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", m/60, m%60)
}

func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// printOverview writes the dashboard as plain text blocks.
func printOverview(w io.Writer, o dashboard.Overview) {
	fmt.Fprintf(w, "LifeSync overview for %s\n\n", o.Today)

	fmt.Fprintf(w, "Month %s: out %s, in %s\n", o.Month.Month, formatMoney(o.Month.Outflow), formatMoney(o.Month.Inflow))
	for _, g := range o.TopGroups {
		fmt.Fprintf(w, "  %-20s %10s\n", g.Name, formatMoney(g.Amount))
	}
	if o.PendingCount > 0 {
		fmt.Fprintf(w, "Lent and not settled: %s in %d records\n", formatMoney(o.PendingLent), o.PendingCount)
	}

	var week int
	for _, p := range o.WeeklyMinutes {
		week += int(p.Value)
	}
	fmt.Fprintf(w, "\nTime logged this week: %s\n", formatMinutes(week))
	for _, p := range o.WeeklyMinutes {
		fmt.Fprintf(w, "  %s %s\n", p.Day, strings.Repeat("#", int(p.Value)/15))
	}
	for _, s := range o.OpenTasksByPriority {
		fmt.Fprintf(w, "  open %-8s %3.0f (%.1f%%)\n", s.Name, s.Value, s.Rounded())
	}
	if o.OverdueTasks > 0 {
		fmt.Fprintf(w, "  overdue: %d\n", o.OverdueTasks)
	}

	if len(o.Portfolio) > 0 || o.CorruptInvestments > 0 {
		fmt.Fprintf(w, "\nPortfolio gain: %s\n", formatMoney(o.PortfolioGain))
		for _, s := range o.Portfolio {
			fmt.Fprintf(w, "  %-12s %10s %5.1f%%\n", s.Name, formatMoney(s.Value), s.Rounded())
		}
		if o.CorruptInvestments > 0 {
			fmt.Fprintf(w, "  %d investments could not be read\n", o.CorruptInvestments)
		}
	}

	if len(o.OpenIncidents) > 0 || len(o.UpcomingChanges) > 0 {
		fmt.Fprintln(w, "\nIT")
		for _, s := range o.OpenIncidents {
			fmt.Fprintf(w, "  open incidents %-8s %3.0f\n", s.Name, s.Value)
		}
		for _, c := range o.UpcomingChanges {
			fmt.Fprintf(w, "  %s %s on %s (%s risk)\n", c.Date, c.Title, c.Server, c.Risk)
		}
	}
}
