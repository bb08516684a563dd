package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lifesync/internal/core"
	"lifesync/internal/export"
	"lifesync/internal/normalize"
	"lifesync/internal/projection"
)

var investCmd = &cobra.Command{
	Use:   "invest",
	Short: "Track investments and portfolio distribution",
}

var (
	investType  string
	investDate  string
	investNotes string
)

var investAddCmd = &cobra.Command{
	Use:   "add <name> <invested> <current-value>",
	Short: "Record an investment",
	Args:  cobra.ExactArgs(3),
	RunE:  runInvestAdd,
}

var investValueCmd = &cobra.Command{
	Use:   "value <id> <current-value>",
	Short: "Update an investment's current value",
	Args:  cobra.ExactArgs(2),
	RunE:  runInvestValue,
}

var investListCmd = &cobra.Command{
	Use:   "list",
	Short: "List investments with gains and the portfolio split",
	Args:  cobra.NoArgs,
	RunE:  runInvestList,
}

func init() {
	investAddCmd.Flags().StringVar(&investType, "type", string(core.InvestOther), "stock, bond, fund, crypto, real_estate, cash or other")
	investAddCmd.Flags().StringVar(&investDate, "date", "", "Purchase date YYYY-MM-DD (default today)")
	investAddCmd.Flags().StringVar(&investNotes, "notes", "", "Free notes")
	investCmd.AddCommand(investAddCmd, investValueCmd, investListCmd)
}

func runInvestAdd(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppInvestments)
	if err != nil {
		return err
	}
	invested, err := core.ParseAmount(args[1])
	if err != nil {
		return fmt.Errorf("invested: %w", err)
	}
	current, err := core.ParseAmount(args[2])
	if err != nil {
		return fmt.Errorf("current value: %w", err)
	}
	day, err := dayFlag(investDate)
	if err != nil {
		return err
	}
	id, err := s.gw.CreateInvestment(cmd.Context(), core.Investment{
		Name:         args[0],
		Type:         core.InvestmentType(strings.ToLower(investType)),
		Invested:     invested,
		CurrentValue: current,
		Date:         day.String(),
		Notes:        investNotes,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded investment %s\n", id)
	return nil
}

func runInvestValue(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppInvestments)
	if err != nil {
		return err
	}
	current, err := core.ParseAmount(args[1])
	if err != nil {
		return err
	}
	return s.gw.Patch(cmd.Context(), core.CollectionInvestments, args[0], map[string]any{"currentValue": current})
}

func runInvestList(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppInvestments)
	if err != nil {
		return err
	}
	docs, err := s.docs(cmd.Context(), core.CollectionInvestments)
	if err != nil {
		return err
	}
	investments := normalize.All(docs, s.gw.Normalizer().Investment)

	out := cmd.OutOrStdout()
	if err := printTable(out, export.Investments("investments", investments)); err != nil {
		return err
	}
	byType := projection.SumBy(investments,
		func(i core.Investment) string { return string(i.Type) },
		core.Investment.CurrentValueOf)
	fmt.Fprintln(out)
	if err := printTable(out, export.Shares("portfolio by type", projection.Distribution(byType))); err != nil {
		return err
	}
	invested := projection.SumBy(investments, func(core.Investment) string { return "all" }, core.Investment.InvestedValue)
	current := projection.SumBy(investments, func(core.Investment) string { return "all" }, core.Investment.CurrentValueOf)
	fmt.Fprintf(out, "\nInvested %s, now %s\n", formatMoney(projection.Total(invested)), formatMoney(projection.Total(current)))
	return nil
}
