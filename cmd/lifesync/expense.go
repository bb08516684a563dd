package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lifesync/internal/appstate"
	"lifesync/internal/core"
	"lifesync/internal/export"
	"lifesync/internal/gateway"
	"lifesync/internal/normalize"
	"lifesync/internal/projection"
	"lifesync/internal/store"
)

var expenseCmd = &cobra.Command{
	Use:     "expense",
	Aliases: []string{"exp"},
	Short:   "Record and summarize expenses, income and lending",
}

var (
	expDate        string
	expKind        string
	expCategory    string
	expGroup       string
	expDescription string
	expMonth       string
	expFrom        string
	expTo          string
	expMonths      int
)

var expenseAddCmd = &cobra.Command{
	Use:   "add <amount> <description>",
	Short: "Record an expense, income or reimbursement",
	Long: `Amounts are entered unsigned (12.50 or 12,50); the stored sign
follows the kind: expenses are negative, income and reimbursements positive.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExpenseAdd,
}

var expenseLendCmd = &cobra.Command{
	Use:   "lend <amount> <counterparty>",
	Short: "Record money lent to someone, pending until settled",
	Args:  cobra.ExactArgs(2),
	RunE:  runExpenseLend,
}

var expenseSettleCmd = &cobra.Command{
	Use:   "settle <lent-id>",
	Short: "Mark a loan repaid and record the repayment",
	Args:  cobra.ExactArgs(1),
	RunE:  runExpenseSettle,
}

var expenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List expenses of a month or a date window, newest first",
	Args:  cobra.NoArgs,
	RunE:  runExpenseList,
}

var expensePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List loans not yet settled",
	Args:  cobra.NoArgs,
	RunE:  runExpensePending,
}

var expenseSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Month totals, subtotals per group and recent months",
	Args:  cobra.NoArgs,
	RunE:  runExpenseSummary,
}

var expenseGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List the groups and categories in use",
	Args:  cobra.NoArgs,
	RunE:  runExpenseGroups,
}

func init() {
	expenseAddCmd.Flags().StringVar(&expDate, "date", "", "Date YYYY-MM-DD (default today)")
	expenseAddCmd.Flags().StringVar(&expKind, "kind", string(core.KindExpense), "expense, income or reimbursement")
	expenseAddCmd.Flags().StringVar(&expCategory, "category", "", "Category")
	expenseAddCmd.Flags().StringVar(&expGroup, "group", "", "Group used for subtotals")

	expenseLendCmd.Flags().StringVar(&expDate, "date", "", "Date YYYY-MM-DD (default today)")
	expenseLendCmd.Flags().StringVar(&expDescription, "description", "", "What the money was for")
	expenseLendCmd.Flags().StringVar(&expGroup, "group", "", "Group used for subtotals")

	expenseSettleCmd.Flags().StringVar(&expDate, "date", "", "Repayment date YYYY-MM-DD (default today)")

	expenseListCmd.Flags().StringVar(&expMonth, "month", "", "Month YYYY-MM (default current)")
	expenseListCmd.Flags().StringVar(&expFrom, "from", "", "Window start YYYY-MM-DD, overrides --month")
	expenseListCmd.Flags().StringVar(&expTo, "to", "", "Window end YYYY-MM-DD (default today)")

	expenseSummaryCmd.Flags().StringVar(&expMonth, "month", "", "Month YYYY-MM (default current)")
	expenseSummaryCmd.Flags().IntVar(&expMonths, "months", 6, "How many recent months to show")

	expenseCmd.AddCommand(expenseAddCmd, expenseLendCmd, expenseSettleCmd, expenseListCmd,
		expensePendingCmd, expenseSummaryCmd, expenseGroupsCmd)
}

func runExpenseAdd(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppExpenses)
	if err != nil {
		return err
	}
	amount, err := core.ParseAmount(args[0])
	if err != nil {
		return err
	}
	day, err := dayFlag(expDate)
	if err != nil {
		return err
	}
	id, err := s.gw.AddExpense(cmd.Context(), gateway.ExpenseInput{
		Date:        day,
		Description: strings.Join(args[1:], " "),
		Amount:      amount,
		Category:    expCategory,
		Group:       expGroup,
		Kind:        core.ExpenseKind(expKind),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s %s on %s (%s)\n", expKind, formatMoney(amount), day, id)
	return nil
}

func runExpenseLend(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppExpenses)
	if err != nil {
		return err
	}
	amount, err := core.ParseAmount(args[0])
	if err != nil {
		return err
	}
	day, err := dayFlag(expDate)
	if err != nil {
		return err
	}
	id, err := s.gw.Lend(cmd.Context(), gateway.LendInput{
		Date:         day,
		Description:  expDescription,
		Amount:       amount,
		Counterparty: args[1],
		Group:        expGroup,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Lent %s to %s (%s)\n", formatMoney(amount), args[1], id)
	return nil
}

func runExpenseSettle(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppExpenses)
	if err != nil {
		return err
	}
	day, err := dayFlag(expDate)
	if err != nil {
		return err
	}
	id, err := s.gw.Settle(cmd.Context(), args[0], day)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Settled %s with repayment %s\n", args[0], id)
	return nil
}

func loadExpenses(cmd *cobra.Command, s *session, filters ...store.Filter) ([]core.Expense, error) {
	docs, err := s.docs(cmd.Context(), core.CollectionExpenses, filters...)
	if err != nil {
		return nil, err
	}
	return normalize.All(docs, s.gw.Normalizer().Expense), nil
}

func runExpenseList(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppExpenses)
	if err != nil {
		return err
	}
	expenses, err := loadExpenses(cmd, s)
	if err != nil {
		return err
	}

	var (
		view  []core.Expense
		title string
	)
	if expFrom != "" {
		from, err := dayFlag(expFrom)
		if err != nil {
			return err
		}
		to, err := dayFlag(expTo)
		if err != nil {
			return err
		}
		view = projection.InDateWindow(expenses, core.Expense.DateKey, from, to)
		title = fmt.Sprintf("expenses %s to %s", from, to)
	} else {
		month, err := monthFlag(expMonth)
		if err != nil {
			return err
		}
		view = projection.InMonth(expenses, core.Expense.DateKey, month)
		title = month.String() + " expenses"
	}
	view = projection.SortByDateDesc(view, core.Expense.DateKey)
	return printTable(cmd.OutOrStdout(), export.Expenses(title, view))
}

func runExpensePending(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppExpenses)
	if err != nil {
		return err
	}
	pending, err := loadExpenses(cmd, s, store.Eq("kind", string(core.KindLent)), store.Eq("status", string(core.LendPending)))
	if err != nil {
		return err
	}
	pending = projection.SortByDateDesc(pending, core.Expense.DateKey)
	if err := printTable(cmd.OutOrStdout(), export.Expenses("pending loans", pending)); err != nil {
		return err
	}
	byPerson := projection.Subtotals(pending,
		func(e core.Expense) string { return e.Counterparty },
		core.Expense.AmountValue)
	return printTable(cmd.OutOrStdout(), export.Subtotals("owed per person", byPerson))
}

func runExpenseSummary(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppExpenses)
	if err != nil {
		return err
	}
	s.state, err = s.state.Show(appstate.ViewSummary)
	if err != nil {
		return err
	}
	month, err := monthFlag(expMonth)
	if err != nil {
		return err
	}
	expenses, err := loadExpenses(cmd, s)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	overview := projection.ExpenseMonth(expenses, month)
	if err := printTable(out, export.MonthOverview(overview)); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := printTable(out, export.Shares(month.String()+" share per group", projection.Distribution(overview.ByGroup))); err != nil {
		return err
	}

	buckets := projection.SortNewestFirst(projection.MonthBuckets(expenses, core.Expense.DateKey))
	recent := export.Table{Name: "recent months", Header: []string{"month", "outflow", "inflow", "records"}}
	for _, b := range projection.Top(buckets, expMonths) {
		recent.Rows = append(recent.Rows, []string{
			b.Month.String(),
			formatMoney(projection.Outflow(b.Records, core.Expense.AmountValue)),
			formatMoney(projection.Inflow(b.Records, core.Expense.AmountValue)),
			fmt.Sprint(len(b.Records)),
		})
	}
	fmt.Fprintln(out)
	return printTable(out, recent)
}

func runExpenseGroups(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppExpenses)
	if err != nil {
		return err
	}
	expenses, err := loadExpenses(cmd, s)
	if err != nil {
		return err
	}
	t := export.Table{Name: "labels", Header: []string{"kind", "value"}}
	for _, g := range projection.UniqueValues(expenses, func(e core.Expense) string { return e.Group }) {
		t.Rows = append(t.Rows, []string{"group", g})
	}
	for _, c := range projection.UniqueValues(expenses, func(e core.Expense) string { return e.Category }) {
		t.Rows = append(t.Rows, []string{"category", c})
	}
	return printTable(cmd.OutOrStdout(), t)
}
