package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lifesync/internal/core"
	"lifesync/internal/export"
	"lifesync/internal/normalize"
	"lifesync/internal/projection"
)

var itCmd = &cobra.Command{
	Use:   "it",
	Short: "Log server changes and incidents",
}

var (
	itType        string
	itRisk        string
	itPriority    string
	itDate        string
	itDescription string
	itServer      string
)

var itChangeCmd = &cobra.Command{
	Use:   "change <server> <title>",
	Short: "Plan a change",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runITChange,
}

var itChangeStatusCmd = &cobra.Command{
	Use:   "change-status <id> <planned|in_progress|completed|rolled_back>",
	Short: "Move a change to another status",
	Args:  cobra.ExactArgs(2),
	RunE:  runITChangeStatus,
}

var itIncidentCmd = &cobra.Command{
	Use:   "incident <server> <title>",
	Short: "Open an incident",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runITIncident,
}

var itResolveCmd = &cobra.Command{
	Use:   "resolve <incident-id> <downtime-minutes>",
	Short: "Resolve an incident",
	Args:  cobra.ExactArgs(2),
	RunE:  runITResolve,
}

var itListCmd = &cobra.Command{
	Use:   "list",
	Short: "List changes and incidents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runITList,
}

var itServersCmd = &cobra.Command{
	Use:   "servers",
	Short: "Servers with their change and incident counts",
	Args:  cobra.NoArgs,
	RunE:  runITServers,
}

func init() {
	itChangeCmd.Flags().StringVar(&itType, "type", string(core.ChangeNormal), "standard, normal or emergency")
	itChangeCmd.Flags().StringVar(&itRisk, "risk", string(core.RiskLow), "low, medium or high")
	itChangeCmd.Flags().StringVar(&itDate, "date", "", "Date YYYY-MM-DD (default today)")
	itChangeCmd.Flags().StringVar(&itDescription, "description", "", "Details")

	itIncidentCmd.Flags().StringVar(&itPriority, "priority", string(core.IncidentMedium), "critical, high, medium or low")
	itIncidentCmd.Flags().StringVar(&itDate, "date", "", "Date YYYY-MM-DD (default today)")

	itResolveCmd.Flags().StringVar(&itDate, "date", "", "Resolution date YYYY-MM-DD (default today)")

	itListCmd.Flags().StringVar(&itServer, "server", "", "Only this server")

	itCmd.AddCommand(itChangeCmd, itChangeStatusCmd, itIncidentCmd, itResolveCmd, itListCmd, itServersCmd)
}

func runITChange(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppIT)
	if err != nil {
		return err
	}
	day, err := dayFlag(itDate)
	if err != nil {
		return err
	}
	id, err := s.gw.CreateChange(cmd.Context(), core.Change{
		Server:      args[0],
		Title:       strings.Join(args[1:], " "),
		Type:        core.ChangeType(itType),
		Risk:        core.Risk(itRisk),
		Date:        day.String(),
		Description: itDescription,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Planned change %s\n", id)
	return nil
}

func runITChangeStatus(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppIT)
	if err != nil {
		return err
	}
	return s.gw.Patch(cmd.Context(), core.CollectionChanges, args[0], map[string]any{"status": args[1]})
}

func runITIncident(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppIT)
	if err != nil {
		return err
	}
	day, err := dayFlag(itDate)
	if err != nil {
		return err
	}
	id, err := s.gw.CreateIncident(cmd.Context(), core.Incident{
		Server:   args[0],
		Title:    strings.Join(args[1:], " "),
		Priority: core.IncidentPriority(itPriority),
		Date:     day.String(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Opened incident %s\n", id)
	return nil
}

func runITResolve(cmd *cobra.Command, args []string) error {
	s, err := openApp(cmd, core.AppIT)
	if err != nil {
		return err
	}
	downtime, err := strconv.Atoi(args[1])
	if err != nil {
		return core.NewValidationError("downtimeMinutes", "must be a whole number")
	}
	day, err := dayFlag(itDate)
	if err != nil {
		return err
	}
	return s.gw.ResolveIncident(cmd.Context(), args[0], day, downtime)
}

func loadIT(cmd *cobra.Command, s *session) ([]core.Change, []core.Incident, error) {
	n := s.gw.Normalizer()
	changeDocs, err := s.docs(cmd.Context(), core.CollectionChanges)
	if err != nil {
		return nil, nil, err
	}
	incidentDocs, err := s.docs(cmd.Context(), core.CollectionIncidents)
	if err != nil {
		return nil, nil, err
	}
	return normalize.All(changeDocs, n.Change), normalize.All(incidentDocs, n.Incident), nil
}

func runITList(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppIT)
	if err != nil {
		return err
	}
	changes, incidents, err := loadIT(cmd, s)
	if err != nil {
		return err
	}
	if itServer != "" {
		changes = projection.Filter(changes, func(c core.Change) bool { return c.Server == itServer })
		incidents = projection.Filter(incidents, func(i core.Incident) bool { return i.Server == itServer })
	}
	changes = projection.SortByDateDesc(changes, func(c core.Change) string { return c.Date })
	incidents = projection.SortByDateDesc(incidents, func(i core.Incident) string { return i.Date })

	out := cmd.OutOrStdout()
	if err := printTable(out, export.Changes("changes", changes)); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return printTable(out, export.Incidents("incidents", incidents))
}

func runITServers(cmd *cobra.Command, _ []string) error {
	s, err := openApp(cmd, core.AppIT)
	if err != nil {
		return err
	}
	changes, incidents, err := loadIT(cmd, s)
	if err != nil {
		return err
	}
	servers := projection.UniqueMulti([][]string{
		projection.UniqueValues(changes, func(c core.Change) string { return c.Server }),
		projection.UniqueValues(incidents, func(i core.Incident) string { return i.Server }),
	}, func(names []string) []string { return names })
	changeCount := counts(projection.CountBy(changes, func(c core.Change) string { return c.Server }))
	incidentCount := counts(projection.CountBy(incidents, func(i core.Incident) string { return i.Server }))
	downtime := projection.SumBy(incidents,
		func(i core.Incident) string { return i.Server },
		func(i core.Incident) (float64, bool) { return float64(i.DowntimeMinutes), !i.IsCorrupt("downtimeMinutes") })
	minutes := map[string]int{}
	for _, d := range downtime {
		minutes[d.Name] = int(d.Amount)
	}

	t := export.Table{Name: "servers", Header: []string{"server", "changes", "incidents", "downtime"}}
	for _, srv := range servers {
		t.Rows = append(t.Rows, []string{srv, strconv.Itoa(changeCount[srv]), strconv.Itoa(incidentCount[srv]), formatMinutes(minutes[srv])})
	}
	return printTable(cmd.OutOrStdout(), t)
}

func counts(cs []core.CategoryCount) map[string]int {
	m := make(map[string]int, len(cs))
	for _, c := range cs {
		m[c.Name] = c.Count
	}
	return m
}
