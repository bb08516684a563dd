// Package export renders finished projection results as tables. Exporters
// only write rows; every total is computed by the projection package.
package export

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"lifesync/internal/core"
)

// Table is one named sheet of string cells.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

type Exporter interface {
	Export(ctx context.Context, t Table) error
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

// MonthOverview lists the outflow per group of one month followed by the
// month totals.
func MonthOverview(o core.MonthOverview) Table {
	t := Table{Name: o.Month.String() + " overview", Header: []string{"group", "outflow"}}
	for _, g := range o.ByGroup {
		t.Rows = append(t.Rows, []string{g.Name, money(g.Amount)})
	}
	t.Rows = append(t.Rows,
		[]string{"total outflow", money(o.Outflow)},
		[]string{"total inflow", money(o.Inflow)},
	)
	return t
}

// Shares renders a distribution with display-rounded percentages.
func Shares(name string, shares []core.Share) Table {
	t := Table{Name: name, Header: []string{"name", "value", "percent"}}
	for _, s := range shares {
		t.Rows = append(t.Rows, []string{s.Name, money(s.Value), percent(s.Rounded())})
	}
	return t
}

func Subtotals(name string, totals []core.CategoryAmount) Table {
	t := Table{Name: name, Header: []string{"name", "amount"}}
	for _, c := range totals {
		t.Rows = append(t.Rows, []string{c.Name, money(c.Amount)})
	}
	return t
}

func Series(name string, points []core.DayPoint) Table {
	t := Table{Name: name, Header: []string{"day", "value"}}
	for _, p := range points {
		t.Rows = append(t.Rows, []string{p.Day.String(), strconv.FormatFloat(p.Value, 'f', -1, 64)})
	}
	return t
}

func Expenses(name string, expenses []core.Expense) Table {
	t := Table{Name: name, Header: []string{"id", "date", "description", "amount", "category", "group", "kind", "counterparty", "status"}}
	for _, e := range expenses {
		amount := ""
		if v, ok := e.AmountValue(); ok {
			amount = money(v)
		}
		t.Rows = append(t.Rows, []string{e.ID, e.Date, e.Description, amount, e.Category, e.Group, string(e.Kind), e.Counterparty, string(e.Status)})
	}
	return t
}

func Tasks(name string, tasks []core.Task, minutes func(core.Task) int) Table {
	t := Table{Name: name, Header: []string{"id", "title", "status", "priority", "due", "tags", "minutes"}}
	for _, task := range tasks {
		t.Rows = append(t.Rows, []string{
			task.ID, task.Title, string(task.Status), string(task.Priority), task.DueDate,
			strings.Join(task.Tags, ";"), strconv.Itoa(minutes(task)),
		})
	}
	return t
}

func Investments(name string, investments []core.Investment) Table {
	t := Table{Name: name, Header: []string{"id", "name", "type", "invested", "current", "gain"}}
	for _, i := range investments {
		row := []string{i.ID, i.Name, string(i.Type), "", "", ""}
		if v, ok := i.InvestedValue(); ok {
			row[3] = money(v)
		}
		if v, ok := i.CurrentValueOf(); ok {
			row[4] = money(v)
		}
		if v, ok := i.Gain(); ok {
			row[5] = money(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func Prescriptions(name string, ps []core.Prescription) Table {
	t := Table{Name: name, Header: []string{"id", "date", "patient", "medication", "dosage", "doctor", "cost", "photo"}}
	for _, p := range ps {
		t.Rows = append(t.Rows, []string{p.ID, p.Date, p.PatientName, p.Medication, p.Dosage, p.Doctor, money(p.Cost), p.PhotoURL})
	}
	return t
}

func Changes(name string, cs []core.Change) Table {
	t := Table{Name: name, Header: []string{"id", "date", "server", "title", "type", "risk", "status"}}
	for _, c := range cs {
		t.Rows = append(t.Rows, []string{c.ID, c.Date, c.Server, c.Title, string(c.Type), string(c.Risk), string(c.Status)})
	}
	return t
}

func Incidents(name string, is []core.Incident) Table {
	t := Table{Name: name, Header: []string{"id", "date", "server", "title", "priority", "status", "resolved", "downtime_minutes"}}
	for _, i := range is {
		t.Rows = append(t.Rows, []string{i.ID, i.Date, i.Server, i.Title, string(i.Priority), string(i.Status), i.ResolvedDate, strconv.Itoa(i.DowntimeMinutes)})
	}
	return t
}
