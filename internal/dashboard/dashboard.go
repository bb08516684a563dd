// Package dashboard builds the cross-app overview shown after sign-in.
package dashboard

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"lifesync/internal/cache"
	"lifesync/internal/core"
	"lifesync/internal/log"
	"lifesync/internal/normalize"
	"lifesync/internal/obfuscate"
	"lifesync/internal/projection"
	"lifesync/internal/store"
)

const topGroups = 5

// Records is the input of Build: every record set the overview reads.
type Records struct {
	Tasks       []core.Task
	Expenses    []core.Expense
	Investments []core.Investment
	Incidents   []core.Incident
	Changes     []core.Change
}

type Overview struct {
	Today core.Day

	Month        core.MonthOverview
	TopGroups    []core.CategoryAmount
	PendingLent  float64
	PendingCount int

	WeeklyMinutes       []core.DayPoint
	OpenTasksByPriority []core.Share
	OverdueTasks        int

	Portfolio          []core.Share
	PortfolioGain      float64
	CorruptInvestments int

	OpenIncidents   []core.Share
	UpcomingChanges []core.Change
}

// Build computes the overview for today. It is pure.
func Build(r Records, today core.Day) Overview {
	o := Overview{Today: today}

	o.Month = projection.ExpenseMonth(r.Expenses, today.MonthKey())
	o.TopGroups = projection.Top(o.Month.ByGroup, topGroups)
	for _, e := range r.Expenses {
		if e.Kind != core.KindLent || e.Status != core.LendPending {
			continue
		}
		if v, ok := e.AmountValue(); ok {
			o.PendingLent += -v
			o.PendingCount++
		}
	}

	o.WeeklyMinutes = projection.WeeklyMinutes(r.Tasks, today)
	open := projection.Filter(r.Tasks, func(t core.Task) bool { return t.Status != core.TaskDone })
	o.OpenTasksByPriority = projection.CountDistribution(
		projection.CountBy(open, func(t core.Task) string { return string(t.Priority) }))
	o.OverdueTasks = len(projection.Overdue(r.Tasks, today))

	byType := projection.SumBy(r.Investments,
		func(i core.Investment) string { return string(i.Type) },
		func(i core.Investment) (float64, bool) { return i.CurrentValueOf() })
	o.Portfolio = projection.Distribution(byType)
	for _, i := range r.Investments {
		if g, ok := i.Gain(); ok {
			o.PortfolioGain += g
		} else {
			o.CorruptInvestments++
		}
	}

	unresolved := projection.Filter(r.Incidents, func(i core.Incident) bool { return i.Status != core.IncidentResolved })
	o.OpenIncidents = projection.CountDistribution(
		projection.CountBy(unresolved, func(i core.Incident) string { return string(i.Priority) }))

	todayKey := today.String()
	upcoming := projection.Filter(r.Changes, func(c core.Change) bool {
		_, err := core.ParseDay(c.Date)
		return err == nil && c.Status == core.ChangePlanned && c.Date >= todayKey
	})
	slices.SortStableFunc(upcoming, func(a, b core.Change) int { return cmp.Compare(a.Date, b.Date) })
	o.UpcomingChanges = projection.Top(upcoming, topGroups)
	return o
}

type loaded struct {
	col  string
	docs []store.Document
}

// Service loads the record sets of a user concurrently and caches the
// overview per content fingerprint.
type Service struct {
	store  store.Store
	codec  obfuscate.Codec
	loc    *time.Location
	cache  *cache.LRUCache[Overview]
	logger *log.Logger
}

func NewService(st store.Store, codec obfuscate.Codec, loc *time.Location, c *cache.LRUCache[Overview], logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{store: st, codec: codec, loc: loc, cache: c, logger: logger.WithComponent(log.ComponentDashboard)}
}

// Overview loads the collections of the apps p allows and builds the
// overview for today in the service location.
func (s *Service) Overview(ctx context.Context, uid string, p core.Permission, today core.Day) (Overview, error) {
	n := normalize.New(uid, s.loc, s.codec)
	var (
		docs = map[string][]store.Document{}
		want = map[string]string{
			core.CollectionTasks:       core.AppTasks,
			core.CollectionExpenses:    core.AppExpenses,
			core.CollectionInvestments: core.AppInvestments,
			core.CollectionIncidents:   core.AppIT,
			core.CollectionChanges:     core.AppIT,
		}
		results = make(chan loaded, len(want))
	)

	g, gctx := errgroup.WithContext(ctx)
	for col, app := range want {
		if !p.Allows(app) {
			continue
		}
		g.Go(func() error {
			d, err := s.store.List(gctx, store.UserPath(uid, col))
			if err != nil {
				return fmt.Errorf("load %s: %w", col, err)
			}
			results <- loaded{col, d}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "overview load failed", log.FieldUserID, uid, log.FieldError, err)
		return Overview{}, err
	}
	close(results)
	var parts []string
	for r := range results {
		docs[r.col] = r.docs
		for _, d := range r.docs {
			parts = append(parts, r.col+"/"+d.ID+"@"+fmt.Sprint(d.Data["updatedAt"]))
		}
	}

	key := cache.Fingerprint(uid+"|"+today.String(), parts)
	return s.cache.GetOrCompute(key, func() (Overview, error) {
		return Build(Records{
			Tasks:       normalize.All(docs[core.CollectionTasks], n.Task),
			Expenses:    normalize.All(docs[core.CollectionExpenses], n.Expense),
			Investments: normalize.All(docs[core.CollectionInvestments], n.Investment),
			Incidents:   normalize.All(docs[core.CollectionIncidents], n.Incident),
			Changes:     normalize.All(docs[core.CollectionChanges], n.Change),
		}, today), nil
	})
}
