// Package worker re-exports projections when the change feed reports a
// write. Events carry no record data; the worker reads current state from
// the store, so replays and reordering are harmless.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"lifesync/internal/amqp"
	"lifesync/internal/auth"
	"lifesync/internal/core"
	"lifesync/internal/export"
	"lifesync/internal/log"
	"lifesync/internal/normalize"
	"lifesync/internal/obfuscate"
	"lifesync/internal/projection"
	"lifesync/internal/store"
)

var ErrRunning = errors.New("worker already running")

// Consumer delivers change events to a handler until ctx ends.
type Consumer interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

type ExportWorker struct {
	store    store.Store
	exporter export.Exporter
	codec    obfuscate.Codec
	loc      *time.Location
	logger   *log.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewExportWorker(st store.Store, exporter export.Exporter, codec obfuscate.Codec, loc *time.Location, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if loc == nil {
		loc = time.Local
	}
	return &ExportWorker{
		store:    st,
		exporter: exporter,
		codec:    codec,
		loc:      loc,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// Start consumes events in the background until Stop or ctx cancellation.
func (w *ExportWorker) Start(ctx context.Context, c Consumer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrRunning
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := c.Consume(ctx, w.HandleChange); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer stopped", log.FieldError, err)
		}
	}(w.done)
	w.logger.Info("export worker started")
	return nil
}

// Stop cancels consumption and waits for the in-flight event to finish.
func (w *ExportWorker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("export worker stopped")
}

// HandleChange re-exports the tables the changed collection feeds.
func (w *ExportWorker) HandleChange(ctx context.Context, ev *amqp.ChangeEvent) error {
	if ev.UserID == "" {
		w.logger.DebugContext(ctx, "ignoring change outside user space", log.FieldPath, ev.Path)
		return nil
	}
	w.logger.InfoContext(ctx, "Processing change event",
		log.FieldUserID, ev.UserID,
		log.FieldCollection, ev.Collection,
		log.FieldRecordID, ev.ID,
		log.FieldOperation, ev.Op)

	var err error
	switch ev.Collection {
	case core.CollectionExpenses:
		err = w.exportExpenseChange(ctx, ev)
	case core.CollectionTasks:
		err = w.ExportTasks(ctx, ev.UserID)
	case core.CollectionInvestments:
		err = w.ExportInvestments(ctx, ev.UserID)
	case core.CollectionPrescriptions:
		err = w.ExportPrescriptions(ctx, ev.UserID)
	case core.CollectionChanges, core.CollectionIncidents:
		err = w.ExportIT(ctx, ev.UserID)
	default:
		w.logger.DebugContext(ctx, "no export for collection", log.FieldCollection, ev.Collection)
		return nil
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "export failed",
			log.FieldUserID, ev.UserID,
			log.FieldCollection, ev.Collection,
			log.FieldError, err)
		return fmt.Errorf("export %s: %w", ev.Collection, err)
	}
	return nil
}

// exportExpenseChange exports the month the record is in now and the month
// it was in before the write, so a moved or deleted expense leaves no stale
// tab behind. With neither known it exports the current month.
func (w *ExportWorker) exportExpenseChange(ctx context.Context, ev *amqp.ChangeEvent) error {
	var months []core.MonthKey
	add := func(m core.MonthKey) {
		if !slices.Contains(months, m) {
			months = append(months, m)
		}
	}
	if ev.Op != store.OpDelete.String() {
		doc, err := w.store.Get(ctx, ev.Path, ev.ID)
		switch {
		case err == nil:
			e := w.normalizer(ev.UserID).Expense(doc)
			if d, perr := core.ParseDay(e.Date); perr == nil {
				add(d.MonthKey())
			}
		case !errors.Is(err, core.ErrNotFound):
			return fmt.Errorf("get expense: %w", err)
		}
	}
	if key, ok := normalize.DayKey(ev.PrevDate, w.loc); ok {
		if d, err := core.ParseDay(key); err == nil {
			add(d.MonthKey())
		}
	}
	if len(months) == 0 {
		add(core.DayOf(w.now(), w.loc).MonthKey())
	}
	slices.SortFunc(months, core.MonthKey.Compare)
	for _, m := range months {
		if err := w.ExportMonth(ctx, ev.UserID, m); err != nil {
			return err
		}
	}
	return nil
}

func (w *ExportWorker) normalizer(uid string) *normalize.Normalizer {
	return normalize.New(uid, w.loc, w.codec)
}

func (w *ExportWorker) load(ctx context.Context, uid, collection string) ([]store.Document, error) {
	docs, err := w.store.List(ctx, store.UserPath(uid, collection))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

func (w *ExportWorker) write(ctx context.Context, uid string, tables ...export.Table) error {
	for _, t := range tables {
		t.Name = tableName(uid, t.Name)
		if err := w.exporter.Export(ctx, t); err != nil {
			return fmt.Errorf("write %s: %w", t.Name, err)
		}
	}
	w.logger.InfoContext(ctx, "Successfully exported tables", log.FieldUserID, uid, log.FieldRecords, len(tables))
	return nil
}

// tableName keeps tabs of different users apart in a shared spreadsheet.
func tableName(uid, name string) string {
	if len(uid) > 8 {
		uid = uid[:8]
	}
	return uid + " " + name
}

// ExportMonth writes the month overview and the month's expense list.
func (w *ExportWorker) ExportMonth(ctx context.Context, uid string, month core.MonthKey) error {
	docs, err := w.load(ctx, uid, core.CollectionExpenses)
	if err != nil {
		return err
	}
	expenses := normalize.All(docs, w.normalizer(uid).Expense)
	inMonth := projection.SortByDateDesc(projection.InMonth(expenses, core.Expense.DateKey, month), core.Expense.DateKey)
	return w.write(ctx, uid,
		export.MonthOverview(projection.ExpenseMonth(expenses, month)),
		export.Expenses(month.String()+" expenses", inMonth),
	)
}

func (w *ExportWorker) ExportTasks(ctx context.Context, uid string) error {
	docs, err := w.load(ctx, uid, core.CollectionTasks)
	if err != nil {
		return err
	}
	tasks := normalize.All(docs, w.normalizer(uid).Task)
	today := core.DayOf(w.now(), w.loc)
	return w.write(ctx, uid,
		export.Tasks("tasks", tasks, projection.TaskMinutes),
		export.Series("weekly minutes", projection.WeeklyMinutes(tasks, today)),
	)
}

func (w *ExportWorker) ExportInvestments(ctx context.Context, uid string) error {
	docs, err := w.load(ctx, uid, core.CollectionInvestments)
	if err != nil {
		return err
	}
	investments := normalize.All(docs, w.normalizer(uid).Investment)
	byType := projection.SumBy(investments,
		func(i core.Investment) string { return string(i.Type) },
		core.Investment.CurrentValueOf)
	return w.write(ctx, uid,
		export.Investments("investments", investments),
		export.Shares("portfolio", projection.Distribution(byType)),
	)
}

func (w *ExportWorker) ExportPrescriptions(ctx context.Context, uid string) error {
	docs, err := w.load(ctx, uid, core.CollectionPrescriptions)
	if err != nil {
		return err
	}
	ps := normalize.All(docs, w.normalizer(uid).Prescription)
	return w.write(ctx, uid, export.Prescriptions("prescriptions", ps))
}

func (w *ExportWorker) ExportIT(ctx context.Context, uid string) error {
	changeDocs, err := w.load(ctx, uid, core.CollectionChanges)
	if err != nil {
		return err
	}
	incidentDocs, err := w.load(ctx, uid, core.CollectionIncidents)
	if err != nil {
		return err
	}
	n := w.normalizer(uid)
	return w.write(ctx, uid,
		export.Changes("changes", normalize.All(changeDocs, n.Change)),
		export.Incidents("incidents", normalize.All(incidentDocs, n.Incident)),
	)
}

// Resync exports the current month of every account. It covers events
// lost while the worker was down.
func (w *ExportWorker) Resync(ctx context.Context) error {
	accounts, err := w.store.List(ctx, auth.CollectionAccounts)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		w.logger.InfoContext(ctx, "No accounts found on startup")
		return nil
	}

	month := core.DayOf(w.now(), w.loc).MonthKey()
	var synced, failed int
	for _, a := range accounts {
		if err := w.ExportMonth(ctx, a.ID, month); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export during startup", log.FieldUserID, a.ID, log.FieldError, err)
			failed++
			continue
		}
		synced++
	}
	w.logger.InfoContext(ctx, "Startup export completed",
		"total", len(accounts),
		"synced", synced,
		"errors", failed)
	return nil
}
