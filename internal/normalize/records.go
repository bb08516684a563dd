package normalize

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"lifesync/internal/core"
	"lifesync/internal/obfuscate"
	"lifesync/internal/store"
)

// Decoder turns one stored document into a record. Decoders never fail: a
// field that cannot be read is defaulted and named in Meta.Corrupt.
type Decoder[T any] func(store.Document) T

// Normalizer decodes documents of one user.
type Normalizer struct {
	uid   string
	loc   *time.Location
	codec obfuscate.Codec
}

func New(uid string, loc *time.Location, codec obfuscate.Codec) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if codec == nil {
		codec = obfuscate.Plain{}
	}
	return &Normalizer{uid: uid, loc: loc, codec: codec}
}

func (n *Normalizer) Location() *time.Location { return n.loc }

// fields wraps one document's data while collecting corrupt field names.
type fields struct {
	n       *Normalizer
	data    map[string]any
	corrupt []string
}

func (n *Normalizer) open(doc store.Document) (*fields, core.Meta) {
	f := &fields{n: n, data: doc.Data}
	if f.data == nil {
		f.data = map[string]any{}
	}
	meta := core.Meta{ID: doc.ID}
	meta.CreatedAt, _ = Time(f.data["createdAt"], n.loc)
	meta.UpdatedAt, _ = Time(f.data["updatedAt"], n.loc)
	return f, meta
}

func (f *fields) bad(name string) { f.corrupt = append(f.corrupt, name) }

func (f *fields) str(name string) string {
	switch v := f.data[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		f.bad(name)
		return ""
	}
}

func (f *fields) float(name string) float64 {
	v, present := f.data[name]
	if !present || v == nil {
		return 0
	}
	if x, ok := number(v); ok && finite(x) {
		return x
	}
	if s, ok := v.(string); ok {
		if x, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && finite(x) {
			return x
		}
	}
	f.bad(name)
	return 0
}

// finite rejects the NaN and Inf spellings ParseFloat accepts.
func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func (f *fields) int(name string) int {
	return int(f.float(name))
}

func (f *fields) bool(name string) bool {
	switch v := f.data[name].(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		if x, ok := number(v); ok {
			return x != 0
		}
		f.bad(name)
		return false
	}
}

func (f *fields) strings(name string) []string {
	out := []string{}
	switch v := f.data[name].(type) {
	case nil:
	case []string:
		out = append(out, v...)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
	default:
		f.bad(name)
	}
	return out
}

func (f *fields) objects(name string) []map[string]any {
	var out []map[string]any
	switch v := f.data[name].(type) {
	case nil:
	case []map[string]any:
		out = append(out, v...)
	case []any:
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
	default:
		f.bad(name)
	}
	return out
}

// day returns the canonical key of a date field, or its raw text when the
// value cannot be read as a date.
func (f *fields) day(name string) string {
	key, ok := DayKey(f.data[name], f.n.loc)
	if !ok {
		f.bad(name)
		if key == "" {
			key = fmt.Sprint(f.data[name])
		}
	}
	return key
}

// sealed decodes an obfuscated amount. Plain numbers are accepted as is.
func (f *fields) sealed(name string) float64 {
	switch v := f.data[name].(type) {
	case nil:
		return 0
	case string:
		x, err := f.n.codec.Decode(f.n.uid, v)
		if err != nil {
			f.bad(name)
			return 0
		}
		return x
	default:
		return f.float(name)
	}
}

func (f *fields) sub(data map[string]any) *fields {
	return &fields{n: f.n, data: data}
}

func (f *fields) timeLogs(name string) []core.TimeLog {
	out := []core.TimeLog{}
	for _, m := range f.objects(name) {
		s := f.sub(m)
		l := core.TimeLog{Minutes: s.int("minutes"), Note: s.str("note"), Date: s.day("date")}
		if len(s.corrupt) > 0 {
			f.bad(name)
		}
		out = append(out, l)
	}
	return out
}

func (n *Normalizer) Task(doc store.Document) core.Task {
	f, meta := n.open(doc)
	t := core.Task{
		Title:       f.str("title"),
		Description: f.str("description"),
		Status:      core.TaskStatus(f.str("status")),
		Priority:    core.Priority(f.str("priority")),
		DueDate:     f.day("dueDate"),
		Tags:        f.strings("tags"),
		TimeLogs:    f.timeLogs("timeLogs"),
		Subtasks:    []core.Subtask{},
		TimeSpent:   f.int("timeSpent"),
	}
	if t.Status == "" {
		t.Status = core.TaskOpen
	}
	if t.Priority == "" {
		t.Priority = core.PriorityMedium
	}
	for _, m := range f.objects("subtasks") {
		s := f.sub(m)
		st := core.Subtask{ID: s.str("id"), Title: s.str("title"), Done: s.bool("done"), TimeLogs: s.timeLogs("timeLogs")}
		if len(s.corrupt) > 0 {
			f.bad("subtasks")
		}
		t.Subtasks = append(t.Subtasks, st)
	}
	meta.Corrupt = f.corrupt
	t.Meta = meta
	return t
}

func (n *Normalizer) Expense(doc store.Document) core.Expense {
	f, meta := n.open(doc)
	e := core.Expense{
		Date:         f.day("date"),
		Description:  f.str("description"),
		Amount:       f.float("amount"),
		Category:     f.str("category"),
		Group:        f.str("group"),
		Kind:         core.ExpenseKind(f.str("kind")),
		Counterparty: f.str("counterparty"),
		Status:       core.LendStatus(f.str("status")),
		Settles:      f.str("settles"),
	}
	if e.Kind == "" {
		// Records written before kinds existed carry only a signed amount.
		// Without a readable amount the kind is unknown too.
		if slices.Contains(f.corrupt, "amount") {
			f.bad("kind")
		} else if e.Amount < 0 {
			e.Kind = core.KindExpense
		} else {
			e.Kind = core.KindIncome
		}
	}
	meta.Corrupt = f.corrupt
	e.Meta = meta
	return e
}

func (n *Normalizer) Investment(doc store.Document) core.Investment {
	f, meta := n.open(doc)
	i := core.Investment{
		Name:         f.str("name"),
		Type:         core.InvestmentType(f.str("type")),
		Invested:     f.sealed("invested"),
		CurrentValue: f.sealed("currentValue"),
		Date:         f.day("date"),
		Notes:        f.str("notes"),
	}
	if i.Type == "" {
		i.Type = core.InvestOther
	}
	meta.Corrupt = f.corrupt
	i.Meta = meta
	return i
}

func (n *Normalizer) Prescription(doc store.Document) core.Prescription {
	f, meta := n.open(doc)
	p := core.Prescription{
		PatientName: f.str("patientName"),
		Medication:  f.str("medication"),
		Dosage:      f.str("dosage"),
		Doctor:      f.str("doctor"),
		Date:        f.day("date"),
		Cost:        f.float("cost"),
		PhotoURL:    f.str("photoUrl"),
		Tags:        f.strings("tags"),
	}
	meta.Corrupt = f.corrupt
	p.Meta = meta
	return p
}

func (n *Normalizer) Change(doc store.Document) core.Change {
	f, meta := n.open(doc)
	c := core.Change{
		Title:       f.str("title"),
		Server:      f.str("server"),
		Type:        core.ChangeType(f.str("type")),
		Risk:        core.Risk(f.str("risk")),
		Status:      core.ChangeStatus(f.str("status")),
		Date:        f.day("date"),
		Description: f.str("description"),
	}
	meta.Corrupt = f.corrupt
	c.Meta = meta
	return c
}

func (n *Normalizer) Incident(doc store.Document) core.Incident {
	f, meta := n.open(doc)
	i := core.Incident{
		Title:           f.str("title"),
		Server:          f.str("server"),
		Priority:        core.IncidentPriority(f.str("priority")),
		Status:          core.IncidentStatus(f.str("status")),
		Date:            f.day("date"),
		ResolvedDate:    f.day("resolvedDate"),
		DowntimeMinutes: f.int("downtimeMinutes"),
	}
	meta.Corrupt = f.corrupt
	i.Meta = meta
	return i
}

func (n *Normalizer) Permission(doc store.Document) core.Permission {
	f, meta := n.open(doc)
	p := core.Permission{
		UserID: f.str("userId"),
		Email:  f.str("email"),
		Role:   core.Role(f.str("role")),
		Apps:   f.strings("apps"),
	}
	if p.Role == "" {
		p.Role = core.RoleUser
	}
	meta.Corrupt = f.corrupt
	p.Meta = meta
	return p
}

// All applies decode to every document, keeping input order.
func All[T any](docs []store.Document, decode Decoder[T]) []T {
	out := make([]T, len(docs))
	for i, d := range docs {
		out[i] = decode(d)
	}
	return out
}
