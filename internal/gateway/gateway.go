// Package gateway writes LifeSync records for one signed-in user. It encodes
// domain values into their stored shape, applies the amount sign convention
// and announces every successful write on the change feed.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifesync/internal/blob"
	"lifesync/internal/core"
	"lifesync/internal/log"
	"lifesync/internal/normalize"
	"lifesync/internal/obfuscate"
	"lifesync/internal/store"
)

// DefaultStepTimeout bounds multi-step flows such as settlement and photo
// attachment.
const DefaultStepTimeout = 60 * time.Second

// Publisher announces writes. Implemented by amqp.Client.
type Publisher interface {
	Publish(ctx context.Context, c store.Change) error
}

type Gateway struct {
	store       store.Store
	uid         string
	codec       obfuscate.Codec
	blobs       blob.Store
	publisher   Publisher
	logger      *log.Logger
	loc         *time.Location
	stepTimeout time.Duration
	norm        *normalize.Normalizer
	now         func() time.Time
}

type Option func(*Gateway)

func WithCodec(c obfuscate.Codec) Option { return func(g *Gateway) { g.codec = c } }

func WithBlobs(b blob.Store) Option { return func(g *Gateway) { g.blobs = b } }

func WithPublisher(p Publisher) Option { return func(g *Gateway) { g.publisher = p } }

func WithLogger(l *log.Logger) Option { return func(g *Gateway) { g.logger = l } }

func WithLocation(loc *time.Location) Option { return func(g *Gateway) { g.loc = loc } }

func WithStepTimeout(d time.Duration) Option { return func(g *Gateway) { g.stepTimeout = d } }

func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

// New returns a gateway writing as uid.
func New(st store.Store, uid string, opts ...Option) *Gateway {
	g := &Gateway{
		store:       st,
		uid:         uid,
		codec:       obfuscate.Plain{},
		logger:      log.Discard(),
		loc:         time.Local,
		stepTimeout: DefaultStepTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithComponent(log.ComponentGateway)
	g.norm = normalize.New(uid, g.loc, g.codec)
	return g
}

func (g *Gateway) UserID() string { return g.uid }

// Normalizer decodes documents the same way this gateway encodes them.
func (g *Gateway) Normalizer() *normalize.Normalizer { return g.norm }

func (g *Gateway) path(collection string) string {
	if collection == core.CollectionPermissions {
		return collection
	}
	return store.UserPath(g.uid, collection)
}

func (g *Gateway) requireUser() error {
	if g.uid == "" {
		return core.ErrUnauthorized
	}
	return nil
}

// create writes data and publishes the change.
func (g *Gateway) create(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := g.requireUser(); err != nil {
		return "", err
	}
	path := g.path(collection)
	id, err := g.store.Create(ctx, path, data)
	if err != nil {
		return "", g.fail(ctx, log.OpCreate, collection, "", err)
	}
	g.announce(ctx, store.Change{Path: path, ID: id, Op: store.OpCreate})
	return id, nil
}

func (g *Gateway) update(ctx context.Context, collection, id string, data map[string]any) error {
	if err := g.requireUser(); err != nil {
		return err
	}
	return g.updateFrom(ctx, collection, id, data, g.dateOf(ctx, g.path(collection), id))
}

// updateFrom writes data and announces the change with the record's date
// before the write.
func (g *Gateway) updateFrom(ctx context.Context, collection, id string, data map[string]any, prevDate string) error {
	path := g.path(collection)
	data["updatedAt"] = store.ServerTimestamp
	if err := g.store.Update(ctx, path, id, data); err != nil {
		return g.fail(ctx, log.OpUpdate, collection, id, err)
	}
	g.announce(ctx, store.Change{Path: path, ID: id, Op: store.OpUpdate, PrevDate: prevDate})
	return nil
}

// dateOf reads the stored date of a record so consumers of the change feed
// can refresh the period it leaves. Only needed with a publisher.
func (g *Gateway) dateOf(ctx context.Context, path, id string) string {
	if g.publisher == nil {
		return ""
	}
	doc, err := g.store.Get(ctx, path, id)
	if err != nil {
		return ""
	}
	d, _ := doc.Data["date"].(string)
	return d
}

// Delete removes one record of the user.
func (g *Gateway) Delete(ctx context.Context, collection, id string) error {
	if err := g.requireUser(); err != nil {
		return err
	}
	if collection == core.CollectionPermissions {
		return core.ErrForbidden
	}
	path := g.path(collection)
	prevDate := g.dateOf(ctx, path, id)
	if err := g.store.Delete(ctx, path, id); err != nil {
		return g.fail(ctx, log.OpDelete, collection, id, err)
	}
	g.announce(ctx, store.Change{Path: path, ID: id, Op: store.OpDelete, PrevDate: prevDate})
	return nil
}

// Patch applies a partial update. Dates must be day keys and sealed
// amounts are encoded; expense amounts and lending state are refused. The
// record as it would be stored afterwards must pass validation in every
// patched field.
func (g *Gateway) Patch(ctx context.Context, collection, id string, partial map[string]any) error {
	if collection == core.CollectionPermissions {
		return core.ErrForbidden
	}
	if err := g.requireUser(); err != nil {
		return err
	}
	data, err := encodePatch(g.codec, g.uid, collection, partial)
	if err != nil {
		return g.fail(ctx, log.OpUpdate, collection, id, err)
	}
	doc, err := g.store.Get(ctx, g.path(collection), id)
	if err != nil {
		return g.fail(ctx, log.OpUpdate, collection, id, err)
	}
	merged := store.CloneData(doc.Data)
	for k, v := range data {
		merged[k] = v
	}
	if err := g.validatePatched(collection, store.Document{ID: id, Data: merged}, partial); err != nil {
		return g.fail(ctx, log.OpUpdate, collection, id, err)
	}
	prevDate, _ := doc.Data["date"].(string)
	return g.updateFrom(ctx, collection, id, data, prevDate)
}

// validatePatched decodes a patched record and validates it. Only problems
// in patched fields are reported, so a record with an unrelated bad field
// can still be corrected one field at a time.
func (g *Gateway) validatePatched(collection string, doc store.Document, partial map[string]any) error {
	var (
		meta core.Meta
		err  error
	)
	switch collection {
	case core.CollectionTasks:
		r := g.norm.Task(doc)
		meta, err = r.Meta, r.Validate()
	case core.CollectionExpenses:
		r := g.norm.Expense(doc)
		meta, err = r.Meta, r.Validate()
	case core.CollectionInvestments:
		r := g.norm.Investment(doc)
		meta, err = r.Meta, r.Validate()
	case core.CollectionPrescriptions:
		r := g.norm.Prescription(doc)
		meta, err = r.Meta, r.Validate()
	case core.CollectionChanges:
		r := g.norm.Change(doc)
		meta, err = r.Meta, r.Validate()
	case core.CollectionIncidents:
		r := g.norm.Incident(doc)
		meta, err = r.Meta, r.Validate()
	default:
		return core.NewValidationError("collection", "unknown collection "+collection)
	}

	var v core.ValidationError
	for k := range partial {
		if meta.IsCorrupt(k) {
			v.Add(k, "has the wrong type")
		}
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		for _, fe := range ve.Errors {
			if _, patched := partial[fe.Field]; patched && !meta.IsCorrupt(fe.Field) {
				v.Add(fe.Field, fe.Message)
			}
		}
	} else if err != nil {
		return err
	}
	return v.Err()
}

// announce publishes a change event. Failures are logged and never fail the
// write: the record is already stored.
func (g *Gateway) announce(ctx context.Context, c store.Change) {
	if g.publisher == nil {
		return
	}
	if err := g.publisher.Publish(ctx, c); err != nil {
		g.logger.WarnContext(ctx, "change event not published",
			log.FieldPath, c.Path, log.FieldRecordID, c.ID, log.FieldOperation, c.Op.String(), log.FieldError, err)
	}
}

// fail logs a failed mutation and returns err, mapped to ErrTimeout when the
// step deadline ran out.
func (g *Gateway) fail(ctx context.Context, op, collection, id string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
		err = fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	fields := log.NewFields().WithOperation(op).WithRecord(g.uid, collection, id).WithError(err)
	if errors.Is(err, core.ErrValidation) || errors.Is(err, core.ErrNotFound) {
		g.logger.WarnContext(ctx, "mutation rejected", fields.ToSlice()...)
	} else {
		g.logger.ErrorContext(ctx, "mutation failed", fields.ToSlice()...)
	}
	return err
}

// step runs fn under the step timeout.
func (g *Gateway) step(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.stepTimeout)
	defer cancel()
	err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
		err = fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	return err
}
