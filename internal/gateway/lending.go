package gateway

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"unicode/utf8"

	"lifesync/internal/core"
	"lifesync/internal/log"
	"lifesync/internal/store"
)

// LendInput records money lent to someone. Amount is unsigned.
type LendInput struct {
	Date         core.Day
	Description  string
	Amount       float64
	Counterparty string
	Category     string
	Group        string
}

// Lend stores a pending lent record with a negative amount.
func (g *Gateway) Lend(ctx context.Context, in LendInput) (string, error) {
	amount, err := core.SignedAmount(core.KindLent, in.Amount)
	if err != nil {
		return "", g.fail(ctx, log.OpCreate, core.CollectionExpenses, "",
			core.NewValidationError("amount", "must be a positive amount"))
	}
	e := core.Expense{
		Date:         in.Date.String(),
		Description:  in.Description,
		Amount:       amount,
		Category:     in.Category,
		Group:        in.Group,
		Kind:         core.KindLent,
		Counterparty: in.Counterparty,
		Status:       core.LendPending,
	}
	if err := e.Validate(); err != nil {
		return "", g.fail(ctx, log.OpCreate, core.CollectionExpenses, "", err)
	}
	return g.create(ctx, core.CollectionExpenses, encodeExpense(e))
}

// Settle records repayment of a pending lent record on day and flips the
// lent record to settled. Both writes land atomically when the store is a
// store.Batcher. Otherwise the settlement is written first and deleted
// again if the flip fails; a failed delete yields a PartialSettlementError.
func (g *Gateway) Settle(ctx context.Context, lentID string, day core.Day) (string, error) {
	if err := g.requireUser(); err != nil {
		return "", err
	}
	var id string
	err := g.step(ctx, func(ctx context.Context) error {
		var err error
		id, err = g.settle(ctx, lentID, day)
		return err
	})
	if err != nil {
		return "", g.fail(ctx, log.OpSettle, core.CollectionExpenses, lentID, err)
	}
	path := g.path(core.CollectionExpenses)
	g.announce(ctx, store.Change{Path: path, ID: id, Op: store.OpCreate})
	g.announce(ctx, store.Change{Path: path, ID: lentID, Op: store.OpUpdate})
	g.logger.InfoContext(ctx, "lent record settled",
		log.NewFields().WithOperation(log.OpSettle).WithRecord(g.uid, core.CollectionExpenses, lentID).ToSlice()...)
	return id, nil
}

// settleLocks serializes settlements of the same lent record within the
// process. Batch stores also re-check the pending status inside the commit,
// which covers other processes.
var settleLocks [64]sync.Mutex

func lockSettlement(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &settleLocks[h.Sum32()%uint32(len(settleLocks))]
	mu.Lock()
	return mu.Unlock
}

func (g *Gateway) settle(ctx context.Context, lentID string, day core.Day) (string, error) {
	path := g.path(core.CollectionExpenses)
	defer lockSettlement(path + "/" + lentID)()

	doc, err := g.store.Get(ctx, path, lentID)
	if err != nil {
		return "", fmt.Errorf("load lent record: %w", err)
	}
	lent := g.norm.Expense(doc)
	if lent.Kind != core.KindLent || lent.Status != core.LendPending {
		return "", fmt.Errorf("settle %s: %w", lentID, core.ErrNotPending)
	}
	amount, ok := lent.AmountValue()
	if !ok {
		return "", core.NewValidationError("amount", "lent record amount is unreadable")
	}
	if day.IsZero() {
		day = core.DayOf(g.now(), g.loc)
	}
	settlement := core.Expense{
		Date:         day.String(),
		Description:  settlementDescription(lent.Description),
		Amount:       -amount,
		Category:     lent.Category,
		Group:        lent.Group,
		Kind:         core.KindSettlement,
		Counterparty: lent.Counterparty,
		Settles:      lentID,
	}
	if err := settlement.Validate(); err != nil {
		return "", err
	}
	data := encodeExpense(settlement)
	flip := map[string]any{"status": string(core.LendSettled), "updatedAt": store.ServerTimestamp}

	if b, ok := g.store.(store.Batcher); ok {
		ids, err := b.Commit(ctx, []store.Op{
			{Kind: store.OpCreate, Path: path, Data: data},
			{Kind: store.OpUpdate, Path: path, ID: lentID, Data: flip, Require: []store.Filter{
				store.Eq("kind", string(core.KindLent)),
				store.Eq("status", string(core.LendPending)),
			}},
		})
		if errors.Is(err, store.ErrPrecondition) {
			return "", fmt.Errorf("settle %s: %w", lentID, core.ErrNotPending)
		}
		if err != nil {
			return "", fmt.Errorf("commit settlement: %w", err)
		}
		return ids[0], nil
	}

	id, err := g.store.Create(ctx, path, data)
	if err != nil {
		return "", fmt.Errorf("write settlement: %w", err)
	}
	if err := g.store.Update(ctx, path, lentID, flip); err != nil {
		// The step deadline may be what failed the flip; compensate on a
		// fresh deadline.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.stepTimeout)
		defer cancel()
		if derr := g.store.Delete(cctx, path, id); derr != nil {
			return "", &core.PartialSettlementError{SettlementID: id, LentID: lentID, Cause: errors.Join(err, derr)}
		}
		return "", fmt.Errorf("flip lent record: %w", err)
	}
	return id, nil
}

func settlementDescription(lent string) string {
	d := "Settlement: " + lent
	if len(d) <= 200 {
		return d
	}
	cut := 200
	for cut > 0 && !utf8.RuneStart(d[cut]) {
		cut--
	}
	return d[:cut]
}
