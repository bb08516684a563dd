package gateway

import (
	"context"
	"errors"

	"lifesync/internal/core"
	"lifesync/internal/log"
)

func (g *Gateway) CreateTask(ctx context.Context, t core.Task) (string, error) {
	if err := t.Validate(); err != nil {
		return "", g.fail(ctx, log.OpCreate, core.CollectionTasks, "", err)
	}
	return g.create(ctx, core.CollectionTasks, encodeTask(t))
}

// UpdateTask overwrites every domain field of task id.
func (g *Gateway) UpdateTask(ctx context.Context, id string, t core.Task) error {
	if err := t.Validate(); err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionTasks, id, err)
	}
	return g.update(ctx, core.CollectionTasks, id, encodeTask(t))
}

// ExpenseInput is a form entry: an unsigned amount and a kind.
type ExpenseInput struct {
	Date        core.Day
	Description string
	Amount      float64
	Category    string
	Group       string
	Kind        core.ExpenseKind
}

func (in ExpenseInput) record() (core.Expense, error) {
	var v core.ValidationError
	if in.Kind == core.KindLent || in.Kind == core.KindSettlement {
		v.Add("kind", "use Lend or Settle for "+string(in.Kind)+" records")
		return core.Expense{}, v.Err()
	}
	amount, err := core.SignedAmount(in.Kind, in.Amount)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return core.Expense{}, ve
		}
		v.Add("amount", "must be a positive amount")
		return core.Expense{}, v.Err()
	}
	e := core.Expense{
		Date:        in.Date.String(),
		Description: in.Description,
		Amount:      amount,
		Category:    in.Category,
		Group:       in.Group,
		Kind:        in.Kind,
	}
	return e, e.Validate()
}

// AddExpense records an expense, income or reimbursement. The stored amount
// is negative for outflow kinds.
func (g *Gateway) AddExpense(ctx context.Context, in ExpenseInput) (string, error) {
	e, err := in.record()
	if err != nil {
		return "", g.fail(ctx, log.OpCreate, core.CollectionExpenses, "", err)
	}
	return g.create(ctx, core.CollectionExpenses, encodeExpense(e))
}

// UpdateExpense overwrites an expense, income or reimbursement record.
func (g *Gateway) UpdateExpense(ctx context.Context, id string, in ExpenseInput) error {
	e, err := in.record()
	if err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionExpenses, id, err)
	}
	return g.update(ctx, core.CollectionExpenses, id, encodeExpense(e))
}

func (g *Gateway) CreateInvestment(ctx context.Context, i core.Investment) (string, error) {
	data, err := g.investmentData(i)
	if err != nil {
		return "", g.fail(ctx, log.OpCreate, core.CollectionInvestments, "", err)
	}
	return g.create(ctx, core.CollectionInvestments, data)
}

func (g *Gateway) UpdateInvestment(ctx context.Context, id string, i core.Investment) error {
	data, err := g.investmentData(i)
	if err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionInvestments, id, err)
	}
	return g.update(ctx, core.CollectionInvestments, id, data)
}

func (g *Gateway) investmentData(i core.Investment) (map[string]any, error) {
	if i.Type == "" {
		i.Type = core.InvestOther
	}
	if err := i.Validate(); err != nil {
		return nil, err
	}
	return encodeInvestment(g.codec, g.uid, i)
}

func (g *Gateway) CreatePrescription(ctx context.Context, p core.Prescription) (string, error) {
	if err := p.Validate(); err != nil {
		return "", g.fail(ctx, log.OpCreate, core.CollectionPrescriptions, "", err)
	}
	return g.create(ctx, core.CollectionPrescriptions, encodePrescription(p))
}

func (g *Gateway) UpdatePrescription(ctx context.Context, id string, p core.Prescription) error {
	if err := p.Validate(); err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionPrescriptions, id, err)
	}
	return g.update(ctx, core.CollectionPrescriptions, id, encodePrescription(p))
}

func (g *Gateway) CreateChange(ctx context.Context, c core.Change) (string, error) {
	if c.Status == "" {
		c.Status = core.ChangePlanned
	}
	if err := c.Validate(); err != nil {
		return "", g.fail(ctx, log.OpCreate, core.CollectionChanges, "", err)
	}
	return g.create(ctx, core.CollectionChanges, encodeChange(c))
}

func (g *Gateway) UpdateChange(ctx context.Context, id string, c core.Change) error {
	if err := c.Validate(); err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionChanges, id, err)
	}
	return g.update(ctx, core.CollectionChanges, id, encodeChange(c))
}

func (g *Gateway) CreateIncident(ctx context.Context, i core.Incident) (string, error) {
	if i.Status == "" {
		i.Status = core.IncidentOpen
	}
	if err := i.Validate(); err != nil {
		return "", g.fail(ctx, log.OpCreate, core.CollectionIncidents, "", err)
	}
	return g.create(ctx, core.CollectionIncidents, encodeIncident(i))
}

func (g *Gateway) UpdateIncident(ctx context.Context, id string, i core.Incident) error {
	if err := i.Validate(); err != nil {
		return g.fail(ctx, log.OpUpdate, core.CollectionIncidents, id, err)
	}
	return g.update(ctx, core.CollectionIncidents, id, encodeIncident(i))
}

// ResolveIncident marks an incident resolved on day with its downtime.
func (g *Gateway) ResolveIncident(ctx context.Context, id string, day core.Day, downtimeMinutes int) error {
	if downtimeMinutes < 0 {
		return g.fail(ctx, log.OpUpdate, core.CollectionIncidents, id,
			core.NewValidationError("downtimeMinutes", "must not be negative"))
	}
	return g.update(ctx, core.CollectionIncidents, id, map[string]any{
		"status":          string(core.IncidentResolved),
		"resolvedDate":    day.String(),
		"downtimeMinutes": downtimeMinutes,
	})
}
