package gateway

import (
	"fmt"
	"strings"

	"lifesync/internal/core"
	"lifesync/internal/obfuscate"
	"lifesync/internal/store"
)

func encodeTimeLogs(logs []core.TimeLog) []any {
	out := make([]any, 0, len(logs))
	for _, l := range logs {
		out = append(out, map[string]any{"minutes": l.Minutes, "note": l.Note, "date": l.Date})
	}
	return out
}

func encodeSubtasks(subs []core.Subtask) []any {
	out := make([]any, 0, len(subs))
	for _, s := range subs {
		out = append(out, map[string]any{
			"id":       s.ID,
			"title":    s.Title,
			"done":     s.Done,
			"timeLogs": encodeTimeLogs(s.TimeLogs),
		})
	}
	return out
}

func strs(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

func encodeTask(t core.Task) map[string]any {
	if t.Status == "" {
		t.Status = core.TaskOpen
	}
	if t.Priority == "" {
		t.Priority = core.PriorityMedium
	}
	return map[string]any{
		"title":       strings.TrimSpace(t.Title),
		"description": t.Description,
		"status":      string(t.Status),
		"priority":    string(t.Priority),
		"dueDate":     t.DueDate,
		"tags":        strs(t.Tags),
		"timeLogs":    encodeTimeLogs(t.TimeLogs),
		"subtasks":    encodeSubtasks(t.Subtasks),
		"timeSpent":   t.TimeSpent,
	}
}

func encodeExpense(e core.Expense) map[string]any {
	data := map[string]any{
		"date":        e.Date,
		"description": strings.TrimSpace(e.Description),
		"amount":      core.RoundCents(e.Amount),
		"category":    e.Category,
		"group":       e.Group,
		"kind":        string(e.Kind),
	}
	switch e.Kind {
	case core.KindLent:
		status := e.Status
		if status == "" {
			status = core.LendPending
		}
		data["counterparty"] = e.Counterparty
		data["status"] = string(status)
	case core.KindSettlement:
		data["counterparty"] = e.Counterparty
		data["settles"] = e.Settles
	}
	return data
}

func encodeInvestment(codec obfuscate.Codec, uid string, i core.Investment) (map[string]any, error) {
	invested, err := codec.Encode(uid, i.Invested)
	if err != nil {
		return nil, fmt.Errorf("encode invested: %w", err)
	}
	current, err := codec.Encode(uid, i.CurrentValue)
	if err != nil {
		return nil, fmt.Errorf("encode currentValue: %w", err)
	}
	return map[string]any{
		"name":         strings.TrimSpace(i.Name),
		"type":         string(i.Type),
		"invested":     invested,
		"currentValue": current,
		"date":         i.Date,
		"notes":        i.Notes,
	}, nil
}

func encodePrescription(p core.Prescription) map[string]any {
	return map[string]any{
		"patientName": strings.TrimSpace(p.PatientName),
		"medication":  strings.TrimSpace(p.Medication),
		"dosage":      p.Dosage,
		"doctor":      p.Doctor,
		"date":        p.Date,
		"cost":        core.RoundCents(p.Cost),
		"photoUrl":    p.PhotoURL,
		"tags":        strs(p.Tags),
	}
}

func encodeChange(c core.Change) map[string]any {
	return map[string]any{
		"title":       strings.TrimSpace(c.Title),
		"server":      strings.TrimSpace(c.Server),
		"type":        string(c.Type),
		"risk":        string(c.Risk),
		"status":      string(c.Status),
		"date":        c.Date,
		"description": c.Description,
	}
}

func encodeIncident(i core.Incident) map[string]any {
	return map[string]any{
		"title":           strings.TrimSpace(i.Title),
		"server":          strings.TrimSpace(i.Server),
		"priority":        string(i.Priority),
		"status":          string(i.Status),
		"date":            i.Date,
		"resolvedDate":    i.ResolvedDate,
		"downtimeMinutes": i.DowntimeMinutes,
	}
}

func encodePermission(p core.Permission) map[string]any {
	return map[string]any{
		"userId": p.UserID,
		"email":  p.Email,
		"role":   string(p.Role),
		"apps":   strs(p.Apps),
	}
}

// dateFields are stored as canonical day keys.
var dateFields = map[string]bool{"date": true, "dueDate": true, "resolvedDate": true}

// sealedFields hold obfuscated amounts, per collection.
var sealedFields = map[string]map[string]bool{
	core.CollectionInvestments: {"invested": true, "currentValue": true},
}

// storeFields belong to the store and never come from callers.
var storeFields = map[string]bool{"createdAt": true, "updatedAt": true, "id": true}

// expenseLocked fields keep amount signs and lending state consistent; they
// change only through UpdateExpense or Settle.
var expenseLocked = map[string]bool{"kind": true, "amount": true, "status": true, "settles": true}

// encodePatch re-encodes a partial update: day-key dates, sealed amounts
// and a server updatedAt.
func encodePatch(codec obfuscate.Codec, uid, collection string, partial map[string]any) (map[string]any, error) {
	var v core.ValidationError
	out := make(map[string]any, len(partial)+1)
	for k, val := range partial {
		if !store.ValidField(k) {
			v.Add(k, "invalid field name")
			continue
		}
		if storeFields[k] || (collection == core.CollectionExpenses && expenseLocked[k]) {
			v.Add(k, "cannot be changed with a partial update")
			continue
		}
		switch {
		case dateFields[k]:
			key, err := dayKey(val)
			if err != nil {
				v.Add(k, "must be YYYY-MM-DD")
				continue
			}
			out[k] = key
		case sealedFields[collection][k]:
			f, ok := val.(float64)
			if !ok {
				if n, isInt := val.(int); isInt {
					f, ok = float64(n), true
				}
			}
			if !ok || f < 0 {
				v.Add(k, "must be a non-negative number")
				continue
			}
			enc, err := codec.Encode(uid, f)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", k, err)
			}
			out[k] = enc
		default:
			out[k] = store.PlainValue(val)
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	out["updatedAt"] = store.ServerTimestamp
	return out, nil
}

func dayKey(v any) (string, error) {
	switch d := v.(type) {
	case core.Day:
		return d.String(), nil
	case string:
		if d == "" {
			return "", nil
		}
		day, err := core.ParseDay(d)
		if err != nil {
			return "", err
		}
		return day.String(), nil
	}
	return "", fmt.Errorf("unsupported date value %T", v)
}
