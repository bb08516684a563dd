package core

import (
	"slices"
	"strings"
	"time"
)

// Per-user collection names. Permissions live in a global collection.
const (
	CollectionTasks         = "tasks"
	CollectionExpenses      = "expenses"
	CollectionInvestments   = "investments"
	CollectionPrescriptions = "prescriptions"
	CollectionChanges       = "changes"
	CollectionIncidents     = "incidents"
	CollectionPermissions   = "permissions"
)

// Apps a user can be granted.
const (
	AppTasks       = "tasks"
	AppExpenses    = "expenses"
	AppInvestments = "investments"
	AppMedical     = "medical"
	AppIT          = "it"
	AppAdmin       = "admin"
)

// AllApps lists every app in menu order.
var AllApps = []string{AppTasks, AppExpenses, AppInvestments, AppMedical, AppIT, AppAdmin}

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"

	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"

	KindExpense       ExpenseKind = "expense"
	KindIncome        ExpenseKind = "income"
	KindReimbursement ExpenseKind = "reimbursement"
	KindLent          ExpenseKind = "lent"
	KindSettlement    ExpenseKind = "settlement"

	LendPending LendStatus = "pending"
	LendSettled LendStatus = "settled"

	InvestStock      InvestmentType = "stock"
	InvestBond       InvestmentType = "bond"
	InvestFund       InvestmentType = "fund"
	InvestCrypto     InvestmentType = "crypto"
	InvestRealEstate InvestmentType = "real_estate"
	InvestCash       InvestmentType = "cash"
	InvestOther      InvestmentType = "other"

	ChangeStandard  ChangeType = "standard"
	ChangeNormal    ChangeType = "normal"
	ChangeEmergency ChangeType = "emergency"

	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"

	ChangePlanned    ChangeStatus = "planned"
	ChangeInProgress ChangeStatus = "in_progress"
	ChangeCompleted  ChangeStatus = "completed"
	ChangeRolledBack ChangeStatus = "rolled_back"

	IncidentCritical IncidentPriority = "critical"
	IncidentHigh     IncidentPriority = "high"
	IncidentMedium   IncidentPriority = "medium"
	IncidentLow      IncidentPriority = "low"

	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"

	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type (
	TaskStatus       string
	Priority         string
	ExpenseKind      string
	LendStatus       string
	InvestmentType   string
	ChangeType       string
	Risk             string
	ChangeStatus     string
	IncidentPriority string
	IncidentStatus   string
	Role             string

	// Meta is the part of every record owned by the store.
	Meta struct {
		ID        string
		CreatedAt time.Time
		UpdatedAt time.Time
		// Corrupt names stored fields that could not be decoded.
		Corrupt []string
	}

	TimeLog struct {
		Minutes int
		Note    string
		Date    string
	}

	Subtask struct {
		ID       string
		Title    string
		Done     bool
		TimeLogs []TimeLog
	}

	Task struct {
		Meta
		Title       string
		Description string
		Status      TaskStatus
		Priority    Priority
		DueDate     string
		Tags        []string
		TimeLogs    []TimeLog
		Subtasks    []Subtask
		TimeSpent   int
	}

	Expense struct {
		Meta
		Date         string
		Description  string
		Amount       float64 // signed: negative is outflow
		Category     string
		Group        string
		Kind         ExpenseKind
		Counterparty string
		Status       LendStatus // lent records only
		Settles      string     // settlement records only: id of the lent record
	}

	Investment struct {
		Meta
		Name         string
		Type         InvestmentType
		Invested     float64
		CurrentValue float64
		Date         string
		Notes        string
	}

	Prescription struct {
		Meta
		PatientName string
		Medication  string
		Dosage      string
		Doctor      string
		Date        string
		Cost        float64
		PhotoURL    string
		Tags        []string
	}

	Change struct {
		Meta
		Title       string
		Server      string
		Type        ChangeType
		Risk        Risk
		Status      ChangeStatus
		Date        string
		Description string
	}

	Incident struct {
		Meta
		Title           string
		Server          string
		Priority        IncidentPriority
		Status          IncidentStatus
		Date            string
		ResolvedDate    string
		DowntimeMinutes int
	}

	Permission struct {
		Meta
		UserID string
		Email  string
		Role   Role
		Apps   []string
	}
)

func (m Meta) RecordID() string { return m.ID }

// IsCorrupt reports whether field failed to decode.
func (m Meta) IsCorrupt(field string) bool {
	return slices.Contains(m.Corrupt, field)
}

func (k ExpenseKind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindReimbursement, KindLent, KindSettlement:
		return true
	}
	return false
}

// IsOutflow reports whether amounts of this kind are stored negative.
func (k ExpenseKind) IsOutflow() bool {
	return k == KindExpense || k == KindLent
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskOpen, TaskInProgress, TaskDone:
		return true
	}
	return false
}

func (t InvestmentType) Valid() bool {
	switch t {
	case InvestStock, InvestBond, InvestFund, InvestCrypto, InvestRealEstate, InvestCash, InvestOther:
		return true
	}
	return false
}

// AmountValue returns the signed amount, or false when it could not be decoded.
func (e Expense) AmountValue() (float64, bool) {
	return e.Amount, !e.IsCorrupt("amount")
}

func (e Expense) DateKey() string { return e.Date }

// Gain is current value minus invested. ok is false if either is unusable.
func (i Investment) Gain() (float64, bool) {
	if i.IsCorrupt("invested") || i.IsCorrupt("currentValue") {
		return 0, false
	}
	return i.CurrentValue - i.Invested, true
}

// CurrentValueOf returns the decoded current value.
func (i Investment) CurrentValueOf() (float64, bool) {
	return i.CurrentValue, !i.IsCorrupt("currentValue")
}

func (i Investment) InvestedValue() (float64, bool) {
	return i.Invested, !i.IsCorrupt("invested")
}

// Allows reports whether the permission grants app. Admins see everything.
func (p Permission) Allows(app string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	return slices.Contains(p.Apps, app)
}

func (t Task) Validate() error {
	var v ValidationError
	if strings.TrimSpace(t.Title) == "" {
		v.Add("title", "required")
	} else if len(t.Title) > 200 {
		v.Add("title", "too long (max 200 characters)")
	}
	if t.Status != "" && !t.Status.Valid() {
		v.Add("status", "unknown status "+string(t.Status))
	}
	if t.Priority != "" && !t.Priority.Valid() {
		v.Add("priority", "unknown priority "+string(t.Priority))
	}
	if t.DueDate != "" {
		if _, err := ParseDay(t.DueDate); err != nil {
			v.Add("dueDate", "must be YYYY-MM-DD")
		}
	}
	for _, l := range t.TimeLogs {
		if l.Minutes <= 0 {
			v.Add("timeLogs", "minutes must be positive")
			break
		}
	}
	return v.Err()
}

// ValidateTimeLog checks a single log entry before it is appended.
func ValidateTimeLog(l TimeLog) error {
	var v ValidationError
	if l.Minutes <= 0 {
		v.Add("minutes", "must be positive")
	}
	if l.Date != "" {
		if _, err := ParseDay(l.Date); err != nil {
			v.Add("date", "must be YYYY-MM-DD")
		}
	}
	return v.Err()
}

func (e Expense) Validate() error {
	var v ValidationError
	if _, err := ParseDay(e.Date); err != nil {
		v.Add("date", "must be YYYY-MM-DD")
	}
	if strings.TrimSpace(e.Description) == "" {
		v.Add("description", "required")
	} else if len(e.Description) > 200 {
		v.Add("description", "too long (max 200 characters)")
	}
	if !e.Kind.Valid() {
		v.Add("kind", "unknown kind "+string(e.Kind))
	} else {
		switch {
		case e.Amount == 0:
			v.Add("amount", "must not be zero")
		case e.Kind.IsOutflow() != (e.Amount < 0):
			v.Add("amount", "sign does not match kind "+string(e.Kind))
		}
	}
	if e.Kind == KindLent && strings.TrimSpace(e.Counterparty) == "" {
		v.Add("counterparty", "required for lent records")
	}
	if e.Kind == KindSettlement && e.Settles == "" {
		v.Add("settles", "required for settlement records")
	}
	return v.Err()
}

func (i Investment) Validate() error {
	var v ValidationError
	if strings.TrimSpace(i.Name) == "" {
		v.Add("name", "required")
	}
	if !i.Type.Valid() {
		v.Add("type", "unknown type "+string(i.Type))
	}
	if i.Invested < 0 {
		v.Add("invested", "must not be negative")
	}
	if i.CurrentValue < 0 {
		v.Add("currentValue", "must not be negative")
	}
	if i.Date != "" {
		if _, err := ParseDay(i.Date); err != nil {
			v.Add("date", "must be YYYY-MM-DD")
		}
	}
	return v.Err()
}

func (p Prescription) Validate() error {
	var v ValidationError
	if strings.TrimSpace(p.PatientName) == "" {
		v.Add("patientName", "required")
	}
	if strings.TrimSpace(p.Medication) == "" {
		v.Add("medication", "required")
	}
	if _, err := ParseDay(p.Date); err != nil {
		v.Add("date", "must be YYYY-MM-DD")
	}
	if p.Cost < 0 {
		v.Add("cost", "must not be negative")
	}
	return v.Err()
}

func (c Change) Validate() error {
	var v ValidationError
	if strings.TrimSpace(c.Title) == "" {
		v.Add("title", "required")
	}
	if strings.TrimSpace(c.Server) == "" {
		v.Add("server", "required")
	}
	switch c.Type {
	case ChangeStandard, ChangeNormal, ChangeEmergency:
	default:
		v.Add("type", "unknown type "+string(c.Type))
	}
	switch c.Risk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		v.Add("risk", "unknown risk "+string(c.Risk))
	}
	switch c.Status {
	case ChangePlanned, ChangeInProgress, ChangeCompleted, ChangeRolledBack:
	default:
		v.Add("status", "unknown status "+string(c.Status))
	}
	if _, err := ParseDay(c.Date); err != nil {
		v.Add("date", "must be YYYY-MM-DD")
	}
	return v.Err()
}

func (i Incident) Validate() error {
	var v ValidationError
	if strings.TrimSpace(i.Title) == "" {
		v.Add("title", "required")
	}
	switch i.Priority {
	case IncidentCritical, IncidentHigh, IncidentMedium, IncidentLow:
	default:
		v.Add("priority", "unknown priority "+string(i.Priority))
	}
	switch i.Status {
	case IncidentOpen, IncidentInvestigating, IncidentResolved:
	default:
		v.Add("status", "unknown status "+string(i.Status))
	}
	if _, err := ParseDay(i.Date); err != nil {
		v.Add("date", "must be YYYY-MM-DD")
	}
	if i.ResolvedDate != "" {
		if _, err := ParseDay(i.ResolvedDate); err != nil {
			v.Add("resolvedDate", "must be YYYY-MM-DD")
		}
	}
	if i.DowntimeMinutes < 0 {
		v.Add("downtimeMinutes", "must not be negative")
	}
	return v.Err()
}

func (p Permission) Validate() error {
	var v ValidationError
	if strings.TrimSpace(p.UserID) == "" {
		v.Add("userId", "required")
	}
	if p.Role != RoleAdmin && p.Role != RoleUser {
		v.Add("role", "unknown role "+string(p.Role))
	}
	for _, a := range p.Apps {
		if !slices.Contains(AllApps, a) {
			v.Add("apps", "unknown app "+a)
		}
	}
	return v.Err()
}
