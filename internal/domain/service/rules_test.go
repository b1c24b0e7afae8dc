package service

import (
	"testing"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

func TestAssignerDefaultRules(t *testing.T) {
	a := NewAssigner(nil)

	tests := []struct {
		name     string
		ticket   entity.Ticket
		assignee string
		team     string
	}{
		{
			name:     "performance latency",
			ticket:   entity.Ticket{Title: "openai/gpt-4: Latency Error", Category: valueobject.TicketCategoryPerformance, Severity: valueobject.SeverityCritical},
			assignee: "performance_team",
			team:     "Infrastructure",
		},
		{
			name:     "cost category",
			ticket:   entity.Ticket{Title: "openai/gpt-4: Quota Exceeded Error", Category: valueobject.TicketCategoryCost},
			assignee: "cost_optimization_team",
			team:     "FinOps",
		},
		{
			name:     "budget in title",
			ticket:   entity.Ticket{Title: "Monthly BUDGET exceeded", Category: valueobject.TicketCategoryGeneral},
			assignee: "cost_optimization_team",
			team:     "FinOps",
		},
		{
			name:     "critical fallback",
			ticket:   entity.Ticket{Title: "openai/gpt-4: Rate Limit Error", Category: valueobject.TicketCategoryPerformance, Severity: valueobject.SeverityCritical},
			assignee: "on_call_engineer",
			team:     "SRE",
		},
		{
			name:     "anomaly",
			ticket:   entity.Ticket{Title: "Unknown/Unknown: Metric Anomaly Error", Category: valueobject.TicketCategoryGeneral, Severity: valueobject.SeverityMedium},
			assignee: "data_science_team",
			team:     "DataScience",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ticket := tc.ticket
			if _, ok := a.Assign(&ticket); !ok {
				t.Fatalf("expected a rule to match")
			}
			if ticket.AssigneeID != tc.assignee || ticket.Team != tc.team {
				t.Fatalf("assigned to %s/%s, want %s/%s", ticket.AssigneeID, ticket.Team, tc.assignee, tc.team)
			}
		})
	}
}

func TestAssignerNoMatchLeavesTicketUnassigned(t *testing.T) {
	a := NewAssigner(nil)
	ticket := entity.Ticket{Title: "openai/gpt-4: Model Error Error", Category: valueobject.TicketCategoryGeneral, Severity: valueobject.SeverityLow}

	if name, ok := a.Assign(&ticket); ok {
		t.Fatalf("unexpected match %q", name)
	}
	if ticket.AssigneeID != "" || ticket.Team != "" {
		t.Fatalf("ticket must stay unassigned")
	}
}

func TestDefaultRulesAreValid(t *testing.T) {
	for _, r := range DefaultAssignmentRules() {
		if err := r.Validate(); err != nil {
			t.Fatalf("default assignment rule invalid: %v", err)
		}
	}
	for _, r := range DefaultEscalationRules() {
		if err := r.Validate(); err != nil {
			t.Fatalf("default escalation rule invalid: %v", err)
		}
	}
}

func TestRuleValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		rule AssignmentRule
	}{
		{name: "no name", rule: AssignmentRule{Match: MatchAll, Assignee: "x", Conditions: []RuleCondition{{Kind: ConditionSeverity, Value: "high"}}}},
		{name: "bad match", rule: AssignmentRule{Name: "r", Match: "some", Assignee: "x", Conditions: []RuleCondition{{Kind: ConditionSeverity, Value: "high"}}}},
		{name: "no conditions", rule: AssignmentRule{Name: "r", Match: MatchAll, Assignee: "x"}},
		{name: "unknown kind", rule: AssignmentRule{Name: "r", Match: MatchAll, Assignee: "x", Conditions: []RuleCondition{{Kind: "color", Value: "red"}}}},
		{name: "bad value", rule: AssignmentRule{Name: "r", Match: MatchAll, Assignee: "x", Conditions: []RuleCondition{{Kind: ConditionPriority, Value: "urgent"}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.rule.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEscalationRules(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rules := DefaultEscalationRules()

	tests := []struct {
		name   string
		ticket entity.Ticket
		age    time.Duration
		want   string
	}{
		{
			name:   "critical after 16 minutes",
			ticket: entity.Ticket{Severity: valueobject.SeverityCritical, Priority: valueobject.PriorityHigh, Status: valueobject.StatusOpen},
			age:    16 * time.Minute,
			want:   "critical_no_response",
		},
		{
			name:   "critical after 14 minutes",
			ticket: entity.Ticket{Severity: valueobject.SeverityCritical, Priority: valueobject.PriorityHigh, Status: valueobject.StatusOpen},
			age:    14 * time.Minute,
		},
		{
			name:   "high after 61 minutes",
			ticket: entity.Ticket{Severity: valueobject.SeverityLow, Priority: valueobject.PriorityHigh, Status: valueobject.StatusOpen},
			age:    61 * time.Minute,
			want:   "high_overdue",
		},
		{
			name:   "medium after 241 minutes",
			ticket: entity.Ticket{Severity: valueobject.SeverityLow, Priority: valueobject.PriorityMedium, Status: valueobject.StatusOpen},
			age:    241 * time.Minute,
			want:   "medium_overdue",
		},
		{
			name:   "in progress is not escalated",
			ticket: entity.Ticket{Severity: valueobject.SeverityCritical, Priority: valueobject.PriorityHigh, Status: valueobject.StatusInProgress},
			age:    10 * time.Hour,
		},
		{
			name:   "already escalated",
			ticket: entity.Ticket{Severity: valueobject.SeverityCritical, Priority: valueobject.PriorityHigh, Status: valueobject.StatusOpen, Escalated: true},
			age:    10 * time.Hour,
		},
		{
			name:   "low priority never",
			ticket: entity.Ticket{Severity: valueobject.SeverityLow, Priority: valueobject.PriorityLow, Status: valueobject.StatusOpen},
			age:    100 * time.Hour,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ticket := tc.ticket
			ticket.CreatedAt = created
			rule, ok := FirstMatchingRule(rules, &ticket, created.Add(tc.age))
			if tc.want == "" {
				if ok {
					t.Fatalf("unexpected rule %s", rule.Name)
				}
				return
			}
			if !ok || rule.Name != tc.want {
				t.Fatalf("got rule %q (matched=%v), want %q", rule.Name, ok, tc.want)
			}
		})
	}
}

func TestEscalationApply(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ticket := &entity.Ticket{Status: valueobject.StatusOpen, Priority: valueobject.PriorityMedium}

	DefaultEscalationRules()[2].Apply(ticket, now)

	if !ticket.Escalated || ticket.EscalatedAt == nil || !ticket.EscalatedAt.Equal(now) {
		t.Fatalf("escalation flags not set: %+v", ticket)
	}
	if ticket.Priority != valueobject.PriorityHigh {
		t.Fatalf("expected priority high, got %s", ticket.Priority)
	}
	if len(ticket.Workflow) != 1 {
		t.Fatalf("expected one workflow event, got %d", len(ticket.Workflow))
	}
	ev := ticket.Workflow[0]
	if ev.Actor != entity.SystemActor || ev.Action != entity.ActionEscalation || ev.Notes != "Auto-escalated due to rule: medium_overdue" {
		t.Fatalf("unexpected workflow event: %+v", ev)
	}
	if ev.OldStatus != valueobject.StatusOpen || ev.NewStatus != valueobject.StatusOpen {
		t.Fatalf("escalation must not change status: %+v", ev)
	}
}

func TestEscalationApply_NeverLowersPriority(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current valueobject.TicketPriority
		target  valueobject.TicketPriority
		want    valueobject.TicketPriority
	}{
		{name: "low raised to high", current: valueobject.PriorityLow, target: valueobject.PriorityHigh, want: valueobject.PriorityHigh},
		{name: "high kept", current: valueobject.PriorityHigh, target: valueobject.PriorityHigh, want: valueobject.PriorityHigh},
		{name: "critical kept", current: valueobject.PriorityCritical, target: valueobject.PriorityHigh, want: valueobject.PriorityCritical},
		{name: "high raised to critical", current: valueobject.PriorityHigh, target: valueobject.PriorityCritical, want: valueobject.PriorityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := EscalationRule{Name: "r", Action: EscalationAction{SetPriority: tt.target}}
			ticket := &entity.Ticket{Status: valueobject.StatusOpen, Priority: tt.current}

			rule.Apply(ticket, now)

			if ticket.Priority != tt.want {
				t.Fatalf("priority = %s, want %s", ticket.Priority, tt.want)
			}
			if !ticket.Escalated {
				t.Fatal("expected ticket to be escalated")
			}
		})
	}
}

func TestEscalationRuleValidate_RejectsLowerPriority(t *testing.T) {
	base := EscalationRule{
		Name:       "r",
		MinAge:     time.Minute,
		Conditions: []RuleCondition{{Kind: ConditionStatus, Value: string(valueobject.StatusOpen)}},
	}

	for _, p := range []valueobject.TicketPriority{valueobject.PriorityLow, valueobject.PriorityMedium} {
		rule := base
		rule.Action.SetPriority = p
		if err := rule.Validate(); err == nil {
			t.Fatalf("expected set_priority %s to be rejected", p)
		}
	}

	for _, p := range []valueobject.TicketPriority{"", valueobject.PriorityHigh, valueobject.PriorityCritical} {
		rule := base
		rule.Action.SetPriority = p
		if err := rule.Validate(); err != nil {
			t.Fatalf("set_priority %q: unexpected error %v", p, err)
		}
	}
}

func TestTicketAggregatorSummarize(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	resolvedAt := now.Add(-2 * time.Hour)

	tickets := []*entity.Ticket{
		{Status: valueobject.StatusOpen, Severity: valueobject.SeverityHigh, CreatedAt: now.Add(-10 * time.Hour), SLADeadline: now.Add(-time.Hour), Escalated: true},
		{Status: valueobject.StatusResolved, Severity: valueobject.SeverityHigh, CreatedAt: now.Add(-6 * time.Hour), ResolvedAt: &resolvedAt, SLADeadline: now.Add(time.Hour)},
		{Status: valueobject.StatusClosed, Severity: valueobject.SeverityLow, CreatedAt: now.Add(-20 * time.Hour), SLADeadline: now.Add(-time.Hour)},
	}

	stats := NewTicketAggregator().Summarize(tickets, now)

	if stats.Total != 3 {
		t.Fatalf("expected total 3, got %d", stats.Total)
	}
	if stats.ByStatus[valueobject.StatusOpen] != 1 || stats.BySeverity[valueobject.SeverityHigh] != 2 {
		t.Fatalf("unexpected breakdown: %+v", stats)
	}
	if stats.OverdueCount != 1 {
		t.Fatalf("closed tickets are never overdue, got %d", stats.OverdueCount)
	}
	if stats.EscalatedCount != 1 {
		t.Fatalf("expected 1 escalated, got %d", stats.EscalatedCount)
	}
	if stats.AvgResolutionHours != 4 {
		t.Fatalf("expected 4h average resolution, got %v", stats.AvgResolutionHours)
	}
}

func TestTicketAggregatorEmpty(t *testing.T) {
	stats := NewTicketAggregator().Summarize(nil, time.Now())
	if stats.Total != 0 || stats.AvgResolutionHours != 0 || stats.ByStatus == nil {
		t.Fatalf("unexpected empty stats: %+v", stats)
	}
}
