package service

import (
	"fmt"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// EscalationAction описывает, что делать с тикетом при срабатывании правила
type EscalationAction struct {
	SetPriority valueobject.TicketPriority
}

// EscalationRule срабатывает для тикета старше MinAge, удовлетворяющего всем условиям
type EscalationRule struct {
	Name       string
	Conditions []RuleCondition
	MinAge     time.Duration
	Action     EscalationAction
}

// Validate проверяет правило эскалации
func (r EscalationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("escalation rule name is required")
	}
	if r.MinAge <= 0 {
		return fmt.Errorf("rule %s: min_age must be positive", r.Name)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s: at least one condition is required", r.Name)
	}
	for _, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
	}
	if r.Action.SetPriority != "" {
		if err := r.Action.SetPriority.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
		if r.Action.SetPriority.Rank() < valueobject.PriorityHigh.Rank() {
			return fmt.Errorf("rule %s: set_priority must be high or critical, got %s", r.Name, r.Action.SetPriority)
		}
	}
	return nil
}

// Matches сообщает, что тикет нужно эскалировать по этому правилу.
// Уже эскалированные тикеты не подходят никогда.
func (r EscalationRule) Matches(t *entity.Ticket, now time.Time) bool {
	if t.Escalated {
		return false
	}
	if t.Age(now) <= r.MinAge {
		return false
	}
	return matchConditions(MatchAll, r.Conditions, t)
}

// Apply помечает тикет эскалированным и пишет событие в журнал.
// Приоритет только повышается.
func (r EscalationRule) Apply(t *entity.Ticket, now time.Time) {
	priority := r.Action.SetPriority
	if priority == "" {
		priority = valueobject.PriorityHigh
	}

	at := now
	t.Escalated = true
	t.EscalatedAt = &at
	if priority.Rank() > t.Priority.Rank() {
		t.Priority = priority
	}
	t.UpdatedAt = now
	t.Record(entity.WorkflowEvent{
		Timestamp: now,
		Actor:     entity.SystemActor,
		Action:    entity.ActionEscalation,
		OldStatus: t.Status,
		NewStatus: t.Status,
		Notes:     "Auto-escalated due to rule: " + r.Name,
	})
}

// DefaultEscalationRules возвращает правила эскалации по умолчанию
func DefaultEscalationRules() []EscalationRule {
	open := RuleCondition{Kind: ConditionStatus, Value: string(valueobject.StatusOpen)}
	escalate := EscalationAction{SetPriority: valueobject.PriorityHigh}

	return []EscalationRule{
		{
			Name: "critical_no_response",
			Conditions: []RuleCondition{
				{Kind: ConditionSeverity, Value: string(valueobject.SeverityCritical)},
				open,
			},
			MinAge: 15 * time.Minute,
			Action: escalate,
		},
		{
			Name: "high_overdue",
			Conditions: []RuleCondition{
				{Kind: ConditionPriority, Value: string(valueobject.PriorityHigh)},
				open,
			},
			MinAge: 60 * time.Minute,
			Action: escalate,
		},
		{
			Name: "medium_overdue",
			Conditions: []RuleCondition{
				{Kind: ConditionPriority, Value: string(valueobject.PriorityMedium)},
				open,
			},
			MinAge: 240 * time.Minute,
			Action: escalate,
		},
	}
}

// FirstMatchingRule возвращает первое сработавшее правило
func FirstMatchingRule(rules []EscalationRule, t *entity.Ticket, now time.Time) (EscalationRule, bool) {
	for _, r := range rules {
		if r.Matches(t, now) {
			return r, true
		}
	}
	return EscalationRule{}, false
}
