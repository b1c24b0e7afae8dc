package service

import (
	"fmt"
	"strings"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// ConditionKind - вид условия правила
type ConditionKind string

const (
	ConditionCategory      ConditionKind = "category"
	ConditionTitleContains ConditionKind = "title_contains"
	ConditionSeverity      ConditionKind = "severity"
	ConditionPriority      ConditionKind = "priority"
	ConditionStatus        ConditionKind = "status"
)

// RuleCondition - одно условие над полями тикета
type RuleCondition struct {
	Kind  ConditionKind
	Value string
}

// Validate проверяет вид условия и значение
func (c RuleCondition) Validate() error {
	switch c.Kind {
	case ConditionCategory:
		return valueobject.TicketCategory(c.Value).Validate()
	case ConditionSeverity:
		return valueobject.Severity(c.Value).Validate()
	case ConditionPriority:
		return valueobject.TicketPriority(c.Value).Validate()
	case ConditionStatus:
		return valueobject.TicketStatus(c.Value).Validate()
	case ConditionTitleContains:
		if strings.TrimSpace(c.Value) == "" {
			return fmt.Errorf("title_contains needs a value")
		}
		return nil
	default:
		return fmt.Errorf("unknown condition kind: %q", string(c.Kind))
	}
}

// Matches проверяет условие; сравнение заголовка без учета регистра
func (c RuleCondition) Matches(t *entity.Ticket) bool {
	switch c.Kind {
	case ConditionCategory:
		return string(t.Category) == c.Value
	case ConditionTitleContains:
		return strings.Contains(strings.ToLower(t.Title), strings.ToLower(c.Value))
	case ConditionSeverity:
		return string(t.Severity) == c.Value
	case ConditionPriority:
		return string(t.Priority) == c.Value
	case ConditionStatus:
		return string(t.Status) == c.Value
	default:
		return false
	}
}

// MatchMode определяет, как объединяются условия
type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

// AssignmentRule назначает тикет исполнителю и команде
type AssignmentRule struct {
	Name       string
	Match      MatchMode
	Conditions []RuleCondition
	Assignee   string
	Team       string
}

// Validate проверяет правило целиком
func (r AssignmentRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("assignment rule name is required")
	}
	if r.Match != MatchAll && r.Match != MatchAny {
		return fmt.Errorf("rule %s: match must be all or any", r.Name)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s: at least one condition is required", r.Name)
	}
	if r.Assignee == "" {
		return fmt.Errorf("rule %s: assignee is required", r.Name)
	}
	for _, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
	}
	return nil
}

// Matches применяет условия с учетом режима all/any
func (r AssignmentRule) Matches(t *entity.Ticket) bool {
	return matchConditions(r.Match, r.Conditions, t)
}

func matchConditions(mode MatchMode, conditions []RuleCondition, t *entity.Ticket) bool {
	if len(conditions) == 0 {
		return false
	}
	for _, c := range conditions {
		ok := c.Matches(t)
		if mode == MatchAny && ok {
			return true
		}
		if mode != MatchAny && !ok {
			return false
		}
	}
	return mode != MatchAny
}

// DefaultAssignmentRules возвращает правила назначения по умолчанию в порядке проверки
func DefaultAssignmentRules() []AssignmentRule {
	return []AssignmentRule{
		{
			Name:  "performance_latency",
			Match: MatchAll,
			Conditions: []RuleCondition{
				{Kind: ConditionCategory, Value: string(valueobject.TicketCategoryPerformance)},
				{Kind: ConditionTitleContains, Value: "latency"},
			},
			Assignee: "performance_team",
			Team:     "Infrastructure",
		},
		{
			Name:  "cost_budget",
			Match: MatchAny,
			Conditions: []RuleCondition{
				{Kind: ConditionCategory, Value: string(valueobject.TicketCategoryCost)},
				{Kind: ConditionTitleContains, Value: "budget"},
			},
			Assignee: "cost_optimization_team",
			Team:     "FinOps",
		},
		{
			Name:       "critical_on_call",
			Match:      MatchAll,
			Conditions: []RuleCondition{{Kind: ConditionSeverity, Value: string(valueobject.SeverityCritical)}},
			Assignee:   "on_call_engineer",
			Team:       "SRE",
		},
		{
			Name:       "anomaly_data_science",
			Match:      MatchAll,
			Conditions: []RuleCondition{{Kind: ConditionTitleContains, Value: "anomaly"}},
			Assignee:   "data_science_team",
			Team:       "DataScience",
		},
	}
}

// Assigner применяет упорядоченный список правил: первое совпавшее побеждает
type Assigner struct {
	rules []AssignmentRule
}

// NewAssigner создает Assigner. Пустой список означает правила по умолчанию.
func NewAssigner(rules []AssignmentRule) *Assigner {
	if len(rules) == 0 {
		rules = DefaultAssignmentRules()
	}
	return &Assigner{rules: append([]AssignmentRule(nil), rules...)}
}

// Assign назначает тикет по первому совпавшему правилу.
// Возвращает имя правила и false, если ни одно правило не подошло.
func (a *Assigner) Assign(t *entity.Ticket) (string, bool) {
	for _, r := range a.rules {
		if r.Matches(t) {
			t.AssigneeID = r.Assignee
			t.Team = r.Team
			return r.Name, true
		}
	}
	return "", false
}

// Rules возвращает копию правил
func (a *Assigner) Rules() []AssignmentRule {
	return append([]AssignmentRule(nil), a.rules...)
}
