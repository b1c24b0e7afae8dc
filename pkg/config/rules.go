package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// Rules - правила назначения и эскалации тикетов
type Rules struct {
	Assignment []service.AssignmentRule
	Escalation []service.EscalationRule
}

// DefaultRules возвращает встроенные правила
func DefaultRules() *Rules {
	return &Rules{
		Assignment: service.DefaultAssignmentRules(),
		Escalation: service.DefaultEscalationRules(),
	}
}

type rulesFile struct {
	Assignment []assignmentRuleYAML `yaml:"assignment"`
	Escalation []escalationRuleYAML `yaml:"escalation"`
}

type conditionYAML struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
}

type assignmentRuleYAML struct {
	Name       string          `yaml:"name"`
	Match      string          `yaml:"match"`
	Conditions []conditionYAML `yaml:"conditions"`
	Assignee   string          `yaml:"assignee"`
	Team       string          `yaml:"team"`
}

type escalationRuleYAML struct {
	Name       string          `yaml:"name"`
	Conditions []conditionYAML `yaml:"conditions"`
	MinAge     string          `yaml:"min_age"`
	Action     struct {
		SetPriority string `yaml:"set_priority"`
	} `yaml:"action"`
}

// LoadRules читает правила из YAML-файла.
// Пустой путь означает правила по умолчанию; отсутствующая секция тоже заменяется умолчаниями.
func LoadRules(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules разбирает YAML с правилами и проверяет каждое правило
func ParseRules(raw []byte) (*Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	rules := DefaultRules()

	if len(file.Assignment) > 0 {
		rules.Assignment = make([]service.AssignmentRule, 0, len(file.Assignment))
		for i, r := range file.Assignment {
			match := service.MatchMode(strings.ToLower(r.Match))
			if match == "" {
				match = service.MatchAll
			}
			rule := service.AssignmentRule{
				Name:       r.Name,
				Match:      match,
				Conditions: toConditions(r.Conditions),
				Assignee:   r.Assignee,
				Team:       r.Team,
			}
			if err := rule.Validate(); err != nil {
				return nil, fmt.Errorf("assignment[%d]: %w", i, err)
			}
			rules.Assignment = append(rules.Assignment, rule)
		}
	}

	if len(file.Escalation) > 0 {
		rules.Escalation = make([]service.EscalationRule, 0, len(file.Escalation))
		for i, r := range file.Escalation {
			minAge, err := time.ParseDuration(r.MinAge)
			if err != nil {
				return nil, fmt.Errorf("escalation[%d]: invalid min_age %q: %w", i, r.MinAge, err)
			}
			rule := service.EscalationRule{
				Name:       r.Name,
				Conditions: toConditions(r.Conditions),
				MinAge:     minAge,
				Action: service.EscalationAction{
					SetPriority: valueobject.TicketPriority(strings.ToLower(r.Action.SetPriority)),
				},
			}
			if err := rule.Validate(); err != nil {
				return nil, fmt.Errorf("escalation[%d]: %w", i, err)
			}
			rules.Escalation = append(rules.Escalation, rule)
		}
	}

	return rules, nil
}

func toConditions(in []conditionYAML) []service.RuleCondition {
	out := make([]service.RuleCondition, 0, len(in))
	for _, c := range in {
		out = append(out, service.RuleCondition{
			Kind:  service.ConditionKind(strings.ToLower(strings.TrimSpace(c.Kind))),
			Value: strings.TrimSpace(c.Value),
		})
	}
	return out
}
