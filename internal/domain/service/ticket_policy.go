package service

import (
	"strings"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

const descriptionTrailer = "This ticket was automatically created and assigned based on error detection rules."

// TicketPolicy содержит правила построения тикета из ошибки (Domain Service)
type TicketPolicy struct{}

// NewTicketPolicy создает новый TicketPolicy
func NewTicketPolicy() *TicketPolicy {
	return &TicketPolicy{}
}

// Severity переносит серьезность ошибки в тикет; info и неизвестные значения становятся medium
func (p *TicketPolicy) Severity(s valueobject.Severity) valueobject.Severity {
	switch s {
	case valueobject.SeverityCritical, valueobject.SeverityHigh, valueobject.SeverityMedium, valueobject.SeverityLow:
		return s
	default:
		return valueobject.SeverityMedium
	}
}

// Priority вычисляет приоритет по серьезности и категории ошибки
func (p *TicketPolicy) Priority(s valueobject.Severity, c valueobject.ErrorCategory) valueobject.TicketPriority {
	switch {
	case s == valueobject.SeverityCritical,
		c == valueobject.CategoryRateLimit,
		c == valueobject.CategoryAuthentication,
		c == valueobject.CategoryServiceUnavailable:
		return valueobject.PriorityHigh
	case s == valueobject.SeverityHigh,
		c == valueobject.CategoryTimeout,
		c == valueobject.CategoryValidation,
		c == valueobject.CategoryQuotaExceeded:
		return valueobject.PriorityMedium
	default:
		return valueobject.PriorityLow
	}
}

// Category сопоставляет категорию ошибки зоне ответственности тикета
func (p *TicketPolicy) Category(c valueobject.ErrorCategory) valueobject.TicketCategory {
	switch c {
	case valueobject.CategoryRateLimit, valueobject.CategoryTimeout, valueobject.CategoryLatency:
		return valueobject.TicketCategoryPerformance
	case valueobject.CategoryQuotaExceeded:
		return valueobject.TicketCategoryCost
	case valueobject.CategoryAuthentication, valueobject.CategoryAuthorization:
		return valueobject.TicketCategorySecurity
	case valueobject.CategoryValidation:
		return valueobject.TicketCategoryDataQuality
	case valueobject.CategoryServiceUnavailable:
		return valueobject.TicketCategoryInfrastructure
	default:
		return valueobject.TicketCategoryGeneral
	}
}

// Title строит заголовок вида "openai/gpt-4: Rate Limit Error"
func (p *TicketPolicy) Title(event *entity.ErrorEvent) string {
	provider := string(event.Provider)
	if provider == "" {
		provider = "Unknown"
	}
	model := event.ModelName
	if model == "" {
		model = "Unknown"
	}
	category := string(event.Category)
	if category == "" {
		category = "error"
	}
	return provider + "/" + model + ": " + titleCase(strings.ReplaceAll(category, "_", " ")) + " Error"
}

// Description перечисляет известные поля ошибки построчно
func (p *TicketPolicy) Description(event *entity.ErrorEvent) string {
	lines := []string{"Automatically generated ticket from error detection:", ""}

	if event.Message != "" {
		lines = append(lines, "Error Message: "+event.Message)
	}
	if event.Code != "" {
		lines = append(lines, "Error Code: "+event.Code)
	}
	if event.Provider != "" {
		lines = append(lines, "Provider: "+string(event.Provider))
	}
	if event.ModelName != "" {
		lines = append(lines, "Model: "+event.ModelName)
	}
	if event.Endpoint != "" {
		lines = append(lines, "Endpoint: "+event.Endpoint)
	}
	if !event.Timestamp.IsZero() {
		lines = append(lines, "Timestamp: "+event.Timestamp.UTC().Format(time.RFC3339))
	}

	lines = append(lines, "", descriptionTrailer)
	return strings.Join(lines, "\n")
}

// SLA возвращает срок реакции; правила проверяются по порядку, первое совпадение побеждает
func (p *TicketPolicy) SLA(s valueobject.Severity, pr valueobject.TicketPriority) time.Duration {
	switch {
	case s == valueobject.SeverityCritical:
		return 2 * time.Hour
	case pr == valueobject.PriorityHigh:
		return 8 * time.Hour
	case pr == valueobject.PriorityMedium:
		return 24 * time.Hour
	default:
		return 72 * time.Hour
	}
}

// SLADeadline возвращает now + SLA
func (p *TicketPolicy) SLADeadline(now time.Time, s valueobject.Severity, pr valueobject.TicketPriority) time.Time {
	return now.Add(p.SLA(s, pr))
}

// titleCase: заглавная буква в начале каждого слова, остальные строчные
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		switch {
		case isLetter && startOfWord:
			b.WriteString(strings.ToUpper(string(r)))
			startOfWord = false
		case isLetter:
			b.WriteString(strings.ToLower(string(r)))
		default:
			b.WriteRune(r)
			startOfWord = true
		}
	}
	return b.String()
}
