package valueobject

import "fmt"

// Severity представляет серьезность ошибки или тикета
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Validate проверяет серьезность ошибки (включая info)
func (s Severity) Validate() error {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return nil
	default:
		return fmt.Errorf("invalid severity: %q", string(s))
	}
}

// ValidateForTicket проверяет серьезность тикета: info для тикетов не используется
func (s Severity) ValidateForTicket() error {
	if s == SeverityInfo {
		return fmt.Errorf("invalid ticket severity: %q", string(s))
	}
	return s.Validate()
}

// Rank возвращает порядковый вес: critical=4 ... info=0, неизвестное значение = -1
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	default:
		return -1
	}
}

// AtLeast сообщает, что серьезность не ниже other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

func (s Severity) String() string {
	return string(s)
}

// TicketSeverities возвращает допустимые серьезности тикета в порядке убывания
func TicketSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}
