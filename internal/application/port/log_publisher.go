package port

import (
	"context"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LevelForSeverity maps an error severity to a log level.
func LevelForSeverity(s valueobject.Severity) LogLevel {
	switch s {
	case valueobject.SeverityCritical, valueobject.SeverityHigh:
		return LogLevelError
	case valueobject.SeverityMedium:
		return LogLevelWarn
	case valueobject.SeverityLow:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}

// LogEntry represents a structured log entry for publishing to external log systems.
type LogEntry struct {
	Timestamp time.Time              // When the event occurred
	Level     LogLevel               // Severity level
	Message   string                 // Log message
	Fields    map[string]interface{} // Additional structured fields
}

// LogPublisher defines the interface for publishing logs to external observability platforms.
type LogPublisher interface {
	// Publish sends a single log entry to the external system.
	Publish(ctx context.Context, entry LogEntry) error

	// PublishBatch sends multiple log entries in a single operation.
	// Implementations should handle batching constraints (e.g., CloudWatch's 10,000 events/request limit).
	PublishBatch(ctx context.Context, entries []LogEntry) error

	// Flush forces immediate publication of any buffered log entries.
	Flush(ctx context.Context) error
}
