package valueobject

import (
	"math"
	"testing"
	"time"
)

func TestNewMetricValue(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		unit    string
		wantErr bool
	}{
		{name: "valid", value: 120.5, unit: "ms"},
		{name: "zero", value: 0, unit: "count"},
		{name: "negative", value: -1, unit: "ms", wantErr: true},
		{name: "empty unit", value: 1, unit: "  ", wantErr: true},
		{name: "nan", value: math.NaN(), unit: "ms", wantErr: true},
		{name: "inf", value: math.Inf(1), unit: "ms", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMetricValue(tc.value, tc.unit)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewMetricValue(%v, %q) error = %v, wantErr %v", tc.value, tc.unit, err, tc.wantErr)
			}
		})
	}
}

func TestMetricValueString(t *testing.T) {
	v, err := NewMetricValue(1000, "ms")
	if err != nil {
		t.Fatalf("NewMetricValue() error = %v", err)
	}
	if got := v.String(); got != "1000 ms" {
		t.Fatalf("String() = %q", got)
	}
}

func TestSeverityRank(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityMedium) {
		t.Fatalf("critical must be at least medium")
	}
	if SeverityInfo.AtLeast(SeverityLow) {
		t.Fatalf("info must be below low")
	}
	if Severity("bogus").Rank() != -1 {
		t.Fatalf("unknown severity must rank -1")
	}
	if err := SeverityInfo.ValidateForTicket(); err == nil {
		t.Fatalf("info is not a ticket severity")
	}
}

func TestSeriesKeyString(t *testing.T) {
	key := NewSeriesKey(ProviderOpenAI, "gpt-4", Latency)
	if got := key.String(); got != "openai:gpt-4:latency" {
		t.Fatalf("String() = %q", got)
	}
}

func TestEnumValidation(t *testing.T) {
	if err := MetricType("cpu").Validate(); err == nil {
		t.Fatalf("cpu is not an AI metric type")
	}
	if err := Provider("openai").Validate(); err != nil {
		t.Fatalf("openai must be valid: %v", err)
	}
	if err := ErrorCategory("metric_anomaly").Validate(); err != nil {
		t.Fatalf("metric_anomaly must be valid: %v", err)
	}
	if err := TicketStatus("reopened").Validate(); err != nil {
		t.Fatalf("reopened must be valid: %v", err)
	}
	if !Accuracy.IsScore() || Latency.IsScore() {
		t.Fatalf("unexpected IsScore result")
	}
}

func TestTimeRangeEndingAt(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, err := NewTimeRangeEndingAt(end, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTimeRangeEndingAt() error = %v", err)
	}
	if tr.Duration() != 24*time.Hour || !tr.Contains(end.Add(-time.Hour)) {
		t.Fatalf("unexpected range: %v - %v", tr.Start(), tr.End())
	}
	if _, err := NewTimeRangeEndingAt(end, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}
