package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/pkg/logger"
	"github.com/google/uuid"
)

// MaxMetricBatch ограничивает размер одного пакета измерений
const MaxMetricBatch = 1000

// TicketQuery - параметры выборки тикетов
type TicketQuery struct {
	Status   string
	Priority string
	Assignee string
	Limit    int
}

// SubmissionService - граница системы: проверяет входные данные и передает их в ядро.
// Все ошибки возвращаются как *Error.
type SubmissionService struct {
	ingestion    *IngestionBuffer
	lifecycle    *TicketLifecycle
	modelMetrics *GetModelMetricsUseCase
	validator    *service.SubmissionValidator
	clock        port.Clock
	logger       *logger.Logger
}

// NewSubmissionService создает границу системы
func NewSubmissionService(
	ingestion *IngestionBuffer,
	lifecycle *TicketLifecycle,
	modelMetrics *GetModelMetricsUseCase,
	validator *service.SubmissionValidator,
	clock port.Clock,
	logger *logger.Logger,
) *SubmissionService {
	if clock == nil {
		clock = port.SystemClock{}
	}
	if validator == nil {
		validator = service.NewSubmissionValidator(5*time.Minute, clock.Now)
	}
	return &SubmissionService{
		ingestion:    ingestion,
		lifecycle:    lifecycle,
		modelMetrics: modelMetrics,
		validator:    validator,
		clock:        clock,
		logger:       logger,
	}
}

// SubmitMetric принимает одно измерение
func (s *SubmissionService) SubmitMetric(ctx context.Context, req dto.MetricRequest) (*dto.MetricDTO, error) {
	sample, err := s.buildSample(req)
	if err != nil {
		return nil, classify(err, "invalid metric")
	}

	if err := s.ingestion.CollectMetric(ctx, sample); err != nil {
		return nil, classify(err, "failed to collect metric")
	}

	return dto.FromEntity(sample), nil
}

// SubmitMetrics принимает пакет измерений. Пакет проверяется целиком до приема первого измерения.
func (s *SubmissionService) SubmitMetrics(ctx context.Context, reqs []dto.MetricRequest) (*dto.SubmissionDTO, error) {
	if len(reqs) == 0 {
		return nil, &Error{Kind: KindValidation, Message: "metrics: at least one metric is required"}
	}
	if len(reqs) > MaxMetricBatch {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("metrics: batch exceeds %d items", MaxMetricBatch)}
	}

	samples := make([]*entity.MetricSample, 0, len(reqs))
	for i, req := range reqs {
		sample, err := s.buildSample(req)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("metrics[%d]: %v", i, err), Err: err}
		}
		samples = append(samples, sample)
	}

	result := &dto.SubmissionDTO{IDs: make([]string, 0, len(samples))}
	for _, sample := range samples {
		if err := s.ingestion.CollectMetric(ctx, sample); err != nil {
			return result, classify(err, "failed to collect metric")
		}
		result.Accepted++
		result.IDs = append(result.IDs, sample.ID())
	}

	return result, nil
}

// SubmitError принимает событие ошибки
func (s *SubmissionService) SubmitError(ctx context.Context, req dto.ErrorRequest) (*dto.ErrorDTO, error) {
	event := &entity.ErrorEvent{
		ID:            uuid.New().String(),
		Timestamp:     s.clock.Now(),
		Severity:      valueobject.Severity(strings.ToLower(strings.TrimSpace(req.Severity))),
		Category:      valueobject.ErrorCategory(strings.ToLower(strings.TrimSpace(req.Category))),
		Message:       req.Message,
		Code:          req.Code,
		Details:       req.Details,
		Provider:      valueobject.Provider(strings.ToLower(strings.TrimSpace(req.Provider))),
		ModelName:     req.ModelName,
		Endpoint:      req.Endpoint,
		UserID:        req.UserID,
		ProjectID:     req.ProjectID,
		SessionID:     req.SessionID,
		RequestID:     req.RequestID,
		StackTrace:    req.StackTrace,
		CorrelationID: req.CorrelationID,
		Tags:          req.Tags,
	}
	if req.Timestamp != nil {
		event.Timestamp = req.Timestamp.UTC()
	}
	if event.Category == "" {
		event.Category = valueobject.CategoryUnknown
	}

	if err := s.validator.ValidateError(event); err != nil {
		return nil, classify(err, "invalid error event")
	}

	if err := s.ingestion.CollectError(ctx, event); err != nil {
		return nil, classify(err, "failed to collect error")
	}

	return dto.FromErrorEvent(event), nil
}

// SubmitTicket создает тикет вручную
func (s *SubmissionService) SubmitTicket(ctx context.Context, req dto.TicketRequest) (*dto.TicketDTO, error) {
	in := service.TicketInput{
		Title:    req.Title,
		Priority: valueobject.TicketPriority(strings.ToLower(req.Priority)),
		Severity: valueobject.Severity(strings.ToLower(req.Severity)),
		Category: valueobject.TicketCategory(strings.ToLower(req.Category)),
	}
	if err := s.validator.ValidateTicket(in); err != nil {
		return nil, classify(err, "invalid ticket")
	}

	provider := valueobject.Provider(strings.ToLower(req.Provider))
	if provider != "" {
		if err := provider.Validate(); err != nil {
			return nil, &Error{Kind: KindValidation, Message: "provider: " + err.Error(), Err: err}
		}
	}

	ticket, err := s.lifecycle.SubmitTicket(ctx, NewTicket{
		Title:       in.Title,
		Description: req.Description,
		Priority:    in.Priority,
		Severity:    in.Severity,
		Category:    in.Category,
		AssigneeID:  req.AssigneeID,
		ReporterID:  req.ReporterID,
		Provider:    provider,
		ModelName:   req.ModelName,
		ErrorIDs:    req.ErrorIDs,
		Tags:        req.Tags,
	})
	if err != nil {
		return nil, classify(err, "failed to create ticket")
	}

	return dto.FromTicket(ticket, s.clock.Now()), nil
}

// UpdateTicketStatus меняет статус тикета
func (s *SubmissionService) UpdateTicketStatus(ctx context.Context, id string, req dto.StatusUpdateRequest) (*dto.TicketDTO, error) {
	status := valueobject.TicketStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err := s.validator.ValidateStatusChange(id, status, req.Actor); err != nil {
		return nil, classify(err, "invalid status update")
	}

	ticket, err := s.lifecycle.UpdateStatus(ctx, id, status, req.Actor, req.Notes)
	if err != nil {
		return nil, classify(err, "failed to update ticket")
	}

	return dto.FromTicket(ticket, s.clock.Now()), nil
}

// GetTicket возвращает тикет
func (s *SubmissionService) GetTicket(ctx context.Context, id string) (*dto.TicketDTO, error) {
	ticket, err := s.lifecycle.GetTicket(ctx, id)
	if err != nil {
		return nil, classify(err, "failed to load ticket")
	}
	return dto.FromTicket(ticket, s.clock.Now()), nil
}

// ListTickets возвращает тикеты по фильтру
func (s *SubmissionService) ListTickets(ctx context.Context, q TicketQuery) ([]*dto.TicketDTO, error) {
	filter := repository.TicketFilter{
		Status:   valueobject.TicketStatus(strings.ToLower(q.Status)),
		Priority: valueobject.TicketPriority(strings.ToLower(q.Priority)),
		Assignee: q.Assignee,
		Limit:    q.Limit,
	}
	if filter.Status != "" {
		if err := filter.Status.Validate(); err != nil {
			return nil, &Error{Kind: KindValidation, Message: "status: " + err.Error(), Err: err}
		}
	}
	if filter.Priority != "" {
		if err := filter.Priority.Validate(); err != nil {
			return nil, &Error{Kind: KindValidation, Message: "priority: " + err.Error(), Err: err}
		}
	}
	if filter.Limit < 0 {
		return nil, &Error{Kind: KindValidation, Message: "limit: cannot be negative"}
	}

	tickets, err := s.lifecycle.ListTickets(ctx, filter)
	if err != nil {
		return nil, classify(err, "failed to list tickets")
	}
	return dto.ToTicketDTOs(tickets, s.clock.Now()), nil
}

// GetTicketMetrics возвращает сводку по тикетам
func (s *SubmissionService) GetTicketMetrics(ctx context.Context) (*dto.TicketMetricsDTO, error) {
	metrics, err := s.lifecycle.GetMetrics(ctx)
	if err != nil {
		return nil, classify(err, "failed to compute ticket metrics")
	}
	return metrics, nil
}

// GetModelMetrics возвращает отчет по модели за окно
func (s *SubmissionService) GetModelMetrics(ctx context.Context, provider, model string, window time.Duration) (*dto.ModelMetricsDTO, error) {
	p := valueobject.Provider(strings.ToLower(provider))
	if err := p.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Message: "provider: " + err.Error(), Err: err}
	}
	if strings.TrimSpace(model) == "" {
		return nil, &Error{Kind: KindValidation, Message: "model: is required"}
	}
	if window < 0 {
		return nil, &Error{Kind: KindValidation, Message: "window: must be positive"}
	}
	if s.modelMetrics == nil {
		return nil, &Error{Kind: KindUnavailable, Message: "model metrics are not configured"}
	}

	report, err := s.modelMetrics.Execute(ctx, p, model, window)
	if err != nil {
		return nil, classify(err, "failed to build model metrics")
	}
	return report, nil
}

func (s *SubmissionService) buildSample(req dto.MetricRequest) (*entity.MetricSample, error) {
	ts := s.clock.Now()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	in := service.MetricInput{
		MetricType: valueobject.MetricType(strings.ToLower(strings.TrimSpace(req.MetricType))),
		Value:      req.Value,
		Unit:       req.Unit,
		Provider:   valueobject.Provider(strings.ToLower(strings.TrimSpace(req.Provider))),
		ModelName:  strings.TrimSpace(req.ModelName),
		Timestamp:  ts,
	}
	if err := s.validator.ValidateMetric(in); err != nil {
		return nil, err
	}

	value, err := valueobject.NewMetricValue(in.Value, in.Unit)
	if err != nil {
		return nil, &service.ValidationError{Field: "value", Message: err.Error()}
	}

	sample, err := entity.NewMetricSample(entity.MetricSampleParams{
		Timestamp:  ts,
		MetricType: in.MetricType,
		Value:      value,
		Provider:   in.Provider,
		ModelName:  in.ModelName,
		ModelSize:  req.ModelSize,
		Endpoint:   req.Endpoint,
		UserID:     req.UserID,
		ProjectID:  req.ProjectID,
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
		Tags:       req.Tags,
	})
	if err != nil {
		return nil, &service.ValidationError{Message: err.Error()}
	}
	return sample, nil
}
