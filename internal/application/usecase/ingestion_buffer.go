package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/pkg/logger"
	"github.com/google/uuid"
)

const (
	flushKindMetrics = "metrics"
	flushKindErrors  = "errors"
)

// AnomalyChecker - детектор аномалий, используемый буфером
type AnomalyChecker interface {
	Evaluate(sample *entity.MetricSample) service.Verdict
	EvictStale(now time.Time) int
}

// IngestionConfig задает пороги сброса буферов
type IngestionConfig struct {
	MaxBatchSize  int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
}

// DefaultIngestionConfig возвращает 1000 элементов / 30 секунд
func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		MaxBatchSize:  1000,
		FlushInterval: 30 * time.Second,
		FlushTimeout:  10 * time.Second,
	}
}

// IngestionBuffer принимает измерения и ошибки, проверяет измерения на аномалии
// и периодически сбрасывает накопленное в MetricSink.
// Сброс забирает буфер под блокировкой, а ввод-вывод выполняет уже без нее.
type IngestionBuffer struct {
	cfg       IngestionConfig
	detector  AnomalyChecker
	sink      port.MetricSink
	notifier  port.AlertNotifier
	telemetry port.Telemetry
	clock     port.Clock
	logger    *logger.Logger

	mu      sync.Mutex
	metrics []*entity.MetricSample
	errors  []*entity.ErrorEvent
	stopped bool

	observersMu sync.RWMutex
	observers   []port.ErrorObserver

	loopMu   sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	notifyWG sync.WaitGroup
}

// NewIngestionBuffer создает буфер. notifier и telemetry могут быть nil.
func NewIngestionBuffer(
	cfg IngestionConfig,
	detector AnomalyChecker,
	sink port.MetricSink,
	notifier port.AlertNotifier,
	telemetry port.Telemetry,
	clock port.Clock,
	logger *logger.Logger,
) *IngestionBuffer {
	def := DefaultIngestionConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	if telemetry == nil {
		telemetry = port.NopTelemetry{}
	}
	if clock == nil {
		clock = port.SystemClock{}
	}

	return &IngestionBuffer{
		cfg:       cfg,
		detector:  detector,
		sink:      sink,
		notifier:  notifier,
		telemetry: telemetry,
		clock:     clock,
		logger:    logger,
		metrics:   make([]*entity.MetricSample, 0, cfg.MaxBatchSize),
		errors:    make([]*entity.ErrorEvent, 0, cfg.MaxBatchSize),
	}
}

// AddObserver регистрирует наблюдателя за принятыми ошибками
func (b *IngestionBuffer) AddObserver(o port.ErrorObserver) {
	b.observersMu.Lock()
	defer b.observersMu.Unlock()
	b.observers = append(b.observers, o)
}

// CollectMetric добавляет измерение в буфер и проверяет его на аномалию.
// Аномалия превращается в событие ошибки категории metric_anomaly.
func (b *IngestionBuffer) CollectMetric(ctx context.Context, sample *entity.MetricSample) error {
	if sample == nil {
		return errors.New("sample is required")
	}

	// 1. Добавляем в буфер
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrIngestionStopped
	}
	b.metrics = append(b.metrics, sample)
	var batch []*entity.MetricSample
	if len(b.metrics) >= b.cfg.MaxBatchSize {
		batch = b.takeMetricsLocked()
	}
	b.mu.Unlock()

	b.telemetry.ObserveMetricSubmitted(sample.Type().String(), sample.Provider().String())

	// 2. Проверяем на аномалию
	if b.detector != nil {
		verdict := b.detector.Evaluate(sample)
		if verdict.Anomalous {
			event := b.anomalyEvent(sample, verdict)
			b.logger.Info("Metric anomaly detected",
				"series", sample.SeriesKey().String(),
				"method", string(verdict.Method),
				"value", sample.Value().Raw(),
			)
			if err := b.CollectError(ctx, event); err != nil {
				b.logger.Warn("Failed to submit anomaly event", "error", err)
			}
		}
	}

	// 3. Сбрасываем переполненный буфер
	if batch != nil {
		b.flushMetrics(ctx, batch)
	}

	return nil
}

// CollectError добавляет событие ошибки в буфер.
// Критические ошибки сразу уходят в AlertNotifier (fire-and-forget).
func (b *IngestionBuffer) CollectError(ctx context.Context, event *entity.ErrorEvent) error {
	if event == nil {
		return errors.New("error event is required")
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrIngestionStopped
	}
	b.errors = append(b.errors, event)
	var batch []*entity.ErrorEvent
	if len(b.errors) >= b.cfg.MaxBatchSize {
		batch = b.takeErrorsLocked()
	}
	b.mu.Unlock()

	b.telemetry.ObserveErrorReported(event.Severity.String(), event.Category.String(), event.Provider.String())

	if event.IsCritical() {
		b.notifyCritical(ctx, event)
	}

	b.notifyObservers(ctx, event)

	if batch != nil {
		b.flushErrors(ctx, batch)
	}

	return nil
}

// Start запускает периодический сброс буферов
func (b *IngestionBuffer) Start(ctx context.Context) {
	b.loopMu.Lock()
	defer b.loopMu.Unlock()

	if b.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.loopDone = make(chan struct{})

	go b.run(loopCtx, b.loopDone)

	b.logger.Info("Ingestion buffer started",
		"flush_interval", b.cfg.FlushInterval.String(),
		"max_batch_size", b.cfg.MaxBatchSize,
	)
}

func (b *IngestionBuffer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (b *IngestionBuffer) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Ingestion flush loop panic", fmt.Errorf("%v", r))
		}
	}()

	_ = b.Flush(ctx)

	if b.detector != nil {
		b.detector.EvictStale(b.clock.Now())
	}
}

// Flush сбрасывает оба буфера независимо от их размера
func (b *IngestionBuffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	metrics := b.takeMetricsLocked()
	errs := b.takeErrorsLocked()
	b.mu.Unlock()

	return errors.Join(b.flushMetrics(ctx, metrics), b.flushErrors(ctx, errs))
}

// Stop останавливает периодический сброс и выполняет финальный синхронный сброс.
// После Stop новые данные не принимаются.
func (b *IngestionBuffer) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	b.loopMu.Lock()
	cancel, done := b.cancel, b.loopDone
	b.loopMu.Unlock()

	var loopErr error
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			loopErr = fmt.Errorf("failed to stop ingestion loop: %w", ctx.Err())
		}
	}

	// финальный сброс выполняется и тогда, когда цикл не успел завершиться
	flushErr := b.Flush(ctx)

	waited := make(chan struct{})
	go func() {
		b.notifyWG.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		b.logger.Warn("Pending alert notifications abandoned on shutdown")
	}

	b.logger.Info("Ingestion buffer stopped")
	if flushErr != nil {
		flushErr = fmt.Errorf("final flush failed: %w", flushErr)
	}
	return errors.Join(loopErr, flushErr)
}

// Pending возвращает число измерений и ошибок, ожидающих сброса
func (b *IngestionBuffer) Pending() (metrics, errs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.metrics), len(b.errors)
}

func (b *IngestionBuffer) takeMetricsLocked() []*entity.MetricSample {
	if len(b.metrics) == 0 {
		return nil
	}
	batch := b.metrics
	b.metrics = make([]*entity.MetricSample, 0, b.cfg.MaxBatchSize)
	return batch
}

func (b *IngestionBuffer) takeErrorsLocked() []*entity.ErrorEvent {
	if len(b.errors) == 0 {
		return nil
	}
	batch := b.errors
	b.errors = make([]*entity.ErrorEvent, 0, b.cfg.MaxBatchSize)
	return batch
}

func (b *IngestionBuffer) flushMetrics(ctx context.Context, batch []*entity.MetricSample) error {
	if len(batch) == 0 || b.sink == nil {
		return nil
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.FlushTimeout)
	defer cancel()

	err := b.safeSinkCall(func() error { return b.sink.FlushMetrics(flushCtx, batch) })
	return b.recordFlush(flushKindMetrics, len(batch), err)
}

func (b *IngestionBuffer) flushErrors(ctx context.Context, batch []*entity.ErrorEvent) error {
	if len(batch) == 0 || b.sink == nil {
		return nil
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.FlushTimeout)
	defer cancel()

	err := b.safeSinkCall(func() error { return b.sink.FlushErrors(flushCtx, batch) })
	return b.recordFlush(flushKindErrors, len(batch), err)
}

func (b *IngestionBuffer) safeSinkCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return fn()
}

// recordFlush логирует результат; при ошибке пакет отбрасывается без повтора
func (b *IngestionBuffer) recordFlush(kind string, size int, err error) error {
	if err != nil {
		b.telemetry.ObserveFlush(kind, "error")
		b.telemetry.ObserveDropped(kind, size)
		b.logger.Error("Failed to flush batch, dropping it", err, "kind", kind, "size", size)
		return fmt.Errorf("failed to flush %s: %w", kind, err)
	}

	b.telemetry.ObserveFlush(kind, "ok")
	b.logger.Debug("Flushed batch", "kind", kind, "size", size)
	return nil
}

func (b *IngestionBuffer) notifyCritical(ctx context.Context, event *entity.ErrorEvent) {
	if b.notifier == nil {
		return
	}

	alert := &dto.AlertDTO{
		ID:        uuid.New().String(),
		Timestamp: b.clock.Now(),
		Kind:      dto.AlertKindCriticalError,
		Level:     string(valueobject.SeverityCritical),
		Message:   event.Message,
		Error:     dto.FromErrorEvent(event),
	}

	b.notifyWG.Add(1)
	go func() {
		defer b.notifyWG.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Alert notifier panic", fmt.Errorf("%v", r))
			}
		}()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.FlushTimeout)
		defer cancel()
		b.notifier.Notify(notifyCtx, alert)
	}()
}

func (b *IngestionBuffer) notifyObservers(ctx context.Context, event *entity.ErrorEvent) {
	b.observersMu.RLock()
	observers := append([]port.ErrorObserver(nil), b.observers...)
	b.observersMu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Error observer panic", fmt.Errorf("%v", r), "error_id", event.ID)
				}
			}()
			o.OnError(ctx, event)
		}()
	}
}

func (b *IngestionBuffer) anomalyEvent(sample *entity.MetricSample, verdict service.Verdict) *entity.ErrorEvent {
	return &entity.ErrorEvent{
		ID:        uuid.New().String(),
		Timestamp: b.clock.Now(),
		Severity:  valueobject.SeverityMedium,
		Category:  valueobject.CategoryMetricAnomaly,
		Message:   fmt.Sprintf("Anomalous %s detected: %s", sample.Type(), sample.Value().String()),
		Provider:  sample.Provider(),
		ModelName: sample.ModelName(),
		Endpoint:  sample.Endpoint(),
		UserID:    sample.UserID(),
		ProjectID: sample.ProjectID(),
		SessionID: sample.SessionID(),
		RequestID: sample.RequestID(),
		Tags:      map[string]string{"source": "anomaly_detector"},
		Metadata: map[string]interface{}{
			"anomaly_metric":   sample.ID(),
			"metric_type":      sample.Type().String(),
			"detection_method": string(verdict.Method),
			"z_score":          strconv.FormatFloat(verdict.ZScore, 'f', 3, 64),
		},
	}
}
