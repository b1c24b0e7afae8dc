package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/infrastructure/awsconfig"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

const (
	// CloudWatch limits
	maxMetricsPerRequest = 1000
	maxRetries           = 3
	initialBackoff       = 100 * time.Millisecond
)

type metricDataAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string            // CloudWatch namespace, "ResKPoints" by default
	AWS               awsconfig.Options // Region, endpoint override and credentials
	DefaultDimensions map[string]string // Added to every datum
	BufferSize        int               // Buffer size before auto-flush
	FlushInterval     time.Duration     // Automatic flush interval
	StorageResolution int32             // Storage resolution in seconds (1 or 60)
}

// MetricsPublisher publishes AI usage samples to AWS CloudWatch.
type MetricsPublisher struct {
	client            metricDataAPI
	namespace         string
	defaultDimensions map[string]string
	storageResolution int32
	logger            *logger.Logger

	buffer     []*entity.MetricSample
	bufferSize int
	mu         sync.Mutex

	flushInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

var _ port.MetricsPublisher = (*MetricsPublisher)(nil)

// NewMetricsPublisher creates a CloudWatch metrics publisher and starts its flush loop.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig, log *logger.Logger) (*MetricsPublisher, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "ResKPoints"
	}

	awsCfg, err := awsconfig.Load(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newMetricsPublisher(cloudwatch.NewFromConfig(awsCfg), cfg, log)
	p.start()
	return p, nil
}

func newMetricsPublisher(client metricDataAPI, cfg MetricsPublisherConfig, log *logger.Logger) *MetricsPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.StorageResolution != 1 && cfg.StorageResolution != 60 {
		cfg.StorageResolution = 60
	}

	return &MetricsPublisher{
		client:            client,
		namespace:         cfg.Namespace,
		defaultDimensions: cfg.DefaultDimensions,
		storageResolution: cfg.StorageResolution,
		logger:            log,
		buffer:            make([]*entity.MetricSample, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
		flushInterval:     cfg.FlushInterval,
		stopCh:            make(chan struct{}),
	}
}

func (p *MetricsPublisher) start() {
	p.wg.Add(1)
	go p.flushLoop()
}

// PublishBatch buffers samples and flushes whenever the buffer fills up.
func (p *MetricsPublisher) PublishBatch(ctx context.Context, samples []*entity.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range samples {
		p.buffer = append(p.buffer, s)

		if len(p.buffer) >= p.bufferSize {
			if err := p.flushBufferLocked(ctx); err != nil {
				return fmt.Errorf("failed to flush buffer: %w", err)
			}
		}
	}

	return nil
}

// PublishSingle publishes one sample immediately without buffering.
func (p *MetricsPublisher) PublishSingle(ctx context.Context, sample *entity.MetricSample) error {
	if sample == nil {
		return fmt.Errorf("sample cannot be nil")
	}
	return p.publishBatchWithRetry(ctx, []types.MetricDatum{p.convertToDatum(sample)})
}

// Flush forces immediate publication of all buffered samples.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushBufferLocked(ctx)
}

// Close stops the background flush goroutine and flushes remaining samples.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn("CloudWatch metrics flush failed, will retry on next tick", "error", err)
			}
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// flushBufferLocked keeps the buffer on failure so the next tick retries it.
func (p *MetricsPublisher) flushBufferLocked(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	data := make([]types.MetricDatum, 0, len(p.buffer))
	for _, s := range p.buffer {
		data = append(data, p.convertToDatum(s))
	}

	for i := 0; i < len(data); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(data) {
			end = len(data)
		}

		if err := p.publishBatchWithRetry(ctx, data[i:end]); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	p.buffer = p.buffer[:0]
	return nil
}

func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		})
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// convertToDatum maps a sample to a datum named after its metric type
// with Provider and Model dimensions.
func (p *MetricsPublisher) convertToDatum(s *entity.MetricSample) types.MetricDatum {
	dimensions := make([]types.Dimension, 0, len(p.defaultDimensions)+3)

	for key, value := range p.defaultDimensions {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(value),
		})
	}

	dimensions = append(dimensions,
		types.Dimension{Name: aws.String("Provider"), Value: aws.String(s.Provider().String())},
		types.Dimension{Name: aws.String("Model"), Value: aws.String(s.ModelName())},
	)
	if s.Endpoint() != "" {
		dimensions = append(dimensions, types.Dimension{Name: aws.String("Endpoint"), Value: aws.String(s.Endpoint())})
	}

	datum := types.MetricDatum{
		MetricName: aws.String(s.Type().String()),
		Value:      aws.Float64(s.Value().Raw()),
		Unit:       mapUnit(s.Value().Unit()),
		Timestamp:  aws.Time(s.Timestamp()),
		Dimensions: dimensions,
	}

	if p.storageResolution > 0 {
		datum.StorageResolution = aws.Int32(p.storageResolution)
	}

	return datum
}

// mapUnit maps sample units to CloudWatch StandardUnit.
func mapUnit(unit string) types.StandardUnit {
	switch unit {
	case "%", "percent":
		return types.StandardUnitPercent
	case "ms":
		return types.StandardUnitMilliseconds
	case "s":
		return types.StandardUnitSeconds
	case "tokens", "count", "requests":
		return types.StandardUnitCount
	case "rps", "requests/s", "tokens/s":
		return types.StandardUnitCountSecond
	case "bytes":
		return types.StandardUnitBytes
	default:
		return types.StandardUnitNone
	}
}
