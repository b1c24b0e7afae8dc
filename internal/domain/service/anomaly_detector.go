package service

import (
	"container/list"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
	"github.com/dreschagin/reskpoints/pkg/logger"
)

// DetectionMethod - уровень детектора, который пометил значение
type DetectionMethod string

const (
	MethodNone            DetectionMethod = ""
	MethodStatistical     DetectionMethod = "statistical"
	MethodIsolationForest DetectionMethod = "isolation_forest"
)

// DetectorConfig задает параметры двухуровневого детектора
type DetectorConfig struct {
	HistoryCapacity int
	WindowSize      int
	MinHistory      int
	ZThreshold      float64
	ModelMinHistory int
	RetrainEvery    int
	Forest          ForestConfig
	SeriesTTL       time.Duration
	MaxSeries       int
}

// DefaultDetectorConfig возвращает параметры по умолчанию
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		HistoryCapacity: 1000,
		WindowSize:      50,
		MinHistory:      10,
		ZThreshold:      3.0,
		ModelMinHistory: 50,
		RetrainEvery:    100,
		Forest:          DefaultForestConfig(),
		SeriesTTL:       24 * time.Hour,
		MaxSeries:       10000,
	}
}

// DetectorHooks получает события детектора (например, для счетчиков Prometheus)
type DetectorHooks interface {
	AnomalyDetected(key valueobject.SeriesKey, method DetectionMethod)
	DetectorFailed(key valueobject.SeriesKey, err error)
}

// Verdict - результат проверки одного значения
type Verdict struct {
	Anomalous bool
	Method    DetectionMethod
	ZScore    float64
	Score     float64
}

// DetectorStats - снимок счетчиков детектора
type DetectorStats struct {
	Series               int   `json:"series"`
	StatisticalAnomalies int64 `json:"statistical_anomalies"`
	ModelAnomalies       int64 `json:"model_anomalies"`
	Failures             int64 `json:"failures"`
	Evicted              int64 `json:"evicted"`
}

// evictionCandidates - сколько самых старых рядов проверяется на занятость при вытеснении
const evictionCandidates = 8

type seriesState struct {
	mu         sync.Mutex
	history    *ringBuffer
	model      *IsolationForest
	sinceTrain int
	elem       *list.Element // под lruMu детектора
	evicted    atomic.Bool
	lastSeen   atomic.Int64
}

// AnomalyDetector решает для каждого измерения, аномально ли оно относительно истории его ряда.
// Уровень 1: z-score по последним WindowSize значениям. Уровень 2: isolation forest,
// переобучаемый каждые RetrainEvery значений. Ошибки внутри детектора не пробрасываются:
// значение считается нормальным (fail-open), а сбой логируется и учитывается в хуках.
type AnomalyDetector struct {
	cfg    DetectorConfig
	hooks  DetectorHooks
	now    func() time.Time
	logger *logger.Logger

	mu     sync.RWMutex
	series map[valueobject.SeriesKey]*seriesState

	// ключи рядов от недавно использованного к давнему; порядок блокировок: mu, затем lruMu
	lruMu sync.Mutex
	lru   *list.List

	statAnomalies  atomic.Int64
	modelAnomalies atomic.Int64
	failures       atomic.Int64
	evictions      atomic.Int64

	// trainFn подменяется в тестах
	trainFn func([]float64, ForestConfig) (*IsolationForest, error)
}

// NewAnomalyDetector создает детектор. hooks может быть nil.
func NewAnomalyDetector(cfg DetectorConfig, hooks DetectorHooks, now func() time.Time, log *logger.Logger) *AnomalyDetector {
	def := DefaultDetectorConfig()
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = def.HistoryCapacity
	}
	if cfg.WindowSize <= 1 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinHistory <= 1 {
		cfg.MinHistory = def.MinHistory
	}
	if cfg.ZThreshold <= 0 {
		cfg.ZThreshold = def.ZThreshold
	}
	if cfg.ModelMinHistory <= 0 {
		cfg.ModelMinHistory = def.ModelMinHistory
	}
	if cfg.RetrainEvery <= 0 {
		cfg.RetrainEvery = def.RetrainEvery
	}
	if cfg.Forest.Trees <= 0 {
		cfg.Forest = def.Forest
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &AnomalyDetector{
		cfg:     cfg,
		hooks:   hooks,
		now:     now,
		logger:  log,
		series:  make(map[valueobject.SeriesKey]*seriesState),
		lru:     list.New(),
		trainFn: TrainIsolationForest,
	}
}

// Detect добавляет значение в историю ряда и сообщает, аномально ли оно
func (d *AnomalyDetector) Detect(sample *entity.MetricSample) bool {
	return d.Evaluate(sample).Anomalous
}

// Evaluate работает как Detect, но возвращает подробный результат
func (d *AnomalyDetector) Evaluate(sample *entity.MetricSample) (verdict Verdict) {
	if sample == nil {
		return Verdict{}
	}
	key := sample.SeriesKey()

	defer func() {
		if r := recover(); r != nil {
			d.fail(key, fmt.Errorf("anomaly detector panic: %v", r))
			verdict = Verdict{}
		}
	}()

	value := sample.Value().Raw()

	for {
		s := d.getOrCreate(key)
		v, retry, err := d.evaluateSeries(s, value)
		if retry {
			// ряд удален между поиском и блокировкой, берем новый
			continue
		}
		d.touch(s)
		if err != nil {
			d.fail(key, err)
			return Verdict{}
		}
		if v.Anomalous {
			d.record(key, v.Method)
		}
		return v
	}
}

func (d *AnomalyDetector) evaluateSeries(s *seriesState, value float64) (Verdict, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evicted.Load() {
		return Verdict{}, true, nil
	}

	v, err := d.evaluateLocked(s, value)
	s.lastSeen.Store(d.now().UnixNano())
	return v, false, err
}

func (d *AnomalyDetector) evaluateLocked(s *seriesState, value float64) (Verdict, error) {
	s.history.Push(value)
	s.sinceTrain++

	n := s.history.Len()
	if n < d.cfg.MinHistory {
		return Verdict{}, nil
	}

	z, ok := zScore(s.history.Last(d.cfg.WindowSize), value)
	if ok && z > d.cfg.ZThreshold {
		return Verdict{Anomalous: true, Method: MethodStatistical, ZScore: z}, nil
	}

	if n <= d.cfg.ModelMinHistory {
		return Verdict{ZScore: z}, nil
	}

	if s.model == nil || s.sinceTrain >= d.cfg.RetrainEvery {
		training := s.history.Last(n - 1)
		model, err := d.trainFn(training, d.cfg.Forest)
		if err != nil {
			return Verdict{}, fmt.Errorf("failed to train isolation forest: %w", err)
		}
		s.model = model
		s.sinceTrain = 0
	}

	if s.model == nil {
		return Verdict{ZScore: z}, nil
	}

	score := s.model.Score(value)
	if score > s.model.Threshold() {
		return Verdict{Anomalous: true, Method: MethodIsolationForest, ZScore: z, Score: score}, nil
	}
	return Verdict{ZScore: z, Score: score}, nil
}

// zScore считает |value-mean|/stddev по выборочному стандартному отклонению.
// ok=false, если отклонение нулевое.
func zScore(window []float64, value float64) (float64, bool) {
	if len(window) < 2 {
		return 0, false
	}

	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	sq := 0.0
	for _, v := range window {
		sq += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(sq / float64(len(window)-1))
	if stddev == 0 || math.IsNaN(stddev) {
		return 0, false
	}

	return math.Abs(value-mean) / stddev, true
}

func (d *AnomalyDetector) getOrCreate(key valueobject.SeriesKey) *seriesState {
	d.mu.RLock()
	s, ok := d.series[key]
	d.mu.RUnlock()
	if ok {
		return s
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok = d.series[key]; ok {
		return s
	}

	if d.cfg.MaxSeries > 0 && len(d.series) >= d.cfg.MaxSeries {
		d.evictOldestLocked()
	}

	s = &seriesState{history: newRingBuffer(d.cfg.HistoryCapacity)}
	s.lastSeen.Store(d.now().UnixNano())
	d.series[key] = s

	d.lruMu.Lock()
	s.elem = d.lru.PushFront(key)
	d.lruMu.Unlock()
	return s
}

func (d *AnomalyDetector) touch(s *seriesState) {
	d.lruMu.Lock()
	defer d.lruMu.Unlock()
	if s.elem != nil {
		d.lru.MoveToFront(s.elem)
	}
}

// evictOldestLocked удаляет наименее давно использованный свободный ряд среди
// evictionCandidates самых старых. Если все они заняты, удаляется самый старый:
// текущая проверка в нем завершится, но в детектор он уже не вернется. Вызывается под d.mu.
func (d *AnomalyDetector) evictOldestLocked() {
	d.lruMu.Lock()
	defer d.lruMu.Unlock()

	victim := d.lru.Back()
	checked := 0
	for e := d.lru.Back(); e != nil && checked < evictionCandidates; e = e.Prev() {
		checked++
		s := d.series[e.Value.(valueobject.SeriesKey)]
		if s.mu.TryLock() {
			s.evicted.Store(true)
			s.mu.Unlock()
			victim = e
			break
		}
	}
	if victim == nil {
		return
	}

	d.removeLocked(victim)
	d.evictions.Add(1)
}

// removeLocked вызывается под d.mu и d.lruMu
func (d *AnomalyDetector) removeLocked(e *list.Element) {
	key := e.Value.(valueobject.SeriesKey)
	if s, ok := d.series[key]; ok {
		s.evicted.Store(true)
		s.elem = nil
		delete(d.series, key)
	}
	d.lru.Remove(e)
}

// EvictStale удаляет ряды, не получавшие значений дольше SeriesTTL. Возвращает число удаленных.
func (d *AnomalyDetector) EvictStale(now time.Time) int {
	if d.cfg.SeriesTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-d.cfg.SeriesTTL).UnixNano()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lruMu.Lock()
	defer d.lruMu.Unlock()

	removed := 0
	for e := d.lru.Back(); e != nil; {
		prev := e.Prev()
		s := d.series[e.Value.(valueobject.SeriesKey)]
		if s.lastSeen.Load() >= cutoff {
			break
		}
		// занятый ряд активен, пропускаем
		if s.mu.TryLock() {
			if s.lastSeen.Load() < cutoff {
				d.removeLocked(e)
				removed++
			}
			s.mu.Unlock()
		}
		e = prev
	}

	if removed > 0 {
		d.evictions.Add(int64(removed))
		d.logger.Info("Evicted stale anomaly series", "count", removed)
	}
	return removed
}

// History возвращает копию истории ряда в порядке поступления
func (d *AnomalyDetector) History(key valueobject.SeriesKey) []float64 {
	d.mu.RLock()
	s, ok := d.series[key]
	d.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Values()
}

// Stats возвращает снимок счетчиков
func (d *AnomalyDetector) Stats() DetectorStats {
	d.mu.RLock()
	count := len(d.series)
	d.mu.RUnlock()

	return DetectorStats{
		Series:               count,
		StatisticalAnomalies: d.statAnomalies.Load(),
		ModelAnomalies:       d.modelAnomalies.Load(),
		Failures:             d.failures.Load(),
		Evicted:              d.evictions.Load(),
	}
}

func (d *AnomalyDetector) record(key valueobject.SeriesKey, method DetectionMethod) {
	switch method {
	case MethodStatistical:
		d.statAnomalies.Add(1)
	case MethodIsolationForest:
		d.modelAnomalies.Add(1)
	}
	if d.hooks != nil {
		d.hooks.AnomalyDetected(key, method)
	}
}

func (d *AnomalyDetector) fail(key valueobject.SeriesKey, err error) {
	if err == nil {
		err = errors.New("unknown detector failure")
	}
	d.failures.Add(1)
	d.logger.Warn("Anomaly detection failed, treating value as normal",
		"series", key.String(),
		"error", err,
	)
	if d.hooks != nil {
		d.hooks.DetectorFailed(key, err)
	}
}
