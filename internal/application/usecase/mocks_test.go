package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dreschagin/reskpoints/internal/application/dto"
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/entity"
	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu           sync.Mutex
	metricCalls  [][]*entity.MetricSample
	errorCalls   [][]*entity.ErrorEvent
	err          error
	block        chan struct{}
	flushStarted chan struct{}
}

func (s *recordingSink) FlushMetrics(_ context.Context, batch []*entity.MetricSample) error {
	if s.flushStarted != nil {
		s.flushStarted <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricCalls = append(s.metricCalls, batch)
	return s.err
}

func (s *recordingSink) FlushErrors(_ context.Context, batch []*entity.ErrorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCalls = append(s.errorCalls, batch)
	return s.err
}

func (s *recordingSink) metricCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.metricCalls {
		n += len(b)
	}
	return n
}

func (s *recordingSink) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.errorCalls {
		n += len(b)
	}
	return n
}

type recordingNotifier struct {
	alerts chan *dto.AlertDTO
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{alerts: make(chan *dto.AlertDTO, 100)}
}

func (n *recordingNotifier) Notify(_ context.Context, alert *dto.AlertDTO) {
	n.alerts <- alert
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*dto.TicketEventDTO
}

func (r *recordingEvents) PublishTicketEvent(_ context.Context, event *dto.TicketEventDTO) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	events []*entity.ErrorEvent
}

func (o *recordingObserver) OnError(_ context.Context, event *entity.ErrorEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

type stubDetector struct {
	mu        sync.Mutex
	anomalous func(*entity.MetricSample) bool
	seen      int
	evictions int
}

func (d *stubDetector) Evaluate(sample *entity.MetricSample) service.Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen++
	if d.anomalous != nil && d.anomalous(sample) {
		return service.Verdict{Anomalous: true, Method: service.MethodStatistical, ZScore: 4.2}
	}
	return service.Verdict{}
}

func (d *stubDetector) EvictStale(time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictions++
	return 0
}

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	gets    int
	hits    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.data[key]
	if !ok {
		return port.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, 0)
}

func (c *fakeCache) SetWithTTL(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.data, key)
	return nil
}

func (c *fakeCache) DeletePattern(context.Context, string) error {
	return nil
}

func (c *fakeCache) Close() error {
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// memTicketRepo - потокобезопасное хранилище тикетов для тестов
type memTicketRepo struct {
	mu        sync.Mutex
	tickets   map[string]*entity.Ticket
	listCalls int
	listErr   error
	updateErr map[string]error
	onList    func()
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]*entity.Ticket), updateErr: make(map[string]error)}
}

func (r *memTicketRepo) Create(_ context.Context, t *entity.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.ID] = t.Clone()
	return nil
}

func (r *memTicketRepo) FindByID(_ context.Context, id string) (*entity.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (r *memTicketRepo) Update(_ context.Context, id string, fn func(*entity.Ticket) error) (*entity.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErr[id]; err != nil {
		return nil, err
	}
	t, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	working := t.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	r.tickets[id] = working
	return working.Clone(), nil
}

func (r *memTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]*entity.Ticket, error) {
	if r.onList != nil {
		r.onList()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*entity.Ticket
	for _, t := range r.tickets {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memTicketRepo) ListOpen(_ context.Context) ([]*entity.Ticket, error) {
	if r.onList != nil {
		r.onList()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*entity.Ticket
	for _, t := range r.tickets {
		if t.Status != valueobject.StatusClosed {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *memTicketRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickets)
}

func (r *memTicketRepo) all() []*entity.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Ticket
	for _, t := range r.tickets {
		out = append(out, t.Clone())
	}
	return out
}

type fakeReportRepo struct {
	calls  int
	err    error
	report *entity.ModelMetricsReport
}

func (r *fakeReportRepo) ModelMetrics(
	_ context.Context,
	provider valueobject.Provider,
	model string,
	timeRange valueobject.TimeRange,
) (*entity.ModelMetricsReport, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	report := *r.report
	report.Provider = provider
	report.ModelName = model
	report.WindowStart = timeRange.Start()
	report.WindowEnd = timeRange.End()
	return &report, nil
}

var errSinkDown = errors.New("sink is down")
