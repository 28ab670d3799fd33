package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Covenant/internal/domain"
	"github.com/shaiso/Covenant/internal/durable"
	"github.com/shaiso/Covenant/internal/entity"
	"github.com/shaiso/Covenant/internal/telemetry"
)

// switchActivities serves a configurable activity result and counts calls.
type switchActivities struct {
	mu    sync.Mutex
	calls int
	mode  atomic.Int32 // 0 = success, 1 = managed error, 2 = unmanaged error
}

type unmanagedErr struct{ msg string }

func (e unmanagedErr) Error() string { return e.msg }

func (s *switchActivities) Invoke(_ context.Context, name string, _ map[string]any) (map[string]any, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	switch s.mode.Load() {
	case 1:
		return map[string]any{"error_type": "empty_diff", "message": "no change detected"}, nil
	case 2:
		return nil, unmanagedErr{"connection refused"}
	default:
		return map[string]any{"result": name}, nil
	}
}

func (s *switchActivities) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// harness bundles a saga, entity host and durable runtime over memory stores.
type harness struct {
	saga       *Saga
	runtime    *durable.Runtime
	host       *entity.Host
	store      entity.Store
	activities *switchActivities
}

func newHarness(configs map[domain.WorkflowType]domain.WorkflowConfig) *harness {
	logger := slog.New(slog.DiscardHandler)
	store := entity.NewMemoryStore()
	host := entity.NewHost(entity.HostConfig{Store: store, Logger: logger})
	activities := &switchActivities{}

	rt := durable.New(durable.Config{
		Entities:   host,
		Activities: activities,
		Logger:     logger,
	})

	return &harness{
		saga:       New(Config{Configs: configs, Logger: logger}),
		runtime:    rt,
		host:       host,
		store:      store,
		activities: activities,
	}
}

// runTask starts one saga instance and waits for its terminal state.
func (h *harness) runTask(t *testing.T, wt domain.WorkflowType) durable.InstanceInfo {
	t.Helper()
	id := h.startTask(t, wt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := h.runtime.Await(ctx, id)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	return info
}

// startTask starts one saga instance without waiting.
func (h *harness) startTask(t *testing.T, wt domain.WorkflowType) uuid.UUID {
	t.Helper()
	id := uuid.New()
	data := domain.OrchData{TaskID: id, WorkflowType: wt, Company: "acme", Policy: "privacy"}

	if err := h.runtime.Start(context.Background(), id, string(wt), h.saga.Orchestrate, data.ToMap()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return id
}

func (h *harness) breakerState(t *testing.T, wt domain.WorkflowType) domain.CircuitBreakerState {
	t.Helper()
	raw, err := h.store.Get(context.Background(), entity.EntityCircuitBreaker, string(wt))
	if err != nil {
		t.Fatalf("get breaker state: %v", err)
	}
	if raw == nil {
		return domain.NewCircuitBreakerState()
	}
	var s domain.CircuitBreakerState
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decode breaker state: %v", err)
	}
	return s
}

func (h *harness) waitSuspended(t *testing.T, ids []uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for _, id := range ids {
		for {
			info, err := h.runtime.Get(context.Background(), id)
			if err == nil && info.Status == durable.InstanceSuspended {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("instance %s did not suspend", id)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func fastConfigs(wt domain.WorkflowType, rpm, maxAttempts int, period time.Duration) map[domain.WorkflowType]domain.WorkflowConfig {
	return map[domain.WorkflowType]domain.WorkflowConfig{
		wt: {
			RateLimitRPM:    rpm,
			RateLimitPeriod: period,
			ThrottleDelay:   period + period/5,
			ProcessorName:   "test_processor",
			MaxAttempts:     maxAttempts,
			RetryDelay:      time.Millisecond,
		},
	}
}

func parseSagaError(t *testing.T, raw string) Error {
	t.Helper()
	var e Error
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("instance error is not the expected JSON (%q): %v", raw, err)
	}
	return e
}

func TestSaga_Success(t *testing.T) {
	h := newHarness(fastConfigs(domain.WorkflowJudge, 100, 3, time.Minute))

	info := h.runTask(t, domain.WorkflowJudge)

	if info.Status != durable.InstanceSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED (error: %s)", info.Status, info.Error)
	}
	if h.activities.count() != 1 {
		t.Errorf("activity calls = %d, want 1", h.activities.count())
	}
	if s := h.breakerState(t, domain.WorkflowJudge); s.Strikes != domain.InitialStrikes {
		t.Errorf("strikes = %d, success must not consume strikes", s.Strikes)
	}
}

func TestSaga_ManagedErrorRetriesThenTrips(t *testing.T) {
	h := newHarness(fastConfigs(domain.WorkflowJudge, 100, 3, time.Minute))
	h.activities.mode.Store(1)

	tripsBefore := testutil.ToFloat64(telemetry.CircuitTrips.WithLabelValues("judge"))

	info := h.runTask(t, domain.WorkflowJudge)

	if info.Status != durable.InstanceFailed {
		t.Fatalf("status = %s, want FAILED", info.Status)
	}
	// Every attempt runs the activity; the bound is MaxAttempts.
	if h.activities.count() != 3 {
		t.Errorf("activity calls = %d, want 3", h.activities.count())
	}

	e := parseSagaError(t, info.Error)
	if e.ErrorType != "empty_diff" {
		t.Errorf("error_type = %q, want the managed type from the activity", e.ErrorType)
	}
	if e.Message != "no change detected" {
		t.Errorf("message = %q, want the activity message", e.Message)
	}
	if e.WorkflowType != "judge" {
		t.Errorf("workflow_type = %q, want judge", e.WorkflowType)
	}
	if len(e.Stack) == 0 {
		t.Error("stack should not be empty")
	}

	// Exactly one trip per failed saga, not one per attempt.
	if s := h.breakerState(t, domain.WorkflowJudge); s.Strikes != domain.InitialStrikes-1 {
		t.Errorf("strikes = %d, want %d (single trip)", s.Strikes, domain.InitialStrikes-1)
	}
	tripsAfter := testutil.ToFloat64(telemetry.CircuitTrips.WithLabelValues("judge"))
	if delta := tripsAfter - tripsBefore; delta != 1 {
		t.Errorf("trip metric delta = %v, want 1", delta)
	}
}

func TestSaga_UnmanagedErrorFailsWithoutRetry(t *testing.T) {
	h := newHarness(fastConfigs(domain.WorkflowJudge, 100, 3, time.Minute))
	h.activities.mode.Store(2)

	info := h.runTask(t, domain.WorkflowJudge)

	if info.Status != durable.InstanceFailed {
		t.Fatalf("status = %s, want FAILED", info.Status)
	}
	// Unmanaged failure is terminal on the first attempt.
	if h.activities.count() != 1 {
		t.Errorf("activity calls = %d, want 1 (no retries)", h.activities.count())
	}

	e := parseSagaError(t, info.Error)
	if e.ErrorType != ErrTypeUnmanaged {
		t.Errorf("error_type = %q, want %q", e.ErrorType, ErrTypeUnmanaged)
	}

	if s := h.breakerState(t, domain.WorkflowJudge); s.Strikes != domain.InitialStrikes-1 {
		t.Errorf("strikes = %d, want %d", s.Strikes, domain.InitialStrikes-1)
	}
}

func TestSaga_WorkflowTypeIsolation(t *testing.T) {
	configs := fastConfigs(domain.WorkflowJudge, 100, 1, time.Minute)
	configs[domain.WorkflowMeta] = configs[domain.WorkflowJudge]
	h := newHarness(configs)

	// Open the judge breaker with three failing sagas.
	h.activities.mode.Store(2)
	for i := 0; i < domain.InitialStrikes; i++ {
		info := h.runTask(t, domain.WorkflowJudge)
		if info.Status != durable.InstanceFailed {
			t.Fatalf("saga %d status = %s, want FAILED", i, info.Status)
		}
	}
	if s := h.breakerState(t, domain.WorkflowJudge); !s.IsOpen {
		t.Fatal("judge breaker should be open")
	}

	// Meta tasks keep flowing: breakers are per workflow type.
	h.activities.mode.Store(0)
	info := h.runTask(t, domain.WorkflowMeta)
	if info.Status != durable.InstanceSucceeded {
		t.Errorf("meta status = %s, want SUCCEEDED (error: %s)", info.Status, info.Error)
	}
	if s := h.breakerState(t, domain.WorkflowMeta); s.IsOpen {
		t.Error("meta breaker must not be affected by judge failures")
	}

	// A judge task suspends instead of running.
	id := h.startTask(t, domain.WorkflowJudge)
	h.waitSuspended(t, []uuid.UUID{id})
}

func TestSaga_ThrottlingBounds(t *testing.T) {
	// rpm=3 with a real refill period: nine sequential tasks drain the
	// bucket twice, so exactly two throttle episodes occur.
	h := newHarness(fastConfigs(domain.WorkflowSummarizer, 3, 1, 500*time.Millisecond))

	throttledBefore := testutil.ToFloat64(telemetry.ThrottleEvents)

	for i := 0; i < 9; i++ {
		info := h.runTask(t, domain.WorkflowSummarizer)
		if info.Status != durable.InstanceSucceeded {
			t.Fatalf("task %d status = %s, want SUCCEEDED (error: %s)", i, info.Status, info.Error)
		}
	}

	if h.activities.count() != 9 {
		t.Errorf("activity calls = %d, want 9 (throttling delays, never drops)", h.activities.count())
	}

	throttledAfter := testutil.ToFloat64(telemetry.ThrottleEvents)
	if delta := throttledAfter - throttledBefore; delta != 2 {
		t.Errorf("throttle episodes = %v, want 2 (tasks 4 and 7)", delta)
	}
}

func TestSaga_CircuitRejectionAndReset(t *testing.T) {
	h := newHarness(fastConfigs(domain.WorkflowScraper, 100, 1, time.Minute))

	rejectionsBefore := testutil.ToFloat64(telemetry.CircuitRejections.WithLabelValues("scraper"))

	// Two healthy tasks.
	for i := 0; i < 2; i++ {
		if info := h.runTask(t, domain.WorkflowScraper); info.Status != durable.InstanceSucceeded {
			t.Fatalf("task %d status = %s, want SUCCEEDED", i, info.Status)
		}
	}

	// Three failures open the breaker.
	h.activities.mode.Store(2)
	for i := 0; i < domain.InitialStrikes; i++ {
		if info := h.runTask(t, domain.WorkflowScraper); info.Status != durable.InstanceFailed {
			t.Fatalf("failing task %d status = %s, want FAILED", i, info.Status)
		}
	}
	if s := h.breakerState(t, domain.WorkflowScraper); !s.IsOpen {
		t.Fatal("breaker should be open after three trips")
	}

	// Five more tasks are rejected: suspended, no activity call.
	callsBefore := h.activities.count()
	var suspended []uuid.UUID
	for i := 0; i < 5; i++ {
		suspended = append(suspended, h.startTask(t, domain.WorkflowScraper))
	}
	h.waitSuspended(t, suspended)

	if h.activities.count() != callsBefore {
		t.Errorf("activity calls grew by %d while circuit open, want 0", h.activities.count()-callsBefore)
	}
	rejectionsMid := testutil.ToFloat64(telemetry.CircuitRejections.WithLabelValues("scraper"))
	if delta := rejectionsMid - rejectionsBefore; delta != 5 {
		t.Errorf("rejections = %v, want 5", delta)
	}

	// Operator reset resumes every suspended instance.
	h.activities.mode.Store(0)
	controller := NewController(ControllerConfig{
		Entities: h.host,
		States:   h.store,
		Notifier: h.runtime,
		Logger:   slog.New(slog.DiscardHandler),
	})

	resumed, err := controller.ResetCircuit(context.Background(), domain.WorkflowScraper)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if resumed != 5 {
		t.Errorf("resumed = %d, want 5", resumed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, id := range suspended {
		info, err := h.runtime.Await(ctx, id)
		if err != nil {
			t.Fatalf("await %s: %v", id, err)
		}
		if info.Status != durable.InstanceSucceeded {
			t.Errorf("resumed instance status = %s, want SUCCEEDED (error: %s)", info.Status, info.Error)
		}
	}

	// Resuming does not count new rejections.
	rejectionsAfter := testutil.ToFloat64(telemetry.CircuitRejections.WithLabelValues("scraper"))
	if rejectionsAfter != rejectionsMid {
		t.Errorf("rejections changed from %v to %v during reset", rejectionsMid, rejectionsAfter)
	}

	if s := h.breakerState(t, domain.WorkflowScraper); s.Strikes != domain.InitialStrikes {
		t.Errorf("strikes = %d, want %d after reset", s.Strikes, domain.InitialStrikes)
	}
}

func TestSaga_InvalidInput(t *testing.T) {
	h := newHarness(fastConfigs(domain.WorkflowJudge, 100, 3, time.Minute))

	id := uuid.New()
	if err := h.runtime.Start(context.Background(), id, "judge", h.saga.Orchestrate,
		map[string]string{"workflow_type": "judge"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := h.runtime.Await(ctx, id)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if info.Status != durable.InstanceFailed {
		t.Fatalf("status = %s, want FAILED", info.Status)
	}

	e := parseSagaError(t, info.Error)
	if e.ErrorType != ErrTypeInvalidInput {
		t.Errorf("error_type = %q, want %q", e.ErrorType, ErrTypeInvalidInput)
	}
	if h.activities.count() != 0 {
		t.Errorf("activity calls = %d, invalid input must not reach the processor", h.activities.count())
	}
}

// blockedActivities holds every invocation until the host context is
// cancelled, simulating an activity caught by process shutdown.
type blockedActivities struct {
	started chan struct{}
}

func (b *blockedActivities) Invoke(ctx context.Context, _ string, _ map[string]any) (map[string]any, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSaga_ShutdownDoesNotTripCircuit(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := entity.NewMemoryStore()
	host := entity.NewHost(entity.HostConfig{Store: store, Logger: logger})
	blocking := &blockedActivities{started: make(chan struct{}, 1)}
	instances := durable.NewMemoryInstanceStore()

	rt := durable.New(durable.Config{
		Store:      instances,
		Entities:   host,
		Activities: blocking,
		Logger:     logger,
	})
	saga := New(Config{Configs: fastConfigs(domain.WorkflowMeta, 10, 3, time.Minute), Logger: logger})

	id := uuid.New()
	data := domain.OrchData{TaskID: id, WorkflowType: domain.WorkflowMeta, Company: "acme", Policy: "privacy"}

	hostCtx, shutdown := context.WithCancel(context.Background())
	if err := rt.Start(hostCtx, id, string(domain.WorkflowMeta), saga.Orchestrate, data.ToMap()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	<-blocking.started
	shutdown()
	rt.Wait()

	// The instance survives the shutdown as non-terminal.
	rec, err := instances.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status.IsTerminal() {
		t.Fatalf("status after shutdown = %s, want non-terminal", rec.Status)
	}
	if rec.Error != "" {
		t.Errorf("error after shutdown = %q, want empty", rec.Error)
	}

	// The breaker keeps all its strikes: an interrupted activity is not a failure.
	raw, err := store.Get(context.Background(), entity.EntityCircuitBreaker, string(domain.WorkflowMeta))
	if err != nil {
		t.Fatalf("get breaker state: %v", err)
	}
	if raw != nil {
		var s domain.CircuitBreakerState
		if err := json.Unmarshal(raw, &s); err != nil {
			t.Fatalf("decode breaker state: %v", err)
		}
		if s.Strikes != domain.InitialStrikes || s.IsOpen {
			t.Errorf("breaker = %+v, shutdown must not trip it", s)
		}
	}
}
