package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/formpulse/formpulse/internal/audit"
	"github.com/formpulse/formpulse/internal/config"
	"github.com/formpulse/formpulse/internal/domain"
	"github.com/formpulse/formpulse/internal/health"
)

// --- Mock implementations ---

type mockAppService struct {
	createFn       func(ctx context.Context, totalPages int, meta domain.ClientMeta) (*domain.Session, error)
	saveProgressFn func(ctx context.Context, id uuid.UUID, page int, partial domain.Answers) (*domain.Session, error)
	getStatusFn    func(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	submitFn       func(ctx context.Context, id uuid.UUID) (*domain.FinalizedSubmission, error)
	abandonFn      func(ctx context.Context, id uuid.UUID) error
	statsFn        func(ctx context.Context) (*domain.SessionStats, error)
}

func (m *mockAppService) CreateSession(ctx context.Context, totalPages int, meta domain.ClientMeta) (*domain.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, totalPages, meta)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockAppService) SaveProgress(ctx context.Context, id uuid.UUID, page int, partial domain.Answers) (*domain.Session, error) {
	if m.saveProgressFn != nil {
		return m.saveProgressFn(ctx, id, page, partial)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockAppService) GetStatus(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if m.getStatusFn != nil {
		return m.getStatusFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockAppService) Submit(ctx context.Context, id uuid.UUID) (*domain.FinalizedSubmission, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockAppService) Abandon(ctx context.Context, id uuid.UUID) error {
	if m.abandonFn != nil {
		return m.abandonFn(ctx, id)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockAppService) Stats(ctx context.Context) (*domain.SessionStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockTrail struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *mockTrail) LogEvent(e audit.Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
}

func (m *mockTrail) Recent() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// --- Helpers ---

func healthyProbe(name string) health.Probe {
	return health.Probe{
		Name: name,
		Check: func(_ context.Context) (health.Status, string) {
			return health.StatusHealthy, ""
		},
	}
}

func probeWith(name string, status health.Status) health.Probe {
	return health.Probe{
		Name: name,
		Check: func(_ context.Context) (health.Status, string) {
			return status, "simulated"
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:            "test",
		Port:              "8080",
		SurveyTotalPages:  5,
		RetryAfterSeconds: 5,
		RatePerSecond:     1000,
		RateBurst:         1000,
	}
}

type serverOption func(*testServerParams)

type testServerParams struct {
	probes []health.Probe
	trail  *mockTrail
}

func withProbes(probes ...health.Probe) serverOption {
	return func(p *testServerParams) { p.probes = probes }
}

func withTrail(trail *mockTrail) serverOption {
	return func(p *testServerParams) { p.trail = trail }
}

func newTestServer(t *testing.T, app sessionService, opts ...serverOption) *Server {
	t.Helper()

	params := &testServerParams{
		probes: []health.Probe{
			healthyProbe(health.ProbeStore),
			healthyProbe(health.ProbeCache),
			healthyProbe(health.ProbeProcess),
		},
		trail: &mockTrail{},
	}
	for _, opt := range opts {
		opt(params)
	}

	agg := health.NewAggregator(time.Second, params.probes...)
	return NewServer(testConfig(), app, agg, params.trail)
}

func testSession(totalPages int) *domain.Session {
	return domain.NewSession(totalPages, domain.ClientMeta{IP: "203.0.113.7"},
		time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
}
