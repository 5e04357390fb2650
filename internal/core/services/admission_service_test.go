package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knokvik/ratewarden/internal/adapters/storage/memory"
	"github.com/knokvik/ratewarden/internal/core/domain"
	"github.com/knokvik/ratewarden/internal/core/ports"
)

func TestNewAdmissionService_Validation(t *testing.T) {
	backend := memory.New()

	tests := []struct {
		name    string
		backend ports.Backend
		cfg     Config
	}{
		{name: "nil backend", backend: nil, cfg: Config{}},
		{name: "negative window", backend: backend, cfg: Config{Window: -time.Second}},
		{name: "non-positive tier limit", backend: backend, cfg: Config{
			Tiers: map[string]int64{"free": 0},
		}},
		{name: "missing free tier", backend: backend, cfg: Config{
			Tiers: map[string]int64{"pro": 600},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAdmissionService(tc.backend, tc.cfg)
			if !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestCheck_QuotaBoundary(t *testing.T) {
	service := newTestService(t, Config{Window: time.Minute})
	ctx := context.Background()

	const limit = 5
	for i := int64(1); i <= limit; i++ {
		decision, err := service.Check(ctx, "key-a", limit, "free")
		if err != nil {
			t.Fatalf("unexpected error on request %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if decision.Current != i {
			t.Fatalf("expected current %d, got %d", i, decision.Current)
		}
		if decision.Remaining != limit-i {
			t.Fatalf("expected remaining %d, got %d", limit-i, decision.Remaining)
		}
		if decision.RetryAfterSeconds != 0 {
			t.Fatalf("allowed decision must carry retryAfter 0, got %d", decision.RetryAfterSeconds)
		}
	}

	decision, err := service.Check(ctx, "key-a", limit, "free")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected request over the limit to be denied")
	}
	if decision.Remaining != 0 {
		t.Fatalf("denied decision must carry remaining 0, got %d", decision.Remaining)
	}
	if decision.RetryAfterSeconds <= 0 {
		t.Fatalf("denied decision must carry a positive retryAfter, got %d", decision.RetryAfterSeconds)
	}
}

func TestCheck_WindowRollover(t *testing.T) {
	service := newTestService(t, Config{Window: time.Second})
	ctx := context.Background()

	clock := int64(1_700_000_000_000)
	service.now = func() time.Time { return time.UnixMilli(clock) }

	decision, err := service.Check(ctx, "key-a", 1, "free")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected call at t=0 to be allowed")
	}
	wantReset := (clock + 1000 + 999) / 1000
	if decision.ResetEpochSeconds != wantReset {
		t.Fatalf("expected reset %d, got %d", wantReset, decision.ResetEpochSeconds)
	}

	clock += 500
	decision, err = service.Check(ctx, "key-a", 1, "free")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected call at t=500 to be denied")
	}
	if decision.RetryAfterSeconds != 1 {
		t.Fatalf("expected retryAfter 1 at t=500, got %d", decision.RetryAfterSeconds)
	}

	clock += 501
	decision, err = service.Check(ctx, "key-a", 1, "free")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected call at t=1001 to be allowed again")
	}
}

func TestCheck_IdentityIsolation(t *testing.T) {
	service := newTestService(t, Config{Window: time.Minute})
	ctx := context.Background()

	if decision, _ := service.Check(ctx, "key-a", 1, "free"); !decision.Allowed {
		t.Fatal("expected key-a to be allowed")
	}
	if decision, _ := service.Check(ctx, "key-a", 1, "free"); decision.Allowed {
		t.Fatal("expected key-a to be exhausted")
	}
	if decision, _ := service.Check(ctx, "key-b", 1, "free"); !decision.Allowed {
		t.Fatal("exhausting key-a must not affect key-b")
	}
}

func TestCheck_UnboundedTier(t *testing.T) {
	service := newTestService(t, Config{Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		decision, err := service.Check(ctx, "key-a", domain.Unbounded, "admin")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("unbounded tier denied request %d", i+1)
		}
		if decision.Remaining != domain.Unbounded {
			t.Fatalf("expected unbounded remaining, got %d", decision.Remaining)
		}
		if decision.Remaining < 0 {
			t.Fatal("remaining must never be negative")
		}
	}
}

func TestCheck_BackendErrorSurfaces(t *testing.T) {
	service, err := NewAdmissionService(failingBackend{}, Config{})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	_, err = service.Check(context.Background(), "key-a", 10, "free")
	if !domain.IsBackendUnavailable(err) {
		t.Fatalf("expected backend error to surface unchanged, got %v", err)
	}
}

func TestAllow_ResolvesTierFromSource(t *testing.T) {
	recorder := &recordingBackend{}
	service, err := NewAdmissionService(recorder, Config{})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	ctx := context.Background()

	decision, err := service.Allow(ctx, domain.RequestMetadata{RemoteAddr: "203.0.113.7:51234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Tier != "guest" || decision.Source != domain.SourceNetwork {
		t.Fatalf("expected guest/network for anonymous caller, got %s/%s", decision.Tier, decision.Source)
	}
	if decision.Limit != 30 {
		t.Fatalf("expected guest limit 30, got %d", decision.Limit)
	}

	decision, err = service.Allow(ctx, domain.RequestMetadata{Authorization: "Bearer tok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Tier != "free" || decision.Source != domain.SourceCredential {
		t.Fatalf("expected free/credential for bearer caller, got %s/%s", decision.Tier, decision.Source)
	}

	if len(recorder.keys) != 2 || recorder.keys[0] == recorder.keys[1] {
		t.Fatalf("expected two distinct hashed keys, got %v", recorder.keys)
	}
}

func TestAllow_CustomTierResolver(t *testing.T) {
	service := newTestService(t, Config{
		Window: time.Minute,
		TierResolver: func(meta domain.RequestMetadata, _ domain.IdentitySource) string {
			if meta.UserID == "vip" {
				return "pro"
			}
			return ""
		},
	})
	ctx := context.Background()

	decision, err := service.Allow(ctx, domain.RequestMetadata{UserID: "vip"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Tier != "pro" || decision.Limit != 600 {
		t.Fatalf("expected custom resolver to pick pro/600, got %s/%d", decision.Tier, decision.Limit)
	}

	// Empty resolver result falls through to the default mapping.
	decision, err = service.Allow(ctx, domain.RequestMetadata{UserID: "regular"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Tier != "free" {
		t.Fatalf("expected fallback to free, got %s", decision.Tier)
	}
}

func TestAllow_UnknownTierFallsBackToFree(t *testing.T) {
	recorder := &recordingBackend{}
	service, err := NewAdmissionService(recorder, Config{
		Tiers: map[string]int64{"free": 7},
		TierResolver: func(domain.RequestMetadata, domain.IdentitySource) string {
			return "enterprise"
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	decision, err := service.Allow(context.Background(), domain.RequestMetadata{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Tier != "enterprise" {
		t.Fatalf("resolved tier name is kept, got %s", decision.Tier)
	}
	if decision.Limit != 7 {
		t.Fatalf("unknown tier must use the free limit, got %d", decision.Limit)
	}
}

// newTestService is a helper that fails the test immediately if creation fails.
func newTestService(t *testing.T, cfg Config) *AdmissionService {
	t.Helper()
	service, err := NewAdmissionService(memory.New(), cfg)
	if err != nil {
		t.Fatalf("failed to create admission service: %v", err)
	}
	return service
}

type failingBackend struct{}

func (failingBackend) Take(context.Context, string, string, int64, int64, time.Duration) (ports.Window, error) {
	return ports.Window{}, domain.ErrBackendUnavailable
}

type recordingBackend struct {
	keys []string
}

func (r *recordingBackend) Take(_ context.Context, _ string, key string, _ int64, nowMs int64, _ time.Duration) (ports.Window, error) {
	r.keys = append(r.keys, key)
	return ports.Window{Admitted: true, Count: 1, OldestMs: nowMs}, nil
}
