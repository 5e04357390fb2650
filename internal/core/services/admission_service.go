// Package services implementa a lógica central de admissão por janela deslizante.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/knokvik/ratewarden/internal/core/domain"
	"github.com/knokvik/ratewarden/internal/core/identity"
	"github.com/knokvik/ratewarden/internal/core/ports"
)

const DefaultWindow = 60 * time.Second

// DefaultTiers devolve a tabela padrão de limites por tier.
func DefaultTiers() map[string]int64 {
	return map[string]int64{
		"guest": 30,
		"free":  60,
		"pro":   600,
		"admin": domain.Unbounded,
	}
}

// Config agrega as opções consumidas pelo serviço de admissão.
type Config struct {
	// Window é o comprimento da janela deslizante. Zero usa DefaultWindow.
	Window time.Duration
	// Tiers mapeia nome de tier para o limite por janela. Nil usa
	// DefaultTiers; quando fornecido, precisa conter a entrada "free",
	// que é o fallback documentado para nomes desconhecidos.
	Tiers map[string]int64
	// TierResolver é a estratégia opcional do chamador; "" cai no
	// mapeamento padrão por fonte de identidade.
	TierResolver domain.TierResolver
}

// AdmissionService decide, por chave de identidade e tier, se uma requisição
// pode prosseguir. O serviço não retém estado entre chamadas: todo o
// histórico vive no backend.
type AdmissionService struct {
	backend ports.Backend
	config  Config

	now func() time.Time
}

var _ ports.RateLimiter = (*AdmissionService)(nil)

// NewAdmissionService cria uma nova instância do serviço. Configuração
// inválida falha aqui, nunca por requisição.
func NewAdmissionService(backend ports.Backend, cfg Config) (*AdmissionService, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", domain.ErrInvalidConfiguration)
	}
	if cfg.Window < 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", domain.ErrInvalidConfiguration, cfg.Window)
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Tiers == nil {
		cfg.Tiers = DefaultTiers()
	}
	for name, limit := range cfg.Tiers {
		if limit <= 0 {
			return nil, fmt.Errorf("%w: tier %q must have a positive limit", domain.ErrInvalidConfiguration, name)
		}
	}
	if _, ok := cfg.Tiers["free"]; !ok {
		return nil, fmt.Errorf("%w: tier table must define %q", domain.ErrInvalidConfiguration, "free")
	}

	return &AdmissionService{
		backend: backend,
		config:  cfg,
		now:     time.Now,
	}, nil
}

// Allow executa a cadeia completa: resolve identidade, resolve tier e
// delega a decisão para Check.
func (s *AdmissionService) Allow(ctx context.Context, meta domain.RequestMetadata) (domain.Decision, error) {
	key, source := identity.Resolve(meta)
	tier := s.resolveTier(meta, source)
	limit := s.limitFor(tier)

	decision, err := s.Check(ctx, key, limit, tier)
	if err != nil {
		return domain.Decision{}, err
	}

	decision.Source = source
	return decision, nil
}

// Check avalia uma chave já resolvida contra o limite do tier.
//
// A janela é o intervalo semiaberto (now-window, now]: um timestamp igual a
// now-window já expirou. Reset e retry são expostos em segundos inteiros,
// sempre arredondados para cima, para nunca prometer espera menor que a real.
func (s *AdmissionService) Check(ctx context.Context, key string, limit int64, tier string) (domain.Decision, error) {
	if limit <= 0 {
		return domain.Decision{}, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidConfiguration, limit)
	}

	nowMs := s.now().UnixMilli()
	windowMs := s.config.Window.Milliseconds()

	win, err := s.backend.Take(ctx, tier, key, limit, nowMs, s.config.Window)
	if err != nil {
		return domain.Decision{}, err
	}

	oldestMs := win.OldestMs
	if oldestMs == 0 {
		oldestMs = nowMs
	}

	decision := domain.Decision{
		Current:           win.Count,
		ResetEpochSeconds: ceilSeconds(oldestMs + windowMs),
		Tier:              tier,
		Limit:             limit,
		Key:               key,
	}

	if win.Admitted {
		decision.Allowed = true
		if limit == domain.Unbounded {
			decision.Remaining = domain.Unbounded
		} else {
			decision.Remaining = limit - win.Count
		}
		return decision, nil
	}

	decision.RetryAfterSeconds = ceilSeconds(oldestMs + windowMs - nowMs)
	return decision, nil
}

func (s *AdmissionService) resolveTier(meta domain.RequestMetadata, source domain.IdentitySource) string {
	if s.config.TierResolver != nil {
		if tier := s.config.TierResolver(meta, source); tier != "" {
			return tier
		}
	}

	if source == domain.SourceNetwork {
		return "guest"
	}
	return "free"
}

// limitFor traduz nome de tier em limite. Nome desconhecido cai na entrada
// "free", um fallback documentado e não um erro.
func (s *AdmissionService) limitFor(tier string) int64 {
	if limit, ok := s.config.Tiers[tier]; ok {
		return limit
	}
	return s.config.Tiers["free"]
}

func ceilSeconds(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms + 999) / 1000
}
