// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/knokvik/ratewarden/internal/core/domain"
)

type RateLimiter interface {
	Allow(ctx context.Context, meta domain.RequestMetadata) (domain.Decision, error)
}
