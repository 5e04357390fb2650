// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
//
// É o adaptador fino sobre o motor de admissão: extrai os metadados da
// requisição, traduz a Decision em headers e status e aplica a política
// fail-open/fail-closed para erros de backend. O core só reporta falhas;
// quem escolhe a política é este adaptador, via Options.
package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/knokvik/ratewarden/internal/core/domain"
	"github.com/knokvik/ratewarden/internal/core/ports"
)

const rateLimitExceededMessage = "you have reached the maximum number of requests or actions allowed within a certain time frame"

// Options configura o middleware de rate limiting.
type Options struct {
	Limiter ports.RateLimiter
	// FailOpen decide o destino da requisição quando o backend falha:
	// true deixa passar, false responde 503. Nunca é implícito.
	FailOpen bool
}

func NewRateLimiterMiddleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := opts.Limiter.Allow(r.Context(), extractMetadata(r))
			if err != nil {
				log.Printf("rate limiter failed: %v", err)
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				writeJSONError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}

			setRateLimitHeaders(w, decision)

			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds, 10))
				writeJSONError(w, http.StatusTooManyRequests, rateLimitExceededMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractMetadata(r *http.Request) domain.RequestMetadata {
	return domain.RequestMetadata{
		Authorization: r.Header.Get("Authorization"),
		UserID:        r.Header.Get("X-User-ID"),
		ForwardedFor:  r.Header.Get("X-Forwarded-For"),
		RealIP:        r.Header.Get("X-Real-IP"),
		RemoteAddr:    r.RemoteAddr,
	}
}

func setRateLimitHeaders(w http.ResponseWriter, decision domain.Decision) {
	w.Header().Set("X-RateLimit-Limit", formatQuota(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", formatQuota(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetEpochSeconds, 10))
}

func formatQuota(v int64) string {
	if v == domain.Unbounded {
		return "unlimited"
	}
	return strconv.FormatInt(v, 10)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
