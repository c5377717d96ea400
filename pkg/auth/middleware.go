package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/audit"
	"github.com/rhuss/codechat/pkg/observability"
	"github.com/rhuss/codechat/pkg/transport"
)

// Middleware authenticates every request outside bypassEndpoints with chain.
// Refused callers get 401, callers over their rate get 429, and admitted
// callers reach next with their Identity and tenant in the context. A nil
// limiter disables rate limiting.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				transport.WriteErrorResponse(w, api.NewInvalidRequestError("", "authentication required"), http.StatusUnauthorized)
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteErrorResponse(w, api.NewServerError("internal authentication error"), http.StatusInternalServerError)
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded", "subject", result.Identity.Subject, "path", r.URL.Path)
					observability.RateLimitRejectedTotal.Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), result.Identity)))
		})
	}
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

type identityKey struct{}

// withIdentity stores id in ctx and, when id has a tenant, scopes the audit
// trail to it: executions are recorded under the tenant and listings only
// return that tenant's records.
func withIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	if tenant := id.TenantID(); tenant != "" {
		ctx = audit.SetTenant(ctx, tenant)
	}
	return ctx
}

// IdentityFromContext returns the caller admitted by Middleware, or nil
// outside an authenticated request.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
