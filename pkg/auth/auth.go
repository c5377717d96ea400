package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes: the credentials identify a caller.
	Yes AuthDecision = iota
	// No: credentials were presented and are wrong. The request is refused
	// without asking later authenticators.
	No
	// Abstain: no credentials of this authenticator's kind.
	Abstain
)

// AuthResult is one vote. Identity is set for Yes, Err for No.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// AnonymousSubject is the subject of callers admitted without credentials.
// They share one rate-limit bucket.
const AnonymousSubject = "anonymous"

// Identity is the caller of a chat or executions request.
type Identity struct {
	// Subject keys the rate limiter. Never empty.
	Subject string

	// Tenant restricts GET /api/executions to the executions recorded under
	// the same tenant, and is stored on every execution the caller runs.
	// Callers without a tenant see all executions.
	Tenant string

	Scopes []string
}

// Anonymous returns the identity of an unauthenticated caller.
func Anonymous() *Identity {
	return &Identity{Subject: AnonymousSubject}
}

// IsAnonymous reports whether id is nil or the anonymous caller.
func (id *Identity) IsAnonymous() bool {
	return id == nil || id.Subject == AnonymousSubject
}

// TenantID returns the caller's tenant; nil-safe.
func (id *Identity) TenantID() string {
	if id == nil {
		return ""
	}
	return id.Tenant
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain asks its authenticators in order; the first Yes or No decides.
// When every authenticator abstains the caller is admitted as Anonymous
// only if AllowAnonymous is set.
type AuthChain struct {
	Authenticators []Authenticator
	AllowAnonymous bool
}

// Authenticate runs the chain.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}
	if c.AllowAnonymous {
		return AuthResult{Decision: Yes, Identity: Anonymous()}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
