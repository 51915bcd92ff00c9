package authgate

import (
	"fmt"
	"log/slog"
	"net/http"
)

// Policy is a named authorization rule: the ordered set of schemes a
// credential may arrive through, the roles allowed to act, and an optional
// custom predicate over the authenticated request. Policies decouple
// credential transport from role enforcement so the same role rule applies
// identically to cookie and bearer traffic.
type Policy struct {
	Name string
	// Schemes are tried in order during auto-authentication; the first
	// success wins. An identity authenticated under a scheme not in this
	// list does not satisfy the policy.
	Schemes []string
	// Roles, when non-empty, restricts the policy to identities whose
	// role is in the set.
	Roles []string
	// Check, when non-nil, is evaluated last against the request.
	Check func(r *http.Request) bool
}

func (p Policy) allowsScheme(name string) bool {
	for _, s := range p.Schemes {
		if s == name {
			return true
		}
	}
	return false
}

func (p Policy) allowsRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PolicyEngine evaluates named policies against requests, triggering
// authentication through the scheme registry on demand. Like the registry
// it is immutable after construction.
type PolicyEngine struct {
	registry *SchemeRegistry
	logger   *slog.Logger
	policies map[string]Policy
}

// NewPolicyEngine builds an immutable policy engine. Duplicate policy
// names and references to unregistered schemes are configuration errors
// rejected at startup rather than discovered per request.
func NewPolicyEngine(registry *SchemeRegistry, logger *slog.Logger, policies []Policy) (*PolicyEngine, error) {
	if registry == nil {
		return nil, fmt.Errorf("policy engine requires a scheme registry")
	}
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			return nil, fmt.Errorf("policy with empty name")
		}
		if _, exists := byName[p.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePolicy, p.Name)
		}
		for _, scheme := range p.Schemes {
			if !registry.Has(scheme) {
				return nil, fmt.Errorf("%w: policy %q references %q", ErrSchemeNotRegistered, p.Name, scheme)
			}
		}
		byName[p.Name] = p
	}

	return &PolicyEngine{
		registry: registry,
		logger:   logger,
		policies: byName,
	}, nil
}

// RequirePolicy returns middleware enforcing the named policy. An
// unregistered policy name is authoritative 500 "Invalid authorization
// policy" for any request state. A component that silently no-ops on an
// unknown policy hides a deployment bug behind passing traffic.
//
// When the request carries no identity and the policy lists schemes, each
// scheme is tried in order until one yields an identity; exhaustion is
// 401. An identity authenticated under a scheme outside the policy's list
// is rejected with 401 so a request cannot pass a stricter policy by
// arriving through a laxer scheme.
func (e *PolicyEngine) RequirePolicy(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := e.policies[name]
			if !ok {
				e.logger.Error("authorization policy not registered", "policy", name)
				deny(w, http.StatusInternalServerError, "Invalid authorization policy")
				return
			}

			identity, authenticated := IdentityFromContext(r.Context())
			if !authenticated && len(policy.Schemes) > 0 {
				outcome := e.registry.trySchemes(r, policy.Schemes)
				if !outcome.found {
					deny(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				identity = outcome.identity
				authenticated = true
				r = r.WithContext(WithIdentity(r.Context(), identity))
			}

			if len(policy.Schemes) > 0 {
				if !authenticated {
					deny(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				if !policy.allowsScheme(identity.Scheme) {
					deny(w, http.StatusUnauthorized, "Invalid authentication scheme")
					return
				}
			}

			if len(policy.Roles) > 0 {
				if !authenticated {
					deny(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				if !policy.allowsRole(identity.Claims.Role) {
					deny(w, http.StatusForbidden, "Insufficient permissions")
					return
				}
			}

			if policy.Check != nil && !policy.Check(r) {
				deny(w, http.StatusForbidden, "Authorization failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns role-only middleware: it expects an identity already
// attached by an authentication middleware and checks nothing else.
func (e *PolicyEngine) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			allowed := false
			for _, role := range roles {
				if identity.Claims.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				deny(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
