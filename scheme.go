package authgate

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/authgate/authgate/jwt"
)

// Scheme pairs a credential extraction strategy with the validation rules
// a token must satisfy to authenticate under that scheme's name. Schemes
// are registered once at startup and read-only afterwards.
type Scheme struct {
	Name    string
	Extract TokenExtractor

	// ValidateIssuer/ValidateAudience gate the corresponding membership
	// checks; the allowed lists are ignored when the flag is off.
	ValidateIssuer   bool
	ValidateAudience bool
	Issuers          []string
	Audiences        []string
}

func (s Scheme) verifyOptions() jwt.VerifyOptions {
	var opts jwt.VerifyOptions
	if s.ValidateIssuer {
		opts.Issuers = s.Issuers
	}
	if s.ValidateAudience {
		opts.Audiences = s.Audiences
	}
	return opts
}

// SchemeRegistry resolves requests to verified identities through named
// schemes. The registry is built once at startup, holds no mutable state,
// and is safe for concurrent use.
type SchemeRegistry struct {
	codec       *jwt.Codec
	logger      *slog.Logger
	defaultName string
	schemes     map[string]Scheme
}

// NewSchemeRegistry builds an immutable registry. Duplicate scheme names
// and a default name that resolves to no scheme are configuration errors.
func NewSchemeRegistry(codec *jwt.Codec, logger *slog.Logger, defaultName string, schemes []Scheme) (*SchemeRegistry, error) {
	if codec == nil {
		return nil, fmt.Errorf("scheme registry requires a token codec")
	}
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]Scheme, len(schemes))
	for _, s := range schemes {
		if s.Name == "" {
			return nil, fmt.Errorf("scheme with empty name")
		}
		if s.Extract == nil {
			return nil, fmt.Errorf("scheme %q has no extraction strategy", s.Name)
		}
		if _, exists := byName[s.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateScheme, s.Name)
		}
		byName[s.Name] = s
	}
	if _, ok := byName[defaultName]; !ok {
		return nil, fmt.Errorf("%w: default scheme %q", ErrSchemeNotRegistered, defaultName)
	}

	return &SchemeRegistry{
		codec:       codec,
		logger:      logger,
		defaultName: defaultName,
		schemes:     byName,
	}, nil
}

// Has reports whether a scheme name is registered.
func (reg *SchemeRegistry) Has(name string) bool {
	_, ok := reg.schemes[name]
	return ok
}

// Authenticate returns strict authentication middleware for the named
// scheme (the default scheme when name is empty). A missing or invalid
// credential halts the request with 401. An unregistered scheme name is a
// configuration fault and halts with 500; the registry never silently
// skips a scheme it does not know.
func (reg *SchemeRegistry) Authenticate(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, ok := reg.resolve(name)
			if !ok {
				reg.logger.Error("authentication scheme not registered", "scheme", name)
				deny(w, http.StatusInternalServerError, "Invalid authentication scheme configuration")
				return
			}

			identity, ok := reg.verify(r, scheme)
			if !ok {
				deny(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuthenticate returns middleware that attaches an identity when a
// valid credential is present but never blocks the request: token absence
// and verification failure both fall through anonymously. A route marked
// with [WithSkipAuth] bypasses extraction entirely. An unregistered scheme
// name still halts with 500, matching the strict path.
func (reg *SchemeRegistry) OptionalAuthenticate(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipAuth(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			scheme, ok := reg.resolve(name)
			if !ok {
				reg.logger.Error("authentication scheme not registered", "scheme", name)
				deny(w, http.StatusInternalServerError, "Invalid authentication scheme configuration")
				return
			}

			if identity, ok := reg.verify(r, scheme); ok {
				r = r.WithContext(WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns strict middleware that tries each named scheme in
// order and attaches the first identity produced; exhaustion is 401. An
// empty list means the default scheme. Unlike [PolicyEngine.RequirePolicy]
// no scheme or role constraints are enforced afterwards.
func (reg *SchemeRegistry) RequireAuth(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		names = []string{reg.defaultName}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := reg.trySchemes(r, names)
			if !outcome.found {
				deny(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), outcome.identity)))
		})
	}
}

// authOutcome is the result of an ordered multi-scheme trial: either the
// first identity produced, or exhaustion with no identity. Individual
// scheme failures are absorbed; they are expected traffic, not errors.
type authOutcome struct {
	identity Identity
	found    bool
}

// trySchemes attempts each named scheme in list order and stops at the
// first success. Later schemes are never tried once one succeeds. Callers
// must only pass registered names.
func (reg *SchemeRegistry) trySchemes(r *http.Request, names []string) authOutcome {
	for _, name := range names {
		scheme, ok := reg.schemes[name]
		if !ok {
			reg.logger.Error("scheme trial references unregistered scheme", "scheme", name)
			continue
		}
		if identity, ok := reg.verify(r, scheme); ok {
			return authOutcome{identity: identity, found: true}
		}
	}
	return authOutcome{}
}

func (reg *SchemeRegistry) resolve(name string) (Scheme, bool) {
	if name == "" {
		name = reg.defaultName
	}
	scheme, ok := reg.schemes[name]
	return scheme, ok
}

func (reg *SchemeRegistry) verify(r *http.Request, scheme Scheme) (Identity, bool) {
	token, ok := scheme.Extract(r)
	if !ok {
		return Identity{}, false
	}

	claims, err := reg.codec.Verify(token, scheme.verifyOptions())
	if err != nil {
		reg.logger.Debug("token verification failed", "scheme", scheme.Name, "error", err)
		return Identity{}, false
	}

	return Identity{Claims: claims, Scheme: scheme.Name}, true
}
