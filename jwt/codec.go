package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned by [Codec.Verify] for every verification
// failure: bad signature, expired token, issuer or audience mismatch.
// The wrapped cause is preserved for logging but callers must not branch
// on it; all failures mean the same thing to the authentication layer.
var ErrTokenInvalid = errors.New("invalid token")

// SigningMethod selects the signature algorithm for a [Codec].
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with
	// the corresponding public key.
	MethodEd25519 SigningMethod = "ed25519"
)

// Claims is the verified payload of an access or refresh token. Subject,
// issuer, audience, issued-at and expiry ride in the embedded registered
// claims; Email and Role are the application claims the authorization
// layer acts on.
//
// A Claims value attached to a request context is immutable and lives for
// exactly one request.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// NewClaims builds the standard claim set for a token scoped to one
// audience.
func NewClaims(subject, email, role, audience string) Claims {
	return Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Audience: jwt.ClaimStrings{audience},
		},
	}
}

// Config holds the process-wide signing configuration. The signing key is
// static for the process lifetime; key rotation is out of scope.
type Config struct {
	Method SigningMethod
	// Key is the HMAC secret for hs256.
	Key []byte
	// PrivateKey/PublicKey are raw or PEM-encoded Ed25519 keys.
	PrivateKey []byte
	PublicKey  []byte
	// Issuer is stamped into every signed token when the claims carry none.
	Issuer string
	// Leeway tolerates small clock skew during expiry checks.
	Leeway time.Duration
}

// Codec signs and verifies compact signed-claims tokens. Sign is a pure
// function over the configured key; Verify performs no I/O. A Codec is
// immutable and safe for concurrent use.
type Codec struct {
	config Config
}

// VerifyOptions narrows verification to a set of acceptable issuers and
// audiences. Empty slices disable the corresponding check.
type VerifyOptions struct {
	Issuers   []string
	Audiences []string
}

// NewCodec validates the signing configuration and returns a ready Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.Method {
	case MethodHS256:
		if len(cfg.Key) == 0 {
			return nil, errors.New("hs256 requires a signing key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Codec{config: cfg}, nil
}

// Sign produces a signed token embedding claims plus issued-at/expires-at
// computed from ttl. The claims' Audience and Role are taken as given; the
// configured issuer fills in when claims.Issuer is empty.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.Issuer == "" {
		claims.Issuer = c.config.Issuer
	}

	token := jwt.NewWithClaims(c.method(), claims)
	key, err := c.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// Verify checks the token signature and expiry, then the issuer/audience
// constraints requested in opts. Every failure is reported as
// [ErrTokenInvalid] with the underlying cause wrapped.
func (c *Codec) Verify(tokenStr string, opts VerifyOptions) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.verifyKey()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, jwt.ErrTokenInvalidClaims)
	}

	if len(opts.Issuers) > 0 && !contains(opts.Issuers, claims.Issuer) {
		return nil, fmt.Errorf("%w: issuer %q not accepted", ErrTokenInvalid, claims.Issuer)
	}
	if len(opts.Audiences) > 0 && !intersects(opts.Audiences, claims.Audience) {
		return nil, fmt.Errorf("%w: audience not accepted", ErrTokenInvalid)
	}

	return claims, nil
}

func contains(allowed []string, value string) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

func intersects(allowed []string, audience jwt.ClaimStrings) bool {
	for _, aud := range audience {
		if contains(allowed, aud) {
			return true
		}
	}
	return false
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.Method {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.config.Method {
	case MethodHS256:
		return c.config.Key, nil
	default:
		return parseEdPrivateKey(c.config.PrivateKey)
	}
}

func (c *Codec) verifyKey() (interface{}, error) {
	switch c.config.Method {
	case MethodHS256:
		return c.config.Key, nil
	default:
		return parseEdPublicKey(c.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
