package auth

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/opsplug/errorhandler"
)

// TokenConfig configures Tokens.
type TokenConfig struct {
	// Secret is the HMAC signing key. Required.
	Secret string `yaml:"secret"`

	// SigningMethod is HS256, HS384 or HS512.
	// Default: "HS256"
	SigningMethod string `yaml:"signingMethod"`

	// Issuer is written to generated tokens and, when set, required on
	// decoded ones.
	Issuer string `yaml:"issuer"`

	// Audience, when set, is written to generated tokens and required on
	// decoded ones.
	Audience string `yaml:"audience"`

	// TTL is used by Generate when no ttl is passed.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`
}

// Tokens signs and verifies JWTs with a shared secret.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: Decode and Middleware reject with *errorhandler.PublicError.
type Tokens struct {
	method jwt.SigningMethod
	key    []byte
	config TokenConfig
	now    func() time.Time
}

// NewTokens validates cfg and creates Tokens.
func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = jwt.SigningMethodHS256.Alg()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}

	var method jwt.SigningMethod
	switch cfg.SigningMethod {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSigningMethod, cfg.SigningMethod)
	}

	return &Tokens{method: method, key: []byte(cfg.Secret), config: cfg, now: time.Now}, nil
}

// Generate signs payload with an exp claim ttl from now. A ttl of zero
// uses the configured TTL. payload is not modified.
func (t *Tokens) Generate(payload map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = t.config.TTL
	}
	now := t.now()

	claims := jwt.MapClaims{}
	maps.Copy(claims, payload)
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	if t.config.Issuer != "" {
		claims["iss"] = t.config.Issuer
	}
	if t.config.Audience != "" {
		claims["aud"] = t.config.Audience
	}

	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	if signed == "" {
		return "", errorhandler.EmptyToken()
	}
	return signed, nil
}

// Decode verifies token and returns its claims.
//
// A bad signature is reported as "Auth error", an expired token as
// "Authorization token expired" and anything else that fails to verify as
// "Authorization token is invalid". All three answer 401 AUTH_FAILED.
func (t *Tokens) Decode(token string) (map[string]any, error) {
	if token == "" {
		return nil, authError("No Authorization was found in request headers", ErrMissingCredentials)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.config.Issuer))
	}
	if t.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(t.config.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, authError("Auth error", fmt.Errorf("%w: %w", ErrInvalidSignature, err))
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, authError("Authorization token expired", fmt.Errorf("%w: %w", ErrTokenExpired, err))
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, authError("Authorization token is invalid", fmt.Errorf("%w: %w", ErrTokenMalformed, err))
	default:
		return nil, authError("Authorization token is invalid", fmt.Errorf("%w: %w", ErrInvalidCredentials, err))
	}

	if len(claims) == 0 {
		return nil, errorhandler.EmptyToken()
	}
	return claims, nil
}

// Middleware verifies the bearer token of every request and stores its
// claims in the request context. Rejections go to eh.
func (t *Tokens) Middleware(eh *errorhandler.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				eh.Handle(w, r, authError("No Authorization was found in request headers", ErrMissingCredentials))
				return
			}
			claims, err := t.Decode(token)
			if err != nil {
				eh.Handle(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func authError(message string, cause error) *errorhandler.PublicError {
	e := errorhandler.AuthFailed()
	e.Message = message
	e.Err = cause
	return e
}
