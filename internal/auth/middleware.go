package auth

import (
	"net/http"
	"strings"
)

// Public reports whether a request may proceed without a bearer token.
type Public func(r *http.Request) bool

// PathPrefixes treats every request whose path starts with one of prefixes as public.
func PathPrefixes(prefixes ...string) Public {
	return func(r *http.Request) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}
}

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithPublic lets matching requests through anonymously. A valid token on a
// public request still identifies the caller.
func WithPublic(public Public) Option {
	return func(a *Authenticator) { a.public = public }
}

// WithErrorHandler replaces the plain-text 401 written for rejected requests.
func WithErrorHandler(h ErrorHandler) Option {
	return func(a *Authenticator) { a.onError = h }
}

// Authenticator checks bearer tokens on incoming requests.
type Authenticator struct {
	cfg     Config
	public  Public
	onError ErrorHandler
}

// NewAuthenticator returns an Authenticator verifying tokens against cfg.
func NewAuthenticator(cfg Config, opts ...Option) *Authenticator {
	a := &Authenticator{
		cfg: cfg,
		onError: func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate validates the request's Authorization header.
func (a *Authenticator) Authenticate(r *http.Request) (Claims, error) {
	token, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return Claims{}, err
	}
	claims, err := Parse(token, a.cfg)
	if err != nil {
		return Claims{}, err
	}
	return *claims, nil
}

// Middleware rejects unauthenticated requests to non-public routes and stores
// the caller's claims on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r)
		switch {
		case err == nil:
			r = r.WithContext(NewContext(r.Context(), claims))
		case a.public == nil || !a.public(r):
			a.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is case-insensitive.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidToken
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
