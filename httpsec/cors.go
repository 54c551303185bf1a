package httpsec

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderOrigin           = "Origin"
	HeaderVary             = "Vary"
	HeaderRequestMethod    = "Access-Control-Request-Method"
	HeaderCORSAllowOrigin  = "Access-Control-Allow-Origin"
	HeaderCORSAllowMethods = "Access-Control-Allow-Methods"
	HeaderCORSAllowHeaders = "Access-Control-Allow-Headers"
	HeaderCORSAllowCreds   = "Access-Control-Allow-Credentials"
	HeaderCORSMaxAge       = "Access-Control-Max-Age"
	CORSAnyOrigin          = "*"
	CORSNullOrigin         = "null"
	defaultMaxAge          = 24 * time.Hour
)

var (
	ErrCORSPolicy    = errors.New("CORS policy error")
	ErrCORSNoOrigin  = errors.New("no allowed origins specified")
	ErrCORSNoMethods = errors.New("no allowed methods specified")
)

// CORSPolicy describes which origins may call the API from a browser, and how.
//
// A null origin is never allowed, and origins must match exactly.
// Use [CORSPolicy.AllowAnyOrigin] only when any site should be able to call the API.
type CORSPolicy struct {
	origins     []string
	methods     []string
	headers     []string
	credentials bool
	maxAge      time.Duration
	err         error
}

func NewCORSPolicy() *CORSPolicy {
	return &CORSPolicy{maxAge: defaultMaxAge}
}

// AllowOrigin adds origins to the allow list. Passing "*" is the same as calling [CORSPolicy.AllowAnyOrigin].
func (p *CORSPolicy) AllowOrigin(origins ...string) *CORSPolicy {
	for _, origin := range origins {
		if origin == CORSAnyOrigin {
			return p.AllowAnyOrigin()
		}
		normalized, err := NormalizeOrigin(origin)
		if err != nil {
			p.err = errors.Join(p.err, err)
			continue
		}
		if slices.Contains(p.origins, CORSAnyOrigin) || slices.Contains(p.origins, normalized) {
			continue
		}
		p.origins = append(p.origins, normalized)
	}
	return p
}

func (p *CORSPolicy) AllowAnyOrigin() *CORSPolicy {
	p.origins = []string{CORSAnyOrigin}
	return p
}

func (p *CORSPolicy) AllowMethods(methods ...string) *CORSPolicy {
	for _, method := range methods {
		method = strings.ToUpper(strings.TrimSpace(method))
		if len(method) == 0 || slices.Contains(p.methods, method) {
			continue
		}
		p.methods = append(p.methods, method)
	}
	slices.Sort(p.methods)
	return p
}

func (p *CORSPolicy) AllowHeaders(headers ...string) *CORSPolicy {
	for _, header := range headers {
		header = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(header))
		if len(header) == 0 || slices.Contains(p.headers, header) {
			continue
		}
		p.headers = append(p.headers, header)
	}
	slices.Sort(p.headers)
	return p
}

// AllowCredentials permits cookies and authorization headers on cross-origin requests.
func (p *CORSPolicy) AllowCredentials() *CORSPolicy {
	p.credentials = true
	return p
}

// MaxAge sets how long a browser may cache a preflight response. The default is 24 hours.
func (p *CORSPolicy) MaxAge(ttl time.Duration) *CORSPolicy {
	if ttl <= 0 {
		p.err = errors.Join(p.err, errors.New("max-age must be positive"))
		return p
	}
	p.maxAge = ttl
	return p
}

// Err reports any error encountered while building the policy.
func (p *CORSPolicy) Err() error {
	if p.err != nil {
		return fmt.Errorf("%w: %w", ErrCORSPolicy, p.err)
	}
	if len(p.origins) == 0 {
		return fmt.Errorf("%w: %w", ErrCORSPolicy, ErrCORSNoOrigin)
	}
	if len(p.methods) == 0 {
		return fmt.Errorf("%w: %w", ErrCORSPolicy, ErrCORSNoMethods)
	}
	return nil
}

// NormalizeOrigin reduces a URL to the scheme://host[:port] form a browser sends in the Origin header.
func NormalizeOrigin(origin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("invalid origin '%s': %w", origin, err)
	}
	if len(u.Scheme) == 0 || len(u.Host) == 0 {
		return "", fmt.Errorf("invalid origin '%s': scheme and host are required", origin)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// EnableCORS grants cross-origin access according to policy.
// Preflight requests are answered by the middleware, and never reach the wrapped handler.
func EnableCORS(policy *CORSPolicy) Option {
	return func(sec *Policies) error {
		if err := policy.Err(); err != nil {
			return err
		}
		sec.mw = append(sec.mw, func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				preflight := r.Method == http.MethodOptions && len(r.Header.Get(HeaderRequestMethod)) > 0
				granted := policy.grant(w, r, preflight)
				if !preflight {
					next.ServeHTTP(w, r)
					return
				}
				if granted {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				w.WriteHeader(http.StatusForbidden)
			})
		})
		return nil
	}
}

func (p *CORSPolicy) grant(w http.ResponseWriter, r *http.Request, preflight bool) bool {
	w.Header().Add(HeaderVary, HeaderOrigin)
	reqOrigin := r.Header.Get(HeaderOrigin)
	if len(reqOrigin) == 0 || reqOrigin == CORSNullOrigin {
		return false
	}
	respOrigin := reqOrigin
	switch {
	case slices.Contains(p.origins, CORSAnyOrigin):
		if !p.credentials {
			respOrigin = CORSAnyOrigin
		}
	case slices.Contains(p.origins, strings.ToLower(reqOrigin)):
	default:
		return false
	}
	if preflight {
		if !slices.Contains(p.methods, strings.ToUpper(r.Header.Get(HeaderRequestMethod))) {
			return false
		}
		w.Header().Set(HeaderCORSAllowMethods, strings.Join(p.methods, ","))
		if len(p.headers) > 0 {
			w.Header().Set(HeaderCORSAllowHeaders, strings.Join(p.headers, ","))
		}
		w.Header().Set(HeaderCORSMaxAge, strconv.Itoa(int(p.maxAge.Round(time.Second).Seconds())))
	}
	w.Header().Set(HeaderCORSAllowOrigin, respOrigin)
	if p.credentials {
		w.Header().Set(HeaderCORSAllowCreds, "true")
	}
	return true
}
