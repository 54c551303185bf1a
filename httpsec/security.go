// Package httpsec applies browser facing security policies to the event API.
//
// Every response gets headers that stop a browser from sniffing or framing the JSON it receives.
// Cross-origin access is denied unless a [CORSPolicy] grants it with [EnableCORS].
package httpsec

import (
	"net/http"

	"github.com/saylorsolutions/eventdemo/httpx"
)

const (
	HeaderContentTypeOptions = "X-Content-Type-Options"
	HeaderCSP                = "Content-Security-Policy"
	HeaderReferrerPolicy     = "Referrer-Policy"
)

// defaultCSP keeps browsers from loading anything referenced by, or framing, an API response.
var defaultCSP = EnableContentSecurityPolicy(DefaultNone(), FrameAncestors(CSPSourceNone))

type Policies struct {
	mw      []httpx.Middleware
	headers http.Header
}

type Option func(sec *Policies) error

// New creates [Policies] with the default API headers, and applies each of opts.
func New(opts ...Option) (*Policies, error) {
	s := &Policies{headers: http.Header{}}
	s.headers.Set(HeaderContentTypeOptions, "nosniff")
	s.headers.Set(HeaderReferrerPolicy, "no-referrer")
	for _, opt := range append([]Option{defaultCSP}, opts...) {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Middleware sets the policy headers before calling next, since they can't be changed once the handler writes a response.
func (s *Policies) Middleware(next http.Handler) http.Handler {
	next = httpx.Wrap(next, s.mw...)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for header, vals := range s.headers {
			w.Header()[header] = append([]string(nil), vals...)
		}
		next.ServeHTTP(w, r)
	})
}
