package httpsec

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	CSPSourceSelf = "'self'" // CSPSourceSelf accepts content from the origin serving the response.
	CSPSourceNone = "'none'" // CSPSourceNone accepts no content.
)

var (
	ErrContentSecurityConfig = errors.New("content security policy configuration error")
)

type cspConfig struct {
	defaultSources []string
	frameAncestors []string
	connectSources []string
	errors         []error
}

// CSPOption configures the Content-Security-Policy built by [EnableContentSecurityPolicy].
type CSPOption func(c *cspConfig)

// EnableContentSecurityPolicy replaces the Content-Security-Policy header set by [New].
// Without a default source, the policy falls back to [CSPSourceNone], since the event API serves no documents of its own.
//
// Source: https://developer.mozilla.org/en-US/docs/Web/HTTP/CSP
func EnableContentSecurityPolicy(opts ...CSPOption) Option {
	conf := new(cspConfig)
	for _, opt := range opts {
		opt(conf)
	}
	policy, err := conf.policy()
	return func(sec *Policies) error {
		if err != nil {
			return err
		}
		sec.headers.Set(HeaderCSP, policy)
		return nil
	}
}

func (c *cspConfig) policy() (string, error) {
	if len(c.errors) > 0 {
		return "", fmt.Errorf("%w: %w", ErrContentSecurityConfig, errors.Join(c.errors...))
	}
	defaults := c.defaultSources
	if len(defaults) == 0 {
		defaults = []string{CSPSourceNone}
	}
	directives := []string{"default-src " + strings.Join(defaults, " ")}
	if len(c.connectSources) > 0 {
		directives = append(directives, "connect-src "+strings.Join(c.connectSources, " "))
	}
	if len(c.frameAncestors) > 0 {
		directives = append(directives, "frame-ancestors "+strings.Join(c.frameAncestors, " "))
	}
	return strings.Join(directives, "; "), nil
}

// DefaultSources sets the fallback policy for every kind of content.
func DefaultSources(sources ...string) CSPOption {
	return func(c *cspConfig) {
		if err := validateCSPSourceList(sources); err != nil {
			c.errors = append(c.errors, fmt.Errorf("default sources: %w", err))
			return
		}
		c.defaultSources = append(c.defaultSources, sources...)
	}
}

// DefaultNone allows no content by default, replacing any previously set default sources.
func DefaultNone() CSPOption {
	return func(c *cspConfig) {
		c.defaultSources = []string{CSPSourceNone}
	}
}

// ConnectSources specifies origins that scripts may call with fetch or a WebSocket.
func ConnectSources(sources ...string) CSPOption {
	return func(c *cspConfig) {
		if err := validateCSPSourceList(sources); err != nil {
			c.errors = append(c.errors, fmt.Errorf("connect sources: %w", err))
			return
		}
		c.connectSources = append(c.connectSources, sources...)
	}
}

// FrameAncestors specifies origins that may embed a response in a frame.
func FrameAncestors(sources ...string) CSPOption {
	return func(c *cspConfig) {
		if err := validateCSPSourceList(sources); err != nil {
			c.errors = append(c.errors, fmt.Errorf("frame ancestors: %w", err))
			return
		}
		c.frameAncestors = append(c.frameAncestors, sources...)
	}
}

func validateCSPSourceList(list []string) error {
	if len(list) == 0 {
		return errors.New("no sources in list, this is likely a mistake")
	}
	for i, elem := range list {
		switch elem {
		case CSPSourceNone, CSPSourceSelf:
			continue
		}
		withScheme := elem
		if !strings.HasPrefix(elem, "http://") && !strings.HasPrefix(elem, "https://") {
			if strings.Contains(elem, "://") {
				return fmt.Errorf("invalid scheme in element %d ('%s')", i, elem)
			}
			withScheme = "https://" + elem
		}
		u, err := url.Parse(withScheme)
		if err != nil {
			return fmt.Errorf("failed to parse element %d as '%s': %w", i, withScheme, err)
		}
		if len(u.Host) == 0 {
			return fmt.Errorf("element %d ('%s') has no host", i, elem)
		}
		if len(u.Path) != 0 && u.Path != "/" {
			return fmt.Errorf("path for element %d ('%s') should be empty", i, elem)
		}
	}
	return nil
}
