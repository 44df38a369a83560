package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// URLPolicy decides which hosts sessions may be pointed at. Patterns are
// globs over the host name with '.' as separator, so "*.example.com" matches
// one label and "**.example.com" any number of labels.
type URLPolicy struct {
	allowedPatterns []glob.Glob
	deniedPatterns  []glob.Glob
}

// NewURLPolicy compiles the allow and deny lists.
func NewURLPolicy(allowed, denied []string) (*URLPolicy, error) {
	p := &URLPolicy{}

	for _, pattern := range allowed {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid allowed url pattern '%s': %w", pattern, err)
		}
		p.allowedPatterns = append(p.allowedPatterns, g)
	}

	for _, pattern := range denied {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid denied url pattern '%s': %w", pattern, err)
		}
		p.deniedPatterns = append(p.deniedPatterns, g)
	}

	return p, nil
}

// Policy compiles the URL policy of the security section.
func (c *Config) Policy() (*URLPolicy, error) {
	return NewURLPolicy(c.Security.AllowedURLs, c.Security.DeniedURLs)
}

// Check returns an error when rawURL is malformed or not permitted.
// Host-less URLs such as about:blank are always permitted.
func (p *URLPolicy) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
	case "about", "data", "file":
		return nil
	default:
		return fmt.Errorf("invalid url %q: unsupported scheme %q", rawURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("invalid url %q: missing host", rawURL)
	}

	// Denied patterns take precedence
	for _, pattern := range p.deniedPatterns {
		if pattern.Match(host) {
			return fmt.Errorf("url %q is denied by security policy", rawURL)
		}
	}

	if len(p.allowedPatterns) == 0 {
		return nil
	}

	for _, pattern := range p.allowedPatterns {
		if pattern.Match(host) {
			return nil
		}
	}
	return fmt.Errorf("url %q is not in the allowed list", rawURL)
}
