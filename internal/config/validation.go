package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/styles"

	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
)

// ValidateConfig checks a normalized, defaulted configuration.
func ValidateConfig(c *Config) error {
	for _, check := range []func(*Config) error{
		validateSite,
		validateBuild,
		validateHighlight,
		validateServer,
	} {
		if err := check(c); err != nil {
			return err
		}
	}
	return nil
}

func invalid(field, msg string) error {
	return ferrors.ValidationError(fmt.Sprintf("%s: %s", field, msg)).WithContext("field", field).UserAction().Build()
}

func validateSite(c *Config) error {
	if b := c.Site.BaseURL; b != "" && !strings.HasPrefix(b, "/") {
		u, err := url.Parse(b)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("site.base_url", fmt.Sprintf("%q must be a path starting with / or an http(s) URL", b))
		}
	}
	if s := c.Site.URL; s != "" {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("site.url", fmt.Sprintf("%q must be an absolute http(s) URL", s))
		}
	}
	return nil
}

func validateBuild(c *Config) error {
	if c.Content.Dir == c.Output.Dir {
		return invalid("output.dir", "must differ from content.dir")
	}
	if c.Build.DiagramWidth < 0 || c.Build.MusicWidth < 0 {
		return invalid("build", "diagram_width and music_width must not be negative")
	}
	return nil
}

func validateHighlight(c *Config) error {
	if _, ok := styles.Registry[c.Highlight.Style]; !ok {
		return invalid("highlight.style", fmt.Sprintf("unknown chroma style %q", c.Highlight.Style))
	}
	return nil
}

func validateServer(c *Config) error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", fmt.Sprintf("%d is out of range", c.Server.Port))
	}
	if d, err := time.ParseDuration(c.Server.Debounce); err != nil || d < 0 {
		return invalid("server.debounce", fmt.Sprintf("%q is not a duration", c.Server.Debounce))
	}
	return nil
}

// DebounceDuration returns the parsed server debounce.
func (c *Config) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Server.Debounce)
	return d
}

// ValidateDeploy checks the settings the deploy command needs.
func (c *Config) ValidateDeploy() error {
	if c.Deploy.Endpoint == "" {
		return invalid("deploy.endpoint", "required")
	}
	if strings.Contains(c.Deploy.Endpoint, "://") {
		return invalid("deploy.endpoint", "must be host[:port] without a scheme")
	}
	if c.Deploy.Bucket == "" {
		return invalid("deploy.bucket", "required")
	}
	if d, err := time.ParseDuration(c.Deploy.RetryDelay); err != nil || d <= 0 {
		return invalid("deploy.retry_delay", fmt.Sprintf("%q is not a positive duration", c.Deploy.RetryDelay))
	}
	return nil
}

// RetryDelayDuration returns the parsed initial deploy retry delay.
func (c *Config) RetryDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.Deploy.RetryDelay)
	return d
}
