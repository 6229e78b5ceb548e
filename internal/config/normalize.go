package config

import (
	"fmt"
	"strings"
)

// NormalizationResult captures adjustments made by NormalizeConfig.
type NormalizationResult struct {
	Warnings []string
}

// NormalizeConfig canonicalizes enumerations and trims strings before defaults apply.
func NormalizeConfig(c *Config) *NormalizationResult {
	res := &NormalizationResult{}

	if raw := strings.TrimSpace(string(c.Build.References)); raw != "" {
		if v, err := referencePolicyNormalizer.NormalizeWithError(raw); err != nil {
			res.warnUnknown("build.references", raw, string(ReferencesFatal))
			c.Build.References = ReferencesFatal
		} else {
			res.changed("build.references", c.Build.References, v)
			c.Build.References = v
		}
	}
	if raw := strings.TrimSpace(string(c.Logging.Level)); raw != "" {
		if v, err := logLevelNormalizer.NormalizeWithError(raw); err != nil {
			res.warnUnknown("logging.level", raw, string(LogLevelInfo))
			c.Logging.Level = LogLevelInfo
		} else {
			res.changed("logging.level", c.Logging.Level, v)
			c.Logging.Level = v
		}
	}
	if raw := strings.TrimSpace(string(c.Logging.Format)); raw != "" {
		if v, err := logFormatNormalizer.NormalizeWithError(raw); err != nil {
			res.warnUnknown("logging.format", raw, string(LogFormatText))
			c.Logging.Format = LogFormatText
		} else {
			res.changed("logging.format", c.Logging.Format, v)
			c.Logging.Format = v
		}
	}

	if raw := strings.TrimSpace(string(c.Deploy.RetryBackoff)); raw != "" {
		if v, err := retryBackoffNormalizer.NormalizeWithError(raw); err != nil {
			res.warnUnknown("deploy.retry_backoff", raw, string(RetryBackoffExponential))
			c.Deploy.RetryBackoff = RetryBackoffExponential
		} else {
			res.changed("deploy.retry_backoff", c.Deploy.RetryBackoff, v)
			c.Deploy.RetryBackoff = v
		}
	}

	c.Site.BaseURL = strings.TrimSpace(c.Site.BaseURL)
	if c.Site.BaseURL != "/" {
		c.Site.BaseURL = strings.TrimRight(c.Site.BaseURL, "/")
	}
	c.Site.URL = strings.TrimRight(strings.TrimSpace(c.Site.URL), "/")
	c.Highlight.Style = strings.ToLower(strings.TrimSpace(c.Highlight.Style))
	c.Deploy.Prefix = strings.Trim(strings.TrimSpace(c.Deploy.Prefix), "/")
	return res
}

func (r *NormalizationResult) changed(field string, from, to any) {
	if fmt.Sprint(from) != fmt.Sprint(to) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("normalized %s from '%v' to '%v'", field, from, to))
	}
}

func (r *NormalizationResult) warnUnknown(field, value, def string) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("unknown %s '%s', defaulting to %s", field, value, def))
}
