package config

import (
	"git.home.luguber.info/inful/rstsite/internal/foundation/normalization"
)

// ReferencePolicy decides what an unresolved cross-reference does to the build.
type ReferencePolicy string

const (
	ReferencesFatal ReferencePolicy = "fatal"
	ReferencesWarn  ReferencePolicy = "warn"
)

var referencePolicyNormalizer = normalization.NewNormalizer("reference policy", map[string]ReferencePolicy{
	"fatal":   ReferencesFatal,
	"error":   ReferencesFatal,
	"warn":    ReferencesWarn,
	"warning": ReferencesWarn,
}, ReferencesFatal)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer("log level", map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer("log format", map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

// RetryBackoffMode selects how the delay between deploy retries grows.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffNormalizer = normalization.NewNormalizer("retry backoff", map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"constant":    RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
	"exp":         RetryBackoffExponential,
}, RetryBackoffExponential)

func NormalizeReferencePolicy(raw string) ReferencePolicy {
	return referencePolicyNormalizer.Normalize(raw)
}

func NormalizeLogLevel(raw string) LogLevel { return logLevelNormalizer.Normalize(raw) }

func NormalizeLogFormat(raw string) LogFormat { return logFormatNormalizer.Normalize(raw) }

func NormalizeRetryBackoff(raw string) RetryBackoffMode { return retryBackoffNormalizer.Normalize(raw) }
