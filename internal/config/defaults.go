package config

import "runtime"

const (
	DefaultContentDir      = "content"
	DefaultOutputDir       = "public"
	DefaultHighlightStyle  = "github"
	DefaultMathScript      = "https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-chtml.js"
	DefaultSearchFile      = "search-index.json"
	DefaultSearchMaxText   = 4000
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 1313
	DefaultDebounce        = "300ms"
	DefaultHistoryPath     = ".rstsite/history.db"
	DefaultHistoryKeep     = 200
	DefaultRenderCacheSize = 512
	DefaultMaxGitCommits   = 2000
	DefaultDeployRetries   = 2
	DefaultRetryDelay      = "500ms"
)

func boolPtr(b bool) *bool { return &b }

func applyDefaults(c *Config) {
	if c.Site.Title == "" {
		c.Site.Title = "Documentation"
	}
	if c.Site.Language == "" {
		c.Site.Language = "en"
	}
	if c.Content.Dir == "" {
		c.Content.Dir = DefaultContentDir
	}
	if c.Content.GitDates == nil {
		c.Content.GitDates = boolPtr(true)
	}
	if c.Content.MaxGitCommits <= 0 {
		c.Content.MaxGitCommits = DefaultMaxGitCommits
	}
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}

	if c.Build.Workers <= 0 {
		c.Build.Workers = runtime.NumCPU()
	}
	if c.Build.References == "" {
		c.Build.References = ReferencesFatal
	}
	if c.Build.RenderCacheSize <= 0 {
		c.Build.RenderCacheSize = DefaultRenderCacheSize
	}

	if c.Highlight.Style == "" {
		c.Highlight.Style = DefaultHighlightStyle
	}
	if c.Highlight.CopyButton == nil {
		c.Highlight.CopyButton = boolPtr(true)
	}
	if c.Math.Script == "" {
		c.Math.Script = DefaultMathScript
	}

	if c.Search.Enabled == nil {
		c.Search.Enabled = boolPtr(true)
	}
	if c.Search.File == "" {
		c.Search.File = DefaultSearchFile
	}
	if c.Search.MaxText <= 0 {
		c.Search.MaxText = DefaultSearchMaxText
	}

	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.Debounce == "" {
		c.Server.Debounce = DefaultDebounce
	}
	if c.Server.LiveReload == nil {
		c.Server.LiveReload = boolPtr(true)
	}
	if c.Server.Metrics == nil {
		c.Server.Metrics = boolPtr(true)
	}

	if c.Deploy.Retries == 0 {
		c.Deploy.Retries = DefaultDeployRetries
	}
	if c.Deploy.RetryBackoff == "" {
		c.Deploy.RetryBackoff = RetryBackoffExponential
	}
	if c.Deploy.RetryDelay == "" {
		c.Deploy.RetryDelay = DefaultRetryDelay
	}

	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
	if c.History.Keep <= 0 {
		c.History.Keep = DefaultHistoryKeep
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
}
