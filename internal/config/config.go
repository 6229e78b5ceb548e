// Package config loads site.yaml.
//
// Loading runs in a fixed order: .env files are read into the process environment,
// ${VAR} references in the YAML are expanded, enumerations are normalized, defaults
// are applied and the result is validated.
package config

import (
	"path/filepath"
)

// DefaultFile is the configuration file name looked up when none is given.
const DefaultFile = "site.yaml"

// Config is the complete site configuration.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Content   ContentConfig   `yaml:"content"`
	Theme     ThemeConfig     `yaml:"theme"`
	Output    OutputConfig    `yaml:"output"`
	Build     BuildConfig     `yaml:"build"`
	Highlight HighlightConfig `yaml:"highlight"`
	Math      MathConfig      `yaml:"math"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Deploy    DeployConfig    `yaml:"deploy"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`

	// baseDir is the directory of the loaded file. Relative paths resolve against it.
	baseDir string
}

// SiteConfig describes the published site.
type SiteConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Language    string `yaml:"language,omitempty"`
	// BaseURL is the path prefix every emitted link starts with, e.g. "/docs".
	BaseURL string `yaml:"base_url"`
	// URL is the absolute site origin used in sitemap.xml, e.g. "https://example.org".
	URL string `yaml:"url,omitempty"`
}

// ContentConfig locates the documents.
type ContentConfig struct {
	Dir     string   `yaml:"dir"`
	Exclude []string `yaml:"exclude,omitempty"`
	// GitDates takes last-modified dates from git history when the content is in a
	// repository.
	GitDates      *bool `yaml:"git_dates,omitempty"`
	MaxGitCommits int   `yaml:"max_git_commits,omitempty"`
}

// ThemeConfig selects the theme. An empty Dir uses the built-in theme.
type ThemeConfig struct {
	Dir string `yaml:"dir,omitempty"`
	// Disable lists components ("category/name" or bare names) not registered.
	Disable []string `yaml:"disable,omitempty"`
}

// OutputConfig controls where the site is written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// BuildConfig tunes the build pipeline.
type BuildConfig struct {
	Workers int `yaml:"workers,omitempty"`
	// Strict turns directive errors into build failures.
	Strict     bool            `yaml:"strict,omitempty"`
	References ReferencePolicy `yaml:"references,omitempty"`
	Drafts     bool            `yaml:"drafts,omitempty"`
	// RenderCacheSize bounds the per-build memo of rendered code, diagrams and scores.
	RenderCacheSize int `yaml:"render_cache_size,omitempty"`
	DiagramWidth    int `yaml:"diagram_width,omitempty"`
	MusicWidth      int `yaml:"music_width,omitempty"`
}

// HighlightConfig configures code blocks.
type HighlightConfig struct {
	Style       string            `yaml:"style,omitempty"`
	LineNumbers bool              `yaml:"line_numbers,omitempty"`
	CopyButton  *bool             `yaml:"copy_button,omitempty"`
	Aliases     map[string]string `yaml:"aliases,omitempty"`
}

// MathConfig configures client-side math typesetting.
type MathConfig struct {
	Script string `yaml:"script,omitempty"`
}

// SearchConfig configures the search index.
type SearchConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	File    string `yaml:"file,omitempty"`
	// MaxText truncates the indexed body text of a page, in runes.
	MaxText int `yaml:"max_text,omitempty"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Debounce   string `yaml:"debounce,omitempty"`
	LiveReload *bool  `yaml:"live_reload,omitempty"`
	Metrics    *bool  `yaml:"metrics,omitempty"`
}

// DeployConfig targets S3-compatible object storage.
type DeployConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Insecure  bool   `yaml:"insecure,omitempty"`
	// Prune removes objects under Prefix that are not part of the site.
	Prune bool `yaml:"prune,omitempty"`
	// Retries is how often a failed upload or delete is retried. Negative disables
	// retries.
	Retries      int              `yaml:"retries,omitempty"`
	RetryBackoff RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryDelay   string           `yaml:"retry_delay,omitempty"`
}

// HistoryConfig configures the build history database.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
	Keep int    `yaml:"keep,omitempty"`
}

// LoggingConfig configures the default logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// BaseDir returns the directory relative paths resolve against.
func (c *Config) BaseDir() string { return c.baseDir }

// SetBaseDir changes the directory relative paths resolve against.
func (c *Config) SetBaseDir(dir string) { c.baseDir = dir }

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// ContentDir is the absolute or base-relative content directory.
func (c *Config) ContentDir() string { return c.resolve(c.Content.Dir) }

// OutputDir is the output directory.
func (c *Config) OutputDir() string { return c.resolve(c.Output.Dir) }

// ThemeDir is the theme directory, empty for the built-in theme.
func (c *Config) ThemeDir() string { return c.resolve(c.Theme.Dir) }

// HistoryPath is the build history database file.
func (c *Config) HistoryPath() string { return c.resolve(c.History.Path) }

func enabled(b *bool) bool { return b != nil && *b }

// GitDates reports whether git history supplies last-modified dates.
func (c *Config) GitDates() bool { return enabled(c.Content.GitDates) }

// CopyButton reports whether code blocks get a copy button.
func (c *Config) CopyButton() bool { return enabled(c.Highlight.CopyButton) }

// SearchEnabled reports whether search-index.json is written.
func (c *Config) SearchEnabled() bool { return enabled(c.Search.Enabled) }

// LiveReload reports whether the preview server injects the reload script.
func (c *Config) LiveReload() bool { return enabled(c.Server.LiveReload) }

// MetricsEnabled reports whether the preview server exposes /metrics.
func (c *Config) MetricsEnabled() bool { return enabled(c.Server.Metrics) }
