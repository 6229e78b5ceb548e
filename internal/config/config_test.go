package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "Documentation", c.Site.Title)
	assert.Equal(t, DefaultContentDir, c.Content.Dir)
	assert.Equal(t, DefaultOutputDir, c.Output.Dir)
	assert.Equal(t, runtime.NumCPU(), c.Build.Workers)
	assert.Equal(t, ReferencesFatal, c.Build.References)
	assert.Equal(t, DefaultRenderCacheSize, c.Build.RenderCacheSize)
	assert.True(t, c.GitDates())
	assert.True(t, c.CopyButton())
	assert.True(t, c.SearchEnabled())
	assert.True(t, c.LiveReload())
	assert.True(t, c.MetricsEnabled())
	assert.Equal(t, 300*time.Millisecond, c.DebounceDuration())
	assert.Equal(t, LogLevelInfo, c.Logging.Level)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RSTSITE_TEST_TITLE", "From Env")
	writeFile(t, dir, ".env", "RSTSITE_TEST_BUCKET=from-dotenv\nRSTSITE_TEST_TITLE=ignored\n")
	p := writeFile(t, dir, "site.yaml", `
site:
  title: ${RSTSITE_TEST_TITLE}
  base_url: /docs/
  url: https://example.org/
content:
  dir: src
  git_dates: false
build:
  workers: 3
  references: WARNING
  strict: true
highlight:
  style: Monokai
  copy_button: false
search:
  enabled: false
deploy:
  endpoint: s3.local:9000
  bucket: ${RSTSITE_TEST_BUCKET}
  prefix: /site/
logging:
  level: Debug
  format: JSON
`)
	t.Cleanup(func() { _ = os.Unsetenv("RSTSITE_TEST_BUCKET") })

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "From Env", c.Site.Title)
	assert.Equal(t, "/docs", c.Site.BaseURL)
	assert.Equal(t, "https://example.org", c.Site.URL)
	assert.Equal(t, filepath.Join(dir, "src"), c.ContentDir())
	assert.Equal(t, filepath.Join(dir, "public"), c.OutputDir())
	assert.Equal(t, "", c.ThemeDir())
	assert.False(t, c.GitDates())
	assert.Equal(t, 3, c.Build.Workers)
	assert.True(t, c.Build.Strict)
	assert.Equal(t, ReferencesWarn, c.Build.References)
	assert.Equal(t, "monokai", c.Highlight.Style)
	assert.False(t, c.CopyButton())
	assert.False(t, c.SearchEnabled())
	assert.Equal(t, "from-dotenv", c.Deploy.Bucket)
	assert.Equal(t, "site", c.Deploy.Prefix)
	assert.Equal(t, LogLevelDebug, c.Logging.Level)
	assert.Equal(t, LogFormatJSON, c.Logging.Format)
	require.NoError(t, c.ValidateDeploy())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))

	tests := []struct {
		name     string
		yaml     string
		category ferrors.ErrorCategory
		match    string
	}{
		{"unknown field", "site:\n  titel: x\n", ferrors.CategoryConfig, "titel"},
		{"bad yaml", "site: [\n", ferrors.CategoryConfig, "parse configuration"},
		{"relative base url", "site:\n  base_url: docs\n", ferrors.CategoryValidation, "site.base_url"},
		{"bad site url", "site:\n  url: example.org\n", ferrors.CategoryValidation, "site.url"},
		{"same dirs", "content:\n  dir: out\noutput:\n  dir: out\n", ferrors.CategoryValidation, "output.dir"},
		{"style", "highlight:\n  style: nope\n", ferrors.CategoryValidation, "highlight.style"},
		{"port", "server:\n  port: 70000\n", ferrors.CategoryValidation, "server.port"},
		{"debounce", "server:\n  debounce: soon\n", ferrors.CategoryValidation, "server.debounce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Equal(t, tt.category, ferrors.GetCategory(err))
			assert.Contains(t, err.Error(), tt.match)
		})
	}
}

func TestNormalizeConfig(t *testing.T) {
	c := &Config{
		Build:   BuildConfig{References: "sometimes"},
		Logging: LoggingConfig{Level: "WARNING", Format: "xml"},
		Site:    SiteConfig{BaseURL: " / "},
	}
	res := NormalizeConfig(c)
	assert.Equal(t, ReferencesFatal, c.Build.References)
	assert.Equal(t, LogLevelWarn, c.Logging.Level)
	assert.Equal(t, LogFormatText, c.Logging.Format)
	assert.Equal(t, "/", c.Site.BaseURL)
	assert.Len(t, res.Warnings, 3)
}

func TestEmptyFileUsesDefaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Search, c.Search)
}

func TestValidateDeploy(t *testing.T) {
	c := Default()
	assert.ErrorContains(t, c.ValidateDeploy(), "deploy.endpoint")
	c.Deploy.Endpoint = "https://s3.local"
	assert.ErrorContains(t, c.ValidateDeploy(), "without a scheme")
	c.Deploy.Endpoint = "s3.local"
	assert.ErrorContains(t, c.ValidateDeploy(), "deploy.bucket")
	c.Deploy.Bucket = "site"
	require.NoError(t, c.ValidateDeploy())
	assert.Equal(t, 500*time.Millisecond, c.RetryDelayDuration())
	c.Deploy.RetryDelay = "soon"
	assert.ErrorContains(t, c.ValidateDeploy(), "deploy.retry_delay")
}

func TestDeployRetryDefaults(t *testing.T) {
	c, err := Parse([]byte("deploy:\n  retry_backoff: Constant\n"))
	require.NoError(t, err)
	assert.Equal(t, RetryBackoffFixed, c.Deploy.RetryBackoff)
	assert.Equal(t, DefaultDeployRetries, c.Deploy.Retries)

	c, err = Parse([]byte("deploy:\n  retries: -1\n  retry_backoff: bogus\n"))
	require.NoError(t, err)
	assert.Equal(t, RetryBackoffExponential, c.Deploy.RetryBackoff)
	assert.Equal(t, -1, c.Deploy.Retries)
}

func TestInit(t *testing.T) {
	p := filepath.Join(t.TempDir(), "conf", "site.yaml")
	require.NoError(t, Init(p, false))

	t.Setenv("RSTSITE_S3_ACCESS_KEY", "key")
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "My Documentation", c.Site.Title)
	assert.Equal(t, "key", c.Deploy.AccessKey)
	assert.True(t, c.Highlight.LineNumbers)

	err = Init(p, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, Init(p, true))
}
