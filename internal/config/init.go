package config

import (
	"bytes"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
)

// Init writes a starter configuration to path. An existing file is only replaced when
// force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).UserAction().Build()
	}

	example := Config{
		Site: SiteConfig{
			Title:       "My Documentation",
			Description: "Project documentation",
			BaseURL:     "/",
			URL:         "https://docs.example.org",
		},
		Content: ContentConfig{Dir: DefaultContentDir, Exclude: []string{"drafts/"}},
		Output:  OutputConfig{Dir: DefaultOutputDir},
		Build:   BuildConfig{References: ReferencesFatal},
		Highlight: HighlightConfig{
			Style:       DefaultHighlightStyle,
			LineNumbers: true,
		},
		Deploy: DeployConfig{
			Endpoint:  "s3.amazonaws.com",
			Bucket:    "docs-site",
			AccessKey: "${RSTSITE_S3_ACCESS_KEY}",
			SecretKey: "${RSTSITE_S3_SECRET_KEY}",
		},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	var buf bytes.Buffer
	buf.WriteString("# rstsite configuration. ${VAR} references are expanded from the\n")
	buf.WriteString("# environment and from .env next to this file.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&example); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode example configuration").Build()
	}
	if err := enc.Close(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode example configuration").Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create configuration directory").WithContext("path", dir).Build()
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write configuration").WithContext("path", path).Build()
	}
	return nil
}
