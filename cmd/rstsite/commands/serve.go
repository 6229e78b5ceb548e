package commands

import (
	"os"

	"git.home.luguber.info/inful/rstsite/internal/config"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/preview"
)

// ServeCmd starts the preview server.
type ServeCmd struct {
	Host         string `help:"Listen address (overrides server.host)"`
	Port         int    `short:"p" help:"Listen port (overrides server.port)"`
	Output       string `short:"o" help:"Output directory for the preview build (defaults to a temporary directory)" type:"path"`
	Drafts       bool   `help:"Include documents marked as drafts"`
	NoLiveReload bool   `name:"no-live-reload" help:"Disable live reload script injection"`
	NoHistory    bool   `name:"no-history" help:"Do not record preview builds in the history database"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	s.apply(cfg)

	outDir := s.Output
	if outDir == "" {
		tmp, err := os.MkdirTemp("", "rstsite-preview-*")
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create preview output directory").Build()
		}
		defer func() {
			if err := os.RemoveAll(tmp); err != nil {
				g.Logger.Warn("Failed to remove preview output", logfields.Path(tmp), logfields.Error(err))
			}
		}()
		outDir = tmp
		g.Logger.Info("Using temporary output directory for preview", logfields.Path(outDir))
	}

	opts := []preview.Option{preview.WithLogger(g.Logger), preview.WithOutputDir(outDir)}
	if !s.NoHistory {
		store := openHistory(g, cfg)
		defer closeHistory(g, store)
		opts = append(opts, preview.WithHistory(store))
	}

	ctx, cancel := signalContext()
	defer cancel()
	g.printf("Serving %q on http://%s:%d\n", cfg.Site.Title, cfg.Server.Host, cfg.Server.Port)
	return preview.New(cfg, opts...).Run(ctx)
}

func (s *ServeCmd) apply(cfg *config.Config) {
	if s.Host != "" {
		cfg.Server.Host = s.Host
	}
	if s.Port > 0 {
		cfg.Server.Port = s.Port
	}
	if s.Drafts {
		cfg.Build.Drafts = true
	}
	if s.NoLiveReload {
		off := false
		cfg.Server.LiveReload = &off
	}
}
