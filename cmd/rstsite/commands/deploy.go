package commands

import (
	"os"

	"git.home.luguber.info/inful/rstsite/internal/config"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/publish"
	"git.home.luguber.info/inful/rstsite/internal/retry"
	"git.home.luguber.info/inful/rstsite/internal/site"
)

// DeployCmd uploads the output directory to the configured bucket.
type DeployCmd struct {
	Build   bool   `short:"b" help:"Build the site before uploading"`
	Output  string `short:"o" help:"Directory to upload (overrides output.dir)" type:"path"`
	Prune   bool   `help:"Delete remote objects that are not part of the site (overrides deploy.prune)"`
	Prefix  string `help:"Key prefix inside the bucket (overrides deploy.prefix)"`
	Workers int    `help:"Parallel uploads (defaults to build.workers)"`
}

func (d *DeployCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	d.apply(cfg)
	if err := cfg.ValidateDeploy(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	dir := d.Output
	if dir == "" {
		dir = cfg.OutputDir()
	}
	if d.Build {
		if _, err := RunBuild(ctx, g, cfg, BuildOptions{Output: dir, History: true}); err != nil {
			return err
		}
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return ferrors.NewError(ferrors.CategoryNotFound, "output directory does not exist; run build first or pass --build").
			WithContext("path", dir).
			UserAction().
			Build()
	}

	store, err := publish.NewS3Store(cfg.Deploy)
	if err != nil {
		return err
	}
	deployer := publish.NewDeployer(store, publish.Options{
		Prefix:  cfg.Deploy.Prefix,
		Prune:   cfg.Deploy.Prune,
		Workers: d.workers(cfg),
		Exclude: []string{site.ReportJSON, site.ReportText},
		Retry:   retry.FromDeploy(cfg),
		Logger:  g.Logger,
	})
	g.printf("Deploying %s to %s/%s\n", dir, cfg.Deploy.Endpoint, cfg.Deploy.Bucket)
	res, err := deployer.Deploy(ctx, dir)
	if err != nil {
		g.printf("Deploy failed\n")
		return err
	}
	g.printf("uploaded=%d skipped=%d deleted=%d\n", res.Uploaded, res.Skipped, res.Deleted)
	return nil
}

func (d *DeployCmd) apply(cfg *config.Config) {
	if d.Prune {
		cfg.Deploy.Prune = true
	}
	if d.Prefix != "" {
		cfg.Deploy.Prefix = d.Prefix
	}
}

func (d *DeployCmd) workers(cfg *config.Config) int {
	if d.Workers > 0 {
		return d.Workers
	}
	return cfg.Build.Workers
}
