package commands

import (
	"context"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/rstsite/internal/config"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/metrics"
	"git.home.luguber.info/inful/rstsite/internal/site"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output      string `short:"o" help:"Output directory for the generated site (overrides output.dir)" type:"path"`
	Strict      bool   `help:"Fail the build on directive errors"`
	Drafts      bool   `help:"Include documents marked as drafts"`
	References  string `help:"Unresolved reference policy (fatal|warn); overrides build.references"`
	Workers     int    `help:"Worker pool size (overrides build.workers)"`
	NoHistory   bool   `name:"no-history" help:"Do not record the build in the history database"`
	MetricsFile string `name:"metrics-file" help:"Write build metrics in Prometheus text format to this file" type:"path"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	b.apply(cfg)

	ctx, cancel := signalContext()
	defer cancel()
	_, err = RunBuild(ctx, g, cfg, BuildOptions{Output: b.Output, History: !b.NoHistory, MetricsFile: b.MetricsFile})
	return err
}

// apply copies flag overrides into cfg.
func (b *BuildCmd) apply(cfg *config.Config) {
	if b.Strict {
		cfg.Build.Strict = true
	}
	if b.Drafts {
		cfg.Build.Drafts = true
	}
	if b.References != "" {
		cfg.Build.References = config.NormalizeReferencePolicy(b.References)
	}
	if b.Workers > 0 {
		cfg.Build.Workers = b.Workers
	}
}

// BuildOptions controls RunBuild.
type BuildOptions struct {
	Output      string
	History     bool
	MetricsFile string
}

// RunBuild builds the site once and prints the report. The report is returned even when
// the build fails.
func RunBuild(ctx context.Context, g *Global, cfg *config.Config, opts BuildOptions) (*site.BuildReport, error) {
	g.printf("Building site %q\n", cfg.Site.Title)

	registry := prom.NewRegistry()
	builderOpts := []site.Option{
		site.WithLogger(g.Logger),
		site.WithRecorder(metrics.NewPrometheusRecorder(registry)),
	}
	if opts.History {
		store := openHistory(g, cfg)
		defer closeHistory(g, store)
		builderOpts = append(builderOpts, site.WithHistory(store))
	}

	builder := site.NewBuilder(cfg, opts.Output, builderOpts...)
	report, err := builder.Build(ctx)
	if report != nil {
		g.printf("%s", report.Text())
	}
	if opts.MetricsFile != "" {
		if merr := prom.WriteToTextfile(opts.MetricsFile, registry); merr != nil {
			g.Logger.Warn("Failed to write metrics file", logfields.Path(opts.MetricsFile), logfields.Error(merr))
		}
	}
	if err != nil {
		g.printf("Build failed\n")
		return report, err
	}
	g.printf("Site written to %s\n", builder.OutputDir())
	return report, nil
}
