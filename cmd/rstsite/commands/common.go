package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/rstsite/internal/config"
	"git.home.luguber.info/inful/rstsite/internal/history"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
)

// Global is shared by every command.
type Global struct {
	Logger *slog.Logger
	// Stdout receives user-facing command output. Logs go to Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

func (g *Global) out() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Global) errOut() io.Writer {
	if g.Stderr == nil {
		return os.Stderr
	}
	return g.Stderr
}

func (g *Global) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(g.out(), format, args...)
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"site.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the site into the output directory"`
	Serve   ServeCmd   `cmd:"" help:"Serve the site locally and rebuild on changes"`
	Init    InitCmd    `cmd:"" help:"Write a starter configuration and sample content"`
	Deploy  DeployCmd  `cmd:"" help:"Upload the built site to S3-compatible storage"`
	History HistoryCmd `cmd:"" help:"Inspect recorded builds"`
}

// New returns the kong parser for cli. g and cli are bound for every command.
func New(cli *CLI, g *Global, version string, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("rstsite"),
		kong.Description("Static site generator for reStructuredText documentation."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Bind(g, cli),
	}, opts...)
	return kong.New(cli, opts...)
}

// AfterApply runs after flag parsing; setup logging once. The level and format are
// refined by loadConfig once the configuration is known.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(g.errOut(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig loads the configuration and reconfigures logging from its logging section.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = newLogger(g.errOut(), cfg.Logging, root.Verbose)
	slog.SetDefault(g.Logger)
	g.Logger.Debug("Configuration loaded", logfields.Path(root.Config))
	return cfg, nil
}

func newLogger(w io.Writer, lc config.LoggingConfig, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(lc.Level, verbose)}
	if lc.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func logLevel(l config.LogLevel, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openHistory opens the build history database. A failure is logged and yields nil so
// builds still run.
func openHistory(g *Global, cfg *config.Config) *history.Store {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		g.Logger.Warn("Build history unavailable", logfields.Path(cfg.HistoryPath()), logfields.Error(err))
		return nil
	}
	return store
}

func closeHistory(g *Global, store *history.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		g.Logger.Warn("Failed to close build history", logfields.Error(err))
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
