package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/rstsite/internal/history"
)

// HistoryCmd groups the build history commands.
type HistoryCmd struct {
	List  HistoryListCmd  `cmd:"" default:"withargs" help:"List recent builds"`
	Show  HistoryShowCmd  `cmd:"" help:"Show one build with its issues"`
	Prune HistoryPruneCmd `cmd:"" help:"Delete all but the newest builds"`
}

// HistoryListCmd implements 'history list'.
type HistoryListCmd struct {
	Limit int  `short:"n" default:"20" help:"Number of builds to list (0 for all)"`
	JSON  bool `name:"json" help:"Print JSON instead of a table"`
}

// HistoryShowCmd implements 'history show'.
type HistoryShowCmd struct {
	BuildID string `arg:"" name:"build-id" help:"Build id as printed by 'history list'"`
	JSON    bool   `name:"json" help:"Print the stored build report JSON"`
}

// HistoryPruneCmd implements 'history prune'.
type HistoryPruneCmd struct {
	Keep int `help:"Builds to keep (defaults to history.keep)"`
}

type listedBuild struct {
	BuildID    string    `json:"build_id"`
	Start      time.Time `json:"start"`
	DurationMS int64     `json:"duration_ms"`
	Outcome    string    `json:"outcome"`
	Pages      int       `json:"pages"`
	Warnings   int       `json:"warnings"`
	Errors     int       `json:"errors"`
}

func withHistory(g *Global, root *CLI, fn func(ctx context.Context, store *history.Store, keep int) error) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer closeHistory(g, store)
	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, store, cfg.History.Keep)
}

func (l *HistoryListCmd) Run(g *Global, root *CLI) error {
	return withHistory(g, root, func(ctx context.Context, store *history.Store, _ int) error {
		entries, err := store.List(ctx, l.Limit)
		if err != nil {
			return err
		}
		if l.JSON {
			out := make([]listedBuild, len(entries))
			for i, e := range entries {
				out[i] = listedBuild{
					BuildID:    e.BuildID,
					Start:      e.Start.UTC(),
					DurationMS: e.Duration().Milliseconds(),
					Outcome:    e.Outcome,
					Pages:      e.Pages,
					Warnings:   e.Warnings,
					Errors:     e.Errors,
				}
			}
			return writeJSON(g, out)
		}
		if len(entries) == 0 {
			g.printf("No builds recorded\n")
			return nil
		}
		tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "BUILD\tSTARTED\tDURATION\tOUTCOME\tPAGES\tWARNINGS\tERRORS")
		for _, e := range entries {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
				e.BuildID, e.Start.Format(time.DateTime), e.Duration().Truncate(time.Millisecond), e.Outcome, e.Pages, e.Warnings, e.Errors)
		}
		return tw.Flush()
	})
}

func (s *HistoryShowCmd) Run(g *Global, root *CLI) error {
	return withHistory(g, root, func(ctx context.Context, store *history.Store, _ int) error {
		e, err := store.Get(ctx, s.BuildID)
		if err != nil {
			return err
		}
		if s.JSON {
			var buf bytes.Buffer
			if err := json.Indent(&buf, e.Report, "", "  "); err != nil {
				buf.Reset()
				buf.Write(e.Report)
			}
			buf.WriteByte('\n')
			_, err := g.out().Write(buf.Bytes())
			return err
		}
		g.printf("build:    %s\nstarted:  %s\nduration: %s\noutcome:  %s\npages:    %d\n",
			e.BuildID, e.Start.Format(time.DateTime), e.Duration().Truncate(time.Millisecond), e.Outcome, e.Pages)
		if len(e.Issues) == 0 {
			return nil
		}
		g.printf("issues:\n")
		for _, is := range e.Issues {
			g.printf("  %s %s [%s] %s\n", is.Severity, is.Code, is.Stage, is.Message)
		}
		return nil
	})
}

func (p *HistoryPruneCmd) Run(g *Global, root *CLI) error {
	return withHistory(g, root, func(ctx context.Context, store *history.Store, keep int) error {
		if p.Keep > 0 {
			keep = p.Keep
		}
		n, err := store.Prune(ctx, keep)
		if err != nil {
			return err
		}
		g.printf("Removed %d builds, kept the newest %d\n", n, keep)
		return nil
	})
}

func writeJSON(g *Global, v any) error {
	enc := json.NewEncoder(g.out())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
