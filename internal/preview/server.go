// Package preview serves a built site locally, rebuilds it when content or theme files
// change and tells open browsers to reload.
package preview

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/rstsite/internal/config"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/history"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/metrics"
	"git.home.luguber.info/inful/rstsite/internal/site"
)

// MetricsPath serves the build metrics when server.metrics is enabled.
const MetricsPath = "/metrics"

const shutdownTimeout = 5 * time.Second

// buildStatus tracks the last build for the error page.
type buildStatus struct {
	mu        sync.RWMutex
	lastError error
}

func (bs *buildStatus) set(err error) {
	bs.mu.Lock()
	bs.lastError = err
	bs.mu.Unlock()
}

func (bs *buildStatus) get() error {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.lastError
}

// Server is the preview server.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	builder  *site.Builder
	hub      *Hub
	registry *prom.Registry
	status   buildStatus

	// Rebuild requests are coalesced: one pending request while a build runs.
	rebuildReq chan struct{}
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger    *slog.Logger
	history   *history.Store
	outputDir string
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *serverOptions) { o.logger = l } }

// WithHistory records every preview build.
func WithHistory(s *history.Store) Option { return func(o *serverOptions) { o.history = s } }

// WithOutputDir builds into dir instead of the configured output directory.
func WithOutputDir(dir string) Option { return func(o *serverOptions) { o.outputDir = dir } }

// New returns a Server for cfg.
func New(cfg *config.Config, opts ...Option) *Server {
	o := serverOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		cfg:        cfg,
		logger:     o.logger,
		hub:        NewHub(o.logger),
		registry:   prom.NewRegistry(),
		rebuildReq: make(chan struct{}, 1),
	}
	s.registry.MustRegister(prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: "rstsite",
		Name:      "livereload_clients",
		Help:      "Browsers connected to the live reload stream",
	}, func() float64 { return float64(s.hub.Clients()) }))

	builderOpts := []site.Option{
		site.WithLogger(o.logger),
		site.WithRecorder(metrics.NewPrometheusRecorder(s.registry)),
		site.WithHistory(o.history),
	}
	if cfg.LiveReload() {
		builderOpts = append(builderOpts, site.WithLiveReload(ScriptPath))
	}
	s.builder = site.NewBuilder(cfg, o.outputDir, builderOpts...)
	return s
}

// Build runs one build, records its status and notifies the browsers.
func (s *Server) Build(ctx context.Context) error {
	report, err := s.builder.Build(ctx)
	s.status.set(err)
	if err != nil {
		s.logger.Warn("Preview build failed", logfields.Error(err))
		s.hub.Broadcast("error-" + strconv.FormatInt(time.Now().UnixNano(), 10))
		return err
	}
	s.logger.Info("Preview build finished", logfields.BuildID(report.BuildID), logfields.Count(report.Pages))
	s.hub.Broadcast(report.BuildID)
	return nil
}

// basePath is the URL path the site is mounted at, without a trailing slash.
func (s *Server) basePath() string {
	b := s.cfg.Site.BaseURL
	if u, err := url.Parse(b); err == nil && u.Scheme != "" {
		b = u.Path
	}
	return strings.TrimRight(b, "/")
}

// Handler routes the site, the live reload endpoints and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(EventsPath, s.hub)
	mux.HandleFunc(ScriptPath, serveScript)
	if s.cfg.MetricsEnabled() {
		mux.Handle(MetricsPath, metrics.HTTPHandler(s.registry))
	}
	files := s.errorPage(http.FileServer(http.Dir(s.builder.OutputDir())))
	if base := s.basePath(); base != "" {
		mux.Handle(base+"/", http.StripPrefix(base, files))
		mux.Handle("/", http.RedirectHandler(base+"/", http.StatusFound))
	} else {
		mux.Handle("/", files)
	}
	return mux
}

// errorPage replaces page requests with the build error while the last build failed.
func (s *Server) errorPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.status.get()
		if err == nil || !isPageRequest(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>Build failed</title></head><body>\n"+
			"<h1>Build failed</h1>\n<pre class=\"build-error\">%s</pre>\n<script src=\"%s\"></script>\n</body></html>\n",
			html.EscapeString(err.Error()), ScriptPath)
	})
}

func isPageRequest(r *http.Request) bool {
	p := r.URL.Path
	return strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html")
}

// Run builds the site, serves it and rebuilds on changes until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Build(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "listen").
			WithContext("addr", addr).Build()
	}
	// No write timeout: live reload streams stay open.
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second, IdleTimeout: 120 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	s.logger.Info("Preview server listening", logfields.URL("http://"+ln.Addr().String()+s.basePath()+"/"))

	roots := []string{s.cfg.ContentDir()}
	if s.cfg.Theme.Dir != "" {
		roots = append(roots, s.cfg.ThemeDir())
	}
	watcher, err := newWatcher(s.logger, roots...)
	if err != nil {
		_ = srv.Close()
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "start file watcher").Build()
	}
	defer func() { _ = watcher.Close() }()

	ctx, cancelWorker := context.WithCancel(ctx)
	deb := newDebouncer(s.cfg.DebounceDuration(), s.requestRebuild)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.rebuildLoop(ctx)
	}()

	runErr := s.watchLoop(ctx, watcher, deb, serveErr)

	deb.stop()
	cancelWorker()
	s.logger.Info("Shutting down preview server")
	s.hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Preview server shutdown error", logfields.Error(err))
	}
	<-workerDone
	return runErr
}

func (s *Server) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, deb *debouncer, serveErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-serveErr:
			if ok && err != nil {
				return ferrors.WrapError(err, ferrors.CategoryNetwork, "serve preview").Build()
			}
			serveErr = nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if shouldIgnoreEvent(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					addDirsRecursive(s.logger, watcher, ev.Name)
				}
			}
			s.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			deb.trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (s *Server) requestRebuild() {
	select {
	case s.rebuildReq <- struct{}{}:
	default:
	}
}

// rebuildLoop runs one build per request. Requests arriving during a build collapse
// into the single buffered slot and run right after it.
func (s *Server) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.rebuildReq:
			s.logger.Info("Change detected; rebuilding site")
			_ = s.Build(ctx)
		}
	}
}
