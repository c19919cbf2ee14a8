package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cyberbook/internal/domain"
	"cyberbook/internal/portal"
	"cyberbook/internal/router"
	"cyberbook/internal/search"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the portal over HTTP",
	Long: `Index the book and serve it over HTTP. Pages are rendered by the portal
router in history mode; /api/search, /api/suggest, /api/analytics and
/api/stats return JSON. With --watch, markdown files changed on disk are
re-indexed while the server runs.

Examples:
  cyberbook serve
  cyberbook serve --addr :9000 --watch`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "re-index content files when they change")
}

// server renders portal pages through one shared router. Navigation is
// serialized because the router renders into a single view.
type server struct {
	a      *app
	logger *slog.Logger

	mu     sync.Mutex
	router *router.Router
	view   *router.DOMView
	portal *portal.Portal

	static http.Handler
}

func newServer(a *app) (*server, error) {
	rc := a.cfg.Router
	rc.Mode = string(router.ModeHistory)

	view := router.NewDOMView("Cyberbook", router.WithViewLogger(a.logger))
	r, p, err := a.newRouter(rc, view, nil)
	if err != nil {
		return nil, err
	}

	s := &server{
		a:      a,
		logger: a.logger,
		router: r,
		view:   view,
		portal: p,
	}
	if isLocalDir(a.source) {
		s.static = http.FileServer(http.Dir(a.source))
	}
	return s, nil
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/suggest", s.handleSuggest)
	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST "+portal.LoginAction, s.handleLogin)
	mux.HandleFunc("DELETE "+portal.LoginAction, s.handleLogout)
	mux.HandleFunc("GET /", s.handlePage)
	return requestLogger(s.logger)(mux)
}

func (s *server) setEntries(entries []domain.ManifestEntry) {
	s.portal.SetEntries(entries)
}

func (s *server) handlePage(w http.ResponseWriter, r *http.Request) {
	if path.Ext(r.URL.Path) != "" {
		if s.static == nil {
			http.NotFound(w, r)
			return
		}
		s.static.ServeHTTP(w, r)
		return
	}

	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.router.Navigate(r.Context(), target, nil, true)
	status := http.StatusOK
	switch {
	case errors.Is(err, router.ErrNotFound):
		status = http.StatusNotFound
	case err != nil:
		status = http.StatusInternalServerError
	}

	var page bytes.Buffer
	if err := s.view.WriteHTML(&page); err != nil {
		s.logger.Error("render page", "path", target, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Location", s.router.Current())
	w.WriteHeader(status)
	_, _ = page.WriteTo(w)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts []search.SearchOption
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts = append(opts, search.WithLimit(n))
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		opts = append(opts, search.WithOffset(n))
	}
	if q.Get("fuzzy") == "false" {
		opts = append(opts, search.WithFuzzy(false))
	}
	if c := q.Get("category"); c != "" {
		opts = append(opts, search.WithFilter("category", c))
	}
	writeJSON(w, http.StatusOK, s.a.search.Search(q.Get("q"), opts...))
}

func (s *server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = s.a.cfg.Search.SuggestionLimit
	}
	writeJSON(w, http.StatusOK, s.a.search.Suggest(r.URL.Query().Get("q"), limit))
}

func (s *server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.a.search.Analytics())
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	reading, err := s.a.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index":   s.a.engine.Stats(),
		"reading": reading,
		"storage": s.a.store.Mode(),
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	user := r.FormValue("user")
	if user == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "user is required"})
		return
	}
	if err := s.portal.Auth().Login(r.Context(), user, 24*time.Hour); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	http.Redirect(w, r, localRedirect(r.FormValue("next")), http.StatusSeeOther)
}

// localRedirect returns next when it is a path on this server, and the home
// page otherwise. Protocol-relative and backslash forms are rejected because
// browsers resolve them to another host.
func localRedirect(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return portal.PathHome
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return portal.PathHome
	}
	return next
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.portal.Auth().Logout(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs method, path, status and latency of every request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"latency", time.Since(start).String(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := commandApp()
	defer a.Close()

	if _, err := a.openStore(ctx); err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	result, err := a.loadCorpus(ctx, progressBar("Indexing"))
	if err != nil {
		return fmt.Errorf("failed to load book: %w", err)
	}
	a.logger.Info("book loaded", "indexed", result.Indexed, "failed", result.Failed)

	s, err := newServer(a)
	if err != nil {
		return err
	}

	if serveWatch || a.cfg.Server.Watch {
		w, err := newContentWatcher(a, s.setEntries)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				a.logger.Error("watcher stopped", "error", err)
			}
		}()
	}

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", addr, "storage", a.store.Mode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
