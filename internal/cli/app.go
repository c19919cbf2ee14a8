package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cyberbook/config"
	"cyberbook/internal/adapter/analyzer"
	"cyberbook/internal/adapter/fetch"
	"cyberbook/internal/adapter/fs"
	"cyberbook/internal/docstore"
	"cyberbook/internal/domain"
	"cyberbook/internal/logging"
	"cyberbook/internal/port"
	"cyberbook/internal/portal"
	"cyberbook/internal/router"
	"cyberbook/internal/search"
	"cyberbook/internal/usecase"
)

// app holds the components shared by the commands.
type app struct {
	cfg     *config.Config
	root    string
	source  string
	logger  *slog.Logger
	fetcher port.Fetcher
	walker  *fs.Walker
	engine  *search.Engine
	indexer *usecase.IndexUseCase
	search  *usecase.SearchUseCase

	entries []domain.ManifestEntry
	store   *docstore.Store
}

func newApp(cfg *config.Config, root string, logger *slog.Logger) *app {
	logger = logging.OrDefault(logger)
	source := cfg.ContentSource(root)
	fetcher := fetch.New(source, cfg.Content.FetchTimeout)
	walker := fs.NewWalker(cfg.Content.Includes, cfg.Content.Excludes)
	engine := search.NewEngine(analyzer.NewTokenizer(cfg.Search.Stemming), cfg.Search, search.WithLogger(logger))

	return &app{
		cfg:     cfg,
		root:    root,
		source:  source,
		logger:  logger,
		fetcher: fetcher,
		walker:  walker,
		engine:  engine,
		indexer: usecase.NewIndexUseCase(engine, fetcher, walker, cfg.Content, logger),
		search:  usecase.NewSearchUseCase(engine, 0),
	}
}

// commandApp builds an app from the command's config.
func commandApp() *app {
	return newApp(GetConfig(), GetRootDir(), GetLogger())
}

func (a *app) manifestPath() string {
	return path.Join("/", a.cfg.Content.Manifest)
}

// loadCorpus resolves the manifest and indexes every entry.
func (a *app) loadCorpus(ctx context.Context, progress usecase.Progress) (*usecase.IndexResult, error) {
	entries, err := a.indexer.Entries(ctx, a.source, a.manifestPath())
	if err != nil {
		return nil, err
	}
	a.entries = entries
	return a.indexer.IndexEntries(ctx, entries, progress), nil
}

// openStore opens the document store under the book's data directory.
func (a *app) openStore(ctx context.Context) (*docstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := config.EnsureDataDir(a.root); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	sc := a.cfg.Storage
	sc.Path = a.cfg.StorePath(a.root)
	sc.FallbackPath = a.cfg.FallbackPath(a.root)

	st, err := docstore.Open(ctx, sc, docstore.PortalSchema(), docstore.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.store = st
	return st, nil
}

func (a *app) newPortal() *portal.Portal {
	p := portal.New(portal.Deps{
		Engine:  a.engine,
		Store:   a.store,
		Fetcher: a.fetcher,
		Logger:  a.logger,
	})
	p.SetEntries(a.entries)
	return p
}

// openPortal opens the store and returns a portal over it, for commands
// that only touch notes, the session or stats.
func openPortal(cmd *cobra.Command, a *app) (*portal.Portal, error) {
	if _, err := a.openStore(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return a.newPortal(), nil
}

// newRouter mounts the portal on a fresh router rendering into view. The
// store must be open.
func (a *app) newRouter(rc config.RouterConfig, view router.View, loc router.Location) (*router.Router, *portal.Portal, error) {
	if a.store == nil {
		return nil, nil, errors.New("store is not open")
	}
	p := a.newPortal()

	r := router.New(rc, view, loc, router.WithLogger(a.logger))
	if err := p.Mount(r); err != nil {
		return nil, nil, err
	}
	return r, p, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// progressBar returns a Progress callback driving a terminal bar. The bar is
// created on the first call, once the total is known.
func progressBar(description string) usecase.Progress {
	var (
		mu        sync.Mutex
		bar       *progressbar.ProgressBar
		startTime = time.Now()
	)
	return func(done, total int, entry domain.ManifestEntry, err error) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", description)),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		_ = bar.Set(done)

		if done > 0 && done < total {
			rate := float64(done) / time.Since(startTime).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", description, formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
