package cli

import (
	"fmt"
	"path/filepath"

	"github.com/ralt/unipkg/internal/adapter"
	"github.com/ralt/unipkg/internal/adapter/apk"
	"github.com/ralt/unipkg/internal/adapter/deb"
	"github.com/ralt/unipkg/internal/adapter/native"
	"github.com/ralt/unipkg/internal/adapter/pacman"
	"github.com/ralt/unipkg/internal/adapter/rpm"
	"github.com/ralt/unipkg/internal/adapter/winget"
	"github.com/ralt/unipkg/internal/catalog"
	"github.com/ralt/unipkg/internal/config"
	"github.com/ralt/unipkg/internal/fetch"
	"github.com/ralt/unipkg/internal/installer"
	"github.com/ralt/unipkg/internal/ledger"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/syncer"
	"github.com/ralt/unipkg/internal/transaction"
	"github.com/sirupsen/logrus"
)

func defaultConfigPath() string {
	return config.DefaultPath
}

// app holds everything a command needs, built from the configuration.
type app struct {
	cfg      *config.Config
	sources  []models.Source
	registry *adapter.Registry
	catalog  *catalog.Catalog
	cache    *catalog.Cache
	store    *ledger.FileStore
}

func newApp(opts *globalOptions) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultPath)
	}
	if err != nil {
		return nil, err
	}

	// Flags override the file
	if opts.root != "" {
		cfg.Root = opts.root
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sources, err := cfg.AllSources()
	if err != nil {
		return nil, err
	}

	logrus.Debugf("Configuration: %+v", *cfg)

	return &app{
		cfg:      cfg,
		sources:  sources,
		registry: newRegistry(),
		catalog:  catalog.New(),
		cache:    catalog.NewCache(filepath.Join(cfg.CachePath(), "indexes")),
		store:    ledger.NewFileStore(cfg.DBPath()),
	}, nil
}

func newRegistry() *adapter.Registry {
	wg := winget.New()
	reg := adapter.NewRegistry(
		deb.New(),
		rpm.New(),
		pacman.New(),
		apk.New(),
		native.New(),
		wg,
	)
	reg.RegisterAs(models.FormatMsix, wg)
	return reg
}

func newFetcher() (*fetch.Fetcher, *fetch.BreakerGetter) {
	f := fetch.NewFetcher(fetch.WithUserAgent("unipkg"))
	return f, fetch.NewBreakerGetter(f)
}

// loadCatalog fills the catalog from the index cache written by sync.
func (a *app) loadCatalog() (*catalog.Snapshot, error) {
	loaded, err := a.cache.LoadInto(a.catalog, a.sources)
	if err != nil {
		return nil, fmt.Errorf("failed to load index cache: %w", err)
	}
	if loaded == 0 && a.enabledSources() > 0 {
		logrus.Warn("No synced sources found, run 'unipkg sync' first")
	}
	return a.catalog.Snapshot(), nil
}

func (a *app) enabledSources() int {
	n := 0
	for _, s := range a.sources {
		if s.Enabled {
			n++
		}
	}
	return n
}

func (a *app) newSyncer(getter fetch.Getter) *syncer.Syncer {
	return syncer.New(a.catalog, a.registry, getter,
		syncer.WithCache(a.cache),
		syncer.WithParallel(a.cfg.ParallelDownloads),
	)
}

// newRunner creates a runner for l. The caller holds the ledger lock.
func (a *app) newRunner(l *ledger.Ledger, opener installer.Opener) *transaction.Runner {
	dl := installer.NewDownloader(filepath.Join(a.cfg.CachePath(), "packages"), opener)
	r := transaction.NewRunner(l, a.store, dl, installer.ForRoot(a.cfg.Root), "")
	r.StepTimeout = a.cfg.StepTimeout
	return r
}
