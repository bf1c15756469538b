package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ralt/unipkg/internal/ledger"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/version"
	"github.com/sirupsen/logrus"
)

// Downloader fetches a record's archive and returns its local path.
type Downloader interface {
	Download(ctx context.Context, pkg models.Package) (string, error)
}

// Installer applies records of one format to the system.
type Installer interface {
	// Install extracts the archive at path and returns the files it created.
	Install(ctx context.Context, pkg models.Package, path string) ([]string, error)
	// Remove deletes the files of an installed record.
	Remove(ctx context.Context, pkg models.Package) error
}

// Lister is implemented by installers that can name the files an archive
// would create without extracting it. The runner uses it to refuse an install
// that would overwrite files owned by another package.
type Lister interface {
	List(ctx context.Context, pkg models.Package, path string) ([]string, error)
}

// Report lists what an execution did.
type Report struct {
	Applied []string
	Skipped []string
}

// Runner executes transactions. Only one transaction runs at a time per
// Runner, and a lock file keeps other processes out while it does.
type Runner struct {
	mu         sync.Mutex
	ledger     *ledger.Ledger
	store      ledger.Store
	downloader Downloader
	installers map[models.Format]Installer
	lockDir    string

	// StepTimeout bounds each download, install and removal. Zero means no
	// limit beyond the caller's context.
	StepTimeout time.Duration
}

// NewRunner creates a runner committing to store after every step. lockDir
// may be empty when the caller already holds the lock.
func NewRunner(l *ledger.Ledger, store ledger.Store, dl Downloader, installers map[models.Format]Installer, lockDir string) *Runner {
	return &Runner{
		ledger:     l,
		store:      store,
		downloader: dl,
		installers: installers,
		lockDir:    lockDir,
	}
}

// Execute runs tx in the fixed order downloads, removals, installs, upgrades.
// The ledger is saved after every applied step, so after a failure it
// reflects exactly the steps that completed and running the same transaction
// again resumes from the first unapplied one.
func (r *Runner) Execute(ctx context.Context, tx *Transaction) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lockDir != "" {
		lock, err := ledger.AcquireLock(r.lockDir)
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	if err := r.checkFresh(); err != nil {
		return nil, err
	}
	if err := r.checkInstallers(tx); err != nil {
		return nil, err
	}

	logger := logrus.WithField("transaction", tx.ID)
	report := &Report{}

	// 1. downloads
	paths := make(map[string]string)
	var toFetch []models.Package
	for _, pkg := range tx.Install {
		if !r.installedAt(pkg) {
			toFetch = append(toFetch, pkg)
		}
	}
	for _, u := range tx.Upgrade {
		if !r.installedAt(u.New) {
			toFetch = append(toFetch, u.New)
		}
	}
	for _, pkg := range toFetch {
		var path string
		err := r.step(ctx, func(stepCtx context.Context) error {
			var err error
			path, err = r.downloader.Download(stepCtx, pkg)
			return err
		})
		if err != nil {
			return report, fmt.Errorf("failed to download %s: %w", pkg, err)
		}
		paths[pkg.Name] = path
		logger.WithField("package", pkg.String()).Debug("Downloaded")
	}

	// 2. removals
	for _, name := range tx.Remove {
		pkg, ok := r.ledger.Get(name)
		if !ok {
			report.Skipped = append(report.Skipped, "remove "+name)
			continue
		}
		if err := r.remove(ctx, pkg); err != nil {
			return report, err
		}
		report.Applied = append(report.Applied, "remove "+name)
		logger.WithField("package", pkg.String()).Info("Removed")
	}

	// 3. installs
	for _, pkg := range tx.Install {
		if r.installedAt(pkg) {
			report.Skipped = append(report.Skipped, "install "+pkg.String())
			continue
		}
		if err := r.install(ctx, pkg, paths[pkg.Name]); err != nil {
			return report, err
		}
		report.Applied = append(report.Applied, "install "+pkg.String())
		logger.WithField("package", pkg.String()).Info("Installed")
	}

	// 4. upgrades: old out, new in, each committed on its own
	for _, u := range tx.Upgrade {
		if r.installedAt(u.New) {
			report.Skipped = append(report.Skipped, "upgrade "+u.New.String())
			continue
		}
		if current, ok := r.ledger.Get(u.Old.Name); ok {
			if err := r.remove(ctx, current); err != nil {
				return report, err
			}
		}
		if err := r.install(ctx, u.New, paths[u.New.Name]); err != nil {
			return report, err
		}
		report.Applied = append(report.Applied, "upgrade "+u.New.String())
		logger.WithFields(logrus.Fields{"package": u.New.Name, "from": u.Old.Version, "to": u.New.Version}).Info("Upgraded")
	}

	return report, nil
}

// checkFresh rejects running against a ledger that no longer matches what is
// stored, which happens when another process committed after this one loaded
// and planned.
func (r *Runner) checkFresh() error {
	if r.store == nil {
		return nil
	}
	stored, err := r.store.Load()
	if err != nil {
		return err
	}
	if !sameInstalled(stored, r.ledger) {
		return models.NewError(models.ErrConflict, nil,
			"the installed package database changed since the transaction was planned")
	}
	return nil
}

func sameInstalled(a, b *ledger.Ledger) bool {
	x, y := a.List(), b.List()
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i].Name != y[i].Name || !version.Equal(x[i].Version, y[i].Version) {
			return false
		}
	}
	return true
}

func (r *Runner) checkInstallers(tx *Transaction) error {
	check := func(pkg models.Package) error {
		if _, ok := r.installers[pkg.Format]; !ok {
			return models.NewError(models.ErrUnsupportedFormat, []string{pkg.Name},
				"no installer for %s packages", pkg.Format)
		}
		return nil
	}

	for _, pkg := range tx.Install {
		if err := check(pkg); err != nil {
			return err
		}
	}
	for _, name := range tx.Remove {
		if pkg, ok := r.ledger.Get(name); ok {
			if err := check(pkg); err != nil {
				return err
			}
		}
	}
	for _, u := range tx.Upgrade {
		if err := check(u.Old); err != nil {
			return err
		}
		if err := check(u.New); err != nil {
			return err
		}
	}
	return nil
}

// installedAt reports whether pkg is already installed at exactly its
// version, meaning its step was applied by an earlier run.
func (r *Runner) installedAt(pkg models.Package) bool {
	current, ok := r.ledger.Get(pkg.Name)
	return ok && version.Equal(current.Version, pkg.Version)
}

func (r *Runner) remove(ctx context.Context, pkg models.Package) error {
	inst := r.installers[pkg.Format]
	if err := r.step(ctx, func(stepCtx context.Context) error {
		return inst.Remove(stepCtx, pkg)
	}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", pkg, err)
	}

	if _, err := r.ledger.Unregister(pkg.Name); err != nil {
		return err
	}
	return r.commit()
}

func (r *Runner) install(ctx context.Context, pkg models.Package, path string) error {
	inst := r.installers[pkg.Format]
	if lister, ok := inst.(Lister); ok {
		if err := r.checkOwnership(ctx, lister, pkg, path); err != nil {
			return err
		}
	}

	var files []string
	if err := r.step(ctx, func(stepCtx context.Context) error {
		var err error
		files, err = inst.Install(stepCtx, pkg, path)
		return err
	}); err != nil {
		return fmt.Errorf("failed to install %s: %w", pkg, err)
	}

	if len(files) > 0 {
		pkg.Files = files
	}
	if err := r.ledger.Register(pkg); err != nil {
		r.discard(ctx, inst, pkg)
		return err
	}
	return r.commit()
}

// checkOwnership fails when the archive ships a file another installed
// package owns.
func (r *Runner) checkOwnership(ctx context.Context, lister Lister, pkg models.Package, path string) error {
	var files []string
	if err := r.step(ctx, func(stepCtx context.Context) error {
		var err error
		files, err = lister.List(stepCtx, pkg, path)
		return err
	}); err != nil {
		return fmt.Errorf("failed to list %s: %w", pkg, err)
	}

	for _, f := range files {
		for _, candidate := range []string{f, "/" + f} {
			if owner, ok := r.ledger.FileOwner(candidate); ok && owner != pkg.Name {
				return models.NewError(models.ErrConflict, []string{pkg.Name, owner},
					"file %s is already owned by %s", f, owner)
			}
		}
	}
	return nil
}

// discard removes the files of a record that was extracted but could not be
// registered, sparing files another package owns.
func (r *Runner) discard(ctx context.Context, inst Installer, pkg models.Package) {
	var mine []string
	for _, f := range pkg.Files {
		if owner, ok := r.ledger.FileOwner(f); ok && owner != pkg.Name {
			continue
		}
		mine = append(mine, f)
	}
	pkg.Files = mine

	if err := inst.Remove(context.WithoutCancel(ctx), pkg); err != nil {
		logrus.WithError(err).WithField("package", pkg.String()).Warn("Failed to clean up after a failed install")
	}
}

func (r *Runner) commit() error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(r.ledger)
}

// step runs fn under its own deadline derived from ctx.
func (r *Runner) step(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stepCtx := ctx
	if r.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.StepTimeout)
		defer cancel()
	}
	return fn(stepCtx)
}
