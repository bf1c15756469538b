package transaction

import (
	"github.com/google/uuid"
	"github.com/ralt/unipkg/internal/ledger"
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/resolver"
	"github.com/ralt/unipkg/internal/version"
	"github.com/sirupsen/logrus"
)

// Request is what the user asked for.
type Request struct {
	Install    []models.Dependency
	Remove     []string
	Upgrade    []string
	UpgradeAll bool
}

// Planner turns requests into transactions. It reads the catalog and ledger
// but never mutates them.
type Planner struct {
	catalog resolver.Catalog
	ledger  *ledger.Ledger
}

// NewPlanner creates a planner
func NewPlanner(cat resolver.Catalog, l *ledger.Ledger) *Planner {
	return &Planner{catalog: cat, ledger: l}
}

// Plan computes the transaction for req. Any failure rejects the whole
// request; no partial transaction is returned.
func (p *Planner) Plan(req Request) (*Transaction, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	tx := &Transaction{ID: uuid.New().String()}
	logger := logrus.WithField("transaction", tx.ID)

	removing := make(map[string]bool)
	for _, name := range req.Remove {
		if removing[name] {
			continue
		}
		if !p.ledger.IsInstalled(name) {
			return nil, models.NewError(models.ErrNotInstalled, []string{name}, "cannot remove %s: not installed", name)
		}
		removing[name] = true
		tx.Remove = append(tx.Remove, name)
	}

	upgrades, err := p.planUpgrades(req, removing)
	if err != nil {
		return nil, err
	}

	// Resolve against the ledger as it will look once removals and upgrades
	// have been applied.
	overlay := p.ledger.Clone()
	for _, name := range tx.Remove {
		overlay.Unregister(name)
	}
	for _, u := range upgrades {
		if err := overlay.Register(u.New); err != nil {
			return nil, err
		}
	}

	requests := make([]models.Dependency, 0, len(req.Install))
	for _, dep := range req.Install {
		if installed, ok := p.ledger.Get(dep.Name); ok && version.Satisfies(installed.Version, dep.Constraint) {
			logger.WithField("package", installed.String()).Info("Package is already installed")
		}
		requests = append(requests, dep)
	}
	for _, u := range upgrades {
		requests = append(requests, u.New.Dependencies...)
	}

	res, err := resolver.New(p.catalog, overlay).Resolve(requests)
	if err != nil {
		return nil, err
	}

	for _, pkg := range res.Packages {
		if removing[pkg.Name] {
			return nil, models.NewError(models.ErrDependency, append([]string{pkg.Name}, dependentsOf(pkg.Name, res.Packages)...),
				"%s is being removed but is required by the transaction", pkg.Name)
		}
	}
	tx.Install = res.Packages

	for _, name := range res.Replaced {
		if removing[name] {
			continue
		}
		logger.WithField("package", name).Info("Package is replaced and will be removed")
		removing[name] = true
		tx.Remove = append(tx.Remove, name)
	}
	for _, u := range upgrades {
		if removing[u.Old.Name] {
			continue
		}
		for _, name := range u.New.Replaces {
			if name == u.New.Name || removing[name] || !p.ledger.IsInstalled(name) {
				continue
			}
			logger.WithFields(logrus.Fields{"package": name, "by": u.New.String()}).Info("Package is replaced and will be removed")
			removing[name] = true
			tx.Remove = append(tx.Remove, name)
		}
	}
	for _, u := range upgrades {
		if !removing[u.Old.Name] {
			tx.Upgrade = append(tx.Upgrade, u)
		}
	}

	final, err := p.finalState(tx)
	if err != nil {
		return nil, err
	}
	if err := p.checkReverseDependencies(final); err != nil {
		return nil, err
	}
	if err := checkUpgradeConflicts(tx.Upgrade, final); err != nil {
		return nil, err
	}

	p.computeTotals(tx)
	logger.Debugf("Planned: %s", tx.Summary())
	return tx, nil
}

func validate(req Request) error {
	where := make(map[string]string)
	mark := func(name, list string) error {
		if name == "" {
			return models.NewError(models.ErrInvalidRequest, nil, "empty package name in %s request", list)
		}
		if prev, ok := where[name]; ok && prev != list {
			return models.NewError(models.ErrInvalidRequest, []string{name},
				"%s cannot be both in %s and %s requests", name, prev, list)
		}
		where[name] = list
		return nil
	}

	for _, dep := range req.Install {
		if err := mark(dep.Name, "install"); err != nil {
			return err
		}
	}
	for _, name := range req.Remove {
		if err := mark(name, "remove"); err != nil {
			return err
		}
	}
	for _, name := range req.Upgrade {
		if err := mark(name, "upgrade"); err != nil {
			return err
		}
	}
	return nil
}

// planUpgrades pairs installed records with strictly newer catalog versions.
// Equal or older candidates are never selected.
func (p *Planner) planUpgrades(req Request, removing map[string]bool) ([]Upgrade, error) {
	var names []string
	explicit := len(req.Upgrade) > 0
	if explicit {
		seen := make(map[string]bool)
		for _, name := range req.Upgrade {
			if seen[name] {
				continue
			}
			seen[name] = true
			if !p.ledger.IsInstalled(name) {
				return nil, models.NewError(models.ErrNotInstalled, []string{name}, "cannot upgrade %s: not installed", name)
			}
			if !p.catalog.Has(name) {
				return nil, models.NewError(models.ErrPackageNotFound, []string{name}, "%s is not offered by any source", name)
			}
			names = append(names, name)
		}
	} else if req.UpgradeAll {
		for _, name := range p.ledger.Names() {
			if removing[name] || !p.catalog.Has(name) {
				continue
			}
			names = append(names, name)
		}
	}

	var upgrades []Upgrade
	for _, name := range names {
		old, _ := p.ledger.Get(name)
		best, ok := p.catalog.BestVersion(name)
		if !ok || version.Compare(best.Version, old.Version) <= 0 {
			logrus.WithField("package", old.String()).Debug("Already up to date")
			continue
		}
		upgrades = append(upgrades, Upgrade{Old: old, New: best})
	}
	return upgrades, nil
}

// finalState applies tx to a copy of the ledger. Registering the new records
// catches file collisions with packages that stay installed.
func (p *Planner) finalState(tx *Transaction) (*ledger.Ledger, error) {
	final := p.ledger.Clone()
	for _, name := range tx.Remove {
		final.Unregister(name)
	}
	for _, u := range tx.Upgrade {
		if err := final.Register(u.New); err != nil {
			return nil, err
		}
	}
	for _, pkg := range tx.Install {
		if err := final.Register(pkg); err != nil {
			return nil, err
		}
	}
	return final, nil
}

// checkReverseDependencies rejects the transaction when a package that stays
// installed has a dependency that holds today but would no longer hold
// afterwards.
func (p *Planner) checkReverseDependencies(final *ledger.Ledger) error {
	for _, name := range p.ledger.Names() {
		after, ok := final.Get(name)
		if !ok {
			continue
		}
		for _, dep := range after.Dependencies {
			if satisfiedBy(p.ledger, dep) && !satisfiedBy(final, dep) {
				return models.NewError(models.ErrDependency, []string{name, dep.Name},
					"%s depends on %s, which would no longer be satisfied", after, dep)
			}
		}
	}
	return nil
}

func satisfiedBy(l *ledger.Ledger, dep models.Dependency) bool {
	if pkg, ok := l.Get(dep.Name); ok {
		return version.Satisfies(pkg.Version, dep.Constraint)
	}
	_, ok := l.Provider(dep.Name)
	return ok
}

// checkUpgradeConflicts checks upgraded records against everything that will
// be installed afterwards; new installs were already checked by the resolver.
func checkUpgradeConflicts(upgrades []Upgrade, final *ledger.Ledger) error {
	for _, u := range upgrades {
		for _, other := range final.List() {
			if other.Name == u.New.Name || u.New.ReplacesName(other.Name) {
				continue
			}
			if u.New.ConflictsWith(other) || other.ConflictsWith(u.New) {
				return models.NewError(models.ErrConflict, []string{u.New.Name, other.Name},
					"%s conflicts with %s", u.New, other)
			}
		}
	}
	return nil
}

func (p *Planner) computeTotals(tx *Transaction) {
	for _, pkg := range tx.Install {
		tx.DownloadSize += pkg.Size
		tx.SizeChange += pkg.InstalledSize
	}
	for _, name := range tx.Remove {
		if pkg, ok := p.ledger.Get(name); ok {
			tx.SizeChange -= pkg.InstalledSize
		}
	}
	for _, u := range tx.Upgrade {
		tx.DownloadSize += u.New.Size
		tx.SizeChange += u.New.InstalledSize - u.Old.InstalledSize
	}
}

func dependentsOf(name string, pkgs []models.Package) []string {
	var out []string
	for _, p := range pkgs {
		for _, dep := range p.Dependencies {
			if dep.Name == name {
				out = append(out, p.Name)
				break
			}
		}
	}
	return out
}
