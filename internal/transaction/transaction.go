// Package transaction plans install, remove and upgrade requests into a
// single ordered Transaction and executes it against the installed ledger.
package transaction

import (
	"fmt"
	"strings"

	"github.com/ralt/unipkg/internal/models"
)

// Upgrade replaces an installed record with a newer one.
type Upgrade struct {
	Old models.Package
	New models.Package
}

// Transaction is the ordered plan for one request. A name appears in at most
// one of Install, Remove and the Old side of Upgrade.
type Transaction struct {
	ID      string
	Install []models.Package
	Remove  []string
	Upgrade []Upgrade

	// DownloadSize sums the archive sizes of installs and upgrade targets.
	DownloadSize int64
	// SizeChange is the net installed-size delta in bytes.
	SizeChange int64
}

// IsEmpty reports whether the transaction has nothing to do.
func (t *Transaction) IsEmpty() bool {
	return len(t.Install) == 0 && len(t.Remove) == 0 && len(t.Upgrade) == 0
}

// Summary renders a short human readable description.
func (t *Transaction) Summary() string {
	if t.IsEmpty() {
		return "nothing to do"
	}

	var parts []string
	if len(t.Install) > 0 {
		names := make([]string, 0, len(t.Install))
		for _, p := range t.Install {
			names = append(names, p.String())
		}
		parts = append(parts, fmt.Sprintf("install %s", strings.Join(names, " ")))
	}
	if len(t.Remove) > 0 {
		parts = append(parts, fmt.Sprintf("remove %s", strings.Join(t.Remove, " ")))
	}
	if len(t.Upgrade) > 0 {
		ups := make([]string, 0, len(t.Upgrade))
		for _, u := range t.Upgrade {
			ups = append(ups, fmt.Sprintf("%s %s -> %s", u.Old.Name, u.Old.Version, u.New.Version))
		}
		parts = append(parts, fmt.Sprintf("upgrade %s", strings.Join(ups, ", ")))
	}
	return strings.Join(parts, "; ")
}
