package installer

import (
	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/transaction"
)

var (
	_ transaction.Installer  = (*TarInstaller)(nil)
	_ transaction.Installer  = (*DebInstaller)(nil)
	_ transaction.Installer  = (*RpmInstaller)(nil)
	_ transaction.Lister     = (*TarInstaller)(nil)
	_ transaction.Lister     = (*DebInstaller)(nil)
	_ transaction.Lister     = (*RpmInstaller)(nil)
	_ transaction.Downloader = (*Downloader)(nil)
)

// ForRoot returns an installer for every format that can be applied to a
// root directory. Windows installer formats have none.
func ForRoot(root string) map[models.Format]transaction.Installer {
	tarInstaller := NewTarInstaller(root)
	return map[models.Format]transaction.Installer{
		models.FormatNative: tarInstaller,
		models.FormatPacman: tarInstaller,
		models.FormatApk:    tarInstaller,
		models.FormatDeb:    NewDebInstaller(root),
		models.FormatRpm:    NewRpmInstaller(root),
	}
}
