package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/utils"
	"github.com/sirupsen/logrus"
)

// Cache keeps each source's parsed records on disk as gzip-compressed JSON so
// that commands run after a sync work offline.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) path(sourceName string) string {
	return filepath.Join(c.dir, sourceName+".json.gz")
}

// Save stores the records of one source, replacing any previous copy.
func (c *Cache) Save(sourceName string, records []models.Package) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode index for %s: %w", sourceName, err)
	}

	compressed, err := utils.GzipCompress(data)
	if err != nil {
		return fmt.Errorf("failed to compress index for %s: %w", sourceName, err)
	}

	if err := utils.WriteFileAtomic(c.path(sourceName), compressed, 0644); err != nil {
		return models.NewError(models.ErrIO, []string{sourceName}, "failed to write index cache: %v", err)
	}
	return nil
}

// Load reads the cached records of one source. A missing cache yields
// os.ErrNotExist.
func (c *Cache) Load(sourceName string) ([]models.Package, error) {
	compressed, err := os.ReadFile(c.path(sourceName))
	if err != nil {
		return nil, err
	}

	data, err := utils.GzipDecompress(compressed)
	if err != nil {
		return nil, models.NewError(models.ErrParse, []string{sourceName}, "corrupt index cache: %v", err)
	}

	var records []models.Package
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, models.NewError(models.ErrParse, []string{sourceName}, "corrupt index cache: %v", err)
	}
	return records, nil
}

// LoadInto fills cat with the cached records of every enabled source and
// returns how many sources had a cache. Sources never synced are skipped.
func (c *Cache) LoadInto(cat *Catalog, sources []models.Source) (int, error) {
	loaded := 0
	for _, src := range sources {
		if !src.Enabled {
			continue
		}

		records, err := c.Load(src.Name)
		if err != nil {
			if os.IsNotExist(err) {
				logrus.WithField("source", src.Name).Debug("No cached index, run sync first")
				continue
			}
			return loaded, err
		}

		cat.Replace(src, records)
		loaded++
	}
	return loaded, nil
}
