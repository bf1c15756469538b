package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ralt/unipkg/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// dnf priorities run from 1 (preferred) to 99 (default); ours grow the other way.
const dnfDefaultPriority = 99

// ImportDir reads every *.repo and *.list file in dir, in name order.
func ImportDir(dir string) ([]models.Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("failed to read sources dir: %w", err),
		}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var sources []models.Source
	for _, name := range names {
		path := filepath.Join(dir, name)
		var imported []models.Source
		switch filepath.Ext(name) {
		case ".repo":
			imported, err = ImportRepoFile(path)
		case ".list":
			imported, err = ImportListFile(path)
		default:
			logrus.Debugf("Ignoring %s", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		logrus.Debugf("Imported %d sources from %s", len(imported), path)
		sources = append(sources, imported...)
	}
	return sources, nil
}

// ImportRepoFile reads a dnf/yum .repo file. Every section is one rpm source.
func ImportRepoFile(path string) ([]models.Source, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("failed to load %s: %w", path, err),
		}
	}

	var sources []models.Source
	for _, section := range cfg.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			continue
		}

		urls := strings.Fields(section.Key("baseurl").String())
		if len(urls) == 0 {
			// mirrorlist and metalink need a resolver we do not have
			logrus.WithField("source", name).Warnf("Skipping %s: no baseurl", path)
			continue
		}

		src := models.Source{
			Name:     name,
			URL:      urls[0],
			Format:   models.FormatRpm,
			Enabled:  section.Key("enabled").MustBool(true),
			Priority: dnfDefaultPriority + 1 - section.Key("priority").MustInt(dnfDefaultPriority),
		}
		if section.Key("gpgcheck").MustBool(false) {
			if keys := strings.Fields(section.Key("gpgkey").String()); len(keys) > 0 {
				src.GPGKey = keys[0]
			}
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// ImportListFile reads an apt sources.list style file.
func ImportListFile(path string) ([]models.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("failed to open %s: %w", path, err),
		}
	}
	defer f.Close()

	prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseAptList(f, prefix)
}

// ParseAptList parses one-line apt entries:
//
//	deb [arch=amd64 signed-by=/usr/share/keyrings/x.asc] https://host/debian bookworm main contrib
//
// Sources are named prefix-1, prefix-2 and so on in file order. deb-src
// lines are ignored.
func ParseAptList(r io.Reader, prefix string) ([]models.Source, error) {
	var sources []models.Source
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "deb-src" {
			continue
		}
		if fields[0] != "deb" {
			return nil, models.NewError(models.ErrInvalidConfig, []string{prefix},
				"line %d: unknown entry type %q", lineNo, fields[0])
		}
		fields = fields[1:]

		src := models.Source{Format: models.FormatDeb, Enabled: true}
		if len(fields) > 0 && strings.HasPrefix(fields[0], "[") {
			var opts []string
			opts, fields = splitOptions(fields)
			applyOptions(&src, opts)
		}
		if len(fields) < 2 {
			return nil, models.NewError(models.ErrInvalidConfig, []string{prefix},
				"line %d: expected url and distribution", lineNo)
		}

		src.URL = fields[0]
		dist := fields[1]
		if strings.HasSuffix(dist, "/") {
			// Flat repository: the index lives below url/dist
			if dist != "./" {
				src.URL = strings.TrimRight(src.URL, "/") + "/" + strings.TrimRight(dist, "/")
			}
		} else {
			src.Distribution = dist
			src.Components = fields[2:]
		}
		src.Name = fmt.Sprintf("%s-%d", prefix, len(sources)+1)
		sources = append(sources, src)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return sources, nil
}

// splitOptions separates a leading "[k=v ...]" block from the remaining fields.
func splitOptions(fields []string) ([]string, []string) {
	var opts []string
	for i, f := range fields {
		f = strings.TrimPrefix(f, "[")
		end := strings.HasSuffix(f, "]")
		f = strings.TrimSuffix(f, "]")
		if f != "" {
			opts = append(opts, f)
		}
		if end {
			return opts, fields[i+1:]
		}
	}
	return opts, nil
}

func applyOptions(src *models.Source, opts []string) {
	for _, opt := range opts {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			continue
		}
		switch key {
		case "arch":
			src.Arches = strings.Split(value, ",")
		case "signed-by":
			src.GPGKey = value
		}
	}
}
