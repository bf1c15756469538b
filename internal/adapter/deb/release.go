package deb

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ReleaseFileInfo is one entry of a Release file's SHA256 section
type ReleaseFileInfo struct {
	Path   string
	SHA256 string
	Size   int64
}

// Release holds the parts of a Release/InRelease file the client needs
type Release struct {
	Fields map[string]string
	Files  map[string]ReleaseFileInfo
}

// ParseRelease parses the (already verified) body of a Release file
func ParseRelease(data []byte) (*Release, error) {
	rel := &Release{
		Fields: make(map[string]string),
		Files:  make(map[string]ReleaseFileInfo),
	}

	var section string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if section != "SHA256" {
				continue
			}
			parts := strings.Fields(line)
			if len(parts) != 3 {
				return nil, fmt.Errorf("malformed SHA256 entry %q", strings.TrimSpace(line))
			}
			size, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed size in %q", strings.TrimSpace(line))
			}
			rel.Files[parts[2]] = ReleaseFileInfo{Path: parts[2], SHA256: parts[0], Size: size}
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		section = strings.TrimSpace(parts[0])
		if v := strings.TrimSpace(parts[1]); v != "" {
			rel.Fields[section] = v
		}
	}

	return rel, scanner.Err()
}
