package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Checksum contains various checksums for a file
type Checksum struct {
	MD5    string
	SHA1   string
	SHA256 string
	SHA512 string
	Size   int64
}

// Get returns the digest for hashType ("sha256" when empty).
func (c *Checksum) Get(hashType string) (string, error) {
	switch normalizeHashType(hashType) {
	case "md5":
		return c.MD5, nil
	case "sha1":
		return c.SHA1, nil
	case "sha256":
		return c.SHA256, nil
	case "sha512":
		return c.SHA512, nil
	default:
		return "", fmt.Errorf("unsupported checksum type %q", hashType)
	}
}

// CalculateChecksums calculates all checksums for a file in a single pass
func CalculateChecksums(path string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return checksumReader(f)
}

func checksumReader(r io.Reader) (*Checksum, error) {
	md5Hash := md5.New()
	sha1Hash := sha1.New()
	sha256Hash := sha256.New()
	sha512Hash := sha512.New()

	// Use MultiWriter to calculate all hashes at once
	multiWriter := io.MultiWriter(md5Hash, sha1Hash, sha256Hash, sha512Hash)

	n, err := io.Copy(multiWriter, r)
	if err != nil {
		return nil, err
	}

	return &Checksum{
		MD5:    hex.EncodeToString(md5Hash.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1Hash.Sum(nil)),
		SHA256: hex.EncodeToString(sha256Hash.Sum(nil)),
		SHA512: hex.EncodeToString(sha512Hash.Sum(nil)),
		Size:   n,
	}, nil
}

func normalizeHashType(hashType string) string {
	t := strings.ToLower(strings.ReplaceAll(hashType, "-", ""))
	switch t {
	case "", "sha256sum":
		return "sha256"
	case "md5sum":
		return "md5"
	case "sha", "sha1sum":
		return "sha1"
	case "sha512sum":
		return "sha512"
	}
	return t
}

func newHash(hashType string) (hash.Hash, error) {
	switch normalizeHashType(hashType) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum type %q", hashType)
	}
}

// CalculateChecksum calculates a specific checksum for data
func CalculateChecksum(data []byte, hashType string) (string, error) {
	h, err := newHash(hashType)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum checks data against an expected hex digest.
func VerifyChecksum(data []byte, hashType, expected string) error {
	got, err := CalculateChecksum(data, hashType)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, expected) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, got)
	}
	return nil
}

// VerifyFileChecksum checks the file at path against an expected hex digest.
func VerifyFileChecksum(path, hashType, expected string) error {
	sums, err := CalculateChecksums(path)
	if err != nil {
		return fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	got, err := sums.Get(hashType)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, expected) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, expected, got)
	}
	return nil
}
