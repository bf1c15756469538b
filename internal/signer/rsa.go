package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AlpineRSAVerifier implements RSAVerifier for APKINDEX signatures
type AlpineRSAVerifier struct {
	publicKey *rsa.PublicKey
	keyName   string
}

// NewAlpineRSAVerifier creates a verifier from a PEM public key file. The key
// name is the file name without its .pub/.rsa.pub suffix.
func NewAlpineRSAVerifier(keyPath string) (*AlpineRSAVerifier, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("key path is empty")
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	name := filepath.Base(keyPath)
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".pub"), ".rsa")
	return ParseAlpineRSAPublicKey(keyData, name)
}

// ParseAlpineRSAPublicKey parses a PKIX or PKCS1 PEM public key
func ParseAlpineRSAPublicKey(keyData []byte, keyName string) (*AlpineRSAVerifier, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := parseRSAPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return &AlpineRSAVerifier{publicKey: pub, keyName: keyName}, nil
}

// parseRSAPublicKey tries PKIX first, then PKCS1
func parseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(data)
	if err == nil {
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA public key")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

// VerifyRSA checks an RSA PKCS1v15 signature made over the SHA1 of data
// (Alpine APK standard)
func (v *AlpineRSAVerifier) VerifyRSA(data, signature []byte) error {
	h := sha1.New()
	h.Write(data)
	hashed := h.Sum(nil)

	if err := rsa.VerifyPKCS1v15(v.publicKey, crypto.SHA1, hashed, signature); err != nil {
		return fmt.Errorf("bad signature: %w", err)
	}
	return nil
}

// KeyName returns the key name used in APKINDEX.tar.gz.SIGN.RSA.<name>.pub
func (v *AlpineRSAVerifier) KeyName() string {
	return v.keyName
}
