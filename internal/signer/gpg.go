package signer

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
)

// GPGVerifier implements Verifier against a public keyring
type GPGVerifier struct {
	keyring openpgp.EntityList
}

// NewGPGVerifier creates a verifier from an armored or binary public keyring
func NewGPGVerifier(keyData []byte) (*GPGVerifier, error) {
	// Try to parse as armored key first
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyData))
	if err != nil {
		// Try as binary key
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(keyData))
		if err != nil {
			return nil, fmt.Errorf("failed to read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("no keys found in keyring")
	}

	return &GPGVerifier{keyring: keyring}, nil
}

// NewGPGVerifierFromFile reads the keyring at keyPath
func NewGPGVerifierFromFile(keyPath string) (*GPGVerifier, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("key path is empty")
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return NewGPGVerifier(keyData)
}

// VerifyClearsigned checks a cleartext signature (Debian InRelease)
func (v *GPGVerifier) VerifyClearsigned(data []byte) ([]byte, error) {
	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no cleartext signature found")
	}

	_, err := openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil)
	if err != nil {
		return nil, fmt.Errorf("bad signature: %w", err)
	}

	return block.Plaintext, nil
}

// VerifyDetached checks an armored or binary detached signature
func (v *GPGVerifier) VerifyDetached(data, signature []byte) error {
	var err error
	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte("-----BEGIN PGP SIGNATURE-----")) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	}
	if err != nil {
		return fmt.Errorf("bad signature: %w", err)
	}
	return nil
}
