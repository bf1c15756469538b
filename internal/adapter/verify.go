package adapter

import (
	"strings"

	"github.com/ralt/unipkg/internal/models"
	"github.com/ralt/unipkg/internal/signer"
)

// LoadVerifier returns the OpenPGP verifier configured for src, or nil when
// the source carries no key. The key is either armored text or a file path.
func LoadVerifier(src models.Source) (signer.Verifier, error) {
	key := strings.TrimSpace(src.GPGKey)
	if key == "" {
		return nil, nil
	}

	var (
		v   *signer.GPGVerifier
		err error
	)
	if strings.HasPrefix(key, "-----BEGIN PGP") {
		v, err = signer.NewGPGVerifier([]byte(key))
	} else {
		v, err = signer.NewGPGVerifierFromFile(strings.TrimPrefix(key, "file://"))
	}
	if err != nil {
		return nil, SignatureError(src, err)
	}
	return v, nil
}

// SignatureError wraps a failed verification for src.
func SignatureError(src models.Source, err error) error {
	return &models.PkgError{Type: models.ErrSignature, Packages: []string{src.Name}, Err: err}
}
