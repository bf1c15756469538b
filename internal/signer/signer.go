package signer

// Verifier checks OpenPGP signatures on repository metadata
type Verifier interface {
	// VerifyClearsigned checks a cleartext-signed document (Debian InRelease)
	// and returns the signed content.
	VerifyClearsigned(data []byte) ([]byte, error)

	// VerifyDetached checks a detached signature (Release.gpg, repomd.xml.asc)
	VerifyDetached(data, signature []byte) error
}

// RSAVerifier checks raw RSA signatures (Alpine APKINDEX)
type RSAVerifier interface {
	// VerifyRSA checks an RSA PKCS1v15 signature over data
	VerifyRSA(data, signature []byte) error

	// KeyName returns the name the signature file is published under
	KeyName() string
}
