// Package crypto handles the RSA material behind scan tokens: the
// verifier loads the public half from the secret backend, and the key
// rotation tooling generates fresh pairs with a fingerprint for audit.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

// Scan tokens carry short claims and a tight expiry; 2048 bits keeps
// signing cheap on issuance without weakening verification.
const keyBits = 2048

// KeyPair holds a PEM-encoded RSA pair plus the SHA-256 fingerprint of
// the public key DER bytes. The fingerprint identifies which key signed
// a token batch when pairs rotate.
type KeyPair struct {
	PrivateKeyPEM string
	PublicKeyPEM  string
	Fingerprint   string
}

// GenerateRSAKeyPair mints a fresh signing pair. The private half is
// PKCS#1, the public half PKIX, matching what the token verifier and
// secret backend expect.
func GenerateRSAKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	return &KeyPair{
		PrivateKeyPEM: encodePEM("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)),
		PublicKeyPEM:  encodePEM("PUBLIC KEY", publicDER),
		Fingerprint:   fingerprint(publicDER),
	}, nil
}

// ParsePublicKey decodes the PEM public key the verifier pulls from the
// secret backend at startup.
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not RSA")
	}

	return rsaPub, nil
}

// ParsePrivateKey decodes a PEM PKCS#1 private key for token signing.
func ParsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return key, nil
}

// ComputeFingerprint returns the fingerprint of a PEM public key,
// letting operators match a deployed key against rotation records.
func ComputeFingerprint(publicKeyPEM string) (string, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return "", fmt.Errorf("no PEM block found")
	}
	return fingerprint(block.Bytes), nil
}

func encodePEM(blockType string, der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}

func fingerprint(publicDER []byte) string {
	sum := sha256.Sum256(publicDER)
	return hex.EncodeToString(sum[:])
}
