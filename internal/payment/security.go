package payment

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// EncryptSecurityCredential RSA/PKCS#1-v1.5-encrypts initiator with the public
// key in certPEM and base64-encodes the result, for the reversal request's
// SecurityCredential field. The certificate is loaded once at startup (see
// LoadCertificate) and the raw initiator password is never logged.
func EncryptSecurityCredential(certPEM []byte, initiatorPassword string) (string, error) {
	pub, err := parsePublicKey(certPEM)
	if err != nil {
		return "", err
	}

	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(initiatorPassword))
	if err != nil {
		return "", fmt.Errorf("payment: rsa encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// LoadCertificate parses a PEM-encoded X.509 certificate (or a bare PKIX
// public key) and returns its bytes unchanged for later use by
// EncryptSecurityCredential, failing fast if the file doesn't contain a
// usable RSA public key.
func LoadCertificate(certPEM []byte) ([]byte, error) {
	if _, err := parsePublicKey(certPEM); err != nil {
		return nil, err
	}
	return certPEM, nil
}

func parsePublicKey(certPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("payment: certificate is not valid PEM")
	}

	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, fmt.Errorf("payment: certificate does not hold an RSA public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("payment: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("payment: not an RSA public key")
	}
	return rsaPub, nil
}
