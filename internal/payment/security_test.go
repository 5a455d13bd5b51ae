package payment

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func generateTestPublicKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func TestEncryptSecurityCredential_ProducesNonEmptyBase64(t *testing.T) {
	certPEM := generateTestPublicKeyPEM(t)

	credential, err := EncryptSecurityCredential(certPEM, "initiator-password")
	require.NoError(t, err)
	require.NotEmpty(t, credential)
}

func TestEncryptSecurityCredential_RejectsInvalidPEM(t *testing.T) {
	_, err := EncryptSecurityCredential([]byte("not a pem"), "whatever")
	require.Error(t, err)
}

func TestLoadCertificate_AcceptsBarePublicKey(t *testing.T) {
	certPEM := generateTestPublicKeyPEM(t)

	loaded, err := LoadCertificate(certPEM)
	require.NoError(t, err)
	require.Equal(t, certPEM, loaded)
}

func TestLoadCertificate_RejectsGarbage(t *testing.T) {
	_, err := LoadCertificate([]byte("garbage"))
	require.Error(t, err)
}
