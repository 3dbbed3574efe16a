package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"

	internalconfig "github.com/mtprotogo/core/internal/config"
)

func pemFor(t *testing.T, key *rsa.PublicKey) string {
	t.Helper()

	der := x509.MarshalPKCS1PublicKey(key)
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: der}

	return string(pem.EncodeToMemory(block))
}

func TestLoadPublicKeysParsesPEMAndFingerprints(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys, err := loadPublicKeys([]internalconfig.PublicKey{{PEM: pemFor(t, &priv.PublicKey)}})
	require.NoError(t, err)
	require.Len(t, keys, 1)

	for fp, key := range keys {
		require.Equal(t, fp, key.Fingerprint)
		require.Equal(t, priv.PublicKey.N, key.N)
	}
}

func TestLoadPublicKeysRejectsGarbage(t *testing.T) {
	_, err := loadPublicKeys([]internalconfig.PublicKey{{PEM: "not a pem block"}})
	require.Error(t, err)
}
