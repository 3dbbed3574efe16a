package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/mtprotogo/core/authkey"
	"github.com/mtprotogo/core/crypto"
	"github.com/mtprotogo/core/internal/config"
)

// loadPublicKeys decodes each configured PEM block as a PKCS#1 RSA public
// key and computes the fingerprint the AuthKey exchange (§4.3) matches
// against the server's offered resPQ fingerprint.
func loadPublicKeys(entries []config.PublicKey) (authkey.MapPublicKeys, error) {
	keys := make(authkey.MapPublicKeys, len(entries))

	for i, entry := range entries {
		block, _ := pem.Decode([]byte(entry.PEM))
		if block == nil {
			return nil, fmt.Errorf("mtcoreclient: public_key[%d] is not a PEM block", i)
		}

		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("mtcoreclient: public_key[%d] is not a PKCS#1 RSA public key: %w", i, err)
		}

		key := crypto.RSAPublicKey{
			N: pub.N,
			E: int64(pub.E),
		}
		key.Fingerprint = crypto.ComputeFingerprint(key)

		keys[key.Fingerprint] = key
	}

	return keys, nil
}
