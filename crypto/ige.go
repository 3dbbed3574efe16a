// AES-IGE 256 via the gotd/ige package: the real ecosystem implementation
// of MTProto's non-standard Infinite Garble Extension cipher mode, already
// an indirect dependency of the teacher repository (gotd/td pulls it in
// for exactly this purpose).
package crypto

import (
	"crypto/aes"
	"fmt"

	"github.com/gotd/ige"
)

// IGEEncrypt encrypts plaintext (which must be a multiple of the AES block
// size) under key/iv using AES-256-IGE.
func IGEEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cannot build aes cipher: %w", err)
	}

	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: ige plaintext length %d is not block aligned", len(plaintext))
	}

	out := make([]byte, len(plaintext))
	ige.NewIGEEncrypter(block, iv).CryptBlocks(out, plaintext)

	return out, nil
}

// IGEDecrypt reverses IGEEncrypt.
func IGEDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cannot build aes cipher: %w", err)
	}

	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: ige ciphertext length %d is not block aligned", len(ciphertext))
	}

	out := make([]byte, len(ciphertext))
	ige.NewIGEDecrypter(block, iv).CryptBlocks(out, ciphertext)

	return out, nil
}
