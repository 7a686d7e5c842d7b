package nip44

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/nostrforge/corenostr/hexutil"
	"github.com/nostrforge/corenostr/keys"
)

// Deprecated: NIP-04 is superseded by NIP-44. It remains here only so
// callers can interoperate with clients that have not migrated.

// NIP04SharedSecret computes the ECDH shared secret used by NIP-04,
// returning only the 32-byte x-coordinate (RFC 5903 §9 convention).
func NIP04SharedSecret(senderPriv *keys.KeyPair, recipientPub keys.PublicKey) ([]byte, error) {
	privKey, _ := btcec.PrivKeyFromBytes(senderPriv.Bytes())
	pub, err := liftX(recipientPub.Bytes())
	if err != nil {
		return nil, err
	}
	return ecdhSharedX(privKey, pub), nil
}

// NIP04Encrypt encrypts plaintext with AES-256-CBC under sharedSecret,
// returning "base64(ciphertext)?iv=base64(iv)".
func NIP04Encrypt(plaintext string, sharedSecret []byte) (string, error) {
	if len(sharedSecret) != 32 {
		return "", errors.New("nip04: shared secret must be 32 bytes")
	}
	iv, err := hexutil.RandomBytes(16)
	if err != nil {
		return "", err
	}

	plain := []byte(plaintext)
	padLen := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+padLen)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// NIP04Decrypt reverses NIP04Encrypt.
func NIP04Decrypt(payload string, sharedSecret []byte) (string, error) {
	parts := strings.SplitN(payload, "?iv=", 2)
	if len(parts) != 2 {
		return "", errors.New("nip04: invalid payload format")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", errors.New("nip04: invalid ciphertext encoding")
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(iv) != aes.BlockSize {
		return "", errors.New("nip04: invalid iv")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("nip04: invalid ciphertext length")
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return "", err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plaintext) {
		return "", errors.New("nip04: invalid padding")
	}
	for _, b := range plaintext[len(plaintext)-padLen:] {
		if int(b) != padLen {
			return "", errors.New("nip04: invalid padding bytes")
		}
	}
	return string(plaintext[:len(plaintext)-padLen]), nil
}
