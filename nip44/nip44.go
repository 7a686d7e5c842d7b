// Package nip44 implements NIP-44 v2 authenticated encryption: an
// ECDH-derived conversation key, HKDF-expanded per-message keys, ChaCha20
// encryption, HMAC-SHA256 authentication, and length-prefixed padding.
package nip44

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/bits"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"github.com/nostrforge/corenostr/hexutil"
	"github.com/nostrforge/corenostr/keys"
)

const (
	version          = byte(2)
	conversationSalt = "nip44-v2"
	minPlaintextLen  = 1
	maxPlaintextLen  = 65535
	minPayloadLen    = 1 + 32 + 32 + 32 // version + nonce + 32-byte-min-ciphertext + mac
)

var (
	// ErrEncryptionFailed wraps unexpected failures while sealing.
	ErrEncryptionFailed = errors.New("nip44: encryption failed")
	// ErrDecryptionFailed wraps unexpected failures while opening that are
	// not attributable to a MAC mismatch.
	ErrDecryptionFailed = errors.New("nip44: decryption failed")
	// ErrUnsupportedVersion is returned when the payload's version byte
	// is not 2.
	ErrUnsupportedVersion = errors.New("nip44: unsupported encryption version")
	// ErrInvalidPayloadFormat covers base64 and length failures before
	// the MAC is even checked.
	ErrInvalidPayloadFormat = errors.New("nip44: invalid payload format")
	// ErrHMACVerificationFailed is the ONLY error returned for a tampered
	// payload that otherwise has a well-formed envelope; callers must be
	// able to rely on this never being confused with ErrInvalidPadding.
	ErrHMACVerificationFailed = errors.New("nip44: hmac verification failed")
	// ErrInvalidPadding is only ever returned after the MAC has already
	// verified, so it never leaks information about tampered bytes.
	ErrInvalidPadding = errors.New("nip44: invalid padding")
)

// ConversationKey derives the 32-byte symmetric PRK shared by sender and
// recipient: ECDH(senderPriv, recipientPub) -> x-coordinate ->
// HKDF-Extract(salt="nip44-v2").
func ConversationKey(senderPriv *keys.KeyPair, recipientPub keys.PublicKey) ([]byte, error) {
	privKey, _ := btcec.PrivKeyFromBytes(senderPriv.Bytes())

	pub, err := liftX(recipientPub.Bytes())
	if err != nil {
		return nil, err
	}

	sharedX := ecdhSharedX(privKey, pub)
	return hkdf.Extract(sha256.New, sharedX, []byte(conversationSalt)), nil
}

// liftX lifts an x-only pubkey to a full point, trying the even-y form
// first and falling back to odd-y, per NIP-44.
func liftX(x []byte) (*btcec.PublicKey, error) {
	withPrefix := make([]byte, 33)
	withPrefix[0] = 0x02
	copy(withPrefix[1:], x)
	if pub, err := btcec.ParsePubKey(withPrefix); err == nil {
		return pub, nil
	}
	withPrefix[0] = 0x03
	pub, err := btcec.ParsePubKey(withPrefix)
	if err != nil {
		return nil, keys.ErrInvalidPublicKey
	}
	return pub, nil
}

func ecdhSharedX(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	curve := btcec.S256()
	x, _ := curve.ScalarMult(pub.X(), pub.Y(), priv.Serialize())
	out := make([]byte, 32)
	xb := x.Bytes()
	copy(out[32-len(xb):], xb)
	return out
}

// messageKeys derives the per-message ChaCha20 key/nonce and HMAC key by
// HKDF-Expand(conversationKey, info=nonce, L=76).
func messageKeys(conversationKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(conversationKey) != 32 || len(nonce) != 32 {
		return nil, nil, nil, errors.New("nip44: invalid key or nonce length")
	}
	reader := hkdf.Expand(sha256.New, conversationKey, nonce)
	expanded := make([]byte, 76)
	if _, err := reader.Read(expanded); err != nil {
		return nil, nil, nil, err
	}
	return expanded[0:32], expanded[32:44], expanded[44:76], nil
}

// paddedLen computes the NIP-44 padded length for a plaintext.
func paddedLen(unpaddedLen int) int {
	if unpaddedLen <= 32 {
		return 32
	}
	nextPower := 1 << uint(bits.Len(uint(unpaddedLen-1)))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((unpaddedLen-1)/chunk + 1)
}

func pad(plaintext []byte) ([]byte, error) {
	n := len(plaintext)
	if n < minPlaintextLen || n > maxPlaintextLen {
		return nil, errors.New("nip44: plaintext length out of range")
	}
	padded := paddedLen(n)
	out := make([]byte, 2+padded)
	binary.BigEndian.PutUint16(out[0:2], uint16(n))
	copy(out[2:], plaintext)
	return out, nil
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, ErrInvalidPadding
	}
	n := int(binary.BigEndian.Uint16(padded[0:2]))
	if n < minPlaintextLen || n > len(padded)-2 {
		return nil, ErrInvalidPadding
	}
	if len(padded) != 2+paddedLen(n) {
		return nil, ErrInvalidPadding
	}
	return padded[2 : 2+n], nil
}

func computeMAC(hmacKey, aad, message []byte) []byte {
	h := hmac.New(sha256.New, hmacKey)
	h.Write(aad)
	h.Write(message)
	return h.Sum(nil)
}

// Seal encrypts plaintext (1 to 65535 bytes) under conversationKey,
// producing a base64 SealedPayload.
func Seal(plaintext string, conversationKey []byte) (string, error) {
	nonce, err := hexutil.RandomBytes(32)
	if err != nil {
		return "", ErrEncryptionFailed
	}
	return sealWithNonce(plaintext, conversationKey, nonce)
}

// sealWithNonce is the deterministic core of Seal, split out for test
// vectors that pin the nonce.
func sealWithNonce(plaintext string, conversationKey, nonce []byte) (string, error) {
	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	padded, err := pad([]byte(plaintext))
	if err != nil {
		return "", ErrEncryptionFailed
	}

	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", ErrEncryptionFailed
	}
	ciphertext := make([]byte, len(padded))
	stream.XORKeyStream(ciphertext, padded)

	mac := computeMAC(hmacKey, nonce, ciphertext)

	out := make([]byte, 0, 1+32+len(ciphertext)+32)
	out = append(out, version)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	out = append(out, mac...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a SealedPayload under conversationKey. Errors are
// checked in a fixed order: version first,
// then constant-time MAC verification, then padding validation -- so a
// tampered payload always fails with ErrHMACVerificationFailed, never
// ErrInvalidPadding or a generic decryption error.
func Open(payload string, conversationKey []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrInvalidPayloadFormat
	}
	if len(data) < minPayloadLen {
		return "", ErrInvalidPayloadFormat
	}
	if data[0] != version {
		return "", ErrUnsupportedVersion
	}

	nonce := data[1:33]
	ciphertext := data[33 : len(data)-32]
	mac := data[len(data)-32:]

	_, _, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", ErrInvalidPayloadFormat
	}

	expected := computeMAC(hmacKey, nonce, ciphertext)
	if !hexutil.ConstantTimeEqual(expected, mac) {
		return "", ErrHMACVerificationFailed
	}

	chachaKey, chachaNonce, _, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	padded := make([]byte, len(ciphertext))
	stream.XORKeyStream(padded, ciphertext)

	plaintext, err := unpad(padded)
	if err != nil {
		return "", ErrInvalidPadding
	}
	return string(plaintext), nil
}
