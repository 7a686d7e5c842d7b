// Package bip39 implements mnemonic-phrase generation and seed derivation
// per BIP-39, the entropy<->phrase half of NIP-06 key derivation.
package bip39

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidEntropySize is returned when entropy length is not one of
	// 16, 20, 24, 28, or 32 bytes.
	ErrInvalidEntropySize = errors.New("bip39: entropy must be 16, 20, 24, 28, or 32 bytes")
	// ErrInvalidMnemonic covers a phrase with the wrong word count or a
	// word not present in the wordlist.
	ErrInvalidMnemonic = errors.New("bip39: invalid mnemonic")
	// ErrInvalidChecksum is returned when a mnemonic's checksum bits do
	// not match the SHA-256 of its entropy.
	ErrInvalidChecksum = errors.New("bip39: invalid mnemonic checksum")
)

// InvalidWordError names the first mnemonic word not found in the
// wordlist.
type InvalidWordError struct {
	Word string
}

func (e *InvalidWordError) Error() string {
	return "bip39: invalid mnemonic word: " + e.Word
}

var wordIndex = func() map[string]int {
	m := make(map[string]int, len(englishWords))
	for i, w := range englishWords {
		m[w] = i
	}
	return m
}()

// NewMnemonic derives the BIP-39 phrase for the given entropy. entropy
// must be 16, 20, 24, 28, or 32 bytes (12, 15, 18, 21, or 24 words).
func NewMnemonic(entropy []byte) (string, error) {
	entBits := len(entropy) * 8
	switch entBits {
	case 128, 160, 192, 224, 256:
	default:
		return "", ErrInvalidEntropySize
	}

	checksumBits := entBits / 32
	hash := sha256.Sum256(entropy)

	bits := make([]bool, entBits+checksumBits)
	for i, b := range entropy {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = (b>>(7-j))&1 == 1
		}
	}
	for i := 0; i < checksumBits; i++ {
		bits[entBits+i] = (hash[0]>>(7-i))&1 == 1
	}

	wordCount := len(bits) / 11
	words := make([]string, wordCount)
	for i := 0; i < wordCount; i++ {
		idx := 0
		for j := 0; j < 11; j++ {
			idx <<= 1
			if bits[i*11+j] {
				idx |= 1
			}
		}
		words[i] = englishWords[idx]
	}

	return strings.Join(words, " "), nil
}

// EntropyFromMnemonic recovers the original entropy from phrase and
// validates its embedded checksum.
func EntropyFromMnemonic(phrase string) ([]byte, error) {
	words := strings.Fields(norm.NFKD.String(phrase))
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return nil, ErrInvalidMnemonic
	}

	totalBits := len(words) * 11
	bits := make([]bool, totalBits)
	for i, w := range words {
		idx, ok := wordIndex[w]
		if !ok {
			return nil, &InvalidWordError{Word: w}
		}
		for j := 0; j < 11; j++ {
			bits[i*11+j] = (idx>>(10-j))&1 == 1
		}
	}

	checksumBits := totalBits / 33
	entBits := totalBits - checksumBits
	entropy := make([]byte, entBits/8)
	for i := range entropy {
		var b byte
		for j := 0; j < 8; j++ {
			b <<= 1
			if bits[i*8+j] {
				b |= 1
			}
		}
		entropy[i] = b
	}

	hash := sha256.Sum256(entropy)
	for i := 0; i < checksumBits; i++ {
		want := (hash[0]>>(7-i))&1 == 1
		got := bits[entBits+i]
		if want != got {
			return nil, ErrInvalidChecksum
		}
	}

	return entropy, nil
}

// SeedFromMnemonic derives the 64-byte BIP-39 seed via
// PBKDF2-HMAC-SHA512(phrase_nfkd, "mnemonic"+passphrase_nfkd, 2048, 64).
// It does not itself validate the mnemonic checksum; callers that need
// that guarantee should call EntropyFromMnemonic first.
func SeedFromMnemonic(phrase, passphrase string) []byte {
	normalizedPhrase := norm.NFKD.String(phrase)
	salt := norm.NFKD.String("mnemonic" + passphrase)
	return pbkdf2.Key([]byte(normalizedPhrase), []byte(salt), 2048, 64, sha512.New)
}
