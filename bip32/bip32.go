// Package bip32 implements the BIP-32 hierarchical-deterministic key
// derivation needed to walk the NIP-06 Nostr path m/44'/1237'/account'/0/0
// from a BIP-39 seed.
package bip32

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/nostrforge/corenostr/bip39"
	"github.com/nostrforge/corenostr/keys"
)

// ErrInvalidPrivateKey is returned when a derivation step yields IL >= n
// or a zero child key. Treated as unrecoverable rather than falling back
// to the next index, since the probability is negligible.
var ErrInvalidPrivateKey = errors.New("bip32: derived private key is invalid")

const hardenedOffset = uint32(1) << 31

// ExtendedKey is a node in a BIP-32 derivation tree: a 32-byte private
// scalar paired with its 32-byte chain code.
type ExtendedKey struct {
	Key       [32]byte
	ChainCode [32]byte
}

// NewMasterKey derives the master extended key from a BIP-39 seed via
// HMAC-SHA512(key="Bitcoin seed", msg=seed).
func NewMasterKey(seed []byte) (*ExtendedKey, error) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)

	ek := &ExtendedKey{}
	copy(ek.Key[:], sum[:32])
	copy(ek.ChainCode[:], sum[32:])
	if isZero(ek.Key[:]) || !lessThanOrder(ek.Key[:]) {
		return nil, ErrInvalidPrivateKey
	}
	return ek, nil
}

// Hardened reports whether index i uses hardened derivation (i >= 2^31).
func Hardened(i uint32) bool {
	return i >= hardenedOffset
}

// HardenedIndex returns i with the hardened bit set, i.e. i'.
func HardenedIndex(i uint32) uint32 {
	return i | hardenedOffset
}

// DeriveChild derives the child extended key at index i.
func (ek *ExtendedKey) DeriveChild(i uint32) (*ExtendedKey, error) {
	var data []byte
	if Hardened(i) {
		data = make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, ek.Key[:]...)
	} else {
		pub, err := compressedPubKey(ek.Key[:])
		if err != nil {
			return nil, err
		}
		data = make([]byte, 0, 37)
		data = append(data, pub...)
	}
	idxBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(idxBytes, i)
	data = append(data, idxBytes...)

	mac := hmac.New(sha512.New, ek.ChainCode[:])
	mac.Write(data)
	sum := mac.Sum(nil)

	il := sum[:32]
	childChainCode := sum[32:]

	if !lessThanOrder(il) {
		return nil, ErrInvalidPrivateKey
	}

	childKey, err := addModOrder(il, ek.Key[:])
	if err != nil {
		return nil, err
	}
	if isZero(childKey) {
		return nil, ErrInvalidPrivateKey
	}

	child := &ExtendedKey{}
	copy(child.Key[:], childKey)
	copy(child.ChainCode[:], childChainCode)
	return child, nil
}

// DerivePath walks path, a sequence of (index, hardened) steps, from ek.
func (ek *ExtendedKey) DerivePath(path []uint32) (*ExtendedKey, error) {
	cur := ek
	for _, idx := range path {
		next, err := cur.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// NostrPath builds the derivation path m/44'/1237'/account'/0/0 defined
// by NIP-06.
func NostrPath(account uint32) []uint32 {
	return []uint32{
		HardenedIndex(44),
		HardenedIndex(1237),
		HardenedIndex(account),
		0,
		0,
	}
}

// DeriveNostrKey derives the KeyPair at m/44'/1237'/account'/0/0 from a
// BIP-39 seed.
func DeriveNostrKey(seed []byte, account uint32) (*keys.KeyPair, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	leaf, err := master.DerivePath(NostrPath(account))
	if err != nil {
		return nil, err
	}
	return keys.FromPrivateBytes(leaf.Key[:])
}

// FromMnemonic validates phrase, derives the BIP-39 seed with
// passphrase, and walks the Nostr path for account.
func FromMnemonic(phrase, passphrase string, account uint32) (*keys.KeyPair, error) {
	if _, err := bip39.EntropyFromMnemonic(phrase); err != nil {
		return nil, err
	}
	seed := bip39.SeedFromMnemonic(phrase, passphrase)
	return DeriveNostrKey(seed, account)
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}

func lessThanOrder(b []byte) bool {
	n := new(big.Int).SetBytes(b)
	return n.Sign() != 0 && n.Cmp(btcec.S256().N) < 0
}

// addModOrder computes (a + b) mod n, returning a 32-byte big-endian scalar.
func addModOrder(a, b []byte) ([]byte, error) {
	an := new(big.Int).SetBytes(a)
	bn := new(big.Int).SetBytes(b)
	sum := new(big.Int).Add(an, bn)
	sum.Mod(sum, btcec.S256().N)

	out := make([]byte, 32)
	sumBytes := sum.Bytes()
	if len(sumBytes) > 32 {
		return nil, ErrInvalidPrivateKey
	}
	copy(out[32-len(sumBytes):], sumBytes)
	return out, nil
}

// compressedPubKey returns the 33-byte SEC1-compressed public key for a
// raw 32-byte private scalar.
func compressedPubKey(priv []byte) ([]byte, error) {
	_, pub := btcec.PrivKeyFromBytes(priv)
	if pub == nil {
		return nil, ErrInvalidPrivateKey
	}
	return pub.SerializeCompressed(), nil
}
