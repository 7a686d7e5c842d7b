// Package keys implements Nostr key material: secp256k1 x-only keypairs
// and their nsec/npub bech32 forms (NIP-06, NIP-19).
package keys

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/nostrforge/corenostr/bech32"
	"github.com/nostrforge/corenostr/hexutil"
)

var (
	// ErrInvalidPrivateKey covers a private scalar that is zero or that
	// does not reduce into (0, n) for the secp256k1 order n.
	ErrInvalidPrivateKey = errors.New("invalid private key")
	// ErrInvalidPublicKey covers an x-coordinate that is not on the curve.
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// KeyPair owns a 32-byte secp256k1 private scalar and its derived 32-byte
// x-only public key. Immutable once constructed; callers that no longer
// need the private material should call Zero.
type KeyPair struct {
	priv   [32]byte
	pub    [32]byte
	zeroed bool
}

// PublicKey is a bare 32-byte x-only public key, for peers whose private
// material is never held locally.
type PublicKey struct {
	pub [32]byte
}

// New generates a KeyPair from a fresh random private scalar.
func New() (*KeyPair, error) {
	raw, err := hexutil.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	return FromPrivateBytes(raw)
}

// FromPrivateBytes builds a KeyPair from a raw 32-byte private scalar,
// requiring 0 < scalar < curve order.
func FromPrivateBytes(raw []byte) (*KeyPair, error) {
	if len(raw) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	if isZero(raw) {
		return nil, ErrInvalidPrivateKey
	}
	// PrivKeyFromBytes reduces out-of-range scalars mod n instead of
	// rejecting them, so the range check has to happen here.
	if new(big.Int).SetBytes(raw).Cmp(btcec.S256().N) >= 0 {
		return nil, ErrInvalidPrivateKey
	}
	_, pub := btcec.PrivKeyFromBytes(raw)

	kp := &KeyPair{}
	copy(kp.priv[:], raw)
	xOnly := schnorrPubKeyBytes(pub)
	copy(kp.pub[:], xOnly)
	return kp, nil
}

// FromHex builds a KeyPair from a hex-encoded 32-byte private scalar.
func FromHex(hexPriv string) (*KeyPair, error) {
	raw, err := hexutil.DecodeExact(hexPriv, 32)
	if err != nil {
		return nil, err
	}
	return FromPrivateBytes(raw)
}

// FromNsec decodes a bech32 nsec1... string into a KeyPair.
func FromNsec(nsec string) (*KeyPair, error) {
	raw, err := bech32.DecodeExpect(nsec, "nsec")
	if err != nil {
		return nil, err
	}
	return FromPrivateBytes(raw)
}

// PublicKeyFromHex builds a bare PublicKey from a hex-encoded x-only pubkey.
func PublicKeyFromHex(hexPub string) (PublicKey, error) {
	raw, err := hexutil.DecodeExact(hexPub, 32)
	if err != nil {
		return PublicKey{}, err
	}
	if _, err := schnorr.ParsePubKey(raw); err != nil {
		return PublicKey{}, ErrInvalidPublicKey
	}
	var pk PublicKey
	copy(pk.pub[:], raw)
	return pk, nil
}

// PublicKeyFromNpub decodes a bech32 npub1... string into a PublicKey.
func PublicKeyFromNpub(npub string) (PublicKey, error) {
	raw, err := bech32.DecodeExpect(npub, "npub")
	if err != nil {
		return PublicKey{}, err
	}
	if len(raw) != 32 {
		return PublicKey{}, ErrInvalidPublicKey
	}
	if _, err := schnorr.ParsePubKey(raw); err != nil {
		return PublicKey{}, ErrInvalidPublicKey
	}
	var pk PublicKey
	copy(pk.pub[:], raw)
	return pk, nil
}

// Bytes returns the 32-byte private scalar. The returned slice aliases no
// internal storage and may be modified freely by the caller.
func (k *KeyPair) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, k.priv[:])
	return out
}

// Hex returns the lowercase-hex private scalar.
func (k *KeyPair) Hex() string {
	return hexutil.Encode(k.priv[:])
}

// Nsec returns the bech32 nsec1... encoding of the private scalar.
func (k *KeyPair) Nsec() (string, error) {
	return bech32.Encode("nsec", k.priv[:])
}

// PublicKey returns the x-only public key as a bare PublicKey.
func (k *KeyPair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk.pub[:], k.pub[:])
	return pk
}

// Zero overwrites the private scalar in place. Safe to call more than once.
func (k *KeyPair) Zero() {
	if k.zeroed {
		return
	}
	for i := range k.priv {
		k.priv[i] = 0
	}
	k.zeroed = true
}

// Bytes returns the 32-byte x-only public key.
func (p PublicKey) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, p.pub[:])
	return out
}

// Hex returns the lowercase-hex x-only public key.
func (p PublicKey) Hex() string {
	return hexutil.Encode(p.pub[:])
}

// Npub returns the bech32 npub1... encoding of the public key.
func (p PublicKey) Npub() (string, error) {
	return bech32.Encode("npub", p.pub[:])
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}

// schnorrPubKeyBytes returns the 32-byte x-only serialization of pub,
// stripping the y-parity byte per BIP-340.
func schnorrPubKeyBytes(pub *btcec.PublicKey) []byte {
	compressed := pub.SerializeCompressed()
	return compressed[1:]
}
