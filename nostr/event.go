// Package nostr implements the NIP-01 event model: canonical JSON
// serialization, SHA-256 id hashing, and BIP-340 Schnorr signing and
// verification.
package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/nostrforge/corenostr/hexutil"
	"github.com/nostrforge/corenostr/keys"
)

var (
	// ErrInvalidEventID is returned by Verify when the recomputed id does
	// not match the event's id field.
	ErrInvalidEventID = errors.New("nostr: event id does not match its canonical form")
	// ErrSigningFailed covers a signer error during Sign.
	ErrSigningFailed = errors.New("nostr: signing failed")
)

// Tags is an ordered sequence of ordered string sequences. Outer order is
// semantic and preserved verbatim through serialization.
type Tags [][]string

// UnsignedEvent is an Event before id/sig are computed; a kind-14 rumor
// never leaves this stage.
type UnsignedEvent struct {
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
}

// Event is a fully signed Nostr event (NIP-01).
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Canonicalize returns the UTF-8 bytes of the NIP-01 serialization array
// [0, pubkey, created_at, kind, tags, content] hashed to produce an
// event id: sorted keys are not applicable at this level, forward
// slashes are left unescaped, and no superfluous whitespace is emitted.
func (u UnsignedEvent) Canonicalize() ([]byte, error) {
	tags := u.Tags
	if tags == nil {
		tags = Tags{}
	}
	arr := []interface{}{0, u.PubKey, u.CreatedAt, u.Kind, tags, u.Content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; strip it so the
	// hashed bytes match exactly what a verifier recomputes.
	b := buf.Bytes()
	return b[:len(b)-1], nil
}

// ComputeID returns the lowercase-hex SHA-256 of the canonical form.
func (u UnsignedEvent) ComputeID() (string, error) {
	b, err := u.Canonicalize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hexutil.Encode(sum[:]), nil
}

// Sign computes the event id and a BIP-340 Schnorr signature over it,
// producing a fully formed Event. No auxiliary randomness is passed to
// schnorr.Sign, which derives the nonce deterministically from the key
// and the id.
func Sign(u UnsignedEvent, signer *keys.KeyPair) (*Event, error) {
	u.PubKey = signer.PublicKey().Hex()

	id, err := u.ComputeID()
	if err != nil {
		return nil, err
	}
	idBytes, err := hexutil.DecodeExact(id, 32)
	if err != nil {
		return nil, err
	}

	privKey, _ := btcec.PrivKeyFromBytes(signer.Bytes())
	sig, err := schnorr.Sign(privKey, idBytes)
	if err != nil {
		return nil, ErrSigningFailed
	}

	tags := u.Tags
	if tags == nil {
		tags = Tags{}
	}

	return &Event{
		ID:        id,
		PubKey:    u.PubKey,
		CreatedAt: u.CreatedAt,
		Kind:      u.Kind,
		Tags:      tags,
		Content:   u.Content,
		Sig:       hexutil.Encode(sig.Serialize()),
	}, nil
}

// Verify recomputes e's id from its fields and checks the Schnorr
// signature against its pubkey. It returns (false, nil) for a
// well-formed but invalid event, and a non-nil error for malformed
// hex/id mismatches.
func Verify(e *Event) (bool, error) {
	unsigned := UnsignedEvent{
		PubKey:    e.PubKey,
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
	}
	id, err := unsigned.ComputeID()
	if err != nil {
		return false, err
	}
	if id != e.ID {
		return false, ErrInvalidEventID
	}

	idBytes, err := hexutil.DecodeExact(e.ID, 32)
	if err != nil {
		return false, hexutil.ErrInvalidHex
	}
	pubBytes, err := hexutil.DecodeExact(e.PubKey, 32)
	if err != nil {
		return false, hexutil.ErrInvalidHex
	}
	sigBytes, err := hexutil.DecodeExact(e.Sig, 64)
	if err != nil {
		return false, errors.New("nostr: invalid signature encoding")
	}

	pubKey, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false, nil
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, nil
	}

	return sig.Verify(idBytes, pubKey), nil
}
