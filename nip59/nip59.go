// Package nip59 implements gift wrapping (NIP-59) and private direct
// messages (NIP-17): a three-layer rumor -> seal -> gift-wrap
// construction that uses an ephemeral signing key and randomized
// timestamps to hide both content and metadata from relays.
package nip59

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/nostrforge/corenostr/hexutil"
	"github.com/nostrforge/corenostr/keys"
	"github.com/nostrforge/corenostr/nip44"
	"github.com/nostrforge/corenostr/nostr"
)

const (
	// KindSeal is the kind-13 event carrying an encrypted rumor, signed
	// by the true sender.
	KindSeal = 13
	// KindRumor is the kind-14 unsigned private-message event that never
	// leaves the three-layer wrap.
	KindRumor = 14
	// KindGiftWrap is the kind-1059 event carrying an encrypted seal,
	// signed by a one-shot ephemeral key.
	KindGiftWrap = 1059

	maxTimestampJitter = int64(2 * 24 * 60 * 60) // 2 days, in seconds
)

// ErrVerificationFailed is returned by Unwrap when the outer wrap opens
// successfully but the inner seal's signature does not check out. A
// gift wrap is never trusted on the strength of its own (ephemeral)
// signature alone.
var ErrVerificationFailed = errors.New("nip59: seal signature verification failed")

// Rumor is an unsigned kind-14 event: the payload that is wrapped, never
// broadcast on its own. It carries an id (for reference) but no sig.
type Rumor struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      nostr.Tags `json:"tags"`
	Content   string     `json:"content"`
}

// NewRumor builds and ids (but does not sign) a rumor authored by
// sender.
func NewRumor(sender *keys.KeyPair, kind int, tags nostr.Tags, content string, createdAt int64) (Rumor, error) {
	if tags == nil {
		tags = nostr.Tags{}
	}
	u := nostr.UnsignedEvent{
		PubKey:    sender.PublicKey().Hex(),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	id, err := u.ComputeID()
	if err != nil {
		return Rumor{}, err
	}
	return Rumor{
		ID:        id,
		PubKey:    u.PubKey,
		CreatedAt: u.CreatedAt,
		Kind:      u.Kind,
		Tags:      u.Tags,
		Content:   u.Content,
	}, nil
}

// Wrap seals rumor for recipientPub and signs the result as a kind-13
// seal under sender, then generates a one-shot ephemeral key to seal and
// sign the kind-1059 gift wrap. The ephemeral private scalar is zeroed
// before Wrap returns and never handed back to the caller.
func Wrap(rumor Rumor, sender *keys.KeyPair, recipientPub keys.PublicKey) (*nostr.Event, error) {
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, err
	}

	seal, err := sealEvent(string(rumorJSON), sender, recipientPub, KindSeal, nil)
	if err != nil {
		return nil, err
	}

	ephemeral, err := keys.New()
	if err != nil {
		return nil, err
	}
	defer ephemeral.Zero()

	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, err
	}

	tags := nostr.Tags{{"p", recipientPub.Hex()}}
	wrap, err := sealEvent(string(sealJSON), ephemeral, recipientPub, KindGiftWrap, tags)
	if err != nil {
		return nil, err
	}
	return wrap, nil
}

// WrapGroup wraps rumor once per recipient and once more for the
// sender's own pubkey, so the sender retains a readable copy of what it
// sent, per NIP-17.
func WrapGroup(rumor Rumor, sender *keys.KeyPair, recipients []keys.PublicKey) ([]*nostr.Event, error) {
	all := append(append([]keys.PublicKey{}, recipients...), sender.PublicKey())
	wraps := make([]*nostr.Event, 0, len(all))
	for _, recipient := range all {
		w, err := Wrap(rumor, sender, recipient)
		if err != nil {
			return nil, err
		}
		wraps = append(wraps, w)
	}
	return wraps, nil
}

// Unwrap opens a gift wrap addressed to recipient, authenticates the
// inner seal's signature (recovering the true sender), and returns the
// sender's pubkey alongside the recovered rumor.
func Unwrap(wrap *nostr.Event, recipient *keys.KeyPair) (senderPub string, rumor Rumor, err error) {
	if wrap.Kind != KindGiftWrap {
		return "", Rumor{}, errors.New("nip59: not a gift wrap event")
	}

	wrapperPub, err := keys.PublicKeyFromHex(wrap.PubKey)
	if err != nil {
		return "", Rumor{}, err
	}
	convKey, err := nip44.ConversationKey(recipient, wrapperPub)
	if err != nil {
		return "", Rumor{}, err
	}
	sealJSON, err := nip44.Open(wrap.Content, convKey)
	if err != nil {
		return "", Rumor{}, err
	}

	var seal nostr.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return "", Rumor{}, errors.New("nip59: malformed seal json")
	}
	if seal.Kind != KindSeal {
		return "", Rumor{}, errors.New("nip59: inner event is not a seal")
	}

	ok, err := nostr.Verify(&seal)
	if err != nil || !ok {
		return "", Rumor{}, ErrVerificationFailed
	}

	sealerPub, err := keys.PublicKeyFromHex(seal.PubKey)
	if err != nil {
		return "", Rumor{}, err
	}
	innerConvKey, err := nip44.ConversationKey(recipient, sealerPub)
	if err != nil {
		return "", Rumor{}, err
	}
	rumorJSON, err := nip44.Open(seal.Content, innerConvKey)
	if err != nil {
		return "", Rumor{}, err
	}

	var r Rumor
	if err := json.Unmarshal([]byte(rumorJSON), &r); err != nil {
		return "", Rumor{}, errors.New("nip59: malformed rumor json")
	}

	return seal.PubKey, r, nil
}

// sealEvent encrypts plaintext for recipientPub and signs a kind-`kind`
// event over the result, with a created_at randomized within two days of
// now for metadata privacy.
func sealEvent(plaintext string, signer *keys.KeyPair, recipientPub keys.PublicKey, kind int, tags nostr.Tags) (*nostr.Event, error) {
	convKey, err := nip44.ConversationKey(signer, recipientPub)
	if err != nil {
		return nil, err
	}
	payload, err := nip44.Seal(plaintext, convKey)
	if err != nil {
		return nil, err
	}

	if tags == nil {
		tags = nostr.Tags{}
	}
	unsigned := nostr.UnsignedEvent{
		CreatedAt: randomizedTimestamp(nowFunc()),
		Kind:      kind,
		Tags:      tags,
		Content:   payload,
	}
	return nostr.Sign(unsigned, signer)
}

// nowFunc is overridable by tests that need deterministic timestamps.
var nowFunc = defaultNow

func defaultNow() int64 {
	return time.Now().Unix()
}

// randomizedTimestamp returns now shifted by a uniformly random amount
// in [-maxTimestampJitter, +maxTimestampJitter], per NIP-59.
func randomizedTimestamp(now int64) int64 {
	offset, err := randomInt64(2*maxTimestampJitter + 1)
	if err != nil {
		return now
	}
	return now - maxTimestampJitter + offset
}

func randomInt64(bound int64) (int64, error) {
	if bound <= 0 {
		return 0, nil
	}
	raw, err := hexutil.RandomBytes(8)
	if err != nil {
		return 0, err
	}
	n := new(big.Int).SetUint64(binary.BigEndian.Uint64(raw))
	b := big.NewInt(bound)
	n.Mod(n, b)
	return n.Int64(), nil
}
