package nip59

import (
	"encoding/json"
	"testing"

	"github.com/nostrforge/corenostr/keys"
	"github.com/nostrforge/corenostr/nostr"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	alice, _ := keys.New()
	bob, _ := keys.New()

	rumor, err := NewRumor(alice, KindRumor, nostr.Tags{{"p", bob.PublicKey().Hex()}}, "hey bob", 1700000000)
	if err != nil {
		t.Fatalf("NewRumor: %v", err)
	}

	wrap, err := Wrap(rumor, alice, bob.PublicKey())
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if wrap.Kind != KindGiftWrap {
		t.Fatalf("wrap.Kind = %d, want %d", wrap.Kind, KindGiftWrap)
	}
	if wrap.PubKey == alice.PublicKey().Hex() {
		t.Fatal("gift wrap must be signed by an ephemeral key, not the true sender")
	}

	ok, err := nostr.Verify(wrap)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected the gift wrap's own signature to verify")
	}

	senderPub, recovered, err := Unwrap(wrap, bob)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if senderPub != alice.PublicKey().Hex() {
		t.Fatalf("senderPub = %q, want %q", senderPub, alice.PublicKey().Hex())
	}
	if recovered.Content != "hey bob" {
		t.Fatalf("recovered content = %q, want %q", recovered.Content, "hey bob")
	}
	if recovered.Kind != KindRumor {
		t.Fatalf("recovered kind = %d, want %d", recovered.Kind, KindRumor)
	}
}

// TestUnwrapRejectsForgedSeal builds a gift wrap whose outer layer opens
// and authenticates cleanly (it is honestly sealed by a fresh ephemeral
// key) but whose inner seal's signature has been swapped for one signed
// by an unrelated key over unrelated content. A successful outer unwrap
// must not be enough: Unwrap must still reject it.
func TestUnwrapRejectsForgedSeal(t *testing.T) {
	alice, _ := keys.New()
	bob, _ := keys.New()
	other, _ := keys.New()

	rumor, err := NewRumor(alice, KindRumor, nil, "hey bob", 1700000000)
	if err != nil {
		t.Fatalf("NewRumor: %v", err)
	}
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		t.Fatalf("json.Marshal(rumor): %v", err)
	}

	seal, err := sealEvent(string(rumorJSON), alice, bob.PublicKey(), KindSeal, nil)
	if err != nil {
		t.Fatalf("sealEvent: %v", err)
	}

	bogus, err := nostr.Sign(nostr.UnsignedEvent{Kind: 1, Content: "unrelated"}, other)
	if err != nil {
		t.Fatalf("Sign(bogus): %v", err)
	}
	seal.Sig = bogus.Sig // id/content untouched, so this is a signature-only forgery

	sealJSON, err := json.Marshal(seal)
	if err != nil {
		t.Fatalf("json.Marshal(seal): %v", err)
	}

	ephemeral, err := keys.New()
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	defer ephemeral.Zero()

	wrap, err := sealEvent(string(sealJSON), ephemeral, bob.PublicKey(), KindGiftWrap, nostr.Tags{{"p", bob.PublicKey().Hex()}})
	if err != nil {
		t.Fatalf("sealEvent (wrap): %v", err)
	}

	if _, _, err := Unwrap(wrap, bob); err != ErrVerificationFailed {
		t.Fatalf("Unwrap(forged seal) = %v, want ErrVerificationFailed", err)
	}
}

func TestWrapGroupIncludesSenderCopy(t *testing.T) {
	alice, _ := keys.New()
	bob, _ := keys.New()
	carol, _ := keys.New()

	rumor, err := NewRumor(alice, KindRumor, nil, "group hello", 1700000000)
	if err != nil {
		t.Fatalf("NewRumor: %v", err)
	}

	wraps, err := WrapGroup(rumor, alice, []keys.PublicKey{bob.PublicKey(), carol.PublicKey()})
	if err != nil {
		t.Fatalf("WrapGroup: %v", err)
	}
	if len(wraps) != 3 {
		t.Fatalf("got %d wraps, want 3 (bob, carol, and alice's own copy)", len(wraps))
	}

	if _, _, err := Unwrap(wraps[0], bob); err != nil {
		t.Errorf("bob failed to unwrap his copy: %v", err)
	}
	if _, _, err := Unwrap(wraps[1], carol); err != nil {
		t.Errorf("carol failed to unwrap her copy: %v", err)
	}
	if _, recovered, err := Unwrap(wraps[2], alice); err != nil {
		t.Errorf("alice failed to unwrap her own retained copy: %v", err)
	} else if recovered.Content != "group hello" {
		t.Errorf("alice's retained copy content = %q", recovered.Content)
	}
}

func TestRandomizedTimestampWithinJitterWindow(t *testing.T) {
	now := int64(1700000000)
	for i := 0; i < 50; i++ {
		ts := randomizedTimestamp(now)
		if ts < now-maxTimestampJitter || ts > now+maxTimestampJitter {
			t.Fatalf("timestamp %d outside [%d, %d]", ts, now-maxTimestampJitter, now+maxTimestampJitter)
		}
	}
}
