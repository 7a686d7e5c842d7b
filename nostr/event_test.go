package nostr

import (
	"strings"
	"testing"

	"github.com/nostrforge/corenostr/keys"
)

func TestCanonicalizeOmitsWhitespaceAndEscapesNoSlashes(t *testing.T) {
	u := UnsignedEvent{
		PubKey:    "ab",
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      Tags{{"e", "deadbeef"}},
		Content:   "hello https://example.com/path",
	}
	b, err := u.Canonicalize()
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "\n") {
		t.Error("canonical form must not contain a trailing newline")
	}
	if strings.Contains(s, `\/`) {
		t.Error("canonical form must not escape forward slashes")
	}
	if !strings.HasPrefix(s, `[0,"ab",1700000000,1,[["e","deadbeef"]],"hello`) {
		t.Errorf("unexpected canonical prefix: %s", s)
	}
}

func TestCanonicalizeNilTagsBecomeEmptyArray(t *testing.T) {
	u := UnsignedEvent{PubKey: "ab", Kind: 1, Content: "x"}
	b, err := u.Canonicalize()
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if !strings.Contains(string(b), "[]") {
		t.Errorf("expected an empty tags array in %s", b)
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	kp, err := keys.New()
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	u := UnsignedEvent{
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      Tags{{"p", kp.PublicKey().Hex()}},
		Content:   "hello world",
	}
	ev, err := Sign(u, kp)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if ev.PubKey != kp.PublicKey().Hex() {
		t.Errorf("PubKey = %q, want %q", ev.PubKey, kp.PublicKey().Hex())
	}

	ok, err := Verify(ev)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected a freshly signed event to verify")
	}
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	kp, _ := keys.New()
	ev, err := Sign(UnsignedEvent{Kind: 1, Content: "original"}, kp)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ev.Content = "tampered"

	ok, err := Verify(ev)
	if err != ErrInvalidEventID {
		t.Fatalf("Verify err = %v, want ErrInvalidEventID", err)
	}
	if ok {
		t.Fatal("expected tampered content to fail verification")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	kp, _ := keys.New()
	ev, err := Sign(UnsignedEvent{Kind: 1, Content: "hello"}, kp)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	otherKP, _ := keys.New()
	forged, err := Sign(UnsignedEvent{Kind: 1, Content: "hello"}, otherKP)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ev.Sig = forged.Sig

	ok, err := Verify(ev)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected a signature from a different key to fail verification")
	}
}

func TestComputeIDDeterministic(t *testing.T) {
	u := UnsignedEvent{PubKey: "ab", CreatedAt: 1, Kind: 1, Content: "x"}
	id1, err := u.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	id2, err := u.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	if id1 != id2 {
		t.Fatal("ComputeID is not deterministic")
	}
	if len(id1) != 64 {
		t.Fatalf("id length = %d, want 64 hex chars", len(id1))
	}
}

func TestCanonicalizeExactBytes(t *testing.T) {
	pubkey := "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
	u := UnsignedEvent{
		PubKey:    pubkey,
		CreatedAt: 1234567890,
		Kind:      1,
		Tags:      Tags{{"p", "test"}},
		Content:   "test content",
	}
	b, err := u.Canonicalize()
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	want := `[0,"` + pubkey + `",1234567890,1,[["p","test"]],"test content"]`
	if string(b) != want {
		t.Errorf("canonical form = %s, want %s", b, want)
	}
}
