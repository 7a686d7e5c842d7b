package bip32

import (
	"bytes"
	"testing"
)

func TestNewMasterKeyDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x5a}, 64)
	a, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	b, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	if !bytes.Equal(a.Key[:], b.Key[:]) || !bytes.Equal(a.ChainCode[:], b.ChainCode[:]) {
		t.Fatal("NewMasterKey is not deterministic for a fixed seed")
	}
}

func TestHardenedIndex(t *testing.T) {
	if Hardened(44) {
		t.Error("44 should not be hardened")
	}
	h := HardenedIndex(44)
	if !Hardened(h) {
		t.Error("HardenedIndex(44) should be hardened")
	}
	if h != 44+hardenedOffset {
		t.Errorf("HardenedIndex(44) = %d, want %d", h, 44+hardenedOffset)
	}
}

func TestNostrPathShape(t *testing.T) {
	path := NostrPath(7)
	if len(path) != 5 {
		t.Fatalf("path length = %d, want 5", len(path))
	}
	if path[0] != HardenedIndex(44) || path[1] != HardenedIndex(1237) || path[2] != HardenedIndex(7) {
		t.Errorf("unexpected hardened prefix: %v", path)
	}
	if path[3] != 0 || path[4] != 0 {
		t.Errorf("unexpected non-hardened suffix: %v", path)
	}
}

func TestDeriveChildIsDeterministicAndDistinctPerIndex(t *testing.T) {
	seed := bytes.Repeat([]byte{0x11}, 64)
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}

	childA, err := master.DeriveChild(HardenedIndex(0))
	if err != nil {
		t.Fatalf("DeriveChild: %v", err)
	}
	childAAgain, err := master.DeriveChild(HardenedIndex(0))
	if err != nil {
		t.Fatalf("DeriveChild: %v", err)
	}
	if !bytes.Equal(childA.Key[:], childAAgain.Key[:]) {
		t.Fatal("DeriveChild is not deterministic")
	}

	childB, err := master.DeriveChild(HardenedIndex(1))
	if err != nil {
		t.Fatalf("DeriveChild: %v", err)
	}
	if bytes.Equal(childA.Key[:], childB.Key[:]) {
		t.Fatal("expected different indices to derive different keys")
	}
}

func TestDeriveNostrKeyIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	kp1, err := DeriveNostrKey(seed, 0)
	if err != nil {
		t.Fatalf("DeriveNostrKey: %v", err)
	}
	kp2, err := DeriveNostrKey(seed, 0)
	if err != nil {
		t.Fatalf("DeriveNostrKey: %v", err)
	}
	if kp1.Hex() != kp2.Hex() {
		t.Fatal("DeriveNostrKey is not deterministic")
	}

	kp3, err := DeriveNostrKey(seed, 1)
	if err != nil {
		t.Fatalf("DeriveNostrKey: %v", err)
	}
	if kp1.Hex() == kp3.Hex() {
		t.Fatal("expected different accounts to derive different keys")
	}
}

func TestFromMnemonicNIP06Vectors(t *testing.T) {
	cases := []struct {
		name     string
		phrase   string
		wantPriv string
		wantPub  string
	}{
		{
			name:     "12 words",
			phrase:   "leader monkey parrot ring guide accident before fence cannon height naive bean",
			wantPriv: "7f7ff03d123792d6ac594bfa67bf6d0c0ab55b6b1fdb6249303fe861f1ccba9a",
			wantPub:  "17162c921dc4d2518f9a101db33695df1afb56ab82f5ff3e5da6eec3ca5cd917",
		},
		{
			name:     "24 words",
			phrase:   "what bleak badge arrange retreat wolf trade produce cricket blur garlic valid proud rude strong choose busy staff weather area salt hollow arm fade",
			wantPriv: "c15d739894c81a2fcfd3a2df85a0d2c0dbc47a280d092799f144d73d7ae78add",
			wantPub:  "d41b22899549e1f3d335a31002cfd382174006e166d3e658e3a5eecdb6463573",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kp, err := FromMnemonic(tc.phrase, "", 0)
			if err != nil {
				t.Fatalf("FromMnemonic: %v", err)
			}
			if got := kp.Hex(); got != tc.wantPriv {
				t.Errorf("private key = %s, want %s", got, tc.wantPriv)
			}
			if got := kp.PublicKey().Hex(); got != tc.wantPub {
				t.Errorf("public key = %s, want %s", got, tc.wantPub)
			}
		})
	}
}

func TestFromMnemonicRejectsInvalidPhrase(t *testing.T) {
	if _, err := FromMnemonic("not a valid phrase", "", 0); err == nil {
		t.Fatal("expected an error for a malformed mnemonic")
	}
}
