package bech32

import (
	"encoding/binary"
	"encoding/hex"
	"errors"

	"github.com/nostrforge/corenostr/hexutil"
)

// TLV type constants shared by nevent, nprofile and naddr, per NIP-19.
const (
	tlvSpecial = 0 // event id (nevent) / pubkey (nprofile) / d-tag (naddr)
	tlvRelay   = 1 // relay hint, repeatable
	tlvAuthor  = 2 // author pubkey
	tlvKind    = 3 // kind, 4-byte big-endian (naddr only)
)

// NEvent is a decoded nevent1... identifier.
type NEvent struct {
	EventID    string
	Author     string
	RelayHints []string
}

// NProfile is a decoded nprofile1... identifier.
type NProfile struct {
	Pubkey     string
	RelayHints []string
}

// NAddr is a decoded naddr1... identifier.
type NAddr struct {
	Kind       uint32
	Author     string
	DTag       string
	RelayHints []string
}

// EncodeNote encodes a 32-byte hex event id as a note1... string.
func EncodeNote(eventIDHex string) (string, error) {
	b, err := hexutil.DecodeExact(eventIDHex, 32)
	if err != nil {
		return "", err
	}
	return Encode("note", b)
}

// DecodeNote decodes a note1... string back to a 32-byte hex event id.
func DecodeNote(note string) (string, error) {
	data, err := DecodeExpect(note, "note")
	if err != nil {
		return "", err
	}
	if len(data) != 32 {
		return "", ErrInvalidBech32
	}
	return hex.EncodeToString(data), nil
}

// EncodeNEvent encodes an nevent1... identifier from its TLV fields.
func EncodeNEvent(ev NEvent) (string, error) {
	idBytes, err := hexutil.DecodeExact(ev.EventID, 32)
	if err != nil {
		return "", err
	}

	var tlv []byte
	tlv = appendTLV(tlv, tlvSpecial, idBytes)
	for _, r := range ev.RelayHints {
		tlv = appendTLV(tlv, tlvRelay, []byte(r))
	}
	if ev.Author != "" {
		authorBytes, err := hexutil.DecodeExact(ev.Author, 32)
		if err != nil {
			return "", err
		}
		tlv = appendTLV(tlv, tlvAuthor, authorBytes)
	}

	return encodeTLVString("nevent", tlv)
}

// DecodeNEvent decodes an nevent1... identifier.
func DecodeNEvent(nevent string) (*NEvent, error) {
	data, err := DecodeExpect(nevent, "nevent")
	if err != nil {
		return nil, err
	}

	n := &NEvent{}
	err = walkTLV(data, func(t byte, v []byte) error {
		switch t {
		case tlvSpecial:
			if len(v) != 32 {
				return errors.New("nip19: invalid nevent event id length")
			}
			n.EventID = hex.EncodeToString(v)
		case tlvRelay:
			n.RelayHints = append(n.RelayHints, string(v))
		case tlvAuthor:
			if len(v) != 32 {
				return errors.New("nip19: invalid nevent author length")
			}
			n.Author = hex.EncodeToString(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n.EventID == "" {
		return nil, errors.New("nip19: nevent missing event id")
	}
	return n, nil
}

// EncodeNProfile encodes an nprofile1... identifier.
func EncodeNProfile(p NProfile) (string, error) {
	pubBytes, err := hexutil.DecodeExact(p.Pubkey, 32)
	if err != nil {
		return "", err
	}
	var tlv []byte
	tlv = appendTLV(tlv, tlvSpecial, pubBytes)
	for _, r := range p.RelayHints {
		tlv = appendTLV(tlv, tlvRelay, []byte(r))
	}
	return encodeTLVString("nprofile", tlv)
}

// DecodeNProfile decodes an nprofile1... identifier.
func DecodeNProfile(nprofile string) (*NProfile, error) {
	data, err := DecodeExpect(nprofile, "nprofile")
	if err != nil {
		return nil, err
	}

	n := &NProfile{}
	err = walkTLV(data, func(t byte, v []byte) error {
		switch t {
		case tlvSpecial:
			if len(v) != 32 {
				return errors.New("nip19: invalid nprofile pubkey length")
			}
			n.Pubkey = hex.EncodeToString(v)
		case tlvRelay:
			n.RelayHints = append(n.RelayHints, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n.Pubkey == "" {
		return nil, errors.New("nip19: nprofile missing pubkey")
	}
	return n, nil
}

// EncodeNAddr encodes an naddr1... identifier for a parameterized replaceable event.
func EncodeNAddr(a NAddr) (string, error) {
	authorBytes, err := hexutil.DecodeExact(a.Author, 32)
	if err != nil {
		return "", err
	}

	var tlv []byte
	tlv = appendTLV(tlv, tlvSpecial, []byte(a.DTag))
	for _, r := range a.RelayHints {
		tlv = appendTLV(tlv, tlvRelay, []byte(r))
	}
	tlv = appendTLV(tlv, tlvAuthor, authorBytes)
	kindBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(kindBytes, a.Kind)
	tlv = appendTLV(tlv, tlvKind, kindBytes)

	return encodeTLVString("naddr", tlv)
}

// DecodeNAddr decodes an naddr1... identifier.
func DecodeNAddr(naddr string) (*NAddr, error) {
	data, err := DecodeExpect(naddr, "naddr")
	if err != nil {
		return nil, err
	}

	n := &NAddr{}
	haveKind, haveAuthor := false, false
	err = walkTLV(data, func(t byte, v []byte) error {
		switch t {
		case tlvSpecial:
			n.DTag = string(v)
		case tlvRelay:
			n.RelayHints = append(n.RelayHints, string(v))
		case tlvAuthor:
			if len(v) != 32 {
				return errors.New("nip19: invalid naddr author length")
			}
			n.Author = hex.EncodeToString(v)
			haveAuthor = true
		case tlvKind:
			if len(v) != 4 {
				return errors.New("nip19: invalid naddr kind length")
			}
			n.Kind = binary.BigEndian.Uint32(v)
			haveKind = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !haveKind || !haveAuthor {
		return nil, errors.New("nip19: naddr missing kind or author")
	}
	return n, nil
}

func appendTLV(dst []byte, t byte, v []byte) []byte {
	dst = append(dst, t, byte(len(v)))
	return append(dst, v...)
}

func encodeTLVString(hrp string, tlv []byte) (string, error) {
	data5, err := ConvertBits(tlv, 8, 5, true)
	if err != nil {
		return "", err
	}
	return encode5(hrp, data5)
}

func walkTLV(data []byte, fn func(t byte, v []byte) error) error {
	for i := 0; i < len(data); {
		if i+2 > len(data) {
			break
		}
		t, l := data[i], int(data[i+1])
		i += 2
		if i+l > len(data) {
			break
		}
		if err := fn(t, data[i:i+l]); err != nil {
			return err
		}
		i += l
	}
	return nil
}
