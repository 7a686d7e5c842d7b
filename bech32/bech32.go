// Package bech32 implements the bech32 string encoding (BIP-173) used by
// NIP-19 for npub/nsec/note/nevent/nprofile/naddr identifiers.
package bech32

import (
	"errors"
	"strings"
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// ErrInvalidBech32 covers malformed characters, a missing/misplaced
// separator, a too-short payload, or a checksum mismatch.
var ErrInvalidBech32 = errors.New("invalid bech32 string")

// UnknownPrefixError is returned by callers that expect a specific hrp
// (e.g. a npub decoder handed an nsec string).
type UnknownPrefixError struct {
	Prefix string
}

func (e *UnknownPrefixError) Error() string {
	return "unknown bech32 prefix: " + e.Prefix
}

var charsetIndex [256]int8

func init() {
	for i := range charsetIndex {
		charsetIndex[i] = -1
	}
	for i, c := range charset {
		charsetIndex[c] = int8(i)
	}
}

var generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 != 0 {
				chk ^= generator[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	ret := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		ret = append(ret, byte(c>>5))
	}
	ret = append(ret, 0)
	for _, c := range hrp {
		ret = append(ret, byte(c&31))
	}
	return ret
}

func createChecksum(hrp string, data []byte) []byte {
	values := hrpExpand(hrp)
	values = append(values, data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := polymod(values) ^ 1
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

func verifyChecksum(hrp string, data []byte) bool {
	values := hrpExpand(hrp)
	values = append(values, data...)
	return polymod(values) == 1
}

// ConvertBits regroups data from fromBits-wide groups to toBits-wide
// groups, MSB-first. When pad is true, a short trailing group is
// zero-padded; when false, a non-zero trailing group is an error.
func ConvertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	var ret []byte
	maxv := uint32(1<<toBits) - 1

	for _, value := range data {
		if uint32(value)>>fromBits != 0 {
			return nil, errors.New("invalid data for bit conversion")
		}
		acc = (acc << fromBits) | uint32(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || ((acc<<(toBits-bits))&maxv) != 0 {
		return nil, errors.New("invalid padding in bit conversion")
	}

	return ret, nil
}

// Encode produces hrp+"1"+payload+checksum, converting the 8-bit data to
// 5-bit groups first.
func Encode(hrp string, data []byte) (string, error) {
	values, err := ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return encode5(hrp, values)
}

// encode5 encodes data that is already arranged as 5-bit groups.
func encode5(hrp string, values []byte) (string, error) {
	if hrp == "" {
		return "", ErrInvalidBech32
	}
	checksum := createChecksum(hrp, values)
	combined := append(append([]byte{}, values...), checksum...)

	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, v := range combined {
		if int(v) >= len(charset) {
			return "", ErrInvalidBech32
		}
		sb.WriteByte(charset[v])
	}
	return sb.String(), nil
}

// Decode splits a bech32 string into its hrp and 8-bit payload, verifying
// the checksum. The whole input is treated case-insensitively; mixed-case
// input is rejected per BIP-173.
func Decode(bech string) (string, []byte, error) {
	if strings.ToLower(bech) != bech && strings.ToUpper(bech) != bech {
		return "", nil, ErrInvalidBech32
	}
	bech = strings.ToLower(bech)

	pos := strings.LastIndex(bech, "1")
	if pos < 1 || pos+7 > len(bech) {
		return "", nil, ErrInvalidBech32
	}

	hrp := bech[:pos]
	dataPart := bech[pos+1:]
	if len(dataPart) < 6 {
		return "", nil, ErrInvalidBech32
	}

	values := make([]byte, len(dataPart))
	for i, c := range dataPart {
		if c > 255 || charsetIndex[c] == -1 {
			return "", nil, ErrInvalidBech32
		}
		values[i] = byte(charsetIndex[c])
	}

	if !verifyChecksum(hrp, values) {
		return "", nil, ErrInvalidBech32
	}
	values = values[:len(values)-6]

	data, err := ConvertBits(values, 5, 8, false)
	if err != nil {
		return "", nil, ErrInvalidBech32
	}
	return hrp, data, nil
}

// DecodeExpect decodes bech and requires the hrp to equal want.
func DecodeExpect(bech, want string) ([]byte, error) {
	hrp, data, err := Decode(bech)
	if err != nil {
		return nil, err
	}
	if hrp != want {
		return nil, &UnknownPrefixError{Prefix: hrp}
	}
	return data, nil
}
