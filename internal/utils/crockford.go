package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Crockford base32 alphabet (uppercase). No I, L, O or U.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// CollectionCodeLength is the number of characters in a collection code.
const CollectionCodeLength = 8

var crockfordDecodeMap map[byte]byte

func init() {
	crockfordDecodeMap = make(map[byte]byte, 64)
	for i := range crockfordAlphabet {
		crockfordDecodeMap[crockfordAlphabet[i]] = byte(i)
	}
	lower := strings.ToLower(crockfordAlphabet)
	for i := 10; i < len(lower); i++ {
		crockfordDecodeMap[lower[i]] = byte(i)
	}

	// Commonly confused characters.
	crockfordDecodeMap['O'] = 0
	crockfordDecodeMap['o'] = 0
	crockfordDecodeMap['I'] = 1
	crockfordDecodeMap['i'] = 1
	crockfordDecodeMap['L'] = 1
	crockfordDecodeMap['l'] = 1
}

// NewCollectionCode returns a random code of CollectionCodeLength Crockford characters,
// 40 bits of entropy.
func NewCollectionCode() (string, error) {
	buf := make([]byte, CollectionCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i := range buf {
		buf[i] = crockfordAlphabet[buf[i]&0x1F]
	}
	return string(buf), nil
}

// NormalizeCollectionCode canonicalises a code typed by a person: hyphens and
// spaces are dropped, case is folded and look-alike letters are mapped to digits.
// ok is false when the input cannot be a collection code.
func NormalizeCollectionCode(s string) (code string, ok bool) {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != CollectionCodeLength {
		return "", false
	}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		val, found := crockfordDecodeMap[s[i]]
		if !found {
			return "", false
		}
		out[i] = crockfordAlphabet[val]
	}
	return string(out), true
}
