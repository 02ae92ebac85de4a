package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// CanonicalJSON serializes v deterministically: map keys sorted, compact
// separators, no HTML escaping, non-ASCII characters as \uXXXX escapes. This
// matches the serialization the lock ecosystems use when embedding manifest
// digests, so hashes computed here line up with the ones recorded in lock
// artifacts.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return escapeNonASCII(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// escapeNonASCII rewrites every rune above 0x7F as a \uXXXX escape, using a
// surrogate pair beyond the basic multilingual plane. Non-ASCII bytes in
// encoded JSON only occur inside string values, so the whole document can be
// rewritten in one pass.
func escapeNonASCII(in []byte) []byte {
	ascii := true
	for _, b := range in {
		if b >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return in
	}

	var buf bytes.Buffer
	for _, r := range string(in) {
		switch {
		case r < utf8.RuneSelf:
			buf.WriteByte(byte(r))
		case r > 0xffff:
			r -= 0x10000
			fmt.Fprintf(&buf, `\u%04x\u%04x`, 0xd800+(r>>10), 0xdc00+(r&0x3ff))
		default:
			fmt.Fprintf(&buf, `\u%04x`, r)
		}
	}
	return buf.Bytes()
}

// SHA256Hex computes a SHA-256 digest of data.
// Returns the full 64-character hex string.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
