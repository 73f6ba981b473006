// Package fingerprint computes stable content addresses for byte content
// and directory trees, used to detect drift between a recorded codebase and
// a replayed or live one.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a hash function. The name doubles as the digest prefix.
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	BLAKE2b Algorithm = "blake2b"
)

const (
	// DigestLen is the number of hex characters kept in a content digest.
	DigestLen = 16
	// EntryLen is the number of hex characters kept per file in a
	// directory listing.
	EntryLen = 8
)

// ParseAlgorithm maps a name to an Algorithm. The empty string is SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE2b:
		return BLAKE2b, nil
	}
	return "", fmt.Errorf("unknown hash algorithm %q", s)
}

// Hasher produces tagged digests with one algorithm.
type Hasher struct {
	alg Algorithm
}

// NewHasher returns a Hasher for alg; an unknown algorithm falls back to
// SHA256.
func NewHasher(alg Algorithm) Hasher {
	if alg != BLAKE2b {
		alg = SHA256
	}
	return Hasher{alg: alg}
}

func (h Hasher) Algorithm() Algorithm { return h.alg }

func (h Hasher) newHash() hash.Hash {
	if h.alg == BLAKE2b {
		d, _ := blake2b.New256(nil)
		return d
	}
	return sha256.New()
}

// Hex returns the full hex digest of data.
func (h Hasher) Hex(data []byte) string {
	d := h.newHash()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}

// Content returns "<alg>:<first 16 hex chars>" for data.
func (h Hasher) Content(data []byte) string {
	return string(h.alg) + ":" + h.Hex(data)[:DigestLen]
}

var defaultHasher = NewHasher(SHA256)

// Content returns the SHA-256 content address of data, e.g.
// "sha256:2cf24dba5fb0a30e".
func Content(data []byte) string { return defaultHasher.Content(data) }

// String is Content for string input.
func String(s string) string { return defaultHasher.Content([]byte(s)) }

// Split separates a tagged digest into algorithm and hex parts.
func Split(digest string) (Algorithm, string, bool) {
	alg, hexPart, ok := strings.Cut(digest, ":")
	if !ok {
		return "", "", false
	}
	return Algorithm(alg), hexPart, true
}
