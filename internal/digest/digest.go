// Package digest computes the content digest attached to each packaged
// file (§3 "Digest"), used by the packager's idempotence check and by the
// provenance signer.
package digest

import (
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Size is the digest length in bytes (BLAKE2b-256).
const Size = blake2b.Size256

// Digest is a BLAKE2b-256 content digest.
type Digest [Size]byte

// String returns the hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// NewHasher returns a streaming BLAKE2b-256 hash.Hash; its eventual
// h.Sum(nil) can be copied directly into a Digest. Used where content must
// be hashed while it is also being written somewhere else (io.MultiWriter).
func NewHasher() (hash.Hash, error) {
	return blake2b.New256(nil)
}

// Of hashes the full contents of r.
func Of(r io.Reader) (Digest, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return Digest{}, err
	}
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, err
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}

// OfBytes hashes b directly.
func OfBytes(b []byte) Digest {
	sum := blake2b.Sum256(b)
	return Digest(sum)
}
