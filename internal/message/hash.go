package message

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hasher produces keyed BLAKE2b-256 digests of sender signals. The key is
// the server-side salt, so digests cannot be recomputed from a guessed IP
// without it.
type Hasher struct {
	key []byte
}

func NewHasher(salt string) *Hasher {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Hasher{key: key}
}

func (h *Hasher) Sum(value string) string {
	m, err := blake2b.New256(h.key)
	if err != nil {
		// only possible with a key over 64 bytes, which NewHasher prevents
		panic(err)
	}
	m.Write([]byte("anonuplift:"))
	m.Write([]byte(value))
	return hex.EncodeToString(m.Sum(nil))
}
