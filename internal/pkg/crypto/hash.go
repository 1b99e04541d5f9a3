package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// HashReader wraps an io.Reader and computes a SHA-256 digest of the
// bytes read through it. It is used to checksum uploads as they stream
// to disk without buffering the whole file.
type HashReader struct {
	reader io.Reader
	hasher hash.Hash
	size   int64
}

// NewHashReader creates a HashReader wrapping r.
func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{
		reader: r,
		hasher: sha256.New(),
	}
}

// Read implements io.Reader, hashing bytes as they pass through.
func (h *HashReader) Read(p []byte) (int, error) {
	n, err := h.reader.Read(p)
	if n > 0 {
		h.hasher.Write(p[:n])
		h.size += int64(n)
	}
	return n, err
}

// Sum returns the hex-encoded SHA-256 digest of everything read so far.
func (h *HashReader) Sum() string {
	return hex.EncodeToString(h.hasher.Sum(nil))
}

// Size returns the number of bytes read so far.
func (h *HashReader) Size() int64 {
	return h.size
}
