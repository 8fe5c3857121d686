// Package pdfutil provides document integrity helpers: content hashing
// and draft watermarking. Hashing treats documents as opaque byte
// streams; watermarking requires a PDF.
package pdfutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

const hashChunkSize = 4096

// Hash computes the hex SHA-256 of r, streaming in bounded chunks so
// arbitrarily large documents never need to fit in memory.
func Hash(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hashing document: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes is Hash over an in-memory document.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashReaderAt hashes without consuming the caller's reader position.
func HashReaderAt(r io.ReaderAt, size int64) (string, error) {
	return Hash(io.NewSectionReader(r, 0, size))
}
