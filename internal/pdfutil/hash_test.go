package pdfutil

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	doc := make([]byte, 64*1024)
	_, err := rand.Read(doc)
	require.NoError(t, err)

	h1, err := Hash(bytes.NewReader(doc))
	require.NoError(t, err)
	h2, err := Hash(bytes.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, HashBytes(doc))
	assert.Len(t, h1, 64)
}

func TestHashDetectsSingleByteChange(t *testing.T) {
	doc := make([]byte, 32*1024)
	_, err := rand.Read(doc)
	require.NoError(t, err)

	original := HashBytes(doc)

	// Flip one byte at a handful of offsets, including chunk boundaries.
	for _, off := range []int{0, 1, hashChunkSize - 1, hashChunkSize, len(doc) - 1} {
		mutated := append([]byte(nil), doc...)
		mutated[off] ^= 0x01
		assert.NotEqual(t, original, HashBytes(mutated), "offset %d", off)
	}
}

func TestHashDistinctOnCorpus(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		doc := make([]byte, 512)
		_, err := rand.Read(doc)
		require.NoError(t, err)
		h := HashBytes(doc)
		assert.False(t, seen[h], "collision on iteration %d", i)
		seen[h] = true
	}
}

func TestHashEmptyDocument(t *testing.T) {
	h, err := Hash(bytes.NewReader(nil))
	require.NoError(t, err)
	// SHA-256 of the empty string.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h)
}

func TestWatermarkRejectsNonPDF(t *testing.T) {
	_, err := Watermark([]byte("not a pdf at all"), "")
	assert.Error(t, err)
}

func TestPageCountRejectsNonPDF(t *testing.T) {
	_, err := PageCount([]byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
}
