// Package aadhaar validates, masks and formats Aadhaar numbers.
// Validation is pure: no I/O, no clock, no external service.
package aadhaar

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verhoeff checksum tables: dihedral multiplication, position
// permutation, and the inverse table.
var dTable = [10][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
	{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
	{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
	{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
	{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
	{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
	{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
	{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
	{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
}

var pTable = [8][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
	{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
	{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
	{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
	{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
	{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
	{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
}

var invTable = [10]int{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}

const aadhaarLength = 12

// Normalize strips spaces and hyphens.
func Normalize(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Validate checks an Aadhaar number: exactly 12 digits, first digit not
// 0 or 1, and a passing Verhoeff checksum. It returns a human-readable
// reason when invalid.
func Validate(number string) (bool, string) {
	n := Normalize(number)

	if len(n) != aadhaarLength {
		return false, "Aadhaar number must be exactly 12 digits"
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false, "Aadhaar number must be exactly 12 digits"
		}
	}
	if n[0] == '0' || n[0] == '1' {
		return false, "Aadhaar number cannot start with 0 or 1"
	}
	if !verifyVerhoeff(n) {
		return false, "Invalid Aadhaar number (checksum failed)"
	}
	return true, "Valid Aadhaar number"
}

func verifyVerhoeff(number string) bool {
	c := 0
	for i := 0; i < len(number); i++ {
		digit := int(number[len(number)-1-i] - '0')
		c = dTable[c][pTable[i%8][digit]]
	}
	return c == 0
}

// Mask replaces all but the last 4 digits with a fixed placeholder,
// e.g. "XXXX-XXXX-1234". Malformed input masks fully.
func Mask(number string) string {
	n := Normalize(number)
	if len(n) != aadhaarLength {
		return "XXXX-XXXX-XXXX"
	}
	return "XXXX-XXXX-" + n[8:]
}

// Format inserts grouping separators for display: "2345-6789-0124".
// Input that is not 12 digits long is returned normalized but ungrouped.
func Format(number string) string {
	n := Normalize(number)
	if len(n) != aadhaarLength {
		return n
	}
	return n[0:4] + "-" + n[4:8] + "-" + n[8:12]
}

// Hash returns the hex SHA-256 of the normalized number. This is the
// only form of the number that may be persisted.
func Hash(number string) string {
	sum := sha256.Sum256([]byte(Normalize(number)))
	return hex.EncodeToString(sum[:])
}
