package aadhaar

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Numbers below pass the Verhoeff checksum and start with an allowed
// digit. They are synthetic, not issued Aadhaar numbers.
var validNumbers = []string{
	"234567890124",
	"999999999999",
	"314159265351",
	"867530900001",
	"443322110095",
}

func TestValidateAcceptsChecksummedNumbers(t *testing.T) {
	for _, n := range validNumbers {
		ok, reason := Validate(n)
		assert.True(t, ok, "expected %s to validate: %s", n, reason)
	}
}

func TestValidateAcceptsSeparators(t *testing.T) {
	ok, _ := Validate("2345-6789 0124")
	assert.True(t, ok)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		number string
		reason string
	}{
		{"too short", "234567890", "exactly 12 digits"},
		{"too long", "2345678901245", "exactly 12 digits"},
		{"letters", "ABCD56789012", "exactly 12 digits"},
		{"starts with 0", "034567890124", "cannot start with 0 or 1"},
		{"starts with 1", "123456789012", "cannot start with 0 or 1"},
		{"bad checksum", "234567890123", "checksum failed"},
		{"empty", "", "exactly 12 digits"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := Validate(tc.number)
			assert.False(t, ok)
			assert.Contains(t, reason, tc.reason)
		})
	}
}

func TestValidateRejectsSingleDigitMutations(t *testing.T) {
	base := "234567890124"
	for i := 0; i < len(base); i++ {
		for r := byte('0'); r <= '9'; r++ {
			if r == base[i] {
				continue
			}
			mutated := base[:i] + string(r) + base[i+1:]
			ok, _ := Validate(mutated)
			assert.False(t, ok, "mutation %s at position %d passed", mutated, i)
		}
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "XXXX-XXXX-0124", Mask("234567890124"))
	assert.Equal(t, "XXXX-XXXX-0124", Mask("2345 6789 0124"))
	assert.Equal(t, "XXXX-XXXX-XXXX", Mask("12345"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2345-6789-0124", Format("234567890124"))
	assert.Equal(t, "2345-6789-0124", Format("2345-6789-0124"))
	assert.Equal(t, "12345", Format("123 45"))
}

func TestFormatIsReversible(t *testing.T) {
	for _, n := range validNumbers {
		assert.Equal(t, n, Normalize(Format(n)))
	}
}

func TestHashIsDeterministicAndNotRaw(t *testing.T) {
	h1 := Hash("234567890124")
	h2 := Hash("2345-6789-0124")
	require.Equal(t, h1, h2, "hash must normalize before digesting")
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "234567890124")
}

func ExampleMask() {
	fmt.Println(Mask("234567890124"))
	// Output: XXXX-XXXX-0124
}
