package augment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		// Roman ranges become decimal, case-insensitively.
		{"IV-VII", "4-7"},
		{"iv-vii", "4-7"},
		{"XII-XXIV", "12-24"},
		{"CM-CMXCIX", "900-999"},
		// Mixed ranges convert only the Roman endpoint.
		{"XII-14", "12-14"},
		// Equal endpoints collapse to a single page.
		{"5-5", "5"},
		{"II-II", "2"},
		// Plain ranges and single pages pass through.
		{"117-123", "117-123"},
		{"42", "42"},
		{"", ""},
		// A single Roman numeral is not a range and stays untouched.
		{"XIII", "XIII"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizePages(tc.in), "input %q", tc.in)
	}
}

func TestRomanToDecimal(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"I":         1,
		"IV":        4,
		"IX":        9,
		"XIV":       14,
		"XL":        40,
		"XCIX":      99,
		"CDXLIV":    444,
		"MCMLXXXIV": 1984,
		"MMXXIII":   2023,
	}
	for numeral, want := range cases {
		require.Equal(t, want, romanToDecimal(numeral), "numeral %q", numeral)
	}
}
