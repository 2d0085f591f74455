package augment

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pageRangeRegex      = regexp.MustCompile(`^(.+)-(.+)$`)
	pageDigitRangeRegex = regexp.MustCompile(`^(\d+)-(\d+)$`)
	romanNumeralRegex   = regexp.MustCompile(`^M{0,4}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)
)

var romanValues = map[byte]int{
	'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000,
}

// romanToDecimal converts an uppercase Roman numeral. Validity is the
// caller's problem; romanNumeralRegex gates all call sites.
func romanToDecimal(s string) int {
	total := 0
	for i := 0; i < len(s); i++ {
		v := romanValues[s[i]]
		if i+1 < len(s) && v < romanValues[s[i+1]] {
			total -= v
		} else {
			total += v
		}
	}
	return total
}

// NormalizePages rewrites a page specification: Roman-numeral range
// endpoints become decimal (detection runs on the uppercased value), and a
// digit range with equal endpoints collapses to the single page number.
func NormalizePages(pages string) string {
	if m := pageRangeRegex.FindStringSubmatch(strings.ToUpper(pages)); m != nil {
		converted := convertRomanEndpoint(m[1]) + "-" + convertRomanEndpoint(m[2])
		if converted != pages {
			pages = converted
		}
	}
	if m := pageDigitRangeRegex.FindStringSubmatch(pages); m != nil && m[1] == m[2] {
		pages = m[1]
	}
	return pages
}

func convertRomanEndpoint(endpoint string) string {
	if romanNumeralRegex.MatchString(endpoint) {
		return strconv.Itoa(romanToDecimal(endpoint))
	}
	return endpoint
}
