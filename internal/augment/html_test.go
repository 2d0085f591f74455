package augment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripTags(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"<b>Glaube</b> und <i>Vernunft</i>", "Glaube und Vernunft"},
		{"<p>First.</p><p>Second.</p>", "First. Second."},
		{"line one<br>line two<br/>line three", "line one line two line three"},
		{"no markup at all", "no markup at all"},
		{"Faith &amp; Reason &#8211; 2023", "Faith & Reason – 2023"},
		{"<!-- hidden -->visible", "visible"},
		{"  padded \n\t text  ", "padded text"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StripTags(tc.in), "input %q", tc.in)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b c", CollapseWhitespace("  a \t b\n\nc "))
	require.Equal(t, "", CollapseWhitespace(" \n "))
}
