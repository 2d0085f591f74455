package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/ini.v1"
)

func TestClassifyTypedError(t *testing.T) {
	t.Parallel()

	err := NewError(KindBadStrptimeFormat, "couldn't parse %q", "Jan 2020")
	require.Equal(t, KindBadStrptimeFormat, Classify(err))

	wrapped := fmt.Errorf("augment item: %w", err)
	require.Equal(t, KindBadStrptimeFormat, Classify(wrapped))
}

func TestClassifyByMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg  string
		want Kind
	}{
		{"translation service returned status 500: internal error", KindConversionFailed},
		{"failed to resolve multiple matches for children", KindDownloadMultipleFailed},
		{"could not unmarshal response array", KindFailedToParseJSON},
		{"service returned an empty body", KindEmptyResponse},
		{"unparseable date \"foo\"", KindBadStrptimeFormat},
		{"online issn is not configured for journal", KindConfig},
		{"something else entirely", KindUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(errors.New(tc.msg)), "message %q", tc.msg)
	}
}

func TestCollectorHasErrors(t *testing.T) {
	t.Parallel()

	c := NewCollector(zap.NewNop())
	require.False(t, c.HasErrors())

	c.LogURL("Journal A", "https://a.test/1", KindConversionFailed, "boom")
	require.True(t, c.HasErrors())
	require.Equal(t, []string{"Journal A"}, c.JournalNames())
}

func TestCollectorJournalOrder(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.LogJournal("Zeta Review", "feed download failed")
	c.LogURL("Alpha Quarterly", "https://alpha.test/x", KindFailedToParseJSON, "bad json")

	// First-error order, not lexicographic.
	require.Equal(t, []string{"Zeta Review", "Alpha Quarterly"}, c.JournalNames())
}

func TestCollectorLastFailureWins(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.LogURL("J", "https://j.test/a", KindEmptyResponse, "first")
	c.LogURL("J", "https://j.test/a", KindConversionFailed, "second")

	counts := c.CountsByKind()
	require.Equal(t, 1, counts[KindConversionFailed])
	require.Zero(t, counts[KindEmptyResponse])
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	c := NewCollector(zap.NewNop())
	c.LogURL("Journal A", "https://a.test/1", KindConversionFailed, "service exploded")
	c.LogURL("Journal A", "https://a.test/2", KindFailedToParseJSON, "trailing comma")
	c.LogJournal("Journal B", "unresolvable feed host")

	path := filepath.Join(t.TempDir(), "report.ini")
	require.NoError(t, c.WriteReport(path))

	file, err := ini.Load(path)
	require.NoError(t, err)

	top := file.Section("")
	require.Equal(t, "true", top.Key("has_errors").String())
	require.Equal(t, "Journal A|Journal B", top.Key("journal_names").String())

	ja := file.Section("Journal A")
	require.Equal(t, "ERROR-ZTS_CONVERSION_FAILED", ja.Key("https://a.test/1").String())
	require.Equal(t, "ERROR-FAILED_TO_PARSE_JSON", ja.Key("https://a.test/2").String())

	detail := file.Section("Journal A ERROR-ZTS_CONVERSION_FAILED")
	require.Equal(t, "service exploded", detail.Key("https://a.test/1").String())

	jb := file.Section("Journal B")
	require.Equal(t, "unresolvable feed host", jb.Key("non_url_error_1").String())
}

func TestWriteReportNoErrors(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	path := filepath.Join(t.TempDir(), "report.ini")
	require.NoError(t, c.WriteReport(path))

	file, err := ini.Load(path)
	require.NoError(t, err)
	require.Equal(t, "false", file.Section("").Key("has_errors").String())
	require.Empty(t, file.Section("").Key("journal_names").String())
}
