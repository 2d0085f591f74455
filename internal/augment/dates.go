package augment

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openbiblio/zotero-harvester/internal/report"
)

// strptimeVerbs maps C strptime conversion specifiers onto Go reference
// layout fragments. Journal date formats are configured in strptime syntax
// for compatibility with existing config files.
var strptimeVerbs = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'j': "002",
	'B': "January",
	'b': "Jan",
	'h': "Jan",
	'A': "Monday",
	'a': "Mon",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'z': "-0700",
	'Z': "MST",
	'T': "15:04:05",
	'D': "01/02/06",
	'F': "2006-01-02",
	'%': "%",
}

// ConvertStrptimeFormat translates a strptime format string into a Go time
// layout.
func ConvertStrptimeFormat(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		i++
		if i >= len(format) {
			return "", fmt.Errorf("format %q ends with a bare %%", format)
		}
		fragment, ok := strptimeVerbs[format[i]]
		if !ok {
			return "", fmt.Errorf("format %q: unsupported conversion %%%c", format, format[i])
		}
		b.WriteString(fragment)
	}
	return b.String(), nil
}

// defaultDateLayouts are tried when a journal configures no date format.
var defaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01",
	"2006",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"02.01.2006",
	"2006/01/02",
}

// ParseDate parses a date value against '|'-separated strptime formats,
// falling back to a set of common layouts when none are configured.
func ParseDate(value, formats string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var layouts []string
	if strings.TrimSpace(formats) == "" {
		layouts = defaultDateLayouts
	} else {
		for _, format := range strings.Split(formats, "|") {
			format = strings.TrimSpace(format)
			if format == "" {
				continue
			}
			layout, err := ConvertStrptimeFormat(format)
			if err != nil {
				return time.Time{}, report.NewError(report.KindBadStrptimeFormat, "%v", err)
			}
			layouts = append(layouts, layout)
		}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, report.NewError(report.KindBadStrptimeFormat,
		"date %q does not match any configured format (%q)", value, formats)
}

// NormalizeDate renders a parsed date as YYYY-MM-DD.
func NormalizeDate(value, formats string) (string, error) {
	t, err := ParseDate(value, formats)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

var yearRegex = regexp.MustCompile(`\b(\d{4})\b`)

// YearOf extracts the first plausible four-digit year from a date string.
func YearOf(date string) (string, bool) {
	m := yearRegex.FindStringSubmatch(date)
	if m == nil {
		return "", false
	}
	return m[1], true
}
