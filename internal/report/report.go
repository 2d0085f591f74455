// Package report collects per-journal harvest errors and writes the run report.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"
)

// Kind enumerates the harvest error taxonomy.
type Kind string

// Error kinds. These render as ERROR-<KIND> in the report file, which
// downstream triage tooling matches on, so the names are load-bearing.
const (
	KindUnknown                Kind = "UNKNOWN"
	KindConversionFailed       Kind = "ZTS_CONVERSION_FAILED"
	KindDownloadMultipleFailed Kind = "DOWNLOAD_MULTIPLE_FAILED"
	KindFailedToParseJSON      Kind = "FAILED_TO_PARSE_JSON"
	KindEmptyResponse          Kind = "ZTS_EMPTY_RESPONSE"
	KindBadStrptimeFormat      Kind = "BAD_STRPTIME_FORMAT"
	KindConfig                 Kind = "CONFIG"
)

// Tag returns the report-file form of the kind.
func (k Kind) Tag() string {
	return "ERROR-" + string(k)
}

// Error is a classified harvest failure. Augmentation and generation return it
// so the collector can file the item under the right kind without guessing.
type Error struct {
	Kind    Kind
	Message string
}

// NewError builds a classified Error.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind.Tag(), e.Message)
}

// classifier maps untyped error text onto a kind. Ordered; first match wins.
var classifier = []struct {
	pattern *regexp.Regexp
	kind    Kind
}{
	{regexp.MustCompile(`(?i)translation service.*(internal error|status 500|conversion)`), KindConversionFailed},
	{regexp.MustCompile(`(?i)(multiple matches|candidate resolution|resubmit)`), KindDownloadMultipleFailed},
	{regexp.MustCompile(`(?i)(parse.*json|unmarshal|invalid json)`), KindFailedToParseJSON},
	{regexp.MustCompile(`(?i)empty (response|body)`), KindEmptyResponse},
	{regexp.MustCompile(`(?i)(unparseable date|date format|strptime)`), KindBadStrptimeFormat},
	{regexp.MustCompile(`(?i)(no matching (ppn|catalog)|issn.*not configured|malformed.*field spec)`), KindConfig},
}

// Classify maps an error onto a Kind. Typed *Error values keep their kind;
// anything else is matched against the classifier patterns.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	msg := err.Error()
	for _, c := range classifier {
		if c.pattern.MatchString(msg) {
			return c.kind
		}
	}
	return KindUnknown
}

type urlError struct {
	kind    Kind
	message string
}

type journalErrors struct {
	urlErrors    map[string]urlError
	urlOrder     []string
	plainErrors  []string
	journalOrder int
}

// Collector accumulates errors per journal and URL. Safe for concurrent use;
// conversion tasklets and the dispatcher both log into it.
type Collector struct {
	mu       sync.Mutex
	journals map[string]*journalErrors
	order    int
	logger   *zap.Logger
}

// NewCollector builds an empty Collector.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		journals: make(map[string]*journalErrors),
		logger:   logger,
	}
}

func (c *Collector) journal(name string) *journalErrors {
	j, ok := c.journals[name]
	if !ok {
		j = &journalErrors{
			urlErrors:    make(map[string]urlError),
			journalOrder: c.order,
		}
		c.order++
		c.journals[name] = j
	}
	return j
}

// LogURL files a classified error for one (journal, url). A later error for
// the same URL overwrites the earlier one, matching last-failure-wins triage.
func (c *Collector) LogURL(journal, url string, kind Kind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.journal(journal)
	if _, seen := j.urlErrors[url]; !seen {
		j.urlOrder = append(j.urlOrder, url)
	}
	j.urlErrors[url] = urlError{kind: kind, message: message}
	c.logger.Error("harvest error",
		zap.String("journal", journal),
		zap.String("url", url),
		zap.String("kind", kind.Tag()),
		zap.String("detail", message))
}

// AutoLogURL classifies err and files it for (journal, url).
func (c *Collector) AutoLogURL(journal, url string, err error) {
	if err == nil {
		return
	}
	c.LogURL(journal, url, Classify(err), err.Error())
}

// LogJournal files an error that has no URL context (feed download, config).
func (c *Collector) LogJournal(journal, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.journal(journal)
	j.plainErrors = append(j.plainErrors, message)
	c.logger.Error("harvest error", zap.String("journal", journal), zap.String("detail", message))
}

// HasErrors reports whether anything was collected.
func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range c.journals {
		if len(j.urlErrors) > 0 || len(j.plainErrors) > 0 {
			return true
		}
	}
	return false
}

// JournalNames returns the affected journals in first-error order.
func (c *Collector) JournalNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.journals))
	for name := range c.journals {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool {
		return c.journals[names[a]].journalOrder < c.journals[names[b]].journalOrder
	})
	return names
}

// CountsByKind returns the number of URL errors per kind across all journals.
func (c *Collector) CountsByKind() map[Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[Kind]int)
	for _, j := range c.journals {
		for _, e := range j.urlErrors {
			counts[e.kind]++
		}
	}
	return counts
}

// WriteReport renders the collected errors as the INI-style run report:
// a top section with has_errors and the '|'-joined journal names, one section
// per journal mapping url to kind tag, and one section per (journal, kind)
// mapping url to the detailed message.
func (c *Collector) WriteReport(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file := ini.Empty()
	top := file.Section("")
	hasErrors := false
	names := make([]string, 0, len(c.journals))
	for name := range c.journals {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool {
		return c.journals[names[a]].journalOrder < c.journals[names[b]].journalOrder
	})
	for _, name := range names {
		j := c.journals[name]
		if len(j.urlErrors) > 0 || len(j.plainErrors) > 0 {
			hasErrors = true
		}
	}
	if _, err := top.NewKey("has_errors", fmt.Sprintf("%t", hasErrors)); err != nil {
		return fmt.Errorf("report top section: %w", err)
	}
	if _, err := top.NewKey("journal_names", strings.Join(names, "|")); err != nil {
		return fmt.Errorf("report top section: %w", err)
	}

	for _, name := range names {
		j := c.journals[name]
		sec, err := file.NewSection(name)
		if err != nil {
			return fmt.Errorf("report section %q: %w", name, err)
		}
		for _, url := range j.urlOrder {
			if _, err := sec.NewKey(url, j.urlErrors[url].kind.Tag()); err != nil {
				return fmt.Errorf("report section %q: %w", name, err)
			}
		}
		for i, msg := range j.plainErrors {
			if _, err := sec.NewKey(fmt.Sprintf("non_url_error_%d", i+1), msg); err != nil {
				return fmt.Errorf("report section %q: %w", name, err)
			}
		}

		byKind := make(map[Kind][]string)
		for _, url := range j.urlOrder {
			k := j.urlErrors[url].kind
			byKind[k] = append(byKind[k], url)
		}
		kinds := make([]Kind, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(a, b int) bool { return kinds[a] < kinds[b] })
		for _, k := range kinds {
			detail, err := file.NewSection(name + " " + k.Tag())
			if err != nil {
				return fmt.Errorf("report detail section: %w", err)
			}
			for _, url := range byKind[k] {
				if _, err := detail.NewKey(url, j.urlErrors[url].message); err != nil {
					return fmt.Errorf("report detail section: %w", err)
				}
			}
		}
	}

	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}
